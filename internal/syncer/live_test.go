package syncer

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aryamantandon18/connectly/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

func liveServer(t *testing.T) (*ws.Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := ws.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() { _ = hub.Run(ctx); close(stopped) }()

	r := gin.New()
	require.NoError(t, hub.Attach(r, func(c *gin.Context) {
		conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		_ = hub.Serve(c.Request.Context(), conn, c.Query("profile"))
	}))
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		<-stopped
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + ws.DefaultPath
}

func runClient(t *testing.T, l *LiveClient) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = l.Run(ctx); close(done) }()
	t.Cleanup(func() { cancel(); <-done })
	return cancel
}

func TestLiveClientAnnouncesPresence(t *testing.T) {
	hub, url := liveServer(t)

	var connects atomic.Int32
	l := NewLiveClient(url+"?profile=u1", "", "u1")
	l.Subscribe(ws.EventConnect, func(json.RawMessage) { connects.Add(1) })
	runClient(t, l)

	require.Eventually(t, l.Connected, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return len(l.OnlineUsers()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"u1"}, l.OnlineUsers())
	assert.Equal(t, []string{"u1"}, hub.OnlineUsers(context.Background()))
	assert.Equal(t, int32(1), connects.Load())
}

func TestLiveClientDispatchAndUnsubscribe(t *testing.T) {
	hub, url := liveServer(t)

	l := NewLiveClient(url, "", "")
	got := make(chan string, 4)
	unsubscribe := l.Subscribe("chat:c1:messages", func(data json.RawMessage) {
		var m Message
		if json.Unmarshal(data, &m) == nil {
			got <- m.ID
		}
	})
	runClient(t, l)
	require.Eventually(t, func() bool { return hub.ClientCount(context.Background()) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish("chat:c2:messages", msg(7)))
	require.NoError(t, hub.Publish("chat:c1:messages", msg(1)))
	select {
	case id := <-got:
		assert.Equal(t, "m1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("no message dispatched")
	}

	unsubscribe()
	unsubscribe()
	assert.Zero(t, l.Subscribers("chat:c1:messages"))
	require.NoError(t, hub.Publish("chat:c1:messages", msg(2)))
	select {
	case id := <-got:
		t.Fatalf("unexpected dispatch of %s after unsubscribe", id)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLiveClientReconnects(t *testing.T) {
	_, url := liveServer(t)

	// Nothing listens here at first; the client keeps retrying.
	l := NewLiveClient("ws://127.0.0.1:1/none", "", "", WithBackoff(10*time.Millisecond, 20*time.Millisecond))
	runClient(t, l)
	time.Sleep(50 * time.Millisecond)
	assert.False(t, l.Connected())
	assert.ErrorIs(t, l.Emit(context.Background(), ws.EventUserOnline, "x"), ErrNotConnected)

	l2 := NewLiveClient(url, "", "", WithBackoff(10*time.Millisecond, 20*time.Millisecond))
	var disconnects atomic.Int32
	l2.Subscribe(ws.EventDisconnect, func(json.RawMessage) { disconnects.Add(1) })
	cancel := runClient(t, l2)
	require.Eventually(t, l2.Connected, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return disconnects.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, l2.Connected())
}

func TestViewReceivesLivePushWithoutFetch(t *testing.T) {
	hub, url := liveServer(t)

	l := NewLiveClient(url, "", "")
	runClient(t, l)
	require.Eventually(t, l.Connected, 2*time.Second, 10*time.Millisecond)

	hist := newHistory(2)
	v := NewView(c1, hist, l)
	mountReady(t, v)

	require.NoError(t, hub.Publish(c1.TopicKey(), msg(3)))
	require.Eventually(t, func() bool { return len(v.Messages()) == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "m3", v.Messages()[0].ID)
	assert.Equal(t, int32(1), hist.latest.Load())

	v.Close()
	assert.Zero(t, l.Subscribers(c1.TopicKey()))
}

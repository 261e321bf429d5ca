package syncer

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aryamantandon18/connectly/internal/logging"
	"github.com/aryamantandon18/connectly/internal/ws"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 10 * time.Second
	emitWait   = 5 * time.Second
)

var ErrNotConnected = errors.New("live channel is not connected")

type LiveOption func(*LiveClient)

// WithBackoff bounds the reconnect delay.
func WithBackoff(lo, hi time.Duration) LiveOption {
	return func(l *LiveClient) {
		if lo > 0 {
			l.minBackoff = lo
		}
		if hi >= l.minBackoff {
			l.maxBackoff = hi
		}
	}
}

// LiveClient holds one live channel connection, reconnecting until its
// context ends. After each connect it announces userID with user-online.
//
// Subscribers receive the data of every frame whose type matches the event
// they subscribed to. The connect and disconnect events are dispatched
// locally with nil data.
type LiveClient struct {
	url    string
	header http.Header
	userID string
	log    zerolog.Logger

	minBackoff time.Duration
	maxBackoff time.Duration

	mu       sync.RWMutex
	handlers map[string]map[int]func(json.RawMessage)
	nextID   int
	conn     *websocket.Conn
	online   []string

	connected atomic.Bool
}

// NewLiveClient dials url (ws:// or wss://) with token as bearer credential.
func NewLiveClient(url, token, userID string, opts ...LiveOption) *LiveClient {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	l := &LiveClient{
		url:        url,
		header:     header,
		userID:     userID,
		log:        logging.With("live-client"),
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
		handlers:   make(map[string]map[int]func(json.RawMessage)),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.Subscribe(ws.EventOnlineUsers, l.trackOnline)
	return l
}

func (l *LiveClient) Connected() bool { return l.connected.Load() }

// OnlineUsers is the last presence snapshot received.
func (l *LiveClient) OnlineUsers() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.online...)
}

func (l *LiveClient) trackOnline(data json.RawMessage) {
	var users []string
	if err := json.Unmarshal(data, &users); err != nil {
		l.log.Warn().Err(err).Msg("malformed online-users")
		return
	}
	l.mu.Lock()
	l.online = users
	l.mu.Unlock()
}

// Subscribe registers fn for event and returns the function that removes it.
// Calling the returned function more than once is harmless.
func (l *LiveClient) Subscribe(event string, fn func(data json.RawMessage)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextID
	l.nextID++
	if l.handlers[event] == nil {
		l.handlers[event] = make(map[int]func(json.RawMessage))
	}
	l.handlers[event][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.handlers[event], id)
			if len(l.handlers[event]) == 0 {
				delete(l.handlers, event)
			}
		})
	}
}

// Subscribers is the number of handlers registered for event.
func (l *LiveClient) Subscribers(event string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.handlers[event])
}

func (l *LiveClient) dispatch(event string, data json.RawMessage) {
	l.mu.RLock()
	fns := make([]func(json.RawMessage), 0, len(l.handlers[event]))
	for _, fn := range l.handlers[event] {
		fns = append(fns, fn)
	}
	l.mu.RUnlock()

	for _, fn := range fns {
		fn(data)
	}
}

// Emit sends one event to the server.
func (l *LiveClient) Emit(ctx context.Context, event string, data any) error {
	l.mu.RLock()
	conn := l.conn
	l.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, emitWait)
	defer cancel()
	return wsjson.Write(ctx, conn, ws.Event{Type: event, Data: data})
}

// Run connects and reconnects with exponential backoff until ctx is done.
func (l *LiveClient) Run(ctx context.Context) error {
	backoff := l.minBackoff
	for {
		connected, err := l.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = l.minBackoff
		}
		l.log.Debug().Err(err).Dur("retry_in", backoff).Msg("live channel unavailable")

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		backoff *= 2
		if backoff > l.maxBackoff {
			backoff = l.maxBackoff
		}
	}
}

// session runs one connection. connected reports whether the dial
// succeeded.
func (l *LiveClient) session(ctx context.Context) (connected bool, err error) {
	conn, _, err := websocket.Dial(ctx, l.url, &websocket.DialOptions{HTTPHeader: l.header})
	if err != nil {
		return false, err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	l.connected.Store(true)
	l.log.Info().Str("url", l.url).Msg("live channel connected")
	l.dispatch(ws.EventConnect, nil)

	defer func() {
		l.mu.Lock()
		l.conn = nil
		l.online = nil
		l.mu.Unlock()
		l.connected.Store(false)
		l.log.Info().Msg("live channel disconnected")
		l.dispatch(ws.EventDisconnect, nil)
	}()

	if l.userID != "" {
		if err := l.Emit(ctx, ws.EventUserOnline, l.userID); err != nil {
			return true, err
		}
	}

	for {
		_, b, err := conn.Read(ctx)
		if err != nil {
			return true, err
		}
		var f struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(b, &f); err != nil {
			l.log.Warn().Err(err).Msg("malformed frame")
			continue
		}
		l.dispatch(f.Type, f.Data)
	}
}

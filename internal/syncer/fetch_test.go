package syncer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aryamantandon18/connectly/internal/config"
	"github.com/aryamantandon18/connectly/internal/http/middleware"
	"github.com/aryamantandon18/connectly/internal/http/router"
	"github.com/aryamantandon18/connectly/internal/ingest"
	"github.com/aryamantandon18/connectly/internal/models"
	"github.com/aryamantandon18/connectly/internal/store"
	"github.com/aryamantandon18/connectly/internal/store/storetest"
	"github.com/aryamantandon18/connectly/internal/upload"
	"github.com/aryamantandon18/connectly/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const apiSecret = "syncer-test-secret"

func apiServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := storetest.Open(t)
	storetest.Seed(t, db)
	storetest.SeedMessages(t, db, storetest.ChannelID, "m", 12)

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Profile{}).Where("id = ?", storetest.ProfileAlice).
		Update("password_hash", string(hash)).Error)

	cfg := config.Config{
		JWTSecret:      apiSecret,
		UploadDir:      t.TempDir(),
		PublicBaseURL:  "http://files.test",
		MaxUploadBytes: 1 << 20,
		IngestRate:     100,
		IngestBurst:    100,
	}
	disk, err := upload.NewDisk(cfg.UploadDir, cfg.PublicBaseURL, cfg.MaxUploadBytes)
	require.NoError(t, err)

	hub := ws.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() { _ = hub.Run(ctx); close(stopped) }()

	s := store.New(db)
	r, err := router.New(router.Deps{Config: cfg, DB: db, Store: s, Hub: hub, Ingest: ingest.New(s, disk, hub)})
	require.NoError(t, err)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-stopped
	})
	return srv
}

func clientFor(t *testing.T, srv *httptest.Server, profileID string) *HTTPClient {
	t.Helper()
	tok, err := middleware.IssueToken(apiSecret, profileID, "", time.Now())
	require.NoError(t, err)
	return NewHTTPClient(srv.URL, tok)
}

func TestHTTPClientListPage(t *testing.T) {
	srv := apiServer(t)
	c := clientFor(t, srv, storetest.ProfileBob)
	channel := models.ChannelContainer(storetest.ServerID, storetest.ChannelID)

	page, err := c.ListPage(context.Background(), channel, "")
	require.NoError(t, err)
	require.Len(t, page.Items, 10)
	assert.Equal(t, "m12", page.Items[0].ID)
	assert.Equal(t, "Alice", page.Items[0].Author())
	require.NotNil(t, page.NextCursor)

	page, err = c.ListPage(context.Background(), channel, *page.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, []string{"m2", "m1"}, ids(page.Items))
	assert.Nil(t, page.NextCursor)
}

func TestHTTPClientSend(t *testing.T) {
	srv := apiServer(t)
	c := clientFor(t, srv, storetest.ProfileAlice)

	m, err := c.Send(context.Background(), models.ChannelContainer(storetest.ServerID, storetest.ChannelID),
		"with file", "notes.txt", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, "with file", m.Content)
	require.NotNil(t, m.FileURL)
	assert.False(t, m.Edited())

	dm, err := c.Send(context.Background(), models.ConversationContainer(storetest.ConversationID), "psst", "", nil)
	require.NoError(t, err)
	assert.Equal(t, storetest.ConversationID, dm.ConversationID)
}

func TestHTTPClientErrors(t *testing.T) {
	srv := apiServer(t)

	_, err := clientFor(t, srv, storetest.ProfileCarol).ListPage(context.Background(),
		models.ChannelContainer("", storetest.ChannelID), "")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "Member not found", apiErr.Message)

	_, err = clientFor(t, srv, storetest.ProfileAlice).Send(context.Background(),
		models.ChannelContainer(storetest.ServerID, storetest.ChannelID), "", "", nil)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "Content missing", apiErr.Message)
}

func TestHTTPClientLogin(t *testing.T) {
	srv := apiServer(t)
	c := NewHTTPClient(srv.URL, "")

	res, err := c.Login(context.Background(), "alice@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, storetest.ProfileAlice, res.User.ID)
	profileID, err := middleware.ParseToken(apiSecret, res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, storetest.ProfileAlice, profileID)

	_, err = c.Login(context.Background(), "alice@example.com", "wrong")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

func TestLiveURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:8084/api/socket/io", NewHTTPClient("http://localhost:8084/", "").LiveURL("/api/socket/io"))
	assert.Equal(t, "wss://chat.example/api/socket/io", NewHTTPClient("https://chat.example", "").LiveURL("/api/socket/io"))
}

// Package ws is the live channel: a single websocket hub per process that
// tracks presence and pushes message events to every connected client.
//
// The hub is an actor. Run owns the connection set and the presence
// registry; every mutation reaches it through a channel, so neither needs a
// lock. Construct one Hub at startup, start Run, Attach it to the router and
// hand it to the ingest service.
package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aryamantandon18/connectly/internal/logging"
	"github.com/aryamantandon18/connectly/internal/metrics"
	"github.com/aryamantandon18/connectly/internal/presence"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

// Event names shared with clients.
const (
	EventConnect     = "connect"
	EventDisconnect  = "disconnect"
	EventUserOnline  = "user-online"
	EventOnlineUsers = "online-users"
)

const (
	DefaultPath = "/api/socket/io"

	defaultSendBuffer   = 64
	defaultQueueSize    = 256
	defaultPingInterval = 25 * time.Second
	writeWait           = 10 * time.Second
	pingWait            = 5 * time.Second
	maxInboundSize      = 32 << 10
)

var (
	ErrHubClosed      = errors.New("live channel is not running")
	ErrQueueFull      = errors.New("live channel queue is full")
	ErrAlreadyRunning = errors.New("live channel is already running")
)

// Event is the frame exchanged over the live channel.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type inboundEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type clientEvent struct {
	client *Client
	event  inboundEvent
}

const (
	stateIdle int32 = iota
	stateRunning
	stateStopped
)

type Hub struct {
	register   chan *Client
	unregister chan *Client
	inbound    chan clientEvent
	broadcast  chan Event
	calls      chan func()
	done       chan struct{}
	state      atomic.Int32

	// Owned by Run.
	clients  map[string]*Client
	presence *presence.Registry

	path         string
	sendBuffer   int
	pingInterval time.Duration

	mu       sync.Mutex
	attached map[gin.IRoutes]struct{}

	log zerolog.Logger
}

type Option func(*Hub)

// WithPath sets the well-known path the live channel is served on.
func WithPath(path string) Option {
	return func(h *Hub) {
		if path != "" {
			h.path = path
		}
	}
}

func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

func WithPingInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		inbound:      make(chan clientEvent),
		broadcast:    make(chan Event, defaultQueueSize),
		calls:        make(chan func()),
		done:         make(chan struct{}),
		clients:      make(map[string]*Client),
		presence:     presence.NewRegistry(),
		path:         DefaultPath,
		sendBuffer:   defaultSendBuffer,
		pingInterval: defaultPingInterval,
		attached:     make(map[gin.IRoutes]struct{}),
		log:          logging.With("live"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) Path() string { return h.path }

// Attach mounts the live channel endpoint on r. Attaching twice to the same
// router is a no-op. A registration the router rejects (for instance a
// conflicting route on the same path) is returned as an error.
func (h *Hub) Attach(r gin.IRoutes, handlers ...gin.HandlerFunc) (err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.attached[r]; ok {
		return nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("attach live channel at %s: %v", h.path, rec)
		}
	}()
	r.GET(h.path, handlers...)
	h.attached[r] = struct{}{}
	return nil
}

// Run processes connection, presence and publish events until ctx is done.
// All clients are closed on return. A hub cannot be restarted.
func (h *Hub) Run(ctx context.Context) error {
	if !h.state.CompareAndSwap(stateIdle, stateRunning) {
		return ErrAlreadyRunning
	}
	defer func() {
		h.state.Store(stateStopped)
		close(h.done)
	}()
	h.log.Info().Str("path", h.path).Msg("live channel started")

	for {
		select {
		case <-ctx.Done():
			n := len(h.clients)
			h.closeAllClients()
			h.log.Info().Int("clients_closed", n).Msg("live channel stopped")
			return ctx.Err()

		case c := <-h.register:
			h.clients[c.ID] = c
			metrics.LiveConnections.Set(float64(len(h.clients)))
			h.log.Debug().Str("conn", c.ID).Str("profile", c.ProfileID).Msg(EventConnect)

		case c := <-h.unregister:
			if _, ok := h.clients[c.ID]; !ok {
				continue
			}
			delete(h.clients, c.ID)
			close(c.send)
			metrics.LiveConnections.Set(float64(len(h.clients)))

			userID, _ := h.presence.MarkOffline(c.ID)
			h.log.Debug().Str("conn", c.ID).Str("user", userID).Msg(EventDisconnect)
			h.broadcastPresence()

		case ce := <-h.inbound:
			h.handleInbound(ce.client, ce.event)

		case ev := <-h.broadcast:
			h.fanOut(ev)

		case fn := <-h.calls:
			fn()
		}
	}
}

func (h *Hub) handleInbound(c *Client, ev inboundEvent) {
	switch ev.Type {
	case EventUserOnline:
		var userID string
		if err := json.Unmarshal(ev.Data, &userID); err != nil || userID == "" {
			h.log.Warn().Str("conn", c.ID).Msg("user-online without a user id")
			return
		}
		if c.ProfileID != "" && userID != c.ProfileID {
			h.log.Warn().
				Str("conn", c.ID).
				Str("profile", c.ProfileID).
				Str("user", userID).
				Msg("user-online identity does not match the connection")
			return
		}
		h.presence.MarkOnline(userID, c.ID)
		h.broadcastPresence()
	default:
		h.log.Debug().Str("conn", c.ID).Str("type", ev.Type).Msg("ignoring inbound event")
	}
}

func (h *Hub) broadcastPresence() {
	metrics.OnlineUsers.Set(float64(h.presence.Len()))
	h.fanOut(Event{Type: EventOnlineUsers, Data: h.presence.Snapshot()})
}

// fanOut delivers ev to every client. Topic addressing is left to clients:
// each one ignores event names it did not subscribe to.
func (h *Hub) fanOut(ev Event) {
	kind := eventKind(ev.Type)
	b, err := json.Marshal(ev)
	if err != nil {
		h.log.Error().Err(err).Str("type", ev.Type).Msg("failed to encode event")
		return
	}
	for _, c := range h.clients {
		select {
		case c.send <- b:
			metrics.LiveEventsSent.WithLabelValues(kind).Inc()
		default:
			metrics.LiveEventsDropped.WithLabelValues(kind).Inc()
			h.log.Warn().Str("conn", c.ID).Str("type", ev.Type).Msg("client queue full, dropping event")
		}
	}
}

func (h *Hub) closeAllClients() {
	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
	}
	h.presence = presence.NewRegistry()
	metrics.LiveConnections.Set(0)
	metrics.OnlineUsers.Set(0)
}

func eventKind(eventType string) string {
	if eventType == EventOnlineUsers {
		return "presence"
	}
	return "message"
}

// Publish broadcasts payload under the event name topic to every connected
// client. It never blocks; the returned error is informational only.
func (h *Hub) Publish(topic string, payload any) error {
	if h.state.Load() != stateRunning {
		return ErrHubClosed
	}
	select {
	case h.broadcast <- Event{Type: topic, Data: payload}:
		return nil
	case <-h.done:
		return ErrHubClosed
	default:
		metrics.LiveEventsDropped.WithLabelValues(eventKind(topic)).Inc()
		return ErrQueueFull
	}
}

// call runs fn on the hub goroutine and waits for it.
func (h *Hub) call(ctx context.Context, fn func()) error {
	if h.state.Load() != stateRunning {
		return ErrHubClosed
	}
	finished := make(chan struct{})
	select {
	case h.calls <- func() { fn(); close(finished) }:
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnlineUsers returns the current presence snapshot, or nil when the hub is
// not running.
func (h *Hub) OnlineUsers(ctx context.Context) []string {
	var users []string
	_ = h.call(ctx, func() { users = h.presence.Snapshot() })
	return users
}

func (h *Hub) ClientCount(ctx context.Context) int {
	var n int
	_ = h.call(ctx, func() { n = len(h.clients) })
	return n
}

func (h *Hub) join(ctx context.Context, c *Client) error {
	if h.state.Load() != stateRunning {
		return ErrHubClosed
	}
	select {
	case h.register <- c:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// leave never blocks once the hub has stopped.
func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) deliver(ctx context.Context, c *Client, ev inboundEvent) error {
	select {
	case h.inbound <- clientEvent{client: c, event: ev}:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Serve runs one live connection until it closes. profileID is the
// authenticated identity of the connection, empty if unknown.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, profileID string) error {
	c := newClient(ctx, profileID, conn, h.sendBuffer)
	defer c.cancel()

	if err := h.join(ctx, c); err != nil {
		return err
	}
	defer h.leave(c)

	go c.writeLoop(h.log)
	go c.keepAliveLoop(h.pingInterval, h.log)

	conn.SetReadLimit(maxInboundSize)
	for {
		_, b, err := conn.Read(c.ctx)
		if err != nil {
			h.logReadError(c, err)
			return nil
		}
		var ev inboundEvent
		if err := json.Unmarshal(b, &ev); err != nil {
			h.log.Warn().Err(err).Str("conn", c.ID).Msg("malformed inbound frame")
			continue
		}
		if err := h.deliver(c.ctx, c, ev); err != nil {
			return nil
		}
	}
}

func (h *Hub) logReadError(c *Client, err error) {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return
	}
	if errors.Is(err, context.Canceled) || c.ctx.Err() != nil {
		return
	}
	h.log.Debug().Err(err).Str("conn", c.ID).Msg("live connection closed")
}

// Client is one live connection.
type Client struct {
	ID        string
	ProfileID string
	Conn      *websocket.Conn

	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc
}

func newClient(parent context.Context, profileID string, conn *websocket.Conn, buffer int) *Client {
	ctx, cancel := context.WithCancel(parent)
	return &Client{
		ID:        uuid.NewString(),
		ProfileID: profileID,
		Conn:      conn,
		send:      make(chan []byte, buffer),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (c *Client) writeLoop(log zerolog.Logger) {
	defer c.cancel()

	for {
		select {
		case <-c.ctx.Done():
			return
		case b, ok := <-c.send:
			if !ok {
				_ = c.Conn.Close(websocket.StatusGoingAway, "bye")
				return
			}
			writeCtx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := c.Conn.Write(writeCtx, websocket.MessageText, b)
			cancel()
			if err != nil {
				log.Debug().Err(err).Str("conn", c.ID).Msg("write failed")
				return
			}
		}
	}
}

func (c *Client) keepAliveLoop(interval time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(c.ctx, pingWait)
			err := c.Conn.Ping(pingCtx)
			cancel()
			if err != nil {
				log.Debug().Err(err).Str("conn", c.ID).Msg("ping failed")
				c.cancel()
				return
			}
		}
	}
}

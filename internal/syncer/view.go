package syncer

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/aryamantandon18/connectly/internal/logging"
	"github.com/aryamantandon18/connectly/internal/models"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

const DefaultPollInterval = time.Second

var ErrClosed = errors.New("view is closed")

type Status int

const (
	StatusLoading Status = iota
	StatusReady
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	}
	return "loading"
}

type ViewOption func(*View)

// WithPollInterval sets how often page 0 is re-fetched while the live
// channel is disconnected.
func WithPollInterval(d time.Duration) ViewOption {
	return func(v *View) {
		if d > 0 {
			v.interval = d
		}
	}
}

// WithOnChange registers fn to be called after every state change. It runs
// on the goroutine that caused the change and must not block.
func WithOnChange(fn func()) ViewOption {
	return func(v *View) { v.onChange = fn }
}

// View is the mounted history of one container. Pages are newest first;
// page 0 also receives live pushes.
type View struct {
	container models.Container
	fetch     Fetcher
	live      Live
	interval  time.Duration
	onChange  func()
	log       zerolog.Logger

	mu            sync.Mutex
	pages         [][]Message
	nextCursor    *string
	status        Status
	err           error
	fetchingOlder bool
	mounted       bool
	closed        bool
	cancel        context.CancelFunc
	ticker        *time.Ticker
	unsubscribe   []func()
}

// NewView creates an unmounted view. live may be nil, in which case the
// view always polls.
func NewView(c models.Container, fetch Fetcher, live Live, opts ...ViewOption) *View {
	v := &View{
		container: c,
		fetch:     fetch,
		live:      live,
		interval:  DefaultPollInterval,
		log:       logging.With("syncer").With().Str("container", c.ID).Logger(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Mount subscribes to the container's topics, starts the fallback poller and
// loads page 0 in the background. A view mounts once; after Close it stays
// closed.
func (v *View) Mount(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	if v.mounted {
		v.mu.Unlock()
		return nil
	}
	v.mounted = true
	ctx, v.cancel = context.WithCancel(ctx)
	v.ticker = time.NewTicker(v.interval)
	ticks := v.ticker.C
	if v.live != nil {
		v.unsubscribe = append(v.unsubscribe,
			v.live.Subscribe(v.container.TopicKey(), v.onPush),
			v.live.Subscribe(models.UpdateTopicKey(v.container.ID), v.onUpdate),
		)
	}
	v.mu.Unlock()

	go v.refresh(ctx)
	go v.poll(ctx, ticks)
	return nil
}

// Close unsubscribes and stops polling before it returns. Responses of
// fetches still in flight are discarded.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	if v.ticker != nil {
		v.ticker.Stop()
	}
	if v.cancel != nil {
		v.cancel()
	}
	unsubscribe := v.unsubscribe
	v.unsubscribe = nil
	v.mu.Unlock()

	for _, fn := range unsubscribe {
		fn()
	}
}

func (v *View) poll(ctx context.Context, ticks <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			if v.live != nil && v.live.Connected() {
				continue
			}
			v.refresh(ctx)
		}
	}
}

// refresh fetches page 0 and merges it. The first successful refresh makes
// the view Ready.
func (v *View) refresh(ctx context.Context) {
	page, err := v.fetch.ListPage(ctx, v.container, "")

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	if err != nil {
		v.err = err
		if v.status == StatusLoading {
			v.status = StatusError
		}
		v.mu.Unlock()
		v.log.Warn().Err(err).Msg("failed to fetch latest page")
		v.changed()
		return
	}

	v.err = nil
	if v.status != StatusReady {
		pushed := v.flattenLocked()
		v.pages = [][]Message{sortNewestFirst(append([]Message(nil), page.Items...))}
		v.nextCursor = page.NextCursor
		v.status = StatusReady
		for _, m := range pushed {
			v.upsertLocked(m)
		}
	} else {
		for _, m := range page.Items {
			v.upsertLocked(m)
		}
	}
	v.mu.Unlock()
	v.changed()
}

// LoadOlder fetches the page before the oldest loaded message. It is a no-op
// while loading, while another older page is in flight, or once history is
// exhausted. A failure keeps the loaded pages and is reported by Err.
func (v *View) LoadOlder(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	if v.status != StatusReady || v.fetchingOlder || v.nextCursor == nil {
		v.mu.Unlock()
		return nil
	}
	cursor := *v.nextCursor
	v.fetchingOlder = true
	v.mu.Unlock()
	v.changed()

	page, err := v.fetch.ListPage(ctx, v.container, cursor)

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	v.fetchingOlder = false
	if err != nil {
		v.err = err
		v.mu.Unlock()
		v.changed()
		return err
	}
	v.err = nil
	older := make([]Message, 0, len(page.Items))
	for _, m := range page.Items {
		if v.indexLocked(m.ID) < 0 {
			older = append(older, m)
		}
	}
	v.pages = append(v.pages, older)
	v.nextCursor = page.NextCursor
	v.mu.Unlock()
	v.changed()
	return nil
}

func (v *View) onPush(data json.RawMessage) {
	m, ok := v.decode(data)
	if !ok {
		return
	}
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	added := v.indexLocked(m.ID) < 0
	if added {
		v.upsertLocked(m)
	}
	v.mu.Unlock()
	if added {
		v.changed()
	}
}

func (v *View) onUpdate(data json.RawMessage) {
	m, ok := v.decode(data)
	if !ok {
		return
	}
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	replaced := v.replaceLocked(m)
	v.mu.Unlock()
	if replaced {
		v.changed()
	}
}

func (v *View) decode(data json.RawMessage) (Message, bool) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil || m.ID == "" {
		v.log.Warn().Err(err).Msg("ignoring malformed pushed message")
		return Message{}, false
	}
	return m, true
}

// indexLocked returns the flat position of id, or -1.
func (v *View) indexLocked(id string) int {
	n := 0
	for _, p := range v.pages {
		for _, m := range p {
			if m.ID == id {
				return n
			}
			n++
		}
	}
	return -1
}

func (v *View) replaceLocked(m Message) bool {
	for _, p := range v.pages {
		for i := range p {
			if p[i].ID == m.ID {
				p[i] = m
				return true
			}
		}
	}
	return false
}

// upsertLocked replaces m in place when already loaded, otherwise inserts
// it into page 0 keeping createdAt descending order.
func (v *View) upsertLocked(m Message) {
	if v.replaceLocked(m) {
		return
	}
	if len(v.pages) == 0 {
		v.pages = [][]Message{{m}}
		return
	}
	p := v.pages[0]
	i := sort.Search(len(p), func(i int) bool { return newerThan(m, p[i]) })
	p = append(p, Message{})
	copy(p[i+1:], p[i:])
	p[i] = m
	v.pages[0] = p
}

func (v *View) flattenLocked() []Message {
	var out []Message
	for _, p := range v.pages {
		out = append(out, p...)
	}
	return out
}

func (v *View) changed() {
	if v.onChange != nil {
		v.onChange()
	}
}

// Messages returns every loaded message, newest first.
func (v *View) Messages() []Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := v.flattenLocked()
	if out == nil {
		out = []Message{}
	}
	return out
}

func (v *View) Pages() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.pages)
}

func (v *View) Status() Status {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.status
}

func (v *View) HasMore() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.nextCursor != nil
}

func (v *View) IsFetchingOlder() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.fetchingOlder
}

// Err is the error of the most recent failed fetch, cleared by the next
// successful one.
func (v *View) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err
}

// newerThan orders by createdAt descending, ties broken by id descending,
// matching the server's page order.
func newerThan(a, b Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func sortNewestFirst(ms []Message) []Message {
	sort.SliceStable(ms, func(i, j int) bool { return newerThan(ms[i], ms[j]) })
	return ms
}

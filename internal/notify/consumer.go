package notify

import (
	"context"
	"encoding/json"
	"errors"
	"html"
	"io"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/nhle/costdesk/internal/api"
	"github.com/nhle/costdesk/internal/model"
	"github.com/nhle/costdesk/internal/toast"
)

// State is the connection state of the notification stream.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "disconnected"
	}
}

const (
	// MaxNotifications caps the in-memory list.
	MaxNotifications = 50

	// DefaultReconnectDelay is the fixed wait before reconnecting.
	DefaultReconnectDelay = 5 * time.Second

	// ackTimeout bounds a read acknowledgement request.
	ackTimeout = 10 * time.Second
)

// Backend is the subset of the API client the consumer uses.
type Backend interface {
	OpenNotificationStream(ctx context.Context, token string) (io.ReadCloser, error)
	ListNotifications(ctx context.Context, limit int) ([]model.Notification, error)
	MarkNotificationsRead(ctx context.Context, ids []string) error
	MarkAllNotificationsRead(ctx context.Context) error
}

// Toaster shows a toast for each received notification.
type Toaster interface {
	Show(opts toast.Options) string
}

// Cache persists the list between runs. It is optional.
type Cache interface {
	SaveNotifications(ctx context.Context, list []model.Notification) error
	RecentNotifications(ctx context.Context, limit int) ([]model.Notification, error)
	ClearNotifications(ctx context.Context) error
}

// UpdatedMsg is a tea.Msg carrying a snapshot after any change.
type UpdatedMsg struct {
	State         State
	Notifications []model.Notification
	Unread        int

	// SessionExpired is set once the stream rejected the token. The
	// consumer has stopped reconnecting.
	SessionExpired bool
}

// Consumer keeps a live, capped notification list fed by the server's
// event stream, reconnecting after a fixed delay until stopped.
type Consumer struct {
	backend        Backend
	toaster        Toaster
	cache          Cache
	logger         *zap.Logger
	policy         *bluemonday.Policy
	reconnectDelay time.Duration
	max            int
	now            func() time.Time

	mu      sync.Mutex
	state   State
	expired bool
	list    []model.Notification
	cancel  context.CancelFunc
	done    chan struct{}
	body    io.ReadCloser
	updates chan struct{}
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithReconnectDelay overrides DefaultReconnectDelay.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Consumer) { c.reconnectDelay = d }
}

// WithCache persists the list to cache after every change.
func WithCache(cache Cache) Option {
	return func(c *Consumer) { c.cache = cache }
}

// WithMax overrides MaxNotifications.
func WithMax(n int) Option {
	return func(c *Consumer) { c.max = n }
}

// New creates a stopped consumer.
func New(backend Backend, toaster Toaster, logger *zap.Logger, opts ...Option) *Consumer {
	c := &Consumer{
		backend:        backend,
		toaster:        toaster,
		logger:         logger.Named("notify"),
		policy:         bluemonday.StrictPolicy(),
		reconnectDelay: DefaultReconnectDelay,
		max:            MaxNotifications,
		now:            time.Now,
		updates:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start connects to the stream as token, replacing any running
// connection. It returns immediately.
func (c *Consumer) Start(token string) {
	c.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.expired = false
	c.mu.Unlock()

	go func() {
		defer close(done)
		c.run(ctx, token)
	}()
}

// Stop closes the stream and waits for the connection loop to exit.
// The consumer stays stopped until Start is called again.
func (c *Consumer) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	c.closeBody()
	<-done
	c.setState(StateDisconnected)
}

// Running reports whether the connection loop is active.
func (c *Consumer) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

// Reset stops the stream and forgets every notification, including the
// cached copy. Used on logout.
func (c *Consumer) Reset(ctx context.Context) {
	c.Stop()

	c.mu.Lock()
	c.list = nil
	c.expired = false
	c.mu.Unlock()

	if c.cache != nil {
		if err := c.cache.ClearNotifications(ctx); err != nil {
			c.logger.Warn("clearing notification cache failed", zap.Error(err))
		}
	}
	c.signal()
}

func (c *Consumer) run(ctx context.Context, token string) {
	for {
		c.setState(StateConnecting)

		body, err := c.backend.OpenNotificationStream(ctx, token)
		if err == nil {
			c.setBody(body)
			c.setState(StateConnected)
			c.logger.Info("notification stream connected")
			err = c.consume(ctx, body)
			c.closeBody()
		}

		if ctx.Err() != nil {
			return
		}
		if api.IsUnauthorized(err) {
			c.logger.Warn("notification stream rejected the session token", zap.Error(err))
			c.mu.Lock()
			c.expired = true
			c.mu.Unlock()
			c.setState(StateError)
			c.setState(StateDisconnected)
			return
		}
		if err == nil || errors.Is(err, io.EOF) {
			err = errors.New("stream closed by server")
		}

		c.logger.Warn("notification stream failed",
			zap.Error(err),
			zap.Duration("retry_in", c.reconnectDelay),
		)
		c.setState(StateError)
		c.setState(StateDisconnected)

		timer := time.NewTimer(c.reconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// consume reads events until the stream ends or fails.
func (c *Consumer) consume(ctx context.Context, body io.Reader) error {
	r := newEventReader(body)
	for {
		ev, err := r.Next()
		if errors.Is(err, errEventTooLarge) {
			c.logger.Warn("dropping oversized notification event", zap.Int("limit", maxEventSize))
			continue
		}
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.handleEvent(ev)
	}
}

func (c *Consumer) handleEvent(ev streamEvent) {
	var n model.Notification
	if err := json.Unmarshal([]byte(ev.Data), &n); err != nil {
		c.logger.Warn("dropping malformed notification event",
			zap.Error(err),
			zap.String("data", truncate(ev.Data, 200)),
		)
		return
	}
	if n.ID == "" {
		c.logger.Warn("dropping notification event without id",
			zap.String("data", truncate(ev.Data, 200)),
		)
		return
	}
	c.Receive(n)
}

// Receive merges n into the list: an existing entry with the same id is
// removed, n is placed first, and the list is truncated to the cap. A
// toast mirroring n is shown.
func (c *Consumer) Receive(n model.Notification) {
	n.Title = c.clean(n.Title)
	n.Message = c.clean(n.Message)
	if !n.Type.Valid() {
		n.Type = model.NotificationInfo
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = c.now()
	}

	c.mu.Lock()
	next := make([]model.Notification, 0, len(c.list)+1)
	next = append(next, n)
	for _, existing := range c.list {
		if existing.ID != n.ID {
			next = append(next, existing)
		}
	}
	if len(next) > c.max {
		next = next[:c.max]
	}
	c.list = next
	c.mu.Unlock()

	if c.toaster != nil {
		c.toaster.Show(toast.Options{
			Title:       n.Title,
			Description: n.Message,
			Type:        n.Type,
		})
	}
	c.changed()
}

// Load pulls the latest notifications from the backend and merges them
// behind anything already received over the stream.
func (c *Consumer) Load(ctx context.Context) error {
	fetched, err := c.backend.ListNotifications(ctx, c.max)
	if err != nil {
		return err
	}
	c.merge(fetched)
	return nil
}

// LoadCached seeds the list from the local cache.
func (c *Consumer) LoadCached(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}
	cached, err := c.cache.RecentNotifications(ctx, c.max)
	if err != nil {
		return err
	}
	c.merge(cached)
	return nil
}

func (c *Consumer) merge(incoming []model.Notification) {
	c.mu.Lock()
	seen := make(map[string]bool, len(c.list))
	for _, n := range c.list {
		seen[n.ID] = true
	}
	for _, n := range incoming {
		if n.ID == "" || seen[n.ID] {
			continue
		}
		n.Title = c.clean(n.Title)
		n.Message = c.clean(n.Message)
		seen[n.ID] = true
		c.list = append(c.list, n)
	}
	if len(c.list) > c.max {
		c.list = c.list[:c.max]
	}
	c.mu.Unlock()

	c.changed()
}

// MarkAsRead flags the given notifications as read locally, then tells
// the backend. A failed acknowledgement is logged and the local change
// is kept.
func (c *Consumer) MarkAsRead(ctx context.Context, ids []string) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	changed := c.markLocal(func(n model.Notification) bool { return want[n.ID] })
	if len(changed) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, ackTimeout)
	defer cancel()
	if err := c.backend.MarkNotificationsRead(ctx, changed); err != nil {
		c.logger.Warn("acknowledging notifications failed",
			zap.Strings("ids", changed),
			zap.Error(err),
		)
	}
}

// MarkAllAsRead flags every notification as read locally, then tells
// the backend. Calling it repeatedly leaves the same local state.
func (c *Consumer) MarkAllAsRead(ctx context.Context) {
	c.markLocal(func(model.Notification) bool { return true })

	ctx, cancel := context.WithTimeout(ctx, ackTimeout)
	defer cancel()
	if err := c.backend.MarkAllNotificationsRead(ctx); err != nil {
		c.logger.Warn("acknowledging all notifications failed", zap.Error(err))
	}
}

// markLocal sets IsRead/ReadAt on unread entries matching pick and
// returns their ids.
func (c *Consumer) markLocal(pick func(model.Notification) bool) []string {
	now := c.now()

	c.mu.Lock()
	var changed []string
	for i := range c.list {
		n := &c.list[i]
		if n.IsRead || !pick(*n) {
			continue
		}
		readAt := now
		n.IsRead = true
		n.ReadAt = &readAt
		changed = append(changed, n.ID)
	}
	c.mu.Unlock()

	if len(changed) > 0 {
		c.changed()
	}
	return changed
}

// List returns a copy of the notifications, newest first.
func (c *Consumer) List() []model.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Notification, len(c.list))
	copy(out, c.list)
	return out
}

// UnreadCount returns how many notifications are unread.
func (c *Consumer) UnreadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return countUnread(c.list)
}

// State returns the connection state.
func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// WaitForUpdate returns a tea.Cmd that blocks until the list or the
// connection state changes. Call it again after each UpdatedMsg.
func (c *Consumer) WaitForUpdate() tea.Cmd {
	return func() tea.Msg {
		<-c.updates
		c.mu.Lock()
		defer c.mu.Unlock()
		list := make([]model.Notification, len(c.list))
		copy(list, c.list)
		return UpdatedMsg{
			State:          c.state,
			Notifications:  list,
			Unread:         countUnread(list),
			SessionExpired: c.expired,
		}
	}
}

func (c *Consumer) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()
	c.logger.Debug("stream state", zap.Stringer("state", s))
	c.signal()
}

// setBody records the open stream, closing any handle left over from a
// previous connection.
func (c *Consumer) setBody(body io.ReadCloser) {
	c.mu.Lock()
	prev := c.body
	c.body = body
	c.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
}

func (c *Consumer) closeBody() {
	c.mu.Lock()
	body := c.body
	c.body = nil
	c.mu.Unlock()
	if body != nil {
		body.Close()
	}
}

// changed persists the list and wakes the UI.
func (c *Consumer) changed() {
	if c.cache != nil {
		if err := c.cache.SaveNotifications(context.Background(), c.List()); err != nil {
			c.logger.Warn("caching notifications failed", zap.Error(err))
		}
	}
	c.signal()
}

func (c *Consumer) signal() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}

// clean strips markup from server-provided text for terminal display.
func (c *Consumer) clean(s string) string {
	return strings.TrimSpace(html.UnescapeString(c.policy.Sanitize(s)))
}

func countUnread(list []model.Notification) int {
	n := 0
	for _, item := range list {
		if !item.IsRead {
			n++
		}
	}
	return n
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package toast

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/nhle/costdesk/internal/model"
)

const (
	// DefaultMax is the default queue capacity.
	DefaultMax = 5

	// DefaultDuration is how long a toast stays up unless told otherwise.
	DefaultDuration = 5 * time.Second
)

// Toast is a transient message shown over the current view.
type Toast struct {
	ID          string
	Title       string
	Description string
	Type        model.NotificationType
	CreatedAt   time.Time
	Duration    time.Duration
}

// Options describes a toast to show. A nil Duration uses the queue
// default; a zero Duration keeps the toast until it is dismissed.
type Options struct {
	Title       string
	Description string
	Type        model.NotificationType
	Duration    *time.Duration
}

// Sticky returns a pointer to a zero duration, for toasts that never
// auto-dismiss.
func Sticky() *time.Duration {
	d := time.Duration(0)
	return &d
}

// ChangedMsg is delivered to the UI whenever the queue changes.
type ChangedMsg struct {
	Toasts []Toast
}

type entry struct {
	toast Toast
	timer *time.Timer
}

// Queue is a bounded, insertion-ordered list of toasts. It is safe for
// concurrent use.
type Queue struct {
	max      int
	duration time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries []*entry
	changes chan struct{}
}

// New creates a queue holding at most max toasts.
func New(max int, defaultDuration time.Duration) *Queue {
	if max <= 0 {
		max = DefaultMax
	}
	if defaultDuration < 0 {
		defaultDuration = DefaultDuration
	}
	return &Queue{
		max:      max,
		duration: defaultDuration,
		now:      time.Now,
		changes:  make(chan struct{}, 1),
	}
}

// Show enqueues a toast and returns its id. When the queue is full the
// oldest toast is evicted first and its timer cancelled.
func (q *Queue) Show(opts Options) string {
	d := q.duration
	if opts.Duration != nil {
		d = *opts.Duration
	}
	typ := opts.Type
	if !typ.Valid() {
		typ = model.NotificationInfo
	}

	t := Toast{
		ID:          uuid.NewString(),
		Title:       opts.Title,
		Description: opts.Description,
		Type:        typ,
		CreatedAt:   q.now(),
		Duration:    d,
	}

	q.mu.Lock()
	for len(q.entries) >= q.max {
		oldest := q.entries[0]
		if oldest.timer != nil {
			oldest.timer.Stop()
		}
		q.entries[0] = nil
		q.entries = q.entries[1:]
	}

	e := &entry{toast: t}
	if d > 0 {
		id := t.ID
		e.timer = time.AfterFunc(d, func() { q.Dismiss(id) })
	}
	q.entries = append(q.entries, e)
	q.mu.Unlock()

	q.signal()
	return t.ID
}

// Success shows a success toast with the default duration.
func (q *Queue) Success(title, description string) string {
	return q.Show(Options{Title: title, Description: description, Type: model.NotificationSuccess})
}

// Error shows an error toast with the default duration.
func (q *Queue) Error(title, description string) string {
	return q.Show(Options{Title: title, Description: description, Type: model.NotificationError})
}

// Info shows an info toast with the default duration.
func (q *Queue) Info(title, description string) string {
	return q.Show(Options{Title: title, Description: description, Type: model.NotificationInfo})
}

// Dismiss removes the toast with id and cancels its timer. Unknown ids
// are ignored.
func (q *Queue) Dismiss(id string) {
	q.mu.Lock()
	removed := false
	for i, e := range q.entries {
		if e.toast.ID != id {
			continue
		}
		if e.timer != nil {
			e.timer.Stop()
		}
		q.entries = append(q.entries[:i], q.entries[i+1:]...)
		removed = true
		break
	}
	q.mu.Unlock()

	if removed {
		q.signal()
	}
}

// DismissAll clears the queue.
func (q *Queue) DismissAll() {
	q.mu.Lock()
	n := len(q.entries)
	for _, e := range q.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	q.entries = nil
	q.mu.Unlock()

	if n > 0 {
		q.signal()
	}
}

// List returns the toasts oldest first, which is also display order
// (most recent last).
func (q *Queue) List() []Toast {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Toast, len(q.entries))
	for i, e := range q.entries {
		out[i] = e.toast
	}
	return out
}

// Len returns the number of queued toasts.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Max returns the queue capacity.
func (q *Queue) Max() int {
	return q.max
}

// signal coalesces change notifications; a pending one is enough.
func (q *Queue) signal() {
	select {
	case q.changes <- struct{}{}:
	default:
	}
}

// WaitForChange returns a tea.Cmd that blocks until the queue changes
// and reports the new contents. Call it again after each ChangedMsg.
func (q *Queue) WaitForChange() tea.Cmd {
	return func() tea.Msg {
		<-q.changes
		return ChangedMsg{Toasts: q.List()}
	}
}

package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/costdesk/internal/keys"
	"github.com/nhle/costdesk/internal/model"
	"github.com/nhle/costdesk/internal/notify"
	"github.com/nhle/costdesk/internal/theme"
	"github.com/nhle/costdesk/internal/ui"
	"github.com/nhle/costdesk/internal/view"
)

// Feed is the notification consumer as seen by this view.
type Feed interface {
	Load(ctx context.Context) error
	MarkAsRead(ctx context.Context, ids []string)
	MarkAllAsRead(ctx context.Context)
}

type loadedMsg struct {
	err error
}

// ackedMsg follows a mark-read call. The list itself is refreshed by the
// consumer's UpdatedMsg.
type ackedMsg struct{}

// Model is the notification center.
type Model struct {
	feed        Feed
	keys        *keys.KeyMap
	role        model.Role
	items       []model.Notification
	state       notify.State
	unread      int
	unreadOnly  bool
	selectedIdx int
	expanded    bool
	now         func() time.Time
	width       int
	height      int
}

// New creates a new notifications model.
func New(feed Feed, k *keys.KeyMap, width, height int) Model {
	return Model{
		feed:   feed,
		keys:   k,
		role:   model.RoleViewer,
		now:    time.Now,
		width:  width,
		height: height,
	}
}

// Init pulls the server list.
func (m Model) Init() tea.Cmd {
	return m.load()
}

// Reload pulls the server list again.
func (m *Model) Reload() tea.Cmd {
	return m.load()
}

// SetRole records the role used for error messages.
func (m *Model) SetRole(role model.Role) {
	m.role = role
}

// Capturing is always false; the view has no text inputs.
func (m Model) Capturing() bool {
	return false
}

// Unread returns the unread count from the last update.
func (m Model) Unread() int {
	return m.unread
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil

	case notify.UpdatedMsg:
		m.items = msg.Notifications
		m.state = msg.State
		m.unread = msg.Unread
		m.clampSelection()
		return m, nil

	case loadedMsg:
		if msg.err != nil {
			return m, ui.Failure("Could not load notifications", msg.err, m.role)
		}
		return m, nil

	case ackedMsg:
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	visible := m.Visible()

	switch {
	case key.Matches(msg, m.keys.Down):
		if len(visible) > 0 {
			m.selectedIdx = (m.selectedIdx + 1) % len(visible)
			m.expanded = false
		}
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if len(visible) > 0 {
			m.selectedIdx--
			if m.selectedIdx < 0 {
				m.selectedIdx = len(visible) - 1
			}
			m.expanded = false
		}
		return m, nil

	case key.Matches(msg, m.keys.Select):
		n, ok := m.Selected()
		if !ok {
			return m, nil
		}
		m.expanded = !m.expanded
		if !n.IsRead {
			return m, m.markRead(n.ID)
		}
		return m, nil

	case key.Matches(msg, m.keys.MarkRead):
		n, ok := m.Selected()
		if !ok || n.IsRead {
			return m, nil
		}
		return m, m.markRead(n.ID)

	case key.Matches(msg, m.keys.MarkAllRead):
		if m.unread == 0 {
			return m, nil
		}
		return m, m.markAllRead()

	case key.Matches(msg, m.keys.Filter):
		m.unreadOnly = !m.unreadOnly
		m.selectedIdx = 0
		m.expanded = false
		return m, nil

	case key.Matches(msg, m.keys.Back):
		m.expanded = false
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		return m, m.load()
	}
	return m, nil
}

// Visible returns the notifications shown under the current filter.
func (m Model) Visible() []model.Notification {
	if !m.unreadOnly {
		return m.items
	}
	var out []model.Notification
	for _, n := range m.items {
		if !n.IsRead {
			out = append(out, n)
		}
	}
	return out
}

// Selected returns the highlighted notification.
func (m Model) Selected() (model.Notification, bool) {
	visible := m.Visible()
	if m.selectedIdx < 0 || m.selectedIdx >= len(visible) {
		return model.Notification{}, false
	}
	return visible[m.selectedIdx], true
}

func (m *Model) clampSelection() {
	n := len(m.Visible())
	if m.selectedIdx >= n {
		m.selectedIdx = n - 1
	}
	if m.selectedIdx < 0 {
		m.selectedIdx = 0
	}
}

// View renders the notification center.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(theme.TitleStyle.Render("Notifications"))
	b.WriteString("  " + theme.HelpStyle.Render(fmt.Sprintf("%d unread · stream %s", m.unread, m.state)))
	if m.unreadOnly {
		b.WriteString("  " + theme.HelpStyle.Render("(unread only)"))
	}
	b.WriteString("\n\n")

	visible := m.Visible()
	if len(visible) == 0 {
		if m.unreadOnly {
			b.WriteString(theme.EmptyStyle.Render("You're all caught up."))
		} else {
			b.WriteString(theme.EmptyStyle.Render("No notifications yet."))
		}
	}

	now := m.now()
	for i, n := range visible {
		marker := "  "
		if !n.IsRead {
			marker = theme.TypeStyle(n.Type).Render("● ")
		}
		title := n.Title
		if title == "" {
			title = string(n.Type)
		}
		line := fmt.Sprintf("%s%-40s %s", marker, view.Truncate(title, 40), theme.HelpStyle.Render(view.Ago(n.CreatedAt, now)))
		if i == m.selectedIdx {
			b.WriteString(theme.SelectedItemStyle.Render(line))
			if m.expanded && n.Message != "" {
				b.WriteString("\n")
				b.WriteString(theme.PanelStyle.Width(m.width - 8).Render(n.Message))
			}
		} else {
			b.WriteString(theme.ListItemStyle.Render(line))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(theme.HelpStyle.Render("enter open | m mark read | M mark all read | f unread only | r refresh"))
	return lipgloss.NewStyle().Padding(1, 2).Render(b.String())
}

// SetSize updates dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m Model) load() tea.Cmd {
	feed := m.feed
	return func() tea.Msg {
		return loadedMsg{err: feed.Load(context.Background())}
	}
}

func (m Model) markRead(id string) tea.Cmd {
	feed := m.feed
	return func() tea.Msg {
		feed.MarkAsRead(context.Background(), []string{id})
		return ackedMsg{}
	}
}

func (m Model) markAllRead() tea.Cmd {
	feed := m.feed
	return func() tea.Msg {
		feed.MarkAllAsRead(context.Background())
		return ackedMsg{}
	}
}

package app

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/nhle/costdesk/internal/api"

	"github.com/nhle/costdesk/internal/browser"
	"github.com/nhle/costdesk/internal/keys"
	"github.com/nhle/costdesk/internal/mailbox"
	"github.com/nhle/costdesk/internal/model"
	"github.com/nhle/costdesk/internal/notify"
	"github.com/nhle/costdesk/internal/toast"
	"github.com/nhle/costdesk/internal/ui"
	"github.com/nhle/costdesk/internal/ui/advances"
	"github.com/nhle/costdesk/internal/ui/auth"
	"github.com/nhle/costdesk/internal/ui/command"
	"github.com/nhle/costdesk/internal/ui/costs"
	"github.com/nhle/costdesk/internal/ui/files"
	helpview "github.com/nhle/costdesk/internal/ui/help"
	"github.com/nhle/costdesk/internal/ui/notifications"
	"github.com/nhle/costdesk/internal/ui/reports"
	"github.com/nhle/costdesk/internal/ui/settings"
)

// Session is the session store as used by the root model.
type Session interface {
	auth.Backend
	Restore(ctx context.Context) (bool, error)
	Current() (model.Session, bool)
	Logout()
}

// Backend is the API client as used by the feature screens.
type Backend interface {
	files.Backend
	advances.Backend
	costs.Backend
	reports.Backend
	settings.Backend
}

// Notifier is the notification stream consumer.
type Notifier interface {
	notifications.Feed
	Start(token string)
	Stop()
	Reset(ctx context.Context)
	LoadCached(ctx context.Context) error
	WaitForUpdate() tea.Cmd
}

// Options carries the optional collaborators of the root model.
type Options struct {
	// ProxyAddr is where the local file proxy listens.
	ProxyAddr string

	// ExportDir receives CSV report exports.
	ExportDir string

	// Mailbox, when set, fills emailed codes automatically.
	Mailbox mailbox.Lookup

	Open   browser.Opener
	Copy   files.Clipboard
	Logger *zap.Logger
}

// Screen is a top-level tab.
type Screen int

const (
	ScreenFiles Screen = iota
	ScreenAdvances
	ScreenCosts
	ScreenReports
	ScreenNotifications
	ScreenSettings
)

var tabNames = []string{"Files", "Advances", "Costs", "Reports", "Notifications", "Settings"}

type overlay int

const (
	overlayNone overlay = iota
	overlayHelp
	overlayCommand
)

type sessionRestoredMsg struct {
	ok  bool
	err error
}

type notificationsSeededMsg struct {
	err error
}

// Model is the root Bubble Tea model. It owns authentication state, tab
// routing, the toast stack and the notification badge.
type Model struct {
	session  Session
	backend  Backend
	notifier Notifier
	toasts   *toast.Queue
	logger   *zap.Logger
	keys     *keys.KeyMap

	layout   ui.Layout
	ready    bool
	restored bool
	current  *model.Session
	screen   Screen
	overlay  overlay

	authView      auth.Model
	filesView     files.Model
	advancesView  advances.Model
	costsView     costs.Model
	reportsView   reports.Model
	notifView     notifications.Model
	settingsView  settings.Model
	helpView      helpview.Model
	commandView   command.Model
	visibleToasts []toast.Toast
	unread        int
	streamState   notify.State
}

// New creates the root model.
func New(s Session, b Backend, n Notifier, q *toast.Queue, opts Options) Model {
	k := keys.DefaultKeyMap()
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	open := opts.Open
	if open == nil {
		open = browser.Open
	}
	copyFn := opts.Copy
	if copyFn == nil {
		copyFn = func(string) error { return fmt.Errorf("clipboard unavailable") }
	}

	return Model{
		session:      s,
		backend:      b,
		notifier:     n,
		toasts:       q,
		logger:       logger.Named("app"),
		keys:         k,
		authView:     auth.New(s, opts.Mailbox, 80, 24),
		filesView:    files.New(b, k, opts.ProxyAddr, open, copyFn, 80, 24),
		advancesView: advances.New(b, k, 80, 24),
		costsView:    costs.New(b, k, 80, 24),
		reportsView:  reports.New(b, k, opts.ExportDir, 80, 24),
		notifView:    notifications.New(n, k, 80, 24),
		settingsView: settings.New(b, k, 80, 24),
		helpView:     helpview.New(k, 80, 24),
		commandView:  command.New(80, 24),
	}
}

// Init restores a persisted session and starts the toast and
// notification listeners.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.restore(),
		m.toasts.WaitForChange(),
		m.notifier.WaitForUpdate(),
	)
}

// Authenticated reports whether the main screens are showing.
func (m Model) Authenticated() bool {
	return m.current != nil
}

// Screen returns the active tab.
func (m Model) Screen() Screen {
	return m.screen
}

// Unread returns the unread notification count shown in the header.
func (m Model) Unread() int {
	return m.unread
}

// Update handles messages and dispatches them to the screens.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		m.resize()
		return m.broadcast(m.contentSize())

	case sessionRestoredMsg:
		m.restored = true
		if msg.err != nil {
			m.logger.Warn("restoring session failed", zap.Error(msg.err))
		}
		if msg.ok {
			if sess, ok := m.session.Current(); ok {
				return m.enter(sess)
			}
		}
		return m, m.authView.Init()

	case auth.LoggedInMsg:
		return m.enter(msg.Session)

	case ui.SessionExpiredMsg:
		if m.current == nil {
			return m, nil
		}
		cmd := m.logout(api.SessionExpiredMessage)
		return m, cmd

	case notificationsSeededMsg:
		if msg.err != nil {
			m.logger.Debug("no cached notifications", zap.Error(msg.err))
		}
		reload := m.notifView.Reload()
		return m, reload

	case ui.ToastMsg:
		m.toasts.Show(msg.Options)
		return m, nil

	case toast.ChangedMsg:
		m.visibleToasts = msg.Toasts
		return m, m.toasts.WaitForChange()

	case notify.UpdatedMsg:
		if msg.SessionExpired && m.current != nil {
			logout := m.logout(api.SessionExpiredMessage)
			return m, tea.Batch(logout, m.notifier.WaitForUpdate())
		}
		m.unread = msg.Unread
		m.streamState = msg.State
		var cmd tea.Cmd
		m.notifView, cmd = m.notifView.Update(msg)
		return m, tea.Batch(cmd, m.notifier.WaitForUpdate())

	case command.CommandMsg:
		m.overlay = overlayNone
		cmd := m.executeCommand(string(msg))
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m.broadcast(msg)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.notifier.Stop()
		return m, tea.Quit
	}

	if m.current == nil {
		var cmd tea.Cmd
		m.authView, cmd = m.authView.Update(msg)
		return m, cmd
	}

	switch m.overlay {
	case overlayHelp:
		if key.Matches(msg, m.keys.Help, m.keys.Back, m.keys.Quit) {
			m.overlay = overlayNone
		}
		return m, nil
	case overlayCommand:
		if key.Matches(msg, m.keys.Back) {
			m.overlay = overlayNone
			return m, nil
		}
		var cmd tea.Cmd
		m.commandView, cmd = m.commandView.Update(msg)
		return m, cmd
	}

	if !m.capturing() {
		if cmd, ok := m.globalKey(msg); ok {
			return m, cmd
		}
	}
	return m.updateActive(msg)
}

// globalKey handles keys that work on every screen unless an input has
// focus.
func (m *Model) globalKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	k := m.keys
	switch {
	case key.Matches(msg, k.Quit):
		m.notifier.Stop()
		return tea.Quit, true
	case key.Matches(msg, k.Help):
		m.overlay = overlayHelp
		return nil, true
	case key.Matches(msg, k.Command):
		m.overlay = overlayCommand
		return m.commandView.Focus(), true
	case key.Matches(msg, k.Logout):
		return m.logout(""), true
	case key.Matches(msg, k.DismissToasts):
		m.toasts.DismissAll()
		return nil, true
	case key.Matches(msg, k.ViewFiles):
		m.screen = ScreenFiles
		return nil, true
	case key.Matches(msg, k.ViewAdvances):
		m.screen = ScreenAdvances
		return nil, true
	case key.Matches(msg, k.ViewCosts):
		m.screen = ScreenCosts
		return nil, true
	case key.Matches(msg, k.ViewReports):
		m.screen = ScreenReports
		return nil, true
	case key.Matches(msg, k.ViewNotifications):
		m.screen = ScreenNotifications
		return nil, true
	case key.Matches(msg, k.ViewSettings):
		m.screen = ScreenSettings
		return nil, true
	}
	return nil, false
}

// enter shows the main screens for sess and starts background work.
func (m Model) enter(sess model.Session) (tea.Model, tea.Cmd) {
	m.current = &sess
	m.screen = ScreenFiles
	m.overlay = overlayNone

	role := sess.Role
	m.filesView.SetRole(role)
	m.advancesView.SetRole(role)
	m.costsView.SetRole(role)
	m.reportsView.SetRole(role)
	m.notifView.SetRole(role)
	m.settingsView.SetRole(role)
	m.settingsView.SetUser(sess.UserID)
	m.helpView.SetAdmin(role.IsAdmin())

	m.notifier.Start(sess.Token)
	m.logger.Info("signed in", zap.String("user", sess.Email), zap.String("role", string(role)))

	n := m.notifier
	seed := func() tea.Msg {
		return notificationsSeededMsg{err: n.LoadCached(context.Background())}
	}

	cmds := []tea.Cmd{
		seed,
		m.filesView.Reload(),
		m.advancesView.Reload(),
		m.costsView.Reload(),
		m.reportsView.Reload(),
		m.settingsView.Reload(),
	}
	return m, tea.Batch(cmds...)
}

// logout ends the session and returns to the login screen with notice.
func (m *Model) logout(notice string) tea.Cmd {
	m.notifier.Stop()
	m.notifier.Reset(context.Background())
	m.session.Logout()
	m.current = nil
	m.overlay = overlayNone
	m.unread = 0
	m.logger.Info("signed out")
	return m.authView.Reset(notice)
}

func (m Model) restore() tea.Cmd {
	s := m.session
	return func() tea.Msg {
		ok, err := s.Restore(context.Background())
		return sessionRestoredMsg{ok: ok, err: err}
	}
}

// capturing reports whether the active screen wants raw keystrokes.
func (m Model) capturing() bool {
	switch m.screen {
	case ScreenFiles:
		return m.filesView.Capturing()
	case ScreenAdvances:
		return m.advancesView.Capturing()
	case ScreenCosts:
		return m.costsView.Capturing()
	case ScreenReports:
		return m.reportsView.Capturing()
	case ScreenNotifications:
		return m.notifView.Capturing()
	case ScreenSettings:
		return m.settingsView.Capturing()
	}
	return false
}

// updateActive sends msg to the active screen only.
func (m Model) updateActive(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.screen {
	case ScreenFiles:
		m.filesView, cmd = m.filesView.Update(msg)
	case ScreenAdvances:
		m.advancesView, cmd = m.advancesView.Update(msg)
	case ScreenCosts:
		m.costsView, cmd = m.costsView.Update(msg)
	case ScreenReports:
		m.reportsView, cmd = m.reportsView.Update(msg)
	case ScreenNotifications:
		m.notifView, cmd = m.notifView.Update(msg)
	case ScreenSettings:
		m.settingsView, cmd = m.settingsView.Update(msg)
	}
	return m, cmd
}

// broadcast sends msg to every screen. Results of background commands
// reach their screen even when it is not the active tab.
func (m Model) broadcast(msg tea.Msg) (tea.Model, tea.Cmd) {
	cmds := make([]tea.Cmd, 0, 8)
	var cmd tea.Cmd

	m.authView, cmd = m.authView.Update(msg)
	cmds = append(cmds, cmd)
	if m.current != nil {
		m.filesView, cmd = m.filesView.Update(msg)
		cmds = append(cmds, cmd)
		m.advancesView, cmd = m.advancesView.Update(msg)
		cmds = append(cmds, cmd)
		m.costsView, cmd = m.costsView.Update(msg)
		cmds = append(cmds, cmd)
		m.reportsView, cmd = m.reportsView.Update(msg)
		cmds = append(cmds, cmd)
		m.notifView, cmd = m.notifView.Update(msg)
		cmds = append(cmds, cmd)
		m.settingsView, cmd = m.settingsView.Update(msg)
		cmds = append(cmds, cmd)
	}
	if m.overlay == overlayCommand {
		m.commandView, cmd = m.commandView.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m Model) contentSize() tea.WindowSizeMsg {
	return tea.WindowSizeMsg{Width: m.layout.ContentWidth(), Height: m.layout.ContentHeight()}
}

func (m *Model) resize() {
	w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
	m.filesView.SetSize(w, h)
	m.advancesView.SetSize(w, h)
	m.costsView.SetSize(w, h)
	m.reportsView.SetSize(w, h)
	m.notifView.SetSize(w, h)
	m.settingsView.SetSize(w, h)
	m.helpView.SetSize(w, h)
	m.commandView.SetSize(w, h)
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready || !m.restored {
		return "Loading..."
	}
	if m.current == nil {
		return m.authView.View()
	}

	title := "costdesk"
	if m.unread > 0 {
		title = fmt.Sprintf("costdesk [%d unread]", m.unread)
	}
	status := fmt.Sprintf("%s · %s · stream %s", m.current.Email, m.current.Role, m.streamState)

	header := m.layout.RenderHeader(title, status)
	tabs := m.layout.RenderTabs(m.tabLabels(), int(m.screen))
	toasts := m.layout.RenderToasts(m.visibleToasts)
	statusBar := m.layout.RenderStatusBar(m.keyHints())
	return m.layout.RenderWithFrame(header, tabs, m.renderContent(), toasts, statusBar)
}

func (m Model) tabLabels() []string {
	labels := make([]string, len(tabNames))
	for i, name := range tabNames {
		labels[i] = fmt.Sprintf("%d %s", i+1, name)
	}
	if m.unread > 0 {
		labels[ScreenNotifications] = fmt.Sprintf("%d %s (%d)", ScreenNotifications+1, tabNames[ScreenNotifications], m.unread)
	}
	return labels
}

func (m Model) renderContent() string {
	switch m.overlay {
	case overlayHelp:
		return m.helpView.View()
	case overlayCommand:
		return m.commandView.View()
	}

	switch m.screen {
	case ScreenFiles:
		return m.filesView.View()
	case ScreenAdvances:
		return m.advancesView.View()
	case ScreenCosts:
		return m.costsView.View()
	case ScreenReports:
		return m.reportsView.View()
	case ScreenNotifications:
		return m.notifView.View()
	case ScreenSettings:
		return m.settingsView.View()
	default:
		return ""
	}
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch m.overlay {
	case overlayHelp:
		return "? or esc close help"
	case overlayCommand:
		return "enter run | tab complete | esc cancel"
	}
	if m.capturing() {
		return "esc cancel | ctrl+c quit"
	}
	return "1-6 switch | ? help | : command | ctrl+x dismiss toasts | ctrl+l log out | q quit"
}

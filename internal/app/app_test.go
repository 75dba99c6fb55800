package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nhle/costdesk/internal/model"
	"github.com/nhle/costdesk/internal/notify"
	"github.com/nhle/costdesk/internal/toast"
	"github.com/nhle/costdesk/internal/ui"
	"github.com/nhle/costdesk/internal/ui/auth"
	"github.com/nhle/costdesk/internal/ui/command"
)

type fakeSession struct {
	mu        sync.Mutex
	current   *model.Session
	restoreOK bool
	loggedOut int
}

func (f *fakeSession) Login(ctx context.Context, email, password string) (*model.Session, error) {
	return nil, errors.New("not used")
}

func (f *fakeSession) SendRegisterOTP(ctx context.Context, email string) (*model.OTPChallenge, error) {
	return nil, errors.New("not used")
}

func (f *fakeSession) Register(ctx context.Context, email, password, otpCode string) (*model.Session, error) {
	return nil, errors.New("not used")
}

func (f *fakeSession) SendForgotPasswordOTP(ctx context.Context, email string) (*model.OTPChallenge, error) {
	return nil, errors.New("not used")
}

func (f *fakeSession) ResetPassword(ctx context.Context, email, otpCode, newPassword string) error {
	return errors.New("not used")
}

func (f *fakeSession) Restore(ctx context.Context) (bool, error) {
	return f.restoreOK, nil
}

func (f *fakeSession) Current() (model.Session, bool) {
	if f.current == nil {
		return model.Session{}, false
	}
	return *f.current, true
}

func (f *fakeSession) Logout() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = nil
	f.loggedOut++
}

type fakeBackend struct{}

func (fakeBackend) ListFiles(ctx context.Context) ([]model.DesignFile, error) { return nil, nil }
func (fakeBackend) UploadPath(ctx context.Context, path, description string) (*model.DesignFile, error) {
	return nil, nil
}
func (fakeBackend) DeleteFile(ctx context.Context, id string) error { return nil }
func (fakeBackend) ListAdvances(ctx context.Context) ([]model.AdvancePayment, error) {
	return nil, nil
}
func (fakeBackend) CreateAdvance(ctx context.Context, in model.AdvanceInput) (*model.AdvancePayment, error) {
	return nil, nil
}
func (fakeBackend) UpdateAdvance(ctx context.Context, id string, in model.AdvanceInput) (*model.AdvancePayment, error) {
	return nil, nil
}
func (fakeBackend) DeleteAdvance(ctx context.Context, id string) error { return nil }
func (fakeBackend) ListCosts(ctx context.Context, filter model.CostFilter) ([]model.Cost, error) {
	return nil, nil
}
func (fakeBackend) CreateCost(ctx context.Context, in model.CostInput) (*model.Cost, error) {
	return nil, nil
}
func (fakeBackend) UpdateCost(ctx context.Context, id string, in model.CostInput) (*model.Cost, error) {
	return nil, nil
}
func (fakeBackend) DeleteCost(ctx context.Context, id string) error { return nil }
func (fakeBackend) ListCategories(ctx context.Context) ([]model.Category, error) {
	return nil, nil
}
func (fakeBackend) CreateCategory(ctx context.Context, name string) (*model.Category, error) {
	return nil, nil
}
func (fakeBackend) DeleteCategory(ctx context.Context, id string) error { return nil }
func (fakeBackend) GetReportSummary(ctx context.Context, rng model.ReportRange) (*model.ReportSummary, error) {
	return &model.ReportSummary{}, nil
}
func (fakeBackend) ExportReportCSV(ctx context.Context, rng model.ReportRange) ([]byte, error) {
	return nil, nil
}
func (fakeBackend) GetProfile(ctx context.Context) (*model.Profile, error) {
	return &model.Profile{}, nil
}
func (fakeBackend) UpdateProfile(ctx context.Context, p model.Profile) (*model.Profile, error) {
	return &p, nil
}
func (fakeBackend) ChangePassword(ctx context.Context, change model.PasswordChange) error {
	return nil
}
func (fakeBackend) GetNotificationSettings(ctx context.Context) (*model.NotificationSettings, error) {
	return &model.NotificationSettings{}, nil
}
func (fakeBackend) UpdateNotificationSettings(ctx context.Context, s model.NotificationSettings) (*model.NotificationSettings, error) {
	return &s, nil
}
func (fakeBackend) ListUsers(ctx context.Context) ([]model.User, error) { return nil, nil }
func (fakeBackend) UpdateUserRole(ctx context.Context, id string, role model.Role) (*model.User, error) {
	return nil, nil
}
func (fakeBackend) DeleteUser(ctx context.Context, id string) error { return nil }

type fakeNotifier struct {
	mu      sync.Mutex
	started []string
	stopped int
	resets  int
	markAll int
}

func (f *fakeNotifier) Load(ctx context.Context) error               { return nil }
func (f *fakeNotifier) MarkAsRead(ctx context.Context, ids []string) {}
func (f *fakeNotifier) LoadCached(ctx context.Context) error         { return nil }
func (f *fakeNotifier) WaitForUpdate() tea.Cmd                       { return nil }
func (f *fakeNotifier) Start(token string)                           { f.started = append(f.started, token) }
func (f *fakeNotifier) Stop()                                        { f.stopped++ }
func (f *fakeNotifier) Reset(ctx context.Context)                    { f.resets++ }
func (f *fakeNotifier) MarkAllAsRead(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markAll++
}

var adminSession = model.Session{
	UserID: "u-1",
	Email:  "lan@example.com",
	Role:   model.RoleSuperAdmin,
	Token:  "tok-1",
}

func newTestModel(t *testing.T, s *fakeSession) (Model, *fakeNotifier, *toast.Queue, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	n := &fakeNotifier{}
	q := toast.New(5, 0)
	m := New(s, fakeBackend{}, n, q, Options{
		ProxyAddr: "127.0.0.1:8787",
		ExportDir: t.TempDir(),
		Logger:    zap.New(core),
	})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return updated.(Model), n, q, logs
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(msg)
	out, ok := updated.(Model)
	require.True(t, ok)
	return out, cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func signedIn(t *testing.T) (Model, *fakeSession, *fakeNotifier, *toast.Queue, *observer.ObservedLogs) {
	t.Helper()
	sess := adminSession
	s := &fakeSession{current: &sess, restoreOK: true}
	m, n, q, logs := newTestModel(t, s)
	m, _ = update(t, m, sessionRestoredMsg{ok: true})
	require.True(t, m.Authenticated())
	return m, s, n, q, logs
}

func TestRestoredSessionEntersMainScreens(t *testing.T) {
	m, _, n, _, logs := signedIn(t)

	assert.Equal(t, ScreenFiles, m.Screen())
	assert.Equal(t, []string{"tok-1"}, n.started)
	assert.Equal(t, 1, logs.FilterMessage("signed in").Len())
	assert.Contains(t, m.View(), "lan@example.com")
}

func TestWithoutSessionShowsLogin(t *testing.T) {
	m, n, _, _ := newTestModel(t, &fakeSession{})
	m, _ = update(t, m, sessionRestoredMsg{ok: false})

	assert.False(t, m.Authenticated())
	assert.Empty(t, n.started)
	assert.Contains(t, m.View(), "Log in")
}

func TestLoggedInMsgEntersMainScreens(t *testing.T) {
	m, n, _, _ := newTestModel(t, &fakeSession{})
	m, _ = update(t, m, sessionRestoredMsg{ok: false})

	m, _ = update(t, m, auth.LoggedInMsg{Session: adminSession})
	assert.True(t, m.Authenticated())
	assert.Equal(t, []string{"tok-1"}, n.started)
}

func TestNumberKeysSwitchScreens(t *testing.T) {
	m, _, _, _, _ := signedIn(t)

	m, _ = update(t, m, runes("3"))
	assert.Equal(t, ScreenCosts, m.Screen())
	m, _ = update(t, m, runes("6"))
	assert.Equal(t, ScreenSettings, m.Screen())
	m, _ = update(t, m, runes("1"))
	assert.Equal(t, ScreenFiles, m.Screen())
}

func TestHelpOverlayToggles(t *testing.T) {
	m, _, _, _, _ := signedIn(t)

	m, _ = update(t, m, runes("?"))
	assert.Equal(t, overlayHelp, m.overlay)

	// Screen keys are swallowed while help is open.
	m, _ = update(t, m, runes("2"))
	assert.Equal(t, ScreenFiles, m.Screen())

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, overlayNone, m.overlay)
}

func TestSessionExpiredReturnsToLogin(t *testing.T) {
	m, s, n, _, _ := signedIn(t)

	m, _ = update(t, m, ui.SessionExpiredMsg{})
	assert.False(t, m.Authenticated())
	assert.Equal(t, 1, s.loggedOut)
	assert.Equal(t, 1, n.resets)
	assert.Equal(t, 1, n.stopped)
	assert.Contains(t, m.View(), "Your session has expired")
}

func TestSessionExpiredIgnoredWhenSignedOut(t *testing.T) {
	s := &fakeSession{}
	m, _, _, _ := newTestModel(t, s)
	m, _ = update(t, m, sessionRestoredMsg{ok: false})

	_, cmd := update(t, m, ui.SessionExpiredMsg{})
	assert.Nil(t, cmd)
	assert.Zero(t, s.loggedOut)
}

func TestLogoutKey(t *testing.T) {
	m, s, _, _, logs := signedIn(t)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlL})
	assert.False(t, m.Authenticated())
	assert.Equal(t, 1, s.loggedOut)
	assert.Equal(t, 1, logs.FilterMessage("signed out").Len())
}

func TestNotificationUpdateSetsBadge(t *testing.T) {
	m, _, _, _, _ := signedIn(t)

	m, _ = update(t, m, notify.UpdatedMsg{
		State:         notify.StateConnected,
		Notifications: []model.Notification{{ID: "n-1", Title: "Cost added"}, {ID: "n-2", Title: "Advance paid"}},
		Unread:        2,
	})
	assert.Equal(t, 2, m.Unread())

	view := m.View()
	assert.Contains(t, view, "[2 unread]")
	assert.Contains(t, view, "stream connected")
}

func TestToastMsgShowsToast(t *testing.T) {
	m, _, _, q, _ := signedIn(t)

	_, _ = update(t, m, ui.ToastMsg{Options: toast.Options{Title: "Saved", Type: model.NotificationSuccess}})
	require.Equal(t, 1, q.Len())
	assert.Equal(t, "Saved", q.List()[0].Title)
}

func TestDismissToastsKey(t *testing.T) {
	m, _, _, q, _ := signedIn(t)
	q.Info("One", "")
	q.Info("Two", "")

	_, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlX})
	assert.Zero(t, q.Len())
}

func TestCommands(t *testing.T) {
	m, _, n, _, _ := signedIn(t)

	m, _ = update(t, m, command.CommandMsg("reports"))
	assert.Equal(t, ScreenReports, m.Screen())

	m, cmd := update(t, m, command.CommandMsg("mark all read"))
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, 1, n.markAll)

	_, cmd = update(t, m, command.CommandMsg("bogus"))
	require.NotNil(t, cmd)
	msg, ok := cmd().(ui.ToastMsg)
	require.True(t, ok)
	assert.Equal(t, "Unknown command", msg.Options.Title)
	assert.Equal(t, model.NotificationWarning, msg.Options.Type)
}

func TestQuitKey(t *testing.T) {
	m, _, n, _, _ := signedIn(t)

	_, cmd := update(t, m, runes("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Equal(t, 1, n.stopped)
}

func TestRejectedStreamTokenReturnsToLogin(t *testing.T) {
	m, s, n, _, _ := signedIn(t)

	m, _ = update(t, m, notify.UpdatedMsg{State: notify.StateDisconnected, SessionExpired: true})
	assert.False(t, m.Authenticated())
	assert.Equal(t, 1, s.loggedOut)
	assert.Equal(t, 1, n.resets)
	assert.Contains(t, m.View(), "Your session has expired")
}

package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/costdesk/internal/api"
	"github.com/nhle/costdesk/internal/mailbox"
	"github.com/nhle/costdesk/internal/model"
	"github.com/nhle/costdesk/internal/otp"
	"github.com/nhle/costdesk/internal/theme"
	"github.com/nhle/costdesk/internal/ui"
	"github.com/nhle/costdesk/internal/validate"
)

// Backend is the session store as seen by the auth screens.
type Backend interface {
	Login(ctx context.Context, email, password string) (*model.Session, error)
	SendRegisterOTP(ctx context.Context, email string) (*model.OTPChallenge, error)
	Register(ctx context.Context, email, password, otpCode string) (*model.Session, error)
	SendForgotPasswordOTP(ctx context.Context, email string) (*model.OTPChallenge, error)
	ResetPassword(ctx context.Context, email, otpCode, newPassword string) error
}

// LoggedInMsg is emitted once the user is authenticated.
type LoggedInMsg struct {
	Session model.Session
}

// Screen selects one of the auth flows.
type Screen int

const (
	ScreenLogin Screen = iota
	ScreenRegister
	ScreenForgot
)

func (s Screen) String() string {
	switch s {
	case ScreenRegister:
		return "Create account"
	case ScreenForgot:
		return "Reset password"
	default:
		return "Log in"
	}
}

type step int

const (
	stepEmail step = iota
	stepCode
	stepPassword
)

type formBindings struct {
	email    string
	password string
	confirm  string
}

// attempt holds the inputs of one register or reset run. The OTP flow's
// verify callback reads from it.
type attempt struct {
	email    string
	password string
	code     string
	session  *model.Session
}

type loginResultMsg struct {
	session *model.Session
	err     error
}

type otpSentMsg struct {
	challenge *model.OTPChallenge
	err       error
}

type otpResentMsg struct {
	challenge *model.OTPChallenge
	err       error
}

type verifiedMsg struct {
	session *model.Session
	err     error
}

// MailboxPollInterval is how often the inbox is checked while a code is
// awaited.
const MailboxPollInterval = 5 * time.Second

// UnboundedAutofillWindow is how long the inbox is watched for a code
// whose expiry the server did not report.
const UnboundedAutofillWindow = 10 * time.Minute

// Model drives login, registration and password recovery.
type Model struct {
	backend   Backend
	screen    Screen
	step      step
	form      *huh.Form
	fb        *formBindings
	codeInput textinput.Model
	flow      *otp.Flow
	attempt   *attempt
	sentAt    time.Time
	ticking   bool
	mailbox   mailbox.Lookup
	busy      bool
	errMsg    string
	info      string
	spinner   spinner.Model
	now       func() time.Time
	width     int
	height    int
}

// New creates the auth model on the login screen. lookup may be nil; when
// set, emailed codes are read from the inbox and filled in.
func New(b Backend, lookup mailbox.Lookup, width, height int) Model {
	ci := textinput.New()
	ci.Placeholder = "123456"
	ci.CharLimit = otp.CodeLength
	ci.Width = otp.CodeLength + 2
	ci.Prompt = "Code: "

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.ColorBlue)

	m := Model{
		backend:   b,
		fb:        &formBindings{},
		codeInput: ci,
		mailbox:   lookup,
		spinner:   sp,
		now:       time.Now,
		width:     width,
		height:    height,
	}
	m.form = m.loginForm()
	return m
}

// Init starts the login form.
func (m Model) Init() tea.Cmd {
	return m.form.Init()
}

// Reset returns to an empty login screen, optionally with a notice.
func (m *Model) Reset(info string) tea.Cmd {
	return m.switchTo(ScreenLogin, "", info)
}

// Screen returns the active flow.
func (m Model) Screen() Screen {
	return m.screen
}

// Capturing is always true: every key belongs to the auth screens.
func (m Model) Capturing() bool {
	return true
}

func (m *Model) switchTo(s Screen, email, info string) tea.Cmd {
	m.screen = s
	m.step = stepEmail
	m.flow = nil
	m.attempt = nil
	m.ticking = false
	m.busy = false
	m.errMsg = ""
	m.info = info
	*m.fb = formBindings{email: email}
	m.codeInput.Reset()
	m.codeInput.Blur()
	if s == ScreenLogin {
		m.form = m.loginForm()
	} else {
		m.form = m.emailForm()
	}
	return m.form.Init()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m.updateForm(msg)

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case loginResultMsg:
		m.busy = false
		if msg.err != nil {
			m.errMsg = authMessage(msg.err)
			m.fb.password = ""
			m.form = m.loginForm()
			return m, m.form.Init()
		}
		sess := *msg.session
		return m, func() tea.Msg { return LoggedInMsg{Session: sess} }

	case otpSentMsg:
		m.busy = false
		if msg.err != nil {
			m.errMsg = authMessage(msg.err)
			m.form = m.emailForm()
			return m, m.form.Init()
		}
		return m.startCode(msg.challenge)

	case otpResentMsg:
		m.busy = false
		if msg.err != nil {
			m.errMsg = authMessage(msg.err)
			return m, nil
		}
		m.flow.Restart(*msg.challenge)
		m.errMsg = ""
		m.info = challengeInfo(msg.challenge)
		m.sentAt = m.now()
		m.codeInput.Reset()
		tick := m.startTicking()
		return m, tea.Batch(tick, m.autofill())

	case otp.TickMsg:
		if m.flow == nil || m.flow.Countdown().Unbounded() || m.flow.Countdown().Expired(m.now()) {
			m.ticking = false
			return m, nil
		}
		return m, otp.Tick()

	case mailbox.CodeMsg:
		if m.step != stepCode || msg.Code == "" || m.codeInput.Value() != "" {
			return m, nil
		}
		m.codeInput.SetValue(msg.Code)
		m.info = "Code filled in from your inbox. Press enter to continue."
		return m, nil

	case verifiedMsg:
		return m.finish(msg)

	case tea.KeyMsg:
		if m.busy {
			return m, nil
		}
		if cmd, ok := m.navigate(msg); ok {
			return m, cmd
		}
		if m.step == stepCode {
			return m.handleCodeKey(msg)
		}
	}

	return m.updateForm(msg)
}

// navigate handles the keys that move between screens.
func (m *Model) navigate(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+r":
		if m.screen == ScreenLogin {
			return m.switchTo(ScreenRegister, strings.TrimSpace(m.fb.email), ""), true
		}
	case "ctrl+f":
		if m.screen == ScreenLogin {
			return m.switchTo(ScreenForgot, strings.TrimSpace(m.fb.email), ""), true
		}
	case "esc":
		if m.screen != ScreenLogin {
			email := ""
			if m.attempt != nil {
				email = m.attempt.email
			}
			return m.switchTo(ScreenLogin, email, ""), true
		}
	}
	return nil, false
}

func (m Model) updateForm(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil || m.step == stepCode {
		return m, nil
	}
	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateAborted:
		if m.screen == ScreenLogin {
			return m, tea.Quit
		}
		cmd := m.switchTo(ScreenLogin, "", "")
		return m, cmd
	case huh.StateCompleted:
		return m.submitForm()
	}
	return m, cmd
}

func (m Model) submitForm() (Model, tea.Cmd) {
	m.errMsg = ""
	m.busy = true
	email := strings.TrimSpace(m.fb.email)

	switch {
	case m.screen == ScreenLogin:
		return m, tea.Batch(m.spinner.Tick, m.login(email, m.fb.password))

	case m.step == stepEmail:
		m.attempt = &attempt{email: email}
		return m, tea.Batch(m.spinner.Tick, m.sendOTP(email))

	case m.step == stepPassword:
		m.attempt.password = m.fb.password
		return m, tea.Batch(m.spinner.Tick, m.verify())
	}
	m.busy = false
	return m, nil
}

func (m Model) finish(msg verifiedMsg) (Model, tea.Cmd) {
	m.busy = false
	if msg.err != nil {
		if errors.Is(msg.err, otp.ErrExpired) {
			m.errMsg = otp.ErrExpired.Error()
		} else {
			m.errMsg = authMessage(msg.err)
		}
		// A rejected or expired code sends the user back to code entry.
		m.step = stepCode
		m.fb.password = ""
		m.fb.confirm = ""
		focus := m.codeInput.Focus()
		return m, focus
	}

	if m.screen == ScreenRegister {
		sess := *msg.session
		return m, func() tea.Msg { return LoggedInMsg{Session: sess} }
	}

	email := m.attempt.email
	cmd := m.switchTo(ScreenLogin, email, "Password reset. Log in with your new password.")
	return m, tea.Batch(cmd, ui.Success("Password reset", email))
}

func (m Model) loginForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Placeholder("you@example.com").
				Value(&m.fb.email).
				Validate(validate.Email),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.password).
				Validate(validate.Required("password")),
		),
	).WithWidth(formWidth(m.width)).WithShowHelp(true)
}

func (m Model) emailForm() *huh.Form {
	desc := "We will email you a 6-digit verification code."
	if m.screen == ScreenForgot {
		desc = "We will email you a 6-digit code to reset your password."
	}
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Description(desc).
				Placeholder("you@example.com").
				Value(&m.fb.email).
				Validate(validate.Email),
		),
	).WithWidth(formWidth(m.width)).WithShowHelp(true)
}

func (m Model) passwordForm() *huh.Form {
	title := "Choose a password"
	if m.screen == ScreenForgot {
		title = "New password"
	}
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(title).
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.password).
				Validate(validate.Password),
			huh.NewInput().
				Title("Confirm password").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.confirm).
				Validate(validate.Matches(&m.fb.password, "passwords")),
		),
	).WithWidth(formWidth(m.width)).WithShowHelp(true)
}

// authMessage is api.UserMessage for signed-out users: a 401 here means
// bad credentials, not an expired session.
func authMessage(err error) string {
	if api.IsUnauthorized(err) {
		if msg := strings.TrimSpace(api.ServerMessage(err)); msg != "" && msg != http.StatusText(http.StatusUnauthorized) {
			return msg
		}
		return "Invalid email or password."
	}
	return api.UserMessage(err, model.RoleViewer)
}

func formWidth(width int) int {
	w := width - 8
	if w > 60 {
		w = 60
	}
	if w < 30 {
		w = 30
	}
	return w
}

// View renders the active auth screen.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(theme.HeaderStyle.Render(" costdesk "))
	b.WriteString("\n\n")
	b.WriteString(theme.TitleStyle.Render(m.screen.String()))
	b.WriteString("\n\n")

	if m.info != "" {
		b.WriteString(theme.StatusMessageStyle.Render(m.info) + "\n\n")
	}

	if m.step == stepCode {
		b.WriteString(m.viewCode())
	} else if m.form != nil {
		b.WriteString(m.form.View())
	}

	if m.errMsg != "" {
		b.WriteString("\n" + theme.ErrorStyle.Render(m.errMsg))
	}
	if m.busy {
		b.WriteString("\n" + m.spinner.View() + " Please wait...")
	}

	b.WriteString("\n\n")
	switch m.screen {
	case ScreenLogin:
		b.WriteString(theme.HelpStyle.Render("ctrl+r create account | ctrl+f forgot password | ctrl+c quit"))
	default:
		b.WriteString(theme.HelpStyle.Render("esc back to login | ctrl+c quit"))
	}

	content := lipgloss.NewStyle().Padding(1, 4).Render(b.String())
	if m.width == 0 || m.height == 0 {
		return content
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}

func (m Model) login(email, password string) tea.Cmd {
	b := m.backend
	return func() tea.Msg {
		sess, err := b.Login(context.Background(), email, password)
		return loginResultMsg{session: sess, err: err}
	}
}

func (m Model) sendOTP(email string) tea.Cmd {
	b := m.backend
	forgot := m.screen == ScreenForgot
	return func() tea.Msg {
		var (
			ch  *model.OTPChallenge
			err error
		)
		if forgot {
			ch, err = b.SendForgotPasswordOTP(context.Background(), email)
		} else {
			ch, err = b.SendRegisterOTP(context.Background(), email)
		}
		return otpSentMsg{challenge: ch, err: err}
	}
}

func (m Model) verify() tea.Cmd {
	flow := m.flow
	a := m.attempt
	now := m.now()
	return func() tea.Msg {
		err := flow.Submit(context.Background(), a.code, now)
		return verifiedMsg{session: a.session, err: err}
	}
}

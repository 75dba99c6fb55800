package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/costdesk/internal/mailbox"
	"github.com/nhle/costdesk/internal/model"
	"github.com/nhle/costdesk/internal/otp"
	"github.com/nhle/costdesk/internal/theme"
)

// startCode moves to code entry for a freshly issued challenge.
func (m Model) startCode(ch *model.OTPChallenge) (Model, tea.Cmd) {
	a := m.attempt
	b := m.backend

	var verify func(ctx context.Context, code string) error
	var resend func(ctx context.Context) (*model.OTPChallenge, error)
	if m.screen == ScreenForgot {
		verify = func(ctx context.Context, code string) error {
			return b.ResetPassword(ctx, a.email, code, a.password)
		}
		resend = func(ctx context.Context) (*model.OTPChallenge, error) {
			return b.SendForgotPasswordOTP(ctx, a.email)
		}
	} else {
		verify = func(ctx context.Context, code string) error {
			sess, err := b.Register(ctx, a.email, a.password, code)
			a.session = sess
			return err
		}
		resend = func(ctx context.Context) (*model.OTPChallenge, error) {
			return b.SendRegisterOTP(ctx, a.email)
		}
	}

	m.flow = otp.NewFlow(*ch, verify, resend)
	m.step = stepCode
	m.sentAt = m.now()
	m.errMsg = ""
	m.info = challengeInfo(ch)
	m.codeInput.Reset()
	focus := m.codeInput.Focus()
	tick := m.startTicking()
	return m, tea.Batch(focus, textinput.Blink, tick, m.autofill())
}

func challengeInfo(ch *model.OTPChallenge) string {
	if ch.Message != "" {
		return ch.Message
	}
	return "A verification code has been sent to your email."
}

func (m *Model) startTicking() tea.Cmd {
	if m.ticking || m.flow == nil || m.flow.Countdown().Unbounded() {
		return nil
	}
	m.ticking = true
	return otp.Tick()
}

// autofill polls the inbox for the code until it expires.
func (m Model) autofill() tea.Cmd {
	if m.mailbox == nil || m.flow == nil {
		return nil
	}
	cd := m.flow.Countdown()
	remaining := cd.Remaining(m.now())
	if cd.Unbounded() {
		remaining = UnboundedAutofillWindow
	}
	if remaining <= 0 {
		return nil
	}
	// Mail servers stamp messages with second precision.
	since := m.sentAt.Add(-time.Minute)
	return mailbox.WaitForCode(m.mailbox, since, MailboxPollInterval, remaining)
}

// CanResend reports whether a new code may be requested now.
func (m Model) CanResend() bool {
	return m.flow != nil && m.flow.Countdown().CanResend(m.now())
}

func (m Model) handleCodeKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		code := strings.TrimSpace(m.codeInput.Value())
		if err := otp.ValidateCode(code); err != nil {
			m.errMsg = authMessage(err)
			return m, nil
		}
		if m.flow.Countdown().Expired(m.now()) {
			m.errMsg = otp.ErrExpired.Error()
			return m, nil
		}
		m.errMsg = ""
		m.attempt.code = code
		m.step = stepPassword
		m.fb.password = ""
		m.fb.confirm = ""
		m.codeInput.Blur()
		m.form = m.passwordForm()
		return m, m.form.Init()

	case "ctrl+r":
		if m.busy || !m.CanResend() {
			return m, nil
		}
		m.busy = true
		return m, tea.Batch(m.spinner.Tick, m.resend())
	}

	var cmd tea.Cmd
	m.codeInput, cmd = m.codeInput.Update(msg)
	return m, cmd
}

func (m Model) resend() tea.Cmd {
	flow := m.flow
	now := m.now()
	return func() tea.Msg {
		ch, err := flow.Resend(context.Background(), now)
		return otpResentMsg{challenge: ch, err: err}
	}
}

func (m Model) viewCode() string {
	var b strings.Builder
	now := m.now()
	cd := m.flow.Countdown()

	email := ""
	if m.attempt != nil {
		email = m.attempt.email
	}
	b.WriteString(fmt.Sprintf("Enter the %d-digit code sent to %s\n\n", otp.CodeLength, email))
	b.WriteString(m.codeInput.View())
	b.WriteString("\n\n")

	switch {
	case cd.Unbounded():
		b.WriteString(theme.HelpStyle.Render("ctrl+r resend code"))
	case cd.Expired(now):
		b.WriteString(theme.ErrorStyle.Render("Code expired."))
		b.WriteString("  " + theme.HelpStyle.Render("ctrl+r resend code"))
	default:
		b.WriteString(theme.HelpStyle.Render("Expires in " + cd.Label(now)))
		b.WriteString("  " + theme.HelpStyle.Render("resend available when the code expires"))
	}
	if m.mailbox != nil && m.codeInput.Value() == "" && !cd.Expired(now) {
		b.WriteString("\n" + theme.HelpStyle.Render("Watching your inbox for the code..."))
	}
	return b.String()
}

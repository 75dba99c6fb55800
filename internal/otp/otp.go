package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/costdesk/internal/api"
	"github.com/nhle/costdesk/internal/model"
)

// CodeLength is the number of digits in an emailed code.
const CodeLength = 6

var (
	// ErrExpired is returned when a code is submitted after its expiry.
	ErrExpired = errors.New("the verification code has expired, request a new one")

	// ErrResendTooSoon is returned when a new code is requested while the
	// current one is still valid.
	ErrResendTooSoon = errors.New("a new code can be requested once the current one expires")
)

// ValidateCode checks that code is exactly CodeLength ASCII digits.
func ValidateCode(code string) error {
	if len(code) != CodeLength {
		return api.Invalid("code", "enter the %d-digit code from your email", CodeLength)
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return api.Invalid("code", "the code must contain digits only")
		}
	}
	return nil
}

// Countdown tracks the validity window of an emailed code. A zero
// ExpiresAt means the server did not say, and the code never expires
// on the client.
type Countdown struct {
	ExpiresAt time.Time
}

// Unbounded reports whether the window has no known end.
func (c Countdown) Unbounded() bool {
	return c.ExpiresAt.IsZero()
}

// Remaining returns the time left before expiry, never negative. It is
// zero for an unbounded window.
func (c Countdown) Remaining(now time.Time) time.Duration {
	if c.Unbounded() {
		return 0
	}
	d := c.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Expired reports whether the code can no longer be used.
func (c Countdown) Expired(now time.Time) bool {
	return !c.Unbounded() && c.Remaining(now) == 0
}

// CanResend reports whether a new code may be requested. The resend
// cooldown mirrors the code's expiry; without one, resend is always open.
func (c Countdown) CanResend(now time.Time) bool {
	return c.Unbounded() || c.Expired(now)
}

// Label renders the remaining time as mm:ss.
func (c Countdown) Label(now time.Time) string {
	secs := int(c.Remaining(now).Round(time.Second) / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// Flow drives the code entry step of registration and password reset.
type Flow struct {
	countdown Countdown
	verify    func(ctx context.Context, code string) error
	resend    func(ctx context.Context) (*model.OTPChallenge, error)
}

// NewFlow starts a flow for the challenge that was just issued. verify
// finalizes the operation with a code; resend requests a fresh one.
func NewFlow(
	challenge model.OTPChallenge,
	verify func(ctx context.Context, code string) error,
	resend func(ctx context.Context) (*model.OTPChallenge, error),
) *Flow {
	return &Flow{
		countdown: Countdown{ExpiresAt: challenge.ExpiresAt},
		verify:    verify,
		resend:    resend,
	}
}

// Countdown returns the current validity window.
func (f *Flow) Countdown() Countdown {
	return f.countdown
}

// Submit validates code and, while the window is open, calls verify with
// exactly that code. Expired codes never reach the backend.
func (f *Flow) Submit(ctx context.Context, code string, now time.Time) error {
	if err := ValidateCode(code); err != nil {
		return err
	}
	if f.countdown.Expired(now) {
		return ErrExpired
	}
	return f.verify(ctx, code)
}

// Resend requests a new code once the cooldown has elapsed. It leaves
// the flow untouched so it can run off the UI goroutine; pass the result
// to Restart.
func (f *Flow) Resend(ctx context.Context, now time.Time) (*model.OTPChallenge, error) {
	if !f.countdown.CanResend(now) {
		return nil, ErrResendTooSoon
	}
	return f.resend(ctx)
}

// Restart begins a new validity window for a freshly issued challenge.
func (f *Flow) Restart(ch model.OTPChallenge) {
	f.countdown = Countdown{ExpiresAt: ch.ExpiresAt}
}

// TickMsg is sent once per second while a countdown is on screen.
type TickMsg time.Time

// Tick schedules the next TickMsg.
func Tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

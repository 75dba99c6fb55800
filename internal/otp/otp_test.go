package otp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/costdesk/internal/api"
	"github.com/nhle/costdesk/internal/model"
)

func TestValidateCode(t *testing.T) {
	assert.NoError(t, ValidateCode("123456"))
	assert.Error(t, ValidateCode("12345"))
	assert.Error(t, ValidateCode("1234567"))
	assert.Error(t, ValidateCode("12a456"))
	assert.Equal(t, api.KindValidation, api.Classify(ValidateCode("")))
}

func TestCountdown(t *testing.T) {
	issued := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	c := Countdown{ExpiresAt: issued.Add(5 * time.Minute)}

	assert.Equal(t, "05:00", c.Label(issued))
	assert.Equal(t, "00:01", c.Label(issued.Add(4*time.Minute+59*time.Second)))
	assert.False(t, c.Expired(issued.Add(4*time.Minute)))
	assert.False(t, c.CanResend(issued.Add(4*time.Minute)))

	assert.True(t, c.Expired(issued.Add(5*time.Minute)))
	assert.True(t, c.CanResend(issued.Add(5*time.Minute)))
	assert.Equal(t, "00:00", c.Label(issued.Add(time.Hour)))
	assert.Equal(t, time.Duration(0), c.Remaining(issued.Add(time.Hour)))
}

func TestFlowSubmitWithinWindow(t *testing.T) {
	issued := time.Now()
	var got []string
	flow := NewFlow(
		model.OTPChallenge{ExpiresAt: issued.Add(5 * time.Minute)},
		func(ctx context.Context, code string) error {
			got = append(got, code)
			return nil
		},
		nil,
	)

	require.NoError(t, flow.Submit(context.Background(), "123456", issued.Add(time.Minute)))
	assert.Equal(t, []string{"123456"}, got)
}

func TestFlowSubmitAfterExpiry(t *testing.T) {
	issued := time.Now()
	called := false
	flow := NewFlow(
		model.OTPChallenge{ExpiresAt: issued.Add(5 * time.Minute)},
		func(ctx context.Context, code string) error {
			called = true
			return nil
		},
		nil,
	)

	err := flow.Submit(context.Background(), "123456", issued.Add(6*time.Minute))
	assert.ErrorIs(t, err, ErrExpired)
	assert.Contains(t, err.Error(), "expired")
	assert.False(t, called)
}

func TestFlowSubmitPassesVerifyError(t *testing.T) {
	wrong := &api.HTTPError{StatusCode: 400, Message: "Invalid OTP code"}
	flow := NewFlow(
		model.OTPChallenge{ExpiresAt: time.Now().Add(time.Minute)},
		func(ctx context.Context, code string) error { return wrong },
		nil,
	)

	err := flow.Submit(context.Background(), "000000", time.Now())
	assert.True(t, errors.Is(err, wrong))
}

func TestFlowResendCooldown(t *testing.T) {
	issued := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	resends := 0
	flow := NewFlow(
		model.OTPChallenge{ExpiresAt: issued.Add(5 * time.Minute)},
		nil,
		func(ctx context.Context) (*model.OTPChallenge, error) {
			resends++
			return &model.OTPChallenge{ExpiresAt: issued.Add(15 * time.Minute)}, nil
		},
	)

	_, err := flow.Resend(context.Background(), issued.Add(4*time.Minute))
	assert.ErrorIs(t, err, ErrResendTooSoon)
	assert.Equal(t, 0, resends)

	ch, err := flow.Resend(context.Background(), issued.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, resends)
	assert.Equal(t, issued.Add(5*time.Minute), flow.Countdown().ExpiresAt, "resend leaves the window alone")

	flow.Restart(*ch)
	assert.Equal(t, ch.ExpiresAt, flow.Countdown().ExpiresAt)
	assert.False(t, flow.Countdown().CanResend(issued.Add(10*time.Minute)))
}

func TestFlowResendWhileRendering(t *testing.T) {
	issued := time.Now().Add(-10 * time.Minute)
	flow := NewFlow(
		model.OTPChallenge{ExpiresAt: issued.Add(5 * time.Minute)},
		nil,
		func(ctx context.Context) (*model.OTPChallenge, error) {
			return &model.OTPChallenge{ExpiresAt: time.Now().Add(5 * time.Minute)}, nil
		},
	)

	type result struct {
		ch  *model.OTPChallenge
		err error
	}
	done := make(chan result, 1)
	go func() {
		ch, err := flow.Resend(context.Background(), time.Now())
		done <- result{ch, err}
	}()

	var res result
	for rendering := true; rendering; {
		_ = flow.Countdown().Label(time.Now())
		select {
		case res = <-done:
			rendering = false
		default:
		}
	}

	require.NoError(t, res.err)
	flow.Restart(*res.ch)
	assert.False(t, flow.Countdown().Expired(time.Now()))
}

func TestUnboundedCountdown(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	c := Countdown{}

	assert.True(t, c.Unbounded())
	assert.False(t, c.Expired(now))
	assert.True(t, c.CanResend(now))
	assert.Equal(t, time.Duration(0), c.Remaining(now))
}

func TestFlowWithoutExpiryAcceptsCode(t *testing.T) {
	var got []string
	flow := NewFlow(
		model.OTPChallenge{Message: "sent"},
		func(ctx context.Context, code string) error {
			got = append(got, code)
			return nil
		},
		nil,
	)

	require.NoError(t, flow.Submit(context.Background(), "123456", time.Now()))
	assert.Equal(t, []string{"123456"}, got)
}

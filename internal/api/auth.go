package api

import (
	"context"
	"fmt"

	"github.com/nhle/costdesk/internal/model"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	OTPCode  string `json:"otpCode"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	OTPCode     string `json:"otpCode"`
	NewPassword string `json:"newPassword"`
}

// Login exchanges credentials for a token and the user's profile.
func (c *Client) Login(ctx context.Context, email, password string) (*model.AuthResponse, error) {
	var resp model.AuthResponse
	if err := c.post(ctx, "/auth/login", credentials{Email: email, Password: password}, &resp); err != nil {
		return nil, fmt.Errorf("api.Login: %w", err)
	}
	return &resp, nil
}

// SendRegisterOTP asks the backend to email a registration code.
func (c *Client) SendRegisterOTP(ctx context.Context, email string) (*model.OTPChallenge, error) {
	var ch model.OTPChallenge
	if err := c.post(ctx, "/auth/register/send-otp", emailRequest{Email: email}, &ch); err != nil {
		return nil, fmt.Errorf("api.SendRegisterOTP: %w", err)
	}
	return &ch, nil
}

// Register finalizes account creation with the emailed code.
func (c *Client) Register(ctx context.Context, email, password, otpCode string) (*model.AuthResponse, error) {
	var resp model.AuthResponse
	req := registerRequest{Email: email, Password: password, OTPCode: otpCode}
	if err := c.post(ctx, "/auth/register", req, &resp); err != nil {
		return nil, fmt.Errorf("api.Register: %w", err)
	}
	return &resp, nil
}

// SendForgotPasswordOTP asks the backend to email a password reset code.
func (c *Client) SendForgotPasswordOTP(ctx context.Context, email string) (*model.OTPChallenge, error) {
	var ch model.OTPChallenge
	if err := c.post(ctx, "/auth/forgot-password/send-otp", emailRequest{Email: email}, &ch); err != nil {
		return nil, fmt.Errorf("api.SendForgotPasswordOTP: %w", err)
	}
	return &ch, nil
}

// ResetPassword sets a new password using the emailed code.
func (c *Client) ResetPassword(ctx context.Context, email, otpCode, newPassword string) error {
	req := resetPasswordRequest{Email: email, OTPCode: otpCode, NewPassword: newPassword}
	if err := c.post(ctx, "/auth/reset-password", req, nil); err != nil {
		return fmt.Errorf("api.ResetPassword: %w", err)
	}
	return nil
}

// Me returns the profile of the token's owner.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var u model.User
	if err := c.get(ctx, "/auth/me", &u); err != nil {
		return nil, fmt.Errorf("api.Me: %w", err)
	}
	return &u, nil
}

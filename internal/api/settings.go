package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/nhle/costdesk/internal/model"
)

// GetProfile returns the current user's editable profile.
func (c *Client) GetProfile(ctx context.Context) (*model.Profile, error) {
	var p model.Profile
	if err := c.get(ctx, "/settings/profile", &p); err != nil {
		return nil, fmt.Errorf("api.GetProfile: %w", err)
	}
	return &p, nil
}

// UpdateProfile saves the current user's profile.
func (c *Client) UpdateProfile(ctx context.Context, p model.Profile) (*model.Profile, error) {
	var updated model.Profile
	if err := c.put(ctx, "/settings/profile", p, &updated); err != nil {
		return nil, fmt.Errorf("api.UpdateProfile: %w", err)
	}
	return &updated, nil
}

// ChangePassword changes the current user's password.
func (c *Client) ChangePassword(ctx context.Context, change model.PasswordChange) error {
	if err := c.put(ctx, "/settings/password", change, nil); err != nil {
		return fmt.Errorf("api.ChangePassword: %w", err)
	}
	return nil
}

// GetNotificationSettings returns the current user's delivery preferences.
func (c *Client) GetNotificationSettings(ctx context.Context) (*model.NotificationSettings, error) {
	var s model.NotificationSettings
	if err := c.get(ctx, "/settings/notifications", &s); err != nil {
		return nil, fmt.Errorf("api.GetNotificationSettings: %w", err)
	}
	return &s, nil
}

// UpdateNotificationSettings saves the current user's delivery preferences.
func (c *Client) UpdateNotificationSettings(ctx context.Context, s model.NotificationSettings) (*model.NotificationSettings, error) {
	var updated model.NotificationSettings
	if err := c.put(ctx, "/settings/notifications", s, &updated); err != nil {
		return nil, fmt.Errorf("api.UpdateNotificationSettings: %w", err)
	}
	return &updated, nil
}

// ListUsers returns every account. Super admin only.
func (c *Client) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := c.get(ctx, "/users", &users); err != nil {
		return nil, fmt.Errorf("api.ListUsers: %w", err)
	}
	return users, nil
}

// UpdateUserRole changes an account's role. Super admin only.
func (c *Client) UpdateUserRole(ctx context.Context, id string, role model.Role) (*model.User, error) {
	var updated model.User
	body := map[string]model.Role{"role": role}
	if err := c.put(ctx, "/users/"+url.PathEscape(id)+"/role", body, &updated); err != nil {
		return nil, fmt.Errorf("api.UpdateUserRole: %w", err)
	}
	return &updated, nil
}

// DeleteUser removes an account. Super admin only.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	if err := c.delete(ctx, "/users/"+url.PathEscape(id)); err != nil {
		return fmt.Errorf("api.DeleteUser: %w", err)
	}
	return nil
}

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/nhle/costdesk/internal/model"
)

type markReadRequest struct {
	IDs []string `json:"ids"`
}

// ListNotifications returns the most recent notifications, newest first.
func (c *Client) ListNotifications(ctx context.Context, limit int) ([]model.Notification, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	path := "/notifications"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var list []model.Notification
	if err := c.get(ctx, path, &list); err != nil {
		return nil, fmt.Errorf("api.ListNotifications: %w", err)
	}
	return list, nil
}

// MarkNotificationsRead acknowledges the given notifications.
func (c *Client) MarkNotificationsRead(ctx context.Context, ids []string) error {
	if err := c.post(ctx, "/notifications/read", markReadRequest{IDs: ids}, nil); err != nil {
		return fmt.Errorf("api.MarkNotificationsRead: %w", err)
	}
	return nil
}

// MarkAllNotificationsRead acknowledges every notification.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	if err := c.post(ctx, "/notifications/read-all", nil, nil); err != nil {
		return fmt.Errorf("api.MarkAllNotificationsRead: %w", err)
	}
	return nil
}

// NotificationStreamURL returns the server-sent events endpoint for token.
// The stream authenticates through the query string because event-stream
// clients cannot always set headers.
func (c *Client) NotificationStreamURL(token string) string {
	return c.baseURL + "/notifications/stream?token=" + url.QueryEscape(token)
}

// OpenNotificationStream connects to the event stream as token. The
// returned body stays open until ctx is cancelled or the server closes it.
func (c *Client) OpenNotificationStream(ctx context.Context, token string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.NotificationStreamURL(token), nil)
	if err != nil {
		return nil, fmt.Errorf("api.OpenNotificationStream: create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api.OpenNotificationStream: do request: %w", err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close() //nolint:errcheck // best-effort close
		return nil, fmt.Errorf("api.OpenNotificationStream: %w", readHTTPError(resp))
	}
	return resp.Body, nil
}

func decodeJSON(r io.Reader, out any) error {
	if err := json.NewDecoder(r).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

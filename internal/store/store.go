package store

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/nhle/costdesk/internal/model"
)

// ErrNotFound is returned when a key or cookie does not exist or has expired.
var ErrNotFound = errors.New("not found")

// Well-known local storage keys.
const (
	KeyUser = "user"
)

// SessionCookieName is the cookie the file proxy reads the token from.
const SessionCookieName = "costdesk_token"

// SessionCookieTTL is how long the mirrored session cookie stays valid.
const SessionCookieTTL = 7 * 24 * time.Hour

// Cookie is a persisted browser-style cookie.
type Cookie struct {
	Name      string    `db:"name"`
	Value     string    `db:"value"`
	Path      string    `db:"path"`
	SameSite  string    `db:"same_site"`
	HTTPOnly  bool      `db:"http_only"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}

// Expired reports whether the cookie is no longer valid at now.
func (c Cookie) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// HTTPCookie converts c to a net/http cookie.
func (c Cookie) HTTPCookie() *http.Cookie {
	sameSite := http.SameSiteLaxMode
	switch c.SameSite {
	case "Strict":
		sameSite = http.SameSiteStrictMode
	case "None":
		sameSite = http.SameSiteNoneMode
	}
	return &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Expires:  c.ExpiresAt,
		HttpOnly: c.HTTPOnly,
		SameSite: sameSite,
	}
}

// NewSessionCookie builds the mirrored token cookie: non-HttpOnly,
// SameSite=Lax, valid for SessionCookieTTL from now.
func NewSessionCookie(token string, now time.Time) Cookie {
	return Cookie{
		Name:      SessionCookieName,
		Value:     token,
		Path:      "/",
		SameSite:  "Lax",
		HTTPOnly:  false,
		ExpiresAt: now.Add(SessionCookieTTL),
		CreatedAt: now,
	}
}

// Store defines the client-side persistence interface: a key-value
// local storage, a cookie jar, and a cache of received notifications.
type Store interface {
	// === Local storage ===

	SetItem(ctx context.Context, key, value string) error
	GetItem(ctx context.Context, key string) (string, error)
	RemoveItem(ctx context.Context, key string) error

	// === Cookies ===

	SetCookie(ctx context.Context, c Cookie) error
	GetCookie(ctx context.Context, name string, now time.Time) (*Cookie, error)
	DeleteCookie(ctx context.Context, name string) error

	// === Notification cache ===

	SaveNotifications(ctx context.Context, list []model.Notification) error
	RecentNotifications(ctx context.Context, limit int) ([]model.Notification, error)
	ClearNotifications(ctx context.Context) error
}

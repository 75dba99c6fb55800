package store_test

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/costdesk/internal/model"
	"github.com/nhle/costdesk/internal/store"
	"github.com/nhle/costdesk/tests/testutil"
)

func TestLocalStorage(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	_, err := s.GetItem(ctx, store.KeyUser)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.SetItem(ctx, store.KeyUser, `{"id":"u1"}`))
	require.NoError(t, s.SetItem(ctx, store.KeyUser, `{"id":"u2"}`))

	got, err := s.GetItem(ctx, store.KeyUser)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"u2"}`, got)

	require.NoError(t, s.RemoveItem(ctx, store.KeyUser))
	require.NoError(t, s.RemoveItem(ctx, store.KeyUser))
	_, err = s.GetItem(ctx, store.KeyUser)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSessionCookieExpiry(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	c := store.NewSessionCookie("tok-1", now)
	assert.Equal(t, now.Add(7*24*time.Hour), c.ExpiresAt)
	assert.False(t, c.HTTPOnly)
	assert.Equal(t, "Lax", c.SameSite)
	require.NoError(t, s.SetCookie(ctx, c))

	got, err := s.GetCookie(ctx, store.SessionCookieName, now.Add(6*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "tok-1", got.Value)
	assert.Equal(t, "/", got.Path)
	assert.True(t, got.ExpiresAt.Equal(c.ExpiresAt))

	_, err = s.GetCookie(ctx, store.SessionCookieName, now.Add(7*24*time.Hour))
	assert.ErrorIs(t, err, store.ErrNotFound)

	// The expired cookie was purged.
	_, err = s.GetCookie(ctx, store.SessionCookieName, now)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHTTPCookie(t *testing.T) {
	now := time.Now()
	hc := store.NewSessionCookie("tok", now).HTTPCookie()

	assert.Equal(t, store.SessionCookieName, hc.Name)
	assert.Equal(t, http.SameSiteLaxMode, hc.SameSite)
	assert.False(t, hc.HttpOnly)
	assert.Equal(t, "/", hc.Path)
}

func TestDeleteCookie(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetCookie(ctx, store.NewSessionCookie("tok", time.Now())))
	require.NoError(t, s.DeleteCookie(ctx, store.SessionCookieName))

	_, err := s.GetCookie(ctx, store.SessionCookieName, time.Now())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestNotificationCache(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	readAt := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)

	list := []model.Notification{
		{ID: "n3", Title: "Cost added", Type: model.NotificationSuccess, CreatedAt: time.Now()},
		{ID: "n2", Title: "Advance due", Type: model.NotificationWarning, IsRead: true, ReadAt: &readAt, CreatedAt: time.Now()},
		{ID: "n1", Title: "Upload failed", Type: model.NotificationError, CreatedAt: time.Now()},
	}
	require.NoError(t, s.SaveNotifications(ctx, list))

	got, err := s.RecentNotifications(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "n3", got[0].ID)
	assert.Equal(t, "n2", got[1].ID)
	assert.True(t, got[1].IsRead)
	require.NotNil(t, got[1].ReadAt)
	assert.True(t, got[1].ReadAt.Equal(readAt))
	assert.Nil(t, got[0].ReadAt)

	require.NoError(t, s.SaveNotifications(ctx, list[:1]))
	got, err = s.RecentNotifications(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	require.NoError(t, s.ClearNotifications(ctx))
	got, err = s.RecentNotifications(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.db")

	s, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SetItem(context.Background(), "k", "v"))
	require.NoError(t, s.Close())

	s, err = store.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetItem(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

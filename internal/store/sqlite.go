package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/costdesk/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Every pooled connection to ":memory:" would get its own database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// SetItem stores value under key, replacing any previous value.
func (s *SQLiteStore) SetItem(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO local_storage (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("setting item %s: %w", key, err)
	}
	return nil
}

// GetItem returns the value stored under key or ErrNotFound.
func (s *SQLiteStore) GetItem(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.GetContext(ctx, &value, "SELECT value FROM local_storage WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("getting item %s: %w", key, err)
	}
	return value, nil
}

// RemoveItem deletes key. Removing a missing key succeeds.
func (s *SQLiteStore) RemoveItem(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM local_storage WHERE key = ?", key); err != nil {
		return fmt.Errorf("removing item %s: %w", key, err)
	}
	return nil
}

// SetCookie inserts or replaces the cookie with c.Name.
func (s *SQLiteStore) SetCookie(ctx context.Context, c Cookie) error {
	if c.Path == "" {
		c.Path = "/"
	}
	if c.SameSite == "" {
		c.SameSite = "Lax"
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO cookies (name, value, path, same_site, http_only, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.Name, c.Value, c.Path, c.SameSite, boolToInt(c.HTTPOnly),
		c.ExpiresAt.UTC(), c.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("setting cookie %s: %w", c.Name, err)
	}
	return nil
}

// GetCookie returns the named cookie if it has not expired at now.
// Expired cookies are deleted and reported as ErrNotFound.
func (s *SQLiteStore) GetCookie(ctx context.Context, name string, now time.Time) (*Cookie, error) {
	var c Cookie
	err := s.db.GetContext(ctx, &c, `
		SELECT name, value, path, same_site, http_only, expires_at, created_at
		FROM cookies WHERE name = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting cookie %s: %w", name, err)
	}

	if c.Expired(now) {
		if err := s.DeleteCookie(ctx, name); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return &c, nil
}

// DeleteCookie removes the named cookie.
func (s *SQLiteStore) DeleteCookie(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cookies WHERE name = ?", name); err != nil {
		return fmt.Errorf("deleting cookie %s: %w", name, err)
	}
	return nil
}

// SaveNotifications replaces the cached notification list with list,
// keeping its order.
func (s *SQLiteStore) SaveNotifications(ctx context.Context, list []model.Notification) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM notifications"); err != nil {
		return fmt.Errorf("clearing notifications: %w", err)
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO notifications (id, title, message, type, is_read, read_at, created_at, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing notification insert: %w", err)
	}
	defer stmt.Close()

	for i, n := range list {
		var readAt any
		if n.ReadAt != nil {
			readAt = n.ReadAt.UTC()
		}
		_, err := stmt.ExecContext(ctx,
			n.ID, n.Title, n.Message, string(n.Type), boolToInt(n.IsRead),
			readAt, n.CreatedAt.UTC(), i,
		)
		if err != nil {
			return fmt.Errorf("inserting notification %s: %w", n.ID, err)
		}
	}

	return tx.Commit()
}

// RecentNotifications returns up to limit cached notifications, newest first.
func (s *SQLiteStore) RecentNotifications(ctx context.Context, limit int) ([]model.Notification, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, title, message, type, is_read, read_at, created_at
		FROM notifications ORDER BY position LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	var list []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

// ClearNotifications empties the notification cache.
func (s *SQLiteStore) ClearNotifications(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM notifications"); err != nil {
		return fmt.Errorf("clearing notifications: %w", err)
	}
	return nil
}

// scanNotification scans a notification row from a sqlx.Rows result set.
func scanNotification(rows *sqlx.Rows) (model.Notification, error) {
	var (
		n       model.Notification
		typ     string
		readInt int
		readAt  sql.NullTime
	)

	err := rows.Scan(&n.ID, &n.Title, &n.Message, &typ, &readInt, &readAt, &n.CreatedAt)
	if err != nil {
		return model.Notification{}, fmt.Errorf("scanning notification row: %w", err)
	}

	n.Type = model.NotificationType(typ)
	n.IsRead = readInt != 0
	if readAt.Valid {
		t := readAt.Time
		n.ReadAt = &t
	}
	return n, nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

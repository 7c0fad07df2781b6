package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sakif/snippethub/internal/apperror"
	"github.com/sakif/snippethub/internal/repository"
)

// compile-time check that *DB implements repository.SessionRepository
var _ repository.SessionRepository = (*DB)(nil)

// Load returns the stored session with its cookies.
//
// Cookies whose expiry has passed are skipped; the backend would reject them
// anyway and the cookie jar would drop them on the first request.
func (db *DB) Load(ctx context.Context) (*repository.StoredSession, error) {
	s := &repository.StoredSession{}
	err := db.conn.QueryRowContext(ctx,
		`SELECT user_id, username, role, saved_at FROM session WHERE id = 1`,
	).Scan(&s.User.ID, &s.User.Username, &s.User.Role, &s.SavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("session", "1")
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading session: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT name, value, path, domain, expires, secure, http_only
		 FROM session_cookies WHERE session_id = 1 ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading session cookies: %w", err)
	}
	// ALWAYS close rows, or the connection is never returned to the pool.
	defer rows.Close()

	now := time.Now()
	for rows.Next() {
		var (
			c       http.Cookie
			expires sql.NullTime
		)
		if err := rows.Scan(&c.Name, &c.Value, &c.Path, &c.Domain, &expires, &c.Secure, &c.HttpOnly); err != nil {
			return nil, fmt.Errorf("sqlite: scanning session cookie: %w", err)
		}
		if expires.Valid {
			if !expires.Time.After(now) {
				continue
			}
			c.Expires = expires.Time
		}
		s.Cookies = append(s.Cookies, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating session cookies: %w", err)
	}

	return s, nil
}

// Save replaces the stored session in one transaction, so a crash never
// leaves a user without cookies or cookies of another user.
func (db *DB) Save(ctx context.Context, s *repository.StoredSession) error {
	if s.SavedAt.IsZero() {
		s.SavedAt = time.Now()
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin save session: %w", err)
	}
	// Rollback after Commit is a no-op, so deferring it is always safe.
	defer tx.Rollback()

	if err := clearTx(ctx, tx); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO session (id, user_id, username, role, saved_at) VALUES (1, ?, ?, ?, ?)`,
		s.User.ID, s.User.Username, s.User.Role, s.SavedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting session for user %d: %w", s.User.ID, err)
	}

	for _, c := range s.Cookies {
		var expires sql.NullTime
		if !c.Expires.IsZero() {
			expires = sql.NullTime{Time: c.Expires, Valid: true}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO session_cookies
			 (session_id, name, value, path, domain, expires, secure, http_only)
			 VALUES (1, ?, ?, ?, ?, ?, ?, ?)`,
			c.Name, c.Value, c.Path, c.Domain, expires, c.Secure, c.HttpOnly,
		)
		if err != nil {
			return fmt.Errorf("sqlite: inserting cookie %s: %w", c.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit save session: %w", err)
	}
	return nil
}

// Clear deletes the stored session and its cookies.
func (db *DB) Clear(ctx context.Context) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin clear session: %w", err)
	}
	defer tx.Rollback()

	if err := clearTx(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit clear session: %w", err)
	}
	return nil
}

// clearTx deletes cookies explicitly. PRAGMA foreign_keys is per connection,
// so the cascade cannot be relied on for every connection of the pool.
func clearTx(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM session_cookies WHERE session_id = 1`); err != nil {
		return fmt.Errorf("sqlite: clearing session cookies: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM session WHERE id = 1`); err != nil {
		return fmt.Errorf("sqlite: clearing session: %w", err)
	}
	return nil
}

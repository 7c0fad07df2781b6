// Package sqlite implements the repository interfaces on SQLite.
//
// The client stores a single thing here: the auth session, so that a
// restarted CLI is still signed in.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite, so the CLI cross-compiles without
// CGo and tests can use ":memory:" without any setup.
package sqlite

import (
	"database/sql"
	"fmt"

	// registers the "sqlite" driver with database/sql
	_ "modernc.org/sqlite"
)

// DB implements repository.SessionRepository.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath and migrates it. ":memory:" gives a
// private database that is gone after Close.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// sql.Open is lazy; surface a bad path here rather than on first use.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets a second CLI process read the session while another saves it.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Cookies are deleted together with their session.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	// Every connection to ":memory:" opens its own empty database, so an
	// in-memory DB must stay on a single connection.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the tables. Every step is idempotent.
func (db *DB) migrate() error {
	// Phase 1: the session row. id is pinned to 1 so the table can never
	// hold more than one session.
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS session (
			id        INTEGER PRIMARY KEY CHECK (id = 1),
			user_id   INTEGER NOT NULL,
			username  TEXT NOT NULL,
			saved_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating session table: %w", err)
	}

	// Phase 1: cookies set by the backend, one row per cookie.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS session_cookies (
			session_id INTEGER NOT NULL REFERENCES session(id) ON DELETE CASCADE,
			name       TEXT NOT NULL,
			value      TEXT NOT NULL,
			path       TEXT NOT NULL DEFAULT '',
			domain     TEXT NOT NULL DEFAULT '',
			expires    DATETIME,
			secure     INTEGER NOT NULL DEFAULT 0,
			http_only  INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (session_id, name)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating session_cookies table: %w", err)
	}

	// Phase 2: the user's role.
	if err := db.addColumnIfNotExists("session", "role",
		"TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("adding role to session: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column unless pragma_table_info already lists
// it, since ALTER TABLE ADD COLUMN fails on an existing column.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil // column already exists
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}

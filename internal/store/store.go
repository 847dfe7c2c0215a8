// Package store persists accounts, favorites, recently played items and
// watch progress in SQLite. Every list is scoped to one user, identified by
// username and portal URL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure Go driver

	"xtplay/internal/media"
)

const (
	// MaxRecents is how many recently played items are kept per user.
	MaxRecents = 50
	// MaxProgress is how many progress records are kept per user.
	MaxProgress = 30
	// ContinueWatchingLimit is how many progress records are listed.
	ContinueWatchingLimit = 20
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// User scopes per-user records.
type User struct {
	Username string
	Portal   string
}

// UserOf returns the scope of an account.
func UserOf(a media.Account) User {
	return User{Username: a.Username, Portal: a.PortalURL}
}

// Store is a SQLite-backed store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and migrates it.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer; the CLI never needs more.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) stamp() int64 {
	return s.now().UnixMilli()
}

var migrations = []string{
	`CREATE TABLE accounts (
		username      TEXT NOT NULL,
		portal        TEXT NOT NULL,
		password      TEXT NOT NULL,
		playlist_name TEXT NOT NULL DEFAULT '',
		saved_at      INTEGER NOT NULL,
		last_used     INTEGER NOT NULL,
		PRIMARY KEY (username, portal)
	);
	CREATE TABLE active_account (
		id       INTEGER PRIMARY KEY CHECK (id = 1),
		username TEXT NOT NULL,
		portal   TEXT NOT NULL
	);
	CREATE TABLE favorites (
		username    TEXT NOT NULL,
		portal      TEXT NOT NULL,
		type        TEXT NOT NULL,
		item_id     INTEGER NOT NULL,
		name        TEXT NOT NULL,
		icon        TEXT NOT NULL DEFAULT '',
		rating      REAL NOT NULL DEFAULT 0,
		category_id TEXT NOT NULL DEFAULT '',
		extension   TEXT NOT NULL DEFAULT '',
		added_at    INTEGER NOT NULL,
		PRIMARY KEY (username, portal, type, item_id)
	);
	CREATE TABLE recents (
		username    TEXT NOT NULL,
		portal      TEXT NOT NULL,
		type        TEXT NOT NULL,
		item_id     INTEGER NOT NULL,
		name        TEXT NOT NULL,
		icon        TEXT NOT NULL DEFAULT '',
		rating      REAL NOT NULL DEFAULT 0,
		category_id TEXT NOT NULL DEFAULT '',
		extension   TEXT NOT NULL DEFAULT '',
		played_at   INTEGER NOT NULL,
		PRIMARY KEY (username, portal, type, item_id)
	);
	CREATE TABLE progress (
		username      TEXT NOT NULL,
		portal        TEXT NOT NULL,
		type          TEXT NOT NULL,
		item_id       INTEGER NOT NULL,
		name          TEXT NOT NULL,
		icon          TEXT NOT NULL DEFAULT '',
		rating        REAL NOT NULL DEFAULT 0,
		category_id   TEXT NOT NULL DEFAULT '',
		extension     TEXT NOT NULL DEFAULT '',
		season        INTEGER NOT NULL DEFAULT 0,
		episode       INTEGER NOT NULL DEFAULT 0,
		episode_id    INTEGER NOT NULL DEFAULT 0,
		episode_title TEXT NOT NULL DEFAULT '',
		position      REAL NOT NULL,
		duration      REAL NOT NULL,
		updated_at    INTEGER NOT NULL,
		PRIMARY KEY (username, portal, type, item_id)
	);
	CREATE INDEX idx_recents_played ON recents(username, portal, played_at);
	CREATE INDEX idx_progress_updated ON progress(username, portal, updated_at);`,
}

// migrate applies pending migrations, tracked in PRAGMA user_version.
func (s *Store) migrate(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return err
	}
	for i := version; i < len(migrations); i++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// itemColumns are shared by favorites, recents and progress.
const itemColumns = "type, item_id, name, icon, rating, category_id, extension"

func scanItem(it *media.Item, typ *string) []any {
	return []any{typ, &it.ID, &it.Name, &it.Icon, &it.Rating, &it.CategoryID, &it.Extension}
}

func itemArgs(it media.Item) []any {
	return []any{it.Type.String(), it.ID, it.Name, it.Icon, it.Rating, it.CategoryID, it.Extension}
}

func parseType(it *media.Item, typ string) error {
	t, err := media.ParseContentType(typ)
	if err != nil {
		return err
	}
	it.Type = t
	return nil
}

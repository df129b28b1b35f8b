package keystore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/domveil/dbopen"
	"github.com/hazyhaar/domveil/keystore/watch"
)

// Schema for the keyword tables. keyword_meta.version is bumped on every
// Set so writers in other processes are detected.
const Schema = `
CREATE TABLE IF NOT EXISTS keywords (
	position INTEGER PRIMARY KEY,
	keyword  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS keyword_meta (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	version    INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
INSERT OR IGNORE INTO keyword_meta (id, version, updated_at) VALUES (1, 0, 0);
`

// SQLite stores keywords in an SQLite database.
type SQLite struct {
	db     *sql.DB
	owned  bool
	logger *slog.Logger
	poll   time.Duration
}

// SQLiteOption configures a SQLite store.
type SQLiteOption func(*SQLite)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) SQLiteOption {
	return func(s *SQLite) { s.logger = l }
}

// WithPollInterval sets how often Watch polls for changes. Default: 500ms.
func WithPollInterval(d time.Duration) SQLiteOption {
	return func(s *SQLite) { s.poll = d }
}

// OpenSQLite opens (and creates) the database at path.
func OpenSQLite(path string, opts ...SQLiteOption) (*SQLite, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("keystore: %w", err)
	}
	s := newSQLite(db, opts)
	s.owned = true
	return s, nil
}

// NewSQLite uses an already open database, creating the tables if needed.
func NewSQLite(db *sql.DB, opts ...SQLiteOption) (*SQLite, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("keystore: schema: %w", err)
	}
	return newSQLite(db, opts), nil
}

func newSQLite(db *sql.DB, opts []SQLiteOption) *SQLite {
	s := &SQLite{db: db, logger: slog.Default(), poll: 500 * time.Millisecond}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Close closes the database if OpenSQLite opened it.
func (s *SQLite) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) Get(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT keyword FROM keywords ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("keystore: get: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("keystore: scan: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *SQLite) Set(ctx context.Context, keywords []string) error {
	list := Normalize(keywords)
	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM keywords`); err != nil {
			return err
		}
		for i, k := range list {
			if _, err := tx.ExecContext(ctx, `INSERT INTO keywords (position, keyword) VALUES (?, ?)`, i, k); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE keyword_meta SET version = version + 1, updated_at = ? WHERE id = 1`,
			time.Now().UnixMilli())
		return err
	})
	if err != nil {
		return fmt.Errorf("keystore: set: %w", err)
	}
	s.logger.Debug("keystore: set", "keywords", len(list))
	return nil
}

// Version is the number of Set calls the database has seen.
func (s *SQLite) Version(ctx context.Context) (int64, error) {
	return versionDetector(ctx, s.db)
}

var versionDetector = watch.MaxColumnDetector("keyword_meta", "version")

// Watch polls the keyword version and calls fn with the new list after
// each change, from this process or another one.
func (s *SQLite) Watch(ctx context.Context, fn func([]string)) error {
	w := watch.New(s.db, watch.Options{
		Interval: s.poll,
		Debounce: 100 * time.Millisecond,
		Detector: versionDetector,
		Logger:   s.logger,
	})
	w.OnChange(ctx, func() error {
		list, err := s.Get(ctx)
		if err != nil {
			return err
		}
		fn(list)
		return nil
	})
	return nil
}

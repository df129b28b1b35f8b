// Package watch polls an SQLite database for a version token and runs an
// action once the token has changed and stayed quiet for a debounce window.
//
//	w := watch.New(db, watch.Options{Interval: 500 * time.Millisecond, Detector: watch.PragmaDataVersion})
//	go w.OnChange(ctx, reload)
package watch

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// ChangeDetector reads a version token. Two different values mean
// something changed.
type ChangeDetector func(ctx context.Context, db *sql.DB) (int64, error)

// Options tunes a Watcher.
type Options struct {
	// Interval is the polling period. Default: 1s.
	Interval time.Duration
	// Debounce is the quiet period after a change before the action runs.
	// 0 runs it on the poll that saw the change.
	Debounce time.Duration
	// Detector defaults to PragmaDataVersion.
	Detector ChangeDetector
	Logger   *slog.Logger
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Detector == nil {
		o.Detector = PragmaDataVersion
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Stats are point-in-time counters.
type Stats struct {
	Checks  int64 `json:"checks"`
	Changes int64 `json:"changes"`
	Errors  int64 `json:"errors"`
	Reloads int64 `json:"reloads"`
}

// Watcher runs an action when the detector's token moves.
type Watcher struct {
	db   *sql.DB
	opts Options

	version atomic.Int64
	checks  atomic.Int64
	changes atomic.Int64
	errors  atomic.Int64
	reloads atomic.Int64
}

// New returns a Watcher. OnChange starts it.
func New(db *sql.DB, opts Options) *Watcher {
	opts.defaults()
	return &Watcher{db: db, opts: opts}
}

// Stats returns the counters.
func (w *Watcher) Stats() Stats {
	return Stats{
		Checks:  w.checks.Load(),
		Changes: w.changes.Load(),
		Errors:  w.errors.Load(),
		Reloads: w.reloads.Load(),
	}
}

// Version is the last token the action was run for.
func (w *Watcher) Version() int64 { return w.version.Load() }

// OnChange polls until ctx is done. A failing action leaves the version
// where it was, so the next poll retries it.
func (w *Watcher) OnChange(ctx context.Context, action func() error) {
	log := w.opts.Logger

	if v, err := w.opts.Detector(ctx, w.db); err != nil {
		log.Warn("watch: initial version check failed", "error", err)
	} else {
		w.version.Store(v)
	}

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	var debounce *time.Timer
	var debounceC <-chan time.Time
	pending := int64(-1)

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return

		case <-ticker.C:
			w.checks.Add(1)
			cur, err := w.opts.Detector(ctx, w.db)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.errors.Add(1)
				log.Warn("watch: version check failed", "error", err)
				continue
			}
			if cur == w.version.Load() || cur == pending {
				continue
			}
			w.changes.Add(1)
			pending = cur
			if w.opts.Debounce <= 0 {
				w.fire(action, pending)
				pending = -1
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.NewTimer(w.opts.Debounce)
			debounceC = debounce.C

		case <-debounceC:
			debounceC = nil
			if pending >= 0 {
				w.fire(action, pending)
				pending = -1
			}
		}
	}
}

func (w *Watcher) fire(action func() error, ver int64) {
	if err := action(); err != nil {
		w.errors.Add(1)
		w.opts.Logger.Error("watch: reload failed", "error", err, "version", ver)
		return
	}
	w.reloads.Add(1)
	w.version.Store(ver)
	w.opts.Logger.Debug("watch: reloaded", "version", ver)
}

// PragmaDataVersion changes whenever another connection commits to the
// database file.
func PragmaDataVersion(ctx context.Context, db *sql.DB) (int64, error) {
	var v int64
	err := db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v)
	return v, err
}

// MaxColumnDetector polls MAX(column) of table.
func MaxColumnDetector(table, column string) ChangeDetector {
	query := "SELECT COALESCE(MAX(" + quoteIdent(column) + "), 0) FROM " + quoteIdent(table)
	return func(ctx context.Context, db *sql.DB) (int64, error) {
		var v int64
		err := db.QueryRowContext(ctx, query).Scan(&v)
		return v, err
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

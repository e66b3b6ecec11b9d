// Package watch polls a SQLite database for a change token and runs an
// action, debounced, whenever the token moves. The changeview service uses
// it to refresh the known-pages snapshot after captures land.
//
//	w := watch.New(db, watch.Options{Detector: watch.QueryDetector(q)})
//	go w.OnChange(ctx, reload)
package watch

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ChangeDetector reads a token from the database; a different value than
// the previous call means the data changed.
type ChangeDetector func(ctx context.Context, db *sql.DB) (int64, error)

// Options tunes a Watcher.
type Options struct {
	// Interval between polls. Default: 1s.
	Interval time.Duration
	// Debounce is the quiet period required after a change before the
	// action runs. Zero runs it on the poll that saw the change.
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
	Checks   int64 `json:"checks"`
	Changes  int64 `json:"changes"`
	Errors   int64 `json:"errors"`
	Reloads  int64 `json:"reloads"`
	Observed int64 `json:"observed"`
}

// Watcher runs the poll loop. It is safe for concurrent use.
type Watcher struct {
	db   *sql.DB
	opts Options

	mu       sync.Mutex
	observed int64
	advanced chan struct{}

	checks  atomic.Int64
	changes atomic.Int64
	errs    atomic.Int64
	reloads atomic.Int64
}

// New creates a Watcher. Nothing runs until OnChange.
func New(db *sql.DB, opts Options) *Watcher {
	opts.defaults()
	return &Watcher{db: db, opts: opts, advanced: make(chan struct{})}
}

// Stats returns the current counters.
func (w *Watcher) Stats() Stats {
	return Stats{
		Checks:   w.checks.Load(),
		Changes:  w.changes.Load(),
		Errors:   w.errs.Load(),
		Reloads:  w.reloads.Load(),
		Observed: w.Version(),
	}
}

// Version returns the last token whose action succeeded.
func (w *Watcher) Version() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.observed
}

// OnChange blocks until ctx is done. The token is seeded on entry without
// running action. A failed action leaves the token unchanged, so the next
// poll retries it.
func (w *Watcher) OnChange(ctx context.Context, action func(context.Context) error) {
	log := w.opts.Logger

	if v, err := w.opts.Detector(ctx, w.db); err != nil {
		log.Warn("watch: initial check failed", "error", err)
	} else {
		w.advance(v)
	}

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	var (
		debounce *time.Timer
		fireCh   <-chan time.Time
		pending  int64
		waiting  bool
	)
	stopDebounce := func() {
		if debounce != nil {
			debounce.Stop()
		}
		fireCh = nil
	}
	defer stopDebounce()

	log.Debug("watch: started", "interval", w.opts.Interval, "debounce", w.opts.Debounce)
	for {
		select {
		case <-ctx.Done():
			log.Debug("watch: stopped")
			return

		case <-ticker.C:
			w.checks.Add(1)
			cur, err := w.opts.Detector(ctx, w.db)
			if err != nil {
				w.errs.Add(1)
				log.Warn("watch: check failed", "error", err)
				continue
			}
			if cur == w.Version() || (waiting && cur == pending) {
				continue
			}
			w.changes.Add(1)
			pending, waiting = cur, true
			if w.opts.Debounce <= 0 {
				w.run(ctx, action, pending)
				waiting = false
				continue
			}
			stopDebounce()
			debounce = time.NewTimer(w.opts.Debounce)
			fireCh = debounce.C

		case <-fireCh:
			fireCh = nil
			if waiting {
				w.run(ctx, action, pending)
				waiting = false
			}
		}
	}
}

// WaitForVersion blocks until an action has succeeded for a token >= target.
func (w *Watcher) WaitForVersion(ctx context.Context, target int64) error {
	for {
		w.mu.Lock()
		if w.observed >= target {
			w.mu.Unlock()
			return nil
		}
		ch := w.advanced
		w.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *Watcher) run(ctx context.Context, action func(context.Context) error, v int64) {
	start := time.Now()
	if err := action(ctx); err != nil {
		w.errs.Add(1)
		w.opts.Logger.Error("watch: action failed", "version", v, "error", err)
		return
	}
	w.reloads.Add(1)
	w.advance(v)
	w.opts.Logger.Debug("watch: action done", "version", v, "duration", time.Since(start))
}

func (w *Watcher) advance(v int64) {
	w.mu.Lock()
	w.observed = v
	close(w.advanced)
	w.advanced = make(chan struct{})
	w.mu.Unlock()
}

// PragmaDataVersion reads PRAGMA data_version, which moves when another
// connection commits to the same database file.
func PragmaDataVersion(ctx context.Context, db *sql.DB) (int64, error) {
	var v int64
	err := db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v)
	return v, err
}

// QueryDetector runs a query returning a single integer.
func QueryDetector(query string) ChangeDetector {
	return func(ctx context.Context, db *sql.DB) (int64, error) {
		var v int64
		err := db.QueryRowContext(ctx, query).Scan(&v)
		return v, err
	}
}

// MaxColumnDetector polls MAX(column) of table. Identifiers are quoted.
func MaxColumnDetector(table, column string) ChangeDetector {
	return QueryDetector("SELECT COALESCE(MAX(" + quoteIdent(column) + "), 0) FROM " + quoteIdent(table))
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

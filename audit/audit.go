// Package audit records who did what through which transport in an
// audit_log table. Entries are written synchronously with Log or batched in
// the background with LogAsync.
//
//	l := audit.NewSQLiteLogger(db)
//	if err := l.Init(); err != nil { ... }
//	defer l.Close()
//	endpoint = audit.Middleware(l, "annotate_change")(endpoint)
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/changeview/dbopen"
	"github.com/hazyhaar/changeview/idgen"
	"github.com/hazyhaar/changeview/kit"
)

// Entry statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Entry is one audited operation. Timestamp is unix milliseconds.
type Entry struct {
	EntryID    string `json:"entry_id"`
	Timestamp  int64  `json:"timestamp"`
	Action     string `json:"action"`
	Transport  string `json:"transport"`
	UserID     string `json:"user_id,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	Parameters string `json:"parameters,omitempty"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Logger is implemented by SQLiteLogger.
type Logger interface {
	Log(ctx context.Context, e *Entry) error
	LogAsync(e *Entry)
	Close() error
}

const schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	entry_id      TEXT PRIMARY KEY,
	timestamp     INTEGER NOT NULL,
	action        TEXT NOT NULL,
	transport     TEXT NOT NULL DEFAULT '',
	user_id       TEXT NOT NULL DEFAULT '',
	request_id    TEXT NOT NULL DEFAULT '',
	parameters    TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	duration_ms   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_audit_log_action ON audit_log(action, timestamp);
`

// Option configures a SQLiteLogger.
type Option func(*SQLiteLogger)

// WithIDGenerator sets the entry id generator. Default: idgen.New.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(l *SQLiteLogger) { l.newID = gen }
}

// WithLogger sets the logger used for write failures.
func WithLogger(logger *slog.Logger) Option {
	return func(l *SQLiteLogger) { l.logger = logger }
}

// WithBatch sets how many async entries are written per transaction and how
// long a partial batch may wait. Defaults: 32 entries, 500ms.
func WithBatch(size int, every time.Duration) Option {
	return func(l *SQLiteLogger) {
		if size > 0 {
			l.batchSize = size
		}
		if every > 0 {
			l.flushEvery = every
		}
	}
}

// SQLiteLogger writes entries to audit_log.
type SQLiteLogger struct {
	db         *sql.DB
	newID      idgen.Generator
	logger     *slog.Logger
	batchSize  int
	flushEvery time.Duration

	mu     sync.RWMutex
	closed bool
	ch     chan *Entry
	done   chan struct{}
}

// NewSQLiteLogger starts the background writer. Call Init before logging.
func NewSQLiteLogger(db *sql.DB, opts ...Option) *SQLiteLogger {
	l := &SQLiteLogger{
		db:         db,
		newID:      idgen.New,
		logger:     slog.Default(),
		batchSize:  32,
		flushEvery: 500 * time.Millisecond,
		done:       make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	l.ch = make(chan *Entry, l.batchSize*8)
	go l.loop()
	return l
}

// Init creates the audit_log table.
func (l *SQLiteLogger) Init() error {
	if _, err := l.db.Exec(schema); err != nil {
		return fmt.Errorf("audit: init: %w", err)
	}
	return nil
}

// Log fills e's defaults and writes it now.
func (l *SQLiteLogger) Log(ctx context.Context, e *Entry) error {
	l.fillDefaults(e)
	return dbopen.RunTx(ctx, l.db, func(tx *sql.Tx) error {
		return insert(ctx, tx, e)
	})
}

// LogAsync fills e's defaults and queues it. Entries are dropped, with a
// warning, when the queue is full or the logger is closed.
func (l *SQLiteLogger) LogAsync(e *Entry) {
	l.fillDefaults(e)

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.logger.Warn("audit: logger closed, entry dropped", "action", e.Action)
		return
	}
	select {
	case l.ch <- e:
	default:
		l.logger.Warn("audit: queue full, entry dropped", "action", e.Action)
	}
}

// Close flushes queued entries and stops the writer. It is idempotent.
func (l *SQLiteLogger) Close() error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.ch)
	}
	l.mu.Unlock()
	<-l.done
	return nil
}

// List returns the most recent entries, newest first. An empty action
// matches every entry.
func (l *SQLiteLogger) List(ctx context.Context, action string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT entry_id, timestamp, action, transport, user_id, request_id,
		       parameters, status, error_message, duration_ms
		FROM audit_log
		WHERE ? = '' OR action = ?
		ORDER BY timestamp DESC, entry_id DESC
		LIMIT ?`, action, action, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.EntryID, &e.Timestamp, &e.Action, &e.Transport, &e.UserID, &e.RequestID,
			&e.Parameters, &e.Status, &e.Error, &e.DurationMs); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (l *SQLiteLogger) fillDefaults(e *Entry) {
	if e.EntryID == "" {
		e.EntryID = l.newID()
	}
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().UnixMilli()
	}
	if e.Transport == "" {
		e.Transport = kit.TransportHTTP
	}
	if e.Status == "" {
		e.Status = StatusSuccess
		if e.Error != "" {
			e.Status = StatusError
		}
	}
}

func (l *SQLiteLogger) loop() {
	defer close(l.done)
	ticker := time.NewTicker(l.flushEvery)
	defer ticker.Stop()

	batch := make([]*Entry, 0, l.batchSize)
	for {
		select {
		case e, ok := <-l.ch:
			if !ok {
				l.flush(batch)
				return
			}
			batch = append(batch, e)
			if len(batch) >= l.batchSize {
				l.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				l.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (l *SQLiteLogger) flush(batch []*Entry) {
	if len(batch) == 0 {
		return
	}
	ctx := context.Background()
	err := dbopen.RunTx(ctx, l.db, func(tx *sql.Tx) error {
		for _, e := range batch {
			if err := insert(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		l.logger.Error("audit: flush failed", "entries", len(batch), "error", err)
	}
}

func insert(ctx context.Context, tx *sql.Tx, e *Entry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_log
			(entry_id, timestamp, action, transport, user_id, request_id,
			 parameters, status, error_message, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.EntryID, e.Timestamp, e.Action, e.Transport, e.UserID, e.RequestID,
		e.Parameters, e.Status, e.Error, e.DurationMs)
	return err
}

// FromContext builds an entry for action from the kit values in ctx.
func FromContext(ctx context.Context, action string, params any, start time.Time, err error) *Entry {
	e := &Entry{
		Action:     action,
		Transport:  kit.GetTransport(ctx),
		UserID:     kit.GetUser(ctx),
		RequestID:  kit.GetRequestID(ctx),
		DurationMs: time.Since(start).Milliseconds(),
	}
	if params != nil {
		if b, mErr := json.Marshal(params); mErr == nil {
			e.Parameters = string(b)
		}
	}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// Middleware audits every call of the wrapped endpoint asynchronously.
func Middleware(l Logger, action string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			l.LogAsync(FromContext(ctx, action, req, start, err))
			return resp, err
		}
	}
}

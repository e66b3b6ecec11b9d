// Package trace registers a "sqlite-trace" database/sql driver that wraps
// modernc.org/sqlite and reports every Exec and Query: it logs them with
// slog (debug, warn when slow, error on failure) tagged with the request id
// from the context, and feeds a Collector when one is set.
//
//	trace.SetCollector(trace.NewCollector(64))
//	db, err := dbopen.Open(path, dbopen.WithDriver(trace.DriverName))
package trace

import (
	"database/sql"
	"log/slog"
	"sync"
	"time"

	sqlite "modernc.org/sqlite"
)

// DriverName is the name the tracing driver is registered under.
const DriverName = "sqlite-trace"

// Entry is one traced statement.
type Entry struct {
	RequestID  string `json:"request_id,omitempty"`
	Op         string `json:"op"`
	Query      string `json:"query"`
	DurationUs int64  `json:"duration_us"`
	Error      string `json:"error,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

var (
	mu        sync.RWMutex
	collector *Collector
	logger    = slog.Default()
	slow      = 100 * time.Millisecond
)

// SetCollector sets the collector fed by the driver. nil disables it.
func SetCollector(c *Collector) {
	mu.Lock()
	collector = c
	mu.Unlock()
}

// SetLogger sets the logger used for statement logs.
func SetLogger(l *slog.Logger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}

// SetSlowThreshold sets the duration above which statements log at warn.
func SetSlowThreshold(d time.Duration) {
	mu.Lock()
	slow = d
	mu.Unlock()
}

func settings() (*Collector, *slog.Logger, time.Duration) {
	mu.RLock()
	defer mu.RUnlock()
	return collector, logger, slow
}

func init() {
	sql.Register(DriverName, &TracingDriver{Driver: &sqlite.Driver{}})
}

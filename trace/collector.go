package trace

import (
	"sync"

	"go.uber.org/atomic"
)

// Stats summarizes the statements seen by a Collector.
type Stats struct {
	Queries  int64   `json:"queries"`
	Execs    int64   `json:"execs"`
	Errors   int64   `json:"errors"`
	Slow     int64   `json:"slow"`
	Recent   []Entry `json:"recent"`
	Capacity int     `json:"capacity"`
}

// Collector counts statements and keeps the most recent slow or failed
// ones in a ring.
type Collector struct {
	queries atomic.Int64
	execs   atomic.Int64
	errors  atomic.Int64
	slow    atomic.Int64

	mu   sync.Mutex
	ring []Entry
	next int
	full bool
}

// NewCollector keeps up to capacity notable entries (default 64).
func NewCollector(capacity int) *Collector {
	if capacity <= 0 {
		capacity = 64
	}
	return &Collector{ring: make([]Entry, capacity)}
}

func (c *Collector) record(e Entry, isSlow bool) {
	if e.Op == "Exec" {
		c.execs.Inc()
	} else {
		c.queries.Inc()
	}
	if e.Error != "" {
		c.errors.Inc()
	}
	if isSlow {
		c.slow.Inc()
	}
	if e.Error == "" && !isSlow {
		return
	}

	c.mu.Lock()
	c.ring[c.next] = e
	c.next = (c.next + 1) % len(c.ring)
	if c.next == 0 {
		c.full = true
	}
	c.mu.Unlock()
}

// Stats returns the counters and the notable entries, newest first.
func (c *Collector) Stats() Stats {
	c.mu.Lock()
	n := c.next
	if c.full {
		n = len(c.ring)
	}
	recent := make([]Entry, 0, n)
	for i := 1; i <= n; i++ {
		recent = append(recent, c.ring[(c.next-i+len(c.ring))%len(c.ring)])
	}
	c.mu.Unlock()

	return Stats{
		Queries:  c.queries.Load(),
		Execs:    c.execs.Load(),
		Errors:   c.errors.Load(),
		Slow:     c.slow.Load(),
		Recent:   recent,
		Capacity: len(c.ring),
	}
}

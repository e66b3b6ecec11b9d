// Package capture takes snapshots of monitored pages, either with a plain
// HTTP GET or through a headless browser, and normalizes them into the
// title, sanitized HTML and markdown stored with each version.
package capture

import (
	"context"
	"time"
)

// Capture sources recorded on versions.
const (
	SourceHTTP    = "http"
	SourceBrowser = "browser"
	SourceManual  = "manual"
)

// Snapshot is one normalized capture of a page.
type Snapshot struct {
	URL        string    `json:"url"`
	StatusCode int       `json:"status_code"`
	Title      string    `json:"title"`
	HTML       string    `json:"html"`
	Markdown   string    `json:"markdown"`
	Hash       string    `json:"hash"`
	Source     string    `json:"source"`
	CapturedAt time.Time `json:"captured_at"`
}

// Capturer takes a snapshot of the page at url.
type Capturer interface {
	Capture(ctx context.Context, url string) (*Snapshot, error)
}

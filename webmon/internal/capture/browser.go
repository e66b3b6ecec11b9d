package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/changeview/urlguard"
)

// BrowserConfig configures the headless browser capturer.
type BrowserConfig struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	// Empty launches a local headless Chrome on first use.
	RemoteURL string
	// Timeout per capture, navigation included. Default: 45s.
	Timeout time.Duration
	// Validator defaults to urlguard.Validate.
	Validator urlguard.Validator
	Logger    *slog.Logger
}

func (c *BrowserConfig) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 45 * time.Second
	}
	if c.Validator == nil {
		c.Validator = urlguard.Validate
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Browser captures the rendered DOM of pages that need JavaScript.
type Browser struct {
	cfg  BrowserConfig
	norm *Normalizer

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

// NewBrowser creates a Browser capturer. Chrome is started lazily.
func NewBrowser(cfg BrowserConfig) *Browser {
	cfg.defaults()
	return &Browser{cfg: cfg, norm: NewNormalizer()}
}

// Capture opens url in a stealth tab and snapshots document.documentElement.
func (b *Browser) Capture(ctx context.Context, url string) (*Snapshot, error) {
	if err := b.cfg.Validator(url); err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	br, err := b.connect()
	if err != nil {
		return nil, err
	}

	page, err := stealth.Page(br)
	if err != nil {
		return nil, fmt.Errorf("capture: open tab: %w", err)
	}
	defer page.Close()

	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()
	p := page.Context(ctx)

	if err := p.Navigate(url); err != nil {
		return nil, fmt.Errorf("capture: navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		b.cfg.Logger.Warn("capture: wait load", "url", url, "error", err)
	}

	res, err := p.Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, fmt.Errorf("capture: read DOM: %w", err)
	}
	raw := []byte(res.Value.Str())

	snap := b.norm.Normalize(raw, url, SourceBrowser, 200)
	b.cfg.Logger.Debug("capture: rendered", "url", url, "size", len(raw), "hash", snap.Hash)
	return snap, nil
}

// Close shuts the browser down.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	var err error
	if b.browser != nil {
		err = b.browser.Close()
		b.browser = nil
	}
	if b.lnch != nil {
		b.lnch.Cleanup()
		b.lnch = nil
	}
	return err
}

func (b *Browser) connect() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("capture: browser is closed")
	}
	if b.browser != nil {
		return b.browser, nil
	}

	wsURL := b.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().Headless(true).Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("capture: launch chrome: %w", err)
		}
		wsURL = u
		b.lnch = l
		b.cfg.Logger.Info("capture: launched chrome", "url", wsURL)
	}

	br := rod.New().ControlURL(wsURL)
	if err := br.Connect(); err != nil {
		if b.lnch != nil {
			b.lnch.Cleanup()
			b.lnch = nil
		}
		return nil, fmt.Errorf("capture: connect chrome: %w", err)
	}
	b.browser = br
	return br, nil
}

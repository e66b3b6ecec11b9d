package capture

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/changeview/urlguard"
)

// HTTPConfig configures the HTTP capturer.
type HTTPConfig struct {
	// Timeout per capture. Default: 30s.
	Timeout time.Duration
	// MaxBytes caps the response body. Default: urlguard.MaxBody.
	MaxBytes  int64
	UserAgent string
	// Validator checks the page URL and every redirect target.
	// Default: urlguard.Validate.
	Validator urlguard.Validator
	Logger    *slog.Logger
}

func (c *HTTPConfig) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = urlguard.MaxBody
	}
	if c.UserAgent == "" {
		c.UserAgent = "changeview/1.0 (+page monitor)"
	}
	if c.Validator == nil {
		c.Validator = urlguard.Validate
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// HTTP captures pages with a single GET.
type HTTP struct {
	cfg    HTTPConfig
	client *http.Client
	norm   *Normalizer
}

// NewHTTP creates an HTTP capturer. Redirects are limited to five and each
// target goes through the validator.
func NewHTTP(cfg HTTPConfig) *HTTP {
	cfg.defaults()
	validate := cfg.Validator
	return &HTTP{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				if err := validate(req.URL.String()); err != nil {
					return fmt.Errorf("redirect blocked: %w", err)
				}
				return nil
			},
		},
		norm: NewNormalizer(),
	}
}

// Capture fetches url. Responses outside 2xx are errors.
func (h *HTTP) Capture(ctx context.Context, url string) (*Snapshot, error) {
	if err := h.cfg.Validator(url); err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("capture: new request: %w", err)
	}
	req.Header.Set("User-Agent", h.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("capture: get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("capture: %s: http %d", url, resp.StatusCode)
	}

	body, err := urlguard.ReadAll(resp.Body, h.cfg.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("capture: read body: %w", err)
	}

	snap := h.norm.Normalize(body, url, SourceHTTP, resp.StatusCode)
	h.cfg.Logger.Debug("capture: fetched", "url", url, "status", resp.StatusCode, "size", len(body), "hash", snap.Hash)
	return snap, nil
}

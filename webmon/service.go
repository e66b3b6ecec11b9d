// Package webmon is the changeview backend: it stores monitored pages and
// their captured versions, captures new versions over HTTP or through a
// headless browser, and serves the change view, a JSON API and MCP tools.
//
// Usage:
//
//	svc, err := webmon.New(cfg, logger)
//	defer svc.Close()
//	svc.Start(ctx)
//	http.ListenAndServe(cfg.HTTP.Addr, svc.Handler())
package webmon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/changeview/audit"
	"github.com/hazyhaar/changeview/changeurl"
	"github.com/hazyhaar/changeview/dbopen"
	"github.com/hazyhaar/changeview/idgen"
	"github.com/hazyhaar/changeview/kit"
	"github.com/hazyhaar/changeview/page"
	"github.com/hazyhaar/changeview/resolve"
	"github.com/hazyhaar/changeview/trace"
	"github.com/hazyhaar/changeview/urlguard"
	"github.com/hazyhaar/changeview/watch"
	"github.com/hazyhaar/changeview/webmon/internal/capture"
	"github.com/hazyhaar/changeview/webmon/internal/store"
)

// Option configures a Service.
type Option func(*Service)

// WithCapturer replaces the capturer built from the configuration.
func WithCapturer(c capture.Capturer) Option {
	return func(s *Service) { s.capturer = c }
}

// WithURLValidator replaces urlguard.Validate for page URLs and HTTP
// captures.
func WithURLValidator(v urlguard.Validator) Option {
	return func(s *Service) { s.validate = v }
}

// Service is the changeview backend. It implements navigate.Backend.
type Service struct {
	cfg      *Config
	store    *store.Store
	audit    *audit.SQLiteLogger
	capturer capture.Capturer
	norm     *capture.Normalizer
	validate urlguard.Validator
	watcher  *watch.Watcher
	logger   *slog.Logger
	newID    idgen.Generator
	sqlStats *trace.Collector

	refreshMu sync.Mutex
	mu        sync.RWMutex
	known     []page.Page

	handlerOnce sync.Once
	handler     http.Handler
}

// New opens the store and builds the capturer. cfg is completed with
// defaults in place.
func New(cfg *Config, logger *slog.Logger, opts ...Option) (*Service, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		cfg:      cfg,
		norm:     capture.NewNormalizer(),
		validate: urlguard.Validate,
		logger:   logger,
		newID:    idgen.New,
	}
	for _, o := range opts {
		o(s)
	}

	var dbOpts []dbopen.Option
	if cfg.Debug.SQLTrace {
		s.sqlStats = trace.NewCollector(0)
		trace.SetLogger(logger)
		trace.SetSlowThreshold(cfg.Debug.SlowQuery)
		trace.SetCollector(s.sqlStats)
		dbOpts = append(dbOpts, dbopen.WithDriver(trace.DriverName))
	}

	st, err := store.Open(cfg.DBPath, dbOpts...)
	if err != nil {
		return nil, fmt.Errorf("webmon: open store: %w", err)
	}
	s.store = st

	s.audit = audit.NewSQLiteLogger(st.DB, audit.WithIDGenerator(s.newID), audit.WithLogger(logger))
	if err := s.audit.Init(); err != nil {
		s.audit.Close()
		st.Close()
		return nil, err
	}

	if s.capturer == nil {
		s.capturer = s.buildCapturer()
	}
	s.watcher = watch.New(st.DB, watch.Options{
		Interval: cfg.Watch.Interval,
		Debounce: cfg.Watch.Debounce,
		Detector: watch.QueryDetector(store.ChangeQuery),
		Logger:   logger,
	})
	return s, nil
}

func (s *Service) buildCapturer() capture.Capturer {
	c := s.cfg.Capture
	if c.Mode == ModeBrowser {
		return capture.NewBrowser(capture.BrowserConfig{
			RemoteURL: c.RemoteURL,
			Timeout:   c.Timeout,
			Validator: s.validate,
			Logger:    s.logger,
		})
	}
	return capture.NewHTTP(capture.HTTPConfig{
		Timeout:   c.Timeout,
		MaxBytes:  c.MaxBytes,
		UserAgent: c.UserAgent,
		Validator: s.validate,
		Logger:    s.logger,
	})
}

// Start loads the known pages and launches the background loops: the
// store watcher that keeps them fresh and, when configured, periodic
// capture. Loops stop with ctx.
func (s *Service) Start(ctx context.Context) error {
	if err := s.RefreshKnownPages(ctx); err != nil {
		return err
	}
	go s.watcher.OnChange(ctx, s.RefreshKnownPages)
	if s.cfg.Capture.Interval > 0 {
		go s.captureLoop(ctx)
	}
	s.logger.Info("webmon: started", "db", s.cfg.DBPath, "capture_mode", s.cfg.Capture.Mode, "capture_interval", s.cfg.Capture.Interval)
	return nil
}

// Close releases the capturer, flushes the audit trail and closes the store.
func (s *Service) Close() error {
	if c, ok := s.capturer.(io.Closer); ok {
		if err := c.Close(); err != nil {
			s.logger.Warn("webmon: close capturer", "error", err)
		}
	}
	s.audit.Close()
	return s.store.Close()
}

// AuditLog returns the most recent audit entries for action (all when
// empty), newest first.
func (s *Service) AuditLog(ctx context.Context, action string, limit int) ([]audit.Entry, error) {
	return s.audit.List(ctx, action, limit)
}

// Watcher exposes the known-pages watcher (tests, admin).
func (s *Service) Watcher() *watch.Watcher {
	return s.watcher
}

// KnownPages returns the latest pages snapshot with versions, title order.
func (s *Service) KnownPages() []page.Page {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.known
}

// RefreshKnownPages reloads the known-pages snapshot from the store.
func (s *Service) RefreshKnownPages(ctx context.Context) error {
	// Serialized so a slow read never overwrites a newer snapshot.
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	pages, err := s.store.ListPagesWithVersions(ctx)
	if err != nil {
		return fmt.Errorf("webmon: refresh known pages: %w", err)
	}
	s.mu.Lock()
	s.known = pages
	s.mu.Unlock()
	s.logger.Debug("webmon: known pages refreshed", "pages", len(pages))
	return nil
}

// CreatePage registers a page to monitor.
func (s *Service) CreatePage(ctx context.Context, title, rawURL string) (*page.Page, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidInput)
	}
	if err := s.validate(rawURL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	title = strings.TrimSpace(capture.PlainText(title))
	if title == "" {
		title = rawURL
	}

	p := &page.Page{UUID: s.newID(), Title: title, URL: rawURL}
	if err := s.store.InsertPage(ctx, p); err != nil {
		return nil, fmt.Errorf("webmon: insert page: %w", err)
	}
	s.logger.Info("webmon: page created", "page_id", p.UUID, "url", rawURL)
	s.refreshAfterWrite(ctx)
	return p, nil
}

// GetPage returns the page with its versions, or page.ErrNotFound.
func (s *Service) GetPage(ctx context.Context, pageID string) (*page.Page, error) {
	p, err := s.store.GetPage(ctx, pageID)
	if err != nil {
		return nil, fmt.Errorf("webmon: get page: %w", err)
	}
	if p == nil {
		return nil, page.ErrNotFound
	}
	return p, nil
}

// ListPages returns every page, title order, without versions.
func (s *Service) ListPages(ctx context.Context) ([]page.Page, error) {
	pages, err := s.store.ListPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("webmon: list pages: %w", err)
	}
	if pages == nil {
		pages = []page.Page{}
	}
	return pages, nil
}

// VersionContent returns the stored body of a version of pageID.
func (s *Service) VersionContent(ctx context.Context, pageID, versionID string) (*store.Content, error) {
	p, err := s.GetPage(ctx, pageID)
	if err != nil {
		return nil, err
	}
	if _, ok := p.FindVersion(versionID); !ok {
		return nil, page.ErrNotFound
	}
	c, err := s.store.GetContent(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("webmon: get content: %w", err)
	}
	if c == nil {
		return nil, page.ErrNotFound
	}
	return c, nil
}

// AnnotateChange stores an annotation on the change from..to of a page.
// Both versions must belong to the page. Markup is stripped from the
// author and notes; the author defaults to the authenticated user.
func (s *Service) AnnotateChange(ctx context.Context, pageUUID, fromUUID, toUUID string, a page.Annotation) (*page.AnnotationResult, error) {
	p, err := s.GetPage(ctx, pageUUID)
	if err != nil {
		return nil, err
	}
	if _, ok := p.FindVersion(fromUUID); !ok {
		return nil, fmt.Errorf("%w: unknown from version %q", page.ErrInvalidChange, fromUUID)
	}
	if _, ok := p.FindVersion(toUUID); !ok {
		return nil, fmt.Errorf("%w: unknown to version %q", page.ErrInvalidChange, toUUID)
	}
	if a.Significance < 0 || a.Significance > 1 {
		return nil, fmt.Errorf("%w: significance must be within [0, 1]", ErrInvalidInput)
	}

	a.Author = strings.TrimSpace(capture.PlainText(a.Author))
	if a.Author == "" {
		a.Author = kit.GetUser(ctx)
	}
	a.Notes = strings.TrimSpace(capture.PlainText(a.Notes))
	labels := a.Labels[:0:0]
	for _, l := range a.Labels {
		if l = strings.TrimSpace(capture.PlainText(l)); l != "" {
			labels = append(labels, l)
		}
	}
	a.Labels = labels

	res := &page.AnnotationResult{
		ID:         s.newID(),
		PageUUID:   p.UUID,
		FromUUID:   fromUUID,
		ToUUID:     toUUID,
		Annotation: a,
	}
	if err := s.store.InsertAnnotation(ctx, res); err != nil {
		return nil, fmt.Errorf("webmon: insert annotation: %w", err)
	}
	s.logger.Info("webmon: change annotated", "page_id", p.UUID, "from", fromUUID, "to", toUUID, "count", res.Count)
	return res, nil
}

// ListAnnotations returns the annotations of the change named by token.
func (s *Service) ListAnnotations(ctx context.Context, pageID, token string) ([]page.AnnotationResult, error) {
	from, to, err := tokenPair(token)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetPage(ctx, pageID); err != nil {
		return nil, err
	}
	list, err := s.store.ListAnnotations(ctx, pageID, from, to)
	if err != nil {
		return nil, fmt.Errorf("webmon: list annotations: %w", err)
	}
	if list == nil {
		list = []page.AnnotationResult{}
	}
	return list, nil
}

// tokenPair splits a change token that must name both versions.
func tokenPair(token string) (from, to string, err error) {
	rng := changeurl.Decode(token)
	if rng.FromID == "" || rng.ToID == "" {
		return "", "", fmt.Errorf("%w: token %q must name two versions", page.ErrInvalidChange, token)
	}
	if from, err = idgen.Parse(rng.FromID); err != nil {
		return "", "", fmt.Errorf("%w: %v", page.ErrInvalidChange, err)
	}
	if to, err = idgen.Parse(rng.ToID); err != nil {
		return "", "", fmt.Errorf("%w: %v", page.ErrInvalidChange, err)
	}
	return from, to, nil
}

// Resolution is the JSON form of a change resolution.
type Resolution struct {
	PageUUID string `json:"page_uuid"`
	Token    string `json:"token"`
	// Status is "pair", "redirect" or "no_versions".
	Status string        `json:"status"`
	From   *page.Version `json:"from,omitempty"`
	To     *page.Version `json:"to,omitempty"`
	// Location is the corrected page path when Status is "redirect".
	Location string `json:"location,omitempty"`
}

// ResolveChange resolves token against the history of pageID.
func (s *Service) ResolveChange(ctx context.Context, pageID, token string) (*Resolution, error) {
	p, err := s.GetPage(ctx, pageID)
	if err != nil {
		return nil, err
	}
	out := &Resolution{PageUUID: p.UUID, Token: token}
	switch r := resolve.ResolveToken(p.Versions, token).(type) {
	case resolve.Pair:
		to := r.To
		out.Status, out.From, out.To = "pair", r.From, &to
	case resolve.Redirect:
		from, to := r.From, r.To
		out.Status, out.From, out.To = "redirect", &from, &to
		out.Location = changeurl.PagePath(p.UUID, r.Token())
	default:
		out.Status = "no_versions"
	}
	return out, nil
}

// CaptureResult reports whether a capture produced a new version.
type CaptureResult struct {
	Version *page.Version `json:"version"`
	// Changed is false when the content matched the latest version, in
	// which case Version is that latest version.
	Changed bool `json:"changed"`
}

// Capture snapshots the page now and records a version if its content
// differs from the latest one.
func (s *Service) Capture(ctx context.Context, pageID string) (*CaptureResult, error) {
	p, err := s.GetPage(ctx, pageID)
	if err != nil {
		return nil, err
	}
	snap, err := s.capturer.Capture(ctx, p.URL)
	if err != nil {
		return nil, fmt.Errorf("webmon: capture %s: %w", p.URL, err)
	}
	return s.record(ctx, p.UUID, snap)
}

// ManualVersion is a version submitted through the API instead of captured.
type ManualVersion struct {
	HTML       string    `json:"html"`
	Title      string    `json:"title,omitempty"`
	CapturedAt time.Time `json:"captured_at,omitempty"`
}

// AddVersion records submitted HTML as a version of pageID, with the same
// normalization and deduplication as a capture.
func (s *Service) AddVersion(ctx context.Context, pageID string, in ManualVersion) (*CaptureResult, error) {
	if strings.TrimSpace(in.HTML) == "" {
		return nil, fmt.Errorf("%w: html is required", ErrInvalidInput)
	}
	p, err := s.GetPage(ctx, pageID)
	if err != nil {
		return nil, err
	}
	snap := s.norm.Normalize([]byte(in.HTML), p.URL, capture.SourceManual, 0)
	if in.Title != "" {
		snap.Title = capture.PlainText(in.Title)
	}
	if !in.CapturedAt.IsZero() {
		snap.CapturedAt = in.CapturedAt.UTC()
	}
	return s.record(ctx, p.UUID, snap)
}

func (s *Service) record(ctx context.Context, pageID string, snap *capture.Snapshot) (*CaptureResult, error) {
	latest, err := s.store.LatestVersion(ctx, pageID)
	if err != nil {
		return nil, fmt.Errorf("webmon: latest version: %w", err)
	}
	if latest != nil && latest.ContentHash == snap.Hash {
		s.logger.Debug("webmon: capture unchanged", "page_id", pageID, "version", latest.UUID)
		return &CaptureResult{Version: latest, Changed: false}, nil
	}

	v := &page.Version{
		UUID:        s.newID(),
		PageUUID:    pageID,
		CapturedAt:  snap.CapturedAt,
		Title:       snap.Title,
		ContentHash: snap.Hash,
		StatusCode:  snap.StatusCode,
		Source:      snap.Source,
	}
	if err := s.store.InsertVersion(ctx, v, store.Content{HTML: snap.HTML, Markdown: snap.Markdown}); err != nil {
		return nil, fmt.Errorf("webmon: insert version: %w", err)
	}
	s.logger.Info("webmon: version recorded", "page_id", pageID, "version", v.UUID, "source", v.Source)
	s.refreshAfterWrite(ctx)
	return &CaptureResult{Version: v, Changed: true}, nil
}

// refreshAfterWrite updates the known pages without waiting for the
// watcher. A failed refresh is only logged.
func (s *Service) refreshAfterWrite(ctx context.Context) {
	if err := s.RefreshKnownPages(ctx); err != nil {
		s.logger.Warn("webmon: known pages refresh after write", "error", err)
	}
}

// CaptureAll captures every page once. Failures are logged and counted.
func (s *Service) CaptureAll(ctx context.Context) (changed, failed int) {
	pages, err := s.store.ListPages(ctx)
	if err != nil {
		s.logger.Error("webmon: capture all: list pages", "error", err)
		return 0, 0
	}
	for _, p := range pages {
		if ctx.Err() != nil {
			break
		}
		res, err := s.Capture(ctx, p.UUID)
		if err != nil {
			failed++
			s.logger.Warn("webmon: capture failed", "page_id", p.UUID, "error", err)
			continue
		}
		if res.Changed {
			changed++
		}
	}
	return changed, failed
}

func (s *Service) captureLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Capture.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			changed, failed := s.CaptureAll(ctx)
			s.logger.Info("webmon: capture round", "changed", changed, "failed", failed)
		}
	}
}

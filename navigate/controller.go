package navigate

import (
	"context"
	"log/slog"
	"sync"

	"go.uber.org/atomic"

	"github.com/hazyhaar/changeview/changeurl"
	"github.com/hazyhaar/changeview/page"
	"github.com/hazyhaar/changeview/resolve"
)

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithKnownPages seeds the known-pages collection (see SetKnownPages).
func WithKnownPages(pages []page.Page) Option {
	return func(c *Controller) { c.known = pages }
}

// Controller is the navigation state machine for the change view.
// It is safe for concurrent use; collaborators are always called without
// the internal lock held, so they may call back into the controller.
type Controller struct {
	backend Backend
	nav     Navigator
	view    Renderer
	logger  *slog.Logger

	// gen identifies the authoritative load. Only bumped under mu.
	gen atomic.Uint64

	// mounted is the id of the live key subscription, 0 when unmounted.
	mounted  atomic.Uint64
	mountSeq atomic.Uint64

	mu      sync.Mutex
	state   State
	pageID  string
	token   string
	known   []page.Page
	page    *page.Page
	pair    *resolve.Pair
	err     error
	pending bool
	idle    chan struct{}

	// fromKnown marks a page taken from the known-pages snapshot.
	fromKnown bool

	release   func()
	stopMount func() bool
}

// Snapshot is a point-in-time copy of the controller state.
type Snapshot struct {
	State      State
	PageID     string
	Token      string
	Page       *page.Page
	Pair       *resolve.Pair
	Err        error
	Generation uint64
}

// New creates a Controller in the Idle state.
func New(backend Backend, nav Navigator, view Renderer, opts ...Option) *Controller {
	c := &Controller{
		backend: backend,
		nav:     nav,
		view:    view,
		logger:  slog.Default(),
		idle:    closedChan(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetKnownPages replaces the externally supplied pages collection. It is
// the sibling list used by the pager, and pages in it that carry versions
// are used instead of a backend fetch.
func (c *Controller) SetKnownPages(pages []page.Page) {
	c.mu.Lock()
	c.known = pages
	c.mu.Unlock()
}

// SetTarget is the "navigation target changed" input. A different page
// starts a new load; the same, already loaded page is re-resolved against
// the new token without fetching.
func (c *Controller) SetTarget(ctx context.Context, pageID, token string) {
	c.mu.Lock()
	c.token = token
	if pageID != c.pageID || c.state == StateIdle {
		run := c.beginLoadLocked(ctx, pageID)
		c.mu.Unlock()
		run()
		return
	}
	if c.page == nil {
		// Still loading or failed: the new token is used by the next commit.
		c.mu.Unlock()
		return
	}
	if c.fromKnown && !covers(c.page, token) {
		run := c.beginLoadLocked(ctx, pageID)
		c.mu.Unlock()
		run()
		return
	}
	// A new token supersedes outcomes of the previous one still on their
	// way to the collaborators.
	gen := c.gen.Inc()
	act := c.resolveLocked()
	c.mu.Unlock()
	c.apply(act)
	c.finish(gen)
}

// LoadPage loads pageID and resolves the current token once it arrives.
// A later LoadPage, SetTarget to another page, or Cancel makes any result
// of this load stale; stale results are discarded.
func (c *Controller) LoadPage(ctx context.Context, pageID string) {
	c.mu.Lock()
	run := c.beginLoadLocked(ctx, pageID)
	c.mu.Unlock()
	run()
}

// Retry reloads the current page, typically after a failed load.
func (c *Controller) Retry(ctx context.Context) {
	c.mu.Lock()
	pageID := c.pageID
	if pageID == "" {
		c.mu.Unlock()
		return
	}
	run := c.beginLoadLocked(ctx, pageID)
	c.mu.Unlock()
	run()
}

// NavigateToChange navigates to the change from..to of pg, or of the current
// page when pg is nil. Replace is reserved for corrective redirects. It
// returns the target path.
func (c *Controller) NavigateToChange(from, to *page.Version, pg *page.Page, replace bool) string {
	pageID := ""
	if pg != nil {
		pageID = pg.UUID
	} else {
		c.mu.Lock()
		pageID = c.pageID
		if c.page != nil {
			pageID = c.page.UUID
		}
		c.mu.Unlock()
	}

	target := changeurl.PagePath(pageID, changeurl.Encode(from, to))
	if replace {
		c.nav.Replace(target)
	} else {
		c.nav.Push(target)
	}
	return target
}

// Cancel abandons the current page, invalidates any load in flight, releases
// the key subscription and navigates to the root path.
func (c *Controller) Cancel() {
	c.mu.Lock()
	c.gen.Inc()
	c.state = StateIdle
	c.pageID = ""
	c.token = ""
	c.page = nil
	c.pair = nil
	c.err = nil
	c.settleLocked()
	c.mu.Unlock()

	c.Unmount()
	c.logger.Debug("navigate: cancelled")
	c.nav.Push(changeurl.RootPath)
}

// Wait blocks until no authoritative load is in flight or ctx is done. A
// load counts as in flight until the renderer or navigator has been called
// with its outcome.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:      c.state,
		PageID:     c.pageID,
		Token:      c.token,
		Page:       c.page,
		Pair:       c.pair,
		Err:        c.err,
		Generation: c.gen.Load(),
	}
}

// beginLoadLocked moves to Loading and returns the work to run once mu is
// released: either an immediate commit of a known page or the async fetch.
func (c *Controller) beginLoadLocked(ctx context.Context, pageID string) func() {
	gen := c.gen.Inc()
	c.pageID = pageID
	c.page = nil
	c.pair = nil
	c.err = nil
	c.state = StateLoading
	if !c.pending {
		c.pending = true
		c.idle = make(chan struct{})
	}

	// The snapshot may predate versions named by the token; those tokens
	// are resolved against the backend.
	c.fromKnown = false
	if known := findKnown(c.known, pageID); known != nil && covers(known, c.token) {
		c.fromKnown = true
		return func() { c.commit(gen, pageID, known, nil) }
	}

	return func() {
		if c.current(gen) {
			c.view.Loading(pageID)
		}
		go func() {
			p, err := c.backend.GetPage(ctx, pageID)
			c.commit(gen, pageID, p, err)
		}()
	}
}

func (c *Controller) commit(gen uint64, pageID string, p *page.Page, err error) {
	c.mu.Lock()
	if gen != c.gen.Load() || pageID != c.pageID {
		c.mu.Unlock()
		c.logger.Debug("navigate: stale load discarded", "page_id", pageID)
		return
	}

	if err == nil && p == nil {
		err = page.ErrNotFound
	}
	if err != nil {
		c.state = StateFailed
		c.err = err
		c.mu.Unlock()
		c.logger.Warn("navigate: load failed", "page_id", pageID, "error", err)
		if c.current(gen) {
			c.view.Failed(pageID, err)
		} else {
			c.logger.Debug("navigate: superseded outcome dropped", "state", StateFailed.String())
		}
		c.finish(gen)
		return
	}

	c.page = p
	act := c.resolveLocked()
	c.mu.Unlock()
	c.apply(act)
	c.finish(gen)
}

// finish marks the load settled once its collaborators have run, unless a
// newer load took over in the meantime.
func (c *Controller) finish(gen uint64) {
	c.mu.Lock()
	if gen == c.gen.Load() {
		c.settleLocked()
	}
	c.mu.Unlock()
}

// current reports whether gen is still the authoritative generation.
func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen.Load()
}

// action is a collaborator call decided under the lock and run after it,
// unless gen has been superseded in between.
type action struct {
	gen    uint64
	state  State
	view   View
	target string
	page   *page.Page
}

func (c *Controller) resolveLocked() action {
	gen := c.gen.Load()
	switch r := resolve.ResolveToken(c.page.Versions, c.token).(type) {
	case resolve.Pair:
		c.state = StateDisplaying
		c.pair = &r
		return action{gen: gen, state: StateDisplaying, view: c.viewLocked(r)}
	case resolve.Redirect:
		c.state = StateRedirecting
		c.pair = nil
		return action{gen: gen, state: StateRedirecting, target: changeurl.PagePath(c.page.UUID, r.Token())}
	default:
		c.state = StateNoVersions
		c.pair = nil
		return action{gen: gen, state: StateNoVersions, page: c.page}
	}
}

func (c *Controller) apply(a action) {
	if a.state == StateRedirecting {
		c.logger.Debug("navigate: redirecting", "target", a.target)
	}
	if !c.current(a.gen) {
		c.logger.Debug("navigate: superseded outcome dropped", "state", a.state.String())
		return
	}
	switch a.state {
	case StateDisplaying:
		c.view.Display(a.view)
	case StateRedirecting:
		c.nav.Replace(a.target)
	case StateNoVersions:
		c.view.NoVersions(a.page)
	}
}

func (c *Controller) viewLocked(r resolve.Pair) View {
	p := c.page
	pageUUID := p.UUID
	return View{
		Page:  p,
		From:  r.From,
		To:    r.To,
		Pager: NewPager(c.known, pageUUID),
		Annotate: func(ctx context.Context, from, to *page.Version, a page.Annotation) (*page.AnnotationResult, error) {
			if from == nil || to == nil {
				return nil, page.ErrInvalidChange
			}
			return c.backend.AnnotateChange(ctx, pageUUID, from.UUID, to.UUID, a)
		},
		OnChangeSelectedVersions: func(from, to *page.Version, pg *page.Page, replace bool) {
			c.NavigateToChange(from, to, pg, replace)
		},
	}
}

func (c *Controller) settleLocked() {
	if c.pending {
		c.pending = false
		close(c.idle)
	}
}

func findKnown(pages []page.Page, pageID string) *page.Page {
	for i := range pages {
		if pages[i].UUID == pageID && pages[i].HasVersions() {
			p := pages[i]
			return &p
		}
	}
	return nil
}

// covers reports whether every version id named by token is in p.
func covers(p *page.Page, token string) bool {
	r := changeurl.Decode(token)
	for _, id := range []string{r.FromID, r.ToID} {
		if id == "" {
			continue
		}
		if _, ok := p.FindVersion(id); !ok {
			return false
		}
	}
	return true
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Package navigate drives the change view for one page: it loads the page
// from a backend, resolves the requested change token against the page
// history, and either renders the resolved pair or issues a corrective
// navigation.
//
// The controller is an explicit state machine fed by SetTarget (the
// "navigation target changed" input):
//
//	Idle → Loading → Displaying | Redirecting | NoVersions | Failed
//
// Usage:
//
//	h := navigate.NewHistory("/")
//	c := navigate.New(backend, h, renderer)
//	release := navigate.Follow(ctx, c, h)
//	defer release()
//	c.Mount(ctx, keys)
//	defer c.Unmount()
//	h.Push(changeurl.PagePath(pageID, ""))
package navigate

import (
	"context"

	"github.com/hazyhaar/changeview/page"
)

// State is the controller state.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateDisplaying
	StateRedirecting
	StateNoVersions
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateDisplaying:
		return "displaying"
	case StateRedirecting:
		return "redirecting"
	case StateNoVersions:
		return "no_versions"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Backend loads pages and stores annotations.
type Backend interface {
	// GetPage returns the page with its versions, most recent first.
	// It returns page.ErrNotFound for unknown pages.
	GetPage(ctx context.Context, pageID string) (*page.Page, error)
	AnnotateChange(ctx context.Context, pageUUID, fromUUID, toUUID string, a page.Annotation) (*page.AnnotationResult, error)
}

// Navigator moves the user to another path. Push adds a history entry,
// Replace overwrites the current one.
type Navigator interface {
	Push(path string)
	Replace(path string)
}

// Renderer is the rendering collaborator.
type Renderer interface {
	Loading(pageID string)
	Display(v View)
	NoVersions(p *page.Page)
	Failed(pageID string, err error)
}

// View is everything the renderer needs to show one change.
type View struct {
	Page *page.Page
	// From is nil when To is the earliest capture.
	From  *page.Version
	To    page.Version
	Pager Pager

	// Annotate stores an annotation for a change of this page.
	Annotate func(ctx context.Context, from, to *page.Version, a page.Annotation) (*page.AnnotationResult, error)
	// OnChangeSelectedVersions navigates to another change. A nil pg means
	// the page currently displayed.
	OnChangeSelectedVersions func(from, to *page.Version, pg *page.Page, replace bool)
}

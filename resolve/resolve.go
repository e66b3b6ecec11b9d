// Package resolve decides which two versions of a page to compare for a
// requested change, and how to correct a request that names versions the
// history does not contain.
//
// Resolution is pure and total: every input yields exactly one of Pair,
// Redirect or NoVersions.
package resolve

import (
	"github.com/hazyhaar/changeview/changeurl"
	"github.com/hazyhaar/changeview/page"
)

// Result is the outcome of a resolution. The concrete type is one of
// Pair, Redirect or NoVersions.
type Result interface {
	isResult()
}

// Pair is a valid change. From is nil when the change starts at the
// earliest capture and there is nothing to compare against.
type Pair struct {
	From *page.Version
	To   page.Version
}

// Redirect is the corrected change for an invalid or incomplete request.
// Callers navigate to it with a history replace, not a push.
type Redirect struct {
	From page.Version
	To   page.Version
}

// NoVersions means the page has no recorded versions at all.
type NoVersions struct{}

func (Pair) isResult()       {}
func (Redirect) isResult()   {}
func (NoVersions) isResult() {}

// Token is the change token of the corrected pair.
func (r Redirect) Token() string {
	return changeurl.Encode(&r.From, &r.To)
}

// Resolve picks the pair to display from versions, which must be ordered by
// capture time, most recent first.
//
// The request is invalid when toID does not match a version, or when fromID
// is set but does not match a version. An empty fromID with a valid toID is
// always valid and yields a Pair with a nil From.
func Resolve(versions []page.Version, fromID, toID string) Result {
	to := find(versions, toID)
	from := find(versions, fromID)

	if to != nil && (fromID == "" || from != nil) {
		return Pair{From: from, To: *to}
	}

	defaultTo := to
	if defaultTo == nil {
		if len(versions) == 0 {
			return NoVersions{}
		}
		defaultTo = &versions[0]
	}

	// Nearest strictly older capture, not the oldest one.
	defaultFrom := defaultTo
	for i := range versions {
		if versions[i].CapturedAt.Before(defaultTo.CapturedAt) {
			defaultFrom = &versions[i]
			break
		}
	}

	return Redirect{From: *defaultFrom, To: *defaultTo}
}

// ResolveToken decodes a change token and resolves it.
func ResolveToken(versions []page.Version, token string) Result {
	r := changeurl.Decode(token)
	return Resolve(versions, r.FromID, r.ToID)
}

func find(versions []page.Version, uuid string) *page.Version {
	if uuid == "" {
		return nil
	}
	for i := range versions {
		if versions[i].UUID == uuid {
			v := versions[i]
			return &v
		}
	}
	return nil
}

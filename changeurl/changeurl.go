// Package changeurl converts a pair of versions to and from the change token
// used in navigation paths ("<from>..<to>") and builds those paths.
package changeurl

import (
	"strings"

	"github.com/hazyhaar/changeview/page"
)

// Separator splits the from and to identities inside a change token.
const Separator = ".."

// RootPath is where the cancel affordance navigates to.
const RootPath = "/"

// Range is a decoded change token. Either side may be empty.
type Range struct {
	FromID string `json:"from_id"`
	ToID   string `json:"to_id"`
}

// Encode returns "<from.UUID>..<to.UUID>" when both versions are present and
// the empty string otherwise. Partial tokens are never produced.
func Encode(from, to *page.Version) string {
	if from == nil || to == nil {
		return ""
	}
	return from.UUID + Separator + to.UUID
}

// Decode splits a change token on the first separator. Without a separator
// the whole token is the to identity.
func Decode(token string) Range {
	from, to, ok := strings.Cut(token, Separator)
	if !ok {
		return Range{ToID: token}
	}
	return Range{FromID: from, ToID: to}
}

// PagePath is the navigation target for a page and a (possibly empty) token.
func PagePath(pageID, token string) string {
	return "/page/" + pageID + "/" + token
}

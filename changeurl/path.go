package changeurl

import "strings"

// ParsePath extracts the page identity and change token from a path built by
// PagePath. The token may be empty; "/page/{id}" without a trailing slash is
// accepted too.
func ParsePath(path string) (pageID, token string, ok bool) {
	rest, found := strings.CutPrefix(path, "/page/")
	if !found {
		return "", "", false
	}
	pageID, token, _ = strings.Cut(rest, "/")
	if pageID == "" || strings.Contains(token, "/") {
		return "", "", false
	}
	return pageID, token, true
}

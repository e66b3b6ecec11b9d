// Package page holds the data model shared by the change viewer: monitored
// pages, their captured versions and the annotations attached to a change
// between two versions.
//
// A Page is loaded and replaced as a unit. Its Versions are ordered by
// capture time, most recent first, and version UUIDs are unique within a page.
package page

import (
	"errors"
	"time"
)

// ErrNotFound is returned by backends when a page does not exist.
var ErrNotFound = errors.New("page: not found")

// ErrInvalidChange is returned when a from/to pair does not name two versions
// of the same page.
var ErrInvalidChange = errors.New("page: invalid change")

// Page is a monitored web resource and its snapshot history.
type Page struct {
	UUID     string    `json:"uuid"`
	Title    string    `json:"title"`
	URL      string    `json:"url"`
	Versions []Version `json:"versions,omitempty"`
}

// Version is one captured state of a page.
type Version struct {
	UUID        string    `json:"uuid"`
	PageUUID    string    `json:"page_uuid"`
	CapturedAt  time.Time `json:"captured_at"`
	Title       string    `json:"title,omitempty"`
	ContentHash string    `json:"content_hash,omitempty"`
	StatusCode  int       `json:"status_code,omitempty"`
	Source      string    `json:"source,omitempty"`
}

// HasVersions reports whether the page carries a populated history.
func (p *Page) HasVersions() bool {
	return p != nil && len(p.Versions) > 0
}

// FindVersion returns the version with the given UUID.
func (p *Page) FindVersion(uuid string) (*Version, bool) {
	if p == nil || uuid == "" {
		return nil, false
	}
	for i := range p.Versions {
		if p.Versions[i].UUID == uuid {
			v := p.Versions[i]
			return &v, true
		}
	}
	return nil, false
}

// Latest returns the most recent version, or nil for an empty history.
func (p *Page) Latest() *Version {
	if !p.HasVersions() {
		return nil
	}
	v := p.Versions[0]
	return &v
}

package navigate

import (
	"context"
	"sync"

	"github.com/hazyhaar/changeview/changeurl"
)

// History is an in-memory Navigator: a stack of visited paths where Push
// appends an entry and Replace overwrites the top one. Listeners are told
// about every new current path.
type History struct {
	mu        sync.Mutex
	entries   []string
	next      int
	listeners map[int]func(path string)
}

// NewHistory creates a History whose first entry is start.
func NewHistory(start string) *History {
	return &History{
		entries:   []string{start},
		listeners: make(map[int]func(string)),
	}
}

// Push adds path as a new entry.
func (h *History) Push(path string) {
	h.mu.Lock()
	h.entries = append(h.entries, path)
	h.mu.Unlock()
	h.notify(path)
}

// Replace overwrites the current entry with path.
func (h *History) Replace(path string) {
	h.mu.Lock()
	if len(h.entries) == 0 {
		h.entries = append(h.entries, path)
	} else {
		h.entries[len(h.entries)-1] = path
	}
	h.mu.Unlock()
	h.notify(path)
}

// Back removes the current entry and returns the new current path.
// It returns false when there is nothing to go back to.
func (h *History) Back() (string, bool) {
	h.mu.Lock()
	if len(h.entries) < 2 {
		h.mu.Unlock()
		return "", false
	}
	h.entries = h.entries[:len(h.entries)-1]
	path := h.entries[len(h.entries)-1]
	h.mu.Unlock()
	h.notify(path)
	return path, true
}

// Current returns the current path.
func (h *History) Current() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) == 0 {
		return ""
	}
	return h.entries[len(h.entries)-1]
}

// Entries returns a copy of the stack, oldest first.
func (h *History) Entries() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Listen registers fn for path changes and returns its release function.
func (h *History) Listen(fn func(path string)) func() {
	h.mu.Lock()
	id := h.next
	h.next++
	h.listeners[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.listeners, id)
		h.mu.Unlock()
	}
}

func (h *History) notify(path string) {
	h.mu.Lock()
	fns := make([]func(string), 0, len(h.listeners))
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(path)
	}
}

// Follow feeds every page path the history moves to into c.SetTarget.
// Paths that are not page paths (such as the root) are ignored.
func Follow(ctx context.Context, c *Controller, h *History) (release func()) {
	return h.Listen(func(path string) {
		pageID, token, ok := changeurl.ParsePath(path)
		if !ok {
			return
		}
		c.SetTarget(ctx, pageID, token)
	})
}

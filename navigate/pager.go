package navigate

import (
	"github.com/hazyhaar/changeview/changeurl"
	"github.com/hazyhaar/changeview/page"
)

// Link is one pager link. A placeholder link does not navigate anywhere.
type Link struct {
	PageUUID    string `json:"page_uuid,omitempty"`
	Title       string `json:"title,omitempty"`
	Path        string `json:"path,omitempty"`
	Placeholder bool   `json:"placeholder"`
}

// Pager holds the previous/next links among sibling pages.
type Pager struct {
	Previous Link `json:"previous"`
	Next     Link `json:"next"`
}

// NewPager finds currentID in pages and links its neighbours. A missing
// current page or a boundary yields placeholder links.
func NewPager(pages []page.Page, currentID string) Pager {
	pager := Pager{
		Previous: Link{Placeholder: true},
		Next:     Link{Placeholder: true},
	}

	idx := -1
	for i := range pages {
		if pages[i].UUID == currentID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return pager
	}

	if idx > 0 {
		pager.Previous = linkTo(&pages[idx-1])
	}
	if idx < len(pages)-1 {
		pager.Next = linkTo(&pages[idx+1])
	}
	return pager
}

func linkTo(p *page.Page) Link {
	return Link{
		PageUUID: p.UUID,
		Title:    p.Title,
		Path:     changeurl.PagePath(p.UUID, ""),
	}
}

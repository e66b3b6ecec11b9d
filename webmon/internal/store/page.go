package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hazyhaar/changeview/page"
)

// InsertPage stores p without its versions.
func (s *Store) InsertPage(ctx context.Context, p *page.Page) error {
	_, err := dbExec(ctx, s.DB, `
		INSERT INTO pages (id, title, url, created_at) VALUES (?, ?, ?, ?)`,
		p.UUID, p.Title, p.URL, time.Now().UnixMilli(),
	)
	return err
}

// GetPage returns the page with its versions, most recent first, or nil
// when no page has that id.
func (s *Store) GetPage(ctx context.Context, id string) (*page.Page, error) {
	p := &page.Page{}
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, title, url FROM pages WHERE id = ?`, id).Scan(&p.UUID, &p.Title, &p.URL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.Versions, err = s.ListVersions(ctx, id)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListPages returns every page ordered by title, without versions.
func (s *Store) ListPages(ctx context.Context) ([]page.Page, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, title, url FROM pages ORDER BY title, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []page.Page
	for rows.Next() {
		var p page.Page
		if err := rows.Scan(&p.UUID, &p.Title, &p.URL); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListPagesWithVersions returns every page ordered by title with its full
// history attached.
func (s *Store) ListPagesWithVersions(ctx context.Context) ([]page.Page, error) {
	pages, err := s.ListPages(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+versionColumns+` FROM versions
		ORDER BY page_id, captured_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byPage := make(map[string][]page.Version, len(pages))
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		byPage[v.PageUUID] = append(byPage[v.PageUUID], v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range pages {
		pages[i].Versions = byPage[pages[i].UUID]
	}
	return pages, nil
}

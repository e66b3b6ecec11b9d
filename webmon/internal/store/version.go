package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hazyhaar/changeview/dbopen"
	"github.com/hazyhaar/changeview/page"
)

// Content is the captured body of a version.
type Content struct {
	HTML     string `json:"html"`
	Markdown string `json:"markdown"`
}

const versionColumns = `id, page_id, captured_at, title, content_hash, status_code, source`

type scanner interface {
	Scan(dest ...any) error
}

func scanVersion(sc scanner) (page.Version, error) {
	var v page.Version
	var capturedAt int64
	err := sc.Scan(&v.UUID, &v.PageUUID, &capturedAt, &v.Title, &v.ContentHash, &v.StatusCode, &v.Source)
	v.CapturedAt = time.UnixMilli(capturedAt).UTC()
	return v, err
}

// InsertVersion stores v and its content. CapturedAt is truncated to the
// millisecond precision kept by the database; v is updated to match.
func (s *Store) InsertVersion(ctx context.Context, v *page.Version, c Content) error {
	ms := v.CapturedAt.UnixMilli()
	v.CapturedAt = time.UnixMilli(ms).UTC()
	_, err := dbExec(ctx, s.DB, `
		INSERT INTO versions
			(id, page_id, captured_at, title, content_hash, status_code, source, html, markdown)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.UUID, v.PageUUID, ms, v.Title, v.ContentHash, v.StatusCode, v.Source, c.HTML, c.Markdown,
	)
	return err
}

// ListVersions returns the history of a page, most recent first.
func (s *Store) ListVersions(ctx context.Context, pageID string) ([]page.Version, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+versionColumns+` FROM versions
		WHERE page_id = ?
		ORDER BY captured_at DESC, id DESC`, pageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []page.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// LatestVersion returns the most recent version of a page, or nil.
func (s *Store) LatestVersion(ctx context.Context, pageID string) (*page.Version, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT `+versionColumns+` FROM versions
		WHERE page_id = ?
		ORDER BY captured_at DESC, id DESC
		LIMIT 1`, pageID)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// GetContent returns the captured body of a version, or nil.
func (s *Store) GetContent(ctx context.Context, versionID string) (*Content, error) {
	c := &Content{}
	err := s.DB.QueryRowContext(ctx, `
		SELECT html, markdown FROM versions WHERE id = ?`, versionID).Scan(&c.HTML, &c.Markdown)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// CountVersions returns the number of versions of a page.
func (s *Store) CountVersions(ctx context.Context, pageID string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM versions WHERE page_id = ?`, pageID).Scan(&n)
	return n, err
}

func dbExec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := dbopen.RunTx(ctx, db, func(tx *sql.Tx) error {
		var err error
		res, err = tx.ExecContext(ctx, query, args...)
		return err
	})
	return res, err
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/hazyhaar/changeview/dbopen"
	"github.com/hazyhaar/changeview/page"
)

// InsertAnnotation stores r and sets r.CreatedAt (when zero) and r.Count,
// the number of annotations on the same change including this one.
func (s *Store) InsertAnnotation(ctx context.Context, r *page.AnnotationResult) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.CreatedAt = time.UnixMilli(r.CreatedAt.UnixMilli()).UTC()
	labels := r.Annotation.Labels
	if labels == nil {
		labels = []string{}
	}
	lb, err := json.Marshal(labels)
	if err != nil {
		return err
	}

	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO annotations
				(id, page_id, from_id, to_id, author, notes, significance, labels, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.PageUUID, r.FromUUID, r.ToUUID,
			r.Annotation.Author, r.Annotation.Notes, r.Annotation.Significance, string(lb),
			r.CreatedAt.UnixMilli(),
		)
		if err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM annotations WHERE page_id = ? AND from_id = ? AND to_id = ?`,
			r.PageUUID, r.FromUUID, r.ToUUID).Scan(&r.Count)
	})
}

// ListAnnotations returns the annotations of one change, oldest first.
// Count is set on every result to the total for the change.
func (s *Store) ListAnnotations(ctx context.Context, pageID, fromID, toID string) ([]page.AnnotationResult, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, page_id, from_id, to_id, author, notes, significance, labels, created_at
		FROM annotations
		WHERE page_id = ? AND from_id = ? AND to_id = ?
		ORDER BY created_at, id`, pageID, fromID, toID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []page.AnnotationResult
	for rows.Next() {
		var r page.AnnotationResult
		var labels string
		var createdAt int64
		if err := rows.Scan(&r.ID, &r.PageUUID, &r.FromUUID, &r.ToUUID,
			&r.Annotation.Author, &r.Annotation.Notes, &r.Annotation.Significance, &labels, &createdAt); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(labels), &r.Annotation.Labels)
		r.CreatedAt = time.UnixMilli(createdAt).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Count = len(out)
	}
	return out, nil
}

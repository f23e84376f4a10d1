package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/ticketing-marketplace/internal/model"
)

// MediaRepo persists portfolio media references.
type MediaRepo struct{ db *sql.DB }

func NewMediaRepo(db *sql.DB) *MediaRepo { return &MediaRepo{db: db} }

// CountByOwner counts all media rows of a user, hidden included.
func (r *MediaRepo) CountByOwner(ctx context.Context, ownerID uint64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM media WHERE owner_id=?", ownerID).Scan(&n)
	return n, err
}

// Create inserts a media row and sets its ID.
func (r *MediaRepo) Create(ctx context.Context, m *model.Media) error {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO media (owner_id, kind, url, caption) VALUES (?,?,?,?)",
		m.OwnerID, m.Kind, m.URL, nullStr(m.Caption))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = uint64(id)
	return nil
}

// ListByOwner returns a user's media, newest first.
func (r *MediaRepo) ListByOwner(ctx context.Context, ownerID uint64, includeHidden bool) ([]model.Media, error) {
	q := "SELECT id, owner_id, kind, url, caption, is_hidden, created_at FROM media WHERE owner_id=?"
	if !includeHidden {
		q += " AND is_hidden=0"
	}
	rows, err := r.db.QueryContext(ctx, q+" ORDER BY id DESC", ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Media{}
	for rows.Next() {
		var m model.Media
		var caption sql.NullString
		if err := rows.Scan(&m.ID, &m.OwnerID, &m.Kind, &m.URL, &caption, &m.IsHidden, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Caption = caption.String
		out = append(out, m)
	}
	return out, rows.Err()
}

// Delete removes a media row owned by ownerID.
func (r *MediaRepo) Delete(ctx context.Context, id, ownerID uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM media WHERE id=? AND owner_id=?", id, ownerID)
	if err != nil {
		return err
	}
	return mustAffect(res, ErrNotFound)
}

// Hide flags a media row as hidden by moderation.  Hiding a row that is
// already hidden is not an error; a missing row is ErrNotFound.
func (r *MediaRepo) Hide(ctx context.Context, q Querier, id uint64) error {
	res, err := q.ExecContext(ctx, "UPDATE media SET is_hidden=1 WHERE id=?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil || n > 0 {
		return err
	}
	var exists int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM media WHERE id=?", id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}
	return nil
}

package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/ticketing-marketplace/internal/model"
	"github.com/iliyamo/ticketing-marketplace/internal/utils"
)

// ProfileRepo reads and updates public profiles.
type ProfileRepo struct{ db *sql.DB }

func NewProfileRepo(db *sql.DB) *ProfileRepo { return &ProfileRepo{db: db} }

const profileSelect = `SELECT p.user_id, u.role, p.display_name, p.bio, p.city, p.avatar_url, p.phone, u.is_active
  FROM profiles p JOIN users u ON u.id = p.user_id`

func scanProfile(sc interface{ Scan(...any) error }) (model.Profile, error) {
	var p model.Profile
	var bio, city, avatar, phone sql.NullString
	if err := sc.Scan(&p.UserID, &p.Role, &p.DisplayName, &bio, &city, &avatar, &phone, &p.IsActive); err != nil {
		return p, err
	}
	p.Bio, p.City, p.AvatarURL, p.Phone = strPtr(bio), strPtr(city), strPtr(avatar), strPtr(phone)
	return p, nil
}

// Get returns the profile of userID.
func (r *ProfileRepo) Get(ctx context.Context, userID uint64) (model.Profile, error) {
	p, err := scanProfile(r.db.QueryRowContext(ctx, profileSelect+" WHERE p.user_id=?", userID))
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

// Update applies the non-nil fields of patch.  An empty patch is a no-op.
func (r *ProfileRepo) Update(ctx context.Context, userID uint64, patch model.ProfilePatch) error {
	sets := make([]string, 0, 5)
	args := make([]any, 0, 6)
	add := func(col string, v *string) {
		if v != nil {
			sets = append(sets, col+"=?")
			args = append(args, nullStr(strings.TrimSpace(*v)))
		}
	}
	if patch.DisplayName != nil {
		sets = append(sets, "display_name=?")
		args = append(args, strings.TrimSpace(*patch.DisplayName))
	}
	add("bio", patch.Bio)
	add("city", patch.City)
	add("avatar_url", patch.AvatarURL)
	add("phone", patch.Phone)
	if len(sets) == 0 {
		return nil
	}
	args = append(args, userID)
	_, err := r.db.ExecContext(ctx, "UPDATE profiles SET "+strings.Join(sets, ", ")+" WHERE user_id=?", args...)
	return err
}

// ListBookable pages through active artists and providers.  role narrows to
// one of them; q matches display name or city.
func (r *ProfileRepo) ListBookable(ctx context.Context, role, q string, pg utils.Page) ([]model.Profile, int64, error) {
	where := []string{"u.is_active = 1"}
	args := []any{}
	if role != "" {
		where = append(where, "u.role = ?")
		args = append(args, role)
	} else {
		where = append(where, "u.role IN ('ARTIST','PROVIDER')")
	}
	if q = strings.TrimSpace(q); q != "" {
		where = append(where, "(p.display_name LIKE ? OR p.city LIKE ?)")
		like := "%" + q + "%"
		args = append(args, like, like)
	}
	cond := " WHERE " + strings.Join(where, " AND ")

	var total int64
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM profiles p JOIN users u ON u.id = p.user_id"+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, profileSelect+cond+" ORDER BY p.display_name LIMIT ? OFFSET ?",
		append(args, pg.Limit(), pg.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]model.Profile, 0, pg.Limit())
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

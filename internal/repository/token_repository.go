package repository

import (
	"context"
	"database/sql"
	"time"
)

// TokenRepo persists/validates refresh tokens (single 'token_hash' column).
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// StoreRefresh inserts a refresh token hash row.
func (r *TokenRepo) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?,?,?)",
		userID, tokenHash, exp)
	return err
}

// ValidateRefresh returns the owner of a live token.  Revoked or expired
// tokens and tokens of suspended users yield ErrNotFound.
func (r *TokenRepo) ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error) {
	var (
		userID    uint64
		expiresAt time.Time
		revokedAt sql.NullTime
		active    bool
	)
	err := r.DB.QueryRowContext(ctx,
		`SELECT t.user_id, t.expires_at, t.revoked_at, u.is_active
		   FROM refresh_tokens t JOIN users u ON u.id = t.user_id
		  WHERE t.token_hash=? LIMIT 1`,
		tokenHash).Scan(&userID, &expiresAt, &revokedAt, &active)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrNotFound
		}
		return 0, err
	}
	if revokedAt.Valid || !active || time.Now().UTC().After(expiresAt) {
		return 0, ErrNotFound
	}
	return userID, nil
}

// RevokeByHash marks a token as revoked.
func (r *TokenRepo) RevokeByHash(ctx context.Context, tokenHash string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=NOW() WHERE token_hash=? AND revoked_at IS NULL",
		tokenHash)
	return err
}

// RevokeAllForUser revokes all user's active tokens.  It accepts a
// transaction so suspension and revocation commit together.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, q Querier, userID uint64) error {
	_, err := q.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=NOW() WHERE user_id=? AND revoked_at IS NULL",
		userID)
	return err
}

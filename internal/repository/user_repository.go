package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/ticketing-marketplace/internal/model"
	"github.com/iliyamo/ticketing-marketplace/internal/utils"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userCols = "id,email,password_hash,role,is_active,created_at,updated_at"

// Register inserts the user together with its profile and an empty wallet
// in one transaction and returns the new ID.
func (r *UserRepo) Register(ctx context.Context, email, password, role, displayName, currency string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	var uid uint64
	err = WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO users (email, password_hash, role) VALUES (?,?,?)",
			email, hash, role)
		if err != nil {
			if isDuplicate(err) {
				return ErrEmailExists
			}
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		uid = uint64(id)
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO profiles (user_id, display_name) VALUES (?,?)",
			uid, displayName); err != nil {
			return fmt.Errorf("insert profile: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO wallets (user_id, currency) VALUES (?,?)",
			uid, strings.ToUpper(currency)); err != nil {
			return fmt.Errorf("insert wallet: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return uid, nil
}

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	return u, err
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userCols+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userCols+" FROM users WHERE id=? LIMIT 1", id))
}

// SetActive suspends or reinstates a user.
func (r *UserRepo) SetActive(ctx context.Context, q Querier, id uint64, active bool) error {
	res, err := q.ExecContext(ctx, "UPDATE users SET is_active=? WHERE id=?", active, id)
	if err != nil {
		return err
	}
	return mustAffect(res, ErrNotFound)
}

// CountByRole powers the admin dashboard.
func (r *UserRepo) CountByRole(ctx context.Context) (map[string]int64, error) {
	return groupCount(ctx, r.DB, "SELECT role, COUNT(*) FROM users GROUP BY role")
}

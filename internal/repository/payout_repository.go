package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/ticketing-marketplace/internal/model"
	"github.com/iliyamo/ticketing-marketplace/internal/utils"
)

// PayoutRepo persists withdrawal requests.
type PayoutRepo struct{ db *sql.DB }

func NewPayoutRepo(db *sql.DB) *PayoutRepo { return &PayoutRepo{db: db} }

const payoutCols = `id, user_id, amount_minor, bank_code, account_number, account_name, reference, status,
  transfer_ref, admin_notes, processed_by, processed_at, created_at`

func scanPayout(sc interface{ Scan(...any) error }) (model.PayoutRequest, error) {
	var p model.PayoutRequest
	var transferRef, notes sql.NullString
	var by sql.NullInt64
	var at sql.NullTime
	err := sc.Scan(&p.ID, &p.UserID, &p.AmountMinor, &p.BankCode, &p.AccountNumber, &p.AccountName, &p.Reference, &p.Status,
		&transferRef, &notes, &by, &at, &p.CreatedAt)
	if err != nil {
		return p, err
	}
	p.TransferRef, p.AdminNotes, p.ProcessedBy, p.ProcessedAt = strPtr(transferRef), strPtr(notes), uintPtr(by), timePtr(at)
	return p, nil
}

// CreateTx inserts a PENDING payout request and sets its ID.
func (r *PayoutRepo) CreateTx(ctx context.Context, tx *sql.Tx, p *model.PayoutRequest) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO payout_requests (user_id, amount_minor, bank_code, account_number, account_name, reference, status)
		 VALUES (?,?,?,?,?,?,'PENDING')`,
		p.UserID, p.AmountMinor, p.BankCode, p.AccountNumber, p.AccountName, p.Reference)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	p.Status = model.PayoutPending
	return nil
}

// GetByID reads a payout request.
func (r *PayoutRepo) GetByID(ctx context.Context, id uint64) (model.PayoutRequest, error) {
	p, err := scanPayout(r.db.QueryRowContext(ctx, "SELECT "+payoutCols+" FROM payout_requests WHERE id=?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	return p, err
}

// GetForUpdateTx locks a payout request.
func (r *PayoutRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.PayoutRequest, error) {
	p, err := scanPayout(tx.QueryRowContext(ctx, "SELECT "+payoutCols+" FROM payout_requests WHERE id=? FOR UPDATE", id))
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	return p, err
}

// TransitionTx moves a payout from one status to another, recording the
// acting admin, their notes and the transfer reference when given.
func (r *PayoutRepo) TransitionTx(ctx context.Context, tx *sql.Tx, id uint64, from, to string, actorID uint64, notes, transferRef string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE payout_requests
		    SET status=?, processed_by=?, processed_at=UTC_TIMESTAMP(),
		        admin_notes=COALESCE(?, admin_notes), transfer_ref=COALESCE(?, transfer_ref)
		  WHERE id=? AND status=?`,
		to, actorID, nullStr(notes), nullStr(transferRef), id, from)
	if err != nil {
		return err
	}
	return mustAffect(res, ErrInvalidState)
}

// ListApprovedBefore returns APPROVED payouts processed before cutoff, the
// ones whose transfer outcome was never recorded.
func (r *PayoutRepo) ListApprovedBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.PayoutRequest, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+payoutCols+" FROM payout_requests WHERE status='APPROVED' AND processed_at < ? ORDER BY id LIMIT ?",
		cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.PayoutRequest
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// List pages through payout requests.  A zero userID lists everyone's.
func (r *PayoutRepo) List(ctx context.Context, userID uint64, status string, pg utils.Page) ([]model.PayoutRequest, int64, error) {
	cond := " WHERE 1=1"
	var args []any
	if userID != 0 {
		cond += " AND user_id=?"
		args = append(args, userID)
	}
	if status != "" {
		cond += " AND status=?"
		args = append(args, status)
	}
	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM payout_requests"+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, "SELECT "+payoutCols+" FROM payout_requests"+cond+" ORDER BY id DESC LIMIT ? OFFSET ?",
		append(args, pg.Limit(), pg.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]model.PayoutRequest, 0, pg.Limit())
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// PendingTotals returns the count and sum of PENDING payouts.
func (r *PayoutRepo) PendingTotals(ctx context.Context) (int64, int64, error) {
	var n int64
	var sum sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*), SUM(amount_minor) FROM payout_requests WHERE status='PENDING'").Scan(&n, &sum)
	return n, sum.Int64, err
}

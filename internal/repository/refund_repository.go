package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/ticketing-marketplace/internal/model"
	"github.com/iliyamo/ticketing-marketplace/internal/utils"
)

// RefundRepo persists ticket refund requests.
type RefundRepo struct{ db *sql.DB }

func NewRefundRepo(db *sql.DB) *RefundRepo { return &RefundRepo{db: db} }

const refundCols = "id, ticket_id, user_id, amount_minor, reason, status, admin_notes, processed_by, processed_at, created_at"

func scanRefund(sc interface{ Scan(...any) error }) (model.RefundRequest, error) {
	var rr model.RefundRequest
	var notes sql.NullString
	var by sql.NullInt64
	var at sql.NullTime
	err := sc.Scan(&rr.ID, &rr.TicketID, &rr.UserID, &rr.AmountMinor, &rr.Reason, &rr.Status, &notes, &by, &at, &rr.CreatedAt)
	if err != nil {
		return rr, err
	}
	rr.AdminNotes, rr.ProcessedBy, rr.ProcessedAt = strPtr(notes), uintPtr(by), timePtr(at)
	return rr, nil
}

// HasPendingTx reports whether the ticket already has a PENDING refund.
func (r *RefundRepo) HasPendingTx(ctx context.Context, tx *sql.Tx, ticketID uint64) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM refund_requests WHERE ticket_id=? AND status='PENDING'", ticketID).Scan(&n)
	return n > 0, err
}

// CreateTx inserts a PENDING refund request and sets its ID.
func (r *RefundRepo) CreateTx(ctx context.Context, tx *sql.Tx, rr *model.RefundRequest) error {
	res, err := tx.ExecContext(ctx,
		"INSERT INTO refund_requests (ticket_id, user_id, amount_minor, reason, status) VALUES (?,?,?,?,'PENDING')",
		rr.TicketID, rr.UserID, rr.AmountMinor, rr.Reason)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rr.ID = uint64(id)
	rr.Status = model.RefundPending
	return nil
}

// GetForUpdateTx locks a refund request.
func (r *RefundRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.RefundRequest, error) {
	rr, err := scanRefund(tx.QueryRowContext(ctx, "SELECT "+refundCols+" FROM refund_requests WHERE id=? FOR UPDATE", id))
	if errors.Is(err, sql.ErrNoRows) {
		return rr, ErrNotFound
	}
	return rr, err
}

// TransitionTx moves a refund from PENDING to to.
func (r *RefundRepo) TransitionTx(ctx context.Context, tx *sql.Tx, id uint64, to string, actorID uint64, notes string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE refund_requests SET status=?, processed_by=?, processed_at=UTC_TIMESTAMP(), admin_notes=?
		  WHERE id=? AND status='PENDING'`,
		to, actorID, nullStr(notes), id)
	if err != nil {
		return err
	}
	return mustAffect(res, ErrInvalidState)
}

// List pages through refund requests.  A zero userID lists everyone's.
func (r *RefundRepo) List(ctx context.Context, userID uint64, status string, pg utils.Page) ([]model.RefundRequest, int64, error) {
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
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM refund_requests"+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, "SELECT "+refundCols+" FROM refund_requests"+cond+" ORDER BY id DESC LIMIT ? OFFSET ?",
		append(args, pg.Limit(), pg.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]model.RefundRequest, 0, pg.Limit())
	for rows.Next() {
		rr, err := scanRefund(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rr)
	}
	return out, total, rows.Err()
}

// PendingTotals returns the count and sum of PENDING refunds.
func (r *RefundRepo) PendingTotals(ctx context.Context) (int64, int64, error) {
	var n int64
	var sum sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*), SUM(amount_minor) FROM refund_requests WHERE status='PENDING'").Scan(&n, &sum)
	return n, sum.Int64, err
}

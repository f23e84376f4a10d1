package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/ticketing-marketplace/internal/model"
	"github.com/iliyamo/ticketing-marketplace/internal/utils"
)

// ReportRepo persists moderation reports.
type ReportRepo struct{ db *sql.DB }

func NewReportRepo(db *sql.DB) *ReportRepo { return &ReportRepo{db: db} }

const reportCols = "id, reporter_id, target_type, target_id, reason, status, action, admin_notes, processed_by, processed_at, created_at"

func scanReport(sc interface{ Scan(...any) error }) (model.Report, error) {
	var rp model.Report
	var action, notes sql.NullString
	var by sql.NullInt64
	var at sql.NullTime
	err := sc.Scan(&rp.ID, &rp.ReporterID, &rp.TargetType, &rp.TargetID, &rp.Reason, &rp.Status, &action, &notes, &by, &at, &rp.CreatedAt)
	if err != nil {
		return rp, err
	}
	rp.Action, rp.AdminNotes, rp.ProcessedBy, rp.ProcessedAt = strPtr(action), strPtr(notes), uintPtr(by), timePtr(at)
	return rp, nil
}

// Create inserts an OPEN report.
func (r *ReportRepo) Create(ctx context.Context, rp *model.Report) error {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO reports (reporter_id, target_type, target_id, reason, status) VALUES (?,?,?,?,'OPEN')",
		rp.ReporterID, rp.TargetType, rp.TargetID, rp.Reason)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rp.ID = uint64(id)
	rp.Status = model.ReportOpen
	return nil
}

// GetForUpdateTx locks a report.
func (r *ReportRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Report, error) {
	rp, err := scanReport(tx.QueryRowContext(ctx, "SELECT "+reportCols+" FROM reports WHERE id=? FOR UPDATE", id))
	if errors.Is(err, sql.ErrNoRows) {
		return rp, ErrNotFound
	}
	return rp, err
}

// CloseTx moves an OPEN report to RESOLVED or DISMISSED.
func (r *ReportRepo) CloseTx(ctx context.Context, tx *sql.Tx, id uint64, status, action string, actorID uint64, notes string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE reports SET status=?, action=?, admin_notes=?, processed_by=?, processed_at=UTC_TIMESTAMP()
		  WHERE id=? AND status='OPEN'`,
		status, nullStr(action), notes, actorID, id)
	if err != nil {
		return err
	}
	return mustAffect(res, ErrInvalidState)
}

// List pages through reports, oldest open first.
func (r *ReportRepo) List(ctx context.Context, status string, pg utils.Page) ([]model.Report, int64, error) {
	cond := ""
	var args []any
	if status != "" {
		cond = " WHERE status=?"
		args = append(args, status)
	}
	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reports"+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, "SELECT "+reportCols+" FROM reports"+cond+" ORDER BY id ASC LIMIT ? OFFSET ?",
		append(args, pg.Limit(), pg.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]model.Report, 0, pg.Limit())
	for rows.Next() {
		rp, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rp)
	}
	return out, total, rows.Err()
}

// OpenCount counts reports awaiting moderation.
func (r *ReportRepo) OpenCount(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reports WHERE status='OPEN'").Scan(&n)
	return n, err
}

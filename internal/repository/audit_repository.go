package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/iliyamo/ticketing-marketplace/internal/model"
	"github.com/iliyamo/ticketing-marketplace/internal/utils"
)

// AuditRepo writes and reads the admin audit trail.
type AuditRepo struct{ db *sql.DB }

func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{db: db} }

// Record appends an audit row.  details is stored as JSON.
func (r *AuditRepo) Record(ctx context.Context, q Querier, actorID uint64, action, entity string, entityID uint64, details map[string]any) error {
	var raw string
	if len(details) > 0 {
		b, err := json.Marshal(details)
		if err != nil {
			return err
		}
		raw = string(b)
	}
	_, err := q.ExecContext(ctx,
		"INSERT INTO audit_logs (actor_id, action, entity, entity_id, details) VALUES (?,?,?,?,?)",
		actorID, action, entity, entityID, nullStr(raw))
	return err
}

// List pages through the audit trail, newest first.
func (r *AuditRepo) List(ctx context.Context, entity string, pg utils.Page) ([]model.AuditLog, int64, error) {
	cond := ""
	var args []any
	if entity != "" {
		cond = " WHERE entity=?"
		args = append(args, entity)
	}
	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs"+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, actor_id, action, entity, entity_id, details, created_at FROM audit_logs"+cond+" ORDER BY id DESC LIMIT ? OFFSET ?",
		append(args, pg.Limit(), pg.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]model.AuditLog, 0, pg.Limit())
	for rows.Next() {
		var a model.AuditLog
		var details sql.NullString
		if err := rows.Scan(&a.ID, &a.ActorID, &a.Action, &a.Entity, &a.EntityID, &details, &a.CreatedAt); err != nil {
			return nil, 0, err
		}
		a.Details = details.String
		out = append(out, a)
	}
	return out, total, rows.Err()
}

package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/ticketing-marketplace/internal/model"
	"github.com/iliyamo/ticketing-marketplace/internal/utils"
)

// TicketRepo persists tickets.
type TicketRepo struct{ db *sql.DB }

func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

const ticketSelect = `SELECT t.id, t.event_id, t.owner_id, t.code, t.price_minor, t.fee_minor, t.status, t.purchase_ref,
  e.title, e.status, e.organizer_id, e.starts_at, t.created_at
  FROM tickets t JOIN events e ON e.id = t.event_id`

func scanTicket(sc interface{ Scan(...any) error }) (model.Ticket, error) {
	var t model.Ticket
	err := sc.Scan(&t.ID, &t.EventID, &t.OwnerID, &t.Code, &t.PriceMinor, &t.FeeMinor, &t.Status, &t.PurchaseRef,
		&t.EventTitle, &t.EventStatus, &t.OrganizerID, &t.StartsAt, &t.CreatedAt)
	return t, err
}

// CreateBulkTx inserts tickets in a single statement.  Passing an empty
// slice has no effect.
func (r *TicketRepo) CreateBulkTx(ctx context.Context, tx *sql.Tx, tickets []model.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	query := "INSERT INTO tickets (event_id, owner_id, code, price_minor, fee_minor, status, purchase_ref) VALUES "
	args := make([]any, 0, len(tickets)*7)
	for i, t := range tickets {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?, ?, ?)"
		args = append(args, t.EventID, t.OwnerID, t.Code, t.PriceMinor, t.FeeMinor, t.Status, t.PurchaseRef)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// GetForUpdateTx locks a ticket row and returns it with its event's start.
func (r *TicketRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Ticket, error) {
	t, err := scanTicket(tx.QueryRowContext(ctx, ticketSelect+" WHERE t.id=? FOR UPDATE", id))
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	return t, err
}

// SetStatusTx moves a ticket from one status to another.
func (r *TicketRepo) SetStatusTx(ctx context.Context, tx *sql.Tx, id uint64, from, to string) error {
	res, err := tx.ExecContext(ctx, "UPDATE tickets SET status=? WHERE id=? AND status=?", to, id, from)
	if err != nil {
		return err
	}
	return mustAffect(res, ErrInvalidState)
}

func (r *TicketRepo) list(ctx context.Context, col string, id uint64, pg utils.Page) ([]model.Ticket, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tickets t WHERE t."+col+"=?", id).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, ticketSelect+" WHERE t."+col+"=? ORDER BY t.id DESC LIMIT ? OFFSET ?",
		id, pg.Limit(), pg.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]model.Ticket, 0, pg.Limit())
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

// ListByOwner pages through the tickets a user holds.
func (r *TicketRepo) ListByOwner(ctx context.Context, ownerID uint64, pg utils.Page) ([]model.Ticket, int64, error) {
	return r.list(ctx, "owner_id", ownerID, pg)
}

// ListByEvent pages through an event's tickets.
func (r *TicketRepo) ListByEvent(ctx context.Context, eventID uint64, pg utils.Page) ([]model.Ticket, int64, error) {
	return r.list(ctx, "event_id", eventID, pg)
}

// HoldsActive reports whether userID holds a non-refunded ticket to eventID.
func (r *TicketRepo) HoldsActive(ctx context.Context, userID, eventID uint64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM tickets WHERE owner_id=? AND event_id=? AND status='ACTIVE'",
		userID, eventID).Scan(&n)
	return n > 0, err
}

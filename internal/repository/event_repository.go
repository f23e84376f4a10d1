package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/ticketing-marketplace/internal/model"
	"github.com/iliyamo/ticketing-marketplace/internal/utils"
)

// EventRepo provides persistence for events.  Status changes are always
// conditional on the current status so concurrent moderators cannot both
// win.
type EventRepo struct{ db *sql.DB }

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

const eventCols = `id, organizer_id, title, description, venue, city, starts_at, ends_at,
  capacity, ticket_price_minor, tickets_sold, status, moderation_notes, created_at, updated_at`

func scanEvent(sc interface{ Scan(...any) error }) (model.Event, error) {
	var e model.Event
	var desc, notes sql.NullString
	err := sc.Scan(&e.ID, &e.OrganizerID, &e.Title, &desc, &e.Venue, &e.City, &e.StartsAt, &e.EndsAt,
		&e.Capacity, &e.TicketPriceMinor, &e.TicketsSold, &e.Status, &notes, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return e, err
	}
	e.Description = desc.String
	e.ModerationNotes = strPtr(notes)
	return e, nil
}

// Create inserts a DRAFT event.
func (r *EventRepo) Create(ctx context.Context, organizerID uint64, in model.EventInput) (uint64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO events (organizer_id, title, description, venue, city, starts_at, ends_at, capacity, ticket_price_minor, status)
		 VALUES (?,?,?,?,?,?,?,?,?,'DRAFT')`,
		organizerID, in.Title, nullStr(in.Description), in.Venue, in.City, in.StartsAt.UTC(), in.EndsAt.UTC(),
		in.Capacity, in.TicketPriceMinor)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByID returns an event regardless of status.
func (r *EventRepo) GetByID(ctx context.Context, id uint64) (model.Event, error) {
	e, err := scanEvent(r.db.QueryRowContext(ctx, "SELECT "+eventCols+" FROM events WHERE id=?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return e, ErrNotFound
	}
	return e, err
}

// GetForUpdateTx locks an event row.
func (r *EventRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Event, error) {
	e, err := scanEvent(tx.QueryRowContext(ctx, "SELECT "+eventCols+" FROM events WHERE id=? FOR UPDATE", id))
	if errors.Is(err, sql.ErrNoRows) {
		return e, ErrNotFound
	}
	return e, err
}

// Update overwrites the editable fields of an organizer's event.  Only
// DRAFT and REJECTED events are editable, and capacity may not drop below
// tickets_sold (ErrConflict).
func (r *EventRepo) Update(ctx context.Context, id, organizerID uint64, in model.EventInput) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE events SET title=?, description=?, venue=?, city=?, starts_at=?, ends_at=?, capacity=?, ticket_price_minor=?
		  WHERE id=? AND organizer_id=? AND status IN ('DRAFT','REJECTED') AND tickets_sold <= ?`,
		in.Title, nullStr(in.Description), in.Venue, in.City, in.StartsAt.UTC(), in.EndsAt.UTC(), in.Capacity, in.TicketPriceMinor,
		id, organizerID, in.Capacity)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil || n > 0 {
		return err
	}
	// 0 rows also covers saving identical values when the connection
	// reports changed rather than matched rows.
	var (
		status string
		sold   uint32
	)
	err = r.db.QueryRowContext(ctx, "SELECT status, tickets_sold FROM events WHERE id=? AND organizer_id=?", id, organizerID).
		Scan(&status, &sold)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case err != nil:
		return err
	case status != model.EventDraft && status != model.EventRejected:
		return ErrInvalidState
	case sold > in.Capacity:
		return ErrConflict
	}
	return nil
}

// Transition moves an event into to when its current status is one of
// from.  notes replaces moderation_notes when non-nil.
func (r *EventRepo) Transition(ctx context.Context, q Querier, id uint64, from []string, to string, notes *string) error {
	if len(from) == 0 {
		return ErrInvalidState
	}
	marks := strings.TrimSuffix(strings.Repeat("?,", len(from)), ",")
	args := []any{to, notes, id}
	for _, f := range from {
		args = append(args, f)
	}
	res, err := q.ExecContext(ctx,
		"UPDATE events SET status=?, moderation_notes=COALESCE(?, moderation_notes) WHERE id=? AND status IN ("+marks+")",
		args...)
	if err != nil {
		return err
	}
	return mustAffect(res, ErrInvalidState)
}

// AddSoldTx adjusts tickets_sold by delta.  A sale must fit within
// capacity; a return only needs to keep the count non-negative.
func (r *EventRepo) AddSoldTx(ctx context.Context, tx *sql.Tx, id uint64, delta int) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE events SET tickets_sold = tickets_sold + ?
		  WHERE id=? AND tickets_sold + ? >= 0 AND (? <= 0 OR tickets_sold + ? <= capacity)`,
		delta, id, delta, delta, delta)
	if err != nil {
		return err
	}
	return mustAffect(res, ErrConflict)
}

// List pages through events matching f, soonest first.
func (r *EventRepo) List(ctx context.Context, f model.EventFilter, pg utils.Page) ([]model.Event, int64, error) {
	where := []string{"1=1"}
	args := []any{}
	if f.Status != "" {
		where = append(where, "status=?")
		args = append(args, f.Status)
	}
	if f.OrganizerID != 0 {
		where = append(where, "organizer_id=?")
		args = append(args, f.OrganizerID)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		where = append(where, "(title LIKE ? OR venue LIKE ?)")
		like := "%" + q + "%"
		args = append(args, like, like)
	}
	if c := strings.TrimSpace(f.City); c != "" {
		where = append(where, "city=?")
		args = append(args, c)
	}
	if f.UpcomingOnly {
		where = append(where, "starts_at > ?")
		args = append(args, time.Now().UTC())
	}
	cond := " WHERE " + strings.Join(where, " AND ")

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events"+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, "SELECT "+eventCols+" FROM events"+cond+" ORDER BY starts_at ASC, id ASC LIMIT ? OFFSET ?",
		append(args, pg.Limit(), pg.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]model.Event, 0, pg.Limit())
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// CompleteEnded marks published events whose end has passed as COMPLETED.
func (r *EventRepo) CompleteEnded(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE events SET status='COMPLETED' WHERE status='PUBLISHED' AND ends_at < ?", now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountByStatus powers the admin dashboard.
func (r *EventRepo) CountByStatus(ctx context.Context) (map[string]int64, error) {
	return groupCount(ctx, r.db, "SELECT status, COUNT(*) FROM events GROUP BY status")
}

func groupCount(ctx context.Context, q Querier, query string) (map[string]int64, error) {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int64{}
	for rows.Next() {
		var k string
		var n int64
		if err := rows.Scan(&k, &n); err != nil {
			return nil, err
		}
		out[k] = n
	}
	return out, rows.Err()
}

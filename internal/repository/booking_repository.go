package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/ticketing-marketplace/internal/model"
	"github.com/iliyamo/ticketing-marketplace/internal/utils"
)

// BookingRepo persists artist/provider bookings.
type BookingRepo struct{ db *sql.DB }

func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingCols = "id, organizer_id, provider_id, event_id, service_date, fee_minor, message, status, created_at, updated_at"

func scanBooking(sc interface{ Scan(...any) error }) (model.Booking, error) {
	var b model.Booking
	var eventID sql.NullInt64
	var msg sql.NullString
	err := sc.Scan(&b.ID, &b.OrganizerID, &b.ProviderID, &eventID, &b.ServiceDate, &b.FeeMinor, &msg, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return b, err
	}
	b.EventID = uintPtr(eventID)
	b.Message = msg.String
	return b, nil
}

// Create inserts a PENDING booking and returns its ID.
func (r *BookingRepo) Create(ctx context.Context, b model.Booking) (uint64, error) {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO bookings (organizer_id, provider_id, event_id, service_date, fee_minor, message, status) VALUES (?,?,?,?,?,?,'PENDING')",
		b.OrganizerID, b.ProviderID, b.EventID, b.ServiceDate.UTC(), b.FeeMinor, nullStr(b.Message))
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByID reads a booking.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (model.Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx, "SELECT "+bookingCols+" FROM bookings WHERE id=?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return b, ErrNotFound
	}
	return b, err
}

// GetForUpdateTx locks a booking row.
func (r *BookingRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Booking, error) {
	b, err := scanBooking(tx.QueryRowContext(ctx, "SELECT "+bookingCols+" FROM bookings WHERE id=? FOR UPDATE", id))
	if errors.Is(err, sql.ErrNoRows) {
		return b, ErrNotFound
	}
	return b, err
}

// TransitionTx moves a booking from one status to another.
func (r *BookingRepo) TransitionTx(ctx context.Context, tx *sql.Tx, id uint64, from, to string) error {
	res, err := tx.ExecContext(ctx, "UPDATE bookings SET status=? WHERE id=? AND status=?", to, id, from)
	if err != nil {
		return err
	}
	return mustAffect(res, ErrInvalidState)
}

// List pages through the bookings a user takes part in.  as selects the
// side: "organizer" or "provider".
func (r *BookingRepo) List(ctx context.Context, userID uint64, as, status string, pg utils.Page) ([]model.Booking, int64, error) {
	col := "organizer_id"
	if as == "provider" {
		col = "provider_id"
	}
	cond := " WHERE " + col + "=?"
	args := []any{userID}
	if status != "" {
		cond += " AND status=?"
		args = append(args, status)
	}
	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bookings"+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, "SELECT "+bookingCols+" FROM bookings"+cond+" ORDER BY service_date DESC, id DESC LIMIT ? OFFSET ?",
		append(args, pg.Limit(), pg.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]model.Booking, 0, pg.Limit())
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, b)
	}
	return out, total, rows.Err()
}

// CancelExpired cancels PENDING bookings whose service date has passed.
func (r *BookingRepo) CancelExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE bookings SET status='CANCELLED' WHERE status='PENDING' AND service_date < ?", now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticketing-marketplace/internal/lock"
	"github.com/iliyamo/ticketing-marketplace/internal/logging"
	"github.com/iliyamo/ticketing-marketplace/internal/model"
	"github.com/iliyamo/ticketing-marketplace/internal/repository"
	"github.com/iliyamo/ticketing-marketplace/internal/stream"
)

func fixedNow() time.Time { return t0 }

var bookingColumns = []string{"id", "organizer_id", "provider_id", "event_id", "service_date", "fee_minor", "message", "status", "created_at", "updated_at"}

func bookingRow(status string, fee int64) *sqlmock.Rows {
	return sqlmock.NewRows(bookingColumns).AddRow(8, 2, 7, nil, t0.Add(48*time.Hour), fee, "", status, t0, t0)
}

var eventColumns = []string{"id", "organizer_id", "title", "description", "venue", "city", "starts_at", "ends_at",
	"capacity", "ticket_price_minor", "tickets_sold", "status", "moderation_notes", "created_at", "updated_at"}

func eventRow(status string, capacity, sold uint32, price int64) *sqlmock.Rows {
	return sqlmock.NewRows(eventColumns).AddRow(3, 2, "Afrobeats Night", "", "Hall A", "Lagos",
		t0.Add(72*time.Hour), t0.Add(76*time.Hour), capacity, price, sold, status, nil, t0, t0)
}

func newBookingService(t *testing.T) (*BookingService, sqlmock.Sqlmock, *recordingStream) {
	db, mock := newMock(t)
	rec := &recordingStream{}
	return &BookingService{
		Bookings: repository.NewBookingRepo(db),
		Users:    repository.NewUserRepo(db),
		Events:   repository.NewEventRepo(db),
		Wallets:  repository.NewWalletRepo(db),
		Stream:   rec,
		Currency: "ngn",
		Log:      logging.Discard(),
		Now:      fixedNow,
	}, mock, rec
}

func TestBookingTransitionRejectsNonParticipant(t *testing.T) {
	svc, mock, _ := newBookingService(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM bookings WHERE id`).WillReturnRows(bookingRow(model.BookingPending, 0))
	mock.ExpectRollback()

	_, err := svc.Transition(context.Background(), 99, 8, BookingAccept)
	assert.ErrorIs(t, err, repository.ErrForbidden)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingTransitionWrongSide(t *testing.T) {
	svc, mock, _ := newBookingService(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM bookings WHERE id`).WillReturnRows(bookingRow(model.BookingPending, 0))
	mock.ExpectRollback()

	// the organizer cannot accept its own request
	_, err := svc.Transition(context.Background(), 2, 8, BookingAccept)
	assert.ErrorIs(t, err, repository.ErrForbidden)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingTransitionInvalidState(t *testing.T) {
	svc, mock, _ := newBookingService(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM bookings WHERE id`).WillReturnRows(bookingRow(model.BookingDeclined, 0))
	mock.ExpectRollback()

	_, err := svc.Transition(context.Background(), 2, 8, BookingCancel)
	assert.ErrorIs(t, err, repository.ErrInvalidState)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingCompleteSettlesFee(t *testing.T) {
	svc, mock, rec := newBookingService(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM bookings WHERE id`).WillReturnRows(bookingRow(model.BookingAccepted, 40000))
	mock.ExpectExec(`UPDATE bookings SET status`).
		WithArgs(model.BookingCompleted, uint64(8), model.BookingAccepted).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE wallets`).
		WithArgs(int64(-40000), int64(0), uint64(2), int64(0), false, int64(-40000), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE wallets`).
		WithArgs(int64(40000), int64(0), uint64(7), int64(0), true, int64(40000), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO transactions`).
		WithArgs(uint64(2), model.TxBookingPayment, model.TxCompleted, int64(-40000), "bk_8_pay", nil, "Booking fee").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO transactions`).
		WithArgs(uint64(7), model.TxBookingEarning, model.TxCompleted, int64(40000), "bk_8_earn", nil, "Booking fee").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	b, err := svc.Transition(context.Background(), 2, 8, BookingComplete)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCompleted, b.Status)
	assert.Equal(t, []string{stream.BookingCompleted}, rec.types())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingCompleteWithoutFunds(t *testing.T) {
	svc, mock, _ := newBookingService(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM bookings WHERE id`).WillReturnRows(bookingRow(model.BookingAccepted, 40000))
	mock.ExpectExec(`UPDATE bookings SET status`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE wallets`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := svc.Transition(context.Background(), 2, 8, BookingComplete)
	assert.ErrorIs(t, err, repository.ErrInsufficientFunds)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingCreateValidation(t *testing.T) {
	svc, mock, _ := newBookingService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, 2, model.RoleCustomer, BookingInput{ProviderID: 7, ServiceDate: t0.Add(time.Hour)})
	assert.ErrorIs(t, err, ErrRoleNotAllowed)

	_, err = svc.Create(ctx, 2, model.RoleOrganizer, BookingInput{ProviderID: 7, ServiceDate: t0.Add(-time.Hour)})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	mock.ExpectQuery(`FROM users WHERE id`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "role", "is_active", "created_at", "updated_at"}).
			AddRow(7, "c@x.io", "h", model.RoleCustomer, true, t0, t0))
	_, err = svc.Create(ctx, 2, model.RoleOrganizer, BookingInput{ProviderID: 7, ServiceDate: t0.Add(time.Hour)})
	assert.ErrorIs(t, err, ErrNotEligible)
	require.NoError(t, mock.ExpectationsWereMet())
}

func newTicketService(t *testing.T) (*TicketService, sqlmock.Sqlmock, *recordingStream) {
	db, mock := newMock(t)
	rec := &recordingStream{}
	return &TicketService{
		Wallets:  repository.NewWalletRepo(db),
		Events:   repository.NewEventRepo(db),
		Tickets:  repository.NewTicketRepo(db),
		Stream:   rec,
		FeeBPS:   500,
		Currency: "ngn",
		Log:      logging.Discard(),
		Now:      fixedNow,
	}, mock, rec
}

func TestBuyTicketsQuantityBounds(t *testing.T) {
	svc, mock, _ := newTicketService(t)
	for _, q := range []int{0, 11} {
		_, err := svc.Buy(context.Background(), 5, 3, q)
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr, "qty %d", q)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuyTicketsSoldOut(t *testing.T) {
	svc, mock, _ := newTicketService(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM events WHERE id`).WillReturnRows(eventRow(model.EventPublished, 10, 9, 5000))
	mock.ExpectRollback()

	_, err := svc.Buy(context.Background(), 5, 3, 2)
	assert.ErrorIs(t, err, ErrSoldOut)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuyTicketsUnpublishedEvent(t *testing.T) {
	svc, mock, _ := newTicketService(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM events WHERE id`).WillReturnRows(eventRow(model.EventPendingReview, 10, 0, 5000))
	mock.ExpectRollback()

	_, err := svc.Buy(context.Background(), 5, 3, 1)
	assert.ErrorIs(t, err, ErrNotEligible)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuyTicketsMovesMoney(t *testing.T) {
	svc, mock, rec := newTicketService(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM events WHERE id`).WillReturnRows(eventRow(model.EventPublished, 100, 10, 5000))
	// organizer (2) sorts before buyer (5); fee is 250 per ticket
	mock.ExpectExec(`UPDATE wallets`).
		WithArgs(int64(9500), int64(0), uint64(2), int64(0), true, int64(9500), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE wallets`).
		WithArgs(int64(-10000), int64(0), uint64(5), int64(0), false, int64(-10000), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO tickets`).WillReturnResult(sqlmock.NewResult(1, 2))
	mock.ExpectExec(`UPDATE events SET tickets_sold`).
		WithArgs(2, uint64(3), 2, 2, 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO transactions`).
		WithArgs(uint64(5), model.TxTicketPurchase, model.TxCompleted, int64(-10000), sqlmock.AnyArg(), nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO transactions`).
		WithArgs(uint64(2), model.TxSaleEarning, model.TxCompleted, int64(9500), sqlmock.AnyArg(), nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	p, err := svc.Buy(context.Background(), 5, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), p.TotalMinor)
	require.Len(t, p.Tickets, 2)
	assert.Equal(t, int64(250), p.Tickets[0].FeeMinor)
	assert.NotEqual(t, p.Tickets[0].Code, p.Tickets[1].Code)
	assert.Equal(t, []string{stream.TicketPurchased}, rec.types())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefundRequestAfterStartNotEligible(t *testing.T) {
	db, mock := newMock(t)
	svc := &RefundService{
		Wallets: repository.NewWalletRepo(db),
		Tickets: repository.NewTicketRepo(db),
		Refunds: repository.NewRefundRepo(db),
		Locker:  lock.NewLocalLocker(),
		Log:     logging.Discard(),
		Now:     func() time.Time { return t0.Add(100 * time.Hour) },
	}
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM tickets t JOIN events e`).
		WillReturnRows(sqlmock.NewRows(ticketColumns).
			AddRow(30, 3, 5, "c-1", 5000, 250, model.TicketActive, "tp_1", "Afrobeats Night", model.EventPublished, 2, t0.Add(72*time.Hour), t0))
	mock.ExpectRollback()

	_, err := svc.Request(context.Background(), 5, 30, "cannot attend")
	assert.ErrorIs(t, err, ErrNotEligible)
	require.NoError(t, mock.ExpectationsWereMet())

	_, err = svc.Reject(context.Background(), 1, 30, "")
	assert.ErrorIs(t, err, ErrNotesRequired)
}

var ticketColumns = []string{"id", "event_id", "owner_id", "code", "price_minor", "fee_minor", "status", "purchase_ref",
	"title", "estatus", "organizer_id", "starts_at", "created_at"}

func TestRefundApproveReversesOrganizerEarning(t *testing.T) {
	db, mock := newMock(t)
	rec := &recordingStream{}
	svc := &RefundService{
		Wallets:  repository.NewWalletRepo(db),
		Tickets:  repository.NewTicketRepo(db),
		Events:   repository.NewEventRepo(db),
		Refunds:  repository.NewRefundRepo(db),
		Audit:    repository.NewAuditRepo(db),
		Locker:   lock.NewLocalLocker(),
		Stream:   rec,
		Currency: "ngn",
		Log:      logging.Discard(),
	}
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM refund_requests WHERE id`).WithArgs(uint64(12)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "ticket_id", "user_id", "amount_minor", "reason", "status",
			"admin_notes", "processed_by", "processed_at", "created_at"}).
			AddRow(12, 30, 5, 5000, "cannot attend", model.RefundPending, nil, nil, nil, t0))
	mock.ExpectQuery(`FROM tickets t JOIN events e`).
		WillReturnRows(sqlmock.NewRows(ticketColumns).
			AddRow(30, 3, 5, "c-1", 5000, 250, model.TicketActive, "tp_1", "Afrobeats Night", model.EventCancelled, 2, t0, t0))
	mock.ExpectExec(`UPDATE refund_requests SET status`).
		WithArgs(model.RefundApproved, uint64(1), sqlmock.AnyArg(), uint64(12)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE tickets SET status`).
		WithArgs(model.TicketRefunded, uint64(30), model.TicketActive).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE events SET tickets_sold`).
		WithArgs(-1, uint64(3), -1, -1, -1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// organizer (id 2) is locked before the buyer (id 5)
	mock.ExpectExec(`UPDATE wallets`).
		WithArgs(int64(-4750), int64(0), uint64(2), int64(0), true, int64(-4750), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE wallets`).
		WithArgs(int64(5000), int64(0), uint64(5), int64(0), true, int64(5000), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO transactions`).
		WithArgs(uint64(5), model.TxRefund, model.TxCompleted, int64(5000), "rf_12", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(60, 1))
	mock.ExpectExec(`INSERT INTO transactions`).
		WithArgs(uint64(2), model.TxSaleEarning, model.TxCompleted, int64(-4750), "rf_12_rev", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(61, 1))
	mock.ExpectExec(`INSERT INTO audit_logs`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	rr, err := svc.Approve(context.Background(), 1, 12)
	require.NoError(t, err)
	assert.Equal(t, model.RefundApproved, rr.Status)
	assert.Equal(t, []string{stream.RefundApproved}, rec.types())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefundApproveTwiceIsInvalidState(t *testing.T) {
	db, mock := newMock(t)
	svc := &RefundService{
		Wallets: repository.NewWalletRepo(db),
		Refunds: repository.NewRefundRepo(db),
		Locker:  lock.NewLocalLocker(),
		Log:     logging.Discard(),
	}
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM refund_requests WHERE id`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "ticket_id", "user_id", "amount_minor", "reason", "status",
			"admin_notes", "processed_by", "processed_at", "created_at"}).
			AddRow(12, 30, 5, 5000, "cannot attend", model.RefundApproved, nil, 1, t0, t0))
	mock.ExpectRollback()

	_, err := svc.Approve(context.Background(), 1, 12)
	assert.ErrorIs(t, err, repository.ErrInvalidState)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRejectWithoutNotesIsBlocked(t *testing.T) {
	db, mock := newMock(t)
	svc := &EventService{DB: db, Events: repository.NewEventRepo(db), Audit: repository.NewAuditRepo(db), Log: logging.Discard(), Now: fixedNow}

	_, err := svc.Reject(context.Background(), 1, 3, " \n ")
	assert.ErrorIs(t, err, ErrNotesRequired)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRejectStoresNotes(t *testing.T) {
	db, mock := newMock(t)
	svc := &EventService{DB: db, Events: repository.NewEventRepo(db), Audit: repository.NewAuditRepo(db), Log: logging.Discard(), Now: fixedNow}
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE events SET status`).
		WithArgs(model.EventRejected, "missing venue permit", uint64(3), model.EventPendingReview).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO audit_logs`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(`FROM events WHERE id`).WillReturnRows(eventRow(model.EventRejected, 10, 0, 0))

	ev, err := svc.Reject(context.Background(), 1, 3, "missing venue permit")
	require.NoError(t, err)
	assert.Equal(t, model.EventRejected, ev.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventValidation(t *testing.T) {
	svc := &EventService{Now: fixedNow}
	in := model.EventInput{Title: "x", Venue: "v", City: "c", StartsAt: t0.Add(time.Hour), EndsAt: t0, Capacity: 10}
	var verr *ValidationError
	assert.ErrorAs(t, svc.validate(&in), &verr)

	in.EndsAt = t0.Add(2 * time.Hour)
	assert.NoError(t, svc.validate(&in))

	in.Capacity = 0
	assert.ErrorAs(t, svc.validate(&in), &verr)
}

func TestStartConversationReturnsExisting(t *testing.T) {
	db, mock := newMock(t)
	svc := &ConversationService{Conversations: repository.NewConversationRepo(db), Users: repository.NewUserRepo(db)}
	mock.ExpectQuery(`FROM users WHERE id`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "role", "is_active", "created_at", "updated_at"}).
			AddRow(9, "p@x.io", "h", model.RoleProvider, true, t0, t0))
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM conversations WHERE user_low_id`).WithArgs(uint64(4), uint64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_low_id", "user_high_id", "booking_id", "last_message_at", "created_at"}).
			AddRow(12, 4, 9, nil, nil, t0))
	mock.ExpectExec(`INSERT INTO messages`).WillReturnResult(sqlmock.NewResult(70, 1))
	mock.ExpectExec(`UPDATE conversations SET last_message_at`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	conv, created, err := svc.Start(context.Background(), 9, 4, nil, "hello again")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, uint64(12), conv.ID)
	assert.NotNil(t, conv.LastMessageAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStartConversationWithSelf(t *testing.T) {
	svc := &ConversationService{}
	_, _, err := svc.Start(context.Background(), 4, 4, nil, "")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestSendMessageOutsiderForbidden(t *testing.T) {
	db, mock := newMock(t)
	svc := &ConversationService{Conversations: repository.NewConversationRepo(db)}
	mock.ExpectQuery(`FROM conversations WHERE id`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_low_id", "user_high_id", "booking_id", "last_message_at", "created_at"}).
			AddRow(12, 4, 9, nil, nil, t0))

	_, err := svc.Send(context.Background(), 5, 12, "hi")
	assert.ErrorIs(t, err, repository.ErrForbidden)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveReportActionMustMatchTarget(t *testing.T) {
	db, mock := newMock(t)
	svc := &ModerationService{DB: db, Reports: repository.NewReportRepo(db), Log: logging.Discard()}
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM reports WHERE id`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "reporter_id", "target_type", "target_id", "reason", "status",
			"action", "admin_notes", "processed_by", "processed_at", "created_at"}).
			AddRow(6, 4, model.TargetReview, 17, "spam", model.ReportOpen, nil, nil, nil, nil, t0))
	mock.ExpectRollback()

	err := svc.Resolve(context.Background(), 1, 6, model.ActionSuspendUser, "spam account")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.ErrorIs(t, svc.Resolve(context.Background(), 1, 6, model.ActionHideReview, ""), ErrNotesRequired)
}

func TestSuspendUserRevokesTokens(t *testing.T) {
	db, mock := newMock(t)
	svc := &ModerationService{
		DB: db, Users: repository.NewUserRepo(db), Tokens: repository.NewTokenRepo(db),
		Audit: repository.NewAuditRepo(db), Log: logging.Discard(),
	}
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM users WHERE id`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "role", "is_active", "created_at", "updated_at"}).
			AddRow(7, "a@x.io", "h", model.RoleArtist, true, t0, t0))
	mock.ExpectExec(`UPDATE users SET is_active`).WithArgs(false, uint64(7)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE refresh_tokens SET revoked_at`).WithArgs(uint64(7)).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`INSERT INTO audit_logs`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, svc.SetUserActive(context.Background(), 1, 7, false))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMediaAddRules(t *testing.T) {
	db, mock := newMock(t)
	svc := &MediaService{Media: repository.NewMediaRepo(db)}
	ctx := context.Background()

	_, err := svc.Add(ctx, 7, model.RoleOrganizer, model.Media{Kind: "IMAGE", URL: "https://cdn.example.com/a.jpg"})
	assert.ErrorIs(t, err, ErrRoleNotAllowed)

	var verr *ValidationError
	_, err = svc.Add(ctx, 7, model.RoleArtist, model.Media{Kind: "IMAGE", URL: "ftp://cdn.example.com/a.jpg"})
	assert.ErrorAs(t, err, &verr)
	_, err = svc.Add(ctx, 7, model.RoleArtist, model.Media{Kind: "GIF", URL: "https://cdn.example.com/a.gif"})
	assert.ErrorAs(t, err, &verr)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM media`).WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(model.MaxMediaPerProfile))
	_, err = svc.Add(ctx, 7, model.RoleArtist, model.Media{Kind: "video", URL: "https://youtu.be/x"})
	assert.ErrorIs(t, err, ErrMediaLimit)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM media`).WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(3))
	mock.ExpectExec(`INSERT INTO media`).WithArgs(uint64(7), model.MediaVideo, "https://youtu.be/x", nil).
		WillReturnResult(sqlmock.NewResult(44, 1))
	m, err := svc.Add(ctx, 7, model.RoleArtist, model.Media{Kind: "video", URL: " https://youtu.be/x "})
	require.NoError(t, err)
	assert.Equal(t, uint64(44), m.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewRules(t *testing.T) {
	db, mock := newMock(t)
	svc := &ReviewService{
		DB: db, Reviews: repository.NewReviewRepo(db), Bookings: repository.NewBookingRepo(db),
		Events: repository.NewEventRepo(db), Tickets: repository.NewTicketRepo(db), Now: fixedNow,
	}
	ctx := context.Background()
	var verr *ValidationError

	_, err := svc.Create(ctx, 2, ReviewInput{SubjectType: "PROFILE", SubjectID: 7, Rating: 6})
	assert.ErrorAs(t, err, &verr)
	_, err = svc.Create(ctx, 2, ReviewInput{SubjectType: "PROFILE", SubjectID: 7, Rating: 5})
	assert.ErrorAs(t, err, &verr)

	bookingID := uint64(8)
	mock.ExpectQuery(`FROM bookings WHERE id`).WillReturnRows(bookingRow(model.BookingAccepted, 0))
	_, err = svc.Create(ctx, 2, ReviewInput{SubjectType: "PROFILE", SubjectID: 7, BookingID: &bookingID, Rating: 5})
	assert.ErrorIs(t, err, ErrNotEligible)

	// the event in eventRow ends after fixedNow
	mock.ExpectQuery(`FROM events WHERE id`).WillReturnRows(eventRow(model.EventPublished, 10, 1, 0))
	_, err = svc.Create(ctx, 5, ReviewInput{SubjectType: "event", SubjectID: 3, Rating: 4})
	assert.ErrorIs(t, err, ErrNotEligible)

	mock.ExpectQuery(`FROM bookings WHERE id`).WillReturnRows(bookingRow(model.BookingCompleted, 0))
	mock.ExpectExec(`INSERT INTO reviews`).WillReturnResult(sqlmock.NewResult(61, 1))
	rv, err := svc.Create(ctx, 2, ReviewInput{SubjectType: "PROFILE", SubjectID: 7, BookingID: &bookingID, Rating: 5, Comment: "Great set"})
	require.NoError(t, err)
	assert.Equal(t, uint64(61), rv.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefundRequestWhilePendingIsConflict(t *testing.T) {
	db, mock := newMock(t)
	svc := &RefundService{
		Wallets: repository.NewWalletRepo(db),
		Tickets: repository.NewTicketRepo(db),
		Refunds: repository.NewRefundRepo(db),
		Locker:  lock.NewLocalLocker(),
		Log:     logging.Discard(),
		Now:     fixedNow,
	}
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM tickets t JOIN events e`).
		WillReturnRows(sqlmock.NewRows(ticketColumns).
			AddRow(30, 3, 5, "c-1", 5000, 250, model.TicketActive, "tp_1", "Afrobeats Night", model.EventPublished, 2, t0.Add(72*time.Hour), t0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM refund_requests WHERE ticket_id=\? AND status='PENDING'`).
		WithArgs(uint64(30)).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	mock.ExpectRollback()

	_, err := svc.Request(context.Background(), 5, 30, "cannot attend")
	assert.ErrorIs(t, err, repository.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func newEventService(t *testing.T) (*EventService, sqlmock.Sqlmock) {
	db, mock := newMock(t)
	return &EventService{DB: db, Events: repository.NewEventRepo(db), Audit: repository.NewAuditRepo(db), Log: logging.Discard(), Now: fixedNow}, mock
}

func TestEventResubmitAfterReject(t *testing.T) {
	svc, mock := newEventService(t)
	mock.ExpectQuery(`FROM events WHERE id`).WillReturnRows(eventRow(model.EventRejected, 10, 0, 0))
	mock.ExpectExec(`UPDATE events SET status`).
		WithArgs(model.EventPendingReview, sqlmock.AnyArg(), uint64(3), model.EventDraft, model.EventRejected).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM events WHERE id`).WillReturnRows(eventRow(model.EventPendingReview, 10, 0, 0))

	ev, err := svc.Submit(context.Background(), 2, 3)
	require.NoError(t, err)
	assert.Equal(t, model.EventPendingReview, ev.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventCancelPublished(t *testing.T) {
	svc, mock := newEventService(t)
	mock.ExpectQuery(`FROM events WHERE id`).WillReturnRows(eventRow(model.EventPublished, 10, 4, 5000))
	mock.ExpectExec(`UPDATE events SET status`).
		WithArgs(model.EventCancelled, sqlmock.AnyArg(), uint64(3), model.EventDraft, model.EventPendingReview, model.EventPublished).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM events WHERE id`).WillReturnRows(eventRow(model.EventCancelled, 10, 4, 5000))

	ev, err := svc.Cancel(context.Background(), 2, 3)
	require.NoError(t, err)
	assert.Equal(t, model.EventCancelled, ev.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventSubmitPublishedIsInvalidState(t *testing.T) {
	svc, mock := newEventService(t)
	mock.ExpectQuery(`FROM events WHERE id`).WillReturnRows(eventRow(model.EventPublished, 10, 0, 0))
	mock.ExpectExec(`UPDATE events SET status`).WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := svc.Submit(context.Background(), 2, 3)
	assert.ErrorIs(t, err, repository.ErrInvalidState)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventSubmitByOtherOrganizerForbidden(t *testing.T) {
	svc, mock := newEventService(t)
	mock.ExpectQuery(`FROM events WHERE id`).WillReturnRows(eventRow(model.EventDraft, 10, 0, 0))

	_, err := svc.Submit(context.Background(), 9, 3)
	assert.ErrorIs(t, err, repository.ErrForbidden)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventUpdateCapacityBelowSold(t *testing.T) {
	svc, mock := newEventService(t)
	// unpublished after sales: editable again, but 8 tickets are out
	mock.ExpectQuery(`FROM events WHERE id`).WillReturnRows(eventRow(model.EventRejected, 10, 8, 5000))

	in := model.EventInput{Title: "Afrobeats Night", Venue: "Hall A", City: "Lagos",
		StartsAt: t0.Add(72 * time.Hour), EndsAt: t0.Add(76 * time.Hour), Capacity: 5, TicketPriceMinor: 5000}
	_, err := svc.Update(context.Background(), 2, 3, in)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventUpdateSameValuesSucceeds(t *testing.T) {
	svc, mock := newEventService(t)
	mock.ExpectQuery(`FROM events WHERE id`).WillReturnRows(eventRow(model.EventDraft, 10, 0, 5000))
	mock.ExpectExec(`UPDATE events SET title`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT status, tickets_sold FROM events`).WithArgs(uint64(3), uint64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"status", "tickets_sold"}).AddRow(model.EventDraft, 0))
	mock.ExpectQuery(`FROM events WHERE id`).WillReturnRows(eventRow(model.EventDraft, 10, 0, 5000))

	in := model.EventInput{Title: "Afrobeats Night", Venue: "Hall A", City: "Lagos",
		StartsAt: t0.Add(72 * time.Hour), EndsAt: t0.Add(76 * time.Hour), Capacity: 10, TicketPriceMinor: 5000}
	ev, err := svc.Update(context.Background(), 2, 3, in)
	require.NoError(t, err)
	assert.Equal(t, model.EventDraft, ev.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportDismissNeedsNotes(t *testing.T) {
	db, mock := newMock(t)
	svc := &ModerationService{DB: db, Reports: repository.NewReportRepo(db), Audit: repository.NewAuditRepo(db), Log: logging.Discard()}

	assert.ErrorIs(t, svc.Dismiss(context.Background(), 1, 6, " \t"), ErrNotesRequired)
	require.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE reports SET status`).
		WithArgs(model.ReportDismissed, nil, "not abusive", uint64(1), uint64(6)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO audit_logs`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	require.NoError(t, svc.Dismiss(context.Background(), 1, 6, "not abusive"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteEndedEvents(t *testing.T) {
	svc, mock := newEventService(t)
	mock.ExpectExec(`UPDATE events SET status='COMPLETED' WHERE status='PUBLISHED' AND ends_at < \?`).
		WithArgs(t0).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := svc.CompleteEnded(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExpirePendingBookings(t *testing.T) {
	svc, mock, _ := newBookingService(t)
	mock.ExpectExec(`UPDATE bookings SET status='CANCELLED' WHERE status='PENDING' AND service_date < \?`).
		WithArgs(t0).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := svc.ExpirePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventReviewLosingInsertRaceIsConflict(t *testing.T) {
	db, mock := newMock(t)
	svc := &ReviewService{
		DB: db, Reviews: repository.NewReviewRepo(db), Events: repository.NewEventRepo(db),
		Tickets: repository.NewTicketRepo(db), Now: fixedNow,
	}
	mock.ExpectQuery(`FROM events WHERE id`).
		WillReturnRows(sqlmock.NewRows(eventColumns).AddRow(3, 2, "Afrobeats Night", "", "Hall A", "Lagos",
			t0.Add(-5*time.Hour), t0.Add(-time.Hour), 10, 5000, 4, model.EventCompleted, nil, t0, t0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM tickets WHERE owner_id`).WithArgs(uint64(5), uint64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM reviews`).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
	// a concurrent request inserted first; uq_reviews_event rejects this one
	mock.ExpectExec(`INSERT INTO reviews`).
		WithArgs(uint64(5), model.SubjectEvent, uint64(3), nil, 4, nil).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry '5-3' for key 'uq_reviews_event'"})

	_, err := svc.Create(context.Background(), 5, ReviewInput{SubjectType: "EVENT", SubjectID: 3, Rating: 4})
	assert.ErrorIs(t, err, repository.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

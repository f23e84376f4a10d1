package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticketing-marketplace/internal/model"
	"github.com/iliyamo/ticketing-marketplace/internal/utils"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func beginTx(t *testing.T, db *sql.DB, mock sqlmock.Sqlmock) *sql.Tx {
	t.Helper()
	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)
	return tx
}

func TestAdjustTxGuardMissIsInsufficientFunds(t *testing.T) {
	db, mock := newMock(t)
	tx := beginTx(t, db, mock)
	mock.ExpectExec(`UPDATE wallets`).
		WithArgs(int64(-500), int64(0), uint64(7), int64(0), false, int64(-500), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewWalletRepo(db).AdjustTx(context.Background(), tx, 7, -500, 0, false)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustTxAllowNegative(t *testing.T) {
	db, mock := newMock(t)
	tx := beginTx(t, db, mock)
	mock.ExpectExec(`UPDATE wallets`).
		WithArgs(int64(-900), int64(0), uint64(3), int64(0), true, int64(-900), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewWalletRepo(db).AdjustTx(context.Background(), tx, 3, -900, 0, true))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertTransactionDuplicateReference(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(`INSERT INTO transactions`).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	err := NewWalletRepo(db).InsertTransaction(context.Background(), db, &model.Transaction{
		UserID: 1, Type: model.TxDeposit, Status: model.TxPending, AmountMinor: 100, Reference: "dep_x",
	})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestSetTransactionStatusRequiresFromStatus(t *testing.T) {
	db, mock := newMock(t)
	tx := beginTx(t, db, mock)
	mock.ExpectExec(`UPDATE transactions SET status=\?`).
		WithArgs(model.TxCompleted, sqlmock.AnyArg(), "dep_1", model.TxPending).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewWalletRepo(db).SetTransactionStatusTx(context.Background(), tx, "dep_1", model.TxPending, model.TxCompleted, "")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestListTransactionsUsesPageOffset(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM transactions WHERE user_id=\? AND type=\?`).
		WithArgs(uint64(9), model.TxDeposit).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(45))
	mock.ExpectQuery(`FROM transactions WHERE user_id=\? AND type=\? ORDER BY id DESC LIMIT \? OFFSET \?`).
		WithArgs(uint64(9), model.TxDeposit, 20, 40).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "type", "status", "amount_minor", "reference", "provider_ref", "description", "created_at", "updated_at"}).
			AddRow(1, 9, model.TxDeposit, model.TxCompleted, 5000, "dep_a", nil, nil, now, now))

	items, total, err := NewWalletRepo(db).ListTransactions(context.Background(), 9, model.TxDeposit, utils.ParsePage("3", "20"))
	require.NoError(t, err)
	assert.Equal(t, int64(45), total)
	require.Len(t, items, 1)
	assert.Nil(t, items[0].ProviderRef)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventTransitionMismatchIsInvalidState(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(`UPDATE events SET status=\?.*status IN \(\?\)`).
		WithArgs(model.EventPublished, nil, uint64(4), model.EventPendingReview).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewEventRepo(db).Transition(context.Background(), db, 4, []string{model.EventPendingReview}, model.EventPublished, nil)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestReviewSummaryRoundsAverage(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`SELECT rating, COUNT\(\*\) FROM reviews`).
		WithArgs(model.SubjectProfile, uint64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"rating", "n"}).AddRow(5, 2).AddRow(4, 1))

	s, err := NewReviewRepo(db).Summary(context.Background(), model.SubjectProfile, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), s.Count)
	assert.Equal(t, 4.67, s.Average)
	assert.Equal(t, [5]int64{0, 0, 0, 1, 2}, s.Histogram)
}

func TestFindByPairOrdersParticipants(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now()
	mock.ExpectQuery(`FROM conversations WHERE user_low_id=\? AND user_high_id=\?`).
		WithArgs(uint64(3), uint64(8)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_low_id", "user_high_id", "booking_id", "last_message_at", "created_at"}).
			AddRow(11, 3, 8, nil, nil, now))

	c, err := NewConversationRepo(db).FindByPair(context.Background(), db, 8, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), c.ID)
	assert.True(t, c.Has(8))
	assert.Equal(t, [2]uint64{3, 8}, c.Participants)
}

func TestRegisterCreatesProfileAndWallet(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO users`).
		WithArgs("a@b.co", sqlmock.AnyArg(), model.RoleArtist).
		WillReturnResult(sqlmock.NewResult(12, 1))
	mock.ExpectExec(`INSERT INTO profiles`).WithArgs(uint64(12), "Ada").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO wallets`).WithArgs(uint64(12), "NGN").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	id, err := NewUserRepo(db).Register(context.Background(), " A@B.co ", "pw", model.RoleArtist, "Ada", "ngn", 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterDuplicateEmailRollsBack(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO users`).WillReturnError(&mysql.MySQLError{Number: 1062})
	mock.ExpectRollback()

	_, err := NewUserRepo(db).Register(context.Background(), "a@b.co", "pw", model.RoleCustomer, "a", "ngn", 4)
	assert.ErrorIs(t, err, ErrEmailExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func eventInput(capacity uint32) model.EventInput {
	start := time.Date(2030, 6, 1, 18, 0, 0, 0, time.UTC)
	return model.EventInput{Title: "Jazz Brunch", Venue: "Terra Kulture", City: "Lagos",
		StartsAt: start, EndsAt: start.Add(3 * time.Hour), Capacity: capacity, TicketPriceMinor: 8000}
}

func TestEventUpdateGuardsCapacityAgainstSold(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(`(?s)UPDATE events SET title=.*status IN \('DRAFT','REJECTED'\) AND tickets_sold <= \?`).
		WithArgs("Jazz Brunch", nil, "Terra Kulture", "Lagos", sqlmock.AnyArg(), sqlmock.AnyArg(), 5, int64(8000),
			uint64(3), uint64(2), 5).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT status, tickets_sold FROM events WHERE id=\? AND organizer_id=\?`).
		WithArgs(uint64(3), uint64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"status", "tickets_sold"}).AddRow(model.EventRejected, 8))

	err := NewEventRepo(db).Update(context.Background(), 3, 2, eventInput(5))
	assert.ErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventUpdateZeroRowsOutcomes(t *testing.T) {
	cases := []struct {
		name string
		rows *sqlmock.Rows
		want error
	}{
		{"unchanged values", sqlmock.NewRows([]string{"status", "tickets_sold"}).AddRow(model.EventDraft, 0), nil},
		{"published", sqlmock.NewRows([]string{"status", "tickets_sold"}).AddRow(model.EventPublished, 0), ErrInvalidState},
		{"missing", sqlmock.NewRows([]string{"status", "tickets_sold"}), ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMock(t)
			mock.ExpectExec(`UPDATE events SET title`).WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery(`SELECT status, tickets_sold FROM events`).WillReturnRows(tc.rows)

			err := NewEventRepo(db).Update(context.Background(), 3, 2, eventInput(10))
			if tc.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.want)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAddSoldTxReturnIgnoresCapacity(t *testing.T) {
	db, mock := newMock(t)
	tx := beginTx(t, db, mock)
	// a refund after capacity was lowered must still go through
	mock.ExpectExec(`UPDATE events SET tickets_sold = tickets_sold \+ \?\s+WHERE id=\? AND tickets_sold \+ \? >= 0 AND \(\? <= 0 OR tickets_sold \+ \? <= capacity\)`).
		WithArgs(-1, uint64(3), -1, -1, -1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, NewEventRepo(db).AddSoldTx(context.Background(), tx, 3, -1))

	mock.ExpectExec(`UPDATE events SET tickets_sold`).
		WithArgs(3, uint64(3), 3, 3, 3).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, NewEventRepo(db).AddSoldTx(context.Background(), tx, 3, 3), ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHideMedia(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMediaRepo(db)

	mock.ExpectExec(`UPDATE media SET is_hidden=1 WHERE id=\?`).WithArgs(uint64(44)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Hide(context.Background(), db, 44))

	mock.ExpectExec(`UPDATE media SET is_hidden=1`).WithArgs(uint64(45)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM media WHERE id=\?`).WithArgs(uint64(45)).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	require.NoError(t, repo.Hide(context.Background(), db, 45))

	mock.ExpectExec(`UPDATE media SET is_hidden=1`).WithArgs(uint64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM media WHERE id=\?`).WithArgs(uint64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
	assert.ErrorIs(t, repo.Hide(context.Background(), db, 99), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListApprovedPayoutsBeforeCutoff(t *testing.T) {
	db, mock := newMock(t)
	cutoff := time.Date(2030, 5, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM payout_requests WHERE status='APPROVED' AND processed_at < \? ORDER BY id LIMIT \?`).
		WithArgs(cutoff, 100).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "amount_minor", "bank_code", "account_number", "account_name",
			"reference", "status", "transfer_ref", "admin_notes", "processed_by", "processed_at", "created_at"}).
			AddRow(5, 21, 250000, "058", "0123456789", "ADA OKAFOR", "po_abc", model.PayoutApproved, nil, nil, 1, cutoff.Add(-time.Hour), cutoff))

	out, err := NewPayoutRepo(db).ListApprovedBefore(context.Background(), cutoff, 100)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "po_abc", out[0].Reference)
	require.NotNil(t, out[0].ProcessedBy)
	assert.Equal(t, uint64(1), *out[0].ProcessedBy)
	require.NoError(t, mock.ExpectationsWereMet())
}

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticketing-marketplace/internal/lock"
	"github.com/iliyamo/ticketing-marketplace/internal/logging"
	"github.com/iliyamo/ticketing-marketplace/internal/model"
	"github.com/iliyamo/ticketing-marketplace/internal/payment"
	"github.com/iliyamo/ticketing-marketplace/internal/repository"
	"github.com/iliyamo/ticketing-marketplace/internal/stream"
)

var payoutColumns = []string{"id", "user_id", "amount_minor", "bank_code", "account_number", "account_name", "reference", "status",
	"transfer_ref", "admin_notes", "processed_by", "processed_at", "created_at"}

func payoutRow(status string) *sqlmock.Rows {
	return sqlmock.NewRows(payoutColumns).
		AddRow(5, 21, 250000, "058", "0123456789", "ADA OKAFOR", "po_abc", status, nil, nil, nil, nil, t0)
}

func newPayoutService(t *testing.T, bank *fakeBank) (*PayoutService, sqlmock.Sqlmock, *recordingStream) {
	db, mock := newMock(t)
	rec := &recordingStream{}
	return &PayoutService{
		Wallets:       repository.NewWalletRepo(db),
		Payouts:       repository.NewPayoutRepo(db),
		Users:         repository.NewUserRepo(db),
		Audit:         repository.NewAuditRepo(db),
		Bank:          bank,
		Locker:        lock.NewLocalLocker(),
		Stream:        rec,
		MinWithdrawal: 100000,
		Currency:      "ngn",
		Log:           logging.Discard(),
	}, mock, rec
}

func expectApproveTx(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM payout_requests WHERE id`).WithArgs(uint64(5)).WillReturnRows(payoutRow(model.PayoutPending))
	mock.ExpectExec(`UPDATE payout_requests`).
		WithArgs(model.PayoutApproved, uint64(1), sqlmock.AnyArg(), sqlmock.AnyArg(), uint64(5), model.PayoutPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE wallets`).
		WithArgs(int64(-250000), int64(-250000), uint64(21), int64(-250000), false, int64(-250000), int64(-250000)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE transactions SET status`).
		WithArgs(model.TxCompleted, sqlmock.AnyArg(), "po_abc", model.TxPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO audit_logs`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
}

func TestApprovePayoutPaid(t *testing.T) {
	bank := &fakeBank{}
	svc, mock, rec := newPayoutService(t, bank)
	expectApproveTx(mock)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE payout_requests`).
		WithArgs(model.PayoutPaid, uint64(1), sqlmock.AnyArg(), sqlmock.AnyArg(), uint64(5), model.PayoutApproved).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO audit_logs`).WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	p, err := svc.Approve(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.Equal(t, model.PayoutPaid, p.Status)
	require.NotNil(t, p.TransferRef)
	assert.Equal(t, "TRF_po_abc", *p.TransferRef)
	assert.Equal(t, []string{"po_abc"}, bank.transfers)
	assert.Equal(t, []string{stream.PayoutApproved, stream.PayoutPaid}, rec.types())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovePayoutTransferFailureReturnsFunds(t *testing.T) {
	svc, mock, rec := newPayoutService(t, &fakeBank{transferErr: errors.New("insufficient balance on integration")})
	expectApproveTx(mock)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE payout_requests`).
		WithArgs(model.PayoutFailed, uint64(1), sqlmock.AnyArg(), sqlmock.AnyArg(), uint64(5), model.PayoutApproved).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE wallets`).
		WithArgs(int64(250000), int64(0), uint64(21), int64(0), true, int64(250000), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE transactions SET status`).
		WithArgs(model.TxFailed, sqlmock.AnyArg(), "po_abc", model.TxCompleted).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO audit_logs`).WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	p, err := svc.Approve(context.Background(), 1, 5)
	assert.ErrorIs(t, err, ErrTransferFailed)
	assert.Equal(t, model.PayoutFailed, p.Status)
	assert.Equal(t, []string{stream.PayoutApproved, stream.PayoutFailed}, rec.types())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApproveProcessedPayoutIsInvalidState(t *testing.T) {
	svc, mock, _ := newPayoutService(t, &fakeBank{})
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM payout_requests WHERE id`).WillReturnRows(payoutRow(model.PayoutPaid))
	mock.ExpectRollback()

	_, err := svc.Approve(context.Background(), 1, 5)
	assert.ErrorIs(t, err, repository.ErrInvalidState)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovePayoutBusy(t *testing.T) {
	svc, mock, _ := newPayoutService(t, &fakeBank{})
	release, err := svc.Locker.Acquire(context.Background(), "payout:5", lockTTL)
	require.NoError(t, err)
	defer release()

	_, err = svc.Approve(context.Background(), 1, 5)
	assert.ErrorIs(t, err, lock.ErrLocked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRejectPayoutRequiresNotes(t *testing.T) {
	svc, mock, _ := newPayoutService(t, &fakeBank{})
	_, err := svc.Reject(context.Background(), 1, 5, "   ")
	assert.ErrorIs(t, err, ErrNotesRequired)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRejectPayoutReleasesHold(t *testing.T) {
	svc, mock, rec := newPayoutService(t, &fakeBank{})
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM payout_requests WHERE id`).WillReturnRows(payoutRow(model.PayoutPending))
	mock.ExpectExec(`UPDATE payout_requests`).
		WithArgs(model.PayoutRejected, uint64(1), "account name mismatch", sqlmock.AnyArg(), uint64(5), model.PayoutPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE wallets`).
		WithArgs(int64(0), int64(-250000), uint64(21), int64(-250000), false, int64(0), int64(-250000)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE transactions SET status`).
		WithArgs(model.TxFailed, sqlmock.AnyArg(), "po_abc", model.TxPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO audit_logs`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	p, err := svc.Reject(context.Background(), 1, 5, "account name mismatch")
	require.NoError(t, err)
	assert.Equal(t, model.PayoutRejected, p.Status)
	assert.Equal(t, []string{stream.PayoutRejected}, rec.types())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestWithdrawalRules(t *testing.T) {
	svc, mock, _ := newPayoutService(t, &fakeBank{})
	ctx := context.Background()

	_, err := svc.RequestWithdrawal(ctx, 21, model.RoleCustomer, 200000, "058", "0123456789")
	assert.ErrorIs(t, err, ErrRoleNotAllowed)

	_, err = svc.RequestWithdrawal(ctx, 21, model.RoleArtist, 5000, "058", "0123456789")
	assert.ErrorIs(t, err, ErrBelowMinimum)

	_, err = svc.RequestWithdrawal(ctx, 21, model.RoleArtist, 200000, "058", "12345")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM wallets WHERE user_id`).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "balance_minor", "held_minor", "currency", "updated_at"}).
			AddRow(21, 150000, 0, "NGN", t0))
	mock.ExpectExec(`UPDATE wallets`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()
	_, err = svc.RequestWithdrawal(ctx, 21, model.RoleArtist, 200000, "058", "0123456789")
	assert.ErrorIs(t, err, repository.ErrInsufficientFunds)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestWithdrawalHoldsFunds(t *testing.T) {
	svc, mock, rec := newPayoutService(t, &fakeBank{})
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM wallets WHERE user_id`).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "balance_minor", "held_minor", "currency", "updated_at"}).
			AddRow(21, 500000, 0, "NGN", t0))
	mock.ExpectExec(`UPDATE wallets`).
		WithArgs(int64(0), int64(200000), uint64(21), int64(200000), false, int64(0), int64(200000)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO payout_requests`).WillReturnResult(sqlmock.NewResult(9, 1))
	mock.ExpectExec(`INSERT INTO transactions`).WillReturnResult(sqlmock.NewResult(40, 1))
	mock.ExpectCommit()

	p, err := svc.RequestWithdrawal(context.Background(), 21, model.RoleProvider, 200000, "058", "0123456789")
	require.NoError(t, err)
	assert.Equal(t, uint64(9), p.ID)
	assert.Equal(t, model.PayoutPending, p.Status)
	assert.Equal(t, "ADA OKAFOR", p.AccountName)
	assert.Equal(t, []string{stream.WithdrawalRequested}, rec.types())
	require.NoError(t, mock.ExpectationsWereMet())
}

func expectReversalTx(mock sqlmock.Sqlmock, id, userID uint64, amount int64, ref string) {
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE payout_requests`).
		WithArgs(model.PayoutFailed, uint64(1), sqlmock.AnyArg(), sqlmock.AnyArg(), id, model.PayoutApproved).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE wallets`).
		WithArgs(amount, int64(0), userID, int64(0), true, amount, int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE transactions SET status`).
		WithArgs(model.TxFailed, sqlmock.AnyArg(), ref, model.TxCompleted).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO audit_logs`).WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectCommit()
}

func TestApprovePayoutSettlesAfterCallerGoesAway(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var transferCtxErr error
	bank := &fakeBank{onTransfer: func(tctx context.Context) error {
		cancel() // admin disconnects mid-transfer
		transferCtxErr = tctx.Err()
		return context.Canceled
	}}
	svc, mock, rec := newPayoutService(t, bank)
	expectApproveTx(mock)
	expectReversalTx(mock, 5, 21, 250000, "po_abc")

	p, err := svc.Approve(ctx, 1, 5)
	assert.ErrorIs(t, err, ErrTransferFailed)
	assert.NoError(t, transferCtxErr)
	assert.Equal(t, model.PayoutFailed, p.Status)
	assert.Equal(t, []string{stream.PayoutApproved, stream.PayoutFailed}, rec.types())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovePayoutErrorButProviderSentIt(t *testing.T) {
	bank := &fakeBank{
		transferErr: errors.New("read: connection reset by peer"),
		verified:    map[string]payment.Transfer{"po_abc": {Code: "TRF_late", Status: payment.TransferSuccess}},
	}
	svc, mock, _ := newPayoutService(t, bank)
	expectApproveTx(mock)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE payout_requests`).
		WithArgs(model.PayoutPaid, uint64(1), sqlmock.AnyArg(), "TRF_late", uint64(5), model.PayoutApproved).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO audit_logs`).WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	p, err := svc.Approve(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.Equal(t, model.PayoutPaid, p.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovePayoutOutcomeUnknownStaysApproved(t *testing.T) {
	bank := &fakeBank{
		transferErr: payment.ErrGatewayError,
		verifyErr:   payment.ErrGatewayError,
	}
	svc, mock, _ := newPayoutService(t, bank)
	expectApproveTx(mock)

	p, err := svc.Approve(context.Background(), 1, 5)
	assert.ErrorIs(t, err, ErrTransferUnsure)
	assert.Equal(t, model.PayoutApproved, p.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileApprovedPayouts(t *testing.T) {
	bank := &fakeBank{verified: map[string]payment.Transfer{
		"po_abc": {Code: "TRF_abc", Status: payment.TransferSuccess},
		"po_ghi": {Code: "TRF_ghi", Status: payment.TransferPending},
	}}
	svc, mock, rec := newPayoutService(t, bank)
	mock.ExpectQuery(`FROM payout_requests WHERE status='APPROVED' AND processed_at < \?`).
		WithArgs(sqlmock.AnyArg(), 100).
		WillReturnRows(sqlmock.NewRows(payoutColumns).
			AddRow(5, 21, 250000, "058", "0123456789", "ADA OKAFOR", "po_abc", model.PayoutApproved, nil, nil, 1, t0, t0).
			AddRow(6, 22, 100000, "058", "0123456789", "ADA OKAFOR", "po_def", model.PayoutApproved, nil, nil, 1, t0, t0).
			AddRow(7, 23, 120000, "058", "0123456789", "ADA OKAFOR", "po_ghi", model.PayoutApproved, nil, nil, 1, t0, t0))
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE payout_requests`).
		WithArgs(model.PayoutPaid, uint64(1), sqlmock.AnyArg(), "TRF_abc", uint64(5), model.PayoutApproved).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO audit_logs`).WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()
	expectReversalTx(mock, 6, 22, 100000, "po_def")

	n, err := svc.ReconcileApproved(context.Background(), 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{stream.PayoutPaid, stream.PayoutFailed}, rec.types())
	require.NoError(t, mock.ExpectationsWereMet())
}

package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/ticketing-marketplace/internal/lock"
	"github.com/iliyamo/ticketing-marketplace/internal/metrics"
	"github.com/iliyamo/ticketing-marketplace/internal/model"
	"github.com/iliyamo/ticketing-marketplace/internal/payment"
	"github.com/iliyamo/ticketing-marketplace/internal/repository"
	"github.com/iliyamo/ticketing-marketplace/internal/stream"
	"github.com/iliyamo/ticketing-marketplace/internal/utils"
)

var accountNumberRe = regexp.MustCompile(`^[0-9]{10}$`)

// PayoutService runs withdrawals: the bank lookups, the request that
// reserves funds and the admin processing that moves them.
type PayoutService struct {
	Wallets       *repository.WalletRepo
	Payouts       *repository.PayoutRepo
	Users         *repository.UserRepo
	Audit         *repository.AuditRepo
	Bank          payment.BankProvider
	Locker        lock.Locker
	Stream        stream.Publisher
	Notifier      *Notifier
	Cache         *redis.Client // optional; caches the bank list
	BanksTTL      time.Duration
	MinWithdrawal int64
	Currency      string
	Log           logrus.FieldLogger
}

// Banks returns the provider's bank list, cached in Redis when available.
func (s *PayoutService) Banks(ctx context.Context) ([]payment.Bank, error) {
	key := "banks:" + strings.ToLower(s.Currency)
	if s.Cache != nil {
		if raw, err := s.Cache.Get(ctx, key).Bytes(); err == nil {
			var banks []payment.Bank
			if json.Unmarshal(raw, &banks) == nil {
				return banks, nil
			}
		}
	}
	banks, err := s.Bank.ListBanks(ctx)
	if err != nil {
		return nil, err
	}
	if s.Cache != nil && len(banks) > 0 {
		if raw, err := json.Marshal(banks); err == nil {
			if err := s.Cache.Set(ctx, key, raw, s.BanksTTL).Err(); err != nil {
				s.Log.WithError(err).Debug("bank list not cached")
			}
		}
	}
	return banks, nil
}

// VerifyAccount resolves the account holder's name.
func (s *PayoutService) VerifyAccount(ctx context.Context, bankCode, accountNumber string) (payment.Account, error) {
	bankCode = strings.TrimSpace(bankCode)
	accountNumber = strings.TrimSpace(accountNumber)
	if bankCode == "" {
		return payment.Account{}, invalid("bank_code is required")
	}
	if !accountNumberRe.MatchString(accountNumber) {
		return payment.Account{}, invalid("account_number must be exactly 10 digits")
	}
	return s.Bank.ResolveAccount(ctx, bankCode, accountNumber)
}

// RequestWithdrawal reserves amount in the user's wallet and files a
// PENDING payout request for admin review.
func (s *PayoutService) RequestWithdrawal(ctx context.Context, userID uint64, role string, amountMinor int64, bankCode, accountNumber string) (model.PayoutRequest, error) {
	if !model.CanWithdraw(role) {
		return model.PayoutRequest{}, ErrRoleNotAllowed
	}
	if amountMinor < s.MinWithdrawal {
		return model.PayoutRequest{}, fmt.Errorf("%w (%s)", ErrBelowMinimum, utils.FormatAmount(s.MinWithdrawal))
	}
	acct, err := s.VerifyAccount(ctx, bankCode, accountNumber)
	if err != nil {
		return model.PayoutRequest{}, err
	}

	p := model.PayoutRequest{
		UserID:        userID,
		AmountMinor:   amountMinor,
		BankCode:      acct.BankCode,
		AccountNumber: acct.AccountNumber,
		AccountName:   acct.AccountName,
		Reference:     "po_" + uuid.NewString(),
	}
	if p.BankCode == "" {
		p.BankCode = strings.TrimSpace(bankCode)
	}
	err = repository.WithTx(ctx, s.Wallets.DB(), func(tx *sql.Tx) error {
		if _, err := s.Wallets.GetForUpdateTx(ctx, tx, userID); err != nil {
			return err
		}
		if err := s.Wallets.AdjustTx(ctx, tx, userID, 0, amountMinor, false); err != nil {
			return err
		}
		if err := s.Payouts.CreateTx(ctx, tx, &p); err != nil {
			return err
		}
		return s.Wallets.InsertTransaction(ctx, tx, &model.Transaction{
			UserID:      userID,
			Type:        model.TxWithdrawal,
			Status:      model.TxPending,
			AmountMinor: -amountMinor,
			Reference:   p.Reference,
			Description: "Withdrawal to " + p.AccountName,
		})
	})
	metrics.ObserveMoney("withdraw_request", err)
	if err != nil {
		return model.PayoutRequest{}, err
	}
	s.Log.WithFields(logrus.Fields{"user_id": userID, "payout_id": p.ID, "amount_minor": amountMinor}).Info("withdrawal requested")
	publish(ctx, s.Stream, s.Log, stream.LedgerEvent{
		Type: stream.WithdrawalRequested, Reference: p.Reference, UserID: userID,
		AmountMinor: amountMinor, Currency: s.Currency,
	})
	return p, nil
}

// settleTimeout bounds the bank transfer and the bookkeeping that follows
// it.  Both run detached from the caller once the debit has committed.
const (
	settleTimeout = 90 * time.Second
	payoutLockTTL = 2 * time.Minute
)

// Approve debits the reserved funds and sends the bank transfer.  A
// failed transfer moves the payout to FAILED and returns the money to the
// wallet; the returned payout then carries status FAILED together with
// ErrTransferFailed.  When the provider cannot say whether the transfer
// went out, the payout stays APPROVED, ErrTransferUnsure is returned and
// ReconcileApproved settles it later.
func (s *PayoutService) Approve(ctx context.Context, adminID, payoutID uint64) (model.PayoutRequest, error) {
	release, err := s.Locker.Acquire(ctx, fmt.Sprintf("payout:%d", payoutID), payoutLockTTL)
	if err != nil {
		return model.PayoutRequest{}, err
	}
	defer release()

	var p model.PayoutRequest
	err = repository.WithTx(ctx, s.Wallets.DB(), func(tx *sql.Tx) error {
		var err error
		p, err = s.Payouts.GetForUpdateTx(ctx, tx, payoutID)
		if err != nil {
			return err
		}
		if p.Status != model.PayoutPending {
			return repository.ErrInvalidState
		}
		if err := s.Payouts.TransitionTx(ctx, tx, p.ID, model.PayoutPending, model.PayoutApproved, adminID, "", ""); err != nil {
			return err
		}
		if err := s.Wallets.AdjustTx(ctx, tx, p.UserID, -p.AmountMinor, -p.AmountMinor, false); err != nil {
			return err
		}
		if err := s.Wallets.SetTransactionStatusTx(ctx, tx, p.Reference, model.TxPending, model.TxCompleted, ""); err != nil {
			return err
		}
		return s.Audit.Record(ctx, tx, adminID, "payout.approve", "payout", p.ID,
			map[string]any{"amount_minor": p.AmountMinor, "user_id": p.UserID})
	})
	metrics.ObserveMoney("payout_approve", err)
	if err != nil {
		return model.PayoutRequest{}, err
	}
	p.Status = model.PayoutApproved
	publish(ctx, s.Stream, s.Log, stream.LedgerEvent{
		Type: stream.PayoutApproved, Reference: p.Reference, UserID: p.UserID,
		AmountMinor: p.AmountMinor, Currency: s.Currency, ActorID: adminID,
	})

	// The wallet is debited now; the rest must finish even if the admin
	// goes away.
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	log := s.Log.WithFields(logrus.Fields{"payout_id": p.ID, "admin_id": adminID})
	acct := payment.Account{BankCode: p.BankCode, AccountNumber: p.AccountNumber, AccountName: p.AccountName}
	tr, terr := s.Bank.Transfer(sctx, acct, p.AmountMinor, p.Reference, "Marketplace payout")
	if terr == nil {
		return s.markPaid(sctx, p, adminID, tr.Code)
	}

	log.WithError(terr).Warn("bank transfer failed, checking provider")
	vtr, verr := s.Bank.VerifyTransfer(sctx, p.Reference)
	switch {
	case verr == nil && !vtr.Failed():
		return s.markPaid(sctx, p, adminID, vtr.Code)
	case verr == nil, errors.Is(verr, payment.ErrTransferNotFound):
		return s.reverse(sctx, p, adminID, "transfer failed: "+terr.Error())
	}
	log.WithError(verr).Error("transfer outcome unknown, left for reconciliation")
	return p, ErrTransferUnsure
}

// markPaid records a sent transfer on an APPROVED payout.
func (s *PayoutService) markPaid(ctx context.Context, p model.PayoutRequest, actorID uint64, transferRef string) (model.PayoutRequest, error) {
	err := repository.WithTx(ctx, s.Wallets.DB(), func(tx *sql.Tx) error {
		if err := s.Payouts.TransitionTx(ctx, tx, p.ID, model.PayoutApproved, model.PayoutPaid, actorID, "", transferRef); err != nil {
			return err
		}
		return s.Audit.Record(ctx, tx, actorID, "payout.paid", "payout", p.ID, map[string]any{"transfer_ref": transferRef})
	})
	log := s.Log.WithFields(logrus.Fields{"payout_id": p.ID, "actor_id": actorID})
	if err != nil {
		log.WithError(err).Error("transfer sent but payout not marked PAID")
		return p, err
	}
	p.Status = model.PayoutPaid
	p.TransferRef = &transferRef
	log.Info("payout paid")
	publish(ctx, s.Stream, s.Log, stream.LedgerEvent{
		Type: stream.PayoutPaid, Reference: p.Reference, UserID: p.UserID,
		AmountMinor: p.AmountMinor, Currency: s.Currency, ActorID: actorID,
	})
	s.notifyUser(ctx, p.UserID, "Your payout has been sent",
		fmt.Sprintf("We sent %s to %s (%s).", utils.FormatAmount(p.AmountMinor), p.AccountName, p.AccountNumber))
	return p, nil
}

// reverse fails an APPROVED payout and credits the amount back.
func (s *PayoutService) reverse(ctx context.Context, p model.PayoutRequest, actorID uint64, note string) (model.PayoutRequest, error) {
	err := repository.WithTx(ctx, s.Wallets.DB(), func(tx *sql.Tx) error {
		if err := s.Payouts.TransitionTx(ctx, tx, p.ID, model.PayoutApproved, model.PayoutFailed, actorID, note, ""); err != nil {
			return err
		}
		if err := s.Wallets.AdjustTx(ctx, tx, p.UserID, p.AmountMinor, 0, true); err != nil {
			return err
		}
		if err := s.Wallets.SetTransactionStatusTx(ctx, tx, p.Reference, model.TxCompleted, model.TxFailed, ""); err != nil {
			return err
		}
		return s.Audit.Record(ctx, tx, actorID, "payout.failed", "payout", p.ID, map[string]any{"error": note})
	})
	metrics.ObserveMoney("payout_reverse", err)
	if err != nil {
		s.Log.WithError(err).WithField("payout_id", p.ID).Error("payout reversal failed")
		return p, err
	}
	p.Status = model.PayoutFailed
	p.AdminNotes = &note
	publish(ctx, s.Stream, s.Log, stream.LedgerEvent{
		Type: stream.PayoutFailed, Reference: p.Reference, UserID: p.UserID,
		AmountMinor: p.AmountMinor, Currency: s.Currency, ActorID: actorID,
	})
	s.notifyUser(ctx, p.UserID, "Your payout could not be completed",
		fmt.Sprintf("The transfer of %s failed and the amount is back in your wallet.", utils.FormatAmount(p.AmountMinor)))
	return p, ErrTransferFailed
}

// ReconcileApproved settles payouts left APPROVED for longer than maxAge
// by asking the provider what happened to their transfer.  A transfer the
// provider never saw, or one that failed, is reversed; one that went
// through is marked PAID.  Pending transfers are left for the next run.
func (s *PayoutService) ReconcileApproved(ctx context.Context, maxAge time.Duration) (int, error) {
	stale, err := s.Payouts.ListApprovedBefore(ctx, time.Now().UTC().Add(-maxAge), 100)
	if err != nil {
		return 0, err
	}
	settled := 0
	for _, p := range stale {
		if s.reconcileOne(ctx, p) {
			settled++
		}
	}
	return settled, nil
}

func (s *PayoutService) reconcileOne(ctx context.Context, p model.PayoutRequest) bool {
	log := s.Log.WithFields(logrus.Fields{"payout_id": p.ID, "reference": p.Reference})
	release, err := s.Locker.Acquire(ctx, fmt.Sprintf("payout:%d", p.ID), payoutLockTTL)
	if err != nil {
		log.WithError(err).Debug("payout busy, skipped")
		return false
	}
	defer release()

	var actorID uint64
	if p.ProcessedBy != nil {
		actorID = *p.ProcessedBy
	}
	tr, err := s.Bank.VerifyTransfer(ctx, p.Reference)
	switch {
	case err == nil && tr.Status == payment.TransferSuccess:
		_, err = s.markPaid(ctx, p, actorID, tr.Code)
	case err == nil && tr.Failed():
		_, err = s.reverse(ctx, p, actorID, "transfer "+tr.Status+" at provider")
	case errors.Is(err, payment.ErrTransferNotFound):
		_, err = s.reverse(ctx, p, actorID, "transfer never reached the provider")
	case err == nil:
		log.WithField("status", tr.Status).Debug("transfer still in flight")
		return false
	default:
		log.WithError(err).Warn("transfer lookup failed")
		return false
	}
	if err != nil && !errors.Is(err, ErrTransferFailed) {
		log.WithError(err).Error("payout reconciliation failed")
		return false
	}
	return true
}

// Reject releases the reserved funds.  Notes are mandatory.
func (s *PayoutService) Reject(ctx context.Context, adminID, payoutID uint64, notes string) (model.PayoutRequest, error) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return model.PayoutRequest{}, ErrNotesRequired
	}
	release, err := s.Locker.Acquire(ctx, fmt.Sprintf("payout:%d", payoutID), lockTTL)
	if err != nil {
		return model.PayoutRequest{}, err
	}
	defer release()

	var p model.PayoutRequest
	err = repository.WithTx(ctx, s.Wallets.DB(), func(tx *sql.Tx) error {
		var err error
		p, err = s.Payouts.GetForUpdateTx(ctx, tx, payoutID)
		if err != nil {
			return err
		}
		if p.Status != model.PayoutPending {
			return repository.ErrInvalidState
		}
		if err := s.Payouts.TransitionTx(ctx, tx, p.ID, model.PayoutPending, model.PayoutRejected, adminID, notes, ""); err != nil {
			return err
		}
		if err := s.Wallets.AdjustTx(ctx, tx, p.UserID, 0, -p.AmountMinor, false); err != nil {
			return err
		}
		if err := s.Wallets.SetTransactionStatusTx(ctx, tx, p.Reference, model.TxPending, model.TxFailed, ""); err != nil {
			return err
		}
		return s.Audit.Record(ctx, tx, adminID, "payout.reject", "payout", p.ID, map[string]any{"notes": notes})
	})
	metrics.ObserveMoney("payout_reject", err)
	if err != nil {
		return model.PayoutRequest{}, err
	}
	p.Status = model.PayoutRejected
	p.AdminNotes = &notes
	publish(ctx, s.Stream, s.Log, stream.LedgerEvent{
		Type: stream.PayoutRejected, Reference: p.Reference, UserID: p.UserID,
		AmountMinor: p.AmountMinor, Currency: s.Currency, ActorID: adminID,
	})
	s.notifyUser(ctx, p.UserID, "Your payout request was rejected", "Reason: "+notes)
	return p, nil
}

func (s *PayoutService) notifyUser(ctx context.Context, userID uint64, subject, text string) {
	if s.Notifier == nil || s.Users == nil {
		return
	}
	u, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.Log.WithError(err).Warn("notification recipient lookup failed")
		}
		return
	}
	s.Notifier.notifyAsync(u.Email, subject, text, "payout")
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/ticketing-marketplace/internal/metrics"
	"github.com/iliyamo/ticketing-marketplace/internal/model"
	"github.com/iliyamo/ticketing-marketplace/internal/payment"
	"github.com/iliyamo/ticketing-marketplace/internal/repository"
	"github.com/iliyamo/ticketing-marketplace/internal/stream"
)

// Stripe webhook event types the deposit flow reacts to.
const (
	webhookSucceeded = "payment_intent.succeeded"
	webhookFailed    = "payment_intent.payment_failed"
	webhookCanceled  = "payment_intent.canceled"
)

// DepositResult is returned to the client that started a deposit.
type DepositResult struct {
	Reference    string `json:"reference"`
	ClientSecret string `json:"client_secret"`
	AmountMinor  int64  `json:"amount_minor"`
}

// WalletService runs card deposits into wallets.
type WalletService struct {
	Wallets  *repository.WalletRepo
	Gateway  payment.DepositGateway
	Stream   stream.Publisher
	Currency string
	Log      logrus.FieldLogger
}

// StartDeposit creates a payment intent keyed on a fresh reference and
// records a PENDING DEPOSIT line for it.
func (s *WalletService) StartDeposit(ctx context.Context, userID uint64, amountMinor int64) (DepositResult, error) {
	if amountMinor <= 0 {
		return DepositResult{}, invalid("amount must be positive")
	}
	ref := "dep_" + uuid.NewString()
	intent, err := s.Gateway.CreateDeposit(ctx, ref, amountMinor, s.Currency, userID)
	if err != nil {
		metrics.ObserveMoney("deposit_start", err)
		return DepositResult{}, err
	}
	providerRef := intent.ID
	err = s.Wallets.InsertTransaction(ctx, s.Wallets.DB(), &model.Transaction{
		UserID:      userID,
		Type:        model.TxDeposit,
		Status:      model.TxPending,
		AmountMinor: amountMinor,
		Reference:   ref,
		ProviderRef: &providerRef,
		Description: "Card deposit",
	})
	metrics.ObserveMoney("deposit_start", err)
	if err != nil {
		return DepositResult{}, err
	}
	s.Log.WithFields(logrus.Fields{"user_id": userID, "reference": ref, "amount_minor": amountMinor}).Info("deposit started")
	return DepositResult{Reference: ref, ClientSecret: intent.ClientSecret, AmountMinor: amountMinor}, nil
}

// CompleteDeposit credits the wallet for a succeeded intent.  It runs at
// most once per reference: a COMPLETED line is left untouched and reported
// as not credited.  A line the sweeper already failed is still credited
// because the money was captured.
func (s *WalletService) CompleteDeposit(ctx context.Context, reference, intentID string, amountMinor int64) (bool, error) {
	var line model.Transaction
	credited := false
	err := repository.WithTx(ctx, s.Wallets.DB(), func(tx *sql.Tx) error {
		var err error
		line, err = s.Wallets.GetTransactionForUpdateTx(ctx, tx, reference)
		if err != nil {
			return err
		}
		if line.Type != model.TxDeposit {
			return repository.ErrNotFound
		}
		if line.Status == model.TxCompleted {
			return nil
		}
		if amountMinor != line.AmountMinor {
			return ErrAmountMismatch
		}
		if err := s.Wallets.SetTransactionStatusTx(ctx, tx, reference, line.Status, model.TxCompleted, intentID); err != nil {
			return err
		}
		if err := s.Wallets.AdjustTx(ctx, tx, line.UserID, line.AmountMinor, 0, true); err != nil {
			return err
		}
		credited = true
		return nil
	})
	metrics.ObserveMoney("deposit_complete", err)
	if err != nil || !credited {
		return false, err
	}
	s.Log.WithFields(logrus.Fields{"user_id": line.UserID, "reference": reference}).Info("deposit completed")
	publish(ctx, s.Stream, s.Log, stream.LedgerEvent{
		Type: stream.DepositCompleted, Reference: reference, UserID: line.UserID,
		AmountMinor: line.AmountMinor, Currency: s.Currency,
	})
	return true, nil
}

// FailDeposit marks a PENDING deposit FAILED.  Any other status is left
// alone.
func (s *WalletService) FailDeposit(ctx context.Context, reference string) error {
	var line model.Transaction
	changed := false
	err := repository.WithTx(ctx, s.Wallets.DB(), func(tx *sql.Tx) error {
		var err error
		line, err = s.Wallets.GetTransactionForUpdateTx(ctx, tx, reference)
		if err != nil {
			return err
		}
		if line.Type != model.TxDeposit || line.Status != model.TxPending {
			return nil
		}
		changed = true
		return s.Wallets.SetTransactionStatusTx(ctx, tx, reference, model.TxPending, model.TxFailed, "")
	})
	if err != nil || !changed {
		return err
	}
	publish(ctx, s.Stream, s.Log, stream.LedgerEvent{
		Type: stream.DepositFailed, Reference: reference, UserID: line.UserID,
		AmountMinor: line.AmountMinor, Currency: s.Currency,
	})
	return nil
}

// HandleWebhook verifies and applies a gateway callback.  Events for
// unknown references are acknowledged and ignored so the gateway stops
// retrying them.
func (s *WalletService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ev, err := s.Gateway.ParseWebhook(payload, signature)
	if err != nil {
		return err
	}
	log := s.Log.WithFields(logrus.Fields{"event_id": ev.ID, "type": ev.Type, "reference": ev.Intent.Reference})
	if ev.Intent.Reference == "" {
		log.Debug("webhook without deposit reference ignored")
		return nil
	}
	switch ev.Type {
	case webhookSucceeded:
		_, err = s.CompleteDeposit(ctx, ev.Intent.Reference, ev.Intent.ID, ev.Intent.AmountMinor)
	case webhookFailed, webhookCanceled:
		err = s.FailDeposit(ctx, ev.Intent.Reference)
	default:
		log.Debug("webhook type ignored")
		return nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		log.Warn("webhook for unknown deposit")
		return nil
	}
	return err
}

// Reconcile asks the gateway for the current state of one of the user's
// deposits and applies it.
func (s *WalletService) Reconcile(ctx context.Context, userID uint64, reference string) (model.Transaction, error) {
	line, err := s.Wallets.GetTransactionByReference(ctx, reference)
	if err != nil {
		return line, err
	}
	if line.UserID != userID || line.Type != model.TxDeposit {
		return model.Transaction{}, repository.ErrNotFound
	}
	if line.Status != model.TxPending || line.ProviderRef == nil {
		return line, nil
	}
	intent, err := s.Gateway.GetDeposit(ctx, *line.ProviderRef)
	if err != nil {
		return line, err
	}
	switch intent.Status {
	case payment.IntentSucceeded:
		_, err = s.CompleteDeposit(ctx, reference, intent.ID, intent.AmountMinor)
	case payment.IntentFailed:
		err = s.FailDeposit(ctx, reference)
	default:
		return line, nil
	}
	if err != nil {
		return line, err
	}
	return s.Wallets.GetTransactionByReference(ctx, reference)
}

// ExpireStale fails PENDING deposits created before now-maxAge.  Each
// deposit is checked with the gateway first so a late success is credited
// rather than failed.
func (s *WalletService) ExpireStale(ctx context.Context, maxAge time.Duration) (int, error) {
	refs, err := s.Wallets.StalePendingDeposits(ctx, time.Now().UTC().Add(-maxAge), 200)
	if err != nil {
		return 0, err
	}
	failed := 0
	for _, ref := range refs {
		line, err := s.Wallets.GetTransactionByReference(ctx, ref)
		if err != nil {
			continue
		}
		if line.ProviderRef != nil {
			if intent, err := s.Gateway.GetDeposit(ctx, *line.ProviderRef); err == nil && intent.Status == payment.IntentSucceeded {
				if _, err := s.CompleteDeposit(ctx, ref, intent.ID, intent.AmountMinor); err != nil {
					s.Log.WithError(err).WithField("reference", ref).Warn("late deposit completion failed")
				}
				continue
			}
		}
		if err := s.FailDeposit(ctx, ref); err != nil {
			s.Log.WithError(err).WithField("reference", ref).Warn("expire deposit failed")
			continue
		}
		failed++
	}
	return failed, nil
}

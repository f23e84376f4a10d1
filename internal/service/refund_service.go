package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/ticketing-marketplace/internal/lock"
	"github.com/iliyamo/ticketing-marketplace/internal/metrics"
	"github.com/iliyamo/ticketing-marketplace/internal/model"
	"github.com/iliyamo/ticketing-marketplace/internal/repository"
	"github.com/iliyamo/ticketing-marketplace/internal/stream"
	"github.com/iliyamo/ticketing-marketplace/internal/utils"
)

// RefundService handles ticket refund requests.
type RefundService struct {
	Wallets  *repository.WalletRepo
	Tickets  *repository.TicketRepo
	Events   *repository.EventRepo
	Refunds  *repository.RefundRepo
	Users    *repository.UserRepo
	Audit    *repository.AuditRepo
	Locker   lock.Locker
	Stream   stream.Publisher
	Notifier *Notifier
	Currency string
	Log      logrus.FieldLogger
	Now      func() time.Time
}

func (s *RefundService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Request files a refund for an ACTIVE ticket the user owns.  The event
// must not have started yet unless it was cancelled.
func (s *RefundService) Request(ctx context.Context, userID, ticketID uint64, reason string) (model.RefundRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return model.RefundRequest{}, invalid("reason is required")
	}
	rr := model.RefundRequest{TicketID: ticketID, UserID: userID, Reason: reason}
	err := repository.WithTx(ctx, s.Wallets.DB(), func(tx *sql.Tx) error {
		t, err := s.Tickets.GetForUpdateTx(ctx, tx, ticketID)
		if err != nil {
			return err
		}
		if t.OwnerID != userID {
			return repository.ErrForbidden
		}
		if t.Status != model.TicketActive {
			return repository.ErrInvalidState
		}
		if t.EventStatus != model.EventCancelled && !t.StartsAt.After(s.now()) {
			return ErrNotEligible
		}
		has, err := s.Refunds.HasPendingTx(ctx, tx, ticketID)
		if err != nil {
			return err
		}
		if has {
			return repository.ErrConflict
		}
		rr.AmountMinor = t.PriceMinor
		return s.Refunds.CreateTx(ctx, tx, &rr)
	})
	if err != nil {
		return model.RefundRequest{}, err
	}
	s.Log.WithFields(logrus.Fields{"user_id": userID, "ticket_id": ticketID, "refund_id": rr.ID}).Info("refund requested")
	return rr, nil
}

// Approve returns the ticket price to the buyer, takes the organizer's
// earning back (possibly leaving the organizer negative) and puts the
// ticket back on sale.
func (s *RefundService) Approve(ctx context.Context, adminID, refundID uint64) (model.RefundRequest, error) {
	release, err := s.Locker.Acquire(ctx, fmt.Sprintf("refund:%d", refundID), lockTTL)
	if err != nil {
		return model.RefundRequest{}, err
	}
	defer release()

	var rr model.RefundRequest
	ref := fmt.Sprintf("rf_%d", refundID)
	err = repository.WithTx(ctx, s.Wallets.DB(), func(tx *sql.Tx) error {
		var err error
		rr, err = s.Refunds.GetForUpdateTx(ctx, tx, refundID)
		if err != nil {
			return err
		}
		if rr.Status != model.RefundPending {
			return repository.ErrInvalidState
		}
		t, err := s.Tickets.GetForUpdateTx(ctx, tx, rr.TicketID)
		if err != nil {
			return err
		}
		if err := s.Refunds.TransitionTx(ctx, tx, rr.ID, model.RefundApproved, adminID, ""); err != nil {
			return err
		}
		if err := s.Tickets.SetStatusTx(ctx, tx, t.ID, model.TicketActive, model.TicketRefunded); err != nil {
			return err
		}
		if err := s.Events.AddSoldTx(ctx, tx, t.EventID, -1); err != nil {
			return err
		}
		if rr.AmountMinor > 0 {
			for _, id := range orderedIDs(rr.UserID, t.OrganizerID) {
				switch id {
				case rr.UserID:
					if err := s.Wallets.AdjustTx(ctx, tx, rr.UserID, rr.AmountMinor, 0, true); err != nil {
						return err
					}
				case t.OrganizerID:
					if earning := t.OrganizerEarning(); earning > 0 {
						if err := s.Wallets.AdjustTx(ctx, tx, t.OrganizerID, -earning, 0, true); err != nil {
							return err
						}
					}
				}
			}
			if err := s.Wallets.InsertTransaction(ctx, tx, &model.Transaction{
				UserID: rr.UserID, Type: model.TxRefund, Status: model.TxCompleted,
				AmountMinor: rr.AmountMinor, Reference: ref,
				Description: "Refund for ticket " + t.Code,
			}); err != nil {
				return err
			}
			if earning := t.OrganizerEarning(); earning > 0 {
				if err := s.Wallets.InsertTransaction(ctx, tx, &model.Transaction{
					UserID: t.OrganizerID, Type: model.TxSaleEarning, Status: model.TxCompleted,
					AmountMinor: -earning, Reference: ref + "_rev",
					Description: "Refund reversal for ticket " + t.Code,
				}); err != nil {
					return err
				}
			}
		}
		return s.Audit.Record(ctx, tx, adminID, "refund.approve", "refund", rr.ID,
			map[string]any{"ticket_id": t.ID, "amount_minor": rr.AmountMinor})
	})
	metrics.ObserveMoney("refund_approve", err)
	if err != nil {
		return model.RefundRequest{}, err
	}
	rr.Status = model.RefundApproved
	s.Log.WithFields(logrus.Fields{"refund_id": rr.ID, "admin_id": adminID}).Info("refund approved")
	publish(ctx, s.Stream, s.Log, stream.LedgerEvent{
		Type: stream.RefundApproved, Reference: ref, UserID: rr.UserID,
		AmountMinor: rr.AmountMinor, Currency: s.Currency, ActorID: adminID,
	})
	s.notify(ctx, rr.UserID, "Your refund was approved",
		fmt.Sprintf("%s has been returned to your wallet.", utils.FormatAmount(rr.AmountMinor)))
	return rr, nil
}

// Reject closes a refund request without moving money.  Notes are
// mandatory.
func (s *RefundService) Reject(ctx context.Context, adminID, refundID uint64, notes string) (model.RefundRequest, error) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return model.RefundRequest{}, ErrNotesRequired
	}
	release, err := s.Locker.Acquire(ctx, fmt.Sprintf("refund:%d", refundID), lockTTL)
	if err != nil {
		return model.RefundRequest{}, err
	}
	defer release()

	var rr model.RefundRequest
	err = repository.WithTx(ctx, s.Wallets.DB(), func(tx *sql.Tx) error {
		var err error
		rr, err = s.Refunds.GetForUpdateTx(ctx, tx, refundID)
		if err != nil {
			return err
		}
		if rr.Status != model.RefundPending {
			return repository.ErrInvalidState
		}
		if err := s.Refunds.TransitionTx(ctx, tx, rr.ID, model.RefundRejected, adminID, notes); err != nil {
			return err
		}
		return s.Audit.Record(ctx, tx, adminID, "refund.reject", "refund", rr.ID, map[string]any{"notes": notes})
	})
	if err != nil {
		return model.RefundRequest{}, err
	}
	rr.Status = model.RefundRejected
	rr.AdminNotes = &notes
	publish(ctx, s.Stream, s.Log, stream.LedgerEvent{
		Type: stream.RefundRejected, Reference: fmt.Sprintf("rf_%d", rr.ID), UserID: rr.UserID,
		AmountMinor: rr.AmountMinor, Currency: s.Currency, ActorID: adminID,
	})
	s.notify(ctx, rr.UserID, "Your refund request was rejected", "Reason: "+notes)
	return rr, nil
}

func (s *RefundService) notify(ctx context.Context, userID uint64, subject, text string) {
	if s.Notifier == nil || s.Users == nil {
		return
	}
	if u, err := s.Users.GetByID(ctx, userID); err == nil {
		s.Notifier.notifyAsync(u.Email, subject, text, "refund")
	}
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/ticketing-marketplace/internal/metrics"
	"github.com/iliyamo/ticketing-marketplace/internal/model"
	"github.com/iliyamo/ticketing-marketplace/internal/repository"
	"github.com/iliyamo/ticketing-marketplace/internal/stream"
	"github.com/iliyamo/ticketing-marketplace/internal/utils"
)

// MaxTicketsPerPurchase caps a single purchase.
const MaxTicketsPerPurchase = 10

// Purchase is the outcome of a ticket purchase.
type Purchase struct {
	Reference  string         `json:"reference"`
	Tickets    []model.Ticket `json:"tickets"`
	TotalMinor int64          `json:"total_minor"`
}

// TicketService sells tickets against wallet balances.
type TicketService struct {
	Wallets  *repository.WalletRepo
	Events   *repository.EventRepo
	Tickets  *repository.TicketRepo
	Stream   stream.Publisher
	FeeBPS   int64
	Currency string
	Log      logrus.FieldLogger
	Now      func() time.Time
}

func (s *TicketService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Buy sells qty tickets of a PUBLISHED event that has not started.  The
// buyer pays price*qty from the wallet; the organizer is credited the
// same less the platform fee.
func (s *TicketService) Buy(ctx context.Context, buyerID, eventID uint64, qty int) (Purchase, error) {
	if qty < 1 || qty > MaxTicketsPerPurchase {
		return Purchase{}, invalid(fmt.Sprintf("quantity must be between 1 and %d", MaxTicketsPerPurchase))
	}
	ref := "tp_" + uuid.NewString()
	var out Purchase
	var organizerID uint64
	err := repository.WithTx(ctx, s.Wallets.DB(), func(tx *sql.Tx) error {
		ev, err := s.Events.GetForUpdateTx(ctx, tx, eventID)
		if err != nil {
			return err
		}
		if ev.Status != model.EventPublished || !ev.StartsAt.After(s.now()) {
			return ErrNotEligible
		}
		if ev.OrganizerID == buyerID {
			return ErrNotEligible
		}
		if int(ev.Remaining()) < qty {
			return ErrSoldOut
		}
		organizerID = ev.OrganizerID

		price := ev.TicketPriceMinor
		fee := utils.FeeShare(price, s.FeeBPS)
		total := price * int64(qty)
		earning := (price - fee) * int64(qty)

		if total > 0 {
			for _, id := range orderedIDs(buyerID, ev.OrganizerID) {
				var err error
				if id == buyerID {
					err = s.Wallets.AdjustTx(ctx, tx, buyerID, -total, 0, false)
				} else if earning > 0 {
					err = s.Wallets.AdjustTx(ctx, tx, ev.OrganizerID, earning, 0, true)
				}
				if err != nil {
					return err
				}
			}
		}

		tickets := make([]model.Ticket, qty)
		for i := range tickets {
			tickets[i] = model.Ticket{
				EventID:     ev.ID,
				OwnerID:     buyerID,
				Code:        uuid.NewString(),
				PriceMinor:  price,
				FeeMinor:    fee,
				Status:      model.TicketActive,
				PurchaseRef: ref,
				EventTitle:  ev.Title,
				StartsAt:    ev.StartsAt,
			}
		}
		if err := s.Tickets.CreateBulkTx(ctx, tx, tickets); err != nil {
			return err
		}
		if err := s.Events.AddSoldTx(ctx, tx, ev.ID, qty); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrSoldOut
			}
			return err
		}
		if total > 0 {
			if err := s.Wallets.InsertTransaction(ctx, tx, &model.Transaction{
				UserID: buyerID, Type: model.TxTicketPurchase, Status: model.TxCompleted,
				AmountMinor: -total, Reference: ref,
				Description: fmt.Sprintf("%d x %s", qty, ev.Title),
			}); err != nil {
				return err
			}
		}
		if earning > 0 {
			if err := s.Wallets.InsertTransaction(ctx, tx, &model.Transaction{
				UserID: ev.OrganizerID, Type: model.TxSaleEarning, Status: model.TxCompleted,
				AmountMinor: earning, Reference: ref + "_earn",
				Description: fmt.Sprintf("%d x %s", qty, ev.Title),
			}); err != nil {
				return err
			}
		}
		out = Purchase{Reference: ref, Tickets: tickets, TotalMinor: total}
		return nil
	})
	metrics.ObserveMoney("ticket_purchase", err)
	if err != nil {
		return Purchase{}, err
	}
	s.Log.WithFields(logrus.Fields{"buyer_id": buyerID, "event_id": eventID, "qty": qty, "reference": ref}).Info("tickets purchased")
	publish(ctx, s.Stream, s.Log, stream.LedgerEvent{
		Type: stream.TicketPurchased, Reference: ref, UserID: buyerID,
		AmountMinor: out.TotalMinor, Currency: s.Currency, ActorID: organizerID,
	})
	return out, nil
}

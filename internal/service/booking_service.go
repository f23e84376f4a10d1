package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/ticketing-marketplace/internal/metrics"
	"github.com/iliyamo/ticketing-marketplace/internal/model"
	"github.com/iliyamo/ticketing-marketplace/internal/repository"
	"github.com/iliyamo/ticketing-marketplace/internal/stream"
)

// Booking actions.
const (
	BookingAccept   = "accept"
	BookingDecline  = "decline"
	BookingCancel   = "cancel"
	BookingComplete = "complete"
)

// side names who may perform a booking action.
type side int

const (
	sideOrganizer side = 1 << iota
	sideProvider
	sideEither = sideOrganizer | sideProvider
)

type bookingRule struct {
	from []string
	to   string
	by   side
}

var bookingRules = map[string]bookingRule{
	BookingAccept:   {from: []string{model.BookingPending}, to: model.BookingAccepted, by: sideProvider},
	BookingDecline:  {from: []string{model.BookingPending}, to: model.BookingDeclined, by: sideProvider},
	BookingCancel:   {from: []string{model.BookingPending, model.BookingAccepted}, to: model.BookingCancelled, by: sideEither},
	BookingComplete: {from: []string{model.BookingAccepted}, to: model.BookingCompleted, by: sideOrganizer},
}

// BookingInput is an organizer's booking request.
type BookingInput struct {
	ProviderID  uint64
	EventID     *uint64
	ServiceDate time.Time
	FeeMinor    int64
	Message     string
}

// BookingService manages artist/provider bookings.
type BookingService struct {
	Bookings *repository.BookingRepo
	Users    *repository.UserRepo
	Events   *repository.EventRepo
	Wallets  *repository.WalletRepo
	Stream   stream.Publisher
	Currency string
	Log      logrus.FieldLogger
	Now      func() time.Time
}

func (s *BookingService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Create files a PENDING booking from an organizer to an active artist or
// provider.
func (s *BookingService) Create(ctx context.Context, organizerID uint64, role string, in BookingInput) (model.Booking, error) {
	if role != model.RoleOrganizer {
		return model.Booking{}, ErrRoleNotAllowed
	}
	if in.ProviderID == 0 || in.ProviderID == organizerID {
		return model.Booking{}, invalid("provider_id is invalid")
	}
	if !in.ServiceDate.After(s.now()) {
		return model.Booking{}, invalid("service_date must be in the future")
	}
	if in.FeeMinor < 0 {
		return model.Booking{}, invalid("fee must not be negative")
	}
	provider, err := s.Users.GetByID(ctx, in.ProviderID)
	if err != nil {
		return model.Booking{}, err
	}
	if !model.IsBookable(provider.Role) || !provider.IsActive {
		return model.Booking{}, ErrNotEligible
	}
	if in.EventID != nil {
		ev, err := s.Events.GetByID(ctx, *in.EventID)
		if err != nil {
			return model.Booking{}, err
		}
		if ev.OrganizerID != organizerID {
			return model.Booking{}, repository.ErrForbidden
		}
	}
	b := model.Booking{
		OrganizerID: organizerID,
		ProviderID:  in.ProviderID,
		EventID:     in.EventID,
		ServiceDate: in.ServiceDate.UTC(),
		FeeMinor:    in.FeeMinor,
		Message:     strings.TrimSpace(in.Message),
		Status:      model.BookingPending,
	}
	id, err := s.Bookings.Create(ctx, b)
	if err != nil {
		return model.Booking{}, err
	}
	b.ID = id
	return b, nil
}

// Transition applies action to a booking on behalf of userID.  Completing
// a booking settles its fee from the organizer's wallet to the provider's
// in the same transaction.
func (s *BookingService) Transition(ctx context.Context, userID, bookingID uint64, action string) (model.Booking, error) {
	rule, ok := bookingRules[action]
	if !ok {
		return model.Booking{}, invalid("unknown action " + action)
	}
	var b model.Booking
	err := repository.WithTx(ctx, s.Wallets.DB(), func(tx *sql.Tx) error {
		var err error
		b, err = s.Bookings.GetForUpdateTx(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		var who side
		switch userID {
		case b.OrganizerID:
			who = sideOrganizer
		case b.ProviderID:
			who = sideProvider
		default:
			return repository.ErrForbidden
		}
		if rule.by&who == 0 {
			return repository.ErrForbidden
		}
		if !contains(rule.from, b.Status) {
			return repository.ErrInvalidState
		}
		if err := s.Bookings.TransitionTx(ctx, tx, b.ID, b.Status, rule.to); err != nil {
			return err
		}
		if rule.to == model.BookingCompleted && b.FeeMinor > 0 {
			if err := s.settle(ctx, tx, b); err != nil {
				return err
			}
		}
		b.Status = rule.to
		return nil
	})
	if rule.to == model.BookingCompleted {
		metrics.ObserveMoney("booking_settle", err)
	}
	if err != nil {
		return model.Booking{}, err
	}
	s.Log.WithFields(logrus.Fields{"booking_id": b.ID, "user_id": userID, "status": b.Status}).Info("booking updated")
	if b.Status == model.BookingCompleted {
		publish(ctx, s.Stream, s.Log, stream.LedgerEvent{
			Type: stream.BookingCompleted, Reference: fmt.Sprintf("bk_%d", b.ID), UserID: b.ProviderID,
			AmountMinor: b.FeeMinor, Currency: s.Currency, ActorID: b.OrganizerID,
		})
	}
	return b, nil
}

func (s *BookingService) settle(ctx context.Context, tx *sql.Tx, b model.Booking) error {
	for _, id := range orderedIDs(b.OrganizerID, b.ProviderID) {
		var err error
		if id == b.OrganizerID {
			err = s.Wallets.AdjustTx(ctx, tx, b.OrganizerID, -b.FeeMinor, 0, false)
		} else {
			err = s.Wallets.AdjustTx(ctx, tx, b.ProviderID, b.FeeMinor, 0, true)
		}
		if err != nil {
			return err
		}
	}
	ref := fmt.Sprintf("bk_%d", b.ID)
	if err := s.Wallets.InsertTransaction(ctx, tx, &model.Transaction{
		UserID: b.OrganizerID, Type: model.TxBookingPayment, Status: model.TxCompleted,
		AmountMinor: -b.FeeMinor, Reference: ref + "_pay", Description: "Booking fee",
	}); err != nil {
		return err
	}
	return s.Wallets.InsertTransaction(ctx, tx, &model.Transaction{
		UserID: b.ProviderID, Type: model.TxBookingEarning, Status: model.TxCompleted,
		AmountMinor: b.FeeMinor, Reference: ref + "_earn", Description: "Booking fee",
	})
}

// ExpirePending cancels PENDING bookings whose service date has passed.
func (s *BookingService) ExpirePending(ctx context.Context) (int64, error) {
	return s.Bookings.CancelExpired(ctx, s.now())
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

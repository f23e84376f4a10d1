// Package service holds the marketplace's business rules: the state
// machines, the money movements and the moderation actions.  Handlers call
// services for anything that spans more than one table; plain reads go
// straight to the repositories.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/ticketing-marketplace/internal/mail"
	"github.com/iliyamo/ticketing-marketplace/internal/queue"
	"github.com/iliyamo/ticketing-marketplace/internal/stream"
)

var (
	ErrNotesRequired  = errors.New("notes are required")
	ErrNotEligible    = errors.New("not eligible")
	ErrSoldOut        = errors.New("not enough tickets left")
	ErrBelowMinimum   = errors.New("amount is below the minimum withdrawal")
	ErrRoleNotAllowed = errors.New("role not allowed")
	ErrMediaLimit     = errors.New("media limit reached")
	ErrTransferFailed = errors.New("bank transfer failed; funds returned to wallet")
	ErrTransferUnsure = errors.New("bank transfer outcome unknown; it will be reconciled")
	ErrAmountMismatch = errors.New("gateway amount does not match deposit")
)

// ValidationError reports a malformed request.  Handlers answer 400 with
// its message.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

func invalid(msg string) error { return &ValidationError{Msg: msg} }

// lockTTL bounds how long an admin action may hold a processing lock.
const lockTTL = 30 * time.Second

// EmailQueue is the subset of queue.Publisher the notifier needs.
type EmailQueue interface {
	PublishEmail(ctx context.Context, job queue.EmailJob) error
}

// Notifier delivers email through the queue and falls back to sending
// directly when the broker is down.
type Notifier struct {
	Queue  EmailQueue
	Sender mail.Sender
	Log    logrus.FieldLogger
}

// Send validates e and hands it to the queue or, failing that, the
// sender.  It reports whether the message was queued.
func (n *Notifier) Send(ctx context.Context, e mail.Email, kind string, requestedBy uint64) (bool, error) {
	if err := e.Validate(); err != nil {
		return false, err
	}
	if n.Queue != nil {
		err := n.Queue.PublishEmail(ctx, queue.EmailJob{Email: e, Kind: kind, RequestedBy: requestedBy})
		if err == nil {
			return true, nil
		}
		n.Log.WithError(err).WithField("kind", kind).Warn("email queue unavailable, sending directly")
	}
	if n.Sender == nil {
		return false, queue.ErrNoBroker
	}
	return false, n.Sender.Send(ctx, e)
}

// notifyAsync sends a best-effort notification after a committed change.
// Failures are logged only.
func (n *Notifier) notifyAsync(to, subject, text, kind string) {
	if n == nil || to == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := n.Send(ctx, mail.Email{To: to, Subject: subject, Text: text}, kind, 0); err != nil {
			n.Log.WithError(err).WithField("kind", kind).Warn("notification not delivered")
		}
	}()
}

// publish emits a ledger event; failures never fail the caller.
func publish(ctx context.Context, p stream.Publisher, log logrus.FieldLogger, ev stream.LedgerEvent) {
	if p == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	if err := p.Publish(ctx, ev); err != nil {
		log.WithError(err).WithFields(logrus.Fields{"type": ev.Type, "reference": ev.Reference}).Warn("ledger event not published")
	}
}

// orderedIDs returns the distinct IDs of a and b ascending so wallet rows
// are always locked in the same order.
func orderedIDs(a, b uint64) []uint64 {
	switch {
	case a == b:
		return []uint64{a}
	case a > b:
		return []uint64{b, a}
	}
	return []uint64{a, b}
}

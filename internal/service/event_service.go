package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/ticketing-marketplace/internal/model"
	"github.com/iliyamo/ticketing-marketplace/internal/repository"
)

// EventService runs the event lifecycle: organizer edits, submission for
// review and the admin decision.
type EventService struct {
	DB     *sql.DB
	Events *repository.EventRepo
	Audit  *repository.AuditRepo
	Log    logrus.FieldLogger
	Now    func() time.Time
}

func (s *EventService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *EventService) validate(in *model.EventInput) error {
	in.Title = strings.TrimSpace(in.Title)
	in.Venue = strings.TrimSpace(in.Venue)
	in.City = strings.TrimSpace(in.City)
	in.Description = strings.TrimSpace(in.Description)
	switch {
	case in.Title == "" || in.Venue == "" || in.City == "":
		return invalid("title, venue and city are required")
	case len(in.Title) > 200:
		return invalid("title is too long")
	case !in.StartsAt.After(s.now()):
		return invalid("starts_at must be in the future")
	case !in.EndsAt.After(in.StartsAt):
		return invalid("ends_at must be after starts_at")
	case in.Capacity == 0:
		return invalid("capacity must be positive")
	case in.TicketPriceMinor < 0:
		return invalid("ticket price must not be negative")
	}
	return nil
}

// Create stores a DRAFT event for an organizer.
func (s *EventService) Create(ctx context.Context, organizerID uint64, in model.EventInput) (model.Event, error) {
	if err := s.validate(&in); err != nil {
		return model.Event{}, err
	}
	id, err := s.Events.Create(ctx, organizerID, in)
	if err != nil {
		return model.Event{}, err
	}
	return s.Events.GetByID(ctx, id)
}

// owned loads an event and checks that organizerID owns it.
func (s *EventService) owned(ctx context.Context, organizerID, id uint64) (model.Event, error) {
	ev, err := s.Events.GetByID(ctx, id)
	if err != nil {
		return ev, err
	}
	if ev.OrganizerID != organizerID {
		return ev, repository.ErrForbidden
	}
	return ev, nil
}

// Update edits a DRAFT or REJECTED event.
func (s *EventService) Update(ctx context.Context, organizerID, id uint64, in model.EventInput) (model.Event, error) {
	ev, err := s.owned(ctx, organizerID, id)
	if err != nil {
		return model.Event{}, err
	}
	if err := s.validate(&in); err != nil {
		return model.Event{}, err
	}
	if in.Capacity < ev.TicketsSold {
		return model.Event{}, invalid(fmt.Sprintf("capacity cannot be below the %d tickets already sold", ev.TicketsSold))
	}
	if err := s.Events.Update(ctx, id, organizerID, in); err != nil {
		return model.Event{}, err
	}
	return s.Events.GetByID(ctx, id)
}

// Submit sends a DRAFT or REJECTED event to the review queue.
func (s *EventService) Submit(ctx context.Context, organizerID, id uint64) (model.Event, error) {
	return s.organizerMove(ctx, organizerID, id, []string{model.EventDraft, model.EventRejected}, model.EventPendingReview)
}

// Cancel withdraws an event that has not completed.  Ticket holders of a
// cancelled event may request refunds.
func (s *EventService) Cancel(ctx context.Context, organizerID, id uint64) (model.Event, error) {
	return s.organizerMove(ctx, organizerID, id,
		[]string{model.EventDraft, model.EventPendingReview, model.EventPublished}, model.EventCancelled)
}

func (s *EventService) organizerMove(ctx context.Context, organizerID, id uint64, from []string, to string) (model.Event, error) {
	if _, err := s.owned(ctx, organizerID, id); err != nil {
		return model.Event{}, err
	}
	if err := s.Events.Transition(ctx, s.DB, id, from, to, nil); err != nil {
		return model.Event{}, err
	}
	s.Log.WithFields(logrus.Fields{"event_id": id, "organizer_id": organizerID, "status": to}).Info("event status changed")
	return s.Events.GetByID(ctx, id)
}

// Approve publishes an event awaiting review.
func (s *EventService) Approve(ctx context.Context, adminID, id uint64) (model.Event, error) {
	return s.moderate(ctx, adminID, id, model.EventPublished, "")
}

// Reject sends an event back to its organizer.  Notes are mandatory and
// are stored on the event.
func (s *EventService) Reject(ctx context.Context, adminID, id uint64, notes string) (model.Event, error) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return model.Event{}, ErrNotesRequired
	}
	return s.moderate(ctx, adminID, id, model.EventRejected, notes)
}

func (s *EventService) moderate(ctx context.Context, adminID, id uint64, to, notes string) (model.Event, error) {
	var np *string
	if notes != "" {
		np = &notes
	}
	err := repository.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		if err := s.Events.Transition(ctx, tx, id, []string{model.EventPendingReview}, to, np); err != nil {
			return err
		}
		action := "event.approve"
		if to == model.EventRejected {
			action = "event.reject"
		}
		return s.Audit.Record(ctx, tx, adminID, action, "event", id, map[string]any{"notes": notes})
	})
	if err != nil {
		return model.Event{}, err
	}
	s.Log.WithFields(logrus.Fields{"event_id": id, "admin_id": adminID, "status": to}).Info("event moderated")
	return s.Events.GetByID(ctx, id)
}

// Visible returns an event to a viewer.  Published and completed events
// are public; other statuses are shown to the organizer and admins only.
func (s *EventService) Visible(ctx context.Context, viewerID uint64, role string, id uint64) (model.Event, error) {
	ev, err := s.Events.GetByID(ctx, id)
	if err != nil {
		return ev, err
	}
	if ev.Status == model.EventPublished || ev.Status == model.EventCompleted {
		return ev, nil
	}
	if role == model.RoleAdmin || (viewerID != 0 && ev.OrganizerID == viewerID) {
		return ev, nil
	}
	return model.Event{}, repository.ErrNotFound
}

// CompleteEnded closes published events that are over.
func (s *EventService) CompleteEnded(ctx context.Context) (int64, error) {
	return s.Events.CompleteEnded(ctx, s.now())
}

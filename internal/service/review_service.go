package service

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/ticketing-marketplace/internal/model"
	"github.com/iliyamo/ticketing-marketplace/internal/repository"
)

// ReviewInput is a new review.
type ReviewInput struct {
	SubjectType string
	SubjectID   uint64
	BookingID   *uint64
	Rating      int
	Comment     string
}

// ReviewService enforces who may review what.
type ReviewService struct {
	DB       *sql.DB
	Reviews  *repository.ReviewRepo
	Bookings *repository.BookingRepo
	Events   *repository.EventRepo
	Tickets  *repository.TicketRepo
	Audit    *repository.AuditRepo
	Now      func() time.Time
}

func (s *ReviewService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Create records a review.  A profile review needs a COMPLETED booking in
// which the reviewer was the organizer and the subject the provider; an
// event review needs an ended event and a ticket that was not refunded.
func (s *ReviewService) Create(ctx context.Context, reviewerID uint64, in ReviewInput) (model.Review, error) {
	in.SubjectType = strings.ToUpper(strings.TrimSpace(in.SubjectType))
	in.Comment = strings.TrimSpace(in.Comment)
	if in.Rating < 1 || in.Rating > 5 {
		return model.Review{}, invalid("rating must be between 1 and 5")
	}
	if in.SubjectID == 0 {
		return model.Review{}, invalid("subject_id is required")
	}
	if len(in.Comment) > 2000 {
		return model.Review{}, invalid("comment is too long")
	}

	switch in.SubjectType {
	case model.SubjectProfile:
		if in.BookingID == nil {
			return model.Review{}, invalid("booking_id is required for profile reviews")
		}
		b, err := s.Bookings.GetByID(ctx, *in.BookingID)
		if err != nil {
			return model.Review{}, err
		}
		if b.OrganizerID != reviewerID || b.ProviderID != in.SubjectID || b.Status != model.BookingCompleted {
			return model.Review{}, ErrNotEligible
		}
	case model.SubjectEvent:
		in.BookingID = nil
		ev, err := s.Events.GetByID(ctx, in.SubjectID)
		if err != nil {
			return model.Review{}, err
		}
		if ev.EndsAt.After(s.now()) {
			return model.Review{}, ErrNotEligible
		}
		holds, err := s.Tickets.HoldsActive(ctx, reviewerID, ev.ID)
		if err != nil {
			return model.Review{}, err
		}
		if !holds {
			return model.Review{}, ErrNotEligible
		}
		exists, err := s.Reviews.Exists(ctx, reviewerID, model.SubjectEvent, ev.ID)
		if err != nil {
			return model.Review{}, err
		}
		if exists {
			return model.Review{}, repository.ErrConflict
		}
	default:
		return model.Review{}, invalid("subject_type must be PROFILE or EVENT")
	}

	rv := model.Review{
		ReviewerID:  reviewerID,
		SubjectType: in.SubjectType,
		SubjectID:   in.SubjectID,
		BookingID:   in.BookingID,
		Rating:      in.Rating,
		Comment:     in.Comment,
		CreatedAt:   s.now(),
	}
	if err := s.Reviews.Create(ctx, &rv); err != nil {
		return model.Review{}, err
	}
	return rv, nil
}

// SetHidden hides or restores a review on behalf of an admin.
func (s *ReviewService) SetHidden(ctx context.Context, adminID, id uint64, hidden bool) error {
	action := "review.unhide"
	if hidden {
		action = "review.hide"
	}
	return repository.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		if err := s.Reviews.SetHidden(ctx, tx, id, hidden); err != nil {
			return err
		}
		return s.Audit.Record(ctx, tx, adminID, action, "review", id, nil)
	})
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/iliyamo/ticketing-marketplace/internal/model"
	"github.com/iliyamo/ticketing-marketplace/internal/repository"
	"github.com/iliyamo/ticketing-marketplace/internal/utils"
)

// ConversationService runs direct messaging between users.
type ConversationService struct {
	Conversations *repository.ConversationRepo
	Users         *repository.UserRepo
}

func validBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if n := utf8.RuneCountInString(body); n == 0 || n > model.MaxMessageLen {
		return "", invalid("message must be between 1 and 4000 characters")
	}
	return body, nil
}

// Start returns the conversation between userID and participantID,
// creating it when none exists; created tells which happened.  A
// non-empty message is appended either way.
func (s *ConversationService) Start(ctx context.Context, userID, participantID uint64, bookingID *uint64, message string) (model.Conversation, bool, error) {
	if participantID == 0 || participantID == userID {
		return model.Conversation{}, false, invalid("participant_id is invalid")
	}
	var body string
	if strings.TrimSpace(message) != "" {
		var err error
		if body, err = validBody(message); err != nil {
			return model.Conversation{}, false, err
		}
	}
	other, err := s.Users.GetByID(ctx, participantID)
	if err != nil {
		return model.Conversation{}, false, err
	}
	if !other.IsActive {
		return model.Conversation{}, false, ErrNotEligible
	}

	var conv model.Conversation
	created := false
	err = repository.WithTx(ctx, s.Conversations.DB(), func(tx *sql.Tx) error {
		var err error
		conv, err = s.Conversations.FindByPair(ctx, tx, userID, participantID)
		if errors.Is(err, repository.ErrNotFound) {
			id, cerr := s.Conversations.CreateTx(ctx, tx, userID, participantID, bookingID)
			switch {
			case cerr == nil:
				created = true
				lo, hi := model.OrderedPair(userID, participantID)
				conv = model.Conversation{
					ID: id, UserLowID: lo, UserHighID: hi,
					Participants: [2]uint64{lo, hi}, BookingID: bookingID,
					CreatedAt: time.Now().UTC(),
				}
				err = nil
			case errors.Is(cerr, repository.ErrConflict):
				conv, err = s.Conversations.FindByPair(ctx, tx, userID, participantID)
			default:
				return cerr
			}
		}
		if err != nil {
			return err
		}
		if body == "" {
			return nil
		}
		m := model.Message{ConversationID: conv.ID, SenderID: userID, Body: body}
		if err := s.Conversations.AddMessage(ctx, tx, &m); err != nil {
			return err
		}
		conv.LastMessageAt = &m.CreatedAt
		return nil
	})
	if err != nil {
		return model.Conversation{}, false, err
	}
	return conv, created, nil
}

// participantOf loads a conversation and checks that userID is in it.
func (s *ConversationService) participantOf(ctx context.Context, userID, convID uint64) (model.Conversation, error) {
	c, err := s.Conversations.GetByID(ctx, convID)
	if err != nil {
		return c, err
	}
	if !c.Has(userID) {
		return c, repository.ErrForbidden
	}
	return c, nil
}

// Messages pages through a conversation the user takes part in.
func (s *ConversationService) Messages(ctx context.Context, userID, convID uint64, pg utils.Page) ([]model.Message, int64, error) {
	if _, err := s.participantOf(ctx, userID, convID); err != nil {
		return nil, 0, err
	}
	return s.Conversations.ListMessages(ctx, convID, pg)
}

// Send appends a message from userID.
func (s *ConversationService) Send(ctx context.Context, userID, convID uint64, body string) (model.Message, error) {
	body, err := validBody(body)
	if err != nil {
		return model.Message{}, err
	}
	if _, err := s.participantOf(ctx, userID, convID); err != nil {
		return model.Message{}, err
	}
	m := model.Message{ConversationID: convID, SenderID: userID, Body: body}
	if err := s.Conversations.AddMessage(ctx, s.Conversations.DB(), &m); err != nil {
		return model.Message{}, err
	}
	return m, nil
}

// MarkRead records that userID has read the conversation up to now.
func (s *ConversationService) MarkRead(ctx context.Context, userID, convID uint64) error {
	if _, err := s.participantOf(ctx, userID, convID); err != nil {
		return err
	}
	return s.Conversations.MarkRead(ctx, convID, userID, time.Now().UTC())
}

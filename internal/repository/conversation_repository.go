package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/ticketing-marketplace/internal/model"
	"github.com/iliyamo/ticketing-marketplace/internal/utils"
)

// ConversationRepo persists direct conversations and their messages.
type ConversationRepo struct{ db *sql.DB }

func NewConversationRepo(db *sql.DB) *ConversationRepo { return &ConversationRepo{db: db} }

// DB exposes the handle used for the start-conversation transaction.
func (r *ConversationRepo) DB() *sql.DB { return r.db }

const convCols = "id, user_low_id, user_high_id, booking_id, last_message_at, created_at"

func scanConversation(sc interface{ Scan(...any) error }) (model.Conversation, error) {
	var c model.Conversation
	var booking sql.NullInt64
	var last sql.NullTime
	if err := sc.Scan(&c.ID, &c.UserLowID, &c.UserHighID, &booking, &last, &c.CreatedAt); err != nil {
		return c, err
	}
	c.BookingID, c.LastMessageAt = uintPtr(booking), timePtr(last)
	c.Participants = [2]uint64{c.UserLowID, c.UserHighID}
	return c, nil
}

// FindByPair returns the conversation between a and b in either order.
func (r *ConversationRepo) FindByPair(ctx context.Context, q Querier, a, b uint64) (model.Conversation, error) {
	lo, hi := model.OrderedPair(a, b)
	c, err := scanConversation(q.QueryRowContext(ctx,
		"SELECT "+convCols+" FROM conversations WHERE user_low_id=? AND user_high_id=?", lo, hi))
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNotFound
	}
	return c, err
}

// CreateTx inserts a conversation for the pair.  A concurrent insert of the
// same pair surfaces as ErrConflict.
func (r *ConversationRepo) CreateTx(ctx context.Context, tx *sql.Tx, a, b uint64, bookingID *uint64) (uint64, error) {
	lo, hi := model.OrderedPair(a, b)
	res, err := tx.ExecContext(ctx,
		"INSERT INTO conversations (user_low_id, user_high_id, booking_id) VALUES (?,?,?)", lo, hi, bookingID)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrConflict
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByID reads a conversation.
func (r *ConversationRepo) GetByID(ctx context.Context, id uint64) (model.Conversation, error) {
	c, err := scanConversation(r.db.QueryRowContext(ctx, "SELECT "+convCols+" FROM conversations WHERE id=?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNotFound
	}
	return c, err
}

// ListForUser pages through a user's conversations, most recently active
// first, with the count of messages from the other side not yet read.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID uint64, pg utils.Page) ([]model.Conversation, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM conversations WHERE user_low_id=? OR user_high_id=?", userID, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.user_low_id, c.user_high_id, c.booking_id, c.last_message_at, c.created_at,
		        (SELECT COUNT(*) FROM messages m
		          WHERE m.conversation_id = c.id AND m.sender_id <> ?
		            AND m.created_at > COALESCE(rd.last_read_at, '1970-01-01')) AS unread
		   FROM conversations c
		   LEFT JOIN conversation_reads rd ON rd.conversation_id = c.id AND rd.user_id = ?
		  WHERE c.user_low_id=? OR c.user_high_id=?
		  ORDER BY COALESCE(c.last_message_at, c.created_at) DESC, c.id DESC
		  LIMIT ? OFFSET ?`,
		userID, userID, userID, userID, pg.Limit(), pg.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]model.Conversation, 0, pg.Limit())
	for rows.Next() {
		var c model.Conversation
		var booking sql.NullInt64
		var last sql.NullTime
		if err := rows.Scan(&c.ID, &c.UserLowID, &c.UserHighID, &booking, &last, &c.CreatedAt, &c.Unread); err != nil {
			return nil, 0, err
		}
		c.BookingID, c.LastMessageAt = uintPtr(booking), timePtr(last)
		c.Participants = [2]uint64{c.UserLowID, c.UserHighID}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// AddMessage appends a message and bumps the conversation's activity time.
func (r *ConversationRepo) AddMessage(ctx context.Context, q Querier, m *model.Message) error {
	now := time.Now().UTC().Truncate(time.Second)
	res, err := q.ExecContext(ctx,
		"INSERT INTO messages (conversation_id, sender_id, body, created_at) VALUES (?,?,?,?)",
		m.ConversationID, m.SenderID, m.Body, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = uint64(id)
	m.CreatedAt = now
	_, err = q.ExecContext(ctx, "UPDATE conversations SET last_message_at=? WHERE id=?", now, m.ConversationID)
	return err
}

// ListMessages pages through a conversation, oldest first.
func (r *ConversationRepo) ListMessages(ctx context.Context, convID uint64, pg utils.Page) ([]model.Message, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages WHERE conversation_id=?", convID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, conversation_id, sender_id, body, created_at FROM messages WHERE conversation_id=? ORDER BY id ASC LIMIT ? OFFSET ?",
		convID, pg.Limit(), pg.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]model.Message, 0, pg.Limit())
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &m.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}

// MarkRead stores the read marker of userID in the conversation.
func (r *ConversationRepo) MarkRead(ctx context.Context, convID, userID uint64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO conversation_reads (conversation_id, user_id, last_read_at) VALUES (?,?,?)
		 ON DUPLICATE KEY UPDATE last_read_at = GREATEST(last_read_at, VALUES(last_read_at))`,
		convID, userID, at.UTC())
	return err
}

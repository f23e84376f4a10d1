package model

import "time"

// MaxMessageLen bounds a message body in characters.
const MaxMessageLen = 4000

// Conversation is a direct thread between two users.  The pair is stored
// ordered (low, high) so that it is unique regardless of who started it.
type Conversation struct {
	ID            uint64     `json:"id"`
	UserLowID     uint64     `json:"-"`
	UserHighID    uint64     `json:"-"`
	Participants  [2]uint64  `json:"participants"`
	BookingID     *uint64    `json:"booking_id,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	Unread        int64      `json:"unread"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Has reports whether userID takes part in the conversation.
func (c Conversation) Has(userID uint64) bool {
	return c.UserLowID == userID || c.UserHighID == userID
}

// OrderedPair returns a and b sorted ascending.
func OrderedPair(a, b uint64) (uint64, uint64) {
	if a > b {
		return b, a
	}
	return a, b
}

// Message is one entry in a conversation.
type Message struct {
	ID             uint64    `json:"id"`
	ConversationID uint64    `json:"conversation_id"`
	SenderID       uint64    `json:"sender_id"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}

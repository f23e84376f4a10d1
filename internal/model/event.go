package model

import "time"

const (
	EventDraft         = "DRAFT"
	EventPendingReview = "PENDING_REVIEW"
	EventPublished     = "PUBLISHED"
	EventRejected      = "REJECTED"
	EventCancelled     = "CANCELLED"
	EventCompleted     = "COMPLETED"
)

// Event is a ticketed happening created by an organizer.  Prices are in
// minor currency units.
type Event struct {
	ID               uint64    `json:"id"`
	OrganizerID      uint64    `json:"organizer_id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Venue            string    `json:"venue"`
	City             string    `json:"city"`
	StartsAt         time.Time `json:"starts_at"`
	EndsAt           time.Time `json:"ends_at"`
	Capacity         uint32    `json:"capacity"`
	TicketPriceMinor int64     `json:"ticket_price_minor"`
	TicketsSold      uint32    `json:"tickets_sold"`
	Status           string    `json:"status"`
	ModerationNotes  *string   `json:"moderation_notes,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Remaining returns the number of unsold tickets.
func (e Event) Remaining() uint32 {
	if e.TicketsSold >= e.Capacity {
		return 0
	}
	return e.Capacity - e.TicketsSold
}

// EventInput is the organizer-editable part of an event.
type EventInput struct {
	Title            string
	Description      string
	Venue            string
	City             string
	StartsAt         time.Time
	EndsAt           time.Time
	Capacity         uint32
	TicketPriceMinor int64
}

// EventFilter narrows event listings.
type EventFilter struct {
	Status       string
	OrganizerID  uint64
	Query        string
	City         string
	UpcomingOnly bool
}

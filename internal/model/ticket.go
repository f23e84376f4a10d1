package model

import "time"

const (
	TicketActive    = "ACTIVE"
	TicketRefunded  = "REFUNDED"
	TicketCancelled = "CANCELLED"
)

// Ticket is one admission to an event.  FeeMinor is the platform share of
// PriceMinor; the organizer earned PriceMinor - FeeMinor.
type Ticket struct {
	ID          uint64    `json:"id"`
	EventID     uint64    `json:"event_id"`
	OwnerID     uint64    `json:"owner_id"`
	Code        string    `json:"code"`
	PriceMinor  int64     `json:"price_minor"`
	FeeMinor    int64     `json:"fee_minor"`
	Status      string    `json:"status"`
	PurchaseRef string    `json:"purchase_ref"`
	EventTitle  string    `json:"event_title,omitempty"`
	EventStatus string    `json:"event_status,omitempty"`
	OrganizerID uint64    `json:"-"`
	StartsAt    time.Time `json:"starts_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// OrganizerEarning is what the organizer kept for this ticket.
func (t Ticket) OrganizerEarning() int64 { return t.PriceMinor - t.FeeMinor }

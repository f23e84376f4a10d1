package model

import "time"

const (
	BookingPending   = "PENDING"
	BookingAccepted  = "ACCEPTED"
	BookingDeclined  = "DECLINED"
	BookingCancelled = "CANCELLED"
	BookingCompleted = "COMPLETED"
)

// Booking is an organizer's request for an artist's or provider's service.
type Booking struct {
	ID          uint64    `json:"id"`
	OrganizerID uint64    `json:"organizer_id"`
	ProviderID  uint64    `json:"provider_id"`
	EventID     *uint64   `json:"event_id,omitempty"`
	ServiceDate time.Time `json:"service_date"`
	FeeMinor    int64     `json:"fee_minor"`
	Message     string    `json:"message,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

package model

import "time"

const (
	SubjectProfile = "PROFILE"
	SubjectEvent   = "EVENT"
)

// Review rates a provider profile (after a completed booking) or an event
// (after attending it).
type Review struct {
	ID          uint64    `json:"id"`
	ReviewerID  uint64    `json:"reviewer_id"`
	SubjectType string    `json:"subject_type"`
	SubjectID   uint64    `json:"subject_id"`
	BookingID   *uint64   `json:"booking_id,omitempty"`
	Rating      int       `json:"rating"`
	Comment     string    `json:"comment,omitempty"`
	IsHidden    bool      `json:"is_hidden"`
	CreatedAt   time.Time `json:"created_at"`
}

// RatingSummary aggregates visible reviews of one subject.  Histogram[i]
// counts reviews with rating i+1.
type RatingSummary struct {
	Count     int64    `json:"count"`
	Average   float64  `json:"average"`
	Histogram [5]int64 `json:"histogram"`
}

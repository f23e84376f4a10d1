package model

import "time"

// Report target types.
const (
	TargetProfile = "PROFILE"
	TargetEvent   = "EVENT"
	TargetReview  = "REVIEW"
	TargetMedia   = "MEDIA"
)

// Report statuses.
const (
	ReportOpen      = "OPEN"
	ReportResolved  = "RESOLVED"
	ReportDismissed = "DISMISSED"
)

// Resolve actions applied together with a report resolution.
const (
	ActionNone           = "NONE"
	ActionSuspendUser    = "SUSPEND_USER"
	ActionUnpublishEvent = "UNPUBLISH_EVENT"
	ActionHideReview     = "HIDE_REVIEW"
	ActionHideMedia      = "HIDE_MEDIA"
)

// Report flags content for admin attention.
type Report struct {
	ID          uint64     `json:"id"`
	ReporterID  uint64     `json:"reporter_id"`
	TargetType  string     `json:"target_type"`
	TargetID    uint64     `json:"target_id"`
	Reason      string     `json:"reason"`
	Status      string     `json:"status"`
	Action      *string    `json:"action,omitempty"`
	AdminNotes  *string    `json:"admin_notes,omitempty"`
	ProcessedBy *uint64    `json:"processed_by,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// AuditLog records one admin action.
type AuditLog struct {
	ID        uint64    `json:"id"`
	ActorID   uint64    `json:"actor_id"`
	Action    string    `json:"action"`
	Entity    string    `json:"entity"`
	EntityID  uint64    `json:"entity_id"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Media kinds.
const (
	MediaImage = "IMAGE"
	MediaVideo = "VIDEO"
	MediaAudio = "AUDIO"
)

// MaxMediaPerProfile caps portfolio size.
const MaxMediaPerProfile = 30

// Media is a portfolio item referenced by URL.
type Media struct {
	ID        uint64    `json:"id"`
	OwnerID   uint64    `json:"owner_id"`
	Kind      string    `json:"kind"`
	URL       string    `json:"url"`
	Caption   string    `json:"caption,omitempty"`
	IsHidden  bool      `json:"is_hidden"`
	CreatedAt time.Time `json:"created_at"`
}

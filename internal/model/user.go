package model

import "time"

// Marketplace roles as stored in users.role and carried in the JWT.
const (
	RoleOrganizer = "ORGANIZER"
	RoleArtist    = "ARTIST"
	RoleProvider  = "PROVIDER"
	RoleCustomer  = "CUSTOMER"
	RoleAdmin     = "ADMIN"
)

// IsBookable reports whether a role can receive bookings and own media.
func IsBookable(role string) bool { return role == RoleArtist || role == RoleProvider }

// CanWithdraw reports whether a role may request payouts.
func CanWithdraw(role string) bool {
	return role == RoleOrganizer || role == RoleArtist || role == RoleProvider
}

// User represents an application user record as stored in the
// `users` table.
type User struct {
	ID           uint64    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Profile is the public face of a user.
type Profile struct {
	UserID      uint64         `json:"user_id"`
	Role        string         `json:"role"`
	DisplayName string         `json:"display_name"`
	Bio         *string        `json:"bio,omitempty"`
	City        *string        `json:"city,omitempty"`
	AvatarURL   *string        `json:"avatar_url,omitempty"`
	Phone       *string        `json:"phone,omitempty"`
	IsActive    bool           `json:"is_active"`
	Rating      *RatingSummary `json:"rating,omitempty"`
}

// ProfilePatch carries the optional fields of a profile update.  Nil means
// leave unchanged.
type ProfilePatch struct {
	DisplayName *string `json:"display_name"`
	Bio         *string `json:"bio"`
	City        *string `json:"city"`
	AvatarURL   *string `json:"avatar_url"`
	Phone       *string `json:"phone"`
}

// internal/membership/domain.go
package membership

import (
	"time"
)

// Member is the canonical member record every adapter produces.
type Member struct {
	ID               int64     `json:"id" db:"id"`
	MembershipNumber string    `json:"membership_number" db:"membership_number"`
	FirstName        string    `json:"first_name" db:"first_name"`
	LastName         string    `json:"last_name" db:"last_name"`
	Email            string    `json:"email" db:"email"`
	Role             string    `json:"role" db:"role"`
	IsAdmin          bool      `json:"is_admin" db:"is_admin"`
	IsConfidential   bool      `json:"is_confidential" db:"is_confidential"`
	PasswordHash     string    `json:"-" db:"password_hash"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// RegisterRequest carries the fields needed to create a member.
type RegisterRequest struct {
	MembershipNumber string `json:"membership_number" validate:"required,mnr"`
	FirstName        string `json:"first_name" validate:"required,max=100"`
	LastName         string `json:"last_name" validate:"required,max=100"`
	Email            string `json:"email" validate:"required,email"`
	Role             string `json:"role" validate:"max=100"`
	IsAdmin          bool   `json:"is_admin"`
	IsConfidential   bool   `json:"is_confidential"`
	Password         string `json:"password" validate:"omitempty,min=8,max=128"`
}

// UpdateRequest replaces a member's fields. An empty Password keeps the
// stored secret. A changed MembershipNumber must have 9 digits; an
// unchanged one is accepted as stored, which lets older numbers such as
// AdminMembershipNumber survive an update.
type UpdateRequest struct {
	MembershipNumber string `json:"membership_number" validate:"required,numeric,max=20"`
	FirstName        string `json:"first_name" validate:"required,max=100"`
	LastName         string `json:"last_name" validate:"required,max=100"`
	Email            string `json:"email" validate:"required,email"`
	Role             string `json:"role" validate:"max=100"`
	IsAdmin          bool   `json:"is_admin"`
	IsConfidential   bool   `json:"is_confidential"`
	Password         string `json:"password" validate:"omitempty,min=8,max=128"`
}

// Journal event types.
const (
	EventMemberCreated = "MemberCreated"
	EventMemberUpdated = "MemberUpdated"
	EventMemberDeleted = "MemberDeleted"
)

// MemberChangedEvent is the journal payload for member lifecycle events.
type MemberChangedEvent struct {
	ID               int64  `json:"id"`
	MembershipNumber string `json:"membership_number"`
	Email            string `json:"email,omitempty"`
	Role             string `json:"role,omitempty"`
	Adapter          string `json:"adapter"`
}

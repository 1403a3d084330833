package model

import (
	"time"

	"github.com/google/uuid"
)

// Role is the authorization tier attached to a user profile.
type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleAdmin
}

// UserMetadata is free-form data recorded at signup. The role here is a
// display tag only; authorization always reads Profile.Role.
type UserMetadata struct {
	FullName string `json:"full_name,omitempty"`
	Role     Role   `json:"role,omitempty"`
}

// User is an identity known to the provider.
type User struct {
	ID           uuid.UUID    `json:"id"`
	Email        string       `json:"email"`
	FullName     string       `json:"full_name"`
	PasswordHash string       `json:"-"`
	Metadata     UserMetadata `json:"user_metadata"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Profile is the per-user record holding the stored role.
type Profile struct {
	ID        uuid.UUID `json:"id"`
	FullName  string    `json:"full_name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

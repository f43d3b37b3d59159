package models

import (
	"time"
)

// Identity is an account of the identity provider
type Identity struct {
	ID           string         `json:"id" db:"id"`
	Email        string         `json:"email" db:"email"`
	Metadata     map[string]any `json:"user_metadata" db:"user_metadata"`
	PasswordHash string         `json:"-" db:"password_hash"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
	LastSignInAt *time.Time     `json:"last_sign_in_at,omitempty" db:"last_sign_in_at"`
	ConfirmedAt  *time.Time     `json:"confirmed_at,omitempty" db:"confirmed_at"`
}

// Metadata keys understood by the service
const (
	MetadataIsActive      = "is_active"
	MetadataEmailVerified = "email_verified"
)

// UserDirectoryEntry is one row of the admin user directory read model
type UserDirectoryEntry struct {
	ID                   string         `json:"id" db:"id"`
	Email                string         `json:"email" db:"email"`
	Metadata             map[string]any `json:"user_metadata" db:"user_metadata"`
	CreatedAt            time.Time      `json:"created_at" db:"created_at"`
	LastSignInAt         *time.Time     `json:"last_sign_in_at,omitempty" db:"last_sign_in_at"`
	ConfirmedAt          *time.Time     `json:"confirmed_at,omitempty" db:"confirmed_at"`
	IsActive             bool           `json:"is_active" db:"is_active"`
	Roles                []string       `json:"roles" db:"roles"`
	HasPendingInvitation bool           `json:"has_pending_invitation" db:"has_pending_invitation"`
}

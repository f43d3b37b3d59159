package models

import (
	"time"
)

// InvitationStatus represents the lifecycle state of an invitation
type InvitationStatus string

const (
	InvitationStatusPending  InvitationStatus = "pending"
	InvitationStatusAccepted InvitationStatus = "accepted"
	InvitationStatusExpired  InvitationStatus = "expired"
)

// UserInvitation is a pending or consumed invitation to join with a set of roles
type UserInvitation struct {
	ID        string           `json:"id" db:"id"`
	Email     string           `json:"email" db:"email"`
	InvitedBy string           `json:"invited_by,omitempty" db:"invited_by"`
	Roles     []string         `json:"roles" db:"roles"`
	Status    InvitationStatus `json:"status" db:"status"`
	Token     string           `json:"invitation_token" db:"invitation_token"`
	ExpiresAt time.Time        `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}

// IsPending reports whether the invitation can still be accepted at now
func (i *UserInvitation) IsPending(now time.Time) bool {
	return i.Status == InvitationStatusPending && i.ExpiresAt.After(now)
}

// Item outcome of a batch operation
const (
	ItemStatusSuccess = "success"
	ItemStatusError   = "error"
)

// InvitationResult reports the outcome for one email of a bulk invite
type InvitationResult struct {
	Email      string          `json:"email"`
	Status     string          `json:"status"`
	Message    string          `json:"message,omitempty"`
	Invitation *UserInvitation `json:"invitation,omitempty"`
}

// BulkCreateResult reports the outcome for one email of a bulk user creation.
// The token and temporary password are returned once and never stored in
// plain text.
type BulkCreateResult struct {
	Email             string `json:"email"`
	Status            string `json:"status"`
	Message           string `json:"message"`
	UserID            string `json:"user_id,omitempty"`
	InvitationToken   string `json:"invitation_token,omitempty"`
	TemporaryPassword string `json:"temporary_password,omitempty"`
}

// BulkUsersRequest is the payload of invite_users and bulk_create_users
type BulkUsersRequest struct {
	Emails []string `json:"emails"`
	Roles  []string `json:"roles,omitempty"`
}

// VerifyEmailRequest is the payload of verify_user_email
type VerifyEmailRequest struct {
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

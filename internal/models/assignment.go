package models

import (
	"time"
)

// UserRoleAssignment binds a user to a role.
// Deactivated rows are kept; history lives in RoleTransition.
type UserRoleAssignment struct {
	ID         string     `json:"id" db:"id"`
	UserID     string     `json:"user_id" db:"user_id"`
	RoleID     string     `json:"role_id" db:"role_id"`
	AssignedBy string     `json:"assigned_by,omitempty" db:"assigned_by"`
	AssignedAt time.Time  `json:"assigned_at" db:"assigned_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	IsActive   bool       `json:"is_active" db:"is_active"`
}

// IsEffective reports whether the assignment is active and unexpired at now
func (a *UserRoleAssignment) IsEffective(now time.Time) bool {
	if !a.IsActive {
		return false
	}
	return a.ExpiresAt == nil || a.ExpiresAt.After(now)
}

// RoleTransition is an append-only audit record of a role change
type RoleTransition struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	OldRoleID *string   `json:"old_role_id,omitempty" db:"old_role_id"`
	NewRoleID string    `json:"new_role_id" db:"new_role_id"`
	ChangedBy string    `json:"changed_by" db:"changed_by"`
	Reason    string    `json:"reason,omitempty" db:"reason"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// RoleGrant is a (user, role name) pair of an effective assignment
type RoleGrant struct {
	UserID    string
	RoleName  string
	RoleLevel int
}

// AssignRoleRequest is the payload of a role change
type AssignRoleRequest struct {
	RoleID    string     `json:"role_id"`
	Reason    string     `json:"reason,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

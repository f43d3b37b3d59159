package models

import (
	"time"
)

// Built-in role names
const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
	RoleUser  = "user"
	RoleGuest = "guest"
)

// Wildcard matches every resource or action in a permission grant
const Wildcard = "*"

// ValidRoles maps built-in role names to their seeded hierarchy level
var ValidRoles = map[string]int{
	RoleAdmin: 100,
	RoleStaff: 50,
	RoleUser:  10,
	RoleGuest: 0,
}

// Role is a named privilege level. Higher level means more privileged.
type Role struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description,omitempty" db:"description"`
	Level       int       `json:"level" db:"level"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// RoleUpdate carries the mutable fields of a role
type RoleUpdate struct {
	Description *string `json:"description,omitempty"`
	Level       *int    `json:"level,omitempty"`
}

// Permission grants an action on a resource to a role
type Permission struct {
	ID         string         `json:"id" db:"id"`
	RoleID     string         `json:"role_id" db:"role_id"`
	Resource   string         `json:"resource" db:"resource"`
	Action     string         `json:"action" db:"action"`
	Conditions map[string]any `json:"conditions,omitempty" db:"conditions"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
}

// Matches reports whether the grant covers resource and action
func (p *Permission) Matches(resource, action string) bool {
	return (p.Resource == Wildcard || p.Resource == resource) &&
		(p.Action == Wildcard || p.Action == action)
}

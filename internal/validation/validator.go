package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/versehub/community-api/internal/models"
)

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	resourceRegex = regexp.MustCompile(`^[a-z0-9_]+(?:[.:-][a-z0-9_]+)*$`)
)

// Upper bounds on admin supplied values
const (
	MaxBatchSize         = 500
	MaxRoleLevel         = 1000
	MaxDescriptionLength = 500
	MaxReasonLength      = 1000
)

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Errors is a list of validation errors usable as an error value
type Errors []ValidationError

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, ve := range e {
		parts = append(parts, fmt.Sprintf("%s: %s", ve.Field, ve.Message))
	}
	return strings.Join(parts, "; ")
}

// Validator provides validation methods. It remembers emails seen in the
// current batch so duplicates can be reported per item.
type Validator struct {
	emailCache map[string]bool
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{
		emailCache: make(map[string]bool),
	}
}

// NormalizeEmail trims and lower-cases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// AddEmail adds an email to the batch uniqueness cache
func (v *Validator) AddEmail(email string) {
	v.emailCache[NormalizeEmail(email)] = true
}

// ValidateEmail checks format and uniqueness within the current batch
func (v *Validator) ValidateEmail(email string) []ValidationError {
	var errors []ValidationError

	normalized := NormalizeEmail(email)
	if normalized == "" {
		errors = append(errors, ValidationError{Field: "email", Message: "email is required"})
	} else if !emailRegex.MatchString(normalized) {
		errors = append(errors, ValidationError{Field: "email", Message: "invalid email format", Value: email})
	} else if v.emailCache[normalized] {
		errors = append(errors, ValidationError{Field: "email", Message: "duplicate email in batch", Value: email})
	}

	return errors
}

// ValidateBatch checks the shape of a bulk request: a non-empty list of
// emails within MaxBatchSize and only known role names.
func ValidateBatch(req *models.BulkUsersRequest) []ValidationError {
	var errors []ValidationError

	if len(req.Emails) == 0 {
		errors = append(errors, ValidationError{Field: "emails", Message: "at least one email is required"})
	} else if len(req.Emails) > MaxBatchSize {
		errors = append(errors, ValidationError{
			Field:   "emails",
			Message: fmt.Sprintf("batch exceeds maximum of %d emails (has %d)", MaxBatchSize, len(req.Emails)),
		})
	}

	errors = append(errors, ValidateRoleNames(req.Roles)...)
	return errors
}

// ValidateRoleNames rejects any name that is not a built-in role
func ValidateRoleNames(roles []string) []ValidationError {
	var errors []ValidationError
	for _, role := range roles {
		if _, ok := models.ValidRoles[role]; !ok {
			errors = append(errors, ValidationError{
				Field:   "roles",
				Message: fmt.Sprintf("invalid role, must be one of: %s", strings.Join(roleNames(), ", ")),
				Value:   role,
			})
		}
	}
	return errors
}

// ValidatePermission validates a permission grant
func ValidatePermission(perm *models.Permission) []ValidationError {
	var errors []ValidationError

	if !isValidUUID(perm.RoleID) {
		errors = append(errors, ValidationError{Field: "role_id", Message: "invalid UUID format", Value: perm.RoleID})
	}

	if perm.Resource == "" {
		errors = append(errors, ValidationError{Field: "resource", Message: "resource is required"})
	} else if perm.Resource != models.Wildcard && !resourceRegex.MatchString(perm.Resource) {
		errors = append(errors, ValidationError{Field: "resource", Message: "resource must be lowercase identifiers or '*'", Value: perm.Resource})
	}

	if perm.Action == "" {
		errors = append(errors, ValidationError{Field: "action", Message: "action is required"})
	} else if perm.Action != models.Wildcard && !resourceRegex.MatchString(perm.Action) {
		errors = append(errors, ValidationError{Field: "action", Message: "action must be lowercase identifiers or '*'", Value: perm.Action})
	}

	return errors
}

// ValidateRoleUpdate validates the mutable fields of a role
func ValidateRoleUpdate(upd *models.RoleUpdate) []ValidationError {
	var errors []ValidationError

	if upd.Description == nil && upd.Level == nil {
		errors = append(errors, ValidationError{Field: "body", Message: "nothing to update"})
	}
	if upd.Description != nil && len(*upd.Description) > MaxDescriptionLength {
		errors = append(errors, ValidationError{
			Field:   "description",
			Message: fmt.Sprintf("description exceeds maximum of %d characters", MaxDescriptionLength),
		})
	}
	if upd.Level != nil && (*upd.Level < 0 || *upd.Level > MaxRoleLevel) {
		errors = append(errors, ValidationError{
			Field:   "level",
			Message: fmt.Sprintf("level must be between 0 and %d", MaxRoleLevel),
			Value:   *upd.Level,
		})
	}

	return errors
}

// ValidateAssignRole validates a role change request
func ValidateAssignRole(req *models.AssignRoleRequest, now time.Time) []ValidationError {
	var errors []ValidationError

	if req.RoleID == "" {
		errors = append(errors, ValidationError{Field: "role_id", Message: "role_id is required"})
	} else if !isValidUUID(req.RoleID) {
		errors = append(errors, ValidationError{Field: "role_id", Message: "invalid UUID format", Value: req.RoleID})
	}

	if len(req.Reason) > MaxReasonLength {
		errors = append(errors, ValidationError{
			Field:   "reason",
			Message: fmt.Sprintf("reason exceeds maximum of %d characters", MaxReasonLength),
		})
	}

	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		errors = append(errors, ValidationError{Field: "expires_at", Message: "expires_at must be in the future", Value: req.ExpiresAt})
	}

	return errors
}

// ValidateID checks that a path or body identifier is a UUID
func ValidateID(field, value string) []ValidationError {
	if value == "" {
		return []ValidationError{{Field: field, Message: field + " is required"}}
	}
	if !isValidUUID(value) {
		return []ValidationError{{Field: field, Message: "invalid UUID format", Value: value}}
	}
	return nil
}

func roleNames() []string {
	names := make([]string, 0, len(models.ValidRoles))
	for name := range models.ValidRoles {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return models.ValidRoles[names[i]] > models.ValidRoles[names[j]]
	})
	return names
}

// isValidUUID checks if a string is a valid UUID
// isValidUUID accepts only the canonical 36 character form; uuid.Parse also
// takes urn and braced forms that PostgreSQL rejects.
func isValidUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

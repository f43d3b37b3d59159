package models

import "errors"

// Error taxonomy shared by repositories, services and handlers.
var (
	ErrAccessDenied        = errors.New("access denied")
	ErrUnauthenticated     = errors.New("not authenticated")
	ErrNotFound            = errors.New("not found")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrValidation          = errors.New("validation failed")
	ErrNoVerses            = errors.New("no verses available")
)

// Package services provides the application services sitting between the HTTP
// surface and the engine.
package services

import (
	"errors"

	"github.com/approvio/approvio/pkg/engine"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrTemplateNil          = errors.New("template cannot be nil")
	ErrOrganizationRequired = errors.New("organization ID is required")

	// Business Logic Conflicts (409 Conflict).
	ErrOrganizationImmutable = errors.New("template organization cannot change across versions")
)

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrTemplateNil) ||
		errors.Is(err, ErrOrganizationRequired) ||
		engine.IsValidationError(err)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrOrganizationImmutable)
}

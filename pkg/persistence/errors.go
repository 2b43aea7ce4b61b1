package persistence

import "errors"

// Standard persistence error types that all implementations must use.
var (
	// ErrTemplateNotFound indicates no template (or template version) exists
	// for the given identifier.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrTemplateVersionExists indicates the (id, version) pair is already
	// persisted. Template versions are immutable; this is never overwritten.
	ErrTemplateVersionExists = errors.New("template version already exists")

	// ErrInstanceNotFound indicates no instance exists for the identifier.
	ErrInstanceNotFound = errors.New("workflow instance not found")

	// ErrInstanceExists indicates an instance with the same ID already exists.
	ErrInstanceExists = errors.New("workflow instance already exists")

	// ErrRevisionConflict indicates a concurrent writer updated the instance
	// first. The loser must reload and retry; it never double-advances.
	ErrRevisionConflict = errors.New("instance revision conflict")
)

// IsTemplateNotFound checks if an error indicates a missing template.
func IsTemplateNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound)
}

// IsInstanceNotFound checks if an error indicates a missing instance.
func IsInstanceNotFound(err error) bool {
	return errors.Is(err, ErrInstanceNotFound)
}

// IsRevisionConflict checks if an error indicates an optimistic-lock loss.
func IsRevisionConflict(err error) bool {
	return errors.Is(err, ErrRevisionConflict)
}

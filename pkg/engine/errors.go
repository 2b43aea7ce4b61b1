// Package engine implements the approval workflow engine: template
// validation, condition evaluation, actor resolution, transitions, and the
// instance runtime.
package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/approvio/approvio/pkg/models"
)

// Sentinel errors for the runtime's failure modes. Handlers map these onto
// the HTTP surface; see pkg/web.
var (
	// ErrUnauthorizedActor is returned when a decision comes from an actor
	// outside the open step's snapshotted approver set.
	ErrUnauthorizedActor = errors.New("actor is not an eligible approver for the current step")

	// ErrDecisionConflict is returned when an actor who already decided a step
	// submits a different decision. An identical resubmission is a no-op.
	ErrDecisionConflict = errors.New("actor already decided this step")

	// ErrInstanceTerminal is returned for operations on finished instances.
	ErrInstanceTerminal = errors.New("instance is already in a terminal status")

	// ErrInstanceBlocked is returned for decisions on an instance with no open
	// step execution (blocked on approver resolution).
	ErrInstanceBlocked = errors.New("instance has no open step awaiting decisions")

	// ErrNoEligibleApprover is returned when actor resolution yields an empty
	// set. The step is never silently skipped: that would bypass policy.
	ErrNoEligibleApprover = errors.New("no eligible approver")

	// ErrTemplateInactive is returned when creating instances of a template
	// that is not active.
	ErrTemplateInactive = errors.New("template is not active")

	// ErrOrganizationMismatch is returned when the caller's tenant scope does
	// not own the referenced template.
	ErrOrganizationMismatch = errors.New("template belongs to a different organization")
)

// ValidationError aggregates structural defects found in a template
// definition. Templates are rejected wholesale; nothing is partially
// persisted.
type ValidationError struct {
	Issues []ValidationIssue
}

// ValidationIssue is one field-level defect.
type ValidationIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		msgs = append(msgs, issue.Field+": "+issue.Message)
	}

	return "template validation failed: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Issues = append(e.Issues, ValidationIssue{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	})
}

// IsValidationError reports whether err carries template validation issues.
func IsValidationError(err error) bool {
	var target *ValidationError

	return errors.As(err, &target)
}

// ConsistencyError is a fatal defect: the transition engine found no
// transition for a valid outcome on a validated template. It indicates a bug
// in template validation, is never retried, and must not be swallowed.
type ConsistencyError struct {
	InstanceID string
	StepName   string
	Outcome    models.Outcome
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf(
		"workflow inconsistency: no transition covers outcome %s of step %q (instance %s)",
		e.Outcome, e.StepName, e.InstanceID,
	)
}

// IsConsistencyError reports whether err is a fatal workflow inconsistency.
func IsConsistencyError(err error) bool {
	var target *ConsistencyError

	return errors.As(err, &target)
}

// ResolutionError wraps ErrNoEligibleApprover with the step it occurred on.
type ResolutionError struct {
	StepName string
	Err      error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolving approvers for step %q: %v", e.StepName, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// IsResolutionError reports whether err means a step had no eligible approver.
func IsResolutionError(err error) bool {
	return errors.Is(err, ErrNoEligibleApprover)
}

// IsAuthorizationError reports whether err should surface as HTTP 403.
func IsAuthorizationError(err error) bool {
	return errors.Is(err, ErrUnauthorizedActor)
}

// IsConflictError reports whether err should surface as HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrDecisionConflict) ||
		errors.Is(err, ErrInstanceTerminal) ||
		errors.Is(err, ErrInstanceBlocked)
}

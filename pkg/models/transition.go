package models

import "errors"

// Outcome is the resolution of one step within an instance.
type Outcome string

const (
	OutcomeApproved Outcome = "APPROVED"
	OutcomeRejected Outcome = "REJECTED"
	// OutcomeSkipped marks a step whose conditions did not match; the step is
	// passed over without opening an execution.
	OutcomeSkipped Outcome = "SKIPPED"
)

// Transition maps a step outcome to the next step name or a terminal instance
// status. Exactly one of ToStep and Terminal must be set.
type Transition struct {
	OnOutcome Outcome         `json:"on_outcome" validate:"required,oneof=APPROVED REJECTED SKIPPED"`
	ToStep    string          `json:"to_step,omitempty"`
	Terminal  *InstanceStatus `json:"terminal,omitempty"`
}

var (
	ErrTransitionTargetRequired  = errors.New("transition requires either a target step or a terminal status")
	ErrTransitionTargetAmbiguous = errors.New("transition cannot declare both a target step and a terminal status")
	ErrTransitionBadTerminal     = errors.New("transition terminal status must be APPROVED or REJECTED")
)

// Validate checks that the transition names exactly one destination.
func (t *Transition) Validate() error {
	if t.ToStep == "" && t.Terminal == nil {
		return ErrTransitionTargetRequired
	}

	if t.ToStep != "" && t.Terminal != nil {
		return ErrTransitionTargetAmbiguous
	}

	if t.Terminal != nil && *t.Terminal != InstanceStatusApproved && *t.Terminal != InstanceStatusRejected {
		return ErrTransitionBadTerminal
	}

	return nil
}

// IsTerminal reports whether the transition ends the instance.
func (t *Transition) IsTerminal() bool {
	return t.Terminal != nil
}

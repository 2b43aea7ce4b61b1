package models

import "time"

// InstanceStatus is the lifecycle state of a workflow instance.
type InstanceStatus string

const (
	InstanceStatusInProgress InstanceStatus = "IN_PROGRESS"
	InstanceStatusApproved   InstanceStatus = "APPROVED"
	InstanceStatusRejected   InstanceStatus = "REJECTED"
	InstanceStatusCancelled  InstanceStatus = "CANCELLED"
)

// IsTerminal reports whether no further transitions are possible.
func (s InstanceStatus) IsTerminal() bool {
	switch s {
	case InstanceStatusApproved, InstanceStatusRejected, InstanceStatusCancelled:
		return true
	default:
		return false
	}
}

// DecisionKind is a single actor's verdict on a step.
type DecisionKind string

const (
	DecisionApprove DecisionKind = "APPROVE"
	DecisionReject  DecisionKind = "REJECT"
)

// WorkflowInstance is one execution of a template version against a specific
// submitted object. It is mutated only by the runtime and becomes immutable
// once terminal.
type WorkflowInstance struct {
	ID              string  `json:"id"`
	OrganizationID  string  `json:"organization_id" validate:"required"`
	DepartmentID    *string `json:"department_id,omitempty"`
	TemplateID      string  `json:"template_id"      validate:"required"`
	TemplateVersion int     `json:"template_version" validate:"required,min=1"`

	// Polymorphic reference to the gated business object.
	EntityType string `json:"entity_type" validate:"required"`
	EntityID   string `json:"entity_id"   validate:"required"`

	CurrentStep string         `json:"current_step,omitempty"`
	Status      InstanceStatus `json:"status"`

	// BlockedReason is set while the instance waits on an approver set that
	// resolved empty mid-flight. The status stays IN_PROGRESS; the sweeper
	// retries resolution until membership changes unblock it.
	BlockedReason string `json:"blocked_reason,omitempty"`

	Attributes map[string]any   `json:"attributes,omitempty"`
	Executions []*StepExecution `json:"executions"`

	// Revision implements optimistic concurrency control: every persisted
	// update must carry the revision it read, and increments it.
	Revision int64 `json:"revision"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OpenExecution returns the unresolved execution for the current step, or nil
// when the instance is terminal or blocked.
func (i *WorkflowInstance) OpenExecution() *StepExecution {
	for idx := len(i.Executions) - 1; idx >= 0; idx-- {
		exec := i.Executions[idx]
		if exec.Outcome == nil {
			return exec
		}
	}

	return nil
}

// IsBlocked reports whether the instance is waiting on approver resolution.
func (i *WorkflowInstance) IsBlocked() bool {
	return i.BlockedReason != ""
}

// StepExecution is the append-only record of one step's lifetime within an
// instance. The required actor set and approval mode are snapshotted at step
// entry; later membership changes never alter who may decide an open step.
type StepExecution struct {
	ID       string `json:"id"`
	StepName string `json:"step_name"`

	RequiredActors []string     `json:"required_actors"`
	Mode           ApprovalMode `json:"mode"`

	Decisions []*Decision `json:"decisions"`

	Outcome    *Outcome   `json:"outcome,omitempty"`
	EnteredAt  time.Time  `json:"entered_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// DecisionBy returns the decision recorded by the given actor, or nil.
func (e *StepExecution) DecisionBy(actorID string) *Decision {
	for _, d := range e.Decisions {
		if d.ActorID == actorID {
			return d
		}
	}

	return nil
}

// IsRequiredActor reports whether the actor belongs to the snapshotted set.
func (e *StepExecution) IsRequiredActor(actorID string) bool {
	for _, id := range e.RequiredActors {
		if id == actorID {
			return true
		}
	}

	return false
}

// Settle computes whether the recorded decisions satisfy the approval mode.
// A single REJECT resolves the step as REJECTED regardless of mode. ANY mode
// settles on the first decision; ALL mode requires every required actor to
// have approved.
func (e *StepExecution) Settle() (Outcome, bool) {
	for _, d := range e.Decisions {
		if d.Decision == DecisionReject {
			return OutcomeRejected, true
		}
	}

	switch e.Mode {
	case ApprovalModeAny:
		if len(e.Decisions) > 0 {
			return OutcomeApproved, true
		}
	case ApprovalModeAll:
		if len(e.Decisions) >= len(e.RequiredActors) {
			return OutcomeApproved, true
		}
	}

	return "", false
}

// Decision is one actor's recorded verdict on an open step.
type Decision struct {
	ActorID   string       `json:"actor_id"`
	Decision  DecisionKind `json:"decision"`
	Note      string       `json:"note,omitempty"`
	DecidedAt time.Time    `json:"decided_at"`
}

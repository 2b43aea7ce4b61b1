// Package models defines the core domain models for the approval workflow engine.
package models

import "time"

// TriggerType describes how instances of a template are started.
type TriggerType string

const (
	TriggerTypeManual    TriggerType = "MANUAL"    // Started explicitly by a caller
	TriggerTypeAutomatic TriggerType = "AUTOMATIC" // Started by a gated business event
)

// WorkflowTemplate is a named, versioned definition of an approval workflow.
//
// A template version is immutable once written: edits always create a new
// version, never mutate an existing one, so in-flight instances keep running
// against the exact version they were created with.
type WorkflowTemplate struct {
	ID             string      `json:"id"`
	Version        int         `json:"version"`
	OrganizationID string      `json:"organization_id" validate:"required"`
	DepartmentID   *string     `json:"department_id,omitempty"`
	Name           string      `json:"name"             validate:"required,min=3"`
	Description    string      `json:"description"`
	TriggerType    TriggerType `json:"trigger_type"     validate:"required,oneof=MANUAL AUTOMATIC"`
	Active         bool        `json:"active"`
	InitialStep    string      `json:"initial_step"     validate:"required"`

	// AttributeSchema optionally holds a JSON Schema document; when present,
	// submitted attribute maps are validated against it at instance creation.
	AttributeSchema map[string]any `json:"attribute_schema,omitempty"`

	Steps []*WorkflowStep `json:"steps" validate:"required,min=1,dive"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Step returns the step with the given name, or nil.
func (t *WorkflowTemplate) Step(name string) *WorkflowStep {
	for _, step := range t.Steps {
		if step.Name == name {
			return step
		}
	}

	return nil
}

// WorkflowStep is one stage of a template: gated by conditions, resolved to
// required actors, exited via transitions.
type WorkflowStep struct {
	// Name is the step's key within its template, unique per template.
	Name string `json:"name" validate:"required"`

	// Order is display metadata for template editors only. Execution order is
	// driven by the transition graph, never by this field.
	Order       int    `json:"order"`
	Description string `json:"description"`

	// AllConditionsMustMatch selects AND semantics over the condition set;
	// false selects OR. An empty condition set always matches.
	AllConditionsMustMatch bool `json:"all_conditions_must_match"`

	Conditions  []*Condition  `json:"conditions,omitempty" validate:"dive"`
	Actions     []*Action     `json:"actions"              validate:"required,min=1,dive"`
	Transitions []*Transition `json:"transitions"          validate:"required,dive"`
}

// Transition returns the transition declared for the given outcome, or nil.
func (s *WorkflowStep) Transition(outcome Outcome) *Transition {
	for _, tr := range s.Transitions {
		if tr.OnOutcome == outcome {
			return tr
		}
	}

	return nil
}

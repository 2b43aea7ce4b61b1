package web

import (
	"github.com/approvio/approvio/pkg/models"
)

// CreateTemplateRequest is the payload for creating a template (version 1) or
// publishing the next version of an existing one.
type CreateTemplateRequest struct {
	Name            string                 `json:"name"             validate:"required,min=3"`
	Description     string                 `json:"description"`
	DepartmentID    *string                `json:"department_id,omitempty"`
	TriggerType     models.TriggerType     `json:"trigger_type"     validate:"required,oneof=MANUAL AUTOMATIC"`
	Active          *bool                  `json:"active,omitempty"`
	InitialStep     string                 `json:"initial_step"     validate:"required"`
	AttributeSchema map[string]any         `json:"attribute_schema,omitempty"`
	Steps           []*models.WorkflowStep `json:"steps"            validate:"required,min=1,dive"`
}

// ToModel converts the request into a template owned by the organization.
// Version and timestamps are assigned by the service.
func (r *CreateTemplateRequest) ToModel(organizationID string) *models.WorkflowTemplate {
	active := true
	if r.Active != nil {
		active = *r.Active
	}

	return &models.WorkflowTemplate{
		OrganizationID:  organizationID,
		DepartmentID:    r.DepartmentID,
		Name:            r.Name,
		Description:     r.Description,
		TriggerType:     r.TriggerType,
		Active:          active,
		InitialStep:     r.InitialStep,
		AttributeSchema: r.AttributeSchema,
		Steps:           r.Steps,
	}
}

// CreateInstanceRequest is the payload for starting a workflow instance.
type CreateInstanceRequest struct {
	TemplateID      string         `json:"template_id" validate:"required"`
	TemplateVersion int            `json:"template_version,omitempty" validate:"omitempty,min=1"`
	DepartmentID    *string        `json:"department_id,omitempty"`
	EntityType      string         `json:"entity_type" validate:"required"`
	EntityID        string         `json:"entity_id"   validate:"required"`
	Attributes      map[string]any `json:"attributes,omitempty"`
}

// DecisionRequest is the payload for recording one actor's decision on the
// instance's open step.
type DecisionRequest struct {
	ActorID  string              `json:"actor_id" validate:"required"`
	Decision models.DecisionKind `json:"decision" validate:"required,oneof=APPROVE REJECT"`
	Note     string              `json:"note,omitempty"`
}

// CancelRequest is the payload for cancelling an instance.
type CancelRequest struct {
	CancelledBy string `json:"cancelled_by" validate:"required"`
}

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/approvio/approvio/pkg/engine"
	"github.com/approvio/approvio/pkg/models"
	"github.com/approvio/approvio/pkg/persistence"
	"github.com/google/uuid"
)

// Template manages the versioned template store. Every write path runs full
// structural validation before anything touches persistence; invalid
// definitions are rejected wholesale.
type Template struct {
	persistence persistence.Persistence
}

// NewTemplate creates a new template service.
func NewTemplate(persistence persistence.Persistence) *Template {
	return &Template{
		persistence: persistence,
	}
}

// HealthCheck checks the health of the persistence layer.
func (t *Template) HealthCheck(ctx context.Context) (string, bool) {
	if t.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := t.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Create validates and persists a brand-new template as version 1.
func (t *Template) Create(ctx context.Context, template *models.WorkflowTemplate) (*models.WorkflowTemplate, error) {
	if template == nil {
		return nil, ErrTemplateNil
	}

	if template.OrganizationID == "" {
		return nil, ErrOrganizationRequired
	}

	if template.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate template ID: %w", err)
		}

		template.ID = id.String()
	}

	template.Version = 1

	now := time.Now().UTC()
	template.CreatedAt = now
	template.UpdatedAt = now

	if err := engine.ValidateTemplate(template); err != nil {
		return nil, err
	}

	if err := t.persistence.TemplateRepository().Create(ctx, template); err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}

	return template, nil
}

// NewVersion validates and persists the next version of an existing template.
// The prior version stays untouched; in-flight instances keep running against
// the version they were created with.
func (t *Template) NewVersion(ctx context.Context, id string, template *models.WorkflowTemplate) (*models.WorkflowTemplate, error) {
	if template == nil {
		return nil, ErrTemplateNil
	}

	latest, err := t.persistence.TemplateRepository().GetLatest(ctx, id)
	if err != nil {
		return nil, err
	}

	if template.OrganizationID != "" && template.OrganizationID != latest.OrganizationID {
		return nil, ErrOrganizationImmutable
	}

	template.ID = latest.ID
	template.Version = latest.Version + 1
	template.OrganizationID = latest.OrganizationID

	now := time.Now().UTC()
	template.CreatedAt = latest.CreatedAt
	template.UpdatedAt = now

	if err := engine.ValidateTemplate(template); err != nil {
		return nil, err
	}

	if err := t.persistence.TemplateRepository().Create(ctx, template); err != nil {
		return nil, fmt.Errorf("failed to create template version: %w", err)
	}

	return template, nil
}

// Get returns the latest version of a template.
func (t *Template) Get(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	return t.persistence.TemplateRepository().GetLatest(ctx, id)
}

// GetVersion returns one exact template version.
func (t *Template) GetVersion(ctx context.Context, id string, version int) (*models.WorkflowTemplate, error) {
	return t.persistence.TemplateRepository().GetVersion(ctx, id, version)
}

// List returns the latest version of every template owned by the organization,
// optionally narrowed to a department.
func (t *Template) List(ctx context.Context, organizationID string, departmentID *string) ([]*models.WorkflowTemplate, error) {
	if organizationID == "" {
		return nil, ErrOrganizationRequired
	}

	return t.persistence.TemplateRepository().List(ctx, organizationID, departmentID)
}

// Package persistence provides the data storage abstraction for workflow
// templates and instances.
package persistence

import (
	"context"

	"github.com/approvio/approvio/pkg/models"
)

// Persistence is the storage entry point handed to services and the runtime.
type Persistence interface {
	TemplateRepository() TemplateRepository
	InstanceRepository() InstanceRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// TemplateRepository stores immutable template versions. There is no update
// or delete: edits insert the next version, and versions referenced by
// instances are kept forever.
type TemplateRepository interface {
	// Create persists a new template version. The (id, version) pair must not
	// exist yet; ErrTemplateVersionExists otherwise.
	Create(ctx context.Context, template *models.WorkflowTemplate) error

	// GetVersion returns one exact template version, or ErrTemplateNotFound.
	GetVersion(ctx context.Context, id string, version int) (*models.WorkflowTemplate, error)

	// GetLatest returns the highest version of a template, or
	// ErrTemplateNotFound.
	GetLatest(ctx context.Context, id string) (*models.WorkflowTemplate, error)

	// List returns the latest version of every template owned by the
	// organization, optionally narrowed to a department.
	List(ctx context.Context, organizationID string, departmentID *string) ([]*models.WorkflowTemplate, error)
}

// InstanceRepository stores workflow instances with optimistic concurrency.
type InstanceRepository interface {
	// Create persists a new instance; ErrInstanceExists on duplicate ID.
	Create(ctx context.Context, instance *models.WorkflowInstance) error

	// GetByID returns an instance with its full execution history, or
	// ErrInstanceNotFound.
	GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error)

	// Update persists an instance mutation if and only if the stored revision
	// still equals expectedRevision, then increments the revision. A stale
	// expectation returns ErrRevisionConflict and writes nothing; the caller
	// reloads and retries against fresh state.
	Update(ctx context.Context, instance *models.WorkflowInstance, expectedRevision int64) error

	// ListBlocked returns in-progress instances waiting on approver
	// resolution, for the sweeper.
	ListBlocked(ctx context.Context) ([]*models.WorkflowInstance, error)
}

package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/approvio/approvio/pkg/models"
	"github.com/approvio/approvio/pkg/persistence"
)

// InstanceRepository stores instances as instances/<id>.json. A single mutex
// serializes writers so the revision check-and-increment is atomic within the
// process.
type InstanceRepository struct {
	root string
	mu   sync.Mutex
}

// NewInstanceRepository creates a new instance repository.
func NewInstanceRepository(root string) *InstanceRepository {
	return &InstanceRepository{root: root}
}

// Create persists a new instance.
func (ir *InstanceRepository) Create(_ context.Context, instance *models.WorkflowInstance) error {
	ir.mu.Lock()
	defer ir.mu.Unlock()

	err := os.MkdirAll(path.Join(ir.root, "instances"), 0750)
	if err != nil {
		return fmt.Errorf("failed to create instances directory: %w", err)
	}

	filePath := ir.instancePath(instance.ID)
	if _, err := os.Stat(filePath); err == nil {
		return persistence.ErrInstanceExists
	}

	return ir.write(filePath, instance)
}

// GetByID retrieves an instance with its full execution history.
func (ir *InstanceRepository) GetByID(_ context.Context, id string) (*models.WorkflowInstance, error) {
	ir.mu.Lock()
	defer ir.mu.Unlock()

	return ir.read(id)
}

// Update persists a mutation only when the stored revision still matches
// expectedRevision, then increments the revision on the passed instance.
func (ir *InstanceRepository) Update(_ context.Context, instance *models.WorkflowInstance, expectedRevision int64) error {
	ir.mu.Lock()
	defer ir.mu.Unlock()

	stored, err := ir.read(instance.ID)
	if err != nil {
		return err
	}

	if stored.Revision != expectedRevision {
		return persistence.ErrRevisionConflict
	}

	instance.Revision = expectedRevision + 1

	return ir.write(ir.instancePath(instance.ID), instance)
}

// ListBlocked returns in-progress instances waiting on approver resolution.
func (ir *InstanceRepository) ListBlocked(_ context.Context) ([]*models.WorkflowInstance, error) {
	ir.mu.Lock()
	defer ir.mu.Unlock()

	root := os.DirFS(path.Join(ir.root, "instances"))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list instance files: %w", err)
	}

	blocked := make([]*models.WorkflowInstance, 0)

	for _, file := range jsonFiles {
		instance, err := ir.read(file[:len(file)-5])
		if err != nil {
			if persistence.IsInstanceNotFound(err) {
				continue
			}

			return nil, err
		}

		if instance.Status == models.InstanceStatusInProgress && instance.IsBlocked() {
			blocked = append(blocked, instance)
		}
	}

	return blocked, nil
}

func (ir *InstanceRepository) read(id string) (*models.WorkflowInstance, error) {
	body, err := os.ReadFile(ir.instancePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrInstanceNotFound
		}

		return nil, fmt.Errorf("failed to fetch instance %s: %w", id, err)
	}

	var instance models.WorkflowInstance

	err = json.Unmarshal(body, &instance)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal instance %s: %w", id, err)
	}

	return &instance, nil
}

func (ir *InstanceRepository) write(filePath string, instance *models.WorkflowInstance) error {
	data, err := json.MarshalIndent(instance, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal instance %s: %w", instance.ID, err)
	}

	return os.WriteFile(filePath, data, 0600)
}

func (ir *InstanceRepository) instancePath(id string) string {
	return filepath.Clean(path.Join(ir.root, "instances", id+".json"))
}

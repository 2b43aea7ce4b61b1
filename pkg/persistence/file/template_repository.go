package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/approvio/approvio/pkg/models"
	"github.com/approvio/approvio/pkg/persistence"
)

// TemplateRepository stores template versions as JSON files laid out as
// templates/<id>/v<version>.json. Versions are write-once.
type TemplateRepository struct {
	root string
	mu   sync.Mutex
}

// NewTemplateRepository creates a new template repository.
func NewTemplateRepository(root string) *TemplateRepository {
	return &TemplateRepository{root: root}
}

// Create persists a new template version. An existing (id, version) file is
// never overwritten.
func (tr *TemplateRepository) Create(_ context.Context, template *models.WorkflowTemplate) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	dir := path.Join(tr.root, "templates", template.ID)

	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create template directory: %w", err)
	}

	filePath := tr.versionPath(template.ID, template.Version)
	if _, err := os.Stat(filePath); err == nil {
		return persistence.ErrTemplateVersionExists
	}

	data, err := json.MarshalIndent(template, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal template %s: %w", template.ID, err)
	}

	return os.WriteFile(filePath, data, 0600)
}

// GetVersion retrieves one exact template version.
func (tr *TemplateRepository) GetVersion(_ context.Context, id string, version int) (*models.WorkflowTemplate, error) {
	return tr.read(tr.versionPath(id, version), id)
}

// GetLatest retrieves the highest persisted version of a template.
func (tr *TemplateRepository) GetLatest(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	versions, err := tr.versions(id)
	if err != nil {
		return nil, err
	}

	if len(versions) == 0 {
		return nil, persistence.ErrTemplateNotFound
	}

	return tr.GetVersion(ctx, id, versions[len(versions)-1])
}

// List returns the latest version of every template owned by the organization,
// optionally narrowed to a department.
func (tr *TemplateRepository) List(ctx context.Context, organizationID string, departmentID *string) ([]*models.WorkflowTemplate, error) {
	dir := path.Join(tr.root, "templates")

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.WorkflowTemplate{}, nil
		}

		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	templates := make([]*models.WorkflowTemplate, 0, len(entries))

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		template, err := tr.GetLatest(ctx, entry.Name())
		if err != nil {
			if persistence.IsTemplateNotFound(err) {
				continue
			}

			return nil, err
		}

		if template.OrganizationID != organizationID {
			continue
		}

		if departmentID != nil {
			if template.DepartmentID == nil || *template.DepartmentID != *departmentID {
				continue
			}
		}

		templates = append(templates, template)
	}

	sort.Slice(templates, func(i, j int) bool {
		return templates[i].Name < templates[j].Name
	})

	return templates, nil
}

func (tr *TemplateRepository) versions(id string) ([]int, error) {
	root := os.DirFS(path.Join(tr.root, "templates", id))

	jsonFiles, err := fs.Glob(root, "v*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list template versions: %w", err)
	}

	versions := make([]int, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		raw := strings.TrimSuffix(strings.TrimPrefix(file, "v"), ".json")

		version, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}

		versions = append(versions, version)
	}

	sort.Ints(versions)

	return versions, nil
}

func (tr *TemplateRepository) read(filePath, id string) (*models.WorkflowTemplate, error) {
	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrTemplateNotFound
		}

		return nil, fmt.Errorf("failed to fetch template %s: %w", id, err)
	}

	var template models.WorkflowTemplate

	err = json.Unmarshal(body, &template)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal template %s: %w", id, err)
	}

	return &template, nil
}

func (tr *TemplateRepository) versionPath(id string, version int) string {
	return filepath.Clean(path.Join(tr.root, "templates", id, "v"+strconv.Itoa(version)+".json"))
}

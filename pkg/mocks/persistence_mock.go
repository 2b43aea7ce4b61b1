package mocks

import (
	"context"

	"github.com/approvio/approvio/pkg/models"
	"github.com/approvio/approvio/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockPersistence is a mock implementation of persistence.Persistence.
type MockPersistence struct {
	mock.Mock
}

func (m *MockPersistence) TemplateRepository() persistence.TemplateRepository {
	args := m.Called()

	repo, _ := args.Get(0).(persistence.TemplateRepository)

	return repo
}

func (m *MockPersistence) InstanceRepository() persistence.InstanceRepository {
	args := m.Called()

	repo, _ := args.Get(0).(persistence.InstanceRepository)

	return repo
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

// MockTemplateRepository is a mock implementation of persistence.TemplateRepository.
type MockTemplateRepository struct {
	mock.Mock
}

func (m *MockTemplateRepository) Create(ctx context.Context, template *models.WorkflowTemplate) error {
	args := m.Called(ctx, template)

	return args.Error(0)
}

func (m *MockTemplateRepository) GetVersion(ctx context.Context, id string, version int) (*models.WorkflowTemplate, error) {
	args := m.Called(ctx, id, version)

	template, _ := args.Get(0).(*models.WorkflowTemplate)

	return template, args.Error(1)
}

func (m *MockTemplateRepository) GetLatest(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	args := m.Called(ctx, id)

	template, _ := args.Get(0).(*models.WorkflowTemplate)

	return template, args.Error(1)
}

func (m *MockTemplateRepository) List(ctx context.Context, organizationID string, departmentID *string) ([]*models.WorkflowTemplate, error) {
	args := m.Called(ctx, organizationID, departmentID)

	templates, _ := args.Get(0).([]*models.WorkflowTemplate)

	return templates, args.Error(1)
}

// MockInstanceRepository is a mock implementation of persistence.InstanceRepository.
type MockInstanceRepository struct {
	mock.Mock
}

func (m *MockInstanceRepository) Create(ctx context.Context, instance *models.WorkflowInstance) error {
	args := m.Called(ctx, instance)

	return args.Error(0)
}

func (m *MockInstanceRepository) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	args := m.Called(ctx, id)

	instance, _ := args.Get(0).(*models.WorkflowInstance)

	return instance, args.Error(1)
}

func (m *MockInstanceRepository) Update(ctx context.Context, instance *models.WorkflowInstance, expectedRevision int64) error {
	args := m.Called(ctx, instance, expectedRevision)

	return args.Error(0)
}

func (m *MockInstanceRepository) ListBlocked(ctx context.Context) ([]*models.WorkflowInstance, error) {
	args := m.Called(ctx)

	instances, _ := args.Get(0).([]*models.WorkflowInstance)

	return instances, args.Error(1)
}

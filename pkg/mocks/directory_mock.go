package mocks

import (
	"context"

	"github.com/approvio/approvio/pkg/directory"
	"github.com/stretchr/testify/mock"
)

// MockDirectory is a mock implementation of directory.Directory.
type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) ListMembersWithRole(ctx context.Context, scope directory.Scope, role string) ([]string, error) {
	args := m.Called(ctx, scope, role)

	members, _ := args.Get(0).([]string)

	return members, args.Error(1)
}

func (m *MockDirectory) IsActiveMember(ctx context.Context, scope directory.Scope, memberID string) (bool, error) {
	args := m.Called(ctx, scope, memberID)

	return args.Bool(0), args.Error(1)
}

package directory

import (
	"context"
	"sort"
	"sync"
)

// Static is an in-memory Directory for tests and local development.
type Static struct {
	mu      sync.RWMutex
	members map[string]*staticMember // keyed by member ID
}

type staticMember struct {
	organizationID string
	departmentID   *string
	roles          map[string]struct{}
	active         bool
}

// NewStatic creates an empty in-memory directory.
func NewStatic() *Static {
	return &Static{members: make(map[string]*staticMember)}
}

// AddMember registers an active member with the given roles. Re-adding a
// member replaces its previous registration.
func (s *Static) AddMember(organizationID string, departmentID *string, memberID string, roles ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	roleSet := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		roleSet[role] = struct{}{}
	}

	s.members[memberID] = &staticMember{
		organizationID: organizationID,
		departmentID:   departmentID,
		roles:          roleSet,
		active:         true,
	}
}

// Deactivate marks a member inactive without removing it.
func (s *Static) Deactivate(memberID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.members[memberID]; ok {
		m.active = false
	}
}

// RemoveMember deletes a member entirely.
func (s *Static) RemoveMember(memberID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.members, memberID)
}

func (s *Static) ListMembersWithRole(_ context.Context, scope Scope, role string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0)

	for id, m := range s.members {
		if !m.active || m.organizationID != scope.OrganizationID {
			continue
		}

		// A department-scoped lookup also accepts organization-wide members.
		if scope.DepartmentID != nil && m.departmentID != nil && *m.departmentID != *scope.DepartmentID {
			continue
		}

		if _, ok := m.roles[role]; ok {
			ids = append(ids, id)
		}
	}

	sort.Strings(ids)

	return ids, nil
}

func (s *Static) IsActiveMember(_ context.Context, scope Scope, memberID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[memberID]

	return ok && m.active && m.organizationID == scope.OrganizationID, nil
}

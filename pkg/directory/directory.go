// Package directory abstracts the membership/role lookup collaborator. The
// engine never inspects organization data directly; it asks the directory for
// the members holding a role within an explicit tenant scope.
package directory

import "context"

// AdminRole is the role consulted for ANY_ADMIN actions.
const AdminRole = "admin"

// Scope identifies the organization (and optionally department) a lookup runs
// against. Scope is always passed explicitly; there is no ambient tenant state.
type Scope struct {
	OrganizationID string
	DepartmentID   *string
}

// Directory resolves organization membership. Implementations must only
// return active members.
type Directory interface {
	// ListMembersWithRole returns the IDs of active members holding the role
	// within the scope. An empty slice is a valid result.
	ListMembersWithRole(ctx context.Context, scope Scope, role string) ([]string, error)

	// IsActiveMember reports whether the member belongs to the scoped
	// organization and is active.
	IsActiveMember(ctx context.Context, scope Scope, memberID string) (bool, error)
}

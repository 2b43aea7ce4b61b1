package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic_ListMembersWithRole(t *testing.T) {
	dir := NewStatic()
	dir.AddMember("acme", nil, "alice", "manager")
	dir.AddMember("acme", nil, "bob", "manager", AdminRole)
	dir.AddMember("globex", nil, "dave", "manager")

	members, err := dir.ListMembersWithRole(context.Background(), Scope{OrganizationID: "acme"}, "manager")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, members)

	admins, err := dir.ListMembersWithRole(context.Background(), Scope{OrganizationID: "acme"}, AdminRole)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, admins)

	none, err := dir.ListMembersWithRole(context.Background(), Scope{OrganizationID: "acme"}, "counsel")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStatic_DepartmentScope(t *testing.T) {
	finance := "finance"
	legal := "legal"

	dir := NewStatic()
	dir.AddMember("acme", &finance, "alice", "manager")
	dir.AddMember("acme", &legal, "bob", "manager")
	dir.AddMember("acme", nil, "carol", "manager")

	// Department scope matches that department plus organization-wide members.
	members, err := dir.ListMembersWithRole(context.Background(),
		Scope{OrganizationID: "acme", DepartmentID: &finance}, "manager")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "carol"}, members)
}

func TestStatic_DeactivateAndRemove(t *testing.T) {
	dir := NewStatic()
	dir.AddMember("acme", nil, "alice", "manager")

	active, err := dir.IsActiveMember(context.Background(), Scope{OrganizationID: "acme"}, "alice")
	require.NoError(t, err)
	assert.True(t, active)

	dir.Deactivate("alice")

	active, err = dir.IsActiveMember(context.Background(), Scope{OrganizationID: "acme"}, "alice")
	require.NoError(t, err)
	assert.False(t, active)

	members, err := dir.ListMembersWithRole(context.Background(), Scope{OrganizationID: "acme"}, "manager")
	require.NoError(t, err)
	assert.Empty(t, members)

	// Re-adding reactivates.
	dir.AddMember("acme", nil, "alice", "manager")

	active, err = dir.IsActiveMember(context.Background(), Scope{OrganizationID: "acme"}, "alice")
	require.NoError(t, err)
	assert.True(t, active)

	dir.RemoveMember("alice")

	active, err = dir.IsActiveMember(context.Background(), Scope{OrganizationID: "acme"}, "alice")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestStatic_OrganizationIsolation(t *testing.T) {
	dir := NewStatic()
	dir.AddMember("acme", nil, "alice", "manager")

	active, err := dir.IsActiveMember(context.Background(), Scope{OrganizationID: "globex"}, "alice")
	require.NoError(t, err)
	assert.False(t, active)
}

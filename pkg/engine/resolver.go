package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/approvio/approvio/pkg/directory"
	"github.com/approvio/approvio/pkg/models"
)

// Resolver turns a step's action definitions into the concrete set of members
// whose approval is required, using the membership directory.
type Resolver struct {
	directory directory.Directory
}

// NewResolver creates an actor resolver over a membership directory.
func NewResolver(dir directory.Directory) *Resolver {
	return &Resolver{directory: dir}
}

// ResolveStep resolves the union of all the step's actions into an actor set
// and the step's effective approval mode. The result is snapshotted into the
// StepExecution at entry time; later membership changes do not alter who may
// decide an already-open step.
//
// When a step declares multiple actions, the effective mode is ALL if any
// action requires ALL, otherwise ANY.
func (r *Resolver) ResolveStep(ctx context.Context, step *models.WorkflowStep, scope directory.Scope) ([]string, models.ApprovalMode, error) {
	seen := make(map[string]struct{})
	mode := models.ApprovalModeAny

	for _, action := range step.Actions {
		actors, err := r.Resolve(ctx, action, scope)
		if err != nil {
			return nil, "", &ResolutionError{StepName: step.Name, Err: err}
		}

		for _, id := range actors {
			seen[id] = struct{}{}
		}

		if action.Mode == models.ApprovalModeAll {
			mode = models.ApprovalModeAll
		}
	}

	if len(seen) == 0 {
		return nil, "", &ResolutionError{StepName: step.Name, Err: ErrNoEligibleApprover}
	}

	actors := make([]string, 0, len(seen))
	for id := range seen {
		actors = append(actors, id)
	}

	sort.Strings(actors)

	return actors, mode, nil
}

// Resolve computes the actor set for a single action definition. An empty
// result returns ErrNoEligibleApprover; silently skipping the step would be a
// policy bypass.
func (r *Resolver) Resolve(ctx context.Context, action *models.Action, scope directory.Scope) ([]string, error) {
	switch action.Kind {
	case models.ActionKindRole:
		return r.membersWithRole(ctx, scope, action.ApproverRole)
	case models.ActionKindAnyAdmin:
		return r.membersWithRole(ctx, scope, directory.AdminRole)
	case models.ActionKindSpecificMember:
		active, err := r.directory.IsActiveMember(ctx, scope, action.MemberID)
		if err != nil {
			return nil, fmt.Errorf("failed to check membership of %s: %w", action.MemberID, err)
		}

		if !active {
			return nil, ErrNoEligibleApprover
		}

		return []string{action.MemberID}, nil
	default:
		return nil, models.ErrActionUnknownKind
	}
}

func (r *Resolver) membersWithRole(ctx context.Context, scope directory.Scope, role string) ([]string, error) {
	actors, err := r.directory.ListMembersWithRole(ctx, scope, role)
	if err != nil {
		return nil, fmt.Errorf("failed to list members with role %q: %w", role, err)
	}

	if len(actors) == 0 {
		return nil, ErrNoEligibleApprover
	}

	return actors, nil
}

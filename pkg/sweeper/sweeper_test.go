package sweeper

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/approvio/approvio/pkg/directory"
	"github.com/approvio/approvio/pkg/engine"
	"github.com/approvio/approvio/pkg/models"
	"github.com/approvio/approvio/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeper_UnblocksOnceMembershipChanges(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	dir := directory.NewStatic()
	dir.AddMember("acme", nil, "bob", directory.AdminRole)

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	runtime := engine.NewRuntime(p, dir, nil, nil, logger)

	approved := models.InstanceStatusApproved
	rejected := models.InstanceStatusRejected
	template := &models.WorkflowTemplate{
		ID:             "tpl-1",
		Version:        1,
		OrganizationID: "acme",
		Name:           "Contract approval",
		TriggerType:    models.TriggerTypeManual,
		Active:         true,
		InitialStep:    "admin-review",
		Steps: []*models.WorkflowStep{
			{
				Name: "admin-review",
				Actions: []*models.Action{
					{Kind: models.ActionKindAnyAdmin, Mode: models.ApprovalModeAny},
				},
				Transitions: []*models.Transition{
					{OnOutcome: models.OutcomeApproved, ToStep: "legal-review"},
					{OnOutcome: models.OutcomeRejected, Terminal: &rejected},
				},
			},
			{
				Name: "legal-review",
				Actions: []*models.Action{
					{Kind: models.ActionKindRole, Mode: models.ApprovalModeAny, ApproverRole: "counsel"},
				},
				Transitions: []*models.Transition{
					{OnOutcome: models.OutcomeApproved, Terminal: &approved},
					{OnOutcome: models.OutcomeRejected, Terminal: &rejected},
				},
			},
		},
	}
	require.NoError(t, p.TemplateRepository().Create(context.Background(), template))

	instance, err := runtime.CreateInstance(context.Background(), engine.CreateInstanceRequest{
		TemplateID:     "tpl-1",
		OrganizationID: "acme",
		EntityType:     "contract",
		EntityID:       "ctr-7",
	})
	require.NoError(t, err)

	// Approving the admin step blocks the instance: nobody holds counsel yet.
	instance, err = runtime.RecordDecision(context.Background(), instance.ID, "bob", models.DecisionApprove, "")
	require.NoError(t, err)
	require.True(t, instance.IsBlocked())

	sweeper := NewSweeper(runtime, p, logger)

	// Sweeping before the membership change leaves it blocked.
	sweeper.Sweep(context.Background())

	stored, err := p.InstanceRepository().GetByID(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsBlocked())

	dir.AddMember("acme", nil, "erin", "counsel")

	sweeper.Sweep(context.Background())

	stored, err = p.InstanceRepository().GetByID(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsBlocked())

	execution := stored.OpenExecution()
	require.NotNil(t, execution)
	assert.Equal(t, []string{"erin"}, execution.RequiredActors)

	blocked, err := p.InstanceRepository().ListBlocked(context.Background())
	require.NoError(t, err)
	assert.Empty(t, blocked)
}

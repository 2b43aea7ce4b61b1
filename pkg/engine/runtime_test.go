package engine

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/approvio/approvio/pkg/directory"
	"github.com/approvio/approvio/pkg/mocks"
	"github.com/approvio/approvio/pkg/models"
	"github.com/approvio/approvio/pkg/persistence"
	"github.com/approvio/approvio/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newRuntimeFixture(t *testing.T) (*Runtime, persistence.Persistence, *directory.Static) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	dir := testDirectory()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	return NewRuntime(p, dir, nil, nil, logger), p, dir
}

// thresholdTemplate gates a single admin review behind amount >= 1000.
func thresholdTemplate() *models.WorkflowTemplate {
	return &models.WorkflowTemplate{
		ID:             "tpl-threshold",
		Version:        1,
		OrganizationID: "acme",
		Name:           "Expense approval",
		TriggerType:    models.TriggerTypeManual,
		Active:         true,
		InitialStep:    "admin-review",
		Steps: []*models.WorkflowStep{
			{
				Name:       "admin-review",
				Conditions: []*models.Condition{amountRange(floatPtr(1000), nil)},
				Actions: []*models.Action{
					{Kind: models.ActionKindAnyAdmin, Mode: models.ApprovalModeAll},
				},
				Transitions: []*models.Transition{
					{OnOutcome: models.OutcomeApproved, Terminal: terminal(models.InstanceStatusApproved)},
					{OnOutcome: models.OutcomeRejected, Terminal: terminal(models.InstanceStatusRejected)},
				},
			},
		},
	}
}

func mustCreateTemplate(t *testing.T, p persistence.Persistence, template *models.WorkflowTemplate) {
	t.Helper()
	require.NoError(t, ValidateTemplate(template))
	require.NoError(t, p.TemplateRepository().Create(context.Background(), template))
}

func createRequest(templateID string, attributes map[string]any) CreateInstanceRequest {
	return CreateInstanceRequest{
		TemplateID:     templateID,
		OrganizationID: "acme",
		EntityType:     "expense_report",
		EntityID:       "exp-42",
		Attributes:     attributes,
	}
}

func TestRuntime_CreateInstance_BelowThresholdAutoApproves(t *testing.T) {
	runtime, p, _ := newRuntimeFixture(t)
	mustCreateTemplate(t, p, thresholdTemplate())

	instance, err := runtime.CreateInstance(context.Background(),
		createRequest("tpl-threshold", map[string]any{"amount": 500.0}))

	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusApproved, instance.Status)
	assert.Empty(t, instance.Executions, "skipped steps leave no execution record")

	stored, err := runtime.Instance(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusApproved, stored.Status)
}

func TestRuntime_CreateInstance_AboveThresholdOpensStep(t *testing.T) {
	runtime, p, _ := newRuntimeFixture(t)
	mustCreateTemplate(t, p, thresholdTemplate())

	instance, err := runtime.CreateInstance(context.Background(),
		createRequest("tpl-threshold", map[string]any{"amount": 1500.0}))

	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusInProgress, instance.Status)
	assert.Equal(t, "admin-review", instance.CurrentStep)

	execution := instance.OpenExecution()
	require.NotNil(t, execution)
	assert.Equal(t, []string{"bob", "carol"}, execution.RequiredActors)
	assert.Equal(t, models.ApprovalModeAll, execution.Mode)
}

func TestRuntime_RecordDecision_AllModeRequiresEveryActor(t *testing.T) {
	runtime, p, _ := newRuntimeFixture(t)
	mustCreateTemplate(t, p, thresholdTemplate())

	instance, err := runtime.CreateInstance(context.Background(),
		createRequest("tpl-threshold", map[string]any{"amount": 1500.0}))
	require.NoError(t, err)

	instance, err = runtime.RecordDecision(context.Background(), instance.ID, "bob", models.DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusInProgress, instance.Status, "one of two approvals")

	instance, err = runtime.RecordDecision(context.Background(), instance.ID, "carol", models.DecisionApprove, "lgtm")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusApproved, instance.Status)

	execution := instance.Executions[0]
	require.NotNil(t, execution.Outcome)
	assert.Equal(t, models.OutcomeApproved, *execution.Outcome)
	assert.NotNil(t, execution.ResolvedAt)
}

func TestRuntime_RecordDecision_AnyModeSettlesOnFirstDecision(t *testing.T) {
	runtime, p, _ := newRuntimeFixture(t)

	template := thresholdTemplate()
	template.ID = "tpl-any"
	template.Steps[0].Actions[0].Mode = models.ApprovalModeAny
	mustCreateTemplate(t, p, template)

	instance, err := runtime.CreateInstance(context.Background(),
		createRequest("tpl-any", map[string]any{"amount": 1500.0}))
	require.NoError(t, err)

	instance, err = runtime.RecordDecision(context.Background(), instance.ID, "carol", models.DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusApproved, instance.Status)
}

func TestRuntime_RecordDecision_RejectShortCircuits(t *testing.T) {
	runtime, p, _ := newRuntimeFixture(t)
	mustCreateTemplate(t, p, thresholdTemplate())

	instance, err := runtime.CreateInstance(context.Background(),
		createRequest("tpl-threshold", map[string]any{"amount": 1500.0}))
	require.NoError(t, err)

	instance, err = runtime.RecordDecision(context.Background(), instance.ID, "bob", models.DecisionReject, "over budget")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusRejected, instance.Status)

	// No further decisions are accepted.
	_, err = runtime.RecordDecision(context.Background(), instance.ID, "carol", models.DecisionApprove, "")
	assert.ErrorIs(t, err, ErrInstanceTerminal)
}

func TestRuntime_RecordDecision_UnauthorizedActor(t *testing.T) {
	runtime, p, _ := newRuntimeFixture(t)
	mustCreateTemplate(t, p, thresholdTemplate())

	instance, err := runtime.CreateInstance(context.Background(),
		createRequest("tpl-threshold", map[string]any{"amount": 1500.0}))
	require.NoError(t, err)

	// alice is a manager, not an admin; she is outside the snapshotted set.
	_, err = runtime.RecordDecision(context.Background(), instance.ID, "alice", models.DecisionApprove, "")
	assert.ErrorIs(t, err, ErrUnauthorizedActor)
}

func TestRuntime_RecordDecision_IdempotentResubmission(t *testing.T) {
	runtime, p, _ := newRuntimeFixture(t)
	mustCreateTemplate(t, p, thresholdTemplate())

	instance, err := runtime.CreateInstance(context.Background(),
		createRequest("tpl-threshold", map[string]any{"amount": 1500.0}))
	require.NoError(t, err)

	_, err = runtime.RecordDecision(context.Background(), instance.ID, "bob", models.DecisionApprove, "")
	require.NoError(t, err)

	// The same decision again is a no-op success.
	resubmitted, err := runtime.RecordDecision(context.Background(), instance.ID, "bob", models.DecisionApprove, "")
	require.NoError(t, err)
	assert.Len(t, resubmitted.Executions[0].Decisions, 1)

	// A different decision from the same actor conflicts.
	_, err = runtime.RecordDecision(context.Background(), instance.ID, "bob", models.DecisionReject, "")
	assert.ErrorIs(t, err, ErrDecisionConflict)
}

func TestRuntime_CreateInstance_NoEligibleApproverFailsCreation(t *testing.T) {
	runtime, p, _ := newRuntimeFixture(t)

	template := thresholdTemplate()
	template.ID = "tpl-counsel"
	template.Steps[0].Actions = []*models.Action{
		{Kind: models.ActionKindRole, Mode: models.ApprovalModeAny, ApproverRole: "counsel"},
	}
	mustCreateTemplate(t, p, template)

	_, err := runtime.CreateInstance(context.Background(),
		createRequest("tpl-counsel", map[string]any{"amount": 1500.0}))

	require.Error(t, err)
	assert.True(t, IsResolutionError(err))
}

func TestRuntime_CreateInstance_InactiveTemplate(t *testing.T) {
	runtime, p, _ := newRuntimeFixture(t)

	template := thresholdTemplate()
	template.Active = false
	mustCreateTemplate(t, p, template)

	_, err := runtime.CreateInstance(context.Background(),
		createRequest("tpl-threshold", map[string]any{"amount": 1500.0}))
	assert.ErrorIs(t, err, ErrTemplateInactive)
}

func TestRuntime_CreateInstance_OrganizationMismatch(t *testing.T) {
	runtime, p, _ := newRuntimeFixture(t)
	mustCreateTemplate(t, p, thresholdTemplate())

	req := createRequest("tpl-threshold", map[string]any{"amount": 1500.0})
	req.OrganizationID = "globex"

	_, err := runtime.CreateInstance(context.Background(), req)
	assert.ErrorIs(t, err, ErrOrganizationMismatch)
}

func TestRuntime_CreateInstance_AttributeSchemaRejection(t *testing.T) {
	runtime, p, _ := newRuntimeFixture(t)

	template := thresholdTemplate()
	template.ID = "tpl-schema"
	template.AttributeSchema = map[string]any{
		"type":     "object",
		"required": []any{"amount"},
		"properties": map[string]any{
			"amount": map[string]any{"type": "number"},
		},
	}
	mustCreateTemplate(t, p, template)

	_, err := runtime.CreateInstance(context.Background(),
		createRequest("tpl-schema", map[string]any{"note": "no amount"}))

	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestRuntime_CreateInstance_PinnedTemplateVersion(t *testing.T) {
	runtime, p, _ := newRuntimeFixture(t)
	mustCreateTemplate(t, p, thresholdTemplate())

	v2 := thresholdTemplate()
	v2.Version = 2
	v2.Active = false
	mustCreateTemplate(t, p, v2)

	// Unpinned creation resolves the latest version, which is inactive.
	_, err := runtime.CreateInstance(context.Background(),
		createRequest("tpl-threshold", map[string]any{"amount": 1500.0}))
	assert.ErrorIs(t, err, ErrTemplateInactive)

	// Pinning version 1 still works.
	req := createRequest("tpl-threshold", map[string]any{"amount": 1500.0})
	req.TemplateVersion = 1

	instance, err := runtime.CreateInstance(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, instance.TemplateVersion)
}

func TestRuntime_Cancel(t *testing.T) {
	runtime, p, _ := newRuntimeFixture(t)
	mustCreateTemplate(t, p, thresholdTemplate())

	instance, err := runtime.CreateInstance(context.Background(),
		createRequest("tpl-threshold", map[string]any{"amount": 1500.0}))
	require.NoError(t, err)

	cancelled, err := runtime.Cancel(context.Background(), instance.ID, "system")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCancelled, cancelled.Status)

	_, err = runtime.Cancel(context.Background(), instance.ID, "system")
	assert.ErrorIs(t, err, ErrInstanceTerminal)

	_, err = runtime.RecordDecision(context.Background(), instance.ID, "bob", models.DecisionApprove, "")
	assert.ErrorIs(t, err, ErrInstanceTerminal)
}

// twoStageTemplate routes through an admin step and then a counsel step.
func twoStageTemplate() *models.WorkflowTemplate {
	return &models.WorkflowTemplate{
		ID:             "tpl-two-stage",
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
					{OnOutcome: models.OutcomeRejected, Terminal: terminal(models.InstanceStatusRejected)},
				},
			},
			{
				Name: "legal-review",
				Actions: []*models.Action{
					{Kind: models.ActionKindRole, Mode: models.ApprovalModeAny, ApproverRole: "counsel"},
				},
				Transitions: []*models.Transition{
					{OnOutcome: models.OutcomeApproved, Terminal: terminal(models.InstanceStatusApproved)},
					{OnOutcome: models.OutcomeRejected, Terminal: terminal(models.InstanceStatusRejected)},
				},
			},
		},
	}
}

func TestRuntime_MidFlightResolutionFailureBlocksInstance(t *testing.T) {
	runtime, p, dir := newRuntimeFixture(t)
	mustCreateTemplate(t, p, twoStageTemplate())

	instance, err := runtime.CreateInstance(context.Background(),
		createRequest("tpl-two-stage", map[string]any{"amount": 1500.0}))
	require.NoError(t, err)

	// Nobody holds the counsel role yet: approving the admin step blocks the
	// instance instead of failing or skipping legal review.
	instance, err = runtime.RecordDecision(context.Background(), instance.ID, "bob", models.DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusInProgress, instance.Status)
	assert.Equal(t, "legal-review", instance.CurrentStep)
	assert.True(t, instance.IsBlocked())
	assert.Nil(t, instance.OpenExecution())

	_, err = runtime.RecordDecision(context.Background(), instance.ID, "bob", models.DecisionApprove, "")
	assert.ErrorIs(t, err, ErrInstanceBlocked)

	// Resuming before membership changes keeps it blocked.
	resumed, err := runtime.ResumeBlocked(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.True(t, resumed.IsBlocked())

	// A counsel joins; resuming opens the legal step.
	dir.AddMember("acme", nil, "erin", "counsel")

	resumed, err = runtime.ResumeBlocked(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.False(t, resumed.IsBlocked())

	execution := resumed.OpenExecution()
	require.NotNil(t, execution)
	assert.Equal(t, []string{"erin"}, execution.RequiredActors)

	final, err := runtime.RecordDecision(context.Background(), resumed.ID, "erin", models.DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusApproved, final.Status)
}

func TestRuntime_ConcurrentDecisionsAdvanceExactlyOnce(t *testing.T) {
	runtime, p, _ := newRuntimeFixture(t)

	template := thresholdTemplate()
	template.ID = "tpl-race"
	template.Steps[0].Actions[0].Mode = models.ApprovalModeAny
	mustCreateTemplate(t, p, template)

	instance, err := runtime.CreateInstance(context.Background(),
		createRequest("tpl-race", map[string]any{"amount": 1500.0}))
	require.NoError(t, err)

	var wg sync.WaitGroup

	errs := make([]error, 2)

	for i, actor := range []string{"bob", "carol"} {
		wg.Add(1)

		go func(i int, actor string) {
			defer wg.Done()

			_, errs[i] = runtime.RecordDecision(context.Background(), instance.ID, actor, models.DecisionApprove, "")
		}(i, actor)
	}

	wg.Wait()

	// Whoever lost the race either retried onto a terminal instance or
	// succeeded before it settled; either way the instance advanced once.
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, ErrInstanceTerminal)
		}
	}

	final, err := runtime.Instance(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusApproved, final.Status)
	require.Len(t, final.Executions, 1)
	require.NotNil(t, final.Executions[0].Outcome)
	assert.Equal(t, models.OutcomeApproved, *final.Executions[0].Outcome)
}

func TestRuntime_PublishesLifecycleEvents(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	dir := testDirectory()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	runtime := NewRuntime(p, dir, bus, nil, logger)
	mustCreateTemplate(t, p, thresholdTemplate())

	instance, err := runtime.CreateInstance(context.Background(),
		createRequest("tpl-threshold", map[string]any{"amount": 1500.0}))
	require.NoError(t, err)

	_, err = runtime.RecordDecision(context.Background(), instance.ID, "bob", models.DecisionApprove, "")
	require.NoError(t, err)

	// instance.created + step.entered on creation, decision.recorded after the
	// first approval.
	bus.AssertNumberOfCalls(t, "Publish", 3)
}

package engine

import (
	"testing"

	"github.com/approvio/approvio/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func terminal(status models.InstanceStatus) *models.InstanceStatus {
	return &status
}

func anyAdmin() []*models.Action {
	return []*models.Action{{Kind: models.ActionKindAnyAdmin, Mode: models.ApprovalModeAny}}
}

// twoStepTemplate is a minimal valid template: manager then director, both
// outcome-complete.
func twoStepTemplate() *models.WorkflowTemplate {
	return &models.WorkflowTemplate{
		ID:             "tpl-1",
		Version:        1,
		OrganizationID: "acme",
		Name:           "Expense approval",
		TriggerType:    models.TriggerTypeManual,
		Active:         true,
		InitialStep:    "manager",
		Steps: []*models.WorkflowStep{
			{
				Name:    "manager",
				Actions: anyAdmin(),
				Transitions: []*models.Transition{
					{OnOutcome: models.OutcomeApproved, ToStep: "director"},
					{OnOutcome: models.OutcomeRejected, Terminal: terminal(models.InstanceStatusRejected)},
				},
			},
			{
				Name:    "director",
				Actions: anyAdmin(),
				Transitions: []*models.Transition{
					{OnOutcome: models.OutcomeApproved, Terminal: terminal(models.InstanceStatusApproved)},
					{OnOutcome: models.OutcomeRejected, Terminal: terminal(models.InstanceStatusRejected)},
				},
			},
		},
	}
}

func TestValidateTemplate_Valid(t *testing.T) {
	assert.NoError(t, ValidateTemplate(twoStepTemplate()))
}

func TestValidateTemplate_NoSteps(t *testing.T) {
	template := twoStepTemplate()
	template.Steps = nil

	err := ValidateTemplate(template)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestValidateTemplate_DuplicateStepNames(t *testing.T) {
	template := twoStepTemplate()
	template.Steps[1].Name = "manager"

	err := ValidateTemplate(template)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate step name")
}

func TestValidateTemplate_InitialStepMustExist(t *testing.T) {
	template := twoStepTemplate()
	template.InitialStep = "cfo"

	err := ValidateTemplate(template)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initial step")
}

func TestValidateTemplate_StepRequiresAction(t *testing.T) {
	template := twoStepTemplate()
	template.Steps[0].Actions = nil

	err := ValidateTemplate(template)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one action")
}

func TestValidateTemplate_OutcomeCoverage(t *testing.T) {
	template := twoStepTemplate()
	// Drop the REJECTED transition from the manager step.
	template.Steps[0].Transitions = template.Steps[0].Transitions[:1]

	err := ValidateTemplate(template)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing transition for outcome REJECTED")
}

func TestValidateTemplate_DuplicateOutcome(t *testing.T) {
	template := twoStepTemplate()
	template.Steps[0].Transitions = append(template.Steps[0].Transitions,
		&models.Transition{OnOutcome: models.OutcomeApproved, Terminal: terminal(models.InstanceStatusApproved)})

	err := ValidateTemplate(template)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate transition")
}

func TestValidateTemplate_TransitionTargetMustExist(t *testing.T) {
	template := twoStepTemplate()
	template.Steps[0].Transitions[0].ToStep = "cfo"

	err := ValidateTemplate(template)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `target step "cfo" does not exist`)
}

func TestValidateTemplate_UnreachableStep(t *testing.T) {
	template := twoStepTemplate()
	template.Steps[0].Transitions[0] = &models.Transition{
		OnOutcome: models.OutcomeApproved,
		Terminal:  terminal(models.InstanceStatusApproved),
	}

	err := ValidateTemplate(template)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestValidateTemplate_NonTerminatingCycle(t *testing.T) {
	template := twoStepTemplate()
	// manager -> director -> manager with no terminal transition anywhere.
	template.Steps[0].Transitions = []*models.Transition{
		{OnOutcome: models.OutcomeApproved, ToStep: "director"},
		{OnOutcome: models.OutcomeRejected, ToStep: "director"},
	}
	template.Steps[1].Transitions = []*models.Transition{
		{OnOutcome: models.OutcomeApproved, ToStep: "manager"},
		{OnOutcome: models.OutcomeRejected, ToStep: "manager"},
	}

	err := ValidateTemplate(template)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-terminating")
}

func TestValidateTemplate_CycleWithExitIsAllowed(t *testing.T) {
	template := twoStepTemplate()
	// director can bounce back to manager on rejection, but approval still
	// terminates the workflow.
	template.Steps[1].Transitions = []*models.Transition{
		{OnOutcome: models.OutcomeApproved, Terminal: terminal(models.InstanceStatusApproved)},
		{OnOutcome: models.OutcomeRejected, ToStep: "manager"},
	}

	assert.NoError(t, ValidateTemplate(template))
}

func TestValidateTemplate_ConditionDefects(t *testing.T) {
	template := twoStepTemplate()
	template.Steps[0].Conditions = []*models.Condition{
		{Kind: models.ConditionKindAmountRange, AmountRange: &models.AmountRangeCondition{}},
	}

	err := ValidateTemplate(template)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one bound")
}

func TestValidateTemplate_ExpressionMustCompile(t *testing.T) {
	template := twoStepTemplate()
	template.Steps[0].Conditions = []*models.Condition{expression("amount >")}

	err := ValidateTemplate(template)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not compile")
}

func TestValidateTemplate_InvalidAttributeSchema(t *testing.T) {
	template := twoStepTemplate()
	template.AttributeSchema = map[string]any{
		"type": 42,
	}

	err := ValidateTemplate(template)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON schema")
}

func TestValidateTemplate_CollectsAllIssues(t *testing.T) {
	template := twoStepTemplate()
	template.InitialStep = "cfo"
	template.Steps[0].Actions = nil

	err := ValidateTemplate(template)
	require.Error(t, err)

	var verr *ValidationError

	require.ErrorAs(t, err, &verr)
	assert.GreaterOrEqual(t, len(verr.Issues), 2)
}

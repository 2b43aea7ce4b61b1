package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(f float64) *float64 { return &f }

func TestCondition_Validate(t *testing.T) {
	tests := []struct {
		name      string
		condition Condition
		wantErr   error
	}{
		{
			name: "valid amount range",
			condition: Condition{
				Kind:        ConditionKindAmountRange,
				AmountRange: &AmountRangeCondition{MinAmount: floatPtr(100)},
			},
			wantErr: nil,
		},
		{
			name: "amount range without bounds",
			condition: Condition{
				Kind:        ConditionKindAmountRange,
				AmountRange: &AmountRangeCondition{},
			},
			wantErr: ErrAmountRangeUnbounded,
		},
		{
			name: "amount range with inverted bounds",
			condition: Condition{
				Kind:        ConditionKindAmountRange,
				AmountRange: &AmountRangeCondition{MinAmount: floatPtr(500), MaxAmount: floatPtr(100)},
			},
			wantErr: ErrAmountRangeInverted,
		},
		{
			name: "kind without payload",
			condition: Condition{
				Kind: ConditionKindAmountRange,
			},
			wantErr: ErrConditionVariantMismatch,
		},
		{
			name: "two payloads set",
			condition: Condition{
				Kind:        ConditionKindAmountRange,
				AmountRange: &AmountRangeCondition{MinAmount: floatPtr(1)},
				Category:    &CategoryCondition{Values: []string{"travel"}},
			},
			wantErr: ErrConditionVariantMismatch,
		},
		{
			name: "valid category",
			condition: Condition{
				Kind:     ConditionKindCategory,
				Category: &CategoryCondition{Values: []string{"travel", "equipment"}},
			},
			wantErr: nil,
		},
		{
			name: "category without values",
			condition: Condition{
				Kind:     ConditionKindCategory,
				Category: &CategoryCondition{},
			},
			wantErr: ErrCategoryValuesRequired,
		},
		{
			name: "valid expression",
			condition: Condition{
				Kind:       ConditionKindExpression,
				Expression: &ExpressionCondition{Source: `amount > 100 && urgency == "high"`},
			},
			wantErr: nil,
		},
		{
			name: "expression without source",
			condition: Condition{
				Kind:       ConditionKindExpression,
				Expression: &ExpressionCondition{},
			},
			wantErr: ErrExpressionSourceRequired,
		},
		{
			name:      "unknown kind",
			condition: Condition{Kind: "REGEX"},
			wantErr:   ErrConditionVariantMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.condition.Validate()

			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestCategoryCondition_AttributeOrDefault(t *testing.T) {
	assert.Equal(t, "category", (&CategoryCondition{}).AttributeOrDefault())
	assert.Equal(t, "cost_center", (&CategoryCondition{Attribute: "cost_center"}).AttributeOrDefault())
}

func TestAction_Validate(t *testing.T) {
	tests := []struct {
		name    string
		action  Action
		wantErr error
	}{
		{
			name:    "role action",
			action:  Action{Kind: ActionKindRole, Mode: ApprovalModeAny, ApproverRole: "manager"},
			wantErr: nil,
		},
		{
			name:    "role action without role",
			action:  Action{Kind: ActionKindRole, Mode: ApprovalModeAny},
			wantErr: ErrActionRoleRequired,
		},
		{
			name:    "specific member action",
			action:  Action{Kind: ActionKindSpecificMember, Mode: ApprovalModeAll, MemberID: "alice"},
			wantErr: nil,
		},
		{
			name:    "specific member action without member",
			action:  Action{Kind: ActionKindSpecificMember, Mode: ApprovalModeAll},
			wantErr: ErrActionMemberRequired,
		},
		{
			name:    "any admin action",
			action:  Action{Kind: ActionKindAnyAdmin, Mode: ApprovalModeAny},
			wantErr: nil,
		},
		{
			name:    "unknown kind",
			action:  Action{Kind: "COMMITTEE"},
			wantErr: ErrActionUnknownKind,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.action.Validate()

			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestTransition_Validate(t *testing.T) {
	approved := InstanceStatusApproved
	cancelled := InstanceStatusCancelled

	tests := []struct {
		name       string
		transition Transition
		wantErr    error
	}{
		{
			name:       "step target",
			transition: Transition{OnOutcome: OutcomeApproved, ToStep: "director"},
			wantErr:    nil,
		},
		{
			name:       "terminal target",
			transition: Transition{OnOutcome: OutcomeApproved, Terminal: &approved},
			wantErr:    nil,
		},
		{
			name:       "no target",
			transition: Transition{OnOutcome: OutcomeApproved},
			wantErr:    ErrTransitionTargetRequired,
		},
		{
			name:       "both targets",
			transition: Transition{OnOutcome: OutcomeApproved, ToStep: "director", Terminal: &approved},
			wantErr:    ErrTransitionTargetAmbiguous,
		},
		{
			name:       "cancelled is not a valid terminal",
			transition: Transition{OnOutcome: OutcomeRejected, Terminal: &cancelled},
			wantErr:    ErrTransitionBadTerminal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.transition.Validate()

			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestWorkflowTemplate_Step(t *testing.T) {
	template := &WorkflowTemplate{
		Steps: []*WorkflowStep{
			{Name: "manager"},
			{Name: "director"},
		},
	}

	step := template.Step("director")
	require.NotNil(t, step)
	assert.Equal(t, "director", step.Name)

	assert.Nil(t, template.Step("cfo"))
}

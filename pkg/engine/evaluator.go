package engine

import (
	"encoding/json"

	"github.com/approvio/approvio/pkg/models"
	"github.com/expr-lang/expr"
)

// Matches evaluates a step's condition set against the submitted object's
// attribute map. Conditions combine with AND when AllConditionsMustMatch is
// set, OR otherwise. An empty condition set always matches.
//
// The evaluator is total and side-effect-free: a condition referencing a
// missing or mistyped attribute evaluates to false, never errors.
func Matches(step *models.WorkflowStep, attributes map[string]any) bool {
	if len(step.Conditions) == 0 {
		return true
	}

	for _, condition := range step.Conditions {
		matched := evaluate(condition, attributes)

		if step.AllConditionsMustMatch && !matched {
			return false
		}

		if !step.AllConditionsMustMatch && matched {
			return true
		}
	}

	return step.AllConditionsMustMatch
}

func evaluate(condition *models.Condition, attributes map[string]any) bool {
	switch condition.Kind {
	case models.ConditionKindAmountRange:
		return evaluateAmountRange(condition.AmountRange, attributes)
	case models.ConditionKindCategory:
		return evaluateCategory(condition.Category, attributes)
	case models.ConditionKindExpression:
		return evaluateExpression(condition.Expression, attributes)
	default:
		return false
	}
}

func evaluateAmountRange(c *models.AmountRangeCondition, attributes map[string]any) bool {
	if c == nil {
		return false
	}

	amount, ok := numericAttribute(attributes["amount"])
	if !ok {
		return false
	}

	if c.MinAmount != nil && amount < *c.MinAmount {
		return false
	}

	if c.MaxAmount != nil && amount > *c.MaxAmount {
		return false
	}

	return true
}

func evaluateCategory(c *models.CategoryCondition, attributes map[string]any) bool {
	if c == nil {
		return false
	}

	value, ok := attributes[c.AttributeOrDefault()].(string)
	if !ok {
		return false
	}

	for _, candidate := range c.Values {
		if candidate == value {
			return true
		}
	}

	return false
}

// evaluateExpression compiles and runs the expression against the attribute
// map. Compilation is re-checked at template validation time; any runtime
// failure or non-boolean result counts as no-match.
func evaluateExpression(c *models.ExpressionCondition, attributes map[string]any) bool {
	if c == nil {
		return false
	}

	program, err := expr.Compile(c.Source, expr.AllowUndefinedVariables())
	if err != nil {
		return false
	}

	out, err := expr.Run(program, attributes)
	if err != nil {
		return false
	}

	result, ok := out.(bool)

	return ok && result
}

// numericAttribute coerces the JSON-shaped attribute values that callers
// submit into a float64.
func numericAttribute(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()

		return f, err == nil
	default:
		return 0, false
	}
}

package models

import "errors"

// ConditionKind discriminates the closed set of condition variants. New
// predicate kinds are added as explicit variants so the evaluator keeps
// exhaustive-match safety; there is no open string-keyed extension point.
type ConditionKind string

const (
	ConditionKindAmountRange ConditionKind = "AMOUNT_RANGE"
	ConditionKindCategory    ConditionKind = "CATEGORY"
	ConditionKindExpression  ConditionKind = "EXPRESSION"
)

// Condition is a typed predicate over the submitted object's attribute map.
// Exactly one variant field matching Kind must be set.
type Condition struct {
	Kind ConditionKind `json:"kind" validate:"required,oneof=AMOUNT_RANGE CATEGORY EXPRESSION"`

	AmountRange *AmountRangeCondition `json:"amount_range,omitempty"`
	Category    *CategoryCondition    `json:"category,omitempty"`
	Expression  *ExpressionCondition  `json:"expression,omitempty"`
}

// AmountRangeCondition matches when the "amount" attribute falls inside the
// declared bounds. At least one bound must be set; a bound-less range is a
// template validation error, never a match-all.
type AmountRangeCondition struct {
	MinAmount *float64 `json:"min_amount,omitempty"`
	MaxAmount *float64 `json:"max_amount,omitempty"`
}

// CategoryCondition matches when the named attribute equals one of the values.
type CategoryCondition struct {
	// Attribute defaults to "category" when empty.
	Attribute string   `json:"attribute,omitempty"`
	Values    []string `json:"values" validate:"required,min=1"`
}

// AttributeOrDefault returns the attribute key this condition reads.
func (c *CategoryCondition) AttributeOrDefault() string {
	if c.Attribute == "" {
		return "category"
	}

	return c.Attribute
}

// ExpressionCondition matches when the boolean expression evaluates true
// against the attribute map. The source is compiled at template validation
// time; runtime evaluation failures count as no-match.
type ExpressionCondition struct {
	Source string `json:"source" validate:"required"`
}

var (
	ErrConditionVariantMismatch = errors.New("condition variant does not match its kind")
	ErrAmountRangeUnbounded     = errors.New("amount range condition requires at least one bound")
	ErrAmountRangeInverted      = errors.New("amount range minimum exceeds maximum")
	ErrCategoryValuesRequired   = errors.New("category condition requires at least one value")
	ErrExpressionSourceRequired = errors.New("expression condition requires a source")
)

// Validate checks structural consistency of the tagged variant. Expression
// compilation is checked separately during template validation.
func (c *Condition) Validate() error {
	switch c.Kind {
	case ConditionKindAmountRange:
		if c.AmountRange == nil || c.Category != nil || c.Expression != nil {
			return ErrConditionVariantMismatch
		}

		if c.AmountRange.MinAmount == nil && c.AmountRange.MaxAmount == nil {
			return ErrAmountRangeUnbounded
		}

		if c.AmountRange.MinAmount != nil && c.AmountRange.MaxAmount != nil &&
			*c.AmountRange.MinAmount > *c.AmountRange.MaxAmount {
			return ErrAmountRangeInverted
		}
	case ConditionKindCategory:
		if c.Category == nil || c.AmountRange != nil || c.Expression != nil {
			return ErrConditionVariantMismatch
		}

		if len(c.Category.Values) == 0 {
			return ErrCategoryValuesRequired
		}
	case ConditionKindExpression:
		if c.Expression == nil || c.AmountRange != nil || c.Category != nil {
			return ErrConditionVariantMismatch
		}

		if c.Expression.Source == "" {
			return ErrExpressionSourceRequired
		}
	default:
		return ErrConditionVariantMismatch
	}

	return nil
}

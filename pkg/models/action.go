package models

import "errors"

// ActionKind discriminates how a step's required approvers are resolved.
type ActionKind string

const (
	ActionKindRole           ActionKind = "ROLE"
	ActionKindSpecificMember ActionKind = "SPECIFIC_MEMBER"
	ActionKindAnyAdmin       ActionKind = "ANY_ADMIN"
)

// ApprovalMode is the satisfaction policy over a step's resolved actor set.
type ApprovalMode string

const (
	// ApprovalModeAll requires every resolved actor to approve.
	ApprovalModeAll ApprovalMode = "ALL"
	// ApprovalModeAny is satisfied by the first recorded decision.
	ApprovalModeAny ApprovalMode = "ANY"
)

// Action defines who must approve a step and under which mode.
type Action struct {
	Kind ActionKind   `json:"kind" validate:"required,oneof=ROLE SPECIFIC_MEMBER ANY_ADMIN"`
	Mode ApprovalMode `json:"mode" validate:"required,oneof=ALL ANY"`

	// ApproverRole is required for ROLE actions.
	ApproverRole string `json:"approver_role,omitempty"`
	// MemberID is required for SPECIFIC_MEMBER actions.
	MemberID string `json:"member_id,omitempty"`
}

var (
	ErrActionRoleRequired   = errors.New("role action requires an approver role")
	ErrActionMemberRequired = errors.New("specific member action requires a member id")
	ErrActionUnknownKind    = errors.New("unknown action kind")
)

// Validate checks the action's kind-specific requirements.
func (a *Action) Validate() error {
	switch a.Kind {
	case ActionKindRole:
		if a.ApproverRole == "" {
			return ErrActionRoleRequired
		}
	case ActionKindSpecificMember:
		if a.MemberID == "" {
			return ErrActionMemberRequired
		}
	case ActionKindAnyAdmin:
		// No extra fields.
	default:
		return ErrActionUnknownKind
	}

	return nil
}

package routing

import (
	"time"

	"conversation-router/internal/common/errors"
	"conversation-router/internal/common/utils"
	"conversation-router/internal/common/validation"
)

// NewRuleInput is the admin request body for creating a rule.
type NewRuleInput struct {
	RuleType      RuleType   `json:"ruleType" validate:"required,oneof=allocate_next_n transfer_ongoing"`
	Target        Target     `json:"target" validate:"required,oneof=n1ago human bot"`
	AllocateCount *int       `json:"allocateCount" validate:"omitempty,min=1,max=100000"`
	AuthFilter    AuthFilter `json:"authFilter" validate:"omitempty,oneof=all authenticated unauthenticated"`
	MatchText     string     `json:"matchText"`
	ExpiresAt     *time.Time `json:"expiresAt"`

	// CreatedBy is filled from the authenticated principal, never the body.
	CreatedBy string `json:"-"`
}

// Validate checks in and builds the rule it describes. The rule is active,
// has no allocations and carries a fresh ID. matchText is normalized with n
// so stored rules compare against normalized inbound text.
func (in NewRuleInput) Validate(now time.Time, n Normalizer) (*Rule, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	var criteria Criteria
	switch in.RuleType {
	case RuleTypeAllocateNextN:
		if in.MatchText != "" {
			return nil, errors.ValidationError("matchText is only allowed for transfer_ongoing rules")
		}
		if in.AuthFilter == "" {
			return nil, errors.ValidationError("authFilter is required for allocate_next_n rules")
		}
		criteria = AllocateNextN{AuthFilter: in.AuthFilter}
	case RuleTypeTransferOngoing:
		if in.AuthFilter != "" {
			return nil, errors.ValidationError("authFilter is only allowed for allocate_next_n rules")
		}
		text := n.Normalize(in.MatchText)
		if text == "" {
			return nil, errors.ValidationError("matchText is required for transfer_ongoing rules")
		}
		criteria = TransferOngoing{MatchText: text}
	}

	if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
		return nil, errors.ValidationError("expiresAt must be in the future")
	}

	rule := &Rule{
		ID:        utils.NewRuleID(),
		Target:    in.Target,
		Criteria:  criteria,
		IsActive:  true,
		CreatedBy: in.CreatedBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.AllocateCount != nil {
		v := *in.AllocateCount
		rule.AllocateCount = &v
	}
	if in.ExpiresAt != nil {
		v := in.ExpiresAt.UTC()
		rule.ExpiresAt = &v
	}
	return rule, nil
}

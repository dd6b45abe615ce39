package testutil

import (
	"time"

	"conversation-router/internal/common/utils"
	"conversation-router/internal/routing"
)

// RuleBuilder helps build test rules
type RuleBuilder struct {
	rule *routing.Rule
}

// NewRuleBuilder starts an active, unbounded allocate_next_n rule for all customers.
func NewRuleBuilder() *RuleBuilder {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &RuleBuilder{
		rule: &routing.Rule{
			ID:        utils.NewRuleID(),
			Target:    routing.TargetN1ago,
			Criteria:  routing.AllocateNextN{AuthFilter: routing.AuthFilterAll},
			IsActive:  true,
			CreatedBy: "admin@example.com",
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

func (b *RuleBuilder) WithID(id string) *RuleBuilder {
	b.rule.ID = id
	return b
}

func (b *RuleBuilder) WithTarget(target routing.Target) *RuleBuilder {
	b.rule.Target = target
	return b
}

func (b *RuleBuilder) WithAuthFilter(filter routing.AuthFilter) *RuleBuilder {
	b.rule.Criteria = routing.AllocateNextN{AuthFilter: filter}
	return b
}

func (b *RuleBuilder) WithMatchText(text string) *RuleBuilder {
	b.rule.Criteria = routing.TransferOngoing{MatchText: text}
	return b
}

func (b *RuleBuilder) WithCap(n int) *RuleBuilder {
	b.rule.AllocateCount = &n
	return b
}

func (b *RuleBuilder) WithExpiry(at time.Time) *RuleBuilder {
	at = at.UTC().Truncate(time.Millisecond)
	b.rule.ExpiresAt = &at
	return b
}

func (b *RuleBuilder) Inactive() *RuleBuilder {
	b.rule.IsActive = false
	return b
}

func (b *RuleBuilder) Build() *routing.Rule {
	return b.rule.Clone()
}

// IntPtr returns a pointer to n
func BoolPtr(b bool) *bool {
	return &b
}

func IntPtr(n int) *int {
	return &n
}

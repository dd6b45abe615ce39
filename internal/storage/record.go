package storage

import (
	"fmt"
	"time"

	"conversation-router/internal/common/utils"
	"conversation-router/internal/routing"
)

// RuleColumns lists routing_rules columns in RuleRecord.Dest order
const RuleColumns = "seq, id, rule_type, target, allocate_count, allocated_count, is_active, " +
	"auth_filter, match_text, created_by, created_at, updated_at, expires_at"

// RuleRecord is one routing_rules row. Timestamps are Unix milliseconds.
type RuleRecord struct {
	Seq            int64
	ID             string
	RuleType       string
	Target         string
	AllocateCount  *int64
	AllocatedCount int64
	IsActive       bool
	AuthFilter     *string
	MatchText      *string
	CreatedBy      *string
	CreatedAt      int64
	UpdatedAt      int64
	ExpiresAt      *int64
}

// Dest returns scan destinations in RuleColumns order
func (r *RuleRecord) Dest() []interface{} {
	return []interface{}{
		&r.Seq, &r.ID, &r.RuleType, &r.Target, &r.AllocateCount, &r.AllocatedCount, &r.IsActive,
		&r.AuthFilter, &r.MatchText, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt, &r.ExpiresAt,
	}
}

// NewRuleRecord flattens a rule for insertion. Seq is assigned by the database.
func NewRuleRecord(rule *routing.Rule) RuleRecord {
	authFilter, matchText := routing.Columns(rule.Criteria)
	rec := RuleRecord{
		ID:             rule.ID,
		RuleType:       string(rule.Type()),
		Target:         string(rule.Target),
		AllocatedCount: int64(rule.AllocatedCount),
		IsActive:       rule.IsActive,
		AuthFilter:     utils.StringOrNil(string(authFilter)),
		MatchText:      utils.StringOrNil(matchText),
		CreatedBy:      utils.StringOrNil(rule.CreatedBy),
		CreatedAt:      ToMillis(rule.CreatedAt),
		UpdatedAt:      ToMillis(rule.UpdatedAt),
	}
	if rule.AllocateCount != nil {
		v := int64(*rule.AllocateCount)
		rec.AllocateCount = &v
	}
	if rule.ExpiresAt != nil {
		v := ToMillis(*rule.ExpiresAt)
		rec.ExpiresAt = &v
	}
	return rec
}

// Rule rebuilds the domain rule
func (r *RuleRecord) Rule() (*routing.Rule, error) {
	criteria, err := routing.NewCriteria(routing.RuleType(r.RuleType), routing.AuthFilter(utils.StringFromPtr(r.AuthFilter)), utils.StringFromPtr(r.MatchText))
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", r.ID, err)
	}

	rule := &routing.Rule{
		ID:             r.ID,
		Target:         routing.Target(r.Target),
		Criteria:       criteria,
		AllocatedCount: int(r.AllocatedCount),
		IsActive:       r.IsActive,
		CreatedBy:      utils.StringFromPtr(r.CreatedBy),
		CreatedAt:      FromMillis(r.CreatedAt),
		UpdatedAt:      FromMillis(r.UpdatedAt),
	}
	if r.AllocateCount != nil {
		v := int(*r.AllocateCount)
		rule.AllocateCount = &v
	}
	if r.ExpiresAt != nil {
		v := FromMillis(*r.ExpiresAt)
		rule.ExpiresAt = &v
	}
	return rule, nil
}

// Exhausted reports whether the row is at its cap
func (r *RuleRecord) Exhausted() bool {
	return r.AllocateCount != nil && r.AllocatedCount >= *r.AllocateCount
}

// ToMillis converts t to Unix milliseconds
func ToMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromMillis converts Unix milliseconds to a UTC time
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

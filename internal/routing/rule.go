package routing

import (
	"encoding/json"
	"fmt"
	"time"
)

// RuleType selects which conversation events a rule applies to.
type RuleType string

const (
	// RuleTypeAllocateNextN claims brand-new conversations.
	RuleTypeAllocateNextN RuleType = "allocate_next_n"
	// RuleTypeTransferOngoing moves in-flight conversations whose message text matches.
	RuleTypeTransferOngoing RuleType = "transfer_ongoing"
)

// Target is the handler a routed conversation is sent to.
type Target string

const (
	TargetN1ago Target = "n1ago"
	TargetHuman Target = "human"
	TargetBot   Target = "bot"
)

// Valid reports whether t is a known target.
func (t Target) Valid() bool {
	switch t {
	case TargetN1ago, TargetHuman, TargetBot:
		return true
	}
	return false
}

// AuthFilter restricts allocate_next_n rules by customer authentication state.
type AuthFilter string

const (
	AuthFilterAll             AuthFilter = "all"
	AuthFilterAuthenticated   AuthFilter = "authenticated"
	AuthFilterUnauthenticated AuthFilter = "unauthenticated"
)

// Allows reports whether a customer in the given state passes the filter.
func (f AuthFilter) Allows(isAuthenticated bool) bool {
	switch f {
	case AuthFilterAll:
		return true
	case AuthFilterAuthenticated:
		return isAuthenticated
	case AuthFilterUnauthenticated:
		return !isAuthenticated
	}
	return false
}

// MaxAllocateCount bounds a rule's allocation cap.
const MaxAllocateCount = 100000

// Criteria is the type-specific matching predicate of a rule. It is either
// AllocateNextN or TransferOngoing.
type Criteria interface {
	RuleType() RuleType
	isCriteria()
}

// AllocateNextN matches new conversations from customers passing AuthFilter.
type AllocateNextN struct {
	AuthFilter AuthFilter
}

// TransferOngoing matches inbound messages whose normalized text equals MatchText.
type TransferOngoing struct {
	MatchText string
}

func (AllocateNextN) RuleType() RuleType   { return RuleTypeAllocateNextN }
func (TransferOngoing) RuleType() RuleType { return RuleTypeTransferOngoing }
func (AllocateNextN) isCriteria()          {}
func (TransferOngoing) isCriteria()        {}

// Rule is an admin-configured routing directive.
type Rule struct {
	ID       string
	Target   Target
	Criteria Criteria

	// AllocateCount caps how many conversations the rule may claim; nil is unbounded.
	AllocateCount  *int
	AllocatedCount int
	IsActive       bool

	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt *time.Time
}

// Type returns the rule type carried by the criteria.
func (r *Rule) Type() RuleType {
	if r.Criteria == nil {
		return ""
	}
	return r.Criteria.RuleType()
}

// Exhausted reports whether the allocation cap has been reached.
func (r *Rule) Exhausted() bool {
	return r.AllocateCount != nil && r.AllocatedCount >= *r.AllocateCount
}

// ExpiredAt reports whether the rule's expiry time has passed at now.
func (r *Rule) ExpiredAt(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

// Eligible reports whether the rule may be offered a reservation at now.
func (r *Rule) Eligible(now time.Time) bool {
	return r.IsActive && !r.Exhausted() && !r.ExpiredAt(now)
}

// Clone returns a deep copy so callers never share mutable state with a store.
func (r *Rule) Clone() *Rule {
	c := *r
	if r.AllocateCount != nil {
		v := *r.AllocateCount
		c.AllocateCount = &v
	}
	if r.ExpiresAt != nil {
		v := *r.ExpiresAt
		c.ExpiresAt = &v
	}
	return &c
}

// ruleJSON is the wire shape used by the admin UI.
type ruleJSON struct {
	ID             string     `json:"id"`
	RuleType       RuleType   `json:"ruleType"`
	Target         Target     `json:"target"`
	AllocateCount  *int       `json:"allocateCount"`
	AllocatedCount int        `json:"allocatedCount"`
	IsActive       bool       `json:"isActive"`
	AuthFilter     AuthFilter `json:"authFilter,omitempty"`
	MatchText      string     `json:"matchText,omitempty"`
	CreatedBy      string     `json:"createdBy,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	ExpiresAt      *time.Time `json:"expiresAt"`
}

// MarshalJSON flattens the criteria into ruleType plus authFilter or matchText.
func (r Rule) MarshalJSON() ([]byte, error) {
	out := ruleJSON{
		ID:             r.ID,
		RuleType:       r.Type(),
		Target:         r.Target,
		AllocateCount:  r.AllocateCount,
		AllocatedCount: r.AllocatedCount,
		IsActive:       r.IsActive,
		CreatedBy:      r.CreatedBy,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		ExpiresAt:      r.ExpiresAt,
	}
	switch c := r.Criteria.(type) {
	case AllocateNextN:
		out.AuthFilter = c.AuthFilter
	case TransferOngoing:
		out.MatchText = c.MatchText
	}
	return json.Marshal(out)
}

// UnmarshalJSON rebuilds the criteria variant from the flat wire shape.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var in ruleJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	criteria, err := NewCriteria(in.RuleType, in.AuthFilter, in.MatchText)
	if err != nil {
		return err
	}
	*r = Rule{
		ID:             in.ID,
		Target:         in.Target,
		Criteria:       criteria,
		AllocateCount:  in.AllocateCount,
		AllocatedCount: in.AllocatedCount,
		IsActive:       in.IsActive,
		CreatedBy:      in.CreatedBy,
		CreatedAt:      in.CreatedAt,
		UpdatedAt:      in.UpdatedAt,
		ExpiresAt:      in.ExpiresAt,
	}
	return nil
}

// NewCriteria builds the criteria variant for ruleType from flat columns.
// Storage adapters use it to rehydrate rows.
func NewCriteria(ruleType RuleType, authFilter AuthFilter, matchText string) (Criteria, error) {
	switch ruleType {
	case RuleTypeAllocateNextN:
		if authFilter == "" {
			authFilter = AuthFilterAll
		}
		return AllocateNextN{AuthFilter: authFilter}, nil
	case RuleTypeTransferOngoing:
		return TransferOngoing{MatchText: matchText}, nil
	}
	return nil, fmt.Errorf("%w: unknown rule type %q", ErrInvalidRule, ruleType)
}

// Columns returns the flat authFilter/matchText pair stored for c.
func Columns(c Criteria) (AuthFilter, string) {
	switch v := c.(type) {
	case AllocateNextN:
		return v.AuthFilter, ""
	case TransferOngoing:
		return "", v.MatchText
	}
	return "", ""
}

package routing

import (
	"context"
	"time"

	"conversation-router/internal/common/errors"
)

// ReservationStatus is the outcome of an attempt to claim one allocation slot.
type ReservationStatus int

const (
	// Reserved means a slot was claimed and the counter incremented.
	Reserved ReservationStatus = iota
	// CapReached means the rule was active but had no free slots.
	CapReached
	// RuleInactive means the rule was inactive, expired or gone.
	RuleInactive
)

func (s ReservationStatus) String() string {
	switch s {
	case Reserved:
		return "reserved"
	case CapReached:
		return "cap_reached"
	case RuleInactive:
		return "rule_inactive"
	}
	return "unknown"
}

// Reservation is returned by RuleStore.TryReserve.
type Reservation struct {
	Status ReservationStatus
	// Rule is the post-increment snapshot when Status is Reserved.
	Rule *Rule
	// Exhausted is true only for the single reservation that took the last slot.
	Exhausted bool
}

// ListFilter narrows RuleStore.List. Zero values match everything.
type ListFilter struct {
	ActiveOnly bool
	RuleType   RuleType
}

// Matches reports whether r passes the filter.
func (f ListFilter) Matches(r *Rule) bool {
	if f.ActiveOnly && !r.IsActive {
		return false
	}
	if f.RuleType != "" && r.Type() != f.RuleType {
		return false
	}
	return true
}

// RuleStore persists routing rules and performs atomic allocation reservations.
//
// List returns rules in store order, oldest first. TryReserve must be
// linearizable per rule: concurrent callers on a rule with cap N observe at
// most N Reserved outcomes in total, and the reservation that takes slot N
// deactivates the rule in the same step.
type RuleStore interface {
	Create(ctx context.Context, rule *Rule) (*Rule, error)
	Get(ctx context.Context, id string) (*Rule, error)
	List(ctx context.Context, filter ListFilter) ([]*Rule, error)
	// Deactivate is idempotent and never re-activates a rule.
	Deactivate(ctx context.Context, id string) (*Rule, error)
	Delete(ctx context.Context, id string) error
	TryReserve(ctx context.Context, id string, now time.Time) (*Reservation, error)
	// DeactivateExpired deactivates active rules whose expiry is at or before now.
	DeactivateExpired(ctx context.Context, now time.Time) (int, error)
	Health(ctx context.Context) error
	Close() error
}

// NotFound is the error every RuleStore returns for an unknown rule id. It
// classifies as a not_found AppError and matches ErrRuleNotFound.
func NotFound(id string) error {
	return errors.NotFoundError("routing rule", ErrRuleNotFound).WithContext("id", id)
}

// ClassifyMiss explains why a conditional reservation on rule changed
// nothing. rule is the state re-read after the miss and may be nil when the
// rule was deleted. deactivate reports that the store should mark the rule
// inactive because it is expired or at its cap.
func ClassifyMiss(rule *Rule, now time.Time) (status ReservationStatus, deactivate bool) {
	switch {
	case rule == nil || !rule.IsActive:
		return RuleInactive, false
	case rule.ExpiredAt(now):
		return RuleInactive, true
	case rule.Exhausted():
		return CapReached, true
	}
	return RuleInactive, false
}

package routing

import (
	"context"
	"fmt"
	"time"

	"conversation-router/internal/common/logging"
)

// Match is the rule that won a conversation event.
type Match struct {
	// Rule is the post-reservation snapshot.
	Rule *Rule
	// Exhausted reports that this event consumed the rule's last slot.
	Exhausted bool
}

// Matcher selects at most one rule per event and reserves an allocation on it.
//
// Candidates are filtered from a snapshot of active rules and tried oldest
// first. A candidate that loses a reservation race is skipped and the next
// one is tried, so an event only goes unrouted when every eligible rule is
// exhausted or inactive.
type Matcher struct {
	store  RuleStore
	logger logging.Logger
	now    func() time.Time
}

// NewMatcher creates a Matcher reading from store.
func NewMatcher(store RuleStore, logger logging.Logger) *Matcher {
	if logger == nil {
		logger = logging.Component("matcher")
	}
	return &Matcher{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// MatchNewConversation picks an allocate_next_n rule whose auth filter
// admits the customer. It returns nil when no rule could be reserved.
func (m *Matcher) MatchNewConversation(ctx context.Context, isAuthenticated bool) (*Match, error) {
	return m.match(ctx, RuleTypeAllocateNextN, func(c Criteria) bool {
		a, ok := c.(AllocateNextN)
		return ok && a.AuthFilter.Allows(isAuthenticated)
	})
}

// MatchOngoingMessage picks a transfer_ongoing rule whose matchText equals
// normalizedText exactly. It returns nil when no rule could be reserved.
func (m *Matcher) MatchOngoingMessage(ctx context.Context, normalizedText string) (*Match, error) {
	if normalizedText == "" {
		return nil, nil
	}
	return m.match(ctx, RuleTypeTransferOngoing, func(c Criteria) bool {
		t, ok := c.(TransferOngoing)
		return ok && t.MatchText == normalizedText
	})
}

func (m *Matcher) match(ctx context.Context, ruleType RuleType, accepts func(Criteria) bool) (*Match, error) {
	rules, err := m.store.List(ctx, ListFilter{ActiveOnly: true, RuleType: ruleType})
	if err != nil {
		return nil, fmt.Errorf("list %s rules: %w", ruleType, err)
	}

	now := m.now()
	for _, rule := range rules {
		if !rule.Eligible(now) || !accepts(rule.Criteria) {
			continue
		}

		res, err := m.store.TryReserve(ctx, rule.ID, now)
		if err != nil {
			return nil, fmt.Errorf("reserve rule %s: %w", rule.ID, err)
		}

		if res.Status != Reserved {
			m.logger.Debug("Lost allocation race, trying next rule",
				logging.String("rule_id", rule.ID),
				logging.String("outcome", res.Status.String()),
			)
			continue
		}

		return &Match{Rule: res.Rule, Exhausted: res.Exhausted}, nil
	}

	return nil, nil
}

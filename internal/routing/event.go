package routing

import (
	"time"

	"conversation-router/internal/common/utils"
)

// EventKind identifies a published routing event. It doubles as the AMQP routing key.
type EventKind string

const (
	EventDecision      EventKind = "routing.decision"
	EventRuleExhausted EventKind = "routing.rule_exhausted"
)

// Event is the JSON payload published for matched decisions and rule exhaustion.
type Event struct {
	ID             string    `json:"id"`
	Kind           EventKind `json:"kind"`
	OccurredAt     time.Time `json:"occurredAt"`
	ConversationID string    `json:"conversationId,omitempty"`
	RuleID         string    `json:"ruleId"`
	RuleType       RuleType  `json:"ruleType"`
	Target         Target    `json:"target"`
	AllocatedCount int       `json:"allocatedCount"`
	AllocateCount  *int      `json:"allocateCount"`
}

func newRuleEvent(kind EventKind, rule *Rule, at time.Time) Event {
	return Event{
		ID:             utils.NewEventID(),
		Kind:           kind,
		OccurredAt:     at,
		RuleID:         rule.ID,
		RuleType:       rule.Type(),
		Target:         rule.Target,
		AllocatedCount: rule.AllocatedCount,
		AllocateCount:  rule.AllocateCount,
	}
}

func newDecisionEvent(conversationID string, rule *Rule, at time.Time) Event {
	e := newRuleEvent(EventDecision, rule, at)
	e.ConversationID = conversationID
	return e
}

func newExhaustedEvent(rule *Rule, at time.Time) Event {
	return newRuleEvent(EventRuleExhausted, rule, at)
}

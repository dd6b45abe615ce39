package routing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"conversation-router/internal/common/errors"
	"conversation-router/internal/common/logging"
)

// Decision reasons.
const (
	ReasonRuleMatched   = "rule_matched"
	ReasonNoRuleMatched = "no_rule_matched"
	ReasonAlreadyRouted = "already_routed"
)

// Decision is the outcome of routing one conversation event.
//
// Matched is false whenever no rule won. For new conversations Target then
// holds the configured default, if any, and Defaulted is set. For ongoing
// messages an unmatched decision has no Target, meaning the conversation
// stays where it is.
type Decision struct {
	Matched   bool   `json:"matched"`
	RuleID    string `json:"ruleId,omitempty"`
	Target    Target `json:"target,omitempty"`
	Defaulted bool   `json:"defaulted"`
	// Exhausted is set when this decision consumed the rule's last slot.
	Exhausted bool   `json:"ruleExhausted"`
	Reason    string `json:"reason"`
}

// NewConversationEvent describes a conversation that has just been opened.
// IsAuthenticated must be present; a missing value is not read as false.
type NewConversationEvent struct {
	ConversationID  string `json:"conversationId"`
	IsAuthenticated *bool  `json:"isAuthenticated" validate:"required"`
}

// OngoingMessageEvent describes an inbound message on an existing conversation.
type OngoingMessageEvent struct {
	ConversationID string `json:"conversationId"`
	Text           string `json:"text" validate:"required"`
}

// Tracker records which conversations were already routed so redelivered
// events are not allocated twice.
type Tracker interface {
	// Claim returns false when conversationID was already claimed for scope.
	Claim(ctx context.Context, conversationID, scope string) (bool, error)
	Release(ctx context.Context, conversationID, scope string) error
	// Routed reports whether a claim exists without taking one.
	Routed(ctx context.Context, conversationID, scope string) (bool, error)
}

// Publisher receives routing events for downstream dispatch and audit.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Options configures a Router.
type Options struct {
	// DefaultTarget is returned for unmatched new conversations. Empty means none.
	DefaultTarget Target
	// SupersedeOnCreate deactivates overlapping active rules when a rule is created.
	SupersedeOnCreate bool
	Normalizer        Normalizer
}

// Router orchestrates conversation routing and exposes rule management.
//
// It is safe for concurrent use. All allocation state lives in the RuleStore,
// so several Router instances may share one store as long as the store's
// TryReserve is atomic across processes.
type Router struct {
	store     RuleStore
	matcher   *Matcher
	tracker   Tracker
	publisher Publisher
	opts      Options
	logger    logging.Logger
	now       func() time.Time
}

// NewRouter creates a Router over store. tracker and publisher may be nil.
func NewRouter(store RuleStore, tracker Tracker, publisher Publisher, opts Options) *Router {
	logger := logging.Component("router")
	return &Router{
		store:     store,
		matcher:   NewMatcher(store, logging.Component("matcher")),
		tracker:   tracker,
		publisher: publisher,
		opts:      opts,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RouteNewConversation decides the handler for a newly opened conversation.
//
// The first active allocate_next_n rule, oldest first, whose auth filter
// admits the customer and which still has a free slot wins and has one slot
// consumed. When no rule wins the configured default target is returned with
// Matched=false.
//
// When the event carries a conversation id it is claimed first; an event
// for a conversation that was already routed returns Reason "already_routed"
// without touching any counter.
//
// Returns an error only when the rule store fails. Callers should retry or
// queue the event rather than drop it.
func (r *Router) RouteNewConversation(ctx context.Context, event NewConversationEvent) (*Decision, error) {
	if event.IsAuthenticated == nil {
		return nil, errors.ValidationError("isAuthenticated is required")
	}
	return r.route(ctx, RuleTypeAllocateNextN, event.ConversationID, "", func() (*Match, error) {
		return r.matcher.MatchNewConversation(ctx, *event.IsAuthenticated)
	})
}

// RouteOngoingMessage decides whether an inbound message transfers its
// conversation. The message text is normalized and compared exactly against
// the matchText of active transfer_ongoing rules.
//
// An unmatched decision (Matched=false, empty Target) means "no transfer"
// and is not an error.
//
// Messages on one conversation are routed independently: only a message
// that actually transferred the conversation marks it as routed, and only
// redeliveries of the same text are held back while one is in flight.
func (r *Router) RouteOngoingMessage(ctx context.Context, event OngoingMessageEvent) (*Decision, error) {
	text := r.opts.Normalizer.Normalize(event.Text)
	return r.route(ctx, RuleTypeTransferOngoing, event.ConversationID, messageKey(text), func() (*Match, error) {
		return r.matcher.MatchOngoingMessage(ctx, text)
	})
}

func messageKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:8])
}

// route runs match under conversation tracking.
//
// With an empty message key the claim on (conversation, rule type) is taken
// before matching and kept only when a rule won. With a message key the
// conversation is first checked read-only, the in-flight claim is scoped to
// the message, and the conversation is marked routed after a rule wins.
func (r *Router) route(ctx context.Context, ruleType RuleType, conversationID, message string, match func() (*Match, error)) (*Decision, error) {
	log := r.logger.WithContext(ctx).WithFields(
		logging.String("event", string(ruleType)),
		logging.String("conversation_id", conversationID),
	)

	scope := string(ruleType)
	claimScope := scope
	if message != "" {
		claimScope = scope + ":" + message
	}

	tracked := r.tracker != nil && conversationID != ""
	if tracked && message != "" {
		routed, err := r.tracker.Routed(ctx, conversationID, scope)
		switch {
		case err != nil:
			log.Warn("Conversation tracking unavailable, routing without it", logging.Err(err))
			tracked = false
		case routed:
			log.Info("Conversation already routed")
			return &Decision{Reason: ReasonAlreadyRouted}, nil
		}
	}

	claimed := false
	if tracked {
		ok, err := r.tracker.Claim(ctx, conversationID, claimScope)
		switch {
		case err != nil:
			log.Warn("Conversation tracking unavailable, routing without it", logging.Err(err))
		case !ok:
			log.Info("Conversation already routed")
			return &Decision{Reason: ReasonAlreadyRouted}, nil
		default:
			claimed = true
		}
	}

	m, err := match()
	if claimed && m != nil && err == nil && message != "" {
		if _, markErr := r.tracker.Claim(ctx, conversationID, scope); markErr != nil {
			log.Warn("Failed to mark conversation as routed", logging.Err(markErr))
		}
	}
	if claimed && (err != nil || m == nil || message != "") {
		if relErr := r.tracker.Release(ctx, conversationID, claimScope); relErr != nil {
			log.Warn("Failed to release conversation claim", logging.Err(relErr))
		}
	}
	if err != nil {
		log.Error("Routing failed", err)
		return nil, err
	}

	if m == nil {
		d := &Decision{Reason: ReasonNoRuleMatched}
		if ruleType == RuleTypeAllocateNextN && r.opts.DefaultTarget != "" {
			d.Target = r.opts.DefaultTarget
			d.Defaulted = true
		}
		log.Info("No routing rule matched",
			logging.String("target", string(d.Target)),
			logging.Bool("defaulted", d.Defaulted),
		)
		return d, nil
	}

	d := &Decision{
		Matched:   true,
		RuleID:    m.Rule.ID,
		Target:    m.Rule.Target,
		Exhausted: m.Exhausted,
		Reason:    ReasonRuleMatched,
	}
	log.Info("Routing rule matched",
		logging.String("rule_id", d.RuleID),
		logging.String("target", string(d.Target)),
		logging.Int("allocated_count", m.Rule.AllocatedCount),
		logging.Bool("rule_exhausted", d.Exhausted),
	)

	r.publish(ctx, newDecisionEvent(conversationID, m.Rule, r.now()))
	if m.Exhausted {
		r.publish(ctx, newExhaustedEvent(m.Rule, r.now()))
	}
	return d, nil
}

func (r *Router) publish(ctx context.Context, event Event) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ctx, event); err != nil {
		r.logger.Error("Failed to publish routing event", err,
			logging.String("kind", string(event.Kind)),
			logging.String("rule_id", event.RuleID),
		)
	}
}

// CreateRule validates in and persists the resulting rule.
//
// With SupersedeOnCreate, active rules of the same type are deactivated once
// the new rule is stored; for transfer_ongoing only rules with the same
// matchText are affected.
func (r *Router) CreateRule(ctx context.Context, in NewRuleInput) (*Rule, error) {
	rule, err := in.Validate(r.now(), r.opts.Normalizer)
	if err != nil {
		return nil, err
	}

	created, err := r.store.Create(ctx, rule)
	if err != nil {
		return nil, fmt.Errorf("create rule: %w", err)
	}

	r.logger.WithContext(ctx).Info("Routing rule created",
		logging.String("rule_id", created.ID),
		logging.String("rule_type", string(created.Type())),
		logging.String("target", string(created.Target)),
		logging.String("created_by", created.CreatedBy),
	)

	if r.opts.SupersedeOnCreate {
		if err := r.supersede(ctx, created); err != nil {
			return nil, err
		}
	}
	return created, nil
}

func (r *Router) supersede(ctx context.Context, created *Rule) error {
	active, err := r.store.List(ctx, ListFilter{ActiveOnly: true, RuleType: created.Type()})
	if err != nil {
		return fmt.Errorf("list rules to supersede: %w", err)
	}

	_, text := Columns(created.Criteria)
	for _, old := range active {
		if old.ID == created.ID {
			continue
		}
		if _, oldText := Columns(old.Criteria); created.Type() == RuleTypeTransferOngoing && oldText != text {
			continue
		}
		if _, err := r.store.Deactivate(ctx, old.ID); err != nil {
			return fmt.Errorf("supersede rule %s: %w", old.ID, err)
		}
		r.logger.WithContext(ctx).Info("Routing rule superseded",
			logging.String("rule_id", old.ID),
			logging.String("superseded_by", created.ID),
		)
	}
	return nil
}

// ListRules returns rules in store order, oldest first.
func (r *Router) ListRules(ctx context.Context, filter ListFilter) ([]*Rule, error) {
	return r.store.List(ctx, filter)
}

// ListActiveRules returns active rules in store order.
func (r *Router) ListActiveRules(ctx context.Context) ([]*Rule, error) {
	return r.store.List(ctx, ListFilter{ActiveOnly: true})
}

// GetRule returns one rule by id.
func (r *Router) GetRule(ctx context.Context, id string) (*Rule, error) {
	return r.store.Get(ctx, id)
}

// DeactivateRule stops a rule from matching. Deactivating an inactive rule
// succeeds and changes nothing; an unknown id is a not-found error.
func (r *Router) DeactivateRule(ctx context.Context, id string) (*Rule, error) {
	rule, err := r.store.Deactivate(ctx, id)
	if err != nil {
		return nil, err
	}
	r.logger.WithContext(ctx).Info("Routing rule deactivated", logging.String("rule_id", id))
	return rule, nil
}

// DeleteRule permanently removes a rule in any state.
func (r *Router) DeleteRule(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, id); err != nil {
		return err
	}
	r.logger.WithContext(ctx).Info("Routing rule deleted", logging.String("rule_id", id))
	return nil
}

// DeactivateExpired deactivates active rules whose expiry has passed.
func (r *Router) DeactivateExpired(ctx context.Context) (int, error) {
	n, err := r.store.DeactivateExpired(ctx, r.now())
	if err != nil {
		return 0, fmt.Errorf("deactivate expired rules: %w", err)
	}
	if n > 0 {
		r.logger.Info("Expired routing rules deactivated", logging.Int("count", n))
	}
	return n, nil
}

// Health reports whether the rule store is reachable.
func (r *Router) Health(ctx context.Context) error {
	return r.store.Health(ctx)
}

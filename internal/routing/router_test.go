package routing_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conversation-router/internal/common/errors"
	"conversation-router/internal/routing"
	"conversation-router/internal/testutil"
	"conversation-router/internal/tracking"
)

type routerFixture struct {
	store     *testutil.MockRuleStore
	publisher *testutil.RecordingPublisher
	router    *routing.Router
}

func newRouterFixture(opts routing.Options) *routerFixture {
	f := &routerFixture{
		store:     testutil.NewMockRuleStore(),
		publisher: &testutil.RecordingPublisher{},
	}
	f.router = routing.NewRouter(f.store, tracking.NewMemoryTracker(time.Hour), f.publisher, opts)
	return f
}

func (f *routerFixture) create(t *testing.T, in routing.NewRuleInput) *routing.Rule {
	t.Helper()
	rule, err := f.router.CreateRule(context.Background(), in)
	require.NoError(t, err)
	return rule
}

func (f *routerFixture) get(t *testing.T, id string) *routing.Rule {
	t.Helper()
	rule, err := f.router.GetRule(context.Background(), id)
	require.NoError(t, err)
	return rule
}

func TestRouter_AllocateNextNUntilExhausted(t *testing.T) {
	ctx := context.Background()
	f := newRouterFixture(routing.Options{DefaultTarget: routing.TargetBot})
	rule := f.create(t, routing.NewRuleInput{
		RuleType:      routing.RuleTypeAllocateNextN,
		Target:        routing.TargetN1ago,
		AllocateCount: testutil.IntPtr(2),
		AuthFilter:    routing.AuthFilterAll,
	})
	assert.True(t, rule.IsActive)
	assert.Equal(t, 0, rule.AllocatedCount)

	var targets []routing.Target
	var decisions []*routing.Decision
	for i := 0; i < 3; i++ {
		d, err := f.router.RouteNewConversation(ctx, routing.NewConversationEvent{IsAuthenticated: testutil.BoolPtr(i%2 == 0)})
		require.NoError(t, err)
		targets = append(targets, d.Target)
		decisions = append(decisions, d)
	}

	assert.Equal(t, []routing.Target{routing.TargetN1ago, routing.TargetN1ago, routing.TargetBot}, targets)
	assert.True(t, decisions[0].Matched)
	assert.False(t, decisions[0].Exhausted)
	assert.True(t, decisions[1].Exhausted)
	assert.False(t, decisions[2].Matched)
	assert.True(t, decisions[2].Defaulted)
	assert.Equal(t, routing.ReasonNoRuleMatched, decisions[2].Reason)

	got := f.get(t, rule.ID)
	assert.False(t, got.IsActive)
	assert.Equal(t, 2, got.AllocatedCount)

	assert.Equal(t, []routing.EventKind{
		routing.EventDecision,
		routing.EventDecision,
		routing.EventRuleExhausted,
	}, f.publisher.Kinds())
}

func TestRouter_TransferOngoingOnce(t *testing.T) {
	ctx := context.Background()
	f := newRouterFixture(routing.Options{DefaultTarget: routing.TargetBot})
	rule := f.create(t, routing.NewRuleInput{
		RuleType:      routing.RuleTypeTransferOngoing,
		Target:        routing.TargetHuman,
		AllocateCount: testutil.IntPtr(1),
		MatchText:     "quero falar com atendente",
	})

	d, err := f.router.RouteOngoingMessage(ctx, routing.OngoingMessageEvent{Text: " quero falar com atendente\n"})
	require.NoError(t, err)
	assert.True(t, d.Matched)
	assert.Equal(t, routing.TargetHuman, d.Target)
	assert.Equal(t, rule.ID, d.RuleID)

	got := f.get(t, rule.ID)
	assert.Equal(t, 1, got.AllocatedCount)
	assert.False(t, got.IsActive)

	d, err = f.router.RouteOngoingMessage(ctx, routing.OngoingMessageEvent{Text: "quero falar com atendente"})
	require.NoError(t, err)
	assert.False(t, d.Matched)
	assert.Empty(t, d.Target, "ongoing messages never fall back to the default")
	assert.False(t, d.Defaulted)
}

func TestRouter_AuthFilterMismatch(t *testing.T) {
	ctx := context.Background()
	f := newRouterFixture(routing.Options{})
	rule := f.create(t, routing.NewRuleInput{
		RuleType:   routing.RuleTypeAllocateNextN,
		Target:     routing.TargetN1ago,
		AuthFilter: routing.AuthFilterAuthenticated,
	})

	d, err := f.router.RouteNewConversation(ctx, routing.NewConversationEvent{IsAuthenticated: testutil.BoolPtr(false)})
	require.NoError(t, err)
	assert.False(t, d.Matched)
	assert.False(t, d.Defaulted)
	assert.Empty(t, d.Target)

	assert.Equal(t, 0, f.get(t, rule.ID).AllocatedCount)
	assert.Empty(t, f.publisher.Events())
}

func TestRouter_DeleteMidAllocation(t *testing.T) {
	ctx := context.Background()
	f := newRouterFixture(routing.Options{})
	rule := f.create(t, routing.NewRuleInput{
		RuleType:      routing.RuleTypeAllocateNextN,
		Target:        routing.TargetN1ago,
		AllocateCount: testutil.IntPtr(5),
		AuthFilter:    routing.AuthFilterAll,
	})

	d, err := f.router.RouteNewConversation(ctx, routing.NewConversationEvent{IsAuthenticated: testutil.BoolPtr(false)})
	require.NoError(t, err)
	require.True(t, d.Matched)
	assert.Equal(t, 1, f.get(t, rule.ID).AllocatedCount)

	require.NoError(t, f.router.DeleteRule(ctx, rule.ID))

	rules, err := f.router.ListRules(ctx, routing.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, rules)

	d, err = f.router.RouteNewConversation(ctx, routing.NewConversationEvent{IsAuthenticated: testutil.BoolPtr(false)})
	require.NoError(t, err)
	assert.False(t, d.Matched)

	err = f.router.DeleteRule(ctx, rule.ID)
	assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
}

func TestRouter_Exclusivity(t *testing.T) {
	ctx := context.Background()
	f := newRouterFixture(routing.Options{})
	a := f.create(t, routing.NewRuleInput{RuleType: routing.RuleTypeAllocateNextN, Target: routing.TargetN1ago, AuthFilter: routing.AuthFilterAll})
	b := f.create(t, routing.NewRuleInput{RuleType: routing.RuleTypeAllocateNextN, Target: routing.TargetHuman, AuthFilter: routing.AuthFilterAll})

	d, err := f.router.RouteNewConversation(ctx, routing.NewConversationEvent{IsAuthenticated: testutil.BoolPtr(false)})
	require.NoError(t, err)
	assert.Equal(t, a.ID, d.RuleID)

	assert.Equal(t, 1, f.get(t, a.ID).AllocatedCount)
	assert.Equal(t, 0, f.get(t, b.ID).AllocatedCount)
}

func TestRouter_PrecedenceFallsThroughExhaustedRule(t *testing.T) {
	ctx := context.Background()
	f := newRouterFixture(routing.Options{})
	a := f.create(t, routing.NewRuleInput{RuleType: routing.RuleTypeAllocateNextN, Target: routing.TargetN1ago, AllocateCount: testutil.IntPtr(1), AuthFilter: routing.AuthFilterAll})
	b := f.create(t, routing.NewRuleInput{RuleType: routing.RuleTypeAllocateNextN, Target: routing.TargetHuman, AuthFilter: routing.AuthFilterAll})

	first, err := f.router.RouteNewConversation(ctx, routing.NewConversationEvent{IsAuthenticated: testutil.BoolPtr(false)})
	require.NoError(t, err)
	second, err := f.router.RouteNewConversation(ctx, routing.NewConversationEvent{IsAuthenticated: testutil.BoolPtr(false)})
	require.NoError(t, err)

	assert.Equal(t, a.ID, first.RuleID)
	assert.Equal(t, b.ID, second.RuleID)
	assert.Equal(t, routing.TargetHuman, second.Target)
}

func TestRouter_NoResurrection(t *testing.T) {
	ctx := context.Background()
	f := newRouterFixture(routing.Options{})
	rule := f.create(t, routing.NewRuleInput{RuleType: routing.RuleTypeAllocateNextN, Target: routing.TargetN1ago, AuthFilter: routing.AuthFilterAll})

	first, err := f.router.DeactivateRule(ctx, rule.ID)
	require.NoError(t, err)
	second, err := f.router.DeactivateRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, first.IsActive, second.IsActive)
	assert.False(t, second.IsActive)

	for i := 0; i < 5; i++ {
		d, err := f.router.RouteNewConversation(ctx, routing.NewConversationEvent{IsAuthenticated: testutil.BoolPtr(false)})
		require.NoError(t, err)
		assert.False(t, d.Matched)
	}

	got := f.get(t, rule.ID)
	assert.False(t, got.IsActive)
	assert.Equal(t, 0, got.AllocatedCount)

	_, err = f.router.DeactivateRule(ctx, "missing")
	assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
}

func TestRouter_ConcurrentRoutingRespectsCap(t *testing.T) {
	ctx := context.Background()
	f := newRouterFixture(routing.Options{})
	rule := f.create(t, routing.NewRuleInput{RuleType: routing.RuleTypeAllocateNextN, Target: routing.TargetN1ago, AllocateCount: testutil.IntPtr(5), AuthFilter: routing.AuthFilterAll})

	var wg sync.WaitGroup
	var mu sync.Mutex
	matched := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := f.router.RouteNewConversation(ctx, routing.NewConversationEvent{IsAuthenticated: testutil.BoolPtr(false)})
			if !assert.NoError(t, err) {
				return
			}
			if d.Matched {
				mu.Lock()
				matched++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, matched)
	got := f.get(t, rule.ID)
	assert.Equal(t, 5, got.AllocatedCount)
	assert.False(t, got.IsActive)

	exhausted := 0
	for _, k := range f.publisher.Kinds() {
		if k == routing.EventRuleExhausted {
			exhausted++
		}
	}
	assert.Equal(t, 1, exhausted)
}

func TestRouter_ConversationTracking(t *testing.T) {
	ctx := context.Background()
	f := newRouterFixture(routing.Options{DefaultTarget: routing.TargetBot})

	t.Run("unmatched claim is released", func(t *testing.T) {
		d, err := f.router.RouteNewConversation(ctx, routing.NewConversationEvent{ConversationID: "conv-1", IsAuthenticated: testutil.BoolPtr(false)})
		require.NoError(t, err)
		assert.False(t, d.Matched)
		assert.Equal(t, routing.TargetBot, d.Target)
	})

	rule := f.create(t, routing.NewRuleInput{RuleType: routing.RuleTypeAllocateNextN, Target: routing.TargetN1ago, AuthFilter: routing.AuthFilterAll})

	t.Run("first delivery is routed", func(t *testing.T) {
		d, err := f.router.RouteNewConversation(ctx, routing.NewConversationEvent{ConversationID: "conv-1", IsAuthenticated: testutil.BoolPtr(false)})
		require.NoError(t, err)
		assert.True(t, d.Matched)
	})

	t.Run("redelivery is not allocated again", func(t *testing.T) {
		d, err := f.router.RouteNewConversation(ctx, routing.NewConversationEvent{ConversationID: "conv-1", IsAuthenticated: testutil.BoolPtr(false)})
		require.NoError(t, err)
		assert.False(t, d.Matched)
		assert.Equal(t, routing.ReasonAlreadyRouted, d.Reason)
		assert.Empty(t, d.Target)
		assert.Equal(t, 1, f.get(t, rule.ID).AllocatedCount)
	})

	t.Run("store error releases the claim", func(t *testing.T) {
		f.store.SetError("TryReserve", testutil.ErrStoreDown)
		_, err := f.router.RouteNewConversation(ctx, routing.NewConversationEvent{ConversationID: "conv-2", IsAuthenticated: testutil.BoolPtr(false)})
		assert.ErrorIs(t, err, testutil.ErrStoreDown)

		f.store.SetError("TryReserve", nil)
		d, err := f.router.RouteNewConversation(ctx, routing.NewConversationEvent{ConversationID: "conv-2", IsAuthenticated: testutil.BoolPtr(false)})
		require.NoError(t, err)
		assert.True(t, d.Matched)
	})
}

// stallingStore blocks the first List call until release is closed.
type stallingStore struct {
	*testutil.MockRuleStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newStallingStore(base *testutil.MockRuleStore) *stallingStore {
	return &stallingStore{
		MockRuleStore: base,
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
}

func (s *stallingStore) List(ctx context.Context, filter routing.ListFilter) ([]*routing.Rule, error) {
	first := false
	s.once.Do(func() { first = true })
	if first {
		close(s.entered)
		<-s.release
	}
	return s.MockRuleStore.List(ctx, filter)
}

func TestRouter_OngoingMessagesOnOneConversation(t *testing.T) {
	ctx := context.Background()
	const handoff = "quero falar com atendente"

	setup := func(t *testing.T) (*stallingStore, *routing.Router, *routing.Rule) {
		base := testutil.NewMockRuleStore()
		rule, err := base.Create(ctx, testutil.NewRuleBuilder().
			WithID("rule-handoff").
			WithTarget(routing.TargetHuman).
			WithMatchText(handoff).
			Build())
		require.NoError(t, err)
		require.Equal(t, "rule-handoff", rule.ID)

		store := newStallingStore(base)
		router := routing.NewRouter(store, tracking.NewMemoryTracker(time.Hour), nil, routing.Options{})
		return store, router, rule
	}

	routeAsync := func(t *testing.T, router *routing.Router, text string) <-chan *routing.Decision {
		out := make(chan *routing.Decision, 1)
		go func() {
			d, err := router.RouteOngoingMessage(ctx, routing.OngoingMessageEvent{ConversationID: "c1", Text: text})
			assert.NoError(t, err)
			out <- d
		}()
		return out
	}

	t.Run("unmatched message in flight does not block a transfer", func(t *testing.T) {
		store, router, rule := setup(t)

		first := routeAsync(t, router, "oi")
		<-store.entered

		d, err := router.RouteOngoingMessage(ctx, routing.OngoingMessageEvent{ConversationID: "c1", Text: handoff})
		require.NoError(t, err)
		assert.True(t, d.Matched)
		assert.Equal(t, routing.TargetHuman, d.Target)
		assert.Equal(t, rule.ID, d.RuleID)

		close(store.release)
		d = <-first
		require.NotNil(t, d)
		assert.False(t, d.Matched)
		assert.Equal(t, routing.ReasonNoRuleMatched, d.Reason)

		d, err = router.RouteOngoingMessage(ctx, routing.OngoingMessageEvent{ConversationID: "c1", Text: handoff})
		require.NoError(t, err)
		assert.Equal(t, routing.ReasonAlreadyRouted, d.Reason)
	})

	t.Run("redelivery of the same message is held back", func(t *testing.T) {
		store, router, rule := setup(t)

		first := routeAsync(t, router, handoff)
		<-store.entered

		d, err := router.RouteOngoingMessage(ctx, routing.OngoingMessageEvent{ConversationID: "c1", Text: handoff})
		require.NoError(t, err)
		assert.False(t, d.Matched)
		assert.Equal(t, routing.ReasonAlreadyRouted, d.Reason)

		close(store.release)
		d = <-first
		require.NotNil(t, d)
		assert.True(t, d.Matched)

		got, err := store.Get(ctx, rule.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.AllocatedCount)
	})

	t.Run("unmatched messages leave the conversation open", func(t *testing.T) {
		store, router, _ := setup(t)
		close(store.release)

		for i := 0; i < 2; i++ {
			d, err := router.RouteOngoingMessage(ctx, routing.OngoingMessageEvent{ConversationID: "c1", Text: "oi"})
			require.NoError(t, err)
			assert.Equal(t, routing.ReasonNoRuleMatched, d.Reason)
		}
	})
}

func TestRouter_NewConversationRequiresAuthState(t *testing.T) {
	ctx := context.Background()
	f := newRouterFixture(routing.Options{DefaultTarget: routing.TargetBot})
	rule := f.create(t, routing.NewRuleInput{
		RuleType:   routing.RuleTypeAllocateNextN,
		Target:     routing.TargetHuman,
		AuthFilter: routing.AuthFilterUnauthenticated,
	})

	_, err := f.router.RouteNewConversation(ctx, routing.NewConversationEvent{ConversationID: "conv-1"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
	assert.Equal(t, 0, f.get(t, rule.ID).AllocatedCount)

	d, err := f.router.RouteNewConversation(ctx, routing.NewConversationEvent{ConversationID: "conv-1", IsAuthenticated: testutil.BoolPtr(false)})
	require.NoError(t, err)
	assert.True(t, d.Matched)
}

type failingTracker struct{}

func (failingTracker) Claim(context.Context, string, string) (bool, error) {
	return false, testutil.ErrTrackerDown
}

func (failingTracker) Release(context.Context, string, string) error { return testutil.ErrTrackerDown }

func (failingTracker) Routed(context.Context, string, string) (bool, error) {
	return false, testutil.ErrTrackerDown
}

func TestRouter_TrackerOutageDoesNotBlockRouting(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMockRuleStore()
	router := routing.NewRouter(store, failingTracker{}, nil, routing.Options{})
	_, err := router.CreateRule(ctx, routing.NewRuleInput{RuleType: routing.RuleTypeAllocateNextN, Target: routing.TargetN1ago, AuthFilter: routing.AuthFilterAll})
	require.NoError(t, err)

	d, err := router.RouteNewConversation(ctx, routing.NewConversationEvent{ConversationID: "conv-1", IsAuthenticated: testutil.BoolPtr(false)})
	require.NoError(t, err)
	assert.True(t, d.Matched)
}

func TestRouter_PublishFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	f := newRouterFixture(routing.Options{})
	f.publisher.Err = testutil.ErrBrokerDown
	f.create(t, routing.NewRuleInput{RuleType: routing.RuleTypeAllocateNextN, Target: routing.TargetN1ago, AuthFilter: routing.AuthFilterAll})

	d, err := f.router.RouteNewConversation(ctx, routing.NewConversationEvent{IsAuthenticated: testutil.BoolPtr(false)})
	require.NoError(t, err)
	assert.True(t, d.Matched)
}

func TestRouter_DecisionEventPayload(t *testing.T) {
	ctx := context.Background()
	f := newRouterFixture(routing.Options{})
	rule := f.create(t, routing.NewRuleInput{RuleType: routing.RuleTypeAllocateNextN, Target: routing.TargetN1ago, AllocateCount: testutil.IntPtr(3), AuthFilter: routing.AuthFilterAll})

	_, err := f.router.RouteNewConversation(ctx, routing.NewConversationEvent{ConversationID: "conv-9", IsAuthenticated: testutil.BoolPtr(false)})
	require.NoError(t, err)

	events := f.publisher.Events()
	require.Len(t, events, 1)
	e := events[0]
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, routing.EventDecision, e.Kind)
	assert.Equal(t, "conv-9", e.ConversationID)
	assert.Equal(t, rule.ID, e.RuleID)
	assert.Equal(t, routing.RuleTypeAllocateNextN, e.RuleType)
	assert.Equal(t, routing.TargetN1ago, e.Target)
	assert.Equal(t, 1, e.AllocatedCount)
	require.NotNil(t, e.AllocateCount)
	assert.Equal(t, 3, *e.AllocateCount)
}

func TestRouter_CreateRule(t *testing.T) {
	ctx := context.Background()

	t.Run("validation error never reaches the store", func(t *testing.T) {
		f := newRouterFixture(routing.Options{})
		_, err := f.router.CreateRule(ctx, routing.NewRuleInput{RuleType: routing.RuleTypeTransferOngoing, Target: routing.TargetHuman})
		assert.True(t, errors.IsType(err, errors.ErrTypeValidation))

		rules, err := f.router.ListRules(ctx, routing.ListFilter{})
		require.NoError(t, err)
		assert.Empty(t, rules)
	})

	t.Run("store error is wrapped", func(t *testing.T) {
		f := newRouterFixture(routing.Options{})
		f.store.SetError("Create", testutil.ErrStoreDown)
		_, err := f.router.CreateRule(ctx, routing.NewRuleInput{RuleType: routing.RuleTypeAllocateNextN, Target: routing.TargetN1ago, AuthFilter: routing.AuthFilterAll})
		assert.ErrorIs(t, err, testutil.ErrStoreDown)
	})

	t.Run("rules coexist by default", func(t *testing.T) {
		f := newRouterFixture(routing.Options{})
		f.create(t, routing.NewRuleInput{RuleType: routing.RuleTypeAllocateNextN, Target: routing.TargetN1ago, AuthFilter: routing.AuthFilterAll})
		f.create(t, routing.NewRuleInput{RuleType: routing.RuleTypeAllocateNextN, Target: routing.TargetHuman, AuthFilter: routing.AuthFilterAll})

		active, err := f.router.ListActiveRules(ctx)
		require.NoError(t, err)
		assert.Len(t, active, 2)
	})

	t.Run("supersede on create", func(t *testing.T) {
		f := newRouterFixture(routing.Options{SupersedeOnCreate: true})
		oldAlloc := f.create(t, routing.NewRuleInput{RuleType: routing.RuleTypeAllocateNextN, Target: routing.TargetN1ago, AuthFilter: routing.AuthFilterAll})
		sameText := f.create(t, routing.NewRuleInput{RuleType: routing.RuleTypeTransferOngoing, Target: routing.TargetHuman, MatchText: "atendente"})
		otherText := f.create(t, routing.NewRuleInput{RuleType: routing.RuleTypeTransferOngoing, Target: routing.TargetHuman, MatchText: "humano"})

		newAlloc := f.create(t, routing.NewRuleInput{RuleType: routing.RuleTypeAllocateNextN, Target: routing.TargetHuman, AuthFilter: routing.AuthFilterAll})
		newText := f.create(t, routing.NewRuleInput{RuleType: routing.RuleTypeTransferOngoing, Target: routing.TargetBot, MatchText: "atendente"})

		assert.False(t, f.get(t, oldAlloc.ID).IsActive)
		assert.False(t, f.get(t, sameText.ID).IsActive)
		assert.True(t, f.get(t, otherText.ID).IsActive)
		assert.True(t, f.get(t, newAlloc.ID).IsActive)
		assert.True(t, f.get(t, newText.ID).IsActive)
	})
}

func TestRouter_FoldCase(t *testing.T) {
	ctx := context.Background()
	f := newRouterFixture(routing.Options{Normalizer: routing.Normalizer{FoldCase: true}})
	f.create(t, routing.NewRuleInput{RuleType: routing.RuleTypeTransferOngoing, Target: routing.TargetHuman, MatchText: "Quero Falar Com Atendente"})

	d, err := f.router.RouteOngoingMessage(ctx, routing.OngoingMessageEvent{Text: "QUERO FALAR COM ATENDENTE"})
	require.NoError(t, err)
	assert.True(t, d.Matched)
}

func TestRouter_DeactivateExpired(t *testing.T) {
	ctx := context.Background()
	f := newRouterFixture(routing.Options{})
	expired := testutil.NewRuleBuilder().WithExpiry(time.Now().Add(-time.Second)).Build()
	_, err := f.store.Create(ctx, expired)
	require.NoError(t, err)

	n, err := f.router.DeactivateExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, f.get(t, expired.ID).IsActive)
}

func TestRouter_Health(t *testing.T) {
	f := newRouterFixture(routing.Options{})
	assert.NoError(t, f.router.Health(context.Background()))

	f.store.SetError("Health", testutil.ErrStoreDown)
	assert.ErrorIs(t, f.router.Health(context.Background()), testutil.ErrStoreDown)
}

package routing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conversation-router/internal/routing"
	"conversation-router/internal/testutil"
)

func seed(t *testing.T, store routing.RuleStore, rules ...*routing.Rule) {
	t.Helper()
	for _, r := range rules {
		_, err := store.Create(context.Background(), r)
		require.NoError(t, err)
	}
}

func TestMatcher_NewConversationAuthFilter(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMockRuleStore()
	authOnly := testutil.NewRuleBuilder().WithAuthFilter(routing.AuthFilterAuthenticated).WithTarget(routing.TargetHuman).Build()
	anonOnly := testutil.NewRuleBuilder().WithAuthFilter(routing.AuthFilterUnauthenticated).WithTarget(routing.TargetBot).Build()
	seed(t, store, authOnly, anonOnly)

	m := routing.NewMatcher(store, nil)

	match, err := m.MatchNewConversation(ctx, true)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, authOnly.ID, match.Rule.ID)

	match, err = m.MatchNewConversation(ctx, false)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, anonOnly.ID, match.Rule.ID)

	assert.Equal(t, []string{authOnly.ID, anonOnly.ID}, store.Reserves(), "filtered rules are never reserved")
}

func TestMatcher_OldestRuleFirst(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMockRuleStore()
	a := testutil.NewRuleBuilder().WithCap(1).WithTarget(routing.TargetN1ago).Build()
	b := testutil.NewRuleBuilder().WithTarget(routing.TargetHuman).Build()
	seed(t, store, a, b)

	m := routing.NewMatcher(store, nil)

	first, err := m.MatchNewConversation(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, a.ID, first.Rule.ID)
	assert.True(t, first.Exhausted)

	second, err := m.MatchNewConversation(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, b.ID, second.Rule.ID)
	assert.False(t, second.Exhausted)
}

func TestMatcher_LostRaceTriesNextRule(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMockRuleStore()
	a := testutil.NewRuleBuilder().WithCap(1).Build()
	b := testutil.NewRuleBuilder().WithCap(1).Build()
	seed(t, store, a, b)

	// Another process takes a's only slot between listing and reserving.
	store.BeforeReserve = func(id string) {
		if id == a.ID {
			_, _ = store.MemoryStore.TryReserve(ctx, a.ID, time.Now())
		}
	}

	m := routing.NewMatcher(store, nil)
	match, err := m.MatchNewConversation(ctx, true)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, b.ID, match.Rule.ID)
	assert.Equal(t, []string{a.ID, b.ID}, store.Reserves())
}

func TestMatcher_OngoingMessageExactText(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMockRuleStore()
	rule := testutil.NewRuleBuilder().WithMatchText("quero falar com atendente").WithTarget(routing.TargetHuman).Build()
	seed(t, store, rule)

	m := routing.NewMatcher(store, nil)

	for _, text := range []string{"quero falar", "Quero falar com atendente", "quero falar com atendente!", ""} {
		match, err := m.MatchOngoingMessage(ctx, text)
		require.NoError(t, err)
		assert.Nil(t, match, "text %q", text)
	}
	assert.Empty(t, store.Reserves())

	match, err := m.MatchOngoingMessage(ctx, "quero falar com atendente")
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, routing.TargetHuman, match.Rule.Target)
}

func TestMatcher_SkipsIneligibleRules(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMockRuleStore()
	expired := testutil.NewRuleBuilder().WithExpiry(time.Now().Add(-time.Minute)).Build()
	inactive := testutil.NewRuleBuilder().Inactive().Build()
	transfer := testutil.NewRuleBuilder().WithMatchText("oi").Build()
	seed(t, store, expired, inactive, transfer)

	m := routing.NewMatcher(store, nil)
	match, err := m.MatchNewConversation(ctx, true)
	require.NoError(t, err)
	assert.Nil(t, match)
	assert.Empty(t, store.Reserves())
}

func TestMatcher_StoreErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("list", func(t *testing.T) {
		store := testutil.NewMockRuleStore()
		store.SetError("List", testutil.ErrStoreDown)

		_, err := routing.NewMatcher(store, nil).MatchNewConversation(ctx, true)
		assert.ErrorIs(t, err, testutil.ErrStoreDown)
	})

	t.Run("reserve", func(t *testing.T) {
		store := testutil.NewMockRuleStore()
		seed(t, store, testutil.NewRuleBuilder().Build())
		store.SetError("TryReserve", testutil.ErrStoreDown)

		_, err := routing.NewMatcher(store, nil).MatchNewConversation(ctx, true)
		assert.ErrorIs(t, err, testutil.ErrStoreDown)
	})
}

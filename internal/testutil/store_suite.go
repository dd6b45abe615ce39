package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conversation-router/internal/common/errors"
	"conversation-router/internal/routing"
)

// RunRuleStoreSuite runs the behaviour every routing.RuleStore must provide.
// newStore must return an empty store; it is called once per subtest.
func RunRuleStoreSuite(t *testing.T, newStore func(t *testing.T) routing.RuleStore) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		store := newStore(t)
		expiry := time.Now().Add(time.Hour)
		rule := NewRuleBuilder().WithTarget(routing.TargetHuman).
			WithAuthFilter(routing.AuthFilterAuthenticated).WithCap(5).WithExpiry(expiry).Build()

		created, err := store.Create(ctx, rule)
		require.NoError(t, err)
		assert.Equal(t, rule.ID, created.ID)

		got, err := store.Get(ctx, rule.ID)
		require.NoError(t, err)
		assert.Equal(t, routing.TargetHuman, got.Target)
		assert.Equal(t, routing.AllocateNextN{AuthFilter: routing.AuthFilterAuthenticated}, got.Criteria)
		require.NotNil(t, got.AllocateCount)
		assert.Equal(t, 5, *got.AllocateCount)
		assert.Equal(t, 0, got.AllocatedCount)
		assert.True(t, got.IsActive)
		assert.Equal(t, "admin@example.com", got.CreatedBy)
		assert.WithinDuration(t, rule.CreatedAt, got.CreatedAt, time.Millisecond)
		require.NotNil(t, got.ExpiresAt)
		assert.WithinDuration(t, *rule.ExpiresAt, *got.ExpiresAt, time.Millisecond)
	})

	t.Run("transfer rule keeps match text", func(t *testing.T) {
		store := newStore(t)
		rule := NewRuleBuilder().WithMatchText("quero falar com atendente").Build()
		_, err := store.Create(ctx, rule)
		require.NoError(t, err)

		got, err := store.Get(ctx, rule.ID)
		require.NoError(t, err)
		assert.Equal(t, routing.TransferOngoing{MatchText: "quero falar com atendente"}, got.Criteria)
		assert.Nil(t, got.AllocateCount)
		assert.Nil(t, got.ExpiresAt)
	})

	t.Run("duplicate id is rejected", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Create(ctx, NewRuleBuilder().WithID("rule-dup").Build())
		require.NoError(t, err)

		_, err = store.Create(ctx, NewRuleBuilder().WithID("rule-dup").WithTarget(routing.TargetBot).Build())
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeValidation), "got %v", err)

		got, err := store.Get(ctx, "rule-dup")
		require.NoError(t, err)
		assert.Equal(t, routing.TargetN1ago, got.Target)
	})

	t.Run("get missing rule", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(ctx, "missing")
		assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
		assert.ErrorIs(t, err, routing.ErrRuleNotFound)
	})

	t.Run("list keeps creation order and filters", func(t *testing.T) {
		store := newStore(t)
		first := NewRuleBuilder().Build()
		second := NewRuleBuilder().WithMatchText("oi").Build()
		third := NewRuleBuilder().WithTarget(routing.TargetBot).Build()
		for _, r := range []*routing.Rule{first, second, third} {
			_, err := store.Create(ctx, r)
			require.NoError(t, err)
		}
		_, err := store.Deactivate(ctx, first.ID)
		require.NoError(t, err)

		all, err := store.List(ctx, routing.ListFilter{})
		require.NoError(t, err)
		assert.Equal(t, []string{first.ID, second.ID, third.ID}, ids(all))

		active, err := store.List(ctx, routing.ListFilter{ActiveOnly: true})
		require.NoError(t, err)
		assert.Equal(t, []string{second.ID, third.ID}, ids(active))

		allocate, err := store.List(ctx, routing.ListFilter{RuleType: routing.RuleTypeAllocateNextN})
		require.NoError(t, err)
		assert.Equal(t, []string{first.ID, third.ID}, ids(allocate))

		activeAllocate, err := store.List(ctx, routing.ListFilter{ActiveOnly: true, RuleType: routing.RuleTypeAllocateNextN})
		require.NoError(t, err)
		assert.Equal(t, []string{third.ID}, ids(activeAllocate))
	})

	t.Run("deactivate is idempotent", func(t *testing.T) {
		store := newStore(t)
		rule := NewRuleBuilder().Build()
		_, err := store.Create(ctx, rule)
		require.NoError(t, err)

		once, err := store.Deactivate(ctx, rule.ID)
		require.NoError(t, err)
		assert.False(t, once.IsActive)

		twice, err := store.Deactivate(ctx, rule.ID)
		require.NoError(t, err)
		assert.False(t, twice.IsActive)

		_, err = store.Deactivate(ctx, "missing")
		assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
	})

	t.Run("delete removes the rule", func(t *testing.T) {
		store := newStore(t)
		rule := NewRuleBuilder().WithCap(5).Build()
		_, err := store.Create(ctx, rule)
		require.NoError(t, err)

		res, err := store.TryReserve(ctx, rule.ID, time.Now())
		require.NoError(t, err)
		require.Equal(t, routing.Reserved, res.Status)

		require.NoError(t, store.Delete(ctx, rule.ID))

		all, err := store.List(ctx, routing.ListFilter{})
		require.NoError(t, err)
		assert.Empty(t, all)

		res, err = store.TryReserve(ctx, rule.ID, time.Now())
		require.NoError(t, err)
		assert.Equal(t, routing.RuleInactive, res.Status)

		err = store.Delete(ctx, rule.ID)
		assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
	})

	t.Run("reserve up to cap then deactivate", func(t *testing.T) {
		store := newStore(t)
		rule := NewRuleBuilder().WithCap(2).Build()
		_, err := store.Create(ctx, rule)
		require.NoError(t, err)

		first, err := store.TryReserve(ctx, rule.ID, time.Now())
		require.NoError(t, err)
		assert.Equal(t, routing.Reserved, first.Status)
		assert.False(t, first.Exhausted)
		assert.Equal(t, 1, first.Rule.AllocatedCount)
		assert.True(t, first.Rule.IsActive)

		second, err := store.TryReserve(ctx, rule.ID, time.Now())
		require.NoError(t, err)
		assert.Equal(t, routing.Reserved, second.Status)
		assert.True(t, second.Exhausted)
		assert.Equal(t, 2, second.Rule.AllocatedCount)
		assert.False(t, second.Rule.IsActive)

		third, err := store.TryReserve(ctx, rule.ID, time.Now())
		require.NoError(t, err)
		assert.NotEqual(t, routing.Reserved, third.Status)
		assert.False(t, third.Exhausted)

		got, err := store.Get(ctx, rule.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.AllocatedCount)
		assert.False(t, got.IsActive)
	})

	t.Run("unbounded rule keeps reserving", func(t *testing.T) {
		store := newStore(t)
		rule := NewRuleBuilder().Build()
		_, err := store.Create(ctx, rule)
		require.NoError(t, err)

		for i := 1; i <= 5; i++ {
			res, err := store.TryReserve(ctx, rule.ID, time.Now())
			require.NoError(t, err)
			require.Equal(t, routing.Reserved, res.Status)
			assert.False(t, res.Exhausted)
			assert.Equal(t, i, res.Rule.AllocatedCount)
		}
	})

	t.Run("inactive rule never reserves", func(t *testing.T) {
		store := newStore(t)
		rule := NewRuleBuilder().WithCap(3).Build()
		_, err := store.Create(ctx, rule)
		require.NoError(t, err)
		_, err = store.Deactivate(ctx, rule.ID)
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			res, err := store.TryReserve(ctx, rule.ID, time.Now())
			require.NoError(t, err)
			assert.Equal(t, routing.RuleInactive, res.Status)
		}

		got, err := store.Get(ctx, rule.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.AllocatedCount)
		assert.False(t, got.IsActive)
	})

	t.Run("expired rule is deactivated on reserve", func(t *testing.T) {
		store := newStore(t)
		rule := NewRuleBuilder().WithExpiry(time.Now().Add(-time.Minute)).Build()
		_, err := store.Create(ctx, rule)
		require.NoError(t, err)

		res, err := store.TryReserve(ctx, rule.ID, time.Now())
		require.NoError(t, err)
		assert.Equal(t, routing.RuleInactive, res.Status)

		got, err := store.Get(ctx, rule.ID)
		require.NoError(t, err)
		assert.False(t, got.IsActive)
		assert.Equal(t, 0, got.AllocatedCount)
	})

	t.Run("deactivate expired", func(t *testing.T) {
		store := newStore(t)
		expired := NewRuleBuilder().WithExpiry(time.Now().Add(-time.Minute)).Build()
		live := NewRuleBuilder().WithExpiry(time.Now().Add(time.Hour)).Build()
		forever := NewRuleBuilder().Build()
		for _, r := range []*routing.Rule{expired, live, forever} {
			_, err := store.Create(ctx, r)
			require.NoError(t, err)
		}

		n, err := store.DeactivateExpired(ctx, time.Now())
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		active, err := store.List(ctx, routing.ListFilter{ActiveOnly: true})
		require.NoError(t, err)
		assert.Equal(t, []string{live.ID, forever.ID}, ids(active))

		n, err = store.DeactivateExpired(ctx, time.Now())
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("concurrent reservations respect the cap", func(t *testing.T) {
		store := newStore(t)
		const limit = 10
		rule := NewRuleBuilder().WithCap(limit).Build()
		_, err := store.Create(ctx, rule)
		require.NoError(t, err)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			reserved  int
			exhausted int
		)
		for i := 0; i < 40; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 3; j++ {
					res, err := store.TryReserve(ctx, rule.ID, time.Now())
					if !assert.NoError(t, err) {
						return
					}
					mu.Lock()
					if res.Status == routing.Reserved {
						reserved++
					}
					if res.Exhausted {
						exhausted++
					}
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, limit, reserved)
		assert.Equal(t, 1, exhausted)

		got, err := store.Get(ctx, rule.ID)
		require.NoError(t, err)
		assert.Equal(t, limit, got.AllocatedCount)
		assert.False(t, got.IsActive)
	})

	t.Run("reservations on different rules are independent", func(t *testing.T) {
		store := newStore(t)
		a := NewRuleBuilder().WithCap(15).Build()
		b := NewRuleBuilder().WithCap(15).Build()
		for _, r := range []*routing.Rule{a, b} {
			_, err := store.Create(ctx, r)
			require.NoError(t, err)
		}

		var wg sync.WaitGroup
		for _, id := range []string{a.ID, b.ID} {
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(id string) {
					defer wg.Done()
					_, err := store.TryReserve(ctx, id, time.Now())
					assert.NoError(t, err)
				}(id)
			}
		}
		wg.Wait()

		for _, id := range []string{a.ID, b.ID} {
			got, err := store.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, 15, got.AllocatedCount)
			assert.False(t, got.IsActive)
		}
	})
}

func ids(rules []*routing.Rule) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.ID
	}
	return out
}

package expiry

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conversation-router/internal/routing"
	"conversation-router/internal/testutil"
)

type countingDeactivator struct {
	mu    sync.Mutex
	calls int
	n     int
	err   error
}

func (d *countingDeactivator) DeactivateExpired(context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return d.n, d.err
}

func (d *countingDeactivator) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func TestNewSweeper_InvalidSchedule(t *testing.T) {
	_, err := NewSweeper(&countingDeactivator{}, "every minute")
	assert.Error(t, err)

	_, err = NewSweeper(&countingDeactivator{}, "*/5 * * * *")
	assert.NoError(t, err)
}

func TestSweeper_RunOnce(t *testing.T) {
	d := &countingDeactivator{n: 3}
	s, err := NewSweeper(d, "@every 1m")
	require.NoError(t, err)

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	status := s.Status()
	assert.Equal(t, "@every 1m", status.Schedule)
	assert.Equal(t, 1, status.Runs)
	assert.Equal(t, 3, status.LastCount)
	assert.NotNil(t, status.LastRun)
	assert.Empty(t, status.LastError)
}

func TestSweeper_RunOnceError(t *testing.T) {
	d := &countingDeactivator{err: stderrors.New("store down")}
	s, err := NewSweeper(d, "@every 1m")
	require.NoError(t, err)

	_, err = s.RunOnce(context.Background())
	assert.Error(t, err)
	assert.Equal(t, "store down", s.Status().LastError)
}

func TestSweeper_RunsOnSchedule(t *testing.T) {
	d := &countingDeactivator{}
	s, err := NewSweeper(d, "@every 1s")
	require.NoError(t, err)

	s.Start(context.Background())
	defer s.Stop()

	assert.Eventually(t, func() bool { return d.Calls() >= 1 }, 3*time.Second, 50*time.Millisecond)
	assert.NotNil(t, s.Status().NextRun)
}

func TestSweeper_DeactivatesExpiredRules(t *testing.T) {
	store := routing.NewMemoryStore()
	router := routing.NewRouter(store, nil, nil, routing.Options{})
	ctx := context.Background()

	expired := testutil.NewRuleBuilder().WithExpiry(time.Now().Add(-time.Second)).Build()
	live := testutil.NewRuleBuilder().WithExpiry(time.Now().Add(time.Hour)).Build()
	for _, r := range []*routing.Rule{expired, live} {
		_, err := store.Create(ctx, r)
		require.NoError(t, err)
	}

	s, err := NewSweeper(router, "@every 1m")
	require.NoError(t, err)

	n, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	active, err := router.ListActiveRules(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, live.ID, active[0].ID)
}

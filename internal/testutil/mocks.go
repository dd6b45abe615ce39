package testutil

import (
	"context"
	"sync"
	"time"

	"conversation-router/internal/routing"
)

// MockRuleStore wraps a MemoryStore with error injection and reservation hooks
type MockRuleStore struct {
	*routing.MemoryStore

	mu sync.Mutex
	// ErrorOnMethod makes the named method fail with the given error
	ErrorOnMethod map[string]error
	// BeforeReserve runs before every TryReserve, e.g. to simulate a competing process
	BeforeReserve func(id string)
	// ReserveCalls records TryReserve ids in call order
	ReserveCalls []string
}

// NewMockRuleStore creates an empty mock store
func NewMockRuleStore() *MockRuleStore {
	return &MockRuleStore{
		MemoryStore:   routing.NewMemoryStore(),
		ErrorOnMethod: make(map[string]error),
	}
}

func (m *MockRuleStore) fail(method string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ErrorOnMethod[method]
}

// SetError makes method fail with err; nil clears it
func (m *MockRuleStore) SetError(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.ErrorOnMethod, method)
		return
	}
	m.ErrorOnMethod[method] = err
}

func (m *MockRuleStore) List(ctx context.Context, filter routing.ListFilter) ([]*routing.Rule, error) {
	if err := m.fail("List"); err != nil {
		return nil, err
	}
	return m.MemoryStore.List(ctx, filter)
}

func (m *MockRuleStore) Create(ctx context.Context, rule *routing.Rule) (*routing.Rule, error) {
	if err := m.fail("Create"); err != nil {
		return nil, err
	}
	return m.MemoryStore.Create(ctx, rule)
}

func (m *MockRuleStore) TryReserve(ctx context.Context, id string, now time.Time) (*routing.Reservation, error) {
	m.mu.Lock()
	m.ReserveCalls = append(m.ReserveCalls, id)
	hook := m.BeforeReserve
	err := m.ErrorOnMethod["TryReserve"]
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if hook != nil {
		hook(id)
	}
	return m.MemoryStore.TryReserve(ctx, id, now)
}

func (m *MockRuleStore) Health(ctx context.Context) error {
	if err := m.fail("Health"); err != nil {
		return err
	}
	return m.MemoryStore.Health(ctx)
}

// Reserves returns a copy of the recorded TryReserve ids
func (m *MockRuleStore) Reserves() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ReserveCalls...)
}

// RecordingPublisher stores published events in memory
type RecordingPublisher struct {
	mu     sync.Mutex
	events []routing.Event
	Err    error
}

func (p *RecordingPublisher) Publish(_ context.Context, event routing.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.events = append(p.events, event)
	return nil
}

// Events returns a copy of the published events
func (p *RecordingPublisher) Events() []routing.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]routing.Event(nil), p.events...)
}

// Kinds returns the kinds of the published events in order
func (p *RecordingPublisher) Kinds() []routing.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	kinds := make([]routing.EventKind, len(p.events))
	for i, e := range p.events {
		kinds[i] = e.Kind
	}
	return kinds
}

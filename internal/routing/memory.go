package routing

import (
	"context"
	"sort"
	"sync"
	"time"

	"conversation-router/internal/common/errors"
)

// MemoryStore is a process-local RuleStore.
//
// The rule map is guarded by one RWMutex while each rule carries its own
// mutex, so reservations on different rules never contend. It is only safe
// when a single process routes conversations.
type MemoryStore struct {
	mu    sync.RWMutex
	rules map[string]*memoryEntry
	seq   int64
}

type memoryEntry struct {
	mu   sync.Mutex
	seq  int64
	rule *Rule
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rules: make(map[string]*memoryEntry)}
}

func (s *MemoryStore) lookup(id string) (*memoryEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.rules[id]
	return e, ok
}

func (s *MemoryStore) Create(_ context.Context, rule *Rule) (*Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[rule.ID]; exists {
		return nil, errors.ValidationErrorf("routing rule %s already exists", rule.ID)
	}
	s.seq++
	s.rules[rule.ID] = &memoryEntry{seq: s.seq, rule: rule.Clone()}
	return rule.Clone(), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Rule, error) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, NotFound(id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rule.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context, filter ListFilter) ([]*Rule, error) {
	s.mu.RLock()
	entries := make([]*memoryEntry, 0, len(s.rules))
	for _, e := range s.rules {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	out := make([]*Rule, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		r := e.rule.Clone()
		e.mu.Unlock()
		if filter.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) Deactivate(_ context.Context, id string) (*Rule, error) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, NotFound(id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rule.IsActive {
		e.rule.IsActive = false
		e.rule.UpdatedAt = time.Now().UTC()
	}
	return e.rule.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return NotFound(id)
	}
	delete(s.rules, id)
	return nil
}

func (s *MemoryStore) TryReserve(_ context.Context, id string, now time.Time) (*Reservation, error) {
	e, ok := s.lookup(id)
	if !ok {
		return &Reservation{Status: RuleInactive}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.rule

	switch {
	case !r.IsActive:
		return &Reservation{Status: RuleInactive}, nil
	case r.ExpiredAt(now):
		r.IsActive = false
		r.UpdatedAt = now
		return &Reservation{Status: RuleInactive}, nil
	case r.Exhausted():
		r.IsActive = false
		r.UpdatedAt = now
		return &Reservation{Status: CapReached}, nil
	}

	r.AllocatedCount++
	r.UpdatedAt = now
	exhausted := r.Exhausted()
	if exhausted {
		r.IsActive = false
	}
	return &Reservation{Status: Reserved, Rule: r.Clone(), Exhausted: exhausted}, nil
}

func (s *MemoryStore) DeactivateExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.RLock()
	entries := make([]*memoryEntry, 0, len(s.rules))
	for _, e := range s.rules {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	n := 0
	for _, e := range entries {
		e.mu.Lock()
		if e.rule.IsActive && e.rule.ExpiredAt(now) {
			e.rule.IsActive = false
			e.rule.UpdatedAt = now
			n++
		}
		e.mu.Unlock()
	}
	return n, nil
}

func (s *MemoryStore) Health(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

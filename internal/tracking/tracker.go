// Package tracking remembers which conversations have already been routed so
// that redelivered conversation events do not consume a second allocation.
package tracking

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultTTL is how long a claim is remembered when none is configured.
const DefaultTTL = 24 * time.Hour

func key(conversationID, scope string) string {
	return fmt.Sprintf("routing:conversation:%s:%s", scope, conversationID)
}

// KeyValueStore is the subset of the Redis client used for claims.
type KeyValueStore interface {
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// RedisTracker shares claims between router instances through Redis.
type RedisTracker struct {
	kv  KeyValueStore
	ttl time.Duration
}

// NewRedisTracker creates a tracker whose claims expire after ttl.
func NewRedisTracker(kv KeyValueStore, ttl time.Duration) *RedisTracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisTracker{kv: kv, ttl: ttl}
}

func (t *RedisTracker) Claim(ctx context.Context, conversationID, scope string) (bool, error) {
	return t.kv.SetIfAbsent(ctx, key(conversationID, scope), time.Now().UTC().Format(time.RFC3339), t.ttl)
}

// Routed reports whether conversationID holds a claim for scope without
// taking one.
func (t *RedisTracker) Routed(ctx context.Context, conversationID, scope string) (bool, error) {
	return t.kv.Exists(ctx, key(conversationID, scope))
}

func (t *RedisTracker) Release(ctx context.Context, conversationID, scope string) error {
	return t.kv.Delete(ctx, key(conversationID, scope))
}

// sweepInterval bounds how often MemoryTracker scans for expired claims.
const sweepInterval = time.Minute

// MemoryTracker keeps claims in process memory. Expired claims are ignored on
// lookup and dropped by a sweep that runs at most once per sweepInterval.
type MemoryTracker struct {
	mu        sync.Mutex
	ttl       time.Duration
	claims    map[string]time.Time
	nextSweep time.Time
	now       func() time.Time
}

// NewMemoryTracker creates an in-process tracker whose claims expire after ttl.
func NewMemoryTracker(ttl time.Duration) *MemoryTracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryTracker{
		ttl:    ttl,
		claims: make(map[string]time.Time),
		now:    time.Now,
	}
}

func (t *MemoryTracker) Claim(_ context.Context, conversationID, scope string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.sweep(now)

	k := key(conversationID, scope)
	if exp, ok := t.claims[k]; ok && now.Before(exp) {
		return false, nil
	}
	t.claims[k] = now.Add(t.ttl)
	return true, nil
}

// Routed reports whether conversationID holds a live claim for scope.
func (t *MemoryTracker) Routed(_ context.Context, conversationID, scope string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	exp, ok := t.claims[key(conversationID, scope)]
	return ok && t.now().Before(exp), nil
}

func (t *MemoryTracker) sweep(now time.Time) {
	if now.Before(t.nextSweep) {
		return
	}
	for k, exp := range t.claims {
		if !now.Before(exp) {
			delete(t.claims, k)
		}
	}
	t.nextSweep = now.Add(sweepInterval)
}

func (t *MemoryTracker) Release(_ context.Context, conversationID, scope string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.claims, key(conversationID, scope))
	return nil
}

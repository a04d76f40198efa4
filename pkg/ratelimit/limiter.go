package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrStoreUnavailable reports that the shared counter store could not be
// reached. It is never converted into an implicit admit or reject; the
// caller fails the request explicitly.
var ErrStoreUnavailable = errors.New("ratelimit: store unavailable")

type Decision struct {
	Allowed   bool
	Count     int
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter admits or rejects one identity's request against a fixed
// window. Allow always increments, even when the verdict is a reject: a
// burst of rejected requests keeps consuming budget, which stops cheap
// probing. Peek reads the current count without incrementing; Reset
// clears the window. Both exist for operational tooling.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int) (Decision, error)
	Peek(ctx context.Context, key string) (int, error)
	Reset(ctx context.Context, key string) error
}

// InMemoryLimiter is a process-local implementation for tests and
// single-instance development. Deployments with more than one gateway
// instance need the Redis limiter for correct global counts.
type InMemoryLimiter struct {
	mu     sync.Mutex
	window time.Duration
	items  map[string]entry
}

type entry struct {
	count   int
	resetAt time.Time
}

func NewInMemory(window time.Duration) *InMemoryLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &InMemoryLimiter{
		window: window,
		items:  make(map[string]entry),
	}
}

func (l *InMemoryLimiter) Allow(ctx context.Context, key string, limit int) (Decision, error) {
	if limit <= 0 {
		limit = 1
	}
	now := time.Now().UTC()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cleanup(now)
	curr, ok := l.items[key]
	if !ok || now.After(curr.resetAt) {
		curr = entry{count: 0, resetAt: now.Add(l.window)}
	}
	curr.count++
	l.items[key] = curr
	remaining := limit - curr.count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   curr.count <= limit,
		Count:     curr.count,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   curr.resetAt,
	}, nil
}

func (l *InMemoryLimiter) Peek(ctx context.Context, key string) (int, error) {
	now := time.Now().UTC()
	l.mu.Lock()
	defer l.mu.Unlock()
	curr, ok := l.items[key]
	if !ok || now.After(curr.resetAt) {
		return 0, nil
	}
	return curr.count, nil
}

func (l *InMemoryLimiter) Reset(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.items, key)
	return nil
}

func (l *InMemoryLimiter) cleanup(now time.Time) {
	for k, v := range l.items {
		if now.After(v.resetAt) {
			delete(l.items, k)
		}
	}
}

package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestInMemoryLimiter(t *testing.T) {
	limiter := NewInMemory(50 * time.Millisecond)
	ctx := context.Background()
	key := "ip:127.0.0.1"

	first, err := limiter.Allow(ctx, key, 2)
	if err != nil || !first.Allowed || first.Count != 1 || first.Remaining != 1 {
		t.Fatalf("unexpected first decision: %+v err=%v", first, err)
	}
	second, err := limiter.Allow(ctx, key, 2)
	if err != nil || !second.Allowed || second.Count != 2 || second.Remaining != 0 {
		t.Fatalf("unexpected second decision: %+v err=%v", second, err)
	}
	third, err := limiter.Allow(ctx, key, 2)
	if err != nil || third.Allowed || third.Count != 3 || third.Remaining != 0 {
		t.Fatalf("unexpected third decision: %+v err=%v", third, err)
	}
	time.Sleep(70 * time.Millisecond)
	reset, err := limiter.Allow(ctx, key, 2)
	if err != nil || !reset.Allowed || reset.Count != 1 {
		t.Fatalf("expected counter reset after window, got %+v err=%v", reset, err)
	}
}

func TestInMemoryPeekAndReset(t *testing.T) {
	limiter := NewInMemory(time.Minute)
	ctx := context.Background()

	count, err := limiter.Peek(ctx, "fresh")
	if err != nil || count != 0 {
		t.Fatalf("peek on fresh identity: count=%d err=%v", count, err)
	}
	if _, err := limiter.Allow(ctx, "id", 5); err != nil {
		t.Fatalf("allow: %v", err)
	}
	if _, err := limiter.Allow(ctx, "id", 5); err != nil {
		t.Fatalf("allow: %v", err)
	}
	count, err = limiter.Peek(ctx, "id")
	if err != nil || count != 2 {
		t.Fatalf("peek after two allows: count=%d err=%v", count, err)
	}
	// Peek must not increment.
	count, _ = limiter.Peek(ctx, "id")
	if count != 2 {
		t.Fatalf("peek incremented the counter: %d", count)
	}
	if err := limiter.Reset(ctx, "id"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	d, err := limiter.Allow(ctx, "id", 5)
	if err != nil || d.Count != 1 {
		t.Fatalf("expected fresh window after reset, got %+v err=%v", d, err)
	}
}

func TestInMemoryLimitFloor(t *testing.T) {
	limiter := NewInMemory(time.Minute)
	d, err := limiter.Allow(context.Background(), "k", 0)
	if err != nil || !d.Allowed || d.Limit != 1 {
		t.Fatalf("expected fallback limit=1 and allowed decision, got %+v err=%v", d, err)
	}
}

func TestRedisLimiter(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := NewRedis(client, 25*time.Millisecond)
	ctx := context.Background()
	key := "ip:10.0.0.1"

	first, err := limiter.Allow(ctx, key, 2)
	if err != nil || !first.Allowed || first.Count != 1 || first.Remaining != 1 {
		t.Fatalf("unexpected first decision: %+v err=%v", first, err)
	}
	second, err := limiter.Allow(ctx, key, 2)
	if err != nil || !second.Allowed || second.Count != 2 {
		t.Fatalf("unexpected second decision: %+v err=%v", second, err)
	}
	third, err := limiter.Allow(ctx, key, 2)
	if err != nil || third.Allowed || third.Count != 3 {
		t.Fatalf("expected third request rejected: %+v err=%v", third, err)
	}
	mr.FastForward(30 * time.Millisecond)
	reset, err := limiter.Allow(ctx, key, 2)
	if err != nil || !reset.Allowed || reset.Count != 1 {
		t.Fatalf("expected counter reset after window, got %+v err=%v", reset, err)
	}
}

func TestRedisPeekAndReset(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := NewRedis(client, time.Minute)
	ctx := context.Background()

	count, err := limiter.Peek(ctx, "unseen")
	if err != nil || count != 0 {
		t.Fatalf("peek on unseen identity: count=%d err=%v", count, err)
	}
	for i := 0; i < 3; i++ {
		if _, err := limiter.Allow(ctx, "id", 10); err != nil {
			t.Fatalf("allow: %v", err)
		}
	}
	count, err = limiter.Peek(ctx, "id")
	if err != nil || count != 3 {
		t.Fatalf("peek after three allows: count=%d err=%v", count, err)
	}
	if err := limiter.Reset(ctx, "id"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	count, err = limiter.Peek(ctx, "id")
	if err != nil || count != 0 {
		t.Fatalf("peek after reset: count=%d err=%v", count, err)
	}
}

func TestRedisLimiterUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:         "127.0.0.1:1",
		DialTimeout:  5 * time.Millisecond,
		ReadTimeout:  5 * time.Millisecond,
		WriteTimeout: 5 * time.Millisecond,
		MaxRetries:   0,
	})
	limiter := NewRedis(client, time.Second)
	_, err := limiter.Allow(context.Background(), "id", 1)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := limiter.Peek(context.Background(), "id"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable from peek, got %v", err)
	}
}

func TestRedisLimiterNilClient(t *testing.T) {
	limiter := NewRedis(nil, 0)
	if limiter.Window != time.Minute {
		t.Fatalf("expected default one-minute window, got %v", limiter.Window)
	}
	if _, err := limiter.Allow(context.Background(), "id", 1); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable with nil client, got %v", err)
	}
}

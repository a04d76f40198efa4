package auth

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/copyleftdev/scrybe/pkg/store"
)

var testKey = []byte("k")

func signedRequest(t *testing.T, body string) SignedRequest {
	t.Helper()
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	nonce := uuid.NewString()
	return SignedRequest{
		Timestamp: ts,
		Nonce:     nonce,
		Signature: Sign(testKey, ts, nonce, []byte(body)),
		Body:      []byte(body),
	}
}

func TestValidateAccepts(t *testing.T) {
	v := NewValidator(testKey, store.NewMemoryCache(), 0)
	req := signedRequest(t, `{"a":1}`)
	if err := v.Validate(context.Background(), req); err != nil {
		t.Fatalf("expected accept, got %v", err)
	}
}

func TestValidateReplay(t *testing.T) {
	v := NewValidator(testKey, store.NewMemoryCache(), 0)
	req := signedRequest(t, `{"a":1}`)
	if err := v.Validate(context.Background(), req); err != nil {
		t.Fatalf("first submission: %v", err)
	}
	err := v.Validate(context.Background(), req)
	if !errors.Is(err, ErrReplayDetected) {
		t.Fatalf("expected replay rejection, got %v", err)
	}
}

func TestValidateMissingFields(t *testing.T) {
	v := NewValidator(testKey, store.NewMemoryCache(), 0)
	base := signedRequest(t, "{}")

	cases := []SignedRequest{
		{Nonce: base.Nonce, Signature: base.Signature, Body: base.Body},
		{Timestamp: base.Timestamp, Signature: base.Signature, Body: base.Body},
		{Timestamp: base.Timestamp, Nonce: base.Nonce, Body: base.Body},
		{Timestamp: "not-a-number", Nonce: base.Nonce, Signature: base.Signature, Body: base.Body},
	}
	for i, req := range cases {
		if err := v.Validate(context.Background(), req); !errors.Is(err, ErrMissingField) {
			t.Fatalf("case %d: expected ErrMissingField, got %v", i, err)
		}
	}
}

func TestValidateExpiredBothDirections(t *testing.T) {
	v := NewValidator(testKey, store.NewMemoryCache(), 5*time.Minute)

	for _, offset := range []time.Duration{-10 * time.Minute, 10 * time.Minute} {
		ts := strconv.FormatInt(time.Now().Add(offset).UnixMilli(), 10)
		nonce := uuid.NewString()
		req := SignedRequest{
			Timestamp: ts,
			Nonce:     nonce,
			Signature: Sign(testKey, ts, nonce, nil),
		}
		if err := v.Validate(context.Background(), req); !errors.Is(err, ErrExpired) {
			t.Fatalf("offset %v: expected ErrExpired, got %v", offset, err)
		}
	}
}

// An expired timestamp is rejected before the nonce store is touched,
// independent of signature validity.
func TestValidateExpiredSkipsNonceStore(t *testing.T) {
	cache := store.NewMemoryCache()
	v := NewValidator(testKey, cache, time.Minute)
	ts := strconv.FormatInt(time.Now().Add(-time.Hour).UnixMilli(), 10)
	req := SignedRequest{Timestamp: ts, Nonce: "stale-nonce", Signature: "ff"}
	if err := v.Validate(context.Background(), req); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if _, err := cache.Get(context.Background(), "nonce:stale-nonce"); !errors.Is(err, store.ErrNotFound) {
		t.Fatal("expired request must not consume its nonce")
	}
}

func TestValidateBadSignatureBurnsNonce(t *testing.T) {
	cache := store.NewMemoryCache()
	v := NewValidator(testKey, cache, 0)
	req := signedRequest(t, "{}")
	req.Signature = Sign([]byte("wrong-key"), req.Timestamp, req.Nonce, req.Body)

	if err := v.Validate(context.Background(), req); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	// The nonce was consumed even though the signature failed; replaying
	// with the correct signature is now rejected.
	good := req
	good.Signature = Sign(testKey, req.Timestamp, req.Nonce, req.Body)
	if err := v.Validate(context.Background(), good); !errors.Is(err, ErrReplayDetected) {
		t.Fatalf("expected replay rejection after nonce burn, got %v", err)
	}
}

func TestValidateStoreUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:         "127.0.0.1:1",
		DialTimeout:  5 * time.Millisecond,
		ReadTimeout:  5 * time.Millisecond,
		WriteTimeout: 5 * time.Millisecond,
		MaxRetries:   0,
	})
	v := NewValidator(testKey, store.NewRedisCache(client), 0)
	req := signedRequest(t, "{}")
	if err := v.Validate(context.Background(), req); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestValidateConcurrentReplaySingleWinner(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	v := NewValidator(testKey, store.NewRedisCache(client), 0)

	req := signedRequest(t, `{"a":1}`)
	const racers = 16
	results := make(chan error, racers)
	for i := 0; i < racers; i++ {
		go func() {
			results <- v.Validate(context.Background(), req)
		}()
	}
	accepted, replayed := 0, 0
	for i := 0; i < racers; i++ {
		switch err := <-results; {
		case err == nil:
			accepted++
		case errors.Is(err, ErrReplayDetected):
			replayed++
		default:
			t.Fatalf("unexpected verdict: %v", err)
		}
	}
	if accepted != 1 || replayed != racers-1 {
		t.Fatalf("expected exactly one acceptance, got accepted=%d replayed=%d", accepted, replayed)
	}
}

func TestSignDeterministic(t *testing.T) {
	a := Sign(testKey, "1234567890", "test-nonce", []byte("body"))
	b := Sign(testKey, "1234567890", "test-nonce", []byte("body"))
	if a != b {
		t.Fatal("signature must be deterministic")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
	if a == Sign(testKey, "1234567891", "test-nonce", []byte("body")) {
		t.Fatal("different timestamp must change signature")
	}
}

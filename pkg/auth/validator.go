package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/copyleftdev/scrybe/pkg/store"
)

// Rejection reasons. The HTTP layer collapses ErrReplayDetected and
// ErrInvalidSignature into one external response; internally they stay
// distinct for metrics and logs.
var (
	ErrMissingField     = errors.New("auth: missing or malformed field")
	ErrExpired          = errors.New("auth: timestamp outside freshness window")
	ErrReplayDetected   = errors.New("auth: nonce already consumed")
	ErrInvalidSignature = errors.New("auth: signature mismatch")
	ErrStoreUnavailable = errors.New("auth: nonce store unavailable")
)

// DefaultFreshnessWindow bounds clock skew in both directions and doubles
// as the nonce TTL.
const DefaultFreshnessWindow = 5 * time.Minute

// SignedRequest is the authentication envelope of one inbound request.
// Body is the raw, unmodified request body; it enters the signature
// message verbatim.
type SignedRequest struct {
	Timestamp string
	Nonce     string
	Signature string
	Body      []byte
}

// Validator checks signature, freshness and nonce uniqueness. The secret
// key is injected here; there is no ambient key state. Safe for
// arbitrary concurrent use: all mutable state lives in the shared store.
type Validator struct {
	key    []byte
	nonces store.Cache
	window time.Duration
	now    func() time.Time
}

func NewValidator(key []byte, nonces store.Cache, window time.Duration) *Validator {
	if window <= 0 {
		window = DefaultFreshnessWindow
	}
	return &Validator{
		key:    append([]byte(nil), key...),
		nonces: nonces,
		window: window,
		now:    time.Now,
	}
}

// Validate runs the checks in fixed order, cheapest first, stopping at
// the first failure: field presence, freshness, nonce consumption,
// signature. The nonce is consumed before the signature is verified, so
// a request with a valid nonce and a bad signature still burns the
// nonce.
func (v *Validator) Validate(ctx context.Context, req SignedRequest) error {
	if req.Timestamp == "" {
		return fmt.Errorf("%w: timestamp", ErrMissingField)
	}
	if req.Nonce == "" {
		return fmt.Errorf("%w: nonce", ErrMissingField)
	}
	if req.Signature == "" {
		return fmt.Errorf("%w: signature", ErrMissingField)
	}

	tsMS, err := strconv.ParseInt(req.Timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: timestamp", ErrMissingField)
	}
	skew := v.now().UnixMilli() - tsMS
	if skew < 0 {
		skew = -skew
	}
	if skew > v.window.Milliseconds() {
		return fmt.Errorf("%w: skew %dms exceeds %dms", ErrExpired, skew, v.window.Milliseconds())
	}

	fresh, err := v.nonces.SetNX(ctx, "nonce:"+req.Nonce, "1", v.window)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !fresh {
		return fmt.Errorf("%w: %s", ErrReplayDetected, req.Nonce)
	}

	expected := Sign(v.key, req.Timestamp, req.Nonce, req.Body)
	if !hmac.Equal([]byte(expected), []byte(req.Signature)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign computes HMAC-SHA256 over "{timestamp}:{nonce}:{body}" and
// returns it as lowercase hex. Clients do the same on their side.
func Sign(key []byte, timestamp, nonce string, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(timestamp))
	mac.Write([]byte{':'})
	mac.Write([]byte(nonce))
	mac.Write([]byte{':'})
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Package ingest sequences the per-request decision pipeline:
// authentication, admission, signal merge, fingerprinting, persistence.
// It owns no policy of its own; every verdict comes from the injected
// collaborators.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/copyleftdev/scrybe/pkg/auth"
	"github.com/copyleftdev/scrybe/pkg/fingerprint"
	"github.com/copyleftdev/scrybe/pkg/models"
	"github.com/copyleftdev/scrybe/pkg/ratelimit"
	"github.com/copyleftdev/scrybe/pkg/store"
)

// LimitError is the admission rejection. The limit and window travel
// with it so the transport layer can emit Retry-After.
type LimitError struct {
	Limit  int
	Window time.Duration
	Count  int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("ingest: rate limit exceeded: %d requests/%s (count=%d)", e.Limit, e.Window, e.Count)
}

type Authenticator interface {
	Validate(ctx context.Context, req auth.SignedRequest) error
}

type SessionStore interface {
	Insert(ctx context.Context, sess models.Session) error
}

// Publisher receives accepted sessions for downstream consumers (Kafka,
// live stream). Publish failures never fail an already-persisted
// request.
type Publisher interface {
	Publish(ctx context.Context, sess models.Session) error
}

// ObservedSignals are the server-side facts about the connection. They
// override whatever the client declared for the same fields: the client
// does not get to choose its IP.
type ObservedSignals struct {
	IP          string
	Headers     []models.Header
	HTTPVersion string
}

type Orchestrator struct {
	Auth       Authenticator
	Limiter    ratelimit.Limiter
	RateLimit  int
	RateWindow time.Duration
	Sessions   SessionStore
	Cache      store.Cache
	CacheTTL   time.Duration
	Publisher  Publisher
	now        func() time.Time
}

func NewOrchestrator(authn Authenticator, limiter ratelimit.Limiter, rateLimit int, rateWindow time.Duration, sessions SessionStore) *Orchestrator {
	if rateLimit <= 0 {
		rateLimit = 100
	}
	if rateWindow <= 0 {
		rateWindow = time.Minute
	}
	return &Orchestrator{
		Auth:       authn,
		Limiter:    limiter,
		RateLimit:  rateLimit,
		RateWindow: rateWindow,
		Sessions:   sessions,
		CacheTTL:   time.Hour,
		now:        time.Now,
	}
}

// Ingest runs the full pipeline for one request. Authentication and
// admission failures propagate unchanged so the transport layer can map
// them; identity is the rate-limit key (client IP or session id).
func (o *Orchestrator) Ingest(ctx context.Context, signed auth.SignedRequest, identity string, bundle models.SignalBundle, observed ObservedSignals) (models.Session, error) {
	if err := o.Auth.Validate(ctx, signed); err != nil {
		return models.Session{}, err
	}

	decision, err := o.Limiter.Allow(ctx, identity, o.RateLimit)
	if err != nil {
		return models.Session{}, err
	}
	if !decision.Allowed {
		return models.Session{}, &LimitError{Limit: decision.Limit, Window: o.RateWindow, Count: decision.Count}
	}

	merge(&bundle, observed)
	bundle.Behavioral.Truncate()

	fp, err := fingerprint.Generate(bundle)
	if err != nil {
		return models.Session{}, fmt.Errorf("ingest: fingerprint: %w", err)
	}

	sess := models.Session{
		ID:          models.NewSessionID(),
		Timestamp:   o.now().UTC(),
		Network:     bundle.Network,
		Browser:     bundle.Browser,
		Behavioral:  bundle.Behavioral,
		Fingerprint: fp,
	}
	if err := o.Sessions.Insert(ctx, sess); err != nil {
		return models.Session{}, fmt.Errorf("ingest: persist session: %w", err)
	}

	o.cacheSession(ctx, sess)
	if o.Publisher != nil {
		// Best effort: the session is already durable.
		_ = o.Publisher.Publish(ctx, sess)
	}
	return sess, nil
}

func merge(bundle *models.SignalBundle, observed ObservedSignals) {
	if observed.IP != "" {
		bundle.Network.IP = observed.IP
	}
	if len(observed.Headers) > 0 {
		bundle.Network.Headers = observed.Headers
	}
	if observed.HTTPVersion != "" {
		bundle.Network.HTTPVersion = observed.HTTPVersion
	}
	// A screen that fails validation is treated as unobserved rather
	// than rejecting the whole request; the confidence score already
	// accounts for the missing component.
	if bundle.Browser.Screen != nil && bundle.Browser.Screen.Validate() != nil {
		bundle.Browser.Screen = nil
	}
}

func (o *Orchestrator) cacheSession(ctx context.Context, sess models.Session) {
	if o.Cache == nil {
		return
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return
	}
	// Best effort: a cache miss only costs a storage lookup later.
	_ = o.Cache.Set(ctx, "session:"+sess.ID, string(raw), o.CacheTTL)
}

// CachedSession fetches a recently accepted session by id.
func (o *Orchestrator) CachedSession(ctx context.Context, id string) (models.Session, bool, error) {
	if o.Cache == nil {
		return models.Session{}, false, nil
	}
	raw, err := o.Cache.Get(ctx, "session:"+id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Session{}, false, nil
		}
		return models.Session{}, false, err
	}
	var sess models.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return models.Session{}, false, fmt.Errorf("ingest: decode cached session: %w", err)
	}
	return sess, true, nil
}

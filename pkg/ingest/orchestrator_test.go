package ingest

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/copyleftdev/scrybe/pkg/auth"
	"github.com/copyleftdev/scrybe/pkg/models"
	"github.com/copyleftdev/scrybe/pkg/ratelimit"
	"github.com/copyleftdev/scrybe/pkg/store"
)

var key = []byte("k")

type memorySessions struct {
	inserted []models.Session
	err      error
}

func (m *memorySessions) Insert(ctx context.Context, sess models.Session) error {
	if m.err != nil {
		return m.err
	}
	m.inserted = append(m.inserted, sess)
	return nil
}

type recordingPublisher struct {
	published []models.Session
	err       error
}

func (p *recordingPublisher) Publish(ctx context.Context, sess models.Session) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, sess)
	return nil
}

func newTestOrchestrator(sessions *memorySessions) *Orchestrator {
	validator := auth.NewValidator(key, store.NewMemoryCache(), 0)
	return NewOrchestrator(validator, ratelimit.NewInMemory(time.Minute), 100, time.Minute, sessions)
}

func sign(t *testing.T, body []byte) auth.SignedRequest {
	t.Helper()
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	nonce := uuid.NewString()
	return auth.SignedRequest{
		Timestamp: ts,
		Nonce:     nonce,
		Signature: auth.Sign(key, ts, nonce, body),
		Body:      body,
	}
}

func testBundle() models.SignalBundle {
	return models.SignalBundle{
		Network: models.NetworkSignals{IP: "9.9.9.9"},
		Browser: models.BrowserSignals{
			CanvasHash: "h1",
			UserAgent:  "Test/1.0",
		},
	}
}

func TestIngestAcceptsAndPersists(t *testing.T) {
	sessions := &memorySessions{}
	o := newTestOrchestrator(sessions)
	o.Cache = store.NewMemoryCache()
	pub := &recordingPublisher{}
	o.Publisher = pub

	observed := ObservedSignals{
		IP:          "1.2.3.4",
		Headers:     []models.Header{{Name: "user-agent", Value: "Test/1.0"}},
		HTTPVersion: "HTTP/2.0",
	}
	sess, err := o.Ingest(context.Background(), sign(t, []byte(`{"a":1}`)), "ip:1.2.3.4", testBundle(), observed)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(sessions.inserted) != 1 {
		t.Fatalf("expected one persisted session, got %d", len(sessions.inserted))
	}
	// Server-observed IP wins over the client-declared one.
	if sess.Network.IP != "1.2.3.4" {
		t.Fatalf("expected observed IP, got %q", sess.Network.IP)
	}
	if sess.Network.HTTPVersion != "HTTP/2.0" {
		t.Fatalf("expected observed HTTP version, got %q", sess.Network.HTTPVersion)
	}
	if sess.Fingerprint.Hash == "" || sess.Fingerprint.Confidence <= 0 {
		t.Fatalf("expected populated fingerprint: %+v", sess.Fingerprint)
	}
	if len(pub.published) != 1 || pub.published[0].ID != sess.ID {
		t.Fatalf("expected session published, got %+v", pub.published)
	}

	cached, ok, err := o.CachedSession(context.Background(), sess.ID)
	if err != nil || !ok {
		t.Fatalf("cached session lookup: ok=%v err=%v", ok, err)
	}
	if cached.Fingerprint.Hash != sess.Fingerprint.Hash {
		t.Fatal("cached session fingerprint mismatch")
	}
}

func TestIngestRejectsReplayEndToEnd(t *testing.T) {
	o := newTestOrchestrator(&memorySessions{})
	req := sign(t, []byte(`{"a":1}`))

	if _, err := o.Ingest(context.Background(), req, "ip:1.2.3.4", testBundle(), ObservedSignals{}); err != nil {
		t.Fatalf("first submission: %v", err)
	}
	_, err := o.Ingest(context.Background(), req, "ip:1.2.3.4", testBundle(), ObservedSignals{})
	if !errors.Is(err, auth.ErrReplayDetected) {
		t.Fatalf("expected replay rejection, got %v", err)
	}
}

func TestIngestRateLimit(t *testing.T) {
	sessions := &memorySessions{}
	validator := auth.NewValidator(key, store.NewMemoryCache(), 0)
	o := NewOrchestrator(validator, ratelimit.NewInMemory(time.Minute), 2, time.Minute, sessions)

	for i := 0; i < 2; i++ {
		if _, err := o.Ingest(context.Background(), sign(t, nil), "ip:1.1.1.1", testBundle(), ObservedSignals{}); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	_, err := o.Ingest(context.Background(), sign(t, nil), "ip:1.1.1.1", testBundle(), ObservedSignals{})
	var limitErr *LimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected LimitError, got %v", err)
	}
	if limitErr.Limit != 2 || limitErr.Count != 3 {
		t.Fatalf("unexpected limit error: %+v", limitErr)
	}
	// A different identity is unaffected.
	if _, err := o.Ingest(context.Background(), sign(t, nil), "ip:2.2.2.2", testBundle(), ObservedSignals{}); err != nil {
		t.Fatalf("other identity: %v", err)
	}
}

func TestIngestAuthBeforeAdmission(t *testing.T) {
	sessions := &memorySessions{}
	validator := auth.NewValidator(key, store.NewMemoryCache(), 0)
	limiter := ratelimit.NewInMemory(time.Minute)
	o := NewOrchestrator(validator, limiter, 100, time.Minute, sessions)

	bad := sign(t, []byte("x"))
	bad.Signature = "deadbeef"
	if _, err := o.Ingest(context.Background(), bad, "ip:3.3.3.3", testBundle(), ObservedSignals{}); !errors.Is(err, auth.ErrInvalidSignature) {
		t.Fatalf("expected signature rejection, got %v", err)
	}
	// Rejected authentication must not consume admission budget.
	count, err := limiter.Peek(context.Background(), "ip:3.3.3.3")
	if err != nil || count != 0 {
		t.Fatalf("expected untouched rate counter, got count=%d err=%v", count, err)
	}
}

func TestIngestTruncatesBehavioral(t *testing.T) {
	sessions := &memorySessions{}
	o := newTestOrchestrator(sessions)

	bundle := testBundle()
	bundle.Behavioral.MouseEvents = make([]models.MouseEvent, models.MaxMouseEvents+500)
	sess, err := o.Ingest(context.Background(), sign(t, nil), "ip:1.2.3.4", bundle, ObservedSignals{})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(sess.Behavioral.MouseEvents) != models.MaxMouseEvents {
		t.Fatalf("behavioral events not bounded: %d", len(sess.Behavioral.MouseEvents))
	}
}

func TestIngestDropsInvalidScreen(t *testing.T) {
	sessions := &memorySessions{}
	o := newTestOrchestrator(sessions)

	bundle := testBundle()
	bundle.Browser.Screen = &models.ScreenInfo{Width: 0, Height: 0, ColorDepth: 24, PixelRatio: 1}
	sess, err := o.Ingest(context.Background(), sign(t, nil), "ip:1.2.3.4", bundle, ObservedSignals{})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if sess.Browser.Screen != nil {
		t.Fatal("invalid screen should be treated as unobserved")
	}
	if sess.Fingerprint.Components.Screen != "" {
		t.Fatal("invalid screen must not contribute a component hash")
	}
}

func TestIngestStorageFailure(t *testing.T) {
	sessions := &memorySessions{err: errors.New("db down")}
	o := newTestOrchestrator(sessions)
	if _, err := o.Ingest(context.Background(), sign(t, nil), "ip:1.2.3.4", testBundle(), ObservedSignals{}); err == nil {
		t.Fatal("expected persistence error to fail the request")
	}
}

func TestIngestPublisherFailureIsNotFatal(t *testing.T) {
	sessions := &memorySessions{}
	o := newTestOrchestrator(sessions)
	o.Publisher = &recordingPublisher{err: errors.New("broker down")}
	if _, err := o.Ingest(context.Background(), sign(t, nil), "ip:1.2.3.4", testBundle(), ObservedSignals{}); err != nil {
		t.Fatalf("publisher failure must not fail the request: %v", err)
	}
}

package main

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/copyleftdev/scrybe/pkg/auth"
	"github.com/copyleftdev/scrybe/pkg/events"
	"github.com/copyleftdev/scrybe/pkg/hardening"
	"github.com/copyleftdev/scrybe/pkg/httpx"
	"github.com/copyleftdev/scrybe/pkg/ingest"
	"github.com/copyleftdev/scrybe/pkg/metrics"
	"github.com/copyleftdev/scrybe/pkg/models"
	"github.com/copyleftdev/scrybe/pkg/ratelimit"
	"github.com/copyleftdev/scrybe/pkg/store"
	"github.com/copyleftdev/scrybe/pkg/stream"
	"github.com/copyleftdev/scrybe/pkg/telemetry"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
)

const (
	headerTimestamp = "X-Scrybe-Timestamp"
	headerNonce     = "X-Scrybe-Nonce"
	headerSignature = "X-Scrybe-Signature"
)

type Server struct {
	DB                  gatewayDB
	Sessions            *store.Sessions
	Cache               store.Cache
	Redis               *redis.Client
	RateLimiter         ratelimit.Limiter
	Pipeline            *ingest.Orchestrator
	Metrics             *metrics.Registry
	Events              *stream.Hub
	IPs                 *httpx.IPResolver
	IdentitySalt        string
	HeaderAllowlist     []string
	RateLimitPerWindow  int
	RateLimitWindow     time.Duration
	MaxRequestBodyBytes int64
	WSAllowedOrigins    []string
}

// meteredPublisher counts Kafka delivery failures. Publishing stays best
// effort; the counter is the only trace a failed delivery leaves.
type meteredPublisher struct {
	producer *events.Producer
	metrics  *metrics.Registry
}

func (p *meteredPublisher) Publish(ctx context.Context, sess models.Session) error {
	if err := p.producer.Publish(ctx, sess); err != nil {
		p.metrics.IncPublishFailure()
		return err
	}
	return nil
}

type gatewayDB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type gatewayDBCloser interface {
	gatewayDB
	Close()
}

type gatewayInitTelemetryFunc func(ctx context.Context, service string) (func(context.Context) error, error)
type gatewayOpenDBFunc func(ctx context.Context) (gatewayDBCloser, error)
type gatewayOpenRedisFunc func(ctx context.Context) (*redis.Client, error)
type gatewayListenFunc func(server *http.Server) error
type gatewayStartLoopsFunc func(s *Server)

// Testable variables for main()
var (
	logFatalf      = log.Fatalf
	initTelemetryG = telemetry.Init
	openDBFnG      = func(ctx context.Context) (gatewayDBCloser, error) {
		return store.NewPostgresPool(ctx, postgresOptionsFromEnv())
	}
	openRedisFnG = func(ctx context.Context) (*redis.Client, error) {
		return store.NewRedis(ctx, redisOptionsFromEnv())
	}
	listenFnG     = serveUntilSignal
	startLoopsFnG = func(s *Server) {
		go s.metricsLoop(context.Background())
	}
)

func main() {
	if err := runGateway(initTelemetryG, openDBFnG, openRedisFnG, listenFnG, startLoopsFnG); err != nil {
		logFatalf("gateway: %v", err)
	}
}

func runGateway(
	initTelemetry gatewayInitTelemetryFunc,
	openDB gatewayOpenDBFunc,
	openRedis gatewayOpenRedisFunc,
	listen gatewayListenFunc,
	startLoops gatewayStartLoopsFunc,
) error {
	ctx := context.Background()
	shutdown, err := initTelemetry(ctx, "scrybe")
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	hmacSecret := env("SCRYBE_HMAC_SECRET", "")
	if strings.TrimSpace(hmacSecret) == "" {
		return errors.New("SCRYBE_HMAC_SECRET is required")
	}

	runtimeEnv := env("ENVIRONMENT", env("APP_ENV", ""))
	if err := hardening.ValidateProduction(hardening.Options{
		Service:            "gateway",
		Environment:        runtimeEnv,
		StrictProdSecurity: env("STRICT_PROD_SECURITY", "true"),
		PostgresRequireTLS: env("POSTGRES_REQUIRE_TLS", ""),
		RedisAddr:          env("REDIS_ADDR", ""),
		RedisRequireTLS:    env("REDIS_REQUIRE_TLS", ""),
		RedisTLSInsecure:   env("REDIS_TLS_INSECURE", ""),
		CORSAllowedOrigins: env("CORS_ALLOWED_ORIGINS", ""),
		RequiredSecrets: []hardening.EnvRequirement{
			{Name: "SCRYBE_HMAC_SECRET", Value: hmacSecret},
			{Name: "SCRYBE_IDENTITY_SALT", Value: env("SCRYBE_IDENTITY_SALT", "")},
		},
	}); err != nil {
		return err
	}

	pool, err := openDB(ctx)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pool.Close()
	sessions := store.NewSessions(pool)
	if err := sessions.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("schema: %w", err)
	}

	// Redis is the shared nonce and rate-limit store. When an address is
	// configured the gateway refuses to start without it; the process-local
	// stores are only selected explicitly, never as a fallback.
	var redisClient *redis.Client
	if env("REDIS_ADDR", "") != "" {
		redisClient, err = openRedis(ctx)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer redisClient.Close()
	} else {
		log.Printf("REDIS_ADDR not set, using process-local nonce and rate-limit stores")
	}

	var nonceCache store.Cache
	var limiter ratelimit.Limiter
	rateLimitWindow := envDurationSec("RATE_LIMIT_WINDOW_SEC", 60)
	if redisClient != nil {
		nonceCache = store.NewRedisCache(redisClient)
		limiter = ratelimit.NewRedis(redisClient, rateLimitWindow)
	} else {
		nonceCache = store.NewMemoryCache()
		limiter = ratelimit.NewInMemory(rateLimitWindow)
	}

	freshness := envDurationSec("AUTH_FRESHNESS_WINDOW_SEC", 300)
	validator := auth.NewValidator([]byte(hmacSecret), nonceCache, freshness)

	rateLimit := envInt("RATE_LIMIT_PER_WINDOW", 100)
	pipeline := ingest.NewOrchestrator(validator, limiter, rateLimit, rateLimitWindow, sessions)
	pipeline.Cache = nonceCache
	pipeline.CacheTTL = envDurationSec("SESSION_CACHE_TTL_SEC", 3600)

	reg := metrics.NewRegistry()

	var producer *events.Producer
	if brokers := env("KAFKA_BROKERS", ""); brokers != "" {
		producer, err = events.NewProducer(events.KafkaConfig{
			Brokers: strings.Split(brokers, ","),
			Topic:   env("KAFKA_TOPIC", "scrybe.sessions"),
		})
		if err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
		defer producer.Close()
		pipeline.Publisher = &meteredPublisher{producer: producer, metrics: reg}
	}

	maxBody := int64(envInt("MAX_REQUEST_BODY_BYTES", 1<<20))
	if maxBody <= 0 {
		maxBody = 1 << 20
	}

	s := &Server{
		DB:                  pool,
		Sessions:            sessions,
		Cache:               nonceCache,
		Redis:               redisClient,
		RateLimiter:         limiter,
		Pipeline:            pipeline,
		Metrics:             reg,
		Events:              stream.NewHub(),
		IPs:                 httpx.NewIPResolver(env("TRUSTED_PROXY_CIDRS", "")),
		IdentitySalt:        env("SCRYBE_IDENTITY_SALT", ""),
		HeaderAllowlist:     splitList(env("HEADER_CAPTURE_ALLOWLIST", "User-Agent,Accept-Language,Accept-Encoding,Sec-Ch-Ua,Sec-Ch-Ua-Platform")),
		RateLimitPerWindow:  rateLimit,
		RateLimitWindow:     rateLimitWindow,
		MaxRequestBodyBytes: maxBody,
		WSAllowedOrigins:    splitList(env("WS_ALLOWED_ORIGINS", "")),
	}

	r := chi.NewRouter()
	r.Use(httpx.CORSMiddleware(env("CORS_ALLOWED_ORIGINS", "")))
	r.Use(httpx.SecurityHeadersMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(telemetry.HTTPMiddleware("scrybe"))
	r.Use(httpx.BodyLimitMiddleware(s.MaxRequestBodyBytes))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, 200, map[string]string{"status": "ok", "service": "scrybe"})
	})
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.Metrics.Handler())
	r.Get("/metrics/prometheus", s.Metrics.PrometheusHandler())
	r.Post("/v1/ingest", s.handleIngest)
	r.Get("/v1/sessions", s.handleRecentSessions)
	r.Get("/v1/sessions/{session_id}", s.handleGetSession)
	r.Get("/v1/fingerprints/{hash}", s.handleFingerprintCount)
	r.Get("/v1/ratelimit/{identity}", s.handleRateLimitPeek)
	r.Delete("/v1/ratelimit/{identity}", s.handleRateLimitReset)
	r.Get("/v1/stream", s.streamEvents)

	if startLoops != nil {
		startLoops(s)
	}

	addr := env("ADDR", ":8080")
	log.Printf("scrybe gateway listening on %s", addr)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: envDurationSec("HTTP_READ_HEADER_TIMEOUT_SEC", 5),
		ReadTimeout:       envDurationSec("HTTP_READ_TIMEOUT_SEC", 15),
		WriteTimeout:      envDurationSec("HTTP_WRITE_TIMEOUT_SEC", 30),
		IdleTimeout:       envDurationSec("HTTP_IDLE_TIMEOUT_SEC", 120),
	}
	if listen == nil {
		return errors.New("listen function required")
	}
	return listen(server)
}

func serveUntilSignal(server *http.Server) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, ok := readRequestBody(w, r)
	if !ok {
		return
	}
	if len(body) == 0 {
		httpx.Error(w, 400, "request body required")
		return
	}
	var bundle models.SignalBundle
	if err := json.Unmarshal(body, &bundle); err != nil {
		httpx.Error(w, 400, "invalid json")
		return
	}
	signed := auth.SignedRequest{
		Timestamp: r.Header.Get(headerTimestamp),
		Nonce:     r.Header.Get(headerNonce),
		Signature: r.Header.Get(headerSignature),
		Body:      body,
	}
	ip := s.IPs.ClientIP(r)
	identity := s.identityKey(ip)
	observed := ingest.ObservedSignals{
		IP:          ip,
		Headers:     s.captureHeaders(r),
		HTTPVersion: r.Proto,
	}

	start := time.Now()
	sess, err := s.Pipeline.Ingest(r.Context(), signed, identity, bundle, observed)
	s.Metrics.ObserveDecisionLatency(time.Since(start))
	if err != nil {
		s.writeIngestError(w, r, identity, err)
		return
	}

	s.Metrics.IncAuthOutcome("accepted")
	s.Metrics.IncAdmission("allowed")
	s.Metrics.IncSessions()
	s.Metrics.ObserveConfidence(sess.Fingerprint.Confidence)
	s.Events.Publish(stream.NewEvent(stream.EventSessionAccepted, stream.SessionAccepted{
		SessionID:       sess.ID,
		FingerprintHash: sess.Fingerprint.Hash,
		Confidence:      sess.Fingerprint.Confidence,
		IP:              sess.Network.IP,
	}))
	httpx.WriteJSON(w, 200, map[string]any{
		"session_id":       sess.ID,
		"fingerprint_hash": sess.Fingerprint.Hash,
		"confidence":       sess.Fingerprint.Confidence,
	})
}

func (s *Server) writeIngestError(w http.ResponseWriter, r *http.Request, identity string, err error) {
	var limitErr *ingest.LimitError
	switch {
	case errors.As(err, &limitErr):
		s.Metrics.IncAdmission("limited")
		s.Events.Publish(stream.NewEvent(stream.EventRateLimited, stream.RateLimited{
			Identity: identity,
			Limit:    int64(limitErr.Limit),
			Count:    int64(limitErr.Count),
		}))
		retry := int(limitErr.Window.Seconds())
		if retry < 1 {
			retry = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		httpx.WriteJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":          "rate limit exceeded",
			"limit":          limitErr.Limit,
			"window_seconds": retry,
		})
	case errors.Is(err, auth.ErrStoreUnavailable), errors.Is(err, ratelimit.ErrStoreUnavailable):
		s.Metrics.IncAuthOutcome("store_unavailable")
		httpx.Error(w, http.StatusServiceUnavailable, "service unavailable")
	case authOutcome(err) != "":
		s.Metrics.IncAuthOutcome(authOutcome(err))
		// All authentication failures share one body. A probing client
		// cannot tell a burned nonce from a bad signature.
		httpx.Error(w, http.StatusUnauthorized, "authentication failed")
	default:
		log.Printf("ingest failed: %v", err)
		httpx.Error(w, http.StatusServiceUnavailable, "service unavailable")
	}
}

func authOutcome(err error) string {
	switch {
	case errors.Is(err, auth.ErrMissingField):
		return "missing_field"
	case errors.Is(err, auth.ErrExpired):
		return "expired"
	case errors.Is(err, auth.ErrReplayDetected):
		return "replay_detected"
	case errors.Is(err, auth.ErrInvalidSignature):
		return "invalid_signature"
	}
	return ""
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "session_id"))
	if id == "" {
		httpx.Error(w, 400, "session_id required")
		return
	}
	sess, found, err := s.Pipeline.CachedSession(r.Context(), id)
	if err != nil {
		httpx.Error(w, http.StatusServiceUnavailable, "session cache unavailable")
		return
	}
	if !found {
		httpx.Error(w, http.StatusNotFound, "session not found")
		return
	}
	httpx.WriteJSON(w, 200, sess)
}

func (s *Server) handleRecentSessions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httpx.Error(w, 400, "limit must be an integer")
			return
		}
		limit = n
	}
	rows, err := s.Sessions.Recent(r.Context(), limit)
	if err != nil {
		log.Printf("recent sessions query failed: %v", err)
		httpx.Error(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"sessions": rows})
}

func (s *Server) handleFingerprintCount(w http.ResponseWriter, r *http.Request) {
	hash := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "hash")))
	if len(hash) != 64 {
		httpx.Error(w, 400, "hash must be 64 hex characters")
		return
	}
	count, err := s.Sessions.CountByFingerprint(r.Context(), hash)
	if err != nil {
		log.Printf("fingerprint count query failed: %v", err)
		httpx.Error(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{
		"fingerprint_hash": hash,
		"sessions":         count,
	})
}

func (s *Server) handleRateLimitPeek(w http.ResponseWriter, r *http.Request) {
	identity := strings.TrimSpace(chi.URLParam(r, "identity"))
	if identity == "" {
		httpx.Error(w, 400, "identity required")
		return
	}
	count, err := s.RateLimiter.Peek(r.Context(), s.identityKey(identity))
	if err != nil {
		httpx.Error(w, http.StatusServiceUnavailable, "rate limit store unavailable")
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{
		"identity":       identity,
		"count":          count,
		"limit":          s.RateLimitPerWindow,
		"window_seconds": int(s.RateLimitWindow.Seconds()),
	})
}

func (s *Server) handleRateLimitReset(w http.ResponseWriter, r *http.Request) {
	identity := strings.TrimSpace(chi.URLParam(r, "identity"))
	if identity == "" {
		httpx.Error(w, 400, "identity required")
		return
	}
	if err := s.RateLimiter.Reset(r.Context(), s.identityKey(identity)); err != nil {
		httpx.Error(w, http.StatusServiceUnavailable, "rate limit store unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	checks := map[string]string{}
	ready := true
	var one int
	if err := s.DB.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		checks["postgres"] = err.Error()
		ready = false
	} else {
		checks["postgres"] = "ok"
	}
	if s.Redis != nil {
		if err := s.Redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			ready = false
		} else {
			checks["redis"] = "ok"
		}
	}
	if !ready {
		httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "checks": checks})
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"status": "ready", "checks": checks})
}

func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	if s.Events == nil {
		httpx.Error(w, 503, "stream unavailable")
		return
	}
	opts := &websocket.AcceptOptions{}
	if len(s.WSAllowedOrigins) > 0 {
		opts.OriginPatterns = s.WSAllowedOrigins
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	sub := s.Events.Subscribe(64)
	defer s.Events.Unsubscribe(sub)

	_ = wsjson.Write(ctx, conn, stream.NewEvent("ready", nil))
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				readErr <- err
				return
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case <-readErr:
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case evt, ok := <-sub:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "closed")
				return
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, evt)
			cancelWrite()
			if err != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "write_failed")
				return
			}
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("underlying ResponseWriter does not implement http.Hijacker")
	}
	return hj.Hijack()
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (srv *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: 200}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)
		path := r.Method + " " + r.URL.Path
		srv.Metrics.Observe(path, rec.code, elapsed)
		srv.Metrics.ObserveLatency(path, elapsed)
	})
}

func (s *Server) metricsLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	s.updateOperationalMetrics(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.updateOperationalMetrics(ctx)
		}
	}
}

func (s *Server) updateOperationalMetrics(ctx context.Context) {
	if s.Metrics == nil {
		return
	}
	if s.Events != nil {
		s.Metrics.SetGauge("stream_subscribers", float64(s.Events.Subscribers()))
	}
	if s.DB == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var stored int64
	_ = s.DB.QueryRow(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&stored)
	s.Metrics.SetGauge("sessions_stored", float64(stored))
	var distinct int64
	_ = s.DB.QueryRow(ctx, `SELECT COUNT(DISTINCT fingerprint_hash) FROM sessions`).Scan(&distinct)
	s.Metrics.SetGauge("fingerprints_distinct", float64(distinct))
}

// identityKey hashes the client identity when a salt is configured so
// raw IPs never land in the shared rate-limit store.
func (s *Server) identityKey(identity string) string {
	identity = strings.TrimSpace(identity)
	if s.IdentitySalt == "" {
		return identity
	}
	sum := sha256.Sum256([]byte(s.IdentitySalt + "|" + identity))
	return fmt.Sprintf("%x", sum[:])
}

func (s *Server) captureHeaders(r *http.Request) []models.Header {
	if len(s.HeaderAllowlist) == 0 {
		return nil
	}
	out := make([]models.Header, 0, len(s.HeaderAllowlist))
	for _, name := range s.HeaderAllowlist {
		if v := r.Header.Get(name); v != "" {
			out = append(out, models.Header{Name: name, Value: v})
		}
	}
	return out
}

func readRequestBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err == nil {
		return body, true
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		httpx.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
		return nil, false
	}
	httpx.Error(w, http.StatusBadRequest, "invalid request body")
	return nil, false
}

func postgresOptionsFromEnv() store.PostgresOptions {
	return store.PostgresOptions{
		URL:      env("DATABASE_URL", ""),
		User:     env("POSTGRES_USER", ""),
		Password: env("POSTGRES_PASSWORD", ""),
		Host:     env("POSTGRES_HOST", ""),
		Port:     env("POSTGRES_PORT", ""),
		Database: env("POSTGRES_DB", ""),
		SSLMode:  env("POSTGRES_SSLMODE", ""),
	}
}

func redisOptionsFromEnv() store.RedisOptions {
	return store.RedisOptions{
		Addr:        env("REDIS_ADDR", ""),
		Password:    env("REDIS_PASSWORD", ""),
		DB:          envInt("REDIS_DB", 0),
		TLS:         env("REDIS_REQUIRE_TLS", "") == "true",
		TLSInsecure: env("REDIS_TLS_INSECURE", "") == "true",
		ServerName:  env("REDIS_TLS_SERVER_NAME", ""),
		CACertFile:  env("REDIS_TLS_CA_CERT", ""),
		CertFile:    env("REDIS_TLS_CERT", ""),
		KeyFile:     env("REDIS_TLS_KEY", ""),
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envDurationSec(k string, def int) time.Duration {
	return time.Second * time.Duration(envInt(k, def))
}

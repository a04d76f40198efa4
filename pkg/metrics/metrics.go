package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

type Registry struct {
	mu              sync.RWMutex
	endpoint        map[string]*EndpointStat
	authOutcome     map[string]int64
	admission       map[string]int64
	gauges          map[string]float64
	sessionsTotal   int64
	publishFailures int64
	decisionLatency DecisionLatencyStat
	Histograms      *HistogramRegistry
	Confidence      *Histogram
}

type EndpointStat struct {
	Count          int64   `json:"count"`
	ErrorCount     int64   `json:"error_count"`
	TotalMillis    int64   `json:"total_millis"`
	MaxMillis      int64   `json:"max_millis"`
	AverageMillis  float64 `json:"average_millis"`
	LastStatusCode int     `json:"last_status_code"`
}

type DecisionLatencyStat struct {
	Count   int64   `json:"count"`
	TotalMS int64   `json:"total_ms"`
	MaxMS   int64   `json:"max_ms"`
	LastMS  int64   `json:"last_ms"`
	AvgMS   float64 `json:"avg_ms"`
}

type Snapshot struct {
	GeneratedAt       string                  `json:"generated_at"`
	Endpoints         map[string]EndpointStat `json:"endpoints"`
	AuthOutcomes      map[string]int64        `json:"auth_outcomes"`
	Admission         map[string]int64        `json:"admission"`
	Gauges            map[string]float64      `json:"gauges"`
	SessionsTotal     int64                   `json:"sessions_total"`
	PublishFailures   int64                   `json:"publish_failures_total"`
	DecisionLatencyMS DecisionLatencyStat     `json:"ingest_decision_latency_ms"`
	Confidence        HistogramSnapshot       `json:"confidence"`
	Histograms        []HistogramSnapshot     `json:"histograms,omitempty"`
}

func NewRegistry() *Registry {
	return &Registry{
		endpoint:    map[string]*EndpointStat{},
		authOutcome: map[string]int64{},
		admission:   map[string]int64{},
		gauges:      map[string]float64{},
		Histograms:  NewHistogramRegistry(),
		Confidence:  NewValueHistogram("fingerprint_confidence", confidenceBuckets),
	}
}

func (r *Registry) ObserveLatency(endpoint string, d time.Duration) {
	r.Histograms.ObserveDuration(endpoint, d)
}

func (r *Registry) Observe(path string, status int, d time.Duration) {
	millis := d.Milliseconds()
	r.mu.Lock()
	defer r.mu.Unlock()
	stat, ok := r.endpoint[path]
	if !ok {
		stat = &EndpointStat{}
		r.endpoint[path] = stat
	}
	stat.Count++
	if status >= 400 {
		stat.ErrorCount++
	}
	stat.TotalMillis += millis
	if millis > stat.MaxMillis {
		stat.MaxMillis = millis
	}
	stat.LastStatusCode = status
	stat.AverageMillis = float64(stat.TotalMillis) / float64(stat.Count)
}

// IncAuthOutcome counts authentication verdicts. Outcome values follow
// the validator's error taxonomy: accepted, missing_field, expired,
// replay_detected, invalid_signature, store_unavailable.
func (r *Registry) IncAuthOutcome(outcome string) {
	outcome = strings.TrimSpace(strings.ToLower(outcome))
	if outcome == "" {
		return
	}
	r.mu.Lock()
	r.authOutcome[outcome]++
	r.mu.Unlock()
}

func (r *Registry) IncAdmission(decision string) {
	decision = strings.TrimSpace(strings.ToLower(decision))
	if decision == "" {
		return
	}
	r.mu.Lock()
	r.admission[decision]++
	r.mu.Unlock()
}

func (r *Registry) IncSessions() {
	r.mu.Lock()
	r.sessionsTotal++
	r.mu.Unlock()
}

func (r *Registry) IncPublishFailure() {
	r.mu.Lock()
	r.publishFailures++
	r.mu.Unlock()
}

func (r *Registry) ObserveConfidence(score float64) {
	r.Confidence.ObserveValue(score)
}

func (r *Registry) ObserveDecisionLatency(d time.Duration) {
	ms := d.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisionLatency.Count++
	r.decisionLatency.TotalMS += ms
	r.decisionLatency.LastMS = ms
	if ms > r.decisionLatency.MaxMS {
		r.decisionLatency.MaxMS = ms
	}
	r.decisionLatency.AvgMS = float64(r.decisionLatency.TotalMS) / float64(r.decisionLatency.Count)
}

func (r *Registry) SetGauge(name string, value float64) {
	if name == "" {
		return
	}
	r.mu.Lock()
	r.gauges[name] = value
	r.mu.Unlock()
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := Snapshot{
		GeneratedAt:     time.Now().UTC().Format(time.RFC3339),
		Endpoints:       make(map[string]EndpointStat, len(r.endpoint)),
		AuthOutcomes:    make(map[string]int64, len(r.authOutcome)),
		Admission:       make(map[string]int64, len(r.admission)),
		Gauges:          make(map[string]float64, len(r.gauges)),
		SessionsTotal:   r.sessionsTotal,
		PublishFailures: r.publishFailures,
		DecisionLatencyMS: DecisionLatencyStat{
			Count:   r.decisionLatency.Count,
			TotalMS: r.decisionLatency.TotalMS,
			MaxMS:   r.decisionLatency.MaxMS,
			LastMS:  r.decisionLatency.LastMS,
			AvgMS:   r.decisionLatency.AvgMS,
		},
	}
	for k, v := range r.endpoint {
		out.Endpoints[k] = *v
	}
	for k, v := range r.authOutcome {
		out.AuthOutcomes[k] = v
	}
	for k, v := range r.admission {
		out.Admission[k] = v
	}
	for k, v := range r.gauges {
		out.Gauges[k] = v
	}
	out.Confidence = r.Confidence.Snapshot()
	out.Histograms = r.Histograms.Snapshots()
	return out
}

func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		snap := r.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(snap)
	}
}

func (r *Registry) PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		snap := r.Snapshot()
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		b := &strings.Builder{}
		b.WriteString("# HELP scrybe_endpoint_count total requests by endpoint\n")
		b.WriteString("# TYPE scrybe_endpoint_count counter\n")
		for _, ep := range SortedKeys(snap.Endpoints) {
			stat := snap.Endpoints[ep]
			fmt.Fprintf(b, "scrybe_endpoint_count{endpoint=%q} %d\n", ep, stat.Count)
		}
		b.WriteString("# HELP scrybe_endpoint_error_count total endpoint errors\n")
		b.WriteString("# TYPE scrybe_endpoint_error_count counter\n")
		for _, ep := range SortedKeys(snap.Endpoints) {
			stat := snap.Endpoints[ep]
			fmt.Fprintf(b, "scrybe_endpoint_error_count{endpoint=%q} %d\n", ep, stat.ErrorCount)
		}
		b.WriteString("# HELP scrybe_endpoint_avg_millis endpoint average latency in milliseconds\n")
		b.WriteString("# TYPE scrybe_endpoint_avg_millis gauge\n")
		for _, ep := range SortedKeys(snap.Endpoints) {
			stat := snap.Endpoints[ep]
			fmt.Fprintf(b, "scrybe_endpoint_avg_millis{endpoint=%q} %.3f\n", ep, stat.AverageMillis)
		}
		b.WriteString("# HELP scrybe_endpoint_max_millis endpoint max latency in milliseconds\n")
		b.WriteString("# TYPE scrybe_endpoint_max_millis gauge\n")
		for _, ep := range SortedKeys(snap.Endpoints) {
			stat := snap.Endpoints[ep]
			fmt.Fprintf(b, "scrybe_endpoint_max_millis{endpoint=%q} %d\n", ep, stat.MaxMillis)
		}
		b.WriteString("# HELP scrybe_auth_outcome_total authentication verdicts by outcome\n")
		b.WriteString("# TYPE scrybe_auth_outcome_total counter\n")
		for _, outcome := range SortedKeys(snap.AuthOutcomes) {
			fmt.Fprintf(b, "scrybe_auth_outcome_total{outcome=%q} %d\n", outcome, snap.AuthOutcomes[outcome])
		}
		b.WriteString("# HELP scrybe_admission_total rate limit decisions\n")
		b.WriteString("# TYPE scrybe_admission_total counter\n")
		for _, decision := range SortedKeys(snap.Admission) {
			fmt.Fprintf(b, "scrybe_admission_total{decision=%q} %d\n", decision, snap.Admission[decision])
		}
		b.WriteString("# HELP scrybe_sessions_total sessions persisted\n")
		b.WriteString("# TYPE scrybe_sessions_total counter\n")
		fmt.Fprintf(b, "scrybe_sessions_total %d\n", snap.SessionsTotal)
		b.WriteString("# HELP scrybe_publish_failures_total session event publish failures\n")
		b.WriteString("# TYPE scrybe_publish_failures_total counter\n")
		fmt.Fprintf(b, "scrybe_publish_failures_total %d\n", snap.PublishFailures)
		b.WriteString("# HELP scrybe_gauge operational gauge metrics\n")
		b.WriteString("# TYPE scrybe_gauge gauge\n")
		for _, name := range SortedKeys(snap.Gauges) {
			fmt.Fprintf(b, "scrybe_gauge{name=%q} %.3f\n", name, snap.Gauges[name])
		}

		b.WriteString("# HELP scrybe_ingest_decision_latency_ms ingest decision latency in ms\n")
		b.WriteString("# TYPE scrybe_ingest_decision_latency_ms gauge\n")
		fmt.Fprintf(b, "scrybe_ingest_decision_latency_ms{stat=%q} %d\n", "last", snap.DecisionLatencyMS.LastMS)
		fmt.Fprintf(b, "scrybe_ingest_decision_latency_ms{stat=%q} %.3f\n", "avg", snap.DecisionLatencyMS.AvgMS)
		fmt.Fprintf(b, "scrybe_ingest_decision_latency_ms{stat=%q} %d\n", "max", snap.DecisionLatencyMS.MaxMS)

		b.WriteString("# HELP scrybe_fingerprint_confidence fingerprint confidence distribution\n")
		b.WriteString("# TYPE scrybe_fingerprint_confidence histogram\n")
		for _, bucket := range snap.Confidence.Buckets {
			fmt.Fprintf(b, "scrybe_fingerprint_confidence_bucket{le=\"%.2f\"} %d\n", bucket.Le, bucket.Count)
		}
		fmt.Fprintf(b, "scrybe_fingerprint_confidence_bucket{le=\"+Inf\"} %d\n", snap.Confidence.Count)
		fmt.Fprintf(b, "scrybe_fingerprint_confidence_sum %.6f\n", snap.Confidence.Sum)
		fmt.Fprintf(b, "scrybe_fingerprint_confidence_count %d\n", snap.Confidence.Count)

		for _, h := range snap.Histograms {
			b.WriteString("# HELP scrybe_latency_seconds latency histogram\n")
			b.WriteString("# TYPE scrybe_latency_seconds histogram\n")
			for _, bucket := range h.Buckets {
				fmt.Fprintf(b, "scrybe_latency_seconds_bucket{endpoint=%q,le=\"%.3f\"} %d\n", h.Name, bucket.Le, bucket.Count)
			}
			fmt.Fprintf(b, "scrybe_latency_seconds_bucket{endpoint=%q,le=\"+Inf\"} %d\n", h.Name, h.Count)
			fmt.Fprintf(b, "scrybe_latency_seconds_sum{endpoint=%q} %.6f\n", h.Name, h.Sum)
			fmt.Fprintf(b, "scrybe_latency_seconds_count{endpoint=%q} %d\n", h.Name, h.Count)
			fmt.Fprintf(b, "scrybe_latency_p50_seconds{endpoint=%q} %.6f\n", h.Name, h.P50)
			fmt.Fprintf(b, "scrybe_latency_p95_seconds{endpoint=%q} %.6f\n", h.Name, h.P95)
			fmt.Fprintf(b, "scrybe_latency_p99_seconds{endpoint=%q} %.6f\n", h.Name, h.P99)
		}

		_, _ = w.Write([]byte(b.String()))
	}
}

func SortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

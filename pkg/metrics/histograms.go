package metrics

import (
	"sync"
	"time"
)

// defaultLatencyBuckets are the upper bounds, in seconds, used for
// request latency histograms.
var defaultLatencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
}

// confidenceBuckets cover the fingerprint confidence score range (0, 1].
var confidenceBuckets = []float64{
	0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0,
}

// HistogramBucket is a cumulative bucket: Count holds the number of
// observations at or below the Le bound.
type HistogramBucket struct {
	Le    float64
	Count int64
}

// Histogram accumulates observations into fixed cumulative buckets.
type Histogram struct {
	mu      sync.Mutex
	name    string
	buckets []HistogramBucket
	sum     float64
	count   int64
}

// NewHistogram builds a latency histogram with the default second-scale
// bounds.
func NewHistogram(name string) *Histogram {
	return NewValueHistogram(name, defaultLatencyBuckets)
}

// NewValueHistogram builds a histogram over caller-supplied bounds, for
// unitless values such as confidence scores.
func NewValueHistogram(name string, bounds []float64) *Histogram {
	buckets := make([]HistogramBucket, len(bounds))
	for i, le := range bounds {
		buckets[i] = HistogramBucket{Le: le}
	}
	return &Histogram{name: name, buckets: buckets}
}

// Observe records a duration in seconds.
func (h *Histogram) Observe(d time.Duration) {
	h.ObserveValue(d.Seconds())
}

// ObserveValue records a raw value.
func (h *Histogram) ObserveValue(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.count++
	for i := range h.buckets {
		if v <= h.buckets[i].Le {
			h.buckets[i].Count++
		}
	}
}

// percentileFrom estimates the p-th percentile from cumulative buckets.
// The estimate is the bound of the first bucket whose count reaches the
// target rank, so it is quantized to the bucket bounds.
func percentileFrom(buckets []HistogramBucket, count int64, p float64) float64 {
	if count == 0 || len(buckets) == 0 {
		return 0
	}
	target := int64(p * float64(count))
	for _, b := range buckets {
		if b.Count >= target {
			return b.Le
		}
	}
	return buckets[len(buckets)-1].Le
}

// Percentile estimates the p-th percentile, p in [0, 1].
func (h *Histogram) Percentile(p float64) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return percentileFrom(h.buckets, h.count, p)
}

// HistogramSnapshot is a point-in-time copy for exposition handlers.
type HistogramSnapshot struct {
	Name    string
	Buckets []HistogramBucket
	Sum     float64
	Count   int64
	P50     float64
	P95     float64
	P99     float64
}

func (h *Histogram) Snapshot() HistogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	buckets := make([]HistogramBucket, len(h.buckets))
	copy(buckets, h.buckets)
	return HistogramSnapshot{
		Name:    h.name,
		Buckets: buckets,
		Sum:     h.sum,
		Count:   h.count,
		P50:     percentileFrom(buckets, h.count, 0.50),
		P95:     percentileFrom(buckets, h.count, 0.95),
		P99:     percentileFrom(buckets, h.count, 0.99),
	}
}

// HistogramRegistry holds one latency histogram per route.
type HistogramRegistry struct {
	mu         sync.RWMutex
	histograms map[string]*Histogram
}

func NewHistogramRegistry() *HistogramRegistry {
	return &HistogramRegistry{histograms: map[string]*Histogram{}}
}

// Get returns the named histogram, creating it on first use.
func (r *HistogramRegistry) Get(name string) *Histogram {
	r.mu.RLock()
	h, ok := r.histograms[name]
	r.mu.RUnlock()
	if ok {
		return h
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok = r.histograms[name]; ok {
		return h
	}
	h = NewHistogram(name)
	r.histograms[name] = h
	return h
}

// ObserveDuration records a duration against the named histogram.
func (r *HistogramRegistry) ObserveDuration(name string, d time.Duration) {
	r.Get(name).Observe(d)
}

// Snapshots copies every histogram for exposition.
func (r *HistogramRegistry) Snapshots() []HistogramSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]HistogramSnapshot, 0, len(r.histograms))
	for _, h := range r.histograms {
		out = append(out, h.Snapshot())
	}
	return out
}

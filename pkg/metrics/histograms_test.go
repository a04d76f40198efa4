package metrics

import (
	"testing"
	"time"
)

func TestHistogram_Observe(t *testing.T) {
	h := NewHistogram("ingest")
	h.Observe(10 * time.Millisecond)
	h.Observe(50 * time.Millisecond)
	h.Observe(200 * time.Millisecond)
	h.Observe(500 * time.Millisecond)
	h.Observe(1 * time.Second)

	snap := h.Snapshot()
	if snap.Count != 5 {
		t.Errorf("count = %d, want 5", snap.Count)
	}
	if snap.Sum <= 0 {
		t.Error("sum should be positive")
	}
	if snap.Name != "ingest" {
		t.Errorf("name = %q, want %q", snap.Name, "ingest")
	}
}

func TestHistogram_Percentiles(t *testing.T) {
	h := NewHistogram("p_test")
	// Record 100 observations at 10ms each
	for i := 0; i < 100; i++ {
		h.Observe(10 * time.Millisecond)
	}
	p50 := h.Percentile(0.50)
	p95 := h.Percentile(0.95)
	p99 := h.Percentile(0.99)
	// All observations are 10ms = 0.01s, so they land in the 0.01 bucket
	if p50 > 0.025 {
		t.Errorf("p50 = %f, want <= 0.025", p50)
	}
	if p95 > 0.025 {
		t.Errorf("p95 = %f, want <= 0.025", p95)
	}
	if p99 > 0.025 {
		t.Errorf("p99 = %f, want <= 0.025", p99)
	}
}

func TestHistogram_Empty(t *testing.T) {
	h := NewHistogram("empty")
	if p := h.Percentile(0.50); p != 0 {
		t.Errorf("empty p50 = %f, want 0", p)
	}
	snap := h.Snapshot()
	if snap.Count != 0 {
		t.Errorf("count = %d, want 0", snap.Count)
	}
}

func TestValueHistogramBuckets(t *testing.T) {
	h := NewValueHistogram("confidence", confidenceBuckets)
	h.ObserveValue(0.05)
	h.ObserveValue(0.55)
	h.ObserveValue(1.0)

	snap := h.Snapshot()
	if snap.Count != 3 {
		t.Fatalf("count = %d, want 3", snap.Count)
	}
	for _, b := range snap.Buckets {
		if b.Le == 0.1 && b.Count != 1 {
			t.Errorf("le=0.1 count = %d, want 1", b.Count)
		}
		if b.Le == 1.0 && b.Count != 3 {
			t.Errorf("le=1.0 count = %d, want 3", b.Count)
		}
	}
}

func TestHistogramRegistry(t *testing.T) {
	reg := NewHistogramRegistry()
	reg.ObserveDuration("POST /v1/ingest", 100*time.Millisecond)
	reg.ObserveDuration("POST /v1/ingest", 200*time.Millisecond)
	reg.ObserveDuration("GET /v1/stream", 50*time.Millisecond)

	snaps := reg.Snapshots()
	if len(snaps) != 2 {
		t.Fatalf("len(snaps) = %d, want 2", len(snaps))
	}

	// Verify Get returns same histogram
	h1 := reg.Get("POST /v1/ingest")
	h2 := reg.Get("POST /v1/ingest")
	if h1 != h2 {
		t.Error("Get should return the same histogram instance")
	}
}

func TestHistogramSnapshot_Percentiles(t *testing.T) {
	h := NewHistogram("snap_test")
	// 90 fast + 10 slow
	for i := 0; i < 90; i++ {
		h.Observe(5 * time.Millisecond)
	}
	for i := 0; i < 10; i++ {
		h.Observe(2 * time.Second)
	}

	snap := h.Snapshot()
	if snap.Count != 100 {
		t.Fatalf("count = %d, want 100", snap.Count)
	}
	if snap.P50 > 0.01 {
		t.Errorf("p50 = %f, want <= 0.01", snap.P50)
	}
	if snap.P99 < 0.1 {
		t.Errorf("p99 = %f, want >= 0.1 (slow observations)", snap.P99)
	}
}

func TestRegistryObserveLatency(t *testing.T) {
	reg := NewRegistry()
	reg.ObserveLatency("GET /healthz", 10*time.Millisecond)
	reg.ObserveLatency("GET /healthz", 20*time.Millisecond)

	snap := reg.Snapshot()
	if len(snap.Histograms) != 1 {
		t.Fatalf("expected 1 histogram, got %d", len(snap.Histograms))
	}
	if snap.Histograms[0].Count != 2 {
		t.Errorf("histogram count = %d, want 2", snap.Histograms[0].Count)
	}
}

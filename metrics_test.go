package tokenguard

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricAccessIssued)

	if got := m.Value(MetricAccessIssued); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestMetricsEnabledIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricAccessIssued)
	m.Inc(MetricAccessIssued)
	m.Inc(MetricAccessIssued)

	if got := m.Value(MetricAccessIssued); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricVerifySuccess)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricVerifySuccess); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		700 * time.Millisecond,
	}

	for _, d := range observations {
		m.Observe(MetricVerifyLatency, d)
	}

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricVerifyLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}

	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
}

func TestMetricsObserveIgnoresCounters(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	m.Observe(MetricAccessIssued, time.Millisecond)

	snap := m.Snapshot()
	if _, ok := snap.Histograms[MetricAccessIssued]; ok {
		t.Fatal("counter ids must not accumulate histogram data")
	}
}

func TestMetricsSnapshotConsistency(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})
	m.Inc(MetricVerifySuccess)
	m.Inc(MetricVerifyRevoked)
	m.Inc(MetricVerifyRevoked)
	m.Observe(MetricVerifyLatency, 2*time.Millisecond)

	snap := m.Snapshot()

	if snap.Counters[MetricVerifySuccess] != 1 {
		t.Fatalf("expected MetricVerifySuccess=1 got %d", snap.Counters[MetricVerifySuccess])
	}
	if snap.Counters[MetricVerifyRevoked] != 2 {
		t.Fatalf("expected MetricVerifyRevoked=2 got %d", snap.Counters[MetricVerifyRevoked])
	}
	if len(snap.Histograms[MetricVerifyLatency]) != 8 {
		t.Fatalf("expected histogram length 8")
	}
	if snap.Histograms[MetricVerifyLatency][0] != 1 {
		t.Fatalf("expected first histogram bucket=1 got %d", snap.Histograms[MetricVerifyLatency][0])
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricAccessIssued)
	m.Observe(MetricVerifyLatency, time.Millisecond)

	if m.Enabled() || m.LatencyEnabled() {
		t.Fatal("nil metrics must report disabled")
	}
	snap := m.Snapshot()
	if len(snap.Counters) != 0 {
		t.Fatal("nil metrics snapshot must be empty")
	}
}

func TestVerifyLatencyObservedWhenEnabled(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.EnableLatencyHistograms = true

	manager, err := New().
		WithConfig(cfg).
		WithStore(newFakeStore()).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer manager.Close()

	ctx := requestContext("203.0.113.10", "Mozilla/5.0")
	pair, err := manager.IssueTokenPair(ctx, testUser)
	if err != nil {
		t.Fatalf("IssueTokenPair failed: %v", err)
	}
	if _, err := manager.VerifyToken(ctx, pair.AccessToken, "access"); err != nil {
		t.Fatalf("VerifyToken failed: %v", err)
	}

	buckets := manager.MetricsSnapshot().Histograms[MetricVerifyLatency]
	var total uint64
	for _, v := range buckets {
		total += v
	}
	if total != 1 {
		t.Fatalf("expected 1 latency observation, got %d", total)
	}
}

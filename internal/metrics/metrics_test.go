package metrics

import (
	"testing"
	"time"

	"moltguard/internal/pii"
)

func TestNew_StartTimeSet(t *testing.T) {
	before := time.Now()
	m := New()
	after := time.Now()

	if m.startTime.Before(before) || m.startTime.After(after) {
		t.Errorf("startTime %v not in expected range [%v, %v]", m.startTime, before, after)
	}
}

func TestZeroValue_SnapshotSafe(t *testing.T) {
	var m Metrics
	s := m.Snapshot()
	if s.Requests.Total != 0 {
		t.Errorf("expected 0 total requests, got %d", s.Requests.Total)
	}
}

func TestRequestCounters(t *testing.T) {
	m := New()
	m.RequestsTotal.Add(10)
	m.RequestsSanitized.Add(7)
	m.RequestsPassthrough.Add(2)
	m.StreamingDowngraded.Add(1)

	s := m.Snapshot()
	if s.Requests.Total != 10 {
		t.Errorf("Total: got %d, want 10", s.Requests.Total)
	}
	if s.Requests.Sanitized != 7 {
		t.Errorf("Sanitized: got %d, want 7", s.Requests.Sanitized)
	}
	if s.Requests.Passthrough != 2 {
		t.Errorf("Passthrough: got %d, want 2", s.Requests.Passthrough)
	}
	if s.Requests.StreamingDowngraded != 1 {
		t.Errorf("StreamingDowngraded: got %d, want 1", s.Requests.StreamingDowngraded)
	}
}

func TestErrorCounters(t *testing.T) {
	m := New()
	m.ErrorsUpstream.Add(3)
	m.ErrorsGatewayInternal.Add(2)
	m.ErrorsMissingBackend.Add(1)
	m.CanaryTrips.Add(4)
	m.BodyTooLarge.Add(1)

	s := m.Snapshot()
	if s.Errors.Upstream != 3 {
		t.Errorf("Upstream: got %d, want 3", s.Errors.Upstream)
	}
	if s.Errors.GatewayInternal != 2 {
		t.Errorf("GatewayInternal: got %d, want 2", s.Errors.GatewayInternal)
	}
	if s.Errors.MissingBackend != 1 {
		t.Errorf("MissingBackend: got %d, want 1", s.Errors.MissingBackend)
	}
	if s.Errors.CanaryTrips != 4 {
		t.Errorf("CanaryTrips: got %d, want 4", s.Errors.CanaryTrips)
	}
	if s.Errors.BodyTooLarge != 1 {
		t.Errorf("BodyTooLarge: got %d, want 1", s.Errors.BodyTooLarge)
	}
}

func TestRecordRedactions_TotalsAndByCategory(t *testing.T) {
	m := New()
	m.RecordRedactions(3, map[pii.Category]uint32{
		pii.SSN:   2,
		pii.Email: 1,
	})

	s := m.Snapshot()
	if s.Redactions.Total != 3 {
		t.Errorf("Total: got %d, want 3", s.Redactions.Total)
	}
	if s.Redactions.ByCategory[string(pii.SSN)] != 2 {
		t.Errorf("ssn: got %d, want 2", s.Redactions.ByCategory[string(pii.SSN)])
	}
	if s.Redactions.ByCategory[string(pii.Email)] != 1 {
		t.Errorf("email: got %d, want 1", s.Redactions.ByCategory[string(pii.Email)])
	}
}

func TestRecordRedactions_ZeroCategoryOmittedFromSnapshot(t *testing.T) {
	m := New()
	s := m.Snapshot()
	if _, present := s.Redactions.ByCategory[string(pii.SSN)]; present {
		t.Error("category with zero count should be absent from snapshot")
	}
}

func TestVaultCounters(t *testing.T) {
	m := New()
	m.RecordVaultStore()
	m.RecordVaultStore()
	m.IncVaultEvictions()
	m.IncVaultPurged(2)

	s := m.Snapshot()
	if s.Vault.Stored != 2 {
		t.Errorf("Stored: got %d, want 2", s.Vault.Stored)
	}
	if s.Vault.Evictions != 1 {
		t.Errorf("Evictions: got %d, want 1", s.Vault.Evictions)
	}
	if s.Vault.Purged != 2 {
		t.Errorf("Purged: got %d, want 2", s.Vault.Purged)
	}
}

func TestRecordSanitizeLatency_SingleSample(t *testing.T) {
	m := New()
	m.RecordSanitizeLatency(100 * time.Millisecond)

	s := m.Snapshot()
	if s.Latency.SanitizeMs.Count != 1 {
		t.Errorf("Count: got %d, want 1", s.Latency.SanitizeMs.Count)
	}
	if s.Latency.SanitizeMs.MinMs < 90 || s.Latency.SanitizeMs.MinMs > 110 {
		t.Errorf("MinMs: got %f, want ~100", s.Latency.SanitizeMs.MinMs)
	}
}

func TestRecordUpstreamLatency_MinMaxMean(t *testing.T) {
	m := New()
	m.RecordUpstreamLatency(50 * time.Millisecond)
	m.RecordUpstreamLatency(150 * time.Millisecond)
	m.RecordUpstreamLatency(100 * time.Millisecond)

	s := m.Snapshot()
	ls := s.Latency.UpstreamMs
	if ls.Count != 3 {
		t.Errorf("Count: got %d, want 3", ls.Count)
	}
	if ls.MinMs > 60 {
		t.Errorf("MinMs too high: %f", ls.MinMs)
	}
	if ls.MaxMs < 140 {
		t.Errorf("MaxMs too low: %f", ls.MaxMs)
	}
	if ls.MeanMs < 90 || ls.MeanMs > 110 {
		t.Errorf("MeanMs: got %f, want ~100", ls.MeanMs)
	}
}

func TestSnapshotLatency_EmptyIsZeroValue(t *testing.T) {
	m := New()
	s := m.Snapshot()
	if s.Latency.SanitizeMs.Count != 0 {
		t.Errorf("empty sanitize latency count should be 0")
	}
	if s.Latency.UpstreamMs.Count != 0 {
		t.Errorf("empty upstream latency count should be 0")
	}
}

func TestSnapshot_UptimePositive(t *testing.T) {
	m := New()
	time.Sleep(5 * time.Millisecond)
	s := m.Snapshot()
	if s.UptimeSecs <= 0 {
		t.Errorf("UptimeSecs should be positive, got %f", s.UptimeSecs)
	}
}

func TestRound2(t *testing.T) {
	cases := []struct {
		input float64
		want  float64
	}{
		{1.236, 1.24},
		{1.234, 1.23},
		{100.0, 100.0},
		{0.0, 0.0},
	}
	for _, c := range cases {
		got := round2(c.input)
		if got != c.want {
			t.Errorf("round2(%f) = %f, want %f", c.input, got, c.want)
		}
	}
}

func TestLatencyStats_Record(t *testing.T) {
	var s latencyStats
	s.record(10)
	s.record(20)
	s.record(15)

	snap := s.snapshot()
	if snap.Count != 3 {
		t.Errorf("Count: got %d, want 3", snap.Count)
	}
	if snap.MinMs != 10 {
		t.Errorf("MinMs: got %f, want 10", snap.MinMs)
	}
	if snap.MaxMs != 20 {
		t.Errorf("MaxMs: got %f, want 20", snap.MaxMs)
	}
	if snap.MeanMs != 15 {
		t.Errorf("MeanMs: got %f, want 15", snap.MeanMs)
	}
}

func TestLatencyStats_Empty(t *testing.T) {
	var s latencyStats
	snap := s.snapshot()
	if snap.Count != 0 || snap.MinMs != 0 || snap.MaxMs != 0 || snap.MeanMs != 0 {
		t.Errorf("empty stats snapshot should be zero, got %+v", snap)
	}
}

func TestHandler_NotNil(t *testing.T) {
	m := New()
	if m.Handler() == nil {
		t.Error("Handler() should never return nil")
	}
}

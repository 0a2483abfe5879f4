// Package metrics provides lightweight, lock-minimal performance counters
// for the gateway.
//
// Counters use sync/atomic so hot paths (request handling, sanitization)
// incur no mutex contention. Latency statistics use a single mutex per
// dimension; they are updated at most once per request. Every atomic counter
// field is mirrored into a Prometheus registry, exposed via Handler().
// Per-category redaction counts and latency statistics appear only in the
// plain JSON Snapshot.
package metrics

import (
	"math"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"moltguard/internal/pii"
)

// Metrics holds all runtime counters for a running gateway instance.
type Metrics struct {
	RequestsTotal       atomic.Int64
	RequestsSanitized   atomic.Int64
	RequestsPassthrough atomic.Int64
	StreamingDowngraded atomic.Int64

	ErrorsUpstream        atomic.Int64
	ErrorsGatewayInternal atomic.Int64
	ErrorsMissingBackend  atomic.Int64
	CanaryTrips           atomic.Int64
	BodyTooLarge          atomic.Int64

	RedactionsTotal atomic.Int64

	VaultEntriesStored atomic.Int64
	VaultEvictions     atomic.Int64
	VaultPurged        atomic.Int64

	categoryMu sync.Mutex
	byCategory map[pii.Category]*atomic.Int64

	sanitizeMu   sync.Mutex
	sanitizeStat latencyStats

	upstreamMu   sync.Mutex
	upstreamStat latencyStats

	startTime time.Time
	reg       *prometheus.Registry
	promCtr   map[string]prometheus.Counter
}

// New returns a Metrics with a fresh Prometheus registry and the start time
// recorded.
func New() *Metrics {
	m := &Metrics{
		byCategory: make(map[pii.Category]*atomic.Int64, len(pii.AllCategories)),
		startTime:  time.Now(),
		reg:        prometheus.NewRegistry(),
		promCtr:    make(map[string]prometheus.Counter),
	}
	for _, c := range pii.AllCategories {
		m.byCategory[c] = &atomic.Int64{}
	}
	m.registerPrometheus()
	return m
}

func (m *Metrics) registerPrometheus() {
	counter := func(name, help string) prometheus.Counter {
		c := promauto.With(m.reg).NewCounter(prometheus.CounterOpts{
			Namespace: "moltguard",
			Name:      name,
			Help:      help,
		})
		m.promCtr[name] = c
		return c
	}
	counter("requests_total", "Total requests handled by the gateway.")
	counter("requests_sanitized_total", "Requests whose body required redaction.")
	counter("requests_passthrough_total", "Requests with no detected PII.")
	counter("streaming_downgraded_total", "Streaming requests forced to buffered mode.")
	counter("errors_upstream_total", "Non-2xx responses relayed from upstream.")
	counter("errors_gateway_internal_total", "Internal gateway errors.")
	counter("errors_missing_backend_total", "Requests routed to an unconfigured backend.")
	counter("canary_trips_total", "Outbound requests aborted by the canary guard.")
	counter("body_too_large_total", "Requests rejected for exceeding the body size limit.")
	counter("redactions_total", "Total PII values redacted.")
	counter("vault_entries_stored_total", "Vault entries newly stored.")
	counter("vault_evictions_total", "Vault entries evicted over capacity.")
	counter("vault_purged_total", "Vault entries purged on expiry.")

	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "moltguard",
		Name:      "uptime_seconds",
		Help:      "Seconds since the gateway started.",
	}, func() float64 { return time.Since(m.startTime).Seconds() })
}

// Handler returns the Prometheus scrape endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) incr(name string, counter *atomic.Int64) {
	counter.Add(1)
	if c, ok := m.promCtr[name]; ok {
		c.Inc()
	}
}

func (m *Metrics) IncRequestsTotal()       { m.incr("requests_total", &m.RequestsTotal) }
func (m *Metrics) IncRequestsSanitized()   { m.incr("requests_sanitized_total", &m.RequestsSanitized) }
func (m *Metrics) IncRequestsPassthrough() { m.incr("requests_passthrough_total", &m.RequestsPassthrough) }
func (m *Metrics) IncStreamingDowngraded() { m.incr("streaming_downgraded_total", &m.StreamingDowngraded) }
func (m *Metrics) IncErrorsUpstream()      { m.incr("errors_upstream_total", &m.ErrorsUpstream) }
func (m *Metrics) IncErrorsGatewayInternal() {
	m.incr("errors_gateway_internal_total", &m.ErrorsGatewayInternal)
}
func (m *Metrics) IncErrorsMissingBackend() {
	m.incr("errors_missing_backend_total", &m.ErrorsMissingBackend)
}
func (m *Metrics) IncCanaryTrips()  { m.incr("canary_trips_total", &m.CanaryTrips) }
func (m *Metrics) IncBodyTooLarge() { m.incr("body_too_large_total", &m.BodyTooLarge) }
func (m *Metrics) IncVaultEvictions() {
	m.incr("vault_evictions_total", &m.VaultEvictions)
}
func (m *Metrics) IncVaultPurged(n int) {
	for i := 0; i < n; i++ {
		m.incr("vault_purged_total", &m.VaultPurged)
	}
}

// RecordRedactions adds n to the running redaction total and bumps each
// category's counter by the per-call delta given in byCategory (the
// session's post-call counters, from which the caller has already
// subtracted the pre-call values).
func (m *Metrics) RecordRedactions(n int, byCategory map[pii.Category]uint32) {
	if n > 0 {
		m.RedactionsTotal.Add(int64(n))
		if c, ok := m.promCtr["redactions_total"]; ok {
			c.Add(float64(n))
		}
	}
	m.categoryMu.Lock()
	defer m.categoryMu.Unlock()
	for cat, delta := range byCategory {
		if delta == 0 {
			continue
		}
		counter, ok := m.byCategory[cat]
		if !ok {
			counter = &atomic.Int64{}
			m.byCategory[cat] = counter
		}
		counter.Add(int64(delta))
	}
}

// RecordVaultStore increments the stored-entries counter. Evictions are
// counted separately through IncVaultEvictions.
func (m *Metrics) RecordVaultStore() {
	m.VaultEntriesStored.Add(1)
	if c, ok := m.promCtr["vault_entries_stored_total"]; ok {
		c.Inc()
	}
}

// RecordSanitizeLatency records the duration of one Sanitizer.Sanitize call.
func (m *Metrics) RecordSanitizeLatency(d time.Duration) {
	m.sanitizeMu.Lock()
	m.sanitizeStat.record(float64(d.Microseconds()) / 1000.0)
	m.sanitizeMu.Unlock()
}

// RecordUpstreamLatency records the round-trip time to the upstream LLM API.
func (m *Metrics) RecordUpstreamLatency(d time.Duration) {
	m.upstreamMu.Lock()
	m.upstreamStat.record(float64(d.Microseconds()) / 1000.0)
	m.upstreamMu.Unlock()
}

// Snapshot returns a point-in-time copy of all metrics, safe for JSON
// encoding. The management server's /status route does not include it.
func (m *Metrics) Snapshot() Snapshot {
	m.sanitizeMu.Lock()
	sanitize := m.sanitizeStat.snapshot()
	m.sanitizeMu.Unlock()

	m.upstreamMu.Lock()
	upstream := m.upstreamStat.snapshot()
	m.upstreamMu.Unlock()

	m.categoryMu.Lock()
	byCategory := make(map[string]int64, len(m.byCategory))
	for cat, counter := range m.byCategory {
		if v := counter.Load(); v > 0 {
			byCategory[string(cat)] = v
		}
	}
	m.categoryMu.Unlock()

	return Snapshot{
		Requests: RequestSnapshot{
			Total:               m.RequestsTotal.Load(),
			Sanitized:           m.RequestsSanitized.Load(),
			Passthrough:         m.RequestsPassthrough.Load(),
			StreamingDowngraded: m.StreamingDowngraded.Load(),
		},
		Errors: ErrorSnapshot{
			Upstream:        m.ErrorsUpstream.Load(),
			GatewayInternal: m.ErrorsGatewayInternal.Load(),
			MissingBackend:  m.ErrorsMissingBackend.Load(),
			CanaryTrips:     m.CanaryTrips.Load(),
			BodyTooLarge:    m.BodyTooLarge.Load(),
		},
		Redactions: RedactionSnapshot{
			Total:      m.RedactionsTotal.Load(),
			ByCategory: byCategory,
		},
		Vault: VaultSnapshot{
			Stored:    m.VaultEntriesStored.Load(),
			Evictions: m.VaultEvictions.Load(),
			Purged:    m.VaultPurged.Load(),
		},
		Latency: LatencyGroup{
			SanitizeMs: sanitize,
			UpstreamMs: upstream,
		},
		UptimeSecs: time.Since(m.startTime).Seconds(),
	}
}

// --- JSON-serialisable snapshot types ---

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Requests   RequestSnapshot   `json:"requests"`
	Errors     ErrorSnapshot     `json:"errors"`
	Redactions RedactionSnapshot `json:"redactions"`
	Vault      VaultSnapshot     `json:"vault"`
	Latency    LatencyGroup      `json:"latency"`
	UptimeSecs float64           `json:"uptimeSecs"`
}

// RequestSnapshot holds request-level counters.
type RequestSnapshot struct {
	Total               int64 `json:"total"`
	Sanitized           int64 `json:"sanitized"`
	Passthrough         int64 `json:"passthrough"`
	StreamingDowngraded int64 `json:"streamingDowngraded"`
}

// ErrorSnapshot holds error counters.
type ErrorSnapshot struct {
	Upstream        int64 `json:"upstream"`
	GatewayInternal int64 `json:"gatewayInternal"`
	MissingBackend  int64 `json:"missingBackend"`
	CanaryTrips     int64 `json:"canaryTrips"`
	BodyTooLarge    int64 `json:"bodyTooLarge"`
}

// RedactionSnapshot holds PII redaction volume counters.
type RedactionSnapshot struct {
	Total      int64            `json:"total"`
	ByCategory map[string]int64 `json:"byCategory"`
}

// VaultSnapshot holds token vault activity counters.
type VaultSnapshot struct {
	Stored    int64 `json:"stored"`
	Evictions int64 `json:"evictions"`
	Purged    int64 `json:"purged"`
}

// LatencyGroup groups the two latency dimensions.
type LatencyGroup struct {
	SanitizeMs LatencySnapshot `json:"sanitizeMs"`
	UpstreamMs LatencySnapshot `json:"upstreamMs"`
}

// LatencySnapshot is a min/mean/max summary for one latency dimension.
type LatencySnapshot struct {
	Count  int64   `json:"count"`
	MinMs  float64 `json:"minMs"`
	MeanMs float64 `json:"meanMs"`
	MaxMs  float64 `json:"maxMs"`
}

// --- internal accumulator ---

type latencyStats struct {
	count int64
	sum   float64
	min   float64
	max   float64
}

func (s *latencyStats) record(ms float64) {
	s.count++
	s.sum += ms
	if s.count == 1 || ms < s.min {
		s.min = ms
	}
	if ms > s.max {
		s.max = ms
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func (s *latencyStats) snapshot() LatencySnapshot {
	if s.count == 0 {
		return LatencySnapshot{}
	}
	return LatencySnapshot{
		Count:  s.count,
		MinMs:  round2(s.min),
		MeanMs: round2(s.sum / float64(s.count)),
		MaxMs:  round2(s.max),
	}
}

package tsauth

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one in-process counter.
type MetricID uint16

const (
	MetricOTPRequest MetricID = iota
	MetricOTPRequestRejected
	MetricOTPVerifySuccess
	MetricOTPVerifyFailure
	MetricOTPExpired
	MetricOTPAttemptsExceeded
	MetricOTPSwept
	MetricSignupSuccess
	MetricSignupDuplicate
	MetricSignupUnverified
	MetricLoginSuccess
	MetricLoginFailure
	MetricExternalProvisionCreated
	MetricExternalProvisionExisting
	MetricExternalProvisionRace
	MetricGateAuthenticated
	MetricGateInvalidToken
	MetricGateStaleUser
	MetricLogout
	// MetricValidateLatency is the only histogram; it times Authenticate.
	MetricValidateLatency
	metricIDCount
)

// latencyBoundsMs are the inclusive upper bounds of every bucket but the
// last, which catches everything slower.
var latencyBoundsMs = [...]int64{5, 10, 25, 50, 100, 250, 500}

const histBucketCount = len(latencyBoundsMs) + 1

// paddedCounter keeps each counter on its own cache line.
type paddedCounter struct {
	atomic.Uint64
	_ [56]byte
}

// Metrics holds lock-free counters and the Authenticate latency histogram.
// A nil or disabled Metrics ignores every write.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	latency       [histBucketCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns a Metrics configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter for id.
func (m *Metrics) Inc(id MetricID) {
	m.Add(id, 1)
}

// Add adds n to the counter for id. The histogram id has no counter.
func (m *Metrics) Add(id MetricID, n uint64) {
	if !m.Enabled() || id >= MetricValidateLatency || n == 0 {
		return
	}
	m.counters[id].Add(n)
}

// Observe records d against MetricValidateLatency; other ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() || id != MetricValidateLatency {
		return
	}
	m.latency[bucketIndex(d)].Add(1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= MetricValidateLatency {
		return 0
	}
	return m.counters[id].Load()
}

// Snapshot copies every counter and, when latency is enabled, the histogram buckets.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return s
	}

	for id := MetricID(0); id < MetricValidateLatency; id++ {
		s.Counters[id] = m.counters[id].Load()
	}
	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = m.latency[i].Load()
		}
		s.Histograms[MetricValidateLatency] = buckets
	}
	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()
	for i, bound := range latencyBoundsMs {
		if ms <= bound {
			return i
		}
	}
	return len(latencyBoundsMs)
}

package authgate

import (
	"sync/atomic"
	"time"
)

// MetricID defines a public type used by authgate APIs.
//
// MetricID instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricID uint16

const (
	// MetricDeviceTokenIssued is an exported constant or variable used by the authentication engine.
	MetricDeviceTokenIssued MetricID = iota
	// MetricSmsCodeSent is an exported constant or variable used by the authentication engine.
	MetricSmsCodeSent
	// MetricSmsCodeReused is an exported constant or variable used by the authentication engine.
	MetricSmsCodeReused
	// MetricSmsProviderError is an exported constant or variable used by the authentication engine.
	MetricSmsProviderError
	// MetricPhoneBanned is an exported constant or variable used by the authentication engine.
	MetricPhoneBanned
	// MetricPhoneClaimConflict is an exported constant or variable used by the authentication engine.
	MetricPhoneClaimConflict
	// MetricSessionIssued is an exported constant or variable used by the authentication engine.
	MetricSessionIssued
	// MetricSessionReissued is an exported constant or variable used by the authentication engine.
	MetricSessionReissued
	// MetricSmsCodeIncorrect is an exported constant or variable used by the authentication engine.
	MetricSmsCodeIncorrect
	// MetricIdentityCreated is an exported constant or variable used by the authentication engine.
	MetricIdentityCreated
	// MetricIdentityResolved is an exported constant or variable used by the authentication engine.
	MetricIdentityResolved
	// MetricGoogleSecretIssued is an exported constant or variable used by the authentication engine.
	MetricGoogleSecretIssued
	// MetricGoogleEnrolled is an exported constant or variable used by the authentication engine.
	MetricGoogleEnrolled
	// MetricGoogleCodeIncorrect is an exported constant or variable used by the authentication engine.
	MetricGoogleCodeIncorrect
	// MetricGoogleBanned is an exported constant or variable used by the authentication engine.
	MetricGoogleBanned
	// MetricGoogleDisabled is an exported constant or variable used by the authentication engine.
	MetricGoogleDisabled
	// MetricEmailSecretIssued is an exported constant or variable used by the authentication engine.
	MetricEmailSecretIssued
	// MetricEmailEnrolled is an exported constant or variable used by the authentication engine.
	MetricEmailEnrolled
	// MetricEmailSecretExpired is an exported constant or variable used by the authentication engine.
	MetricEmailSecretExpired
	// MetricEmailCodeSent is an exported constant or variable used by the authentication engine.
	MetricEmailCodeSent
	// MetricEmailCodeIncorrect is an exported constant or variable used by the authentication engine.
	MetricEmailCodeIncorrect
	// MetricEmailBanned is an exported constant or variable used by the authentication engine.
	MetricEmailBanned
	// MetricEmailDisabled is an exported constant or variable used by the authentication engine.
	MetricEmailDisabled
	// MetricSensitiveIssued is an exported constant or variable used by the authentication engine.
	MetricSensitiveIssued
	// MetricTokenRejected is an exported constant or variable used by the authentication engine.
	MetricTokenRejected
	// MetricScopeRejected is an exported constant or variable used by the authentication engine.
	MetricScopeRejected
	// MetricEventPublished is an exported constant or variable used by the authentication engine.
	MetricEventPublished
	// MetricEventPublishFailure is an exported constant or variable used by the authentication engine.
	MetricEventPublishFailure
	// MetricVerifyLatency is an exported constant or variable used by the authentication engine.
	MetricVerifyLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics defines a public type used by authgate APIs.
//
// Metrics instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot defines a public type used by authgate APIs.
//
// MetricsSnapshot instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics describes the newmetrics operation and its observable behavior.
//
// NewMetrics may return an error when input validation, dependency calls, or security checks fail.
// NewMetrics does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled describes the enabled operation and its observable behavior.
//
// Enabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled describes the latencyenabled operation and its observable behavior.
//
// LatencyEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc describes the inc operation and its observable behavior.
//
// Inc does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe describes the observe operation and its observable behavior.
//
// Observe does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricVerifyLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value describes the value operation and its observable behavior.
//
// Value does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot describes the snapshot operation and its observable behavior.
//
// Snapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricVerifyLatency].buckets[i])
		}
		s.Histograms[MetricVerifyLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}

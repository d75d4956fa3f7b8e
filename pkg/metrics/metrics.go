package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "flagsync"

// Sync outcomes used as the "outcome" label.
const (
	OutcomeApplied   = "applied"
	OutcomeUnchanged = "unchanged"
	OutcomeStale     = "stale"
	OutcomeError     = "error"
)

// Metrics exports Prometheus collectors for sync cycles, evaluations and the
// result cache. A nil *Metrics is valid and records nothing.
type Metrics struct {
	syncs        *prometheus.CounterVec
	syncDuration *prometheus.HistogramVec
	evaluations  *prometheus.CounterVec
	cacheHits    prometheus.Counter
	cacheMisses  prometheus.Counter
	failures     prometheus.Gauge
	flags        prometheus.Gauge
}

// New creates the collectors and registers them with reg
// (nil => prometheus.DefaultRegisterer). constLabels may be nil.
func New(reg prometheus.Registerer, constLabels prometheus.Labels) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "sync_total",
			Help:        "Sync cycles by fetch mode and outcome",
			ConstLabels: constLabels,
		}, []string{"mode", "outcome"}),
		syncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "sync_duration_seconds",
			Help:        "Duration of sync fetches by mode",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"mode"}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "evaluations_total",
			Help:        "Flag evaluations by reason",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "result_cache_hits_total",
			Help:        "Evaluation result cache hits",
			ConstLabels: constLabels,
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "result_cache_misses_total",
			Help:        "Evaluation result cache misses",
			ConstLabels: constLabels,
		}),
		failures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "poller_failures",
			Help:        "Consecutive failed poll cycles",
			ConstLabels: constLabels,
		}),
		flags: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "flags",
			Help:        "Number of flags in the active configuration",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(m.syncs, m.syncDuration, m.evaluations, m.cacheHits, m.cacheMisses, m.failures, m.flags)
	return m
}

// Sync records one fetch of the given mode.
func (m *Metrics) Sync(mode, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.syncs.WithLabelValues(mode, outcome).Inc()
	m.syncDuration.WithLabelValues(mode).Observe(d.Seconds())
}

func (m *Metrics) Evaluation(reason string) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(reason).Inc()
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

// PollerFailures sets the current count of consecutive failures.
func (m *Metrics) PollerFailures(n int) {
	if m == nil {
		return
	}
	m.failures.Set(float64(n))
}

// Flags sets the size of the active flag set.
func (m *Metrics) Flags(n int) {
	if m == nil {
		return
	}
	m.flags.Set(float64(n))
}

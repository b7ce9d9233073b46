package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports engine counters to Prometheus. A nil *Metrics records nothing.
type Metrics struct {
	registerer prometheus.Registerer

	checks          *prometheus.CounterVec
	persistFailures prometheus.Counter
	persistDrops    prometheus.Counter
	cleanupRemoved  prometheus.Counter
}

// NewMetrics creates and registers the rate limiter collectors on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		registerer: reg,
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_checks_total",
			Help: "Admission checks by policy, strategy, tier and result.",
		}, []string{"policy", "strategy", "tier", "result"}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ratelimit_persist_failures_total",
			Help: "Durable store writes that returned an error.",
		}),
		persistDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ratelimit_persist_dropped_total",
			Help: "Durable store writes dropped because the queue was full.",
		}),
		cleanupRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ratelimit_cleanup_removed_total",
			Help: "Idle records removed by cleanup.",
		}),
	}

	reg.MustRegister(m.checks, m.persistFailures, m.persistDrops, m.cleanupRemoved)
	return m
}

// registerRecordGauge exposes the in-memory record count, read at scrape time
func (m *Metrics) registerRecordGauge(fn func() float64) {
	if m == nil {
		return
	}
	gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "ratelimit_records",
		Help: "Rate limit records held in memory.",
	}, fn)
	if err := m.registerer.Register(gauge); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			panic(err)
		}
	}
}

func (m *Metrics) observeCheck(policy string, strategy Strategy, tier Tier, result string) {
	if m == nil {
		return
	}
	m.checks.WithLabelValues(policy, string(strategy), string(tier), result).Inc()
}

func (m *Metrics) persistFailed() {
	if m == nil {
		return
	}
	m.persistFailures.Inc()
}

func (m *Metrics) persistDropped() {
	if m == nil {
		return
	}
	m.persistDrops.Inc()
}

func (m *Metrics) cleanedUp(n int) {
	if m == nil || n == 0 {
		return
	}
	m.cleanupRemoved.Add(float64(n))
}

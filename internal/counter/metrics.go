package counter

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Decision results used as the "result" label.
const (
	resultPass       = "pass"
	resultDeny       = "deny"
	resultNoop       = "noop"
	resultCorrection = "correction"
)

// Store operations used as the "op" label.
const (
	opRead        = "read"
	opApply       = "apply"
	opApplyAtomic = "apply_atomic"
)

// Metrics holds the rate limiter collectors. A nil *Metrics records nothing.
type Metrics struct {
	decisions     *prometheus.CounterVec
	storeDuration *prometheus.HistogramVec
	storeErrors   *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg when reg is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smaug_counter_decisions_total",
			Help: "Check-and-increment outcomes by result",
		}, []string{"result"}),
		storeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "smaug_counter_store_duration_seconds",
			Help:    "Latency of counter store round trips",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smaug_counter_store_errors_total",
			Help: "Failed counter store round trips by operation",
		}, []string{"op"}),
	}
	if reg != nil {
		reg.MustRegister(m.decisions, m.storeDuration, m.storeErrors)
	}
	return m
}

func (m *Metrics) decision(result string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(result).Inc()
}

func (m *Metrics) observeStore(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.storeDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		m.storeErrors.WithLabelValues(op).Inc()
	}
}

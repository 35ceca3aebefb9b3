package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	fallbackAttempts  *prometheus.CounterVec
	fetchDuration     *prometheus.HistogramVec
	providerAvailable *prometheus.GaugeVec
	chainsExhausted   *prometheus.CounterVec
	reconcileTotal    *prometheus.CounterVec
	reconcileScore    prometheus.Histogram
	probeDepth        prometheus.Histogram
}

// Attempt outcomes recorded per provider per operation.
const (
	OutcomeOK      = "ok"
	OutcomeEmpty   = "empty"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		fallbackAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketmux_fallback_attempts_total",
				Help: "Provider attempts made by the fallback chain",
			},
			[]string{"op", "provider", "outcome"},
		),

		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketmux_fetch_duration_seconds",
				Help:    "Duration of individual provider calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op", "provider"},
		),

		providerAvailable: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketmux_provider_available",
				Help: "Whether a provider reported itself available on the last check (1/0)",
			},
			[]string{"provider"},
		),

		chainsExhausted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketmux_chains_exhausted_total",
				Help: "Fallback chains that ran out of providers without a result",
			},
			[]string{"op"},
		),

		reconcileTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketmux_reconcile_total",
				Help: "Consistency reconciliations by recommended action",
			},
			[]string{"action"},
		),

		reconcileScore: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "marketmux_reconcile_confidence",
				Help:    "Confidence scores produced by reconciliation",
				Buckets: []float64{0, 0.1, 0.25, 0.5, 0.6, 0.75, 0.9, 0.95, 0.99, 1},
			},
		),

		probeDepth: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "marketmux_probe_depth_days",
				Help:    "How many days back the trading-day probe had to walk",
				Buckets: []float64{0, 1, 2, 3, 4, 5, 7, 10},
			},
		),
	}

	reg.MustRegister(r.fallbackAttempts)
	reg.MustRegister(r.fetchDuration)
	reg.MustRegister(r.providerAvailable)
	reg.MustRegister(r.chainsExhausted)
	reg.MustRegister(r.reconcileTotal)
	reg.MustRegister(r.reconcileScore)
	reg.MustRegister(r.probeDepth)

	return r
}

// RecordAttempt records one provider attempt inside a fallback chain.
func (r *Registry) RecordAttempt(op, provider, outcome string, duration float64) {
	r.fallbackAttempts.WithLabelValues(op, provider, outcome).Inc()
	r.fetchDuration.WithLabelValues(op, provider).Observe(duration)
}

// SetProviderAvailable records the result of a freshness check.
func (r *Registry) SetProviderAvailable(provider string, available bool) {
	v := 0.0
	if available {
		v = 1.0
	}
	r.providerAvailable.WithLabelValues(provider).Set(v)
}

// RecordExhausted records a chain that produced no result.
func (r *Registry) RecordExhausted(op string) {
	r.chainsExhausted.WithLabelValues(op).Inc()
}

// RecordReconcile records a reconciliation outcome.
func (r *Registry) RecordReconcile(action string, confidence float64) {
	r.reconcileTotal.WithLabelValues(action).Inc()
	r.reconcileScore.Observe(confidence)
}

// RecordProbeDepth records how far back a trading-day probe walked.
func (r *Registry) RecordProbeDepth(days int) {
	r.probeDepth.Observe(float64(days))
}

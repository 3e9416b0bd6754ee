package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "calroute"

// PrometheusService exports routing metrics as Prometheus collectors.
type PrometheusService struct {
	decisions     *prometheus.CounterVec
	decisionTime  *prometheus.HistogramVec
	signals       *prometheus.CounterVec
	signalLatency *prometheus.HistogramVec
	fallbacks     *prometheus.CounterVec
}

// NewPrometheusService creates the collectors and registers them with reg.
// Registration errors (e.g. duplicate registration) are returned.
func NewPrometheusService(reg prometheus.Registerer) (*PrometheusService, error) {
	s := &PrometheusService{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "decisions_total",
			Help:      "Routing decisions by action, winning source and confidence tier.",
		}, []string{"action", "source", "tier"}),
		decisionTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "decision_duration_seconds",
			Help:      "End-to-end routing latency.",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2, 3, 5},
		}, []string{"tier"}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "signals_total",
			Help:      "Signal collector runs by source and outcome.",
		}, []string{"source", "outcome"}),
		signalLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "signal_duration_seconds",
			Help:      "Signal collector latency by source.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 3},
		}, []string{"source"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Local recoveries from unavailable or malformed upstream output.",
		}, []string{"component", "reason"}),
	}

	for _, c := range []prometheus.Collector{s.decisions, s.decisionTime, s.signals, s.signalLatency, s.fallbacks} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *PrometheusService) RecordDecision(action, source, tier string, latency time.Duration) {
	s.decisions.WithLabelValues(action, source, tier).Inc()
	s.decisionTime.WithLabelValues(tier).Observe(latency.Seconds())
}

func (s *PrometheusService) RecordSignal(source string, latency time.Duration, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "absent"
	}
	s.signals.WithLabelValues(source, outcome).Inc()
	s.signalLatency.WithLabelValues(source).Observe(latency.Seconds())
}

func (s *PrometheusService) RecordFallback(component, reason string) {
	s.fallbacks.WithLabelValues(component, reason).Inc()
}

var _ MetricsService = (*PrometheusService)(nil)

package infra

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Misaka-0x447f/project-DaBES/internal/domain"
)

// PrometheusMetrics implements domain.MetricsRecorder with Prometheus collectors.
type PrometheusMetrics struct {
	outcomes     *prometheus.CounterVec
	actionCost   *prometheus.HistogramVec
	ticks        prometheus.Counter
	probeLevel   prometheus.Gauge
	threatLevel  prometheus.Gauge
	alarm        prometheus.Gauge
	terminations *prometheus.CounterVec
}

// NewPrometheusMetrics registers the engine collectors with reg.
// Pass prometheus.DefaultRegisterer to expose them process-wide.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		// Labels: action, status (executed, deferred, rejected), result (success, failure, none)
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dabes",
			Subsystem: "engine",
			Name:      "outcomes_total",
			Help:      "Resolved intents by action and status",
		}, []string{"action", "status", "result"}),

		actionCost: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dabes",
			Subsystem: "engine",
			Name:      "action_cost",
			Help:      "Processor time paid per executed action",
			Buckets:   []float64{0.5, 1, 2, 3, 5, 8, 13, 21},
		}, []string{"action"}),

		ticks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dabes",
			Subsystem: "engine",
			Name:      "ticks_total",
			Help:      "Ticks resolved",
		}),

		probeLevel: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "dabes",
			Subsystem: "threat",
			Name:      "probe_level",
			Help:      "Probe level after the last tick",
		}),

		threatLevel: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "dabes",
			Subsystem: "threat",
			Name:      "threat_level",
			Help:      "Threat level after the last tick",
		}),

		// -1 while no alarm is running.
		alarm: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "dabes",
			Subsystem: "threat",
			Name:      "alarm_countdown",
			Help:      "Ticks left on the alarm countdown",
		}),

		terminations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dabes",
			Subsystem: "engine",
			Name:      "terminations_total",
			Help:      "Finished runs by reason",
		}, []string{"reason"}),
	}
}

// ObserveOutcome counts one resolved intent.
func (m *PrometheusMetrics) ObserveOutcome(o domain.Outcome) {
	result := "none"
	if o.Status == domain.StatusExecuted {
		result = "failure"
		if o.Success {
			result = "success"
		}
	}
	m.outcomes.WithLabelValues(string(o.Action), string(o.Status), result).Inc()
	if o.Status == domain.StatusExecuted {
		m.actionCost.WithLabelValues(string(o.Action)).Observe(o.Cost)
	}
}

// ObserveTick records the detection state after a tick.
func (m *PrometheusMetrics) ObserveTick(r domain.TickReport) {
	m.ticks.Inc()
	m.probeLevel.Set(float64(r.ProbeLevel))
	m.threatLevel.Set(float64(r.ThreatLevel))
	if r.AlarmCountdown != nil {
		m.alarm.Set(float64(*r.AlarmCountdown))
	} else {
		m.alarm.Set(-1)
	}
	if r.Termination != nil {
		m.terminations.WithLabelValues(string(r.Termination.Reason)).Inc()
	}
}

// Ensure PrometheusMetrics implements domain.MetricsRecorder.
var _ domain.MetricsRecorder = (*PrometheusMetrics)(nil)

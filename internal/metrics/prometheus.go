// Package metrics provides Prometheus metrics for hiveguard.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hiveguard"

// PrometheusMetrics holds the registered hiveguard collectors.
type PrometheusMetrics struct {
	Heartbeats            *prometheus.CounterVec
	AccessDecisions       *prometheus.CounterVec
	FailOpenTotal         prometheus.Counter
	OverrideActions       *prometheus.CounterVec
	SchedulerPassDuration prometheus.Histogram
	SchedulerOutcomes     *prometheus.CounterVec

	ClientBlocked     prometheus.Gauge
	WarningShown      prometheus.Gauge
	LocalAdminMode    prometheus.Gauge
	LastContactSecond prometheus.Gauge
}

// NewPrometheusMetrics creates the collectors and registers them with reg.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		Heartbeats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_total",
			Help:      "Heartbeats sent to the remote authority by result.",
		}, []string{"result"}),
		AccessDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_decisions_total",
			Help:      "Enforcement decisions by outcome.",
		}, []string{"decision"}),
		FailOpenTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_fail_open_total",
			Help:      "Enforcement checks that allowed access because of an internal fault.",
		}),
		OverrideActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "override_actions_total",
			Help:      "Local admin override actions by type.",
		}, []string{"action"}),
		SchedulerPassDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scheduler_pass_duration_seconds",
			Help:      "Duration of one reconciliation pass.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}),
		SchedulerOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_outcomes_total",
			Help:      "Per-configuration outcomes of reconciliation passes.",
		}, []string{"action"}),
		ClientBlocked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "client_blocked",
			Help:      "1 if the active configuration is blocked.",
		}),
		WarningShown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "client_warning_shown",
			Help:      "1 if the active configuration shows a warning banner.",
		}),
		LocalAdminMode: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "client_local_admin_mode",
			Help:      "1 if remote control is suspended by local admin mode.",
		}),
		LastContactSecond: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "client_last_contact_timestamp_seconds",
			Help:      "Unix time of the last successful contact with the remote authority.",
		}),
	}

	collectors := []prometheus.Collector{
		m.Heartbeats, m.AccessDecisions, m.FailOpenTotal, m.OverrideActions,
		m.SchedulerPassDuration, m.SchedulerOutcomes,
		m.ClientBlocked, m.WarningShown, m.LocalAdminMode, m.LastContactSecond,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// HeartbeatResult counts a heartbeat outcome.
func (m *PrometheusMetrics) HeartbeatResult(result string) {
	m.Heartbeats.WithLabelValues(result).Inc()
}

// AccessDecision counts an enforcement decision.
func (m *PrometheusMetrics) AccessDecision(decision string) {
	m.AccessDecisions.WithLabelValues(decision).Inc()
}

// FailOpen counts an enforcement fault.
func (m *PrometheusMetrics) FailOpen() {
	m.FailOpenTotal.Inc()
}

// OverrideAction counts a local admin action.
func (m *PrometheusMetrics) OverrideAction(action string) {
	m.OverrideActions.WithLabelValues(action).Inc()
}

// ObservePass records a reconciliation pass and its per-configuration actions.
func (m *PrometheusMetrics) ObservePass(d time.Duration, actions []string) {
	m.SchedulerPassDuration.Observe(d.Seconds())
	for _, a := range actions {
		m.SchedulerOutcomes.WithLabelValues(a).Inc()
	}
}

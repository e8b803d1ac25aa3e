// Package metrics exposes Prometheus instrumentation for kvsyncd.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "kvsyncd"

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	PullsTotal          *prometheus.CounterVec
	PullDurationSeconds *prometheus.HistogramVec
	PopulateTotal       *prometheus.CounterVec
	KVOperationsTotal   *prometheus.CounterVec
	WebhookRequests     *prometheus.CounterVec
	LastPopulateSuccess prometheus.Gauge
}

// New registers the collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PullsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "git",
				Name:      "pulls_total",
				Help:      "Repository pulls by trigger and outcome",
			},
			[]string{"trigger", "outcome"},
		),
		PullDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "git",
				Name:      "pull_duration_seconds",
				Help:      "Duration of repository pulls in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"trigger"},
		),
		PopulateTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "populate_total",
				Help:      "Populate runs by result",
			},
			[]string{"result"},
		),
		KVOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "kv",
				Name:      "operations_total",
				Help:      "Submitted KV transaction operations by verb",
			},
			[]string{"verb"},
		),
		WebhookRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "webhook",
				Name:      "requests_total",
				Help:      "Webhook deliveries by decision",
			},
			[]string{"decision"},
		),
		LastPopulateSuccess: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_populate_success_timestamp_seconds",
				Help:      "Unix time of the last successful populate",
			},
		),
	}
}

// ObservePull records one repository pull
func (m *Metrics) ObservePull(trigger, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.PullsTotal.WithLabelValues(trigger, outcome).Inc()
	m.PullDurationSeconds.WithLabelValues(trigger).Observe(d.Seconds())
}

// ObservePopulate records the result of one populate run. sets and deletes
// count the submitted operations.
func (m *Metrics) ObservePopulate(result string, sets, deletes int, at time.Time) {
	if m == nil {
		return
	}
	m.PopulateTotal.WithLabelValues(result).Inc()
	m.KVOperationsTotal.WithLabelValues("set").Add(float64(sets))
	m.KVOperationsTotal.WithLabelValues("delete").Add(float64(deletes))
	if result == ResultSuccess {
		m.LastPopulateSuccess.Set(float64(at.Unix()))
	}
}

// ObserveWebhook records one webhook decision
func (m *Metrics) ObserveWebhook(decision string) {
	if m == nil {
		return
	}
	m.WebhookRequests.WithLabelValues(decision).Inc()
}

// Populate results
const (
	ResultSuccess = "success"
	ResultPartial = "partial"
	ResultFailure = "failure"
	ResultDryRun  = "dry_run"
)

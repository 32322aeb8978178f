package triage

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the triage pipeline.
type Metrics struct {
	EventsTotal        *prometheus.CounterVec
	DecisionsTotal     *prometheus.CounterVec
	DuplicatesTotal    prometheus.Counter
	ClassifyDuration   *prometheus.HistogramVec
	ClassifyUrgency    prometheus.Histogram
	FailOpensTotal     prometheus.Counter
	NotificationsTotal *prometheus.CounterVec
}

// NewMetrics registers and returns pipeline metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "classy_events_total",
			Help: "Inbound message events by terminal outcome.",
		}, []string{"outcome"}),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "classy_decisions_total",
			Help: "Rule engine decisions by action.",
		}, []string{"action"}),
		DuplicatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "classy_duplicate_events_total",
			Help: "Events rejected by the dedup window.",
		}),
		ClassifyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "classy_classify_duration_seconds",
			Help:    "Duration of classifier calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms .. ~25s
		}, []string{"provider", "outcome"}),
		ClassifyUrgency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "classy_classify_urgency",
			Help:    "Urgency scores returned by classification.",
			Buckets: prometheus.LinearBuckets(1, 1, 5), // 1 .. 5
		}),
		FailOpensTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "classy_classify_fail_open_total",
			Help: "Classifier failures collapsed into the fail-open default.",
		}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "classy_notifications_total",
			Help: "Alert dispatches by priority and delivery status.",
		}, []string{"priority", "status"}),
	}

	reg.MustRegister(
		m.EventsTotal,
		m.DecisionsTotal,
		m.DuplicatesTotal,
		m.ClassifyDuration,
		m.ClassifyUrgency,
		m.FailOpensTotal,
		m.NotificationsTotal,
	)

	return m
}

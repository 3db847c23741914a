package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EventMetrics exports event bus activity to Prometheus. It implements
// eventbus.Metrics.
type EventMetrics struct {
	raised       *prometheus.CounterVec
	deferred     *prometheus.CounterVec
	handled      *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	retries      *prometheus.CounterVec
	deadLettered *prometheus.CounterVec
}

// NewEventMetrics registers the collectors on reg.
func NewEventMetrics(reg prometheus.Registerer) *EventMetrics {
	f := promauto.With(reg)
	return &EventMetrics{
		raised: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventbus_events_raised_total",
			Help: "Total number of events persisted by Raise",
		}, []string{"event"}),
		deferred: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventbus_events_deferred_total",
			Help: "Total number of events left for pending recovery because the dispatch queue was full",
		}, []string{"event"}),
		handled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventbus_handler_calls_total",
			Help: "Total number of handler invocations by outcome",
		}, []string{"event", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eventbus_handler_duration_seconds",
			Help:    "Handler duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"event"}),
		retries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventbus_retry_attempts_total",
			Help: "Total number of retry attempts",
		}, []string{"event"}),
		deadLettered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventbus_dead_letter_total",
			Help: "Total number of events moved to DEAD_LETTER",
		}, []string{"event"}),
	}
}

func (m *EventMetrics) EventRaised(name string) {
	m.raised.WithLabelValues(name).Inc()
}

func (m *EventMetrics) EventDeferred(name string) {
	m.deferred.WithLabelValues(name).Inc()
}

func (m *EventMetrics) HandlerCompleted(name string, err error, d time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.handled.WithLabelValues(name, outcome).Inc()
	m.duration.WithLabelValues(name).Observe(d.Seconds())
}

func (m *EventMetrics) EventRetried(name string) {
	m.retries.WithLabelValues(name).Inc()
}

func (m *EventMetrics) EventDeadLettered(name string) {
	m.deadLettered.WithLabelValues(name).Inc()
}

// MetricsHandler serves the collectors registered on g.
func MetricsHandler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

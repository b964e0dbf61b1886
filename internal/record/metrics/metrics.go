package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the record module.
// Tracks calculation outcomes, lifecycle transitions and hawl events.
type Metrics struct {
	Calculations        *prometheus.CounterVec
	CalculationDuration prometheus.Histogram
	Transitions         *prometheus.CounterVec
	HawlEvents          *prometheus.CounterVec
	RecordsCreated      prometheus.Counter
	PublishFailures     prometheus.Counter
}

// New registers the record metrics with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Calculations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "zakat_calculations_total",
			Help: "Zakat calculations by methodology and outcome code",
		}, []string{"methodology", "outcome"}),
		CalculationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "zakat_calculation_duration_seconds",
			Help:    "Duration of zakat calculations including price lookups",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "zakat_record_transitions_total",
			Help: "Record lifecycle transitions by action and outcome code",
		}, []string{"action", "outcome"}),
		HawlEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "zakat_hawl_events_total",
			Help: "Hawl events recorded, by event type",
		}, []string{"event_type"}),
		RecordsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "zakat_records_created_total",
			Help: "Total number of Nisab year records created",
		}),
		PublishFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "zakat_audit_publish_failures_total",
			Help: "Committed audit batches the downstream publisher rejected",
		}),
	}
}

// ObserveCalculation records one calculation. Call with time.Now() at the
// start of the operation; outcome is "ok" or an error code.
func (m *Metrics) ObserveCalculation(methodology, outcome string, start time.Time) {
	m.Calculations.WithLabelValues(methodology, outcome).Inc()
	m.CalculationDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementTransition(action, outcome string) {
	m.Transitions.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) IncrementHawlEvent(eventType string) {
	m.HawlEvents.WithLabelValues(eventType).Inc()
}

func (m *Metrics) IncrementRecordCreated() {
	m.RecordsCreated.Inc()
}

func (m *Metrics) IncrementPublishFailure() {
	m.PublishFailures.Inc()
}

package store

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated by stores. A single Metrics
// value can be shared by many stores, which are told apart by the "store"
// label.
type Metrics struct {
	operations    *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	entryFailures *prometheus.CounterVec
}

// NewMetrics creates the store collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stash",
			Name:      "operations_total",
			Help:      "Bulk store operations by result.",
		}, []string{"store", "operation", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stash",
			Name:      "operation_duration_seconds",
			Help:      "Duration of admitted bulk store operations.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}, []string{"store", "operation"}),
		entryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stash",
			Name:      "entry_failures_total",
			Help:      "Failures recorded during bulk store operations.",
		}, []string{"store", "operation"}),
	}

	for _, c := range []prometheus.Collector{m.operations, m.duration, m.entryFailures} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Metrics) observe(store string, op Status, res Result, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(store, opVerb(op), res.String()).Inc()
	if res != ResultBusy && res != ResultNull {
		m.duration.WithLabelValues(store, opVerb(op)).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) failure(store string, op Status) {
	if m == nil {
		return
	}
	m.entryFailures.WithLabelValues(store, opVerb(op)).Inc()
}

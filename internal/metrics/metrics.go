package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	dbCalls        *prometheus.CounterVec
	processingTime *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		dbCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_calls_total",
				Help: "Total number of datastore calls.",
			},
			[]string{"operation", "table"},
		),
		processingTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "invoice_processing_seconds",
				Help:    "End-to-end invoice processing duration.",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"status"},
		),
	}

	if err := reg.Register(m.dbCalls); err != nil {
		return nil, err
	}
	if err := reg.Register(m.processingTime); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordDBCall increments the datastore call counter.
func (m *Metrics) RecordDBCall(operation, table string) {
	m.dbCalls.WithLabelValues(operation, table).Inc()
}

// ObserveProcessing records one pipeline run with its terminal status.
func (m *Metrics) ObserveProcessing(status string, seconds float64) {
	m.processingTime.WithLabelValues(status).Observe(seconds)
}

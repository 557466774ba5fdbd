package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "revenue_admin"

type Metrics struct {
	registry *prometheus.Registry

	ingestions *prometheus.CounterVec
	records    *prometheus.CounterVec
	duration   prometheus.Histogram
	charts     prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ingestions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestions_total",
			Help:      "Revenue report ingestions by network and outcome.",
		}, []string{"network", "outcome"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revenue_records_total",
			Help:      "Revenue records seen during ingestion, inserted or skipped as duplicates.",
		}, []string{"network", "status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingestion_duration_seconds",
			Help:      "Time spent ingesting one report.",
			Buckets:   prometheus.DefBuckets,
		}),
		charts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "charts_built_total",
			Help:      "Revenue chart payloads built.",
		}),
	}

	m.registry.MustRegister(
		m.ingestions,
		m.records,
		m.duration,
		m.charts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) ObserveIngestion(network string, outcome string, inserted int, duplicates int, took time.Duration) {
	m.ingestions.WithLabelValues(network, outcome).Inc()
	m.records.WithLabelValues(network, "inserted").Add(float64(inserted))
	m.records.WithLabelValues(network, "duplicate").Add(float64(duplicates))
	m.duration.Observe(took.Seconds())
}

func (m *Metrics) ObserveChart() {
	m.charts.Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

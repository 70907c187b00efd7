package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions    prometheus.Gauge
	RealtimeEvents    *prometheus.CounterVec
	PhaseTransitions  *prometheus.CounterVec
	ProtocolAnomalies *prometheus.CounterVec
	ReportLatency     prometheus.Histogram
	ReportFailures    prometheus.Counter
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active interview sessions.",
		}),
		RealtimeEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_events_total",
			Help:      "Realtime API events by type.",
		}, []string{"type"}),
		PhaseTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assessment_phase_transitions_total",
			Help:      "Assessment phase transitions by target phase.",
		}, []string{"phase"}),
		ProtocolAnomalies: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_anomalies_total",
			Help:      "Tolerated protocol anomalies by kind.",
		}, []string{"kind"}),
		ReportLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_generation_seconds",
			Help:      "Assessment report generation latency in seconds.",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60},
		}),
		ReportFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_failures_total",
			Help:      "Assessment report generation failures.",
		}),
	}
}

func (m *Metrics) ObserveReportLatency(d time.Duration) {
	m.ReportLatency.Observe(d.Seconds())
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

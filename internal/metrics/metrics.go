// Package metrics groups the Prometheus instruments for the service. A
// nil *Metrics is valid and records nothing, which is how a disabled
// metrics config is represented.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every instrument the service exports.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RateLimitDenials *prometheus.CounterVec
	ActiveStreams    prometheus.Gauge
	StreamsTotal     *prometheus.CounterVec
	ProviderErrors   *prometheus.CounterVec
	IngestedFiles    *prometheus.CounterVec
}

// New registers the instrument set under the given namespace on the
// default registry. Tests must use a unique namespace per call.
func New(namespace string) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "RPC requests by method and status code.",
		}, []string{"method", "code"}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "RPC handling time by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RateLimitDenials: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_denials_total",
			Help:      "Requests denied by the admission controller, by method.",
		}, []string{"method"}),
		ActiveStreams: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Streaming answers currently in flight.",
		}),
		StreamsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_total",
			Help:      "Finished streams by terminal status.",
		}, []string{"status"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Generation and embedding provider failures by provider.",
		}, []string{"provider"}),
		IngestedFiles: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_files_total",
			Help:      "Ingested files by final document status.",
		}, []string{"status"}),
	}
}

// ObserveRequest records one handled RPC.
func (m *Metrics) ObserveRequest(method string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, statusLabel(code)).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(d.Seconds())
}

// RateLimited records one admission denial.
func (m *Metrics) RateLimited(method string) {
	if m == nil {
		return
	}
	m.RateLimitDenials.WithLabelValues(method).Inc()
}

// StreamStarted marks a streaming answer as in flight.
func (m *Metrics) StreamStarted() {
	if m == nil {
		return
	}
	m.ActiveStreams.Inc()
}

// StreamSettled records a stream reaching its terminal status.
func (m *Metrics) StreamSettled(status string) {
	if m == nil {
		return
	}
	m.ActiveStreams.Dec()
	m.StreamsTotal.WithLabelValues(status).Inc()
}

// ProviderFailure records one provider error.
func (m *Metrics) ProviderFailure(provider string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(provider).Inc()
}

// FileIngested records one file reaching its final document status.
func (m *Metrics) FileIngested(status string) {
	if m == nil {
		return
	}
	m.IngestedFiles.WithLabelValues(status).Inc()
}

// Handler serves the default registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

func statusLabel(code int) string {
	switch code {
	case 200:
		return "200"
	case 400:
		return "400"
	case 499:
		return "499"
	case 502:
		return "502"
	case 503:
		return "503"
	case 504:
		return "504"
	default:
		return "500"
	}
}

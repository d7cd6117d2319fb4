// Package telemetry holds the Prometheus metrics and OpenTelemetry tracing setup.
package telemetry

import (
	"net/http"
	"time"

	"github.com/DanielPopoola/payment-security-core/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "security_core"

// Metrics records core activity. All methods are safe on a nil receiver so
// services can run without instrumentation in tests.
type Metrics struct {
	registry *prometheus.Registry

	fraudAnalyses      *prometheus.CounterVec
	fraudFailSafe      prometheus.Counter
	fraudDuration      prometheus.Histogram
	processorOps       *prometheus.CounterVec
	processorLatency   *prometheus.HistogramVec
	threeDSAuths       *prometheus.CounterVec
	vaultTokenizations *prometheus.CounterVec
	abandoned          prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fraudAnalyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fraud_analyses_total",
			Help:      "Fraud analyses by recommendation.",
		}, []string{"recommendation"}),
		fraudFailSafe: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fraud_failsafe_total",
			Help:      "Fraud analyses that fell back to the neutral result.",
		}),
		fraudDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fraud_analysis_duration_seconds",
			Help:      "Time spent scoring a transaction.",
			Buckets:   prometheus.DefBuckets,
		}),
		processorOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processor_operations_total",
			Help:      "Processor operations by processor, operation and outcome.",
		}, []string{"processor", "operation", "outcome"}),
		processorLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "processor_operation_duration_seconds",
			Help:      "Processor call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"processor", "operation"}),
		threeDSAuths: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "threeds_authentications_total",
			Help:      "3-D Secure authentications by provider and resulting status.",
		}, []string{"provider", "status"}),
		vaultTokenizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vault_tokenizations_total",
			Help:      "Tokenization requests by outcome.",
		}, []string{"outcome"}),
		abandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "threeds_abandoned_total",
			Help:      "Pending authentications marked abandoned by the worker.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.fraudAnalyses,
		m.fraudFailSafe,
		m.fraudDuration,
		m.processorOps,
		m.processorLatency,
		m.threeDSAuths,
		m.vaultTokenizations,
		m.abandoned,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) FraudAnalysis(rec domain.Recommendation, failSafe bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.fraudAnalyses.WithLabelValues(string(rec)).Inc()
	if failSafe {
		m.fraudFailSafe.Inc()
	}
	m.fraudDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ProcessorCall(processor string, op domain.ProcessorOperation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.processorOps.WithLabelValues(processor, string(op), outcome).Inc()
	m.processorLatency.WithLabelValues(processor, string(op)).Observe(elapsed.Seconds())
}

func (m *Metrics) ThreeDSAuthentication(provider domain.ProviderName, status domain.AuthenticationStatus) {
	if m == nil {
		return
	}
	m.threeDSAuths.WithLabelValues(string(provider), string(status)).Inc()
}

func (m *Metrics) Tokenization(outcome string) {
	if m == nil {
		return
	}
	m.vaultTokenizations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AbandonedAuthentications(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.abandoned.Add(float64(n))
}

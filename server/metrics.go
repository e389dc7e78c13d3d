package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jcrioszam/red-ciudadana-sub001/flow"
)

// Metrics owns a private registry so tests can spin up servers without
// fighting over the default global one.
type Metrics struct {
	registry *prometheus.Registry

	requestTotal     *prometheus.CounterVec
	sessionsActive   prometheus.Gauge
	submissionsTotal *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "redciudadana",
			Subsystem: "flujo",
			Name:      "http_requests_total",
			Help:      "HTTP requests handled by the flow bridge.",
		}, []string{"method", "path", "status"}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "redciudadana",
			Subsystem: "flujo",
			Name:      "sessions_active",
			Help:      "Flow sessions currently held in memory.",
		}),
		submissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "redciudadana",
			Subsystem: "flujo",
			Name:      "submissions_total",
			Help:      "Report submissions by outcome.",
		}, []string{"resultado"}),
	}
	registry.MustRegister(m.requestTotal, m.sessionsActive, m.submissionsTotal)
	return m
}

func (m *Metrics) ObserveRequest(method, path string, status int) {
	if path == "" {
		path = "unmatched"
	}
	m.requestTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	m.sessionsActive.Set(float64(n))
}

func (m *Metrics) ObserveSubmission(resultado string) {
	m.submissionsTotal.WithLabelValues(resultado).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// countingSubmitter records submission outcomes around the real gateway.
type countingSubmitter struct {
	inner   flow.Submitter
	metrics *Metrics
}

func (c *countingSubmitter) Submit(ctx context.Context, draft *flow.ReportDraft) error {
	err := c.inner.Submit(ctx, draft)
	switch {
	case err == nil:
		c.metrics.ObserveSubmission("exito")
	default:
		var failure *flow.SubmitFailure
		if errors.As(err, &failure) && failure.Kind == flow.FailureRejected {
			c.metrics.ObserveSubmission("rechazado")
		} else {
			c.metrics.ObserveSubmission("no_disponible")
		}
	}
	return err
}

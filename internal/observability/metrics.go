// File: internal/observability/metrics.go
package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics groups the counters recorded by the task loop. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	tasks           *prometheus.CounterVec
	resources       *prometheus.CounterVec
	actions         *prometheus.CounterVec
	oracleFallbacks *prometheus.CounterVec
	navAttempts     prometheus.Counter
}

// NewMetrics registers the task loop collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rabbit",
			Name:      "tasks_total",
			Help:      "Completed tasks by final status.",
		}, []string{"status"}),
		resources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rabbit",
			Name:      "resources_total",
			Help:      "Processed resources by result source.",
		}, []string{"source"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rabbit",
			Name:      "actions_total",
			Help:      "Dispatched actions by type and outcome status.",
		}, []string{"type", "status"}),
		oracleFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rabbit",
			Name:      "oracle_fallbacks_total",
			Help:      "Oracle calls answered by a fallback, by operation.",
		}, []string{"operation"}),
		navAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rabbit",
			Name:      "navigation_attempts_total",
			Help:      "Individual navigation attempts, including retries.",
		}),
	}
	m.registry.MustRegister(m.tasks, m.resources, m.actions, m.oracleFallbacks, m.navAttempts)
	return m
}

// Registry exposes the underlying registry for handlers and tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) TaskCompleted(status string) {
	if m != nil {
		m.tasks.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) ResourceProcessed(source string) {
	if m != nil {
		m.resources.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) ActionDispatched(actionType, status string) {
	if m != nil {
		m.actions.WithLabelValues(actionType, status).Inc()
	}
}

func (m *Metrics) OracleFallback(operation string) {
	if m != nil {
		m.oracleFallbacks.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) NavigationAttempt() {
	if m != nil {
		m.navAttempts.Inc()
	}
}

// Handler serves the registry in the prometheus text format under /metrics.
func (m *Metrics) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	return mux
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("Metrics endpoint listening.", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Package metrics exports sourcing and remote call metrics to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	eventbus "github.com/hanpama/graphsync/internal/eventbus"
	events "github.com/hanpama/graphsync/internal/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "graphsync"

// Metrics holds the collectors of one registry.
type Metrics struct {
	registry *prometheus.Registry

	// remoteDuration measures remote operations.
	// Labels: operation, status (HTTP status code, 0 when no response)
	remoteDuration *prometheus.HistogramVec
	// remoteErrors counts failed remote operations.
	// Labels: operation
	remoteErrors *prometheus.CounterVec
	// syncRuns counts finished runs.
	// Labels: mode (full, delta), result (success, error)
	syncRuns     *prometheus.CounterVec
	syncDuration *prometheus.HistogramVec
	// nodeMutations counts node writes.
	// Labels: action, remote_type
	nodeMutations *prometheus.CounterVec
}

// New registers the collectors, plus the Go and process collectors, on a
// new registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		remoteDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "operation_duration_seconds",
			Help:      "Duration of GraphQL operations sent to the remote API",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"operation", "status"}),
		remoteErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "errors_total",
			Help:      "Remote operations that failed at the transport level",
		}, []string{"operation"}),
		syncRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Finished sourcing runs",
		}, []string{"mode", "result"}),
		syncDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "duration_seconds",
			Help:      "Duration of sourcing runs",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"mode"}),
		nodeMutations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "nodes",
			Name:      "mutations_total",
			Help:      "Nodes created, updated, deleted or found unchanged",
		}, []string{"action", "remote_type"}),
	}
}

// Subscribe records events from the global bus until unsubscribe is called.
func (m *Metrics) Subscribe() (unsubscribe func()) {
	unsubs := []func(){
		eventbus.Subscribe(func(_ context.Context, e events.RemoteFinish) {
			m.remoteDuration.WithLabelValues(e.OperationName, strconv.Itoa(e.StatusCode)).Observe(e.Duration.Seconds())
			if e.Err != nil {
				m.remoteErrors.WithLabelValues(e.OperationName).Inc()
			}
		}),
		eventbus.Subscribe(func(_ context.Context, e events.SyncFinish) {
			result := "success"
			if e.Err != nil {
				result = "error"
			}
			m.syncRuns.WithLabelValues(e.Mode, result).Inc()
			m.syncDuration.WithLabelValues(e.Mode).Observe(e.Duration.Seconds())
		}),
		eventbus.Subscribe(func(_ context.Context, e events.NodeMutation) {
			m.nodeMutations.WithLabelValues(e.Action, e.RemoteTypeName).Inc()
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Package metrics exposes Prometheus metrics for the state API and the
// cluster registries.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dreamware/clusterstate/internal/cluster"
)

const namespace = "clusterstate"

// Metrics holds the collectors of one process. Each instance has its own
// prometheus registry.
type Metrics struct {
	registry      *prometheus.Registry
	requests      *prometheus.CounterVec
	decisions     *prometheus.CounterVec
	wantedChanges *prometheus.CounterVec
	version       *prometheus.GaugeVec
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "State API requests by method and status code.",
		}, []string{"code", "method"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "set_decisions_total",
			Help:      "Wanted-state requests by cluster, condition and outcome.",
		}, []string{"cluster", "condition", "outcome"}),
		wantedChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wanted_state_changes_total",
			Help:      "Applied wanted states by cluster, node type and state.",
		}, []string{"cluster", "type", "state"}),
		version: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cluster_state_version",
			Help:      "Version of the latest cluster state.",
		}, []string{"cluster"}),
	}
	m.registry.MustRegister(m.requests, m.decisions, m.wantedChanges, m.version)
	return m
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Instrument counts the requests served by next.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerCounter(m.requests, next)
}

// ObserveDecision counts one processed wanted-state request.
func (m *Metrics) ObserveDecision(clusterName string, cond cluster.Condition, outcome string) {
	m.decisions.WithLabelValues(clusterName, cond.String(), outcome).Inc()
}

// VersionRecorder returns a publish hook that keeps the version gauge of
// clusterName current. See coordinator.Registry.OnPublish.
func (m *Metrics) VersionRecorder(clusterName string) func(cluster.ClusterState) {
	gauge := m.version.WithLabelValues(clusterName)
	return func(cs cluster.ClusterState) {
		gauge.Set(float64(cs.Version()))
	}
}

// HandleNewWantedNodeState counts applied wanted states. It implements
// coordinator.Listener.
func (m *Metrics) HandleNewWantedNodeState(info cluster.NodeInfo, newState cluster.NodeState) {
	m.wantedChanges.WithLabelValues(info.Cluster, info.Node.Type.String(), newState.State.String()).Inc()
}

// Package controller provides shared Prometheus metrics and watch predicates
// for the operator's controllers.
package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"

	ibgwv1alpha1 "github.com/dc-tec/ibgateway-operator/api/v1alpha1"
)

var (
	reconcileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ibgateway",
			Name:      "reconcile_duration_seconds",
			Help:      "Duration of reconciliation loops in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"namespace", "name", "controller"},
	)

	reconcileErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ibgateway",
			Name:      "reconcile_errors_total",
			Help:      "Total number of reconciliation errors by reason.",
		},
		[]string{"namespace", "name", "controller", "reason"},
	)

	gatewayPhase = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ibgateway",
			Name:      "phase",
			Help:      "Current phase of the IBGateway; the active phase reports 1.",
		},
		[]string{"namespace", "name", "phase"},
	)

	gatewayReadyReplicas = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ibgateway",
			Name:      "ready_replicas",
			Help:      "Number of ready replicas in the gateway workload.",
		},
		[]string{"namespace", "name"},
	)

	gatewayReachable = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ibgateway",
			Name:      "reachable",
			Help:      "Whether the most recent TWS API handshake against the gateway Service succeeded.",
		},
		[]string{"namespace", "name"},
	)
)

func init() {
	metrics.Registry.MustRegister(
		reconcileDuration,
		reconcileErrors,
		gatewayPhase,
		gatewayReadyReplicas,
		gatewayReachable,
	)
}

// gatewayPhases lists every phase an IBGateway can report. SetPhase and Clear
// walk this list so stale series never linger after a phase transition or a
// deletion.
var gatewayPhases = []ibgwv1alpha1.GatewayPhase{
	ibgwv1alpha1.GatewayPhasePending,
	ibgwv1alpha1.GatewayPhaseRunning,
	ibgwv1alpha1.GatewayPhaseDegraded,
	ibgwv1alpha1.GatewayPhaseFailed,
}

// ReconcileMetrics records per-reconciliation observations for a single
// IBGateway resource.
type ReconcileMetrics struct {
	namespace  string
	name       string
	controller string
}

// NewReconcileMetrics creates a recorder scoped to one resource and controller.
func NewReconcileMetrics(namespace, name, controller string) *ReconcileMetrics {
	return &ReconcileMetrics{namespace: namespace, name: name, controller: controller}
}

// ObserveDuration records how long a reconciliation took.
func (m *ReconcileMetrics) ObserveDuration(seconds float64) {
	reconcileDuration.WithLabelValues(m.namespace, m.name, m.controller).Observe(seconds)
}

// IncrementError counts a reconciliation error under the given reason.
func (m *ReconcileMetrics) IncrementError(reason string) {
	reconcileErrors.WithLabelValues(m.namespace, m.name, m.controller, reason).Inc()
}

// GatewayMetrics records gauge-style state for a single IBGateway resource.
type GatewayMetrics struct {
	namespace string
	name      string
}

// NewGatewayMetrics creates a gauge recorder scoped to one resource.
func NewGatewayMetrics(namespace, name string) *GatewayMetrics {
	return &GatewayMetrics{namespace: namespace, name: name}
}

// SetPhase reports the current phase as a one-hot gauge across all phases.
func (m *GatewayMetrics) SetPhase(phase ibgwv1alpha1.GatewayPhase) {
	for _, p := range gatewayPhases {
		value := 0.0
		if p == phase {
			value = 1.0
		}
		gatewayPhase.WithLabelValues(m.namespace, m.name, string(p)).Set(value)
	}
}

// SetReadyReplicas reports how many gateway replicas are ready.
func (m *GatewayMetrics) SetReadyReplicas(count float64) {
	gatewayReadyReplicas.WithLabelValues(m.namespace, m.name).Set(count)
}

// SetReachable reports the outcome of the most recent TWS handshake.
func (m *GatewayMetrics) SetReachable(reachable bool) {
	value := 0.0
	if reachable {
		value = 1.0
	}
	gatewayReachable.WithLabelValues(m.namespace, m.name).Set(value)
}

// Clear removes the gauge series for the resource. Called on deletion so
// dashboards do not show ghosts of gateways that no longer exist.
func (m *GatewayMetrics) Clear() {
	for _, p := range gatewayPhases {
		gatewayPhase.DeleteLabelValues(m.namespace, m.name, string(p))
	}
	gatewayReadyReplicas.DeleteLabelValues(m.namespace, m.name)
	gatewayReachable.DeleteLabelValues(m.namespace, m.name)
}

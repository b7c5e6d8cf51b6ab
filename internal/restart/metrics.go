package restart

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	// restartTotal counts scheduled restarts triggered by the controller.
	restartTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ibgateway",
			Subsystem: "restart",
			Name:      "total",
			Help:      "Total number of scheduled gateway restarts",
		},
		[]string{"namespace", "name"},
	)

	// restartLastTimestamp tracks the Unix timestamp of the last scheduled restart.
	restartLastTimestamp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ibgateway",
			Subsystem: "restart",
			Name:      "last_timestamp",
			Help:      "Unix timestamp of the last scheduled gateway restart",
		},
		[]string{"namespace", "name"},
	)

	// restartNextTimestamp tracks the Unix timestamp of the next scheduled restart.
	restartNextTimestamp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ibgateway",
			Subsystem: "restart",
			Name:      "next_timestamp",
			Help:      "Unix timestamp of the next scheduled gateway restart",
		},
		[]string{"namespace", "name"},
	)
)

func init() {
	metrics.Registry.MustRegister(
		restartTotal,
		restartLastTimestamp,
		restartNextTimestamp,
	)
}

// Metrics provides methods to record restart metrics for one gateway.
type Metrics struct {
	namespace string
	name      string
}

// NewMetrics creates a new Metrics instance for the given gateway.
func NewMetrics(namespace, name string) *Metrics {
	return &Metrics{
		namespace: namespace,
		name:      name,
	}
}

// RecordRestart records a triggered restart.
func (m *Metrics) RecordRestart(timestamp float64) {
	restartTotal.WithLabelValues(m.namespace, m.name).Inc()
	restartLastTimestamp.WithLabelValues(m.namespace, m.name).Set(timestamp)
}

// SetNextScheduled records when the next restart window opens.
func (m *Metrics) SetNextScheduled(timestamp float64) {
	restartNextTimestamp.WithLabelValues(m.namespace, m.name).Set(timestamp)
}

// Clear removes all metrics for this gateway (used on deletion).
func (m *Metrics) Clear() {
	restartTotal.DeleteLabelValues(m.namespace, m.name)
	restartLastTimestamp.DeleteLabelValues(m.namespace, m.name)
	restartNextTimestamp.DeleteLabelValues(m.namespace, m.name)
}

package backup

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	// backupLastSuccessTimestamp tracks the Unix timestamp of the last successful archive.
	backupLastSuccessTimestamp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ibgateway",
			Subsystem: "backup",
			Name:      "last_success_timestamp",
			Help:      "Unix timestamp of the last successful settings archive",
		},
		[]string{"namespace", "name"},
	)

	// backupLastDurationSeconds tracks the duration of the last archive Job in seconds.
	backupLastDurationSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ibgateway",
			Subsystem: "backup",
			Name:      "last_duration_seconds",
			Help:      "Duration of the last settings archive in seconds",
		},
		[]string{"namespace", "name"},
	)

	// backupLastSizeBytes tracks the size of the last archive in bytes.
	backupLastSizeBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ibgateway",
			Subsystem: "backup",
			Name:      "last_size_bytes",
			Help:      "Size of the last settings archive in bytes",
		},
		[]string{"namespace", "name"},
	)

	// backupSuccessTotal tracks the total number of successful archives.
	backupSuccessTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ibgateway",
			Subsystem: "backup",
			Name:      "success_total",
			Help:      "Total number of successful settings archives",
		},
		[]string{"namespace", "name"},
	)

	// backupFailureTotal tracks the total number of archive failures.
	backupFailureTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ibgateway",
			Subsystem: "backup",
			Name:      "failure_total",
			Help:      "Total number of failed settings archives",
		},
		[]string{"namespace", "name"},
	)

	// backupConsecutiveFailures tracks the current consecutive failure count.
	backupConsecutiveFailures = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ibgateway",
			Subsystem: "backup",
			Name:      "consecutive_failures",
			Help:      "Current number of consecutive settings archive failures",
		},
		[]string{"namespace", "name"},
	)

	// backupInProgress indicates if an archive Job is currently running.
	backupInProgress = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ibgateway",
			Subsystem: "backup",
			Name:      "in_progress",
			Help:      "Whether a settings archive is currently in progress (1) or not (0)",
		},
		[]string{"namespace", "name"},
	)
)

func init() {
	// Register all metrics with the controller-runtime metrics registry
	metrics.Registry.MustRegister(
		backupLastSuccessTimestamp,
		backupLastDurationSeconds,
		backupLastSizeBytes,
		backupSuccessTotal,
		backupFailureTotal,
		backupConsecutiveFailures,
		backupInProgress,
	)
}

// Metrics provides methods to record backup-related metrics for one gateway.
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

// SetInProgress sets whether an archive is currently in progress.
func (m *Metrics) SetInProgress(inProgress bool) {
	value := 0.0
	if inProgress {
		value = 1.0
	}
	backupInProgress.WithLabelValues(m.namespace, m.name).Set(value)
}

// RecordSuccess records metrics for a successful archive.
func (m *Metrics) RecordSuccess(durationSeconds float64, sizeBytes int64, timestamp float64) {
	backupLastSuccessTimestamp.WithLabelValues(m.namespace, m.name).Set(timestamp)
	backupLastDurationSeconds.WithLabelValues(m.namespace, m.name).Set(durationSeconds)
	backupLastSizeBytes.WithLabelValues(m.namespace, m.name).Set(float64(sizeBytes))
	backupSuccessTotal.WithLabelValues(m.namespace, m.name).Inc()
	backupConsecutiveFailures.WithLabelValues(m.namespace, m.name).Set(0)
	m.SetInProgress(false)
}

// RecordFailure records metrics for a failed archive.
func (m *Metrics) RecordFailure(consecutiveFailures int32) {
	backupFailureTotal.WithLabelValues(m.namespace, m.name).Inc()
	backupConsecutiveFailures.WithLabelValues(m.namespace, m.name).Set(float64(consecutiveFailures))
	m.SetInProgress(false)
}

// Clear removes all metrics for this gateway (used on deletion).
func (m *Metrics) Clear() {
	backupLastSuccessTimestamp.DeleteLabelValues(m.namespace, m.name)
	backupLastDurationSeconds.DeleteLabelValues(m.namespace, m.name)
	backupLastSizeBytes.DeleteLabelValues(m.namespace, m.name)
	backupSuccessTotal.DeleteLabelValues(m.namespace, m.name)
	backupFailureTotal.DeleteLabelValues(m.namespace, m.name)
	backupConsecutiveFailures.DeleteLabelValues(m.namespace, m.name)
	backupInProgress.DeleteLabelValues(m.namespace, m.name)
}

package constants

// Common condition reasons used by the operator for various Status conditions.
const (
	// Ready indicates a resource is fully prepared and functional.
	ReasonReady = "Ready"
	// Error indicates a generic failure state.
	ReasonError = "Error"
	// Paused indicates reconciliation is disabled for the resource.
	ReasonPaused = "Paused"
	// Reconciling indicates the resource is currently being reconciled.
	ReasonReconciling = "Reconciling"

	// ReasonValidationFailed indicates the desired-state document failed validation.
	ReasonValidationFailed = "ValidationFailed"
	// ReasonExpansionFailed indicates workload expansion failed on a missing
	// required value with no default.
	ReasonExpansionFailed = "ExpansionFailed"
	// ReasonWorkloadsPending indicates expanded workloads are not yet available.
	ReasonWorkloadsPending = "WorkloadsPending"

	// ReasonHandshakeSucceeded indicates the gateway API socket completed a
	// version handshake.
	ReasonHandshakeSucceeded = "HandshakeSucceeded"
	// ReasonHandshakeFailed indicates the gateway API socket is not answering.
	ReasonHandshakeFailed = "HandshakeFailed"

	// ReasonBackupScheduled indicates backups are configured and the next run
	// is computed.
	ReasonBackupScheduled = "BackupScheduled"
	// ReasonBackupRunning indicates a backup Job is in flight.
	ReasonBackupRunning = "BackupRunning"
	// ReasonBackupSucceeded indicates the most recent backup Job uploaded and
	// verified its archive.
	ReasonBackupSucceeded = "BackupSucceeded"
	// ReasonBackupFailed indicates the most recent backup Job failed.
	ReasonBackupFailed = "BackupFailed"
	// ReasonBackupBlocked indicates backups are configured but a precondition
	// is not met, for example persistence is disabled.
	ReasonBackupBlocked = "BackupBlocked"
)

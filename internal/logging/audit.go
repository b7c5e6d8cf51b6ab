// Package logging provides audit-grade structured logging for gateway
// lifecycle actions.
package logging

import "github.com/go-logr/logr"

// Audit event types emitted by the operator and its companion binaries.
const (
	// EventCredentialsProvisioned is emitted when the preflight CLI creates
	// or updates the IB credential Secret.
	EventCredentialsProvisioned = "CredentialsProvisioned"

	// EventBackupStarted is emitted when a settings archive Job is launched.
	EventBackupStarted = "BackupStarted"

	// EventBackupCompleted is emitted when an archive has been uploaded and
	// verified in object storage.
	EventBackupCompleted = "BackupCompleted"

	// EventBackupFailed is emitted when an archive attempt fails.
	EventBackupFailed = "BackupFailed"

	// EventRestartTriggered is emitted when a scheduled restart rolls the
	// gateway Deployment.
	EventRestartTriggered = "RestartTriggered"

	// EventImageVerified and EventImageRejected record the outcome of
	// container image signature checks.
	EventImageVerified = "ImageVerified"
	EventImageRejected = "ImageRejected"
)

// LogAuditEvent logs a structured audit event for operator actions that
// touch credentials, the live gateway session, or stored archives. Audit
// events are tagged with "audit=true" so log aggregation pipelines can
// route them apart from regular operational logs.
func LogAuditEvent(logger logr.Logger, eventType string, fields map[string]string) {
	auditLogger := logger.WithValues("audit", "true", "event_type", eventType)
	for key, value := range fields {
		auditLogger = auditLogger.WithValues(key, value)
	}
	auditLogger.Info("Operator audit event")
}

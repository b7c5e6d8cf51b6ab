package constants

// Common mount paths used by gateway pods and helper executables.
const (
	// PathTemplates is the read-only ConfigMap mount holding the rendered
	// configuration templates.
	PathTemplates = "/etc/ibgateway/templates"
	// PathSettings is the writable persistent mount the gateway process keeps
	// its settings in. The materializer seeds it before the gateway starts.
	PathSettings = "/home/ibgateway/Jts"
	// DirAutomation is the automation-settings subdirectory name under the
	// settings mount.
	DirAutomation = "ibc"
	// PathSettingsIBC is the automation-settings directory under the settings
	// mount.
	PathSettingsIBC = PathSettings + "/" + DirAutomation
)

// Configuration file names. These are both ConfigMap keys and materialized
// file names.
const (
	FileGatewaySettings    = "jts.ini"
	FileAutomationSettings = "config.ini"
)

// Common volume names used by gateway pods.
const (
	VolumeTemplates = "config-templates"
	VolumeSettings  = "settings"
)

// PathProbeBinary is where the materializer copies the probe helper so the
// gateway container can exec it. The gateway image itself ships no probe.
const PathProbeBinary = "/utils/" + BinaryNameProbe

// Backup executor mounted file paths.
const (
	PathBackupCredentials = "/etc/ibgateway/backup/credentials"
)

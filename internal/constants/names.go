package constants

// Resource name suffixes used by the operator when creating per-gateway resources.
const (
	SuffixGateway   = "-gateway"
	SuffixBridge    = "-novnc"
	SuffixScripting = "-python"

	SuffixConfigMap   = "-config"
	SuffixSettingsPVC = "-settings"
	SuffixCredentials = "-credentials"
	SuffixBackup      = "-backup"
)

// Well-known container names used across the operator and helper binaries.
const (
	ContainerNameGateway     = "gateway"
	ContainerNameBridge      = "novnc"
	ContainerNameScripting   = "python"
	ContainerNameConfigInit  = "config-init"
	ContainerNameWaitGateway = "wait-gateway"
	ContainerNameBackup      = "backup"
)

// Helper binary names shipped in the operator image.
const (
	BinaryNameConfigInit = "ibgw-config-init"
	BinaryNameProbe      = "ibgw-probe"
	BinaryNameBackup     = "ibgw-backup"
)

// FieldOwner is the server-side apply field manager identity for all
// operator-owned resources.
const FieldOwner = "ibgateway-operator"

package constants

// Environment variable keys shared between the operator and helper binaries.
const (
	// Kubernetes metadata
	EnvHostname = "HOSTNAME"
	EnvPodIP    = "POD_IP"

	// EnvOperatorImage names the operator's own image, set on the operator
	// Deployment. It is the default executor image for backup Jobs.
	EnvOperatorImage = "OPERATOR_IMAGE"

	// Gateway runtime configuration (rendered ConfigMap keys)
	EnvTWSPort     = "TWS_PORT"
	EnvAPIPort     = "API_PORT"
	EnvTradingMode = "TRADING_MODE"
	EnvTimezone    = "TZ"
	EnvLogLevel    = "LOG_LEVEL"
	EnvAutoRestart = "IBC_AUTO_RESTART_ON_DISCONNECT"
	EnvVNCPassword = "VNC_SERVER_PASSWORD" // #nosec G101 -- env var name, not a credential

	// Account credentials, injected from the credentials Secret
	EnvTWSUserID   = "TWS_USERID"
	EnvTWSPassword = "TWS_PASSWORD" // #nosec G101 -- env var name, not a credential
	EnvIBAccount   = "IB_ACCOUNT"

	// Desktop bridge target
	EnvVNCHost = "VNC_HOST"
	EnvVNCPort = "VNC_PORT"

	// Scripting sidecar API target
	EnvIBHost     = "IB_HOST"
	EnvIBPort     = "IB_PORT"
	EnvIBClientID = "IB_CLIENT_ID"
)

// Backup executor environment (gateway context + object storage target).
const (
	EnvGatewayNamespace = "GATEWAY_NAMESPACE"
	EnvGatewayName      = "GATEWAY_NAME"
	EnvSettingsDir      = "SETTINGS_DIR"

	EnvBackupEndpoint     = "BACKUP_ENDPOINT"
	EnvBackupBucket       = "BACKUP_BUCKET"
	EnvBackupPathPrefix   = "BACKUP_PATH_PREFIX"
	EnvBackupRegion       = "BACKUP_REGION"
	EnvBackupUsePathStyle = "BACKUP_USE_PATH_STYLE"

	EnvBackupPartSize    = "BACKUP_PART_SIZE"
	EnvBackupConcurrency = "BACKUP_CONCURRENCY"

	EnvBackupCredentialsPath   = "BACKUP_CREDENTIALS_PATH" // #nosec G101 -- env var name, not a credential
	EnvBackupRetentionMaxCount = "BACKUP_RETENTION_MAX_COUNT"

	// EnvBackupObjectKey carries the pre-generated object key for the archive.
	// The controller generates it before creating the Job so that status can
	// report the key without reading it back from object storage.
	EnvBackupObjectKey = "BACKUP_OBJECT_KEY"
)

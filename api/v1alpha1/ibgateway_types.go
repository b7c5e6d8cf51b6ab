/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package v1alpha1

import (
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	// IBGatewayFinalizer is the finalizer used to ensure cleanup logic runs
	// before an IBGateway is fully deleted.
	IBGatewayFinalizer = "ibgateway.dc-tec.io/finalizer"
)

// TradingMode selects which Interactive Brokers environment the gateway
// session logs into. The mode decides which API port the gateway listens on:
// 4001 for live accounts, 4002 for paper accounts.
// +kubebuilder:validation:Enum=paper;live
type TradingMode string

const (
	// TradingModePaper connects to the IB paper-trading environment.
	TradingModePaper TradingMode = "paper"
	// TradingModeLive connects to the IB live-trading environment.
	TradingModeLive TradingMode = "live"
)

// GatewayPhase is a high-level summary of gateway state.
// +kubebuilder:validation:Enum=Pending;Running;Degraded;Failed
type GatewayPhase string

const (
	GatewayPhasePending  GatewayPhase = "Pending"
	GatewayPhaseRunning  GatewayPhase = "Running"
	GatewayPhaseDegraded GatewayPhase = "Degraded"
	GatewayPhaseFailed   GatewayPhase = "Failed"
)

// ConditionType identifies a specific aspect of gateway health or lifecycle.
// This type is kept as a strong string alias to avoid stringly-typed code.
type ConditionType string

const (
	// ConditionValidated indicates whether the desired-state document passed
	// validation against the bound credential Secret.
	ConditionValidated ConditionType = "Validated"
	// ConditionReady indicates whether all enabled workloads are available.
	ConditionReady ConditionType = "Ready"
	// ConditionGatewayReachable reflects the outcome of the most recent TWS
	// API handshake against the gateway Service.
	ConditionGatewayReachable ConditionType = "GatewayReachable"
	// ConditionBackupReady reflects the outcome of the most recent settings
	// backup Job, when backups are configured.
	ConditionBackupReady ConditionType = "BackupReady"
	// ConditionDegraded is set when the gateway keeps serving but some
	// non-fatal aspect needs operator attention: the TWS handshake is
	// failing, backups are failing, or the Gateway API CRDs are missing
	// while spec.gatewayRoute asks for an HTTPRoute.
	ConditionDegraded ConditionType = "Degraded"
)

// LogLevel controls the verbosity the gateway process is configured with.
// +kubebuilder:validation:Enum=debug;info;warn;error
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// ImageSpec identifies a container image by repository and tag.
type ImageSpec struct {
	// Repository is the image repository, for example "ghcr.io/gnzsnz/ib-gateway".
	// +kubebuilder:validation:MinLength=1
	Repository string `json:"repository"`
	// Tag is the image tag, for example "10.30.1t".
	// +kubebuilder:validation:MinLength=1
	Tag string `json:"tag"`
	// PullPolicy is the Kubernetes image pull policy.
	// +kubebuilder:validation:Enum=Always;IfNotPresent;Never
	// +kubebuilder:default=IfNotPresent
	// +optional
	PullPolicy corev1.PullPolicy `json:"pullPolicy,omitempty"`
}

// Reference returns the "repository:tag" form of the image.
func (s ImageSpec) Reference() string {
	return s.Repository + ":" + s.Tag
}

// LoggingConfig controls the log verbosity handed to the gateway process.
type LoggingConfig struct {
	// Level is the gateway log level.
	// +kubebuilder:default=info
	// +optional
	Level LogLevel `json:"level,omitempty"`
}

// SecretKeySelector selects a single key of a Secret in the gateway namespace.
type SecretKeySelector struct {
	// Name of the Secret.
	// +kubebuilder:validation:MinLength=1
	Name string `json:"name"`
	// Key within the Secret.
	// +kubebuilder:validation:MinLength=1
	Key string `json:"key"`
}

// EnvValueSource is the source of an environment variable value.
type EnvValueSource struct {
	// SecretKeyRef selects a key of a Secret in the gateway namespace.
	SecretKeyRef SecretKeySelector `json:"secretKeyRef"`
}

// EnvEntry declares one environment variable for the gateway container.
// Exactly one of Value and ValueFrom must be set: an entry with both (or
// neither) is rejected by validation rather than resolved by precedence.
type EnvEntry struct {
	// Name is the environment variable name.
	// +kubebuilder:validation:MinLength=1
	Name string `json:"name"`
	// Value is a literal value, projected verbatim into the container.
	// +optional
	Value *string `json:"value,omitempty"`
	// ValueFrom resolves the value from a Secret key at pod start, keeping
	// the secret material out of the rendered configuration.
	// +optional
	ValueFrom *EnvValueSource `json:"valueFrom,omitempty"`
}

// PortSpec declares one Service port for a workload.
type PortSpec struct {
	// Name identifies the port; must be unique within one workload.
	// +kubebuilder:validation:MinLength=1
	Name string `json:"name"`
	// Port is the port exposed by the Service. Consumers connect here, and
	// rendered configuration values such as TWS_PORT are projected from it.
	// +kubebuilder:validation:Minimum=1
	// +kubebuilder:validation:Maximum=65535
	Port int32 `json:"port"`
	// TargetPort is the container port the Service forwards to.
	// +kubebuilder:validation:Minimum=1
	// +kubebuilder:validation:Maximum=65535
	TargetPort int32 `json:"targetPort"`
	// Protocol defaults to TCP.
	// +kubebuilder:validation:Enum=TCP;UDP
	// +kubebuilder:default=TCP
	// +optional
	Protocol corev1.Protocol `json:"protocol,omitempty"`
}

// ServiceConfig controls how the gateway Service is exposed.
type ServiceConfig struct {
	// Type is the Kubernetes Service type, for example "ClusterIP" or "LoadBalancer".
	// +optional
	Type corev1.ServiceType `json:"type,omitempty"`
	// Ports lists the Service ports. When omitted, the defaulter fills the
	// standard pair: tws 4001->4003/TCP and api 4002->4004/TCP.
	// +optional
	Ports []PortSpec `json:"ports,omitempty"`
	// Annotations are additional annotations to apply to the Service.
	// +optional
	Annotations map[string]string `json:"annotations,omitempty"`
}

// PersistenceConfig configures the persistent volume backing the gateway
// settings directory. The volume survives pod restarts so the gateway keeps
// its session layout, watchlists, and API configuration.
type PersistenceConfig struct {
	// Enabled controls whether a PersistentVolumeClaim is created. When
	// false, settings live in an emptyDir and are lost on pod restart.
	// +optional
	Enabled bool `json:"enabled"`
	// AccessMode is the PVC access mode.
	// +kubebuilder:validation:Enum=ReadWriteOnce;ReadWriteMany
	// +kubebuilder:default=ReadWriteOnce
	// +optional
	AccessMode corev1.PersistentVolumeAccessMode `json:"accessMode,omitempty"`
	// StorageClassName is an optional StorageClass for the PVC. When nil the
	// platform default class applies.
	// +optional
	StorageClassName *string `json:"storageClassName,omitempty"`
	// Size is the requested volume size, for example "1Gi". Required when
	// Enabled is true.
	// +optional
	Size string `json:"size,omitempty"`
}

// VNCConfig configures desktop access to the gateway's X session.
type VNCConfig struct {
	// Enabled exposes the VNC server port on the gateway Service.
	// +optional
	Enabled bool `json:"enabled"`
	// Port is the VNC server port inside the gateway container.
	// +kubebuilder:default=5900
	// +kubebuilder:validation:Minimum=1
	// +kubebuilder:validation:Maximum=65535
	// +optional
	Port int32 `json:"port,omitempty"`
	// Password protects the VNC session. An empty value leaves the server
	// password handling to the gateway image defaults.
	// +optional
	Password string `json:"password,omitempty"`
}

// NoVNCConfig toggles the desktop-bridge workload: a web front end that
// makes the gateway's VNC session reachable from a browser.
type NoVNCConfig struct {
	// Enabled controls whether the bridge Deployment and Service exist.
	// Disabling removes both.
	// +optional
	Enabled bool `json:"enabled"`
	// Image is the bridge container image. Required when Enabled is true.
	// +optional
	Image *ImageSpec `json:"image,omitempty"`
	// Port is the HTTP port the bridge serves on.
	// +kubebuilder:default=6080
	// +kubebuilder:validation:Minimum=1
	// +kubebuilder:validation:Maximum=65535
	// +optional
	Port int32 `json:"port,omitempty"`
}

// PythonServiceConfig toggles the scripting sidecar workload: a companion
// API client wired to the gateway socket via IB_HOST/IB_PORT/IB_CLIENT_ID.
type PythonServiceConfig struct {
	// Enabled controls whether the sidecar Deployment and Service exist.
	// Disabling removes both.
	// +optional
	Enabled bool `json:"enabled"`
	// Image is the sidecar container image. Required when Enabled is true.
	// +optional
	Image *ImageSpec `json:"image,omitempty"`
	// Port is the HTTP port the sidecar serves on.
	// +kubebuilder:default=8000
	// +kubebuilder:validation:Minimum=1
	// +kubebuilder:validation:Maximum=65535
	// +optional
	Port int32 `json:"port,omitempty"`
	// ClientID is the IB API client id the sidecar connects with. Each
	// concurrent API session needs a distinct id.
	// +kubebuilder:default=123
	// +kubebuilder:validation:Minimum=0
	// +optional
	ClientID int32 `json:"clientID,omitempty"`
}

// IngressPath maps an external path prefix to a Service and port.
type IngressPath struct {
	// Path is the HTTP path prefix, for example "/vnc".
	// +kubebuilder:validation:MinLength=1
	Path string `json:"path"`
	// Service selects the backend by component: "novnc" or "python". An
	// unknown value is projected as declared and is simply inert at runtime.
	// +kubebuilder:validation:MinLength=1
	Service string `json:"service"`
	// Port is the backend Service port.
	// +kubebuilder:validation:Minimum=1
	// +kubebuilder:validation:Maximum=65535
	Port int32 `json:"port"`
}

// IngressConfig controls optional HTTP(S) ingress in front of the bridge and
// sidecar Services.
type IngressConfig struct {
	// Enabled controls whether the operator manages an Ingress.
	// +optional
	Enabled bool `json:"enabled"`
	// ClassName is an optional IngressClassName (for example "nginx").
	// +optional
	ClassName *string `json:"className,omitempty"`
	// Host is the primary host for external access.
	// +kubebuilder:validation:MinLength=1
	Host string `json:"host"`
	// Paths lists the routing rules. When empty, defaults route "/" to the
	// bridge when it is enabled.
	// +optional
	Paths []IngressPath `json:"paths,omitempty"`
	// TLSSecretName is an optional TLS Secret for the host.
	// +optional
	TLSSecretName string `json:"tlsSecretName,omitempty"`
	// Annotations are additional annotations to apply to the Ingress.
	// Overlay-network and controller-specific behavior is configured here.
	// +optional
	Annotations map[string]string `json:"annotations,omitempty"`
}

// GatewayReference identifies a Gateway API Gateway resource.
type GatewayReference struct {
	// Name of the Gateway resource.
	// +kubebuilder:validation:MinLength=1
	Name string `json:"name"`
	// Namespace of the Gateway resource. If empty, uses the IBGateway namespace.
	// +optional
	Namespace string `json:"namespace,omitempty"`
}

// GatewayRouteConfig configures Kubernetes Gateway API access as an
// alternative to Ingress. When enabled, the operator creates an HTTPRoute
// that routes traffic through a user-managed Gateway resource.
type GatewayRouteConfig struct {
	// Enabled activates Gateway API support.
	Enabled bool `json:"enabled"`
	// GatewayRef references an existing Gateway resource that will handle
	// traffic. The Gateway must already exist.
	GatewayRef GatewayReference `json:"gatewayRef"`
	// Hostname for routing traffic to the bridge.
	// +kubebuilder:validation:MinLength=1
	Hostname string `json:"hostname"`
	// Annotations to apply to the HTTPRoute resource.
	// +optional
	Annotations map[string]string `json:"annotations,omitempty"`
}

// SecurityConfig groups session-safety settings for the gateway process.
type SecurityConfig struct {
	// AutoRestartOnDisconnect controls whether the in-container automation
	// restarts the gateway session after an unexpected disconnect.
	// +kubebuilder:default=true
	// +optional
	AutoRestartOnDisconnect *bool `json:"autoRestartOnDisconnect,omitempty"`
}

// RestartSchedule configures control-plane driven rolling restarts. IB
// sessions require a daily restart; scheduling it here rolls the gateway
// Deployment instead of relying on in-container timers.
type RestartSchedule struct {
	// Schedule is a 5-field cron expression evaluated in the controller's
	// clock, for example "0 2 * * *" for 02:00 daily.
	// +kubebuilder:validation:MinLength=1
	Schedule string `json:"schedule"`
}

// BackupTarget describes the object storage destination for settings archives.
type BackupTarget struct {
	// Endpoint is the HTTP(S) endpoint for the object storage service.
	// +kubebuilder:validation:MinLength=1
	Endpoint string `json:"endpoint"`
	// Bucket is the bucket or container name.
	// +kubebuilder:validation:MinLength=1
	Bucket string `json:"bucket"`
	// Region is the region to use for S3-compatible clients. For many
	// S3-compatible stores (MinIO/Ceph) any non-empty value works.
	// +optional
	// +kubebuilder:default=us-east-1
	Region string `json:"region,omitempty"`
	// PathPrefix is an optional prefix within the bucket for this gateway's archives.
	// +optional
	PathPrefix string `json:"pathPrefix,omitempty"`
	// CredentialsSecretRef optionally references a Secret containing
	// credentials for the object store. The Secret must exist in the same
	// namespace as the IBGateway; cross-namespace references are not allowed.
	// +optional
	CredentialsSecretRef *corev1.LocalObjectReference `json:"credentialsSecretRef,omitempty"`
	// UsePathStyle controls whether to use path-style addressing. Set to
	// true for MinIO and S3-compatible stores that require path-style.
	// +optional
	// +kubebuilder:default=false
	UsePathStyle bool `json:"usePathStyle,omitempty"`
	// PartSizeBytes is the size of each part in multipart uploads.
	// +optional
	// +kubebuilder:default=10485760
	// +kubebuilder:validation:Minimum=5242880
	PartSizeBytes int64 `json:"partSizeBytes,omitempty"`
	// Concurrency is the number of parts uploaded concurrently.
	// +optional
	// +kubebuilder:default=3
	// +kubebuilder:validation:Minimum=1
	// +kubebuilder:validation:Maximum=10
	Concurrency int32 `json:"concurrency,omitempty"`
}

// BackupRetention defines the retention policy for settings archives.
type BackupRetention struct {
	// MaxCount is the maximum number of archives to retain (0 = unlimited).
	// Older archives beyond the count are deleted after a successful upload.
	// +kubebuilder:validation:Minimum=0
	// +optional
	MaxCount int32 `json:"maxCount,omitempty"`
}

// BackupSchedule defines when and where settings archives are stored.
type BackupSchedule struct {
	// Schedule is a 5-field cron expression, for example "0 3 * * *".
	// +kubebuilder:validation:MinLength=1
	Schedule string `json:"schedule"`
	// Target is the object storage configuration for archives.
	Target BackupTarget `json:"target"`
	// Retention defines optional archive retention policy.
	// +optional
	Retention *BackupRetention `json:"retention,omitempty"`
	// ExecutorImage is the container image the backup Job runs. It must
	// carry the backup executor binary. Defaults to the operator's own image.
	// +optional
	ExecutorImage string `json:"executorImage,omitempty"`
}

// ImageVerificationConfig configures supply chain security checks for the
// gateway, bridge, and sidecar images.
type ImageVerificationConfig struct {
	// Enabled controls whether image verification is enforced.
	Enabled bool `json:"enabled"`
	// PublicKey is the Cosign public key content used to verify signatures.
	// If empty, keyless verification is used (requires Issuer and Subject).
	// +optional
	PublicKey string `json:"publicKey,omitempty"`
	// Issuer is the OIDC issuer for keyless verification
	// (for example https://token.actions.githubusercontent.com).
	// +optional
	Issuer string `json:"issuer,omitempty"`
	// Subject is the OIDC subject for keyless verification.
	// +optional
	Subject string `json:"subject,omitempty"`
	// IgnoreTlog skips transparency log verification. When false (default),
	// signatures are verified against Rekor for non-repudiation.
	// +optional
	// +kubebuilder:default=false
	IgnoreTlog bool `json:"ignoreTlog,omitempty"`
	// ImagePullSecrets lists Secrets in the gateway namespace used to pull
	// signatures from private registries during verification. The Secrets
	// must be of type kubernetes.io/dockerconfigjson or kubernetes.io/dockercfg.
	// +optional
	ImagePullSecrets []corev1.LocalObjectReference `json:"imagePullSecrets,omitempty"`
}

// ProbeSpec carries the timing knobs for one probe.
type ProbeSpec struct {
	// +kubebuilder:validation:Minimum=0
	// +optional
	InitialDelaySeconds int32 `json:"initialDelaySeconds,omitempty"`
	// +kubebuilder:validation:Minimum=1
	// +optional
	PeriodSeconds int32 `json:"periodSeconds,omitempty"`
	// +kubebuilder:validation:Minimum=1
	// +optional
	TimeoutSeconds int32 `json:"timeoutSeconds,omitempty"`
	// +kubebuilder:validation:Minimum=1
	// +optional
	FailureThreshold int32 `json:"failureThreshold,omitempty"`
}

// ProbesConfig overrides probe timings on the gateway container.
type ProbesConfig struct {
	// Liveness probes the API socket with a TWS handshake.
	// +optional
	Liveness *ProbeSpec `json:"liveness,omitempty"`
	// Readiness probes the API socket with a TCP dial.
	// +optional
	Readiness *ProbeSpec `json:"readiness,omitempty"`
}

// IBGatewaySpec defines the desired state of an IBGateway: one Interactive
// Brokers gateway session plus its optional desktop bridge and scripting
// sidecar. The operator expands this document into a ConfigMap, a credential
// Secret binding, Deployments, Services, and the configured exposure objects.
type IBGatewaySpec struct {
	// Image is the gateway container image.
	Image ImageSpec `json:"image"`
	// TradingMode selects the IB environment to log into.
	// +kubebuilder:default=paper
	// +optional
	TradingMode TradingMode `json:"tradingMode,omitempty"`
	// Timezone is the IANA timezone the gateway session runs in. IB's daily
	// restart window is interpreted in this zone.
	// +kubebuilder:default=America/New_York
	// +optional
	Timezone string `json:"timezone,omitempty"`
	// Logging controls gateway process verbosity.
	// +optional
	Logging *LoggingConfig `json:"logging,omitempty"`
	// Env lists extra environment variables for the gateway container. Each
	// entry is either a literal or a Secret key reference, never both.
	// +optional
	Env []EnvEntry `json:"env,omitempty"`
	// CredentialsSecretRef names the Secret holding the session credentials.
	// The Secret must contain the keys TWS_USERID, TWS_PASSWORD, and IB_ACCOUNT.
	CredentialsSecretRef corev1.LocalObjectReference `json:"credentialsSecretRef"`
	// Service configures the gateway Service.
	// +optional
	Service *ServiceConfig `json:"service,omitempty"`
	// Persistence configures the settings volume.
	// +optional
	Persistence *PersistenceConfig `json:"persistence,omitempty"`
	// VNC configures desktop access on the gateway pod.
	// +optional
	VNC *VNCConfig `json:"vnc,omitempty"`
	// NoVNC toggles the desktop-bridge workload.
	// +optional
	NoVNC *NoVNCConfig `json:"novnc,omitempty"`
	// PythonService toggles the scripting sidecar workload.
	// +optional
	PythonService *PythonServiceConfig `json:"pythonService,omitempty"`
	// Ingress configures optional HTTP(S) ingress.
	// +optional
	Ingress *IngressConfig `json:"ingress,omitempty"`
	// GatewayRoute configures Gateway API access (alternative to Ingress).
	// +optional
	GatewayRoute *GatewayRouteConfig `json:"gatewayRoute,omitempty"`
	// Security groups session-safety settings.
	// +optional
	Security *SecurityConfig `json:"security,omitempty"`
	// Restart schedules control-plane driven rolling restarts.
	// +optional
	Restart *RestartSchedule `json:"restart,omitempty"`
	// Backup configures scheduled settings archives.
	// +optional
	Backup *BackupSchedule `json:"backup,omitempty"`
	// ImageVerification configures supply chain security checks.
	// +optional
	ImageVerification *ImageVerificationConfig `json:"imageVerification,omitempty"`
	// Probes overrides probe timings on the gateway container.
	// +optional
	Probes *ProbesConfig `json:"probes,omitempty"`
	// Paused, when true, pauses reconciliation for this IBGateway (except
	// delete and finalizers).
	// +optional
	Paused bool `json:"paused,omitempty"`
}

// BackupStatus tracks the state of settings backups for a gateway.
type BackupStatus struct {
	// LastBackupTime is the timestamp of the last successful backup.
	// +optional
	LastBackupTime *metav1.Time `json:"lastBackupTime,omitempty"`
	// LastAttemptTime is the timestamp of the last backup attempt, regardless
	// of outcome. Used to avoid retry loops when a scheduled backup fails.
	// +optional
	LastAttemptTime *metav1.Time `json:"lastAttemptTime,omitempty"`
	// LastAttemptScheduledTime is the scheduled time of the last backup
	// attempt. It is derived from the cron schedule and ensures at-most-once
	// execution per scheduled window.
	// +optional
	LastAttemptScheduledTime *metav1.Time `json:"lastAttemptScheduledTime,omitempty"`
	// LastBackupName is the object key of the last successful archive.
	// +optional
	LastBackupName string `json:"lastBackupName,omitempty"`
	// LastBackupSize is the size in bytes of the last successful archive.
	// +optional
	LastBackupSize int64 `json:"lastBackupSize,omitempty"`
	// NextScheduledBackup is when the next backup is scheduled.
	// +optional
	NextScheduledBackup *metav1.Time `json:"nextScheduledBackup,omitempty"`
	// ConsecutiveFailures is the number of consecutive backup failures.
	// +optional
	ConsecutiveFailures int32 `json:"consecutiveFailures,omitempty"`
	// LastFailureReason describes why the last backup failed (if applicable).
	// +optional
	LastFailureReason string `json:"lastFailureReason,omitempty"`
}

// RestartStatus tracks control-plane driven restarts for a gateway.
type RestartStatus struct {
	// LastRestartTime is when the gateway Deployment was last rolled by the
	// restart schedule.
	// +optional
	LastRestartTime *metav1.Time `json:"lastRestartTime,omitempty"`
	// NextRestartTime is when the next scheduled restart is due.
	// +optional
	NextRestartTime *metav1.Time `json:"nextRestartTime,omitempty"`
}

// IBGatewayStatus defines the observed state of an IBGateway.
type IBGatewayStatus struct {
	// Phase is a high-level summary of the gateway state.
	// +optional
	Phase GatewayPhase `json:"phase,omitempty"`
	// ObservedGeneration is the generation most recently reconciled.
	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`
	// RenderedConfigRevision is a deterministic hash of the rendered runtime
	// configuration; it changes exactly when the rendered config changes.
	// +optional
	RenderedConfigRevision string `json:"renderedConfigRevision,omitempty"`
	// GatewayAddress is the in-cluster DNS name of the gateway Service.
	// +optional
	GatewayAddress string `json:"gatewayAddress,omitempty"`
	// Backup tracks the state of settings backups.
	// +optional
	Backup *BackupStatus `json:"backup,omitempty"`
	// Restart tracks control-plane driven restarts.
	// +optional
	Restart *RestartStatus `json:"restart,omitempty"`
	// Conditions represent the current state of the IBGateway resource.
	// +listType=map
	// +listMapKey=type
	// +optional
	Conditions []metav1.Condition `json:"conditions,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:path=ibgateways,scope=Namespaced,shortName=ibgw
// +kubebuilder:printcolumn:name="Mode",type=string,JSONPath=`.spec.tradingMode`
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=`.status.phase`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`

// IBGateway is the Schema for the ibgateways API.
type IBGateway struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	// Spec defines the desired state of IBGateway.
	Spec IBGatewaySpec `json:"spec"`

	// Status defines the observed state of IBGateway.
	// +optional
	Status IBGatewayStatus `json:"status"`
}

// +kubebuilder:object:root=true

// IBGatewayList contains a list of IBGateway.
type IBGatewayList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata"`
	Items           []IBGateway `json:"items"`
}

func init() {
	SchemeBuilder.Register(&IBGateway{}, &IBGatewayList{})
}

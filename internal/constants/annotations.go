package constants

// Annotation keys set on pod templates managed by the operator.
const (
	// AnnotationConfigRevision carries the hash of the rendered configuration
	// so that config changes roll the gateway pods.
	AnnotationConfigRevision = "ibgateway.dc-tec.io/config-revision"
	// AnnotationRestartedAt carries the timestamp of the last scheduled
	// restart trigger (RFC3339). Patching it rolls the gateway Deployment.
	AnnotationRestartedAt = "ibgateway.dc-tec.io/restartedAt"
)

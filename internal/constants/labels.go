package constants

// Common Kubernetes label keys used by the operator.
const (
	LabelAppName      = "app.kubernetes.io/name"
	LabelAppInstance  = "app.kubernetes.io/instance"
	LabelAppManagedBy = "app.kubernetes.io/managed-by"
	LabelAppComponent = "app.kubernetes.io/component"

	LabelGateway   = "ibgateway.dc-tec.io/gateway"
	LabelComponent = "ibgateway.dc-tec.io/component"
	LabelRevision  = "ibgateway.dc-tec.io/revision"
)

// Common label values used by the operator.
const (
	LabelValueAppName   = "ib-gateway"
	LabelValueManagedBy = "ibgateway-operator"

	ComponentGateway   = "gateway"
	ComponentBridge    = "novnc"
	ComponentScripting = "python"
	ComponentBackup    = "backup"
)

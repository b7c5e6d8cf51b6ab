package ibgateway

// controllerName labels metric series and names the controller-runtime
// controller for this reconciler.
const controllerName = "ibgateway"

// Condition reasons local to this controller. Reasons shared with other
// packages live in internal/constants.
const (
	// ReasonValidationPassed marks the Validated condition after the desired
	// state checked out against the credentials Secret.
	ReasonValidationPassed = "ValidationPassed"
	// ReasonPrerequisitesMissing marks the Validated condition while the
	// referenced credentials Secret does not exist yet.
	ReasonPrerequisitesMissing = "PrerequisitesMissing"
	// ReasonImageVerificationFailed marks the Ready condition when a gateway
	// image failed cosign verification; no workload is rolled out.
	ReasonImageVerificationFailed = "ImageVerificationFailed"
	// ReasonAllWorkloadsReady marks the Ready condition once every enabled
	// Deployment reports availability.
	ReasonAllWorkloadsReady = "AllWorkloadsReady"
	// ReasonGatewayAPIMissing marks the Degraded condition while an HTTPRoute
	// is requested but the Gateway API CRDs are not installed.
	ReasonGatewayAPIMissing = "GatewayAPIMissing"
)

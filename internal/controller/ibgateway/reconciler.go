// Package ibgateway implements the controller that reconciles IBGateway
// resources into the workloads, configuration, and network surface of an
// Interactive Brokers gateway.
package ibgateway

import (
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/dc-tec/ibgateway-operator/internal/interfaces"
)

// IBGatewayReconciler reconciles a single IBGateway resource per request.
// Phase managers (infrastructure, backup, restart) are constructed per
// reconciliation; the reconciler itself holds only long-lived collaborators.
type IBGatewayReconciler struct {
	client.Client
	Scheme *runtime.Scheme

	// OperatorImage is the operator's own image reference. Helper containers
	// on gateway pods (config materializer, gateway-wait init, backup
	// executor) run this image.
	OperatorImage string

	// Prober performs the TWS API handshake behind the GatewayReachable
	// condition. Defaulted in SetupWithManager when unset.
	Prober interfaces.GatewayProber

	// ImageVerifier checks cosign signatures for the gateway images when the
	// spec enables verification. Defaulted in SetupWithManager when unset.
	ImageVerifier interfaces.ImageVerifier
}

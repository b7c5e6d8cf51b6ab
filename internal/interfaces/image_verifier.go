// Package interfaces defines service interfaces for dependency injection.
// This package enables loose coupling between components and facilitates testing.
package interfaces

import (
	"context"

	ibgwv1alpha1 "github.com/dc-tec/ibgateway-operator/api/v1alpha1"
	"github.com/dc-tec/ibgateway-operator/internal/security"
)

// ImageVerifier verifies the signatures of every container image an IBGateway
// pulls, using Cosign. Implementations should cache verification results so a
// steady-state reconcile loop does not hammer the registry.
type ImageVerifier interface {
	// VerifyGatewayImages verifies the gateway, desktop-bridge, and scripting
	// images referenced by the IBGateway spec. It returns a map of verified
	// image references to their pinned digest forms; when verification is
	// disabled the map is nil and the error is nil.
	VerifyGatewayImages(ctx context.Context, gw *ibgwv1alpha1.IBGateway) (security.ImagePins, error)
}

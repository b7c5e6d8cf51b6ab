package security

import (
	"context"
	"fmt"

	ibgwv1alpha1 "github.com/dc-tec/ibgateway-operator/api/v1alpha1"
	"github.com/dc-tec/ibgateway-operator/internal/logging"
)

// ImagePins maps an image reference to its digest-pinned form after
// successful signature verification.
type ImagePins map[string]string

// Pinned returns the digest form for ref, or ref unchanged when no pin was
// recorded (verification disabled, or the ref was never verified).
func (p ImagePins) Pinned(ref string) string {
	if pinned, ok := p[ref]; ok && pinned != "" {
		return pinned
	}
	return ref
}

// VerifyGatewayImages verifies the signature of every workload image the
// gateway runs (gateway, and the bridge and sidecar when enabled) and
// returns digest pins for the deployment builders. When verification is
// disabled it returns an empty pin set and a nil error.
func (v *ImageVerifier) VerifyGatewayImages(ctx context.Context, gw *ibgwv1alpha1.IBGateway) (ImagePins, error) {
	if gw == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	iv := gw.Spec.ImageVerification
	if iv == nil || !iv.Enabled {
		return nil, nil
	}
	if iv.PublicKey == "" && (iv.Issuer == "" || iv.Subject == "") {
		return nil, fmt.Errorf("image verification is enabled but neither public key nor keyless configuration (issuer and subject) is provided")
	}

	refs := []string{gw.Spec.Image.Reference()}
	if novnc := gw.Spec.NoVNC; novnc != nil && novnc.Enabled && novnc.Image != nil {
		refs = append(refs, novnc.Image.Reference())
	}
	if py := gw.Spec.PythonService; py != nil && py.Enabled && py.Image != nil {
		refs = append(refs, py.Image.Reference())
	}

	config := VerifyConfig{
		PublicKey:        iv.PublicKey,
		Issuer:           iv.Issuer,
		Subject:          iv.Subject,
		IgnoreTlog:       iv.IgnoreTlog,
		ImagePullSecrets: iv.ImagePullSecrets,
		Namespace:        gw.Namespace,
	}

	pins := make(ImagePins, len(refs))
	for _, ref := range refs {
		digest, err := v.Verify(ctx, ref, config)
		if err != nil {
			logging.LogAuditEvent(v.logger, logging.EventImageRejected, map[string]string{
				"namespace": gw.Namespace,
				"gateway":   gw.Name,
				"image":     ref,
				"reason":    err.Error(),
			})
			return nil, err
		}
		pins[ref] = digest
		logging.LogAuditEvent(v.logger, logging.EventImageVerified, map[string]string{
			"namespace": gw.Namespace,
			"gateway":   gw.Name,
			"image":     ref,
			"digest":    digest,
		})
	}
	return pins, nil
}

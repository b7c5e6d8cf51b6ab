package infra

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	appsv1 "k8s.io/api/apps/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"

	ibgwv1alpha1 "github.com/dc-tec/ibgateway-operator/api/v1alpha1"
	"github.com/dc-tec/ibgateway-operator/internal/constants"
	"github.com/dc-tec/ibgateway-operator/internal/security"
)

// ensureGatewayDeployment manages the gateway Deployment using Server-Side
// Apply. configRevision is the hash of the rendered configuration; it lands
// on the pod template so a config change rolls the pod.
func (m *Manager) ensureGatewayDeployment(ctx context.Context, _ logr.Logger, gw *ibgwv1alpha1.IBGateway, configRevision string, pins security.ImagePins) error {
	if m.operatorImage == "" {
		return fmt.Errorf("operator image is not configured; set %s on the operator Deployment", constants.EnvOperatorImage)
	}

	deployment := buildGatewayDeployment(gw, configRevision, m.operatorImage, pins)

	if err := m.applyResource(ctx, deployment, gw); err != nil {
		return fmt.Errorf("failed to ensure gateway Deployment %s/%s: %w", gw.Namespace, deployment.Name, err)
	}

	return nil
}

// ensureBridgeDeployment manages the desktop-bridge Deployment. Disabling the
// bridge deletes it.
func (m *Manager) ensureBridgeDeployment(ctx context.Context, logger logr.Logger, gw *ibgwv1alpha1.IBGateway, pins security.ImagePins) error {
	enabled := gw.Spec.NoVNC != nil && gw.Spec.NoVNC.Enabled
	name := bridgeName(gw)

	if !enabled {
		return m.deleteDeploymentIfExists(ctx, logger, gw.Namespace, name, "bridge no longer enabled")
	}

	deployment, err := buildBridgeDeployment(gw, m.operatorImage, pins)
	if err != nil {
		return err
	}

	if err := m.applyResource(ctx, deployment, gw); err != nil {
		return fmt.Errorf("failed to ensure bridge Deployment %s/%s: %w", gw.Namespace, name, err)
	}

	return nil
}

// ensureScriptingDeployment manages the scripting sidecar Deployment.
// Disabling the sidecar deletes it.
func (m *Manager) ensureScriptingDeployment(ctx context.Context, logger logr.Logger, gw *ibgwv1alpha1.IBGateway, pins security.ImagePins) error {
	enabled := gw.Spec.PythonService != nil && gw.Spec.PythonService.Enabled
	name := scriptingName(gw)

	if !enabled {
		return m.deleteDeploymentIfExists(ctx, logger, gw.Namespace, name, "sidecar no longer enabled")
	}

	deployment, err := buildScriptingDeployment(gw, m.operatorImage, pins)
	if err != nil {
		return err
	}

	if err := m.applyResource(ctx, deployment, gw); err != nil {
		return fmt.Errorf("failed to ensure sidecar Deployment %s/%s: %w", gw.Namespace, name, err)
	}

	return nil
}

func (m *Manager) deleteDeploymentIfExists(ctx context.Context, logger logr.Logger, namespace, name, reason string) error {
	deployment := &appsv1.Deployment{}
	err := m.client.Get(ctx, types.NamespacedName{
		Namespace: namespace,
		Name:      name,
	}, deployment)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to get Deployment %s/%s: %w", namespace, name, err)
	}

	logger.Info("Deleting Deployment", "deployment", name, "reason", reason)
	if err := m.client.Delete(ctx, deployment); err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to delete Deployment %s/%s: %w", namespace, name, err)
	}

	return nil
}

// deleteDeployments removes all Deployments associated with the IBGateway.
func (m *Manager) deleteDeployments(ctx context.Context, gw *ibgwv1alpha1.IBGateway) error {
	names := []string{
		gatewayName(gw),
		bridgeName(gw),
		scriptingName(gw),
	}

	for _, name := range names {
		if err := m.deleteDeploymentIfExists(ctx, logr.Discard(), gw.Namespace, name, "gateway deleted"); err != nil {
			return err
		}
	}

	return nil
}

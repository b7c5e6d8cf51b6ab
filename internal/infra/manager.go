// Package infra expands one IBGateway document into the concrete cluster
// objects that run it: the rendered ConfigMap, the settings volume, the
// gateway Deployment with its materializer init step, the optional desktop
// bridge and scripting sidecar, their Services, and the configured exposure
// objects. All objects are managed with Server-Side Apply under a single
// field owner so that re-running Reconcile on an unchanged document is a
// no-op.
package infra

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	ibgwv1alpha1 "github.com/dc-tec/ibgateway-operator/api/v1alpha1"
	"github.com/dc-tec/ibgateway-operator/internal/config"
	"github.com/dc-tec/ibgateway-operator/internal/constants"
	operatorerrors "github.com/dc-tec/ibgateway-operator/internal/errors"
	"github.com/dc-tec/ibgateway-operator/internal/revision"
	"github.com/dc-tec/ibgateway-operator/internal/security"
)

const (
	templatesVolumeName = constants.VolumeTemplates
	settingsVolumeName  = constants.VolumeSettings
	utilsVolumeName     = "utils"
	utilsMountPath      = "/utils"

	httpRouteSuffix = "-httproute"

	// The gateway image runs its session as a fixed non-root user. The pod
	// security context pins these IDs so the settings volume is writable by
	// both the materializer init step and the gateway process.
	gatewayUserID  = int64(1000)
	gatewayGroupID = int64(1000)
)

// ErrGatewayAPIMissing is returned when Gateway API routing is requested but
// the Gateway API CRDs are not installed in the cluster.
var ErrGatewayAPIMissing = errors.New("gateway API CRDs not installed")

// Manager reconciles infrastructure resources such as ConfigMaps, Deployments,
// and Services for an IBGateway.
type Manager struct {
	client        client.Client
	scheme        *runtime.Scheme
	operatorImage string
}

// NewManager constructs a Manager that uses the provided Kubernetes client.
// The scheme is used to set OwnerReferences on created resources for garbage
// collection. operatorImage is the operator's own image; it runs the
// materializer init container and the wait-gateway init containers, so it
// must be pullable from gateway namespaces.
func NewManager(c client.Client, scheme *runtime.Scheme, operatorImage string) *Manager {
	return &Manager{
		client:        c,
		scheme:        scheme,
		operatorImage: operatorImage,
	}
}

// Reconcile ensures infrastructure resources are aligned with the desired
// state for the given IBGateway.
//
// The reconciled set is:
//   - The rendered configuration ConfigMap (runtime env plus template files).
//   - The settings PersistentVolumeClaim when persistence is enabled.
//   - The gateway Service, plus bridge and sidecar Services when enabled.
//   - The optional Ingress and HTTPRoute exposure objects.
//   - The gateway Deployment, plus bridge and sidecar Deployments when enabled.
//
// Disabling the bridge, the sidecar, or an exposure object deletes it. The
// settings PVC is never deleted here: trading session state outlives both a
// persistence toggle and the IBGateway itself.
//
// pins maps image references to verified digest references; when a reference
// has a pin, the pinned digest is what lands in the pod spec so the image
// that runs is the image that was verified.
func (m *Manager) Reconcile(ctx context.Context, logger logr.Logger, gw *ibgwv1alpha1.IBGateway, pins security.ImagePins) error {
	data, err := config.Data(gw)
	if err != nil {
		return fmt.Errorf("failed to render configuration for IBGateway %s/%s: %w", gw.Namespace, gw.Name, err)
	}
	configRevision := revision.ConfigRevision(data)

	if err := m.ensureConfigMap(ctx, logger, gw, data); err != nil {
		return err
	}

	if err := m.ensureSettingsPVC(ctx, logger, gw); err != nil {
		return err
	}

	if err := m.ensureGatewayService(ctx, logger, gw); err != nil {
		return err
	}

	if err := m.ensureBridgeService(ctx, logger, gw); err != nil {
		return err
	}

	if err := m.ensureScriptingService(ctx, logger, gw); err != nil {
		return err
	}

	if err := m.ensureIngress(ctx, logger, gw); err != nil {
		return err
	}

	if err := m.ensureGatewayDeployment(ctx, logger, gw, configRevision, pins); err != nil {
		return err
	}

	if err := m.ensureBridgeDeployment(ctx, logger, gw, pins); err != nil {
		return err
	}

	if err := m.ensureScriptingDeployment(ctx, logger, gw, pins); err != nil {
		return err
	}

	// HTTPRoute is reconciled last: when the Gateway API CRDs are absent this
	// returns ErrGatewayAPIMissing, and by this point every workload has
	// already been applied, so a missing optional CRD never blocks trading.
	if err := m.ensureHTTPRoute(ctx, logger, gw); err != nil {
		return err
	}

	return nil
}

// applyResource uses Server-Side Apply to create or update a Kubernetes resource.
// This eliminates the need for Get-then-Create-or-Update logic and manual diffing.
//
// The resource must have TypeMeta, ObjectMeta (with Name and Namespace), and the
// desired Spec set. Owner references are set automatically.
func (m *Manager) applyResource(ctx context.Context, obj client.Object, gw *ibgwv1alpha1.IBGateway) error {
	// Set owner reference for garbage collection
	if err := controllerutil.SetControllerReference(gw, obj, m.scheme); err != nil {
		return fmt.Errorf("failed to set owner reference: %w", err)
	}

	patchOpts := []client.PatchOption{
		client.ForceOwnership,
		client.FieldOwner(constants.FieldOwner),
	}

	if err := m.client.Patch(ctx, obj, client.Apply, patchOpts...); err != nil {
		// Wrap transient Kubernetes API errors (rate limiting, temporary failures)
		if operatorerrors.IsTransientKubernetesAPI(err) {
			return operatorerrors.WrapTransientKubernetesAPI(fmt.Errorf("failed to apply resource %s/%s: %w", obj.GetNamespace(), obj.GetName(), err))
		}
		// Conflict errors are typically transient
		if apierrors.IsConflict(err) {
			return operatorerrors.WrapTransientKubernetesAPI(fmt.Errorf("failed to apply resource %s/%s: %w", obj.GetNamespace(), obj.GetName(), err))
		}
		return fmt.Errorf("failed to apply resource %s/%s: %w", obj.GetNamespace(), obj.GetName(), err)
	}

	return nil
}

// Cleanup removes the infrastructure objects associated with a deleted
// IBGateway.
//
// It is safe to call Cleanup multiple times; missing resources are treated as
// successfully deleted. The settings PVC and the credentials Secret are left
// alone: the PVC holds trading session state that must survive resource
// deletion, and the Secret is owned by whoever provisioned it.
func (m *Manager) Cleanup(ctx context.Context, logger logr.Logger, gw *ibgwv1alpha1.IBGateway) error {
	logger.Info("Cleaning up infrastructure for deleted IBGateway")

	if err := m.deleteDeployments(ctx, gw); err != nil {
		return fmt.Errorf("failed to delete Deployments for IBGateway %s/%s: %w", gw.Namespace, gw.Name, err)
	}

	if err := m.deleteServices(ctx, gw); err != nil {
		return fmt.Errorf("failed to delete Services for IBGateway %s/%s: %w", gw.Namespace, gw.Name, err)
	}

	if err := m.deleteConfigMap(ctx, gw); err != nil {
		return fmt.Errorf("failed to delete ConfigMap for IBGateway %s/%s: %w", gw.Namespace, gw.Name, err)
	}

	if err := m.deleteIngress(ctx, gw); err != nil {
		return fmt.Errorf("failed to delete Ingress for IBGateway %s/%s: %w", gw.Namespace, gw.Name, err)
	}

	if err := m.deleteHTTPRoute(ctx, gw); err != nil {
		return fmt.Errorf("failed to delete HTTPRoute for IBGateway %s/%s: %w", gw.Namespace, gw.Name, err)
	}

	logger.Info("Retaining settings PVC and credentials Secret", "pvc", settingsPVCName(gw))

	return nil
}

// GatewayServiceDNS returns the in-cluster DNS name the bridge, the sidecar,
// and external consumers use to reach the gateway Service.
func GatewayServiceDNS(gw *ibgwv1alpha1.IBGateway) string {
	return fmt.Sprintf("%s.%s.svc", gatewayName(gw), gw.Namespace)
}

// Helper functions used across multiple files

func infraLabels(gw *ibgwv1alpha1.IBGateway) map[string]string {
	return map[string]string{
		constants.LabelAppName:      constants.LabelValueAppName,
		constants.LabelAppInstance:  gw.Name,
		constants.LabelAppManagedBy: constants.LabelValueManagedBy,
		constants.LabelGateway:      gw.Name,
	}
}

// componentLabels returns the labels for one workload. The returned map is
// also used as the Deployment pod selector, so every key must be stable for
// the lifetime of the IBGateway.
func componentLabels(gw *ibgwv1alpha1.IBGateway, component string) map[string]string {
	labels := infraLabels(gw)
	labels[constants.LabelComponent] = component
	return labels
}

// Every per-gateway object name derives from exactly one of the helpers
// below. The component name doubles as the Service name, which is how the
// bridge and the sidecar address the gateway: by derived name, never by IP.

func gatewayName(gw *ibgwv1alpha1.IBGateway) string {
	return gw.Name + constants.SuffixGateway
}

func bridgeName(gw *ibgwv1alpha1.IBGateway) string {
	return gw.Name + constants.SuffixBridge
}

func scriptingName(gw *ibgwv1alpha1.IBGateway) string {
	return gw.Name + constants.SuffixScripting
}

func configMapName(gw *ibgwv1alpha1.IBGateway) string {
	return gw.Name + constants.SuffixConfigMap
}

func settingsPVCName(gw *ibgwv1alpha1.IBGateway) string {
	return gw.Name + constants.SuffixSettingsPVC
}

func ingressName(gw *ibgwv1alpha1.IBGateway) string {
	return gw.Name
}

func httpRouteName(gw *ibgwv1alpha1.IBGateway) string {
	return gw.Name + httpRouteSuffix
}

func int32Ptr(v int32) *int32 {
	return &v
}

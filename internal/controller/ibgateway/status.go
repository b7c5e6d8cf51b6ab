package ibgateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	appsv1 "k8s.io/api/apps/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	ibgwv1alpha1 "github.com/dc-tec/ibgateway-operator/api/v1alpha1"
	"github.com/dc-tec/ibgateway-operator/internal/config"
	"github.com/dc-tec/ibgateway-operator/internal/constants"
	controllermetrics "github.com/dc-tec/ibgateway-operator/internal/controller"
	inframanager "github.com/dc-tec/ibgateway-operator/internal/infra"
	"github.com/dc-tec/ibgateway-operator/internal/interfaces"
	"github.com/dc-tec/ibgateway-operator/internal/kube"
	"github.com/dc-tec/ibgateway-operator/internal/revision"
	"github.com/dc-tec/ibgateway-operator/internal/status"
)

// gatewayState carries observations across the phases of one reconciliation.
type gatewayState struct {
	gatewayReady      bool
	readyReplicas     int32
	pendingWorkloads  []string
	gatewayAPIMissing bool
	handshake         *interfaces.HandshakeResult
	handshakeErr      error
}

// observeWorkloads reads back the Deployments the infrastructure phase
// applied and records which enabled workloads are still pending. NotFound is
// tolerated: directly after the first apply the informer cache may not have
// caught up yet, and the safety net covers the gap.
func (r *IBGatewayReconciler) observeWorkloads(ctx context.Context, gw *ibgwv1alpha1.IBGateway, state *gatewayState) error {
	type workload struct {
		name    string
		enabled bool
		primary bool
	}
	workloads := []workload{
		{name: gw.Name + constants.SuffixGateway, enabled: true, primary: true},
		{name: gw.Name + constants.SuffixBridge, enabled: gw.Spec.NoVNC != nil && gw.Spec.NoVNC.Enabled},
		{name: gw.Name + constants.SuffixScripting, enabled: gw.Spec.PythonService != nil && gw.Spec.PythonService.Enabled},
	}

	for _, w := range workloads {
		if !w.enabled {
			continue
		}
		deployment := &appsv1.Deployment{}
		if err := r.Get(ctx, types.NamespacedName{Namespace: gw.Namespace, Name: w.name}, deployment); err != nil {
			if apierrors.IsNotFound(err) {
				state.pendingWorkloads = append(state.pendingWorkloads, w.name)
				continue
			}
			return fmt.Errorf("failed to fetch Deployment %s/%s: %w", gw.Namespace, w.name, err)
		}
		ready := deployment.Status.ReadyReplicas > 0
		if w.primary {
			state.gatewayReady = ready
			state.readyReplicas = deployment.Status.ReadyReplicas
		}
		if !ready {
			state.pendingWorkloads = append(state.pendingWorkloads, w.name)
		}
	}
	return nil
}

// applyConditions folds the pass's observations into the Ready and Degraded
// conditions. Validated, GatewayReachable, and BackupReady are owned by
// their phases and left untouched here.
func applyConditions(gw *ibgwv1alpha1.IBGateway, state *gatewayState) {
	if len(state.pendingWorkloads) == 0 {
		status.True(&gw.Status.Conditions, gw.Generation, ibgwv1alpha1.ConditionReady,
			ReasonAllWorkloadsReady, "All enabled workloads are available")
	} else {
		status.False(&gw.Status.Conditions, gw.Generation, ibgwv1alpha1.ConditionReady,
			constants.ReasonWorkloadsPending,
			fmt.Sprintf("Waiting for workloads: %s", strings.Join(state.pendingWorkloads, ", ")))
	}

	switch {
	case state.gatewayAPIMissing:
		status.True(&gw.Status.Conditions, gw.Generation, ibgwv1alpha1.ConditionDegraded,
			ReasonGatewayAPIMissing,
			"Gateway API CRDs are not installed but spec.gatewayRoute is enabled; install the CRDs or disable the route")
	case state.handshakeErr != nil:
		status.True(&gw.Status.Conditions, gw.Generation, ibgwv1alpha1.ConditionDegraded,
			constants.ReasonHandshakeFailed,
			"Gateway workloads are running but the TWS API handshake is failing")
	case backupFailing(gw):
		status.True(&gw.Status.Conditions, gw.Generation, ibgwv1alpha1.ConditionDegraded,
			constants.ReasonBackupFailed,
			fmt.Sprintf("Settings backups are failing (%d consecutive failures)", gw.Status.Backup.ConsecutiveFailures))
	default:
		status.False(&gw.Status.Conditions, gw.Generation, ibgwv1alpha1.ConditionDegraded,
			constants.ReasonReconciling, "No degradation observed")
	}
}

func backupFailing(gw *ibgwv1alpha1.IBGateway) bool {
	return gw.Status.Backup != nil && gw.Status.Backup.ConsecutiveFailures > 0
}

// computePhase derives the coarse phase from the pass's observations. The
// Failed phase is never computed here; only terminal configuration errors
// set it, and they bypass this path entirely.
func computePhase(gw *ibgwv1alpha1.IBGateway, state *gatewayState) ibgwv1alpha1.GatewayPhase {
	if !state.gatewayReady || len(state.pendingWorkloads) > 0 {
		return ibgwv1alpha1.GatewayPhasePending
	}
	if state.gatewayAPIMissing || state.handshakeErr != nil || backupFailing(gw) {
		return ibgwv1alpha1.GatewayPhaseDegraded
	}
	return ibgwv1alpha1.GatewayPhaseRunning
}

// patchStatusSSA persists gw.Status with Server-Side Apply. The apply
// document carries only the gateway's identity and status, so the API
// server merges the write without a resourceVersion precondition; a spec
// update landing mid-pass cannot conflict it away.
func (r *IBGatewayReconciler) patchStatusSSA(ctx context.Context, gw *ibgwv1alpha1.IBGateway) error {
	applyGW := &ibgwv1alpha1.IBGateway{
		TypeMeta: metav1.TypeMeta{
			APIVersion: ibgwv1alpha1.GroupVersion.String(),
			Kind:       "IBGateway",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      gw.Name,
			Namespace: gw.Namespace,
		},
		Status: gw.Status,
	}

	applyConfig, err := kube.ToApplyConfiguration(applyGW, r.Client)
	if err != nil {
		return fmt.Errorf("failed to convert IBGateway status to an apply configuration: %w", err)
	}

	return r.Status().Apply(ctx, applyConfig, client.FieldOwner(constants.FieldOwner))
}

// updateStatus persists the observed state: config revision, gateway
// address, conditions, phase, and the matching metric gauges. This is the
// single status write of a successful pass.
func (r *IBGatewayReconciler) updateStatus(ctx context.Context, logger logr.Logger, gw *ibgwv1alpha1.IBGateway, state *gatewayState) error {
	data, err := config.Data(gw)
	if err != nil {
		return fmt.Errorf("failed to render configuration for IBGateway %s/%s: %w", gw.Namespace, gw.Name, err)
	}
	gw.Status.RenderedConfigRevision = revision.ConfigRevision(data)
	gw.Status.GatewayAddress = inframanager.GatewayServiceDNS(gw)
	gw.Status.ObservedGeneration = gw.Generation

	applyConditions(gw, state)
	gw.Status.Phase = computePhase(gw, state)

	gatewayMetrics := controllermetrics.NewGatewayMetrics(gw.Namespace, gw.Name)
	gatewayMetrics.SetPhase(gw.Status.Phase)
	gatewayMetrics.SetReadyReplicas(float64(state.readyReplicas))
	gatewayMetrics.SetReachable(state.handshake != nil && state.handshakeErr == nil)

	if err := r.patchStatusSSA(ctx, gw); err != nil {
		return fmt.Errorf("failed to update status for IBGateway %s/%s: %w", gw.Namespace, gw.Name, err)
	}

	logger.Info("Reconciled IBGateway",
		"phase", gw.Status.Phase,
		"configRevision", gw.Status.RenderedConfigRevision,
		"readyReplicas", state.readyReplicas,
		"pendingWorkloads", len(state.pendingWorkloads),
	)
	return nil
}

// updateStatusForPaused records that reconciliation is intentionally not
// happening. Conditions whose truth cannot be observed while paused flip to
// Unknown rather than keeping a stale verdict.
func (r *IBGatewayReconciler) updateStatusForPaused(ctx context.Context, gw *ibgwv1alpha1.IBGateway) error {
	if gw.Status.Phase == "" {
		gw.Status.Phase = ibgwv1alpha1.GatewayPhasePending
	}
	gw.Status.ObservedGeneration = gw.Generation

	status.Unknown(&gw.Status.Conditions, gw.Generation, ibgwv1alpha1.ConditionReady,
		constants.ReasonPaused, "Reconciliation is paused; workload state is not being observed")
	status.Unknown(&gw.Status.Conditions, gw.Generation, ibgwv1alpha1.ConditionGatewayReachable,
		constants.ReasonPaused, "Reconciliation is paused; the gateway is not being probed")

	if err := r.patchStatusSSA(ctx, gw); err != nil {
		return fmt.Errorf("failed to update status for paused IBGateway %s/%s: %w", gw.Namespace, gw.Name, err)
	}
	return nil
}

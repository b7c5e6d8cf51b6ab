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

package ibgateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log"

	ibgwv1alpha1 "github.com/dc-tec/ibgateway-operator/api/v1alpha1"
	backupmanager "github.com/dc-tec/ibgateway-operator/internal/backup"
	"github.com/dc-tec/ibgateway-operator/internal/config"
	"github.com/dc-tec/ibgateway-operator/internal/constants"
	controllermetrics "github.com/dc-tec/ibgateway-operator/internal/controller"
	operatorerrors "github.com/dc-tec/ibgateway-operator/internal/errors"
	inframanager "github.com/dc-tec/ibgateway-operator/internal/infra"
	"github.com/dc-tec/ibgateway-operator/internal/kube"
	recon "github.com/dc-tec/ibgateway-operator/internal/reconcile"
	restartmanager "github.com/dc-tec/ibgateway-operator/internal/restart"
	"github.com/dc-tec/ibgateway-operator/internal/security"
	"github.com/dc-tec/ibgateway-operator/internal/status"
	"github.com/dc-tec/ibgateway-operator/internal/validation"
)

// +kubebuilder:rbac:groups=ibgateway.dc-tec.io,resources=ibgateways,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=ibgateway.dc-tec.io,resources=ibgateways/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=ibgateway.dc-tec.io,resources=ibgateways/finalizers,verbs=update
// +kubebuilder:rbac:groups=apps,resources=deployments,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=core,resources=services;configmaps;persistentvolumeclaims,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=core,resources=secrets,verbs=get;list;watch
// +kubebuilder:rbac:groups=batch,resources=jobs,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=networking.k8s.io,resources=ingresses,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=gateway.networking.k8s.io,resources=httproutes,verbs=get;list;watch;create;update;patch;delete

// Reconcile drives one IBGateway toward its desired state. Phases run in a
// fixed order: validate, restart bookkeeping, infrastructure, workload
// observation, connectivity, backup, status. Restart bookkeeping runs before
// infrastructure because the deployment builder stamps the restart anchor
// annotation from status into the pod template; deciding a restart after the
// apply would defer the roll by a full pass.
func (r *IBGatewayReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	reconcileMetrics := controllermetrics.NewReconcileMetrics(req.Namespace, req.Name, controllerName)
	startTime := time.Now()

	var reconcileErr error
	defer func() {
		reconcileMetrics.ObserveDuration(time.Since(startTime).Seconds())
		if reconcileErr != nil {
			reconcileMetrics.IncrementError(errorReason(reconcileErr))
		}
	}()

	logger := log.FromContext(ctx).WithValues(
		"gateway_namespace", req.Namespace,
		"gateway_name", req.Name,
		"controller", controllerName,
		"reconcile_id", time.Now().UnixNano(),
	)

	gw := &ibgwv1alpha1.IBGateway{}
	if err := r.Get(ctx, req.NamespacedName, gw); err != nil {
		if apierrors.IsNotFound(err) {
			return ctrl.Result{}, nil
		}
		reconcileErr = fmt.Errorf("failed to fetch IBGateway %s/%s: %w", req.Namespace, req.Name, err)
		return ctrl.Result{}, reconcileErr
	}

	if !gw.DeletionTimestamp.IsZero() {
		if containsFinalizer(gw, ibgwv1alpha1.IBGatewayFinalizer) {
			if err := r.handleDeletion(ctx, logger, gw); err != nil {
				reconcileErr = err
				return ctrl.Result{}, reconcileErr
			}
			removeFinalizer(gw, ibgwv1alpha1.IBGatewayFinalizer)
			if err := r.Update(ctx, gw); err != nil {
				reconcileErr = fmt.Errorf("failed to remove finalizer from IBGateway %s/%s: %w", gw.Namespace, gw.Name, err)
				return ctrl.Result{}, reconcileErr
			}
		}
		return ctrl.Result{}, nil
	}

	if !containsFinalizer(gw, ibgwv1alpha1.IBGatewayFinalizer) {
		gw.Finalizers = append(gw.Finalizers, ibgwv1alpha1.IBGatewayFinalizer)
		if err := r.Update(ctx, gw); err != nil {
			reconcileErr = fmt.Errorf("failed to add finalizer to IBGateway %s/%s: %w", gw.Namespace, gw.Name, err)
			return ctrl.Result{}, reconcileErr
		}
		// Requeue to observe the resource with the finalizer attached.
		return ctrl.Result{}, nil
	}

	if gw.Spec.Paused {
		logger.Info("Reconciliation is paused for this gateway")
		if err := r.updateStatusForPaused(ctx, gw); err != nil {
			reconcileErr = err
			return ctrl.Result{}, reconcileErr
		}
		return ctrl.Result{}, nil
	}

	state := &gatewayState{}

	if err := r.reconcileValidation(ctx, logger, gw); err != nil {
		result, retErr := r.classifyError(ctx, logger, gw, reconcileMetrics, err)
		reconcileErr = retErr
		return result, retErr
	}

	restartResult, err := r.reconcileRestart(ctx, logger, gw)
	if err != nil {
		result, retErr := r.classifyError(ctx, logger, gw, reconcileMetrics, err)
		reconcileErr = retErr
		return result, retErr
	}

	if err := r.reconcileInfra(ctx, logger, gw, state); err != nil {
		result, retErr := r.classifyError(ctx, logger, gw, reconcileMetrics, err)
		reconcileErr = retErr
		return result, retErr
	}

	if err := r.observeWorkloads(ctx, gw, state); err != nil {
		result, retErr := r.classifyError(ctx, logger, gw, reconcileMetrics, err)
		reconcileErr = retErr
		return result, retErr
	}

	r.reconcileConnectivity(ctx, logger, gw, state)

	backupResult, err := r.reconcileBackup(ctx, logger, gw)
	if err != nil {
		result, retErr := r.classifyError(ctx, logger, gw, reconcileMetrics, err)
		reconcileErr = retErr
		return result, retErr
	}

	if err := r.updateStatus(ctx, logger, gw, state); err != nil {
		reconcileErr = err
		return ctrl.Result{}, reconcileErr
	}

	// Safety net requeue: event filters deliberately drop status-only noise,
	// so drift that produces no watch event (for example a hand-edited
	// ConfigMap) is repaired on this cadence. Jitter spreads gateways out so
	// they do not reconcile in lockstep after an operator restart.
	jitterNanos := time.Now().UnixNano() % int64(constants.RequeueSafetyNetJitter)
	requeueAfter := constants.RequeueSafetyNetBase + time.Duration(jitterNanos)

	result := recon.Result{RequeueAfter: requeueAfter}
	result = recon.Merge(result, restartResult)
	result = recon.Merge(result, backupResult)

	logger.V(1).Info("Reconciliation complete; scheduling requeue", "requeueAfter", result.RequeueAfter)
	return ctrl.Result{RequeueAfter: result.RequeueAfter}, nil
}

// reconcileValidation resolves the credentials Secret and validates the
// desired state against it. The Validated condition is updated on both
// outcomes; a missing Secret is a prerequisite failure that heals when the
// user creates it, so it carries its own reason.
func (r *IBGatewayReconciler) reconcileValidation(ctx context.Context, logger logr.Logger, gw *ibgwv1alpha1.IBGateway) error {
	credentials, err := kube.GetCredentialsSecret(ctx, r.Client, gw)
	if err != nil {
		reason := constants.ReasonValidationFailed
		if errors.Is(err, operatorerrors.ErrPrerequisitesMissing) {
			reason = ReasonPrerequisitesMissing
		}
		status.False(&gw.Status.Conditions, gw.Generation, ibgwv1alpha1.ConditionValidated, reason, err.Error())
		if statusErr := r.patchStatusSSA(ctx, gw); statusErr != nil {
			logger.Error(statusErr, "Failed to update the Validated condition")
		}
		return err
	}

	if err := validation.ValidateGateway(gw, credentials); err != nil {
		status.False(&gw.Status.Conditions, gw.Generation, ibgwv1alpha1.ConditionValidated,
			constants.ReasonValidationFailed, err.Error())
		if statusErr := r.patchStatusSSA(ctx, gw); statusErr != nil {
			logger.Error(statusErr, "Failed to update the Validated condition")
		}
		return err
	}

	status.True(&gw.Status.Conditions, gw.Generation, ibgwv1alpha1.ConditionValidated,
		ReasonValidationPassed, "Desired state validated against the credentials Secret")
	return nil
}

// reconcileRestart runs the scheduled-restart bookkeeping. It mutates status
// in memory only; updateStatus persists the result at the end of the pass.
func (r *IBGatewayReconciler) reconcileRestart(ctx context.Context, logger logr.Logger, gw *ibgwv1alpha1.IBGateway) (recon.Result, error) {
	return restartmanager.NewManager().Reconcile(ctx, logger, gw)
}

// reconcileInfra verifies images when requested and applies the gateway's
// infrastructure: ConfigMap, PVC, Services, Ingress, Deployments, HTTPRoute.
// A missing Gateway API is tolerated and surfaced through the Degraded
// condition rather than failing the pass; every workload has already been
// applied by the time the route is attempted.
func (r *IBGatewayReconciler) reconcileInfra(ctx context.Context, logger logr.Logger, gw *ibgwv1alpha1.IBGateway, state *gatewayState) error {
	var pins security.ImagePins
	if gw.Spec.ImageVerification != nil && gw.Spec.ImageVerification.Enabled {
		if r.ImageVerifier == nil {
			return fmt.Errorf("image verification is enabled for IBGateway %s/%s but no verifier is configured", gw.Namespace, gw.Name)
		}
		verified, err := r.ImageVerifier.VerifyGatewayImages(ctx, gw)
		if err != nil {
			status.False(&gw.Status.Conditions, gw.Generation, ibgwv1alpha1.ConditionReady,
				ReasonImageVerificationFailed, err.Error())
			if statusErr := r.patchStatusSSA(ctx, gw); statusErr != nil {
				logger.Error(statusErr, "Failed to update status after image verification failure")
			}
			return fmt.Errorf("image verification failed for IBGateway %s/%s: %w", gw.Namespace, gw.Name, err)
		}
		pins = verified
	}

	manager := inframanager.NewManager(r.Client, r.Scheme, r.OperatorImage)
	if err := manager.Reconcile(ctx, logger, gw, pins); err != nil {
		if errors.Is(err, inframanager.ErrGatewayAPIMissing) {
			state.gatewayAPIMissing = true
			logger.Info("Gateway API CRDs are not installed; HTTPRoute was not reconciled")
			return nil
		}
		return err
	}
	return nil
}

// reconcileConnectivity probes the TWS API socket behind the gateway Service
// and records the outcome in the GatewayReachable condition. A failed
// handshake never fails the reconciliation: the workloads are healthy from
// Kubernetes' point of view and the condition is the signal.
func (r *IBGatewayReconciler) reconcileConnectivity(ctx context.Context, logger logr.Logger, gw *ibgwv1alpha1.IBGateway, state *gatewayState) {
	if !state.gatewayReady {
		status.Unknown(&gw.Status.Conditions, gw.Generation, ibgwv1alpha1.ConditionGatewayReachable,
			constants.ReasonWorkloadsPending, "Gateway workload is not ready; handshake not attempted")
		return
	}
	if r.Prober == nil {
		return
	}

	address := net.JoinHostPort(inframanager.GatewayServiceDNS(gw), strconv.Itoa(int(config.ExternalAPIPort(gw))))
	result, err := r.Prober.Probe(ctx, address)
	if err != nil {
		state.handshakeErr = err
		status.False(&gw.Status.Conditions, gw.Generation, ibgwv1alpha1.ConditionGatewayReachable,
			constants.ReasonHandshakeFailed,
			fmt.Sprintf("TWS API handshake against %s failed: %v", address, err))
		logger.Info("Gateway handshake failed", "address", address, "error", err.Error())
		return
	}

	state.handshake = result
	status.True(&gw.Status.Conditions, gw.Generation, ibgwv1alpha1.ConditionGatewayReachable,
		constants.ReasonHandshakeSucceeded,
		fmt.Sprintf("TWS API handshake succeeded (server version %d)", result.ServerVersion))
	logger.V(1).Info("Gateway handshake succeeded",
		"address", address,
		"serverVersion", result.ServerVersion,
		"elapsed", result.Elapsed,
	)
}

// reconcileBackup runs the settings-backup manager: precondition checks,
// Job lifecycle, retention bookkeeping. The manager owns the BackupReady
// condition and the backup status block.
func (r *IBGatewayReconciler) reconcileBackup(ctx context.Context, logger logr.Logger, gw *ibgwv1alpha1.IBGateway) (recon.Result, error) {
	return backupmanager.NewManager(r.Client, r.Scheme, r.OperatorImage).Reconcile(ctx, logger, gw)
}

// classifyError turns a phase error into the reconcile result the error
// class calls for. Terminal configuration errors park the gateway in the
// Failed phase and wait for a spec change; prerequisite and transient errors
// requeue on their class's cadence; unknown errors propagate so
// controller-runtime applies its backoff.
func (r *IBGatewayReconciler) classifyError(ctx context.Context, logger logr.Logger, gw *ibgwv1alpha1.IBGateway, metrics *controllermetrics.ReconcileMetrics, err error) (ctrl.Result, error) {
	if operatorerrors.IsTerminal(err) {
		gw.Status.Phase = ibgwv1alpha1.GatewayPhaseFailed
		controllermetrics.NewGatewayMetrics(gw.Namespace, gw.Name).SetPhase(gw.Status.Phase)
		if statusErr := r.patchStatusSSA(ctx, gw); statusErr != nil {
			logger.Error(statusErr, "Failed to record the Failed phase")
		}
	}

	should, after := operatorerrors.ShouldRequeue(err)
	if !should {
		metrics.IncrementError(errorReason(err))
		logger.Error(err, "Reconciliation failed with a terminal error; waiting for a spec change")
		return ctrl.Result{}, nil
	}
	if after > 0 {
		metrics.IncrementError(errorReason(err))
		logger.Error(err, "Reconciliation failed; requeueing", "requeueAfter", after)
		return ctrl.Result{RequeueAfter: after}, nil
	}
	return ctrl.Result{}, err
}

// errorReason maps an error to the reason label on the reconcile error
// counter.
func errorReason(err error) string {
	switch {
	case operatorerrors.IsValidation(err):
		return "ValidationError"
	case operatorerrors.IsTemplateExpansion(err):
		return "TemplateExpansionError"
	case operatorerrors.IsMaterialization(err):
		return "MaterializationError"
	case operatorerrors.IsConnectivity(err):
		return "ConnectivityError"
	case errors.Is(err, operatorerrors.ErrPrerequisitesMissing):
		return "PrerequisitesMissing"
	case operatorerrors.IsTransient(err):
		return "TransientError"
	default:
		return "InternalError"
	}
}

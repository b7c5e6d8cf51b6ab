package ibgateway

import (
	"context"

	"github.com/go-logr/logr"

	ibgwv1alpha1 "github.com/dc-tec/ibgateway-operator/api/v1alpha1"
	backupmanager "github.com/dc-tec/ibgateway-operator/internal/backup"
	controllermetrics "github.com/dc-tec/ibgateway-operator/internal/controller"
	inframanager "github.com/dc-tec/ibgateway-operator/internal/infra"
	restartmanager "github.com/dc-tec/ibgateway-operator/internal/restart"
)

// handleDeletion runs finalizer work before the IBGateway disappears: metric
// series are cleared so dashboards do not show ghosts, and infrastructure
// that owner references do not cover is cleaned up. The settings PVC is
// deliberately kept; trading session state outlives the resource.
func (r *IBGatewayReconciler) handleDeletion(ctx context.Context, logger logr.Logger, gw *ibgwv1alpha1.IBGateway) error {
	logger.Info("Handling IBGateway deletion")

	controllermetrics.NewGatewayMetrics(gw.Namespace, gw.Name).Clear()
	backupmanager.NewMetrics(gw.Namespace, gw.Name).Clear()
	restartmanager.NewMetrics(gw.Namespace, gw.Name).Clear()

	if err := inframanager.NewManager(r.Client, r.Scheme, r.OperatorImage).Cleanup(ctx, logger, gw); err != nil {
		return err
	}

	logger.Info("IBGateway cleanup complete")
	return nil
}

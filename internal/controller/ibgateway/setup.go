package ibgateway

import (
	"time"

	"golang.org/x/time/rate"
	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	"k8s.io/client-go/util/workqueue"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/controller"

	ibgwv1alpha1 "github.com/dc-tec/ibgateway-operator/api/v1alpha1"
	controllerpredicates "github.com/dc-tec/ibgateway-operator/internal/controller"
	gatewayclient "github.com/dc-tec/ibgateway-operator/internal/ibgateway"
	"github.com/dc-tec/ibgateway-operator/internal/security"
)

// SetupWithManager wires the reconciler into the manager. Collaborators left
// unset get production defaults here, so tests can inject fakes by setting
// the fields before calling this.
func (r *IBGatewayReconciler) SetupWithManager(mgr ctrl.Manager) error {
	if r.ImageVerifier == nil {
		r.ImageVerifier = security.NewImageVerifier(mgr.GetLogger().WithName("image-verifier"), r.Client, nil)
	}
	if r.Prober == nil {
		r.Prober = gatewayclient.NewClient(gatewayclient.Config{})
	}

	// HTTPRoute is deliberately absent from the Owns list: the Gateway API
	// CRDs may not be installed, and registering a watch for a type the
	// cluster does not serve fails manager startup. The safety-net requeue
	// repairs route drift instead.
	return ctrl.NewControllerManagedBy(mgr).
		For(&ibgwv1alpha1.IBGateway{}).
		Owns(&appsv1.Deployment{}).
		Owns(&corev1.Service{}).
		Owns(&corev1.ConfigMap{}).
		Owns(&networkingv1.Ingress{}).
		Owns(&batchv1.Job{}).
		WithEventFilter(controllerpredicates.IBGatewayPredicate()).
		WithOptions(controller.Options{
			MaxConcurrentReconciles: 3,
			RateLimiter: workqueue.NewTypedMaxOfRateLimiter(
				workqueue.NewTypedItemExponentialFailureRateLimiter[ctrl.Request](1*time.Second, 60*time.Second),
				&workqueue.TypedBucketRateLimiter[ctrl.Request]{Limiter: rate.NewLimiter(rate.Limit(10), 100)},
			),
		}).
		Named(controllerName).
		Complete(r)
}

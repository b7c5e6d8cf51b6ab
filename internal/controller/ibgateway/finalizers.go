package ibgateway

import (
	ibgwv1alpha1 "github.com/dc-tec/ibgateway-operator/api/v1alpha1"
)

// containsFinalizer checks whether the gateway carries the given finalizer.
func containsFinalizer(gw *ibgwv1alpha1.IBGateway, finalizer string) bool {
	for _, f := range gw.Finalizers {
		if f == finalizer {
			return true
		}
	}
	return false
}

// removeFinalizer removes the given finalizer from the gateway in memory.
// The caller is responsible for persisting the change.
func removeFinalizer(gw *ibgwv1alpha1.IBGateway, finalizer string) {
	finalizers := make([]string, 0, len(gw.Finalizers))
	for _, f := range gw.Finalizers {
		if f != finalizer {
			finalizers = append(finalizers, f)
		}
	}
	gw.Finalizers = finalizers
}

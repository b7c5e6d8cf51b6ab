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

package controller

import (
	"maps"
	"slices"

	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/event"
	"sigs.k8s.io/controller-runtime/pkg/predicate"
)

// IBGatewayPredicate filters watch events for the IBGateway controller and
// everything it owns. Status writes from the controller itself must not
// immediately re-trigger reconciliation, but two kinds of status changes are
// opted back in: workload availability flips, because they drive the Ready
// condition and gate the TWS handshake, and backup Job completions, because
// backup bookkeeping reacts to them.
func IBGatewayPredicate() predicate.Predicate {
	return predicate.Funcs{
		CreateFunc:  func(event.CreateEvent) bool { return true },
		DeleteFunc:  func(event.DeleteEvent) bool { return true },
		GenericFunc: func(event.GenericEvent) bool { return true },
		UpdateFunc: func(e event.UpdateEvent) bool {
			if e.ObjectOld == nil || e.ObjectNew == nil {
				return false
			}
			if oldDep, ok := e.ObjectOld.(*appsv1.Deployment); ok {
				if newDep, ok := e.ObjectNew.(*appsv1.Deployment); ok && availabilityChanged(oldDep, newDep) {
					return true
				}
			}
			if oldJob, ok := e.ObjectOld.(*batchv1.Job); ok {
				if newJob, ok := e.ObjectNew.(*batchv1.Job); ok && jobStateChanged(oldJob, newJob) {
					return true
				}
			}
			return metadataChanged(e.ObjectOld, e.ObjectNew)
		},
	}
}

// availabilityChanged reports whether a Deployment's readiness moved in a way
// the controller cares about.
func availabilityChanged(oldDep, newDep *appsv1.Deployment) bool {
	return oldDep.Status.ReadyReplicas != newDep.Status.ReadyReplicas ||
		oldDep.Status.AvailableReplicas != newDep.Status.AvailableReplicas ||
		oldDep.Status.UpdatedReplicas != newDep.Status.UpdatedReplicas
}

// jobStateChanged reports whether a Job started, finished, or failed since
// the last observation.
func jobStateChanged(oldJob, newJob *batchv1.Job) bool {
	return oldJob.Status.Succeeded != newJob.Status.Succeeded ||
		oldJob.Status.Failed != newJob.Status.Failed ||
		oldJob.Status.Active != newJob.Status.Active
}

// metadataChanged reports whether the parts of object metadata that carry
// intent changed: generation (spec edits), deletion timestamp, finalizers,
// labels, or annotations. Label and annotation churn is rare and usually a
// human signalling something, so it always passes through.
func metadataChanged(oldObj, newObj client.Object) bool {
	if oldObj.GetGeneration() != newObj.GetGeneration() {
		return true
	}
	if (oldObj.GetDeletionTimestamp() == nil) != (newObj.GetDeletionTimestamp() == nil) {
		return true
	}
	if !slices.Equal(oldObj.GetFinalizers(), newObj.GetFinalizers()) {
		return true
	}
	if !maps.Equal(oldObj.GetLabels(), newObj.GetLabels()) {
		return true
	}
	return !maps.Equal(oldObj.GetAnnotations(), newObj.GetAnnotations())
}

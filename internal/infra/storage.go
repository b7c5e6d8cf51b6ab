package infra

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"

	ibgwv1alpha1 "github.com/dc-tec/ibgateway-operator/api/v1alpha1"
)

// ensureSettingsPVC creates the settings PersistentVolumeClaim when
// persistence is enabled. An existing claim is left untouched: PVC specs are
// immutable apart from expansion, and the volume holds session state the
// gateway has since written.
//
// The claim carries no owner reference and is never deleted by the operator,
// not when persistence is toggled off and not when the IBGateway is deleted.
// A re-created IBGateway with the same name reattaches to it.
func (m *Manager) ensureSettingsPVC(ctx context.Context, logger logr.Logger, gw *ibgwv1alpha1.IBGateway) error {
	if gw.Spec.Persistence == nil || !gw.Spec.Persistence.Enabled {
		return nil
	}

	name := settingsPVCName(gw)

	existing := &corev1.PersistentVolumeClaim{}
	err := m.client.Get(ctx, types.NamespacedName{Namespace: gw.Namespace, Name: name}, existing)
	if err == nil {
		return nil
	}
	if !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to get settings PVC %s/%s: %w", gw.Namespace, name, err)
	}

	pvc, err := buildSettingsPVC(gw)
	if err != nil {
		return err
	}

	logger.Info("Creating settings PVC", "pvc", name, "size", gw.Spec.Persistence.Size)
	if err := m.client.Create(ctx, pvc); err != nil && !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("failed to create settings PVC %s/%s: %w", gw.Namespace, name, err)
	}

	return nil
}

// buildSettingsPVC constructs the settings claim for the given IBGateway.
func buildSettingsPVC(gw *ibgwv1alpha1.IBGateway) (*corev1.PersistentVolumeClaim, error) {
	persistence := gw.Spec.Persistence

	size, err := resource.ParseQuantity(persistence.Size)
	if err != nil {
		return nil, fmt.Errorf("invalid persistence size %q: %w", persistence.Size, err)
	}

	accessMode := persistence.AccessMode
	if accessMode == "" {
		accessMode = corev1.ReadWriteOnce
	}

	pvc := &corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{
			Name:      settingsPVCName(gw),
			Namespace: gw.Namespace,
			Labels:    infraLabels(gw),
		},
		Spec: corev1.PersistentVolumeClaimSpec{
			AccessModes: []corev1.PersistentVolumeAccessMode{accessMode},
			Resources: corev1.VolumeResourceRequirements{
				Requests: corev1.ResourceList{
					corev1.ResourceStorage: size,
				},
			},
		},
	}

	if persistence.StorageClassName != nil && *persistence.StorageClassName != "" {
		className := *persistence.StorageClassName
		pvc.Spec.StorageClassName = &className
	}

	return pvc, nil
}

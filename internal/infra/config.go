package infra

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"

	ibgwv1alpha1 "github.com/dc-tec/ibgateway-operator/api/v1alpha1"
)

// ensureConfigMap manages the rendered configuration ConfigMap using
// Server-Side Apply. The payload carries the runtime environment scalars and
// the two template file bodies keyed by filename; the gateway pod consumes
// the scalars through envFrom and the files through the templates mount.
func (m *Manager) ensureConfigMap(ctx context.Context, _ logr.Logger, gw *ibgwv1alpha1.IBGateway, data map[string]string) error {
	name := configMapName(gw)

	configMap := &corev1.ConfigMap{
		TypeMeta: metav1.TypeMeta{
			Kind:       "ConfigMap",
			APIVersion: "v1",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: gw.Namespace,
			Labels:    infraLabels(gw),
		},
		Data: data,
	}

	if err := m.applyResource(ctx, configMap, gw); err != nil {
		return fmt.Errorf("failed to ensure ConfigMap %s/%s: %w", gw.Namespace, name, err)
	}

	return nil
}

// deleteConfigMap removes the rendered configuration ConfigMap.
func (m *Manager) deleteConfigMap(ctx context.Context, gw *ibgwv1alpha1.IBGateway) error {
	configMap := &corev1.ConfigMap{}
	err := m.client.Get(ctx, types.NamespacedName{
		Namespace: gw.Namespace,
		Name:      configMapName(gw),
	}, configMap)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil
		}
		return err
	}

	if err := m.client.Delete(ctx, configMap); err != nil && !apierrors.IsNotFound(err) {
		return err
	}

	return nil
}

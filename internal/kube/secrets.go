// Package kube provides Kubernetes-specific utilities and helpers.
package kube

import (
	"context"
	"fmt"
	"sort"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	ibgwv1alpha1 "github.com/dc-tec/ibgateway-operator/api/v1alpha1"
	operatorerrors "github.com/dc-tec/ibgateway-operator/internal/errors"
)

// BuildCredentialsSecret assembles the gateway credential Secret the
// pre-flight procedure writes. Values arrive pre-validated; this only
// shapes the object.
func BuildCredentialsSecret(name, namespace string, data map[string]string) *corev1.Secret {
	byteData := make(map[string][]byte, len(data))
	for key, value := range data {
		byteData[key] = []byte(value)
	}

	return &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
		},
		Type: corev1.SecretTypeOpaque,
		Data: byteData,
	}
}

// UpsertSecret creates the Secret, or replaces the data of an existing one.
func UpsertSecret(ctx context.Context, c client.Client, secret *corev1.Secret) error {
	existing := &corev1.Secret{}
	err := c.Get(ctx, types.NamespacedName{Namespace: secret.Namespace, Name: secret.Name}, existing)
	if apierrors.IsNotFound(err) {
		if err := c.Create(ctx, secret); err != nil {
			return fmt.Errorf("failed to create Secret %s/%s: %w", secret.Namespace, secret.Name, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get Secret %s/%s: %w", secret.Namespace, secret.Name, err)
	}

	existing.Type = secret.Type
	existing.Data = secret.Data
	if err := c.Update(ctx, existing); err != nil {
		return fmt.Errorf("failed to update Secret %s/%s: %w", secret.Namespace, secret.Name, err)
	}
	return nil
}

// VerifySecretKeys reads the Secret back and confirms every listed key has
// a non-empty value. Missing keys are reported by name, sorted; values are
// never included.
func VerifySecretKeys(ctx context.Context, c client.Client, name, namespace string, keys []string) error {
	secret := &corev1.Secret{}
	if err := c.Get(ctx, types.NamespacedName{Namespace: namespace, Name: name}, secret); err != nil {
		return fmt.Errorf("failed to read back Secret %s/%s: %w", namespace, name, err)
	}

	var missing []string
	for _, key := range keys {
		if len(secret.Data[key]) == 0 {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("Secret %s/%s is missing keys: %v", namespace, name, missing)
	}
	return nil
}

// GetCredentialsSecret fetches the credential Secret a gateway document
// binds. A missing Secret classifies as prerequisites-missing so the
// reconciler polls for the pre-flight procedure to create it instead of
// failing terminally.
func GetCredentialsSecret(ctx context.Context, c client.Client, gw *ibgwv1alpha1.IBGateway) (*corev1.Secret, error) {
	name := gw.Spec.CredentialsSecretRef.Name
	if name == "" {
		return nil, operatorerrors.WrapValidation(
			fmt.Errorf("spec.credentialsSecretRef.name is empty"))
	}

	secret := &corev1.Secret{}
	err := c.Get(ctx, types.NamespacedName{Namespace: gw.Namespace, Name: name}, secret)
	if apierrors.IsNotFound(err) {
		return nil, operatorerrors.WrapPrerequisitesMissing(
			fmt.Errorf("credentials secret %s/%s not found", gw.Namespace, name))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credentials Secret %s/%s: %w", gw.Namespace, name, err)
	}
	return secret, nil
}

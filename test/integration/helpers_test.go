//go:build integration
// +build integration

package integration

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	ctrl "sigs.k8s.io/controller-runtime"

	ibgwv1alpha1 "github.com/dc-tec/ibgateway-operator/api/v1alpha1"
	"github.com/dc-tec/ibgateway-operator/internal/constants"
	ibgwcontroller "github.com/dc-tec/ibgateway-operator/internal/controller/ibgateway"
	"github.com/dc-tec/ibgateway-operator/internal/interfaces"
)

const testOperatorImage = "example.com/ibgateway-operator:test"

func newTestNamespace(t *testing.T) string {
	t.Helper()

	base := strings.ToLower(t.Name())
	base = strings.ReplaceAll(base, "/", "-")
	base = strings.ReplaceAll(base, "_", "-")
	if len(base) > 40 {
		base = base[:40]
	}

	ns := &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name: fmt.Sprintf("it-%s-%d", base, time.Now().UnixNano()),
		},
	}
	if err := k8sClient.Create(ctx, ns); err != nil && !apierrors.IsAlreadyExists(err) {
		t.Fatalf("create namespace: %v", err)
	}

	t.Cleanup(func() {
		_ = k8sClient.Delete(context.Background(), ns)
	})

	return ns.Name
}

func createCredentialsSecret(t *testing.T, namespace, gatewayName string) string {
	t.Helper()

	secretName := gatewayName + constants.SuffixCredentials
	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      secretName,
			Namespace: namespace,
		},
		Data: map[string][]byte{
			constants.EnvTWSUserID:   []byte("edemo"),
			constants.EnvTWSPassword: []byte("demouser"),
			constants.EnvIBAccount:   []byte("DU0000000"),
		},
	}

	if err := k8sClient.Create(ctx, secret); err != nil && !apierrors.IsAlreadyExists(err) {
		t.Fatalf("create credentials secret: %v", err)
	}

	return secretName
}

func createMinimalGateway(t *testing.T, namespace, name string) *ibgwv1alpha1.IBGateway {
	t.Helper()

	gw := newMinimalGatewayObj(namespace, name)

	if err := k8sClient.Create(ctx, gw); err != nil && !apierrors.IsAlreadyExists(err) {
		t.Fatalf("create IBGateway: %v", err)
	}

	return gw
}

func newMinimalGatewayObj(namespace, name string) *ibgwv1alpha1.IBGateway {
	return &ibgwv1alpha1.IBGateway{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
		},
		Spec: ibgwv1alpha1.IBGatewaySpec{
			Image: ibgwv1alpha1.ImageSpec{
				Repository: "ghcr.io/gnzsnz/ib-gateway",
				Tag:        "10.30.1v",
			},
			TradingMode: ibgwv1alpha1.TradingModePaper,
			CredentialsSecretRef: corev1.LocalObjectReference{
				Name: name + constants.SuffixCredentials,
			},
		},
	}
}

func discardLogger() logr.Logger {
	return logr.Discard()
}

// stubProber satisfies interfaces.GatewayProber with canned results so
// controller tests never open real sockets.
type stubProber struct {
	result *interfaces.HandshakeResult
	err    error
	calls  int
}

func (p *stubProber) Probe(_ context.Context, _ string) (*interfaces.HandshakeResult, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	if p.result != nil {
		return p.result, nil
	}
	return &interfaces.HandshakeResult{ServerVersion: 178, ConnectionTime: "20250102 10:00:00 EST", Elapsed: 5 * time.Millisecond}, nil
}

func newTestReconciler(prober interfaces.GatewayProber) *ibgwcontroller.IBGatewayReconciler {
	return &ibgwcontroller.IBGatewayReconciler{
		Client:        k8sClient,
		Scheme:        k8sScheme,
		OperatorImage: testOperatorImage,
		Prober:        prober,
	}
}

func reconcileGateway(t *testing.T, r *ibgwcontroller.IBGatewayReconciler, namespace, name string) ctrl.Result {
	t.Helper()

	result, err := r.Reconcile(ctx, ctrl.Request{
		NamespacedName: types.NamespacedName{Namespace: namespace, Name: name},
	})
	if err != nil {
		t.Fatalf("reconcile %s/%s: %v", namespace, name, err)
	}
	return result
}

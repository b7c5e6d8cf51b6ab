//go:build e2e
// +build e2e

package framework

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"time"

	. "github.com/onsi/gomega"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
	ctrlconfig "sigs.k8s.io/controller-runtime/pkg/client/config"
	gatewayv1 "sigs.k8s.io/gateway-api/apis/v1"

	ibgwv1alpha1 "github.com/dc-tec/ibgateway-operator/api/v1alpha1"
	"github.com/dc-tec/ibgateway-operator/internal/constants"
	"github.com/dc-tec/ibgateway-operator/test/utils"
)

const (
	// ReconcileTriggerAnnotationKey is used by tests to force a reconcile by
	// mutating an annotation on the IBGateway.
	ReconcileTriggerAnnotationKey = "e2e.ibgateway.dc-tec.io/reconcile-trigger"

	// RestrictedPodSecurityLabelKey enforces the Kubernetes restricted Pod Security Standard.
	RestrictedPodSecurityLabelKey = "pod-security.kubernetes.io/enforce"
	// RestrictedPodSecurityLabelValue is the value for RestrictedPodSecurityLabelKey.
	RestrictedPodSecurityLabelValue = "restricted"

	// DefaultPollInterval is the default polling interval for E2E waits.
	DefaultPollInterval = 2 * time.Second
	// DefaultWaitTimeout is the default timeout for common E2E waits.
	DefaultWaitTimeout = 2 * time.Minute
	// DefaultLongWaitTimeout is a longer timeout used for gateway convergence.
	// IB gateway images retry the session login for a while after the API
	// socket opens, so convergence waits have to be generous.
	DefaultLongWaitTimeout = 5 * time.Minute
)

// Framework encapsulates common E2E setup/teardown and convenience helpers.
type Framework struct {
	Client            client.Client
	Namespace         string
	OperatorNamespace string
	Ctx               context.Context
}

// PaperGatewayConfig defines the inputs for creating a basic paper-trading gateway.
type PaperGatewayConfig struct {
	Name       string
	Repository string
	Tag        string
}

// DemoCredentials returns the public IB demo login used by E2E gateways. The
// demo account needs no real brokerage relationship, so CI can log in for real.
func DemoCredentials() map[string]string {
	return map[string]string{
		constants.EnvTWSUserID:   "edemo",
		constants.EnvTWSPassword: "demouser",
		constants.EnvIBAccount:   "DU0000000",
	}
}

// EnsureRestrictedNamespace creates a namespace with a restricted Pod Security label.
// It ignores AlreadyExists errors.
func EnsureRestrictedNamespace(ctx context.Context, c client.Client, name string) error {
	if ctx == nil {
		return fmt.Errorf("context is required")
	}
	if c == nil {
		return fmt.Errorf("kubernetes client is required")
	}
	if name == "" {
		return fmt.Errorf("name is required")
	}

	ns := &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name: name,
			Labels: map[string]string{
				RestrictedPodSecurityLabelKey: RestrictedPodSecurityLabelValue,
			},
		},
	}

	err := c.Create(ctx, ns)
	if err == nil || apierrors.IsAlreadyExists(err) {
		return nil
	}
	return fmt.Errorf("failed to create namespace %q: %w", name, err)
}

// New creates a unique gateway namespace (with restricted Pod Security labels)
// for one test.
func New(ctx context.Context, c client.Client, baseName string, operatorNamespace string) (*Framework, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if c == nil {
		return nil, fmt.Errorf("kubernetes client is required")
	}
	if baseName == "" {
		return nil, fmt.Errorf("base name is required")
	}
	if operatorNamespace == "" {
		return nil, fmt.Errorf("operator namespace is required")
	}

	nsName, err := uniqueNamespaceName(baseName)
	if err != nil {
		return nil, fmt.Errorf("failed to generate namespace name: %w", err)
	}

	f := &Framework{
		Client:            c,
		Namespace:         nsName,
		OperatorNamespace: operatorNamespace,
		Ctx:               ctx,
	}

	if err := EnsureRestrictedNamespace(ctx, f.Client, f.Namespace); err != nil {
		return nil, err
	}

	return f, nil
}

// NewSetup initializes a new Framework with a fresh client and scheme.
// It acts as a "Batteries Included" setup for E2E tests.
func NewSetup(ctx context.Context, baseName string, operatorNamespace string) (*Framework, error) {
	cfg, err := ctrlconfig.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get kube config: %w", err)
	}

	scheme := runtime.NewScheme()
	if err := clientgoscheme.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("failed to add client-go scheme: %w", err)
	}
	if err := ibgwv1alpha1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("failed to add ibgateway scheme: %w", err)
	}
	if err := gatewayv1.Install(scheme); err != nil {
		return nil, fmt.Errorf("failed to add gateway scheme: %w", err)
	}

	c, err := client.New(cfg, client.Options{Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return New(ctx, c, baseName, operatorNamespace)
}

// RequireGatewayAPI ensures Gateway API CRDs are installed.
// It returns a cleanup function that should be called in AfterAll.
func (f *Framework) RequireGatewayAPI() (func(), error) {
	if err := f.InstallGatewayAPI(); err != nil {
		return nil, err
	}
	return func() {
		_ = f.UninstallGatewayAPI()
	}, nil
}

// InstallGatewayAPI installs the Gateway API CRDs from the pinned manifests
// the integration suite also uses.
func (f *Framework) InstallGatewayAPI() error {
	manifestPath := "test/manifests/gateway-api/v1.4.1/crds"

	// Use server-side apply
	cmd := exec.Command("kubectl", "apply", "--server-side", "--field-manager=ibgateway-e2e", "-f", manifestPath)
	if _, err := utils.Run(cmd); err != nil {
		return fmt.Errorf("failed to install Gateway API CRDs: %w", err)
	}

	// Wait for established
	cmd = exec.Command("kubectl", "wait", "--for", "condition=Established",
		"crd/gateways.gateway.networking.k8s.io",
		"crd/httproutes.gateway.networking.k8s.io",
		"--timeout", "5m")
	if _, err := utils.Run(cmd); err != nil {
		return fmt.Errorf("failed to wait for Gateway API CRDs: %w", err)
	}
	return nil
}

// UninstallGatewayAPI removes the Gateway API CRDs.
func (f *Framework) UninstallGatewayAPI() error {
	manifestPath := "test/manifests/gateway-api/v1.4.1/crds"
	cmd := exec.Command("kubectl", "delete", "-f", manifestPath, "--ignore-not-found")
	if _, err := utils.Run(cmd); err != nil {
		return fmt.Errorf("failed to uninstall Gateway API CRDs: %w", err)
	}
	return nil
}

// WaitForPhase waits for the gateway to reach the specified phase.
func (f *Framework) WaitForPhase(gatewayName string, phase ibgwv1alpha1.GatewayPhase) {
	Eventually(func(g Gomega) {
		gw := &ibgwv1alpha1.IBGateway{}
		err := f.Client.Get(f.Ctx, types.NamespacedName{Name: gatewayName, Namespace: f.Namespace}, gw)
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(gw.Status.Phase).To(Equal(phase))
	}, DefaultWaitTimeout, DefaultPollInterval).Should(Succeed(), "Gateway failed to reach phase %s", phase)
}

// WaitForCondition waits for the specified condition to have the expected status.
func (f *Framework) WaitForCondition(gatewayName string, conditionType ibgwv1alpha1.ConditionType, status metav1.ConditionStatus) {
	Eventually(func(g Gomega) {
		gw := &ibgwv1alpha1.IBGateway{}
		err := f.Client.Get(f.Ctx, types.NamespacedName{Name: gatewayName, Namespace: f.Namespace}, gw)
		g.Expect(err).NotTo(HaveOccurred())

		cond := meta.FindStatusCondition(gw.Status.Conditions, string(conditionType))
		g.Expect(cond).NotTo(BeNil())
		g.Expect(cond.Status).To(Equal(status))
	}, DefaultWaitTimeout, DefaultPollInterval).Should(Succeed(), "Gateway failed to reach condition %s=%s", conditionType, status)
}

// Cleanup deletes the gateways and the test namespace, ignoring NotFound.
func (f *Framework) Cleanup(ctx context.Context) error {
	if f == nil {
		return nil
	}
	if ctx == nil {
		return fmt.Errorf("context is required")
	}
	if f.Client == nil {
		return nil
	}
	if os.Getenv("E2E_SKIP_CLEANUP") == "true" {
		return nil
	}

	if err := f.deleteIBGateways(ctx); err != nil {
		return err
	}

	ns := &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: f.Namespace}}
	if err := f.Client.Delete(ctx, ns); err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to delete namespace %q: %w", f.Namespace, err)
	}

	return nil
}

// EnsureCredentialsSecret creates the credentials Secret the given gateway
// binds, filled with the public demo login. It ignores AlreadyExists errors
// and returns the Secret name.
func (f *Framework) EnsureCredentialsSecret(ctx context.Context, gatewayName string) (string, error) {
	if f == nil || f.Client == nil {
		return "", fmt.Errorf("framework client is required")
	}
	if ctx == nil {
		return "", fmt.Errorf("context is required")
	}
	if gatewayName == "" {
		return "", fmt.Errorf("gateway name is required")
	}

	name := gatewayName + constants.SuffixCredentials
	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: f.Namespace,
		},
		Type:       corev1.SecretTypeOpaque,
		StringData: DemoCredentials(),
	}

	err := f.Client.Create(ctx, secret)
	if err != nil && !apierrors.IsAlreadyExists(err) {
		return "", fmt.Errorf("failed to create credentials Secret %s/%s: %w", f.Namespace, name, err)
	}
	return name, nil
}

// CreatePaperGateway creates a basic paper-trading IBGateway in the framework
// namespace, bound to the Secret EnsureCredentialsSecret provisions.
func (f *Framework) CreatePaperGateway(ctx context.Context, cfg PaperGatewayConfig) (*ibgwv1alpha1.IBGateway, error) {
	if f == nil || f.Client == nil {
		return nil, fmt.Errorf("framework client is required")
	}
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("gateway name is required")
	}
	if cfg.Repository == "" {
		return nil, fmt.Errorf("gateway image repository is required")
	}
	if cfg.Tag == "" {
		return nil, fmt.Errorf("gateway image tag is required")
	}

	secretName, err := f.EnsureCredentialsSecret(ctx, cfg.Name)
	if err != nil {
		return nil, err
	}

	gw := &ibgwv1alpha1.IBGateway{
		ObjectMeta: metav1.ObjectMeta{
			Name:      cfg.Name,
			Namespace: f.Namespace,
		},
		Spec: ibgwv1alpha1.IBGatewaySpec{
			Image: ibgwv1alpha1.ImageSpec{
				Repository: cfg.Repository,
				Tag:        cfg.Tag,
			},
			TradingMode: ibgwv1alpha1.TradingModePaper,
			CredentialsSecretRef: corev1.LocalObjectReference{
				Name: secretName,
			},
			Persistence: &ibgwv1alpha1.PersistenceConfig{
				Enabled: true,
				Size:    "1Gi",
			},
		},
	}

	if err := f.Client.Create(ctx, gw); err != nil {
		return nil, fmt.Errorf("failed to create IBGateway %s/%s: %w", f.Namespace, cfg.Name, err)
	}

	return gw, nil
}

// TriggerReconcile forces a reconcile by patching a timestamp annotation on the IBGateway.
func (f *Framework) TriggerReconcile(ctx context.Context, gatewayName string) error {
	if f == nil || f.Client == nil {
		return fmt.Errorf("framework client is required")
	}
	if ctx == nil {
		return fmt.Errorf("context is required")
	}
	if gatewayName == "" {
		return fmt.Errorf("gateway name is required")
	}

	gw := &ibgwv1alpha1.IBGateway{}
	if err := f.Client.Get(ctx, types.NamespacedName{Name: gatewayName, Namespace: f.Namespace}, gw); err != nil {
		return fmt.Errorf("failed to get IBGateway %s/%s: %w", f.Namespace, gatewayName, err)
	}

	original := gw.DeepCopy()
	annotations := gw.GetAnnotations()
	if annotations == nil {
		annotations = map[string]string{}
	}
	annotations[ReconcileTriggerAnnotationKey] = time.Now().UTC().Format(time.RFC3339Nano)
	gw.SetAnnotations(annotations)

	if err := f.Client.Patch(ctx, gw, client.MergeFrom(original)); err != nil {
		return fmt.Errorf("failed to patch IBGateway %s/%s reconcile trigger: %w", f.Namespace, gatewayName, err)
	}

	return nil
}

// GetDeployment fetches a Deployment in the framework namespace by name.
func (f *Framework) GetDeployment(ctx context.Context, name string) (*appsv1.Deployment, error) {
	if f == nil || f.Client == nil {
		return nil, fmt.Errorf("framework client is required")
	}
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if name == "" {
		return nil, fmt.Errorf("deployment name is required")
	}

	deployment := &appsv1.Deployment{}
	if err := f.Client.Get(ctx, types.NamespacedName{Name: name, Namespace: f.Namespace}, deployment); err != nil {
		return nil, fmt.Errorf("failed to get Deployment %s/%s: %w", f.Namespace, name, err)
	}
	return deployment, nil
}

// WaitForDeploymentReady waits until the Deployment exists and has at least the expected ready replicas.
func (f *Framework) WaitForDeploymentReady(ctx context.Context, name string, expectedReadyReplicas int32, timeout time.Duration, pollInterval time.Duration) (*appsv1.Deployment, error) {
	if f == nil || f.Client == nil {
		return nil, fmt.Errorf("framework client is required")
	}
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if name == "" {
		return nil, fmt.Errorf("deployment name is required")
	}
	if expectedReadyReplicas < 0 {
		return nil, fmt.Errorf("expected ready replicas must be non-negative")
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive")
	}
	if pollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive")
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		deployment := &appsv1.Deployment{}
		err := f.Client.Get(ctx, types.NamespacedName{Name: name, Namespace: f.Namespace}, deployment)
		if err == nil {
			if deployment.Status.ReadyReplicas >= expectedReadyReplicas {
				return deployment, nil
			}
		} else if !apierrors.IsNotFound(err) {
			return nil, fmt.Errorf("failed to get Deployment %s/%s: %w", f.Namespace, name, err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context canceled while waiting for Deployment %s/%s to be ready: %w", f.Namespace, name, ctx.Err())
		case <-deadline.C:
			return nil, fmt.Errorf("timed out waiting for Deployment %s/%s to be ready", f.Namespace, name)
		case <-ticker.C:
		}
	}
}

// WaitForDeploymentDeleted waits until the named Deployment no longer exists.
func (f *Framework) WaitForDeploymentDeleted(ctx context.Context, name string, timeout time.Duration, pollInterval time.Duration) error {
	if f == nil || f.Client == nil {
		return fmt.Errorf("framework client is required")
	}
	if ctx == nil {
		return fmt.Errorf("context is required")
	}
	if name == "" {
		return fmt.Errorf("deployment name is required")
	}
	if timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if pollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		deployment := &appsv1.Deployment{}
		err := f.Client.Get(ctx, types.NamespacedName{Name: name, Namespace: f.Namespace}, deployment)
		if apierrors.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get Deployment %s/%s: %w", f.Namespace, name, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("context canceled while waiting for Deployment %s/%s to be deleted: %w", f.Namespace, name, ctx.Err())
		case <-deadline.C:
			return fmt.Errorf("timed out waiting for Deployment %s/%s to be deleted", f.Namespace, name)
		case <-ticker.C:
		}
	}
}

func uniqueNamespaceName(baseName string) (string, error) {
	suffixBytes := make([]byte, 4)
	if _, err := rand.Read(suffixBytes); err != nil {
		return "", fmt.Errorf("failed to generate random suffix: %w", err)
	}
	suffix := hex.EncodeToString(suffixBytes)

	// Keep namespace names short and DNS-label compliant.
	now := time.Now().UTC().Unix()
	return fmt.Sprintf("e2e-%s-%d-%s", baseName, now, suffix), nil
}

func (f *Framework) deleteIBGateways(ctx context.Context) error {
	if f == nil || f.Client == nil {
		return fmt.Errorf("framework client is required")
	}
	if ctx == nil {
		return fmt.Errorf("context is required")
	}

	var gateways ibgwv1alpha1.IBGatewayList
	if err := f.Client.List(ctx, &gateways, client.InNamespace(f.Namespace)); err != nil {
		return fmt.Errorf("failed to list IBGateways in namespace %q: %w", f.Namespace, err)
	}
	for i := range gateways.Items {
		gw := gateways.Items[i]
		if err := f.Client.Delete(ctx, &gw); err != nil && !apierrors.IsNotFound(err) {
			return fmt.Errorf("failed to delete IBGateway %s/%s: %w", gw.Namespace, gw.Name, err)
		}
	}

	if err := f.waitForIBGatewaysDeleted(ctx, DefaultWaitTimeout, DefaultPollInterval); err == nil {
		return nil
	}

	if err := f.removeIBGatewayFinalizers(ctx); err != nil {
		return err
	}

	var gatewaysAfterFinalizerRemoval ibgwv1alpha1.IBGatewayList
	if err := f.Client.List(ctx, &gatewaysAfterFinalizerRemoval, client.InNamespace(f.Namespace)); err != nil {
		return fmt.Errorf("failed to list IBGateways in namespace %q after finalizer removal: %w", f.Namespace, err)
	}
	for i := range gatewaysAfterFinalizerRemoval.Items {
		gw := gatewaysAfterFinalizerRemoval.Items[i]
		if err := f.Client.Delete(ctx, &gw); err != nil && !apierrors.IsNotFound(err) {
			return fmt.Errorf("failed to delete IBGateway %s/%s after finalizer removal: %w", gw.Namespace, gw.Name, err)
		}
	}

	if err := f.waitForIBGatewaysDeleted(ctx, 45*time.Second, DefaultPollInterval); err != nil {
		return err
	}

	return nil
}

func (f *Framework) waitForIBGatewaysDeleted(ctx context.Context, timeout time.Duration, pollInterval time.Duration) error {
	if timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if pollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		var gateways ibgwv1alpha1.IBGatewayList
		if err := f.Client.List(ctx, &gateways, client.InNamespace(f.Namespace)); err != nil {
			return fmt.Errorf("failed to list IBGateways in namespace %q: %w", f.Namespace, err)
		}
		if len(gateways.Items) == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("context canceled while waiting for IBGateways in namespace %q to be deleted: %w", f.Namespace, ctx.Err())
		case <-deadline.C:
			return fmt.Errorf("timed out waiting for IBGateways in namespace %q to be deleted (remaining=%d)", f.Namespace, len(gateways.Items))
		case <-ticker.C:
		}
	}
}

func (f *Framework) removeIBGatewayFinalizers(ctx context.Context) error {
	var gateways ibgwv1alpha1.IBGatewayList
	if err := f.Client.List(ctx, &gateways, client.InNamespace(f.Namespace)); err != nil {
		return fmt.Errorf("failed to list IBGateways in namespace %q for finalizer removal: %w", f.Namespace, err)
	}
	for i := range gateways.Items {
		gw := gateways.Items[i]
		if len(gw.Finalizers) == 0 {
			continue
		}
		original := gw.DeepCopy()
		gw.Finalizers = nil
		if err := f.Client.Patch(ctx, &gw, client.MergeFrom(original)); err != nil && !apierrors.IsNotFound(err) {
			return fmt.Errorf("failed to remove finalizers from IBGateway %s/%s: %w", gw.Namespace, gw.Name, err)
		}
	}
	return nil
}

package ibgateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
	gatewayv1 "sigs.k8s.io/gateway-api/apis/v1"

	ibgwv1alpha1 "github.com/dc-tec/ibgateway-operator/api/v1alpha1"
	"github.com/dc-tec/ibgateway-operator/internal/constants"
	"github.com/dc-tec/ibgateway-operator/internal/interfaces"
	"github.com/dc-tec/ibgateway-operator/internal/security"
	"github.com/dc-tec/ibgateway-operator/internal/status"
)

const testOperatorImage = "ghcr.io/dc-tec/ibgateway-operator:test"

// testScheme is a shared scheme used across tests.
var testScheme = func() *runtime.Scheme {
	scheme := runtime.NewScheme()
	_ = clientgoscheme.AddToScheme(scheme)
	_ = gatewayv1.Install(scheme)
	_ = ibgwv1alpha1.AddToScheme(scheme)
	return scheme
}()

func newTestReconciler(t *testing.T, objs ...client.Object) (*IBGatewayReconciler, client.Client) {
	t.Helper()

	k8sClient := fake.NewClientBuilder().
		WithScheme(testScheme).
		WithObjects(objs...).
		WithStatusSubresource(&ibgwv1alpha1.IBGateway{}, &appsv1.Deployment{}).
		Build()

	return &IBGatewayReconciler{
		Client:        k8sClient,
		Scheme:        testScheme,
		OperatorImage: testOperatorImage,
	}, k8sClient
}

// newTestGateway creates a minimal IBGateway: paper trading, no optional
// workloads, credentials bound by reference, finalizer already attached so a
// single Reconcile runs the full pass.
func newTestGateway(name, namespace string) *ibgwv1alpha1.IBGateway {
	return &ibgwv1alpha1.IBGateway{
		ObjectMeta: metav1.ObjectMeta{
			Name:       name,
			Namespace:  namespace,
			Generation: 1,
			Finalizers: []string{ibgwv1alpha1.IBGatewayFinalizer},
		},
		Spec: ibgwv1alpha1.IBGatewaySpec{
			Image: ibgwv1alpha1.ImageSpec{
				Repository: "ghcr.io/gnzsnz/ib-gateway",
				Tag:        "10.30.1t",
			},
			CredentialsSecretRef: corev1.LocalObjectReference{
				Name: name + constants.SuffixCredentials,
			},
		},
	}
}

// newTestCredentials creates the credentials Secret the gateway binds,
// carrying every required key.
func newTestCredentials(gw *ibgwv1alpha1.IBGateway) *corev1.Secret {
	return &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      gw.Spec.CredentialsSecretRef.Name,
			Namespace: gw.Namespace,
		},
		Data: map[string][]byte{
			constants.EnvTWSUserID:   []byte("papertrader"),
			constants.EnvTWSPassword: []byte("correct-horse-battery"),
			constants.EnvIBAccount:   []byte("DU1234567"),
		},
	}
}

func reconcileRequest(gw *ibgwv1alpha1.IBGateway) ctrl.Request {
	return ctrl.Request{NamespacedName: types.NamespacedName{Namespace: gw.Namespace, Name: gw.Name}}
}

func getGateway(t *testing.T, c client.Client, gw *ibgwv1alpha1.IBGateway) *ibgwv1alpha1.IBGateway {
	t.Helper()

	updated := &ibgwv1alpha1.IBGateway{}
	require.NoError(t, c.Get(context.Background(), client.ObjectKeyFromObject(gw), updated))
	return updated
}

// fakeProber records the probed address and returns a canned handshake.
type fakeProber struct {
	result  *interfaces.HandshakeResult
	err     error
	address string
}

func (p *fakeProber) Probe(_ context.Context, address string) (*interfaces.HandshakeResult, error) {
	p.address = address
	if p.err != nil {
		return nil, p.err
	}
	return p.result, nil
}

// fakeVerifier returns canned pins or a canned failure.
type fakeVerifier struct {
	pins security.ImagePins
	err  error
}

func (v *fakeVerifier) VerifyGatewayImages(context.Context, *ibgwv1alpha1.IBGateway) (security.ImagePins, error) {
	if v.err != nil {
		return nil, v.err
	}
	return v.pins, nil
}

func TestReconcileAddsFinalizerFirst(t *testing.T) {
	gw := newTestGateway("trader-fin", "default")
	gw.Finalizers = nil
	r, k8sClient := newTestReconciler(t, gw, newTestCredentials(gw))

	ctx := context.Background()
	result, err := r.Reconcile(ctx, reconcileRequest(gw))
	require.NoError(t, err)
	assert.Zero(t, result.RequeueAfter)

	updated := getGateway(t, k8sClient, gw)
	assert.Contains(t, updated.Finalizers, ibgwv1alpha1.IBGatewayFinalizer)

	// The finalizer pass does nothing else; workloads appear on the next one.
	err = k8sClient.Get(ctx, types.NamespacedName{Namespace: gw.Namespace, Name: gw.Name + constants.SuffixGateway}, &appsv1.Deployment{})
	assert.True(t, apierrors.IsNotFound(err))
}

func TestReconcileCreatesWorkloadsAndStatus(t *testing.T) {
	gw := newTestGateway("trader", "default")
	r, k8sClient := newTestReconciler(t, gw, newTestCredentials(gw))

	ctx := context.Background()
	result, err := r.Reconcile(ctx, reconcileRequest(gw))
	require.NoError(t, err)

	// No backup or restart schedule configured, so the requeue is the safety
	// net: base plus up to the jitter window.
	assert.GreaterOrEqual(t, result.RequeueAfter, constants.RequeueSafetyNetBase)
	assert.Less(t, result.RequeueAfter, constants.RequeueSafetyNetBase+constants.RequeueSafetyNetJitter)

	require.NoError(t, k8sClient.Get(ctx, types.NamespacedName{Namespace: "default", Name: "trader" + constants.SuffixGateway}, &appsv1.Deployment{}))

	updated := getGateway(t, k8sClient, gw)
	assert.Equal(t, ibgwv1alpha1.GatewayPhasePending, updated.Status.Phase)
	assert.Equal(t, "trader-gateway.default.svc", updated.Status.GatewayAddress)
	assert.NotEmpty(t, updated.Status.RenderedConfigRevision)
	assert.Equal(t, updated.Generation, updated.Status.ObservedGeneration)

	validated := status.Get(updated.Status.Conditions, ibgwv1alpha1.ConditionValidated)
	require.NotNil(t, validated)
	assert.Equal(t, metav1.ConditionTrue, validated.Status)
	assert.Equal(t, ReasonValidationPassed, validated.Reason)

	// The Deployment exists but reports no ready replicas yet.
	ready := status.Get(updated.Status.Conditions, ibgwv1alpha1.ConditionReady)
	require.NotNil(t, ready)
	assert.Equal(t, metav1.ConditionFalse, ready.Status)
	assert.Equal(t, constants.ReasonWorkloadsPending, ready.Reason)
	assert.Contains(t, ready.Message, "trader-gateway")
	assert.NotContains(t, ready.Message, constants.SuffixBridge)

	reachable := status.Get(updated.Status.Conditions, ibgwv1alpha1.ConditionGatewayReachable)
	require.NotNil(t, reachable)
	assert.Equal(t, metav1.ConditionUnknown, reachable.Status)
	assert.Equal(t, constants.ReasonWorkloadsPending, reachable.Reason)

	assert.True(t, status.IsFalse(updated.Status.Conditions, ibgwv1alpha1.ConditionDegraded))

	// A second pass is a no-op: same revision, no error.
	_, err = r.Reconcile(ctx, reconcileRequest(gw))
	require.NoError(t, err)
	again := getGateway(t, k8sClient, gw)
	assert.Equal(t, updated.Status.RenderedConfigRevision, again.Status.RenderedConfigRevision)
}

func TestReconcileMissingCredentialsRequeues(t *testing.T) {
	gw := newTestGateway("trader-nocreds", "default")
	r, k8sClient := newTestReconciler(t, gw)

	result, err := r.Reconcile(context.Background(), reconcileRequest(gw))
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, result.RequeueAfter)

	updated := getGateway(t, k8sClient, gw)
	validated := status.Get(updated.Status.Conditions, ibgwv1alpha1.ConditionValidated)
	require.NotNil(t, validated)
	assert.Equal(t, metav1.ConditionFalse, validated.Status)
	assert.Equal(t, ReasonPrerequisitesMissing, validated.Reason)

	// No workloads are expanded for an unvalidated document.
	err = k8sClient.Get(context.Background(), types.NamespacedName{Namespace: gw.Namespace, Name: gw.Name + constants.SuffixGateway}, &appsv1.Deployment{})
	assert.True(t, apierrors.IsNotFound(err))
}

func TestReconcileValidationFailureIsTerminal(t *testing.T) {
	gw := newTestGateway("trader-badcreds", "default")
	secret := newTestCredentials(gw)
	delete(secret.Data, constants.EnvIBAccount)
	r, k8sClient := newTestReconciler(t, gw, secret)

	result, err := r.Reconcile(context.Background(), reconcileRequest(gw))
	require.NoError(t, err)
	assert.Zero(t, result.RequeueAfter)

	updated := getGateway(t, k8sClient, gw)
	assert.Equal(t, ibgwv1alpha1.GatewayPhaseFailed, updated.Status.Phase)

	validated := status.Get(updated.Status.Conditions, ibgwv1alpha1.ConditionValidated)
	require.NotNil(t, validated)
	assert.Equal(t, metav1.ConditionFalse, validated.Status)
	assert.Equal(t, constants.ReasonValidationFailed, validated.Reason)

	err = k8sClient.Get(context.Background(), types.NamespacedName{Namespace: gw.Namespace, Name: gw.Name + constants.SuffixGateway}, &appsv1.Deployment{})
	assert.True(t, apierrors.IsNotFound(err))
}

func TestReconcilePausedSkipsWork(t *testing.T) {
	gw := newTestGateway("trader-paused", "default")
	gw.Spec.Paused = true
	r, k8sClient := newTestReconciler(t, gw, newTestCredentials(gw))

	ctx := context.Background()
	result, err := r.Reconcile(ctx, reconcileRequest(gw))
	require.NoError(t, err)
	assert.Zero(t, result.RequeueAfter)

	err = k8sClient.Get(ctx, types.NamespacedName{Namespace: gw.Namespace, Name: gw.Name + constants.SuffixGateway}, &appsv1.Deployment{})
	assert.True(t, apierrors.IsNotFound(err))

	updated := getGateway(t, k8sClient, gw)
	assert.Equal(t, ibgwv1alpha1.GatewayPhasePending, updated.Status.Phase)

	ready := status.Get(updated.Status.Conditions, ibgwv1alpha1.ConditionReady)
	require.NotNil(t, ready)
	assert.Equal(t, metav1.ConditionUnknown, ready.Status)
	assert.Equal(t, constants.ReasonPaused, ready.Reason)

	reachable := status.Get(updated.Status.Conditions, ibgwv1alpha1.ConditionGatewayReachable)
	require.NotNil(t, reachable)
	assert.Equal(t, metav1.ConditionUnknown, reachable.Status)
	assert.Equal(t, constants.ReasonPaused, reachable.Reason)
}

// markGatewayReady flips the gateway Deployment to one ready replica so the
// connectivity phase runs.
func markGatewayReady(t *testing.T, c client.Client, gw *ibgwv1alpha1.IBGateway) {
	t.Helper()

	ctx := context.Background()
	deployment := &appsv1.Deployment{}
	require.NoError(t, c.Get(ctx, types.NamespacedName{Namespace: gw.Namespace, Name: gw.Name + constants.SuffixGateway}, deployment))
	deployment.Status.Replicas = 1
	deployment.Status.ReadyReplicas = 1
	deployment.Status.AvailableReplicas = 1
	deployment.Status.UpdatedReplicas = 1
	require.NoError(t, c.Status().Update(ctx, deployment))
}

func TestReconcileHandshakeSucceeded(t *testing.T) {
	gw := newTestGateway("trader-hs", "default")
	r, k8sClient := newTestReconciler(t, gw, newTestCredentials(gw))

	ctx := context.Background()
	_, err := r.Reconcile(ctx, reconcileRequest(gw))
	require.NoError(t, err)
	markGatewayReady(t, k8sClient, gw)

	prober := &fakeProber{result: &interfaces.HandshakeResult{
		ServerVersion:  176,
		ConnectionTime: "20260822 14:03:11 UTC",
		Elapsed:        40 * time.Millisecond,
	}}
	r.Prober = prober

	_, err = r.Reconcile(ctx, reconcileRequest(gw))
	require.NoError(t, err)

	assert.Equal(t, "trader-hs-gateway.default.svc:4002", prober.address)

	updated := getGateway(t, k8sClient, gw)
	assert.Equal(t, ibgwv1alpha1.GatewayPhaseRunning, updated.Status.Phase)
	assert.True(t, status.IsTrue(updated.Status.Conditions, ibgwv1alpha1.ConditionReady))

	reachable := status.Get(updated.Status.Conditions, ibgwv1alpha1.ConditionGatewayReachable)
	require.NotNil(t, reachable)
	assert.Equal(t, metav1.ConditionTrue, reachable.Status)
	assert.Equal(t, constants.ReasonHandshakeSucceeded, reachable.Reason)
	assert.Contains(t, reachable.Message, "176")
}

func TestReconcileHandshakeFailureDegrades(t *testing.T) {
	gw := newTestGateway("trader-hsfail", "default")
	r, k8sClient := newTestReconciler(t, gw, newTestCredentials(gw))

	ctx := context.Background()
	_, err := r.Reconcile(ctx, reconcileRequest(gw))
	require.NoError(t, err)
	markGatewayReady(t, k8sClient, gw)

	r.Prober = &fakeProber{err: errors.New("dial tcp: connection refused")}

	result, err := r.Reconcile(ctx, reconcileRequest(gw))
	require.NoError(t, err)
	// A failed handshake is a condition, not a reconcile failure.
	assert.GreaterOrEqual(t, result.RequeueAfter, constants.RequeueSafetyNetBase)

	updated := getGateway(t, k8sClient, gw)
	assert.Equal(t, ibgwv1alpha1.GatewayPhaseDegraded, updated.Status.Phase)

	reachable := status.Get(updated.Status.Conditions, ibgwv1alpha1.ConditionGatewayReachable)
	require.NotNil(t, reachable)
	assert.Equal(t, metav1.ConditionFalse, reachable.Status)
	assert.Equal(t, constants.ReasonHandshakeFailed, reachable.Reason)

	degraded := status.Get(updated.Status.Conditions, ibgwv1alpha1.ConditionDegraded)
	require.NotNil(t, degraded)
	assert.Equal(t, metav1.ConditionTrue, degraded.Status)
	assert.Equal(t, constants.ReasonHandshakeFailed, degraded.Reason)
}

func TestReconcileImageVerificationFailureBlocks(t *testing.T) {
	gw := newTestGateway("trader-unsigned", "default")
	gw.Spec.ImageVerification = &ibgwv1alpha1.ImageVerificationConfig{
		Enabled:   true,
		PublicKey: "-----BEGIN PUBLIC KEY-----\nMFkw\n-----END PUBLIC KEY-----",
	}
	r, k8sClient := newTestReconciler(t, gw, newTestCredentials(gw))
	r.ImageVerifier = &fakeVerifier{err: errors.New("no matching signatures for ghcr.io/gnzsnz/ib-gateway:10.30.1t")}

	ctx := context.Background()
	_, err := r.Reconcile(ctx, reconcileRequest(gw))
	require.Error(t, err)

	// Nothing rolls out on a failed verification.
	err = k8sClient.Get(ctx, types.NamespacedName{Namespace: gw.Namespace, Name: gw.Name + constants.SuffixGateway}, &appsv1.Deployment{})
	assert.True(t, apierrors.IsNotFound(err))

	updated := getGateway(t, k8sClient, gw)
	ready := status.Get(updated.Status.Conditions, ibgwv1alpha1.ConditionReady)
	require.NotNil(t, ready)
	assert.Equal(t, metav1.ConditionFalse, ready.Status)
	assert.Equal(t, ReasonImageVerificationFailed, ready.Reason)
}

func TestReconcileRestartScheduleComputesNextRestart(t *testing.T) {
	gw := newTestGateway("trader-restart", "default")
	gw.Spec.Restart = &ibgwv1alpha1.RestartSchedule{Schedule: "0 3 * * *"}
	r, k8sClient := newTestReconciler(t, gw, newTestCredentials(gw))

	before := time.Now()
	_, err := r.Reconcile(context.Background(), reconcileRequest(gw))
	require.NoError(t, err)

	updated := getGateway(t, k8sClient, gw)
	require.NotNil(t, updated.Status.Restart)
	require.NotNil(t, updated.Status.Restart.NextRestartTime)
	assert.True(t, updated.Status.Restart.NextRestartTime.After(before),
		"next restart should be in the future")
}

func TestReconcileInvalidRestartScheduleIsTerminal(t *testing.T) {
	gw := newTestGateway("trader-badcron", "default")
	gw.Spec.Restart = &ibgwv1alpha1.RestartSchedule{Schedule: "every tuesday"}
	r, k8sClient := newTestReconciler(t, gw, newTestCredentials(gw))

	result, err := r.Reconcile(context.Background(), reconcileRequest(gw))
	require.NoError(t, err)
	assert.Zero(t, result.RequeueAfter)

	updated := getGateway(t, k8sClient, gw)
	assert.Equal(t, ibgwv1alpha1.GatewayPhaseFailed, updated.Status.Phase)

	validated := status.Get(updated.Status.Conditions, ibgwv1alpha1.ConditionValidated)
	require.NotNil(t, validated)
	assert.Equal(t, metav1.ConditionFalse, validated.Status)
	assert.Equal(t, constants.ReasonValidationFailed, validated.Reason)
}

func TestReconcileBackupWithoutPersistenceIsBlocked(t *testing.T) {
	gw := newTestGateway("trader-backup", "default")
	gw.Spec.Backup = &ibgwv1alpha1.BackupSchedule{
		Schedule: "0 3 * * *",
		Target: ibgwv1alpha1.BackupTarget{
			Endpoint: "http://minio.backup.svc:9000",
			Bucket:   "ib-settings",
		},
	}
	r, k8sClient := newTestReconciler(t, gw, newTestCredentials(gw))

	_, err := r.Reconcile(context.Background(), reconcileRequest(gw))
	require.NoError(t, err)

	updated := getGateway(t, k8sClient, gw)
	backupReady := status.Get(updated.Status.Conditions, ibgwv1alpha1.ConditionBackupReady)
	require.NotNil(t, backupReady)
	assert.Equal(t, metav1.ConditionFalse, backupReady.Status)
	assert.Equal(t, constants.ReasonBackupBlocked, backupReady.Reason)
}

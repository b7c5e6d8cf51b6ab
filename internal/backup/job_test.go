package backup

import (
	"strings"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	ibgwv1alpha1 "github.com/dc-tec/ibgateway-operator/api/v1alpha1"
	"github.com/dc-tec/ibgateway-operator/internal/constants"
)

var testScheme = func() *runtime.Scheme {
	scheme := runtime.NewScheme()
	_ = clientgoscheme.AddToScheme(scheme)
	_ = ibgwv1alpha1.AddToScheme(scheme)
	return scheme
}()

func newTestClient(t *testing.T, objs ...client.Object) client.Client {
	t.Helper()
	builder := fake.NewClientBuilder().WithScheme(testScheme)
	if len(objs) > 0 {
		builder = builder.WithObjects(objs...)
	}
	return builder.Build()
}

func newGatewayWithBackup(name, namespace string) *ibgwv1alpha1.IBGateway {
	return &ibgwv1alpha1.IBGateway{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
		},
		Spec: ibgwv1alpha1.IBGatewaySpec{
			Image: ibgwv1alpha1.ImageSpec{
				Repository: "ghcr.io/gnzsnz/ib-gateway",
				Tag:        "10.30.1t",
			},
			CredentialsSecretRef: corev1.LocalObjectReference{
				Name: "trader-credentials",
			},
			Persistence: &ibgwv1alpha1.PersistenceConfig{
				Enabled:    true,
				AccessMode: corev1.ReadWriteOnce,
				Size:       "1Gi",
			},
			Backup: &ibgwv1alpha1.BackupSchedule{
				Schedule: "0 3 * * *",
				Target: ibgwv1alpha1.BackupTarget{
					Endpoint:   "https://minio.storage.svc:9000",
					Bucket:     "gateway-archives",
					Region:     "us-east-1",
					PathPrefix: "archives",
					CredentialsSecretRef: &corev1.LocalObjectReference{
						Name: "archive-credentials",
					},
					UsePathStyle:  true,
					PartSizeBytes: 10 * 1024 * 1024,
					Concurrency:   3,
				},
				Retention: &ibgwv1alpha1.BackupRetention{
					MaxCount: 7,
				},
			},
		},
	}
}

func findEnv(t *testing.T, env []corev1.EnvVar, name string) string {
	t.Helper()
	for _, e := range env {
		if e.Name == name {
			return e.Value
		}
	}
	t.Fatalf("env %s not found", name)
	return ""
}

func TestBackupJobName(t *testing.T) {
	gw := newGatewayWithBackup("trader", "trading")
	scheduled := time.Date(2025, 8, 21, 3, 0, 0, 0, time.UTC)

	name := backupJobName(gw, scheduled)
	want := "trader-backup-20250821-030000"
	if name != want {
		t.Errorf("backupJobName() = %q, want %q", name, want)
	}

	// Deterministic: the same window always maps to the same Job.
	if again := backupJobName(gw, scheduled); again != name {
		t.Errorf("backupJobName() not deterministic: %q vs %q", name, again)
	}
}

func TestBuildBackupJob(t *testing.T) {
	gw := newGatewayWithBackup("trader", "trading")
	objectKey := "archives/trading/trader/2025-08-21T03-00-00Z-a1b2c3d4.tar.gz"

	job, err := buildBackupJob(gw, "trader-backup-20250821-030000", objectKey, "ghcr.io/dc-tec/ibgateway-operator:v0.1.0")
	if err != nil {
		t.Fatalf("buildBackupJob() error = %v", err)
	}

	if job.Namespace != "trading" {
		t.Errorf("job namespace = %q, want %q", job.Namespace, "trading")
	}
	if job.Spec.BackoffLimit == nil || *job.Spec.BackoffLimit != 0 {
		t.Errorf("backoffLimit = %v, want 0", job.Spec.BackoffLimit)
	}
	if job.Spec.TTLSecondsAfterFinished == nil || *job.Spec.TTLSecondsAfterFinished != backupJobTTLSeconds {
		t.Errorf("ttlSecondsAfterFinished = %v, want %d", job.Spec.TTLSecondsAfterFinished, backupJobTTLSeconds)
	}

	podSpec := job.Spec.Template.Spec
	if len(podSpec.Containers) != 1 {
		t.Fatalf("expected 1 container, got %d", len(podSpec.Containers))
	}
	container := podSpec.Containers[0]

	if container.Name != constants.ContainerNameBackup {
		t.Errorf("container name = %q, want %q", container.Name, constants.ContainerNameBackup)
	}
	if len(container.Command) != 1 || container.Command[0] != "/"+constants.BinaryNameBackup {
		t.Errorf("container command = %v, want [/%s]", container.Command, constants.BinaryNameBackup)
	}

	if got := findEnv(t, container.Env, constants.EnvBackupObjectKey); got != objectKey {
		t.Errorf("%s = %q, want %q", constants.EnvBackupObjectKey, got, objectKey)
	}
	if got := findEnv(t, container.Env, constants.EnvBackupEndpoint); got != "https://minio.storage.svc:9000" {
		t.Errorf("%s = %q", constants.EnvBackupEndpoint, got)
	}
	if got := findEnv(t, container.Env, constants.EnvBackupBucket); got != "gateway-archives" {
		t.Errorf("%s = %q", constants.EnvBackupBucket, got)
	}
	if got := findEnv(t, container.Env, constants.EnvBackupUsePathStyle); got != "true" {
		t.Errorf("%s = %q, want %q", constants.EnvBackupUsePathStyle, got, "true")
	}
	if got := findEnv(t, container.Env, constants.EnvBackupRetentionMaxCount); got != "7" {
		t.Errorf("%s = %q, want %q", constants.EnvBackupRetentionMaxCount, got, "7")
	}
	if got := findEnv(t, container.Env, constants.EnvBackupCredentialsPath); got != constants.PathBackupCredentials {
		t.Errorf("%s = %q, want %q", constants.EnvBackupCredentialsPath, got, constants.PathBackupCredentials)
	}
	if got := findEnv(t, container.Env, constants.EnvSettingsDir); got != constants.PathSettings {
		t.Errorf("%s = %q, want %q", constants.EnvSettingsDir, got, constants.PathSettings)
	}

	// Settings PVC is mounted read-only under the standard settings path.
	var settingsMount *corev1.VolumeMount
	for i := range container.VolumeMounts {
		if container.VolumeMounts[i].Name == constants.VolumeSettings {
			settingsMount = &container.VolumeMounts[i]
		}
	}
	if settingsMount == nil {
		t.Fatal("settings volume mount not found")
	}
	if !settingsMount.ReadOnly || settingsMount.MountPath != constants.PathSettings {
		t.Errorf("settings mount = %+v, want read-only at %s", settingsMount, constants.PathSettings)
	}

	var settingsVolume, credentialsVolume *corev1.Volume
	for i := range podSpec.Volumes {
		switch podSpec.Volumes[i].Name {
		case constants.VolumeSettings:
			settingsVolume = &podSpec.Volumes[i]
		case "backup-credentials":
			credentialsVolume = &podSpec.Volumes[i]
		}
	}
	if settingsVolume == nil || settingsVolume.PersistentVolumeClaim == nil {
		t.Fatal("settings PVC volume not found")
	}
	if settingsVolume.PersistentVolumeClaim.ClaimName != "trader-settings" {
		t.Errorf("claim name = %q, want %q", settingsVolume.PersistentVolumeClaim.ClaimName, "trader-settings")
	}
	if credentialsVolume == nil || credentialsVolume.Secret == nil {
		t.Fatal("credentials volume not found")
	}
	if credentialsVolume.Secret.SecretName != "archive-credentials" {
		t.Errorf("credentials secret = %q, want %q", credentialsVolume.Secret.SecretName, "archive-credentials")
	}
	if credentialsVolume.Secret.DefaultMode == nil || *credentialsVolume.Secret.DefaultMode != 0400 {
		t.Errorf("credentials default mode = %v, want 0400", credentialsVolume.Secret.DefaultMode)
	}

	// Runs with the gateway's UID/GID so it can read the settings volume.
	if podSpec.SecurityContext == nil || podSpec.SecurityContext.RunAsUser == nil || *podSpec.SecurityContext.RunAsUser != backupUserID {
		t.Errorf("pod runAsUser = %+v, want %d", podSpec.SecurityContext, backupUserID)
	}
	if container.SecurityContext == nil || container.SecurityContext.ReadOnlyRootFilesystem == nil || !*container.SecurityContext.ReadOnlyRootFilesystem {
		t.Error("container should have a read-only root filesystem")
	}
}

func TestBuildBackupJobAffinity(t *testing.T) {
	gw := newGatewayWithBackup("trader", "trading")

	affinity := buildBackupJobAffinity(gw)
	if affinity == nil || affinity.PodAffinity == nil {
		t.Fatal("expected pod affinity for a ReadWriteOnce settings volume")
	}
	terms := affinity.PodAffinity.RequiredDuringSchedulingIgnoredDuringExecution
	if len(terms) != 1 {
		t.Fatalf("expected 1 affinity term, got %d", len(terms))
	}
	if terms[0].TopologyKey != corev1.LabelHostname {
		t.Errorf("topology key = %q, want %q", terms[0].TopologyKey, corev1.LabelHostname)
	}
	if got := terms[0].LabelSelector.MatchLabels[constants.LabelComponent]; got != constants.ComponentGateway {
		t.Errorf("affinity targets component %q, want %q", got, constants.ComponentGateway)
	}

	gw.Spec.Persistence.AccessMode = corev1.ReadWriteMany
	if affinity := buildBackupJobAffinity(gw); affinity != nil {
		t.Error("expected no affinity for a ReadWriteMany settings volume")
	}
}

func TestBuildBackupJobOptionalEnv(t *testing.T) {
	gw := newGatewayWithBackup("trader", "trading")
	gw.Spec.Backup.Retention = nil
	gw.Spec.Backup.Target.CredentialsSecretRef = nil
	gw.Spec.Backup.Target.PartSizeBytes = 0
	gw.Spec.Backup.Target.Concurrency = 0

	job, err := buildBackupJob(gw, "trader-backup-20250821-030000", "k", "ghcr.io/dc-tec/ibgateway-operator:v0.1.0")
	if err != nil {
		t.Fatalf("buildBackupJob() error = %v", err)
	}

	container := job.Spec.Template.Spec.Containers[0]
	for _, e := range container.Env {
		switch e.Name {
		case constants.EnvBackupRetentionMaxCount,
			constants.EnvBackupCredentialsPath,
			constants.EnvBackupPartSize,
			constants.EnvBackupConcurrency:
			t.Errorf("env %s set without the matching spec field", e.Name)
		}
	}

	for _, v := range job.Spec.Template.Spec.Volumes {
		if v.Name == "backup-credentials" {
			t.Error("credentials volume set without a credentialsSecretRef")
		}
	}
}

func TestBuildBackupJobRequiresImage(t *testing.T) {
	gw := newGatewayWithBackup("trader", "trading")

	_, err := buildBackupJob(gw, "trader-backup-20250821-030000", "k", "   ")
	if err == nil {
		t.Fatal("expected error for empty executor image")
	}
	if !strings.Contains(err.Error(), "executor image") {
		t.Errorf("error = %v, want mention of the executor image", err)
	}
}

func TestExecutorImage(t *testing.T) {
	gw := newGatewayWithBackup("trader", "trading")

	if got := executorImage(gw, "operator:v1"); got != "operator:v1" {
		t.Errorf("executorImage() = %q, want operator default", got)
	}

	gw.Spec.Backup.ExecutorImage = "custom/executor:v2"
	if got := executorImage(gw, "operator:v1"); got != "custom/executor:v2" {
		t.Errorf("executorImage() = %q, want the spec override", got)
	}
}

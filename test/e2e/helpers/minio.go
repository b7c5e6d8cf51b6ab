package helpers

import (
	"context"
	"fmt"
	"strings"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/client-go/rest"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/dc-tec/ibgateway-operator/internal/storage"
)

// MinIOConfig defines how to run MinIO (S3-compatible storage) for backup testing.
type MinIOConfig struct {
	Namespace   string
	Name        string
	Image       string
	AccessKey   string
	SecretKey   string
	Replicas    int32
	StorageSize string
	Buckets     []string // Buckets to create after MinIO is ready
}

// DefaultMinIOConfig returns a default MinIO configuration.
func DefaultMinIOConfig() MinIOConfig {
	return MinIOConfig{
		Name:        "minio",
		Image:       "minio/minio:latest",
		AccessKey:   "minioadmin",
		SecretKey:   "minioadmin",
		Replicas:    1, // Single-node mode; distributed MinIO needs more setup than e2e warrants
		StorageSize: "10Gi",
	}
}

// Endpoint returns the in-cluster S3 endpoint URL for this MinIO instance.
func (c MinIOConfig) Endpoint() string {
	return fmt.Sprintf("http://%s-svc.%s.svc:9000", c.Name, c.Namespace)
}

// CredentialsSecretName returns the name of the Secret holding the MinIO
// root credentials. The Secret uses the same keys the backup executor reads,
// so it can double as a backup target credentials Secret.
func (c MinIOConfig) CredentialsSecretName() string {
	return c.Name + "-credentials"
}

// EnsureMinIO creates (or reuses) a MinIO Deployment + Service for S3-compatible storage.
// The service is reachable at http://<name>-svc.<namespace>.svc:9000.
// If Buckets are specified in cfg, they will be created after MinIO is ready.
// restCfg is required if buckets need to be created.
//
//nolint:gocyclo // End-to-end provisioning must be explicit to simplify troubleshooting in CI.
func EnsureMinIO(ctx context.Context, c client.Client, restCfg *rest.Config, cfg MinIOConfig) error {
	if c == nil {
		return fmt.Errorf("kubernetes client is required")
	}
	if cfg.Namespace == "" {
		return fmt.Errorf("namespace is required")
	}
	if cfg.Name == "" {
		return fmt.Errorf("name is required")
	}
	if cfg.Image == "" {
		return fmt.Errorf("image is required")
	}
	if cfg.AccessKey == "" {
		return fmt.Errorf("access key is required")
	}
	if cfg.SecretKey == "" {
		return fmt.Errorf("secret key is required")
	}
	if cfg.Replicas <= 0 {
		cfg.Replicas = 1
	}
	if cfg.StorageSize == "" {
		cfg.StorageSize = "10Gi"
	}

	// The credential keys match what the backup executor expects, so tests can
	// point spec.backup.target.credentialsSecretRef at this Secret directly.
	credentialsSecret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      cfg.CredentialsSecretName(),
			Namespace: cfg.Namespace,
		},
		Type: corev1.SecretTypeOpaque,
		Data: map[string][]byte{
			storage.SecretKeyAccessKeyID:     []byte(cfg.AccessKey),
			storage.SecretKeySecretAccessKey: []byte(cfg.SecretKey),
		},
	}
	err := c.Create(ctx, credentialsSecret)
	if err != nil && !errors.IsAlreadyExists(err) {
		return fmt.Errorf("failed to create MinIO credentials Secret %s/%s: %w", cfg.Namespace, credentialsSecret.Name, err)
	}

	svc := &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      cfg.Name + "-svc",
			Namespace: cfg.Namespace,
		},
		Spec: corev1.ServiceSpec{
			Selector: map[string]string{
				"app": cfg.Name,
			},
			Ports: []corev1.ServicePort{
				{
					Name:       "api",
					Port:       9000,
					TargetPort: intstr.FromInt32(9000),
					Protocol:   corev1.ProtocolTCP,
				},
				{
					Name:       "console",
					Port:       9001,
					TargetPort: intstr.FromInt32(9001),
					Protocol:   corev1.ProtocolTCP,
				},
			},
		},
	}
	err = c.Create(ctx, svc)
	if err != nil && !errors.IsAlreadyExists(err) {
		return fmt.Errorf("failed to create MinIO Service %s/%s: %w", cfg.Namespace, svc.Name, err)
	}

	deployment := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      cfg.Name,
			Namespace: cfg.Namespace,
			Labels: map[string]string{
				"app": cfg.Name,
			},
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: ptr.To(cfg.Replicas),
			Selector: &metav1.LabelSelector{
				MatchLabels: map[string]string{
					"app": cfg.Name,
				},
			},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: map[string]string{
						"app": cfg.Name,
					},
				},
				Spec: corev1.PodSpec{
					SecurityContext: &corev1.PodSecurityContext{
						RunAsNonRoot: ptr.To(true),
						RunAsUser:    ptr.To(int64(1000)),
						RunAsGroup:   ptr.To(int64(1000)),
						FSGroup:      ptr.To(int64(1000)),
						SeccompProfile: &corev1.SeccompProfile{
							Type: corev1.SeccompProfileTypeRuntimeDefault,
						},
					},
					Containers: []corev1.Container{
						{
							Name:  "minio",
							Image: cfg.Image,
							Args:  []string{"server", "/data", "--console-address", ":9001"},
							Ports: []corev1.ContainerPort{
								{ContainerPort: 9000, Name: "api"},
								{ContainerPort: 9001, Name: "console"},
							},
							Env: []corev1.EnvVar{
								{
									Name: "MINIO_ROOT_USER",
									ValueFrom: &corev1.EnvVarSource{
										SecretKeyRef: &corev1.SecretKeySelector{
											LocalObjectReference: corev1.LocalObjectReference{
												Name: credentialsSecret.Name,
											},
											Key: storage.SecretKeyAccessKeyID,
										},
									},
								},
								{
									Name: "MINIO_ROOT_PASSWORD",
									ValueFrom: &corev1.EnvVarSource{
										SecretKeyRef: &corev1.SecretKeySelector{
											LocalObjectReference: corev1.LocalObjectReference{
												Name: credentialsSecret.Name,
											},
											Key: storage.SecretKeySecretAccessKey,
										},
									},
								},
							},
							VolumeMounts: []corev1.VolumeMount{
								{
									Name:      "data",
									MountPath: "/data",
								},
							},
							LivenessProbe: &corev1.Probe{
								ProbeHandler: corev1.ProbeHandler{
									HTTPGet: &corev1.HTTPGetAction{
										Path: "/minio/health/live",
										Port: intstr.FromInt32(9000),
									},
								},
								InitialDelaySeconds: 30,
								PeriodSeconds:       10,
								TimeoutSeconds:      5,
								FailureThreshold:    3,
							},
							ReadinessProbe: &corev1.Probe{
								ProbeHandler: corev1.ProbeHandler{
									HTTPGet: &corev1.HTTPGetAction{
										Path: "/minio/health/ready",
										Port: intstr.FromInt32(9000),
									},
								},
								InitialDelaySeconds: 10,
								PeriodSeconds:       5,
								TimeoutSeconds:      3,
								FailureThreshold:    3,
							},
							SecurityContext: &corev1.SecurityContext{
								AllowPrivilegeEscalation: ptr.To(false),
								Capabilities: &corev1.Capabilities{
									Drop: []corev1.Capability{"ALL"},
								},
								RunAsNonRoot: ptr.To(true),
							},
							Resources: corev1.ResourceRequirements{
								Requests: corev1.ResourceList{
									corev1.ResourceCPU:    resource.MustParse("100m"),
									corev1.ResourceMemory: resource.MustParse("128Mi"),
								},
								Limits: corev1.ResourceList{
									corev1.ResourceCPU:    resource.MustParse("200m"),
									corev1.ResourceMemory: resource.MustParse("512Mi"),
								},
							},
						},
					},
					Volumes: []corev1.Volume{
						{
							Name: "data",
							VolumeSource: corev1.VolumeSource{
								EmptyDir: &corev1.EmptyDirVolumeSource{
									SizeLimit: ptr.To(resource.MustParse(cfg.StorageSize)),
								},
							},
						},
					},
				},
			},
		},
	}

	err = c.Create(ctx, deployment)
	if err != nil && !errors.IsAlreadyExists(err) {
		return fmt.Errorf("failed to create MinIO Deployment %s/%s: %w", cfg.Namespace, cfg.Name, err)
	}

	// Wait for Deployment to be ready
	deploymentReadyDeadline := time.NewTimer(5 * time.Minute)
	defer deploymentReadyDeadline.Stop()
	deploymentReadyTicker := time.NewTicker(2 * time.Second)
	defer deploymentReadyTicker.Stop()

	for {
		current := &appsv1.Deployment{}
		if err := c.Get(ctx, types.NamespacedName{Name: cfg.Name, Namespace: cfg.Namespace}, current); err != nil {
			return fmt.Errorf("failed to get MinIO Deployment %s/%s: %w", cfg.Namespace, cfg.Name, err)
		}

		if current.Status.ReadyReplicas >= cfg.Replicas && current.Status.ReadyReplicas == current.Status.Replicas {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf(
				"context canceled while waiting for MinIO Deployment %s/%s to be ready: %w",
				cfg.Namespace,
				cfg.Name,
				ctx.Err(),
			)
		case <-deploymentReadyDeadline.C:
			return fmt.Errorf(
				"timed out waiting for MinIO Deployment %s/%s to be ready (ready=%d/%d, replicas=%d)",
				cfg.Namespace,
				cfg.Name,
				current.Status.ReadyReplicas,
				cfg.Replicas,
				current.Status.Replicas,
			)
		case <-deploymentReadyTicker.C:
		}
	}

	// Wait for MinIO to be ready to accept connections
	var lastErr error
	readinessTimer := time.NewTimer(2 * time.Minute)
	defer readinessTimer.Stop()
	readinessTicker := time.NewTicker(2 * time.Second)
	defer readinessTicker.Stop()

	for {
		if err := checkMinIOReadiness(ctx, c, cfg.Namespace, cfg.Name); err != nil {
			lastErr = err
		} else {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf(
				"context canceled while waiting for MinIO %s/%s to be ready: %w",
				cfg.Namespace,
				cfg.Name,
				ctx.Err(),
			)
		case <-readinessTimer.C:
			return fmt.Errorf("timed out waiting for MinIO %s/%s to be ready: %w", cfg.Namespace, cfg.Name, lastErr)
		case <-readinessTicker.C:
		}
	}

	// Create buckets if specified
	if len(cfg.Buckets) > 0 {
		if restCfg == nil {
			return fmt.Errorf("rest config is required to create buckets")
		}
		if err := createMinIOBuckets(ctx, restCfg, c, cfg); err != nil {
			return fmt.Errorf("failed to create MinIO buckets: %w", err)
		}
	}

	return nil
}

// checkMinIOReadiness checks if at least one MinIO pod reports Ready.
func checkMinIOReadiness(ctx context.Context, c client.Client, namespace, name string) error {
	var pods corev1.PodList
	if err := c.List(ctx, &pods, client.InNamespace(namespace), client.MatchingLabels{"app": name}); err != nil {
		return fmt.Errorf("failed to list MinIO pods: %w", err)
	}

	if len(pods.Items) == 0 {
		return fmt.Errorf("no MinIO pods found")
	}

	for i := range pods.Items {
		pod := pods.Items[i]
		if pod.Status.Phase == corev1.PodRunning {
			for _, condition := range pod.Status.Conditions {
				if condition.Type == corev1.PodReady && condition.Status == corev1.ConditionTrue {
					return nil
				}
			}
		}
	}

	return fmt.Errorf("no ready MinIO pods found")
}

// createMinIOBuckets creates the specified buckets using a one-shot AWS CLI pod.
func createMinIOBuckets(ctx context.Context, restCfg *rest.Config, c client.Client, cfg MinIOConfig) error {
	if len(cfg.Buckets) == 0 {
		return nil
	}

	awsCliImage := "amazon/aws-cli:latest"
	endpoint := cfg.Endpoint()

	// Create each bucket if it does not exist yet; a pre-existing bucket is
	// verified with s3 ls rather than treated as an error.
	var bucketCommands []string
	for _, bucket := range cfg.Buckets {
		if bucket == "" {
			continue
		}
		bucketCommands = append(bucketCommands, fmt.Sprintf(
			"aws --endpoint-url=%s s3 mb s3://%s || aws --endpoint-url=%s s3 ls s3://%s || exit 1",
			endpoint, bucket, endpoint, bucket,
		))
	}

	if len(bucketCommands) == 0 {
		return nil
	}

	command := strings.Join(bucketCommands, " && ")

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      fmt.Sprintf("%s-create-buckets", cfg.Name),
			Namespace: cfg.Namespace,
		},
		Spec: corev1.PodSpec{
			RestartPolicy: corev1.RestartPolicyNever,
			SecurityContext: &corev1.PodSecurityContext{
				RunAsNonRoot: ptr.To(true),
				RunAsUser:    ptr.To(int64(1000)),
				RunAsGroup:   ptr.To(int64(1000)),
				FSGroup:      ptr.To(int64(1000)),
				SeccompProfile: &corev1.SeccompProfile{
					Type: corev1.SeccompProfileTypeRuntimeDefault,
				},
			},
			Containers: []corev1.Container{
				{
					Name:  "aws-cli",
					Image: awsCliImage,
					Env: []corev1.EnvVar{
						{
							Name:  "AWS_ACCESS_KEY_ID",
							Value: cfg.AccessKey,
						},
						{
							Name:  "AWS_SECRET_ACCESS_KEY",
							Value: cfg.SecretKey,
						},
						{
							Name:  "AWS_DEFAULT_REGION",
							Value: "us-east-1", // Required by AWS CLI, ignored by MinIO
						},
					},
					Command: []string{"/bin/sh", "-ec"},
					Args:    []string{command},
					SecurityContext: &corev1.SecurityContext{
						AllowPrivilegeEscalation: ptr.To(false),
						Capabilities: &corev1.Capabilities{
							Drop: []corev1.Capability{"ALL"},
						},
						RunAsNonRoot: ptr.To(true),
					},
				},
			},
		},
	}

	result, err := RunPodUntilCompletion(ctx, restCfg, c, pod, 2*time.Minute)
	if err != nil {
		return fmt.Errorf("failed to run bucket creation pod: %w", err)
	}

	if result.Phase != corev1.PodSucceeded {
		return fmt.Errorf("bucket creation pod failed, phase=%s, logs:\n%s", result.Phase, result.Logs)
	}

	_ = DeletePodBestEffort(ctx, c, cfg.Namespace, pod.Name)
	return nil
}

// CleanupMinIO best-effort deletes the MinIO resources created by EnsureMinIO.
// It is safe to call even if resources were partially created or already removed.
func CleanupMinIO(ctx context.Context, c client.Client, cfg MinIOConfig) {
	// Order: deployment -> service -> secret
	_ = c.Delete(ctx, &appsv1.Deployment{ObjectMeta: metav1.ObjectMeta{Name: cfg.Name, Namespace: cfg.Namespace}})
	_ = c.Delete(ctx, &corev1.Service{ObjectMeta: metav1.ObjectMeta{Name: cfg.Name + "-svc", Namespace: cfg.Namespace}})
	_ = c.Delete(ctx, &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      cfg.CredentialsSecretName(),
			Namespace: cfg.Namespace,
		},
	})
}

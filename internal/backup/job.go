package backup

import (
	"fmt"
	"strings"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"

	ibgwv1alpha1 "github.com/dc-tec/ibgateway-operator/api/v1alpha1"
	"github.com/dc-tec/ibgateway-operator/internal/constants"
)

const (
	backupJobTTLSeconds = 3600 // 1 hour TTL for completed/failed jobs

	// A wedged upload must not hold the settings volume or block future
	// scheduled runs. The storage client gives up before this fires.
	backupJobActiveDeadlineSeconds = 1800
)

const (
	// The gateway image runs as UID/GID 1000 and owns the files on the
	// settings volume. The Job pins the same IDs so the archive container can
	// read them regardless of the executor image's own defaults.
	backupUserID  = int64(1000)
	backupGroupID = int64(1000)
)

// backupJobName returns the deterministic Job name for a scheduled archive
// window. Two reconciles of the same window produce the same name, so the
// second one finds the first one's Job instead of starting a duplicate.
func backupJobName(gw *ibgwv1alpha1.IBGateway, scheduledTime time.Time) string {
	return gw.Name + constants.SuffixBackup + "-" + scheduledTime.UTC().Format("20060102-150405")
}

// backupLabels returns the labels for backup Jobs and their pods.
func backupLabels(gw *ibgwv1alpha1.IBGateway) map[string]string {
	return map[string]string{
		constants.LabelAppName:      constants.LabelValueAppName,
		constants.LabelAppInstance:  gw.Name,
		constants.LabelAppManagedBy: constants.LabelValueManagedBy,
		constants.LabelGateway:      gw.Name,
		constants.LabelComponent:    constants.ComponentBackup,
	}
}

// buildBackupJob builds the Job that archives the settings volume. The
// executor container mounts the settings PVC read-only, packs it, and uploads
// to the key the controller generated.
func buildBackupJob(gw *ibgwv1alpha1.IBGateway, jobName, objectKey, image string) (*batchv1.Job, error) {
	if strings.TrimSpace(image) == "" {
		return nil, fmt.Errorf("backup executor image is required: set spec.backup.executorImage or the operator's %s", constants.EnvOperatorImage)
	}
	backup := gw.Spec.Backup
	if backup == nil {
		return nil, fmt.Errorf("backup is not configured")
	}

	env := []corev1.EnvVar{
		{Name: constants.EnvGatewayNamespace, Value: gw.Namespace},
		{Name: constants.EnvGatewayName, Value: gw.Name},
		{Name: constants.EnvSettingsDir, Value: constants.PathSettings},
		{Name: constants.EnvBackupObjectKey, Value: objectKey},
		{Name: constants.EnvBackupEndpoint, Value: backup.Target.Endpoint},
		{Name: constants.EnvBackupBucket, Value: backup.Target.Bucket},
		{Name: constants.EnvBackupPathPrefix, Value: backup.Target.PathPrefix},
		{Name: constants.EnvBackupRegion, Value: backup.Target.Region},
		{Name: constants.EnvBackupUsePathStyle, Value: fmt.Sprintf("%t", backup.Target.UsePathStyle)},
	}

	if backup.Target.PartSizeBytes > 0 {
		env = append(env, corev1.EnvVar{
			Name:  constants.EnvBackupPartSize,
			Value: fmt.Sprintf("%d", backup.Target.PartSizeBytes),
		})
	}
	if backup.Target.Concurrency > 0 {
		env = append(env, corev1.EnvVar{
			Name:  constants.EnvBackupConcurrency,
			Value: fmt.Sprintf("%d", backup.Target.Concurrency),
		})
	}
	if backup.Retention != nil && backup.Retention.MaxCount > 0 {
		env = append(env, corev1.EnvVar{
			Name:  constants.EnvBackupRetentionMaxCount,
			Value: fmt.Sprintf("%d", backup.Retention.MaxCount),
		})
	}
	if backup.Target.CredentialsSecretRef != nil {
		env = append(env, corev1.EnvVar{
			Name:  constants.EnvBackupCredentialsPath,
			Value: constants.PathBackupCredentials,
		})
	}

	labels := backupLabels(gw)

	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      jobName,
			Namespace: gw.Namespace,
			Labels:    labels,
		},
		Spec: batchv1.JobSpec{
			// Failed archives are retried on the next scheduled window, not
			// by the Job controller.
			BackoffLimit:            ptr.To(int32(0)),
			TTLSecondsAfterFinished: ptr.To(int32(backupJobTTLSeconds)),
			ActiveDeadlineSeconds:   ptr.To(int64(backupJobActiveDeadlineSeconds)),
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: labels,
				},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Affinity:      buildBackupJobAffinity(gw),
					SecurityContext: &corev1.PodSecurityContext{
						RunAsNonRoot: ptr.To(true),
						RunAsUser:    ptr.To(backupUserID),
						RunAsGroup:   ptr.To(backupGroupID),
						FSGroup:      ptr.To(backupGroupID),
						SeccompProfile: &corev1.SeccompProfile{
							Type: corev1.SeccompProfileTypeRuntimeDefault,
						},
					},
					Containers: []corev1.Container{
						{
							Name:    constants.ContainerNameBackup,
							Image:   image,
							Command: []string{"/" + constants.BinaryNameBackup},
							SecurityContext: &corev1.SecurityContext{
								AllowPrivilegeEscalation: ptr.To(false),
								Capabilities: &corev1.Capabilities{
									Drop: []corev1.Capability{"ALL"},
								},
								ReadOnlyRootFilesystem: ptr.To(true),
								RunAsNonRoot:           ptr.To(true),
							},
							Env:          env,
							VolumeMounts: buildBackupJobVolumeMounts(gw),
						},
					},
					Volumes: buildBackupJobVolumes(gw),
				},
			},
		},
	}

	return job, nil
}

// buildBackupJobAffinity co-locates the archive pod with the gateway pod.
// The settings PVC defaults to ReadWriteOnce, which only one node can mount;
// a ReadWriteMany volume has no such constraint and the pod can run anywhere.
func buildBackupJobAffinity(gw *ibgwv1alpha1.IBGateway) *corev1.Affinity {
	if gw.Spec.Persistence != nil && gw.Spec.Persistence.AccessMode == corev1.ReadWriteMany {
		return nil
	}

	return &corev1.Affinity{
		PodAffinity: &corev1.PodAffinity{
			RequiredDuringSchedulingIgnoredDuringExecution: []corev1.PodAffinityTerm{
				{
					LabelSelector: &metav1.LabelSelector{
						MatchLabels: map[string]string{
							constants.LabelGateway:   gw.Name,
							constants.LabelComponent: constants.ComponentGateway,
						},
					},
					TopologyKey: corev1.LabelHostname,
				},
			},
		},
	}
}

func buildBackupJobVolumeMounts(gw *ibgwv1alpha1.IBGateway) []corev1.VolumeMount {
	mounts := []corev1.VolumeMount{
		{
			Name:      constants.VolumeSettings,
			MountPath: constants.PathSettings,
			ReadOnly:  true,
		},
	}

	if gw.Spec.Backup.Target.CredentialsSecretRef != nil {
		mounts = append(mounts, corev1.VolumeMount{
			Name:      "backup-credentials",
			MountPath: constants.PathBackupCredentials,
			ReadOnly:  true,
		})
	}

	return mounts
}

func buildBackupJobVolumes(gw *ibgwv1alpha1.IBGateway) []corev1.Volume {
	volumes := []corev1.Volume{
		{
			Name: constants.VolumeSettings,
			VolumeSource: corev1.VolumeSource{
				PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{
					ClaimName: gw.Name + constants.SuffixSettingsPVC,
					ReadOnly:  true,
				},
			},
		},
	}

	if gw.Spec.Backup.Target.CredentialsSecretRef != nil {
		volumes = append(volumes, corev1.Volume{
			Name: "backup-credentials",
			VolumeSource: corev1.VolumeSource{
				Secret: &corev1.SecretVolumeSource{
					SecretName:  gw.Spec.Backup.Target.CredentialsSecretRef.Name,
					DefaultMode: ptr.To(int32(0400)),
				},
			},
		})
	}

	return volumes
}

// executorImage resolves the image the backup Job runs: the spec override
// when set, otherwise the operator's own image.
func executorImage(gw *ibgwv1alpha1.IBGateway, defaultImage string) string {
	if gw.Spec.Backup != nil && strings.TrimSpace(gw.Spec.Backup.ExecutorImage) != "" {
		return gw.Spec.Backup.ExecutorImage
	}
	return defaultImage
}

// Package backup schedules settings archives for IBGateway resources.
//
// The controller evaluates the cron schedule on every reconcile. When a
// window fires it launches a Job co-located with the gateway pod; the Job
// runs the executor binary, which packs the settings volume and uploads it
// to object storage under a key the controller generated up front. The
// executor reports the uploaded key and size through the pod termination
// message, and the controller folds the outcome into the gateway status.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/robfig/cron/v3"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	ibgwv1alpha1 "github.com/dc-tec/ibgateway-operator/api/v1alpha1"
	"github.com/dc-tec/ibgateway-operator/internal/constants"
	operatorerrors "github.com/dc-tec/ibgateway-operator/internal/errors"
	"github.com/dc-tec/ibgateway-operator/internal/kube"
	"github.com/dc-tec/ibgateway-operator/internal/logging"
	recon "github.com/dc-tec/ibgateway-operator/internal/reconcile"
	"github.com/dc-tec/ibgateway-operator/internal/status"
)

// BackupResult is what the executor reports through the pod termination
// message on success.
type BackupResult struct {
	// Key is the object storage key the archive was uploaded to.
	Key string `json:"key"`
	// Size is the archive size in bytes.
	Size int64 `json:"size"`
}

// Manager reconciles the settings-archive schedule for an IBGateway.
type Manager struct {
	client client.Client
	scheme *runtime.Scheme

	// defaultExecutorImage is the operator's own image, used for backup Jobs
	// when the spec does not override it.
	defaultExecutorImage string
}

// NewManager constructs a Manager that uses the provided Kubernetes client and
// scheme. The scheme is used to set OwnerReferences on created Jobs for
// garbage collection.
func NewManager(c client.Client, scheme *runtime.Scheme, defaultExecutorImage string) *Manager {
	return &Manager{
		client:               c,
		scheme:               scheme,
		defaultExecutorImage: defaultExecutorImage,
	}
}

// Reconcile drives the archive schedule for the given gateway. It mutates
// gw.Status in place; the caller persists the status update. The returned
// result carries the delay until the next scheduled window so the controller
// can fold it into its requeue.
func (m *Manager) Reconcile(ctx context.Context, logger logr.Logger, gw *ibgwv1alpha1.IBGateway) (recon.Result, error) {
	if gw.Spec.Backup == nil {
		// Backups were unconfigured; drop the stale status so consumers do
		// not act on an old schedule.
		if gw.Status.Backup != nil {
			gw.Status.Backup = nil
			status.Remove(&gw.Status.Conditions, ibgwv1alpha1.ConditionBackupReady)
		}
		return recon.Result{}, nil
	}

	logger = logger.WithValues("component", "backup")
	metrics := NewMetrics(gw.Namespace, gw.Name)

	if gw.Status.Backup == nil {
		gw.Status.Backup = &ibgwv1alpha1.BackupStatus{}
	}

	schedule, err := ParseSchedule(gw.Spec.Backup.Schedule)
	if err != nil {
		status.False(&gw.Status.Conditions, gw.Generation, ibgwv1alpha1.ConditionBackupReady,
			constants.ReasonBackupBlocked, err.Error())
		return recon.Result{}, operatorerrors.WrapValidation(err)
	}

	now := time.Now().UTC()

	// Finish the in-flight attempt before considering a new window.
	if m.attemptInFlight(gw) {
		done, err := m.processAttempt(ctx, logger, gw, metrics)
		if err != nil {
			return recon.Result{}, err
		}
		if !done {
			return recon.Result{RequeueAfter: constants.RequeueShort}, nil
		}
		m.updateNextScheduled(gw, schedule, now)
		return m.requeueForNext(gw, now), nil
	}

	if err := m.checkPreconditions(ctx, gw); err != nil {
		status.False(&gw.Status.Conditions, gw.Generation, ibgwv1alpha1.ConditionBackupReady,
			constants.ReasonBackupBlocked, err.Error())
		logger.V(1).Info("Backup preconditions not met", "reason", err.Error())
		// Preconditions unmet is configuration state, not a reconcile
		// failure.
		return recon.Result{}, nil
	}

	due, err := IsDue(gw.Spec.Backup.Schedule, latestProgress(gw), now)
	if err != nil {
		return recon.Result{}, fmt.Errorf("failed to check backup schedule: %w", err)
	}

	if !due {
		m.updateNextScheduled(gw, schedule, now)
		if status.Get(gw.Status.Conditions, ibgwv1alpha1.ConditionBackupReady) == nil {
			status.Unknown(&gw.Status.Conditions, gw.Generation, ibgwv1alpha1.ConditionBackupReady,
				constants.ReasonBackupScheduled,
				fmt.Sprintf("First archive scheduled for %s", gw.Status.Backup.NextScheduledBackup.Format(time.RFC3339)))
		}
		return m.requeueForNext(gw, now), nil
	}

	if err := m.startAttempt(ctx, logger, gw, metrics, schedule, now); err != nil {
		return recon.Result{}, err
	}
	return recon.Result{RequeueAfter: constants.RequeueShort}, nil
}

// checkPreconditions reports why archiving cannot run right now, or nil when
// it can.
func (m *Manager) checkPreconditions(ctx context.Context, gw *ibgwv1alpha1.IBGateway) error {
	// The executor reads the settings PVC; without persistence there is
	// nothing durable to archive.
	if gw.Spec.Persistence == nil || !gw.Spec.Persistence.Enabled {
		return fmt.Errorf("settings persistence is disabled: enable spec.persistence to archive settings")
	}

	if ref := gw.Spec.Backup.Target.CredentialsSecretRef; ref != nil && strings.TrimSpace(ref.Name) != "" {
		secret := &corev1.Secret{}
		key := types.NamespacedName{Namespace: gw.Namespace, Name: ref.Name}
		if err := m.client.Get(ctx, key, secret); err != nil {
			if apierrors.IsNotFound(err) {
				return fmt.Errorf("backup credentials Secret %s/%s not found", gw.Namespace, ref.Name)
			}
			return fmt.Errorf("failed to get backup credentials Secret %s/%s: %w", gw.Namespace, ref.Name, err)
		}
	}

	return nil
}

// attemptInFlight reports whether a previously launched Job has not had its
// outcome recorded yet. The BackupReady condition carries the marker; the Job
// name is reconstructed from the recorded window time.
func (m *Manager) attemptInFlight(gw *ibgwv1alpha1.IBGateway) bool {
	if gw.Status.Backup == nil || gw.Status.Backup.LastAttemptScheduledTime == nil {
		return false
	}
	cond := status.Get(gw.Status.Conditions, ibgwv1alpha1.ConditionBackupReady)
	return cond != nil && cond.Reason == constants.ReasonBackupRunning
}

// startAttempt launches the Job for the window that fired and records the
// attempt in status.
func (m *Manager) startAttempt(ctx context.Context, logger logr.Logger, gw *ibgwv1alpha1.IBGateway, metrics *Metrics, schedule cron.Schedule, now time.Time) error {
	// A Job from an earlier window may still hold the settings volume, for
	// example after a status update conflict. Never run two archives over it.
	active, activeName, err := m.findActiveJob(ctx, gw)
	if err != nil {
		return err
	}
	if active {
		logger.Info("Existing archive Job still active; not starting another", "job", activeName)
		status.Unknown(&gw.Status.Conditions, gw.Generation, ibgwv1alpha1.ConditionBackupReady,
			constants.ReasonBackupRunning, fmt.Sprintf("Backup Job %s is in progress", activeName))
		return nil
	}

	scheduled := scheduledWindow(schedule, latestProgress(gw), now)
	jobName := backupJobName(gw, scheduled)

	objectKey, err := GenerateBackupKey(gw.Spec.Backup.Target.PathPrefix, gw.Namespace, gw.Name, scheduled)
	if err != nil {
		return fmt.Errorf("failed to generate backup key: %w", err)
	}

	job, err := buildBackupJob(gw, jobName, objectKey, executorImage(gw, m.defaultExecutorImage))
	if err != nil {
		return operatorerrors.WrapValidation(err)
	}
	if err := controllerutil.SetControllerReference(gw, job, m.scheme); err != nil {
		return fmt.Errorf("failed to set owner reference on backup Job %s/%s: %w", gw.Namespace, jobName, err)
	}

	logger.Info("Creating backup Job", "job", jobName, "key", objectKey)
	if err := m.client.Create(ctx, job); err != nil && !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("failed to create backup Job %s/%s: %w", gw.Namespace, jobName, err)
	}
	logging.LogAuditEvent(logger, logging.EventBackupStarted, map[string]string{
		"namespace": gw.Namespace,
		"gateway":   gw.Name,
		"job":       jobName,
		"key":       objectKey,
	})

	nowMeta := metav1.NewTime(now)
	scheduledMeta := metav1.NewTime(scheduled)
	gw.Status.Backup.LastAttemptTime = &nowMeta
	gw.Status.Backup.LastAttemptScheduledTime = &scheduledMeta
	status.Unknown(&gw.Status.Conditions, gw.Generation, ibgwv1alpha1.ConditionBackupReady,
		constants.ReasonBackupRunning, fmt.Sprintf("Backup Job %s is in progress", jobName))
	metrics.SetInProgress(true)

	return nil
}

// processAttempt folds the outcome of the in-flight Job into status. It
// returns false while the Job is still running.
func (m *Manager) processAttempt(ctx context.Context, logger logr.Logger, gw *ibgwv1alpha1.IBGateway, metrics *Metrics) (bool, error) {
	jobName := backupJobName(gw, gw.Status.Backup.LastAttemptScheduledTime.Time)

	job := &batchv1.Job{}
	err := m.client.Get(ctx, types.NamespacedName{Namespace: gw.Namespace, Name: jobName}, job)
	if err != nil {
		if apierrors.IsNotFound(err) {
			// Cleaned up before the result was read; count it against the
			// failure streak so the condition does not report stale success.
			m.recordFailure(gw, metrics, fmt.Sprintf("backup Job %s disappeared before its result was read", jobName))
			return true, nil
		}
		return false, fmt.Errorf("failed to get backup Job %s/%s: %w", gw.Namespace, jobName, err)
	}

	switch {
	case kube.JobSucceeded(job):
		result := m.readBackupResult(ctx, logger, job)
		m.recordSuccess(gw, metrics, job, result)
		logging.LogAuditEvent(logger, logging.EventBackupCompleted, map[string]string{
			"namespace": gw.Namespace,
			"gateway":   gw.Name,
			"job":       jobName,
			"key":       result.Key,
			"size":      fmt.Sprintf("%d", result.Size),
		})
		return true, nil

	case kube.JobFailed(job):
		m.recordFailure(gw, metrics, fmt.Sprintf("backup Job %s failed", jobName))
		logging.LogAuditEvent(logger, logging.EventBackupFailed, map[string]string{
			"namespace": gw.Namespace,
			"gateway":   gw.Name,
			"job":       jobName,
			"reason":    gw.Status.Backup.LastFailureReason,
		})
		return true, nil

	default:
		return false, nil
	}
}

// readBackupResult recovers the uploaded key and size for a succeeded Job.
// The key always comes back from the Job's own env; the size comes from the
// executor's termination message when the pod is still around.
func (m *Manager) readBackupResult(ctx context.Context, logger logr.Logger, job *batchv1.Job) BackupResult {
	result := BackupResult{Key: objectKeyFromJob(job)}

	pods := &corev1.PodList{}
	err := m.client.List(ctx, pods,
		client.InNamespace(job.Namespace),
		client.MatchingLabels{batchv1.JobNameLabel: job.Name})
	if err != nil {
		logger.V(1).Info("Failed to list backup Job pods for result readback", "job", job.Name, "error", err.Error())
		return result
	}

	for i := range pods.Items {
		for _, cs := range pods.Items[i].Status.ContainerStatuses {
			if cs.Name != constants.ContainerNameBackup || cs.State.Terminated == nil {
				continue
			}
			var reported BackupResult
			if err := json.Unmarshal([]byte(cs.State.Terminated.Message), &reported); err != nil {
				logger.V(1).Info("Backup Job termination message is not parseable", "job", job.Name, "error", err.Error())
				continue
			}
			if reported.Key != "" {
				result.Key = reported.Key
			}
			result.Size = reported.Size
			return result
		}
	}

	return result
}

func (m *Manager) recordSuccess(gw *ibgwv1alpha1.IBGateway, metrics *Metrics, job *batchv1.Job, result BackupResult) {
	completion := metav1.Now()
	if job.Status.CompletionTime != nil {
		completion = *job.Status.CompletionTime
	}

	gw.Status.Backup.LastBackupTime = &completion
	gw.Status.Backup.LastBackupName = result.Key
	gw.Status.Backup.LastBackupSize = result.Size
	gw.Status.Backup.ConsecutiveFailures = 0
	gw.Status.Backup.LastFailureReason = ""

	message := fmt.Sprintf("Archive %s uploaded", result.Key)
	if result.Size > 0 {
		message = fmt.Sprintf("Archive %s uploaded (%d bytes)", result.Key, result.Size)
	}
	status.True(&gw.Status.Conditions, gw.Generation, ibgwv1alpha1.ConditionBackupReady,
		constants.ReasonBackupSucceeded, message)

	var duration float64
	if job.Status.StartTime != nil {
		duration = completion.Sub(job.Status.StartTime.Time).Seconds()
	}
	metrics.RecordSuccess(duration, result.Size, float64(completion.Unix()))
}

func (m *Manager) recordFailure(gw *ibgwv1alpha1.IBGateway, metrics *Metrics, reason string) {
	gw.Status.Backup.ConsecutiveFailures++
	gw.Status.Backup.LastFailureReason = reason

	status.False(&gw.Status.Conditions, gw.Generation, ibgwv1alpha1.ConditionBackupReady,
		constants.ReasonBackupFailed, reason)
	metrics.RecordFailure(gw.Status.Backup.ConsecutiveFailures)
}

// findActiveJob reports whether any backup Job for this gateway still has
// active pods.
func (m *Manager) findActiveJob(ctx context.Context, gw *ibgwv1alpha1.IBGateway) (bool, string, error) {
	jobs := &batchv1.JobList{}
	err := m.client.List(ctx, jobs,
		client.InNamespace(gw.Namespace),
		client.MatchingLabels{
			constants.LabelGateway:   gw.Name,
			constants.LabelComponent: constants.ComponentBackup,
		})
	if err != nil {
		return false, "", fmt.Errorf("failed to list backup Jobs for %s/%s: %w", gw.Namespace, gw.Name, err)
	}

	for i := range jobs.Items {
		if kube.JobActive(&jobs.Items[i]) {
			return true, jobs.Items[i].Name, nil
		}
	}
	return false, "", nil
}

// updateNextScheduled recomputes status.Backup.NextScheduledBackup.
func (m *Manager) updateNextScheduled(gw *ibgwv1alpha1.IBGateway, schedule cron.Schedule, now time.Time) {
	next := CalculateNextBackupAtSchedule(schedule, latestProgress(gw), now)
	nextMeta := metav1.NewTime(next)
	gw.Status.Backup.NextScheduledBackup = &nextMeta
}

// requeueForNext asks for a reconcile at the next scheduled window.
func (m *Manager) requeueForNext(gw *ibgwv1alpha1.IBGateway, now time.Time) recon.Result {
	if gw.Status.Backup == nil || gw.Status.Backup.NextScheduledBackup == nil {
		return recon.Result{}
	}
	delay := gw.Status.Backup.NextScheduledBackup.Sub(now)
	if delay < constants.RequeueShort {
		delay = constants.RequeueShort
	}
	return recon.Result{RequeueAfter: delay}
}

// latestProgress returns the most recent point the schedule has progressed
// to: the last successful archive or the last attempted window, whichever is
// later. Due-ness is computed from this so a failed attempt is not retried
// until the next window.
func latestProgress(gw *ibgwv1alpha1.IBGateway) time.Time {
	var last time.Time
	if b := gw.Status.Backup; b != nil {
		if b.LastBackupTime != nil {
			last = b.LastBackupTime.Time
		}
		if b.LastAttemptScheduledTime != nil && b.LastAttemptScheduledTime.Time.After(last) {
			last = b.LastAttemptScheduledTime.Time
		}
	}
	return last
}

// scheduledWindow returns the cron window a due archive belongs to. With no
// prior progress the window is now (baseline archive on first configure).
func scheduledWindow(schedule cron.Schedule, lastProgress, now time.Time) time.Time {
	if lastProgress.IsZero() {
		return now
	}
	slot := schedule.Next(lastProgress)
	if slot.After(now) {
		return now
	}
	return slot
}

// objectKeyFromJob recovers the pre-generated object key from the Job's env.
func objectKeyFromJob(job *batchv1.Job) string {
	for _, container := range job.Spec.Template.Spec.Containers {
		if container.Name != constants.ContainerNameBackup {
			continue
		}
		for _, env := range container.Env {
			if env.Name == constants.EnvBackupObjectKey {
				return env.Value
			}
		}
	}
	return ""
}

package kube

import (
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
)

// JobSucceeded reports whether a Job has completed successfully.
func JobSucceeded(job *batchv1.Job) bool {
	if job == nil {
		return false
	}

	for _, c := range job.Status.Conditions {
		if c.Type == batchv1.JobComplete && c.Status == corev1.ConditionTrue {
			return true
		}
	}

	return job.Status.Succeeded > 0
}

// JobFailed reports whether a Job has completed unsuccessfully.
func JobFailed(job *batchv1.Job) bool {
	if job == nil {
		return false
	}

	for _, c := range job.Status.Conditions {
		if c.Type == batchv1.JobFailed && c.Status == corev1.ConditionTrue {
			return true
		}
	}

	// Fallback: failures with no active pods is terminal even when the
	// conditions have not been observed yet.
	return job.Status.Failed > 0 && job.Status.Active == 0 && job.Status.Succeeded == 0
}

// JobActive reports whether a Job still has running pods. The backup
// manager uses this to avoid launching a second archive run over the same
// settings volume.
func JobActive(job *batchv1.Job) bool {
	if job == nil {
		return false
	}
	return job.Status.Active > 0 && !JobSucceeded(job) && !JobFailed(job)
}

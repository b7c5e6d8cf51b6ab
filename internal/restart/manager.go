// Package restart drives scheduled rolling restarts of the gateway.
//
// IB sessions degrade over time and Interactive Brokers expects a daily
// restart. Instead of relying on in-container timers, the controller
// evaluates the cron schedule on every reconcile and, when a window fires,
// advances status.Restart.LastRestartTime. The deployment builder stamps
// that timestamp into the gateway pod template annotation, which rolls the
// Deployment through the regular apply path.
package restart

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	ibgwv1alpha1 "github.com/dc-tec/ibgateway-operator/api/v1alpha1"
	"github.com/dc-tec/ibgateway-operator/internal/constants"
	operatorerrors "github.com/dc-tec/ibgateway-operator/internal/errors"
	"github.com/dc-tec/ibgateway-operator/internal/logging"
	recon "github.com/dc-tec/ibgateway-operator/internal/reconcile"
	"github.com/dc-tec/ibgateway-operator/internal/status"
)

// Manager reconciles the restart schedule for an IBGateway. It only
// manipulates status; the actual roll happens when the deployment builder
// picks up the new restart timestamp.
type Manager struct{}

// NewManager constructs a restart Manager.
func NewManager() *Manager {
	return &Manager{}
}

// Reconcile evaluates the restart schedule. It mutates gw.Status in place;
// the caller persists the status update. The returned result carries the
// delay until the next scheduled window.
func (m *Manager) Reconcile(_ context.Context, logger logr.Logger, gw *ibgwv1alpha1.IBGateway) (recon.Result, error) {
	if gw.Spec.Restart == nil {
		// Unconfigured: drop the pending window but keep LastRestartTime. It
		// anchors the pod template annotation, and clearing it would roll the
		// gateway one final time.
		if gw.Status.Restart != nil {
			gw.Status.Restart.NextRestartTime = nil
		}
		return recon.Result{}, nil
	}

	logger = logger.WithValues("component", "restart")

	schedule, err := ParseSchedule(gw.Spec.Restart.Schedule)
	if err != nil {
		status.False(&gw.Status.Conditions, gw.Generation, ibgwv1alpha1.ConditionValidated,
			constants.ReasonValidationFailed, err.Error())
		return recon.Result{}, operatorerrors.WrapValidation(err)
	}

	now := time.Now().UTC()
	if gw.Status.Restart == nil {
		gw.Status.Restart = &ibgwv1alpha1.RestartStatus{}
	}
	rs := gw.Status.Restart
	metrics := NewMetrics(gw.Namespace, gw.Name)

	if rs.NextRestartTime == nil || now.Before(rs.NextRestartTime.Time) {
		// Not due. Recomputing on every pass means schedule edits take effect
		// without waiting out the previously recorded window.
		next := metav1.NewTime(schedule.Next(now))
		rs.NextRestartTime = &next
		metrics.SetNextScheduled(float64(next.Unix()))
		return requeueUntil(next.Time, now), nil
	}

	// The window fired. Advance the restart anchor; the gateway rolls when
	// the pod template annotation changes on the next apply.
	scheduled := rs.NextRestartTime.Time
	nowMeta := metav1.NewTime(now)
	rs.LastRestartTime = &nowMeta
	next := metav1.NewTime(schedule.Next(now))
	rs.NextRestartTime = &next

	metrics.RecordRestart(float64(now.Unix()))
	metrics.SetNextScheduled(float64(next.Unix()))

	logger.Info("Scheduled restart triggered", "scheduled", scheduled.Format(time.RFC3339),
		"next", next.Format(time.RFC3339))
	logging.LogAuditEvent(logger, logging.EventRestartTriggered, map[string]string{
		"namespace": gw.Namespace,
		"gateway":   gw.Name,
		"scheduled": scheduled.Format(time.RFC3339),
		"next":      next.Format(time.RFC3339),
	})

	return requeueUntil(next.Time, now), nil
}

// requeueUntil asks for a reconcile at the given time, clamped so bursts of
// reconciles near the window do not spin.
func requeueUntil(next, now time.Time) recon.Result {
	delay := next.Sub(now)
	if delay < constants.RequeueShort {
		delay = constants.RequeueShort
	}
	return recon.Result{RequeueAfter: delay}
}

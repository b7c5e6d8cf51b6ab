package reconcile

import "time"

// Result expresses whether reconciliation should be requeued, and after what delay.
// A zero RequeueAfter means "no requeue requested".
type Result struct {
	RequeueAfter time.Duration
}

// Merge combines two results: the one that fires first wins. The controller
// uses this to fold the backup, restart, and safety-net delays into a single
// requeue without losing the earliest deadline.
func Merge(a, b Result) Result {
	switch {
	case a.RequeueAfter == 0:
		return b
	case b.RequeueAfter == 0:
		return a
	case b.RequeueAfter < a.RequeueAfter:
		return b
	default:
		return a
	}
}

package constants

import "time"

// Requeue intervals used by the controller.
const (
	RequeueShort    = 5 * time.Second
	RequeueStandard = 1 * time.Minute

	RequeueSafetyNetBase   = 10 * time.Minute
	RequeueSafetyNetJitter = 2 * time.Minute
)

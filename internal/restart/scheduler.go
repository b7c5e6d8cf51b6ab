package restart

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// MinInterval is the minimum allowed interval between scheduled restarts.
// A gateway session needs well over this to finish login and settle after a
// roll; the admission webhook enforces the same floor.
const MinInterval = time.Hour

// Parser is a cron parser configured for standard 5-field cron expressions.
var Parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cron.Schedule, error) {
	schedule, err := Parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return schedule, nil
}

// GetScheduleInterval estimates the typical interval between scheduled runs.
func GetScheduleInterval(expr string) (time.Duration, error) {
	schedule, err := ParseSchedule(expr)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	next := schedule.Next(now)
	return schedule.Next(next).Sub(next), nil
}

// ValidateSchedule validates a restart cron expression against MinInterval.
func ValidateSchedule(expr string) error {
	interval, err := GetScheduleInterval(expr)
	if err != nil {
		return err
	}

	if interval < MinInterval {
		return fmt.Errorf("restart schedule interval %v is less than minimum allowed %v", interval, MinInterval)
	}

	return nil
}

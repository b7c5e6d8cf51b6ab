package backup

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	// MinScheduleInterval is the minimum allowed interval between settings
	// archives. Schedules more frequent than this are rejected by validation.
	MinScheduleInterval = 5 * time.Minute
	// WarnScheduleInterval is the interval below which we warn about frequent
	// archives. Archiving reads the live settings volume while the gateway is
	// using it.
	WarnScheduleInterval = 10 * time.Minute
)

// Parser is a cron parser configured for standard 5-field cron expressions.
// It uses the standard minute, hour, day-of-month, month, day-of-week format.
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
// This is used to detect missed schedules and for validation.
func GetScheduleInterval(expr string) (time.Duration, error) {
	schedule, err := ParseSchedule(expr)
	if err != nil {
		return 0, err
	}

	// Calculate interval by checking two consecutive runs
	now := time.Now().UTC()
	next := schedule.Next(now)
	nextNext := schedule.Next(next)

	return nextNext.Sub(next), nil
}

// IsDue determines if a settings archive should run now.
// An archive is due if:
// - There has never been an archive (lastBackup is zero)
// - The current time is past the next scheduled time
func IsDue(expr string, lastBackup, now time.Time) (bool, error) {
	schedule, err := ParseSchedule(expr)
	if err != nil {
		return false, err
	}

	// If no previous archive, it's due immediately
	if lastBackup.IsZero() {
		return true, nil
	}

	// Calculate next scheduled time after last archive
	nextRun := schedule.Next(lastBackup)
	if now.After(nextRun) || now.Equal(nextRun) {
		return true, nil
	}

	return false, nil
}

// ValidateSchedule validates a cron expression and returns any warnings.
func ValidateSchedule(expr string) (warning string, err error) {
	interval, err := GetScheduleInterval(expr)
	if err != nil {
		return "", err
	}

	if interval < MinScheduleInterval {
		return "", fmt.Errorf("backup schedule interval %v is less than minimum allowed %v", interval, MinScheduleInterval)
	}

	if interval < WarnScheduleInterval {
		warning = fmt.Sprintf("backup schedule interval %v is less than recommended %v; frequent archives may disturb the gateway session", interval, WarnScheduleInterval)
	}

	return warning, nil
}

// CalculateNextBackupAt computes the next scheduled archive time relative to
// the given reference time.
func CalculateNextBackupAt(expr string, lastBackup, now time.Time) (time.Time, error) {
	schedule, err := ParseSchedule(expr)
	if err != nil {
		return time.Time{}, err
	}
	return CalculateNextBackupAtSchedule(schedule, lastBackup, now), nil
}

// CalculateNextBackupAtSchedule computes the next archive time for a parsed
// schedule. With no prior archive the next run is the first scheduled time
// after now. If the run following lastBackup is already in the past the
// schedule fell behind, and the next run is recomputed from now.
func CalculateNextBackupAtSchedule(schedule cron.Schedule, lastBackup, now time.Time) time.Time {
	if lastBackup.IsZero() {
		return schedule.Next(now)
	}

	next := schedule.Next(lastBackup)
	if next.Before(now) {
		return schedule.Next(now)
	}
	return next
}

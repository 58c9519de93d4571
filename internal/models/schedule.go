package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ScheduleKind describes how a medication schedule repeats
type ScheduleKind string

const (
	KindDaily            ScheduleKind = "daily"
	KindSpecificWeekdays ScheduleKind = "specific_weekdays"
	KindIntervalDays     ScheduleKind = "interval_days"
	KindAsNeeded         ScheduleKind = "as_needed"
)

var (
	ErrNoTimes      = errors.New("schedule needs at least one time of day")
	ErrNoWeekdays   = errors.New("weekday schedule needs at least one weekday")
	ErrBadInterval  = errors.New("interval must be at least 1 day")
	ErrBadDateRange = errors.New("end date is before start date")
	ErrUnknownKind  = errors.New("unknown schedule kind")
	ErrBadTimeOfDay = errors.New("time of day must be HH:MM")
)

type Schedule struct {
	ScheduleID    uuid.UUID    `json:"schedule_id"`
	MedicationID  uuid.UUID    `json:"medication_id"`
	ChatID        int64        `json:"chat_id"`
	Kind          ScheduleKind `json:"kind"`
	Times         []string     `json:"times"`    // "HH:MM", date-independent
	Weekdays      []int16      `json:"weekdays"` // 0=Sunday .. 6=Saturday
	IntervalDays  int          `json:"interval_days"`
	StartDate     time.Time    `json:"start_date"`
	EndDate       *time.Time   `json:"end_date"`
	Active        bool         `json:"active"`
	NotifyEnabled bool         `json:"notify_enabled"`
	LeadMinutes   int          `json:"lead_minutes"` // fire this many minutes before the dose time
	Notes         string       `json:"notes"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Validate checks the structural invariants of a schedule before it is saved.
func (s *Schedule) Validate() error {
	switch s.Kind {
	case KindDaily:
		if len(s.Times) == 0 {
			return ErrNoTimes
		}
	case KindSpecificWeekdays:
		if len(s.Times) == 0 {
			return ErrNoTimes
		}
		if len(s.Weekdays) == 0 {
			return ErrNoWeekdays
		}
	case KindIntervalDays:
		if len(s.Times) == 0 {
			return ErrNoTimes
		}
		if s.IntervalDays < 1 {
			return ErrBadInterval
		}
	case KindAsNeeded:
		// No scheduled times; doses are logged ad hoc.
	default:
		return ErrUnknownKind
	}
	if s.EndDate != nil && s.EndDate.Before(truncateToDay(s.StartDate)) {
		return ErrBadDateRange
	}
	for _, t := range s.Times {
		if _, err := time.Parse("15:04", t); err != nil {
			return ErrBadTimeOfDay
		}
	}
	return nil
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

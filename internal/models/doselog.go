package models

import (
	"time"

	"github.com/google/uuid"
)

// DoseStatus is the lifecycle state of one materialized dose.
// Every status accepts a new action; none is terminal.
type DoseStatus string

const (
	StatusPending DoseStatus = "pending"
	StatusTaken   DoseStatus = "taken"
	StatusSkipped DoseStatus = "skipped"
	StatusDelayed DoseStatus = "delayed"
	StatusSnoozed DoseStatus = "snoozed"
)

type DoseLog struct {
	LogID        uuid.UUID  `json:"log_id"`
	ChatID       int64      `json:"chat_id"`
	MedicationID uuid.UUID  `json:"medication_id"`
	ScheduleID   *uuid.UUID `json:"schedule_id"` // nil if the schedule was deleted or the dose was ad hoc
	ScheduledAt  time.Time  `json:"scheduled_at"`
	NextFireAt   *time.Time `json:"next_fire_at"` // moved forward by snooze; ScheduledAt stays put
	ActualAt     *time.Time `json:"actual_at"`
	Status       DoseStatus `json:"status"`
	SnoozeCount  int        `json:"snooze_count"`
	LastSnoozeAt *time.Time `json:"last_snooze_at"`
	Notes        string     `json:"notes"`
	CreatedAt    time.Time  `json:"created_at"`
}

// IsActed returns true once the user has responded to this dose in any way
func (l *DoseLog) IsActed() bool {
	return l.Status != StatusPending
}

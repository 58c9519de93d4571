// Package materializer turns a day's schedule occurrences into persisted dose
// logs. It is safe to run any number of times per day: the only
// de-duplication mechanism is a scan of the day's existing logs keyed by
// (schedule id, minute-truncated time), so nothing on the schedule itself
// marks a day as done.
package materializer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hray3182/DoseLine/internal/models"
	"github.com/hray3182/DoseLine/internal/recurrence"
)

type ScheduleSource interface {
	GetActive(ctx context.Context) ([]*models.Schedule, error)
}

type LogStore interface {
	GetByDateRange(ctx context.Context, from, to time.Time) ([]*models.DoseLog, error)
	CreateAll(ctx context.Context, logs []*models.DoseLog) error
}

type Materializer struct {
	schedules ScheduleSource
	logs      LogStore
	now       func() time.Time
}

func New(schedules ScheduleSource, logs LogStore) *Materializer {
	return &Materializer{
		schedules: schedules,
		logs:      logs,
		now:       time.Now,
	}
}

// MaterializeDay creates pending dose logs for every occurrence of every
// active schedule on the given calendar day that has not been materialized
// yet. Returns the number of logs created. The day's inserts run as one
// write; a failure aborts the invocation with nothing persisted.
func (m *Materializer) MaterializeDay(ctx context.Context, date time.Time) (int, error) {
	schedules, err := m.schedules.GetActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load active schedules: %w", err)
	}

	dayStart := recurrence.StartOfDay(date)
	dayEnd := dayStart.AddDate(0, 0, 1)

	existing, err := m.logs.GetByDateRange(ctx, dayStart, dayEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to load existing dose logs: %w", err)
	}

	seen := make(map[string]bool, len(existing))
	for _, log := range existing {
		if log.ScheduleID != nil {
			seen[dedupKey(*log.ScheduleID, log.ScheduledAt)] = true
		}
	}

	var toCreate []*models.DoseLog
	for _, schedule := range schedules {
		for _, occ := range recurrence.OccurrencesOn(schedule, dayStart) {
			key := dedupKey(schedule.ScheduleID, occ)
			if seen[key] {
				continue
			}

			scheduleID := schedule.ScheduleID
			toCreate = append(toCreate, &models.DoseLog{
				LogID:        uuid.New(),
				ChatID:       schedule.ChatID,
				MedicationID: schedule.MedicationID,
				ScheduleID:   &scheduleID,
				ScheduledAt:  occ,
				Status:       models.StatusPending,
			})
			seen[key] = true
		}
	}

	if err := m.logs.CreateAll(ctx, toCreate); err != nil {
		return 0, fmt.Errorf("failed to create dose logs: %w", err)
	}
	return len(toCreate), nil
}

// MaterializeToday materializes the current calendar day
func (m *Materializer) MaterializeToday(ctx context.Context) (int, error) {
	return m.MaterializeDay(ctx, m.now())
}

func dedupKey(scheduleID uuid.UUID, at time.Time) string {
	return scheduleID.String() + "|" + at.Truncate(time.Minute).Format(time.RFC3339)
}

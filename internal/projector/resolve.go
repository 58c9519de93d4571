package projector

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hray3182/DoseLine/internal/models"
	"github.com/hray3182/DoseLine/internal/notifier"
	"github.com/hray3182/DoseLine/internal/recurrence"
)

type ScheduleSource interface {
	GetByID(ctx context.Context, scheduleID uuid.UUID) (*models.Schedule, error)
}

type LogSource interface {
	GetByID(ctx context.Context, logID uuid.UUID) (*models.DoseLog, error)
	FindByScheduleAndTime(ctx context.Context, scheduleID uuid.UUID, at time.Time) (*models.DoseLog, error)
}

type DayMaterializer interface {
	MaterializeDay(ctx context.Context, date time.Time) (int, error)
}

// FireResolver is the notifier worker's bridge back into schedule semantics:
// a due reminder is resolved to the dose log it should surface, or suppressed.
type FireResolver struct {
	schedules ScheduleSource
	logs      LogSource
	mat       DayMaterializer
}

func NewFireResolver(schedules ScheduleSource, logs LogSource, mat DayMaterializer) *FireResolver {
	return &FireResolver{schedules: schedules, logs: logs, mat: mat}
}

func (r *FireResolver) ResolveLog(ctx context.Context, rem *notifier.Reminder, now time.Time) (*models.DoseLog, error) {
	// Snooze one-shots carry the log id directly
	if rem.Payload.LogID != uuid.Nil {
		log, err := r.logs.GetByID(ctx, rem.Payload.LogID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, nil
			}
			return nil, err
		}
		// The user may have acted on the dose while the snooze was pending
		if log.Status != models.StatusSnoozed && log.Status != models.StatusPending {
			return nil, nil
		}
		return log, nil
	}

	schedule, err := r.schedules.GetByID(ctx, rem.Payload.ScheduleID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Schedule deleted since registration; the reminder is stale
			return nil, nil
		}
		return nil, err
	}

	// Repeating reminders fire daily at wall-clock granularity. Weekday and
	// interval restrictions are enforced here, at fire time.
	if !recurrence.OccursOn(schedule, now) {
		return nil, nil
	}
	if rem.Payload.TimeIndex >= len(schedule.Times) {
		return nil, nil
	}

	// Idempotent; ensures the log exists even if the app-open hook never ran today
	if _, err := r.mat.MaterializeDay(ctx, now); err != nil {
		return nil, err
	}

	parsed, err := time.Parse("15:04", schedule.Times[rem.Payload.TimeIndex])
	if err != nil {
		return nil, nil
	}
	nominal := time.Date(now.Year(), now.Month(), now.Day(), parsed.Hour(), parsed.Minute(), 0, 0, now.Location())

	log, err := r.logs.FindByScheduleAndTime(ctx, schedule.ScheduleID, nominal)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if log.IsActed() {
		// Taken, skipped, or handed off to a snooze one-shot already
		return nil, nil
	}
	return log, nil
}

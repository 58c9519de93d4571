// Package projector keeps the pending-reminder store mirroring the active,
// notification-enabled schedules: one repeating reminder per schedule
// time-of-day, a one-shot per snoozed dose, and whole-schedule admission
// control when demand exceeds the store's ceiling.
package projector

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hray3182/DoseLine/internal/models"
	"github.com/hray3182/DoseLine/internal/notifier"
	"github.com/hray3182/DoseLine/internal/recurrence"
)

const idPrefix = "doseline."

func scheduleReminderID(scheduleID uuid.UUID, timeIndex int) string {
	return fmt.Sprintf("%sschedule.%s.%d", idPrefix, scheduleID, timeIndex)
}

func doseReminderID(logID uuid.UUID) string {
	return idPrefix + "doselog." + logID.String()
}

type ReminderStore interface {
	Register(rem *notifier.Reminder) error
	Cancel(ids ...string)
	CancelAll()
	Authorized(chatID int64) bool
}

type MedicationSource interface {
	GetByID(ctx context.Context, medicationID uuid.UUID) (*models.Medication, error)
}

type DoseService interface {
	Snooze(ctx context.Context, log *models.DoseLog, minutes int) error
}

type Projector struct {
	store ReminderStore
	meds  MedicationSource
	doses DoseService

	mu         sync.Mutex
	owned      map[uuid.UUID][]string // schedule id -> reminder ids it owns
	rebuildGen atomic.Uint64
	now        func() time.Time
}

func New(store ReminderStore, meds MedicationSource, doses DoseService) *Projector {
	return &Projector{
		store: store,
		meds:  meds,
		doses: doses,
		owned: make(map[uuid.UUID][]string),
		now:   time.Now,
	}
}

// ScheduleNotification cancels any reminders the schedule owns and registers
// fresh ones, one repeating reminder per time-of-day. Disabled or inactive
// schedules only get their stale reminders cancelled. A mid-loop registration
// failure aborts the remaining times and leaves the earlier registrations in
// place.
func (p *Projector) ScheduleNotification(ctx context.Context, schedule *models.Schedule) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cancelLocked(schedule.ScheduleID)

	if !schedule.Active || !schedule.NotifyEnabled {
		return nil
	}
	return p.registerLocked(ctx, schedule)
}

// CancelNotification removes every reminder the schedule owns. Ownership is
// an explicit per-schedule id index, not an id-substring scan against the
// store.
func (p *Projector) CancelNotification(ctx context.Context, schedule *models.Schedule) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cancelLocked(schedule.ScheduleID)
	return nil
}

// CancelDoseReminder removes the one-shot snooze reminder for a dose log, if
// one is pending. Called when the user acts on the dose through another path.
func (p *Projector) CancelDoseReminder(log *models.DoseLog) {
	p.store.Cancel(doseReminderID(log.LogID))
}

// RescheduleAll rebuilds the reminder store from scratch: cancel everything,
// then admit schedules under the store ceiling and register them. Rebuilds
// are serialized; a rebuild that was queued behind a newer request returns
// without touching the store, so the newest request's state wins.
func (p *Projector) RescheduleAll(ctx context.Context, schedules []*models.Schedule) error {
	gen := p.rebuildGen.Add(1)

	p.mu.Lock()
	defer p.mu.Unlock()

	if gen != p.rebuildGen.Load() {
		return nil
	}

	p.store.CancelAll()
	p.owned = make(map[uuid.UUID][]string)

	var eligible []*models.Schedule
	for _, s := range schedules {
		if s.Active && s.NotifyEnabled {
			eligible = append(eligible, s)
		}
	}

	admitted := p.ration(eligible)

	var firstErr error
	for _, s := range admitted {
		if err := p.registerLocked(ctx, s); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to schedule reminders for %s: %w", s.ScheduleID, err)
			}
		}
	}
	return firstErr
}

// ration admits the prefix of whole schedules, earliest next occurrence
// first, whose combined time-of-day counts fit under the store ceiling. The
// first schedule that does not fit ends admission, so every admitted
// schedule's next occurrence is at or before every excluded one's. A schedule
// is never partially admitted. Schedules with no computable next occurrence
// sort last; ties keep input order (stable sort).
func (p *Projector) ration(eligible []*models.Schedule) []*models.Schedule {
	total := 0
	for _, s := range eligible {
		total += len(s.Times)
	}
	if total <= notifier.MaxPending {
		return eligible
	}

	now := p.now()
	next := make(map[uuid.UUID]*time.Time, len(eligible))
	for _, s := range eligible {
		next[s.ScheduleID] = recurrence.NextOccurrence(s, now)
	}

	ordered := make([]*models.Schedule, len(eligible))
	copy(ordered, eligible)
	sort.SliceStable(ordered, func(i, j int) bool {
		ni, nj := next[ordered[i].ScheduleID], next[ordered[j].ScheduleID]
		switch {
		case ni == nil:
			return false
		case nj == nil:
			return true
		default:
			return ni.Before(*nj)
		}
	})

	var admitted []*models.Schedule
	budget := notifier.MaxPending
	for _, s := range ordered {
		if len(s.Times) > budget {
			break
		}
		admitted = append(admitted, s)
		budget -= len(s.Times)
	}
	return admitted
}

// SnoozeNotification re-arms a single dose's reminder: a one-shot with a
// stable id derived from the log id (so repeated snoozes replace, not
// accumulate) firing minutes from now. The dose log is only mutated after
// registration succeeds, so a failed registration never leaves a log
// claiming to be snoozed with no reminder behind it.
func (p *Projector) SnoozeNotification(ctx context.Context, log *models.DoseLog, minutes int) error {
	if !p.store.Authorized(log.ChatID) {
		return ErrNotAuthorized
	}

	med, err := p.meds.GetByID(ctx, log.MedicationID)
	if err != nil {
		return fmt.Errorf("%w: failed to load medication %s: %w", ErrInvalidData, log.MedicationID, err)
	}

	rem := &notifier.Reminder{
		ID:     doseReminderID(log.LogID),
		ChatID: log.ChatID,
		FireAt: p.now().Add(time.Duration(minutes) * time.Minute),
		Payload: notifier.Payload{
			MedicationID: log.MedicationID,
			LogID:        log.LogID,
			ScheduledAt:  log.ScheduledAt,
			Title:        med.Name,
			Body:         med.Dosage,
		},
	}
	if err := p.store.Register(rem); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrRegistrationFailed, rem.ID, err)
	}

	return p.doses.Snooze(ctx, log, minutes)
}

func (p *Projector) cancelLocked(scheduleID uuid.UUID) {
	if ids := p.owned[scheduleID]; len(ids) > 0 {
		p.store.Cancel(ids...)
	}
	delete(p.owned, scheduleID)
}

func (p *Projector) registerLocked(ctx context.Context, schedule *models.Schedule) error {
	if schedule.Kind == models.KindAsNeeded {
		return nil
	}

	if !p.store.Authorized(schedule.ChatID) {
		return ErrNotAuthorized
	}

	med, err := p.meds.GetByID(ctx, schedule.MedicationID)
	if err != nil {
		return fmt.Errorf("%w: failed to load medication %s: %w", ErrInvalidSchedule, schedule.MedicationID, err)
	}

	now := p.now()
	for i, tod := range schedule.Times {
		parsed, err := time.Parse("15:04", tod)
		if err != nil {
			return fmt.Errorf("%w: bad time of day %q", ErrInvalidSchedule, tod)
		}

		// First upcoming instance of this wall-clock time, lead applied to
		// the fire time but not to the nominal dose time in the payload.
		nominal := time.Date(now.Year(), now.Month(), now.Day(), parsed.Hour(), parsed.Minute(), 0, 0, now.Location())
		fire := nominal.Add(-time.Duration(schedule.LeadMinutes) * time.Minute)
		if !fire.After(now) {
			nominal = nominal.AddDate(0, 0, 1)
			fire = fire.AddDate(0, 0, 1)
		}

		rem := &notifier.Reminder{
			ID:          scheduleReminderID(schedule.ScheduleID, i),
			ChatID:      schedule.ChatID,
			FireAt:      fire,
			RepeatDaily: true,
			Payload: notifier.Payload{
				MedicationID: schedule.MedicationID,
				ScheduleID:   schedule.ScheduleID,
				ScheduledAt:  nominal,
				TimeIndex:    i,
				Title:        med.Name,
				Body:         med.Dosage,
			},
		}
		if err := p.store.Register(rem); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrRegistrationFailed, rem.ID, err)
		}
		p.owned[schedule.ScheduleID] = append(p.owned[schedule.ScheduleID], rem.ID)
	}
	return nil
}

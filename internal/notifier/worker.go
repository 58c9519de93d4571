package notifier

import (
	"context"
	"log"
	"time"

	"github.com/hray3182/DoseLine/internal/models"
	"github.com/hray3182/DoseLine/internal/recurrence"
)

// Sender delivers a fired reminder to the user
type Sender interface {
	SendReminder(ctx context.Context, rem *Reminder, doseLog *models.DoseLog) error
}

// Resolver maps a due reminder to the dose log it is about. Returning a nil
// log without an error suppresses delivery; schedule reminders repeat daily
// at wall-clock granularity, so weekday- and interval-restricted schedules
// are filtered here, at fire time.
type Resolver interface {
	ResolveLog(ctx context.Context, rem *Reminder, now time.Time) (*models.DoseLog, error)
}

type Worker struct {
	store      *Store
	sender     Sender
	resolver   Resolver
	onRollover func(ctx context.Context)
}

func NewWorker(store *Store, sender Sender, resolver Resolver) *Worker {
	return &Worker{
		store:    store,
		sender:   sender,
		resolver: resolver,
	}
}

// SetOnRollover sets a callback invoked once when the calendar day changes
// (midnight rollover re-materialization hook)
func (w *Worker) SetOnRollover(fn func(ctx context.Context)) {
	w.onRollover = fn
}

// Refresh signals the worker to re-arm its timer immediately
func (w *Worker) Refresh() {
	w.store.signalRefresh()
}

func (w *Worker) Start(ctx context.Context) {
	log.Println("Notifier worker started")

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}

	lastDay := recurrence.StartOfDay(time.Now())

	for {
		now := time.Now()

		if day := recurrence.StartOfDay(now); day.After(lastDay) {
			lastDay = day
			if w.onRollover != nil {
				w.onRollover(ctx)
			}
		}

		w.deliverDue(ctx, now)

		// Arm the timer to the next due reminder, or to midnight so the
		// rollover hook still runs on quiet days.
		next := recurrence.StartOfDay(now).AddDate(0, 0, 1)
		if due, ok := w.store.nextDue(); ok && due.Before(next) {
			next = due
		}
		wait := next.Sub(now)
		if wait < 0 {
			wait = 0
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			log.Println("Notifier worker stopped")
			return
		case <-w.store.refresh:
		case <-timer.C:
		}
	}
}

func (w *Worker) deliverDue(ctx context.Context, now time.Time) {
	for _, rem := range w.store.due(now) {
		doseLog, err := w.resolver.ResolveLog(ctx, rem, now)
		if err != nil {
			log.Printf("Failed to resolve dose log for reminder %s: %v", rem.ID, err)
			continue
		}
		if doseLog == nil {
			// Off day for this schedule, or the dose was already acted on
			continue
		}

		if err := w.sender.SendReminder(ctx, rem, doseLog); err != nil {
			log.Printf("Failed to deliver reminder %s: %v", rem.ID, err)
			continue
		}
		log.Printf("Delivered reminder %s to chat %d", rem.ID, rem.ChatID)
	}
}

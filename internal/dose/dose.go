// Package dose implements the lifecycle of one materialized dose log. The
// machine is deliberately total: any action may be applied from any status,
// so the user can always correct an earlier answer.
package dose

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hray3182/DoseLine/internal/models"
)

// DelayThreshold is how late a dose can be taken and still count as on time.
// Exactly at the threshold still counts as taken.
const DelayThreshold = 30 * time.Minute

type LogStore interface {
	Update(ctx context.Context, log *models.DoseLog) error
}

type StockStore interface {
	DecreaseStock(ctx context.Context, medicationID uuid.UUID) (int, error)
}

type Service struct {
	logs LogStore
	meds StockStore
	now  func() time.Time
}

func New(logs LogStore, meds StockStore) *Service {
	return &Service{
		logs: logs,
		meds: meds,
		now:  time.Now,
	}
}

// MarkTaken records the dose as taken at the given time (zero value means
// now), classifying it as delayed when taken more than DelayThreshold after
// the scheduled time. Decrements the medication stock and returns the
// remaining count.
func (s *Service) MarkTaken(ctx context.Context, log *models.DoseLog, at time.Time) (int, error) {
	if at.IsZero() {
		at = s.now()
	}

	log.ActualAt = &at
	log.NextFireAt = nil
	if at.Sub(log.ScheduledAt) > DelayThreshold {
		log.Status = models.StatusDelayed
	} else {
		log.Status = models.StatusTaken
	}

	if err := s.logs.Update(ctx, log); err != nil {
		return 0, fmt.Errorf("failed to save dose log: %w", err)
	}

	stock, err := s.meds.DecreaseStock(ctx, log.MedicationID)
	if err != nil {
		return 0, fmt.Errorf("failed to decrease stock: %w", err)
	}
	return stock, nil
}

// MarkSkipped records the dose as skipped with an optional reason
func (s *Service) MarkSkipped(ctx context.Context, log *models.DoseLog, reason string) error {
	now := s.now()
	log.Status = models.StatusSkipped
	log.ActualAt = &now
	log.NextFireAt = nil
	if reason != "" {
		log.Notes = reason
	}

	if err := s.logs.Update(ctx, log); err != nil {
		return fmt.Errorf("failed to save dose log: %w", err)
	}
	return nil
}

// Snooze defers the dose: the next fire time moves to now+minutes while the
// nominal scheduled time stays untouched, so delay classification and the
// materializer's de-duplication key keep working across repeated snoozes.
func (s *Service) Snooze(ctx context.Context, log *models.DoseLog, minutes int) error {
	now := s.now()
	next := now.Add(time.Duration(minutes) * time.Minute)

	log.Status = models.StatusSnoozed
	log.SnoozeCount++
	log.LastSnoozeAt = &now
	log.NextFireAt = &next

	if err := s.logs.Update(ctx, log); err != nil {
		return fmt.Errorf("failed to save dose log: %w", err)
	}
	return nil
}

// ResetToPending clears any earlier action on the dose
func (s *Service) ResetToPending(ctx context.Context, log *models.DoseLog) error {
	log.Status = models.StatusPending
	log.ActualAt = nil
	log.NextFireAt = nil

	if err := s.logs.Update(ctx, log); err != nil {
		return fmt.Errorf("failed to save dose log: %w", err)
	}
	return nil
}

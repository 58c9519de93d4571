package materializer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hray3182/DoseLine/internal/models"
)

type fakeScheduleSource struct {
	schedules []*models.Schedule
}

func (f *fakeScheduleSource) GetActive(ctx context.Context) ([]*models.Schedule, error) {
	return f.schedules, nil
}

type fakeLogStore struct {
	logs      []*models.DoseLog
	failAfter int // fail the batch once it holds more than this many logs; -1 never
}

func (f *fakeLogStore) GetByDateRange(ctx context.Context, from, to time.Time) ([]*models.DoseLog, error) {
	var out []*models.DoseLog
	for _, l := range f.logs {
		if !l.ScheduledAt.Before(from) && l.ScheduledAt.Before(to) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeLogStore) CreateAll(ctx context.Context, logs []*models.DoseLog) error {
	if f.failAfter >= 0 && len(logs) > f.failAfter {
		return errors.New("disk full")
	}
	f.logs = append(f.logs, logs...)
	return nil
}

func newFakeLogStore() *fakeLogStore {
	return &fakeLogStore{failAfter: -1}
}

func dailySchedule(times []string, start time.Time) *models.Schedule {
	return &models.Schedule{
		ScheduleID:    uuid.New(),
		MedicationID:  uuid.New(),
		ChatID:        42,
		Kind:          models.KindDaily,
		Times:         times,
		StartDate:     start,
		Active:        true,
		NotifyEnabled: true,
	}
}

func TestMaterializeDay_CreatesPendingLogs(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := dailySchedule([]string{"08:00", "20:00"}, start)
	logs := newFakeLogStore()
	m := New(&fakeScheduleSource{schedules: []*models.Schedule{s}}, logs)

	created, err := m.MaterializeDay(context.Background(), start.AddDate(0, 0, 5))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if created != 2 {
		t.Fatalf("expected 2 logs created, got %d", created)
	}
	for _, l := range logs.logs {
		if l.Status != models.StatusPending {
			t.Fatalf("expected pending status, got %s", l.Status)
		}
		if l.ScheduleID == nil || *l.ScheduleID != s.ScheduleID {
			t.Fatalf("expected log linked to schedule %s, got %v", s.ScheduleID, l.ScheduleID)
		}
		if l.MedicationID != s.MedicationID {
			t.Fatalf("expected log linked to medication %s", s.MedicationID)
		}
	}
}

func TestMaterializeDay_Idempotent(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := dailySchedule([]string{"08:00", "20:00"}, start)
	logs := newFakeLogStore()
	m := New(&fakeScheduleSource{schedules: []*models.Schedule{s}}, logs)
	date := start.AddDate(0, 0, 3)

	if _, err := m.MaterializeDay(context.Background(), date); err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	created, err := m.MaterializeDay(context.Background(), date)
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if created != 0 {
		t.Fatalf("expected second call to create 0 logs, got %d", created)
	}
	if len(logs.logs) != 2 {
		t.Fatalf("expected 2 logs total after repeated calls, got %d", len(logs.logs))
	}
}

func TestMaterializeDay_OffDayCreatesNothing(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := dailySchedule([]string{"09:00"}, start)
	s.Kind = models.KindIntervalDays
	s.IntervalDays = 3
	logs := newFakeLogStore()
	m := New(&fakeScheduleSource{schedules: []*models.Schedule{s}}, logs)

	created, err := m.MaterializeDay(context.Background(), start.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if created != 0 || len(logs.logs) != 0 {
		t.Fatalf("expected no logs on an off day, got %d", len(logs.logs))
	}
}

func TestMaterializeDay_SaveFailureAborts(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := dailySchedule([]string{"08:00", "14:00", "20:00"}, start)
	logs := newFakeLogStore()
	logs.failAfter = 1 // batch fits one log, the day needs three
	m := New(&fakeScheduleSource{schedules: []*models.Schedule{s}}, logs)

	created, err := m.MaterializeDay(context.Background(), start)
	if err == nil {
		t.Fatal("expected an error when save fails")
	}
	if created != 0 {
		t.Fatalf("expected 0 created on failure, got %d", created)
	}
	if len(logs.logs) != 0 {
		t.Fatalf("a failed write must persist nothing, got %d logs", len(logs.logs))
	}

	// Recovery: the next invocation materializes the full day
	logs.failAfter = -1
	created, err = m.MaterializeDay(context.Background(), start)
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if created != 3 || len(logs.logs) != 3 {
		t.Fatalf("expected all 3 logs after retry, got created=%d persisted=%d", created, len(logs.logs))
	}
}

func TestMaterializeDay_MultipleSchedulesIndependent(t *testing.T) {
	start := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC) // Monday
	a := dailySchedule([]string{"08:00"}, start)
	b := dailySchedule([]string{"08:00"}, start)
	b.Kind = models.KindSpecificWeekdays
	b.Weekdays = []int16{2} // Tuesday only
	logs := newFakeLogStore()
	m := New(&fakeScheduleSource{schedules: []*models.Schedule{a, b}}, logs)

	created, err := m.MaterializeDay(context.Background(), start)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if created != 1 {
		t.Fatalf("expected only the daily schedule to materialize on Monday, got %d", created)
	}
	if *logs.logs[0].ScheduleID != a.ScheduleID {
		t.Fatalf("expected log for schedule %s, got %s", a.ScheduleID, *logs.logs[0].ScheduleID)
	}
}

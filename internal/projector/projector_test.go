package projector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hray3182/DoseLine/internal/models"
	"github.com/hray3182/DoseLine/internal/notifier"
)

type fakeStore struct {
	authorized map[int64]bool
	pending    map[string]*notifier.Reminder
	ops        []string
	failOn     map[string]error
}

func newFakeStore(chatIDs ...int64) *fakeStore {
	s := &fakeStore{
		authorized: make(map[int64]bool),
		pending:    make(map[string]*notifier.Reminder),
		failOn:     make(map[string]error),
	}
	for _, id := range chatIDs {
		s.authorized[id] = true
	}
	return s
}

func (s *fakeStore) Register(rem *notifier.Reminder) error {
	if err := s.failOn[rem.ID]; err != nil {
		return err
	}
	cp := *rem
	s.pending[rem.ID] = &cp
	s.ops = append(s.ops, "register:"+rem.ID)
	return nil
}

func (s *fakeStore) Cancel(ids ...string) {
	for _, id := range ids {
		delete(s.pending, id)
		s.ops = append(s.ops, "cancel:"+id)
	}
}

func (s *fakeStore) CancelAll() {
	s.pending = make(map[string]*notifier.Reminder)
	s.ops = append(s.ops, "cancelall")
}

func (s *fakeStore) Authorized(chatID int64) bool { return s.authorized[chatID] }

type fakeMeds struct {
	meds map[uuid.UUID]*models.Medication
}

func (f *fakeMeds) GetByID(ctx context.Context, id uuid.UUID) (*models.Medication, error) {
	med, ok := f.meds[id]
	if !ok {
		return nil, errors.New("medication not found")
	}
	return med, nil
}

type fakeDoses struct {
	snoozes int
}

func (f *fakeDoses) Snooze(ctx context.Context, log *models.DoseLog, minutes int) error {
	f.snoozes++
	return nil
}

var testNow = time.Date(2025, 1, 6, 7, 0, 0, 0, time.UTC) // Monday morning

func newTestProjector(store *fakeStore) (*Projector, *fakeMeds, *fakeDoses) {
	meds := &fakeMeds{meds: make(map[uuid.UUID]*models.Medication)}
	doses := &fakeDoses{}
	p := New(store, meds, doses)
	p.now = func() time.Time { return testNow }
	return p, meds, doses
}

func newDailySchedule(chatID int64, medID uuid.UUID, startDate time.Time, times ...string) *models.Schedule {
	return &models.Schedule{
		ScheduleID:    uuid.New(),
		MedicationID:  medID,
		ChatID:        chatID,
		Kind:          models.KindDaily,
		Times:         times,
		StartDate:     startDate,
		Active:        true,
		NotifyEnabled: true,
	}
}

func addMedication(meds *fakeMeds, name string) uuid.UUID {
	id := uuid.New()
	meds.meds[id] = &models.Medication{MedicationID: id, Name: name, Dosage: "1 顆"}
	return id
}

func TestScheduleNotification_RegistersPerTime(t *testing.T) {
	store := newFakeStore(42)
	p, meds, _ := newTestProjector(store)
	medID := addMedication(meds, "Metformin")
	sched := newDailySchedule(42, medID, testNow.AddDate(0, 0, -1), "08:00", "20:00")

	if err := p.ScheduleNotification(context.Background(), sched); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(store.pending) != 2 {
		t.Fatalf("expected two reminders, got %d", len(store.pending))
	}

	rem, ok := store.pending[scheduleReminderID(sched.ScheduleID, 0)]
	if !ok {
		t.Fatal("expected reminder for time index 0")
	}
	if !rem.RepeatDaily {
		t.Fatal("schedule reminders must repeat daily")
	}
	want := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	if !rem.FireAt.Equal(want) {
		t.Fatalf("expected fire at %v, got %v", want, rem.FireAt)
	}
	if rem.Payload.Title != "Metformin" || rem.Payload.TimeIndex != 0 {
		t.Fatalf("unexpected payload %+v", rem.Payload)
	}
}

func TestScheduleNotification_PastTimeRollsToTomorrow(t *testing.T) {
	store := newFakeStore(42)
	p, meds, _ := newTestProjector(store)
	medID := addMedication(meds, "Metformin")
	sched := newDailySchedule(42, medID, testNow.AddDate(0, 0, -1), "06:00")

	if err := p.ScheduleNotification(context.Background(), sched); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	rem := store.pending[scheduleReminderID(sched.ScheduleID, 0)]
	want := time.Date(2025, 1, 7, 6, 0, 0, 0, time.UTC)
	if !rem.FireAt.Equal(want) {
		t.Fatalf("expected 06:00 to roll to tomorrow, got %v", rem.FireAt)
	}
}

func TestScheduleNotification_LeadMinutes(t *testing.T) {
	store := newFakeStore(42)
	p, meds, _ := newTestProjector(store)
	medID := addMedication(meds, "Metformin")
	sched := newDailySchedule(42, medID, testNow.AddDate(0, 0, -1), "08:00")
	sched.LeadMinutes = 10

	if err := p.ScheduleNotification(context.Background(), sched); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	rem := store.pending[scheduleReminderID(sched.ScheduleID, 0)]
	if !rem.FireAt.Equal(time.Date(2025, 1, 6, 7, 50, 0, 0, time.UTC)) {
		t.Fatalf("expected fire 10 minutes early, got %v", rem.FireAt)
	}
	if !rem.Payload.ScheduledAt.Equal(time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("nominal dose time must not move with the lead, got %v", rem.Payload.ScheduledAt)
	}
}

func TestScheduleNotification_CancelsBeforeRegister(t *testing.T) {
	store := newFakeStore(42)
	p, meds, _ := newTestProjector(store)
	medID := addMedication(meds, "Metformin")
	sched := newDailySchedule(42, medID, testNow.AddDate(0, 0, -1), "08:00", "20:00")

	if err := p.ScheduleNotification(context.Background(), sched); err != nil {
		t.Fatalf("first projection failed: %v", err)
	}
	sched.Times = []string{"09:00"}
	store.ops = nil
	if err := p.ScheduleNotification(context.Background(), sched); err != nil {
		t.Fatalf("second projection failed: %v", err)
	}

	if len(store.pending) != 1 {
		t.Fatalf("expected stale reminders gone, got %d pending", len(store.pending))
	}
	var sawCancel, sawRegister bool
	for _, op := range store.ops {
		if strings.HasPrefix(op, "cancel:") {
			if sawRegister {
				t.Fatalf("cancel after register: %v", store.ops)
			}
			sawCancel = true
		}
		if strings.HasPrefix(op, "register:") {
			sawRegister = true
		}
	}
	if !sawCancel || !sawRegister {
		t.Fatalf("expected both cancel and register ops, got %v", store.ops)
	}
}

func TestScheduleNotification_DisabledCancelsOnly(t *testing.T) {
	store := newFakeStore(42)
	p, meds, _ := newTestProjector(store)
	medID := addMedication(meds, "Metformin")
	sched := newDailySchedule(42, medID, testNow.AddDate(0, 0, -1), "08:00")

	if err := p.ScheduleNotification(context.Background(), sched); err != nil {
		t.Fatalf("projection failed: %v", err)
	}
	sched.NotifyEnabled = false
	if err := p.ScheduleNotification(context.Background(), sched); err != nil {
		t.Fatalf("expected disabled schedule to project cleanly, got %v", err)
	}
	if len(store.pending) != 0 {
		t.Fatalf("expected reminders removed for a disabled schedule, got %d", len(store.pending))
	}
}

func TestScheduleNotification_AsNeededRegistersNothing(t *testing.T) {
	store := newFakeStore(42)
	p, meds, _ := newTestProjector(store)
	medID := addMedication(meds, "Ibuprofen")
	sched := newDailySchedule(42, medID, testNow.AddDate(0, 0, -1))
	sched.Kind = models.KindAsNeeded

	if err := p.ScheduleNotification(context.Background(), sched); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(store.pending) != 0 {
		t.Fatalf("as-needed schedules must not register reminders, got %d", len(store.pending))
	}
}

func TestScheduleNotification_Unauthorized(t *testing.T) {
	store := newFakeStore() // nobody authorized
	p, meds, _ := newTestProjector(store)
	medID := addMedication(meds, "Metformin")
	sched := newDailySchedule(42, medID, testNow.AddDate(0, 0, -1), "08:00")

	err := p.ScheduleNotification(context.Background(), sched)
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
}

func TestScheduleNotification_MissingMedication(t *testing.T) {
	store := newFakeStore(42)
	p, _, _ := newTestProjector(store)
	sched := newDailySchedule(42, uuid.New(), testNow.AddDate(0, 0, -1), "08:00")

	err := p.ScheduleNotification(context.Background(), sched)
	if !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule, got %v", err)
	}
}

func TestScheduleNotification_MidLoopFailureKeepsEarlier(t *testing.T) {
	store := newFakeStore(42)
	p, meds, _ := newTestProjector(store)
	medID := addMedication(meds, "Metformin")
	sched := newDailySchedule(42, medID, testNow.AddDate(0, 0, -1), "08:00", "14:00", "20:00")
	store.failOn[scheduleReminderID(sched.ScheduleID, 1)] = errors.New("store full")

	err := p.ScheduleNotification(context.Background(), sched)
	if !errors.Is(err, ErrRegistrationFailed) {
		t.Fatalf("expected ErrRegistrationFailed, got %v", err)
	}
	if _, ok := store.pending[scheduleReminderID(sched.ScheduleID, 0)]; !ok {
		t.Fatal("expected the registration before the failure to remain")
	}
	if _, ok := store.pending[scheduleReminderID(sched.ScheduleID, 2)]; ok {
		t.Fatal("expected no registration after the failure")
	}
}

func TestRescheduleAll_CancelAllBeforeRegister(t *testing.T) {
	store := newFakeStore(42)
	p, meds, _ := newTestProjector(store)
	medID := addMedication(meds, "Metformin")
	a := newDailySchedule(42, medID, testNow.AddDate(0, 0, -1), "08:00")
	b := newDailySchedule(42, medID, testNow.AddDate(0, 0, -1), "20:00")
	b.Active = false

	if err := p.RescheduleAll(context.Background(), []*models.Schedule{a, b}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(store.ops) == 0 || store.ops[0] != "cancelall" {
		t.Fatalf("expected rebuild to start with cancelall, got %v", store.ops)
	}
	if len(store.pending) != 1 {
		t.Fatalf("expected only the active schedule registered, got %d", len(store.pending))
	}
	if _, ok := store.pending[scheduleReminderID(a.ScheduleID, 0)]; !ok {
		t.Fatal("expected schedule a registered")
	}
}

func TestRescheduleAll_RationsWholeSchedules(t *testing.T) {
	store := newFakeStore(42)
	p, meds, _ := newTestProjector(store)
	medID := addMedication(meds, "Metformin")

	manyTimes := make([]string, 60)
	for i := range manyTimes {
		manyTimes[i] = fmt.Sprintf("%02d:%02d", 6+i/10, (i%10)*5)
	}
	// a has the earliest next occurrence and eats most of the capacity; b is
	// the first that no longer fits, which ends admission. c would fit, but
	// admitting it past b would let a later next occurrence in while an
	// earlier one is excluded.
	a := newDailySchedule(42, medID, testNow.AddDate(0, 0, 1), manyTimes...)
	b := newDailySchedule(42, medID, testNow.AddDate(0, 0, 2), "08:00", "10:00", "12:00", "14:00", "16:00", "18:00", "20:00", "21:00", "22:00", "23:00")
	c := newDailySchedule(42, medID, testNow.AddDate(0, 0, 3), "08:00", "20:00")

	if err := p.RescheduleAll(context.Background(), []*models.Schedule{a, b, c}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(store.pending) != 60 {
		t.Fatalf("expected only a's 60 reminders, got %d", len(store.pending))
	}
	if _, ok := store.pending[scheduleReminderID(a.ScheduleID, 0)]; !ok {
		t.Fatal("expected a admitted")
	}
	if _, ok := store.pending[scheduleReminderID(b.ScheduleID, 0)]; ok {
		t.Fatal("expected b excluded: it does not fit whole")
	}
	if _, ok := store.pending[scheduleReminderID(c.ScheduleID, 0)]; ok {
		t.Fatal("expected c excluded: its next occurrence is later than excluded b's")
	}
}

func TestRescheduleAll_RationAdmitsEarliestFirst(t *testing.T) {
	store := newFakeStore(42)
	p, meds, _ := newTestProjector(store)
	medID := addMedication(meds, "Metformin")

	// 66 single-time schedules with strictly increasing next occurrences:
	// exactly the first 64 fit, the last two do not.
	var schedules []*models.Schedule
	for i := 0; i < 66; i++ {
		schedules = append(schedules, newDailySchedule(42, medID, testNow.AddDate(0, 0, i+1), "08:00"))
	}

	if err := p.RescheduleAll(context.Background(), schedules); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(store.pending) != 64 {
		t.Fatalf("expected 64 reminders, got %d", len(store.pending))
	}
	for i, s := range schedules {
		_, admitted := store.pending[scheduleReminderID(s.ScheduleID, 0)]
		if i < 64 && !admitted {
			t.Fatalf("expected schedule %d admitted", i)
		}
		if i >= 64 && admitted {
			t.Fatalf("expected schedule %d excluded: later next occurrence than every admitted one", i)
		}
	}
}

func TestRescheduleAll_UnderCeilingAdmitsEverything(t *testing.T) {
	store := newFakeStore(42)
	p, meds, _ := newTestProjector(store)
	medID := addMedication(meds, "Metformin")

	var schedules []*models.Schedule
	for i := 0; i < 10; i++ {
		schedules = append(schedules, newDailySchedule(42, medID, testNow.AddDate(0, 0, -1), "08:00", "20:00"))
	}
	if err := p.RescheduleAll(context.Background(), schedules); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(store.pending) != 20 {
		t.Fatalf("expected all 20 reminders registered, got %d", len(store.pending))
	}
}

func TestSnoozeNotification_ReplacesAndCounts(t *testing.T) {
	store := newFakeStore(42)
	p, meds, doses := newTestProjector(store)
	medID := addMedication(meds, "Metformin")
	log := &models.DoseLog{
		LogID:        uuid.New(),
		ChatID:       42,
		MedicationID: medID,
		ScheduledAt:  time.Date(2025, 1, 6, 6, 30, 0, 0, time.UTC),
		Status:       models.StatusPending,
	}

	if err := p.SnoozeNotification(context.Background(), log, 10); err != nil {
		t.Fatalf("first snooze failed: %v", err)
	}
	if err := p.SnoozeNotification(context.Background(), log, 10); err != nil {
		t.Fatalf("second snooze failed: %v", err)
	}

	if len(store.pending) != 1 {
		t.Fatalf("repeated snoozes must replace the one-shot, got %d pending", len(store.pending))
	}
	rem := store.pending[doseReminderID(log.LogID)]
	if rem == nil {
		t.Fatal("expected the dose one-shot registered")
	}
	if rem.RepeatDaily {
		t.Fatal("snooze reminders must be one-shots")
	}
	if !rem.FireAt.Equal(testNow.Add(10 * time.Minute)) {
		t.Fatalf("expected fire at now+10m, got %v", rem.FireAt)
	}
	if rem.Payload.LogID != log.LogID {
		t.Fatal("expected the payload to carry the log id")
	}
	if doses.snoozes != 2 {
		t.Fatalf("expected the dose log snoozed twice, got %d", doses.snoozes)
	}
}

func TestSnoozeNotification_RegistrationFailurePreventsSnooze(t *testing.T) {
	store := newFakeStore(42)
	p, meds, doses := newTestProjector(store)
	medID := addMedication(meds, "Metformin")
	log := &models.DoseLog{LogID: uuid.New(), ChatID: 42, MedicationID: medID}
	store.failOn[doseReminderID(log.LogID)] = notifier.ErrLimitExceeded

	err := p.SnoozeNotification(context.Background(), log, 10)
	if !errors.Is(err, ErrRegistrationFailed) {
		t.Fatalf("expected ErrRegistrationFailed, got %v", err)
	}
	if doses.snoozes != 0 {
		t.Fatal("a failed registration must not mutate the dose log")
	}
}

func TestSnoozeNotification_Unauthorized(t *testing.T) {
	store := newFakeStore()
	p, meds, doses := newTestProjector(store)
	medID := addMedication(meds, "Metformin")
	log := &models.DoseLog{LogID: uuid.New(), ChatID: 42, MedicationID: medID}

	err := p.SnoozeNotification(context.Background(), log, 10)
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if doses.snoozes != 0 {
		t.Fatal("unauthorized snooze must not mutate the dose log")
	}
}

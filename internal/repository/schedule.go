package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/hray3182/DoseLine/internal/database"
	"github.com/hray3182/DoseLine/internal/models"
)

type ScheduleRepository struct {
	db *database.DB
}

func NewScheduleRepository(db *database.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

const scheduleColumns = `schedule_id, medication_id, chat_id, kind, times, weekdays, interval_days,
	 start_date, end_date, active, notify_enabled, lead_minutes, notes, created_at`

func scanSchedule(row interface{ Scan(...any) error }) (*models.Schedule, error) {
	s := &models.Schedule{}
	err := row.Scan(&s.ScheduleID, &s.MedicationID, &s.ChatID, &s.Kind, &s.Times, &s.Weekdays,
		&s.IntervalDays, &s.StartDate, &s.EndDate, &s.Active, &s.NotifyEnabled,
		&s.LeadMinutes, &s.Notes, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *ScheduleRepository) Create(ctx context.Context, schedule *models.Schedule) error {
	if schedule.ScheduleID == uuid.Nil {
		schedule.ScheduleID = uuid.New()
	}
	return r.db.Pool.QueryRow(ctx,
		`INSERT INTO schedules (schedule_id, medication_id, chat_id, kind, times, weekdays, interval_days,
		                        start_date, end_date, active, notify_enabled, lead_minutes, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING created_at`,
		schedule.ScheduleID, schedule.MedicationID, schedule.ChatID, schedule.Kind, schedule.Times,
		schedule.Weekdays, schedule.IntervalDays, schedule.StartDate, schedule.EndDate,
		schedule.Active, schedule.NotifyEnabled, schedule.LeadMinutes, schedule.Notes,
	).Scan(&schedule.CreatedAt)
}

func (r *ScheduleRepository) GetByID(ctx context.Context, scheduleID uuid.UUID) (*models.Schedule, error) {
	return scanSchedule(r.db.Pool.QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE schedule_id = $1`,
		scheduleID,
	))
}

func (r *ScheduleRepository) GetByChatID(ctx context.Context, chatID int64) ([]*models.Schedule, error) {
	return r.query(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE chat_id = $1 ORDER BY created_at ASC`,
		chatID,
	)
}

func (r *ScheduleRepository) GetByMedicationID(ctx context.Context, medicationID uuid.UUID) ([]*models.Schedule, error) {
	return r.query(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE medication_id = $1 ORDER BY created_at ASC`,
		medicationID,
	)
}

// GetActive returns every active schedule across all chats,
// for materialization and full reminder rebuilds.
func (r *ScheduleRepository) GetActive(ctx context.Context) ([]*models.Schedule, error) {
	return r.query(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE active = true ORDER BY created_at ASC`,
	)
}

func (r *ScheduleRepository) Update(ctx context.Context, schedule *models.Schedule) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE schedules SET kind = $1, times = $2, weekdays = $3, interval_days = $4,
		        start_date = $5, end_date = $6, active = $7, notify_enabled = $8,
		        lead_minutes = $9, notes = $10
		 WHERE schedule_id = $11`,
		schedule.Kind, schedule.Times, schedule.Weekdays, schedule.IntervalDays,
		schedule.StartDate, schedule.EndDate, schedule.Active, schedule.NotifyEnabled,
		schedule.LeadMinutes, schedule.Notes, schedule.ScheduleID,
	)
	return err
}

func (r *ScheduleRepository) SetActive(ctx context.Context, scheduleID uuid.UUID, active bool) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE schedules SET active = $1 WHERE schedule_id = $2`,
		active, scheduleID,
	)
	return err
}

func (r *ScheduleRepository) Delete(ctx context.Context, scheduleID uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM schedules WHERE schedule_id = $1`,
		scheduleID,
	)
	return err
}

func (r *ScheduleRepository) query(ctx context.Context, sql string, args ...any) ([]*models.Schedule, error) {
	rows, err := r.db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []*models.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

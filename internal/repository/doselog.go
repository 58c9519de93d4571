package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hray3182/DoseLine/internal/database"
	"github.com/hray3182/DoseLine/internal/models"
)

type DoseLogRepository struct {
	db *database.DB
}

func NewDoseLogRepository(db *database.DB) *DoseLogRepository {
	return &DoseLogRepository{db: db}
}

const doseLogColumns = `log_id, chat_id, medication_id, schedule_id, scheduled_at, next_fire_at,
	 actual_at, status, snooze_count, last_snooze_at, notes, created_at`

func scanDoseLog(row interface{ Scan(...any) error }) (*models.DoseLog, error) {
	l := &models.DoseLog{}
	err := row.Scan(&l.LogID, &l.ChatID, &l.MedicationID, &l.ScheduleID, &l.ScheduledAt,
		&l.NextFireAt, &l.ActualAt, &l.Status, &l.SnoozeCount, &l.LastSnoozeAt,
		&l.Notes, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// CreateAll inserts the logs in one transaction: either every log is
// persisted or none is.
func (r *DoseLogRepository) CreateAll(ctx context.Context, logs []*models.DoseLog) error {
	if len(logs) == 0 {
		return nil
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, log := range logs {
		if log.LogID == uuid.Nil {
			log.LogID = uuid.New()
		}
		err := tx.QueryRow(ctx,
			`INSERT INTO dose_logs (log_id, chat_id, medication_id, schedule_id, scheduled_at, next_fire_at,
			                        actual_at, status, snooze_count, last_snooze_at, notes)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			 RETURNING created_at`,
			log.LogID, log.ChatID, log.MedicationID, log.ScheduleID, log.ScheduledAt, log.NextFireAt,
			log.ActualAt, log.Status, log.SnoozeCount, log.LastSnoozeAt, log.Notes,
		).Scan(&log.CreatedAt)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *DoseLogRepository) GetByID(ctx context.Context, logID uuid.UUID) (*models.DoseLog, error) {
	return scanDoseLog(r.db.Pool.QueryRow(ctx,
		`SELECT `+doseLogColumns+` FROM dose_logs WHERE log_id = $1`,
		logID,
	))
}

// GetByDateRange returns every dose log scheduled in [from, to)
func (r *DoseLogRepository) GetByDateRange(ctx context.Context, from, to time.Time) ([]*models.DoseLog, error) {
	return r.query(ctx,
		`SELECT `+doseLogColumns+` FROM dose_logs
		 WHERE scheduled_at >= $1 AND scheduled_at < $2
		 ORDER BY scheduled_at ASC`,
		from, to,
	)
}

func (r *DoseLogRepository) GetByChatAndDateRange(ctx context.Context, chatID int64, from, to time.Time) ([]*models.DoseLog, error) {
	return r.query(ctx,
		`SELECT `+doseLogColumns+` FROM dose_logs
		 WHERE chat_id = $1 AND scheduled_at >= $2 AND scheduled_at < $3
		 ORDER BY scheduled_at ASC`,
		chatID, from, to,
	)
}

// FindByScheduleAndTime looks up the dose log materialized for a schedule at a
// specific nominal time. Matching is minute-granular, mirroring the
// materializer's de-duplication key.
func (r *DoseLogRepository) FindByScheduleAndTime(ctx context.Context, scheduleID uuid.UUID, at time.Time) (*models.DoseLog, error) {
	return scanDoseLog(r.db.Pool.QueryRow(ctx,
		`SELECT `+doseLogColumns+` FROM dose_logs
		 WHERE schedule_id = $1 AND date_trunc('minute', scheduled_at) = date_trunc('minute', $2::timestamp)`,
		scheduleID, at,
	))
}

func (r *DoseLogRepository) Update(ctx context.Context, log *models.DoseLog) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE dose_logs SET next_fire_at = $1, actual_at = $2, status = $3,
		        snooze_count = $4, last_snooze_at = $5, notes = $6
		 WHERE log_id = $7`,
		log.NextFireAt, log.ActualAt, log.Status, log.SnoozeCount, log.LastSnoozeAt,
		log.Notes, log.LogID,
	)
	return err
}

func (r *DoseLogRepository) query(ctx context.Context, sql string, args ...any) ([]*models.DoseLog, error) {
	rows, err := r.db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*models.DoseLog
	for rows.Next() {
		l, err := scanDoseLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

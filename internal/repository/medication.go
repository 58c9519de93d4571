package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/hray3182/DoseLine/internal/database"
	"github.com/hray3182/DoseLine/internal/models"
)

type MedicationRepository struct {
	db *database.DB
}

func NewMedicationRepository(db *database.DB) *MedicationRepository {
	return &MedicationRepository{db: db}
}

func (r *MedicationRepository) Create(ctx context.Context, med *models.Medication) error {
	if med.MedicationID == uuid.Nil {
		med.MedicationID = uuid.New()
	}
	return r.db.Pool.QueryRow(ctx,
		`INSERT INTO medications (medication_id, chat_id, name, dosage, stock, low_stock_threshold, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		med.MedicationID, med.ChatID, med.Name, med.Dosage, med.Stock, med.LowStockThreshold, med.Notes,
	).Scan(&med.CreatedAt)
}

func (r *MedicationRepository) GetByID(ctx context.Context, medicationID uuid.UUID) (*models.Medication, error) {
	med := &models.Medication{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT medication_id, chat_id, name, dosage, stock, low_stock_threshold, notes, created_at
		 FROM medications WHERE medication_id = $1`,
		medicationID,
	).Scan(&med.MedicationID, &med.ChatID, &med.Name, &med.Dosage, &med.Stock,
		&med.LowStockThreshold, &med.Notes, &med.CreatedAt)
	if err != nil {
		return nil, err
	}
	return med, nil
}

func (r *MedicationRepository) GetByChatID(ctx context.Context, chatID int64) ([]*models.Medication, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT medication_id, chat_id, name, dosage, stock, low_stock_threshold, notes, created_at
		 FROM medications WHERE chat_id = $1 ORDER BY name ASC`,
		chatID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meds []*models.Medication
	for rows.Next() {
		med := &models.Medication{}
		if err := rows.Scan(&med.MedicationID, &med.ChatID, &med.Name, &med.Dosage, &med.Stock,
			&med.LowStockThreshold, &med.Notes, &med.CreatedAt); err != nil {
			return nil, err
		}
		meds = append(meds, med)
	}
	return meds, nil
}

func (r *MedicationRepository) Update(ctx context.Context, med *models.Medication) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE medications SET name = $1, dosage = $2, stock = $3, low_stock_threshold = $4, notes = $5
		 WHERE medication_id = $6`,
		med.Name, med.Dosage, med.Stock, med.LowStockThreshold, med.Notes, med.MedicationID,
	)
	return err
}

func (r *MedicationRepository) Delete(ctx context.Context, medicationID uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM medications WHERE medication_id = $1`,
		medicationID,
	)
	return err
}

// DecreaseStock decrements remaining stock by one, never below zero,
// and returns the remaining count.
func (r *MedicationRepository) DecreaseStock(ctx context.Context, medicationID uuid.UUID) (int, error) {
	var stock int
	err := r.db.Pool.QueryRow(ctx,
		`UPDATE medications SET stock = GREATEST(stock - 1, 0)
		 WHERE medication_id = $1
		 RETURNING stock`,
		medicationID,
	).Scan(&stock)
	return stock, err
}

package models

import (
	"time"

	"github.com/google/uuid"
)

type Medication struct {
	MedicationID      uuid.UUID `json:"medication_id"`
	ChatID            int64     `json:"chat_id"`
	Name              string    `json:"name"`
	Dosage            string    `json:"dosage"`
	Stock             int       `json:"stock"`
	LowStockThreshold int       `json:"low_stock_threshold"`
	Notes             string    `json:"notes"`
	CreatedAt         time.Time `json:"created_at"`
}

// IsLowStock returns true if remaining stock is at or below the warning threshold
func (m *Medication) IsLowStock() bool {
	return m.LowStockThreshold > 0 && m.Stock <= m.LowStockThreshold
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mmararief/dante-propolis/pkg/enums"
)

// StockMovement is an append-only audit row for a single batch quantity change.
type StockMovement struct {
	ID             uuid.UUID            `gorm:"column:id;type:char(36);primaryKey"`
	BatchID        uuid.UUID            `gorm:"column:batch_id;type:char(36);not null;index"`
	Delta          int                  `gorm:"column:delta;not null"`
	Reason         enums.MovementReason `gorm:"column:reason;type:varchar(16);not null"`
	ReferenceTable string               `gorm:"column:reference_table;size:64;not null"`
	ReferenceID    string               `gorm:"column:reference_id;size:64;not null"`
	Note           *string              `gorm:"column:note"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
}

func (m *StockMovement) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

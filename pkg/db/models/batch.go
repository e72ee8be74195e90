package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Batch is a physical lot of a product. Quantities are only mutated by the
// inventory ledger; rows are never deleted.
type Batch struct {
	ID           uuid.UUID       `gorm:"column:id;type:char(36);primaryKey"`
	ProductID    uuid.UUID       `gorm:"column:product_id;type:char(36);not null;index:idx_batches_product_expiry,priority:1"`
	BatchNumber  string          `gorm:"column:batch_number;size:64;not null"`
	InitialQty   int             `gorm:"column:initial_qty;not null;default:0"`
	RemainingQty int             `gorm:"column:remaining_qty;not null;default:0"`
	ReservedQty  int             `gorm:"column:reserved_qty;not null;default:0"`
	ExpiryDate   *time.Time      `gorm:"column:expiry_date;index:idx_batches_product_expiry,priority:2"`
	UnitCost     decimal.Decimal `gorm:"column:unit_cost;type:decimal(14,2);not null"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Batch) TableName() string { return "product_batches" }

func (b *Batch) BeforeCreate(*gorm.DB) error {
	ensureID(&b.ID)
	return nil
}

// Available is the quantity that can still be reserved.
func (b Batch) Available() int {
	return b.RemainingQty - b.ReservedQty
}

// Consistent reports whether 0 <= reserved <= remaining <= initial holds.
func (b Batch) Consistent() bool {
	return b.ReservedQty >= 0 && b.ReservedQty <= b.RemainingQty && b.RemainingQty <= b.InitialQty
}

// IsExpired reports whether the batch expiry date is before now.
func (b Batch) IsExpired(now time.Time) bool {
	return b.ExpiryDate != nil && b.ExpiryDate.Before(now)
}

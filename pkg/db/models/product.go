package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is the catalog slice the inventory core reads; catalog metadata is managed elsewhere.
type Product struct {
	ID          uuid.UUID       `gorm:"column:id;type:char(36);primaryKey"`
	SKU         string          `gorm:"column:sku;size:64;not null;uniqueIndex"`
	Name        string          `gorm:"column:name;not null"`
	RetailPrice decimal.Decimal `gorm:"column:retail_price;type:decimal(14,2);not null"`
	WeightGrams int             `gorm:"column:weight_grams;not null;default:0"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`

	PriceTiers []PriceTier `gorm:"foreignKey:ProductID"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// PriceTier is a quantity band with its own unit price.
type PriceTier struct {
	ID        uuid.UUID       `gorm:"column:id;type:char(36);primaryKey"`
	ProductID uuid.UUID       `gorm:"column:product_id;type:char(36);not null;index"`
	MinQty    int             `gorm:"column:min_qty;not null"`
	MaxQty    *int            `gorm:"column:max_qty"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:decimal(14,2);not null"`
}

func (PriceTier) TableName() string { return "product_price_tiers" }

func (t *PriceTier) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}

// Covers reports whether qty falls inside the tier band.
func (t PriceTier) Covers(qty int) bool {
	if qty < t.MinQty {
		return false
	}
	return t.MaxQty == nil || qty <= *t.MaxQty
}

package product

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmararief/dante-propolis/pkg/db/models"
	"github.com/mmararief/dante-propolis/pkg/pagination"
)

// PriceTierDTO is the public view of a quantity band.
type PriceTierDTO struct {
	ID        uuid.UUID       `json:"id"`
	MinQty    int             `json:"min_qty"`
	MaxQty    *int            `json:"max_qty,omitempty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// StockSummary aggregates batch quantities for a product.
type StockSummary struct {
	RemainingQty int `json:"remaining_qty"`
	ReservedQty  int `json:"reserved_qty"`
	AvailableQty int `json:"available_qty"`
	BatchCount   int `json:"batch_count"`
}

// ProductDTO is returned by catalog reads.
type ProductDTO struct {
	ID          uuid.UUID       `json:"id"`
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	RetailPrice decimal.Decimal `json:"retail_price"`
	WeightGrams int             `json:"weight_grams"`
	PriceTiers  []PriceTierDTO  `json:"price_tiers"`
	Stock       StockSummary    `json:"stock"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ListInput filters and paginates the catalog.
type ListInput struct {
	Query      string
	Pagination pagination.Params
}

// ListResult is one catalog page.
type ListResult struct {
	Products   []ProductDTO `json:"products"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

func toDTO(p models.Product, stock StockSummary) ProductDTO {
	tiers := make([]PriceTierDTO, 0, len(p.PriceTiers))
	for _, tier := range p.PriceTiers {
		tiers = append(tiers, PriceTierDTO{
			ID:        tier.ID,
			MinQty:    tier.MinQty,
			MaxQty:    tier.MaxQty,
			UnitPrice: tier.UnitPrice,
		})
	}
	return ProductDTO{
		ID:          p.ID,
		SKU:         p.SKU,
		Name:        p.Name,
		RetailPrice: p.RetailPrice,
		WeightGrams: p.WeightGrams,
		PriceTiers:  tiers,
		Stock:       stock,
		CreatedAt:   p.CreatedAt,
	}
}

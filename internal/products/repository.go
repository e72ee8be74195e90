package product

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mmararief/dante-propolis/pkg/db/models"
	"github.com/mmararief/dante-propolis/pkg/pagination"
)

// Repository reads the catalog slice and the per-product batch totals.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// FindByID loads the product with its tiers ordered by min_qty.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("PriceTiers", func(db *gorm.DB) *gorm.DB { return db.Order("min_qty ASC") }).
		First(&product, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// List pages through products newest first. query matches name or SKU.
func (r *Repository) List(ctx context.Context, query string, params pagination.Params) ([]models.Product, *pagination.Cursor, error) {
	q := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Preload("PriceTiers", func(db *gorm.DB) *gorm.DB { return db.Order("min_qty ASC") })
	if term := strings.TrimSpace(query); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(sku) LIKE ?", like, like)
	}
	q, err := pagination.Keyset(q, params)
	if err != nil {
		return nil, nil, err
	}

	var products []models.Product
	if err := q.Find(&products).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(products, params.Limit, func(p models.Product) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})
	return page, next, nil
}

type stockRow struct {
	ProductID    uuid.UUID
	RemainingQty int
	ReservedQty  int
	BatchCount   int
}

// StockFor sums batch quantities for the given products. Products without
// batches are absent from the map.
func (r *Repository) StockFor(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]StockSummary, error) {
	out := make(map[uuid.UUID]StockSummary, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}
	var rows []stockRow
	err := r.db.WithContext(ctx).
		Model(&models.Batch{}).
		Select("product_id, SUM(remaining_qty) AS remaining_qty, SUM(reserved_qty) AS reserved_qty, COUNT(*) AS batch_count").
		Where("product_id IN ?", productIDs).
		Group("product_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ProductID] = StockSummary{
			RemainingQty: row.RemainingQty,
			ReservedQty:  row.ReservedQty,
			AvailableQty: row.RemainingQty - row.ReservedQty,
			BatchCount:   row.BatchCount,
		}
	}
	return out, nil
}

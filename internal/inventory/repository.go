package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mmararief/dante-propolis/pkg/db/models"
)

// fefoOrder sorts batches by expiry ascending with undated batches last.
const fefoOrder = "CASE WHEN expiry_date IS NULL THEN 1 ELSE 0 END, expiry_date ASC, created_at ASC, id ASC"

// BatchQuantity is the read model for one batch.
type BatchQuantity struct {
	BatchID      uuid.UUID  `json:"batch_id"`
	ProductID    uuid.UUID  `json:"product_id"`
	BatchNumber  string     `json:"batch_number"`
	InitialQty   int        `json:"initial_qty"`
	RemainingQty int        `json:"remaining_qty"`
	ReservedQty  int        `json:"reserved_qty"`
	AvailableQty int        `json:"available_qty"`
	ExpiryDate   *time.Time `json:"expiry_date,omitempty"`
}

// ProductTotal sums batch quantities for a product.
type ProductTotal struct {
	ProductID    uuid.UUID `json:"product_id"`
	RemainingQty int       `json:"remaining_qty"`
	ReservedQty  int       `json:"reserved_qty"`
	AvailableQty int       `json:"available_qty"`
	BatchCount   int       `json:"batch_count"`
}

// Repository holds the read-only inventory queries.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindBatch loads a batch without locking it.
func (r *Repository) FindBatch(ctx context.Context, id uuid.UUID) (*models.Batch, error) {
	var batch models.Batch
	if err := r.db.WithContext(ctx).First(&batch, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

// CandidateBatchIDs lists batches of the products that still have unreserved stock, in FEFO order.
func (r *Repository) CandidateBatchIDs(ctx context.Context, productIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Batch{}).
		Where("product_id IN ?", productIDs).
		Where("remaining_qty - reserved_qty > 0").
		Order(fefoOrder).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// BatchQuantities returns every batch of the product in FEFO order.
func (r *Repository) BatchQuantities(ctx context.Context, productID uuid.UUID) ([]BatchQuantity, error) {
	var batches []models.Batch
	if err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order(fefoOrder).
		Find(&batches).Error; err != nil {
		return nil, err
	}
	out := make([]BatchQuantity, 0, len(batches))
	for _, b := range batches {
		out = append(out, toBatchQuantity(b))
	}
	return out, nil
}

// ProductTotals aggregates remaining and reserved quantities per product.
func (r *Repository) ProductTotals(ctx context.Context) ([]ProductTotal, error) {
	var rows []ProductTotal
	err := r.db.WithContext(ctx).
		Model(&models.Batch{}).
		Select("product_id, SUM(remaining_qty) AS remaining_qty, SUM(reserved_qty) AS reserved_qty, " +
			"SUM(remaining_qty - reserved_qty) AS available_qty, COUNT(*) AS batch_count").
		Group("product_id").
		Order("product_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Movements lists the audit trail of a batch, oldest first.
func (r *Repository) Movements(ctx context.Context, batchID uuid.UUID) ([]models.StockMovement, error) {
	var movements []models.StockMovement
	if err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("created_at ASC").
		Find(&movements).Error; err != nil {
		return nil, err
	}
	return movements, nil
}

func toBatchQuantity(b models.Batch) BatchQuantity {
	return BatchQuantity{
		BatchID:      b.ID,
		ProductID:    b.ProductID,
		BatchNumber:  b.BatchNumber,
		InitialQty:   b.InitialQty,
		RemainingQty: b.RemainingQty,
		ReservedQty:  b.ReservedQty,
		AvailableQty: b.Available(),
		ExpiryDate:   b.ExpiryDate,
	}
}

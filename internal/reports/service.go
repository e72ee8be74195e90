// Package reports serves the admin batch stock and batch sales views.
package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mmararief/dante-propolis/pkg/enums"
	pkgerrors "github.com/mmararief/dante-propolis/pkg/errors"
)

const (
	batchStockSQL = `
SELECT
  p.id AS product_id,
  p.sku AS sku,
  p.name AS product_name,
  b.id AS batch_id,
  b.batch_number AS batch_number,
  b.initial_qty AS initial_qty,
  b.remaining_qty AS remaining_qty,
  b.reserved_qty AS reserved_qty,
  b.expiry_date AS expiry_date
FROM product_batches b
JOIN products p ON p.id = b.product_id
ORDER BY p.name ASC, p.id ASC,
  CASE WHEN b.expiry_date IS NULL THEN 1 ELSE 0 END, b.expiry_date ASC, b.id ASC
`

	batchSalesSQL = `
SELECT
  i.product_id AS product_id,
  p.sku AS sku,
  p.name AS product_name,
  a.batch_id AS batch_id,
  b.batch_number AS batch_number,
  SUM(a.qty) AS qty_sold
FROM order_item_batches a
JOIN order_items i ON i.id = a.order_item_id
JOIN orders o ON o.id = i.order_id
JOIN products p ON p.id = i.product_id
JOIN product_batches b ON b.id = a.batch_id
WHERE o.status IN ?
  AND o.created_at >= ?
  AND o.created_at < ?
GROUP BY i.product_id, p.sku, p.name, a.batch_id, b.batch_number
ORDER BY p.name ASC, i.product_id ASC, a.batch_id ASC
`
)

// soldStatuses are the order states whose allocations have been consumed.
var soldStatuses = []enums.OrderStatus{
	enums.OrderStatusProcessing,
	enums.OrderStatusShipped,
	enums.OrderStatusCompleted,
}

// BatchStockRow is one batch in the stock report.
type BatchStockRow struct {
	ProductID    uuid.UUID  `json:"product_id"`
	SKU          string     `json:"sku"`
	ProductName  string     `json:"product_name"`
	BatchID      uuid.UUID  `json:"batch_id"`
	BatchNumber  string     `json:"batch_number"`
	InitialQty   int        `json:"initial_qty"`
	RemainingQty int        `json:"remaining_qty"`
	ReservedQty  int        `json:"reserved_qty"`
	AvailableQty int        `json:"available_qty" gorm:"-"`
	ExpiryDate   *time.Time `json:"expiry_date,omitempty"`
}

// BatchSalesRow is the quantity sold out of one batch in a window.
type BatchSalesRow struct {
	ProductID   uuid.UUID `json:"product_id"`
	SKU         string    `json:"sku"`
	ProductName string    `json:"product_name"`
	BatchID     uuid.UUID `json:"batch_id"`
	BatchNumber string    `json:"batch_number"`
	QtySold     int       `json:"qty_sold"`
}

// SalesWindow bounds the sales report by order creation time, [From, To).
type SalesWindow struct {
	From time.Time
	To   time.Time
}

// Service exposes the admin reports.
type Service interface {
	BatchStock(ctx context.Context) ([]BatchStockRow, error)
	BatchSales(ctx context.Context, window SalesWindow) ([]BatchSalesRow, error)
}

type service struct {
	db *gorm.DB
}

// NewService builds the reports service.
func NewService(db *gorm.DB) (Service, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	return &service{db: db}, nil
}

func (s *service) BatchStock(ctx context.Context) ([]BatchStockRow, error) {
	var rows []BatchStockRow
	if err := s.db.WithContext(ctx).Raw(batchStockSQL).Scan(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "batch stock report")
	}
	for i := range rows {
		rows[i].AvailableQty = rows[i].RemainingQty - rows[i].ReservedQty
	}
	return rows, nil
}

func (s *service) BatchSales(ctx context.Context, window SalesWindow) ([]BatchSalesRow, error) {
	if window.From.IsZero() || window.To.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "from and to are required")
	}
	if !window.From.Before(window.To) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "from must be before to")
	}
	var rows []BatchSalesRow
	err := s.db.WithContext(ctx).
		Raw(batchSalesSQL, soldStatuses, window.From, window.To).
		Scan(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "batch sales report")
	}
	return rows, nil
}

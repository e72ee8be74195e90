package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mmararief/dante-propolis/pkg/db/models"
	"github.com/mmararief/dante-propolis/pkg/pagination"
)

// Repository defines persistence operations for orders, items and batch allocations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	LockOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindOrderDetail(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindAllocationsByOrder(ctx context.Context, orderID uuid.UUID) ([]AllocationRow, error)
	DeleteAllocations(ctx context.Context, ids []uuid.UUID) error
	UpdateOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
	ListOrders(ctx context.Context, params pagination.Params, filters ListFilters) ([]models.Order, *pagination.Cursor, error)
	ListExpiredReservations(ctx context.Context, now time.Time, limit int, skip []uuid.UUID) ([]uuid.UUID, error)
}

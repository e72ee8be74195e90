package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mmararief/dante-propolis/pkg/db/models"
	"github.com/mmararief/dante-propolis/pkg/enums"
	pkgerrors "github.com/mmararief/dante-propolis/pkg/errors"
	"github.com/mmararief/dante-propolis/pkg/metrics"
)

// Reference points a movement at the row that caused it.
type Reference struct {
	Table string
	ID    string
}

// OrderRef references an order.
func OrderRef(orderID uuid.UUID) Reference {
	return Reference{Table: "orders", ID: orderID.String()}
}

// BatchRef references a batch, used for restocks and manual adjustments.
func BatchRef(batchID uuid.UUID) Reference {
	return Reference{Table: "product_batches", ID: batchID.String()}
}

// NewBatch describes a batch to register for a product.
type NewBatch struct {
	ProductID   uuid.UUID
	BatchNumber string
	Qty         int
	ExpiryDate  *time.Time
	UnitCost    decimal.Decimal
}

// Ledger is the only writer of batch quantities and stock movements. Every
// method expects to run inside the caller's transaction.
type Ledger struct {
	metrics *metrics.InventoryMetrics
	now     func() time.Time
}

// NewLedger builds a ledger; a nil metrics collector disables counting.
func NewLedger(m *metrics.InventoryMetrics) *Ledger {
	return &Ledger{metrics: m, now: time.Now}
}

// CreateBatch inserts an empty batch for the product and restocks it with the
// requested quantity.
func (l *Ledger) CreateBatch(ctx context.Context, tx *gorm.DB, input NewBatch) (*models.Batch, error) {
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if input.Qty <= 0 {
		return nil, pkgerrors.InvalidQuantity(input.Qty)
	}
	if input.UnitCost.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unit cost must not be negative")
	}

	var product models.Product
	if err := tx.WithContext(ctx).Select("id", "sku").First(&product, "id = ?", input.ProductID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}

	number := strings.TrimSpace(input.BatchNumber)
	if number == "" {
		number = DefaultBatchNumber(product.SKU, l.now())
	}

	batch := &models.Batch{
		ProductID:   input.ProductID,
		BatchNumber: number,
		ExpiryDate:  input.ExpiryDate,
		UnitCost:    input.UnitCost,
	}
	if err := tx.WithContext(ctx).Create(batch).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create batch")
	}

	return l.Restock(ctx, tx, batch.ID, input.Qty, BatchRef(batch.ID))
}

// DefaultBatchNumber formats BATCH-{sku}-{YYYYMM}.
func DefaultBatchNumber(sku string, at time.Time) string {
	return fmt.Sprintf("BATCH-%s-%s", strings.ToUpper(strings.TrimSpace(sku)), at.UTC().Format("200601"))
}

// Restock adds qty to both the initial and remaining quantity.
func (l *Ledger) Restock(ctx context.Context, tx *gorm.DB, batchID uuid.UUID, qty int, ref Reference) (*models.Batch, error) {
	if qty <= 0 {
		return nil, pkgerrors.InvalidQuantity(qty)
	}
	batch, err := l.lockBatch(ctx, tx, batchID)
	if err != nil {
		return nil, err
	}
	batch.InitialQty += qty
	batch.RemainingQty += qty
	if err := l.apply(ctx, tx, batch, enums.MovementRestock, qty, ref, nil); err != nil {
		return nil, err
	}
	return batch, nil
}

// Reserve holds qty units of the batch. It fails without touching the row when
// the batch cannot cover the request.
func (l *Ledger) Reserve(ctx context.Context, tx *gorm.DB, batchID uuid.UUID, qty int, ref Reference) (*models.Batch, error) {
	if qty <= 0 {
		return nil, pkgerrors.InvalidQuantity(qty)
	}
	batch, err := l.lockBatch(ctx, tx, batchID)
	if err != nil {
		return nil, err
	}
	if available := batch.Available(); available < qty {
		return nil, pkgerrors.InsufficientBatchStock(batch.ProductID.String(), batch.ID.String(), qty-available)
	}
	batch.ReservedQty += qty
	if err := l.apply(ctx, tx, batch, enums.MovementReserve, qty, ref, nil); err != nil {
		return nil, err
	}
	return batch, nil
}

// Release returns qty reserved units to the available pool.
func (l *Ledger) Release(ctx context.Context, tx *gorm.DB, batchID uuid.UUID, qty int, ref Reference) (*models.Batch, error) {
	if qty <= 0 {
		return nil, pkgerrors.InvalidQuantity(qty)
	}
	batch, err := l.lockBatch(ctx, tx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.ReservedQty < qty {
		return nil, pkgerrors.InvariantViolation(batch.ID.String(),
			fmt.Sprintf("release of %d exceeds reserved %d", qty, batch.ReservedQty))
	}
	batch.ReservedQty -= qty
	if err := l.apply(ctx, tx, batch, enums.MovementRelease, -qty, ref, nil); err != nil {
		return nil, err
	}
	return batch, nil
}

// Consume turns qty reserved units into a permanent stock reduction.
func (l *Ledger) Consume(ctx context.Context, tx *gorm.DB, batchID uuid.UUID, qty int, ref Reference) (*models.Batch, error) {
	if qty <= 0 {
		return nil, pkgerrors.InvalidQuantity(qty)
	}
	batch, err := l.lockBatch(ctx, tx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.ReservedQty < qty {
		return nil, pkgerrors.InsufficientReservation(batch.ID.String(), batch.ReservedQty, qty)
	}
	batch.RemainingQty -= qty
	batch.ReservedQty -= qty
	if err := l.apply(ctx, tx, batch, enums.MovementConsume, -qty, ref, nil); err != nil {
		return nil, err
	}
	return batch, nil
}

// Adjust corrects remaining_qty by delta (damage, stock-take). The result must
// stay within reserved <= remaining <= initial.
func (l *Ledger) Adjust(ctx context.Context, tx *gorm.DB, batchID uuid.UUID, delta int, ref Reference, note string) (*models.Batch, error) {
	if delta == 0 {
		return nil, pkgerrors.InvalidQuantity(delta)
	}
	batch, err := l.lockBatch(ctx, tx, batchID)
	if err != nil {
		return nil, err
	}
	next := batch.RemainingQty + delta
	if next < batch.ReservedQty || next > batch.InitialQty {
		return nil, pkgerrors.InvalidQuantity(delta).WithDetails(map[string]int{
			"qty":       delta,
			"remaining": batch.RemainingQty,
			"reserved":  batch.ReservedQty,
			"initial":   batch.InitialQty,
		})
	}
	batch.RemainingQty = next

	var notePtr *string
	if trimmed := strings.TrimSpace(note); trimmed != "" {
		notePtr = &trimmed
	}
	if err := l.apply(ctx, tx, batch, enums.MovementAdjustment, delta, ref, notePtr); err != nil {
		return nil, err
	}
	return batch, nil
}

// LockBatches locks the given batch rows in ascending id order and returns them keyed by id.
func (l *Ledger) LockBatches(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]*models.Batch, error) {
	ordered := SortedIDs(ids)
	locked := make(map[uuid.UUID]*models.Batch, len(ordered))
	for _, id := range ordered {
		batch, err := l.lockBatch(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		locked[id] = batch
	}
	return locked, nil
}

// SortedIDs returns the distinct ids in ascending order.
func SortedIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func (l *Ledger) lockBatch(ctx context.Context, tx *gorm.DB, batchID uuid.UUID) (*models.Batch, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger requires a transaction")
	}
	if batchID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "batch id is required")
	}
	var batch models.Batch
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&batch, "id = ?", batchID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "batch not found")
		}
		return nil, err
	}
	return &batch, nil
}

func (l *Ledger) apply(ctx context.Context, tx *gorm.DB, batch *models.Batch, reason enums.MovementReason, delta int, ref Reference, note *string) error {
	if !batch.Consistent() {
		return pkgerrors.InvariantViolation(batch.ID.String(),
			fmt.Sprintf("%s would leave initial=%d remaining=%d reserved=%d", reason, batch.InitialQty, batch.RemainingQty, batch.ReservedQty))
	}
	batch.UpdatedAt = l.now().UTC()

	if err := tx.WithContext(ctx).
		Model(&models.Batch{}).
		Where("id = ?", batch.ID).
		Updates(map[string]any{
			"initial_qty":   batch.InitialQty,
			"remaining_qty": batch.RemainingQty,
			"reserved_qty":  batch.ReservedQty,
			"updated_at":    batch.UpdatedAt,
		}).Error; err != nil {
		return err
	}

	movement := &models.StockMovement{
		BatchID:        batch.ID,
		Delta:          delta,
		Reason:         reason,
		ReferenceTable: ref.Table,
		ReferenceID:    ref.ID,
		Note:           note,
	}
	if err := tx.WithContext(ctx).Create(movement).Error; err != nil {
		return err
	}

	l.metrics.ObserveMovement(string(reason), delta)
	return nil
}

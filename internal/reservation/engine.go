package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mmararief/dante-propolis/internal/inventory"
	"github.com/mmararief/dante-propolis/pkg/db/models"
	pkgerrors "github.com/mmararief/dante-propolis/pkg/errors"
	"github.com/mmararief/dante-propolis/pkg/metrics"
	"github.com/mmararief/dante-propolis/pkg/tracing"
)

const defaultHold = 24 * time.Hour

// Engine reserves batch stock for every line of an order in one transaction.
type Engine struct {
	ledger  *inventory.Ledger
	hold    time.Duration
	metrics *metrics.InventoryMetrics
	now     func() time.Time
}

// NewEngine builds the engine. A non-positive hold falls back to 24h.
func NewEngine(ledger *inventory.Ledger, hold time.Duration, m *metrics.InventoryMetrics) (*Engine, error) {
	if ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if hold <= 0 {
		hold = defaultHold
	}
	return &Engine{ledger: ledger, hold: hold, metrics: m, now: time.Now}, nil
}

// ReserveForOrder draws every order item from its product's batches and sets
// the hold deadline. On INSUFFICIENT_STOCK the caller must roll back tx, which
// discards every draw already made for the order.
func (e *Engine) ReserveForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (order *models.Order, err error) {
	ctx, span := tracing.Start(ctx, "reservation.ReserveForOrder", attribute.String("order.id", orderID.String()))
	defer func() {
		e.metrics.ObserveReservation(outcomeFor(err))
		tracing.End(span, err)
	}()

	order, err = lockOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Status.HoldsReservation() {
		return nil, pkgerrors.InvalidOrderState(order.ID.String(), string(order.Status), "reserve")
	}

	var items []models.OrderItem
	if err := tx.WithContext(ctx).
		Where("order_id = ?", order.ID).
		Order("line_no ASC, id ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order has no items")
	}

	itemIDs := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		itemIDs = append(itemIDs, item.ID)
	}
	var existing int64
	if err := tx.WithContext(ctx).
		Model(&models.OrderItemBatchAllocation{}).
		Where("order_item_id IN ?", itemIDs).
		Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, pkgerrors.InvalidOrderState(order.ID.String(), string(order.Status), "reserve")
	}

	candidates, err := e.lockCandidates(ctx, tx, items)
	if err != nil {
		return nil, err
	}

	lines := make([]Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, Line{OrderItemID: item.ID, ProductID: item.ProductID, Qty: item.Qty})
	}
	draws, err := Plan(lines, candidates)
	if err != nil {
		return nil, err
	}

	ref := inventory.OrderRef(order.ID)
	for _, draw := range draws {
		allocation := &models.OrderItemBatchAllocation{
			OrderItemID: draw.OrderItemID,
			BatchID:     draw.BatchID,
			Qty:         draw.Qty,
		}
		if err := tx.WithContext(ctx).Create(allocation).Error; err != nil {
			return nil, err
		}
		if _, err := e.ledger.Reserve(ctx, tx, draw.BatchID, draw.Qty, ref); err != nil {
			return nil, err
		}
	}

	expiresAt := e.now().UTC().Add(e.hold)
	if err := tx.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", order.ID).
		Updates(map[string]any{"reservation_expires_at": expiresAt, "updated_at": e.now().UTC()}).Error; err != nil {
		return nil, err
	}
	order.ReservationExpiresAt = &expiresAt
	span.SetAttributes(attribute.Int("reservation.draws", len(draws)))
	return order, nil
}

// lockCandidates locks every candidate batch of the order's products in
// ascending id order and snapshots them under those locks.
func (e *Engine) lockCandidates(ctx context.Context, tx *gorm.DB, items []models.OrderItem) ([]Candidate, error) {
	productIDs := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		productIDs = append(productIDs, item.ProductID)
	}
	ids, err := inventory.NewRepository(tx).CandidateBatchIDs(ctx, inventory.SortedIDs(productIDs))
	if err != nil {
		return nil, err
	}
	locked, err := e.ledger.LockBatches(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	candidates := make([]Candidate, 0, len(locked))
	for _, id := range ids {
		batch := locked[id]
		candidates = append(candidates, Candidate{
			BatchID:    batch.ID,
			ProductID:  batch.ProductID,
			Available:  batch.Available(),
			ExpiryDate: batch.ExpiryDate,
			CreatedAt:  batch.CreatedAt,
		})
	}
	return candidates, nil
}

func lockOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reservation requires a transaction")
	}
	var order models.Order
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&order, "id = ?", orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, err
	}
	return &order, nil
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeReserved
	case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock):
		return metrics.OutcomeInsufficientStock
	case pkgerrors.IsCode(err, pkgerrors.CodeBusy):
		return metrics.OutcomeBusy
	default:
		return metrics.OutcomeError
	}
}

// Package reclaim releases reservations whose payment window has lapsed.
package reclaim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/mmararief/dante-propolis/internal/inventory"
	"github.com/mmararief/dante-propolis/internal/orders"
	"github.com/mmararief/dante-propolis/pkg/db"
	"github.com/mmararief/dante-propolis/pkg/enums"
	"github.com/mmararief/dante-propolis/pkg/logger"
	"github.com/mmararief/dante-propolis/pkg/metrics"
	"github.com/mmararief/dante-propolis/pkg/outbox"
	"github.com/mmararief/dante-propolis/pkg/outbox/payloads"
	"github.com/mmararief/dante-propolis/pkg/tracing"
)

const defaultSweepBatchSize = 100

type retryRunner interface {
	RetryTx(ctx context.Context, policy db.RetryPolicy, fn func(tx *gorm.DB) error) error
}

// Params wires the reclaimer.
type Params struct {
	DB        retryRunner
	Policy    db.RetryPolicy
	Orders    orders.Repository
	Ledger    *inventory.Ledger
	Outbox    outbox.Emitter
	Logger    *logger.Logger
	Metrics   *metrics.InventoryMetrics
	BatchSize int
}

// Reclaimer cancels orders whose reservation deadline passed without a commit.
type Reclaimer struct {
	db        retryRunner
	policy    db.RetryPolicy
	orders    orders.Repository
	ledger    *inventory.Ledger
	outbox    outbox.Emitter
	logg      *logger.Logger
	metrics   *metrics.InventoryMetrics
	batchSize int
	now       func() time.Time
}

func NewReclaimer(params Params) (*Reclaimer, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultSweepBatchSize
	}
	return &Reclaimer{
		db:        params.DB,
		policy:    params.Policy,
		orders:    params.Orders,
		ledger:    params.Ledger,
		outbox:    params.Outbox,
		logg:      params.Logger,
		metrics:   params.Metrics,
		batchSize: batchSize,
		now:       time.Now,
	}, nil
}

// RunExpiryRelease pages through expired reservations until none are left.
// Each order is released in its own transaction; an order that fails or is
// skipped is excluded from later pages so the sweep moves past it.
// It returns how many orders were cancelled.
func (r *Reclaimer) RunExpiryRelease(ctx context.Context) (released int, err error) {
	ctx, span := tracing.Start(ctx, "reclaim.RunExpiryRelease")
	defer func() {
		r.metrics.AddExpired(released)
		span.SetAttributes(attribute.Int("reclaim.released", released))
		tracing.End(span, err)
	}()

	now := r.now().UTC()
	var (
		errs error
		skip []uuid.UUID
	)
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return released, multierr.Append(errs, ctxErr)
		}
		ids, listErr := r.orders.ListExpiredReservations(ctx, now, r.batchSize, skip)
		if listErr != nil {
			return released, multierr.Append(errs, fmt.Errorf("list expired reservations: %w", listErr))
		}
		if len(ids) == 0 {
			break
		}
		for _, id := range ids {
			done, releaseErr := r.releaseOrder(ctx, id, now)
			if releaseErr != nil {
				orderCtx := r.logg.WithOrderID(ctx, id.String())
				r.logg.Error(orderCtx, "failed to release expired reservation", releaseErr)
				errs = multierr.Append(errs, fmt.Errorf("order %s: %w", id, releaseErr))
				skip = append(skip, id)
				continue
			}
			if done {
				released++
			} else {
				skip = append(skip, id)
			}
		}
	}

	if released > 0 {
		r.logg.Info(r.logg.WithField(ctx, "released", released), "expired reservations released")
	}
	return released, errs
}

// releaseOrder re-checks the deadline under the order lock so an order that
// was committed after it was listed is skipped.
func (r *Reclaimer) releaseOrder(ctx context.Context, orderID uuid.UUID, now time.Time) (bool, error) {
	released := false
	err := r.db.RetryTx(ctx, r.policy, func(tx *gorm.DB) error {
		released = false
		repo := r.orders.WithTx(tx)
		order, err := repo.LockOrder(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if !order.ReservationDue(now) {
			return nil
		}

		rows, err := repo.FindAllocationsByOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		if _, err := r.ledger.LockBatches(ctx, tx, orders.BatchIDs(rows)); err != nil {
			return err
		}

		ref := inventory.OrderRef(order.ID)
		allocationIDs := make([]uuid.UUID, 0, len(rows))
		for _, row := range rows {
			if _, err := r.ledger.Release(ctx, tx, row.BatchID, row.Qty, ref); err != nil {
				return err
			}
			allocationIDs = append(allocationIDs, row.ID)
		}
		if err := repo.DeleteAllocations(ctx, allocationIDs); err != nil {
			return err
		}

		if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
			"status":                 enums.OrderStatusCancelled,
			"reservation_expires_at": nil,
			"updated_at":             now,
		}); err != nil {
			return err
		}
		if err := r.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:   enums.EventOrderReservationExpired,
			AggregateID: order.ID,
			Actor:       outbox.SystemActor(),
			Data: payloads.ReservationExpiredEvent{
				OrderID:        order.ID,
				PreviousStatus: order.Status,
				ExpiredAt:      *order.ReservationExpiresAt,
				Released:       orders.EventLines(rows),
			},
		}); err != nil {
			return err
		}
		released = true
		return nil
	})
	return released, err
}

// Package allocation turns an order's reservations into consumed stock once
// payment is verified.
package allocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/mmararief/dante-propolis/internal/inventory"
	"github.com/mmararief/dante-propolis/internal/orders"
	"github.com/mmararief/dante-propolis/pkg/db"
	"github.com/mmararief/dante-propolis/pkg/db/models"
	"github.com/mmararief/dante-propolis/pkg/enums"
	pkgerrors "github.com/mmararief/dante-propolis/pkg/errors"
	"github.com/mmararief/dante-propolis/pkg/logger"
	"github.com/mmararief/dante-propolis/pkg/metrics"
	"github.com/mmararief/dante-propolis/pkg/outbox"
	"github.com/mmararief/dante-propolis/pkg/outbox/payloads"
	"github.com/mmararief/dante-propolis/pkg/tracing"
)

const (
	outcomeCommitted = "committed"
	outcomeRejected  = "rejected"
)

type retryRunner interface {
	RetryTx(ctx context.Context, policy db.RetryPolicy, fn func(tx *gorm.DB) error) error
}

// Params wires the commit service.
type Params struct {
	DB      retryRunner
	Policy  db.RetryPolicy
	Orders  orders.Repository
	Ledger  *inventory.Ledger
	Outbox  outbox.Emitter
	Logger  *logger.Logger
	Metrics *metrics.InventoryMetrics
}

// Service commits allocations for paid orders.
type Service struct {
	db      retryRunner
	policy  db.RetryPolicy
	orders  orders.Repository
	ledger  *inventory.Ledger
	outbox  outbox.Emitter
	logg    *logger.Logger
	metrics *metrics.InventoryMetrics
	now     func() time.Time
}

func NewService(params Params) (*Service, error) {
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
	return &Service{
		db:      params.DB,
		policy:  params.Policy,
		orders:  params.Orders,
		ledger:  params.Ledger,
		outbox:  params.Outbox,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     time.Now,
	}, nil
}

// CommitAllocation consumes every reservation of the order and moves it to
// processing. Only orders still holding a reservation may be committed, so a
// repeated call fails with INVALID_ORDER_STATE and leaves stock untouched.
func (s *Service) CommitAllocation(ctx context.Context, orderID uuid.UUID, actor *outbox.ActorRef) (committed *models.Order, err error) {
	ctx = s.logg.WithOrderID(ctx, orderID.String())
	ctx, span := tracing.Start(ctx, "allocation.CommitAllocation", attribute.String("order.id", orderID.String()))
	defer func() {
		s.metrics.ObserveCommit(commitOutcome(err))
		tracing.End(span, err)
	}()

	err = s.db.RetryTx(ctx, s.policy, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		order, err := repo.LockOrder(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return err
		}
		if !order.Status.HoldsReservation() {
			return pkgerrors.InvalidOrderState(order.ID.String(), string(order.Status), "commit")
		}

		rows, err := repo.FindAllocationsByOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		if _, err := s.ledger.LockBatches(ctx, tx, orders.BatchIDs(rows)); err != nil {
			return err
		}

		ref := inventory.OrderRef(order.ID)
		for _, row := range rows {
			if _, err := s.ledger.Consume(ctx, tx, row.BatchID, row.Qty, ref); err != nil {
				if pkgerrors.IsCode(err, pkgerrors.CodeInsufficientReservation) {
					s.logg.Error(s.logg.WithBatchID(ctx, row.BatchID.String()), "allocation commit found a missing reservation", err)
				}
				return err
			}
		}

		previous := order.Status
		if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
			"status":                 enums.OrderStatusProcessing,
			"reservation_expires_at": nil,
			"updated_at":             s.now().UTC(),
		}); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:   enums.EventOrderAllocationCommitted,
			AggregateID: order.ID,
			Actor:       actor,
			Data: payloads.AllocationCommittedEvent{
				OrderID:     order.ID,
				Status:      enums.OrderStatusProcessing,
				Allocations: orders.EventLines(rows),
			},
		}); err != nil {
			return err
		}

		order.Status = enums.OrderStatusProcessing
		order.ReservationExpiresAt = nil
		committed = order
		span.SetAttributes(
			attribute.String("order.previous_status", string(previous)),
			attribute.Int("allocation.rows", len(rows)),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(ctx, "allocation committed")
	return committed, nil
}

func commitOutcome(err error) string {
	switch {
	case err == nil:
		return outcomeCommitted
	case pkgerrors.IsCode(err, pkgerrors.CodeBusy):
		return metrics.OutcomeBusy
	case pkgerrors.IsCode(err, pkgerrors.CodeInvalidOrderState):
		return outcomeRejected
	default:
		return metrics.OutcomeError
	}
}

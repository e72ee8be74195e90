package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mmararief/dante-propolis/pkg/db/models"
	"github.com/mmararief/dante-propolis/pkg/enums"
	pkgerrors "github.com/mmararief/dante-propolis/pkg/errors"
	"github.com/mmararief/dante-propolis/pkg/outbox"
	"github.com/mmararief/dante-propolis/pkg/outbox/payloads"
	"github.com/mmararief/dante-propolis/pkg/pagination"
)

const maxTrackingNumberLength = 100

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service covers the order lifecycle outside reservation and allocation.
type Service interface {
	Get(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	AttachPaymentProof(ctx context.Context, input PaymentProofInput) (*models.Order, error)
	Ship(ctx context.Context, input ShipInput) (*models.Order, error)
	Complete(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outbox.Emitter
	now    func() time.Time
}

// NewService builds the order lifecycle service.
func NewService(repo Repository, tx txRunner, emitter outbox.Emitter) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{repo: repo, tx: tx, outbox: emitter, now: time.Now}, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindOrderDetail(ctx, orderID)
	if err != nil {
		return nil, mapLoadError(err)
	}
	if !actor.IsAdmin() && order.UserID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.Filters.Status != nil && !params.Filters.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status filter")
	}
	if params.Cursor != "" {
		if _, err := pagination.ParseCursor(params.Cursor); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
	}
	rows, next, err := s.repo.ListOrders(ctx, pagination.Params{Limit: params.Limit, Cursor: params.Cursor}, params.Filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	result := &ListResult{Orders: rows}
	if next != nil {
		result.NextCursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

// AttachPaymentProof moves an unpaid order to awaiting_confirmation. A new
// proof may replace an earlier one while the order is still awaiting. The
// reservation deadline is left untouched.
func (s *service) AttachPaymentProof(ctx context.Context, input PaymentProofInput) (*models.Order, error) {
	proof := strings.TrimSpace(input.ProofURL)
	if proof == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment proof url required")
	}
	return s.transition(ctx, input.OrderID, input.Actor, transition{
		action:  "attach payment proof",
		from:    []enums.OrderStatus{enums.OrderStatusUnpaid, enums.OrderStatusAwaitingConfirmation},
		to:      enums.OrderStatusAwaitingConfirmation,
		event:   enums.EventOrderPaymentProofAdded,
		owner:   true,
		updates: map[string]any{"payment_proof_url": proof},
	})
}

func (s *service) Ship(ctx context.Context, input ShipInput) (*models.Order, error) {
	tracking := strings.TrimSpace(input.TrackingNumber)
	if tracking == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tracking number required")
	}
	if len(tracking) > maxTrackingNumberLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tracking number too long")
	}
	if !input.Actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	return s.transition(ctx, input.OrderID, input.Actor, transition{
		action:   "ship",
		from:     []enums.OrderStatus{enums.OrderStatusProcessing},
		to:       enums.OrderStatusShipped,
		event:    enums.EventOrderShipped,
		updates:  map[string]any{"tracking_number": tracking},
		tracking: &tracking,
	})
}

// Complete marks a shipped order as received. Buyers confirm their own
// orders; admins may close any shipped order.
func (s *service) Complete(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	return s.transition(ctx, orderID, actor, transition{
		action: "complete",
		from:   []enums.OrderStatus{enums.OrderStatusShipped},
		to:     enums.OrderStatusCompleted,
		event:  enums.EventOrderCompleted,
		owner:  true,
	})
}

type transition struct {
	action   string
	from     []enums.OrderStatus
	to       enums.OrderStatus
	event    enums.OutboxEventType
	owner    bool
	updates  map[string]any
	tracking *string
}

func (t transition) allows(status enums.OrderStatus) bool {
	for _, candidate := range t.from {
		if candidate == status {
			return true
		}
	}
	return false
}

func (s *service) transition(ctx context.Context, orderID uuid.UUID, actor Actor, t transition) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockOrder(ctx, orderID)
		if err != nil {
			return mapLoadError(err)
		}
		if t.owner && !actor.IsAdmin() && order.UserID != actor.UserID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if !t.allows(order.Status) {
			return pkgerrors.InvalidOrderState(order.ID.String(), string(order.Status), t.action)
		}

		previous := order.Status
		updates := map[string]any{"status": t.to, "updated_at": s.now().UTC()}
		for k, v := range t.updates {
			updates[k] = v
		}
		if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:   t.event,
			AggregateID: order.ID,
			Actor:       &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)},
			Data: payloads.OrderStatusChangedEvent{
				OrderID:        order.ID,
				PreviousStatus: previous,
				Status:         t.to,
				TrackingNumber: t.tracking,
			},
		}); err != nil {
			return err
		}

		reloaded, err := repo.FindOrder(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		updated = reloaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func mapLoadError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}

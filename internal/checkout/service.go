package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mmararief/dante-propolis/internal/orders"
	"github.com/mmararief/dante-propolis/pkg/checkout"
	"github.com/mmararief/dante-propolis/pkg/db"
	"github.com/mmararief/dante-propolis/pkg/db/models"
	"github.com/mmararief/dante-propolis/pkg/enums"
	pkgerrors "github.com/mmararief/dante-propolis/pkg/errors"
	"github.com/mmararief/dante-propolis/pkg/outbox"
	"github.com/mmararief/dante-propolis/pkg/outbox/payloads"
)

type retryRunner interface {
	RetryTx(ctx context.Context, policy db.RetryPolicy, fn func(tx *gorm.DB) error) error
}

type reserver interface {
	ReserveForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error)
}

// Service executes checkout orchestration.
type Service interface {
	Execute(ctx context.Context, input Input) (*models.Order, error)
}

// Input is a validated checkout request.
type Input struct {
	UserID            uuid.UUID
	PaymentMethod     enums.PaymentMethod
	Courier           *string
	CourierService    *string
	DestinationCityID int
	Address           string
	Phone             string
	ShippingCost      decimal.Decimal
	Items             []ItemInput
}

type ItemInput struct {
	ProductID uuid.UUID
	Qty       int
	TierID    *uuid.UUID
	Note      *string
}

// Params wires the checkout service.
type Params struct {
	DB          retryRunner
	Policy      db.RetryPolicy
	Products    ProductRepository
	Orders      orders.Repository
	Reservation reserver
	Outbox      outbox.Emitter
}

type service struct {
	db          retryRunner
	policy      db.RetryPolicy
	products    ProductRepository
	orders      orders.Repository
	reservation reserver
	outbox      outbox.Emitter
}

// NewService builds the checkout service.
func NewService(params Params) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Reservation == nil {
		return nil, fmt.Errorf("reservation engine required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{
		db:          params.DB,
		policy:      params.Policy,
		products:    params.Products,
		orders:      params.Orders,
		reservation: params.Reservation,
		outbox:      params.Outbox,
	}, nil
}

// Execute prices the items, creates an unpaid order and reserves stock for
// every line in one transaction. If any line cannot be covered nothing is
// persisted and INSUFFICIENT_STOCK is returned.
func (s *service) Execute(ctx context.Context, input Input) (*models.Order, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	lines := make([]checkout.Line, 0, len(input.Items))
	productIDs := make([]uuid.UUID, 0, len(input.Items))
	for _, item := range input.Items {
		lines = append(lines, checkout.Line{ProductID: item.ProductID, Qty: item.Qty, TierID: item.TierID, Note: item.Note})
		productIDs = append(productIDs, item.ProductID)
	}

	var placed *models.Order
	err := s.db.RetryTx(ctx, s.policy, func(tx *gorm.DB) error {
		products, err := s.products.WithTx(tx).FindWithTiers(ctx, productIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
		}
		quote, err := checkout.Price(products, lines, input.ShippingCost)
		if err != nil {
			return err
		}

		repo := s.orders.WithTx(tx)
		order := &models.Order{
			UserID:            input.UserID,
			Status:            enums.OrderStatusUnpaid,
			PaymentMethod:     input.PaymentMethod,
			Subtotal:          quote.Subtotal,
			ShippingCost:      quote.ShippingCost,
			Total:             quote.Total,
			Courier:           input.Courier,
			CourierService:    input.CourierService,
			DestinationCityID: input.DestinationCityID,
			Address:           strings.TrimSpace(input.Address),
			Phone:             strings.TrimSpace(input.Phone),
		}
		for _, line := range quote.Lines {
			order.Items = append(order.Items, models.OrderItem{
				ProductID: line.ProductID,
				UnitPrice: line.UnitPrice,
				Qty:       line.Qty,
				LineTotal: line.LineTotal,
				Note:      line.Note,
			})
		}
		if _, err := repo.CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		reserved, err := s.reservation.ReserveForOrder(ctx, tx, order.ID)
		if err != nil {
			return err
		}

		rows, err := repo.FindAllocationsByOrder(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load allocations")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:   enums.EventOrderPlaced,
			AggregateID: order.ID,
			Actor:       &outbox.ActorRef{UserID: input.UserID, Role: string(enums.UserRoleCustomer)},
			Data: payloads.OrderPlacedEvent{
				OrderID:              order.ID,
				UserID:               input.UserID,
				Total:                quote.Total.StringFixed(2),
				PaymentMethod:        input.PaymentMethod,
				ReservationExpiresAt: reserved.ReservationExpiresAt,
				Allocations:          orders.EventLines(rows),
			},
		}); err != nil {
			return err
		}

		detail, err := repo.FindOrderDetail(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		placed = detail
		return nil
	})
	if err != nil {
		return nil, err
	}
	return placed, nil
}

func validateInput(input Input) error {
	if input.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !input.PaymentMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method")
	}
	if input.DestinationCityID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "destination city is required")
	}
	if strings.TrimSpace(input.Address) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "address is required")
	}
	if strings.TrimSpace(input.Phone) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "phone is required")
	}
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	return nil
}

package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/mmararief/dante-propolis/pkg/enums"
)

// AllocationLine is one batch draw carried by order events.
type AllocationLine struct {
	OrderItemID uuid.UUID `json:"order_item_id"`
	ProductID   uuid.UUID `json:"product_id"`
	BatchID     uuid.UUID `json:"batch_id"`
	Qty         int       `json:"qty"`
}

// OrderPlacedEvent is emitted once checkout has reserved stock for every line.
type OrderPlacedEvent struct {
	OrderID              uuid.UUID           `json:"order_id"`
	UserID               uuid.UUID           `json:"user_id"`
	Total                string              `json:"total"`
	PaymentMethod        enums.PaymentMethod `json:"payment_method"`
	ReservationExpiresAt *time.Time          `json:"reservation_expires_at"`
	Allocations          []AllocationLine    `json:"allocations"`
}

type AllocationCommittedEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	Status      enums.OrderStatus `json:"status"`
	Allocations []AllocationLine  `json:"allocations"`
}

type ReservationExpiredEvent struct {
	OrderID        uuid.UUID         `json:"order_id"`
	PreviousStatus enums.OrderStatus `json:"previous_status"`
	ExpiredAt      time.Time         `json:"expired_at"`
	Released       []AllocationLine  `json:"released"`
}

type OrderStatusChangedEvent struct {
	OrderID        uuid.UUID         `json:"order_id"`
	PreviousStatus enums.OrderStatus `json:"previous_status"`
	Status         enums.OrderStatus `json:"status"`
	TrackingNumber *string           `json:"tracking_number,omitempty"`
}

type BatchStockChangedEvent struct {
	BatchID      uuid.UUID `json:"batch_id"`
	ProductID    uuid.UUID `json:"product_id"`
	BatchNumber  string    `json:"batch_number"`
	Delta        int       `json:"delta"`
	RemainingQty int       `json:"remaining_qty"`
	ReservedQty  int       `json:"reserved_qty"`
}

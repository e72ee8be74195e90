package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mmararief/dante-propolis/pkg/enums"
)

type Order struct {
	ID                   uuid.UUID           `gorm:"column:id;type:char(36);primaryKey"`
	UserID               uuid.UUID           `gorm:"column:user_id;type:char(36);not null;index"`
	Status               enums.OrderStatus   `gorm:"column:status;type:varchar(32);not null;index:idx_orders_status_expiry,priority:1"`
	PaymentMethod        enums.PaymentMethod `gorm:"column:payment_method;type:varchar(32);not null"`
	Subtotal             decimal.Decimal     `gorm:"column:subtotal;type:decimal(14,2);not null"`
	ShippingCost         decimal.Decimal     `gorm:"column:shipping_cost;type:decimal(14,2);not null"`
	Total                decimal.Decimal     `gorm:"column:total;type:decimal(14,2);not null"`
	Courier              *string             `gorm:"column:courier"`
	CourierService       *string             `gorm:"column:courier_service"`
	DestinationCityID    int                 `gorm:"column:destination_city_id;not null"`
	Address              string              `gorm:"column:address;not null"`
	Phone                string              `gorm:"column:phone;size:20;not null"`
	PaymentProofURL      *string             `gorm:"column:payment_proof_url"`
	TrackingNumber       *string             `gorm:"column:tracking_number"`
	ReservationExpiresAt *time.Time          `gorm:"column:reservation_expires_at;index:idx_orders_status_expiry,priority:2"`
	CreatedAt            time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time           `gorm:"column:updated_at;autoUpdateTime"`

	Items []OrderItem `gorm:"foreignKey:OrderID"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	for i := range o.Items {
		if o.Items[i].LineNo == 0 {
			o.Items[i].LineNo = i + 1
		}
	}
	return nil
}

// ReservationDue reports whether the hold window has passed for an order still awaiting payment.
func (o Order) ReservationDue(now time.Time) bool {
	return o.Status.HoldsReservation() && o.ReservationExpiresAt != nil && o.ReservationExpiresAt.Before(now)
}

type OrderItem struct {
	ID        uuid.UUID       `gorm:"column:id;type:char(36);primaryKey"`
	OrderID   uuid.UUID       `gorm:"column:order_id;type:char(36);not null;index"`
	LineNo    int             `gorm:"column:line_no;not null;default:0"`
	ProductID uuid.UUID       `gorm:"column:product_id;type:char(36);not null"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:decimal(14,2);not null"`
	Qty       int             `gorm:"column:qty;not null"`
	LineTotal decimal.Decimal `gorm:"column:line_total;type:decimal(14,2);not null"`
	Note      *string         `gorm:"column:note;size:100"`

	Allocations []OrderItemBatchAllocation `gorm:"foreignKey:OrderItemID"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}

// AllocatedQty sums the quantity drawn from batches for this item.
func (i OrderItem) AllocatedQty() int {
	total := 0
	for _, a := range i.Allocations {
		total += a.Qty
	}
	return total
}

// OrderItemBatchAllocation records how much of an order item is held in a batch.
type OrderItemBatchAllocation struct {
	ID          uuid.UUID `gorm:"column:id;type:char(36);primaryKey"`
	OrderItemID uuid.UUID `gorm:"column:order_item_id;type:char(36);not null;index"`
	BatchID     uuid.UUID `gorm:"column:batch_id;type:char(36);not null;index"`
	Qty         int       `gorm:"column:qty;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`

	Batch *Batch `gorm:"foreignKey:BatchID"`
}

func (OrderItemBatchAllocation) TableName() string { return "order_item_batches" }

func (a *OrderItemBatchAllocation) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}

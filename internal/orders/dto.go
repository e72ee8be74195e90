package orders

import (
	"github.com/google/uuid"

	"github.com/mmararief/dante-propolis/pkg/db/models"
	"github.com/mmararief/dante-propolis/pkg/enums"
	"github.com/mmararief/dante-propolis/pkg/outbox/payloads"
)

// Actor is the authenticated caller acting on an order.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

func (a Actor) IsAdmin() bool {
	return a.Role == enums.UserRoleAdmin
}

// AllocationRow is one batch draw joined with its order item's product.
type AllocationRow struct {
	ID          uuid.UUID
	OrderItemID uuid.UUID
	ProductID   uuid.UUID
	BatchID     uuid.UUID
	Qty         int
}

// BatchIDs returns the distinct batch ids the rows touch.
func BatchIDs(rows []AllocationRow) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.BatchID)
	}
	return out
}

// EventLines converts allocation rows into the event payload shape.
func EventLines(rows []AllocationRow) []payloads.AllocationLine {
	out := make([]payloads.AllocationLine, 0, len(rows))
	for _, row := range rows {
		out = append(out, payloads.AllocationLine{
			OrderItemID: row.OrderItemID,
			ProductID:   row.ProductID,
			BatchID:     row.BatchID,
			Qty:         row.Qty,
		})
	}
	return out
}

// ListFilters narrow the admin order listing.
type ListFilters struct {
	Status *enums.OrderStatus
	UserID *uuid.UUID
}

// ListParams are the raw listing inputs from controllers.
type ListParams struct {
	Limit   int
	Cursor  string
	Filters ListFilters
}

// ListResult wraps one page of orders plus the next cursor.
type ListResult struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// PaymentProofInput attaches a transfer receipt to an unpaid order.
type PaymentProofInput struct {
	OrderID  uuid.UUID
	Actor    Actor
	ProofURL string
}

// ShipInput records the courier tracking number for a processing order.
type ShipInput struct {
	OrderID        uuid.UUID
	Actor          Actor
	TrackingNumber string
}

package controllers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmararief/dante-propolis/pkg/db/models"
)

type orderResponse struct {
	ID                   uuid.UUID           `json:"id"`
	UserID               uuid.UUID           `json:"user_id"`
	Status               string              `json:"status"`
	PaymentMethod        string              `json:"payment_method"`
	Subtotal             decimal.Decimal     `json:"subtotal"`
	ShippingCost         decimal.Decimal     `json:"shipping_cost"`
	Total                decimal.Decimal     `json:"total"`
	Courier              *string             `json:"courier,omitempty"`
	CourierService       *string             `json:"courier_service,omitempty"`
	DestinationCityID    int                 `json:"destination_city_id"`
	Address              string              `json:"address"`
	Phone                string              `json:"phone"`
	PaymentProofURL      *string             `json:"payment_proof_url,omitempty"`
	TrackingNumber       *string             `json:"tracking_number,omitempty"`
	ReservationExpiresAt *time.Time          `json:"reservation_expires_at,omitempty"`
	CreatedAt            time.Time           `json:"created_at"`
	Items                []orderItemResponse `json:"items"`
}

type orderItemResponse struct {
	ID           uuid.UUID            `json:"id"`
	ProductID    uuid.UUID            `json:"product_id"`
	UnitPrice    decimal.Decimal      `json:"unit_price"`
	Qty          int                  `json:"qty"`
	LineTotal    decimal.Decimal      `json:"line_total"`
	Note         *string              `json:"note,omitempty"`
	AllocatedQty int                  `json:"allocated_qty"`
	Allocations  []allocationResponse `json:"allocations"`
}

type allocationResponse struct {
	BatchID     uuid.UUID  `json:"batch_id"`
	BatchNumber string     `json:"batch_number,omitempty"`
	ExpiryDate  *time.Time `json:"expiry_date,omitempty"`
	Qty         int        `json:"qty"`
}

func newOrderResponse(order *models.Order) orderResponse {
	if order == nil {
		return orderResponse{}
	}
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		allocations := make([]allocationResponse, 0, len(item.Allocations))
		for _, alloc := range item.Allocations {
			resp := allocationResponse{BatchID: alloc.BatchID, Qty: alloc.Qty}
			if alloc.Batch != nil {
				resp.BatchNumber = alloc.Batch.BatchNumber
				resp.ExpiryDate = alloc.Batch.ExpiryDate
			}
			allocations = append(allocations, resp)
		}
		items = append(items, orderItemResponse{
			ID:           item.ID,
			ProductID:    item.ProductID,
			UnitPrice:    item.UnitPrice,
			Qty:          item.Qty,
			LineTotal:    item.LineTotal,
			Note:         item.Note,
			AllocatedQty: item.AllocatedQty(),
			Allocations:  allocations,
		})
	}
	return orderResponse{
		ID:                   order.ID,
		UserID:               order.UserID,
		Status:               string(order.Status),
		PaymentMethod:        string(order.PaymentMethod),
		Subtotal:             order.Subtotal,
		ShippingCost:         order.ShippingCost,
		Total:                order.Total,
		Courier:              order.Courier,
		CourierService:       order.CourierService,
		DestinationCityID:    order.DestinationCityID,
		Address:              order.Address,
		Phone:                order.Phone,
		PaymentProofURL:      order.PaymentProofURL,
		TrackingNumber:       order.TrackingNumber,
		ReservationExpiresAt: order.ReservationExpiresAt,
		CreatedAt:            order.CreatedAt,
		Items:                items,
	}
}

func newOrderResponses(list []models.Order) []orderResponse {
	out := make([]orderResponse, 0, len(list))
	for i := range list {
		out = append(out, newOrderResponse(&list[i]))
	}
	return out
}

package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmararief/dante-propolis/api/responses"
	"github.com/mmararief/dante-propolis/api/validators"
	checkoutsvc "github.com/mmararief/dante-propolis/internal/checkout"
	"github.com/mmararief/dante-propolis/pkg/enums"
	pkgerrors "github.com/mmararief/dante-propolis/pkg/errors"
	"github.com/mmararief/dante-propolis/pkg/logger"
)

// Checkout prices the cart, creates an unpaid order and reserves stock for it.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payload.ShippingCost.IsNegative() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "shipping cost cannot be negative"))
			return
		}
		method, err := enums.ParsePaymentMethod(payload.PaymentMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported payment method"))
			return
		}

		input := checkoutsvc.Input{
			UserID:            actor.UserID,
			PaymentMethod:     method,
			Courier:           payload.Courier,
			CourierService:    payload.CourierService,
			DestinationCityID: payload.DestinationCityID,
			Address:           validators.SanitizeString(payload.Address, 500),
			Phone:             validators.SanitizeString(payload.Phone, 20),
			ShippingCost:      payload.ShippingCost,
			Items:             make([]checkoutsvc.ItemInput, 0, len(payload.Items)),
		}
		for _, item := range payload.Items {
			input.Items = append(input.Items, checkoutsvc.ItemInput{
				ProductID: item.ProductID,
				Qty:       item.Qty,
				TierID:    item.TierID,
				Note:      item.Note,
			})
		}

		order, err := svc.Execute(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderResponse(order))
	}
}

type checkoutRequest struct {
	PaymentMethod     string                `json:"payment_method" validate:"required,payment_method"`
	Courier           *string               `json:"courier,omitempty" validate:"omitempty,max=32"`
	CourierService    *string               `json:"courier_service,omitempty" validate:"omitempty,max=64"`
	DestinationCityID int                   `json:"destination_city_id" validate:"required,min=1"`
	Address           string                `json:"address" validate:"required,max=500"`
	Phone             string                `json:"phone" validate:"required,max=20"`
	ShippingCost      decimal.Decimal       `json:"shipping_cost"`
	Items             []checkoutItemRequest `json:"items" validate:"required,min=1,dive"`
}

type checkoutItemRequest struct {
	ProductID uuid.UUID  `json:"product_id" validate:"required"`
	Qty       int        `json:"qty" validate:"required,min=1"`
	TierID    *uuid.UUID `json:"tier_id,omitempty"`
	Note      *string    `json:"note,omitempty" validate:"omitempty,max=100"`
}

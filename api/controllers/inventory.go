package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmararief/dante-propolis/api/responses"
	"github.com/mmararief/dante-propolis/api/validators"
	"github.com/mmararief/dante-propolis/internal/inventory"
	"github.com/mmararief/dante-propolis/pkg/db/models"
	pkgerrors "github.com/mmararief/dante-propolis/pkg/errors"
	"github.com/mmararief/dante-propolis/pkg/logger"
)

type createBatchRequest struct {
	BatchNumber string          `json:"batch_number" validate:"required,max=64"`
	Qty         int             `json:"qty" validate:"required,min=1"`
	ExpiryDate  *time.Time      `json:"expiry_date,omitempty"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
}

type adjustBatchRequest struct {
	Delta int    `json:"delta" validate:"required"`
	Note  string `json:"note" validate:"required,max=255"`
}

type batchResponse struct {
	ID           uuid.UUID       `json:"id"`
	ProductID    uuid.UUID       `json:"product_id"`
	BatchNumber  string          `json:"batch_number"`
	InitialQty   int             `json:"initial_qty"`
	RemainingQty int             `json:"remaining_qty"`
	ReservedQty  int             `json:"reserved_qty"`
	AvailableQty int             `json:"available_qty"`
	ExpiryDate   *time.Time      `json:"expiry_date,omitempty"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
}

func newBatchResponse(batch *models.Batch) batchResponse {
	return batchResponse{
		ID:           batch.ID,
		ProductID:    batch.ProductID,
		BatchNumber:  batch.BatchNumber,
		InitialQty:   batch.InitialQty,
		RemainingQty: batch.RemainingQty,
		ReservedQty:  batch.ReservedQty,
		AvailableQty: batch.Available(),
		ExpiryDate:   batch.ExpiryDate,
		UnitCost:     batch.UnitCost,
	}
}

// CreateBatch receives a new batch of stock for a product.
func CreateBatch(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload createBatchRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payload.UnitCost.IsNegative() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unit cost cannot be negative"))
			return
		}

		batch, err := svc.CreateBatch(r.Context(), inventory.NewBatch{
			ProductID:   productID,
			BatchNumber: validators.SanitizeString(payload.BatchNumber, 64),
			Qty:         payload.Qty,
			ExpiryDate:  payload.ExpiryDate,
			UnitCost:    payload.UnitCost,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newBatchResponse(batch))
	}
}

// AdjustBatch applies a signed stock correction to a batch.
func AdjustBatch(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		batchID, err := validators.ParseUUIDParam(r, "batchId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload adjustBatchRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		batch, err := svc.AdjustBatch(r.Context(), batchID, payload.Delta, validators.SanitizeString(payload.Note, 255))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newBatchResponse(batch))
	}
}

// ProductBatches lists per-batch quantities for a product in FEFO order.
func ProductBatches(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		batches, err := svc.BatchQuantities(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, batches)
	}
}

// ProductStockTotals sums batch quantities per product.
func ProductStockTotals(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		totals, err := svc.ProductTotals(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, totals)
	}
}

// BatchAudit replays a batch's movements and compares them with its counters.
func BatchAudit(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		batchID, err := validators.ParseUUIDParam(r, "batchId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		report, err := svc.Audit(r.Context(), batchID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

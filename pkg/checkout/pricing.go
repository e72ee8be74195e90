// Package checkout prices order lines against product price tiers.
package checkout

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmararief/dante-propolis/pkg/db/models"
	pkgerrors "github.com/mmararief/dante-propolis/pkg/errors"
)

// Line is one requested product and quantity.
type Line struct {
	ProductID uuid.UUID
	Qty       int
	TierID    *uuid.UUID
	Note      *string
}

// PricedLine is a line with its resolved unit price.
type PricedLine struct {
	ProductID uuid.UUID
	Qty       int
	TierID    *uuid.UUID
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
	Note      *string
}

// Quote is the priced order before it is persisted.
type Quote struct {
	Lines        []PricedLine
	Subtotal     decimal.Decimal
	ShippingCost decimal.Decimal
	Total        decimal.Decimal
	WeightGrams  int
}

// ResolveTier picks the tier for qty. An explicitly requested tier wins when
// it belongs to the product; otherwise the covering tier with the highest
// min_qty is used. Nil means the retail price applies.
func ResolveTier(tiers []models.PriceTier, qty int, requested *uuid.UUID) *models.PriceTier {
	if requested != nil {
		for i := range tiers {
			if tiers[i].ID == *requested {
				return &tiers[i]
			}
		}
	}
	var best *models.PriceTier
	for i := range tiers {
		tier := &tiers[i]
		if !tier.Covers(qty) {
			continue
		}
		if best == nil || tier.MinQty > best.MinQty {
			best = tier
		}
	}
	return best
}

// Price computes unit prices, line totals and the order total. products must
// carry their PriceTiers.
func Price(products map[uuid.UUID]*models.Product, lines []Line, shipping decimal.Decimal) (*Quote, error) {
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	if shipping.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping cost must not be negative")
	}

	quote := &Quote{Subtotal: decimal.Zero, ShippingCost: shipping}
	for _, line := range lines {
		if line.Qty <= 0 {
			return nil, pkgerrors.InvalidQuantity(line.Qty)
		}
		product, ok := products[line.ProductID]
		if !ok || product == nil {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("product %s not found", line.ProductID))
		}

		unit := product.RetailPrice
		var tierID *uuid.UUID
		if tier := ResolveTier(product.PriceTiers, line.Qty, line.TierID); tier != nil {
			unit = tier.UnitPrice
			id := tier.ID
			tierID = &id
		}
		total := unit.Mul(decimal.NewFromInt(int64(line.Qty)))

		quote.Lines = append(quote.Lines, PricedLine{
			ProductID: line.ProductID,
			Qty:       line.Qty,
			TierID:    tierID,
			UnitPrice: unit,
			LineTotal: total,
			Note:      line.Note,
		})
		quote.Subtotal = quote.Subtotal.Add(total)
		quote.WeightGrams += product.WeightGrams * line.Qty
	}
	quote.Total = quote.Subtotal.Add(shipping)
	return quote, nil
}

package checkout

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmararief/dante-propolis/pkg/db/models"
	pkgerrors "github.com/mmararief/dante-propolis/pkg/errors"
)

func intPtr(v int) *int { return &v }

func propolis() *models.Product {
	id := uuid.New()
	return &models.Product{
		ID:          id,
		SKU:         "PRP-30ML",
		RetailPrice: decimal.NewFromInt(100000),
		WeightGrams: 100,
		PriceTiers: []models.PriceTier{
			{ID: uuid.New(), ProductID: id, MinQty: 3, MaxQty: intPtr(9), UnitPrice: decimal.NewFromInt(90000)},
			{ID: uuid.New(), ProductID: id, MinQty: 10, UnitPrice: decimal.NewFromInt(80000)},
			{ID: uuid.New(), ProductID: id, MinQty: 1, MaxQty: intPtr(100), UnitPrice: decimal.NewFromInt(95000)},
		},
	}
}

func TestResolveTierPicksHighestCoveringMinimum(t *testing.T) {
	product := propolis()
	cases := []struct {
		qty  int
		want string
	}{
		{qty: 1, want: "95000"},
		{qty: 3, want: "90000"},
		{qty: 12, want: "80000"},
	}
	for _, tc := range cases {
		tier := ResolveTier(product.PriceTiers, tc.qty, nil)
		if tier == nil {
			t.Fatalf("qty %d: expected tier", tc.qty)
		}
		if tier.UnitPrice.String() != tc.want {
			t.Fatalf("qty %d: expected %s, got %s", tc.qty, tc.want, tier.UnitPrice)
		}
	}
}

func TestResolveTierHonoursRequestedTier(t *testing.T) {
	product := propolis()
	requested := product.PriceTiers[1].ID
	tier := ResolveTier(product.PriceTiers, 2, &requested)
	if tier == nil || tier.ID != requested {
		t.Fatalf("expected requested tier, got %+v", tier)
	}

	foreign := uuid.New()
	tier = ResolveTier(product.PriceTiers, 2, &foreign)
	if tier == nil || tier.UnitPrice.String() != "95000" {
		t.Fatalf("expected fallback to covering tier, got %+v", tier)
	}
}

func TestPriceFallsBackToRetailAndAddsShipping(t *testing.T) {
	product := propolis()
	product.PriceTiers = nil
	quote, err := Price(map[uuid.UUID]*models.Product{product.ID: product}, []Line{{ProductID: product.ID, Qty: 2}}, decimal.NewFromInt(18000))
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if quote.Subtotal.String() != "200000" {
		t.Fatalf("unexpected subtotal %s", quote.Subtotal)
	}
	if quote.Total.String() != "218000" {
		t.Fatalf("unexpected total %s", quote.Total)
	}
	if quote.WeightGrams != 200 {
		t.Fatalf("unexpected weight %d", quote.WeightGrams)
	}
	if quote.Lines[0].TierID != nil {
		t.Fatalf("retail line must not carry a tier")
	}
}

func TestPriceRejectsBadInput(t *testing.T) {
	product := propolis()
	products := map[uuid.UUID]*models.Product{product.ID: product}

	if _, err := Price(products, nil, decimal.Zero); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for empty lines, got %v", err)
	}
	if _, err := Price(products, []Line{{ProductID: product.ID, Qty: 0}}, decimal.Zero); !pkgerrors.IsCode(err, pkgerrors.CodeInvalidQuantity) {
		t.Fatalf("expected invalid quantity, got %v", err)
	}
	if _, err := Price(products, []Line{{ProductID: uuid.New(), Qty: 1}}, decimal.Zero); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := Price(products, []Line{{ProductID: product.ID, Qty: 1}}, decimal.NewFromInt(-1)); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for negative shipping, got %v", err)
	}
}

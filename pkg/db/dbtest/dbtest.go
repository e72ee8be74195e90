// Package dbtest opens throwaway sqlite databases carrying the full schema.
package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mmararief/dante-propolis/pkg/db"
	"github.com/mmararief/dante-propolis/pkg/db/models"
	"github.com/mmararief/dante-propolis/pkg/enums"
)

// Open returns an isolated in-memory database migrated with every model.
// The pool is pinned to one connection so transactions serialize the way
// row locks would on a real server.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:dante_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return conn
}

// Client wraps Open in a db.Client so tests can use WithTx and RetryTx.
func Client(t testing.TB) *db.Client {
	t.Helper()
	return db.Wrap(Open(t))
}

// SeedProduct inserts a product with the given SKU and retail price.
func SeedProduct(t testing.TB, conn *gorm.DB, sku string, retail decimal.Decimal) *models.Product {
	t.Helper()
	product := &models.Product{SKU: sku, Name: "Product " + sku, RetailPrice: retail, WeightGrams: 250}
	if err := conn.Create(product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

// ItemSeed is one line of a seeded order.
type ItemSeed struct {
	ProductID uuid.UUID
	Qty       int
}

// SeedOrder inserts an order with items and no allocations.
func SeedOrder(t testing.TB, conn *gorm.DB, status enums.OrderStatus, items ...ItemSeed) *models.Order {
	t.Helper()
	order := &models.Order{
		UserID:            uuid.New(),
		Status:            status,
		PaymentMethod:     enums.PaymentMethodBCA,
		Subtotal:          decimal.Zero,
		ShippingCost:      decimal.Zero,
		Total:             decimal.Zero,
		DestinationCityID: 151,
		Address:           "Jl. Merdeka 1",
		Phone:             "08123456789",
	}
	for _, item := range items {
		order.Items = append(order.Items, models.OrderItem{
			ProductID: item.ProductID,
			UnitPrice: decimal.NewFromInt(1000),
			Qty:       item.Qty,
			LineTotal: decimal.NewFromInt(int64(1000 * item.Qty)),
		})
	}
	if err := conn.Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

package reclaim

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mmararief/dante-propolis/internal/allocation"
	"github.com/mmararief/dante-propolis/internal/inventory"
	"github.com/mmararief/dante-propolis/internal/orders"
	"github.com/mmararief/dante-propolis/internal/reservation"
	"github.com/mmararief/dante-propolis/pkg/db"
	"github.com/mmararief/dante-propolis/pkg/db/dbtest"
	"github.com/mmararief/dante-propolis/pkg/db/models"
	"github.com/mmararief/dante-propolis/pkg/enums"
	"github.com/mmararief/dante-propolis/pkg/logger"
	"github.com/mmararief/dante-propolis/pkg/outbox"
	"github.com/mmararief/dante-propolis/pkg/outbox/payloads"
)

type harness struct {
	conn      *gorm.DB
	ledger    *inventory.Ledger
	engine    *reservation.Engine
	commit    *allocation.Service
	reclaimer *Reclaimer
	now       time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	client := dbtest.Client(t)
	conn := client.DB()
	ledger := inventory.NewLedger(nil)
	engine, err := reservation.NewEngine(ledger, time.Hour, nil)
	require.NoError(t, err)

	policy := db.RetryPolicy{Attempts: 2, Backoff: time.Millisecond}
	emitter := outbox.NewService(outbox.NewRepository(conn), nil)
	logg := logger.New(logger.Options{ServiceName: "reclaim-test", Output: io.Discard})
	commit, err := allocation.NewService(allocation.Params{
		DB:     client,
		Policy: policy,
		Orders: orders.NewRepository(conn),
		Ledger: ledger,
		Outbox: emitter,
		Logger: logg,
	})
	require.NoError(t, err)
	reclaimer, err := NewReclaimer(Params{
		DB:        client,
		Policy:    policy,
		Orders:    orders.NewRepository(conn),
		Ledger:    ledger,
		Outbox:    emitter,
		Logger:    logg,
		BatchSize: 10,
	})
	require.NoError(t, err)

	h := &harness{conn: conn, ledger: ledger, engine: engine, commit: commit, reclaimer: reclaimer}
	h.now = time.Now().UTC()
	reclaimer.now = func() time.Time { return h.now }
	return h
}

func (h *harness) stockedProduct(t *testing.T, qty int) (*models.Product, *models.Batch) {
	t.Helper()
	product := dbtest.SeedProduct(t, h.conn, "PRP-"+uuid.NewString()[:8], decimal.NewFromInt(40000))
	var batch *models.Batch
	require.NoError(t, h.conn.Transaction(func(tx *gorm.DB) error {
		var err error
		batch, err = h.ledger.CreateBatch(context.Background(), tx, inventory.NewBatch{ProductID: product.ID, Qty: qty})
		return err
	}))
	return product, batch
}

func (h *harness) reserve(t *testing.T, productID uuid.UUID, qty int) *models.Order {
	t.Helper()
	order := dbtest.SeedOrder(t, h.conn, enums.OrderStatusUnpaid, dbtest.ItemSeed{ProductID: productID, Qty: qty})
	require.NoError(t, h.conn.Transaction(func(tx *gorm.DB) error {
		_, err := h.engine.ReserveForOrder(context.Background(), tx, order.ID)
		return err
	}))
	return order
}

func (h *harness) batch(t *testing.T, id uuid.UUID) models.Batch {
	t.Helper()
	var batch models.Batch
	require.NoError(t, h.conn.First(&batch, "id = ?", id).Error)
	return batch
}

func (h *harness) order(t *testing.T, id uuid.UUID) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, h.conn.First(&order, "id = ?", id).Error)
	return order
}

func TestRunExpiryReleaseReturnsStockAfterDeadline(t *testing.T) {
	h := newHarness(t)
	product, batch := h.stockedProduct(t, 10)
	order := h.reserve(t, product.ID, 4)
	before := h.batch(t, batch.ID)
	require.Equal(t, 4, before.ReservedQty)

	released, err := h.reclaimer.RunExpiryRelease(context.Background())
	require.NoError(t, err)
	assert.Zero(t, released)

	h.now = h.now.Add(2 * time.Hour)
	released, err = h.reclaimer.RunExpiryRelease(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	after := h.batch(t, batch.ID)
	assert.Equal(t, 0, after.ReservedQty)
	assert.Equal(t, before.RemainingQty, after.RemainingQty)
	assert.Equal(t, before.InitialQty, after.InitialQty)

	stored := h.order(t, order.ID)
	assert.Equal(t, enums.OrderStatusCancelled, stored.Status)
	assert.Nil(t, stored.ReservationExpiresAt)

	var allocations int64
	require.NoError(t, h.conn.Model(&models.OrderItemBatchAllocation{}).Count(&allocations).Error)
	assert.Zero(t, allocations)

	var event models.OutboxEvent
	require.NoError(t, h.conn.Where("aggregate_id = ? AND event_type = ?", order.ID, enums.EventOrderReservationExpired).First(&event).Error)
	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(event.Payload, &envelope))
	var payload payloads.ReservationExpiredEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &payload))
	require.Len(t, payload.Released, 1)
	assert.Equal(t, 4, payload.Released[0].Qty)
	assert.Equal(t, enums.OrderStatusUnpaid, payload.PreviousStatus)

	released, err = h.reclaimer.RunExpiryRelease(context.Background())
	require.NoError(t, err)
	assert.Zero(t, released)

	report, err := h.ledger.VerifyConservation(context.Background(), h.conn, batch.ID)
	require.NoError(t, err)
	assert.True(t, report.Balanced)

	fresh := h.reserve(t, product.ID, 10)
	assert.Equal(t, enums.OrderStatusUnpaid, h.order(t, fresh.ID).Status)
	assert.Equal(t, 10, h.batch(t, batch.ID).ReservedQty)
	assert.Zero(t, h.batch(t, batch.ID).Available())
}

func TestRunExpiryReleaseSkipsCommittedOrders(t *testing.T) {
	h := newHarness(t)
	product, batch := h.stockedProduct(t, 10)
	paid := h.reserve(t, product.ID, 3)
	abandoned := h.reserve(t, product.ID, 2)

	_, err := h.commit.CommitAllocation(context.Background(), paid.ID, nil)
	require.NoError(t, err)

	h.now = h.now.Add(2 * time.Hour)
	released, err := h.reclaimer.RunExpiryRelease(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	assert.Equal(t, enums.OrderStatusProcessing, h.order(t, paid.ID).Status)
	assert.Equal(t, enums.OrderStatusCancelled, h.order(t, abandoned.ID).Status)

	got := h.batch(t, batch.ID)
	assert.Equal(t, 7, got.RemainingQty)
	assert.Equal(t, 0, got.ReservedQty)
}

func TestRunExpiryReleaseCoversAwaitingConfirmation(t *testing.T) {
	h := newHarness(t)
	product, batch := h.stockedProduct(t, 5)
	order := h.reserve(t, product.ID, 5)
	require.NoError(t, h.conn.Model(&models.Order{}).Where("id = ?", order.ID).
		Update("status", enums.OrderStatusAwaitingConfirmation).Error)

	h.now = h.now.Add(2 * time.Hour)
	released, err := h.reclaimer.RunExpiryRelease(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, released)
	assert.Equal(t, 5, h.batch(t, batch.ID).Available())
}

func TestRunExpiryReleaseMovesPastFailingOrder(t *testing.T) {
	h := newHarness(t)
	h.reclaimer.batchSize = 1

	brokenProduct, brokenBatch := h.stockedProduct(t, 5)
	broken := h.reserve(t, brokenProduct.ID, 2)
	healthyProduct, healthyBatch := h.stockedProduct(t, 5)
	healthy := h.reserve(t, healthyProduct.ID, 3)

	require.NoError(t, h.conn.Model(&models.Order{}).Where("id = ?", broken.ID).
		UpdateColumn("reservation_expires_at", h.now.Add(-time.Hour)).Error)
	require.NoError(t, h.conn.Model(&models.Batch{}).Where("id = ?", brokenBatch.ID).
		UpdateColumn("reserved_qty", 0).Error)

	h.now = h.now.Add(2 * time.Hour)
	released, err := h.reclaimer.RunExpiryRelease(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), broken.ID.String())
	assert.Equal(t, 1, released)

	assert.Equal(t, enums.OrderStatusUnpaid, h.order(t, broken.ID).Status)
	assert.Equal(t, enums.OrderStatusCancelled, h.order(t, healthy.ID).Status)
	assert.Equal(t, 5, h.batch(t, healthyBatch.ID).Available())
}

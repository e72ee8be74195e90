package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mmararief/dante-propolis/api/routes"
	"github.com/mmararief/dante-propolis/internal/allocation"
	checkoutsvc "github.com/mmararief/dante-propolis/internal/checkout"
	"github.com/mmararief/dante-propolis/internal/inventory"
	"github.com/mmararief/dante-propolis/internal/orders"
	product "github.com/mmararief/dante-propolis/internal/products"
	"github.com/mmararief/dante-propolis/internal/reclaim"
	"github.com/mmararief/dante-propolis/internal/reports"
	"github.com/mmararief/dante-propolis/internal/reservation"
	"github.com/mmararief/dante-propolis/internal/shipping"
	"github.com/mmararief/dante-propolis/pkg/config"
	"github.com/mmararief/dante-propolis/pkg/db"
	"github.com/mmararief/dante-propolis/pkg/logger"
	"github.com/mmararief/dante-propolis/pkg/metrics"
	"github.com/mmararief/dante-propolis/pkg/outbox"
	"github.com/mmararief/dante-propolis/pkg/rajaongkir"
	"github.com/mmararief/dante-propolis/pkg/redis"
)

func buildDependencies(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, reg prometheus.Registerer) (routes.Dependencies, error) {
	conn := dbClient.DB()
	invMetrics := metrics.NewInventoryMetrics(reg)
	policy := db.PolicyFromConfig(cfg.Reservation)

	ledger := inventory.NewLedger(invMetrics)
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	ordersRepo := orders.NewRepository(conn)

	engine, err := reservation.NewEngine(ledger, cfg.Reservation.HoldDuration, invMetrics)
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("reservation engine: %w", err)
	}
	checkout, err := checkoutsvc.NewService(checkoutsvc.Params{
		DB:          dbClient,
		Policy:      policy,
		Products:    checkoutsvc.NewProductRepository(conn),
		Orders:      ordersRepo,
		Reservation: engine,
		Outbox:      emitter,
	})
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("checkout service: %w", err)
	}
	ordersSvc, err := orders.NewService(ordersRepo, dbClient, emitter)
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("orders service: %w", err)
	}
	allocator, err := allocation.NewService(allocation.Params{
		DB:      dbClient,
		Policy:  policy,
		Orders:  ordersRepo,
		Ledger:  ledger,
		Outbox:  emitter,
		Logger:  logg,
		Metrics: invMetrics,
	})
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("allocation service: %w", err)
	}
	reclaimer, err := reclaim.NewReclaimer(reclaim.Params{
		DB:        dbClient,
		Policy:    policy,
		Orders:    ordersRepo,
		Ledger:    ledger,
		Outbox:    emitter,
		Logger:    logg,
		Metrics:   invMetrics,
		BatchSize: cfg.Reservation.SweepBatchSize,
	})
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("reclaimer: %w", err)
	}
	inventorySvc, err := inventory.NewService(dbClient, conn, ledger, emitter)
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("inventory service: %w", err)
	}
	productSvc, err := product.NewService(product.NewRepository(conn))
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("product service: %w", err)
	}
	reportSvc, err := reports.NewService(conn)
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("reports service: %w", err)
	}
	shippingSvc, err := buildShipping(cfg.Shipping, logg, redisClient)
	if err != nil {
		return routes.Dependencies{}, err
	}

	return routes.Dependencies{
		DB:         dbClient,
		Redis:      redisClient,
		Checkout:   checkout,
		Orders:     ordersSvc,
		Allocation: allocator,
		Reclaimer:  reclaimer,
		Inventory:  inventorySvc,
		Products:   productSvc,
		Reports:    reportSvc,
		Shipping:   shippingSvc,
	}, nil
}

// buildShipping returns nil when no provider key is configured; the shipping
// routes are then left unmounted.
func buildShipping(cfg config.ShippingConfig, logg *logger.Logger, cache shipping.Cache) (shipping.Service, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		logg.Warn(context.Background(), "shipping api key not set, shipping routes disabled")
		return nil, nil
	}
	client, err := rajaongkir.NewClient(cfg.APIKey,
		rajaongkir.WithBaseURL(cfg.BaseURL),
		rajaongkir.WithTimeout(cfg.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("shipping client: %w", err)
	}
	svc, err := shipping.NewService(shipping.Params{
		Provider: client,
		Cache:    cache,
		TTL:      cfg.CacheTTL,
		Logger:   logg,
	})
	if err != nil {
		return nil, fmt.Errorf("shipping service: %w", err)
	}
	return svc, nil
}

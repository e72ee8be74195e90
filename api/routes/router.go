package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mmararief/dante-propolis/api/controllers"
	"github.com/mmararief/dante-propolis/api/middleware"
	checkoutsvc "github.com/mmararief/dante-propolis/internal/checkout"
	"github.com/mmararief/dante-propolis/internal/inventory"
	"github.com/mmararief/dante-propolis/internal/orders"
	product "github.com/mmararief/dante-propolis/internal/products"
	"github.com/mmararief/dante-propolis/internal/reports"
	"github.com/mmararief/dante-propolis/internal/shipping"
	"github.com/mmararief/dante-propolis/pkg/config"
	"github.com/mmararief/dante-propolis/pkg/enums"
	"github.com/mmararief/dante-propolis/pkg/logger"
	"github.com/mmararief/dante-propolis/pkg/redis"
)

// Store is the Redis surface the HTTP layer needs for idempotency and
// throttling.
type Store interface {
	redis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Dependencies carries everything the router wires into handlers.
type Dependencies struct {
	DB         controllers.Pinger
	Redis      Store
	Readiness  map[string]controllers.Pinger
	Metrics    http.Handler
	Checkout   checkoutsvc.Service
	Orders     orders.Service
	Allocation controllers.AllocationCommitter
	Reclaimer  controllers.ExpiryReleaser
	Inventory  inventory.Service
	Products   product.Service
	Reports    reports.Service
	Shipping   shipping.Service
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins()),
	)

	readiness := map[string]controllers.Pinger{}
	if deps.DB != nil {
		readiness["database"] = deps.DB
	}
	if pinger, ok := deps.Redis.(controllers.Pinger); ok && pinger != nil {
		readiness["redis"] = pinger
	}
	for name, dep := range deps.Readiness {
		readiness[name] = dep
	}

	checkoutPolicy := middleware.NewRateLimitPolicy(
		"checkout",
		cfg.RateLimit.CheckoutWindow,
		cfg.RateLimit.CheckoutIPLimit,
		cfg.RateLimit.CheckoutUserLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readiness, logg))
	})
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", controllers.ListProducts(deps.Products, logg))
		r.Get("/{productId}", controllers.GetProduct(deps.Products, logg))
		r.Get("/{productId}/batches", controllers.ProductBatches(deps.Inventory, logg))
	})

	if deps.Shipping != nil {
		r.Route("/api/shipping", func(r chi.Router) {
			r.Get("/cost", controllers.ShippingCost(deps.Shipping, logg))
			r.Get("/provinces", controllers.ShippingProvinces(deps.Shipping, logg))
			r.Get("/cities", controllers.ShippingCities(deps.Shipping, logg))
		})
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.Redis, logg))

		r.With(middleware.RateLimit(checkoutPolicy, deps.Redis, logg)).
			Post("/api/checkout", controllers.Checkout(deps.Checkout, logg))

		r.Route("/api/orders", func(r chi.Router) {
			r.Get("/", controllers.ListOrders(deps.Orders, logg))
			r.Get("/{orderId}", controllers.GetOrder(deps.Orders, logg))
			r.Post("/{orderId}/payment-proof", controllers.AttachPaymentProof(deps.Orders, logg))
			r.Post("/{orderId}/complete", controllers.CompleteOrder(deps.Orders, logg))
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
		r.Use(middleware.Idempotency(deps.Redis, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.ListOrders(deps.Orders, logg))
			r.Get("/{orderId}", controllers.GetOrder(deps.Orders, logg))
			r.Post("/{orderId}/verify-payment", controllers.VerifyPayment(deps.Allocation, logg))
			r.Post("/{orderId}/ship", controllers.ShipOrder(deps.Orders, logg))
			r.Post("/{orderId}/complete", controllers.CompleteOrder(deps.Orders, logg))
		})

		r.Post("/reservations/release", controllers.ReleaseExpiredReservations(deps.Reclaimer, cfg.FeatureFlags.AdminTrigger, logg))

		r.Get("/inventory/products", controllers.ProductStockTotals(deps.Inventory, logg))
		r.Post("/products/{productId}/batches", controllers.CreateBatch(deps.Inventory, logg))
		r.Post("/batches/{batchId}/adjustments", controllers.AdjustBatch(deps.Inventory, logg))
		r.Get("/batches/{batchId}/audit", controllers.BatchAudit(deps.Inventory, logg))

		r.Route("/reports", func(r chi.Router) {
			r.Get("/batch-stock", controllers.BatchStockReport(deps.Reports, logg))
			r.Get("/batch-sales", controllers.BatchSalesReport(deps.Reports, logg))
		})

		if deps.Shipping != nil {
			r.Post("/shipping/cache/invalidate", controllers.InvalidateShippingCache(deps.Shipping, logg))
		}
	})

	return r
}

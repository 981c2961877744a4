package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dermashop/dermashop-backend/api/controllers"
	cartcontrollers "github.com/dermashop/dermashop-backend/api/controllers/cart"
	ordercontrollers "github.com/dermashop/dermashop-backend/api/controllers/orders"
	webhookcontrollers "github.com/dermashop/dermashop-backend/api/controllers/webhooks"
	"github.com/dermashop/dermashop-backend/api/middleware"
	"github.com/dermashop/dermashop-backend/internal/cart"
	"github.com/dermashop/dermashop-backend/internal/orders"
	"github.com/dermashop/dermashop-backend/internal/payments"
	"github.com/dermashop/dermashop-backend/internal/products"
	"github.com/dermashop/dermashop-backend/internal/reviews"
	"github.com/dermashop/dermashop-backend/internal/shipments"
	"github.com/dermashop/dermashop-backend/internal/skinanalysis"
	"github.com/dermashop/dermashop-backend/internal/webhooks"
	"github.com/dermashop/dermashop-backend/internal/withdrawals"
	"github.com/dermashop/dermashop-backend/pkg/config"
	"github.com/dermashop/dermashop-backend/pkg/enums"
	"github.com/dermashop/dermashop-backend/pkg/logger"
	pkgredis "github.com/dermashop/dermashop-backend/pkg/redis"
)

// Dependencies carries everything the HTTP surface dispatches to. A nil
// service still mounts its routes; the handlers answer with an internal error.
type Dependencies struct {
	DB    controllers.Pinger
	Redis *pkgredis.Client
	// Idempotency defaults to Redis when unset.
	Idempotency pkgredis.IdempotencyStore
	Gatherer    prometheus.Gatherer

	Cart          cart.Service
	Products      products.Service
	Orders        orders.Service
	Payments      payments.Service
	Shipments     shipments.Service
	Reviews       reviews.Service
	Withdrawals   withdrawals.Service
	SkinAnalysis  skinanalysis.Service
	Notifications controllers.NotificationsService
	Sockets       controllers.SocketServer

	PaymentWebhookGuard *webhooks.IdempotencyGuard
	CourierWebhookGuard *webhooks.IdempotencyGuard
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	readiness := map[string]controllers.Pinger{}
	if deps.DB != nil {
		readiness["db"] = deps.DB
	}
	if deps.Redis != nil {
		readiness["redis"] = deps.Redis
	}
	idempotencyStore := deps.Idempotency
	if idempotencyStore == nil && deps.Redis != nil {
		idempotencyStore = deps.Redis
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readiness, logg))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/bank-transfer", webhookcontrollers.BankTransfer(deps.Payments, guardOrNil(deps.PaymentWebhookGuard), cfg.Payments.WebhookSecret, logg))
		r.Post("/courier", webhookcontrollers.Courier(deps.Shipments, guardOrNil(deps.CourierWebhookGuard), cfg.Courier.WebhookSecret, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartcontrollers.CartFetch(deps.Cart, logg))
			r.Delete("/", cartcontrollers.CartClear(deps.Cart, logg))
			r.Post("/items", cartcontrollers.CartAddItem(deps.Cart, logg))
			r.Patch("/items/{productId}", cartcontrollers.CartUpdateItem(deps.Cart, logg))
			r.Delete("/items/{productId}", cartcontrollers.CartRemoveItem(deps.Cart, logg))
			r.Patch("/items/{productId}/select", cartcontrollers.CartSelectItem(deps.Cart, logg))
			r.Patch("/select-all", cartcontrollers.CartSelectAll(deps.Cart, logg))
			r.Get("/selected", cartcontrollers.CartSelectedItems(deps.Cart, logg))
			r.Delete("/selected", cartcontrollers.CartRemoveSelected(deps.Cart, logg))
			r.Post("/remove-items", cartcontrollers.CartRemoveItems(deps.Cart, logg))
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ListProducts(deps.Products, logg))
			r.Get("/{productId}", controllers.GetProduct(deps.Products, logg))
			r.Get("/{productId}/reviews", controllers.ListProductReviews(deps.Reviews, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", ordercontrollers.Checkout(deps.Orders, logg))
			r.Get("/", ordercontrollers.List(deps.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
			r.Post("/{orderId}/cancel", ordercontrollers.Cancel(deps.Orders, logg))
			r.Get("/{orderId}/tracking", ordercontrollers.Tracking(deps.Shipments, logg))
		})

		r.Route("/reviews", func(r chi.Router) {
			r.Post("/", controllers.CreateReview(deps.Reviews, logg))
			r.Patch("/{reviewId}", controllers.UpdateReview(deps.Reviews, logg))
			r.Delete("/{reviewId}", controllers.DeleteReview(deps.Reviews, logg))
		})

		r.Route("/withdrawals", func(r chi.Router) {
			r.Post("/", controllers.CreateWithdrawal(deps.Withdrawals, logg))
			r.Get("/", controllers.ListMyWithdrawals(deps.Withdrawals, logg))
			r.Post("/{id}/cancel", controllers.CancelWithdrawal(deps.Withdrawals, logg))
		})

		r.Route("/skin-analyses", func(r chi.Router) {
			r.Post("/", controllers.CreateSkinAnalysis(deps.SkinAnalysis, cfg.SkinAnalysis.MaxUploadBytes(), logg))
			r.Get("/", controllers.ListSkinAnalyses(deps.SkinAnalysis, logg))
			r.Get("/{id}", controllers.GetSkinAnalysis(deps.SkinAnalysis, logg))
			r.Delete("/{id}", controllers.DeleteSkinAnalysis(deps.SkinAnalysis, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
			r.Get("/ws", controllers.NotificationsSocket(deps.Sockets, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.RoleAdmin, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Post("/products", controllers.AdminCreateProduct(deps.Products, logg))
		r.Post("/orders/{orderId}/shipments", controllers.AdminCreateShipment(deps.Shipments, logg))
		r.Post("/withdrawals/{id}/process", controllers.AdminProcessWithdrawal(deps.Withdrawals, logg))
	})

	return r
}

// guardOrNil keeps a nil *IdempotencyGuard from becoming a non-nil interface.
func guardOrNil(g *webhooks.IdempotencyGuard) webhookcontrollers.EventGuard {
	if g == nil {
		return nil
	}
	return g
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dermashop/dermashop-backend/api/routes"
	"github.com/dermashop/dermashop-backend/internal/cart"
	"github.com/dermashop/dermashop-backend/internal/notifications"
	"github.com/dermashop/dermashop-backend/internal/orders"
	"github.com/dermashop/dermashop-backend/internal/payments"
	"github.com/dermashop/dermashop-backend/internal/products"
	"github.com/dermashop/dermashop-backend/internal/reviews"
	"github.com/dermashop/dermashop-backend/internal/shipments"
	"github.com/dermashop/dermashop-backend/internal/skinanalysis"
	"github.com/dermashop/dermashop-backend/internal/webhooks"
	"github.com/dermashop/dermashop-backend/internal/withdrawals"
	"github.com/dermashop/dermashop-backend/pkg/config"
	"github.com/dermashop/dermashop-backend/pkg/db"
	"github.com/dermashop/dermashop-backend/pkg/logger"
	"github.com/dermashop/dermashop-backend/pkg/metrics"
	"github.com/dermashop/dermashop-backend/pkg/migrate"
	"github.com/dermashop/dermashop-backend/pkg/pubsub"
	"github.com/dermashop/dermashop-backend/pkg/redis"
	"gorm.io/gorm"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	var publisher notifications.EventPublisher
	if cfg.PubSubEnabled() {
		pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
		pub, err := notifications.NewPubSubPublisher(pubsubClient)
		if err != nil {
			logg.Error(context.Background(), "failed to create notification publisher", err)
			os.Exit(1)
		}
		publisher = pub
	}

	sockets := notifications.NewRegistry()
	defer func() {
		if err := sockets.Close(); err != nil {
			logg.Warn(context.Background(), "error closing notification sockets")
		}
	}()

	deps, err := buildDependencies(cfg, logg, dbClient, redisClient, sockets, publisher)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	signals, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err, ok := <-serverErr:
		if ok && err != nil {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-signals.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Hijacked sockets are not tracked by Shutdown.
		if err := sockets.Close(); err != nil {
			logg.Warn(ctx, "error closing notification sockets")
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
	logg.Info(ctx, "api server stopped")
}

func buildDependencies(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	sockets *notifications.Registry,
	publisher notifications.EventPublisher,
) (routes.Dependencies, error) {
	conn := dbClient.DB()

	notificationService, err := notifications.NewService(notifications.ServiceParams{
		Repo:      notifications.NewRepository(conn),
		Pusher:    sockets,
		Publisher: publisher,
		Logger:    logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}
	gateway, err := notifications.NewGateway(sockets, logg)
	if err != nil {
		return routes.Dependencies{}, err
	}

	productRepo := products.NewRepository(conn)
	productService, err := products.NewService(productRepo)
	if err != nil {
		return routes.Dependencies{}, err
	}
	inventory := products.NewInventory(conn)

	cartStore, err := cart.NewRedisStore(redisClient)
	if err != nil {
		return routes.Dependencies{}, err
	}
	cartLocker, err := cart.NewRedisLocker(redisClient, cfg.Cart)
	if err != nil {
		return routes.Dependencies{}, err
	}
	cartService, err := cart.NewService(cart.ServiceParams{
		Store:     cartStore,
		Catalog:   productService,
		Inventory: inventory,
		Locker:    cartLocker,
		Metrics:   metrics.NewCartMetrics(prometheus.DefaultRegisterer),
		Logger:    logg,
		TTL:       cfg.Cart.TTL,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	orderRepo := orders.NewRepository(conn)
	orderService, err := orders.NewService(orders.ServiceParams{
		Repo:      orderRepo,
		Tx:        dbClient,
		Cart:      cartService,
		Inventory: inventory,
		Notifier:  notificationService,
		Logger:    logg,
		Payments:  cfg.Payments,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	paymentService, err := payments.NewService(payments.ServiceParams{
		Repo:      payments.NewRepository(conn),
		Orders:    orderRepo,
		Tx:        dbClient,
		Inventory: inventory,
		Notifier:  notificationService,
		Logger:    logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	shipmentService, err := shipments.NewService(shipments.ServiceParams{
		Repo:     shipments.NewRepository(conn),
		Orders:   orderRepo,
		Tx:       dbClient,
		Notifier: notificationService,
		Logger:   logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	reviewService, err := reviews.NewService(reviews.ServiceParams{
		Repo:      reviews.NewRepository(conn),
		Purchases: orderRepo,
		Ratings: func(tx *gorm.DB) reviews.RatingWriter {
			return products.NewRepository(tx)
		},
		Tx: dbClient,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	withdrawalService, err := withdrawals.NewService(withdrawals.ServiceParams{
		Repo:          withdrawals.NewRepository(conn),
		Tx:            dbClient,
		Notifier:      notificationService,
		Logger:        logg,
		MinimumAmount: cfg.Withdrawals.MinimumAmount,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	predictor, err := skinanalysis.NewInferenceClient(cfg.Inference)
	if err != nil {
		return routes.Dependencies{}, err
	}
	skinService, err := skinanalysis.NewService(skinanalysis.ServiceParams{
		Repo:      skinanalysis.NewRepository(conn),
		Predictor: predictor,
		Limiter:   redisClient,
		Logger:    logg,
		Config:    cfg.SkinAnalysis,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	paymentGuard, err := webhooks.NewIdempotencyGuard(redisClient, cfg.Payments.WebhookTTL, "bank_transfer")
	if err != nil {
		return routes.Dependencies{}, err
	}
	courierGuard, err := webhooks.NewIdempotencyGuard(redisClient, cfg.Courier.WebhookTTL, "courier")
	if err != nil {
		return routes.Dependencies{}, err
	}

	return routes.Dependencies{
		DB:                  dbClient,
		Redis:               redisClient,
		Gatherer:            prometheus.DefaultGatherer,
		Cart:                cartService,
		Products:            productService,
		Orders:              orderService,
		Payments:            paymentService,
		Shipments:           shipmentService,
		Reviews:             reviewService,
		Withdrawals:         withdrawalService,
		SkinAnalysis:        skinService,
		Notifications:       notificationService,
		Sockets:             gateway,
		PaymentWebhookGuard: paymentGuard,
		CourierWebhookGuard: courierGuard,
	}, nil
}

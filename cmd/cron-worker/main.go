package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dermashop/dermashop-backend/internal/cart"
	"github.com/dermashop/dermashop-backend/internal/cron"
	"github.com/dermashop/dermashop-backend/internal/notifications"
	"github.com/dermashop/dermashop-backend/internal/orders"
	"github.com/dermashop/dermashop-backend/internal/payments"
	"github.com/dermashop/dermashop-backend/internal/products"
	"github.com/dermashop/dermashop-backend/pkg/config"
	"github.com/dermashop/dermashop-backend/pkg/db"
	"github.com/dermashop/dermashop-backend/pkg/logger"
	"github.com/dermashop/dermashop-backend/pkg/metrics"
	"github.com/dermashop/dermashop-backend/pkg/migrate"
	"github.com/dermashop/dermashop-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron", cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	jobs, err := buildJobs(cfg, logg, dbClient, redisClient, metricsCollector)
	if err != nil {
		logg.Error(context.Background(), "failed to build cron jobs", err)
		os.Exit(1)
	}

	registry, err := cron.NewRegistry(jobs...)
	if err == nil {
		registry, err = registry.Select(cfg.Cron.Jobs)
	}
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metricsCollector,
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.LockTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"interval": cfg.Cron.Interval.String(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

// buildJobs wires the order expirer with the same collaborators the API uses.
// The worker holds no sockets, so expiry notifications are stored and
// published but not pushed.
func buildJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, collector *metrics.CronJobMetrics) ([]cron.Job, error) {
	conn := dbClient.DB()
	notificationRepo := notifications.NewRepository(conn)

	notificationService, err := notifications.NewService(notifications.ServiceParams{
		Repo:   notificationRepo,
		Logger: logg,
	})
	if err != nil {
		return nil, err
	}

	productService, err := products.NewService(products.NewRepository(conn))
	if err != nil {
		return nil, err
	}
	inventory := products.NewInventory(conn)

	cartStore, err := cart.NewRedisStore(redisClient)
	if err != nil {
		return nil, err
	}
	cartService, err := cart.NewService(cart.ServiceParams{
		Store:     cartStore,
		Catalog:   productService,
		Inventory: inventory,
		Logger:    logg,
		TTL:       cfg.Cart.TTL,
	})
	if err != nil {
		return nil, err
	}

	orderService, err := orders.NewService(orders.ServiceParams{
		Repo:      orders.NewRepository(conn),
		Tx:        dbClient,
		Cart:      cartService,
		Inventory: inventory,
		Notifier:  notificationService,
		Logger:    logg,
		Payments:  cfg.Payments,
	})
	if err != nil {
		return nil, err
	}

	expiry, err := cron.NewPaymentExpiryJob(cron.PaymentExpiryJobParams{
		Logger:   logg,
		Payments: payments.NewRepository(conn),
		Orders:   orderService,
		Metrics:  collector,
	})
	if err != nil {
		return nil, err
	}

	cleanup, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: notificationRepo,
		Metrics:    collector,
	})
	if err != nil {
		return nil, err
	}

	return []cron.Job{expiry, cleanup}, nil
}

package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/cashierhq/cashier-backend/api/routes"
	"github.com/cashierhq/cashier-backend/internal/billable"
	billingsvc "github.com/cashierhq/cashier-backend/internal/billing"
	"github.com/cashierhq/cashier-backend/internal/charges"
	"github.com/cashierhq/cashier-backend/internal/customers"
	"github.com/cashierhq/cashier-backend/internal/subscriptions"
	"github.com/cashierhq/cashier-backend/internal/users"
	razorpaywebhook "github.com/cashierhq/cashier-backend/internal/webhooks/razorpay"
	"github.com/cashierhq/cashier-backend/pkg/config"
	"github.com/cashierhq/cashier-backend/pkg/db"
	"github.com/cashierhq/cashier-backend/pkg/logger"
	"github.com/cashierhq/cashier-backend/pkg/metrics"
	"github.com/cashierhq/cashier-backend/pkg/migrate"
	"github.com/cashierhq/cashier-backend/pkg/razorpay"
	"github.com/cashierhq/cashier-backend/pkg/redis"
)

const webhookGuardScope = "razorpay-webhook"

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

	razorpayClient, err := razorpay.New(cfg.Razorpay)
	if err != nil {
		logg.Error(context.Background(), "failed to create razorpay client", err)
		os.Exit(1)
	}
	if !cfg.Razorpay.SignatureCheckEnabled() {
		logg.Warn(context.Background(), "razorpay webhook secret not set, signature verification disabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	webhookMetrics := metrics.NewWebhookMetrics(registry)

	billingRepo := billingsvc.NewRepository(dbClient.DB())
	userRepo := users.NewRepository(dbClient.DB())

	billingService, err := billingsvc.NewService(billingsvc.ServiceParams{
		Repo: billingRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create billing service", err)
		os.Exit(1)
	}

	customerService, err := customers.NewService(customers.ServiceParams{
		Gateway: razorpayClient,
		Users:   userRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create customer service", err)
		os.Exit(1)
	}

	chargeService, err := charges.NewService(charges.ServiceParams{
		Gateway: razorpayClient,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create charge service", err)
		os.Exit(1)
	}

	subscriptionService, err := subscriptions.NewService(subscriptions.ServiceParams{
		BillingRepo:       billingRepo,
		Gateway:           razorpayClient,
		Cache:             redisClient,
		Logger:            logg,
		TransactionRunner: dbClient,
		DeactivatePastDue: cfg.Razorpay.DeactivatePastDue,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscription service", err)
		os.Exit(1)
	}

	billableService, err := billable.NewService(billable.ServiceParams{
		Customers:     customerService,
		Charges:       chargeService,
		Subscriptions: subscriptionService,
		Receipts:      billingService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create billable service", err)
		os.Exit(1)
	}

	webhookService, err := razorpaywebhook.NewService(razorpaywebhook.ServiceParams{
		BillingRepo:       billingRepo,
		Users:             userRepo,
		TransactionRunner: dbClient,
		Notifier:          razorpaywebhook.NewLogNotifier(logg, webhookMetrics),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := razorpaywebhook.NewIdempotencyGuard(redisClient, cfg.Webhook.EventGuardTTL, webhookGuardScope)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":          cfg.App.Env,
		"addr":         addr,
		"webhook_path": cfg.Razorpay.WebhookPath,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:         cfg,
			Logger:         logg,
			DB:             dbClient,
			Redis:          redisClient,
			Registry:       registry,
			RazorpayClient: razorpayClient,
			WebhookService: webhookService,
			WebhookGuard:   webhookGuard,
			Users:          userRepo,
			Subscriptions:  subscriptionService,
			Billing:        billableService,
			Charges:        billableService,
			Customers:      billableService,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

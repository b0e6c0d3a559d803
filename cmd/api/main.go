package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vendiqhq/vendiq-backend/api/routes"
	"github.com/vendiqhq/vendiq-backend/internal/escalation"
	"github.com/vendiqhq/vendiq-backend/internal/inventory"
	internalorders "github.com/vendiqhq/vendiq-backend/internal/orders"
	"github.com/vendiqhq/vendiq-backend/internal/payments"
	"github.com/vendiqhq/vendiq-backend/internal/products"
	"github.com/vendiqhq/vendiq-backend/internal/sellers"
	"github.com/vendiqhq/vendiq-backend/pkg/config"
	"github.com/vendiqhq/vendiq-backend/pkg/db"
	"github.com/vendiqhq/vendiq-backend/pkg/gateway"
	"github.com/vendiqhq/vendiq-backend/pkg/logger"
	"github.com/vendiqhq/vendiq-backend/pkg/migrate"
	"github.com/vendiqhq/vendiq-backend/pkg/outbox"
	"github.com/vendiqhq/vendiq-backend/pkg/outbox/idempotency"
	"github.com/vendiqhq/vendiq-backend/pkg/redis"
)

const webhookGuardTTL = 24 * time.Hour

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

	gatewayClient, err := gateway.NewClient(context.Background(), cfg.Gateway, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap payment gateway", err)
		os.Exit(1)
	}

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	ordersRepo := internalorders.NewRepository(dbClient.DB())
	statsSink := sellers.NewStatsSink()

	pricer, err := internalorders.NewPricer(cfg.Pricing)
	if err != nil {
		logg.Error(context.Background(), "failed to build pricer", err)
		os.Exit(1)
	}

	escalationSvc, err := escalation.NewService(escalation.ServiceParams{
		Repo:      ordersRepo,
		Tx:        dbClient,
		Outbox:    outboxSvc,
		Stats:     statsSink,
		Evaluator: escalation.NewEvaluator(cfg.Escalation),
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create escalation service", err)
		os.Exit(1)
	}

	ordersSvc, err := internalorders.NewService(internalorders.ServiceParams{
		Repo:      ordersRepo,
		Tx:        dbClient,
		DB:        dbClient.DB(),
		Outbox:    outboxSvc,
		Catalog:   products.NewCatalog(),
		Ledger:    inventory.NewLedger(),
		Stats:     statsSink,
		Pricer:    pricer,
		Gateway:   gatewayClient,
		Escalator: escalationSvc,
		LeadTime:  cfg.Pricing.DeliveryLeadTime,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	paymentsSvc, err := payments.NewService(payments.ServiceParams{
		Repo:     ordersRepo,
		Tx:       dbClient,
		Outbox:   outboxSvc,
		Ledger:   inventory.NewLedger(),
		Verifier: payments.NewVerifier(gatewayClient.SigningSecret()),
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	webhookGuard, err := idempotency.NewManager(redisClient, webhookGuardTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

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
		Addr: addr,
		Handler: routes.NewRouter(
			cfg, logg, dbClient, redisClient,
			ordersSvc, paymentsSvc, webhookGuard, metricsHandler,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

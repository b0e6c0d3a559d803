package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vendiqhq/vendiq-backend/internal/escalation"
	internalorders "github.com/vendiqhq/vendiq-backend/internal/orders"
	"github.com/vendiqhq/vendiq-backend/internal/sellers"
	"github.com/vendiqhq/vendiq-backend/pkg/config"
	"github.com/vendiqhq/vendiq-backend/pkg/db"
	"github.com/vendiqhq/vendiq-backend/pkg/logger"
	"github.com/vendiqhq/vendiq-backend/pkg/metrics"
	"github.com/vendiqhq/vendiq-backend/pkg/migrate"
	"github.com/vendiqhq/vendiq-backend/pkg/outbox"
	"github.com/vendiqhq/vendiq-backend/pkg/redis"
)

const sweepLockTTL = 5 * time.Minute

func main() {
	logg := logger.New(logger.Options{ServiceName: "escalation-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "escalation-worker"

	logg = logger.New(logger.Options{
		ServiceName: "escalation-worker",
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

	ordersRepo := internalorders.NewRepository(dbClient.DB())

	service, err := escalation.NewService(escalation.ServiceParams{
		Repo:      ordersRepo,
		Tx:        dbClient,
		Outbox:    outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Stats:     sellers.NewStatsSink(),
		Evaluator: escalation.NewEvaluator(cfg.Escalation),
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create escalation service", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	sweeper, err := escalation.NewSweeper(escalation.SweeperParams{
		Repo:      ordersRepo,
		Service:   service,
		Locker:    redisClient,
		Metrics:   metrics.NewJobMetrics(registry),
		BatchSize: cfg.Escalation.SweepBatchSize,
		LockTTL:   sweepLockTTL,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create escalation sweeper", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":            cfg.App.Env,
		"serviceKind":    "escalation-worker",
		"sweep_interval": cfg.Escalation.SweepInterval.String(),
	})
	logg.Info(ctx, "starting escalation worker")

	go serveMetrics(ctx, cfg, logg, registry)

	ticker := time.NewTicker(cfg.Escalation.SweepInterval)
	defer ticker.Stop()

	runSweep(ctx, logg, sweeper)
	for {
		select {
		case <-ctx.Done():
			logg.Info(ctx, "escalation worker shutting down gracefully")
			return
		case <-ticker.C:
			runSweep(ctx, logg, sweeper)
		}
	}
}

func runSweep(ctx context.Context, logg *logger.Logger, sweeper *escalation.Sweeper) {
	promoted, err := sweeper.RunOnce(ctx)
	if err != nil {
		logCtx := logg.WithField(ctx, "promoted", promoted)
		logg.Error(logCtx, "escalation sweep failed", err)
	}
}

func serveMetrics(ctx context.Context, cfg *config.Config, logg *logger.Logger, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{Addr: ":" + cfg.App.Port, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "metrics server stopped unexpectedly", err)
	}
}

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/packfinderz-payouts/internal/commissions"
	"github.com/angelmondragon/packfinderz-payouts/internal/gateway/providers"
	"github.com/angelmondragon/packfinderz-payouts/internal/ledger"
	"github.com/angelmondragon/packfinderz-payouts/internal/settlement"
	"github.com/angelmondragon/packfinderz-payouts/internal/workflow"
	"github.com/angelmondragon/packfinderz-payouts/pkg/config"
	"github.com/angelmondragon/packfinderz-payouts/pkg/db"
	"github.com/angelmondragon/packfinderz-payouts/pkg/logger"
	"github.com/angelmondragon/packfinderz-payouts/pkg/metrics"
	"github.com/angelmondragon/packfinderz-payouts/pkg/migrate"
	"github.com/angelmondragon/packfinderz-payouts/pkg/outbox"
	"github.com/angelmondragon/packfinderz-payouts/pkg/outbox/idempotency"
	"github.com/angelmondragon/packfinderz-payouts/pkg/pubsub"
	"github.com/angelmondragon/packfinderz-payouts/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Environment: cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub", err)
		}
	}()

	registry, err := providers.Build(ctx, cfg, logg)
	if err != nil {
		logg.Error(ctx, "failed to configure payout providers", err)
		os.Exit(1)
	}

	commissionService, err := commissions.NewService(commissions.NewRepository(dbClient.DB()), dbClient, logg)
	if err != nil {
		logg.Error(ctx, "failed to create commission service", err)
		os.Exit(1)
	}
	ledgerService, err := ledger.NewService(ledger.NewRepository(dbClient.DB()), dbClient, logg)
	if err != nil {
		logg.Error(ctx, "failed to create ledger service", err)
		os.Exit(1)
	}
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg, "worker")

	settlementService, err := settlement.NewService(settlement.ServiceParams{
		Repo:        settlement.NewRepository(dbClient.DB()),
		Tx:          dbClient,
		Commissions: commissionService,
		Ledger:      ledgerService,
		Providers:   registry,
		Outbox:      outboxService,
		StepLog:     workflow.NewRepository(dbClient.DB()),
		Logger:      logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create settlement service", err)
		os.Exit(1)
	}

	dedup, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		logg.Error(ctx, "failed to create idempotency manager", err)
		os.Exit(1)
	}

	consumer, err := settlement.NewConsumer(settlement.ConsumerParams{
		Settler:      settlementService,
		Subscription: pubsubClient.PayoutsSubscription(),
		Idempotency:  dedup,
		Tx:           dbClient,
		Outbox:       outboxService,
		RetryDelay:   cfg.Payouts.ConsumerRetryDelay,
		Metrics:      metrics.NewPayoutMetrics(prometheus.DefaultRegisterer),
		Logger:       logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create settlement consumer", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Config:   cfg,
		Logger:   logg,
		DB:       dbClient,
		Redis:    redisClient,
		PubSub:   pubsubClient,
		Consumer: consumer,
	})
	if err != nil {
		logg.Error(ctx, "failed to create worker service", err)
		os.Exit(1)
	}

	logg.Info(ctx, "starting worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker exited with error", err)
		os.Exit(1)
	}
	logg.Info(context.Background(), "worker shutting down gracefully")
}

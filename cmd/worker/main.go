package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/adboardhq/moderation-backend/internal/moderation"
	"github.com/adboardhq/moderation-backend/internal/scoring"
	"github.com/adboardhq/moderation-backend/pkg/config"
	"github.com/adboardhq/moderation-backend/pkg/db"
	"github.com/adboardhq/moderation-backend/pkg/logger"
	"github.com/adboardhq/moderation-backend/pkg/metrics"
	"github.com/adboardhq/moderation-backend/pkg/migrate"
	"github.com/adboardhq/moderation-backend/pkg/pubsub"
	"github.com/adboardhq/moderation-backend/pkg/redis"
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

	moderationCache, err := moderation.NewCache(redisClient, redisClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create moderation cache", err)
		os.Exit(1)
	}

	dlq, err := moderation.NewDeadLetterPublisher(pubsubClient.DeadLetterPublisher(), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create dead letter publisher", err)
		os.Exit(1)
	}

	scorer := scoring.NewTimeoutScorer(scoring.NewModel(cfg.Scoring), cfg.Scoring.Timeout)
	pipelineMetrics := metrics.NewPipelineMetrics(prometheus.DefaultRegisterer)

	worker, err := moderation.NewWorker(moderation.WorkerParams{
		Repo:         moderation.NewRepository(dbClient.DB()),
		Tx:           dbClient,
		Scorer:       scorer,
		Subscription: pubsubClient.TaskSubscription(),
		Attempts:     redisClient,
		Keys:         redisClient,
		DLQ:          dlq,
		Cache:        moderationCache,
		Pipeline:     pipelineMetrics,
		Config:       cfg.Moderation,
		Logger:       logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create moderation worker", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Config: cfg,
		Logger: logg,
		DB:     dbClient,
		Redis:  redisClient,
		PubSub: pubsubClient,
		Worker: worker,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting moderation worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "worker shutting down gracefully")
}

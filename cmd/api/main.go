package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/adboardhq/moderation-backend/api/routes"
	"github.com/adboardhq/moderation-backend/internal/ads"
	"github.com/adboardhq/moderation-backend/internal/moderation"
	"github.com/adboardhq/moderation-backend/internal/scoring"
	"github.com/adboardhq/moderation-backend/internal/users"
	"github.com/adboardhq/moderation-backend/pkg/config"
	"github.com/adboardhq/moderation-backend/pkg/db"
	"github.com/adboardhq/moderation-backend/pkg/logger"
	"github.com/adboardhq/moderation-backend/pkg/migrate"
	"github.com/adboardhq/moderation-backend/pkg/pubsub"
	"github.com/adboardhq/moderation-backend/pkg/redis"
)

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

	usersService, err := users.NewService(users.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create users service", err)
		os.Exit(1)
	}

	adsRepo := ads.NewRepository(dbClient.DB())
	adsService, err := ads.NewService(adsRepo, dbClient, moderationCache, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create advertisements service", err)
		os.Exit(1)
	}

	moderationRepo := moderation.NewRepository(dbClient.DB())
	scorer := scoring.NewTimeoutScorer(scoring.NewModel(cfg.Scoring), cfg.Scoring.Timeout)

	moderationService, err := moderation.NewService(moderationRepo, moderationCache, scorer, adsRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create moderation service", err)
		os.Exit(1)
	}

	taskPublisher, err := moderation.NewTaskPublisher(pubsubClient.TaskPublisher(), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create task publisher", err)
		os.Exit(1)
	}

	producer, err := moderation.NewProducer(moderationRepo, adsRepo, taskPublisher, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create moderation producer", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, usersService, adsService, moderationService, producer),
	}

	go func() {
		<-ctx.Done()
		if err := server.Shutdown(context.Background()); err != nil {
			logg.Error(ctx, "error shutting down api server", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "api server shut down gracefully")
}

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"geostory-pipeline/internal/broker"
	"geostory-pipeline/internal/enrichment/config"
	"geostory-pipeline/internal/enrichment/delivery/consumer"
	"geostory-pipeline/internal/enrichment/repository"
	"geostory-pipeline/internal/enrichment/scorer"
	"geostory-pipeline/internal/enrichment/service"
	"geostory-pipeline/internal/entity"
	"geostory-pipeline/pkg/logger"
	"geostory-pipeline/pkg/postgres"
	"geostory-pipeline/pkg/redis"
	"geostory-pipeline/pkg/telegram"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the enrichment worker service",
	Run:   runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.New(cfg.Logger.Level, cfg.Logger.Encoding)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()

	appLogger.Info("Starting Enrichment Service", zap.String("name", cfg.App.Name))

	db, err := postgres.NewDB(postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		LogLevel:        cfg.Database.LogLevel,
	})
	if err != nil {
		appLogger.Fatal("Failed to initialize database", zap.Error(err))
	}
	if sqlDB, err := db.DB.DB(); err == nil {
		defer sqlDB.Close()
	}

	redisClient, err := redis.NewClient(redis.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		appLogger.Fatal("Failed to initialize Redis", zap.Error(err))
	}
	defer redisClient.Close()

	jobBroker := broker.New(redisClient.Client, cfg.Redis.StreamMaxLen)
	if err := jobBroker.EnsureGroup(ctx); err != nil {
		appLogger.Fatal("Failed to create consumer group", logger.ErrorField(err))
	}

	jobRepo := repository.NewJobRepository(db.DB)
	storyRepo := repository.NewStoryRepository(db.DB)
	scoreRepo := repository.NewScoreRepository(db.DB)
	extractorRepo := repository.NewEntityExtractorRepository(cfg, appLogger)
	geocoderRepo := repository.NewGeocoderRepository(cfg, appLogger)
	geocodeCache := repository.NewGeocodeCacheRepository(redisClient.Client, cfg.Geocoder.CacheTTL)

	var storyScorer scorer.Scorer
	switch entity.ScorerKind(cfg.Enrichment.Scorer) {
	case entity.ScorerKindHuman:
		storyScorer = scorer.NewHumanScorer()
	default:
		storyScorer, err = scorer.NewModelScorer(cfg.Model.Path)
		if err != nil {
			appLogger.Fatal("Failed to load relevance model", logger.ErrorField(err))
		}
	}

	var notifier telegram.Notifier = telegram.NoopNotifier{}
	if cfg.Telegram.BotToken != "" {
		notifier, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			appLogger.Fatal("Failed to initialize Telegram notifier", logger.ErrorField(err))
		}
	}

	pipeline := service.NewPipelineService(
		cfg,
		appLogger,
		jobBroker,
		jobRepo,
		storyRepo,
		scoreRepo,
		extractorRepo,
		geocoderRepo,
		geocodeCache,
		storyScorer,
		notifier,
	)

	redisConsumer := consumer.NewRedisConsumer(cfg, pipeline, appLogger)
	redisConsumer.Start(ctx)

	appLogger.Info("Enrichment service started. Waiting for jobs...",
		logger.IntField("workers", cfg.Enrichment.Workers))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down enrichment service...")
	cancel()
	redisConsumer.Stop()
	appLogger.Info("Enrichment service stopped.")
}

func main() {
	rootCmd := &cobra.Command{Use: "enrichment-service"}

	serveCmd.Flags().StringVarP(&configPath, "config", "c", "configs/config-enrichment.yaml", "Path to the configuration file")

	rootCmd.AddCommand(serveCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing enrichment-service CLI: %s\n", err)
		os.Exit(1)
	}
}

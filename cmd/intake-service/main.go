package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"geostory-pipeline/internal/broker"
	"geostory-pipeline/internal/intake/config"
	"geostory-pipeline/internal/intake/repository"
	"geostory-pipeline/internal/intake/service"
	"geostory-pipeline/pkg/logger"
	"geostory-pipeline/pkg/postgres"
	"geostory-pipeline/pkg/redis"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the intake collector service",
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

	appLogger.Info("Starting Intake Service", zap.String("name", cfg.App.Name))

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

	var sources []repository.ArticleSource
	if len(cfg.NewsAPI.Outlets) > 0 {
		sources = append(sources, repository.NewNewsAPIRepository(cfg, appLogger))
	}
	if len(cfg.RSS.FeedURLs) > 0 {
		sources = append(sources, repository.NewRSSRepository(cfg, appLogger))
	}

	seenTTL := time.Duration(cfg.Intake.SeenTTLDays) * 24 * time.Hour
	dedupRepo := repository.NewDedupRepository(redisClient.Client, seenTTL)
	storyRepo := repository.NewStoryRepository(db.DB)

	collector := service.NewCollectorService(cfg, appLogger, sources, dedupRepo, storyRepo, jobBroker)

	c := cron.New()
	if _, err := c.AddFunc(cfg.Intake.CronSchedule, func() { collector.Run(ctx) }); err != nil {
		appLogger.Fatal("Failed to schedule intake run", logger.ErrorField(err))
	}
	c.Start()

	// run once at startup rather than waiting for the first cron tick
	collector.Run(ctx)

	appLogger.Info("Intake service started. Waiting for scheduled runs...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down intake service...")
	cancel()
	<-c.Stop().Done()
	appLogger.Info("Intake service stopped.")
}

func main() {
	rootCmd := &cobra.Command{Use: "intake-service"}

	serveCmd.Flags().StringVarP(&configPath, "config", "c", "configs/config-intake.yaml", "Path to the configuration file")

	rootCmd.AddCommand(serveCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing intake-service CLI: %s\n", err)
		os.Exit(1)
	}
}

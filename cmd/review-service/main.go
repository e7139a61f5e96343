package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"geostory-pipeline/internal/broker"
	"geostory-pipeline/internal/review/config"
	reviewhttp "geostory-pipeline/internal/review/delivery/http"
	"geostory-pipeline/internal/review/repository"
	"geostory-pipeline/internal/review/service"
	"geostory-pipeline/pkg/logger"
	"geostory-pipeline/pkg/postgres"
	"geostory-pipeline/pkg/redis"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	swagger "github.com/swaggo/echo-swagger"
	"go.uber.org/zap"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the review API service",
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

	appLogger.Info("Starting Review Service", zap.String("name", cfg.App.Name))

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

	reviewRepo := repository.NewReviewRepository(db.DB)
	reviewService := service.NewReviewService(reviewRepo, jobBroker, cfg.Review.AcceptThreshold, appLogger)
	reviewHandler := reviewhttp.NewReviewHandler(reviewService, appLogger)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	api := e.Group("/api/v1")
	reviewHandler.RegisterRoutes(api)

	e.GET("/swagger/*", swagger.WrapHandler)

	go func() {
		addr := cfg.API.Addr()
		appLogger.Info("Review API listening", logger.StringField("addr", addr))
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start HTTP server", logger.ErrorField(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down review service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Failed to shut down HTTP server gracefully", logger.ErrorField(err))
	}
	appLogger.Info("Review service stopped.")
}

// @title Story Review API
// @version 1.0
// @description Review front-end API for human scoring and dead-letter inspection.
// @BasePath /api/v1
func main() {
	rootCmd := &cobra.Command{Use: "review-service"}

	serveCmd.Flags().StringVarP(&configPath, "config", "c", "configs/config-review.yaml", "Path to the configuration file")

	rootCmd.AddCommand(serveCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing review-service CLI: %s\n", err)
		os.Exit(1)
	}
}

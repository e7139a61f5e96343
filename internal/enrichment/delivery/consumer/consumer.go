package consumer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"geostory-pipeline/internal/enrichment/config"
	"geostory-pipeline/internal/enrichment/service"
	"geostory-pipeline/pkg/logger"
	"geostory-pipeline/pkg/utils"
)

// RedisConsumer runs the worker pool over the enrichment stream: N workers
// polling for new jobs, plus one ticker reclaiming timed-out messages.
type RedisConsumer struct {
	cfg      *config.Config
	pipeline service.PipelineService
	logger   *logger.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewRedisConsumer creates a new RedisConsumer.
func NewRedisConsumer(cfg *config.Config, pipeline service.PipelineService, log *logger.Logger) *RedisConsumer {
	return &RedisConsumer{
		cfg:      cfg,
		pipeline: pipeline,
		logger:   log,
		stopChan: make(chan struct{}),
	}
}

// Start begins the consumer's processing loops.
func (c *RedisConsumer) Start(ctx context.Context) {
	c.logger.Info("Enrichment consumer started",
		logger.IntField("workers", c.cfg.Enrichment.Workers))

	for i := 0; i < c.cfg.Enrichment.Workers; i++ {
		c.registerWorker(ctx, fmt.Sprintf("worker-%d", i))
	}
	c.registerTickerHandler(ctx, c.pipeline.ProcessRetries, c.cfg.Enrichment.RetryInterval, "enrichment-retry")
}

func (c *RedisConsumer) registerWorker(ctx context.Context, name string) {
	c.logger.Info("Registering stream worker", logger.StringField("worker", name))
	c.wg.Add(1)
	utils.GoSafe(func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				c.logger.Info("Worker stopping due to context cancellation", logger.StringField("worker", name))
				return
			case <-c.stopChan:
				c.logger.Info("Worker stopping", logger.StringField("worker", name))
				return
			default:
				c.pipeline.ProcessTask(ctx)
			}
		}
	})
}

func (c *RedisConsumer) registerTickerHandler(ctx context.Context, fn func(ctx context.Context), interval time.Duration, name string) {
	c.logger.Info("Registering ticker handler",
		logger.StringField("name", name),
		logger.Field("interval", interval))
	c.wg.Add(1)
	utils.GoSafe(func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				fn(ctx)
			case <-ctx.Done():
				c.logger.Info("Ticker handler stopping due to context cancellation", logger.StringField("name", name))
				return
			case <-c.stopChan:
				c.logger.Info("Ticker handler stopping", logger.StringField("name", name))
				return
			}
		}
	})
}

// Stop gracefully shuts down the consumer.
func (c *RedisConsumer) Stop() {
	close(c.stopChan)
	c.wg.Wait()
	c.logger.Info("Enrichment consumer stopped")
}

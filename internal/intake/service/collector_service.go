package service

import (
	"context"
	"time"

	"geostory-pipeline/internal/broker"
	"geostory-pipeline/internal/entity"
	"geostory-pipeline/internal/intake/config"
	"geostory-pipeline/internal/intake/repository"
	"geostory-pipeline/pkg/logger"
	"geostory-pipeline/pkg/utils"
)

// CollectorService runs one intake pass: fetch articles, dedup by
// fingerprint, and enqueue an enrichment job per novel story.
type CollectorService interface {
	Run(ctx context.Context)
}

// NewCollectorService creates a CollectorService over the given sources.
func NewCollectorService(
	cfg *config.Config,
	log *logger.Logger,
	sources []repository.ArticleSource,
	dedupRepo repository.DedupRepository,
	storyRepo repository.StoryRepository,
	jobBroker *broker.Broker,
) CollectorService {
	return &collectorService{
		cfg:       cfg,
		log:       log,
		sources:   sources,
		dedupRepo: dedupRepo,
		storyRepo: storyRepo,
		jobBroker: jobBroker,
	}
}

type collectorService struct {
	cfg       *config.Config
	log       *logger.Logger
	sources   []repository.ArticleSource
	dedupRepo repository.DedupRepository
	storyRepo repository.StoryRepository
	jobBroker *broker.Broker
}

// Run processes every configured source. Each article is handled
// independently: a failure mid-run leaves earlier enqueues standing.
func (s *collectorService) Run(ctx context.Context) {
	for _, source := range s.sources {
		articles, err := source.Fetch(ctx)
		if err != nil {
			s.log.Error("Source fetch failed, ending run for source",
				logger.StringField("source", source.Name()),
				logger.ErrorField(err))
		}

		enqueued := 0
		for _, article := range articles {
			if ctx.Err() != nil {
				return
			}
			if s.collect(ctx, article.Source, article.URL, article.Title, article.RawText, article.PublishedAt) {
				enqueued++
			}
		}

		s.log.Info("Intake run finished for source",
			logger.StringField("source", source.Name()),
			logger.IntField("fetched", len(articles)),
			logger.IntField("enqueued", enqueued))
	}
}

func (s *collectorService) collect(ctx context.Context, source, url, title, rawText string, publishedAt *time.Time) bool {
	fingerprint := utils.Fingerprint(source, url, title)

	firstSeen, err := s.dedupRepo.MarkSeen(ctx, fingerprint)
	if err != nil {
		s.log.Error("Failed to check dedup store",
			logger.StringField("fingerprint", fingerprint),
			logger.ErrorField(err))
		return false
	}
	if !firstSeen {
		s.log.Debug("Skipping already seen story", logger.StringField("fingerprint", fingerprint))
		return false
	}

	imageryTerms := utils.MatchedImageryTerms(rawText)
	story := &entity.Story{
		Fingerprint:       fingerprint,
		Source:            source,
		URL:               url,
		Title:             title,
		RawText:           rawText,
		PublishedAt:       publishedAt,
		ScrapedAt:         time.Now(),
		Status:            entity.StoryStatusPending,
		MentionsSatellite: len(imageryTerms) > 0,
		ImageryTerms:      imageryTerms,
	}
	job := &entity.EnrichmentJob{
		StoryFingerprint: fingerprint,
		Stage:            entity.JobStageExtract,
		Status:           entity.JobStatusPending,
		MaxAttempts:      s.cfg.Intake.MaxAttempts,
	}

	created, err := s.storyRepo.CreateWithJob(ctx, story, job)
	if err != nil {
		s.log.Error("Failed to create story",
			logger.StringField("fingerprint", fingerprint),
			logger.ErrorField(err))
		return false
	}
	if !created {
		// fingerprint raced into the store ahead of us; its job is enqueued
		return false
	}

	if err := s.jobBroker.Enqueue(ctx, job); err != nil {
		s.log.Error("Failed to enqueue job",
			logger.StringField("fingerprint", fingerprint),
			logger.ErrorField(err))
		return false
	}

	s.log.Info("Story enqueued for enrichment",
		logger.StringField("fingerprint", fingerprint),
		logger.StringField("source", source),
		logger.StringField("title", title))
	return true
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"geostory-pipeline/internal/broker"
	"geostory-pipeline/internal/enrichment/config"
	"geostory-pipeline/internal/enrichment/dto"
	"geostory-pipeline/internal/enrichment/repository"
	"geostory-pipeline/internal/enrichment/scorer"
	"geostory-pipeline/internal/entity"
	"geostory-pipeline/pkg/common"
	"geostory-pipeline/pkg/logger"
	"geostory-pipeline/pkg/telegram"
	"geostory-pipeline/pkg/utils"

	"gorm.io/datatypes"
)

// PipelineService drives one enrichment job at a time through extraction,
// geocoding, scoring and persistence. Stages run sequentially inside a job;
// each stage's job-record update is committed before the next stage starts.
type PipelineService interface {
	ProcessTask(ctx context.Context)
	ProcessRetries(ctx context.Context)
}

// NewPipelineService creates a PipelineService.
func NewPipelineService(
	cfg *config.Config,
	log *logger.Logger,
	jobBroker *broker.Broker,
	jobRepo repository.JobRepository,
	storyRepo repository.StoryRepository,
	scoreRepo repository.ScoreRepository,
	extractorRepo repository.EntityExtractorRepository,
	geocoderRepo repository.GeocoderRepository,
	geocodeCache repository.GeocodeCacheRepository,
	storyScorer scorer.Scorer,
	notifier telegram.Notifier,
) PipelineService {
	stoplist := make(map[string]struct{}, len(cfg.Extractor.Stoplist))
	for _, s := range cfg.Extractor.Stoplist {
		stoplist[utils.NormalizeEntityText(s)] = struct{}{}
	}
	acceptedTypes := make(map[string]struct{}, len(cfg.Extractor.AcceptedTypes))
	for _, t := range cfg.Extractor.AcceptedTypes {
		acceptedTypes[t] = struct{}{}
	}

	return &pipelineService{
		cfg:           cfg,
		log:           log,
		jobBroker:     jobBroker,
		jobRepo:       jobRepo,
		storyRepo:     storyRepo,
		scoreRepo:     scoreRepo,
		extractorRepo: extractorRepo,
		geocoderRepo:  geocoderRepo,
		geocodeCache:  geocodeCache,
		storyScorer:   storyScorer,
		notifier:      notifier,
		stoplist:      stoplist,
		acceptedTypes: acceptedTypes,
	}
}

type pipelineService struct {
	cfg           *config.Config
	log           *logger.Logger
	jobBroker     *broker.Broker
	jobRepo       repository.JobRepository
	storyRepo     repository.StoryRepository
	scoreRepo     repository.ScoreRepository
	extractorRepo repository.EntityExtractorRepository
	geocoderRepo  repository.GeocoderRepository
	geocodeCache  repository.GeocodeCacheRepository
	storyScorer   scorer.Scorer
	notifier      telegram.Notifier
	stoplist      map[string]struct{}
	acceptedTypes map[string]struct{}
}

// ProcessTask dequeues and runs a single job.
func (s *pipelineService) ProcessTask(ctx context.Context) {
	msg, err := s.jobBroker.Dequeue(ctx, common.RedisStreamConsumer, s.cfg.Enrichment.StreamBlockTimeout)
	if err != nil {
		s.log.Error("Failed to read from stream", logger.ErrorField(err))
		return
	}
	if msg == nil {
		return
	}

	taskCtx, cancel := context.WithTimeout(ctx, s.cfg.Enrichment.TaskTimeout)
	defer cancel()
	s.handleMessage(taskCtx, msg)
}

// ProcessRetries reclaims one message whose consumer went idle past the
// visibility timeout and reruns it, honoring the backoff schedule and the
// attempt cap.
func (s *pipelineService) ProcessRetries(ctx context.Context) {
	msg, err := s.jobBroker.Claim(ctx, common.RedisStreamConsumer+"-retry", s.cfg.Enrichment.MaxIdleDuration)
	if err != nil {
		s.log.Error("Failed to claim pending message", logger.ErrorField(err))
		return
	}
	if msg == nil {
		return
	}

	s.log.Info("Reclaimed pending message",
		logger.StringField("message_id", msg.ID),
		logger.StringField("fingerprint", msg.Job.StoryFingerprint),
		logger.Field("deliveries", msg.Deliveries))

	taskCtx, cancel := context.WithTimeout(ctx, s.cfg.Enrichment.TaskTimeout)
	defer cancel()
	s.handleMessage(taskCtx, msg)
}

func (s *pipelineService) handleMessage(ctx context.Context, msg *broker.Message) {
	job, err := s.jobRepo.FindByFingerprint(ctx, msg.Job.StoryFingerprint)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// poisoned message with no job record; ack so it cannot loop
			s.log.Error("Job record not found for message, dropping",
				logger.StringField("message_id", msg.ID),
				logger.StringField("fingerprint", msg.Job.StoryFingerprint))
			alert := telegram.FormatErrorAlertMessage(time.Now(), "orphaned stream message",
				fmt.Sprintf("no job record for story %s, message dropped", msg.Job.StoryFingerprint))
			if sendErr := s.notifier.SendMessage(alert); sendErr != nil {
				s.log.Error("Failed to send orphan alert", logger.ErrorField(sendErr))
			}
			s.ack(ctx, msg)
			return
		}
		s.log.Error("Failed to load job", logger.ErrorField(err),
			logger.StringField("fingerprint", msg.Job.StoryFingerprint))
		return
	}

	// duplicate deliveries of finished or parked jobs are absorbed, not errors
	if job.Terminal() || job.Status == entity.JobStatusPendingScore {
		s.ack(ctx, msg)
		return
	}

	if job.NextRetryAt != nil && time.Now().Before(*job.NextRetryAt) {
		// backoff not elapsed; leave unacked for a later reclaim
		s.log.Debug("Backoff not elapsed, skipping job",
			logger.StringField("fingerprint", job.StoryFingerprint),
			logger.Field("next_retry_at", *job.NextRetryAt))
		return
	}

	if job.Attempts >= job.MaxAttempts {
		s.deadLetter(ctx, job, msg, fmt.Errorf("retry budget exhausted: %s", job.LastError))
		return
	}

	job.Attempts++
	job.Status = entity.JobStatusRunning
	job.NextRetryAt = nil
	if err := s.jobRepo.Update(ctx, job); err != nil {
		s.log.Error("Failed to claim job", logger.ErrorField(err),
			logger.StringField("fingerprint", job.StoryFingerprint))
		return
	}

	s.log.Info("Processing job",
		logger.StringField("fingerprint", job.StoryFingerprint),
		logger.StringField("stage", string(job.Stage)),
		logger.IntField("attempt", job.Attempts))

	if err := s.runStages(ctx, job); err != nil {
		s.fail(ctx, job, msg, err)
		return
	}

	s.ack(ctx, msg)
}

// runStages executes the pipeline from the job's committed stage onward.
// Returning nil means the job reached a terminal or parked state and the
// message can be acked; any error is treated as transient.
func (s *pipelineService) runStages(ctx context.Context, job *entity.EnrichmentJob) error {
	story, err := s.storyRepo.FindByFingerprint(ctx, job.StoryFingerprint)
	if err != nil {
		return err
	}

	for {
		switch job.Stage {
		case entity.JobStageExtract:
			kept, err := s.extractEntities(ctx, story)
			if err != nil {
				return err
			}
			if len(kept) == 0 {
				return s.discard(ctx, job, story, entity.DiscardReasonNoEntities)
			}
			story.Entities = kept
			if err := s.advance(ctx, job, entity.JobStageGeocode); err != nil {
				return err
			}

		case entity.JobStageGeocode:
			resolved, err := s.geocodeEntities(ctx, story)
			if err != nil {
				return err
			}
			if resolved == 0 {
				return s.discard(ctx, job, story, entity.DiscardReasonUnresolvable)
			}
			if err := s.advance(ctx, job, entity.JobStageScore); err != nil {
				return err
			}

		case entity.JobStageScore:
			score, err := s.storyScorer.Score(ctx, story)
			if err != nil {
				if errors.Is(err, scorer.ErrScorePending) {
					return s.park(ctx, job)
				}
				return err
			}
			if err := s.scoreRepo.Upsert(ctx, &entity.ScoreRecord{
				StoryFingerprint: story.Fingerprint,
				Score:            score,
				Accepted:         score >= s.cfg.Model.AcceptThreshold,
				ScorerKind:       s.storyScorer.Kind(),
			}); err != nil {
				return err
			}
			s.log.Info("Story scored",
				logger.StringField("fingerprint", story.Fingerprint),
				logger.Float64Field("score", score),
				logger.StringField("scorer", string(s.storyScorer.Kind())))
			if err := s.advance(ctx, job, entity.JobStagePersist); err != nil {
				return err
			}

		case entity.JobStagePersist:
			if err := s.storyRepo.MarkEnriched(ctx, story.Fingerprint); err != nil {
				return err
			}
			return s.complete(ctx, job)

		default:
			return fmt.Errorf("unknown job stage: %s", job.Stage)
		}
	}
}

// extractEntities calls the NLP service and filters the result to geographic
// entity types above the relevance threshold and outside the stoplist. The
// surviving set replaces any entities from an earlier attempt.
func (s *pipelineService) extractEntities(ctx context.Context, story *entity.Story) ([]entity.StoryEntity, error) {
	raw, err := s.extractorRepo.Extract(ctx, story.RawText)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]int)
	var kept []entity.StoryEntity
	for _, e := range raw {
		if _, ok := s.acceptedTypes[e.Type]; !ok {
			continue
		}
		if e.Relevance < s.cfg.Extractor.RelevanceThreshold {
			continue
		}
		normalized := utils.NormalizeEntityText(e.Text)
		if _, banned := s.stoplist[normalized]; banned {
			continue
		}
		if idx, dup := seen[normalized]; dup {
			if e.Relevance > kept[idx].Relevance {
				kept[idx].Relevance = e.Relevance
			}
			continue
		}
		seen[normalized] = len(kept)
		kept = append(kept, entity.StoryEntity{
			StoryFingerprint: story.Fingerprint,
			SurfaceText:      e.Text,
			NormalizedText:   normalized,
			EntityType:       e.Type,
			Relevance:        e.Relevance,
		})
	}

	if err := s.storyRepo.ReplaceEntities(ctx, story.Fingerprint, kept); err != nil {
		return nil, err
	}

	s.log.Info("Entities extracted",
		logger.StringField("fingerprint", story.Fingerprint),
		logger.IntField("raw", len(raw)),
		logger.IntField("kept", len(kept)))
	return kept, nil
}

// geocodeEntities resolves each entity through the cache, falling back to
// the external geocoder exactly once per normalized key across all workers.
func (s *pipelineService) geocodeEntities(ctx context.Context, story *entity.Story) (int, error) {
	resolved := 0
	for i := range story.Entities {
		e := &story.Entities[i]
		point, fromCache, err := s.geocodeCache.GetOrPopulate(ctx, e.NormalizedText, func(ctx context.Context) (*dto.GeoPoint, error) {
			return s.geocoderRepo.Geocode(ctx, e.SurfaceText)
		})
		if err != nil {
			return 0, err
		}
		if point == nil {
			s.log.Debug("Entity unresolvable, dropped",
				logger.StringField("entity", e.SurfaceText),
				logger.Field("from_cache", fromCache))
			continue
		}

		location := &entity.GeoLocation{
			EntityID:   e.ID,
			Latitude:   point.Latitude,
			Longitude:  point.Longitude,
			Confidence: point.Confidence,
			PlaceName:  point.PlaceName,
			RawResult:  datatypes.JSON(point.Raw),
		}
		if err := s.storyRepo.SaveLocation(ctx, location); err != nil {
			return 0, err
		}
		e.Location = location
		resolved++
	}

	s.log.Info("Entities geocoded",
		logger.StringField("fingerprint", story.Fingerprint),
		logger.IntField("entities", len(story.Entities)),
		logger.IntField("resolved", resolved))
	return resolved, nil
}

// discard finishes the job on the permanent-content path: not an error,
// never retried, recorded with its reason for auditability.
func (s *pipelineService) discard(ctx context.Context, job *entity.EnrichmentJob, story *entity.Story, reason entity.DiscardReason) error {
	if err := s.storyRepo.MarkDiscarded(ctx, story.Fingerprint, reason); err != nil {
		return err
	}
	job.Status = entity.JobStatusDone
	job.DiscardReason = reason
	job.LastError = ""
	if err := s.jobRepo.Update(ctx, job); err != nil {
		return err
	}
	s.log.Info("Story discarded",
		logger.StringField("fingerprint", story.Fingerprint),
		logger.StringField("reason", string(reason)))
	return nil
}

// park suspends the job until the review front-end submits a score. The
// message is acked; the review service re-enqueues at the persist stage.
func (s *pipelineService) park(ctx context.Context, job *entity.EnrichmentJob) error {
	job.Status = entity.JobStatusPendingScore
	if err := s.jobRepo.Update(ctx, job); err != nil {
		return err
	}
	s.log.Info("Job parked for human scoring",
		logger.StringField("fingerprint", job.StoryFingerprint))
	return nil
}

func (s *pipelineService) complete(ctx context.Context, job *entity.EnrichmentJob) error {
	job.Status = entity.JobStatusDone
	job.LastError = ""
	if err := s.jobRepo.Update(ctx, job); err != nil {
		return err
	}
	s.log.Info("Job completed", logger.StringField("fingerprint", job.StoryFingerprint))
	return nil
}

// fail records a transient failure. Below the attempt cap the message is
// left unacked so the visibility timeout redelivers it after the computed
// backoff; at the cap the job dead-letters.
func (s *pipelineService) fail(ctx context.Context, job *entity.EnrichmentJob, msg *broker.Message, cause error) {
	if job.Attempts >= job.MaxAttempts {
		s.deadLetter(ctx, job, msg, cause)
		return
	}

	delay := entity.BackoffDelay(s.cfg.Enrichment.BackoffBase, s.cfg.Enrichment.BackoffMax, job.Attempts)
	next := time.Now().Add(delay)
	job.Status = entity.JobStatusFailed
	job.LastError = cause.Error()
	job.NextRetryAt = &next

	if err := s.jobRepo.Update(ctx, job); err != nil {
		s.log.Error("Failed to record job failure", logger.ErrorField(err),
			logger.StringField("fingerprint", job.StoryFingerprint))
	}

	s.log.Error("Job failed, will retry",
		logger.ErrorField(cause),
		logger.StringField("fingerprint", job.StoryFingerprint),
		logger.StringField("stage", string(job.Stage)),
		logger.IntField("attempt", job.Attempts),
		logger.Field("retry_after", delay))
}

// deadLetter permanently fails the job: recorded with its last error for
// manual inspection, alerted, and acked so it is never auto-re-enqueued.
func (s *pipelineService) deadLetter(ctx context.Context, job *entity.EnrichmentJob, msg *broker.Message, cause error) {
	job.Status = entity.JobStatusDeadLetter
	job.LastError = cause.Error()
	job.NextRetryAt = nil
	if err := s.jobRepo.Update(ctx, job); err != nil {
		s.log.Error("Failed to record dead letter", logger.ErrorField(err),
			logger.StringField("fingerprint", job.StoryFingerprint))
		return
	}

	alert := telegram.FormatDeadLetterMessage(time.Now(), job.StoryFingerprint, string(job.Stage), job.LastError, job.Attempts)
	if err := s.notifier.SendMessage(alert); err != nil {
		s.log.Error("Failed to send dead letter alert", logger.ErrorField(err),
			logger.StringField("fingerprint", job.StoryFingerprint))
	}

	s.ack(ctx, msg)

	s.log.Error("Job dead-lettered",
		logger.ErrorField(cause),
		logger.StringField("fingerprint", job.StoryFingerprint),
		logger.StringField("stage", string(job.Stage)),
		logger.IntField("attempts", job.Attempts))
}

func (s *pipelineService) ack(ctx context.Context, msg *broker.Message) {
	if err := s.jobBroker.Ack(ctx, msg.ID); err != nil {
		s.log.Error("Failed to acknowledge message", logger.ErrorField(err),
			logger.StringField("message_id", msg.ID))
	}
}

// advance durably commits the stage transition before the next stage runs.
func (s *pipelineService) advance(ctx context.Context, job *entity.EnrichmentJob, next entity.JobStage) error {
	job.Stage = next
	return s.jobRepo.Update(ctx, job)
}

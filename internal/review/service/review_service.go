package service

import (
	"context"
	"errors"
	"fmt"

	"geostory-pipeline/internal/broker"
	"geostory-pipeline/internal/entity"
	"geostory-pipeline/internal/review/dto"
	"geostory-pipeline/internal/review/repository"
	"geostory-pipeline/pkg/logger"
)

// ErrNotPendingScore is returned when a score is submitted for a job that is
// not parked for review.
var ErrNotPendingScore = errors.New("job is not pending a score")

// ErrScoreOutOfRange is returned when a submitted score falls outside [0,1].
var ErrScoreOutOfRange = errors.New("score out of range [0,1]")

// ErrNotFound wraps the repository not-found error for handlers.
var ErrNotFound = repository.ErrNotFound

// ReviewService backs the human-review front-end: listing parked stories,
// accepting score submissions, and exposing dead-lettered jobs.
type ReviewService interface {
	ListPendingStories(ctx context.Context) ([]*dto.PendingStoryResponse, error)
	SubmitScore(ctx context.Context, fingerprint string, score float64) error
	ListDeadLetters(ctx context.Context) ([]*dto.DeadLetterResponse, error)
}

// NewReviewService creates a new ReviewService. Submitted scores at or above
// acceptThreshold mark the story's score record as accepted.
func NewReviewService(repo repository.ReviewRepository, jobBroker *broker.Broker, acceptThreshold float64, log *logger.Logger) ReviewService {
	return &reviewService{
		repo:            repo,
		jobBroker:       jobBroker,
		acceptThreshold: acceptThreshold,
		log:             log,
	}
}

type reviewService struct {
	repo            repository.ReviewRepository
	jobBroker       *broker.Broker
	acceptThreshold float64
	log             *logger.Logger
}

func (s *reviewService) ListPendingStories(ctx context.Context) ([]*dto.PendingStoryResponse, error) {
	jobs, err := s.repo.ListJobsByStatus(ctx, entity.JobStatusPendingScore)
	if err != nil {
		return nil, err
	}

	responses := make([]*dto.PendingStoryResponse, 0, len(jobs))
	for _, job := range jobs {
		story, err := s.repo.FindStoryByFingerprint(ctx, job.StoryFingerprint)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				s.log.Warn("Parked job has no story record",
					logger.StringField("fingerprint", job.StoryFingerprint))
				continue
			}
			return nil, err
		}
		responses = append(responses, mapPendingStory(&job, story))
	}
	return responses, nil
}

// SubmitScore records a human judgment and resumes the parked job at the
// persistence stage.
func (s *reviewService) SubmitScore(ctx context.Context, fingerprint string, score float64) error {
	if score < 0 || score > 1 {
		return fmt.Errorf("score %v: %w", score, ErrScoreOutOfRange)
	}

	job, err := s.repo.FindJobByFingerprint(ctx, fingerprint)
	if err != nil {
		return err
	}
	if job.Status != entity.JobStatusPendingScore {
		return ErrNotPendingScore
	}

	if err := s.repo.UpsertScore(ctx, &entity.ScoreRecord{
		StoryFingerprint: fingerprint,
		Score:            score,
		Accepted:         score >= s.acceptThreshold,
		ScorerKind:       entity.ScorerKindHuman,
	}); err != nil {
		return err
	}

	job.Stage = entity.JobStagePersist
	job.Status = entity.JobStatusPending
	// the failure retry budget does not carry over to the resumed job; a
	// story parked on its last attempt must still get to persist
	job.Attempts = 0
	job.NextRetryAt = nil
	if err := s.repo.UpdateJob(ctx, job); err != nil {
		return err
	}

	if err := s.jobBroker.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("failed to re-enqueue job: %w", err)
	}

	s.log.Info("Human score submitted, job resumed",
		logger.StringField("fingerprint", fingerprint),
		logger.Float64Field("score", score))
	return nil
}

func (s *reviewService) ListDeadLetters(ctx context.Context) ([]*dto.DeadLetterResponse, error) {
	jobs, err := s.repo.ListJobsByStatus(ctx, entity.JobStatusDeadLetter)
	if err != nil {
		return nil, err
	}

	responses := make([]*dto.DeadLetterResponse, 0, len(jobs))
	for _, job := range jobs {
		responses = append(responses, &dto.DeadLetterResponse{
			Fingerprint: job.StoryFingerprint,
			Stage:       string(job.Stage),
			Attempts:    job.Attempts,
			LastError:   job.LastError,
			FailedAt:    job.UpdatedAt,
		})
	}
	return responses, nil
}

func mapPendingStory(job *entity.EnrichmentJob, story *entity.Story) *dto.PendingStoryResponse {
	resp := &dto.PendingStoryResponse{
		Fingerprint: story.Fingerprint,
		Source:      story.Source,
		URL:         story.URL,
		Title:       story.Title,
		ScrapedAt:   story.ScrapedAt,
		ParkedAt:    job.UpdatedAt,
	}
	for _, e := range story.Entities {
		entityResp := dto.EntityResponse{
			SurfaceText: e.SurfaceText,
			EntityType:  e.EntityType,
			Relevance:   e.Relevance,
		}
		if e.Location != nil {
			entityResp.Location = &dto.LocationResponse{
				Latitude:   e.Location.Latitude,
				Longitude:  e.Location.Longitude,
				Confidence: e.Location.Confidence,
				PlaceName:  e.Location.PlaceName,
			}
		}
		resp.Entities = append(resp.Entities, entityResp)
	}
	return resp
}

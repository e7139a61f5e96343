package service_test

import (
	"context"
	"testing"
	"time"

	"geostory-pipeline/internal/broker"
	"geostory-pipeline/internal/entity"
	"geostory-pipeline/internal/review/repository"
	"geostory-pipeline/internal/review/service"
	"geostory-pipeline/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockReviewRepo struct {
	jobs    map[string]*entity.EnrichmentJob
	stories map[string]*entity.Story
	scores  []*entity.ScoreRecord
}

func newMockReviewRepo() *mockReviewRepo {
	return &mockReviewRepo{
		jobs:    make(map[string]*entity.EnrichmentJob),
		stories: make(map[string]*entity.Story),
	}
}

func (m *mockReviewRepo) ListJobsByStatus(ctx context.Context, status entity.JobStatus) ([]entity.EnrichmentJob, error) {
	var out []entity.EnrichmentJob
	for _, j := range m.jobs {
		if j.Status == status {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (m *mockReviewRepo) FindJobByFingerprint(ctx context.Context, fingerprint string) (*entity.EnrichmentJob, error) {
	job, ok := m.jobs[fingerprint]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (m *mockReviewRepo) UpdateJob(ctx context.Context, job *entity.EnrichmentJob) error {
	copied := *job
	m.jobs[job.StoryFingerprint] = &copied
	return nil
}

func (m *mockReviewRepo) FindStoryByFingerprint(ctx context.Context, fingerprint string) (*entity.Story, error) {
	story, ok := m.stories[fingerprint]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return story, nil
}

func (m *mockReviewRepo) UpsertScore(ctx context.Context, record *entity.ScoreRecord) error {
	m.scores = append(m.scores, record)
	return nil
}

func newTestService(t *testing.T) (service.ReviewService, *mockReviewRepo, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	b := broker.New(client, 1000)
	require.NoError(t, b.EnsureGroup(context.Background()))

	repo := newMockReviewRepo()
	log := &logger.Logger{Logger: zap.NewNop()}
	return service.NewReviewService(repo, b, 0.7, log), repo, client
}

func parkedJob(fingerprint string) *entity.EnrichmentJob {
	return &entity.EnrichmentJob{
		StoryFingerprint: fingerprint,
		Stage:            entity.JobStageScore,
		Status:           entity.JobStatusPendingScore,
		MaxAttempts:      5,
	}
}

func TestSubmitScore_ResumesJobAtPersistStage(t *testing.T) {
	svc, repo, client := newTestService(t)
	repo.jobs["fp-1"] = parkedJob("fp-1")

	require.NoError(t, svc.SubmitScore(context.Background(), "fp-1", 0.85))

	job := repo.jobs["fp-1"]
	assert.Equal(t, entity.JobStagePersist, job.Stage)
	assert.Equal(t, entity.JobStatusPending, job.Status)

	require.Len(t, repo.scores, 1)
	assert.Equal(t, 0.85, repo.scores[0].Score)
	assert.True(t, repo.scores[0].Accepted)
	assert.Equal(t, entity.ScorerKindHuman, repo.scores[0].ScorerKind)

	// resumed job is back on the stream
	n, err := client.XLen(context.Background(), "story.enrichment").Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestSubmitScore_JobParkedOnFinalAttemptGetsFreshBudget(t *testing.T) {
	svc, repo, _ := newTestService(t)
	job := parkedJob("fp-1")
	job.Attempts = job.MaxAttempts
	repo.jobs["fp-1"] = job

	require.NoError(t, svc.SubmitScore(context.Background(), "fp-1", 0.6))

	resumed := repo.jobs["fp-1"]
	assert.Equal(t, entity.JobStagePersist, resumed.Stage)
	assert.Equal(t, entity.JobStatusPending, resumed.Status)
	assert.Zero(t, resumed.Attempts)
	assert.Nil(t, resumed.NextRetryAt)
}

func TestSubmitScore_RejectsOutOfRangeScore(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.jobs["fp-1"] = parkedJob("fp-1")

	assert.ErrorIs(t, svc.SubmitScore(context.Background(), "fp-1", 1.5), service.ErrScoreOutOfRange)
	assert.ErrorIs(t, svc.SubmitScore(context.Background(), "fp-1", -0.1), service.ErrScoreOutOfRange)
	assert.Empty(t, repo.scores)
}

func TestSubmitScore_UnknownFingerprint(t *testing.T) {
	svc, _, _ := newTestService(t)

	err := svc.SubmitScore(context.Background(), "fp-missing", 0.5)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestSubmitScore_JobNotParked(t *testing.T) {
	svc, repo, _ := newTestService(t)
	job := parkedJob("fp-1")
	job.Status = entity.JobStatusRunning
	repo.jobs["fp-1"] = job

	err := svc.SubmitScore(context.Background(), "fp-1", 0.5)
	assert.ErrorIs(t, err, service.ErrNotPendingScore)
	assert.Empty(t, repo.scores)
}

func TestListPendingStories(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.jobs["fp-1"] = parkedJob("fp-1")
	repo.jobs["fp-2"] = &entity.EnrichmentJob{StoryFingerprint: "fp-2", Status: entity.JobStatusDone}
	repo.stories["fp-1"] = &entity.Story{
		Fingerprint: "fp-1",
		Source:      "reuters",
		Title:       "Flood hits coast",
		ScrapedAt:   time.Now(),
		Entities: []entity.StoryEntity{
			{
				SurfaceText: "Jakarta",
				EntityType:  "GeographicFeature",
				Relevance:   0.9,
				Location:    &entity.GeoLocation{Latitude: -6.2, Longitude: 106.8, PlaceName: "Jakarta"},
			},
		},
	}

	stories, err := svc.ListPendingStories(context.Background())
	require.NoError(t, err)
	require.Len(t, stories, 1)
	assert.Equal(t, "fp-1", stories[0].Fingerprint)
	require.Len(t, stories[0].Entities, 1)
	require.NotNil(t, stories[0].Entities[0].Location)
	assert.Equal(t, "Jakarta", stories[0].Entities[0].Location.PlaceName)
}

func TestListPendingStories_SkipsOrphanedJobs(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.jobs["fp-orphan"] = parkedJob("fp-orphan")

	stories, err := svc.ListPendingStories(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stories)
}

func TestListDeadLetters(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.jobs["fp-dead"] = &entity.EnrichmentJob{
		StoryFingerprint: "fp-dead",
		Stage:            entity.JobStageGeocode,
		Status:           entity.JobStatusDeadLetter,
		Attempts:         5,
		LastError:        "geocoder unreachable",
	}

	letters, err := svc.ListDeadLetters(context.Background())
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, "fp-dead", letters[0].Fingerprint)
	assert.Equal(t, "geocode", letters[0].Stage)
	assert.Equal(t, 5, letters[0].Attempts)
	assert.Equal(t, "geocoder unreachable", letters[0].LastError)
}

package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"geostory-pipeline/internal/broker"
	"geostory-pipeline/internal/enrichment/config"
	"geostory-pipeline/internal/enrichment/dto"
	"geostory-pipeline/internal/enrichment/repository"
	"geostory-pipeline/internal/enrichment/scorer"
	"geostory-pipeline/internal/enrichment/service"
	"geostory-pipeline/internal/entity"
	"geostory-pipeline/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockJobRepo struct {
	jobs map[string]*entity.EnrichmentJob
}

func newMockJobRepo(jobs ...*entity.EnrichmentJob) *mockJobRepo {
	m := &mockJobRepo{jobs: make(map[string]*entity.EnrichmentJob)}
	for _, j := range jobs {
		copied := *j
		m.jobs[j.StoryFingerprint] = &copied
	}
	return m
}

func (m *mockJobRepo) FindByFingerprint(ctx context.Context, fingerprint string) (*entity.EnrichmentJob, error) {
	job, ok := m.jobs[fingerprint]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (m *mockJobRepo) Update(ctx context.Context, job *entity.EnrichmentJob) error {
	copied := *job
	m.jobs[job.StoryFingerprint] = &copied
	return nil
}

func (m *mockJobRepo) ListByStatus(ctx context.Context, status entity.JobStatus) ([]entity.EnrichmentJob, error) {
	var out []entity.EnrichmentJob
	for _, j := range m.jobs {
		if j.Status == status {
			out = append(out, *j)
		}
	}
	return out, nil
}

type mockStoryRepo struct {
	stories       map[string]*entity.Story
	replacedWith  []entity.StoryEntity
	savedLocation []*entity.GeoLocation
}

func newMockStoryRepo(stories ...*entity.Story) *mockStoryRepo {
	m := &mockStoryRepo{stories: make(map[string]*entity.Story)}
	for _, s := range stories {
		m.stories[s.Fingerprint] = s
	}
	return m
}

func (m *mockStoryRepo) FindByFingerprint(ctx context.Context, fingerprint string) (*entity.Story, error) {
	story, ok := m.stories[fingerprint]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return story, nil
}

func (m *mockStoryRepo) ReplaceEntities(ctx context.Context, fingerprint string, entities []entity.StoryEntity) error {
	m.replacedWith = entities
	return nil
}

func (m *mockStoryRepo) SaveLocation(ctx context.Context, location *entity.GeoLocation) error {
	m.savedLocation = append(m.savedLocation, location)
	return nil
}

func (m *mockStoryRepo) MarkDiscarded(ctx context.Context, fingerprint string, reason entity.DiscardReason) error {
	m.stories[fingerprint].Status = entity.StoryStatusDiscarded
	m.stories[fingerprint].DiscardReason = reason
	return nil
}

func (m *mockStoryRepo) MarkEnriched(ctx context.Context, fingerprint string) error {
	m.stories[fingerprint].Status = entity.StoryStatusEnriched
	return nil
}

type mockScoreRepo struct {
	upserted []*entity.ScoreRecord
}

func (m *mockScoreRepo) Upsert(ctx context.Context, record *entity.ScoreRecord) error {
	m.upserted = append(m.upserted, record)
	return nil
}

type mockExtractor struct {
	extractFunc func(ctx context.Context, text string) ([]dto.ExtractedEntity, error)
}

func (m *mockExtractor) Extract(ctx context.Context, text string) ([]dto.ExtractedEntity, error) {
	return m.extractFunc(ctx, text)
}

type mockGeocoder struct {
	geocodeFunc func(ctx context.Context, text string) (*dto.GeoPoint, error)
}

func (m *mockGeocoder) Geocode(ctx context.Context, text string) (*dto.GeoPoint, error) {
	return m.geocodeFunc(ctx, text)
}

// passthroughCache always misses and calls populate directly.
type passthroughCache struct{}

func (passthroughCache) GetOrPopulate(ctx context.Context, key string, populate func(ctx context.Context) (*dto.GeoPoint, error)) (*dto.GeoPoint, bool, error) {
	point, err := populate(ctx)
	return point, false, err
}

type mockNotifier struct {
	messages []string
}

func (m *mockNotifier) SendMessage(text string) error {
	m.messages = append(m.messages, text)
	return nil
}

type fixedScorer struct {
	kind  entity.ScorerKind
	score float64
	err   error
}

func (s fixedScorer) Kind() entity.ScorerKind { return s.kind }

func (s fixedScorer) Score(ctx context.Context, story *entity.Story) (float64, error) {
	return s.score, s.err
}

type pipelineFixture struct {
	cfg       *config.Config
	broker    *broker.Broker
	client    *redis.Client
	jobRepo   *mockJobRepo
	storyRepo *mockStoryRepo
	scoreRepo *mockScoreRepo
	extractor *mockExtractor
	geocoder  *mockGeocoder
	notifier  *mockNotifier
	scorer    scorer.Scorer
}

func newFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	b := broker.New(client, 1000)
	require.NoError(t, b.EnsureGroup(context.Background()))

	return &pipelineFixture{
		cfg: &config.Config{
			Enrichment: config.Enrichment{
				Workers:            1,
				StreamBlockTimeout: 10 * time.Millisecond,
				TaskTimeout:        5 * time.Second,
				MaxAttempts:        3,
				BackoffBase:        time.Second,
				BackoffMax:         time.Minute,
			},
			Extractor: config.Extractor{
				RelevanceThreshold: 0.3,
				AcceptedTypes:      []string{"Facility", "GeographicFeature", "NaturalEvent"},
				Stoplist:           []string{"earth"},
			},
			Model: config.Model{
				AcceptThreshold: 0.7,
			},
		},
		broker: b,
		client: client,
		scoreRepo: &mockScoreRepo{},
		notifier:  &mockNotifier{},
		extractor: &mockExtractor{extractFunc: func(ctx context.Context, text string) ([]dto.ExtractedEntity, error) {
			return []dto.ExtractedEntity{{Text: "Mount Rainier", Type: "GeographicFeature", Relevance: 0.9}}, nil
		}},
		geocoder: &mockGeocoder{geocodeFunc: func(ctx context.Context, text string) (*dto.GeoPoint, error) {
			return &dto.GeoPoint{Latitude: 46.85, Longitude: -121.76, PlaceName: "Mount Rainier"}, nil
		}},
		scorer: fixedScorer{kind: entity.ScorerKindModel, score: 0.8},
	}
}

func (f *pipelineFixture) build(t *testing.T) service.PipelineService {
	t.Helper()
	log := &logger.Logger{Logger: zap.NewNop()}
	return service.NewPipelineService(
		f.cfg, log, f.broker,
		f.jobRepo, f.storyRepo, f.scoreRepo,
		f.extractor, f.geocoder, passthroughCache{},
		f.scorer, f.notifier,
	)
}

func (f *pipelineFixture) enqueue(t *testing.T, job *entity.EnrichmentJob) {
	t.Helper()
	require.NoError(t, f.broker.Enqueue(context.Background(), job))
}

// pendingCount reports how many stream messages remain unacked.
func (f *pipelineFixture) pendingCount(t *testing.T) int64 {
	t.Helper()
	pending, err := f.client.XPending(context.Background(), "story.enrichment", "enrichment-group").Result()
	if err == redis.Nil {
		return 0
	}
	require.NoError(t, err)
	return pending.Count
}

func pendingJob(fingerprint string) *entity.EnrichmentJob {
	return &entity.EnrichmentJob{
		StoryFingerprint: fingerprint,
		Stage:            entity.JobStageExtract,
		Status:           entity.JobStatusPending,
		MaxAttempts:      3,
	}
}

func pendingStory(fingerprint string) *entity.Story {
	return &entity.Story{
		Fingerprint: fingerprint,
		Source:      "reuters",
		URL:         "https://example.com/a",
		Title:       "Lahar risk grows at Mount Rainier",
		RawText:     "Officials warn that Mount Rainier lahars could reach populated valleys.",
		Status:      entity.StoryStatusPending,
	}
}

func TestPipeline_HappyPath(t *testing.T) {
	f := newFixture(t)
	job := pendingJob("fp-happy")
	f.jobRepo = newMockJobRepo(job)
	f.storyRepo = newMockStoryRepo(pendingStory("fp-happy"))
	f.enqueue(t, job)

	f.build(t).ProcessTask(context.Background())

	got := f.jobRepo.jobs["fp-happy"]
	assert.Equal(t, entity.JobStatusDone, got.Status)
	assert.Equal(t, entity.JobStagePersist, got.Stage)
	assert.Equal(t, 1, got.Attempts)

	assert.Equal(t, entity.StoryStatusEnriched, f.storyRepo.stories["fp-happy"].Status)
	require.Len(t, f.scoreRepo.upserted, 1)
	assert.Equal(t, 0.8, f.scoreRepo.upserted[0].Score)
	assert.True(t, f.scoreRepo.upserted[0].Accepted)
	assert.Equal(t, entity.ScorerKindModel, f.scoreRepo.upserted[0].ScorerKind)
	require.Len(t, f.storyRepo.savedLocation, 1)
	assert.Equal(t, 46.85, f.storyRepo.savedLocation[0].Latitude)

	assert.Zero(t, f.pendingCount(t))
}

func TestPipeline_NoEntitiesDiscards(t *testing.T) {
	f := newFixture(t)
	job := pendingJob("fp-empty")
	f.jobRepo = newMockJobRepo(job)
	f.storyRepo = newMockStoryRepo(pendingStory("fp-empty"))
	f.extractor.extractFunc = func(ctx context.Context, text string) ([]dto.ExtractedEntity, error) {
		return []dto.ExtractedEntity{
			{Text: "Person Name", Type: "Person", Relevance: 0.99},
			{Text: "Earth", Type: "GeographicFeature", Relevance: 0.95},
			{Text: "Some Creek", Type: "GeographicFeature", Relevance: 0.1},
		}, nil
	}
	f.enqueue(t, job)

	f.build(t).ProcessTask(context.Background())

	got := f.jobRepo.jobs["fp-empty"]
	assert.Equal(t, entity.JobStatusDone, got.Status)
	assert.Equal(t, entity.DiscardReasonNoEntities, got.DiscardReason)
	story := f.storyRepo.stories["fp-empty"]
	assert.Equal(t, entity.StoryStatusDiscarded, story.Status)
	assert.Equal(t, entity.DiscardReasonNoEntities, story.DiscardReason)
	assert.Zero(t, f.pendingCount(t))
}

func TestPipeline_UnresolvableDiscards(t *testing.T) {
	f := newFixture(t)
	job := pendingJob("fp-nowhere")
	f.jobRepo = newMockJobRepo(job)
	f.storyRepo = newMockStoryRepo(pendingStory("fp-nowhere"))
	f.geocoder.geocodeFunc = func(ctx context.Context, text string) (*dto.GeoPoint, error) {
		return nil, nil
	}
	f.enqueue(t, job)

	f.build(t).ProcessTask(context.Background())

	got := f.jobRepo.jobs["fp-nowhere"]
	assert.Equal(t, entity.JobStatusDone, got.Status)
	assert.Equal(t, entity.DiscardReasonUnresolvable, got.DiscardReason)
	assert.Equal(t, entity.StoryStatusDiscarded, f.storyRepo.stories["fp-nowhere"].Status)
	assert.Zero(t, f.pendingCount(t))
}

func TestPipeline_DuplicateEntitiesCollapse(t *testing.T) {
	f := newFixture(t)
	job := pendingJob("fp-dup")
	f.jobRepo = newMockJobRepo(job)
	f.storyRepo = newMockStoryRepo(pendingStory("fp-dup"))
	f.extractor.extractFunc = func(ctx context.Context, text string) ([]dto.ExtractedEntity, error) {
		return []dto.ExtractedEntity{
			{Text: "Mount  Rainier", Type: "GeographicFeature", Relevance: 0.5},
			{Text: "mount rainier", Type: "GeographicFeature", Relevance: 0.9},
		}, nil
	}
	f.enqueue(t, job)

	f.build(t).ProcessTask(context.Background())

	require.Len(t, f.storyRepo.replacedWith, 1)
	assert.Equal(t, "mount rainier", f.storyRepo.replacedWith[0].NormalizedText)
	assert.Equal(t, 0.9, f.storyRepo.replacedWith[0].Relevance)
}

func TestPipeline_TransientFailureLeavesMessagePending(t *testing.T) {
	f := newFixture(t)
	job := pendingJob("fp-flaky")
	f.jobRepo = newMockJobRepo(job)
	f.storyRepo = newMockStoryRepo(pendingStory("fp-flaky"))
	f.extractor.extractFunc = func(ctx context.Context, text string) ([]dto.ExtractedEntity, error) {
		return nil, errors.New("nlp service unavailable")
	}
	f.enqueue(t, job)

	f.build(t).ProcessTask(context.Background())

	got := f.jobRepo.jobs["fp-flaky"]
	assert.Equal(t, entity.JobStatusFailed, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Contains(t, got.LastError, "nlp service unavailable")
	require.NotNil(t, got.NextRetryAt)
	assert.True(t, got.NextRetryAt.After(time.Now()))

	// unacked: the visibility timeout will redeliver it
	assert.EqualValues(t, 1, f.pendingCount(t))
}

func TestPipeline_BackoffNotElapsedSkipsJob(t *testing.T) {
	f := newFixture(t)
	job := pendingJob("fp-wait")
	next := time.Now().Add(time.Hour)
	job.Status = entity.JobStatusFailed
	job.Attempts = 1
	job.NextRetryAt = &next
	f.jobRepo = newMockJobRepo(job)
	f.storyRepo = newMockStoryRepo(pendingStory("fp-wait"))
	f.enqueue(t, job)

	svc := f.build(t)
	svc.ProcessTask(context.Background())

	// untouched and still pending redelivery
	got := f.jobRepo.jobs["fp-wait"]
	assert.Equal(t, entity.JobStatusFailed, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.EqualValues(t, 1, f.pendingCount(t))
}

func TestPipeline_RetryBudgetExhaustedDeadLetters(t *testing.T) {
	f := newFixture(t)
	job := pendingJob("fp-doomed")
	job.Status = entity.JobStatusFailed
	job.Attempts = 3
	job.LastError = "nlp service unavailable"
	f.jobRepo = newMockJobRepo(job)
	f.storyRepo = newMockStoryRepo(pendingStory("fp-doomed"))
	f.enqueue(t, job)

	f.build(t).ProcessTask(context.Background())

	got := f.jobRepo.jobs["fp-doomed"]
	assert.Equal(t, entity.JobStatusDeadLetter, got.Status)
	assert.Contains(t, got.LastError, "retry budget exhausted")
	require.Len(t, f.notifier.messages, 1)
	assert.Contains(t, f.notifier.messages[0], "fp-doomed")
	assert.Zero(t, f.pendingCount(t))
}

func TestPipeline_HumanScorerParksJob(t *testing.T) {
	f := newFixture(t)
	job := pendingJob("fp-review")
	f.jobRepo = newMockJobRepo(job)
	f.storyRepo = newMockStoryRepo(pendingStory("fp-review"))
	f.scorer = scorer.NewHumanScorer()
	f.enqueue(t, job)

	f.build(t).ProcessTask(context.Background())

	got := f.jobRepo.jobs["fp-review"]
	assert.Equal(t, entity.JobStatusPendingScore, got.Status)
	assert.Equal(t, entity.JobStageScore, got.Stage)
	assert.Empty(t, f.scoreRepo.upserted)
	// parked jobs do not occupy the stream
	assert.Zero(t, f.pendingCount(t))
}

func TestPipeline_ResumedJobSkipsEarlierStages(t *testing.T) {
	f := newFixture(t)
	job := pendingJob("fp-resumed")
	job.Stage = entity.JobStagePersist
	f.jobRepo = newMockJobRepo(job)
	f.storyRepo = newMockStoryRepo(pendingStory("fp-resumed"))
	extractCalls := 0
	f.extractor.extractFunc = func(ctx context.Context, text string) ([]dto.ExtractedEntity, error) {
		extractCalls++
		return nil, nil
	}
	f.enqueue(t, job)

	f.build(t).ProcessTask(context.Background())

	assert.Zero(t, extractCalls)
	assert.Equal(t, entity.JobStatusDone, f.jobRepo.jobs["fp-resumed"].Status)
	assert.Equal(t, entity.StoryStatusEnriched, f.storyRepo.stories["fp-resumed"].Status)
}

func TestPipeline_TerminalJobDuplicateAbsorbed(t *testing.T) {
	f := newFixture(t)
	job := pendingJob("fp-done")
	job.Status = entity.JobStatusDone
	job.Attempts = 1
	f.jobRepo = newMockJobRepo(job)
	f.storyRepo = newMockStoryRepo(pendingStory("fp-done"))
	f.enqueue(t, job)

	f.build(t).ProcessTask(context.Background())

	// absorbed without a new attempt
	assert.Equal(t, 1, f.jobRepo.jobs["fp-done"].Attempts)
	assert.Empty(t, f.scoreRepo.upserted)
	assert.Zero(t, f.pendingCount(t))
}

func TestPipeline_MissingJobRecordDropsMessage(t *testing.T) {
	f := newFixture(t)
	f.jobRepo = newMockJobRepo()
	f.storyRepo = newMockStoryRepo()
	f.enqueue(t, pendingJob("fp-ghost"))

	f.build(t).ProcessTask(context.Background())

	assert.Zero(t, f.pendingCount(t))
	require.Len(t, f.notifier.messages, 1)
	assert.Contains(t, f.notifier.messages[0], "fp-ghost")
}

package repository

import (
	"context"
	"errors"

	"geostory-pipeline/internal/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a story or job does not exist.
var ErrNotFound = errors.New("record not found")

// ReviewRepository is the review service's read/write access to jobs,
// stories and scores.
type ReviewRepository interface {
	ListJobsByStatus(ctx context.Context, status entity.JobStatus) ([]entity.EnrichmentJob, error)
	FindJobByFingerprint(ctx context.Context, fingerprint string) (*entity.EnrichmentJob, error)
	UpdateJob(ctx context.Context, job *entity.EnrichmentJob) error
	FindStoryByFingerprint(ctx context.Context, fingerprint string) (*entity.Story, error)
	UpsertScore(ctx context.Context, record *entity.ScoreRecord) error
}

// NewReviewRepository creates a new ReviewRepository.
func NewReviewRepository(db *gorm.DB) ReviewRepository {
	return &reviewRepository{db: db}
}

type reviewRepository struct {
	db *gorm.DB
}

func (r *reviewRepository) ListJobsByStatus(ctx context.Context, status entity.JobStatus) ([]entity.EnrichmentJob, error) {
	var jobs []entity.EnrichmentJob
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("updated_at ASC").
		Find(&jobs).Error
	return jobs, err
}

func (r *reviewRepository) FindJobByFingerprint(ctx context.Context, fingerprint string) (*entity.EnrichmentJob, error) {
	var job entity.EnrichmentJob
	err := r.db.WithContext(ctx).Where("story_fingerprint = ?", fingerprint).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (r *reviewRepository) UpdateJob(ctx context.Context, job *entity.EnrichmentJob) error {
	return r.db.WithContext(ctx).Save(job).Error
}

func (r *reviewRepository) FindStoryByFingerprint(ctx context.Context, fingerprint string) (*entity.Story, error) {
	var story entity.Story
	err := r.db.WithContext(ctx).
		Preload("Entities").
		Preload("Entities.Location").
		Where("fingerprint = ?", fingerprint).
		First(&story).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &story, nil
}

func (r *reviewRepository) UpsertScore(ctx context.Context, record *entity.ScoreRecord) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "story_fingerprint"}},
		DoUpdates: clause.AssignmentColumns([]string{"score", "accepted", "scorer_kind", "updated_at"}),
	}).Create(record).Error
}

package repository

import (
	"context"
	"errors"

	"geostory-pipeline/internal/entity"

	"gorm.io/gorm"
)

// JobRepository persists the enrichment job state machine.
type JobRepository interface {
	FindByFingerprint(ctx context.Context, fingerprint string) (*entity.EnrichmentJob, error)
	Update(ctx context.Context, job *entity.EnrichmentJob) error
	ListByStatus(ctx context.Context, status entity.JobStatus) ([]entity.EnrichmentJob, error)
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *gorm.DB) JobRepository {
	return &jobRepository{db: db}
}

type jobRepository struct {
	db *gorm.DB
}

func (r *jobRepository) FindByFingerprint(ctx context.Context, fingerprint string) (*entity.EnrichmentJob, error) {
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

func (r *jobRepository) Update(ctx context.Context, job *entity.EnrichmentJob) error {
	return r.db.WithContext(ctx).Save(job).Error
}

func (r *jobRepository) ListByStatus(ctx context.Context, status entity.JobStatus) ([]entity.EnrichmentJob, error) {
	var jobs []entity.EnrichmentJob
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("updated_at ASC").
		Find(&jobs).Error
	return jobs, err
}

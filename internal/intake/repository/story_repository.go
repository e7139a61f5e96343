package repository

import (
	"context"

	"geostory-pipeline/internal/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StoryRepository persists newly collected stories and their jobs.
type StoryRepository interface {
	// CreateWithJob inserts the story and its pending enrichment job in one
	// transaction. Returns false without error when the fingerprint already
	// exists, so redundant collector runs write nothing.
	CreateWithJob(ctx context.Context, story *entity.Story, job *entity.EnrichmentJob) (bool, error)
}

// NewStoryRepository creates a new StoryRepository.
func NewStoryRepository(db *gorm.DB) StoryRepository {
	return &storyRepository{db: db}
}

type storyRepository struct {
	db *gorm.DB
}

func (r *storyRepository) CreateWithJob(ctx context.Context, story *entity.Story, job *entity.EnrichmentJob) (bool, error) {
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "fingerprint"}},
			DoNothing: true,
		}).Create(story)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "story_fingerprint"}},
			DoNothing: true,
		}).Create(job).Error; err != nil {
			return err
		}

		created = true
		return nil
	})
	return created, err
}

package repository

import (
	"context"

	"geostory-pipeline/internal/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ScoreRepository persists relevance scores. One authoritative record per
// fingerprint; later writes supersede earlier ones.
type ScoreRepository interface {
	Upsert(ctx context.Context, record *entity.ScoreRecord) error
}

// NewScoreRepository creates a new ScoreRepository.
func NewScoreRepository(db *gorm.DB) ScoreRepository {
	return &scoreRepository{db: db}
}

type scoreRepository struct {
	db *gorm.DB
}

func (r *scoreRepository) Upsert(ctx context.Context, record *entity.ScoreRecord) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "story_fingerprint"}},
		DoUpdates: clause.AssignmentColumns([]string{"score", "accepted", "scorer_kind", "updated_at"}),
	}).Create(record).Error
}

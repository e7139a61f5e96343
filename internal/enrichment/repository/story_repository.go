package repository

import (
	"context"
	"errors"
	"fmt"

	"geostory-pipeline/internal/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a story or job does not exist.
var ErrNotFound = errors.New("record not found")

// StoryRepository is the enrichment side's access to story facts. All writes
// are idempotent under redelivery.
type StoryRepository interface {
	FindByFingerprint(ctx context.Context, fingerprint string) (*entity.Story, error)
	// ReplaceEntities swaps the story's extracted entity set, discarding any
	// attached locations. Re-running the extract stage converges on the same
	// rows instead of duplicating them.
	ReplaceEntities(ctx context.Context, fingerprint string, entities []entity.StoryEntity) error
	// SaveLocation attaches resolved coordinates to an entity, overwriting a
	// prior resolution for the same entity.
	SaveLocation(ctx context.Context, location *entity.GeoLocation) error
	MarkDiscarded(ctx context.Context, fingerprint string, reason entity.DiscardReason) error
	MarkEnriched(ctx context.Context, fingerprint string) error
}

// NewStoryRepository creates a new StoryRepository.
func NewStoryRepository(db *gorm.DB) StoryRepository {
	return &storyRepository{db: db}
}

type storyRepository struct {
	db *gorm.DB
}

func (r *storyRepository) FindByFingerprint(ctx context.Context, fingerprint string) (*entity.Story, error) {
	var story entity.Story
	err := r.db.WithContext(ctx).
		Preload("Entities").
		Preload("Entities.Location").
		Preload("Score").
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

func (r *storyRepository) ReplaceEntities(ctx context.Context, fingerprint string, entities []entity.StoryEntity) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existingIDs []uint
		if err := tx.Model(&entity.StoryEntity{}).
			Where("story_fingerprint = ?", fingerprint).
			Pluck("id", &existingIDs).Error; err != nil {
			return err
		}
		if len(existingIDs) > 0 {
			if err := tx.Where("entity_id IN ?", existingIDs).Delete(&entity.GeoLocation{}).Error; err != nil {
				return err
			}
			if err := tx.Where("story_fingerprint = ?", fingerprint).Delete(&entity.StoryEntity{}).Error; err != nil {
				return err
			}
		}
		if len(entities) == 0 {
			return nil
		}
		for i := range entities {
			entities[i].ID = 0
			entities[i].StoryFingerprint = fingerprint
		}
		return tx.Create(&entities).Error
	})
}

func (r *storyRepository) SaveLocation(ctx context.Context, location *entity.GeoLocation) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entity_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"latitude", "longitude", "confidence", "place_name", "raw_result"}),
	}).Create(location).Error
}

func (r *storyRepository) MarkDiscarded(ctx context.Context, fingerprint string, reason entity.DiscardReason) error {
	return r.updateStatus(ctx, fingerprint, entity.StoryStatusDiscarded, reason)
}

func (r *storyRepository) MarkEnriched(ctx context.Context, fingerprint string) error {
	return r.updateStatus(ctx, fingerprint, entity.StoryStatusEnriched, entity.DiscardReasonNone)
}

func (r *storyRepository) updateStatus(ctx context.Context, fingerprint string, status entity.StoryStatus, reason entity.DiscardReason) error {
	res := r.db.WithContext(ctx).Model(&entity.Story{}).
		Where("fingerprint = ?", fingerprint).
		Updates(map[string]interface{}{
			"status":         status,
			"discard_reason": reason,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("story %s: %w", fingerprint, ErrNotFound)
	}
	return nil
}

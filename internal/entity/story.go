package entity

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// StoryStatus tracks a story through enrichment.
type StoryStatus string

const (
	StoryStatusPending   StoryStatus = "pending"
	StoryStatusEnriched  StoryStatus = "enriched"
	StoryStatusDiscarded StoryStatus = "discarded"
)

// DiscardReason records why a story left the pipeline without a score.
type DiscardReason string

const (
	DiscardReasonNone         DiscardReason = ""
	DiscardReasonNoEntities   DiscardReason = "no-entities"
	DiscardReasonUnresolvable DiscardReason = "unresolvable"
)

// Story represents one ingested news article.
type Story struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	Fingerprint   string        `gorm:"unique;not null" json:"fingerprint"`
	Source        string        `gorm:"not null" json:"source"`
	URL           string        `gorm:"not null" json:"url"`
	Title         string        `gorm:"not null" json:"title"`
	RawText       string        `json:"raw_text"`
	PublishedAt   *time.Time    `json:"published_at,omitempty"`
	ScrapedAt     time.Time     `gorm:"not null" json:"scraped_at"`
	Status        StoryStatus   `gorm:"not null;default:pending" json:"status"`
	DiscardReason DiscardReason `json:"discard_reason,omitempty"`
	// True when the article text itself mentions satellite imagery; a cheap
	// positive signal logged for classifier training.
	MentionsSatellite bool           `json:"mentions_satellite"`
	ImageryTerms      pq.StringArray `gorm:"type:text[]" json:"imagery_terms,omitempty"`
	CreatedAt         time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	Entities          []StoryEntity  `gorm:"foreignKey:StoryFingerprint;references:Fingerprint" json:"entities"`
	Score             *ScoreRecord   `gorm:"foreignKey:StoryFingerprint;references:Fingerprint" json:"score,omitempty"`
}

// TableName specifies the table name for the Story model.
func (Story) TableName() string {
	return "stories"
}

// StoryEntity represents a candidate geographic mention extracted from a
// story's text.
type StoryEntity struct {
	ID               uint         `gorm:"primaryKey" json:"id"`
	StoryFingerprint string       `gorm:"not null;index" json:"story_fingerprint"`
	SurfaceText      string       `gorm:"not null" json:"surface_text"`
	NormalizedText   string       `gorm:"not null" json:"normalized_text"`
	EntityType       string       `gorm:"not null" json:"entity_type"`
	Relevance        float64      `gorm:"not null" json:"relevance"`
	CreatedAt        time.Time    `gorm:"autoCreateTime" json:"created_at"`
	Location         *GeoLocation `gorm:"foreignKey:EntityID" json:"location,omitempty"`
}

func (StoryEntity) TableName() string {
	return "story_entities"
}

// GeoLocation holds resolved coordinates for an entity. Absence is valid:
// the entity was dropped, not the story.
type GeoLocation struct {
	ID         uint    `gorm:"primaryKey" json:"id"`
	EntityID   uint    `gorm:"not null;index" json:"entity_id"`
	Latitude   float64 `gorm:"not null" json:"latitude"`
	Longitude  float64 `gorm:"not null" json:"longitude"`
	Confidence float64 `json:"confidence"`
	PlaceName  string  `json:"place_name"`
	// RawResult keeps the geocoder's first result verbatim for audit.
	RawResult datatypes.JSON `json:"raw_result,omitempty"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (GeoLocation) TableName() string {
	return "geo_locations"
}

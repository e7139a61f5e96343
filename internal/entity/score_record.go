package entity

import (
	"time"
)

// ScorerKind distinguishes who produced a relevance score.
type ScorerKind string

const (
	ScorerKindHuman ScorerKind = "human"
	ScorerKindModel ScorerKind = "model"
)

// ScoreRecord holds the imagery-relevance judgment for a story. At most one
// authoritative record exists per fingerprint; later writes supersede.
type ScoreRecord struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	StoryFingerprint string     `gorm:"unique;not null" json:"story_fingerprint"`
	Score            float64    `gorm:"not null" json:"score"`
	Accepted         bool       `gorm:"not null" json:"accepted"`
	ScorerKind       ScorerKind `gorm:"not null" json:"scorer_kind"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ScoreRecord) TableName() string {
	return "score_records"
}

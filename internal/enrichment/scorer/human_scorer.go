package scorer

import (
	"context"

	"geostory-pipeline/internal/entity"
)

// HumanScorer defers scoring to the review front-end. It always reports the
// score as pending; the review service later submits the ScoreRecord and
// resumes the job at the persistence stage.
type HumanScorer struct{}

// NewHumanScorer creates a HumanScorer.
func NewHumanScorer() *HumanScorer {
	return &HumanScorer{}
}

// Kind implements Scorer.
func (s *HumanScorer) Kind() entity.ScorerKind {
	return entity.ScorerKindHuman
}

// Score implements Scorer. It never produces a value in-process.
func (s *HumanScorer) Score(ctx context.Context, story *entity.Story) (float64, error) {
	return 0, ErrScorePending
}

// Package scorer computes the imagery-relevance score for a story. Two
// variants exist behind one interface: a synchronous in-process model and a
// human reviewer reached through the review service. The pipeline does not
// distinguish them beyond the interface.
package scorer

import (
	"context"
	"errors"

	"geostory-pipeline/internal/entity"
)

// ErrScorePending signals that scoring is deferred to an external reviewer;
// the job parks until a score is submitted.
var ErrScorePending = errors.New("score pending external review")

// Scorer produces a relevance score for a story given its resolved entities
// and metadata.
type Scorer interface {
	Kind() entity.ScorerKind
	Score(ctx context.Context, story *entity.Story) (float64, error)
}

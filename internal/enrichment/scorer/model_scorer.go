package scorer

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"geostory-pipeline/internal/entity"
	"geostory-pipeline/pkg/utils"
)

// NaiveBayesModel is a frozen binary multinomial naive Bayes model over a
// bag of words, trained offline and serialized to JSON.
type NaiveBayesModel struct {
	// LogPriorPositive and LogPriorNegative are the class log priors.
	LogPriorPositive float64 `json:"log_prior_positive"`
	LogPriorNegative float64 `json:"log_prior_negative"`
	// LogLikelihoodPositive and LogLikelihoodNegative map vocabulary tokens
	// to per-class log likelihoods.
	LogLikelihoodPositive map[string]float64 `json:"log_likelihood_positive"`
	LogLikelihoodNegative map[string]float64 `json:"log_likelihood_negative"`
	// DefaultLogLikelihoodPositive and ...Negative are the smoothed
	// likelihoods applied to tokens outside the vocabulary.
	DefaultLogLikelihoodPositive float64 `json:"default_log_likelihood_positive"`
	DefaultLogLikelihoodNegative float64 `json:"default_log_likelihood_negative"`
}

// ModelScorer scores a story's text with a frozen naive Bayes model,
// synchronously and in-process.
type ModelScorer struct {
	model *NaiveBayesModel
}

// NewModelScorer loads the frozen model from path.
func NewModelScorer(path string) (*ModelScorer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	var model NaiveBayesModel
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model file: %w", err)
	}
	if len(model.LogLikelihoodPositive) == 0 || len(model.LogLikelihoodNegative) == 0 {
		return nil, fmt.Errorf("model file %s has an empty vocabulary", path)
	}
	return &ModelScorer{model: &model}, nil
}

// NewModelScorerFromModel wraps an in-memory model.
func NewModelScorerFromModel(model *NaiveBayesModel) *ModelScorer {
	return &ModelScorer{model: model}
}

// Kind implements Scorer.
func (s *ModelScorer) Kind() entity.ScorerKind {
	return entity.ScorerKindModel
}

// Score implements Scorer. Returns the positive-class probability that
// satellite imagery would enhance the story.
func (s *ModelScorer) Score(ctx context.Context, story *entity.Story) (float64, error) {
	tokens := utils.Tokenize(story.Title + " " + story.RawText)
	if len(tokens) == 0 {
		return 0, fmt.Errorf("story %s has no scorable text", story.Fingerprint)
	}

	logPos := s.model.LogPriorPositive
	logNeg := s.model.LogPriorNegative
	for _, token := range tokens {
		if ll, ok := s.model.LogLikelihoodPositive[token]; ok {
			logPos += ll
		} else {
			logPos += s.model.DefaultLogLikelihoodPositive
		}
		if ll, ok := s.model.LogLikelihoodNegative[token]; ok {
			logNeg += ll
		} else {
			logNeg += s.model.DefaultLogLikelihoodNegative
		}
	}

	// normalize in log space to avoid underflow on long texts
	maxLog := math.Max(logPos, logNeg)
	pos := math.Exp(logPos - maxLog)
	neg := math.Exp(logNeg - maxLog)
	return pos / (pos + neg), nil
}

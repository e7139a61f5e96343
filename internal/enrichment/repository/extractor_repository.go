package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"geostory-pipeline/internal/enrichment/config"
	"geostory-pipeline/internal/enrichment/dto"
	"geostory-pipeline/pkg/logger"
	"geostory-pipeline/pkg/ratelimit"
)

// EntityExtractorRepository calls the NLP service to extract candidate
// geographic entities from article text. Never cached: text is unique per
// fingerprint, so there is nothing to reuse.
type EntityExtractorRepository interface {
	Extract(ctx context.Context, text string) ([]dto.ExtractedEntity, error)
}

// NewEntityExtractorRepository creates an HTTP-backed extractor client.
func NewEntityExtractorRepository(cfg *config.Config, log *logger.Logger) EntityExtractorRepository {
	return &entityExtractorRepository{
		cfg: cfg,
		log: log,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: ratelimit.NewPerMinute(cfg.Extractor.MaxRequestPerMinute),
	}
}

type entityExtractorRepository struct {
	cfg        *config.Config
	log        *logger.Logger
	httpClient *http.Client
	limiter    *ratelimit.Limiter
}

func (r *entityExtractorRepository) Extract(ctx context.Context, text string) ([]dto.ExtractedEntity, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqBody, err := json.Marshal(dto.ExtractRequest{
		Text:     text,
		Features: []string{"entities"},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Extractor.BaseURL+"/v1/analyze", bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.cfg.Extractor.APIKey)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extraction request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read extraction response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extraction service returned status %d: %s", resp.StatusCode, string(body))
	}

	var extractResp dto.ExtractResponse
	if err := json.Unmarshal(body, &extractResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal extraction response: %w", err)
	}

	r.log.Debug("Extracted entities", logger.IntField("count", len(extractResp.Entities)))
	return extractResp.Entities, nil
}

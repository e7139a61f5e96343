package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"geostory-pipeline/internal/enrichment/config"
	"geostory-pipeline/internal/enrichment/dto"
	"geostory-pipeline/pkg/logger"
	"geostory-pipeline/pkg/ratelimit"
)

// GeocoderRepository resolves entity surface text to coordinates. A nil
// result without error means the geocoder found nothing; the entity is
// dropped, not the story.
type GeocoderRepository interface {
	Geocode(ctx context.Context, text string) (*dto.GeoPoint, error)
}

// NewGeocoderRepository creates an HTTP-backed geocoder client.
func NewGeocoderRepository(cfg *config.Config, log *logger.Logger) GeocoderRepository {
	return &geocoderRepository{
		cfg: cfg,
		log: log,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		limiter: ratelimit.NewPerMinute(cfg.Geocoder.MaxRequestPerMinute),
	}
}

type geocoderRepository struct {
	cfg        *config.Config
	log        *logger.Logger
	httpClient *http.Client
	limiter    *ratelimit.Limiter
}

func (r *geocoderRepository) Geocode(ctx context.Context, text string) (*dto.GeoPoint, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("query", text)
	params.Set("key", r.cfg.Geocoder.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.Geocoder.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read geocode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocoder returned status %d: %s", resp.StatusCode, string(body))
	}

	var geoResp dto.GeocodeResponse
	if err := json.Unmarshal(body, &geoResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal geocode response: %w", err)
	}

	switch geoResp.Status {
	case "OK":
		if len(geoResp.Results) == 0 {
			return nil, nil
		}
		// only the first result is used when multiple are found
		top := geoResp.Results[0]
		raw, err := json.Marshal(top)
		if err != nil {
			return nil, fmt.Errorf("failed to re-marshal geocode result: %w", err)
		}
		return &dto.GeoPoint{
			Latitude:   top.Geometry.Location.Lat,
			Longitude:  top.Geometry.Location.Lng,
			Confidence: top.Confidence,
			PlaceName:  top.Name,
			Raw:        raw,
		}, nil
	case "ZERO_RESULTS", "INVALID_REQUEST":
		return nil, nil
	default:
		return nil, fmt.Errorf("geocode error: %s", geoResp.Status)
	}
}

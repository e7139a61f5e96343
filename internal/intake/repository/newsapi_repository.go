package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"geostory-pipeline/internal/intake/config"
	"geostory-pipeline/internal/intake/dto"
	"geostory-pipeline/pkg/logger"
	"geostory-pipeline/pkg/ratelimit"
)

// NewsAPIRepository fetches current articles from a NewsAPI-style endpoint,
// one query per configured outlet.
type NewsAPIRepository struct {
	cfg        *config.Config
	log        *logger.Logger
	httpClient *http.Client
	limiter    *ratelimit.Limiter
}

// NewNewsAPIRepository creates a NewsAPIRepository.
func NewNewsAPIRepository(cfg *config.Config, log *logger.Logger) *NewsAPIRepository {
	return &NewsAPIRepository{
		cfg: cfg,
		log: log,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		limiter: ratelimit.NewPerMinute(cfg.NewsAPI.MaxRequestPerMinute),
	}
}

// Name implements ArticleSource.
func (r *NewsAPIRepository) Name() string {
	return "newsapi"
}

// Fetch queries every configured outlet for articles inside the configured
// time window. A failing outlet is logged and skipped; articles already
// collected from earlier outlets stand.
func (r *NewsAPIRepository) Fetch(ctx context.Context) ([]dto.Article, error) {
	var articles []dto.Article
	from := time.Now().AddDate(0, 0, -r.cfg.NewsAPI.WindowDays)

	for _, outlet := range r.cfg.NewsAPI.Outlets {
		outletArticles, err := r.fetchOutlet(ctx, outlet, from)
		if err != nil {
			if ctx.Err() != nil {
				return articles, ctx.Err()
			}
			r.log.Error("Failed to fetch outlet",
				logger.StringField("outlet", outlet),
				logger.ErrorField(err))
			continue
		}
		articles = append(articles, outletArticles...)
	}

	return articles, nil
}

func (r *NewsAPIRepository) fetchOutlet(ctx context.Context, outlet string, from time.Time) ([]dto.Article, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("sources", outlet)
	params.Set("from", from.Format("2006-01-02"))
	params.Set("apiKey", r.cfg.NewsAPI.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.NewsAPI.BaseURL+"/everything?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("news api returned status %d: %s", resp.StatusCode, string(body))
	}

	var apiResp dto.NewsAPIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal news api response: %w", err)
	}
	if apiResp.Status != "ok" {
		return nil, fmt.Errorf("news api returned status %q", apiResp.Status)
	}

	articles := make([]dto.Article, 0, len(apiResp.Articles))
	for _, a := range apiResp.Articles {
		if a.URL == "" || a.Title == "" {
			continue
		}
		rawText := a.Content
		if rawText == "" {
			rawText = a.Description
		}
		articles = append(articles, dto.Article{
			Source:      outlet,
			URL:         a.URL,
			Title:       a.Title,
			RawText:     rawText,
			PublishedAt: a.PublishedAt,
		})
	}

	r.log.Debug("Fetched articles from outlet",
		logger.StringField("outlet", outlet),
		logger.IntField("count", len(articles)))

	return articles, nil
}

package repository

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"geostory-pipeline/internal/intake/config"
	"geostory-pipeline/internal/intake/dto"
	"geostory-pipeline/pkg/logger"

	"github.com/PuerkitoBio/goquery"
	"github.com/mauidude/go-readability"
	"github.com/mmcdole/gofeed"
	"github.com/patrickmn/go-cache"
)

// RSSRepository fetches articles from configured RSS feeds and extracts the
// article body from the linked page.
type RSSRepository struct {
	cfg        *config.Config
	log        *logger.Logger
	httpClient *http.Client
	// memoizes fetched article bodies so feeds sharing items within one
	// collector run do not refetch the page
	bodyCache *cache.Cache
}

// NewRSSRepository creates an RSSRepository.
func NewRSSRepository(cfg *config.Config, log *logger.Logger) *RSSRepository {
	return &RSSRepository{
		cfg: cfg,
		log: log,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
		bodyCache: cache.New(30*time.Minute, 10*time.Minute),
	}
}

// Name implements ArticleSource.
func (r *RSSRepository) Name() string {
	return "rss"
}

// Fetch parses each configured feed and resolves item bodies. A failing feed
// or item is logged and skipped.
func (r *RSSRepository) Fetch(ctx context.Context) ([]dto.Article, error) {
	var articles []dto.Article
	fp := gofeed.NewParser()

	for _, feedURL := range r.cfg.RSS.FeedURLs {
		feed, err := fp.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			if ctx.Err() != nil {
				return articles, ctx.Err()
			}
			r.log.Error("Failed to parse feed",
				logger.StringField("feed_url", feedURL),
				logger.ErrorField(err))
			continue
		}

		source := feed.Title
		if source == "" {
			source = feedURL
		}

		for _, item := range feed.Items {
			if item.Link == "" || item.Title == "" {
				continue
			}
			rawText, err := r.extractBody(ctx, item.Link)
			if err != nil {
				r.log.Warn("Failed to extract article body",
					logger.StringField("url", item.Link),
					logger.ErrorField(err))
				rawText = item.Description
			}
			articles = append(articles, dto.Article{
				Source:      source,
				URL:         item.Link,
				Title:       item.Title,
				RawText:     rawText,
				PublishedAt: item.PublishedParsed,
			})
		}
	}

	return articles, nil
}

func (r *RSSRepository) extractBody(ctx context.Context, articleURL string) (string, error) {
	if cached, found := r.bodyCache.Get(articleURL); found {
		return cached.(string), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, articleURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch article content: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch article content, status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	doc, err := readability.NewDocument(string(body))
	if err != nil {
		return "", fmt.Errorf("failed to parse article content: %w", err)
	}

	docHTML, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(doc.Content())))
	if err != nil {
		return "", fmt.Errorf("failed to parse extracted content: %w", err)
	}

	content := strings.Join(strings.Fields(docHTML.Text()), " ")
	r.bodyCache.Set(articleURL, content, cache.DefaultExpiration)
	return content, nil
}

package dto

import (
	"time"
)

// Article is one raw article record produced by a news source adapter.
type Article struct {
	Source      string     `json:"source"`
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	RawText     string     `json:"raw_text"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// NewsAPIResponse mirrors the news API everything-endpoint response body.
type NewsAPIResponse struct {
	Status       string           `json:"status"`
	TotalResults int              `json:"totalResults"`
	Articles     []NewsAPIArticle `json:"articles"`
}

// NewsAPIArticle is one article in a NewsAPIResponse.
type NewsAPIArticle struct {
	Source struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"source"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	URL         string     `json:"url"`
	Content     string     `json:"content"`
	PublishedAt *time.Time `json:"publishedAt"`
}

package dto

import (
	"time"
)

// ErrorResponse represents a generic error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// LocationResponse is a resolved coordinate pair shown to reviewers.
type LocationResponse struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Confidence float64 `json:"confidence"`
	PlaceName  string  `json:"place_name,omitempty"`
}

// EntityResponse is one extracted entity with its resolution, if any.
type EntityResponse struct {
	SurfaceText string            `json:"surface_text"`
	EntityType  string            `json:"entity_type"`
	Relevance   float64           `json:"relevance"`
	Location    *LocationResponse `json:"location,omitempty"`
}

// PendingStoryResponse is one story awaiting a human score.
type PendingStoryResponse struct {
	Fingerprint string           `json:"fingerprint"`
	Source      string           `json:"source"`
	URL         string           `json:"url"`
	Title       string           `json:"title"`
	ScrapedAt   time.Time        `json:"scraped_at"`
	ParkedAt    time.Time        `json:"parked_at"`
	Entities    []EntityResponse `json:"entities"`
}

// SubmitScoreRequest is the body of a human score submission.
type SubmitScoreRequest struct {
	Score float64 `json:"score"`
}

// DeadLetterResponse is one permanently failed job retained for inspection.
type DeadLetterResponse struct {
	Fingerprint string    `json:"fingerprint"`
	Stage       string    `json:"stage"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error"`
	FailedAt    time.Time `json:"failed_at"`
}

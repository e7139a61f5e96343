package repository

import (
	"context"

	"geostory-pipeline/internal/intake/dto"
)

// ArticleSource produces a finite batch of raw article records per
// invocation. Runs are restartable; the collector dedups across them.
type ArticleSource interface {
	Name() string
	Fetch(ctx context.Context) ([]dto.Article, error)
}

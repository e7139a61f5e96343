package repository

import (
	"context"
	"time"

	"geostory-pipeline/pkg/common"

	"github.com/redis/go-redis/v9"
)

// DedupRepository remembers story fingerprints the collector has already
// enqueued. Entries are memoization only; losing them re-enqueues stories,
// which the idempotent persistence sink absorbs.
type DedupRepository interface {
	// MarkSeen records the fingerprint and reports whether this call was the
	// first sighting. Check-and-set: concurrent collectors racing on the same
	// fingerprint see exactly one true.
	MarkSeen(ctx context.Context, fingerprint string) (bool, error)
}

// NewDedupRepository creates a Redis-backed DedupRepository. A non-positive
// ttl keeps fingerprints forever.
func NewDedupRepository(redisClient *redis.Client, ttl time.Duration) DedupRepository {
	return &dedupRepository{
		redisClient: redisClient,
		ttl:         ttl,
	}
}

type dedupRepository struct {
	redisClient *redis.Client
	ttl         time.Duration
}

func (r *dedupRepository) MarkSeen(ctx context.Context, fingerprint string) (bool, error) {
	return r.redisClient.SetNX(ctx, common.RedisKeyStorySeen+fingerprint, "1", r.ttl).Result()
}

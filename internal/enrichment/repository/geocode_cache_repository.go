package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"geostory-pipeline/internal/enrichment/dto"
	"geostory-pipeline/pkg/common"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// GeocodeCacheRepository memoizes geocoder results, positive and negative,
// keyed by normalized entity text. Populating a key is check-and-set: a
// worker claims the key with SETNX before calling out, so workers racing on
// the same key perform at most one external call and the rest wait for the
// claim holder's value.
type GeocodeCacheRepository interface {
	// GetOrPopulate returns the cached result for key, calling populate on a
	// miss. A nil GeoPoint means the entity is unresolvable (memoized
	// negative). The bool reports whether the value came from the cache.
	GetOrPopulate(ctx context.Context, key string, populate func(ctx context.Context) (*dto.GeoPoint, error)) (*dto.GeoPoint, bool, error)
}

// NewGeocodeCacheRepository creates a Redis-backed geocode cache with a
// small in-process front. A non-positive ttl keeps entries forever.
func NewGeocodeCacheRepository(redisClient *redis.Client, ttl time.Duration) GeocodeCacheRepository {
	return &geocodeCacheRepository{
		redisClient: redisClient,
		ttl:         ttl,
		localCache:  gocache.New(10*time.Minute, 15*time.Minute),
	}
}

const (
	// geocodeClaimTTL bounds how long a crashed worker's claim can block a
	// key before it falls open again.
	geocodeClaimTTL = 30 * time.Second
	// geocodeClaimPoll is how often waiting workers re-read a claimed key.
	geocodeClaimPoll = 25 * time.Millisecond
)

type geocodeCacheRepository struct {
	redisClient *redis.Client
	ttl         time.Duration
	// localCache holds values already read from Redis so entity text
	// repeating within one worker's batch skips the round trip. It is only
	// ever populated from authoritative Redis values.
	localCache *gocache.Cache
}

// cachedPoint wraps a result so a memoized negative is distinguishable from
// a local-cache miss.
type cachedPoint struct {
	point *dto.GeoPoint
}

func (r *geocodeCacheRepository) GetOrPopulate(ctx context.Context, key string, populate func(ctx context.Context) (*dto.GeoPoint, error)) (*dto.GeoPoint, bool, error) {
	redisKey := common.RedisKeyGeocode + key

	if local, found := r.localCache.Get(redisKey); found {
		return local.(cachedPoint).point, true, nil
	}

	for {
		val, err := r.redisClient.Get(ctx, redisKey).Result()
		switch {
		case err == nil && val != common.GeocodeInProgressMarker:
			point, decodeErr := decodeGeocodeValue(val)
			if decodeErr != nil {
				return nil, false, decodeErr
			}
			r.localCache.Set(redisKey, cachedPoint{point: point}, gocache.DefaultExpiration)
			return point, true, nil
		case err == nil:
			// another worker holds the claim; wait for its result
			if err := sleepContext(ctx, geocodeClaimPoll); err != nil {
				return nil, false, err
			}
			continue
		case err != redis.Nil:
			return nil, false, fmt.Errorf("failed to read geocode cache: %w", err)
		}

		claimed, err := r.redisClient.SetNX(ctx, redisKey, common.GeocodeInProgressMarker, geocodeClaimTTL).Result()
		if err != nil {
			return nil, false, fmt.Errorf("failed to claim geocode key: %w", err)
		}
		if !claimed {
			// lost the claim race; wait for the winner's value
			if err := sleepContext(ctx, geocodeClaimPoll); err != nil {
				return nil, false, err
			}
			continue
		}

		point, err := populate(ctx)
		if err != nil {
			// release the claim so a later attempt can retry
			r.redisClient.Del(ctx, redisKey)
			return nil, false, err
		}

		encoded, encodeErr := encodeGeocodeValue(point)
		if encodeErr != nil {
			r.redisClient.Del(ctx, redisKey)
			return nil, false, encodeErr
		}
		if err := r.redisClient.Set(ctx, redisKey, encoded, r.ttl).Err(); err != nil {
			return nil, false, fmt.Errorf("failed to write geocode cache: %w", err)
		}
		r.localCache.Set(redisKey, cachedPoint{point: point}, gocache.DefaultExpiration)
		return point, false, nil
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func encodeGeocodeValue(point *dto.GeoPoint) (string, error) {
	if point == nil {
		return common.GeocodeNotFoundMarker, nil
	}
	data, err := json.Marshal(point)
	if err != nil {
		return "", fmt.Errorf("failed to marshal geocode result: %w", err)
	}
	return string(data), nil
}

func decodeGeocodeValue(val string) (*dto.GeoPoint, error) {
	if val == common.GeocodeNotFoundMarker {
		return nil, nil
	}
	var point dto.GeoPoint
	if err := json.Unmarshal([]byte(val), &point); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached geocode result: %w", err)
	}
	return &point, nil
}

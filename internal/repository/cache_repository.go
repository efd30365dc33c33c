package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/academy-api/pkg/errors"
)

const academyCacheNamespace = "academy"

// AcademyCacheKey names the cached document of one kind for an academy.
func AcademyCacheKey(academyID, kind string) string {
	return fmt.Sprintf("%s:%s:%s", academyCacheNamespace, academyID, kind)
}

// CacheRepository keeps per-academy JSON documents in Redis.
type CacheRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewCacheRepository constructs a cache repository.
func NewCacheRepository(client *redis.Client, logger *zap.Logger) *CacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheRepository{client: client, logger: logger}
}

// Get decodes the academy's cached document into dest. Undecodable entries
// are dropped and reported as a miss.
func (r *CacheRepository) Get(ctx context.Context, academyID, kind string, dest interface{}) error {
	key := AcademyCacheKey(academyID, kind)
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return appErrors.ErrCacheMiss
		}
		return fmt.Errorf("redis get %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		r.logger.Warn("dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		if delErr := r.client.Del(ctx, key).Err(); delErr != nil {
			return fmt.Errorf("redis delete %s: %w", key, delErr)
		}
		return appErrors.ErrCacheMiss
	}
	return nil
}

// Set stores the academy's document of the given kind.
func (r *CacheRepository) Set(ctx context.Context, academyID, kind string, value interface{}, ttl time.Duration) error {
	key := AcademyCacheKey(academyID, kind)
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Forget removes the named kinds for an academy in one round trip. Without
// kinds every document of the academy is removed.
func (r *CacheRepository) Forget(ctx context.Context, academyID string, kinds ...string) error {
	keys := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		keys = append(keys, AcademyCacheKey(academyID, kind))
	}
	if len(keys) == 0 {
		pattern := AcademyCacheKey(academyID, "*")
		iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("redis scan %s: %w", pattern, err)
		}
		if len(keys) == 0 {
			return nil
		}
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete academy %s: %w", academyID, err)
	}
	return nil
}

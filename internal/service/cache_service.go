package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/academy-api/pkg/errors"
)

// CacheRepository stores per-academy cached documents.
type CacheRepository interface {
	Get(ctx context.Context, academyID, kind string, dest interface{}) error
	Set(ctx context.Context, academyID, kind string, value interface{}, ttl time.Duration) error
	Forget(ctx context.Context, academyID string, kinds ...string) error
}

// CacheService wraps the academy cache with hit/miss metrics. Without a
// backend every call is a miss.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
}

// NewCacheService constructs a cache service. A nil repo disables caching.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.repo != nil
}

// Get attempts to retrieve a cached document. It returns true when the cache was hit.
func (s *CacheService) Get(ctx context.Context, academyID, kind string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, academyID, kind, dest)
	duration := time.Since(start)
	if err != nil {
		s.metrics.RecordCacheOperation(false, duration)
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return false, nil
		}
		s.logger.Warn("cache get failed", zap.String("academy_id", academyID), zap.String("kind", kind), zap.Error(err))
		return false, err
	}
	s.metrics.RecordCacheOperation(true, duration)
	return true, nil
}

// Set stores the document in cache.
func (s *CacheService) Set(ctx context.Context, academyID, kind string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, academyID, kind, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("academy_id", academyID), zap.String("kind", kind), zap.Error(err))
	}
	return err
}

// Invalidate drops the named kinds, or everything, cached for an academy.
// Failures are logged and returned; callers treat them as best effort.
func (s *CacheService) Invalidate(ctx context.Context, academyID string, kinds ...string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.repo.Forget(ctx, academyID, kinds...); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("academy_id", academyID), zap.Strings("kinds", kinds), zap.Error(err))
		return err
	}
	return nil
}

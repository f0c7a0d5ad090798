package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/campus-ledger-api/pkg/errors"
)

const defaultCacheTTL = 5 * time.Minute

// CacheRepository stores JSON-encodable values under string keys.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// CacheService is a read-through cache in front of the school backend.
// Storage failures are logged and treated as misses.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service. A disabled service never hits.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = defaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{
		repo:       repo,
		metrics:    metrics,
		defaultTTL: defaultTTL,
		logger:     logger.With(zap.String("component", "cache")),
		enabled:    enabled && repo != nil,
	}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled
}

// Get decodes the entry under key into dest and reports whether it was found.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) bool {
	if !s.Enabled() {
		return false
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	hit := err == nil
	s.metrics.RecordCacheOperation(hit, time.Since(start))
	if !hit && !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("lookup failed", zap.String("key", key), zap.Error(err))
	}
	return hit
}

// Set stores value under key. A zero ttl uses the service default.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if !s.Enabled() {
		return
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	defer func() { s.metrics.ObserveCacheWrite(time.Since(start)) }()
	if err := s.repo.Set(ctx, key, value, ttl); err != nil {
		s.logger.Warn("store failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate removes keys. Unlike reads, a failed delete is returned so stale data is not served silently.
func (s *CacheService) Invalidate(ctx context.Context, keys ...string) error {
	if !s.Enabled() || len(keys) == 0 {
		return nil
	}
	err := s.repo.Delete(ctx, keys...)
	if err != nil {
		s.logger.Warn("invalidate failed", zap.Strings("keys", keys), zap.Error(err))
	}
	return err
}

// readThrough returns the cached value under key or loads, stores and returns a fresh one.
// The bool reports a cache hit.
func readThrough[T any](ctx context.Context, cache *CacheService, key string, ttl time.Duration, load func(context.Context) (*T, error)) (*T, bool, error) {
	var cached T
	if cache.Get(ctx, key, &cached) {
		return &cached, true, nil
	}
	fresh, err := load(ctx)
	if err != nil {
		return nil, false, err
	}
	cache.Set(ctx, key, fresh, ttl)
	return fresh, false, nil
}

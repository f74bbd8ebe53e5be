package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/campusops/course-request-api/pkg/errors"
)

// QueuePositionRepository describes the persistence layer required by QueueService.
type QueuePositionRepository interface {
	QueuePosition(ctx context.Context, id string) (*int, error)
}

// QueueService computes a pending request's rank in the review queue. The
// rank moves on every queue mutation, so cached values carry a TTL of a few
// seconds, matching the caller's poll interval rather than the change rate.
type QueueService struct {
	repo     QueuePositionRepository
	cache    *CacheService
	metrics  *MetricsService
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewQueueService constructs a queue service.
func NewQueueService(repo QueuePositionRepository, cache *CacheService, metrics *MetricsService, cacheTTL time.Duration, logger *zap.Logger) *QueueService {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueService{repo: repo, cache: cache, metrics: metrics, cacheTTL: cacheTTL, logger: logger}
}

type cachedPosition struct {
	Position *int `json:"position"`
}

// Position returns the request's 1-based rank among pending requests, or nil
// when the request is not pending. The boolean indicates a cache hit.
func (s *QueueService) Position(ctx context.Context, requestID string) (*int, bool, error) {
	cacheKey := queuePositionKey(requestID)
	var cached cachedPosition
	if s.cache != nil {
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err != nil {
			return nil, false, fmt.Errorf("get queue position cache: %w", err)
		} else if hit {
			return cached.Position, true, nil
		}
	}

	start := time.Now()
	position, err := s.repo.QueuePosition(ctx, requestID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute queue position")
	}
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("queue_position", time.Since(start))
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, cachedPosition{Position: position}, s.cacheTTL); err != nil {
			s.logger.Warn("cache queue position", zap.Error(err))
		}
	}
	return position, false, nil
}

// Invalidate drops all cached positions. Called when the queue population
// changes (submission, cancellation, processing, finalization).
func (s *QueueService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, "queue:position:*"); err != nil {
		s.logger.Warn("invalidate queue position cache", zap.Error(err))
	}
}

func queuePositionKey(requestID string) string {
	return "queue:position:" + requestID
}

package service

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/campusops/course-request-api/pkg/notify"
)

// WatchEvent is one row-change signal from the requests table. Consumers
// always react by re-fetching; the event carries identifiers only, never row
// data, so there is nothing to drift.
type WatchEvent struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id,omitempty"`
	Op        string `json:"op,omitempty"`
}

type queueInvalidator interface {
	Invalidate(ctx context.Context)
}

// WatchService fans change notifications out to subscribers. A subscriber
// scoped to a user only sees that user's rows; staff subscribe unscoped.
type WatchService struct {
	logger    *zap.Logger
	queue     queueInvalidator
	metrics   *MetricsService
	bufferLen int

	mu     sync.Mutex
	subs   map[int]*watchSubscriber
	nextID int
}

type watchSubscriber struct {
	ch     chan WatchEvent
	userID string
}

// WatchServiceOption configures the service.
type WatchServiceOption func(*WatchService)

// WithQueueInvalidator drops cached queue positions on every change.
func WithQueueInvalidator(queue queueInvalidator) WatchServiceOption {
	return func(s *WatchService) {
		s.queue = queue
	}
}

// WithWatchMetrics tracks the live subscription gauge.
func WithWatchMetrics(metrics *MetricsService) WatchServiceOption {
	return func(s *WatchService) {
		s.metrics = metrics
	}
}

// NewWatchService constructs the hub.
func NewWatchService(logger *zap.Logger, bufferLen int, opts ...WatchServiceOption) *WatchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bufferLen <= 0 {
		bufferLen = 8
	}
	svc := &WatchService{
		logger:    logger,
		bufferLen: bufferLen,
		subs:      make(map[int]*watchSubscriber),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Run consumes listener events until the stream closes or ctx is cancelled.
func (s *WatchService) Run(ctx context.Context, events <-chan notify.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.dispatch(ctx, ev)
		}
	}
}

// Subscribe registers a consumer. An empty userID receives every event.
// The returned cancel function must be called when the consumer goes away.
func (s *WatchService) Subscribe(userID string) (<-chan WatchEvent, func()) {
	sub := &watchSubscriber{
		ch:     make(chan WatchEvent, s.bufferLen),
		userID: userID,
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = sub
	count := len(s.subs)
	s.mu.Unlock()
	s.metrics.SetWatchSubscribers(count)

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub.ch)
		}
		count := len(s.subs)
		s.mu.Unlock()
		s.metrics.SetWatchSubscribers(count)
	}
	return sub.ch, cancel
}

// SubscriberCount reports active subscriptions.
func (s *WatchService) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *WatchService) dispatch(ctx context.Context, raw notify.Event) {
	var event WatchEvent
	if err := json.Unmarshal([]byte(raw.Payload), &event); err != nil {
		s.logger.Warn("malformed change notification", zap.String("payload", raw.Payload), zap.Error(err))
		return
	}

	if s.queue != nil {
		s.queue.Invalidate(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.userID != "" && sub.userID != event.UserID {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// slow consumer; it will re-fetch on its next event anyway
		}
	}
}

package service

import (
	"context"
	"encoding/json"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	appErrors "github.com/campusops/course-request-api/pkg/errors"
)

type cacheRepoStub struct {
	entries map[string][]byte
}

func newCacheRepoStub() *cacheRepoStub {
	return &cacheRepoStub{entries: make(map[string][]byte)}
}

func (c *cacheRepoStub) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *cacheRepoStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = raw
	return nil
}

func (c *cacheRepoStub) DeleteByPattern(ctx context.Context, pattern string) error {
	for key := range c.entries {
		if ok, _ := path.Match(pattern, key); ok {
			delete(c.entries, key)
		}
	}
	return nil
}

type positionRepoStub struct {
	positions map[string]*int
	calls     int
}

func (p *positionRepoStub) QueuePosition(ctx context.Context, id string) (*int, error) {
	p.calls++
	return p.positions[id], nil
}

func TestQueueServicePositionCaching(t *testing.T) {
	three := 3
	repo := &positionRepoStub{positions: map[string]*int{"req-1": &three}}
	cacheSvc := NewCacheService(newCacheRepoStub(), nil, time.Minute, nil, true)
	svc := NewQueueService(repo, cacheSvc, nil, time.Minute, nil)

	position, hit, err := svc.Position(context.Background(), "req-1")
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, 3, *position)
	require.Equal(t, 1, repo.calls)

	position, hit, err = svc.Position(context.Background(), "req-1")
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, 3, *position)
	require.Equal(t, 1, repo.calls)
}

func TestQueueServicePositionNilForNonPending(t *testing.T) {
	repo := &positionRepoStub{positions: map[string]*int{}}
	cacheSvc := NewCacheService(newCacheRepoStub(), nil, time.Minute, nil, true)
	svc := NewQueueService(repo, cacheSvc, nil, time.Minute, nil)

	position, hit, err := svc.Position(context.Background(), "finished")
	require.NoError(t, err)
	require.False(t, hit)
	require.Nil(t, position)

	// The nil outcome is cached too.
	position, hit, err = svc.Position(context.Background(), "finished")
	require.NoError(t, err)
	require.True(t, hit)
	require.Nil(t, position)
	require.Equal(t, 1, repo.calls)
}

func TestQueueServiceInvalidate(t *testing.T) {
	one := 1
	repo := &positionRepoStub{positions: map[string]*int{"req-1": &one}}
	cacheSvc := NewCacheService(newCacheRepoStub(), nil, time.Minute, nil, true)
	svc := NewQueueService(repo, cacheSvc, nil, time.Minute, nil)

	_, _, err := svc.Position(context.Background(), "req-1")
	require.NoError(t, err)

	svc.Invalidate(context.Background())

	_, hit, err := svc.Position(context.Background(), "req-1")
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, 2, repo.calls)
}

func TestQueueServiceWithoutCache(t *testing.T) {
	two := 2
	repo := &positionRepoStub{positions: map[string]*int{"req-1": &two}}
	svc := NewQueueService(repo, nil, nil, 0, nil)

	position, hit, err := svc.Position(context.Background(), "req-1")
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, 2, *position)
}

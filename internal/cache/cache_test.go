package cache_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"reporting-gateway/internal/cache"
	"reporting-gateway/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupRedisStore(t *testing.T) (*cache.RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	store, err := cache.NewRedisStore(context.Background(), "redis://"+mr.Addr(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store, mr
}

func sampleData(expiresAt time.Time) *models.RefreshTokenData {
	return &models.RefreshTokenData{
		UserID:      7,
		Username:    "alice",
		DisplayName: "Alice",
		Roles:       []string{"User"},
		WhiteLabels: []int{1, 2},
		Affiliates:  map[int][]string{1: {"AFF1"}},
		ExpiresAt:   expiresAt,
	}
}

// takeConcurrently races n Takes for token and returns how many got data.
func takeConcurrently(t *testing.T, store cache.RefreshTokenStore, token string, n int) int32 {
	t.Helper()
	var (
		wg   sync.WaitGroup
		hits atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			data, err := store.Take(context.Background(), token)
			assert.NoError(t, err)
			if data != nil {
				hits.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()
	return hits.Load()
}

func TestMemoryStore_TakeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()
	data := sampleData(time.Now().Add(time.Hour))

	require.NoError(t, store.Store(ctx, "tok", data, time.Hour))

	got, err := store.Take(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	got, err = store.Take(ctx, "tok")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStore_ConcurrentTake(t *testing.T) {
	store := cache.NewMemoryStore()
	require.NoError(t, store.Store(context.Background(), "tok", sampleData(time.Now().Add(time.Hour)), time.Hour))

	assert.Equal(t, int32(1), takeConcurrently(t, store, "tok", 16))
	assert.Zero(t, store.Len())
}

func TestMemoryStore_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store := cache.NewMemoryStore()

	require.NoError(t, store.Store(ctx, "old", sampleData(now.Add(-time.Second)), 0))
	require.NoError(t, store.Store(ctx, "edge", sampleData(now), 0))
	require.NoError(t, store.Store(ctx, "fresh", sampleData(now.Add(time.Minute)), 0))

	assert.Equal(t, 2, store.PurgeExpired(now))
	assert.Equal(t, 1, store.Len())

	got, err := store.Take(ctx, "fresh")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestRedisStore_StoreAndTake(t *testing.T) {
	ctx := context.Background()
	store, mr := setupRedisStore(t)
	data := sampleData(time.Now().Add(time.Hour).UTC().Truncate(time.Second))

	require.NoError(t, store.Store(ctx, "tok", data, time.Hour))
	assert.True(t, mr.Exists("refresh_token:tok"))
	assert.Equal(t, time.Hour, mr.TTL("refresh_token:tok"))

	got, err := store.Take(ctx, "tok")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, data.Username, got.Username)
	assert.Equal(t, data.Affiliates, got.Affiliates)
	assert.True(t, data.ExpiresAt.Equal(got.ExpiresAt))
	assert.False(t, mr.Exists("refresh_token:tok"))

	got, err = store.Take(ctx, "tok")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStore_ExpiredKeyIsGone(t *testing.T) {
	ctx := context.Background()
	store, mr := setupRedisStore(t)

	require.NoError(t, store.Store(ctx, "tok", sampleData(time.Now().Add(time.Minute)), time.Minute))
	mr.FastForward(2 * time.Minute)

	got, err := store.Take(ctx, "tok")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStore_ConcurrentTake(t *testing.T) {
	store, _ := setupRedisStore(t)
	require.NoError(t, store.Store(context.Background(), "tok", sampleData(time.Now().Add(time.Hour)), time.Hour))

	assert.Equal(t, int32(1), takeConcurrently(t, store, "tok", 8))
}

func TestRedisStore_CorruptPayload(t *testing.T) {
	store, mr := setupRedisStore(t)
	require.NoError(t, mr.Set("refresh_token:bad", "{not json"))

	_, err := store.Take(context.Background(), "bad")
	assert.Error(t, err)
}

func TestNewRedisStore_InvalidURL(t *testing.T) {
	_, err := cache.NewRedisStore(context.Background(), "invalid://url", zap.NewNop())
	assert.Error(t, err)
}

func TestRedisLimiter(t *testing.T) {
	ctx := context.Background()
	store, mr := setupRedisStore(t)
	limiter := cache.NewRedisLimiter(store, 2, time.Minute)

	for i := 0; i < 2; i++ {
		ok, err := limiter.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = limiter.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(time.Minute + time.Second)
	ok, err = limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLimiter(t *testing.T) {
	ctx := context.Background()
	limiter := cache.NewMemoryLimiter(3, time.Hour)

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "client")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := limiter.Allow(ctx, "client")
	assert.False(t, ok)

	ok, _ = limiter.Allow(ctx, "other")
	assert.True(t, ok)

	limiter.PurgeIdle(-time.Second)
	ok, _ = limiter.Allow(ctx, "client")
	assert.True(t, ok)
}

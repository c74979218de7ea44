package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/cloudvault/pkg/cache"
	"github.com/yeisme/cloudvault/pkg/internal/storage/kv"
)

type view struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func newCache(t *testing.T) (*cache.Cache, kv.KVStore) {
	t.Helper()

	store, err := kv.NewMemoryKV(context.Background(), nil)
	require.NoError(t, err)

	return cache.New(store, "share", time.Minute), store
}

func TestLoadFillsAndHits(t *testing.T) {
	ctx := context.Background()
	c, store := newCache(t)

	var calls atomic.Int32
	loader := func(context.Context) (view, error) {
		calls.Add(1)

		return view{ID: "sh_1", Name: "a.png"}, nil
	}

	v, err := cache.Load(ctx, c, "sh_1", loader)
	require.NoError(t, err)
	assert.Equal(t, "a.png", v.Name)

	ok, err := store.Exists(ctx, "share:sh_1")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = cache.Load(ctx, c, "sh_1", loader)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestLoadErrorNotCached(t *testing.T) {
	ctx := context.Background()
	c, _ := newCache(t)
	boom := errors.New("db down")

	_, err := cache.Load(ctx, c, "x", func(context.Context) (view, error) { return view{}, boom })
	require.ErrorIs(t, err, boom)

	_, err = cache.Get[view](ctx, c, "x")
	assert.ErrorIs(t, err, kv.ErrKeyNotFound)
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	c, _ := newCache(t)

	require.NoError(t, cache.Set(ctx, c, "a", view{ID: "a"}))
	require.NoError(t, c.Invalidate(ctx, "a", "missing"))

	_, err := cache.Get[view](ctx, c, "a")
	assert.ErrorIs(t, err, kv.ErrKeyNotFound)
}

func TestNilCacheFallsThrough(t *testing.T) {
	var c *cache.Cache

	v, err := cache.Load(context.Background(), c, "a", func(context.Context) (view, error) {
		return view{ID: "a"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "a", v.ID)
	assert.False(t, c.Enabled())
	assert.NoError(t, c.Invalidate(context.Background(), "a"))
}

func TestLoadCoalescesConcurrentMisses(t *testing.T) {
	ctx := context.Background()
	c, _ := newCache(t)

	var calls atomic.Int32

	release := make(chan struct{})

	var wg sync.WaitGroup

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, _ = cache.Load(ctx, c, "hot", func(context.Context) (view, error) {
				calls.Add(1)
				<-release

				return view{ID: "hot"}, nil
			})
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(8))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func BenchmarkLoadHit(b *testing.B) {
	store, _ := kv.NewMemoryKV(context.Background(), nil)
	c := cache.New(store, "bench", time.Minute)
	ctx := context.Background()
	_ = cache.Set(ctx, c, "k", view{ID: "k", Name: "bench"})

	b.ResetTimer()

	for b.Loop() {
		_, _ = cache.Load(ctx, c, "k", func(context.Context) (view, error) { return view{}, nil })
	}
}

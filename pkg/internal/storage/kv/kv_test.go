package kv_test

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/cloudvault/pkg/configs"
	"github.com/yeisme/cloudvault/pkg/internal/storage/kv"
)

func localStores(t testing.TB) map[string]kv.KVStore {
	t.Helper()

	cfg := &configs.KVConfig{
		LRU:        configs.LRUKVConfig{Size: 128},
		Groupcache: configs.GroupcacheKVConfig{Name: "test-groupcache", CacheBytes: 8 << 20},
	}

	out := map[string]kv.KVStore{}

	for _, typ := range []configs.KVType{configs.KVTypeMemory, configs.KVTypeLRU, configs.KVTypeGroupcache} {
		store, err := kv.NewKVStore(context.Background(), typ, cfg)
		require.NoError(t, err)

		out[string(typ)] = store
	}

	return out
}

func TestLocalStoresBasicOps(t *testing.T) {
	ctx := context.Background()

	for name, store := range localStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(ctx, "missing")
			assert.True(t, errors.Is(err, kv.ErrKeyNotFound))

			require.NoError(t, store.Set(ctx, "share:sh_1", []byte("v1"), 0))

			got, err := store.Get(ctx, "share:sh_1")
			require.NoError(t, err)
			assert.Equal(t, []byte("v1"), got)

			// 覆盖写入后必须读到新值，groupcache 依赖版本号失效旧条目
			require.NoError(t, store.Set(ctx, "share:sh_1", []byte("v2"), 0))

			got, err = store.Get(ctx, "share:sh_1")
			require.NoError(t, err)
			assert.Equal(t, []byte("v2"), got)

			keys, err := store.Keys(ctx, "share:*")
			require.NoError(t, err)
			assert.Equal(t, []string{"share:sh_1"}, keys)

			require.NoError(t, store.Delete(ctx, "share:sh_1"))

			ok, err := store.Exists(ctx, "share:sh_1")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.Close())
		})
	}
}

func TestLocalStoresHonorTTL(t *testing.T) {
	ctx := context.Background()

	for name, store := range localStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Set(ctx, "ttl", []byte("x"), time.Second))

			ok, err := store.Exists(ctx, "ttl")
			require.NoError(t, err)
			assert.True(t, ok)

			time.Sleep(1100 * time.Millisecond)

			_, err = store.Get(ctx, "ttl")
			assert.True(t, errors.Is(err, kv.ErrKeyNotFound))
		})
	}
}

func TestLRUEvictsOldest(t *testing.T) {
	ctx := context.Background()
	store, err := kv.NewKVStore(ctx, configs.KVTypeLRU, &configs.KVConfig{LRU: configs.LRUKVConfig{Size: 2}})
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, store.Set(ctx, "b", []byte("2"), 0))
	require.NoError(t, store.Set(ctx, "c", []byte("3"), 0))

	_, err = store.Get(ctx, "a")
	assert.True(t, errors.Is(err, kv.ErrKeyNotFound))
}

func TestNewClientUnknownType(t *testing.T) {
	_, err := kv.NewClient(context.Background(), configs.KVConfig{Type: "etcd"})
	require.Error(t, err)
	assert.Contains(t, kv.GetRegisteredKVTypes(), configs.KVTypeLRU)
}

func BenchmarkLocalKV(b *testing.B) {
	for name, store := range localStores(b) {
		benchKV(b, name, store)
		benchKVParallel(b, name, store)
		_ = store.Close()
	}
}

// Optional: enable with ENABLE_REDIS_BENCH=1 and REDIS_ADDR set (default 127.0.0.1:6379).
func BenchmarkRedisKV(b *testing.B) {
	if os.Getenv("ENABLE_REDIS_BENCH") == "" {
		b.Skip("set ENABLE_REDIS_BENCH=1 to enable")
	}

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}

	store, err := kv.NewKVStore(context.Background(), configs.KVTypeRedis, &configs.KVConfig{Redis: configs.RedisKVConfig{Addr: addr}})
	if err != nil {
		b.Skipf("redis not available: %v", err)
	}

	benchKV(b, "redis", store)
	benchKVParallel(b, "redis", store)
	_ = store.Close()
}

// Optional: enable with ENABLE_NATS_BENCH=1 and NATS_URL set (default nats://127.0.0.1:4222).
func BenchmarkNATSKV(b *testing.B) {
	if os.Getenv("ENABLE_NATS_BENCH") == "" {
		b.Skip("set ENABLE_NATS_BENCH=1 to enable")
	}

	url := os.Getenv("NATS_URL")
	if url == "" {
		url = "nats://127.0.0.1:4222"
	}

	cfg := &configs.KVConfig{NATS: configs.NATSKVConfig{URL: url, Bucket: "bench-kv"}}

	store, err := kv.NewKVStore(context.Background(), configs.KVTypeNATS, cfg)
	if err != nil {
		b.Skipf("nats not available: %v", err)
	}

	benchKV(b, "nats", store)
	benchKVParallel(b, "nats", store)
	_ = store.Close()
}

func randBytes(n int) []byte {
	b := make([]byte, n)
	_, _ = crand.Read(b)

	return b
}

// benchKV 执行基本的 Set/Get/Delete 基准测试.
func benchKV(b *testing.B, name string, store kv.KVStore) {
	ctx := context.Background()

	for _, size := range []int{32, 1024, 64 * 1024} {
		payload := randBytes(size)
		for _, ttl := range []time.Duration{0, 5 * time.Second} {
			b.Run(fmt.Sprintf("%s/size=%d/ttl=%s", name, size, ttl), func(b *testing.B) {
				b.ReportAllocs()

				for i := 0; b.Loop(); i++ {
					// 使用连字符保证键对 NATS KV 合法
					key := fmt.Sprintf("bench-%s-%d", name, i)
					if err := store.Set(ctx, key, payload, ttl); err != nil {
						b.Fatalf("set failed: %v", err)
					}

					if _, err := store.Get(ctx, key); err != nil {
						b.Fatalf("get failed: %v", err)
					}

					if err := store.Delete(ctx, key); err != nil {
						b.Fatalf("delete failed: %v", err)
					}
				}
			})
		}
	}
}

// benchKVParallel 执行并行的 Set/Get/Delete 基准测试.
func benchKVParallel(b *testing.B, name string, store kv.KVStore) {
	ctx := context.Background()
	payload := randBytes(1024)

	var ctr uint64

	b.Run(name+"/parallel", func(b *testing.B) {
		b.ReportAllocs()
		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				key := fmt.Sprintf("bench-%s-p-%d", name, atomic.AddUint64(&ctr, 1))
				if err := store.Set(ctx, key, payload, 0); err != nil {
					b.Errorf("set failed: %v", err)

					return
				}

				if _, err := store.Get(ctx, key); err != nil {
					b.Errorf("get failed: %v", err)

					return
				}

				_ = store.Delete(ctx, key)
			}
		})
	})
}

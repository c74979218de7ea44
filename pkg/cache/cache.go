// Package cache 在 kv.KVStore 之上提供带命名空间的泛型读穿缓存.
//
// 值使用 sonic 序列化；同一键的并发回源通过 singleflight 合并.
// 缓存从不作为权威数据源：调用方在写入权威数据后负责 Invalidate.
//
//	c := cache.New(store, "share", 5*time.Minute)
//	view, err := cache.Load(ctx, c, id, func(ctx context.Context) (View, error) {
//		return loadFromDB(ctx, id)
//	})
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"golang.org/x/sync/singleflight"

	"github.com/yeisme/cloudvault/pkg/internal/storage/kv"
)

// Cache 基于 KV 存储的缓存，nil 或未配置存储时所有读取直接回源.
type Cache struct {
	store  kv.KVStore
	prefix string
	ttl    time.Duration
	group  singleflight.Group
}

// New 创建缓存，prefix 作为键前缀（自动补 ':'），ttl<=0 表示不过期.
func New(store kv.KVStore, prefix string, ttl time.Duration) *Cache {
	if prefix != "" {
		prefix += ":"
	}

	return &Cache{store: store, prefix: prefix, ttl: ttl}
}

// Enabled 是否配置了底层存储.
func (c *Cache) Enabled() bool {
	return c != nil && c.store != nil
}

// Key 返回带前缀的完整键.
func (c *Cache) Key(id string) string {
	return c.prefix + id
}

// Get 读取缓存值，未命中返回 kv.ErrKeyNotFound.
func Get[T any](ctx context.Context, c *Cache, id string) (T, error) {
	var zero T

	if !c.Enabled() {
		return zero, kv.ErrKeyNotFound
	}

	data, err := c.store.Get(ctx, c.Key(id))
	if err != nil {
		return zero, err
	}

	var value T
	if err := sonic.Unmarshal(data, &value); err != nil {
		return zero, fmt.Errorf("failed to unmarshal cache value: %w", err)
	}

	return value, nil
}

// Set 写入缓存值.
func Set[T any](ctx context.Context, c *Cache, id string, value T) error {
	if !c.Enabled() {
		return nil
	}

	data, err := sonic.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	return c.store.Set(ctx, c.Key(id), data, c.ttl)
}

// Load 读穿：命中直接返回，未命中时合并并发回源并回填.
// 回填失败不影响返回值；回源错误原样返回且不缓存.
func Load[T any](ctx context.Context, c *Cache, id string, loader func(context.Context) (T, error)) (T, error) {
	if v, err := Get[T](ctx, c, id); err == nil {
		return v, nil
	}

	if c == nil {
		return loader(ctx)
	}

	v, err, _ := c.group.Do(c.Key(id), func() (any, error) {
		value, err := loader(ctx)
		if err != nil {
			return value, err
		}

		_ = Set(ctx, c, id, value)

		return value, nil
	})
	if err != nil {
		var zero T

		return zero, err
	}

	return v.(T), nil
}

// Invalidate 删除若干键，不存在的键不视为错误.
func (c *Cache) Invalidate(ctx context.Context, ids ...string) error {
	if !c.Enabled() {
		return nil
	}

	var errs []error

	for _, id := range ids {
		if err := c.store.Delete(ctx, c.Key(id)); err != nil && !errors.Is(err, kv.ErrKeyNotFound) {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

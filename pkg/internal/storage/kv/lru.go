package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/yeisme/cloudvault/pkg/configs"
)

// LRUKV 基于 golang-lru expirable 的有界内存 KV，超出容量时淘汰最久未使用的键.
// 容器级 TTL 来自配置，单键 TTL 通过 TTL 包装实现.
type LRUKV struct {
	cache *expirable.LRU[string, []byte]
}

// NewLRUKV 创建 LRU KV 实例.
func NewLRUKV(_ context.Context, cfg *configs.KVConfig) (KVStore, error) {
	size := cfg.LRU.Size
	if size <= 0 {
		return nil, fmt.Errorf("invalid lru size: %d", size)
	}

	return &LRUKV{cache: expirable.NewLRU[string, []byte](size, nil, cfg.LRU.TTL)}, nil
}

// Get 获取键的值.
func (l *LRUKV) Get(_ context.Context, key string) ([]byte, error) {
	raw, ok := l.cache.Get(key)
	if !ok {
		return nil, notFound(key)
	}

	val, expired, _, err := decodeWithTTL(raw, time.Now())
	if err != nil {
		return nil, err
	}

	if expired {
		l.cache.Remove(key)

		return nil, notFound(key)
	}

	return append([]byte(nil), val...), nil
}

// Set 设置键的值.
func (l *LRUKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	encoded, wrapped, err := encodeWithTTL(value, ttl)
	if err != nil {
		return err
	}

	if !wrapped {
		encoded = append([]byte(nil), value...)
	}

	l.cache.Add(key, encoded)

	return nil
}

// Delete 删除键.
func (l *LRUKV) Delete(_ context.Context, key string) error {
	l.cache.Remove(key)

	return nil
}

// Exists 检查键是否存在.
func (l *LRUKV) Exists(ctx context.Context, key string) (bool, error) {
	if _, err := l.Get(ctx, key); err != nil {
		return false, nil
	}

	return true, nil
}

// Keys 获取匹配的键.
func (l *LRUKV) Keys(_ context.Context, pattern string) ([]string, error) {
	keys := make([]string, 0, l.cache.Len())
	for _, k := range l.cache.Keys() {
		if matchPattern(pattern, k) {
			keys = append(keys, k)
		}
	}

	return keys, nil
}

// Close 清空缓存.
func (l *LRUKV) Close() error {
	l.cache.Purge()

	return nil
}

func init() {
	RegisterKVFactory(configs.KVTypeLRU, NewLRUKV)
}

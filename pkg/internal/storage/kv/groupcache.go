package kv

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang/groupcache"

	"github.com/yeisme/cloudvault/pkg/configs"
)

// GroupcacheKV 基于 Groupcache 的 KV 实现.
// groupcache 的条目不可变，这里为每个键维护版本号，读取时使用 "key#version" 作为缓存键，
// Set/Delete 递增版本，使旧条目自然失效.
type GroupcacheKV struct {
	cache    *groupcache.Group
	peers    *groupcache.HTTPPool
	data     map[string][]byte
	versions map[string]uint64
	mu       sync.RWMutex
}

// groupcacheGetter 实现 groupcache.Getter 接口，从本地数据回源.
type groupcacheGetter struct {
	kv *GroupcacheKV
}

func (g *groupcacheGetter) Get(_ context.Context, versioned string, dest groupcache.Sink) error {
	key := versioned
	if i := strings.LastIndexByte(versioned, '#'); i >= 0 {
		key = versioned[:i]
	}

	g.kv.mu.RLock()
	value, exists := g.kv.data[key]
	g.kv.mu.RUnlock()

	if !exists {
		return notFound(key)
	}

	if err := dest.SetBytes(value); err != nil {
		return fmt.Errorf("failed to set bytes to sink: %w", err)
	}

	return nil
}

var (
	groupsMu sync.Mutex
	groupSeq int
)

// NewGroupcacheKV 创建 Groupcache KV 实例.
func NewGroupcacheKV(_ context.Context, cfg *configs.KVConfig) (KVStore, error) {
	gcConfig := cfg.Groupcache
	if gcConfig.Name == "" {
		return nil, fmt.Errorf("invalid Groupcache config: empty name")
	}

	kv := &GroupcacheKV{
		data:     make(map[string][]byte),
		versions: make(map[string]uint64),
	}

	// groupcache 禁止重复注册同名 group，同进程多实例时追加序号
	groupsMu.Lock()
	name := gcConfig.Name
	if groupcache.GetGroup(name) != nil {
		groupSeq++
		name = name + "-" + strconv.Itoa(groupSeq)
	}

	kv.cache = groupcache.NewGroup(name, gcConfig.CacheBytes, &groupcacheGetter{kv: kv})
	groupsMu.Unlock()

	if len(gcConfig.Peers) > 0 {
		kv.peers = groupcache.NewHTTPPoolOpts(gcConfig.Self, &groupcache.HTTPPoolOptions{})
		kv.peers.Set(gcConfig.Peers...)
	}

	return kv, nil
}

func (g *GroupcacheKV) cacheKey(key string) string {
	g.mu.RLock()
	v := g.versions[key]
	g.mu.RUnlock()

	return key + "#" + strconv.FormatUint(v, 10)
}

// Get 获取键的值.
func (g *GroupcacheKV) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte

	if err := g.cache.Get(ctx, g.cacheKey(key), groupcache.AllocatingByteSliceSink(&data)); err != nil {
		return nil, notFound(key)
	}

	val, expired, _, err := decodeWithTTL(data, time.Now())
	if err != nil {
		return nil, err
	}

	if expired {
		_ = g.Delete(ctx, key)

		return nil, notFound(key)
	}

	return append([]byte(nil), val...), nil
}

// Set 设置键的值.
func (g *GroupcacheKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	encoded, wrapped, err := encodeWithTTL(value, ttl)
	if err != nil {
		return err
	}

	if !wrapped {
		encoded = append([]byte(nil), value...)
	}

	g.mu.Lock()
	g.data[key] = encoded
	g.versions[key]++
	g.mu.Unlock()

	return nil
}

// Delete 删除键.
func (g *GroupcacheKV) Delete(_ context.Context, key string) error {
	g.mu.Lock()
	delete(g.data, key)
	g.versions[key]++
	g.mu.Unlock()

	return nil
}

// Exists 检查键是否存在.
func (g *GroupcacheKV) Exists(ctx context.Context, key string) (bool, error) {
	if _, err := g.Get(ctx, key); err != nil {
		return false, nil
	}

	return true, nil
}

// Keys 获取匹配的键.
func (g *GroupcacheKV) Keys(_ context.Context, pattern string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	keys := make([]string, 0, len(g.data))
	for key := range g.data {
		if matchPattern(pattern, key) {
			keys = append(keys, key)
		}
	}

	return keys, nil
}

// Close 关闭缓存，groupcache 没有显式的关闭方法.
func (g *GroupcacheKV) Close() error {
	return nil
}

func init() {
	RegisterKVFactory(configs.KVTypeGroupcache, NewGroupcacheKV)
}

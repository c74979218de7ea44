package middleware

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gin-gonic/gin"

	appcache "github.com/yeisme/cloudvault/pkg/cache"
)

// DefaultMaxBodyBytes 缓存响应体的默认上限.
const DefaultMaxBodyBytes = 1 << 20

// CacheConfig 响应缓存中间件配置.
type CacheConfig struct {
	Cache *appcache.Cache // 必须，TTL 由 Cache 决定

	KeyFunc     func(*gin.Context) string // 生成缓存键，默认按用户 + 路由 + 排序后的 query
	Skipper     func(*gin.Context) bool   // 返回 true 跳过缓存
	VaryHeaders []string                  // 参与 Key 的 Header 列表

	BypassHeader string // 请求头存在该 header(任意值) 则跳过缓存, 默认: X-Cache-Bypass
	MaxBodyBytes int    // 缓存响应体最大字节 (0=不限制)
}

// DefaultCacheConfig 返回一份默认配置.
func DefaultCacheConfig(c *appcache.Cache) CacheConfig {
	return CacheConfig{
		Cache:        c,
		BypassHeader: "X-Cache-Bypass",
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
}

// CacheMiddleware 缓存 GET/HEAD 的 200 响应.
//   - 缓存键默认包含已认证用户 ID，不同用户互不可见
//   - 支持 ETag / If-None-Match，命中时 X-Cache: HIT
//   - 响应含 Cache-Control: no-store/private 时不缓存
//   - 缓存读写失败不影响主流程
func CacheMiddleware(cfg CacheConfig) gin.HandlerFunc {
	if !cfg.Cache.Enabled() {
		return func(c *gin.Context) { c.Next() }
	}

	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(c *gin.Context) string { return buildDefaultKey(c, cfg.VaryHeaders) }
	}

	if cfg.BypassHeader == "" {
		cfg.BypassHeader = "X-Cache-Bypass"
	}

	return func(c *gin.Context) {
		if shouldBypass(c, cfg) {
			c.Next()

			return
		}

		key := cfg.KeyFunc(c)
		if serveFromCache(c, cfg, key) {
			return
		}

		c.Writer.Header().Set("X-Cache", "MISS")

		bw := &bodyCaptureWriter{ResponseWriter: c.Writer, max: cfg.MaxBodyBytes}
		c.Writer = bw
		c.Next()
		store(c, cfg, key, bw)
	}
}

// responseCacheEntry 序列化存储结构.
type responseCacheEntry struct {
	Status   int               `json:"s"`
	Header   map[string]string `json:"h,omitempty"`
	Body     []byte            `json:"b,omitempty"`
	ETag     string            `json:"e,omitempty"`
	StoredAt int64             `json:"t"` // unix nano, 用于 Age
}

// buildDefaultKey 方法 + 用户 + 路由 + 排序 query + 排序 vary headers，再做 xxhash.
func buildDefaultKey(c *gin.Context, vary []string) string {
	var b strings.Builder

	b.WriteString(c.Request.Method)
	b.WriteByte(':')
	b.WriteString(UserID(c))
	b.WriteByte(':')

	full := c.FullPath()
	if full == "" {
		full = c.Request.URL.Path
	}

	b.WriteString(full)

	if q := c.Request.URL.Query(); len(q) > 0 {
		keys := make([]string, 0, len(q))
		for k := range q {
			keys = append(keys, k)
		}

		sort.Strings(keys)
		b.WriteByte('?')

		for i, k := range keys {
			if i > 0 {
				b.WriteByte('&')
			}

			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(strings.Join(q[k], ","))
		}
	}

	if len(vary) > 0 {
		hs := append([]string(nil), vary...)
		sort.Strings(hs)
		b.WriteString("|hv=")

		for i, h := range hs {
			if i > 0 {
				b.WriteByte('&')
			}

			b.WriteString(h)
			b.WriteByte('=')
			b.WriteString(c.GetHeader(h))
		}
	}

	return fmt.Sprintf("rc:%x", xxhash.Sum64String(b.String()))
}

// bodyCaptureWriter 包装响应写入用于捕获 body.
type bodyCaptureWriter struct {
	gin.ResponseWriter

	buf       bytes.Buffer
	max       int
	truncated bool
}

// Write 捕获响应体, 超过上限后只透传不再捕获.
func (w *bodyCaptureWriter) Write(b []byte) (int, error) {
	if !w.truncated {
		if w.max > 0 && w.buf.Len()+len(b) > w.max {
			w.truncated = true
		} else {
			w.buf.Write(b)
		}
	}

	return w.ResponseWriter.Write(b)
}

func shouldBypass(c *gin.Context, cfg CacheConfig) bool {
	if cfg.Skipper != nil && cfg.Skipper(c) {
		return true
	}

	if m := c.Request.Method; m != http.MethodGet && m != http.MethodHead {
		return true
	}

	return cfg.BypassHeader != "" && c.GetHeader(cfg.BypassHeader) != ""
}

// serveFromCache 尝试从缓存提供响应; 成功返回 true.
func serveFromCache(c *gin.Context, cfg CacheConfig, key string) bool {
	entry, err := appcache.Get[responseCacheEntry](c.Request.Context(), cfg.Cache, key)
	if err != nil {
		return false
	}

	h := c.Writer.Header()
	for k, v := range entry.Header {
		h.Set(k, v)
	}

	h.Set("ETag", entry.ETag)
	h.Set("Age", fmt.Sprintf("%.0f", time.Since(time.Unix(0, entry.StoredAt)).Seconds()))
	h.Set("X-Cache", "HIT")

	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == entry.ETag {
		c.AbortWithStatus(http.StatusNotModified)

		return true
	}

	c.Status(entry.Status)

	if c.Request.Method != http.MethodHead {
		_, _ = c.Writer.Write(entry.Body)
	}

	c.Abort()

	return true
}

func cacheable(h http.Header) bool {
	cc := strings.ToLower(h.Get("Cache-Control"))

	return !strings.Contains(cc, "no-store") && !strings.Contains(cc, "private")
}

// store 写入缓存. 响应头此时已发出，ETag 只随后续命中返回.
func store(c *gin.Context, cfg CacheConfig, key string, bw *bodyCaptureWriter) {
	if c.Writer.Status() != http.StatusOK || bw.truncated || !cacheable(c.Writer.Header()) {
		return
	}

	body := bytes.Clone(bw.buf.Bytes())
	hdr := make(map[string]string)

	for k, v := range c.Writer.Header() {
		if len(v) > 0 && k != "X-Cache" {
			hdr[k] = v[0]
		}
	}

	etag := c.Writer.Header().Get("ETag")
	if etag == "" {
		etag = fmt.Sprintf("\"%x\"", xxhash.Sum64(body))
	}

	entry := responseCacheEntry{Status: http.StatusOK, Header: hdr, Body: body, ETag: etag, StoredAt: time.Now().UnixNano()}
	_ = appcache.Set(context.WithoutCancel(c.Request.Context()), cfg.Cache, key, entry)
}

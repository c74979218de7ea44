package s3

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"sort"
	"sync"
	"time"
)

// MemoryGateway 进程内对象存储，供本地开发与测试使用.
type MemoryGateway struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	// FailPut 非空时，对匹配键的 Put 返回该错误.
	FailPut func(key string) error
	// FailDelete 非空时，对匹配键的 Delete 返回该错误.
	FailDelete func(key string) error
	puts       int
}

type memoryObject struct {
	data        []byte
	contentType string
	meta        map[string]string
	etag        string
}

var _ Gateway = (*MemoryGateway)(nil)

// NewMemoryGateway 创建空的内存网关.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{objects: map[string]memoryObject{}}
}

func (m *MemoryGateway) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string, meta map[string]string) (PutResult, error) {
	if m.FailPut != nil {
		if err := m.FailPut(key); err != nil {
			return PutResult{}, err
		}
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return PutResult{}, fmt.Errorf("read body: %w", err)
	}

	sum := md5.Sum(data)
	etag := hex.EncodeToString(sum[:])

	m.mu.Lock()
	m.objects[key] = memoryObject{data: data, contentType: contentType, meta: meta, etag: etag}
	m.puts++
	m.mu.Unlock()

	return PutResult{Key: key, Location: "memory://" + key, ETag: etag}, nil
}

func (m *MemoryGateway) Get(_ context.Context, key string, maxBytes int64) ([]byte, error) {
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}

	data := obj.data
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		data = data[:maxBytes]
	}

	return bytes.Clone(data), nil
}

func (m *MemoryGateway) SignedDownloadURL(_ context.Context, key string, ttl time.Duration, fileName string) (string, error) {
	q := url.Values{}
	q.Set("expires", ttl.String())

	if fileName != "" {
		q.Set("filename", fileName)
	}

	return "memory://" + key + "?" + q.Encode(), nil
}

func (m *MemoryGateway) Delete(_ context.Context, key string) error {
	if m.FailDelete != nil {
		if err := m.FailDelete(key); err != nil {
			return err
		}
	}

	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()

	return nil
}

func (m *MemoryGateway) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.objects[key]

	return ok, nil
}

func (m *MemoryGateway) Head(_ context.Context, key string) (ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return ObjectInfo{}, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}

	return ObjectInfo{Size: int64(len(obj.data)), ContentType: obj.contentType, ETag: obj.etag}, nil
}

// Keys 返回当前所有键（有序）.
func (m *MemoryGateway) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// PutCount 返回累计 Put 次数.
func (m *MemoryGateway) PutCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.puts
}

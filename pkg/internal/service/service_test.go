package service_test

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yeisme/cloudvault/pkg/configs"
	"github.com/yeisme/cloudvault/pkg/internal/model"
	"github.com/yeisme/cloudvault/pkg/internal/service"
	"github.com/yeisme/cloudvault/pkg/internal/storage/kv"
	"github.com/yeisme/cloudvault/pkg/internal/storage/s3"
	"github.com/yeisme/cloudvault/pkg/internal/store"
)

// clock 可推进的测试时钟.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// recordingScheduler 记录调度的复扫目标.
type recordingScheduler struct {
	mu      sync.Mutex
	targets []service.RescanTarget
}

func (r *recordingScheduler) Schedule(_ context.Context, t service.RescanTarget) error {
	r.mu.Lock()
	r.targets = append(r.targets, t)
	r.mu.Unlock()

	return nil
}

func (r *recordingScheduler) Targets() []service.RescanTarget {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]service.RescanTarget(nil), r.targets...)
}

type env struct {
	cfg     *configs.AppConfig
	store   *store.Store
	objects *s3.MemoryGateway
	rescans *recordingScheduler
	clock   *clock
	svc     *service.Services
}

func newEnv(t *testing.T, mutate ...func(*service.Deps)) *env {
	t.Helper()

	cfg, err := configs.Load(viper.New())
	require.NoError(t, err)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	st := store.New(gdb)
	require.NoError(t, st.Migrate(context.Background()))

	cache, err := kv.NewMemoryKV(context.Background(), nil)
	require.NoError(t, err)

	e := &env{
		cfg:     cfg,
		store:   st,
		objects: s3.NewMemoryGateway(),
		rescans: &recordingScheduler{},
		clock:   &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
	}

	d := service.Deps{
		Config:  cfg,
		Store:   st,
		Objects: e.objects,
		Cache:   cache,
		Rescans: e.rescans,
		Now:     e.clock.Now,
	}
	for _, m := range mutate {
		m(&d)
	}

	e.svc = service.New(d)

	return e
}

func (e *env) user(t *testing.T, limit int64) *model.User {
	t.Helper()

	u := &model.User{ID: uuid.NewString(), Email: uuid.NewString() + "@example.com", StorageLimit: limit, IsActive: true}
	require.NoError(t, e.store.CreateUser(context.Background(), u))

	return u
}

func (e *env) used(t *testing.T, userID string) int64 {
	t.Helper()

	u, err := e.store.GetUser(context.Background(), userID)
	require.NoError(t, err)

	return u.StorageUsed
}

// upload 上传单个文件并返回记录 ID.
func (e *env) upload(t *testing.T, userID string, f service.Incoming) string {
	t.Helper()

	sum, err := e.svc.Upload.UploadBatch(context.Background(), userID, []service.Incoming{f})
	require.NoError(t, err)
	require.Len(t, sum.Uploaded, 1, "blocked: %+v", sum.Blocked)

	return sum.Uploaded[0].ID
}

func incoming(name, contentType string, data []byte) service.Incoming {
	return service.Incoming{
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{G: 180, A: 255})
	}

	// 不压缩，压缩流中可能偶然出现 MZ 字节
	enc := png.Encoder{CompressionLevel: png.NoCompression}

	var buf bytes.Buffer
	require.NoError(t, enc.Encode(&buf, img))

	return buf.Bytes()
}

package store_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yeisme/cloudvault/pkg/internal/model"
	"github.com/yeisme/cloudvault/pkg/internal/store"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	s := store.New(gdb)
	require.NoError(t, s.Migrate(context.Background()))

	return s
}

func newUser(t *testing.T, s *store.Store, limit int64) *model.User {
	t.Helper()

	u := &model.User{ID: uuid.NewString(), Email: uuid.NewString() + "@example.com", StorageLimit: limit, IsActive: true}
	require.NoError(t, s.CreateUser(context.Background(), u))

	return u
}

func newFile(t *testing.T, s *store.Store, owner, name string, size int64, ct string) *model.FileRecord {
	t.Helper()

	f := &model.FileRecord{
		ID:          uuid.NewString(),
		OwnerID:     owner,
		DisplayName: name,
		Size:        size,
		ContentType: ct,
		StorageKey:  "files/" + owner + "/" + uuid.NewString(),
		ScanStatus:  model.ScanClean,
	}
	require.NoError(t, s.CreateFile(context.Background(), f))

	return f
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, &model.User{ID: uuid.NewString(), Email: "A@Example.com"}))
	err := s.CreateUser(ctx, &model.User{ID: uuid.NewString(), Email: "a@example.com"})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	u, err := s.GetUserByEmail(ctx, "a@EXAMPLE.com")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", u.Email)

	_, err = s.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestChargeQuotaConditional(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u := newUser(t, s, 100)

	require.NoError(t, s.ChargeQuota(ctx, u.ID, 60))
	assert.ErrorIs(t, s.ChargeQuota(ctx, u.ID, 41), store.ErrQuotaExceeded)
	require.NoError(t, s.ChargeQuota(ctx, u.ID, 40))
	require.NoError(t, s.ChargeQuota(ctx, u.ID, 0))

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.StorageUsed)

	assert.ErrorIs(t, s.ChargeQuota(ctx, "missing", 1), store.ErrNotFound)
}

func TestChargeQuotaConcurrentNeverExceedsLimit(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u := newUser(t, s, 1000)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)

	for i := 0; i < 20; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if err := s.ChargeQuota(ctx, u.ID, 100); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, ok)
	assert.Equal(t, int64(1000), got.StorageUsed)
}

func TestReleaseQuotaClampsAtZero(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u := newUser(t, s, 100)

	require.NoError(t, s.ChargeQuota(ctx, u.ID, 30))
	require.NoError(t, s.ReleaseQuota(ctx, u.ID, 50))

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.StorageUsed)
}

func TestListFilesSearchAndPaging(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u := newUser(t, s, 1<<30)
	other := newUser(t, s, 1<<30)

	newFile(t, s, u.ID, "Holiday.jpg", 10, "image/jpeg")
	newFile(t, s, u.ID, "holiday-2.png", 20, "image/png")
	newFile(t, s, u.ID, "report.pdf", 30, "application/pdf")
	newFile(t, s, other.ID, "holiday-other.jpg", 40, "image/jpeg")

	files, total, err := s.ListFiles(ctx, store.FileQuery{OwnerID: u.ID, Search: "HOLIDAY"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, files, 2)

	files, total, err = s.ListFiles(ctx, store.FileQuery{OwnerID: u.ID, Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, files, 1)
}

func TestSoftDeleteAndUsage(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u := newUser(t, s, 1<<30)

	a := newFile(t, s, u.ID, "a.txt", 10, "text/plain")
	b := newFile(t, s, u.ID, "b.txt", 20, "text/plain")
	c := newFile(t, s, u.ID, "c.txt", 40, "text/plain")

	ok, err := s.TransitionScanStatus(ctx, c.ID, model.ScanClean, model.ScanInfected, "rescan", time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, s.SoftDeleteFiles(ctx, a.ID))

	_, err = s.GetFile(ctx, a.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	deleted, err := s.GetFileUnscoped(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, deleted.DeletedAt.Valid)

	used, err := s.SumActiveUsage(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Size, used)

	infected, err := s.ListInfectedUnpurged(ctx, 0)
	require.NoError(t, err)
	require.Len(t, infected, 1)
	assert.Equal(t, c.ID, infected[0].ID)

	require.NoError(t, s.MarkPurged(ctx, c.ID))
	infected, err = s.ListInfectedUnpurged(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, infected)
}

func TestDeleteAndInfectedTransitionAreExclusive(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u := newUser(t, s, 1<<30)

	// 先删除：复扫不能再把记录标记为感染
	a := newFile(t, s, u.ID, "a.txt", 10, "text/plain")
	release, err := s.DeleteFile(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, release)

	ok, err := s.TransitionScanStatus(ctx, a.ID, model.ScanClean, model.ScanInfected, "rescan", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.DeleteFile(ctx, a.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// 先感染：删除不再释放配额
	b := newFile(t, s, u.ID, "b.txt", 20, "text/plain")
	ok, err = s.TransitionScanStatus(ctx, b.ID, model.ScanClean, model.ScanInfected, "rescan", time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.TransitionScanStatus(ctx, b.ID, model.ScanClean, model.ScanInfected, "rescan", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	release, err = s.DeleteFile(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, release)

	rec, err := s.GetFileUnscoped(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, rec.DeletedAt.Valid)
	assert.Equal(t, model.ScanInfected, rec.ScanStatus)
}

func TestStatsByTypeAndStatus(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u := newUser(t, s, 1<<30)

	newFile(t, s, u.ID, "a.jpg", 10, "image/jpeg")
	newFile(t, s, u.ID, "b.png", 20, "image/png")
	newFile(t, s, u.ID, "c.pdf", 5, "application/pdf")

	sum, err := s.Summary(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), sum.Count)
	assert.Equal(t, int64(35), sum.TotalSize)
	assert.Equal(t, int64(3), sum.ByStatus[model.ScanClean])

	dist, err := s.TypeDistribution(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, dist, 2)
	assert.Equal(t, store.TypeStat{Category: "image", Count: 2, Size: 30}, dist[0])
	assert.Equal(t, "application", dist[1].Category)
}

func TestShareSnapshotLifecycle(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u := newUser(t, s, 1<<30)
	f := newFile(t, s, u.ID, "a.jpg", 10, "image/jpeg")

	first := &model.ShareLink{ID: "sh_1", FileID: f.ID, OwnerID: u.ID, AllowDownload: true, IsActive: true}
	require.NoError(t, s.CreateShare(ctx, first))

	got, err := s.GetFile(ctx, f.ID)
	require.NoError(t, err)
	assert.True(t, got.IsShared)
	require.NotNil(t, got.ShareSettings)
	assert.Equal(t, "sh_1", got.ShareSettings.ShareID)

	second := &model.ShareLink{
		ID: "sh_2", FileID: f.ID, OwnerID: u.ID, AllowPreview: true, IsActive: true,
		CreatedAt: time.Now().Add(time.Second),
	}
	require.NoError(t, s.CreateShare(ctx, second))

	require.NoError(t, s.DeactivateShare(ctx, "sh_2"))
	got, err = s.GetFile(ctx, f.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ShareSettings)
	assert.Equal(t, "sh_1", got.ShareSettings.ShareID, "snapshot falls back to remaining active link")

	ids, err := s.DeactivateSharesForFile(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"sh_1"}, ids)

	got, err = s.GetFile(ctx, f.ID)
	require.NoError(t, err)
	assert.False(t, got.IsShared)
	assert.Nil(t, got.ShareSettings)
}

func TestRecordAccessOrdering(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u := newUser(t, s, 1<<30)
	f := newFile(t, s, u.ID, "a.jpg", 10, "image/jpeg")

	require.NoError(t, s.CreateShare(ctx, &model.ShareLink{ID: "sh_x", FileID: f.ID, OwnerID: u.ID, IsActive: true}))

	for i := 1; i <= 3; i++ {
		n, err := s.RecordAccess(ctx, "sh_x", model.ShareAccess{Origin: fmt.Sprintf("10.0.0.%d", i)})
		require.NoError(t, err)
		assert.Equal(t, int64(i), n)
	}

	log, err := s.ListAccessLog(ctx, "sh_x", 0)
	require.NoError(t, err)
	require.Len(t, log, 3)
	assert.Equal(t, "10.0.0.1", log[0].Origin)
	assert.Equal(t, "10.0.0.3", log[2].Origin)

	require.NoError(t, s.DeactivateShare(ctx, "sh_x"))
	_, err = s.RecordAccess(ctx, "sh_x", model.ShareAccess{})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListExpiredActive(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u := newUser(t, s, 1<<30)
	f := newFile(t, s, u.ID, "a.jpg", 10, "image/jpeg")

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	require.NoError(t, s.CreateShare(ctx, &model.ShareLink{ID: "sh_old", FileID: f.ID, OwnerID: u.ID, ExpiresAt: &past, IsActive: true}))
	require.NoError(t, s.CreateShare(ctx, &model.ShareLink{ID: "sh_new", FileID: f.ID, OwnerID: u.ID, ExpiresAt: &future, IsActive: true}))
	require.NoError(t, s.CreateShare(ctx, &model.ShareLink{ID: "sh_never", FileID: f.ID, OwnerID: u.ID, IsActive: true}))

	links, err := s.ListExpiredActive(ctx, time.Now(), 0)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "sh_old", links[0].ID)
}

func TestSwapStorageUsedComparesFirst(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u := newUser(t, s, 100)

	require.NoError(t, s.ChargeQuota(ctx, u.ID, 40))

	ok, err := s.SwapStorageUsed(ctx, u.ID, 10, 5)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.SwapStorageUsed(ctx, u.ID, 40, 25)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(25), got.StorageUsed)
}

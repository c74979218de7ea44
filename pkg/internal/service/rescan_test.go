package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/cloudvault/pkg/configs"
	"github.com/yeisme/cloudvault/pkg/internal/model"
	"github.com/yeisme/cloudvault/pkg/internal/scan"
	"github.com/yeisme/cloudvault/pkg/internal/service"
	"github.com/yeisme/cloudvault/pkg/queue"
)

// verdictPolicy 返回可切换结果的复扫策略.
type verdictPolicy struct {
	verdict scan.Verdict
}

func (p *verdictPolicy) Name() string { return "test" }

func (p *verdictPolicy) Evaluate(context.Context, []byte, scan.Target) scan.Verdict { return p.verdict }

func withPolicy(p scan.RescanPolicy) func(*service.Deps) {
	return func(d *service.Deps) { d.Policy = p }
}

func TestRescanInfectedQuarantinesFile(t *testing.T) {
	policy := &verdictPolicy{verdict: scan.Verdict{Status: scan.StatusClean}}
	e := newEnv(t, withPolicy(policy))
	u := e.user(t, configs.GiB)
	ctx := context.Background()

	data := pngBytes(t, 400, 400)
	fileID := e.upload(t, u.ID, incoming("cat.png", "image/png", data))
	require.Len(t, e.objects.Keys(), 2)

	sh, err := e.svc.Shares.Create(ctx, u.ID, fileID, service.CreateShareInput{ExpiresIn: "never"})
	require.NoError(t, err)

	// 预热分享缓存
	_, err = e.svc.Shares.Resolve(ctx, sh.ID)
	require.NoError(t, err)

	res, err := e.svc.Rescan.Process(ctx, fileID)
	require.NoError(t, err)
	assert.Equal(t, scan.StatusClean, res.Verdict.Status)

	policy.verdict = scan.Verdict{Status: scan.StatusInfected, Reason: "embedded executable", Signature: "pe"}

	res, err = e.svc.Rescan.Process(ctx, fileID)
	require.NoError(t, err)
	assert.True(t, res.Purged)

	assert.Empty(t, e.objects.Keys())
	assert.Equal(t, int64(0), e.used(t, u.ID))

	rec, err := e.store.GetFile(ctx, fileID)
	require.NoError(t, err)
	assert.Equal(t, model.ScanInfected, rec.ScanStatus)
	assert.False(t, rec.IsShared)

	_, err = e.svc.Files.DownloadURL(ctx, u.ID, fileID)
	assert.ErrorIs(t, err, service.ErrForbidden)

	_, err = e.svc.Shares.Resolve(ctx, sh.ID)
	assert.ErrorIs(t, err, service.ErrForbidden)

	_, err = e.svc.Shares.Download(ctx, sh.ID, "", "", "")
	assert.ErrorIs(t, err, service.ErrForbidden)

	_, err = e.svc.Shares.Create(ctx, u.ID, fileID, service.CreateShareInput{})
	assert.ErrorIs(t, err, service.ErrForbidden)

	// 已隔离的文件不再复扫
	res, err = e.svc.Rescan.Process(ctx, fileID)
	require.NoError(t, err)
	assert.Equal(t, "status infected", res.Skipped)
}

func TestRescanSkipsDeletedOrMissing(t *testing.T) {
	e := newEnv(t, withPolicy(&verdictPolicy{verdict: scan.Verdict{Status: scan.StatusInfected}}))
	u := e.user(t, configs.GiB)
	ctx := context.Background()

	res, err := e.svc.Rescan.Process(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, "record deleted", res.Skipped)

	fileID := e.upload(t, u.ID, incoming("a.txt", "text/plain", []byte("a")))
	for _, k := range e.objects.Keys() {
		require.NoError(t, e.objects.Delete(ctx, k))
	}

	res, err = e.svc.Rescan.Process(ctx, fileID)
	require.NoError(t, err)
	assert.Equal(t, "object missing", res.Skipped)
}

func TestRescanErrorVerdictFlagsFile(t *testing.T) {
	e := newEnv(t, withPolicy(&verdictPolicy{verdict: scan.Verdict{Status: scan.StatusError, Reason: "scanner panic"}}))
	u := e.user(t, configs.GiB)
	ctx := context.Background()

	fileID := e.upload(t, u.ID, incoming("a.txt", "text/plain", []byte("a")))

	_, err := e.svc.Rescan.Process(ctx, fileID)
	require.NoError(t, err)

	rec, err := e.store.GetFile(ctx, fileID)
	require.NoError(t, err)
	assert.Equal(t, model.ScanError, rec.ScanStatus)
	assert.Equal(t, "scanner panic", rec.ScanReason)

	// 出错的文件仍可下载，等待人工复核
	_, err = e.svc.Files.DownloadURL(ctx, u.ID, fileID)
	assert.NoError(t, err)
}

func TestPurgeInfectedRetriesFailedDeletes(t *testing.T) {
	e := newEnv(t, withPolicy(&verdictPolicy{verdict: scan.Verdict{Status: scan.StatusInfected}}))
	u := e.user(t, configs.GiB)
	ctx := context.Background()

	fileID := e.upload(t, u.ID, incoming("a.txt", "text/plain", []byte("abc")))

	e.objects.FailDelete = func(string) error { return errors.New("store offline") }

	res, err := e.svc.Rescan.Process(ctx, fileID)
	require.NoError(t, err)
	assert.False(t, res.Purged)
	assert.Len(t, e.objects.Keys(), 1)

	n, err := e.svc.Maintenance.PurgeInfected(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, n)

	e.objects.FailDelete = nil

	n, err = e.svc.Maintenance.PurgeInfected(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, e.objects.Keys())

	n, err = e.svc.Maintenance.PurgeInfected(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUploadWithoutSchedulerOrPublisher(t *testing.T) {
	e := newEnv(t, func(d *service.Deps) { d.Rescans = nil })
	u := e.user(t, configs.GiB)

	e.upload(t, u.ID, incoming("a.txt", "text/plain", []byte("a")))
	assert.Empty(t, e.rescans.Targets())
}

func TestMQRescanSchedulerPublishesDelayedRequest(t *testing.T) {
	ps := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 4}, watermill.NopLogger{})
	t.Cleanup(func() { _ = ps.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := ps.Subscribe(ctx, queue.TopicScanRescanRequested)
	require.NoError(t, err)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	sched := service.NewMQRescanScheduler(ps, 30*time.Second, func() time.Time { return now })

	require.NoError(t, sched.Schedule(ctx, service.RescanTarget{FileID: "f1", OwnerID: "u1", StorageKey: "files/u1/1-a.txt"}))

	select {
	case msg := <-ch:
		msg.Ack()

		parsed, err := queue.ParseRescanRequested(msg)
		require.NoError(t, err)
		assert.Equal(t, "f1", parsed.Payload.FileID)
		assert.True(t, parsed.Payload.NotBefore.Equal(now.Add(30*time.Second)))
	case <-ctx.Done():
		t.Fatal("rescan request not delivered")
	}
}

// hookPolicy 在判定前执行回调，用于模拟复扫期间的并发操作.
type hookPolicy struct {
	verdict scan.Verdict
	before  func()
}

func (p *hookPolicy) Name() string { return "hook" }

func (p *hookPolicy) Evaluate(context.Context, []byte, scan.Target) scan.Verdict {
	if p.before != nil {
		p.before()
	}

	return p.verdict
}

func TestDeleteDuringRescanReleasesQuotaOnce(t *testing.T) {
	policy := &hookPolicy{verdict: scan.Verdict{Status: scan.StatusInfected, Reason: "late signature"}}
	e := newEnv(t, withPolicy(policy))
	u := e.user(t, configs.GiB)
	ctx := context.Background()

	e.upload(t, u.ID, incoming("keep.txt", "text/plain", make([]byte, 1000)))
	victim := e.upload(t, u.ID, incoming("victim.txt", "text/plain", make([]byte, 400)))
	require.Equal(t, int64(1400), e.used(t, u.ID))

	policy.before = func() {
		res, err := e.svc.Files.Delete(ctx, u.ID, victim)
		require.NoError(t, err)
		assert.Equal(t, int64(400), res.ReleasedBytes)
	}

	res, err := e.svc.Rescan.Process(ctx, victim)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Skipped)
	assert.False(t, res.Purged)

	assert.Equal(t, int64(1000), e.used(t, u.ID))

	rec, err := e.store.GetFileUnscoped(ctx, victim)
	require.NoError(t, err)
	assert.True(t, rec.DeletedAt.Valid)
	assert.Equal(t, model.ScanClean, rec.ScanStatus)
}

func TestRescanThenDeleteReleasesQuotaOnce(t *testing.T) {
	e := newEnv(t, withPolicy(&verdictPolicy{verdict: scan.Verdict{Status: scan.StatusInfected}}))
	u := e.user(t, configs.GiB)
	ctx := context.Background()

	e.upload(t, u.ID, incoming("keep.txt", "text/plain", make([]byte, 1000)))
	victim := e.upload(t, u.ID, incoming("victim.txt", "text/plain", make([]byte, 400)))

	res, err := e.svc.Rescan.Process(ctx, victim)
	require.NoError(t, err)
	require.Empty(t, res.Skipped)

	// 第二次复扫不再隔离
	res, err = e.svc.Rescan.Process(ctx, victim)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Skipped)

	del, err := e.svc.Files.Delete(ctx, u.ID, victim)
	require.NoError(t, err)
	assert.Zero(t, del.ReleasedBytes)
	assert.Equal(t, int64(1000), e.used(t, u.ID))
}

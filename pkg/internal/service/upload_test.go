package service_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/cloudvault/pkg/configs"
	"github.com/yeisme/cloudvault/pkg/internal/model"
	"github.com/yeisme/cloudvault/pkg/internal/service"
	"github.com/yeisme/cloudvault/pkg/internal/store"
)

func TestUploadBatchBlocksInfectedFile(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, configs.GiB)
	ctx := context.Background()

	photo := pngBytes(t, 800, 400)
	notes := []byte("meeting notes")

	sum, err := e.svc.Upload.UploadBatch(ctx, u.ID, []service.Incoming{
		incoming("photo.png", "image/png", photo),
		incoming("notes.txt", "text/plain", notes),
		incoming("virus.exe", "application/pdf", []byte("MZ\x90\x00payload")),
	})
	require.NoError(t, err)

	assert.True(t, sum.Success)
	assert.Equal(t, 2, sum.UploadedCount)
	assert.Equal(t, 1, sum.BlockedCount)
	require.Len(t, sum.Blocked, 1)
	assert.Equal(t, "virus.exe", sum.Blocked[0].Name)
	assert.Equal(t, service.ReasonInfected, sum.Blocked[0].Reason)
	assert.Equal(t, "Partial success: 2 of 3 files uploaded, 1 blocked", sum.Message)

	total := int64(len(photo) + len(notes))
	assert.Equal(t, total, sum.UploadedBytes)
	assert.Equal(t, total, e.used(t, u.ID))

	// 原图、缩略图、文本各一个对象
	assert.Len(t, e.objects.Keys(), 3)
	assert.Len(t, e.rescans.Targets(), 2)

	for _, f := range sum.Uploaded {
		assert.Equal(t, model.ScanClean, f.ScanStatus)
		assert.NotEmpty(t, f.DownloadURL)

		if f.Name == "photo.png" {
			assert.Equal(t, 800, f.Width)
			assert.NotEmpty(t, f.ThumbnailURL)
		}
	}
}

func TestUploadBatchOverBatchCeilingWritesNothing(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, 10*configs.GiB)

	files := make([]service.Incoming, 6)
	for i := range files {
		files[i] = service.Incoming{
			Name:        "part" + string(rune('a'+i)) + ".zip",
			ContentType: "application/zip",
			Size:        100 * configs.MiB,
			Open: func() (io.ReadCloser, error) {
				t.Error("content must not be read when validation fails")

				return nil, errors.New("unexpected open")
			},
		}
	}

	sum, err := e.svc.Upload.UploadBatch(context.Background(), u.ID, files)
	require.Error(t, err)
	assert.Nil(t, sum)
	assert.ErrorIs(t, err, service.ErrValidation)

	var verr *service.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Errors, 1)
	assert.Contains(t, verr.Errors[0], "batch")

	assert.Empty(t, e.objects.Keys())
	assert.Equal(t, int64(0), e.used(t, u.ID))
}

func TestUploadBatchQuotaPrecheck(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, 10)

	_, err := e.svc.Upload.UploadBatch(context.Background(), u.ID, []service.Incoming{
		incoming("a.txt", "text/plain", []byte("0123456789abcdef")),
	})

	var qerr *service.QuotaError
	require.ErrorAs(t, err, &qerr)
	assert.ErrorIs(t, err, service.ErrQuotaExceeded)
	assert.Equal(t, int64(16), qerr.Attempted)
	assert.Equal(t, int64(10), qerr.Available)
	assert.Empty(t, e.objects.Keys())
}

func TestUploadBatchChargeRaceRollsBack(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, 100)
	ctx := context.Background()

	// 第一次写对象时模拟并发批次占满配额
	raced := false
	e.objects.FailPut = func(string) error {
		if !raced {
			raced = true

			require.NoError(t, e.store.ChargeQuota(ctx, u.ID, 95))
		}

		return nil
	}

	_, err := e.svc.Upload.UploadBatch(ctx, u.ID, []service.Incoming{
		incoming("a.txt", "text/plain", []byte("0123456789")),
		incoming("b.txt", "text/plain", []byte("abcdefghij")),
	})

	var qerr *service.QuotaError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, int64(5), qerr.Available)

	assert.Empty(t, e.objects.Keys())
	assert.Equal(t, int64(95), e.used(t, u.ID))

	_, total, err := e.store.ListFiles(ctx, store.FileQuery{OwnerID: u.ID})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, e.rescans.Targets())
}

func TestUploadBatchStorageFailureIsPerFile(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, configs.GiB)

	e.objects.FailPut = func(key string) error {
		if strings.Contains(key, "broken") {
			return errors.New("bucket unavailable")
		}

		return nil
	}

	sum, err := e.svc.Upload.UploadBatch(context.Background(), u.ID, []service.Incoming{
		incoming("broken.txt", "text/plain", []byte("x")),
		incoming("fine.txt", "text/plain", []byte("yy")),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, sum.UploadedCount)
	require.Len(t, sum.Blocked, 1)
	assert.Equal(t, service.ReasonUploadError, sum.Blocked[0].Reason)
	assert.Equal(t, int64(2), e.used(t, u.ID))
}

func TestUploadBatchAllBlocked(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, configs.GiB)

	sum, err := e.svc.Upload.UploadBatch(context.Background(), u.ID, []service.Incoming{
		incoming("setup.bat", "text/plain", []byte("@echo off")),
	})
	require.NoError(t, err)

	assert.False(t, sum.Success)
	assert.Equal(t, "No files uploaded: 1 file blocked", sum.Message)
	assert.Equal(t, int64(0), e.used(t, u.ID))
}

func TestUploadBatchBlocksMZMarkerInSafeContainer(t *testing.T) {
	doc := []byte("%PDF-1.4 hello MZ")

	e := newEnv(t)
	u := e.user(t, configs.GiB)

	sum, err := e.svc.Upload.UploadBatch(context.Background(), u.ID, []service.Incoming{incoming("doc.pdf", "application/pdf", doc)})
	require.NoError(t, err)
	require.Len(t, sum.Blocked, 1)
	assert.Equal(t, service.ReasonInfected, sum.Blocked[0].Reason)
	assert.Empty(t, e.objects.Keys())

	strict := newEnv(t, func(d *service.Deps) { d.Config.Scan.StrictPE = true })
	u = strict.user(t, configs.GiB)

	sum, err = strict.svc.Upload.UploadBatch(context.Background(), u.ID, []service.Incoming{incoming("doc.pdf", "application/pdf", doc)})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.UploadedCount)
}

func TestUploadBatchRejectsDisallowedType(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, configs.GiB)

	_, err := e.svc.Upload.UploadBatch(context.Background(), u.ID, []service.Incoming{
		incoming("tool.bin", "application/x-msdownload", []byte("bin")),
		incoming("ok.txt", "text/plain", []byte("ok")),
	})
	require.ErrorIs(t, err, service.ErrValidation)
	assert.Empty(t, e.objects.Keys())
}

func TestUploadBatchUnknownUser(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.Upload.UploadBatch(context.Background(), "nobody", []service.Incoming{
		incoming("a.txt", "text/plain", []byte("a")),
	})
	assert.ErrorIs(t, err, service.ErrNotFound)
}

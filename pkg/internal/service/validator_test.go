package service_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/cloudvault/pkg/configs"
	"github.com/yeisme/cloudvault/pkg/internal/service"
)

func uploadConfig() configs.UploadConfig {
	return configs.UploadConfig{
		MaxFileSize:       100 * configs.MiB,
		MaxBatchSize:      500 * configs.MiB,
		MaxNameLength:     255,
		AllowedTypes:      configs.DefaultAllowedTypes,
		BlockedExtensions: configs.DefaultBlockedExtensions,
	}
}

func TestValidateBatch(t *testing.T) {
	cfg := uploadConfig()

	ok := service.ValidateBatch([]service.Candidate{
		{Name: "a.png", ContentType: "image/png", Size: 10},
		{Name: "b.pdf", ContentType: "Application/PDF; charset=binary", Size: 100 * configs.MiB},
	}, cfg)
	assert.True(t, ok.Valid)
	assert.Empty(t, ok.Errors)

	res := service.ValidateBatch([]service.Candidate{
		{Name: "big.mp4", ContentType: "video/mp4", Size: 101 * configs.MiB},
		{Name: "tool.exe", ContentType: "image/png", Size: 1},
		{Name: "x.bin", ContentType: "application/octet-stream", Size: 1},
		{Name: strings.Repeat("n", 300) + ".txt", ContentType: "text/plain", Size: 1},
	}, cfg)
	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 4)
	assert.Contains(t, res.Errors[0], "big.mp4: file size")
	assert.Contains(t, res.Errors[1], "security")
	assert.Contains(t, res.Errors[2], `"application/octet-stream" is not allowed`)
	assert.Contains(t, res.Errors[3], "exceeds 255 characters")
}

func TestValidateBatchLimits(t *testing.T) {
	cfg := uploadConfig()

	empty := service.ValidateBatch(nil, cfg)
	assert.False(t, empty.Valid)
	assert.Equal(t, []string{"no files provided"}, empty.Errors)

	files := make([]service.Candidate, 6)
	for i := range files {
		files[i] = service.Candidate{Name: "p.zip", ContentType: "application/zip", Size: 100 * configs.MiB}
	}

	over := service.ValidateBatch(files, cfg)
	assert.False(t, over.Valid)
	require.Len(t, over.Errors, 1)
	assert.Contains(t, over.Errors[0], "total batch size 600 MiB exceeds the 500 MiB limit")
}

func TestNormalizeContentType(t *testing.T) {
	assert.Equal(t, "image/png", service.NormalizeContentType("Image/PNG; q=1"))
	assert.Equal(t, "text/plain", service.NormalizeContentType(" TEXT/PLAIN "))
}

func TestQuotaErrorMessage(t *testing.T) {
	err := &service.QuotaError{Attempted: 3 * configs.MiB, Available: configs.MiB}
	assert.Equal(t, "storage quota exceeded: attempted 3.0 MiB, available 1.0 MiB", err.Error())
	assert.ErrorIs(t, err, service.ErrQuotaExceeded)
}

package s3

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"photo.jpg":          "photo.jpg",
		"my photo (1).png":   "my_photo__1_.png",
		"../../etc/passwd":   "passwd",
		`C:\Users\a\doc.pdf`: "doc.pdf",
		"报告.pdf":             "__.pdf",
		"":                   "file",
	}

	for in, want := range cases {
		assert.Equal(t, want, SanitizeName(in), in)
	}
}

func TestOriginalAndThumbnailKey(t *testing.T) {
	ts := time.Unix(0, 1700000000123456789)
	key := OriginalKey("u1", ts, "cat pic.png")

	assert.Equal(t, "files/u1/1700000000123456789-cat_pic.png", key)
	assert.Equal(t, "thumbnails/u1/thumb-1700000000123456789-cat_pic.png", ThumbnailKey(key))
	assert.Equal(t, ThumbnailKey(key), ThumbnailKey(key))
}

func TestMemoryGateway(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGateway()

	res, err := g.Put(ctx, "files/u/1-a.txt", bytes.NewReader([]byte("hello")), 5, "text/plain", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, res.ETag)

	ok, err := g.Exists(ctx, "files/u/1-a.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	info, err := g.Head(ctx, "files/u/1-a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size)
	assert.Equal(t, "text/plain", info.ContentType)

	data, err := g.Get(ctx, "files/u/1-a.txt", 2)
	require.NoError(t, err)
	assert.Equal(t, []byte("he"), data)

	require.NoError(t, g.Delete(ctx, "files/u/1-a.txt"))

	_, err = g.Head(ctx, "files/u/1-a.txt")
	assert.True(t, errors.Is(err, ErrObjectNotFound))
	assert.Equal(t, 1, g.PutCount())
}

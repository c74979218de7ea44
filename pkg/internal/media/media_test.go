package media

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/cloudvault/pkg/internal/storage/s3"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	return buf.Bytes()
}

func TestNeedsProcessing(t *testing.T) {
	assert.True(t, NeedsProcessing("image/png"))
	assert.True(t, NeedsProcessing("VIDEO/mp4"))
	assert.False(t, NeedsProcessing("application/pdf"))
	assert.False(t, NeedsProcessing(""))
}

func TestProcessImageWritesThumbnail(t *testing.T) {
	gw := s3.NewMemoryGateway()
	p := New(gw, 0, 0)
	key := s3.OriginalKey("u1", time.Unix(0, 42), "wide.png")

	res, err := p.Process(context.Background(), Input{Data: pngBytes(t, 1200, 600), ContentType: "image/png", Key: key})
	require.NoError(t, err)

	assert.Equal(t, 1200, res.Metadata.Width)
	assert.Equal(t, 600, res.Metadata.Height)
	assert.Equal(t, "png", res.Metadata.Format)
	assert.Equal(t, s3.ThumbnailKey(key), res.ThumbnailKey)
	assert.Equal(t, "thumbnails/u1/thumb-42-wide.png", res.ThumbnailKey)

	thumb, err := gw.Get(context.Background(), res.ThumbnailKey, 0)
	require.NoError(t, err)

	img, err := imaging.Decode(bytes.NewReader(thumb))
	require.NoError(t, err)
	assert.Equal(t, 300, img.Bounds().Dx())
	assert.Equal(t, 150, img.Bounds().Dy())

	info, err := gw.Head(context.Background(), res.ThumbnailKey)
	require.NoError(t, err)
	assert.Equal(t, ThumbnailContentType, info.ContentType)
}

func TestProcessSmallImageNotUpscaled(t *testing.T) {
	gw := s3.NewMemoryGateway()
	res, err := New(gw, 300, 80).Process(context.Background(), Input{Data: pngBytes(t, 40, 20), ContentType: "image/png", Key: "files/u/1-a.png"})
	require.NoError(t, err)

	thumb, err := gw.Get(context.Background(), res.ThumbnailKey, 0)
	require.NoError(t, err)

	img, err := imaging.Decode(bytes.NewReader(thumb))
	require.NoError(t, err)
	assert.Equal(t, 40, img.Bounds().Dx())
}

func TestProcessVideoStoresWithoutThumbnail(t *testing.T) {
	gw := s3.NewMemoryGateway()
	data := []byte("\x00\x00\x00\x18ftypmp42\x00\x00\x00\x00mp42isom")

	res, err := New(gw, 0, 0).Process(context.Background(), Input{Data: data, ContentType: "video/mp4", Key: "files/u/1-clip.mp4"})
	require.NoError(t, err)

	assert.Empty(t, res.ThumbnailKey)
	assert.Equal(t, int64(len(data)), res.Metadata.Size)
	assert.Equal(t, []string{"files/u/1-clip.mp4"}, gw.Keys())
}

func TestProcessCorruptImageFails(t *testing.T) {
	gw := s3.NewMemoryGateway()

	_, err := New(gw, 0, 0).Process(context.Background(), Input{Data: []byte("not an image"), ContentType: "image/jpeg", Key: "files/u/1-x.jpg"})
	require.ErrorIs(t, err, ErrDecode)
	assert.Empty(t, gw.Keys(), "nothing stored when decode fails")
}

func TestProcessCleansOriginalWhenThumbnailFails(t *testing.T) {
	gw := s3.NewMemoryGateway()
	gw.FailPut = func(key string) error {
		if key == s3.ThumbnailKey("files/u/1-a.png") {
			return errors.New("disk full")
		}

		return nil
	}

	_, err := New(gw, 0, 0).Process(context.Background(), Input{Data: pngBytes(t, 10, 10), ContentType: "image/png", Key: "files/u/1-a.png"})
	require.Error(t, err)
	assert.Empty(t, gw.Keys())
}

// forgedPNG 把小 PNG 的 IHDR 改写为 w*h，像素数据不变.
func forgedPNG(t *testing.T, w, h uint32) []byte {
	t.Helper()

	data := pngBytes(t, 4, 4)
	binary.BigEndian.PutUint32(data[16:20], w)
	binary.BigEndian.PutUint32(data[20:24], h)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))

	return data
}

func TestProcessOversizedImageSkipsThumbnail(t *testing.T) {
	gw := s3.NewMemoryGateway()
	key := "files/u/1-huge.png"

	res, err := New(gw, 0, 0).Process(context.Background(), Input{Data: forgedPNG(t, 100_000, 100_000), ContentType: "image/png", Key: key})
	require.NoError(t, err)

	assert.Empty(t, res.ThumbnailKey)
	assert.Equal(t, 100_000, res.Metadata.Width)
	assert.Equal(t, 100_000, res.Metadata.Height)
	assert.Equal(t, "png", res.Metadata.Format)
	assert.Equal(t, []string{key}, gw.Keys())
}

func TestProcessRespectsConfiguredPixelLimit(t *testing.T) {
	gw := s3.NewMemoryGateway()

	res, err := New(gw, 0, 0, WithMaxPixels(1000)).Process(context.Background(), Input{Data: pngBytes(t, 40, 30), ContentType: "image/png", Key: "files/u/1-a.png"})
	require.NoError(t, err)
	assert.Empty(t, res.ThumbnailKey)
	assert.Equal(t, 40, res.Metadata.Width)

	res, err = New(gw, 0, 0, WithMaxPixels(1200)).Process(context.Background(), Input{Data: pngBytes(t, 40, 30), ContentType: "image/png", Key: "files/u/2-a.png"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.ThumbnailKey)
}

package image_test

import (
	"bytes"
	"context"
	stdimage "image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensiq/filescope/internal/analyzers/image"
)

func writePNG(t *testing.T, dir string, width, height int) string {
	t.Helper()

	img := stdimage.NewNRGBA(stdimage.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	path := filepath.Join(dir, "sample.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	return path
}

func writeJPEG(t *testing.T, dir string) string {
	t.Helper()

	img := stdimage.NewYCbCr(stdimage.Rect(0, 0, 32, 24), stdimage.YCbCrSubsampleRatio420)

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))

	path := filepath.Join(dir, "photo.jpg")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	return path
}

func TestAnalyzer_Identity(t *testing.T) {
	t.Parallel()

	a := image.New()

	assert.Equal(t, "image", a.Name())
	assert.Contains(t, a.Extensions(), ".jpg")
	assert.True(t, a.CanAnalyze("DCIM0001.JPG"))
	assert.False(t, a.CanAnalyze("notes.txt"))
}

func TestAnalyze_PNGDimensions(t *testing.T) {
	t.Parallel()

	path := writePNG(t, t.TempDir(), 160, 90)

	res := image.New().Analyze(context.Background(), path)

	require.True(t, res.Success, "error: %s", res.ErrorMessage)
	assert.Equal(t, "png", res.Metadata["format"])
	assert.Equal(t, 160, res.Metadata["width"])
	assert.Equal(t, 90, res.Metadata["height"])
	assert.InDelta(t, 1.78, res.Metadata["aspect_ratio"], 0.001)
	assert.InDelta(t, 0.01, res.Metadata["megapixels"], 0.001)
	assert.Equal(t, true, res.Metadata["has_alpha"])
	assert.Equal(t, "PNG Image", res.FileType)
}

func TestAnalyze_JPEGWithoutEXIF(t *testing.T) {
	t.Parallel()

	path := writeJPEG(t, t.TempDir())

	res := image.New().Analyze(context.Background(), path)

	require.True(t, res.Success, "error: %s", res.ErrorMessage)
	assert.Equal(t, "jpeg", res.Metadata["format"])
	assert.Equal(t, false, res.Metadata["has_exif"])
	assert.NotContains(t, res.Metadata, "camera")
	assert.NotContains(t, res.Metadata, "gps")
}

func TestAnalyze_CorruptImageFails(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "broken.jpg")
	require.NoError(t, os.WriteFile(path, []byte("not an image at all"), 0o644))

	res := image.New().Analyze(context.Background(), path)

	assert.False(t, res.Success)
	assert.Contains(t, res.ErrorMessage, "decode image header")
	assert.Equal(t, "image", res.Analyzer)
}

func TestAnalyze_MissingFileFails(t *testing.T) {
	t.Parallel()

	res := image.New().Analyze(context.Background(), filepath.Join(t.TempDir(), "gone.png"))

	assert.False(t, res.Success)
	assert.Contains(t, res.ErrorMessage, "open image")
}

func TestAnalyze_CancelledContext(t *testing.T) {
	t.Parallel()

	path := writePNG(t, t.TempDir(), 4, 4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := image.New().Analyze(ctx, path)

	assert.False(t, res.Success)
	assert.Contains(t, res.ErrorMessage, "cancelled")
}

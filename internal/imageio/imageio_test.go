package imageio

import (
	"bytes"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/pxsort/internal/testutil"
)

func checker(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x+y)%2 == 0 {
				img.SetRGBA(x, y, color.RGBA{255, 0, 0, 255})
			} else {
				img.SetRGBA(x, y, color.RGBA{0, 0, 255, 255})
			}
		}
	}
	return img
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"a.png", FormatPNG},
		{"a.JPG", FormatJPEG},
		{"dir/a.jpeg", FormatJPEG},
		{"a.gif", FormatGIF},
		{"a.bmp", FormatBMP},
		{"a.tif", FormatTIFF},
		{"a.tiff", FormatTIFF},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := FormatFromPath(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := FormatFromPath("a.webp")
	require.ErrorIs(t, err, ErrUnsupportedFormat)
	_, err = FormatFromPath("noext")
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	assert.True(t, IsSupported("x.webp"))
	assert.True(t, IsSupported("x.PNG"))
	assert.False(t, IsSupported("x.txt"))
}

func TestSaveLoadLossless(t *testing.T) {
	dir := t.TempDir()
	src := checker(5, 4)

	for _, name := range []string{"out.png", "nested/deeper/out.bmp", "out.tiff"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, Save(path, src, SaveOptions{}))

			got, _, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, src.Bounds(), got.Bounds())
			assert.Equal(t, src.Pix, got.Pix)
		})
	}
}

func TestSaveJPEGAndLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.jpg")
	require.NoError(t, Save(path, checker(16, 16), SaveOptions{JPEGQuality: 50}))

	img, format, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, FormatJPEG, format)
	assert.Equal(t, 16, img.Bounds().Dx())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSaveUnsupported(t *testing.T) {
	err := Save(filepath.Join(t.TempDir(), "out.xyz"), checker(1, 1), SaveOptions{})
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoadErrors(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "missing.png"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open image")

	_, _, err = Decode(bytes.NewReader([]byte("not an image")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error decoding image")
}

func TestDecodeLimit(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, FormatPNG, checker(10, 10), SaveOptions{}))

	tests := []struct {
		name    string
		data    []byte
		limit   int64
		wantErr error
	}{
		{"within limit", buf.Bytes(), 100, nil},
		{"over limit", buf.Bytes(), 99, ErrTooLarge},
		{"huge header", testutil.PNGHeader(60000, 60000), DefaultMaxPixels, ErrTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, format, err := DecodeLimit(bytes.NewReader(tt.data), tt.limit)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, FormatPNG, format)
			assert.Equal(t, checker(10, 10).Pix, img.Pix)
		})
	}
}

func TestToRGBAReanchors(t *testing.T) {
	src := image.NewRGBA(image.Rect(10, 10, 12, 11))
	src.SetRGBA(10, 10, color.RGBA{1, 2, 3, 255})

	got := ToRGBA(src)
	assert.Equal(t, image.Rect(0, 0, 2, 1), got.Bounds())
	assert.Equal(t, color.RGBA{1, 2, 3, 255}, got.RGBAAt(0, 0))

	same := checker(2, 2)
	assert.Same(t, same, ToRGBA(same))
}

func TestEncodeContentType(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, FormatPNG, checker(2, 2), SaveOptions{}))
	assert.Equal(t, "image/png", FormatPNG.ContentType())

	f, err := ParseFormat("JPG")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", f.ContentType())
}

package processing

import (
	"errors"
	"image"
	"image/color"
	"image/gif"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x * 4), uint8(y * 4), 128, 255})
		}
	}
	return img
}

func TestSaveAndLoadRaster(t *testing.T) {
	p := NewProcessor()
	path := filepath.Join(t.TempDir(), "car.png")

	src := createTestImage(40, 30)
	require.NoError(t, p.SaveImage(src, path, "png"))

	got, err := p.LoadRaster(path)
	require.NoError(t, err)
	assert.Equal(t, src.Bounds(), got.Bounds())
	assert.Equal(t, src.Pix, got.Pix)
}

func TestSaveJPEG(t *testing.T) {
	p := NewProcessor()
	path := filepath.Join(t.TempDir(), "car.jpg")

	require.NoError(t, p.SaveImage(createTestImage(64, 64), path, "jpg"))
	img, err := p.LoadImage(path)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 64), img.Bounds())
}

func TestSaveUnsupportedFormat(t *testing.T) {
	p := NewProcessor()
	path := filepath.Join(t.TempDir(), "car.tga")

	assert.Error(t, p.SaveImage(createTestImage(4, 4), path, "tga"))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestLoadMaskFromGIF(t *testing.T) {
	p := NewProcessor()
	path := filepath.Join(t.TempDir(), "car_01_mask.gif")

	pal := image.NewPaletted(image.Rect(0, 0, 8, 4), color.Palette{color.Black, color.White})
	for x := 4; x < 8; x++ {
		for y := 0; y < 4; y++ {
			pal.SetColorIndex(x, y, 1)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, gif.Encode(f, pal, nil))
	require.NoError(t, f.Close())

	mask, err := p.LoadMask(path)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), mask.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(255), mask.GrayAt(7, 3).Y)
}

func TestLoadImageDecodeFailure(t *testing.T) {
	p := NewProcessor()
	path := filepath.Join(t.TempDir(), "broken.jpg")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))

	_, err := p.LoadImage(path)
	assert.True(t, errors.Is(err, ErrDecode))
}

func TestToGray(t *testing.T) {
	sub := image.NewGray(image.Rect(0, 0, 10, 10)).SubImage(image.Rect(2, 2, 6, 6))
	gray := ToGray(sub)
	assert.Equal(t, image.Rect(0, 0, 4, 4), gray.Bounds())

	white := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for i := range white.Pix {
		white.Pix[i] = 255
	}
	assert.Equal(t, uint8(255), ToGray(white).GrayAt(1, 1).Y)
}

func TestCreateDebugOverlay(t *testing.T) {
	p := NewProcessor()
	img := image.NewNRGBA(image.Rect(0, 0, 256, 256))

	out := p.CreateDebugOverlay(img, image.Rect(100, 100, 400, 300), 512)
	nrgba, ok := out.(*image.NRGBA)
	require.True(t, ok)

	// Box corner at (50,50) after scaling 512 -> 256
	assert.Equal(t, color.NRGBA{255, 204, 0, 255}, nrgba.NRGBAAt(50, 50))
	// Source is untouched
	assert.Equal(t, color.NRGBA{}, img.NRGBAAt(50, 50))
}

package cropper

import (
	"errors"
	"image"
	"image/color"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestPair creates a car image with a filled mask rectangle
func createTestPair(width, height int, box image.Rectangle) (*image.NRGBA, *image.Gray) {
	car := image.NewNRGBA(image.Rect(0, 0, width, height))
	mask := image.NewGray(image.Rect(0, 0, width, height))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			car.SetNRGBA(x, y, color.NRGBA{uint8(x), uint8(y), 128, 255})
			if image.Pt(x, y).In(box) {
				mask.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}

	return car, mask
}

func TestNew(t *testing.T) {
	c := New()
	require.NotNil(t, c)
	assert.Equal(t, 10, c.config.Padding)

	c = NewWithConfig(CropConfig{Padding: 3})
	assert.Equal(t, 3, c.config.Padding)
}

func TestCropToMaskScenario(t *testing.T) {
	car, mask := createTestPair(800, 600, image.Rect(200, 150, 600, 450))

	result, err := CropToMask(car, mask, 20)
	require.NoError(t, err)

	assert.Equal(t, image.Rect(180, 130, 620, 470), result.Region)
	assert.Equal(t, 440, result.Image.Bounds().Dx())
	assert.Equal(t, 340, result.Image.Bounds().Dy())
	assert.Equal(t, result.Image.Bounds().Size(), result.Mask.Bounds().Size())

	// Top-left pixel of the crop comes from (180,130) of the source
	assert.Equal(t, car.NRGBAAt(180, 130), result.Image.NRGBAAt(0, 0))
	assert.Equal(t, uint8(0), result.Mask.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(255), result.Mask.GrayAt(20, 20).Y)
}

func TestCropToMaskClampsToBounds(t *testing.T) {
	car, mask := createTestPair(100, 80, image.Rect(5, 0, 100, 60))

	result, err := CropToMask(car, mask, 20)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 80), result.Region)
}

func TestCropToMaskEmptyMask(t *testing.T) {
	car, mask := createTestPair(64, 48, image.Rectangle{})

	result, err := NewWithConfig(CropConfig{Padding: 5}).Crop(car, mask)
	require.NoError(t, err)
	assert.Equal(t, car.Bounds(), result.Image.Bounds())
	assert.Equal(t, car.Pix, result.Image.Pix)
	assert.Equal(t, mask.Pix, result.Mask.Pix)
}

func TestCropToMaskSizeMismatch(t *testing.T) {
	car := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	mask := image.NewGray(image.Rect(0, 0, 10, 11))

	_, err := CropToMask(car, mask, 0)
	assert.True(t, errors.Is(err, ErrSizeMismatch))
}

func TestCropToMaskRandomBounds(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))

	for i := 0; i < 50; i++ {
		w, h := 20+rng.IntN(200), 20+rng.IntN(200)
		x0, y0 := rng.IntN(w), rng.IntN(h)
		box := image.Rect(x0, y0, x0+1+rng.IntN(w-x0), y0+1+rng.IntN(h-y0))
		padding := rng.IntN(30)

		car, mask := createTestPair(w, h, box)
		result, err := CropToMask(car, mask, padding)
		require.NoError(t, err)

		size := result.Image.Bounds().Size()
		assert.LessOrEqual(t, size.X, w)
		assert.LessOrEqual(t, size.Y, h)
		assert.GreaterOrEqual(t, size.X, box.Dx())
		assert.GreaterOrEqual(t, size.Y, box.Dy())
		assert.True(t, box.In(result.Region), "box %v not in region %v", box, result.Region)
	}
}

func TestMaskBounds(t *testing.T) {
	_, mask := createTestPair(50, 40, image.Rect(10, 12, 30, 25))

	box, ok := MaskBounds(mask)
	require.True(t, ok)
	assert.Equal(t, image.Rect(10, 12, 30, 25), box)

	_, ok = MaskBounds(image.NewGray(image.Rect(0, 0, 5, 5)))
	assert.False(t, ok)
}

func TestCropGray(t *testing.T) {
	_, mask := createTestPair(50, 40, image.Rect(10, 10, 20, 20))

	sub := CropGray(mask, image.Rect(5, 5, 25, 25))
	assert.Equal(t, image.Rect(0, 0, 20, 20), sub.Bounds())
	assert.Equal(t, uint8(255), sub.GrayAt(5, 5).Y)
	assert.Equal(t, uint8(0), sub.GrayAt(4, 4).Y)
}

func BenchmarkCropToMask(b *testing.B) {
	car, mask := createTestPair(1918, 1280, image.Rect(300, 200, 1600, 1100))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		CropToMask(car, mask, 10)
	}
}

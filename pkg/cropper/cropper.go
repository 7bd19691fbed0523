package cropper

import (
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// ErrSizeMismatch is returned when a car image and its mask differ in size
var ErrSizeMismatch = errors.New("car and mask sizes differ")

// MaskCropper removes the empty margin around a masked subject
type MaskCropper struct {
	config CropConfig
}

// CropConfig holds configuration for mask-guided cropping
type CropConfig struct {
	// Padding is the number of pixels kept around the mask bounding box
	Padding int
}

// New creates a new MaskCropper with default configuration
func New() *MaskCropper {
	return &MaskCropper{
		config: CropConfig{
			Padding: 10,
		},
	}
}

// NewWithConfig creates a new MaskCropper with custom configuration
func NewWithConfig(config CropConfig) *MaskCropper {
	return &MaskCropper{config: config}
}

// CropResult contains the result of a cropping operation
type CropResult struct {
	Image  *image.NRGBA
	Mask   *image.Gray
	Region image.Rectangle
}

// Crop crops car and mask to the padded mask bounding box
func (c *MaskCropper) Crop(car image.Image, mask *image.Gray) (CropResult, error) {
	return CropToMask(car, mask, c.config.Padding)
}

// CropToMask restricts car and mask to the bounding rectangle of all non-zero
// mask pixels, grown by padding on each side and clamped to the image. A mask
// without any non-zero pixel leaves the pair unchanged. Region is relative to
// the top-left corner of the input.
func CropToMask(car image.Image, mask *image.Gray, padding int) (CropResult, error) {
	carBounds := car.Bounds()
	maskBounds := mask.Bounds()
	if carBounds.Size() != maskBounds.Size() {
		return CropResult{}, fmt.Errorf("%w: car %v, mask %v", ErrSizeMismatch, carBounds.Size(), maskBounds.Size())
	}

	full := image.Rect(0, 0, carBounds.Dx(), carBounds.Dy())

	box, ok := MaskBounds(mask)
	if !ok {
		return CropResult{
			Image:  imaging.Clone(car),
			Mask:   CropGray(mask, full),
			Region: full,
		}, nil
	}

	if padding < 0 {
		padding = 0
	}
	region := box.Inset(-padding).Intersect(full)

	return CropResult{
		Image:  imaging.Crop(car, region.Add(carBounds.Min)),
		Mask:   CropGray(mask, region),
		Region: region,
	}, nil
}

// MaskBounds returns the smallest rectangle containing every non-zero mask
// pixel, relative to the mask origin. ok is false for an empty mask.
func MaskBounds(mask *image.Gray) (box image.Rectangle, ok bool) {
	b := mask.Bounds()
	minX, minY := b.Dx(), b.Dy()
	maxX, maxY := -1, -1

	for y := 0; y < b.Dy(); y++ {
		row := mask.Pix[y*mask.Stride : y*mask.Stride+b.Dx()]
		for x, v := range row {
			if v == 0 {
				continue
			}
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			maxY = y
		}
	}

	if maxX < 0 {
		return image.Rectangle{}, false
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), true
}

// CropGray copies the region r (relative to the mask origin) into a new
// zero-origin grayscale image
func CropGray(mask *image.Gray, r image.Rectangle) *image.Gray {
	r = r.Intersect(image.Rect(0, 0, mask.Bounds().Dx(), mask.Bounds().Dy()))
	out := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		src := (r.Min.Y+y)*mask.Stride + r.Min.X
		copy(out.Pix[y*out.Stride:y*out.Stride+r.Dx()], mask.Pix[src:src+r.Dx()])
	}
	return out
}

package compositor

import (
	"fmt"
	"image"
	"math"
)

// AlphaField is a per-pixel coverage weight in [0, 1]
type AlphaField struct {
	Width  int
	Height int
	Values []float64
}

// At returns the coverage at (x, y)
func (a AlphaField) At(x, y int) float64 {
	return a.Values[y*a.Width+x]
}

// BlurOptions controls mask smoothing before blending
type BlurOptions struct {
	// Kernel is the smoothing kernel size used for large crops
	Kernel int `json:"kernel"`
	// MinSide is the smaller car side above which Kernel applies; smaller
	// crops are not smoothed so they do not fade into the background
	MinSide int `json:"min_side"`
}

// DefaultBlurOptions returns a 5x5 kernel for crops larger than 50 pixels
func DefaultBlurOptions() BlurOptions {
	return BlurOptions{Kernel: 5, MinSide: 50}
}

// KernelFor returns the blur kernel size for a car of the given size
func KernelFor(size image.Point, opts BlurOptions) int {
	minSide := size.X
	if size.Y < minSide {
		minSide = size.Y
	}
	if minSide > opts.MinSide && opts.Kernel > 1 {
		return opts.Kernel
	}
	return 1
}

// NewAlphaField normalizes mask to [0, 1] and smooths it with a separable
// Gaussian of the given odd kernel size. Kernel sizes below 2 leave the
// normalized mask untouched.
func NewAlphaField(mask *image.Gray, kernel int) (AlphaField, error) {
	if kernel > 1 && kernel%2 == 0 {
		return AlphaField{}, fmt.Errorf("blur kernel must be odd, got %d", kernel)
	}

	b := mask.Bounds()
	w, h := b.Dx(), b.Dy()
	field := AlphaField{Width: w, Height: h, Values: make([]float64, w*h)}

	for y := 0; y < h; y++ {
		row := mask.Pix[y*mask.Stride : y*mask.Stride+w]
		for x, v := range row {
			field.Values[y*w+x] = float64(v) / 255.0
		}
	}

	if kernel <= 1 || w == 0 || h == 0 {
		return field, nil
	}

	weights := gaussianKernel(kernel)
	radius := kernel / 2
	tmp := make([]float64, w*h)

	// Horizontal pass
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum float64
			for k, wt := range weights {
				sum += wt * field.Values[y*w+reflect101(x+k-radius, w)]
			}
			tmp[y*w+x] = sum
		}
	}

	// Vertical pass
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum float64
			for k, wt := range weights {
				sum += wt * tmp[reflect101(y+k-radius, h)*w+x]
			}
			field.Values[y*w+x] = clamp(sum, 0, 1)
		}
	}

	return field, nil
}

// gaussianKernel returns normalized weights using the sigma that OpenCV
// derives from a kernel size when none is given
func gaussianKernel(size int) []float64 {
	sigma := 0.3*(float64(size-1)*0.5-1) + 0.8
	radius := size / 2

	weights := make([]float64, size)
	var total float64
	for i := range weights {
		d := float64(i - radius)
		weights[i] = math.Exp(-(d * d) / (2 * sigma * sigma))
		total += weights[i]
	}
	for i := range weights {
		weights[i] /= total
	}
	return weights
}

// reflect101 maps an out-of-range index back into [0, n) mirroring around
// the edge pixel (dcb|abcd|cba)
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

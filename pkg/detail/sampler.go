package detail

import (
	"image"
	"math/rand/v2"

	"github.com/disintegration/imaging"

	"github.com/menta2k/carblend/pkg/cropper"
)

// Config holds configuration for detail crop sampling
type Config struct {
	MaxAttempts int     `json:"max_attempts"`
	MinRatio    float64 `json:"min_ratio"`
	MaxRatio    float64 `json:"max_ratio"`
	// MinSide is the floor applied to the sampled side, even when it
	// exceeds the ratio range for small cars
	MinSide int `json:"min_side"`
	// Threshold is the mask value above which a pixel counts as car
	Threshold uint8 `json:"threshold"`
	// MinCoverage is the car pixel fraction a crop must strictly exceed
	MinCoverage float64 `json:"min_coverage"`
}

// DefaultConfig returns the sampling policy for "other" fragments
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 50,
		MinRatio:    0.15,
		MaxRatio:    0.25,
		MinSide:     256,
		Threshold:   127,
		MinCoverage: 0.5,
	}
}

// Sampler searches a car/mask pair for fragments dominated by car pixels
type Sampler struct {
	config Config
}

// New creates a new Sampler with default configuration
func New() *Sampler {
	return &Sampler{config: DefaultConfig()}
}

// NewWithConfig creates a new Sampler with custom configuration
func NewWithConfig(config Config) *Sampler {
	return &Sampler{config: config}
}

// Crop is a fragment of a car and its mask
type Crop struct {
	Image    *image.NRGBA
	Mask     *image.Gray
	Region   image.Rectangle
	Coverage float64
	Attempts int
}

// Sample runs up to MaxAttempts independent trials and returns the first
// fragment whose car coverage strictly exceeds MinCoverage. ok is false
// when every attempt failed.
func (s *Sampler) Sample(car *image.NRGBA, mask *image.Gray, rng *rand.Rand) (crop Crop, ok bool) {
	size := car.Bounds().Size()
	if size.X == 0 || size.Y == 0 || mask.Bounds().Size() != size {
		return Crop{}, false
	}

	longest := size.X
	if size.Y > longest {
		longest = size.Y
	}

	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		ratio := s.config.MinRatio + rng.Float64()*(s.config.MaxRatio-s.config.MinRatio)
		side := int(ratio * float64(longest))
		if side < s.config.MinSide {
			side = s.config.MinSide
		}

		w, h := min(side, size.X), min(side, size.Y)
		x := rng.IntN(size.X - w + 1)
		y := rng.IntN(size.Y - h + 1)
		region := image.Rect(x, y, x+w, y+h)

		coverage := Coverage(mask, region, s.config.Threshold)
		if coverage > s.config.MinCoverage {
			return Crop{
				Image:    imaging.Crop(car, region.Add(car.Bounds().Min)),
				Mask:     cropper.CropGray(mask, region),
				Region:   region,
				Coverage: coverage,
				Attempts: attempt,
			}, true
		}
	}

	return Crop{}, false
}

// Coverage returns the fraction of mask pixels in r (relative to the mask
// origin) whose value exceeds threshold
func Coverage(mask *image.Gray, r image.Rectangle, threshold uint8) float64 {
	r = r.Intersect(image.Rect(0, 0, mask.Bounds().Dx(), mask.Bounds().Dy()))
	if r.Empty() {
		return 0
	}

	count := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := mask.Pix[y*mask.Stride+r.Min.X : y*mask.Stride+r.Max.X]
		for _, v := range row {
			if v > threshold {
				count++
			}
		}
	}
	return float64(count) / float64(r.Dx()*r.Dy())
}

package compositor

import (
	"errors"
	"fmt"
	"image"
	"math"
	"math/rand/v2"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

// ErrSizeMismatch is returned when images that must share a size do not
var ErrSizeMismatch = errors.New("image sizes differ")

// Mode selects where the car is placed on the canvas
type Mode string

const (
	// Centered places the car exactly in the middle of the canvas
	Centered Mode = "centered"
	// ExtraBackground places the car at a random offset biased towards
	// the lower part of the canvas
	ExtraBackground Mode = "extra-background"
)

// IsValid reports whether m is a known placement mode
func (m Mode) IsValid() bool {
	return m == Centered || m == ExtraBackground
}

// CanvasPlan is the square working canvas derived from the car size. It is
// computed once per round and shared by background preparation and blending.
type CanvasPlan struct {
	Side   int
	Target int
	Scale  float64
}

// PlanCanvas computes the canvas side as max(longest car side * scale,
// target). The side never drops below the longest car side, so the car
// always fits.
func PlanCanvas(car image.Point, scale float64, target int) CanvasPlan {
	longest := car.X
	if car.Y > longest {
		longest = car.Y
	}

	side := int(math.Ceil(float64(longest) * scale))
	if side < target {
		side = target
	}
	if side < longest {
		side = longest
	}

	return CanvasPlan{Side: side, Target: target, Scale: scale}
}

// Offset returns the top-left position of a car of the given size on a
// square canvas of the given side
func Offset(mode Mode, side int, car image.Point, rng *rand.Rand) image.Point {
	freeX := side - car.X
	freeY := side - car.Y
	if freeX < 0 {
		freeX = 0
	}
	if freeY < 0 {
		freeY = 0
	}

	if mode != ExtraBackground {
		return image.Pt(freeX/2, freeY/2)
	}

	x := rng.IntN(freeX + 1)

	low := int(0.3 * float64(freeY))
	var y int
	if low >= freeY {
		y = freeY / 2
	} else {
		y = low + rng.IntN(freeY-low+1)
	}

	return image.Pt(x, y)
}

// Blend combines car and bg with per-pixel weights:
// out = car*alpha + bg*(1-alpha), rounded to 8 bits
func Blend(car, bg *image.NRGBA, alpha AlphaField) (*image.NRGBA, error) {
	size := car.Bounds().Size()
	if bg.Bounds().Size() != size {
		return nil, fmt.Errorf("%w: car %v, background %v", ErrSizeMismatch, size, bg.Bounds().Size())
	}
	if alpha.Width != size.X || alpha.Height != size.Y {
		return nil, fmt.Errorf("%w: car %v, alpha %dx%d", ErrSizeMismatch, size, alpha.Width, alpha.Height)
	}

	out := image.NewNRGBA(image.Rect(0, 0, size.X, size.Y))
	for y := 0; y < size.Y; y++ {
		ci := y * car.Stride
		bi := y * bg.Stride
		oi := y * out.Stride
		for x := 0; x < size.X; x++ {
			a := alpha.At(x, y)
			for c := 0; c < 3; c++ {
				v := float64(car.Pix[ci+c])*a + float64(bg.Pix[bi+c])*(1-a)
				out.Pix[oi+c] = uint8(clamp(math.Round(v), 0, 255))
			}
			out.Pix[oi+3] = 255
			ci += 4
			bi += 4
			oi += 4
		}
	}

	return out, nil
}

// Compositor places cropped cars onto prepared backgrounds
type Compositor struct {
	config Config
}

// Config holds configuration for compositing
type Config struct {
	Blur BlurOptions
	// Filter is the resampling filter used for the final resize
	Filter imaging.ResampleFilter
}

// New creates a new Compositor with default configuration
func New() *Compositor {
	return &Compositor{
		config: Config{
			Blur:   DefaultBlurOptions(),
			Filter: imaging.Linear,
		},
	}
}

// NewWithConfig creates a new Compositor with custom configuration
func NewWithConfig(config Config) *Compositor {
	if config.Filter.Kernel == nil && config.Filter.Support == 0 {
		config.Filter = imaging.Linear
	}
	return &Compositor{config: config}
}

// Request describes one composite
type Request struct {
	Car        *image.NRGBA
	Mask       *image.Gray
	Background *image.NRGBA
	Plan       CanvasPlan
	Mode       Mode
}

// Result contains the composite and where the car landed on the canvas
type Result struct {
	Image     *image.NRGBA
	Placement image.Rectangle
	Plan      CanvasPlan
}

// Composite blends the car into the background canvas and resizes the
// canvas to Plan.Target x Plan.Target
func (c *Compositor) Composite(req Request, rng *rand.Rand) (Result, error) {
	carSize := req.Car.Bounds().Size()
	if req.Mask.Bounds().Size() != carSize {
		return Result{}, fmt.Errorf("%w: car %v, mask %v", ErrSizeMismatch, carSize, req.Mask.Bounds().Size())
	}

	plan := req.Plan
	canvas := req.Background
	if canvas.Bounds().Dx() != plan.Side || canvas.Bounds().Dy() != plan.Side {
		canvas = imaging.Fill(canvas, plan.Side, plan.Side, imaging.Center, imaging.Linear)
	} else {
		canvas = imaging.Clone(canvas)
	}

	car := req.Car
	mask := req.Mask
	if carSize.X > plan.Side || carSize.Y > plan.Side {
		// Only reachable with a hand-made plan; shrink the car to fit.
		car = imaging.Fit(car, plan.Side, plan.Side, imaging.Linear)
		mask = toGray(imaging.Resize(mask, car.Bounds().Dx(), car.Bounds().Dy(), imaging.Linear))
		carSize = car.Bounds().Size()
	}

	at := Offset(req.Mode, plan.Side, carSize, rng)
	placement := image.Rectangle{Min: at, Max: at.Add(carSize)}

	alpha, err := NewAlphaField(mask, KernelFor(carSize, c.config.Blur))
	if err != nil {
		return Result{}, err
	}

	region := imaging.Crop(canvas, placement)
	blended, err := Blend(imaging.Clone(car), region, alpha)
	if err != nil {
		return Result{}, err
	}
	draw.Draw(canvas, placement, blended, image.Point{}, draw.Src)

	out := canvas
	if plan.Target > 0 && plan.Side != plan.Target {
		out = imaging.Resize(canvas, plan.Target, plan.Target, c.config.Filter)
	}

	return Result{Image: out, Placement: placement, Plan: plan}, nil
}

func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

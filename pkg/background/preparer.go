package background

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"math/rand/v2"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
)

// ErrMissingResource is returned when a background cannot be read or decoded.
// Callers skip the augmentation round.
var ErrMissingResource = errors.New("background unavailable")

// Loader decodes images from disk
type Loader interface {
	LoadImage(path string) (image.Image, error)
}

// Options controls the random background transformations
type Options struct {
	FlipProbability   float64 `json:"flip_probability"`
	UpscaleMargin     float64 `json:"upscale_margin"`
	RotateProbability float64 `json:"rotate_probability"`
	MaxAngle          float64 `json:"max_angle"`
	ZoomProbability   float64 `json:"zoom_probability"`
	MaxZoom           float64 `json:"max_zoom"`
	// The crop window starts between MinX and MaxX (fractions of the
	// width, MaxX minus the window) and no lower than MaxY of the height
	MinX float64 `json:"min_x"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// DefaultOptions returns the street-scene augmentation policy
func DefaultOptions() Options {
	return Options{
		FlipProbability:   0.5,
		UpscaleMargin:     1.1,
		RotateProbability: 0.5,
		MaxAngle:          10,
		ZoomProbability:   0.5,
		MaxZoom:           1.5,
		MinX:              0.2,
		MaxX:              0.8,
		MaxY:              0.2,
	}
}

// Preparer turns raw backgrounds into square canvases
type Preparer struct {
	opts   Options
	loader Loader
}

// New creates a new Preparer with default options
func New(loader Loader) *Preparer {
	return NewWithOptions(loader, DefaultOptions())
}

// NewWithOptions creates a new Preparer with custom options
func NewWithOptions(loader Loader, opts Options) *Preparer {
	return &Preparer{opts: opts, loader: loader}
}

// PrepareFile decodes the background at path and prepares it
func (p *Preparer) PrepareFile(path string, side int, rng *rand.Rand) (*image.NRGBA, error) {
	if p.loader == nil {
		return nil, fmt.Errorf("%w: no loader configured", ErrMissingResource)
	}
	img, err := p.loader.LoadImage(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMissingResource, path, err)
	}
	return p.Prepare(img, side, rng)
}

// Prepare flips, upscales, rotates and zooms bg at random, then crops a
// side x side window biased towards the horizontal center and the top
func (p *Preparer) Prepare(bg image.Image, side int, rng *rand.Rand) (*image.NRGBA, error) {
	if side <= 0 {
		return nil, fmt.Errorf("invalid canvas side %d", side)
	}
	if bg.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrMissingResource)
	}

	img := imaging.Clone(bg)

	if rng.Float64() < p.opts.FlipProbability {
		img = imaging.FlipH(img)
	}

	img = Upscale(img, side, p.opts.UpscaleMargin)

	if rng.Float64() < p.opts.RotateProbability {
		angle := (rng.Float64()*2 - 1) * p.opts.MaxAngle
		img = RotateReflect(img, angle)
	}

	if p.opts.MaxZoom > 1 && rng.Float64() < p.opts.ZoomProbability {
		zoom := 1 + rng.Float64()*(p.opts.MaxZoom-1)
		img = scale(img, zoom)
	}

	window := p.cropWindow(img.Bounds().Size(), side, rng)
	canvas := imaging.Crop(img, window)

	if canvas.Bounds().Dx() != side || canvas.Bounds().Dy() != side {
		canvas = imaging.Fill(canvas, side, side, imaging.Center, imaging.Linear)
	}
	return canvas, nil
}

// cropWindow picks the side x side window inside an image of the given size
func (p *Preparer) cropWindow(size image.Point, side int, rng *rand.Rand) image.Rectangle {
	w, h := float64(size.X), float64(size.Y)

	x := 0
	lowX := int(p.opts.MinX * w)
	highX := int(p.opts.MaxX*w) - side
	if highX >= lowX {
		x = lowX + rng.IntN(highX-lowX+1)
	}

	y := 0
	highY := size.Y - side
	if limit := int(p.opts.MaxY * h); limit < highY {
		highY = limit
	}
	if highY > 0 {
		y = rng.IntN(highY + 1)
	}

	return image.Rect(x, y, x+side, y+side)
}

// Upscale enlarges img isotropically when either side is below side, so that
// both sides exceed it by margin
func Upscale(img *image.NRGBA, side int, margin float64) *image.NRGBA {
	b := img.Bounds()
	if b.Dx() >= side && b.Dy() >= side {
		return img
	}
	if margin < 1 {
		margin = 1
	}
	factor := math.Max(float64(side)/float64(b.Dy()), float64(side)/float64(b.Dx())) * margin
	return scale(img, factor)
}

// scale resizes img by factor, never rounding below the exact product
func scale(img *image.NRGBA, factor float64) *image.NRGBA {
	b := img.Bounds()
	w := uint(math.Ceil(float64(b.Dx()) * factor))
	h := uint(math.Ceil(float64(b.Dy()) * factor))
	return imaging.Clone(resize.Resize(w, h, img, resize.Bilinear))
}

// RotateReflect rotates img counter-clockwise by angle degrees around its
// center, keeping its size. Corners are filled by mirroring the image at its
// border instead of leaving blank areas.
func RotateReflect(img *image.NRGBA, angle float64) *image.NRGBA {
	if angle == 0 {
		return img
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	rad := math.Abs(angle) * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)

	// Padding needed so the rotated w x h window only covers image data
	padX := int(math.Ceil((float64(w)*cos+float64(h)*sin-float64(w))/2)) + 2
	padY := int(math.Ceil((float64(w)*sin+float64(h)*cos-float64(h))/2)) + 2

	padded := reflectPad(img, padX, padY)
	rotated := imaging.Rotate(padded, angle, color.Transparent)
	return imaging.CropCenter(rotated, w, h)
}

// reflectPad surrounds img with a mirrored border (dcb|abcd|cba)
func reflectPad(img *image.NRGBA, padX, padY int) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w+2*padX, h+2*padY))

	for y := 0; y < out.Bounds().Dy(); y++ {
		sy := reflectIndex(y-padY, h)
		for x := 0; x < out.Bounds().Dx(); x++ {
			sx := reflectIndex(x-padX, w)
			si := sy*img.Stride + sx*4
			di := y*out.Stride + x*4
			copy(out.Pix[di:di+4], img.Pix[si:si+4])
		}
	}
	return out
}

func reflectIndex(i, n int) int {
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

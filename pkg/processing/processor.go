package processing

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"os"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ErrDecode is returned when a file cannot be parsed as a raster image
var ErrDecode = errors.New("cannot decode image")

// Processor handles image decoding and encoding
type Processor struct {
	Quality  int
	Lossless bool
}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{Quality: 90}
}

// LoadImage loads an image from a file path with WebP support
func (p *Processor) LoadImage(path string) (image.Image, error) {
	// Try imaging.Open (registered decoders)
	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}

	// Fallback: explicit decode from bytes, WebP included
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := p.decodeImageFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// LoadRaster loads an image as 8-bit NRGBA
func (p *Processor) LoadRaster(path string) (*image.NRGBA, error) {
	img, err := p.LoadImage(path)
	if err != nil {
		return nil, err
	}
	return imaging.Clone(img), nil
}

// LoadMask loads an image and converts it to a single-channel mask
func (p *Processor) LoadMask(path string) (*image.Gray, error) {
	img, err := p.LoadImage(path)
	if err != nil {
		return nil, err
	}
	return ToGray(img), nil
}

// ToGray converts img to a zero-origin grayscale image using luma weights
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

// decodeImageFromBytes decodes an image from byte data with WebP support
func (p *Processor) decodeImageFromBytes(data []byte) (image.Image, error) {
	// Try standard image.Decode first
	reader := bytes.NewReader(data)
	if img, _, err := image.Decode(reader); err == nil {
		return img, nil
	}

	// Try WebP decode
	reader = bytes.NewReader(data)
	if img, err := webp.Decode(reader); err == nil {
		return img, nil
	}

	return nil, ErrDecode
}

// Encode writes img to w in the given format (jpg, png or webp)
func (p *Processor) Encode(w io.Writer, img image.Image, format string) error {
	switch strings.ToLower(format) {
	case "webp":
		opts := &webp.Options{Lossless: p.Lossless, Quality: float32(p.Quality)}
		return webp.Encode(w, img, opts)
	case "png":
		return imaging.Encode(w, img, imaging.PNG)
	case "jpg", "jpeg", "":
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(p.Quality))
	}
	return fmt.Errorf("unsupported output format: %s", format)
}

// SaveImage saves an image to a file in the given format
func (p *Processor) SaveImage(img image.Image, path, format string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := p.Encode(f, img, format); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// CreateDebugOverlay draws the car placement onto a copy of the composite.
// placement is in canvas coordinates and is scaled to the composite size.
func (p *Processor) CreateDebugOverlay(img image.Image, placement image.Rectangle, canvasSide int) image.Image {
	nrgba := imaging.Clone(img)
	w := nrgba.Bounds().Dx()
	h := nrgba.Bounds().Dy()

	// Colors
	gold := color.NRGBA{255, 204, 0, 255} // placement box
	red := color.NRGBA{255, 0, 0, 255}    // car center
	blue := color.NRGBA{0, 170, 255, 255} // image center
	stroke := int(math.Max(1, 0.008*float64(minInt(w, h))))
	cross := int(math.Max(4, 0.02*float64(minInt(w, h))))

	sx, sy := 1.0, 1.0
	if canvasSide > 0 {
		sx = float64(w) / float64(canvasSide)
		sy = float64(h) / float64(canvasSide)
	}
	box := image.Rect(
		int(float64(placement.Min.X)*sx+0.5),
		int(float64(placement.Min.Y)*sy+0.5),
		int(float64(placement.Max.X)*sx+0.5),
		int(float64(placement.Max.Y)*sy+0.5),
	)

	drawBox(nrgba, box, gold, stroke)

	// Car center crosshair
	px := (box.Min.X + box.Max.X) / 2
	py := (box.Min.Y + box.Max.Y) / 2
	drawHLine(nrgba, py, px-cross, px+cross, red)
	drawVLine(nrgba, px, py-cross, py+cross, red)

	// Image center marker
	ix, iy := w/2, h/2
	drawHLine(nrgba, iy, ix-3, ix+3, blue)
	drawVLine(nrgba, ix, iy-3, iy+3, blue)

	return nrgba
}

// Helper functions
func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func drawBox(img *image.NRGBA, r image.Rectangle, color color.NRGBA, stroke int) {
	if r.Max.X <= r.Min.X {
		r.Max.X = r.Min.X + 1
	}
	if r.Max.Y <= r.Min.Y {
		r.Max.Y = r.Min.Y + 1
	}
	for s := 0; s < stroke; s++ {
		drawHLine(img, r.Min.Y+s, r.Min.X, r.Max.X, color)
		drawHLine(img, r.Max.Y-1-s, r.Min.X, r.Max.X, color)
		drawVLine(img, r.Min.X+s, r.Min.Y, r.Max.Y, color)
		drawVLine(img, r.Max.X-1-s, r.Min.Y, r.Max.Y, color)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}

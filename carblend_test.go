package carblend

import (
	"image"
	"image/color"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/menta2k/carblend/pkg/pipeline"
	"github.com/menta2k/carblend/pkg/viewpoint"
)

// createTestPair creates a car with a centered rectangular subject and its mask
func createTestPair(width, height int) (*image.NRGBA, *image.Gray) {
	car := image.NewNRGBA(image.Rect(0, 0, width, height))
	mask := image.NewGray(image.Rect(0, 0, width, height))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x > width/4 && x < 3*width/4 && y > height/4 && y < 3*height/4 {
				car.Set(x, y, color.NRGBA{220, 20, 20, 255})
				mask.SetGray(x, y, color.Gray{Y: 255})
			} else {
				car.Set(x, y, color.NRGBA{0, 0, 0, 255})
			}
		}
	}

	return car, mask
}

func createTestBackground(width, height int) image.Image {
	return imaging.New(width, height, color.NRGBA{90, 120, 160, 255})
}

func TestNew(t *testing.T) {
	blender := New()
	if blender == nil {
		t.Fatal("New() returned nil")
	}

	if blender.cropper == nil || blender.preparer == nil || blender.compositor == nil || blender.sampler == nil {
		t.Error("a component is nil")
	}

	if blender.config.Size != 256 {
		t.Errorf("expected default size 256, got %d", blender.config.Size)
	}
}

func TestClassify(t *testing.T) {
	tests := map[string]viewpoint.Category{
		"0cdf5b5d0ce1_01.jpg": viewpoint.Front,
		"0cdf5b5d0ce1_09.jpg": viewpoint.Back,
		"0cdf5b5d0ce1_13.jpg": viewpoint.Right,
		"0cdf5b5d0ce1_17.jpg": viewpoint.Unknown,
		"street.jpg":          viewpoint.Unknown,
	}

	for name, expected := range tests {
		if got := Classify(name); got != expected {
			t.Errorf("Classify(%q) = %s, expected %s", name, got, expected)
		}
	}
}

func TestComposite(t *testing.T) {
	blender := New()
	car, mask := createTestPair(400, 300)
	rng := rand.New(rand.NewPCG(3, 0))

	result, err := blender.Composite(car, mask, createTestBackground(640, 480), viewpoint.Left, rng)
	if err != nil {
		t.Fatalf("Composite failed: %v", err)
	}

	if result.Image.Bounds().Dx() != 256 || result.Image.Bounds().Dy() != 256 {
		t.Errorf("expected 256x256, got %v", result.Image.Bounds().Size())
	}

	if result.Plan.Scale < 1.0 || result.Plan.Scale > 1.05 {
		t.Errorf("left scale %.3f outside [1.0, 1.05]", result.Plan.Scale)
	}
}

func TestDetail(t *testing.T) {
	blender := New()
	car, mask := createTestPair(400, 300)
	rng := rand.New(rand.NewPCG(3, 0))

	result, ok, err := blender.Detail(car, mask, createTestBackground(640, 480), rng)
	if err != nil {
		t.Fatalf("Detail failed: %v", err)
	}
	if !ok {
		t.Fatal("expected a detail crop for a fully masked car")
	}
	if result.Image.Bounds().Dx() != 256 {
		t.Errorf("expected 256 wide detail, got %d", result.Image.Bounds().Dx())
	}
}

func TestDetailExhausted(t *testing.T) {
	cfg := pipeline.DefaultConfig()
	cfg.Padding = 200
	blender := NewWithConfig(cfg)

	// A thin stripe never covers half of a detail window
	car := image.NewNRGBA(image.Rect(0, 0, 400, 400))
	mask := image.NewGray(image.Rect(0, 0, 400, 400))
	for y := 0; y < 400; y++ {
		mask.SetGray(200, y, color.Gray{Y: 255})
	}

	_, ok, err := blender.Detail(car, mask, createTestBackground(300, 300), rand.New(rand.NewPCG(1, 1)))
	if err != nil {
		t.Fatalf("Detail failed: %v", err)
	}
	if ok {
		t.Error("expected no detail crop")
	}
}

func TestProcessFile(t *testing.T) {
	dir := t.TempDir()
	car, mask := createTestPair(300, 200)

	carPath := filepath.Join(dir, "abc_05.png")
	maskPath := filepath.Join(dir, "abc_05_mask.png")
	bgPath := filepath.Join(dir, "street.png")
	for path, img := range map[string]image.Image{carPath: car, maskPath: mask, bgPath: createTestBackground(200, 150)} {
		if err := imaging.Save(img, path); err != nil {
			t.Fatal(err)
		}
	}

	out := filepath.Join(dir, "out")
	path, err := New().ProcessFile(carPath, maskPath, bgPath, out, 1)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}

	if path != filepath.Join(out, "left", "abc_05_blend_0.jpg") {
		t.Errorf("unexpected output path %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("output missing: %v", err)
	}

	if _, err := New().ProcessFile(filepath.Join(dir, "street.png"), maskPath, bgPath, out, 1); err == nil {
		t.Error("expected error for unclassifiable car")
	}
}

func TestGetVersion(t *testing.T) {
	if GetVersion() != Version {
		t.Errorf("expected version %s, got %s", Version, GetVersion())
	}
}

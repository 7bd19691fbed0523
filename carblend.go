// Package carblend builds training data for car viewpoint classifiers by
// compositing segmented car photos onto street-scene backgrounds.
//
// Basic usage:
//
//	package main
//
//	import (
//		"log"
//		"math/rand/v2"
//
//		"github.com/menta2k/carblend"
//	)
//
//	func main() {
//		blender := carblend.New()
//		rng := rand.New(rand.NewPCG(1, 0))
//
//		car, mask, err := blender.LoadPair("cars/0cdf5b5d0ce1_01.jpg", "masks/0cdf5b5d0ce1_01_mask.gif")
//		if err != nil {
//			log.Fatal(err)
//		}
//		bg, err := blender.LoadImage("backgrounds/street.jpg")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		category := carblend.Classify("0cdf5b5d0ce1_01.jpg")
//		result, err := blender.Composite(car, mask, bg, category, rng)
//		if err != nil {
//			log.Fatal(err)
//		}
//		if err := blender.SaveImage(result.Image, "front.jpg"); err != nil {
//			log.Fatal(err)
//		}
//	}
//
// The package consists of five stages:
//
// 1. Cropper (pkg/cropper): trims the car to its mask bounding box
// 2. Viewpoint (pkg/viewpoint): maps the view code in a filename to a category
// 3. Background (pkg/background): flips, rotates and crops a background canvas
// 4. Compositor (pkg/compositor): places and alpha-blends the car on the canvas
// 5. Detail (pkg/detail): samples car fragments for the "other" category
//
// pkg/pipeline runs the stages over whole directories with a worker pool,
// and cmd/carblend exposes that as a CLI.
package carblend

import (
	"fmt"
	"image"
	"math/rand/v2"
	"path/filepath"

	"github.com/menta2k/carblend/internal/utils"
	"github.com/menta2k/carblend/pkg/background"
	"github.com/menta2k/carblend/pkg/compositor"
	"github.com/menta2k/carblend/pkg/cropper"
	"github.com/menta2k/carblend/pkg/detail"
	"github.com/menta2k/carblend/pkg/pipeline"
	"github.com/menta2k/carblend/pkg/processing"
	"github.com/menta2k/carblend/pkg/viewpoint"
)

// Version of the carblend library
const Version = "1.0.0"

// Blender provides a high-level interface over the compositing stages
type Blender struct {
	config     pipeline.Config
	proc       *processing.Processor
	cropper    *cropper.MaskCropper
	preparer   *background.Preparer
	compositor *compositor.Compositor
	sampler    *detail.Sampler
}

// New creates a new Blender with default configuration
func New() *Blender {
	return NewWithConfig(pipeline.DefaultConfig())
}

// NewWithConfig creates a new Blender with custom configuration
func NewWithConfig(config pipeline.Config) *Blender {
	if config.Scales == nil {
		config.Scales = viewpoint.DefaultScaleTable()
	}
	proc := processing.NewProcessor()
	return &Blender{
		config:     config,
		proc:       proc,
		cropper:    cropper.NewWithConfig(cropper.CropConfig{Padding: config.Padding}),
		preparer:   background.NewWithOptions(proc, config.Background),
		compositor: compositor.NewWithConfig(compositor.Config{Blur: config.Blur}),
		sampler:    detail.NewWithConfig(config.Detail),
	}
}

// Classify returns the viewpoint category encoded in a car filename
func Classify(filename string) viewpoint.Category {
	return viewpoint.Classify(filename)
}

// LoadImage loads an image from file
func (b *Blender) LoadImage(path string) (image.Image, error) {
	return b.proc.LoadImage(path)
}

// LoadPair loads a car image and its mask
func (b *Blender) LoadPair(carPath, maskPath string) (*image.NRGBA, *image.Gray, error) {
	car, err := b.proc.LoadRaster(carPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load car: %w", err)
	}
	mask, err := b.proc.LoadMask(maskPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load mask: %w", err)
	}
	return car, mask, nil
}

// SaveImage saves an image, picking the format from the extension
func (b *Blender) SaveImage(img image.Image, path string) error {
	return b.proc.SaveImage(img, path, utils.GetFileExtension(path))
}

// Crop trims car and mask to the padded mask bounding box
func (b *Blender) Crop(car image.Image, mask *image.Gray) (cropper.CropResult, error) {
	return b.cropper.Crop(car, mask)
}

// Composite crops the car, prepares bg and blends them with the scale
// range of category and centered placement
func (b *Blender) Composite(car image.Image, mask *image.Gray, bg image.Image, category viewpoint.Category, rng *rand.Rand) (compositor.Result, error) {
	crop, err := b.Crop(car, mask)
	if err != nil {
		return compositor.Result{}, err
	}
	return b.place(crop.Image, crop.Mask, bg, category, b.config.Mode, rng)
}

// Detail samples a car fragment and composites it like an "other" image.
// ok is false when no fragment had enough car coverage.
func (b *Blender) Detail(car image.Image, mask *image.Gray, bg image.Image, rng *rand.Rand) (result compositor.Result, ok bool, err error) {
	crop, err := b.Crop(car, mask)
	if err != nil {
		return compositor.Result{}, false, err
	}

	frag, ok := b.sampler.Sample(crop.Image, crop.Mask, rng)
	if !ok {
		return compositor.Result{}, false, nil
	}

	result, err = b.place(frag.Image, frag.Mask, bg, viewpoint.Other, b.config.DetailMode, rng)
	if err != nil {
		return compositor.Result{}, false, err
	}
	return result, true, nil
}

func (b *Blender) place(car *image.NRGBA, mask *image.Gray, bg image.Image, category viewpoint.Category, mode compositor.Mode, rng *rand.Rand) (compositor.Result, error) {
	scale := b.config.Scales.Range(category).Sample(rng)
	plan := compositor.PlanCanvas(car.Bounds().Size(), scale, b.config.Size)

	canvas, err := b.preparer.Prepare(bg, plan.Side, rng)
	if err != nil {
		return compositor.Result{}, fmt.Errorf("background preparation failed: %w", err)
	}

	return b.compositor.Composite(compositor.Request{
		Car:        car,
		Mask:       mask,
		Background: canvas,
		Plan:       plan,
		Mode:       mode,
	}, rng)
}

// ProcessFile is a convenience function that loads a car, its mask and a
// background, composites them and saves the result into
// outputDir/<category>/. It returns the written path.
func (b *Blender) ProcessFile(carPath, maskPath, backgroundPath, outputDir string, seed uint64) (string, error) {
	category := Classify(carPath)
	if category == viewpoint.Unknown {
		return "", fmt.Errorf("cannot classify viewpoint of %s", filepath.Base(carPath))
	}

	car, mask, err := b.LoadPair(carPath, maskPath)
	if err != nil {
		return "", err
	}
	bg, err := b.LoadImage(backgroundPath)
	if err != nil {
		return "", fmt.Errorf("failed to load background: %w", err)
	}

	result, err := b.Composite(car, mask, bg, category, rand.New(rand.NewPCG(seed, 0)))
	if err != nil {
		return "", fmt.Errorf("compositing failed: %w", err)
	}

	dir := filepath.Join(outputDir, string(category))
	if err := utils.EnsureDir(dir); err != nil {
		return "", err
	}
	path := filepath.Join(dir, utils.GenerateOutputFilename(carPath, "blend", 0, b.config.Format))
	if err := b.proc.SaveImage(result.Image, path, b.config.Format); err != nil {
		return "", fmt.Errorf("failed to save composite: %w", err)
	}
	return path, nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}

// Package pipeline turns a directory of segmented cars into a viewpoint
// dataset: crop, classify, composite onto backgrounds, write.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"math/rand/v2"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/menta2k/carblend/internal/dataset"
	"github.com/menta2k/carblend/internal/report"
	"github.com/menta2k/carblend/internal/utils"
	"github.com/menta2k/carblend/pkg/background"
	"github.com/menta2k/carblend/pkg/compositor"
	"github.com/menta2k/carblend/pkg/cropper"
	"github.com/menta2k/carblend/pkg/detail"
	"github.com/menta2k/carblend/pkg/processing"
	"github.com/menta2k/carblend/pkg/viewpoint"
)

// Writer stores finished images under their category
type Writer interface {
	Write(ctx context.Context, category viewpoint.Category, name string, img image.Image) (string, error)
	Counts() map[viewpoint.Category]int
}

// fileWriter is implemented by writers that can store files outside the
// category layout, used for debug overlays
type fileWriter interface {
	WriteFile(rel string, img image.Image) (string, error)
}

// Config holds configuration for a generation run
type Config struct {
	Rounds       int
	DetailRounds int
	Size         int
	Padding      int
	Mode         compositor.Mode
	DetailMode   compositor.Mode
	Format       string
	Seed         uint64
	Workers      int
	Limit        int
	Debug        bool

	Background background.Options
	Detail     detail.Config
	Blur       compositor.BlurOptions
	Scales     viewpoint.ScaleTable
}

// DefaultConfig returns the default run configuration
func DefaultConfig() Config {
	return Config{
		Rounds:       1,
		DetailRounds: 1,
		Size:         256,
		Padding:      10,
		Mode:         compositor.Centered,
		DetailMode:   compositor.ExtraBackground,
		Format:       "jpg",
		Workers:      runtime.NumCPU(),
		Background:   background.DefaultOptions(),
		Detail:       detail.DefaultConfig(),
		Blur:         compositor.DefaultBlurOptions(),
		Scales:       viewpoint.DefaultScaleTable(),
	}
}

// Input names the directories a run reads from
type Input struct {
	CarDir        string
	MaskDir       string
	BackgroundDir string
}

// Pipeline runs the per-car stages over a worker pool
type Pipeline struct {
	config     Config
	proc       *processing.Processor
	cropper    *cropper.MaskCropper
	preparer   *background.Preparer
	compositor *compositor.Compositor
	sampler    *detail.Sampler
	writer     Writer
	logger     *slog.Logger

	skips struct {
		unclassified    atomic.Int64
		badInput        atomic.Int64
		roundFailed     atomic.Int64
		detailExhausted atomic.Int64
	}
}

// New creates a pipeline writing through w. A nil logger uses slog.Default.
func New(config Config, proc *processing.Processor, w Writer, logger *slog.Logger) (*Pipeline, error) {
	if w == nil {
		return nil, errors.New("no writer configured")
	}
	if proc == nil {
		proc = processing.NewProcessor()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.Scales == nil {
		config.Scales = viewpoint.DefaultScaleTable()
	}

	return &Pipeline{
		config:     config,
		proc:       proc,
		cropper:    cropper.NewWithConfig(cropper.CropConfig{Padding: config.Padding}),
		preparer:   background.NewWithOptions(proc, config.Background),
		compositor: compositor.NewWithConfig(compositor.Config{Blur: config.Blur}),
		sampler:    detail.NewWithConfig(config.Detail),
		writer:     w,
		logger:     logger,
	}, nil
}

// Run processes every car/mask pair in input and returns the run report.
// Per-car problems are logged and counted; only unreadable directories, an
// empty background pool, write failures and cancellation abort the run.
func (p *Pipeline) Run(ctx context.Context, input Input) (report.Report, error) {
	rep := report.Report{Started: time.Now(), Seed: p.config.Seed}
	if rep.Seed == 0 {
		rep.Seed = uint64(rep.Started.UnixNano())
	}
	p.skips.unclassified.Store(0)
	p.skips.badInput.Store(0)
	p.skips.roundFailed.Store(0)
	p.skips.detailExhausted.Store(0)

	pairs, missing, duplicates, err := dataset.Pairs(input.CarDir, input.MaskDir)
	if err != nil {
		return rep, err
	}
	for _, car := range missing {
		p.logger.Debug("no mask for car, skipping", "car", car)
	}
	for _, car := range duplicates {
		p.logger.Warn("another car has the same name stem, skipping", "car", car)
	}
	rep.Skips.MissingMask = len(missing)
	rep.Skips.DuplicateStem = len(duplicates)

	backgrounds, err := dataset.Backgrounds(input.BackgroundDir)
	if err != nil {
		return rep, err
	}

	if p.config.Limit > 0 {
		pairs = dataset.Sample(pairs, p.config.Limit, rand.New(rand.NewPCG(rep.Seed, math.MaxUint64)))
	}
	rep.Cars = len(pairs)

	p.logger.Info("starting run",
		"cars", len(pairs),
		"backgrounds", len(backgrounds),
		"seed", rep.Seed,
		"workers", p.config.Workers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Workers)
	for i, pair := range pairs {
		g.Go(func() error {
			return p.ProcessCar(gctx, pair, backgrounds, CarRand(rep.Seed, i))
		})
	}
	err = g.Wait()

	rep.Finished = time.Now()
	rep.Counts = p.writer.Counts()
	for _, n := range rep.Counts {
		rep.Written += n
	}
	rep.Skips.Unclassified = int(p.skips.unclassified.Load())
	rep.Skips.BadInput = int(p.skips.badInput.Load())
	rep.Skips.RoundFailed = int(p.skips.roundFailed.Load())
	rep.Skips.DetailExhausted = int(p.skips.detailExhausted.Load())

	if err != nil {
		return rep, err
	}

	p.logger.Info("run finished",
		"written", rep.Written,
		"cars", rep.Cars,
		"duration", rep.Duration().Round(time.Millisecond))
	return rep, nil
}

// CarRand returns the random source for the car at index, so results do
// not depend on worker scheduling
func CarRand(seed uint64, index int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(index)))
}

// ProcessCar writes the augmentation and detail rounds for one car.
// A non-nil error means the run should stop.
func (p *Pipeline) ProcessCar(ctx context.Context, pair dataset.Pair, backgrounds []string, rng *rand.Rand) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger := p.logger.With("car", filepath.Base(pair.Car))

	category := viewpoint.Classify(pair.Car)
	if category == viewpoint.Unknown {
		logger.Warn("cannot classify viewpoint, skipping")
		p.skips.unclassified.Add(1)
		return nil
	}

	crop, err := p.load(pair)
	if err != nil {
		logger.Warn("cannot use car, skipping", "error", err)
		p.skips.badInput.Add(1)
		return nil
	}

	for round := 0; round < p.config.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		scale := p.config.Scales.Range(category).Sample(rng)
		plan := compositor.PlanCanvas(crop.Image.Bounds().Size(), scale, p.config.Size)

		res, err := p.composite(crop.Image, crop.Mask, plan, p.config.Mode, backgrounds, rng)
		if err != nil {
			logger.Warn("round failed", "round", round, "error", err)
			p.skips.roundFailed.Add(1)
			continue
		}

		name := utils.GenerateOutputFilename(pair.Car, "blend", round, p.config.Format)
		if err := p.write(ctx, category, name, res); err != nil {
			return err
		}
	}

	for round := 0; round < p.config.DetailRounds; round++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		frag, ok := p.sampler.Sample(crop.Image, crop.Mask, rng)
		if !ok {
			logger.Debug("no detail crop with enough coverage", "round", round)
			p.skips.detailExhausted.Add(1)
			continue
		}

		scale := p.config.Scales.Range(viewpoint.Other).Sample(rng)
		plan := compositor.PlanCanvas(frag.Image.Bounds().Size(), scale, p.config.Size)

		res, err := p.composite(frag.Image, frag.Mask, plan, p.config.DetailMode, backgrounds, rng)
		if err != nil {
			logger.Warn("detail round failed", "round", round, "error", err)
			p.skips.roundFailed.Add(1)
			continue
		}

		name := utils.GenerateOutputFilename(pair.Car, "detail", round, p.config.Format)
		if err := p.write(ctx, viewpoint.Other, name, res); err != nil {
			return err
		}
	}

	return nil
}

func (p *Pipeline) load(pair dataset.Pair) (cropper.CropResult, error) {
	car, err := p.proc.LoadRaster(pair.Car)
	if err != nil {
		return cropper.CropResult{}, err
	}
	mask, err := p.proc.LoadMask(pair.Mask)
	if err != nil {
		return cropper.CropResult{}, err
	}
	return p.cropper.Crop(car, mask)
}

func (p *Pipeline) composite(car *image.NRGBA, mask *image.Gray, plan compositor.CanvasPlan, mode compositor.Mode, backgrounds []string, rng *rand.Rand) (compositor.Result, error) {
	if len(backgrounds) == 0 {
		return compositor.Result{}, dataset.ErrEmptyPool
	}
	path := backgrounds[rng.IntN(len(backgrounds))]

	bg, err := p.preparer.PrepareFile(path, plan.Side, rng)
	if err != nil {
		return compositor.Result{}, err
	}

	return p.compositor.Composite(compositor.Request{
		Car:        car,
		Mask:       mask,
		Background: bg,
		Plan:       plan,
		Mode:       mode,
	}, rng)
}

func (p *Pipeline) write(ctx context.Context, category viewpoint.Category, name string, res compositor.Result) error {
	if _, err := p.writer.Write(ctx, category, name, res.Image); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}

	if !p.config.Debug {
		return nil
	}
	fw, ok := p.writer.(fileWriter)
	if !ok {
		return nil
	}
	overlay := p.proc.CreateDebugOverlay(res.Image, res.Placement, res.Plan.Side)
	if _, err := fw.WriteFile(filepath.Join("debug", string(category), name), overlay); err != nil {
		return fmt.Errorf("writing debug overlay for %s: %w", name, err)
	}
	return nil
}

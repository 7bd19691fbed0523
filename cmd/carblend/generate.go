package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/menta2k/carblend/internal/config"
	"github.com/menta2k/carblend/internal/report"
	"github.com/menta2k/carblend/internal/storage"
	"github.com/menta2k/carblend/pkg/pipeline"
)

type generateFlags struct {
	cars, masks, backgrounds, out string
	rounds, detailRounds, size    int
	workers, limit, quality       int
	seed                          uint64
	format, logLevel              string
	lossless, debug, noReport     bool
	bucket, prefix                string
}

func GenerateCommand() *cobra.Command {
	var f generateFlags
	short := "Generate the composite dataset. "
	command := &cobra.Command{
		Use:   "generate",
		Short: short,
		Long: short + "Every car with a mask is cropped, classified from its view code and " +
			"blended onto random backgrounds; detail fragments go to the 'other' category. " +
			"Flags override CARBLEND_* variables, which override the config file.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return errors.Wrap(err, "could not load configuration")
			}
			f.apply(cmd.Flags(), cfg)
			if err := cfg.Validate(); err != nil {
				return errors.Wrap(err, "invalid configuration")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return generate(ctx, cfg)
		},
	}

	fl := command.Flags()
	fl.StringVar(&f.cars, "cars", "", "directory of car images named ID_CODE.ext")
	fl.StringVar(&f.masks, "masks", "", "directory of masks named ID_CODE_mask.ext")
	fl.StringVar(&f.backgrounds, "backgrounds", "", "directory of background images")
	fl.StringVarP(&f.out, "out", "o", "", "output directory")
	fl.IntVar(&f.rounds, "rounds", 0, "composites per car")
	fl.IntVar(&f.detailRounds, "detail-rounds", 0, "detail fragments tried per car")
	fl.IntVar(&f.size, "size", 0, "output side in pixels")
	fl.IntVarP(&f.workers, "workers", "j", 0, "cars processed in parallel")
	fl.IntVar(&f.limit, "limit", 0, "process a random sample of this many cars")
	fl.Uint64Var(&f.seed, "seed", 0, "random seed, 0 seeds from the clock")
	fl.StringVar(&f.format, "format", "", "output format: jpg|png|webp")
	fl.IntVar(&f.quality, "quality", 0, "jpg/webp quality (1-100)")
	fl.BoolVar(&f.lossless, "lossless", false, "lossless webp output")
	fl.BoolVar(&f.debug, "debug", false, "also write placement overlays under debug/")
	fl.BoolVar(&f.noReport, "no-report", false, "skip report.json and report.png")
	fl.StringVar(&f.bucket, "s3-bucket", "", "mirror every output file to this S3 bucket")
	fl.StringVar(&f.prefix, "s3-prefix", "", "key prefix inside the S3 bucket")
	fl.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	return command
}

// apply copies the flags the user set onto cfg
func (f *generateFlags) apply(fl *pflag.FlagSet, cfg *config.Config) {
	set := func(name string, fn func()) {
		if fl.Changed(name) {
			fn()
		}
	}
	set("cars", func() { cfg.Input.CarDir = f.cars })
	set("masks", func() { cfg.Input.MaskDir = f.masks })
	set("backgrounds", func() { cfg.Input.BackgroundDir = f.backgrounds })
	set("limit", func() { cfg.Input.Limit = f.limit })
	set("out", func() { cfg.Output.Dir = f.out })
	set("format", func() { cfg.Output.Format = f.format })
	set("quality", func() { cfg.Output.Quality = f.quality })
	set("lossless", func() { cfg.Output.Lossless = f.lossless })
	set("debug", func() { cfg.Output.Debug = f.debug })
	set("no-report", func() { cfg.Output.Report = !f.noReport })
	set("rounds", func() { cfg.Augment.Rounds = f.rounds })
	set("detail-rounds", func() { cfg.Augment.DetailRounds = f.detailRounds })
	set("size", func() { cfg.Augment.Size = f.size })
	set("workers", func() { cfg.Augment.Workers = f.workers })
	set("seed", func() { cfg.Augment.Seed = f.seed })
	set("s3-bucket", func() { cfg.Storage.S3Bucket = f.bucket })
	set("s3-prefix", func() { cfg.Storage.S3Prefix = f.prefix })
	set("log-level", func() { cfg.Logging.Level = f.logLevel })
}

func generate(ctx context.Context, cfg *config.Config) error {
	logger := cfg.Logging.NewLogger(os.Stderr)
	proc := cfg.Processor()

	local, err := storage.NewDirWriter(cfg.Output.Dir, cfg.Output.Format, proc, logger)
	if err != nil {
		return err
	}

	var writer pipeline.Writer = local
	var mirror *storage.S3Writer
	if cfg.Storage.S3Bucket != "" {
		mirror, err = storage.NewS3Writer(local, cfg.Storage.S3Bucket, cfg.Storage.S3Prefix, cfg.Storage.S3Region)
		if err != nil {
			return errors.Wrap(err, "could not set up S3 mirror")
		}
		writer = mirror
	}

	p, err := pipeline.New(cfg.Pipeline(), proc, writer, logger)
	if err != nil {
		return err
	}

	rep, runErr := p.Run(ctx, cfg.PipelineInput())
	if runErr != nil && rep.Cars == 0 {
		return errors.Wrap(runErr, "generation failed")
	}

	if cfg.Output.Report {
		paths, err := report.Save(rep, cfg.Output.Dir)
		if err != nil {
			return err
		}
		if mirror != nil {
			for _, path := range paths {
				if err := mirror.UploadFile(ctx, path); err != nil {
					return err
				}
			}
		}
		logger.Info("report written", "json", paths[0], "chart", paths[1])
	}

	return errors.Wrap(runErr, "generation stopped")
}

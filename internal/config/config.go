package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/samber/lo"

	"github.com/menta2k/carblend/pkg/background"
	"github.com/menta2k/carblend/pkg/compositor"
	"github.com/menta2k/carblend/pkg/detail"
	"github.com/menta2k/carblend/pkg/pipeline"
	"github.com/menta2k/carblend/pkg/processing"
	"github.com/menta2k/carblend/pkg/viewpoint"
)

// Config holds the application configuration
type Config struct {
	Input      InputConfig            `json:"input"`
	Output     OutputConfig           `json:"output"`
	Augment    AugmentConfig          `json:"augment"`
	Background background.Options     `json:"background"`
	Detail     detail.Config          `json:"detail"`
	Blur       compositor.BlurOptions `json:"blur"`
	Scales     viewpoint.ScaleTable   `json:"scales"`
	Storage    StorageConfig          `json:"storage"`
	Logging    LoggingConfig          `json:"logging"`
}

// InputConfig holds the source directories
type InputConfig struct {
	CarDir        string `json:"car_dir" env:"CARBLEND_CAR_DIR"`
	MaskDir       string `json:"mask_dir" env:"CARBLEND_MASK_DIR"`
	BackgroundDir string `json:"background_dir" env:"CARBLEND_BACKGROUND_DIR"`
	// Limit picks a random subset of cars when positive
	Limit int `json:"limit" env:"CARBLEND_LIMIT"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	Dir      string `json:"dir" env:"CARBLEND_OUTPUT_DIR"`
	Format   string `json:"format" env:"CARBLEND_OUTPUT_FORMAT"`
	Quality  int    `json:"quality" env:"CARBLEND_OUTPUT_QUALITY"`
	Lossless bool   `json:"lossless" env:"CARBLEND_OUTPUT_LOSSLESS"`
	Debug    bool   `json:"debug" env:"CARBLEND_DEBUG_OVERLAY"`
	Report   bool   `json:"report" env:"CARBLEND_REPORT"`
}

// AugmentConfig holds the compositing policy
type AugmentConfig struct {
	// Rounds is the number of backgrounds each car is placed on
	Rounds int `json:"rounds" env:"CARBLEND_ROUNDS"`
	// DetailRounds is the number of "other" fragments tried per car
	DetailRounds int    `json:"detail_rounds" env:"CARBLEND_DETAIL_ROUNDS"`
	Size         int    `json:"size" env:"CARBLEND_SIZE"`
	Padding      int    `json:"padding" env:"CARBLEND_PADDING"`
	Mode         string `json:"mode" env:"CARBLEND_MODE"`
	DetailMode   string `json:"detail_mode" env:"CARBLEND_DETAIL_MODE"`
	// Seed makes a run reproducible; zero seeds from the clock
	Seed    uint64 `json:"seed" env:"CARBLEND_SEED"`
	Workers int    `json:"workers" env:"CARBLEND_WORKERS"`
}

// StorageConfig holds the optional S3 mirror
type StorageConfig struct {
	S3Bucket string `json:"s3_bucket" env:"CARBLEND_S3_BUCKET"`
	S3Prefix string `json:"s3_prefix" env:"CARBLEND_S3_PREFIX"`
	S3Region string `json:"s3_region" env:"CARBLEND_S3_REGION"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string `json:"level" env:"CARBLEND_LOG_LEVEL"`  // debug, info, warn, error
	Format string `json:"format" env:"CARBLEND_LOG_FORMAT"` // text, json
}

// NewLogger builds a structured logger writing to w
func (l LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Input: InputConfig{
			CarDir:        "./cars",
			MaskDir:       "./masks",
			BackgroundDir: "./backgrounds",
		},
		Output: OutputConfig{
			Dir:     "./blended",
			Format:  "jpg",
			Quality: 90,
			Report:  true,
		},
		Augment: AugmentConfig{
			Rounds:       1,
			DetailRounds: 1,
			Size:         256,
			Padding:      10,
			Mode:         string(compositor.Centered),
			DetailMode:   string(compositor.ExtraBackground),
			Workers:      runtime.NumCPU(),
		},
		Background: background.DefaultOptions(),
		Detail:     detail.DefaultConfig(),
		Blur:       compositor.DefaultBlurOptions(),
		Scales:     viewpoint.DefaultScaleTable(),
		Storage: StorageConfig{
			S3Region: "eu-west-2",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from an optional JSON file on top of the
// defaults, then applies CARBLEND_* environment overrides
func Load(filename string) (*Config, error) {
	cfg := Default()

	if filename == "" {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
		return cfg, nil
	}

	if err := cleanenv.ReadConfig(filename, cfg); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return cfg, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Input.CarDir == "" || c.Input.MaskDir == "" || c.Input.BackgroundDir == "" {
		return fmt.Errorf("input.car_dir, input.mask_dir and input.background_dir are required")
	}

	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir is required")
	}

	if !lo.Contains([]string{"jpg", "jpeg", "png", "webp"}, c.Output.Format) {
		return fmt.Errorf("output.format must be jpg, png or webp")
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	if c.Augment.Rounds < 0 || c.Augment.DetailRounds < 0 {
		return fmt.Errorf("augment.rounds and augment.detail_rounds must not be negative")
	}

	if c.Augment.Size < 1 {
		return fmt.Errorf("augment.size must be positive")
	}

	if c.Augment.Padding < 0 {
		return fmt.Errorf("augment.padding must not be negative")
	}

	for _, mode := range []string{c.Augment.Mode, c.Augment.DetailMode} {
		if !compositor.Mode(mode).IsValid() {
			return fmt.Errorf("unknown placement mode %q", mode)
		}
	}

	if c.Augment.Workers < 1 {
		return fmt.Errorf("augment.workers must be positive")
	}

	if c.Blur.Kernel > 1 && c.Blur.Kernel%2 == 0 {
		return fmt.Errorf("blur.kernel must be odd")
	}

	if c.Detail.MaxAttempts < 1 {
		return fmt.Errorf("detail.max_attempts must be positive")
	}

	if c.Detail.MinRatio <= 0 || c.Detail.MaxRatio < c.Detail.MinRatio {
		return fmt.Errorf("detail ratios must satisfy 0 < min_ratio <= max_ratio")
	}

	if c.Detail.MinCoverage < 0 || c.Detail.MinCoverage >= 1 {
		return fmt.Errorf("detail.min_coverage must be in [0, 1)")
	}

	for category, r := range c.Scales {
		if !category.IsValid() {
			return fmt.Errorf("scales: unknown category %q", category)
		}
		if r.Min <= 0 || r.Max < r.Min {
			return fmt.Errorf("scales.%s must satisfy 0 < min <= max", category)
		}
	}

	if !lo.Contains([]string{"debug", "info", "warn", "error"}, c.Logging.Level) {
		return fmt.Errorf("logging.level must be debug, info, warn or error")
	}

	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be text or json")
	}

	return nil
}

// Pipeline returns the run settings for the generation pipeline
func (c *Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		Rounds:       c.Augment.Rounds,
		DetailRounds: c.Augment.DetailRounds,
		Size:         c.Augment.Size,
		Padding:      c.Augment.Padding,
		Mode:         compositor.Mode(c.Augment.Mode),
		DetailMode:   compositor.Mode(c.Augment.DetailMode),
		Format:       c.Output.Format,
		Seed:         c.Augment.Seed,
		Workers:      c.Augment.Workers,
		Limit:        c.Input.Limit,
		Debug:        c.Output.Debug,
		Background:   c.Background,
		Detail:       c.Detail,
		Blur:         c.Blur,
		Scales:       c.Scales,
	}
}

// PipelineInput returns the input directories
func (c *Config) PipelineInput() pipeline.Input {
	return pipeline.Input{
		CarDir:        c.Input.CarDir,
		MaskDir:       c.Input.MaskDir,
		BackgroundDir: c.Input.BackgroundDir,
	}
}

// Processor returns an image processor using the output encoding settings
func (c *Config) Processor() *processing.Processor {
	return &processing.Processor{Quality: c.Output.Quality, Lossless: c.Output.Lossless}
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "carblend", "config.json")
}

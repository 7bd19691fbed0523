// Package storage writes composites into the per-category dataset layout.
package storage

import (
	"context"
	"image"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/menta2k/carblend/internal/utils"
	"github.com/menta2k/carblend/pkg/processing"
	"github.com/menta2k/carblend/pkg/viewpoint"
)

// DirWriter writes images to <root>/<category>/<name>
type DirWriter struct {
	root   string
	format string
	proc   *processing.Processor
	logger *slog.Logger

	mu     sync.Mutex
	counts map[viewpoint.Category]int
	made   map[viewpoint.Category]bool
}

// NewDirWriter creates the root directory and one directory per output
// category, and returns a writer for it
func NewDirWriter(root, format string, proc *processing.Processor, logger *slog.Logger) (*DirWriter, error) {
	if err := utils.EnsureDir(root); err != nil {
		return nil, errors.Wrapf(err, "could not create output directory '%v'", root)
	}
	if proc == nil {
		proc = processing.NewProcessor()
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &DirWriter{
		root:   root,
		format: format,
		proc:   proc,
		logger: logger,
		counts: make(map[viewpoint.Category]int),
		made:   make(map[viewpoint.Category]bool),
	}
	// Each category has a directory even when no image lands in it.
	for _, category := range viewpoint.OutputCategories() {
		dir := filepath.Join(root, string(category))
		if err := utils.EnsureDir(dir); err != nil {
			return nil, errors.Wrapf(err, "could not create category directory '%v'", dir)
		}
		w.made[category] = true
	}
	return w, nil
}

// Root returns the output directory
func (w *DirWriter) Root() string {
	return w.root
}

// Format returns the encoding format used for every file
func (w *DirWriter) Format() string {
	return w.format
}

// Write encodes img to <root>/<category>/<name>
func (w *DirWriter) Write(ctx context.Context, category viewpoint.Category, name string, img image.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !category.IsValid() || category == viewpoint.Unknown {
		return "", errors.Errorf("cannot write to category '%v'", category)
	}

	dir, err := w.categoryDir(category)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, name)
	if err := w.proc.SaveImage(img, path, w.format); err != nil {
		return "", errors.Wrapf(err, "could not save '%v'", path)
	}

	w.mu.Lock()
	w.counts[category]++
	w.mu.Unlock()

	w.logger.Debug("wrote image", "path", path, "category", category)
	return path, nil
}

// WriteFile writes img to a path relative to the root without counting it
func (w *DirWriter) WriteFile(rel string, img image.Image) (string, error) {
	path := filepath.Join(w.root, rel)
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return "", errors.Wrapf(err, "could not create directory for '%v'", path)
	}
	if err := w.proc.SaveImage(img, path, w.format); err != nil {
		return "", errors.Wrapf(err, "could not save '%v'", path)
	}
	return path, nil
}

// Counts returns a snapshot of files written per category
func (w *DirWriter) Counts() map[viewpoint.Category]int {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make(map[viewpoint.Category]int, len(w.counts))
	for k, v := range w.counts {
		out[k] = v
	}
	return out
}

func (w *DirWriter) categoryDir(category viewpoint.Category) (string, error) {
	dir := filepath.Join(w.root, string(category))

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.made[category] {
		return dir, nil
	}
	if err := utils.EnsureDir(dir); err != nil {
		return "", errors.Wrapf(err, "could not create category directory '%v'", dir)
	}
	w.made[category] = true
	return dir, nil
}

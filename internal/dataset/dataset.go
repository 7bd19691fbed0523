// Package dataset discovers car/mask pairs and background images on disk.
package dataset

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/menta2k/carblend/internal/utils"
)

// ErrEmptyPool is returned when no background image is available
var ErrEmptyPool = errors.New("background pool is empty")

// MaskSuffix is appended to the car stem to name its mask
const MaskSuffix = "_mask"

// Pair is a car image with its segmentation mask
type Pair struct {
	Car  string
	Mask string
}

// MaskPath returns the mask paired with carPath inside maskDir. A mask with
// the car's extension is preferred, then any recognized image extension.
func MaskPath(carPath, maskDir string) (string, bool) {
	stem := utils.Stem(carPath) + MaskSuffix
	exts := append([]string{utils.GetFileExtension(carPath)}, utils.ImageExtensions...)

	for _, ext := range lo.Uniq(exts) {
		if ext == "" {
			continue
		}
		for _, candidate := range []string{ext, strings.ToUpper(ext)} {
			path := filepath.Join(maskDir, stem+"."+candidate)
			if utils.FileExists(path) {
				return path, true
			}
		}
	}
	return "", false
}

// Pairs lists car images in carDir and pairs them with masks in maskDir.
// Cars without a mask are returned in missing. Files that are masks
// themselves are ignored, so cars and masks may share a directory.
// Output names derive from the stem, so a paired car whose stem was already
// taken by an earlier file (abc_01.jpg then abc_01.png) is returned in
// duplicates instead of pairs.
func Pairs(carDir, maskDir string) (pairs []Pair, missing, duplicates []string, err error) {
	files, err := utils.ListImageFiles(carDir)
	if err != nil {
		return nil, nil, nil, errors.Wrapf(err, "could not list cars in '%v'", carDir)
	}

	seen := make(map[string]bool)
	for _, car := range files {
		stem := utils.Stem(car)
		if strings.HasSuffix(stem, MaskSuffix) {
			continue
		}
		mask, ok := MaskPath(car, maskDir)
		if !ok {
			missing = append(missing, car)
			continue
		}
		if seen[stem] {
			duplicates = append(duplicates, car)
			continue
		}
		seen[stem] = true
		pairs = append(pairs, Pair{Car: car, Mask: mask})
	}

	return pairs, missing, duplicates, nil
}

// Backgrounds lists every image in dir. An empty pool is an error since no
// composite can be produced without one.
func Backgrounds(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open background directory '%v'", dir)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("background path '%v' is not a directory", dir)
	}

	files, err := utils.ListImageFiles(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "could not list backgrounds in '%v'", dir)
	}
	if len(files) == 0 {
		return nil, errors.Wrapf(ErrEmptyPool, "no images in '%v'", dir)
	}
	return files, nil
}

// Sample returns n pairs picked at random, kept in their original order.
// A non-positive n or one larger than the input returns all pairs.
func Sample(pairs []Pair, n int, rng *rand.Rand) []Pair {
	if n <= 0 || n >= len(pairs) {
		return pairs
	}

	idx := rng.Perm(len(pairs))[:n]
	sort.Ints(idx)

	out := make([]Pair, 0, n)
	for _, i := range idx {
		out = append(out, pairs[i])
	}
	return out
}

package viewpoint

import (
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"strconv"
	"strings"
)

// Category is the camera angle relative to the car
type Category string

// Viewpoint categories
const (
	Front      Category = "front"
	FrontLeft  Category = "front-left"
	Left       Category = "left"
	BackLeft   Category = "back-left"
	Back       Category = "back"
	BackRight  Category = "back-right"
	Right      Category = "right"
	FrontRight Category = "front-right"
	Other      Category = "other"
	Unknown    Category = "unknown"
)

// Named returns the eight viewpoint categories derived from view codes
func Named() []Category {
	return []Category{Front, FrontLeft, Left, BackLeft, Back, BackRight, Right, FrontRight}
}

// OutputCategories returns every category that gets an output directory
func OutputCategories() []Category {
	return append(Named(), Other)
}

// IsValid reports whether c is a known category, unknown included
func (c Category) IsValid() bool {
	switch c {
	case Front, FrontLeft, Left, BackLeft, Back, BackRight, Right, FrontRight, Other, Unknown:
		return true
	}
	return false
}

// FromCode maps a Carvana-style view code (1..16, counted around the car
// starting at the front) to its category
func FromCode(code int) Category {
	switch {
	case code == 1:
		return Front
	case code >= 2 && code <= 4:
		return FrontLeft
	case code == 5:
		return Left
	case code >= 6 && code <= 8:
		return BackLeft
	case code == 9:
		return Back
	case code >= 10 && code <= 12:
		return BackRight
	case code == 13:
		return Right
	case code >= 14 && code <= 16:
		return FrontRight
	}
	return Unknown
}

// ParseCode extracts the view code from a filename of the form ID_CODE.ext
// (or ID_CODE_mask.ext). The code is the second underscore-delimited token.
func ParseCode(filename string) (int, error) {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	parts := strings.Split(base, "_")
	if len(parts) < 2 {
		return 0, fmt.Errorf("no view code in %q", filename)
	}

	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid view code %q in %q: %w", parts[1], filename, err)
	}
	return code, nil
}

// Classify returns the category encoded in filename, or Unknown when the
// code is missing, malformed or out of range
func Classify(filename string) Category {
	code, err := ParseCode(filename)
	if err != nil {
		return Unknown
	}
	return FromCode(code)
}

// ScaleRange bounds the canvas scale factor for a category. Larger values
// leave more background around the car.
type ScaleRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Sample draws a scale uniformly from [Min, Max]
func (r ScaleRange) Sample(rng *rand.Rand) float64 {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + rng.Float64()*(r.Max-r.Min)
}

// ScaleTable maps categories to their scale ranges
type ScaleTable map[Category]ScaleRange

// DefaultScaleTable returns the scale policy: side views fill the frame,
// head-on views get the most context
func DefaultScaleTable() ScaleTable {
	side := ScaleRange{Min: 1.0, Max: 1.05}
	headOn := ScaleRange{Min: 1.2, Max: 1.3}
	diagonal := ScaleRange{Min: 1.05, Max: 1.2}

	return ScaleTable{
		Left:       side,
		Right:      side,
		Front:      headOn,
		Back:       headOn,
		FrontLeft:  diagonal,
		FrontRight: diagonal,
		BackLeft:   diagonal,
		BackRight:  diagonal,
		Other:      {Min: 1.2, Max: 1.6},
	}
}

// Range returns the scale range for c, falling back to the diagonal range
// for categories missing from the table
func (t ScaleTable) Range(c Category) ScaleRange {
	if r, ok := t[c]; ok {
		return r
	}
	return ScaleRange{Min: 1.05, Max: 1.2}
}

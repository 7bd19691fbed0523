// Package report summarizes a generation run as JSON and a bar chart.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/wcharczuk/go-chart/v2"

	"github.com/menta2k/carblend/pkg/viewpoint"
)

const (
	JSONFile  = "report.json"
	ChartFile = "report.png"
)

// Skips counts cars and rounds that produced no output
type Skips struct {
	MissingMask     int `json:"missing_mask"`
	DuplicateStem   int `json:"duplicate_stem"`
	Unclassified    int `json:"unclassified"`
	BadInput        int `json:"bad_input"`
	RoundFailed     int `json:"round_failed"`
	DetailExhausted int `json:"detail_exhausted"`
}

// Report is the outcome of one run
type Report struct {
	Started  time.Time                  `json:"started"`
	Finished time.Time                  `json:"finished"`
	Seed     uint64                     `json:"seed"`
	Cars     int                        `json:"cars"`
	Written  int                        `json:"written"`
	Counts   map[viewpoint.Category]int `json:"counts"`
	Skips    Skips                      `json:"skips"`
}

// Duration returns how long the run took
func (r Report) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// WriteJSON encodes r as indented JSON
func WriteJSON(r Report, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// Chart renders a bar chart of images written per category
func Chart(r Report, w io.Writer) error {
	var bars []chart.Value
	top := 1.0
	for _, c := range viewpoint.OutputCategories() {
		n := float64(r.Counts[c])
		if n > top {
			top = n
		}
		bars = append(bars, chart.Value{Label: string(c), Value: n})
	}

	graph := chart.BarChart{
		Title: fmt.Sprintf("%d images from %d cars", r.Written, r.Cars),
		Background: chart.Style{
			Padding: chart.Box{Top: 40},
		},
		Width:      1280,
		Height:     720,
		BarWidth:   80,
		BarSpacing: 40,
		YAxis: chart.YAxis{
			Name: "Images",
			Range: &chart.ContinuousRange{
				Min: 0.0,
				Max: top,
			},
		},
		Bars: bars,
	}
	return graph.Render(chart.PNG, w)
}

// Save writes report.json and report.png into dir and returns their paths
func Save(r Report, dir string) ([]string, error) {
	jsonPath := filepath.Join(dir, JSONFile)
	if err := writeFile(jsonPath, func(w io.Writer) error { return WriteJSON(r, w) }); err != nil {
		return nil, errors.Wrap(err, "could not write report")
	}

	chartPath := filepath.Join(dir, ChartFile)
	if err := writeFile(chartPath, func(w io.Writer) error { return Chart(r, w) }); err != nil {
		return nil, errors.Wrap(err, "could not draw report chart")
	}

	return []string{jsonPath, chartPath}, nil
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

package report

import (
	"bytes"
	"encoding/json"
	"image/png"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/carblend/pkg/viewpoint"
)

func sampleReport() Report {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return Report{
		Started:  start,
		Finished: start.Add(90 * time.Second),
		Seed:     42,
		Cars:     3,
		Written:  5,
		Counts: map[viewpoint.Category]int{
			viewpoint.Front: 2,
			viewpoint.Back:  1,
			viewpoint.Other: 2,
		},
		Skips: Skips{MissingMask: 1, Unclassified: 1},
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(sampleReport(), &buf))

	var decoded Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 2, decoded.Counts[viewpoint.Front])
	assert.Equal(t, 1, decoded.Skips.Unclassified)
	assert.Contains(t, buf.String(), `"missing_mask": 1`)
	assert.Contains(t, buf.String(), `"duplicate_stem": 0`)
	assert.Equal(t, 90*time.Second, decoded.Duration())
}

func TestChart(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Chart(sampleReport(), &buf))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 1280, img.Bounds().Dx())
}

func TestChartEmptyRun(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Chart(Report{}, &buf))
	assert.NotZero(t, buf.Len())
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	paths, err := Save(sampleReport(), dir)
	require.NoError(t, err)
	require.Len(t, paths, 2)

	for _, p := range paths {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
}

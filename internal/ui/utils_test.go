package ui

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest-guardian/index-composite/internal/export"
	"github.com/forest-guardian/index-composite/internal/raster"
)

func TestWriteJobs(t *testing.T) {
	var buf bytes.Buffer
	jobs := []export.Job{
		{ID: "a", Kind: export.KindImage, State: export.StateCompleted, Destination: "out/a.tif", UpdatedAt: time.Now()},
		{ID: "b", Kind: export.KindTable, State: export.StateFailed, Error: "disk full", UpdatedAt: time.Now()},
	}
	require.NoError(t, WriteJobs(&buf, jobs))

	out := buf.String()
	assert.Contains(t, out, "out/a.tif")
	assert.Contains(t, out, "COMPLETED")
	assert.Contains(t, out, "disk full")
}

func TestWriteStats(t *testing.T) {
	var buf bytes.Buffer
	stats := []raster.Stats{
		{Band: "NDVI", ValidPixels: 4, Min: 0.1, Max: 0.5, Mean: 0.3},
		{Band: "NDWI", Min: math.NaN(), Max: math.NaN(), Mean: math.NaN()},
	}
	require.NoError(t, WriteStats(&buf, stats))

	out := buf.String()
	assert.Contains(t, out, "0.3000")
	assert.Contains(t, out, "NDWI")
	assert.Contains(t, out, "-")
}

package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/forest-guardian/index-composite/internal/raster"
)

// StatsPath is the CSV sidecar written next to a raster export.
func StatsPath(rasterPath string) string {
	return strings.TrimSuffix(rasterPath, ".tif") + "_stats.csv"
}

func writeStats(path string, img *raster.Image) error {
	stats := make([]raster.Stats, 0, len(img.Bands))
	for _, b := range img.Bands {
		stats = append(stats, raster.ComputeStats(b.Name, b.Grid))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create stats directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create stats file: %w", err)
	}
	defer file.Close()

	if err := gocsv.MarshalFile(&stats, file); err != nil {
		return fmt.Errorf("failed to write stats: %w", err)
	}
	return nil
}

func ReadStats(path string) ([]raster.Stats, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var stats []raster.Stats
	if err := gocsv.UnmarshalFile(file, &stats); err != nil {
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}
	return stats, nil
}

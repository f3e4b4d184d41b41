package engine

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"

	"github.com/forest-guardian/index-composite/internal/geometry"
	"github.com/forest-guardian/index-composite/internal/raster"
)

const (
	metresPerDegree = 111320.0
	maxNoDataPixels = 256
)

type ImageOptions struct {
	Region         geometry.ROI
	Scale          float64
	CloudOptimized bool
}

// Writer persists evaluated exports.
type Writer interface {
	WriteImage(ctx context.Context, path string, img *raster.Image, opts ImageOptions) error
	WriteFeatures(ctx context.Context, path string, roi geometry.ROI) error
}

// GDALWriter writes GeoTIFFs and shapefiles through GDAL.
type GDALWriter struct{}

func NewGDALWriter() *GDALWriter {
	godal.RegisterAll()
	return &GDALWriter{}
}

func (w *GDALWriter) WriteImage(ctx context.Context, path string, img *raster.Image, opts ImageOptions) error {
	if len(img.Bands) == 0 || img.Bands[0].Grid.Empty() {
		return fmt.Errorf("image has no pixels to write")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	first := img.Bands[0].Grid
	mem, err := godal.Create(godal.Memory, "", len(img.Bands), godal.Float64, first.Width, first.Height)
	if err != nil {
		return fmt.Errorf("failed to create in-memory dataset: %w", err)
	}
	defer mem.Close()

	wgs84, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return fmt.Errorf("failed to create WGS84 spatial reference: %w", err)
	}
	defer wgs84.Close()

	if err := mem.SetSpatialRef(wgs84); err != nil {
		return fmt.Errorf("failed to set spatial reference: %w", err)
	}
	if err := mem.SetGeoTransform(first.GeoTransform); err != nil {
		return fmt.Errorf("failed to set geotransform: %w", err)
	}

	for i, band := range mem.Bands() {
		src := img.Bands[i]
		if !src.Grid.SameShape(first) {
			return fmt.Errorf("%w: band %s", raster.ErrShapeMismatch, src.Name)
		}
		if err := band.SetNoData(math.NaN()); err != nil {
			return fmt.Errorf("failed to set nodata on band %s: %w", src.Name, err)
		}
		if err := band.SetDescription(src.Name); err != nil {
			return fmt.Errorf("failed to name band %s: %w", src.Name, err)
		}
		if err := band.Write(0, 0, src.Grid.Data, src.Grid.Width, src.Grid.Height); err != nil {
			return fmt.Errorf("failed to write band %s: %w", src.Name, err)
		}
	}

	scale := strconv.FormatFloat(opts.Scale, 'f', -1, 64)
	warpSwitches := []string{
		"-of", "MEM",
		"-t_srs", fmt.Sprintf("EPSG:%d", geometry.UTMZoneEPSG(opts.Region.Centroid())),
		"-tr", scale, scale,
		"-r", "bilinear",
		"-dstnodata", "nan",
	}
	warped, err := mem.Warp("", warpSwitches)
	if err != nil {
		return fmt.Errorf("failed to reproject image: %w", err)
	}
	defer warped.Close()

	format := "GTiff"
	if opts.CloudOptimized {
		format = "COG"
	}
	out, err := warped.Translate(path, []string{"-of", format, "-co", "COMPRESS=DEFLATE"})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", format, err)
	}
	return out.Close()
}

func (w *GDALWriter) WriteFeatures(ctx context.Context, path string, roi geometry.ROI) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	data, err := roi.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode features: %w", err)
	}
	tmp, err := os.CreateTemp("", "features-*.geojson")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	src, err := godal.Open(tmp.Name(), godal.VectorOnly())
	if err != nil {
		return fmt.Errorf("failed to open features: %w", err)
	}
	defer src.Close()

	out, err := src.VectorTranslate(path, []string{"-f", "ESRI Shapefile", "-a_srs", "EPSG:4326"})
	if err != nil {
		return fmt.Errorf("failed to write shapefile: %w", err)
	}
	return out.Close()
}

// fillEmptyBands replaces bands without pixels, as produced by a mean over
// no scenes, with all-nodata grids covering region. The warp to the export
// scale happens in the writer, so the grid is kept coarse.
func fillEmptyBands(img *raster.Image, region geometry.ROI, scale float64) *raster.Image {
	var gt [6]float64
	var width, height int
	filled := &raster.Image{Bands: make([]raster.Band, len(img.Bands))}
	for i, band := range img.Bands {
		if !band.Grid.Empty() {
			filled.Bands[i] = band
			continue
		}
		if width == 0 {
			gt, width, height = regionGrid(region.Bound(), scale)
		}
		filled.Bands[i] = raster.Band{Name: band.Name, Grid: raster.NewGrid(width, height, gt)}
	}
	return filled
}

func regionGrid(bound orb.Bound, scale float64) ([6]float64, int, int) {
	lat := (bound.Min.Y() + bound.Max.Y()) / 2
	dy := scale / metresPerDegree
	dx := dy / math.Max(math.Cos(lat*math.Pi/180), 0.01)

	spanX, spanY := bound.Max.X()-bound.Min.X(), bound.Max.Y()-bound.Min.Y()
	dx = math.Max(dx, spanX/maxNoDataPixels)
	dy = math.Max(dy, spanY/maxNoDataPixels)

	width := max(int(math.Ceil(spanX/dx)), 1)
	height := max(int(math.Ceil(spanY/dy)), 1)
	return [6]float64{bound.Min.X(), dx, 0, bound.Max.Y(), 0, -dy}, width, height
}

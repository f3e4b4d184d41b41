// Package pipeline builds the combined NDVI/NDMI/NDWI composite for a
// region and submits its exports.
package pipeline

import (
	"context"
	"fmt"

	"github.com/forest-guardian/index-composite/internal/display"
	"github.com/forest-guardian/index-composite/internal/export"
	"github.com/forest-guardian/index-composite/internal/expr"
	"github.com/forest-guardian/index-composite/internal/geometry"
)

const (
	RasterFolder = "All_Streams_Image_with_Indices"
	VectorFolder = "Buffered Regions"
	ExportScale  = 10
)

// Platform executes submitted exports.
type Platform interface {
	ExportImage(ctx context.Context, task export.ImageTask) (export.Job, error)
	ExportTable(ctx context.Context, task export.TableTask) (export.Job, error)
}

// Bands names the scene bands the indices are computed from.
type Bands struct {
	Red   string
	Green string
	NIR   string
	SWIR  string
}

var Sentinel2 = Bands{Red: "B4", Green: "B3", NIR: "B8", SWIR: "B11"}

// ExportError reports a failed raster export submission.
type ExportError struct {
	Err error
}

func (e *ExportError) Error() string {
	return "Export failed. " + e.Err.Error()
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// Result carries the composite and the handles of the submitted exports.
type Result struct {
	Combined  expr.Image
	ROI       geometry.ROI
	RasterJob export.Job
	VectorJob *export.Job
}

type Pipeline struct {
	platform Platform
	layers   display.Map
	bands    Bands
}

type Option func(*Pipeline)

func WithBands(b Bands) Option {
	return func(p *Pipeline) {
		p.bands = b
	}
}

func New(platform Platform, layers display.Map, opts ...Option) *Pipeline {
	p := &Pipeline{platform: platform, layers: layers, bands: Sentinel2}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProduceCombinedIndexRaster computes the temporal mean of NDVI, NDMI and
// NDWI over the region, concatenates them in that order and submits a
// cloud-optimized GeoTIFF export. With buffering enabled the region is
// grown first and the grown region is exported as a shapefile.
func (p *Pipeline) ProduceCombinedIndexRaster(ctx context.Context, regionName string, collection expr.Collection, roi geometry.ROI, buffer geometry.Buffer) (Result, error) {
	if regionName == "" {
		return Result{}, fmt.Errorf("region name must not be empty")
	}
	if err := roi.Validate(); err != nil {
		return Result{}, err
	}

	p.layers.AddLayer(display.GeometryLayer(regionName+" ROI", roi, true))

	var result Result
	if buffer.Enabled() {
		buffered, err := buffer.Apply(roi)
		if err != nil {
			return Result{}, err
		}
		job, err := p.platform.ExportTable(ctx, export.TableTask{
			Collection:  buffered,
			Description: regionName + "_buffer",
			Folder:      VectorFolder,
			FilePrefix:  regionName + "_buffer",
			Format:      export.FormatShapefile,
		})
		if err != nil {
			return Result{}, err
		}
		result.VectorJob = &job
		p.layers.AddLayer(display.GeometryLayer(regionName+" buffered ROI", buffered, true))
		roi = buffered
	}

	filtered := collection.FilterBounds(roi)
	ndvi := index(filtered, p.bands.NIR, p.bands.Red, "NDVI", roi)
	ndmi := index(filtered, p.bands.NIR, p.bands.SWIR, "NDMI", roi)
	ndwi := index(filtered, p.bands.Green, p.bands.NIR, "NDWI", roi)

	p.layers.AddLayer(display.ImageLayer(regionName+" NDVI", ndvi, display.IndexVis, false))
	p.layers.AddLayer(display.ImageLayer(regionName+" NDMI", ndmi, display.IndexVis, false))
	p.layers.AddLayer(display.ImageLayer(regionName+" NDWI", ndwi, display.IndexVis, false))

	combined := expr.Cat(ndvi, ndmi, ndwi)
	p.layers.AddLayer(display.ImageLayer(regionName+" NDVI_NDMI_NDWI", combined, display.IndexVis, false))

	prefix := regionName + "_NDVI_NDMI_NDWI"
	job, err := p.platform.ExportImage(ctx, export.ImageTask{
		Image:          combined,
		Description:    prefix,
		Folder:         RasterFolder,
		FilePrefix:     prefix,
		Region:         roi,
		Scale:          ExportScale,
		Format:         export.FormatGeoTIFF,
		CloudOptimized: true,
	})
	if err != nil {
		return Result{}, &ExportError{Err: err}
	}

	result.Combined = combined
	result.ROI = roi
	result.RasterJob = job
	return result, nil
}

func index(c expr.Collection, a, b, name string, roi geometry.ROI) expr.Image {
	return c.NormalizedDifference(a, b, name).Select(name).Mean().Clip(roi)
}

package sentinel

import (
	"fmt"
	"math"

	"github.com/airbusgeo/godal"

	"github.com/forest-guardian/index-composite/internal/raster"
)

// Band names of the decoded scenes, in evalscript order.
var sceneBands = []string{"B4", "B3", "B8", "B11"}

// isCloudOrNoData reports scene classification values that never carry a
// usable surface reflectance: no data, cloud shadow, medium and high
// probability cloud, thin cirrus.
func isCloudOrNoData(scl float64) bool {
	switch scl {
	case 0, 3, 8, 9, 10:
		return true
	}
	return math.IsNaN(scl)
}

func openDataset(path string) (*godal.Dataset, error) {
	return godal.Open(path, godal.RasterOnly(), godal.ErrLogger(func(ec godal.ErrorCategory, code int, msg string) error {
		if ec == godal.CE_Warning {
			return nil
		}
		return fmt.Errorf("GDAL error %d: %s", code, msg)
	}))
}

// decodeScene reads the reflectance bands of a downloaded GeoTIFF and masks
// every pixel the SCL band marks as cloud or no data.
func decodeScene(path string) (*raster.Image, error) {
	ds, err := openDataset(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer ds.Close()

	bands := ds.Bands()
	if len(bands) != len(sceneBands)+1 {
		return nil, fmt.Errorf("expected %d bands in %s, got %d", len(sceneBands)+1, path, len(bands))
	}
	gt, err := ds.GeoTransform()
	if err != nil {
		return nil, fmt.Errorf("failed to read geotransform: %w", err)
	}
	width, height := ds.Structure().SizeX, ds.Structure().SizeY

	read := func(b godal.Band) ([]float64, error) {
		data := make([]float64, width*height)
		if err := b.Read(0, 0, data, width, height); err != nil {
			return nil, err
		}
		return data, nil
	}

	scl, err := read(bands[len(sceneBands)])
	if err != nil {
		return nil, fmt.Errorf("failed to read SCL band: %w", err)
	}

	img := &raster.Image{}
	for i, name := range sceneBands {
		data, err := read(bands[i])
		if err != nil {
			return nil, fmt.Errorf("failed to read band %s: %w", name, err)
		}
		for p := range data {
			if isCloudOrNoData(scl[p]) {
				data[p] = math.NaN()
			}
		}
		img.Bands = append(img.Bands, raster.Band{
			Name: name,
			Grid: &raster.Grid{Width: width, Height: height, GeoTransform: gt, Data: data},
		})
	}
	return img, nil
}

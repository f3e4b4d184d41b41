package raster

import (
	"errors"
	"fmt"
	"math"
)

var ErrShapeMismatch = errors.New("grids have different shapes")

// Grid is a single raster band georeferenced with a GDAL style geotransform.
// NaN marks pixels without a valid value.
type Grid struct {
	Width        int
	Height       int
	GeoTransform [6]float64
	Data         []float64
}

// NewGrid returns a grid with every pixel set to NaN.
func NewGrid(width, height int, geoTransform [6]float64) *Grid {
	return Filled(width, height, geoTransform, math.NaN())
}

func Filled(width, height int, geoTransform [6]float64, value float64) *Grid {
	data := make([]float64, width*height)
	for i := range data {
		data[i] = value
	}
	return &Grid{
		Width:        width,
		Height:       height,
		GeoTransform: geoTransform,
		Data:         data,
	}
}

func (g *Grid) Empty() bool {
	return g == nil || g.Width == 0 || g.Height == 0
}

func (g *Grid) At(x, y int) float64 {
	return g.Data[y*g.Width+x]
}

func (g *Grid) Set(x, y int, value float64) {
	g.Data[y*g.Width+x] = value
}

func (g *Grid) Clone() *Grid {
	data := make([]float64, len(g.Data))
	copy(data, g.Data)
	return &Grid{
		Width:        g.Width,
		Height:       g.Height,
		GeoTransform: g.GeoTransform,
		Data:         data,
	}
}

func (g *Grid) SameShape(other *Grid) bool {
	return g.Width == other.Width && g.Height == other.Height
}

// PixelCenter converts pixel coordinates to the coordinates of the pixel centre.
func (g *Grid) PixelCenter(x, y int) (float64, float64) {
	gt := g.GeoTransform
	lon := gt[0] + gt[1]*(float64(x)+0.5) + gt[2]*(float64(y)+0.5)
	lat := gt[3] + gt[4]*(float64(x)+0.5) + gt[5]*(float64(y)+0.5)
	return lon, lat
}

// Bounds returns minX, minY, maxX, maxY of the grid extent.
func (g *Grid) Bounds() [4]float64 {
	gt := g.GeoTransform
	x0, y0 := gt[0], gt[3]
	x1 := gt[0] + gt[1]*float64(g.Width) + gt[2]*float64(g.Height)
	y1 := gt[3] + gt[4]*float64(g.Width) + gt[5]*float64(g.Height)
	return [4]float64{math.Min(x0, x1), math.Min(y0, y1), math.Max(x0, x1), math.Max(y0, y1)}
}

func (g *Grid) ValidCount() int {
	count := 0
	for _, v := range g.Data {
		if !math.IsNaN(v) {
			count++
		}
	}
	return count
}

func checkShapes(grids ...*Grid) error {
	for i := 1; i < len(grids); i++ {
		if !grids[0].SameShape(grids[i]) {
			return fmt.Errorf("%w: %dx%d and %dx%d", ErrShapeMismatch,
				grids[0].Width, grids[0].Height, grids[i].Width, grids[i].Height)
		}
	}
	return nil
}

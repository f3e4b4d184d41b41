package raster

import "math"

// NormalizedDifferenceValue computes (a-b)/(a+b) for a single pixel.
// Negative or NaN inputs give NaN, a zero denominator gives 0.
func NormalizedDifferenceValue(a, b float64) float64 {
	if math.IsNaN(a) || math.IsNaN(b) || a < 0 || b < 0 {
		return math.NaN()
	}
	denominator := a + b
	if denominator == 0 {
		return 0
	}
	return (a - b) / denominator
}

func NormalizedDifference(a, b *Grid) (*Grid, error) {
	if err := checkShapes(a, b); err != nil {
		return nil, err
	}
	result := NewGrid(a.Width, a.Height, a.GeoTransform)
	for i := range result.Data {
		result.Data[i] = NormalizedDifferenceValue(a.Data[i], b.Data[i])
	}
	return result, nil
}

// Mean is the per-pixel unweighted arithmetic mean of the valid values of
// all grids. A pixel with no valid input stays NaN. With no grids the
// result is an empty grid.
func Mean(grids ...*Grid) (*Grid, error) {
	if len(grids) == 0 {
		return &Grid{}, nil
	}
	if err := checkShapes(grids...); err != nil {
		return nil, err
	}
	first := grids[0]
	result := NewGrid(first.Width, first.Height, first.GeoTransform)
	for i := range result.Data {
		sum, count := 0.0, 0
		for _, g := range grids {
			v := g.Data[i]
			if math.IsNaN(v) {
				continue
			}
			sum += v
			count++
		}
		if count > 0 {
			result.Data[i] = sum / float64(count)
		}
	}
	return result, nil
}

// Mask keeps the pixels whose centre satisfies inside and sets the others to NaN.
func Mask(g *Grid, inside func(x, y float64) bool) *Grid {
	if g.Empty() {
		return &Grid{GeoTransform: g.geoTransform()}
	}
	result := g.Clone()
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			cx, cy := g.PixelCenter(x, y)
			if !inside(cx, cy) {
				result.Set(x, y, math.NaN())
			}
		}
	}
	return result
}

func (g *Grid) geoTransform() [6]float64 {
	if g == nil {
		return [6]float64{}
	}
	return g.GeoTransform
}

package raster

import "math"

type Band struct {
	Name string
	Grid *Grid
}

// Image is an ordered set of named bands sharing one pixel grid.
type Image struct {
	Bands []Band
}

func (im *Image) Band(name string) (*Grid, bool) {
	for _, b := range im.Bands {
		if b.Name == name {
			return b.Grid, true
		}
	}
	return nil, false
}

func (im *Image) BandNames() []string {
	names := make([]string, 0, len(im.Bands))
	for _, b := range im.Bands {
		names = append(names, b.Name)
	}
	return names
}

// Cat concatenates the bands of all images in order.
func Cat(images ...*Image) *Image {
	result := &Image{}
	for _, im := range images {
		result.Bands = append(result.Bands, im.Bands...)
	}
	return result
}

type Stats struct {
	Band        string  `csv:"band"`
	ValidPixels int     `csv:"valid_pixels"`
	Min         float64 `csv:"min"`
	Max         float64 `csv:"max"`
	Mean        float64 `csv:"mean"`
}

func ComputeStats(name string, g *Grid) Stats {
	stats := Stats{Band: name, Min: math.NaN(), Max: math.NaN(), Mean: math.NaN()}
	if g.Empty() {
		return stats
	}
	sum := 0.0
	for _, v := range g.Data {
		if math.IsNaN(v) {
			continue
		}
		if stats.ValidPixels == 0 || v < stats.Min {
			stats.Min = v
		}
		if stats.ValidPixels == 0 || v > stats.Max {
			stats.Max = v
		}
		sum += v
		stats.ValidPixels++
	}
	if stats.ValidPixels > 0 {
		stats.Mean = sum / float64(stats.ValidPixels)
	}
	return stats
}

package display

import (
	"context"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/fogleman/gg"
	"github.com/paulmach/orb"

	"github.com/forest-guardian/index-composite/internal/expr"
	"github.com/forest-guardian/index-composite/internal/geometry"
	"github.com/forest-guardian/index-composite/internal/raster"
)

const outlineSize = 512

type Evaluator interface {
	Evaluate(ctx context.Context, img expr.Image) (*raster.Image, error)
}

func normalize(value, min, max float64) float64 {
	if max == min {
		return 0
	}
	norm := (value - min) / (max - min)
	if norm < 0 {
		return 0
	}
	if norm > 1 {
		return 1
	}
	return norm
}

// valueToColor maps [0,1] onto a blue, green, red ramp.
func valueToColor(norm float64) color.RGBA {
	var r, g, b uint8
	if norm <= 0.5 {
		ratio := norm / 0.5
		g = uint8(255 * ratio)
		b = uint8(255 * (1 - ratio))
	} else {
		ratio := (norm - 0.5) / 0.5
		r = uint8(255 * ratio)
		g = uint8(255 * (1 - ratio))
	}
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// RenderPreviews writes one PNG per image band and one per geometry layer
// into dir and returns the written paths.
func (r *Recorder) RenderPreviews(ctx context.Context, dir string, evaluator Evaluator) ([]string, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create preview folder: %w", err)
	}

	var paths []string
	for _, layer := range r.Layers() {
		switch {
		case layer.Image != nil:
			img, err := evaluator.Evaluate(ctx, *layer.Image)
			if err != nil {
				return paths, fmt.Errorf("failed to evaluate layer %q: %w", layer.Name, err)
			}
			for _, band := range img.Bands {
				if band.Grid.Empty() {
					continue
				}
				path := filepath.Join(dir, fileName(layer.Name, band.Name))
				if err := renderGrid(band.Grid, layer.Vis, path); err != nil {
					return paths, err
				}
				paths = append(paths, path)
			}
		case layer.ROI != nil:
			path := filepath.Join(dir, fileName(layer.Name, ""))
			if err := renderOutline(*layer.ROI, path); err != nil {
				return paths, err
			}
			paths = append(paths, path)
		}
	}
	return paths, nil
}

func fileName(layer, band string) string {
	name := strings.ReplaceAll(layer, " ", "_")
	if band != "" {
		name += "_" + band
	}
	return name + ".png"
}

func renderGrid(g *raster.Grid, vis Vis, path string) error {
	dc := gg.NewContext(g.Width, g.Height)
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			v := g.At(x, y)
			if math.IsNaN(v) {
				continue
			}
			dc.SetColor(valueToColor(normalize(v, vis.Min, vis.Max)))
			dc.SetPixel(x, y)
		}
	}
	if err := dc.SavePNG(path); err != nil {
		return fmt.Errorf("failed to save preview %s: %w", path, err)
	}
	return nil
}

func renderOutline(roi geometry.ROI, path string) error {
	bound := roi.Bound()
	w, h := bound.Max.X()-bound.Min.X(), bound.Max.Y()-bound.Min.Y()
	scale := outlineSize / math.Max(math.Max(w, h), 1e-9)
	project := func(p orb.Point) (float64, float64) {
		return (p.X() - bound.Min.X()) * scale, (bound.Max.Y() - p.Y()) * scale
	}

	width := max(int(math.Ceil(w*scale)), 1)
	height := max(int(math.Ceil(h*scale)), 1)
	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.SetRGB(1, 0, 0)
	dc.SetLineWidth(2)

	drawLine := func(points []orb.Point) {
		for i, p := range points {
			x, y := project(p)
			if i == 0 {
				dc.MoveTo(x, y)
				continue
			}
			dc.LineTo(x, y)
		}
		dc.Stroke()
	}

	for _, f := range roi.Features() {
		switch geom := f.Geometry.(type) {
		case orb.Polygon:
			for _, ring := range geom {
				drawLine(ring)
			}
		case orb.MultiPolygon:
			for _, poly := range geom {
				for _, ring := range poly {
					drawLine(ring)
				}
			}
		case orb.LineString:
			drawLine(geom)
		case orb.MultiLineString:
			for _, line := range geom {
				drawLine(line)
			}
		}
	}

	if err := dc.SavePNG(path); err != nil {
		return fmt.Errorf("failed to save preview %s: %w", path, err)
	}
	return nil
}

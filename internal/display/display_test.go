package display

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest-guardian/index-composite/internal/expr"
	"github.com/forest-guardian/index-composite/internal/geometry"
	"github.com/forest-guardian/index-composite/internal/raster"
)

type staticEvaluator struct {
	img *raster.Image
}

func (e staticEvaluator) Evaluate(context.Context, expr.Image) (*raster.Image, error) {
	return e.img, nil
}

func TestValueToColor(t *testing.T) {
	assert.Equal(t, uint8(255), valueToColor(0).B)
	assert.Equal(t, uint8(255), valueToColor(0.5).G)
	assert.Equal(t, uint8(255), valueToColor(1).R)
	assert.Equal(t, 0.0, normalize(-5, -1, 1))
	assert.Equal(t, 1.0, normalize(5, -1, 1))
	assert.Equal(t, 0.5, normalize(0, -1, 1))
}

func TestRecorderKeepsOrder(t *testing.T) {
	r := NewRecorder()
	roi := geometry.FromGeometry(orb.Polygon{orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}})
	r.AddLayer(GeometryLayer("farm ROI", roi, true))
	r.AddLayer(ImageLayer("farm NDVI", expr.NewCollection("S2").Select("NDVI").Mean(), IndexVis, false))

	layers := r.Layers()
	require.Len(t, layers, 2)
	assert.Equal(t, "farm ROI", layers[0].Name)
	assert.True(t, layers[0].Shown)
	assert.False(t, layers[1].Shown)

	l, ok := r.Layer("farm NDVI")
	require.True(t, ok)
	assert.NotNil(t, l.Image)
}

func TestRenderPreviews(t *testing.T) {
	grid := raster.Filled(4, 4, [6]float64{0, 0.25, 0, 1, 0, -0.25}, 0.4)
	grid.Set(0, 0, math.NaN())
	evaluator := staticEvaluator{img: &raster.Image{Bands: []raster.Band{{Name: "NDVI", Grid: grid}}}}

	r := NewRecorder()
	roi := geometry.FromGeometry(orb.Polygon{orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}})
	r.AddLayer(GeometryLayer("farm ROI", roi, true))
	r.AddLayer(ImageLayer("farm NDVI", expr.NewCollection("S2").Mean(), IndexVis, false))

	dir := t.TempDir()
	paths, err := r.RenderPreviews(context.Background(), dir, evaluator)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "farm_ROI.png"),
		filepath.Join(dir, "farm_NDVI_NDVI.png"),
	}, paths)
	for _, p := range paths {
		_, err := os.Stat(p)
		assert.NoError(t, err)
	}
}

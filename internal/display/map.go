package display

import (
	"sync"

	"github.com/forest-guardian/index-composite/internal/expr"
	"github.com/forest-guardian/index-composite/internal/geometry"
)

// Vis is the value range stretched over the colour ramp.
type Vis struct {
	Min float64
	Max float64
}

// IndexVis suits normalized difference indices.
var IndexVis = Vis{Min: -1, Max: 1}

// Layer is either an image or a geometry layer.
type Layer struct {
	Name  string
	Image *expr.Image
	ROI   *geometry.ROI
	Vis   Vis
	Shown bool
}

func ImageLayer(name string, img expr.Image, vis Vis, shown bool) Layer {
	return Layer{Name: name, Image: &img, Vis: vis, Shown: shown}
}

func GeometryLayer(name string, roi geometry.ROI, shown bool) Layer {
	return Layer{Name: name, ROI: &roi, Shown: shown}
}

type Map interface {
	AddLayer(layer Layer)
}

// Recorder is a Map that keeps its layers in insertion order.
type Recorder struct {
	mu     sync.Mutex
	layers []Layer
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) AddLayer(layer Layer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.layers = append(r.layers, layer)
}

func (r *Recorder) Layers() []Layer {
	r.mu.Lock()
	defer r.mu.Unlock()
	layers := make([]Layer, len(r.layers))
	copy(layers, r.layers)
	return layers
}

func (r *Recorder) Layer(name string) (Layer, bool) {
	for _, l := range r.Layers() {
		if l.Name == name {
			return l, true
		}
	}
	return Layer{}, false
}

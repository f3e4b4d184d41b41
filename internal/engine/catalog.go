package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/forest-guardian/index-composite/internal/geometry"
	"github.com/forest-guardian/index-composite/internal/raster"
)

// Scene is one acquisition: a set of bands on a shared grid.
type Scene struct {
	ID    string
	Date  time.Time
	Image *raster.Image
}

// Footprint is the extent of the scene's first band.
func (s *Scene) Footprint() orb.Bound {
	if s.Image == nil || len(s.Image.Bands) == 0 || s.Image.Bands[0].Grid.Empty() {
		return orb.Bound{}
	}
	b := s.Image.Bands[0].Grid.Bounds()
	return orb.Bound{Min: orb.Point{b[0], b[1]}, Max: orb.Point{b[2], b[3]}}
}

func (s *Scene) withBand(name string, g *raster.Grid) *Scene {
	bands := make([]raster.Band, 0, len(s.Image.Bands)+1)
	bands = append(bands, s.Image.Bands...)
	bands = append(bands, raster.Band{Name: name, Grid: g})
	return &Scene{ID: s.ID, Date: s.Date, Image: &raster.Image{Bands: bands}}
}

// Query narrows a catalog lookup. Zero Start/End and an empty Region mean
// no restriction.
type Query struct {
	Dataset string
	Start   time.Time
	End     time.Time
	Region  geometry.ROI
}

func (q Query) matches(s *Scene) bool {
	if !q.Start.IsZero() && s.Date.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && !s.Date.Before(q.End) {
		return false
	}
	if !q.Region.IsZero() && !s.Footprint().Intersects(q.Region.Bound()) {
		return false
	}
	return true
}

type Catalog interface {
	Scenes(ctx context.Context, q Query) ([]*Scene, error)
}

// MemoryCatalog serves a fixed set of scenes per dataset.
type MemoryCatalog struct {
	mu       sync.RWMutex
	datasets map[string][]*Scene
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{datasets: make(map[string][]*Scene)}
}

func (c *MemoryCatalog) Add(dataset string, scenes ...*Scene) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.datasets[dataset] = append(c.datasets[dataset], scenes...)
}

func (c *MemoryCatalog) Scenes(ctx context.Context, q Query) ([]*Scene, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	var result []*Scene
	for _, s := range c.datasets[q.Dataset] {
		if q.matches(s) {
			result = append(result, s)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})
	return result, nil
}

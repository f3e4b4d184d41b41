package engine

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"

	"github.com/forest-guardian/index-composite/internal/expr"
	"github.com/forest-guardian/index-composite/internal/geometry"
	"github.com/forest-guardian/index-composite/internal/raster"
)

var (
	ErrMissingBand    = errors.New("band not found")
	ErrUnsupportedOp  = errors.New("unsupported operation")
	ErrIncompleteBand = errors.New("band names cannot be inferred")
)

// Evaluator computes expression graphs against a catalog.
type Evaluator struct {
	catalog Catalog
	cache   *lru.Cache[string, *raster.Image]
}

type EvaluatorOption func(*Evaluator)

// WithCache keeps up to size evaluated image nodes, keyed by graph digest.
// Cached images are shared and must not be modified by callers.
func WithCache(size int) EvaluatorOption {
	return func(e *Evaluator) {
		if size <= 0 {
			return
		}
		e.cache, _ = lru.New[string, *raster.Image](size)
	}
}

func NewEvaluator(catalog Catalog, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{catalog: catalog}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Evaluator) Evaluate(ctx context.Context, img expr.Image) (*raster.Image, error) {
	if img.IsZero() {
		return nil, fmt.Errorf("%w: empty image", ErrUnsupportedOp)
	}
	return e.image(ctx, img.Node())
}

// EvaluateCollection returns the scenes a collection graph resolves to.
func (e *Evaluator) EvaluateCollection(ctx context.Context, c expr.Collection) ([]*Scene, error) {
	q, err := planQuery(c.Node())
	if err != nil {
		return nil, err
	}
	return e.collection(ctx, c.Node(), q)
}

func (e *Evaluator) image(ctx context.Context, n *expr.Node) (*raster.Image, error) {
	if e.cache == nil {
		return e.compute(ctx, n)
	}
	key := n.Digest()
	if img, ok := e.cache.Get(key); ok {
		return img, nil
	}
	img, err := e.compute(ctx, n)
	if err != nil {
		return nil, err
	}
	e.cache.Add(key, img)
	return img, nil
}

func (e *Evaluator) compute(ctx context.Context, n *expr.Node) (*raster.Image, error) {
	switch n.Op {
	case expr.OpMean:
		return e.mean(ctx, n)
	case expr.OpClip:
		in, err := n.Input(0)
		if err != nil {
			return nil, err
		}
		roi, err := n.ROI(expr.ArgRegion)
		if err != nil {
			return nil, err
		}
		img, err := e.image(ctx, in)
		if err != nil {
			return nil, err
		}
		return clip(img, roi), nil
	case expr.OpCat:
		images := make([]*raster.Image, len(n.Inputs))
		g, gctx := errgroup.WithContext(ctx)
		for i, in := range n.Inputs {
			g.Go(func() error {
				img, err := e.image(gctx, in)
				if err != nil {
					return err
				}
				images[i] = img
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return raster.Cat(images...), nil
	default:
		return nil, fmt.Errorf("%w: %s is not an image operation", ErrUnsupportedOp, n.Op)
	}
}

func (e *Evaluator) mean(ctx context.Context, n *expr.Node) (*raster.Image, error) {
	in, err := n.Input(0)
	if err != nil {
		return nil, err
	}
	q, err := planQuery(in)
	if err != nil {
		return nil, err
	}
	scenes, err := e.collection(ctx, in, q)
	if err != nil {
		return nil, err
	}

	if len(scenes) == 0 {
		names, ok := expr.CollectionFromNode(in).BandNames()
		if !ok {
			return nil, fmt.Errorf("%w: mean over an empty collection", ErrIncompleteBand)
		}
		result := &raster.Image{}
		for _, name := range names {
			result.Bands = append(result.Bands, raster.Band{Name: name, Grid: &raster.Grid{}})
		}
		return result, nil
	}

	result := &raster.Image{}
	for _, name := range scenes[0].Image.BandNames() {
		grids := make([]*raster.Grid, 0, len(scenes))
		for _, s := range scenes {
			g, ok := s.Image.Band(name)
			if !ok {
				return nil, fmt.Errorf("%w: %q in scene %s", ErrMissingBand, name, s.ID)
			}
			grids = append(grids, g)
		}
		m, err := raster.Mean(grids...)
		if err != nil {
			return nil, fmt.Errorf("failed to average band %q: %w", name, err)
		}
		result.Bands = append(result.Bands, raster.Band{Name: name, Grid: m})
	}
	return result, nil
}

func clip(img *raster.Image, roi geometry.ROI) *raster.Image {
	result := &raster.Image{Bands: make([]raster.Band, 0, len(img.Bands))}
	inside := func(x, y float64) bool { return roi.Contains(orb.Point{x, y}) }
	for _, b := range img.Bands {
		result.Bands = append(result.Bands, raster.Band{Name: b.Name, Grid: raster.Mask(b.Grid, inside)})
	}
	return result
}

// planQuery walks down a collection chain and folds its filters into the
// catalog query so only relevant scenes are fetched.
func planQuery(n *expr.Node) (Query, error) {
	var q Query
	for cur := n; cur != nil; {
		switch cur.Op {
		case expr.OpLoad:
			dataset, err := cur.String(expr.ArgDataset)
			if err != nil {
				return Query{}, err
			}
			q.Dataset = dataset
			return q, nil
		case expr.OpFilterDate:
			start, err := cur.Time(expr.ArgStart)
			if err != nil {
				return Query{}, err
			}
			end, err := cur.Time(expr.ArgEnd)
			if err != nil {
				return Query{}, err
			}
			if q.Start.IsZero() || start.After(q.Start) {
				q.Start = start
			}
			if q.End.IsZero() || end.Before(q.End) {
				q.End = end
			}
		case expr.OpFilterBounds:
			if q.Region.IsZero() {
				roi, err := cur.ROI(expr.ArgRegion)
				if err != nil {
					return Query{}, err
				}
				q.Region = roi
			}
		}
		next, err := cur.Input(0)
		if err != nil {
			return Query{}, err
		}
		cur = next
	}
	return Query{}, fmt.Errorf("%w: collection has no source", ErrUnsupportedOp)
}

func (e *Evaluator) collection(ctx context.Context, n *expr.Node, q Query) ([]*Scene, error) {
	if n.Op == expr.OpLoad {
		return e.catalog.Scenes(ctx, q)
	}

	in, err := n.Input(0)
	if err != nil {
		return nil, err
	}
	scenes, err := e.collection(ctx, in, q)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case expr.OpFilterDate:
		start, err := n.Time(expr.ArgStart)
		if err != nil {
			return nil, err
		}
		end, err := n.Time(expr.ArgEnd)
		if err != nil {
			return nil, err
		}
		return filterScenes(scenes, Query{Start: start, End: end}), nil
	case expr.OpFilterBounds:
		roi, err := n.ROI(expr.ArgRegion)
		if err != nil {
			return nil, err
		}
		return filterScenes(scenes, Query{Region: roi}), nil
	case expr.OpNormalizedDifference:
		return mapNormalizedDifference(n, scenes)
	case expr.OpSelect:
		band, err := n.String(expr.ArgBand)
		if err != nil {
			return nil, err
		}
		result := make([]*Scene, 0, len(scenes))
		for _, s := range scenes {
			g, ok := s.Image.Band(band)
			if !ok {
				return nil, fmt.Errorf("%w: %q in scene %s", ErrMissingBand, band, s.ID)
			}
			result = append(result, &Scene{ID: s.ID, Date: s.Date, Image: &raster.Image{Bands: []raster.Band{{Name: band, Grid: g}}}})
		}
		return result, nil
	default:
		return nil, fmt.Errorf("%w: %s is not a collection operation", ErrUnsupportedOp, n.Op)
	}
}

func filterScenes(scenes []*Scene, q Query) []*Scene {
	result := make([]*Scene, 0, len(scenes))
	for _, s := range scenes {
		if q.matches(s) {
			result = append(result, s)
		}
	}
	return result
}

func mapNormalizedDifference(n *expr.Node, scenes []*Scene) ([]*Scene, error) {
	bandA, err := n.String(expr.ArgBandA)
	if err != nil {
		return nil, err
	}
	bandB, err := n.String(expr.ArgBandB)
	if err != nil {
		return nil, err
	}
	name, err := n.String(expr.ArgName)
	if err != nil {
		return nil, err
	}

	result := make([]*Scene, 0, len(scenes))
	for _, s := range scenes {
		a, ok := s.Image.Band(bandA)
		if !ok {
			return nil, fmt.Errorf("%w: %q in scene %s", ErrMissingBand, bandA, s.ID)
		}
		b, ok := s.Image.Band(bandB)
		if !ok {
			return nil, fmt.Errorf("%w: %q in scene %s", ErrMissingBand, bandB, s.ID)
		}
		nd, err := raster.NormalizedDifference(a, b)
		if err != nil {
			return nil, fmt.Errorf("failed to compute %s for scene %s: %w", name, s.ID, err)
		}
		result = append(result, s.withBand(name, nd))
	}
	return result, nil
}

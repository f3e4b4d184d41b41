package geometry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

var ErrInvalidGeometry = errors.New("invalid geometry")

// ROI is the region of interest: one or more polygon or line features in
// WGS84 longitude/latitude.
type ROI struct {
	fc *geojson.FeatureCollection
}

func NewROI(features ...*geojson.Feature) ROI {
	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		fc.Append(f)
	}
	return ROI{fc: fc}
}

// FromGeometry wraps a single geometry as a one-feature ROI.
func FromGeometry(g orb.Geometry) ROI {
	return NewROI(geojson.NewFeature(g))
}

// ParseROI accepts a GeoJSON FeatureCollection, Feature or bare geometry.
func ParseROI(data []byte) (ROI, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return ROI{}, fmt.Errorf("failed to parse GeoJSON: %w", err)
	}

	switch probe.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return ROI{}, fmt.Errorf("failed to parse feature collection: %w", err)
		}
		return ROI{fc: fc}, nil
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return ROI{}, fmt.Errorf("failed to parse feature: %w", err)
		}
		return NewROI(f), nil
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return ROI{}, fmt.Errorf("failed to parse geometry: %w", err)
		}
		return FromGeometry(g.Geometry()), nil
	}
}

func LoadROI(path string) (ROI, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ROI{}, fmt.Errorf("failed to read ROI file: %w", err)
	}
	return ParseROI(data)
}

func (r ROI) FeatureCollection() *geojson.FeatureCollection {
	return r.fc
}

func (r ROI) Features() []*geojson.Feature {
	if r.fc == nil {
		return nil
	}
	return r.fc.Features
}

func (r ROI) IsZero() bool {
	return len(r.Features()) == 0
}

// Validate checks the ROI is non-empty and every geometry is well formed.
func (r ROI) Validate() error {
	features := r.Features()
	if len(features) == 0 {
		return fmt.Errorf("%w: region has no features", ErrInvalidGeometry)
	}
	for i, f := range features {
		if f == nil || f.Geometry == nil {
			return fmt.Errorf("%w: feature %d has no geometry", ErrInvalidGeometry, i)
		}
		if err := validateGeometry(f.Geometry); err != nil {
			return fmt.Errorf("feature %d: %w", i, err)
		}
	}
	return nil
}

func validateGeometry(g orb.Geometry) error {
	switch geom := g.(type) {
	case orb.Polygon:
		return validatePolygon(geom)
	case orb.MultiPolygon:
		if len(geom) == 0 {
			return fmt.Errorf("%w: empty multipolygon", ErrInvalidGeometry)
		}
		for _, p := range geom {
			if err := validatePolygon(p); err != nil {
				return err
			}
		}
		return nil
	case orb.LineString:
		return validateLine(geom)
	case orb.MultiLineString:
		if len(geom) == 0 {
			return fmt.Errorf("%w: empty multilinestring", ErrInvalidGeometry)
		}
		for _, l := range geom {
			if err := validateLine(l); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported geometry type %s", ErrInvalidGeometry, g.GeoJSONType())
	}
}

func validatePolygon(p orb.Polygon) error {
	if len(p) == 0 {
		return fmt.Errorf("%w: empty polygon", ErrInvalidGeometry)
	}
	for i, ring := range p {
		if len(ring) < 4 {
			return fmt.Errorf("%w: ring %d has %d points, need at least 4", ErrInvalidGeometry, i, len(ring))
		}
		if !ring.Closed() {
			return fmt.Errorf("%w: ring %d is not closed", ErrInvalidGeometry, i)
		}
		if err := validatePoints(ring); err != nil {
			return err
		}
	}
	return nil
}

func validateLine(l orb.LineString) error {
	if len(l) < 2 {
		return fmt.Errorf("%w: line has %d points, need at least 2", ErrInvalidGeometry, len(l))
	}
	return validatePoints(l)
}

func validatePoints[P ~[]orb.Point](points P) error {
	for _, p := range points {
		lon, lat := p.Lon(), p.Lat()
		if math.IsNaN(lon) || math.IsNaN(lat) || lon < -180 || lon > 180 || lat < -90 || lat > 90 {
			return fmt.Errorf("%w: coordinate %v outside WGS84 range", ErrInvalidGeometry, p)
		}
	}
	return nil
}

// Bound is the bounding box of all features.
func (r ROI) Bound() orb.Bound {
	var bound orb.Bound
	for i, f := range r.Features() {
		if i == 0 {
			bound = f.Geometry.Bound()
			continue
		}
		bound = bound.Union(f.Geometry.Bound())
	}
	return bound
}

// Area is the geodesic area in square metres. Lines contribute nothing.
func (r ROI) Area() float64 {
	area := 0.0
	for _, f := range r.Features() {
		area += geo.Area(f.Geometry)
	}
	return area
}

// FeatureArea is the geodesic area of the i-th feature in square metres.
func (r ROI) FeatureArea(i int) float64 {
	return geo.Area(r.Features()[i].Geometry)
}

// Contains reports whether the point falls inside any polygonal feature.
func (r ROI) Contains(p orb.Point) bool {
	for _, f := range r.Features() {
		switch geom := f.Geometry.(type) {
		case orb.Polygon:
			if planar.PolygonContains(geom, p) {
				return true
			}
		case orb.MultiPolygon:
			if planar.MultiPolygonContains(geom, p) {
				return true
			}
		}
	}
	return false
}

// Centroid of the ROI bounding box, used to pick a projected CRS.
func (r ROI) Centroid() orb.Point {
	return r.Bound().Center()
}

func (r ROI) MarshalJSON() ([]byte, error) {
	if r.fc == nil {
		return geojson.NewFeatureCollection().MarshalJSON()
	}
	return r.fc.MarshalJSON()
}

func (r *ROI) UnmarshalJSON(data []byte) error {
	parsed, err := ParseROI(data)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

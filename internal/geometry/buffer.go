package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var ErrInvalidBuffer = errors.New("invalid buffer distance")

const bufferSegments = 8

// Buffer selects whether the ROI is expanded before use. The zero value
// means no buffering.
type Buffer struct {
	distance float64
}

func NoBuffer() Buffer {
	return Buffer{}
}

// BufferBy expands every feature by metres. The distance must be a positive
// finite number.
func BufferBy(metres float64) (Buffer, error) {
	if math.IsNaN(metres) || math.IsInf(metres, 0) || metres <= 0 {
		return Buffer{}, fmt.Errorf("%w: %v", ErrInvalidBuffer, metres)
	}
	return Buffer{distance: metres}, nil
}

func (b Buffer) Enabled() bool {
	return b.distance > 0
}

func (b Buffer) Distance() float64 {
	return b.distance
}

func (b Buffer) String() string {
	if !b.Enabled() {
		return "none"
	}
	return fmt.Sprintf("%gm", b.distance)
}

// Apply returns the ROI unchanged for NoBuffer, or its buffered expansion.
func (b Buffer) Apply(roi ROI) (ROI, error) {
	if !b.Enabled() {
		return roi, nil
	}
	return roi.Buffered(b.distance)
}

// Buffered expands each feature geometry by distance metres. Properties and
// ids are carried over.
func (r ROI) Buffered(distance float64) (ROI, error) {
	if err := r.Validate(); err != nil {
		return ROI{}, err
	}
	wgs84, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return ROI{}, fmt.Errorf("failed to create WGS84 spatial reference: %w", err)
	}
	defer wgs84.Close()

	out := geojson.NewFeatureCollection()
	for i, f := range r.Features() {
		buffered, err := bufferGeometry(f.Geometry, distance, wgs84)
		if err != nil {
			return ROI{}, fmt.Errorf("failed to buffer feature %d: %w", i, err)
		}
		feature := geojson.NewFeature(buffered)
		feature.ID = f.ID
		feature.Properties = f.Properties.Clone()
		out.Append(feature)
	}
	return ROI{fc: out}, nil
}

func bufferGeometry(g orb.Geometry, distance float64, wgs84 *godal.SpatialRef) (orb.Geometry, error) {
	raw, err := geojson.NewGeometry(g).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode geometry: %w", err)
	}

	utm, err := godal.NewSpatialRefFromEPSG(UTMZoneEPSG(g.Bound().Center()))
	if err != nil {
		return nil, fmt.Errorf("failed to create UTM spatial reference: %w", err)
	}
	defer utm.Close()

	geom, err := godal.NewGeometryFromGeoJSON(string(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to load geometry into GDAL: %w", err)
	}
	defer geom.Close()
	geom.SetSpatialRef(wgs84)

	if err := geom.Reproject(utm); err != nil {
		return nil, fmt.Errorf("failed to project geometry: %w", err)
	}
	buffered, err := geom.Buffer(distance, bufferSegments)
	if err != nil {
		return nil, fmt.Errorf("failed to buffer geometry: %w", err)
	}
	defer buffered.Close()
	buffered.SetSpatialRef(utm)

	if err := buffered.Reproject(wgs84); err != nil {
		return nil, fmt.Errorf("failed to unproject geometry: %w", err)
	}
	js, err := buffered.GeoJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to export geometry to GeoJSON: %w", err)
	}
	parsed, err := geojson.UnmarshalGeometry([]byte(js))
	if err != nil {
		return nil, fmt.Errorf("failed to parse buffered geometry: %w", err)
	}
	return parsed.Geometry(), nil
}

// UTMZoneEPSG returns the EPSG code of the WGS84 UTM zone containing p.
func UTMZoneEPSG(p orb.Point) int {
	zone := int(math.Floor((p.Lon()+180)/6)) + 1
	if zone > 60 {
		zone = 60
	}
	if zone < 1 {
		zone = 1
	}
	if p.Lat() < 0 {
		return 32700 + zone
	}
	return 32600 + zone
}

// Package geo wraps the map projections used to index the dataset grid and
// to measure distances between grid cells and query points.
package geo

import (
	"fmt"
	"math"

	"github.com/ctessum/geom/proj"
)

const (
	// NativeGridDef is the Lambert conformal conic projection of the WTK grid,
	// defined on a 6370997 m sphere.
	NativeGridDef = "+proj=lcc +lat_1=30 +lat_2=60 +lat_0=38.47240422490422 +lon_0=-96.0 " +
		"+x_0=0 +y_0=0 +a=6370997 +b=6370997 +units=m +no_defs"
	nativeGeographicDef = "+proj=longlat +a=6370997 +b=6370997 +no_defs"

	// EqualAreaDef is the USGS contiguous-US Albers equal-area conic projection.
	EqualAreaDef = "+proj=aea +lat_1=29.5 +lat_2=45.5 +lat_0=23 +lon_0=-96 " +
		"+x_0=0 +y_0=0 +ellps=WGS84 +units=m +no_defs"
	wgs84GeographicDef = "+proj=longlat +ellps=WGS84 +no_defs"

	// NativeGridSpacing is the WTK grid resolution in meters.
	NativeGridSpacing = 2000.0
)

// Projection converts geographic coordinates in degrees to planar meters.
type Projection struct {
	name    string
	forward proj.Transformer
}

// NewProjection builds a projection from geographicDef to projectedDef.
func NewProjection(name, geographicDef, projectedDef string) (*Projection, error) {
	src, err := proj.Parse(geographicDef)
	if err != nil {
		return nil, fmt.Errorf("geo: parse %s geographic definition: %w", name, err)
	}
	dst, err := proj.Parse(projectedDef)
	if err != nil {
		return nil, fmt.Errorf("geo: parse %s projection: %w", name, err)
	}
	t, err := src.NewTransform(dst)
	if err != nil {
		return nil, fmt.Errorf("geo: build %s transform: %w", name, err)
	}
	return &Projection{name: name, forward: t}, nil
}

// EqualArea returns the Albers equal-area projection used for distances.
func EqualArea() (*Projection, error) {
	return NewProjection("albers", wgs84GeographicDef, EqualAreaDef)
}

// NativeGrid returns the dataset's Lambert conformal projection.
func NativeGrid() (*Projection, error) {
	return NewProjection("lcc", nativeGeographicDef, NativeGridDef)
}

// Name returns the projection's short name.
func (p *Projection) Name() string {
	return p.name
}

// Forward projects (lon, lat) to (x, y) meters.
func (p *Projection) Forward(lon, lat float64) (float64, float64, error) {
	x, y, err := p.forward(lon, lat)
	if err != nil {
		return 0, 0, fmt.Errorf("geo: %s projection of (%f, %f): %w", p.name, lat, lon, err)
	}
	if math.IsNaN(x) || math.IsNaN(y) {
		return 0, 0, fmt.Errorf("geo: %s projection of (%f, %f) is undefined", p.name, lat, lon)
	}
	return x, y, nil
}

// Grid maps geographic positions onto a regular projected grid whose cell
// (0, 0) is centered on the origin.
type Grid struct {
	proj    *Projection
	originX float64
	originY float64
	spacing float64
}

// NewGrid anchors a grid with the given spacing at originLat/originLon.
func NewGrid(p *Projection, originLat, originLon, spacing float64) (*Grid, error) {
	if spacing <= 0 {
		return nil, fmt.Errorf("geo: grid spacing must be positive, got %f", spacing)
	}
	ox, oy, err := p.Forward(originLon, originLat)
	if err != nil {
		return nil, err
	}
	return &Grid{proj: p, originX: ox, originY: oy, spacing: spacing}, nil
}

// Index returns the nearest grid index of (lat, lon). The first axis follows
// northing and the second easting, matching the dataset's array order.
func (g *Grid) Index(lat, lon float64) (int, int, error) {
	x, y, err := g.proj.Forward(lon, lat)
	if err != nil {
		return 0, 0, err
	}
	col := int(math.Round((x - g.originX) / g.spacing))
	row := int(math.Round((y - g.originY) / g.spacing))
	return row, col, nil
}

// Package waypoints samples ground positions around an enclosing circle.
package waypoints

import (
	"errors"
	"fmt"

	"github.com/sourcegraph/conc/iter"

	"github.com/fireflyresponse/perimeter/internal/lib/geo"
	"github.com/fireflyresponse/perimeter/internal/lib/mec"
)

var (
	ErrInvalidCount = errors.New("waypoint count must be at least 1")
	ErrEmptyCircle  = errors.New("circle encloses no points")
)

// Waypoint is one position on the boundary, in dispatch order.
type Waypoint struct {
	Index          int       `json:"index"`
	Bearing        float64   `json:"bearing"`
	Point          geo.Point `json:"point"`
	ReverseAzimuth float64   `json:"reverse_azimuth"`
}

// Generator projects N evenly spaced bearings from a circle center.
type Generator struct {
	Ellipsoid geo.Ellipsoid
	Converter geo.RadiusConverter

	// Parallel fans the geodesic calls out over goroutines. Output is identical.
	Parallel bool
}

// NewGenerator creates a generator on the given ellipsoid. A nil converter
// selects the tangent-plane converter with the covering policy.
func NewGenerator(ellipsoid geo.Ellipsoid, converter geo.RadiusConverter) *Generator {
	if converter == nil {
		converter = geo.NewTangentPlaneConverter(ellipsoid, geo.ScaleMaximum)
	}
	return &Generator{Ellipsoid: ellipsoid, Converter: converter}
}

// Bearings returns n bearings in degrees, starting at 0 and stepping 360/n.
func Bearings(n int) []float64 {
	if n < 1 {
		return nil
	}
	bearings := make([]float64, n)
	step := 360 / float64(n)
	for i := range bearings {
		bearings[i] = float64(i) * step
	}
	return bearings
}

// Center returns the circle center as a geographic point. The circle is
// taken to be in (longitude, latitude) degrees.
func Center(circle mec.Circle) geo.Point {
	return geo.Point{Latitude: circle.Center.Y, Longitude: circle.Center.X}
}

// RadiusMeters converts the circle radius from degrees to meters with the
// generator's converter.
func (g *Generator) RadiusMeters(circle mec.Circle) (float64, error) {
	if circle.Empty() {
		return 0, ErrEmptyCircle
	}
	meters, err := g.Converter.ToMeters(Center(circle), circle.Radius())
	if err != nil {
		return 0, fmt.Errorf("failed to convert radius: %w", err)
	}
	return meters, nil
}

// Generate returns n waypoints on the circle, ordered by ascending bearing.
func (g *Generator) Generate(circle mec.Circle, n int) ([]Waypoint, error) {
	if n < 1 {
		return nil, ErrInvalidCount
	}
	meters, err := g.RadiusMeters(circle)
	if err != nil {
		return nil, err
	}
	return g.GenerateMeters(Center(circle), meters, n)
}

// GenerateMeters is Generate for a center and radius already in meters.
func (g *Generator) GenerateMeters(center geo.Point, radiusMeters float64, n int) ([]Waypoint, error) {
	if n < 1 {
		return nil, ErrInvalidCount
	}

	bearings := Bearings(n)
	project := func(bearing *float64) (Waypoint, error) {
		result, err := g.Ellipsoid.Direct(center, *bearing, radiusMeters)
		if err != nil {
			return Waypoint{}, fmt.Errorf("bearing %.3f: %w", *bearing, err)
		}
		return Waypoint{
			Bearing:        *bearing,
			Point:          result.Destination,
			ReverseAzimuth: result.ReverseAzimuth,
		}, nil
	}

	var (
		out []Waypoint
		err error
	)
	if g.Parallel {
		out, err = iter.MapErr(bearings, project)
		if err != nil {
			return nil, err
		}
	} else {
		out = make([]Waypoint, 0, n)
		for i := range bearings {
			wp, err := project(&bearings[i])
			if err != nil {
				return nil, err
			}
			out = append(out, wp)
		}
	}

	for i := range out {
		out[i].Index = i
	}
	return out, nil
}

// Path returns the waypoint positions in order.
func Path(waypoints []Waypoint) []geo.Point {
	path := make([]geo.Point, len(waypoints))
	for i, wp := range waypoints {
		path[i] = wp.Point
	}
	return path
}

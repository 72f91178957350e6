// Package perimeter turns a set of alert locations into a containment
// circle and the waypoints a responder drives along it.
package perimeter

import (
	"errors"
	"fmt"
	"time"

	"github.com/fireflyresponse/perimeter/internal/lib/geo"
	"github.com/fireflyresponse/perimeter/internal/lib/mec"
	"github.com/fireflyresponse/perimeter/internal/lib/waypoints"
)

const (
	DefaultWaypointCount   = 10
	DefaultIterationFactor = 10
)

var ErrNoPoints = errors.New("no points to estimate from")

// Estimate is the containment boundary for one set of alerts.
type Estimate struct {
	PointCount    int                  `json:"point_count"`
	Center        geo.Point            `json:"center"`
	RadiusDegrees float64              `json:"radius_degrees"`
	RadiusMeters  float64              `json:"radius_meters"`
	Support       []geo.Point          `json:"support"`
	Iterations    int                  `json:"iterations"`
	Approximate   bool                 `json:"approximate"`
	Waypoints     []waypoints.Waypoint `json:"waypoints"`
	ComputedAt    time.Time            `json:"computed_at"`
}

// Circle returns the boundary in (longitude, latitude) degree space.
func (e Estimate) Circle() mec.Circle {
	return mec.Circle{
		Center:   mec.Point{X: e.Center.Longitude, Y: e.Center.Latitude},
		SqRadius: e.RadiusDegrees * e.RadiusDegrees,
	}
}

// Path returns the waypoint positions in dispatch order.
func (e Estimate) Path() []geo.Point {
	return waypoints.Path(e.Waypoints)
}

// Estimator runs the enclosing-circle and waypoint steps.
type Estimator struct {
	Generator *waypoints.Generator

	WaypointCount int

	// The MEC cap is MaxIterations when positive, otherwise the point count
	// times IterationFactor.
	IterationFactor int
	MaxIterations   int

	Now func() time.Time
}

// NewEstimator creates an estimator with default counts
func NewEstimator(generator *waypoints.Generator) *Estimator {
	return &Estimator{
		Generator:       generator,
		WaypointCount:   DefaultWaypointCount,
		IterationFactor: DefaultIterationFactor,
		Now:             time.Now,
	}
}

// IterationCap returns the MEC iteration cap for n points.
func (e *Estimator) IterationCap(n int) int {
	if e.MaxIterations > 0 {
		return e.MaxIterations
	}
	factor := e.IterationFactor
	if factor <= 0 {
		factor = DefaultIterationFactor
	}
	return mec.IterationBudget(n, factor)
}

// Estimate computes the boundary and waypoints for points. Points should
// already be deduplicated. A capped MEC run is reported through
// Estimate.Approximate; geodesic failures are returned as errors.
func (e *Estimator) Estimate(points []geo.Point) (Estimate, error) {
	if len(points) == 0 {
		return Estimate{}, ErrNoPoints
	}

	planar := make([]mec.Point, len(points))
	for i, p := range points {
		if !geo.IsValidCoordinate(p) {
			return Estimate{}, fmt.Errorf("point %d (%v, %v): %w", i, p.Latitude, p.Longitude, geo.ErrInvalidCoordinates)
		}
		planar[i] = mec.Point{X: p.Longitude, Y: p.Latitude}
	}

	result := mec.Enclose(planar, e.IterationCap(len(planar)))

	meters, err := e.Generator.RadiusMeters(result.Circle)
	if err != nil {
		return Estimate{}, err
	}

	count := e.WaypointCount
	if count <= 0 {
		count = DefaultWaypointCount
	}
	center := waypoints.Center(result.Circle)
	wps, err := e.Generator.GenerateMeters(center, meters, count)
	if err != nil {
		return Estimate{}, fmt.Errorf("failed to generate waypoints: %w", err)
	}

	support := make([]geo.Point, len(result.Support))
	for i, p := range result.Support {
		support[i] = geo.Point{Latitude: p.Y, Longitude: p.X}
	}

	now := time.Now
	if e.Now != nil {
		now = e.Now
	}

	return Estimate{
		PointCount:    len(points),
		Center:        center,
		RadiusDegrees: result.Circle.Radius(),
		RadiusMeters:  meters,
		Support:       support,
		Iterations:    result.Iterations,
		Approximate:   result.Approximate,
		Waypoints:     wps,
		ComputedAt:    now().UTC(),
	}, nil
}

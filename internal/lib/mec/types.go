package mec

import "math"

// Point is a position in the plane. For geographic input X is longitude and
// Y is latitude, both in degrees.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) Add(q Point) Point { return Point{p.X + q.X, p.Y + q.Y} }
func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }
func (p Point) Scale(k float64) Point { return Point{p.X * k, p.Y * k} }
func (p Point) Dot(q Point) float64 { return p.X*q.X + p.Y*q.Y }
func (p Point) SqNorm() float64 { return p.Dot(p) }
func (p Point) SqDist(q Point) float64 { return p.Sub(q).SqNorm() }
func (p Point) IsFinite() bool { return isFinite(p.X) && isFinite(p.Y) }
func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Circle is a closed disc given by its center and squared radius. The center
// is NaN for the circle enclosing no points.
type Circle struct {
	Center   Point   `json:"center"`
	SqRadius float64 `json:"sq_radius"`
}

// Radius returns the radius in the input's units.
func (c Circle) Radius() float64 {
	return math.Sqrt(c.SqRadius)
}

// Empty reports whether c encloses nothing.
func (c Circle) Empty() bool {
	return math.IsNaN(c.Center.X) || math.IsNaN(c.Center.Y)
}

// Excess is the squared distance from the center to p minus the squared
// radius. It is positive exactly when p lies outside.
func (c Circle) Excess(p Point) float64 {
	return p.SqDist(c.Center) - c.SqRadius
}

// Tolerance is the inside-test slack for c.
func (c Circle) Tolerance() float64 {
	return Tolerance(c.SqRadius, math.Max(math.Abs(c.Center.X), math.Abs(c.Center.Y)))
}

// Contains reports whether p lies inside c up to its Tolerance.
func (c Circle) Contains(p Point) bool {
	return !c.Empty() && c.Excess(p) <= c.Tolerance()
}

// Result is the outcome of Enclose.
type Result struct {
	Circle Circle `json:"circle"`

	// Points on the boundary that determine the circle, at most three
	Support []Point `json:"support"`

	// Outer pivot steps taken
	Iterations int `json:"iterations"`

	// Set when the iteration cap ran out before every point was inside; the
	// circle is the best found and may not be minimal or fully covering.
	Approximate bool `json:"approximate"`
}

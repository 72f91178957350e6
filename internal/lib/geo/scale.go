package geo

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	ErrInvalidRadius = errors.New("invalid radius: must be finite and non-negative")
	ErrInvalidScale  = errors.New("invalid scale: meters per degree must be positive")
	ErrUnknownScale  = errors.New("unknown radius conversion")
)

// MetersPerDegree returns the length in meters of one degree of latitude
// (north) and one degree of longitude (east) at the given latitude, from the
// meridional and prime-vertical radii of curvature of the ellipsoid.
func MetersPerDegree(e Ellipsoid, latitude float64) (north, east float64) {
	e2 := e.EccentricitySquared()
	sinPhi, cosPhi := math.Sincos(latitude * radians)
	w := 1 - e2*sinPhi*sinPhi

	meridional := e.SemiMajorAxis * (1 - e2) / (w * math.Sqrt(w))
	primeVertical := e.SemiMajorAxis / math.Sqrt(w)

	return meridional * radians, primeVertical * math.Abs(cosPhi) * radians
}

// RadiusConverter turns a circle radius measured in coordinate degrees into
// meters on the ground around the circle's center.
type RadiusConverter interface {
	ToMeters(center Point, radiusDegrees float64) (float64, error)
}

// ScalePolicy selects which local scale a TangentPlaneConverter applies. A
// circle in (longitude, latitude) space is an ellipse on the ground, so a
// single metric radius has to pick an axis.
type ScalePolicy int

const (
	// ScaleMaximum uses the longer axis; the metric circle covers the degree circle.
	ScaleMaximum ScalePolicy = iota
	// ScaleMinimum uses the shorter axis; the metric circle fits inside.
	ScaleMinimum
	// ScaleMeridional uses the north-south scale only.
	ScaleMeridional
	// ScaleMean uses the geometric mean of both axes (equal area).
	ScaleMean
)

func (p ScalePolicy) String() string {
	switch p {
	case ScaleMaximum:
		return "max"
	case ScaleMinimum:
		return "min"
	case ScaleMeridional:
		return "meridional"
	case ScaleMean:
		return "mean"
	default:
		return fmt.Sprintf("ScalePolicy(%d)", int(p))
	}
}

// ParseScalePolicy parses the names produced by ScalePolicy.String.
func ParseScalePolicy(name string) (ScalePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "max":
		return ScaleMaximum, nil
	case "min":
		return ScaleMinimum, nil
	case "meridional":
		return ScaleMeridional, nil
	case "mean":
		return ScaleMean, nil
	}
	return 0, fmt.Errorf("%w: policy %q", ErrUnknownScale, name)
}

// TangentPlaneConverter scales degrees to meters with the ellipsoid's local
// tangent plane at the circle center.
type TangentPlaneConverter struct {
	Ellipsoid Ellipsoid
	Policy    ScalePolicy
}

// NewTangentPlaneConverter creates a converter on the given ellipsoid
func NewTangentPlaneConverter(e Ellipsoid, policy ScalePolicy) *TangentPlaneConverter {
	return &TangentPlaneConverter{Ellipsoid: e, Policy: policy}
}

func (c *TangentPlaneConverter) ToMeters(center Point, radiusDegrees float64) (float64, error) {
	if !IsValidCoordinate(center) {
		return 0, ErrInvalidCoordinates
	}
	if err := validateRadius(radiusDegrees); err != nil {
		return 0, err
	}

	north, east := MetersPerDegree(c.Ellipsoid, center.Latitude)

	var scale float64
	switch c.Policy {
	case ScaleMaximum:
		scale = math.Max(north, east)
	case ScaleMinimum:
		scale = math.Min(north, east)
	case ScaleMeridional:
		scale = north
	case ScaleMean:
		scale = math.Sqrt(north * east)
	default:
		return 0, fmt.Errorf("%w: policy %s", ErrUnknownScale, c.Policy)
	}

	return radiusDegrees * scale, nil
}

// FixedScaleConverter applies one constant scale everywhere.
type FixedScaleConverter struct {
	MetersPerDegree float64
}

func (c FixedScaleConverter) ToMeters(center Point, radiusDegrees float64) (float64, error) {
	if !(c.MetersPerDegree > 0) || math.IsInf(c.MetersPerDegree, 0) {
		return 0, ErrInvalidScale
	}
	if err := validateRadius(radiusDegrees); err != nil {
		return 0, err
	}
	return radiusDegrees * c.MetersPerDegree, nil
}

// NewRadiusConverter builds a converter from configuration values. Mode is
// "tangent" (policy applies) or "fixed" (metersPerDegree applies).
func NewRadiusConverter(e Ellipsoid, mode, policy string, metersPerDegree float64) (RadiusConverter, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "tangent":
		p, err := ParseScalePolicy(policy)
		if err != nil {
			return nil, err
		}
		return NewTangentPlaneConverter(e, p), nil
	case "fixed":
		if !(metersPerDegree > 0) {
			return nil, ErrInvalidScale
		}
		return FixedScaleConverter{MetersPerDegree: metersPerDegree}, nil
	}
	return nil, fmt.Errorf("%w: mode %q", ErrUnknownScale, mode)
}

func validateRadius(r float64) error {
	if math.IsNaN(r) || math.IsInf(r, 0) || r < 0 {
		return ErrInvalidRadius
	}
	return nil
}

package geo

import (
	"errors"
	"fmt"
	"math"
)

const (
	radians = math.Pi / 180
	degrees = 180 / math.Pi

	// DefaultMaxIterations caps the arc-length iteration of Direct
	DefaultMaxIterations = 200

	// Relative change in the arc length at which the iteration stops
	convergenceThreshold = 1e-9

	// Arc lengths at or below this are treated as zero distance
	sigmaEpsilon = 1e-9
)

var (
	// ErrGeodesicNonConvergence matches any NonConvergenceError via errors.Is
	ErrGeodesicNonConvergence = errors.New("geodesic direct solution did not converge")

	ErrInvalidDistance = errors.New("invalid distance: must be finite and non-negative")
	ErrInvalidBearing  = errors.New("invalid bearing: must be finite")
)

// NonConvergenceError is returned by Direct when the arc-length iteration
// exhausts its cap. No destination is produced in that case.
type NonConvergenceError struct {
	Iterations int
	Delta      float64
}

func (e *NonConvergenceError) Error() string {
	return fmt.Sprintf("geodesic direct solution did not converge after %d iterations (last relative change %g)",
		e.Iterations, e.Delta)
}

// Is lets errors.Is(err, ErrGeodesicNonConvergence) match.
func (e *NonConvergenceError) Is(target error) bool {
	return target == ErrGeodesicNonConvergence
}

// Ellipsoid is a reference ellipsoid of revolution.
type Ellipsoid struct {
	// Equatorial radius in meters
	SemiMajorAxis float64 `json:"semi_major_axis"`
	Flattening    float64 `json:"flattening"`

	// Cap on the Direct arc-length iteration; zero selects DefaultMaxIterations
	MaxIterations int `json:"max_iterations"`
}

// WGS84 is the reference ellipsoid used by GPS receivers.
var WGS84 = Ellipsoid{
	SemiMajorAxis: 6378137.0,
	Flattening:    1 / 298.257223563,
	MaxIterations: DefaultMaxIterations,
}

// SemiMinorAxis returns the polar radius in meters.
func (e Ellipsoid) SemiMinorAxis() float64 {
	return e.SemiMajorAxis * (1 - e.Flattening)
}

// EccentricitySquared returns the first eccentricity squared.
func (e Ellipsoid) EccentricitySquared() float64 {
	return e.Flattening * (2 - e.Flattening)
}

func (e Ellipsoid) iterationCap() int {
	if e.MaxIterations <= 0 {
		return DefaultMaxIterations
	}
	return e.MaxIterations
}

// Direct solves the direct geodesic problem using Vincenty's formulae: given
// a start point, an initial bearing in degrees and a distance in meters, it
// returns the destination and the azimuth from the destination back to start.
func (e Ellipsoid) Direct(start Point, bearing, distance float64) (DirectResult, error) {
	if !IsValidCoordinate(start) {
		return DirectResult{}, ErrInvalidCoordinates
	}
	if math.IsNaN(bearing) || math.IsInf(bearing, 0) {
		return DirectResult{}, ErrInvalidBearing
	}
	if math.IsNaN(distance) || math.IsInf(distance, 0) || distance < 0 {
		return DirectResult{}, ErrInvalidDistance
	}

	a := e.SemiMajorAxis
	f := e.Flattening
	b := e.SemiMinorAxis()

	alpha1 := NormalizeBearing(bearing) * radians
	sinAlpha1, cosAlpha1 := math.Sincos(alpha1)

	// Reduced latitude of the start point
	u1 := math.Atan((1 - f) * math.Tan(start.Latitude*radians))
	sinU1, cosU1 := math.Sincos(u1)

	sigma1 := math.Atan2(sinU1, cosU1*cosAlpha1)
	sinAlpha := cosU1 * sinAlpha1
	cosSqAlpha := 1 - sinAlpha*sinAlpha

	uSq := cosSqAlpha * (a*a - b*b) / (b * b)
	bigA := 1 + uSq/16384*(4096+uSq*(-768+uSq*(320-175*uSq)))
	bigB := uSq / 1024 * (256 + uSq*(-128+uSq*(74-47*uSq)))

	first := distance / (b * bigA)
	sigma := first
	iterations := 0

	if sigma > sigmaEpsilon {
		maxIterations := e.iterationCap()
		delta := math.Inf(1)
		for {
			if iterations >= maxIterations {
				return DirectResult{}, &NonConvergenceError{Iterations: iterations, Delta: delta}
			}

			cos2SigmaM := math.Cos(2*sigma1 + sigma)
			sinSigma, cosSigma := math.Sincos(sigma)
			deltaSigma := vincentyDeltaSigma(bigB, sinSigma, cosSigma, cos2SigmaM)

			next := first + deltaSigma
			iterations++
			delta = math.Abs((next - sigma) / next)
			sigma = next
			if delta < convergenceThreshold {
				break
			}
		}
	}

	var cos2SigmaM float64
	if sigma <= sigmaEpsilon {
		cos2SigmaM = math.Cos(2 * sigma1)
	} else {
		cos2SigmaM = math.Cos(2*sigma1 + sigma)
	}
	sinSigma, cosSigma := math.Sincos(sigma)

	tmp := sinU1*sinSigma - cosU1*cosSigma*cosAlpha1
	lat2 := math.Atan2(sinU1*cosSigma+cosU1*sinSigma*cosAlpha1,
		(1-f)*math.Sqrt(sinAlpha*sinAlpha+tmp*tmp))

	lambda := math.Atan2(sinSigma*sinAlpha1, cosU1*cosSigma-sinU1*sinSigma*cosAlpha1)
	c := f / 16 * cosSqAlpha * (4 + f*(4-3*cosSqAlpha))
	l := lambda - (1-c)*f*sinAlpha*
		(sigma+c*sinSigma*(cos2SigmaM+c*cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)))

	// Forward azimuth at the destination, turned around
	alpha2 := math.Atan2(sinAlpha, -tmp)

	return DirectResult{
		Destination: Point{
			Latitude:  lat2 * degrees,
			Longitude: NormalizeLongitude(start.Longitude + l*degrees),
		},
		ReverseAzimuth: NormalizeBearing(alpha2*degrees + 180),
		Iterations:     iterations,
	}, nil
}

func vincentyDeltaSigma(bigB, sinSigma, cosSigma, cos2SigmaM float64) float64 {
	c2 := cos2SigmaM * cos2SigmaM
	return bigB * sinSigma * (cos2SigmaM + bigB/4*(cosSigma*(-1+2*c2)-
		bigB/6*cos2SigmaM*(-3+4*sinSigma*sinSigma)*(-3+4*c2)))
}

// NormalizeBearing maps an angle in degrees into [0, 360).
func NormalizeBearing(deg float64) float64 {
	m := math.Mod(deg, 360)
	if m < 0 {
		m += 360
	}
	if m >= 360 {
		m = 0
	}
	return m
}

// NormalizeLongitude maps a longitude in degrees into [-180, 180).
func NormalizeLongitude(deg float64) float64 {
	m := math.Mod(deg+180, 360)
	if m < 0 {
		m += 360
	}
	if m >= 360 {
		m = 0
	}
	return m - 180
}

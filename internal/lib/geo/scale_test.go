package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetersPerDegree(t *testing.T) {
	tests := []struct {
		latitude float64
		north    float64
		east     float64
	}{
		{0, 110574.276, 111319.491},
		{45, 111131.777, 78846.835},
		{60, 111412.287, 55800.002},
		{-45, 111131.777, 78846.835},
	}

	for _, tt := range tests {
		north, east := MetersPerDegree(WGS84, tt.latitude)
		assert.InDelta(t, tt.north, north, 0.01, "north at %v", tt.latitude)
		assert.InDelta(t, tt.east, east, 0.01, "east at %v", tt.latitude)
	}

	_, east := MetersPerDegree(WGS84, 90)
	assert.InDelta(t, 0, east, 1e-6)
}

func TestTangentPlaneConverter_Policies(t *testing.T) {
	center := Point{Latitude: 45, Longitude: -120}
	north, east := MetersPerDegree(WGS84, 45)

	tests := []struct {
		policy ScalePolicy
		want   float64
	}{
		{ScaleMaximum, 0.01 * north},
		{ScaleMinimum, 0.01 * east},
		{ScaleMeridional, 0.01 * north},
		{ScaleMean, 0.01 * math.Sqrt(north*east)},
	}

	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			meters, err := NewTangentPlaneConverter(WGS84, tt.policy).ToMeters(center, 0.01)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, meters, 1e-6)
		})
	}
}

func TestTangentPlaneConverter_CoversDegreeCircle(t *testing.T) {
	// With the default policy, every vertex of the degree-space circle lies
	// inside the metric circle generated around the same center.
	geoUtils := NewGeoUtils()
	converter := NewTangentPlaneConverter(WGS84, ScaleMaximum)

	for _, lat := range []float64{0, 20, 38.1, 60, -50} {
		center := Point{Latitude: lat, Longitude: 10}
		radiusDegrees := 0.02

		meters, err := converter.ToMeters(center, radiusDegrees)
		require.NoError(t, err)

		for deg := 0.0; deg < 360; deg += 15 {
			s, c := math.Sincos(deg * radians)
			vertex := Point{
				Latitude:  lat + radiusDegrees*c,
				Longitude: 10 + radiusDegrees*s,
			}
			d, err := geoUtils.PointToPoint(center, vertex)
			require.NoError(t, err)
			assert.LessOrEqual(t, d, meters*1.005, "latitude %v bearing %v", lat, deg)
		}
	}
}

func TestTangentPlaneConverter_Errors(t *testing.T) {
	converter := NewTangentPlaneConverter(WGS84, ScaleMaximum)

	_, err := converter.ToMeters(Point{Latitude: 100}, 1)
	assert.ErrorIs(t, err, ErrInvalidCoordinates)

	_, err = converter.ToMeters(Point{}, -1)
	assert.ErrorIs(t, err, ErrInvalidRadius)

	_, err = converter.ToMeters(Point{}, math.NaN())
	assert.ErrorIs(t, err, ErrInvalidRadius)

	_, err = NewTangentPlaneConverter(WGS84, ScalePolicy(42)).ToMeters(Point{}, 1)
	assert.ErrorIs(t, err, ErrUnknownScale)

	meters, err := converter.ToMeters(Point{}, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, meters)
}

func TestFixedScaleConverter(t *testing.T) {
	meters, err := FixedScaleConverter{MetersPerDegree: 1000}.ToMeters(Point{Latitude: 38}, 0.25)
	require.NoError(t, err)
	assert.InDelta(t, 250, meters, 1e-9)

	_, err = FixedScaleConverter{}.ToMeters(Point{}, 1)
	assert.ErrorIs(t, err, ErrInvalidScale)

	_, err = FixedScaleConverter{MetersPerDegree: 1}.ToMeters(Point{}, math.Inf(1))
	assert.ErrorIs(t, err, ErrInvalidRadius)
}

func TestNewRadiusConverter(t *testing.T) {
	c, err := NewRadiusConverter(WGS84, "tangent", "mean", 0)
	require.NoError(t, err)
	assert.Equal(t, ScaleMean, c.(*TangentPlaneConverter).Policy)

	c, err = NewRadiusConverter(WGS84, "", "", 0)
	require.NoError(t, err)
	assert.Equal(t, ScaleMaximum, c.(*TangentPlaneConverter).Policy)

	c, err = NewRadiusConverter(WGS84, "fixed", "", 111320)
	require.NoError(t, err)
	assert.Equal(t, FixedScaleConverter{MetersPerDegree: 111320}, c)

	_, err = NewRadiusConverter(WGS84, "fixed", "", 0)
	assert.ErrorIs(t, err, ErrInvalidScale)

	_, err = NewRadiusConverter(WGS84, "great-circle", "", 0)
	assert.ErrorIs(t, err, ErrUnknownScale)

	_, err = NewRadiusConverter(WGS84, "tangent", "widest", 0)
	assert.ErrorIs(t, err, ErrUnknownScale)
}

func TestParseScalePolicy(t *testing.T) {
	for _, p := range []ScalePolicy{ScaleMaximum, ScaleMinimum, ScaleMeridional, ScaleMean} {
		parsed, err := ParseScalePolicy(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, parsed)
	}
}

package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeoUtils_PointToPoint(t *testing.T) {
	// Two detector sites on the same ridge, roughly 11 km apart
	ridgeWest := Point{Latitude: 38.0675, Longitude: -120.5436}
	ridgeEast := Point{Latitude: 38.1391, Longitude: -120.4561}

	geoUtils := NewGeoUtils()

	distance, err := geoUtils.PointToPoint(ridgeWest, ridgeEast)
	require.NoError(t, err)
	assert.InDelta(t, 11046, distance, 100, "Distance should be approximately 11.0km")

	invalidPoint := Point{Latitude: 200, Longitude: -300}
	_, err = geoUtils.PointToPoint(ridgeWest, invalidPoint)
	assert.ErrorIs(t, err, ErrInvalidCoordinates)
}

func TestGeoUtils_DecodePolyline(t *testing.T) {
	geoUtils := NewGeoUtils()

	points, err := geoUtils.DecodePolyline("_p~iF~ps|U_ulLnnqC_mqNvxq`@")
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.InDelta(t, 38.5, points[0].Latitude, 1e-5)
	assert.InDelta(t, -120.2, points[0].Longitude, 1e-5)

	for _, point := range points {
		assert.True(t, IsValidCoordinate(point))
	}

	_, err = geoUtils.DecodePolyline("")
	assert.Error(t, err, "Should return error for empty polyline")
}

func TestGeoUtils_EncodePolyline(t *testing.T) {
	geoUtils := NewGeoUtils()

	points := []Point{
		{Latitude: 38.5, Longitude: -120.2},
		{Latitude: 40.7, Longitude: -120.95},
		{Latitude: 43.252, Longitude: -126.453},
	}

	encoded, err := geoUtils.EncodePolyline(points)
	require.NoError(t, err)
	assert.Equal(t, "_p~iF~ps|U_ulLnnqC_mqNvxq`@", encoded)

	decoded, err := geoUtils.DecodePolyline(encoded)
	require.NoError(t, err)
	require.Len(t, decoded, len(points))
	for i := range points {
		assert.InDelta(t, points[i].Latitude, decoded[i].Latitude, 1e-5)
		assert.InDelta(t, points[i].Longitude, decoded[i].Longitude, 1e-5)
	}

	_, err = geoUtils.EncodePolyline(nil)
	assert.Error(t, err)

	_, err = geoUtils.EncodePolyline([]Point{{Latitude: 91, Longitude: 0}})
	assert.ErrorIs(t, err, ErrInvalidCoordinates)
}

func TestGeoUtils_FilterPointsByDistance(t *testing.T) {
	geoUtils := NewGeoUtils()

	center := Point{Latitude: 38.1, Longitude: -120.45}
	points := []Point{
		{Latitude: 38.1, Longitude: -120.45},
		{Latitude: 38.105, Longitude: -120.45}, // ~555m
		{Latitude: 38.2, Longitude: -120.45},   // ~11km
		{Latitude: 120, Longitude: 0},          // invalid, skipped
	}

	filtered, err := geoUtils.FilterPointsByDistance(points, center, 1000)
	require.NoError(t, err)
	assert.Len(t, filtered, 2)

	_, err = geoUtils.FilterPointsByDistance(points, Point{Latitude: -100}, 1000)
	assert.Error(t, err)
}

func TestGeoUtils_SpreadFrom(t *testing.T) {
	geoUtils := NewGeoUtils()

	center := Point{Latitude: 0, Longitude: 0}
	points := []Point{
		{Latitude: 0, Longitude: 0},
		{Latitude: 0, Longitude: 1},
	}

	mean, max, err := geoUtils.SpreadFrom(center, points)
	require.NoError(t, err)
	assert.InDelta(t, 111195, max, 1)
	assert.InDelta(t, max/2, mean, 1e-6)

	_, _, err = geoUtils.SpreadFrom(center, nil)
	assert.Error(t, err)
}

func TestGeoUtils_EdgeCases(t *testing.T) {
	geoUtils := NewGeoUtils()

	testPoint := Point{Latitude: 38.0675, Longitude: -120.5436}

	distance, err := geoUtils.PointToPoint(testPoint, testPoint)
	require.NoError(t, err)
	assert.Equal(t, 0.0, distance, "Distance from point to itself should be 0")

	distance, err = geoUtils.DistanceFromCoords(38.0675, -120.5436, 38.1391, -120.4561)
	require.NoError(t, err)
	assert.InDelta(t, 11046, distance, 100)

	_, err = NewPoint(0, 181)
	assert.ErrorIs(t, err, ErrInvalidCoordinates)
}

package geo

import (
	"errors"
	"math"

	"github.com/twpayne/go-polyline"
)

// Earth's mean radius in meters, used by the spherical helpers
const earthRadius = 6371000

// ErrInvalidCoordinates is returned whenever a point falls outside the valid range
var ErrInvalidCoordinates = errors.New("invalid coordinates: latitude must be [-90, 90], longitude must be [-180, 180]")

// geoUtils implements the GeoUtils interface
type geoUtils struct{}

// NewGeoUtils creates a new GeoUtils implementation
func NewGeoUtils() GeoUtils {
	return &geoUtils{}
}

// PointToPoint calculates great-circle distance between two points using Haversine formula
func (g *geoUtils) PointToPoint(p1, p2 Point) (float64, error) {
	if !IsValidCoordinate(p1) || !IsValidCoordinate(p2) {
		return 0, ErrInvalidCoordinates
	}

	if p1.Latitude == p2.Latitude && p1.Longitude == p2.Longitude {
		return 0, nil
	}

	lat1 := p1.Latitude * radians
	lon1 := p1.Longitude * radians
	lat2 := p2.Latitude * radians
	lon2 := p2.Longitude * radians

	dlat := lat2 - lat1
	dlon := lon2 - lon1

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadius * c, nil
}

// DecodePolyline decodes Google polyline string to point sequence
func (g *geoUtils) DecodePolyline(encoded string) ([]Point, error) {
	if encoded == "" {
		return nil, errors.New("encoded polyline string is empty")
	}

	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, errors.New("failed to decode polyline: " + err.Error())
	}

	points := make([]Point, len(coords))
	for i, coord := range coords {
		points[i] = Point{
			Latitude:  coord[0],
			Longitude: coord[1],
		}

		if !IsValidCoordinate(points[i]) {
			return nil, errors.New("decoded polyline contains invalid coordinates")
		}
	}

	return points, nil
}

// EncodePolyline encodes a point sequence as a Google polyline string
func (g *geoUtils) EncodePolyline(points []Point) (string, error) {
	if len(points) == 0 {
		return "", errors.New("no points to encode")
	}

	coords := make([][]float64, len(points))
	for i, p := range points {
		if !IsValidCoordinate(p) {
			return "", ErrInvalidCoordinates
		}
		coords[i] = []float64{p.Latitude, p.Longitude}
	}

	return string(polyline.EncodeCoords(coords)), nil
}

// NewPoint creates a Point from latitude and longitude values with validation
func NewPoint(latitude, longitude float64) (Point, error) {
	point := Point{Latitude: latitude, Longitude: longitude}
	if !IsValidCoordinate(point) {
		return Point{}, ErrInvalidCoordinates
	}
	return point, nil
}

// FilterPointsByDistance filters points to those within specified distance of center point
func (g *geoUtils) FilterPointsByDistance(points []Point, center Point, maxDistanceMeters float64) ([]Point, error) {
	if !IsValidCoordinate(center) {
		return nil, errors.New("invalid center point coordinates")
	}

	var filteredPoints []Point

	for _, point := range points {
		if !IsValidCoordinate(point) {
			continue // Skip invalid points
		}

		distance, err := g.PointToPoint(center, point)
		if err != nil {
			continue
		}

		if distance <= maxDistanceMeters {
			filteredPoints = append(filteredPoints, point)
		}
	}

	return filteredPoints, nil
}

// DistanceFromCoords calculates distance between two coordinate pairs
// Convenience method for raw latitude/longitude values
func (g *geoUtils) DistanceFromCoords(lat1, lon1, lat2, lon2 float64) (float64, error) {
	point1 := Point{Latitude: lat1, Longitude: lon1}
	point2 := Point{Latitude: lat2, Longitude: lon2}

	return g.PointToPoint(point1, point2)
}

// SpreadFrom reports how far a set of points sits from a center
func (g *geoUtils) SpreadFrom(center Point, points []Point) (float64, float64, error) {
	if len(points) == 0 {
		return 0, 0, errors.New("no points to measure")
	}

	var sum, max float64
	for _, p := range points {
		d, err := g.PointToPoint(center, p)
		if err != nil {
			return 0, 0, err
		}
		sum += d
		if d > max {
			max = d
		}
	}

	return sum / float64(len(points)), max, nil
}

// IsValidCoordinate validates latitude and longitude values
func IsValidCoordinate(point Point) bool {
	return point.Latitude >= -90 && point.Latitude <= 90 &&
		point.Longitude >= -180 && point.Longitude <= 180
}

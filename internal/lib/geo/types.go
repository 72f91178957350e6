package geo

// Point represents a geographic coordinate
type Point struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// Polyline represents an encoded polyline with optional decoded points
type Polyline struct {
	EncodedPolyline string  `json:"encoded_polyline"`
	Points          []Point `json:"points"`
}

// DirectResult is the solution of the direct geodesic problem
type DirectResult struct {
	Destination Point `json:"destination"`

	// Azimuth from the destination back towards the start, degrees in [0, 360)
	ReverseAzimuth float64 `json:"reverse_azimuth"`

	// Number of fixed-point iterations spent on the arc length
	Iterations int `json:"iterations"`
}

// GeoUtils interface defines geographic calculation utilities
type GeoUtils interface {
	// Calculate great-circle distance between two points in meters
	PointToPoint(p1, p2 Point) (float64, error)

	// Decode Google polyline string to point sequence
	DecodePolyline(encoded string) ([]Point, error)

	// Encode point sequence as a Google polyline string
	EncodePolyline(points []Point) (string, error)

	// Filter points to those within specified distance of center point
	FilterPointsByDistance(points []Point, center Point, maxDistanceMeters float64) ([]Point, error)

	// Calculate distance between coordinate pairs (convenience method)
	DistanceFromCoords(lat1, lon1, lat2, lon2 float64) (float64, error)

	// Mean and maximum great-circle distance from center to each point
	SpreadFrom(center Point, points []Point) (mean, max float64, err error)
}

// NewGeoUtils is implemented in geo.go

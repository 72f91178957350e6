// Package export renders an estimate for mapping tools and dispatch
// consoles: KML, GeoJSON and Google encoded polylines.
package export

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/twpayne/go-kml"
	"github.com/twpayne/go-kml/sphere"

	"github.com/fireflyresponse/perimeter/internal/lib/geo"
	"github.com/fireflyresponse/perimeter/internal/lib/perimeter"
)

// BoundaryMaxError bounds in meters how far the ring's chords sag inside the
// circle it is drawn from.
const BoundaryMaxError = 1.0

// BoundaryModelGap is the largest relative difference between the ring radius
// and the ellipsoidal waypoint distances. The ring is drawn on a sphere of the
// WGS84 equatorial radius while waypoints follow the ellipsoid; the gap peaks
// near the equator, where the meridional radius is smallest.
const BoundaryModelGap = 0.007

// Boundary returns a closed display ring around the estimate center at
// RadiusMeters, drawn on a sphere. It can sit up to BoundaryModelGap times the
// radius away from the waypoints, which remain the authoritative positions.
// A zero radius yields nil.
func Boundary(estimate perimeter.Estimate) []geo.Point {
	if estimate.RadiusMeters <= 0 {
		return nil
	}
	coords := sphere.WGS84.Circle(kmlCoordinate(estimate.Center), estimate.RadiusMeters, BoundaryMaxError)
	ring := make([]geo.Point, len(coords))
	for i, c := range coords {
		ring[i] = geo.Point{Latitude: c.Lat, Longitude: c.Lon}
	}
	return ring
}

// WriteKML writes the estimate as an indented KML document.
func WriteKML(w io.Writer, estimate perimeter.Estimate) error {
	center := kml.Placemark(
		kml.Name("Perimeter center"),
		kml.Description(fmt.Sprintf("%d alerts, radius %.1f m", estimate.PointCount, estimate.RadiusMeters)),
		extendedData(estimate),
		kml.Point(kml.Coordinates(kmlCoordinate(estimate.Center))),
	)

	doc := kml.Document(
		kml.Name(fmt.Sprintf("Perimeter %s", estimate.ComputedAt.Format("2006-01-02T15:04:05Z07:00"))),
		center,
	)

	if ring := Boundary(estimate); len(ring) > 0 {
		doc.Add(kml.Placemark(
			kml.Name("Boundary"),
			kml.Polygon(
				kml.OuterBoundaryIs(
					kml.LinearRing(
						kml.Tessellate(true),
						kml.Coordinates(kmlCoordinates(ring)...),
					),
				),
			),
		))
	}

	waypoints := kml.Folder(kml.Name("Waypoints"))
	for _, wp := range estimate.Waypoints {
		waypoints.Add(kml.Placemark(
			kml.Name(fmt.Sprintf("WP%02d", wp.Index)),
			kml.Description(fmt.Sprintf("bearing %.1f°", wp.Bearing)),
			kml.Point(kml.Coordinates(kmlCoordinate(wp.Point))),
		))
	}
	doc.Add(waypoints)

	if path := estimate.Path(); len(path) > 1 {
		doc.Add(kml.Placemark(
			kml.Name("Dispatch path"),
			kml.LineString(
				kml.Tessellate(true),
				kml.Coordinates(kmlCoordinates(path)...),
			),
		))
	}

	if err := kml.KML(doc).WriteIndent(w, "", "  "); err != nil {
		return fmt.Errorf("failed to write KML: %w", err)
	}
	return nil
}

// FeatureCollection returns the estimate as GeoJSON: the center, the
// boundary ring, each waypoint and the dispatch path.
func FeatureCollection(estimate perimeter.Estimate) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	center := geojson.NewFeature(orbPoint(estimate.Center))
	center.Properties["kind"] = "center"
	center.Properties["point_count"] = estimate.PointCount
	center.Properties["radius_degrees"] = estimate.RadiusDegrees
	center.Properties["radius_meters"] = estimate.RadiusMeters
	center.Properties["iterations"] = estimate.Iterations
	center.Properties["approximate"] = estimate.Approximate
	center.Properties["computed_at"] = estimate.ComputedAt
	fc.Append(center)

	if ring := Boundary(estimate); len(ring) > 0 {
		boundary := geojson.NewFeature(orb.Polygon{orb.Ring(orbLine(ring))})
		boundary.Properties["kind"] = "boundary"
		fc.Append(boundary)
	}

	for _, wp := range estimate.Waypoints {
		f := geojson.NewFeature(orbPoint(wp.Point))
		f.Properties["kind"] = "waypoint"
		f.Properties["index"] = wp.Index
		f.Properties["bearing"] = wp.Bearing
		f.Properties["reverse_azimuth"] = wp.ReverseAzimuth
		fc.Append(f)
	}

	if path := estimate.Path(); len(path) > 1 {
		f := geojson.NewFeature(orbLine(path))
		f.Properties["kind"] = "path"
		fc.Append(f)
	}

	return fc
}

// EncodePath returns the waypoint path as a Google encoded polyline.
func EncodePath(estimate perimeter.Estimate) (string, error) {
	encoded, err := geo.NewGeoUtils().EncodePolyline(estimate.Path())
	if err != nil {
		return "", fmt.Errorf("failed to encode path: %w", err)
	}
	return encoded, nil
}

func extendedData(estimate perimeter.Estimate) kml.Element {
	fields := []struct {
		name  string
		value string
	}{
		{"radius_meters", strconv.FormatFloat(estimate.RadiusMeters, 'f', 3, 64)},
		{"radius_degrees", strconv.FormatFloat(estimate.RadiusDegrees, 'g', -1, 64)},
		{"iterations", strconv.Itoa(estimate.Iterations)},
		{"approximate", strconv.FormatBool(estimate.Approximate)},
	}

	children := make([]kml.Element, 0, len(fields))
	for _, field := range fields {
		d := kml.Data(kml.Value(field.value))
		d.Attr = append(d.Attr, xml.Attr{Name: xml.Name{Local: "name"}, Value: field.name})
		children = append(children, d)
	}
	return kml.ExtendedData(children...)
}

func kmlCoordinate(p geo.Point) kml.Coordinate {
	return kml.Coordinate{Lon: p.Longitude, Lat: p.Latitude}
}

func kmlCoordinates(points []geo.Point) []kml.Coordinate {
	coords := make([]kml.Coordinate, len(points))
	for i, p := range points {
		coords[i] = kmlCoordinate(p)
	}
	return coords
}

func orbPoint(p geo.Point) orb.Point {
	return orb.Point{p.Longitude, p.Latitude}
}

func orbLine(points []geo.Point) orb.LineString {
	line := make(orb.LineString, len(points))
	for i, p := range points {
		line[i] = orbPoint(p)
	}
	return line
}

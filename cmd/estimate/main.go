package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fireflyresponse/perimeter/internal/lib/export"
	"github.com/fireflyresponse/perimeter/internal/lib/geo"
	"github.com/fireflyresponse/perimeter/internal/lib/mec"
	"github.com/fireflyresponse/perimeter/internal/lib/perimeter"
	"github.com/fireflyresponse/perimeter/internal/lib/readings"
	"github.com/fireflyresponse/perimeter/internal/lib/waypoints"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "circle":
		handleCircle()
	case "direct":
		handleDirect()
	case "waypoints":
		handleWaypoints()
	case "distance":
		handleDistance(geo.NewGeoUtils())
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func handleCircle() {
	fs := flag.NewFlagSet("circle", flag.ExitOnError)
	pointsStr := fs.String("points", "", "Points as \"x,y;x,y;...\"")
	maxIterations := fs.Int("max-iterations", mec.DefaultMaxIterations, "Pivot iteration cap")

	fs.Parse(os.Args[2:])

	if *pointsStr == "" {
		fmt.Println("Example usage:")
		fmt.Println("  estimate circle --points \"0,0;10,0;5,8;5,-8\"")
		os.Exit(1)
	}

	points, err := parsePoints(*pointsStr)
	if err != nil {
		log.Fatalf("Error parsing points: %v", err)
	}

	result := mec.Enclose(points, *maxIterations)

	fmt.Printf("Minimum enclosing circle of %d points:\n", len(points))
	fmt.Printf("  Center: (%.9f, %.9f)\n", result.Circle.Center.X, result.Circle.Center.Y)
	fmt.Printf("  Radius: %.9f\n", result.Circle.Radius())
	fmt.Printf("  Iterations: %d\n", result.Iterations)
	if result.Approximate {
		fmt.Printf("  Approximate: iteration cap reached\n")
	}
	for i, p := range result.Support {
		fmt.Printf("  Support %d: (%.9f, %.9f)\n", i, p.X, p.Y)
	}
}

func handleDirect() {
	fs := flag.NewFlagSet("direct", flag.ExitOnError)
	lat := fs.Float64("lat", 0, "Start latitude")
	lng := fs.Float64("lng", 0, "Start longitude")
	bearing := fs.Float64("bearing", 0, "Initial bearing in degrees clockwise from north")
	distance := fs.Float64("distance", 0, "Distance in meters")
	maxIterations := fs.Int("max-iterations", geo.DefaultMaxIterations, "Vincenty iteration cap")

	fs.Parse(os.Args[2:])

	if *lat == 0 && *lng == 0 && *distance == 0 {
		fmt.Println("Example usage:")
		fmt.Println("  estimate direct --lat -37.95103 --lng 144.42487 --bearing 306.86816 --distance 54972.271")
		fmt.Println("  (Flinders Peak to Buninyong)")
		os.Exit(1)
	}

	ellipsoid := geo.WGS84
	ellipsoid.MaxIterations = *maxIterations

	start := geo.Point{Latitude: *lat, Longitude: *lng}
	result, err := ellipsoid.Direct(start, *bearing, *distance)
	if err != nil {
		log.Fatalf("Error solving direct geodesic: %v", err)
	}

	fmt.Printf("Direct geodesic on WGS84:\n")
	fmt.Printf("  Start: (%.8f, %.8f)\n", start.Latitude, start.Longitude)
	fmt.Printf("  Bearing: %.8f°  Distance: %.3f m\n", *bearing, *distance)
	fmt.Printf("  Destination: (%.8f, %.8f)\n", result.Destination.Latitude, result.Destination.Longitude)
	fmt.Printf("  Reverse azimuth: %.8f°\n", result.ReverseAzimuth)
	fmt.Printf("  Iterations: %d\n", result.Iterations)
}

func handleWaypoints() {
	fs := flag.NewFlagSet("waypoints", flag.ExitOnError)
	feed := fs.String("feed", "", "GeoJSON FeatureCollection or newline-delimited feed")
	count := fs.Int("count", perimeter.DefaultWaypointCount, "Number of waypoints")
	window := fs.Duration("window", 0, "Only use sensor readings this recent (0 = all)")
	quantum := fs.Float64("dedup-quantum", 0, "Dedup grid in degrees (0 = exact)")
	mode := fs.String("radius-mode", "tangent", "Radius conversion: tangent or fixed")
	policy := fs.String("policy", geo.ScaleMaximum.String(), "Tangent scale policy: max, min, meridional, mean")
	metersPerDegree := fs.Float64("meters-per-degree", 0, "Scale for --radius-mode fixed")
	format := fs.String("format", "text", "Output format: text, kml, geojson, polyline")

	fs.Parse(os.Args[2:])

	if *feed == "" {
		fmt.Println("Example usage:")
		fmt.Println("  estimate waypoints --feed readings.geojson --count 10 --format kml > perimeter.kml")
		os.Exit(1)
	}

	data, err := os.ReadFile(*feed)
	if err != nil {
		log.Fatalf("Error reading feed: %v", err)
	}
	batch, err := readings.ParseFeed(data)
	if err != nil {
		log.Fatalf("Error parsing feed: %v", err)
	}
	if batch.Skipped > 0 {
		log.Printf("Skipped %d invalid records: %v", batch.Skipped, errors.Join(batch.Errors...))
	}

	var since time.Time
	if *window > 0 {
		since = time.Now().Add(-*window)
	}
	points := readings.Dedup(readings.Points(readings.Sensors(batch.Readings, since)), *quantum)
	if len(points) == 0 {
		log.Fatal("No sensor readings to estimate from")
	}

	converter, err := geo.NewRadiusConverter(geo.WGS84, *mode, *policy, *metersPerDegree)
	if err != nil {
		log.Fatalf("Error configuring radius conversion: %v", err)
	}

	estimator := perimeter.NewEstimator(waypoints.NewGenerator(geo.WGS84, converter))
	estimator.WaypointCount = *count

	estimate, err := estimator.Estimate(points)
	if err != nil {
		log.Fatalf("Error estimating perimeter: %v", err)
	}

	if err := writeEstimate(os.Stdout, estimate, *format); err != nil {
		log.Fatalf("Error writing output: %v", err)
	}
}

func handleDistance(geoUtils geo.GeoUtils) {
	fs := flag.NewFlagSet("distance", flag.ExitOnError)
	lat1 := fs.Float64("lat1", 0, "Latitude of first point")
	lng1 := fs.Float64("lng1", 0, "Longitude of first point")
	lat2 := fs.Float64("lat2", 0, "Latitude of second point")
	lng2 := fs.Float64("lng2", 0, "Longitude of second point")

	fs.Parse(os.Args[2:])

	if *lat1 == 0 && *lng1 == 0 && *lat2 == 0 && *lng2 == 0 {
		fmt.Println("Example usage:")
		fmt.Println("  estimate distance --lat1 38.0675 --lng1 -120.5436 --lat2 38.1391 --lng2 -120.4561")
		os.Exit(1)
	}

	distance, err := geoUtils.DistanceFromCoords(*lat1, *lng1, *lat2, *lng2)
	if err != nil {
		log.Fatalf("Error calculating distance: %v", err)
	}

	fmt.Printf("Great-circle distance: %.2f meters (%.2f km)\n", distance, distance/1000)
}

func writeEstimate(w io.Writer, estimate perimeter.Estimate, format string) error {
	switch format {
	case "text":
		fmt.Fprintf(w, "Perimeter from %d alerts:\n", estimate.PointCount)
		fmt.Fprintf(w, "  Center: (%.6f, %.6f)\n", estimate.Center.Latitude, estimate.Center.Longitude)
		fmt.Fprintf(w, "  Radius: %.6f° (%.1f m)\n", estimate.RadiusDegrees, estimate.RadiusMeters)
		fmt.Fprintf(w, "  Iterations: %d (approximate: %t)\n", estimate.Iterations, estimate.Approximate)
		for _, wp := range estimate.Waypoints {
			fmt.Fprintf(w, "  WP%02d  %7.2f°  (%.6f, %.6f)\n", wp.Index, wp.Bearing, wp.Point.Latitude, wp.Point.Longitude)
		}
		return nil
	case "kml":
		return export.WriteKML(w, estimate)
	case "geojson":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(export.FeatureCollection(estimate))
	case "polyline":
		encoded, err := export.EncodePath(estimate)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, encoded)
		return err
	}
	return fmt.Errorf("unknown format %q", format)
}

// parsePoints reads "x,y;x,y" pairs.
func parsePoints(s string) ([]mec.Point, error) {
	var points []mec.Point
	for i, pair := range strings.Split(s, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.Split(pair, ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("point %d: expected x,y but got %q", i, pair)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("point %d: %w", i, err)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("point %d: %w", i, err)
		}
		p := mec.Point{X: x, Y: y}
		if !p.IsFinite() {
			return nil, fmt.Errorf("point %d: coordinates must be finite", i)
		}
		points = append(points, p)
	}
	return points, nil
}

func printUsage() {
	fmt.Println("estimate - containment perimeter tools")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  estimate <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  circle      Minimum enclosing circle of planar points")
	fmt.Println("  direct      Destination from a start point, bearing and distance on WGS84")
	fmt.Println("  waypoints   Estimate the perimeter and waypoints from a readings feed")
	fmt.Println("  distance    Great-circle distance between two points")
	fmt.Println("  help        Show this help message")
	fmt.Println()
	fmt.Println("Run 'estimate <command>' without flags for an example.")
}

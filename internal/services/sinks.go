package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fireflyresponse/perimeter/internal/lib/export"
	"github.com/fireflyresponse/perimeter/internal/lib/perimeter"
	"github.com/fireflyresponse/perimeter/internal/logging"
)

// Output file names written by DirectorySink
const (
	KMLFile      = "estimate.kml"
	GeoJSONFile  = "estimate.geojson"
	PolylineFile = "path.txt"
)

// WaypointSink receives every successful estimate.
type WaypointSink interface {
	Publish(ctx context.Context, estimate perimeter.Estimate) error
}

// DirectorySink writes KML, GeoJSON and an encoded polyline into Dir.
// Each file is replaced atomically so readers never see a partial write.
type DirectorySink struct {
	Dir string
}

// NewDirectorySink creates a sink writing into dir, creating it if needed
func NewDirectorySink(dir string) (*DirectorySink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &DirectorySink{Dir: dir}, nil
}

func (s *DirectorySink) Publish(ctx context.Context, estimate perimeter.Estimate) error {
	var kml bytes.Buffer
	if err := export.WriteKML(&kml, estimate); err != nil {
		return err
	}

	geoJSON, err := json.Marshal(export.FeatureCollection(estimate))
	if err != nil {
		return fmt.Errorf("failed to encode GeoJSON: %w", err)
	}

	path, err := export.EncodePath(estimate)
	if err != nil {
		return err
	}

	files := []struct {
		name string
		data []byte
	}{
		{KMLFile, kml.Bytes()},
		{GeoJSONFile, geoJSON},
		{PolylineFile, []byte(path + "\n")},
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeAtomic(filepath.Join(s.Dir, f.name), f.data); err != nil {
			return err
		}
	}

	logging.Debugw(ctx, "Published estimate files", "dir", s.Dir)
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// LogSink logs the boundary and each waypoint.
type LogSink struct{}

func (LogSink) Publish(ctx context.Context, estimate perimeter.Estimate) error {
	logging.Infow(ctx, "Perimeter estimate",
		"center_lat", estimate.Center.Latitude,
		"center_lng", estimate.Center.Longitude,
		"radius_m", estimate.RadiusMeters,
		"points", estimate.PointCount,
		"approximate", estimate.Approximate)

	for _, wp := range estimate.Waypoints {
		logging.Infow(ctx, "Waypoint",
			"index", wp.Index,
			"bearing", wp.Bearing,
			"lat", wp.Point.Latitude,
			"lng", wp.Point.Longitude)
	}
	return nil
}

package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fireflyresponse/perimeter/internal/lib/geo"
	"github.com/fireflyresponse/perimeter/internal/lib/perimeter"
	"github.com/fireflyresponse/perimeter/internal/lib/readings"
	"github.com/fireflyresponse/perimeter/internal/lib/waypoints"
	"github.com/fireflyresponse/perimeter/internal/logging"
)

func sinkEstimate(t *testing.T) perimeter.Estimate {
	t.Helper()
	e := perimeter.NewEstimator(waypoints.NewGenerator(geo.WGS84, nil))
	e.WaypointCount = 6
	e.Now = func() time.Time { return cycleTime }
	estimate, err := e.Estimate([]geo.Point{
		{Latitude: 38.10, Longitude: -120.46},
		{Latitude: 38.12, Longitude: -120.44},
	})
	require.NoError(t, err)
	return estimate
}

func TestDirectorySink_Publish(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	sink, err := NewDirectorySink(dir)
	require.NoError(t, err)

	estimate := sinkEstimate(t)
	require.NoError(t, sink.Publish(context.Background(), estimate))
	// Publishing again replaces the files in place
	require.NoError(t, sink.Publish(context.Background(), estimate))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{KMLFile, GeoJSONFile, PolylineFile}, names)

	kml, err := os.ReadFile(filepath.Join(dir, KMLFile))
	require.NoError(t, err)
	assert.Contains(t, string(kml), "<Placemark>")

	data, err := os.ReadFile(filepath.Join(dir, GeoJSONFile))
	require.NoError(t, err)
	fc, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	assert.Equal(t, "center", fc.Features[0].Properties["kind"])

	encoded, err := os.ReadFile(filepath.Join(dir, PolylineFile))
	require.NoError(t, err)
	path, err := geo.NewGeoUtils().DecodePolyline(strings.TrimSpace(string(encoded)))
	require.NoError(t, err)
	assert.Len(t, path, 6)
}

func TestDirectorySink_CancelledContext(t *testing.T) {
	sink, err := NewDirectorySink(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sink.Publish(ctx, sinkEstimate(t)), context.Canceled)
}

func TestLogSink_Publish(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := logging.With(context.Background(), zap.New(core).Sugar())

	require.NoError(t, LogSink{}.Publish(ctx, sinkEstimate(t)))

	entries := logs.All()
	require.Len(t, entries, 1+6)
	assert.Equal(t, "Perimeter estimate", entries[0].Message)
	assert.Equal(t, "Waypoint", entries[1].Message)
	assert.Equal(t, int64(0), entries[1].ContextMap()["index"])
	assert.Equal(t, 300.0, entries[6].ContextMap()["bearing"])
}

func TestFileSource_Readings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.ndjson")
	feed := `{"type":"Feature","geometry":{"type":"Point","coordinates":[-120.45,38.1]},"properties":{"device_type":"sensor","_ts":1723672800}}
{"type":"Feature","geometry":{"type":"Point","coordinates":[-120.44,38.11]},"properties":{"device_type":"bogus"}}
`
	require.NoError(t, os.WriteFile(path, []byte(feed), 0o600))

	batch, err := NewFileSource(path).Readings(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.Readings, 1)
	assert.Equal(t, readings.DeviceSensor, batch.Readings[0].DeviceType)
	assert.Equal(t, 1, batch.Skipped)

	_, err = NewFileSource(filepath.Join(t.TempDir(), "missing")).Readings(context.Background())
	assert.ErrorContains(t, err, "failed to read feed")
}

// Package readings parses device messages and prepares alert locations for
// estimation.
package readings

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/fireflyresponse/perimeter/internal/lib/geo"
)

// DeviceType identifies what reported a reading.
type DeviceType string

const (
	DeviceSensor   DeviceType = "sensor"
	DeviceActuator DeviceType = "actuator"
)

var (
	ErrNotReading        = errors.New("message has no device_type")
	ErrInvalidDeviceType = errors.New("device_type must be sensor or actuator")
	ErrInvalidGeometry   = errors.New("reading geometry must be a point")
)

// Reading is one located device message.
type Reading struct {
	DeviceID   string                 `json:"device_id"`
	DeviceType DeviceType             `json:"device_type"`
	Point      geo.Point              `json:"point"`
	ObservedAt time.Time              `json:"observed_at"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// Batch is the result of parsing a feed.
type Batch struct {
	Readings []Reading
	Skipped  int
	Errors   []error
}

// ParseMessage parses a single GeoJSON Feature.
func ParseMessage(data []byte) (Reading, error) {
	feature, err := geojson.UnmarshalFeature(data)
	if err != nil {
		return Reading{}, fmt.Errorf("failed to parse feature: %w", err)
	}
	return FromFeature(feature)
}

// FromFeature converts a decoded feature into a Reading.
func FromFeature(feature *geojson.Feature) (Reading, error) {
	rawType, ok := feature.Properties["device_type"]
	if !ok {
		return Reading{}, ErrNotReading
	}
	deviceType := DeviceType(strings.ToLower(fmt.Sprint(rawType)))
	if deviceType != DeviceSensor && deviceType != DeviceActuator {
		return Reading{}, fmt.Errorf("%w: %q", ErrInvalidDeviceType, fmt.Sprint(rawType))
	}

	point, ok := feature.Geometry.(orb.Point)
	if !ok {
		return Reading{}, ErrInvalidGeometry
	}
	location := geo.Point{Latitude: point.Lat(), Longitude: point.Lon()}
	if !geo.IsValidCoordinate(location) {
		return Reading{}, geo.ErrInvalidCoordinates
	}

	observedAt, err := observedAt(feature.Properties)
	if err != nil {
		return Reading{}, err
	}

	return Reading{
		DeviceID:   deviceID(feature),
		DeviceType: deviceType,
		Point:      location,
		ObservedAt: observedAt,
		Properties: feature.Properties.Clone(),
	}, nil
}

// ParseFeed parses a FeatureCollection or newline-delimited Features.
// Records that are not valid readings are skipped and counted.
func ParseFeed(data []byte) (Batch, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Batch{}, nil
	}

	var envelope struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	if trimmed[0] == '{' && json.Unmarshal(trimmed, &envelope) == nil && envelope.Type == "FeatureCollection" {
		return parseRecords(envelope.Features), nil
	}

	var records []json.RawMessage
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		records = append(records, append(json.RawMessage(nil), line...))
	}
	if err := scanner.Err(); err != nil {
		return Batch{}, fmt.Errorf("failed to read feed: %w", err)
	}

	return parseRecords(records), nil
}

func parseRecords(records []json.RawMessage) Batch {
	var batch Batch
	for i, record := range records {
		reading, err := ParseMessage(record)
		if err != nil {
			batch.Skipped++
			batch.Errors = append(batch.Errors, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		batch.Readings = append(batch.Readings, reading)
	}
	return batch
}

// Sensors returns the sensor readings observed at or after since. A zero
// since keeps every sensor reading.
func Sensors(readings []Reading, since time.Time) []Reading {
	var out []Reading
	for _, r := range readings {
		if r.DeviceType != DeviceSensor {
			continue
		}
		if !since.IsZero() && r.ObservedAt.Before(since) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Points extracts the locations of readings.
func Points(readings []Reading) []geo.Point {
	points := make([]geo.Point, len(readings))
	for i, r := range readings {
		points[i] = r.Point
	}
	return points
}

// Dedup removes repeated locations, keeping the first occurrence. With a
// zero quantum points must match exactly; otherwise they are compared on a
// grid of quantum degrees.
func Dedup(points []geo.Point, quantum float64) []geo.Point {
	seen := make(map[string]struct{}, len(points))
	out := make([]geo.Point, 0, len(points))
	for _, p := range points {
		key := locationKey(p, quantum)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}

func locationKey(p geo.Point, quantum float64) string {
	if quantum <= 0 {
		return formatCoordinate(p.Latitude) + "_" + formatCoordinate(p.Longitude)
	}
	return fmt.Sprintf("%d_%d", quantize(p.Latitude, quantum), quantize(p.Longitude, quantum))
}

// formatCoordinate renders v exactly, folding -0 into 0.
func formatCoordinate(v float64) string {
	if v == 0 {
		v = 0
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func quantize(v, quantum float64) int64 {
	q := v / quantum
	if q < 0 {
		return int64(q - 0.5)
	}
	return int64(q + 0.5)
}

func deviceID(feature *geojson.Feature) string {
	if id := feature.Properties.MustString("device_id", ""); id != "" {
		return id
	}
	if feature.ID != nil {
		return fmt.Sprint(feature.ID)
	}
	return ""
}

// observedAt reads _ts (unix seconds) or timestamp (RFC 3339). Messages
// without either carry a zero time.
func observedAt(props geojson.Properties) (time.Time, error) {
	if raw, ok := props["_ts"]; ok {
		switch v := raw.(type) {
		case float64:
			sec := int64(v)
			nsec := int64((v - float64(sec)) * 1e9)
			return time.Unix(sec, nsec).UTC(), nil
		case string:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return time.Time{}, fmt.Errorf("invalid _ts %q: %w", v, err)
			}
			return time.Unix(int64(f), 0).UTC(), nil
		default:
			return time.Time{}, fmt.Errorf("invalid _ts of type %T", raw)
		}
	}
	if raw, ok := props["timestamp"].(string); ok {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", raw, err)
		}
		return t.UTC(), nil
	}
	return time.Time{}, nil
}

package readings

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fireflyresponse/perimeter/internal/lib/geo"
)

const sensorMessage = `{
  "type": "Feature",
  "id": "node-17",
  "geometry": {"type": "Point", "coordinates": [-120.4561, 38.1391]},
  "properties": {"device_type": "sensor", "_ts": 1723670000, "temperature": 71.5}
}`

func TestParseMessage(t *testing.T) {
	reading, err := ParseMessage([]byte(sensorMessage))
	require.NoError(t, err)

	assert.Equal(t, "node-17", reading.DeviceID)
	assert.Equal(t, DeviceSensor, reading.DeviceType)
	assert.Equal(t, geo.Point{Latitude: 38.1391, Longitude: -120.4561}, reading.Point)
	assert.Equal(t, time.Unix(1723670000, 0).UTC(), reading.ObservedAt)
	assert.Equal(t, 71.5, reading.Properties["temperature"])
}

func TestParseMessage_Variants(t *testing.T) {
	tests := []struct {
		name    string
		message string
		wantErr error
		check   func(t *testing.T, r Reading)
	}{
		{
			name:    "actuator with rfc3339 timestamp",
			message: `{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{"device_type":"Actuator","device_id":"pump-2","timestamp":"2024-08-14T21:00:00Z"}}`,
			check: func(t *testing.T, r Reading) {
				assert.Equal(t, DeviceActuator, r.DeviceType)
				assert.Equal(t, "pump-2", r.DeviceID)
				assert.Equal(t, time.Date(2024, 8, 14, 21, 0, 0, 0, time.UTC), r.ObservedAt)
			},
		},
		{
			name:    "no timestamp",
			message: `{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{"device_type":"sensor"}}`,
			check: func(t *testing.T, r Reading) {
				assert.True(t, r.ObservedAt.IsZero())
			},
		},
		{
			name:    "missing device type",
			message: `{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{}}`,
			wantErr: ErrNotReading,
		},
		{
			name:    "unknown device type",
			message: `{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{"device_type":"camera"}}`,
			wantErr: ErrInvalidDeviceType,
		},
		{
			name:    "line geometry",
			message: `{"type":"Feature","geometry":{"type":"LineString","coordinates":[[1,2],[3,4]]},"properties":{"device_type":"sensor"}}`,
			wantErr: ErrInvalidGeometry,
		},
		{
			name:    "out of range",
			message: `{"type":"Feature","geometry":{"type":"Point","coordinates":[200,2]},"properties":{"device_type":"sensor"}}`,
			wantErr: geo.ErrInvalidCoordinates,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ParseMessage([]byte(tt.message))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, r)
		})
	}

	_, err := ParseMessage([]byte(`not json`))
	assert.Error(t, err)

	_, err = ParseMessage([]byte(`{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{"device_type":"sensor","timestamp":"yesterday"}}`))
	assert.Error(t, err)
}

func TestParseFeed_FeatureCollection(t *testing.T) {
	feed := `{"type":"FeatureCollection","features":[
		` + sensorMessage + `,
		{"type":"Feature","geometry":{"type":"Point","coordinates":[-120.45,38.1]},"properties":{"device_type":"camera"}},
		{"type":"Feature","geometry":{"type":"Point","coordinates":[-120.44,38.11]},"properties":{"device_type":"actuator"}}
	]}`

	batch, err := ParseFeed([]byte(feed))
	require.NoError(t, err)
	assert.Len(t, batch.Readings, 2)
	assert.Equal(t, 1, batch.Skipped)
	require.Len(t, batch.Errors, 1)
	assert.ErrorIs(t, batch.Errors[0], ErrInvalidDeviceType)
}

func TestParseFeed_NewlineDelimited(t *testing.T) {
	feed := `{"type":"Feature","geometry":{"type":"Point","coordinates":[-120.45,38.1]},"properties":{"device_type":"sensor"}}

{"type":"Feature","geometry":{"type":"Point","coordinates":[-120.44,38.11]},"properties":{"device_type":"sensor"}}
garbage
`

	batch, err := ParseFeed([]byte(feed))
	require.NoError(t, err)
	assert.Len(t, batch.Readings, 2)
	assert.Equal(t, 1, batch.Skipped)

	batch, err = ParseFeed([]byte("   "))
	require.NoError(t, err)
	assert.Empty(t, batch.Readings)
}

func TestSensors(t *testing.T) {
	now := time.Date(2024, 8, 14, 22, 0, 0, 0, time.UTC)
	readings := []Reading{
		{DeviceType: DeviceSensor, ObservedAt: now.Add(-30 * time.Minute)},
		{DeviceType: DeviceSensor, ObservedAt: now.Add(-3 * time.Hour)},
		{DeviceType: DeviceActuator, ObservedAt: now.Add(-10 * time.Minute)},
		{DeviceType: DeviceSensor, ObservedAt: now.Add(-2 * time.Hour)},
	}

	recent := Sensors(readings, now.Add(-2*time.Hour))
	require.Len(t, recent, 2)
	assert.Equal(t, readings[0], recent[0])
	assert.Equal(t, readings[3], recent[1])

	assert.Len(t, Sensors(readings, time.Time{}), 3)
}

func TestDedup(t *testing.T) {
	points := []geo.Point{
		{Latitude: 38.1, Longitude: -120.45},
		{Latitude: 38.1, Longitude: -120.45},
		{Latitude: 38.1000004, Longitude: -120.4500003},
		{Latitude: 38.2, Longitude: -120.45},
	}

	exact := Dedup(points, 0)
	assert.Equal(t, []geo.Point{points[0], points[2], points[3]}, exact)

	gridded := Dedup(points, 1e-5)
	assert.Equal(t, []geo.Point{points[0], points[3]}, gridded)

	assert.Empty(t, Dedup(nil, 0))
}

func TestDedup_SignedZero(t *testing.T) {
	negZero := math.Copysign(0, -1)
	points := []geo.Point{
		{Latitude: 0, Longitude: 0},
		{Latitude: negZero, Longitude: 0},
		{Latitude: 0, Longitude: negZero},
		{Latitude: negZero, Longitude: negZero},
	}

	assert.Len(t, Dedup(points, 0), 1)
	assert.Len(t, Dedup(points, 1e-5), 1)
}

func TestPoints(t *testing.T) {
	readings := []Reading{
		{Point: geo.Point{Latitude: 1, Longitude: 2}},
		{Point: geo.Point{Latitude: 3, Longitude: 4}},
	}
	assert.Equal(t, []geo.Point{{Latitude: 1, Longitude: 2}, {Latitude: 3, Longitude: 4}}, Points(readings))
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/fireflyresponse/perimeter/internal/lib/geo"
	"github.com/fireflyresponse/perimeter/internal/logging"
)

// EnvPrefix marks environment overrides. Nested keys are joined with a
// double underscore, e.g. PERIMETER__ESTIMATION__WAYPOINT_COUNT=16.
const EnvPrefix = "PERIMETER__"

// Config represents the complete daemon configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Estimation EstimationConfig `yaml:"estimation"`
	Readings   ReadingsConfig   `yaml:"readings"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Output     OutputConfig     `yaml:"output"`
	Log        logging.Config   `yaml:"log"`
}

// ServerConfig holds listener settings
type ServerConfig struct {
	GRPCPort int    `yaml:"grpc_port" validate:"gte=0,lte=65535"`
	HTTPAddr string `yaml:"http_addr" validate:"required"`
}

// EstimationConfig controls the enclosing circle and waypoint steps
type EstimationConfig struct {
	WaypointCount   int          `yaml:"waypoint_count" validate:"gte=1,lte=3600"`
	IterationFactor int          `yaml:"iteration_factor" validate:"gte=1"`
	MaxIterations   int          `yaml:"max_iterations" validate:"gte=0"`
	Parallel        bool         `yaml:"parallel"`
	Radius          RadiusConfig `yaml:"radius"`
}

// RadiusConfig selects how a radius in degrees becomes meters
type RadiusConfig struct {
	Mode            string  `yaml:"mode" validate:"oneof=tangent fixed"`
	Policy          string  `yaml:"policy" validate:"oneof=max min meridional mean"`
	MetersPerDegree float64 `yaml:"meters_per_degree" validate:"required_if=Mode fixed,gte=0"`
}

// ReadingsConfig describes where device messages come from
type ReadingsConfig struct {
	Path string `yaml:"path" validate:"required"`

	// Window limits estimation to sensor readings this recent. Zero keeps all.
	Window       time.Duration `yaml:"window" validate:"gte=0"`
	DedupQuantum float64       `yaml:"dedup_quantum" validate:"gte=0"`

	Area AreaConfig `yaml:"area"`
}

// AreaConfig bounds where sensor readings may come from. A zero radius
// accepts readings from anywhere.
type AreaConfig struct {
	Latitude     float64 `yaml:"latitude" validate:"gte=-90,lte=90"`
	Longitude    float64 `yaml:"longitude" validate:"gte=-180,lte=180"`
	RadiusMeters float64 `yaml:"radius_meters" validate:"gte=0"`
}

// Center returns the area center, or nil when the area is disabled.
func (a AreaConfig) Center() *geo.Point {
	if a.RadiusMeters <= 0 {
		return nil
	}
	return &geo.Point{Latitude: a.Latitude, Longitude: a.Longitude}
}

// ScheduleConfig holds the periodic estimation settings
type ScheduleConfig struct {
	Interval       time.Duration `yaml:"interval" validate:"gt=0"`
	StaleThreshold time.Duration `yaml:"stale_threshold" validate:"gt=0"`
}

// OutputConfig holds export settings. An empty directory disables file output.
type OutputConfig struct {
	Directory string `yaml:"directory"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			GRPCPort: 9090,
			HTTPAddr: ":8080",
		},
		Estimation: EstimationConfig{
			WaypointCount:   10,
			IterationFactor: 10,
			Radius: RadiusConfig{
				Mode:   "tangent",
				Policy: geo.ScaleMaximum.String(),
			},
		},
		Readings: ReadingsConfig{
			Path:   "readings.geojson",
			Window: 2 * time.Hour, // Matches the alert retention of the device feed
		},
		Schedule: ScheduleConfig{
			Interval:       time.Minute,
			StaleThreshold: 5 * time.Minute,
		},
		Log: logging.Config{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load layers the defaults, an optional YAML file and PERIMETER__ environment
// overrides, then validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// RadiusConverter builds the converter described by the radius settings.
func (c EstimationConfig) RadiusConverter(e geo.Ellipsoid) (geo.RadiusConverter, error) {
	return geo.NewRadiusConverter(e, c.Radius.Mode, c.Radius.Policy, c.Radius.MetersPerDegree)
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

package services

import (
	"context"
	"fmt"
	"os"

	"github.com/fireflyresponse/perimeter/internal/lib/readings"
)

// ReadingSource supplies the device messages for one estimation cycle.
type ReadingSource interface {
	Readings(ctx context.Context) (readings.Batch, error)
}

// FileSource reads a GeoJSON FeatureCollection or newline-delimited feed
// from disk on every call.
type FileSource struct {
	Path string
}

// NewFileSource creates a source for the feed at path
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

func (s *FileSource) Readings(ctx context.Context) (readings.Batch, error) {
	if err := ctx.Err(); err != nil {
		return readings.Batch{}, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return readings.Batch{}, fmt.Errorf("failed to read feed %s: %w", s.Path, err)
	}
	return readings.ParseFeed(data)
}

// StaticSource serves a fixed batch. Useful for one-shot runs and tests.
type StaticSource struct {
	Batch readings.Batch
}

func (s StaticSource) Readings(ctx context.Context) (readings.Batch, error) {
	return s.Batch, ctx.Err()
}

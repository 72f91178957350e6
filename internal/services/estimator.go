package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/fireflyresponse/perimeter/internal/cache"
	"github.com/fireflyresponse/perimeter/internal/lib/geo"
	"github.com/fireflyresponse/perimeter/internal/lib/perimeter"
	"github.com/fireflyresponse/perimeter/internal/lib/readings"
	"github.com/fireflyresponse/perimeter/internal/logging"
	"github.com/fireflyresponse/perimeter/internal/observability"
)

// HealthServiceName is the gRPC health service reported by the daemon.
const HealthServiceName = "perimeter.v1.Estimator"

// HealthUpdater is satisfied by *health.Server from google.golang.org/grpc/health.
type HealthUpdater interface {
	SetServingStatus(service string, status healthpb.HealthCheckResponse_ServingStatus)
}

// EstimatorOptions tunes an EstimatorService. Zero values are valid.
type EstimatorOptions struct {
	// Window keeps only sensor readings this recent. Zero keeps all.
	Window time.Duration

	// DedupQuantum compares locations on a grid of this many degrees. Zero
	// requires exact matches.
	DedupQuantum float64

	// StaleThreshold is how long a cached estimate counts as fresh.
	StaleThreshold time.Duration

	// Area, when set, drops sensor points farther than AreaRadiusMeters from
	// it.
	Area             *geo.Point
	AreaRadiusMeters float64

	Sinks   []WaypointSink
	Metrics *observability.EstimatorCollector
	Health  HealthUpdater
}

// EstimatorService runs estimation cycles: load readings, filter and
// deduplicate them, estimate the boundary and publish it.
type EstimatorService struct {
	source    ReadingSource
	estimator *perimeter.Estimator
	cache     *cache.Cache
	opts      EstimatorOptions
	geoUtils  geo.GeoUtils

	now func() time.Time

	// Cycles never overlap
	cycleMu sync.Mutex

	// Health state, readable while a cycle is in flight
	stateMu       sync.Mutex
	lastErr       error
	lastCompleted time.Time
}

// CachedEstimate is the latest estimate with its age classification.
type CachedEstimate struct {
	Estimate perimeter.Estimate
	CachedAt time.Time

	// Stale is set past StaleThreshold, Expired past twice that.
	Stale   bool
	Expired bool
}

// NewEstimatorService creates a new estimator service
func NewEstimatorService(source ReadingSource, estimator *perimeter.Estimator, c *cache.Cache, opts EstimatorOptions) *EstimatorService {
	if opts.StaleThreshold <= 0 {
		opts.StaleThreshold = 5 * time.Minute
	}
	return &EstimatorService{
		source:    source,
		estimator: estimator,
		cache:     c,
		opts:      opts,
		geoUtils:  geo.NewGeoUtils(),
		now:       time.Now,
	}
}

// RunCycle performs one estimation. It returns a nil estimate and no error
// when the window holds no sensor readings.
func (s *EstimatorService) RunCycle(ctx context.Context) (*perimeter.Estimate, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	start := s.now()
	estimate, result, err := s.runCycle(ctx, start)
	s.opts.Metrics.ObserveCycle(result, s.now().Sub(start))

	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.lastErr = err
	if err == nil {
		s.lastCompleted = s.now()
	}
	s.refreshHealth()
	return estimate, err
}

func (s *EstimatorService) runCycle(ctx context.Context, now time.Time) (*perimeter.Estimate, string, error) {
	batch, err := s.source.Readings(ctx)
	if err != nil {
		logging.Errorw(ctx, "Failed to load readings", "error", err)
		return nil, observability.ResultError, fmt.Errorf("failed to load readings: %w", err)
	}
	if batch.Skipped > 0 {
		s.opts.Metrics.ObserveSkipped(batch.Skipped)
		logging.Warnw(ctx, "Skipped invalid readings", "skipped", batch.Skipped, "error", errors.Join(batch.Errors...))
	}

	var since time.Time
	if s.opts.Window > 0 {
		since = now.Add(-s.opts.Window)
	}
	sensors := readings.Sensors(batch.Readings, since)
	points := readings.Points(sensors)
	if s.opts.Area != nil && s.opts.AreaRadiusMeters > 0 {
		inside, err := s.geoUtils.FilterPointsByDistance(points, *s.opts.Area, s.opts.AreaRadiusMeters)
		if err != nil {
			return nil, observability.ResultError, fmt.Errorf("failed to filter readings by area: %w", err)
		}
		if dropped := len(points) - len(inside); dropped > 0 {
			logging.Warnw(ctx, "Dropped sensor readings outside the area", "dropped", dropped, "radius_m", s.opts.AreaRadiusMeters)
		}
		points = inside
	}
	points = readings.Dedup(points, s.opts.DedupQuantum)

	if len(points) == 0 {
		logging.Infow(ctx, "No sensor readings in window", "readings", len(batch.Readings), "window", s.opts.Window)
		return nil, observability.ResultEmpty, nil
	}

	ctx = logging.Track(ctx, "points", len(points))

	estimate, err := s.estimator.Estimate(points)
	if err != nil {
		if errors.Is(err, geo.ErrGeodesicNonConvergence) {
			s.opts.Metrics.ObserveGeodesicFailure()
		}
		logging.Errorw(ctx, "Estimation failed", "error", err)
		return nil, observability.ResultError, fmt.Errorf("failed to estimate perimeter: %w", err)
	}

	if estimate.Approximate {
		logging.Warnw(ctx, "Enclosing circle hit the iteration cap; boundary is approximate",
			"iterations", estimate.Iterations)
	}
	s.opts.Metrics.ObserveEstimate(estimate.PointCount, estimate.Iterations, estimate.Approximate, estimate.RadiusMeters)

	if mean, farthest, err := s.geoUtils.SpreadFrom(estimate.Center, estimate.Path()); err == nil {
		logging.Infow(ctx, "Estimated perimeter",
			"radius_m", estimate.RadiusMeters,
			"waypoint_mean_m", mean,
			"waypoint_max_m", farthest,
			"iterations", estimate.Iterations)
	}

	if s.cache != nil {
		if err := s.cache.SetLatestEstimate(estimate, s.opts.StaleThreshold); err != nil {
			logging.Errorw(ctx, "Failed to cache estimate", "error", err)
		}
	}

	var publishErrs []error
	for _, sink := range s.opts.Sinks {
		if err := sink.Publish(ctx, estimate); err != nil {
			logging.Errorw(ctx, "Failed to publish estimate", "sink", fmt.Sprintf("%T", sink), "error", err)
			publishErrs = append(publishErrs, err)
		}
	}
	if len(publishErrs) > 0 {
		return &estimate, observability.ResultError, fmt.Errorf("failed to publish estimate: %w", errors.Join(publishErrs...))
	}

	return &estimate, observability.ResultOK, nil
}

// Latest returns the most recent estimate. Found is false until a cycle
// succeeds.
func (s *EstimatorService) Latest() (CachedEstimate, bool, error) {
	if s.cache == nil {
		return CachedEstimate{}, false, nil
	}
	estimate, entry, found, err := s.cache.LatestEstimate()
	if err != nil || !found {
		return CachedEstimate{}, found, err
	}
	return CachedEstimate{
		Estimate: estimate,
		CachedAt: entry.CreatedAt,
		Stale:    s.cache.IsStale(cache.LatestEstimateKey),
		Expired:  s.cache.IsVeryStale(cache.LatestEstimateKey),
	}, true, nil
}

// RefreshHealth re-evaluates the serving status. The service is serving once
// a cycle has completed without error within twice the stale threshold. It
// does not wait for an in-flight cycle.
func (s *EstimatorService) RefreshHealth() {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.refreshHealth()
}

func (s *EstimatorService) refreshHealth() {
	if s.opts.Health == nil {
		return
	}
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if s.lastErr == nil && !s.lastCompleted.IsZero() &&
		s.now().Sub(s.lastCompleted) <= 2*s.opts.StaleThreshold {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.opts.Health.SetServingStatus("", status)
	s.opts.Health.SetServingStatus(HealthServiceName, status)
}

// Package observability exposes Prometheus metrics for the estimation cycle.
package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cycle outcomes used as the result label of estimation_cycles_total.
const (
	ResultOK    = "ok"
	ResultEmpty = "empty"
	ResultError = "error"
)

// EstimatorCollector bundles the estimation metrics and serves them over HTTP.
type EstimatorCollector struct {
	gatherer prometheus.Gatherer

	Cycles          *prometheus.CounterVec
	CycleDuration   prometheus.Histogram
	Points          prometheus.Gauge
	ReadingsSkipped prometheus.Counter
	MECIterations   prometheus.Histogram
	MECApproximate  prometheus.Counter
	GeodesicFailure prometheus.Counter
	RadiusMeters    prometheus.Gauge
}

// NewEstimatorCollector registers the estimation metrics against reg,
// defaulting to the global registry when nil. Registering twice against the
// same registry returns the existing collectors.
func NewEstimatorCollector(reg prometheus.Registerer) (*EstimatorCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	cycles, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "estimation_cycles_total",
		Help: "Estimation cycles run, labeled by result (ok, empty, error).",
	}, []string{"result"}), "estimation_cycles_total")
	if err != nil {
		return nil, err
	}

	duration, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "estimation_cycle_duration_seconds",
		Help:    "Wall time of one estimation cycle in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}), "estimation_cycle_duration_seconds")
	if err != nil {
		return nil, err
	}

	points, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "estimation_points",
		Help: "Distinct alert locations used by the last estimate.",
	}), "estimation_points")
	if err != nil {
		return nil, err
	}

	skipped, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "readings_skipped_total",
		Help: "Feed records rejected during parsing.",
	}), "readings_skipped_total")
	if err != nil {
		return nil, err
	}

	iterations, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mec_iterations",
		Help:    "Pivot iterations used by the enclosing circle search.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}), "mec_iterations")
	if err != nil {
		return nil, err
	}

	approximate, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mec_approximate_total",
		Help: "Enclosing circle searches stopped by the iteration cap.",
	}), "mec_approximate_total")
	if err != nil {
		return nil, err
	}

	geodesic, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geodesic_failures_total",
		Help: "Cycles aborted because a direct geodesic did not converge.",
	}), "geodesic_failures_total")
	if err != nil {
		return nil, err
	}

	radius, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "estimation_radius_meters",
		Help: "Radius of the last estimated boundary in meters.",
	}), "estimation_radius_meters")
	if err != nil {
		return nil, err
	}

	return &EstimatorCollector{
		gatherer:        gatherer,
		Cycles:          cycles,
		CycleDuration:   duration,
		Points:          points,
		ReadingsSkipped: skipped,
		MECIterations:   iterations,
		MECApproximate:  approximate,
		GeodesicFailure: geodesic,
		RadiusMeters:    radius,
	}, nil
}

// ObserveCycle records the outcome and duration of a cycle.
func (c *EstimatorCollector) ObserveCycle(result string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.Cycles.WithLabelValues(result).Inc()
	c.CycleDuration.Observe(elapsed.Seconds())
}

// ObserveEstimate records the shape of a successful estimate.
func (c *EstimatorCollector) ObserveEstimate(points, iterations int, approximate bool, radiusMeters float64) {
	if c == nil {
		return
	}
	c.Points.Set(float64(points))
	c.MECIterations.Observe(float64(iterations))
	if approximate {
		c.MECApproximate.Inc()
	}
	c.RadiusMeters.Set(radiusMeters)
}

func (c *EstimatorCollector) ObserveSkipped(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.ReadingsSkipped.Add(float64(n))
}

func (c *EstimatorCollector) ObserveGeodesicFailure() {
	if c == nil {
		return
	}
	c.GeodesicFailure.Inc()
}

// Handler exposes a ready-to-use /metrics handler.
func (c *EstimatorCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func register[T prometheus.Collector](reg prometheus.Registerer, collector T, name string) (T, error) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return collector, nil
}

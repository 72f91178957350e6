package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/fireflyresponse/perimeter/internal/cache"
	"github.com/fireflyresponse/perimeter/internal/config"
	"github.com/fireflyresponse/perimeter/internal/lib/geo"
	"github.com/fireflyresponse/perimeter/internal/lib/perimeter"
	"github.com/fireflyresponse/perimeter/internal/lib/waypoints"
	"github.com/fireflyresponse/perimeter/internal/logging"
	"github.com/fireflyresponse/perimeter/internal/observability"
	"github.com/fireflyresponse/perimeter/internal/services"
)

func main() {
	configPath := flag.String("config", os.Getenv("PERIMETER_CONFIG"), "Path to YAML configuration")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatalf("perimeter: %v", err)
	}
}

func run(configPath string) error {
	appConfig, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(appConfig.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.With(ctx, logger)

	// Initialize cache; the latest estimate survives cleanup so it can be served stale
	cacheInstance := cache.NewCache()
	cacheInstance.StartPeriodicCleanup(ctx, appConfig.Schedule.StaleThreshold, cache.LatestEstimateKey)

	metrics, err := observability.NewEstimatorCollector(nil)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	converter, err := appConfig.Estimation.RadiusConverter(geo.WGS84)
	if err != nil {
		return fmt.Errorf("failed to configure radius conversion: %w", err)
	}
	generator := waypoints.NewGenerator(geo.WGS84, converter)
	generator.Parallel = appConfig.Estimation.Parallel

	estimator := perimeter.NewEstimator(generator)
	estimator.WaypointCount = appConfig.Estimation.WaypointCount
	estimator.IterationFactor = appConfig.Estimation.IterationFactor
	estimator.MaxIterations = appConfig.Estimation.MaxIterations

	sinks := []services.WaypointSink{services.LogSink{}}
	if dir := appConfig.Output.Directory; dir != "" {
		dirSink, err := services.NewDirectorySink(dir)
		if err != nil {
			return err
		}
		sinks = append(sinks, dirSink)
	}

	healthServer := health.NewServer()

	estimatorService := services.NewEstimatorService(
		services.NewFileSource(appConfig.Readings.Path),
		estimator,
		cacheInstance,
		services.EstimatorOptions{
			Window:           appConfig.Readings.Window,
			DedupQuantum:     appConfig.Readings.DedupQuantum,
			StaleThreshold:   appConfig.Schedule.StaleThreshold,
			Area:             appConfig.Readings.Area.Center(),
			AreaRadiusMeters: appConfig.Readings.Area.RadiusMeters,
			Sinks:            sinks,
			Metrics:          metrics,
			Health:           healthServer,
		},
	)
	estimatorService.RefreshHealth()

	// gRPC health and reflection
	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", appConfig.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen for gRPC: %w", err)
	}
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logging.Errorw(ctx, "gRPC server stopped", "error", err)
		}
	}()

	httpServer := &http.Server{
		Addr:              appConfig.Server.HTTPAddr,
		Handler:           services.NewHTTPHandler(estimatorService, metrics.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Errorw(ctx, "HTTP server stopped", "error", err)
			stop()
		}
	}()

	logging.Infow(ctx, "Perimeter server starting",
		"http_addr", appConfig.Server.HTTPAddr,
		"grpc_port", appConfig.Server.GRPCPort,
		"readings", appConfig.Readings.Path,
		"interval", appConfig.Schedule.Interval,
		"waypoints", appConfig.Estimation.WaypointCount)

	runner := services.NewPeriodicRunner(estimatorService, appConfig.Schedule.Interval, 0)
	if err := runner.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logging.Infow(ctx, "Shutting down")

	runner.Stop()
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Warnw(ctx, "HTTP shutdown incomplete", "error", err)
	}
	grpcServer.GracefulStop()

	return nil
}

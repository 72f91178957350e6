package services

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dpup/prefab/errors"

	"github.com/fireflyresponse/perimeter/internal/lib/perimeter"
	"github.com/fireflyresponse/perimeter/internal/logging"
)

// Cycler runs one unit of periodic work.
type Cycler interface {
	RunCycle(ctx context.Context) (*perimeter.Estimate, error)
}

// HealthRefresher re-evaluates serving status without waiting for a cycle.
type HealthRefresher interface {
	RefreshHealth()
}

// PeriodicRunner re-runs estimation on a fixed interval so the published
// boundary follows the alert feed.
type PeriodicRunner struct {
	cycler   Cycler
	interval time.Duration
	timeout  time.Duration

	// Background refresh control
	mu       sync.Mutex
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
}

// NewPeriodicRunner creates a runner. Each cycle is bounded by timeout, or
// by the interval when timeout is zero.
func NewPeriodicRunner(cycler Cycler, interval, timeout time.Duration) *PeriodicRunner {
	if timeout <= 0 {
		timeout = interval
	}
	return &PeriodicRunner{
		cycler:   cycler,
		interval: interval,
		timeout:  timeout,
	}
}

// Start begins the refresh loop. The first cycle runs immediately. When the
// cycler is also a HealthRefresher, its health is re-checked every interval
// on a separate goroutine so a hung cycle still turns the service unhealthy.
func (p *PeriodicRunner) Start(ctx context.Context) error {
	if p.interval <= 0 {
		return fmt.Errorf("invalid refresh interval %v", p.interval)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil // Already running
	}

	p.running = true
	p.stopChan = make(chan struct{})

	logging.Infow(ctx, "Starting periodic estimation", "interval", p.interval)

	p.wg.Add(1)
	go p.refreshLoop(ctx, p.stopChan)

	if refresher, ok := p.cycler.(HealthRefresher); ok {
		p.wg.Add(1)
		go p.healthLoop(ctx, p.stopChan, refresher)
	}
	return nil
}

// Stop ends the loop and waits for an in-flight cycle to finish
func (p *PeriodicRunner) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopChan)
	p.mu.Unlock()

	p.wg.Wait()
}

// IsRunning returns whether the loop is active
func (p *PeriodicRunner) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *PeriodicRunner) refreshLoop(ctx context.Context, stop <-chan struct{}) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			logging.Infow(ctx, "Periodic estimation stopping due to context cancellation")
			p.mu.Lock()
			p.running = false
			p.mu.Unlock()
			return
		case <-stop:
			logging.Infow(ctx, "Periodic estimation stopping due to stop signal")
			return
		case <-ticker.C:
			p.runCycle(ctx)
		}
	}
}

// runCycle runs one bounded cycle. A panic is logged and the loop continues.
func (p *PeriodicRunner) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			err, _ := errors.ParseStack(debug.Stack())
			skipFrames := 3
			numFrames := 5
			logging.Errorw(ctx, "Periodic estimation: recovered from panic",
				"error", r, "error.stack_trace", err.MinimalStack(skipFrames, numFrames))
		}
	}()

	cycleCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if _, err := p.cycler.RunCycle(cycleCtx); err != nil {
		logging.Warnw(ctx, "Periodic estimation cycle failed", "error", err)
	}
}

func (p *PeriodicRunner) healthLoop(ctx context.Context, stop <-chan struct{}, refresher HealthRefresher) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			refresher.RefreshHealth()
		}
	}
}

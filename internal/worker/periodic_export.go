package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// PeriodicExporter re-exports every trip on a fixed interval. It covers
// events lost while the worker was down or the broker unavailable.
type PeriodicExporter struct {
	worker   *ExportWorker
	interval time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewPeriodicExporter(worker *ExportWorker, interval time.Duration) *PeriodicExporter {
	return &PeriodicExporter{
		worker:   worker,
		interval: interval,
	}
}

// Start begins the export loop. Returns an error if already running.
func (p *PeriodicExporter) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("periodic exporter is already running")
	}
	if p.interval <= 0 {
		p.mu.Unlock()
		return fmt.Errorf("invalid export interval %v", p.interval)
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	go p.runLoop(ctx, stopCh, doneCh)

	slog.InfoContext(ctx, "Periodic exporter started", "interval", p.interval)
	return nil
}

// Stop stops the loop and waits for the current pass to finish.
func (p *PeriodicExporter) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.running = false
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Periodic exporter stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Periodic exporter stop timed out")
		return ctx.Err()
	}
}

func (p *PeriodicExporter) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// runLoop owns stopCh and doneCh of one run; a later Start gets new ones.
func (p *PeriodicExporter) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Export immediately on startup
	p.exportPass(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.exportPass(ctx)
		}
	}
}

func (p *PeriodicExporter) exportPass(ctx context.Context) {
	if err := p.worker.ExportAll(ctx); err != nil {
		slog.ErrorContext(ctx, "Periodic export pass had failures", "error", err)
	}
}

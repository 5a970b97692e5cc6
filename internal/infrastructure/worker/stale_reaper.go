package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Reaper releases records a crashed robot run left in Processando
type Reaper interface {
	ReapStale(ctx context.Context, staleAfter time.Duration) (int, error)
}

// StaleReaperConfig holds configuration for the stale reaper
type StaleReaperConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
}

// DefaultStaleReaperConfig returns default configuration
func DefaultStaleReaperConfig() StaleReaperConfig {
	return StaleReaperConfig{
		Interval:   5 * time.Minute,
		StaleAfter: 30 * time.Minute,
	}
}

// StaleReaper periodically moves abandoned in-progress records back to
// Pendente so the next run picks them up.
type StaleReaper struct {
	config StaleReaperConfig
	reaper Reaper
	logger *zap.Logger

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	done      chan struct{}
	released  int
}

// NewStaleReaper creates a new stale reaper
func NewStaleReaper(config StaleReaperConfig, reaper Reaper, logger *zap.Logger) *StaleReaper {
	return &StaleReaper{
		config: config,
		reaper: reaper,
		logger: logger,
	}
}

func (w *StaleReaper) Name() string { return "stale_reaper" }

// Start runs one sweep immediately, then one per interval.
func (w *StaleReaper) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isRunning {
		return fmt.Errorf("stale reaper already running")
	}
	if w.config.Interval <= 0 {
		return fmt.Errorf("stale reaper interval must be positive")
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.isRunning = true

	w.logger.Info("StaleReaper started",
		zap.Duration("interval", w.config.Interval),
		zap.Duration("stale_after", w.config.StaleAfter))

	go w.loop(runCtx, w.done)
	return nil
}

// Stop cancels the loop and waits for an in-flight sweep to finish
func (w *StaleReaper) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	w.logger.Info("StaleReaper stopped", zap.Int("released", w.Released()))
	return nil
}

// Released returns how many records were released since start
func (w *StaleReaper) Released() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.released
}

func (w *StaleReaper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *StaleReaper) sweep(ctx context.Context) {
	n, err := w.reaper.ReapStale(ctx, w.config.StaleAfter)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("Stale sweep failed", zap.Error(err))
		}
		return
	}
	if n > 0 {
		w.mu.Lock()
		w.released += n
		w.mu.Unlock()
	}
}

package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultSweepInterval = 5 * time.Minute
	DefaultMaxAge        = 30 * time.Minute
)

// Sweeper periodically deletes entries of both areas whose modification
// time is older than maxAge. It reclaims whatever a lost timer, a crash or
// an abandoned request left behind.
type Sweeper struct {
	store    *Store
	interval time.Duration
	maxAge   time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewSweeper returns a stopped sweeper. Non-positive durations take the
// defaults.
func NewSweeper(s *Store, interval, maxAge time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{store: s, interval: interval, maxAge: maxAge, logger: logger}
}

// Start runs the sweep loop on its own goroutine until ctx is cancelled
// or Stop is called. Calling Start again while running does nothing.
func (w *Sweeper) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.started = true
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	ticker := w.store.clock.NewTicker(w.interval)
	go func() {
		defer close(w.done)
		defer ticker.Stop()
		w.logger.Info("sweeper started",
			zap.Duration("interval", w.interval),
			zap.Duration("max_age", w.maxAge))
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				w.SweepOnce()
			}
		}
	}()
}

// Stop cancels the loop and waits for it to exit.
func (w *Sweeper) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// SweepOnce deletes every expired entry now and reports each deletion.
func (w *Sweeper) SweepOnce() []CleanupResult {
	cutoff := w.store.clock.Now().Add(-w.maxAge)
	var results []CleanupResult
	for _, area := range []Area{Uploads, Outputs} {
		dir := w.store.Dir(area)
		entries, err := os.ReadDir(dir)
		if err != nil {
			w.logger.Warn("sweep: read dir", zap.String("dir", dir), zap.Error(err))
			continue
		}
		for _, e := range entries {
			info, err := e.Info()
			if err != nil {
				// Removed between listing and stat.
				continue
			}
			if info.ModTime().Before(cutoff) {
				results = append(results, w.store.RemoveNow(filepath.Join(dir, e.Name()), ReasonSweep))
			}
		}
	}
	w.store.metrics.swept.Inc()
	if len(results) > 0 {
		w.logger.Info("sweep finished", zap.Int("removed", len(results)))
	}
	return results
}

package mirror

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Flusher periodically writes a dirty mirror to disk.
type Flusher struct {
	store    *Store
	path     string
	interval time.Duration
	logger   *zap.Logger

	cancel context.CancelFunc
	done   sync.WaitGroup
}

// NewFlusher creates a flusher writing store to path every interval.
func NewFlusher(store *Store, path string, interval time.Duration, logger *zap.Logger) *Flusher {
	return &Flusher{
		store:    store,
		path:     path,
		interval: interval,
		logger:   logger,
	}
}

// Start begins the flush loop.
func (f *Flusher) Start(ctx context.Context) {
	ctx, f.cancel = context.WithCancel(ctx)
	f.done.Go(func() { f.loop(ctx) })
}

// Stop ends the loop and performs a final flush.
func (f *Flusher) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
	f.done.Wait()
	f.Flush()
}

func (f *Flusher) loop(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.Flush()
		case <-ctx.Done():
			return
		}
	}
}

// Flush writes the mirror if it changed since the last write.
func (f *Flusher) Flush() {
	if !f.store.Dirty() {
		return
	}
	if err := f.store.WriteToFile(f.path); err != nil {
		f.logger.Error("failed to write mirror", zap.Error(err), zap.String("path", f.path))
		return
	}
	f.logger.Debug("mirror written", zap.String("path", f.path))
}

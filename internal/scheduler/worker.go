package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Dispatcher announces scheduled rides whose time has come.
type Dispatcher interface {
	DispatchDueScheduled(ctx context.Context) (int, error)
}

// Worker activates scheduled rides on a fixed interval
type Worker struct {
	dispatcher Dispatcher
	interval   time.Duration
	logger     *zap.Logger
	done       chan struct{}
	stopOnce   sync.Once
}

// NewWorker creates a new scheduler worker
func NewWorker(dispatcher Dispatcher, interval time.Duration, logger *zap.Logger) *Worker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Worker{
		dispatcher: dispatcher,
		interval:   interval,
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Start runs the activation loop until ctx is cancelled or Stop is called
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Starting scheduled ride worker", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Run immediately on start
	w.processScheduledRides(ctx)

	for {
		select {
		case <-ticker.C:
			w.processScheduledRides(ctx)
		case <-ctx.Done():
			w.logger.Info("Scheduled ride worker stopped")
			return
		case <-w.done:
			w.logger.Info("Scheduled ride worker shutdown requested")
			return
		}
	}
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Worker) processScheduledRides(ctx context.Context) {
	count, err := w.dispatcher.DispatchDueScheduled(ctx)
	if err != nil {
		w.logger.Error("Failed to dispatch scheduled rides", zap.Error(err))
		return
	}
	if count == 0 {
		w.logger.Debug("No scheduled rides due")
		return
	}
	w.logger.Info("Dispatched scheduled rides", zap.Int("count", count))
}

package notifications

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/ridecore/pkg/config"
	"github.com/richxcame/ridecore/pkg/logger"
	"go.uber.org/zap"
)

// Dispatcher drains committed outbox events into a Sink.
type Dispatcher struct {
	repo        OutboxRepository
	sink        Sink
	interval    time.Duration
	batchSize   int
	maxAttempts int
	sendTimeout time.Duration
}

func NewDispatcher(repo OutboxRepository, sink Sink, cfg config.OutboxConfig) *Dispatcher {
	return &Dispatcher{
		repo:        repo,
		sink:        sink,
		interval:    cfg.PollInterval(),
		batchSize:   cfg.BatchSize,
		maxAttempts: cfg.MaxAttempts,
		sendTimeout: cfg.SendTimeout(),
	}
}

// Run polls until ctx is cancelled. A full batch is followed immediately by another poll.
func (d *Dispatcher) Run(ctx context.Context) {
	logger.Info("outbox dispatcher started",
		zap.Duration("interval", d.interval),
		zap.Int("batch_size", d.batchSize),
	)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("outbox dispatcher stopped")
			return
		case <-ticker.C:
		}

		for {
			n, err := d.DispatchOnce(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Error("outbox dispatch failed", zap.Error(err))
				}
				break
			}
			if n < d.batchSize {
				break
			}
		}
	}
}

// DispatchOnce claims and delivers a single batch, returning how many events it claimed.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	n, err := d.repo.ClaimBatch(ctx, d.batchSize, func(events []*Event) []Outcome {
		outcomes := make([]Outcome, 0, len(events))
		for _, ev := range events {
			outcomes = append(outcomes, d.deliver(ctx, ev))
		}
		return outcomes
	})
	if n > 0 {
		outboxBatchSize.Observe(float64(n))
	}
	return n, err
}

func (d *Dispatcher) deliver(ctx context.Context, ev *Event) Outcome {
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	err := d.send(sendCtx, ev)
	if err == nil {
		outboxDeliveredTotal.WithLabelValues(ev.Name).Inc()
		return Outcome{ID: ev.ID}
	}

	giveUp := ev.Attempts+1 >= d.maxAttempts || isPermanent(err)
	outboxFailedTotal.WithLabelValues(ev.Name, strconv.FormatBool(giveUp)).Inc()
	logger.Warn("outbox event delivery failed",
		zap.String("event_id", ev.ID.String()),
		zap.String("event", ev.Name),
		zap.String("target", ev.Target),
		zap.Int("attempt", ev.Attempts+1),
		zap.Bool("gave_up", giveUp),
		zap.Error(err),
	)
	return Outcome{ID: ev.ID, Err: err, GiveUp: giveUp}
}

func (d *Dispatcher) send(ctx context.Context, ev *Event) error {
	switch ev.TargetKind {
	case TargetUser:
		userID, err := uuid.Parse(ev.Target)
		if err != nil {
			return permanentError{fmt.Errorf("invalid user target %q: %w", ev.Target, err)}
		}
		return d.sink.NotifyUser(ctx, userID, ev.Name, ev.Payload)
	case TargetRoom:
		return d.sink.NotifyRoom(ctx, ev.Target, ev.Name, ev.Payload)
	default:
		return permanentError{fmt.Errorf("%w: %q", errUnknownTarget, ev.TargetKind)}
	}
}

// permanentError marks failures that will not succeed on retry.
type permanentError struct{ error }

func (e permanentError) Unwrap() error { return e.error }

func isPermanent(err error) bool {
	_, ok := err.(permanentError)
	return ok
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

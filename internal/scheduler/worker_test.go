package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

type countingDispatcher struct {
	calls atomic.Int32
	err   error
}

func (d *countingDispatcher) DispatchDueScheduled(context.Context) (int, error) {
	d.calls.Add(1)
	if d.err != nil {
		return 0, d.err
	}
	return 1, nil
}

func TestWorkerRunsImmediatelyAndOnTick(t *testing.T) {
	d := &countingDispatcher{}
	w := NewWorker(d, 10*time.Millisecond, zaptest.NewLogger(t))

	done := make(chan struct{})
	go func() {
		w.Start(context.Background())
		close(done)
	}()

	assert.Eventually(t, func() bool { return d.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	w.Stop()
	w.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorkerStopsOnContextCancel(t *testing.T) {
	d := &countingDispatcher{err: errors.New("database is down")}
	w := NewWorker(d, time.Hour, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return d.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestNewWorkerDefaultsInterval(t *testing.T) {
	w := NewWorker(&countingDispatcher{}, 0, zaptest.NewLogger(t))
	assert.Equal(t, time.Minute, w.interval)
}

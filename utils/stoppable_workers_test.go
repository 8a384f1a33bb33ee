package utils

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
	"go.viam.com/test"
)

func TestStoppableWorkers(t *testing.T) {
	started := make(chan struct{})
	workers := NewStoppableWorkers(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	})
	<-started
	workers.Stop()
	test.That(t, workers.Context().Err(), test.ShouldNotBeNil)

	// Adding after stop is a no-op.
	ran := atomic.NewBool(false)
	workers.AddWorkers(func(context.Context) { ran.Store(true) })
	workers.Stop()
	test.That(t, ran.Load(), test.ShouldBeFalse)
}

func TestTickerWorker(t *testing.T) {
	mockClock := clock.NewMock()
	ticks := make(chan time.Time, 10)
	workers := NewTickerWorker(mockClock, 100*time.Millisecond, func(_ context.Context, now time.Time) {
		ticks <- now
	})
	defer workers.Stop()

	// The ticker is created inside the worker goroutine; keep advancing until it fires.
	deadline := time.After(5 * time.Second)
	for {
		mockClock.Add(100 * time.Millisecond)
		select {
		case <-ticks:
			return
		case <-deadline:
			t.Fatal("ticker worker never ran")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunTicksAtFixedRateAndStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var ticks int32
	done := make(chan struct{})

	go func() {
		Run(ctx, 10*time.Millisecond, func(ctx context.Context) {
			n := atomic.AddInt32(&ticks, 1)
			if n >= 3 {
				cancel()
			}
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	if atomic.LoadInt32(&ticks) < 3 {
		t.Fatalf("expected at least 3 ticks, got %d", ticks)
	}
}

func TestRunStopsImmediatelyOnAlreadyCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ticks int32
	Run(ctx, time.Hour, func(ctx context.Context) {
		atomic.AddInt32(&ticks, 1)
	})

	if atomic.LoadInt32(&ticks) != 0 {
		t.Fatalf("expected no ticks when context already cancelled, got %d", ticks)
	}
}

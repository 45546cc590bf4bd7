package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestRevalidationJobTicksAndStops(t *testing.T) {
	var ticks atomic.Int32
	job := StartRevalidationJob(context.Background(), 10*time.Millisecond, time.Second, nil, func(ctx context.Context) {
		if _, ok := ctx.Deadline(); !ok {
			t.Errorf("expected tick context with deadline")
		}
		ticks.Add(1)
	})

	deadline := time.After(2 * time.Second)
	for ticks.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 ticks, got %d", ticks.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	job.Stop()
	job.Stop()
	select {
	case <-job.Done():
	case <-time.After(time.Second):
		t.Fatalf("job did not stop")
	}
	after := ticks.Load()
	time.Sleep(40 * time.Millisecond)
	if ticks.Load() != after {
		t.Fatalf("expected no ticks after stop")
	}
}

func TestRevalidationJobStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	job := StartRevalidationJob(ctx, time.Hour, 0, nil, func(context.Context) {})
	cancel()
	select {
	case <-job.Done():
	case <-time.After(time.Second):
		t.Fatalf("job did not stop on context cancel")
	}
}

package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	applogger "DualSignal/pkg/logger"
)

func TestSchedulerSkipsOverlappingRuns(t *testing.T) {
	s := New(applogger.Nop(), time.UTC)
	var started, overlapped atomic.Int32
	var running atomic.Bool
	release := make(chan struct{})

	job := jobFunc{name: "slow", fn: func(ctx context.Context, _ time.Time) error {
		if !running.CompareAndSwap(false, true) {
			overlapped.Add(1)
		}
		started.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		running.Store(false)
		return nil
	}}
	if err := s.Add("@every 1s", job); err != nil {
		t.Fatalf("add: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(3500 * time.Millisecond)
	close(release)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if started.Load() != 1 {
		t.Fatalf("expected one started run while the first was busy, got %d", started.Load())
	}
	if overlapped.Load() != 0 {
		t.Fatalf("runs overlapped")
	}
}

func TestSchedulerRecoversFromFailingJob(t *testing.T) {
	s := New(applogger.Nop(), time.UTC)
	var runs atomic.Int32
	job := jobFunc{name: "flaky", fn: func(context.Context, time.Time) error {
		if runs.Add(1) == 1 {
			panic("boom")
		}
		return errors.New("storage unavailable")
	}}
	if err := s.Add("@every 1s", job); err != nil {
		t.Fatalf("add: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()
	_ = s.Run(ctx)
	if runs.Load() < 2 {
		t.Fatalf("job should keep firing after panic and error, runs=%d", runs.Load())
	}
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := New(applogger.Nop(), time.UTC)
	if err := s.Add("not a spec", jobFunc{name: "x"}); err == nil {
		t.Fatalf("expected parse error")
	}
}

package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeMaintainer struct {
	purgeFn func(ctx context.Context) (int, error)
}

func (f *fakeMaintainer) PurgeExpiredFailed(ctx context.Context) (int, error) {
	if f.purgeFn != nil {
		return f.purgeFn(ctx)
	}
	return 0, nil
}

type fakeMaintainerWithDepths struct {
	fakeMaintainer
	depthsFn func(ctx context.Context) (int64, int64, int64, error)
}

func (f *fakeMaintainerWithDepths) Depths(ctx context.Context) (int64, int64, int64, error) {
	if f.depthsFn != nil {
		return f.depthsFn(ctx)
	}
	return 0, 0, 0, nil
}

func TestJanitorSweepPurgesAndReportsDepths(t *testing.T) {
	t.Parallel()

	purged := false
	depthsRead := false
	q := &fakeMaintainerWithDepths{
		fakeMaintainer: fakeMaintainer{
			purgeFn: func(ctx context.Context) (int, error) {
				purged = true
				return 2, nil
			},
		},
		depthsFn: func(ctx context.Context) (int64, int64, int64, error) {
			depthsRead = true
			return 4, 1, 2, nil
		},
	}

	janitor, err := NewQueueJanitor(q, time.Hour, zap.NewNop())
	if err != nil {
		t.Fatalf("NewQueueJanitor() error = %v", err)
	}

	janitor.sweep(context.Background())

	if !purged {
		t.Fatal("expected purge to run")
	}
	if !depthsRead {
		t.Fatal("expected queue depths to be read")
	}
}

func TestJanitorSweepSurvivesPurgeError(t *testing.T) {
	t.Parallel()

	q := &fakeMaintainer{
		purgeFn: func(ctx context.Context) (int, error) {
			return 0, errors.New("db unavailable")
		},
	}

	janitor, err := NewQueueJanitor(q, time.Hour, zap.NewNop())
	if err != nil {
		t.Fatalf("NewQueueJanitor() error = %v", err)
	}

	// Must not panic or propagate; the next tick simply tries again.
	janitor.sweep(context.Background())
}

func TestJanitorStartStopsOnCancel(t *testing.T) {
	t.Parallel()

	var sweeps atomic.Int64
	q := &fakeMaintainer{
		purgeFn: func(ctx context.Context) (int, error) {
			sweeps.Add(1)
			return 0, nil
		},
	}

	janitor, err := NewQueueJanitor(q, 5*time.Millisecond, zap.NewNop())
	if err != nil {
		t.Fatalf("NewQueueJanitor() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- janitor.Start(ctx) }()

	deadline := time.After(2 * time.Second)
	for sweeps.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("sweeps = %d, want periodic sweeps", sweeps.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not stop after cancellation")
	}
}

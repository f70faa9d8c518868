package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/habitsforgood/reminder-engine/internal/observability"
)

const defaultPurgeInterval = time.Hour

// QueueMaintainer is the slice of the queue the janitor needs.
type QueueMaintainer interface {
	PurgeExpiredFailed(ctx context.Context) (int, error)
}

// DepthReporter is implemented by queue backends that can count jobs per
// state; the janitor exports the counts as gauges when available.
type DepthReporter interface {
	Depths(ctx context.Context) (eligible, leased, failed int64, err error)
}

// QueueJanitor periodically purges failed jobs past their retention window
// and refreshes the queue depth gauges.
type QueueJanitor struct {
	queue    QueueMaintainer
	interval time.Duration
	logger   *zap.Logger
	metrics  *observability.Metrics
}

func NewQueueJanitor(queue QueueMaintainer, interval time.Duration, logger *zap.Logger) (*QueueJanitor, error) {
	if queue == nil {
		return nil, fmt.Errorf("queue is required")
	}
	if interval <= 0 {
		interval = defaultPurgeInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &QueueJanitor{
		queue:    queue,
		interval: interval,
		logger:   logger,
	}, nil
}

func (j *QueueJanitor) SetMetrics(metrics *observability.Metrics) {
	if j == nil {
		return
	}
	j.metrics = metrics
}

func (j *QueueJanitor) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *QueueJanitor) sweep(ctx context.Context) {
	purged, err := j.queue.PurgeExpiredFailed(ctx)
	if err != nil {
		if ctx.Err() == nil {
			j.logger.Error("failed to purge expired failed jobs", zap.Error(err))
		}
	} else if purged > 0 {
		j.logger.Info("purged expired failed jobs", zap.Int("purged", purged))
	}

	reporter, ok := j.queue.(DepthReporter)
	if !ok {
		return
	}

	eligible, leased, failed, err := reporter.Depths(ctx)
	if err != nil {
		if ctx.Err() == nil {
			j.logger.Warn("failed to read queue depths", zap.Error(err))
		}
		return
	}
	j.metrics.SetQueueDepth("eligible", eligible)
	j.metrics.SetQueueDepth("leased", leased)
	j.metrics.SetQueueDepth("failed", failed)
}

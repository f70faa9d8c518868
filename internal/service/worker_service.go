package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/habitsforgood/reminder-engine/internal/observability"
	"github.com/habitsforgood/reminder-engine/internal/queue"
)

const (
	minWorkerConcurrency    = 1
	defaultLeasePollBackoff = time.Second
)

// WorkerService runs the bounded delivery pool: N workers each loop on
// lease, deliver, settle. The pool size caps concurrent provider sends.
type WorkerService struct {
	workQueue    queue.WorkQueue
	deliverer    *Deliverer
	logger       *zap.Logger
	metrics      *observability.Metrics
	concurrency  int
	pollInterval time.Duration
}

func NewWorkerService(
	workQueue queue.WorkQueue,
	deliverer *Deliverer,
	concurrency int,
	pollInterval time.Duration,
	logger *zap.Logger,
) (*WorkerService, error) {
	if workQueue == nil {
		return nil, fmt.Errorf("work queue is required")
	}
	if deliverer == nil {
		return nil, fmt.Errorf("deliverer is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if pollInterval <= 0 {
		pollInterval = defaultLeasePollBackoff
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkerService{
		workQueue:    workQueue,
		deliverer:    deliverer,
		logger:       logger,
		concurrency:  concurrency,
		pollInterval: pollInterval,
	}, nil
}

func (s *WorkerService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Start runs the worker pool until context cancellation. Workers never stop
// on per-job errors; a failing queue backend only slows the loop down to
// the poll interval.
func (s *WorkerService) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < s.concurrency; i++ {
		workerID := fmt.Sprintf("worker-%d", i+1)

		g.Go(func() error {
			s.logger.Info("worker started", zap.String("workerId", workerID))
			s.runWorker(groupCtx, workerID)
			s.logger.Info("worker stopped", zap.String("workerId", workerID))
			return nil
		})
	}

	return g.Wait()
}

func (s *WorkerService) runWorker(ctx context.Context, workerID string) {
	for {
		if ctx.Err() != nil {
			return
		}

		lease, err := s.workQueue.Lease(ctx, workerID)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Error("failed to lease job",
					zap.String("workerId", workerID),
					zap.Error(err),
				)
			}
			if !sleepContext(ctx, s.pollInterval) {
				return
			}
			continue
		}
		if lease == nil {
			if !sleepContext(ctx, s.pollInterval) {
				return
			}
			continue
		}

		s.processLease(ctx, lease)
	}
}

func (s *WorkerService) processLease(ctx context.Context, lease *queue.Lease) {
	ctx = observability.WithJobID(ctx, lease.Job.ID)
	logger := observability.WithContextLogger(s.logger, ctx).With(
		zap.String("workerId", lease.Owner),
		zap.Int("attempt", lease.Attempt),
	)

	s.metrics.IncWorkerInFlight()
	defer s.metrics.DecWorkerInFlight()

	status, deliverErr := s.deliverer.Deliver(ctx, lease.Job)
	switch status {
	case deliveryDelivered:
		if err := s.workQueue.Ack(ctx, lease.Job.ID, lease.Owner); err != nil {
			logger.Error("failed to ack delivered job", zap.Error(err))
			return
		}
		logger.Info("reminder delivered")

	case deliveryFailedPermanent:
		if err := s.workQueue.Ack(ctx, lease.Job.ID, lease.Owner); err != nil {
			logger.Error("failed to ack permanently failed job", zap.Error(err))
			return
		}
		s.metrics.IncReminderFailed("permanent_error")
		logger.Warn("reminder failed permanently", zap.Error(deliverErr))

	case deliveryFailedTransient:
		terminal, err := s.workQueue.RetryWithBackoff(ctx, lease.Job.ID, lease.Owner, deliverErr)
		if err != nil {
			logger.Error("failed to schedule retry", zap.Error(err))
			return
		}
		if terminal {
			s.metrics.IncReminderFailed("retry_exhausted")
			logger.Warn("reminder failed after final attempt", zap.Error(deliverErr))
			return
		}
		s.metrics.IncRetryScheduled()
		logger.Info("reminder retry scheduled", zap.Error(deliverErr))

	default:
		// Aborted: leave the lease to expire so the attempt is not counted.
		if ctx.Err() == nil {
			logger.Warn("delivery aborted, job will be retried after lease expiry", zap.Error(deliverErr))
		}
	}
}

// sleepContext waits for d or cancellation; false means the context ended.
func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

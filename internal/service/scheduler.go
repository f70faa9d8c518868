package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/habitsforgood/reminder-engine/internal/domain"
	"github.com/habitsforgood/reminder-engine/internal/observability"
	"github.com/habitsforgood/reminder-engine/internal/queue"
)

const defaultTickInterval = time.Hour

// Scheduler runs the periodic selection tick: once per interval it asks the
// selector which enrollments are due and enqueues one delivery job each.
// Selection and delivery stay decoupled; the scheduler never sends mail.
type Scheduler struct {
	selector        *Selector
	workQueue       queue.WorkQueue
	policy          queue.RetryPolicy
	targetLocalHour int
	interval        time.Duration
	logger          *zap.Logger
	metrics         *observability.Metrics
	now             func() time.Time
}

func NewScheduler(
	selector *Selector,
	workQueue queue.WorkQueue,
	policy queue.RetryPolicy,
	targetLocalHour int,
	interval time.Duration,
	logger *zap.Logger,
) (*Scheduler, error) {
	if selector == nil {
		return nil, fmt.Errorf("selector is required")
	}
	if workQueue == nil {
		return nil, fmt.Errorf("work queue is required")
	}
	if targetLocalHour < 0 || targetLocalHour > 23 {
		return nil, fmt.Errorf("target local hour %d out of range", targetLocalHour)
	}
	if interval <= 0 {
		interval = defaultTickInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		selector:        selector,
		workQueue:       workQueue,
		policy:          policy.Normalize(),
		targetLocalHour: targetLocalHour,
		interval:        interval,
		logger:          logger,
		now:             time.Now,
	}, nil
}

func (s *Scheduler) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *Scheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.runTick(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("scheduler initial tick failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.runTick(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("scheduler tick failed", zap.Error(err))
			}
		}
	}
}

// runTick selects against a single shared instant so every recipient is
// evaluated consistently within one tick. A selection failure aborts the
// tick with nothing enqueued; per-job enqueue failures are logged and the
// remaining jobs still go out.
func (s *Scheduler) runTick(ctx context.Context) error {
	tickAt := s.now().UTC()

	jobs, err := s.selector.Select(ctx, tickAt, s.targetLocalHour, "")
	if err != nil {
		s.metrics.IncSchedulerTick("error")
		return fmt.Errorf("selection failed: %w", err)
	}

	queued := 0
	for i := range jobs {
		job := jobs[i]
		if err := s.workQueue.Enqueue(ctx, job, s.policy); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				s.logger.Debug("reminder already queued for this local day",
					zap.String("jobId", job.ID),
				)
				continue
			}
			s.logger.Error("failed to enqueue reminder job",
				zap.String("jobId", job.ID),
				zap.String("enrollmentId", job.EnrollmentID),
				zap.Error(err),
			)
			continue
		}
		queued++
	}

	s.metrics.AddRemindersQueued(queued)
	s.metrics.IncSchedulerTick("ok")
	s.logger.Info("scheduler tick completed",
		zap.Time("tickAt", tickAt),
		zap.Int("selected", len(jobs)),
		zap.Int("queued", queued),
	)

	return nil
}

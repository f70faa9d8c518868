package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/habitsforgood/reminder-engine/internal/domain"
	"github.com/habitsforgood/reminder-engine/internal/email"
	"github.com/habitsforgood/reminder-engine/internal/observability"
	"github.com/habitsforgood/reminder-engine/internal/provider"
	"github.com/habitsforgood/reminder-engine/internal/ratelimit"
	"github.com/habitsforgood/reminder-engine/internal/repository"
)

const mailScope = "mail"

// deliveryStatus tells the caller what to do with the leased job.
type deliveryStatus int

const (
	// deliveryAborted means no delivery outcome was reached (infra error or
	// cancellation). The job keeps its attempt count; the lease expiring
	// returns it to the pool.
	deliveryAborted deliveryStatus = iota
	deliveryDelivered
	deliveryFailedTransient
	deliveryFailedPermanent
)

// Deliverer runs one delivery attempt end to end: audit entry, recipient
// and enrollment resolution, sponsor lookup, composition, rate limiting,
// and the provider send. Both the worker pool and the manual trigger path
// go through it.
type Deliverer struct {
	enrollments repository.EnrollmentRepository
	logs        repository.NotificationLogRepository
	composer    *email.Composer
	mailer      provider.Mailer
	rateLimiter ratelimit.RateLimiter
	logger      *zap.Logger
	metrics     *observability.Metrics
	now         func() time.Time
}

func NewDeliverer(
	enrollments repository.EnrollmentRepository,
	logs repository.NotificationLogRepository,
	composer *email.Composer,
	mailer provider.Mailer,
	rateLimiter ratelimit.RateLimiter,
	logger *zap.Logger,
) (*Deliverer, error) {
	if enrollments == nil {
		return nil, fmt.Errorf("enrollment repository is required")
	}
	if logs == nil {
		return nil, fmt.Errorf("notification log repository is required")
	}
	if composer == nil {
		return nil, fmt.Errorf("composer is required")
	}
	if mailer == nil {
		return nil, fmt.Errorf("mailer is required")
	}
	if rateLimiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Deliverer{
		enrollments: enrollments,
		logs:        logs,
		composer:    composer,
		mailer:      mailer,
		rateLimiter: rateLimiter,
		logger:      logger,
		now:         time.Now,
	}, nil
}

func (d *Deliverer) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// Deliver attempts the job once and reports how it ended. Permanent
// failures already carry a finalized audit entry; transient failures carry
// a failed entry that a later successful attempt overwrites.
func (d *Deliverer) Deliver(ctx context.Context, job domain.DeliveryJob) (deliveryStatus, error) {
	logger := observability.WithContextLogger(d.logger, ctx)

	if err := d.logs.EnsurePending(ctx, job.ID, job.RecipientID, domain.TypeDailyReminder); err != nil {
		return deliveryAborted, fmt.Errorf("failed to ensure pending audit entry: %w", err)
	}

	recipient, err := d.enrollments.GetRecipient(ctx, job.RecipientID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return d.failPermanently(ctx, logger, job, "recipient no longer exists")
		}
		return deliveryAborted, fmt.Errorf("failed to load recipient: %w", err)
	}
	if !recipient.NotificationsEnabled {
		return d.failPermanently(ctx, logger, job, "recipient disabled notifications")
	}

	enrollment, err := d.enrollments.GetEnrollment(ctx, job.EnrollmentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return d.failPermanently(ctx, logger, job, "enrollment no longer exists")
		}
		return deliveryAborted, fmt.Errorf("failed to load enrollment: %w", err)
	}
	if !enrollment.Active {
		return d.failPermanently(ctx, logger, job, "enrollment no longer active")
	}

	sponsor, err := d.enrollments.GetActivePledge(ctx, enrollment.CampaignID)
	if err != nil {
		return deliveryAborted, fmt.Errorf("failed to load sponsor pledge: %w", err)
	}

	msg, err := d.composer.Compose(*recipient, *enrollment, sponsor)
	if err != nil {
		return d.failPermanently(ctx, logger, job, fmt.Sprintf("failed to compose reminder: %v", err))
	}

	if err := d.rateLimiter.Wait(ctx, mailScope); err != nil {
		return deliveryAborted, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	sendStart := d.now()
	sendErr := d.mailer.Deliver(ctx, msg)
	d.metrics.ObserveMailSendDuration(d.now().Sub(sendStart))

	if sendErr != nil {
		if markErr := d.logs.MarkFailed(ctx, job.ID, sendErr.Error()); markErr != nil {
			logger.Warn("failed to record delivery failure", zap.Error(markErr))
		}
		if provider.IsTransient(sendErr) {
			return deliveryFailedTransient, sendErr
		}
		return deliveryFailedPermanent, sendErr
	}

	if err := d.logs.MarkSent(ctx, job.ID, d.now().UTC()); err != nil {
		// The mail went out; aborting here lets the replay converge the
		// audit entry rather than marking a delivered reminder failed.
		return deliveryAborted, fmt.Errorf("failed to record delivery success: %w", err)
	}

	d.metrics.IncReminderSent()
	return deliveryDelivered, nil
}

func (d *Deliverer) failPermanently(ctx context.Context, logger *zap.Logger, job domain.DeliveryJob, reason string) (deliveryStatus, error) {
	if err := d.logs.MarkFailed(ctx, job.ID, reason); err != nil {
		logger.Warn("failed to record permanent failure", zap.Error(err))
	}
	return deliveryFailedPermanent, errors.New(reason)
}

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/habitsforgood/reminder-engine/internal/domain"
	"github.com/habitsforgood/reminder-engine/internal/repository"
)

// TriggerResult summarizes one manual trigger run.
type TriggerResult struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// TriggerService sends reminders on demand, bypassing the scheduler's
// local-hour gate and the work queue. Deliveries run synchronously, one
// attempt each, and the caller gets the tally back.
type TriggerService struct {
	enrollments         repository.EnrollmentRepository
	logs                repository.NotificationLogRepository
	deliverer           *Deliverer
	skipAlreadyNotified bool
	logger              *zap.Logger
	now                 func() time.Time
}

func NewTriggerService(
	enrollments repository.EnrollmentRepository,
	logs repository.NotificationLogRepository,
	deliverer *Deliverer,
	skipAlreadyNotified bool,
	logger *zap.Logger,
) (*TriggerService, error) {
	if enrollments == nil {
		return nil, fmt.Errorf("enrollment repository is required")
	}
	if logs == nil {
		return nil, fmt.Errorf("notification log repository is required")
	}
	if deliverer == nil {
		return nil, fmt.Errorf("deliverer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TriggerService{
		enrollments:         enrollments,
		logs:                logs,
		deliverer:           deliverer,
		skipAlreadyNotified: skipAlreadyNotified,
		logger:              logger,
		now:                 time.Now,
	}, nil
}

// TriggerNow delivers to every enabled enrollment, optionally narrowed to
// one campaign. Total counts attempted deliveries; recipients skipped by
// the already-notified check are reported separately.
func (t *TriggerService) TriggerNow(ctx context.Context, campaignID string) (TriggerResult, error) {
	var result TriggerResult

	pairs, err := t.enrollments.GetEnabledEnrollments(ctx, campaignID)
	if err != nil {
		return result, fmt.Errorf("failed to fetch enabled enrollments: %w", err)
	}

	for i := range pairs {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		pair := pairs[i]

		if t.skipAlreadyNotified {
			sent, err := t.logs.SentOnDay(ctx, pair.Recipient.ID, domain.TypeDailyReminder, t.now())
			if err != nil {
				t.logger.Warn("already-notified check failed, delivering anyway",
					zap.String("recipientId", pair.Recipient.ID),
					zap.Error(err),
				)
			} else if sent {
				result.Skipped++
				continue
			}
		}

		job := domain.DeliveryJob{
			ID:           uuid.NewString(),
			RecipientID:  pair.Recipient.ID,
			EnrollmentID: pair.Enrollment.ID,
			CampaignID:   pair.Enrollment.CampaignID,
			Email:        pair.Recipient.Email,
			CreatedAt:    t.now().UTC(),
		}

		result.Total++
		status, err := t.deliverer.Deliver(ctx, job)
		if status == deliveryDelivered {
			result.Success++
			continue
		}

		result.Failed++
		t.logger.Warn("manual trigger delivery failed",
			zap.String("recipientId", pair.Recipient.ID),
			zap.String("enrollmentId", pair.Enrollment.ID),
			zap.Error(err),
		)
	}

	t.logger.Info("manual trigger completed",
		zap.String("campaignId", campaignID),
		zap.Int("total", result.Total),
		zap.Int("success", result.Success),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
	)

	return result, nil
}

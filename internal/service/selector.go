package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/habitsforgood/reminder-engine/internal/domain"
	"github.com/habitsforgood/reminder-engine/internal/repository"
)

// Selector decides which enrollments are due a reminder at a given instant:
// every active enrollment whose recipient has notifications enabled and
// whose local wall-clock hour matches the target hour.
type Selector struct {
	enrollments repository.EnrollmentRepository
	logger      *zap.Logger
}

func NewSelector(enrollments repository.EnrollmentRepository, logger *zap.Logger) (*Selector, error) {
	if enrollments == nil {
		return nil, fmt.Errorf("enrollment repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Selector{enrollments: enrollments, logger: logger}, nil
}

// Select evaluates all enabled enrollments against one shared reference
// instant. A recipient with an unloadable timezone is skipped, never fails
// the whole selection. At most one job per enrollment is produced.
func (s *Selector) Select(ctx context.Context, at time.Time, targetLocalHour int, campaignID string) ([]domain.DeliveryJob, error) {
	if targetLocalHour < 0 || targetLocalHour > 23 {
		return nil, fmt.Errorf("%w: target local hour %d out of range", domain.ErrValidation, targetLocalHour)
	}

	pairs, err := s.enrollments.GetEnabledEnrollments(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch enabled enrollments: %w", err)
	}

	seen := make(map[string]struct{}, len(pairs))
	jobs := make([]domain.DeliveryJob, 0, len(pairs))
	for i := range pairs {
		pair := pairs[i]

		localHour, err := pair.Recipient.LocalHour(at)
		if err != nil {
			s.logger.Warn("skipping recipient with invalid timezone",
				zap.String("recipientId", pair.Recipient.ID),
				zap.String("timezone", pair.Recipient.Timezone),
				zap.Error(err),
			)
			continue
		}
		if localHour != targetLocalHour {
			continue
		}

		if _, dup := seen[pair.Enrollment.ID]; dup {
			continue
		}
		seen[pair.Enrollment.ID] = struct{}{}

		jobs = append(jobs, domain.DeliveryJob{
			ID:           reminderJobID(pair.Enrollment.ID, pair.Recipient, at),
			RecipientID:  pair.Recipient.ID,
			EnrollmentID: pair.Enrollment.ID,
			CampaignID:   pair.Enrollment.CampaignID,
			Email:        pair.Recipient.Email,
			CreatedAt:    at.UTC(),
		})
	}

	return jobs, nil
}

// reminderJobID is deterministic per enrollment per recipient-local date, so
// a repeated tick within the same local day collides on enqueue instead of
// producing a second reminder.
func reminderJobID(enrollmentID string, recipient domain.Recipient, at time.Time) string {
	localDate := at.UTC().Format("2006-01-02")
	if loc, err := recipient.Location(); err == nil {
		localDate = at.In(loc).Format("2006-01-02")
	}
	return fmt.Sprintf("%s:%s", enrollmentID, localDate)
}

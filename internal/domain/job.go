package domain

import (
	"fmt"
	"strings"
	"time"
)

// DeliveryJob is the unit of work placed on the queue, one per eligible
// enrollment per scheduler tick. Immutable once enqueued. The scheduler
// derives the id from the enrollment and its local date, so re-enqueueing
// the same reminder collides instead of duplicating.
type DeliveryJob struct {
	ID           string    `json:"id"`
	RecipientID  string    `json:"recipientId"`
	EnrollmentID string    `json:"enrollmentId"`
	CampaignID   string    `json:"campaignId"`
	Email        string    `json:"email"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (j DeliveryJob) Validate() error {
	if strings.TrimSpace(j.ID) == "" {
		return fmt.Errorf("%w: job id is required", ErrValidation)
	}
	if strings.TrimSpace(j.RecipientID) == "" {
		return fmt.Errorf("%w: recipient id is required", ErrValidation)
	}
	if strings.TrimSpace(j.EnrollmentID) == "" {
		return fmt.Errorf("%w: enrollment id is required", ErrValidation)
	}
	if strings.TrimSpace(j.CampaignID) == "" {
		return fmt.Errorf("%w: campaign id is required", ErrValidation)
	}
	if strings.TrimSpace(j.Email) == "" {
		return fmt.Errorf("%w: recipient email is required", ErrValidation)
	}
	return nil
}

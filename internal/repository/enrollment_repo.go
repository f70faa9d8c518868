package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/habitsforgood/reminder-engine/internal/domain"
)

// EnrollmentRepository is the read-only facade over the externally owned
// recipient/enrollment/pledge tables. The pipeline never writes to them.
type EnrollmentRepository interface {
	// GetEnabledEnrollments returns every active enrollment whose recipient
	// has notifications enabled, paired with the recipient. campaignID
	// narrows the result to one campaign when non-empty.
	GetEnabledEnrollments(ctx context.Context, campaignID string) ([]domain.EnrolledRecipient, error)
	GetRecipient(ctx context.Context, id string) (*domain.Recipient, error)
	GetEnrollment(ctx context.Context, id string) (*domain.Enrollment, error)
	// GetActivePledge returns the campaign's active sponsor pledge, or
	// (nil, nil) when the campaign has none.
	GetActivePledge(ctx context.Context, campaignID string) (*domain.SponsorMessage, error)
}

type GormEnrollmentRepo struct {
	db *gorm.DB
}

var _ EnrollmentRepository = (*GormEnrollmentRepo)(nil)

func NewGormEnrollmentRepo(db *gorm.DB) *GormEnrollmentRepo {
	return &GormEnrollmentRepo{db: db}
}

// enrolledRow flattens the enrollment/recipient join.
type enrolledRow struct {
	EnrollmentID         string
	RecipientID          string
	CampaignID           string
	Email                string
	Timezone             string
	NotificationsEnabled bool
}

func (r *GormEnrollmentRepo) GetEnabledEnrollments(ctx context.Context, campaignID string) ([]domain.EnrolledRecipient, error) {
	query := r.db.WithContext(ctx).
		Table("enrollments").
		Select(`enrollments.id AS enrollment_id,
			enrollments.recipient_id,
			enrollments.campaign_id,
			recipients.email,
			recipients.timezone,
			recipients.notifications_enabled`).
		Joins("JOIN recipients ON recipients.id = enrollments.recipient_id").
		Where("enrollments.active AND recipients.notifications_enabled")

	if campaignID != "" {
		query = query.Where("enrollments.campaign_id = ?", campaignID)
	}

	var rows []enrolledRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}

	pairs := make([]domain.EnrolledRecipient, 0, len(rows))
	for _, row := range rows {
		pairs = append(pairs, domain.EnrolledRecipient{
			Enrollment: domain.Enrollment{
				ID:          row.EnrollmentID,
				RecipientID: row.RecipientID,
				CampaignID:  row.CampaignID,
				Active:      true,
			},
			Recipient: domain.Recipient{
				ID:                   row.RecipientID,
				Email:                row.Email,
				Timezone:             row.Timezone,
				NotificationsEnabled: row.NotificationsEnabled,
			},
		})
	}

	return pairs, nil
}

func (r *GormEnrollmentRepo) GetRecipient(ctx context.Context, id string) (*domain.Recipient, error) {
	var model RecipientModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return recipientModelToDomain(&model), nil
}

func (r *GormEnrollmentRepo) GetEnrollment(ctx context.Context, id string) (*domain.Enrollment, error) {
	var model EnrollmentModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return enrollmentModelToDomain(&model), nil
}

func (r *GormEnrollmentRepo) GetActivePledge(ctx context.Context, campaignID string) (*domain.SponsorMessage, error) {
	var model SponsorPledgeModel
	err := r.db.WithContext(ctx).
		Where("campaign_id = ? AND status = ?", campaignID, "active").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return pledgeModelToDomain(&model), nil
}

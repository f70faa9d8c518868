package repository

import (
	"fmt"
	"time"

	"github.com/habitsforgood/reminder-engine/internal/domain"
)

// RecipientModel is the persistence model for the recipients table. The
// pipeline treats it as read-only; the user service owns writes.
type RecipientModel struct {
	ID                   string `gorm:"type:uuid;primaryKey"`
	Email                string `gorm:"type:varchar(255);not null"`
	Timezone             string `gorm:"type:varchar(64);not null"`
	NotificationsEnabled bool   `gorm:"not null;default:true"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (RecipientModel) TableName() string {
	return "recipients"
}

// EnrollmentModel is the persistence model for the enrollments table.
type EnrollmentModel struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	RecipientID string `gorm:"type:uuid;not null;index"`
	CampaignID  string `gorm:"type:uuid;not null;index"`
	Active      bool   `gorm:"not null;default:true"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (EnrollmentModel) TableName() string {
	return "enrollments"
}

// SponsorPledgeModel is the persistence model for sponsor_pledges. At most
// one pledge per campaign carries status "active" at any time.
type SponsorPledgeModel struct {
	ID          string  `gorm:"type:uuid;primaryKey"`
	CampaignID  string  `gorm:"type:uuid;not null;index"`
	SponsorName string  `gorm:"type:varchar(255);not null"`
	Message     string  `gorm:"type:text"`
	ImageURL    *string `gorm:"type:varchar(1024)"`
	Status      string  `gorm:"type:varchar(20);not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (SponsorPledgeModel) TableName() string {
	return "sponsor_pledges"
}

// NotificationLogModel is the persistence model for notification_logs.
type NotificationLogModel struct {
	// ID carries the delivery job id, so an entry stays stable across
	// replayed attempts of the same job.
	ID          string `gorm:"type:varchar(120);primaryKey"`
	RecipientID string `gorm:"type:uuid;not null;index"`
	Type        string `gorm:"type:varchar(50);not null"`
	Status      string `gorm:"type:varchar(20);not null"`
	Error       *string `gorm:"type:text"`
	SentAt      *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (NotificationLogModel) TableName() string {
	return "notification_logs"
}

func recipientModelToDomain(m *RecipientModel) *domain.Recipient {
	if m == nil {
		return nil
	}
	return &domain.Recipient{
		ID:                   m.ID,
		Email:                m.Email,
		Timezone:             m.Timezone,
		NotificationsEnabled: m.NotificationsEnabled,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}

func enrollmentModelToDomain(m *EnrollmentModel) *domain.Enrollment {
	if m == nil {
		return nil
	}
	return &domain.Enrollment{
		ID:          m.ID,
		RecipientID: m.RecipientID,
		CampaignID:  m.CampaignID,
		Active:      m.Active,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func pledgeModelToDomain(m *SponsorPledgeModel) *domain.SponsorMessage {
	if m == nil {
		return nil
	}
	return &domain.SponsorMessage{
		SponsorName: m.SponsorName,
		Message:     m.Message,
		ImageURL:    m.ImageURL,
	}
}

func logModelToDomain(m *NotificationLogModel) (*domain.NotificationLogEntry, error) {
	status, err := domain.ParseLogStatusFromString(m.Status)
	if err != nil {
		return nil, fmt.Errorf("log entry %s: %w", m.ID, err)
	}
	return &domain.NotificationLogEntry{
		ID:          m.ID,
		RecipientID: m.RecipientID,
		Type:        domain.NotificationType(m.Type),
		Status:      status,
		Error:       m.Error,
		SentAt:      m.SentAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}, nil
}

package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/habitsforgood/reminder-engine/internal/domain"
)

// NotificationLogRepository is the delivery audit trail. One row per job
// lifecycle: created pending on the first attempt, updated in place to its
// terminal status. Re-finalizing an already-terminal row is allowed (the
// at-least-once queue can replay a job after a crash); the last terminal
// write wins.
type NotificationLogRepository interface {
	// EnsurePending creates the pending entry with the given id if it does
	// not exist yet. Replayed delivery attempts reuse the same id, so the
	// create is a no-op after the first attempt.
	EnsurePending(ctx context.Context, id string, recipientID string, notifType domain.NotificationType) error
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
	GetByID(ctx context.Context, id string) (*domain.NotificationLogEntry, error)
	// SentOnDay reports whether the recipient already has a sent entry of
	// the given type within the UTC day containing day.
	SentOnDay(ctx context.Context, recipientID string, notifType domain.NotificationType, day time.Time) (bool, error)
}

type GormNotificationLogRepo struct {
	db  *gorm.DB
	now func() time.Time
}

var _ NotificationLogRepository = (*GormNotificationLogRepo)(nil)

func NewGormNotificationLogRepo(db *gorm.DB) *GormNotificationLogRepo {
	return &GormNotificationLogRepo{db: db, now: time.Now}
}

func (r *GormNotificationLogRepo) EnsurePending(ctx context.Context, id string, recipientID string, notifType domain.NotificationType) error {
	if id == "" {
		id = uuid.NewString()
	}
	model := NotificationLogModel{
		ID:          id,
		RecipientID: recipientID,
		Type:        notifType.String(),
		Status:      domain.LogStatusPending.String(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model).Error
}

func (r *GormNotificationLogRepo) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	return r.finalize(ctx, id, map[string]any{
		"status":  domain.LogStatusSent.String(),
		"sent_at": sentAt,
		"error":   nil,
	})
}

func (r *GormNotificationLogRepo) MarkFailed(ctx context.Context, id string, errMsg string) error {
	return r.finalize(ctx, id, map[string]any{
		"status": domain.LogStatusFailed.String(),
		"error":  errMsg,
	})
}

func (r *GormNotificationLogRepo) finalize(ctx context.Context, id string, updates map[string]any) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationLogModel{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormNotificationLogRepo) GetByID(ctx context.Context, id string) (*domain.NotificationLogEntry, error) {
	var model NotificationLogModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return logModelToDomain(&model)
}

func (r *GormNotificationLogRepo) SentOnDay(ctx context.Context, recipientID string, notifType domain.NotificationType, day time.Time) (bool, error) {
	dayStart := day.UTC().Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	var count int64
	err := r.db.WithContext(ctx).
		Model(&NotificationLogModel{}).
		Where("recipient_id = ? AND type = ? AND status = ? AND sent_at >= ? AND sent_at < ?",
			recipientID, notifType.String(), domain.LogStatusSent.String(), dayStart, dayEnd).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

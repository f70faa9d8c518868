package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/habitsforgood/reminder-engine/internal/domain"
)

// DeliveryJobModel is the persistence model for the delivery_jobs table.
// Queue bookkeeping (lease, attempts, backoff) lives alongside the job
// payload so every mutation is a single atomic statement.
type DeliveryJobModel struct {
	ID             string `gorm:"type:varchar(120);primaryKey"`
	RecipientID    string `gorm:"type:uuid;not null"`
	EnrollmentID   string `gorm:"type:uuid;not null"`
	CampaignID     string `gorm:"type:uuid;not null"`
	Email          string `gorm:"type:varchar(255);not null"`
	State          string `gorm:"type:varchar(16);not null;default:eligible"`
	AttemptCount   int    `gorm:"not null;default:0"`
	MaxAttempts    int    `gorm:"not null;default:3"`
	BaseDelayMs    int64  `gorm:"not null;default:2000"`
	NextEligibleAt time.Time
	LeaseOwner     *string `gorm:"type:varchar(128)"`
	LeaseExpiresAt *time.Time
	LastError      *string `gorm:"type:text"`
	FailedAt       *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (DeliveryJobModel) TableName() string {
	return "delivery_jobs"
}

// GormQueue is the Postgres-backed WorkQueue. Leasing uses a single
// UPDATE ... FROM (SELECT ... FOR UPDATE SKIP LOCKED) statement so racing
// workers never observe a check-then-act window.
type GormQueue struct {
	db              *gorm.DB
	leaseTTL        time.Duration
	failedRetention time.Duration
	now             func() time.Time
}

var _ WorkQueue = (*GormQueue)(nil)

func NewGormQueue(db *gorm.DB, leaseTTL, failedRetention time.Duration) (*GormQueue, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db is required")
	}
	if leaseTTL <= 0 {
		leaseTTL = defaultLeaseTTL
	}
	if failedRetention <= 0 {
		failedRetention = defaultFailedRetention
	}
	return &GormQueue{
		db:              db,
		leaseTTL:        leaseTTL,
		failedRetention: failedRetention,
		now:             time.Now,
	}, nil
}

func (q *GormQueue) Enqueue(ctx context.Context, job domain.DeliveryJob, policy RetryPolicy) error {
	if err := job.Validate(); err != nil {
		return err
	}
	policy = policy.Normalize()

	model := DeliveryJobModel{
		ID:             job.ID,
		RecipientID:    job.RecipientID,
		EnrollmentID:   job.EnrollmentID,
		CampaignID:     job.CampaignID,
		Email:          job.Email,
		State:          string(stateEligible),
		MaxAttempts:    policy.MaxAttempts,
		BaseDelayMs:    policy.BaseDelay.Milliseconds(),
		NextEligibleAt: q.now().UTC(),
		CreatedAt:      job.CreatedAt,
	}

	if err := q.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: job %s already enqueued", domain.ErrConflict, job.ID)
		}
		return fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	return nil
}

func (q *GormQueue) Lease(ctx context.Context, workerID string) (*Lease, error) {
	if workerID == "" {
		return nil, fmt.Errorf("%w: worker id is required", domain.ErrValidation)
	}

	now := q.now().UTC()
	expiresAt := now.Add(q.leaseTTL)

	var model DeliveryJobModel
	result := q.db.WithContext(ctx).Raw(`
		UPDATE delivery_jobs
		SET state = 'leased', lease_owner = ?, lease_expires_at = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM delivery_jobs
			WHERE (state = 'eligible' AND next_eligible_at <= ?)
			   OR (state = 'leased' AND lease_expires_at < ?)
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *`,
		workerID, expiresAt, now, now, now,
	).Scan(&model)
	if result.Error != nil {
		return nil, fmt.Errorf("lease job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}

	return &Lease{
		Job: domain.DeliveryJob{
			ID:           model.ID,
			RecipientID:  model.RecipientID,
			EnrollmentID: model.EnrollmentID,
			CampaignID:   model.CampaignID,
			Email:        model.Email,
			CreatedAt:    model.CreatedAt,
		},
		Attempt:   model.AttemptCount + 1,
		Owner:     workerID,
		ExpiresAt: expiresAt,
	}, nil
}

func (q *GormQueue) Ack(ctx context.Context, jobID, workerID string) error {
	result := q.db.WithContext(ctx).
		Where("id = ? AND state = ? AND lease_owner = ?", jobID, string(stateLeased), workerID).
		Delete(&DeliveryJobModel{})
	if result.Error != nil {
		return fmt.Errorf("ack job %s: %w", jobID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: job %s is not leased by %s", domain.ErrConflict, jobID, workerID)
	}
	return nil
}

// RetryWithBackoff settles a failed attempt in one conditional UPDATE so a
// concurrent re-lease cannot interleave with the attempt bump. The ownership
// predicate makes a stale call (lease expired and re-leased elsewhere) a
// no-op conflict instead of clobbering the current holder's lease.
func (q *GormQueue) RetryWithBackoff(ctx context.Context, jobID, workerID string, cause error) (bool, error) {
	now := q.now().UTC()

	var lastErr *string
	if cause != nil {
		msg := cause.Error()
		lastErr = &msg
	}

	var row struct {
		State string
	}
	result := q.db.WithContext(ctx).Raw(`
		UPDATE delivery_jobs
		SET attempt_count = attempt_count + 1,
			lease_owner = NULL,
			lease_expires_at = NULL,
			last_error = COALESCE(?, last_error),
			state = CASE WHEN attempt_count + 1 >= max_attempts THEN 'failed' ELSE 'eligible' END,
			failed_at = CASE WHEN attempt_count + 1 >= max_attempts THEN ? ELSE NULL END,
			next_eligible_at = CASE WHEN attempt_count + 1 >= max_attempts THEN next_eligible_at
				ELSE ? + base_delay_ms * POWER(2, attempt_count) * INTERVAL '1 millisecond' END,
			updated_at = ?
		WHERE id = ? AND state = 'leased' AND lease_owner = ?
		RETURNING state`,
		lastErr, now, now, now, jobID, workerID,
	).Scan(&row)
	if result.Error != nil {
		return false, fmt.Errorf("retry job %s: %w", jobID, result.Error)
	}
	if result.RowsAffected == 0 {
		return false, fmt.Errorf("%w: job %s is not leased by %s", domain.ErrConflict, jobID, workerID)
	}
	return jobState(row.State) == stateFailed, nil
}

// PurgeExpiredFailed removes terminal-failed jobs past the retention window.
func (q *GormQueue) PurgeExpiredFailed(ctx context.Context) (int, error) {
	cutoff := q.now().UTC().Add(-q.failedRetention)
	result := q.db.WithContext(ctx).
		Where("state = ? AND failed_at < ?", string(stateFailed), cutoff).
		Delete(&DeliveryJobModel{})
	if result.Error != nil {
		return 0, fmt.Errorf("purge failed jobs: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}

// Depths returns the number of jobs per state for the queue-depth metrics.
func (q *GormQueue) Depths(ctx context.Context) (eligible, leased, failed int64, err error) {
	type row struct {
		State string
		Count int64
	}
	var rows []row
	err = q.db.WithContext(ctx).
		Model(&DeliveryJobModel{}).
		Select("state, COUNT(*) as count").
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return 0, 0, 0, fmt.Errorf("queue depths: %w", err)
	}
	for _, r := range rows {
		switch jobState(r.State) {
		case stateEligible:
			eligible = r.Count
		case stateLeased:
			leased = r.Count
		case stateFailed:
			failed = r.Count
		}
	}
	return eligible, leased, failed, nil
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/habitsforgood/reminder-engine/internal/domain"
	"github.com/habitsforgood/reminder-engine/internal/email"
	"github.com/habitsforgood/reminder-engine/internal/provider"
	"github.com/habitsforgood/reminder-engine/internal/queue"
	"github.com/habitsforgood/reminder-engine/internal/ratelimit"
	"github.com/habitsforgood/reminder-engine/internal/repository"
	"go.uber.org/zap"
)

type fakeEnrollmentRepo struct {
	getEnabledEnrollmentsFn func(ctx context.Context, campaignID string) ([]domain.EnrolledRecipient, error)
	getRecipientFn          func(ctx context.Context, id string) (*domain.Recipient, error)
	getEnrollmentFn         func(ctx context.Context, id string) (*domain.Enrollment, error)
	getActivePledgeFn       func(ctx context.Context, campaignID string) (*domain.SponsorMessage, error)
}

func (f *fakeEnrollmentRepo) GetEnabledEnrollments(ctx context.Context, campaignID string) ([]domain.EnrolledRecipient, error) {
	if f.getEnabledEnrollmentsFn != nil {
		return f.getEnabledEnrollmentsFn(ctx, campaignID)
	}
	return nil, nil
}

func (f *fakeEnrollmentRepo) GetRecipient(ctx context.Context, id string) (*domain.Recipient, error) {
	if f.getRecipientFn != nil {
		return f.getRecipientFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeEnrollmentRepo) GetEnrollment(ctx context.Context, id string) (*domain.Enrollment, error) {
	if f.getEnrollmentFn != nil {
		return f.getEnrollmentFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeEnrollmentRepo) GetActivePledge(ctx context.Context, campaignID string) (*domain.SponsorMessage, error) {
	if f.getActivePledgeFn != nil {
		return f.getActivePledgeFn(ctx, campaignID)
	}
	return nil, nil
}

var _ repository.EnrollmentRepository = (*fakeEnrollmentRepo)(nil)

type fakeLogRepo struct {
	ensurePendingFn func(ctx context.Context, id string, recipientID string, notifType domain.NotificationType) error
	markSentFn      func(ctx context.Context, id string, sentAt time.Time) error
	markFailedFn    func(ctx context.Context, id string, errMsg string) error
	getByIDFn       func(ctx context.Context, id string) (*domain.NotificationLogEntry, error)
	sentOnDayFn     func(ctx context.Context, recipientID string, notifType domain.NotificationType, day time.Time) (bool, error)
}

func (f *fakeLogRepo) EnsurePending(ctx context.Context, id string, recipientID string, notifType domain.NotificationType) error {
	if f.ensurePendingFn != nil {
		return f.ensurePendingFn(ctx, id, recipientID, notifType)
	}
	return nil
}

func (f *fakeLogRepo) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	if f.markSentFn != nil {
		return f.markSentFn(ctx, id, sentAt)
	}
	return nil
}

func (f *fakeLogRepo) MarkFailed(ctx context.Context, id string, errMsg string) error {
	if f.markFailedFn != nil {
		return f.markFailedFn(ctx, id, errMsg)
	}
	return nil
}

func (f *fakeLogRepo) GetByID(ctx context.Context, id string) (*domain.NotificationLogEntry, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeLogRepo) SentOnDay(ctx context.Context, recipientID string, notifType domain.NotificationType, day time.Time) (bool, error) {
	if f.sentOnDayFn != nil {
		return f.sentOnDayFn(ctx, recipientID, notifType, day)
	}
	return false, nil
}

var _ repository.NotificationLogRepository = (*fakeLogRepo)(nil)

type fakeMailer struct {
	deliverFn func(ctx context.Context, msg provider.Message) error
}

func (f *fakeMailer) Deliver(ctx context.Context, msg provider.Message) error {
	if f.deliverFn != nil {
		return f.deliverFn(ctx, msg)
	}
	return nil
}

var _ provider.Mailer = (*fakeMailer)(nil)

type fakeRateLimiter struct {
	allowFn func(ctx context.Context, scope string) (bool, error)
	waitFn  func(ctx context.Context, scope string) error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, scope string) (bool, error) {
	if f.allowFn != nil {
		return f.allowFn(ctx, scope)
	}
	return true, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, scope string) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, scope)
	}
	return nil
}

var _ ratelimit.RateLimiter = (*fakeRateLimiter)(nil)

type fakeWorkQueue struct {
	enqueueFn func(ctx context.Context, job domain.DeliveryJob, policy queue.RetryPolicy) error
	leaseFn   func(ctx context.Context, workerID string) (*queue.Lease, error)
	ackFn     func(ctx context.Context, jobID, workerID string) error
	retryFn   func(ctx context.Context, jobID, workerID string, cause error) (bool, error)
}

func (f *fakeWorkQueue) Enqueue(ctx context.Context, job domain.DeliveryJob, policy queue.RetryPolicy) error {
	if f.enqueueFn != nil {
		return f.enqueueFn(ctx, job, policy)
	}
	return nil
}

func (f *fakeWorkQueue) Lease(ctx context.Context, workerID string) (*queue.Lease, error) {
	if f.leaseFn != nil {
		return f.leaseFn(ctx, workerID)
	}
	return nil, nil
}

func (f *fakeWorkQueue) Ack(ctx context.Context, jobID, workerID string) error {
	if f.ackFn != nil {
		return f.ackFn(ctx, jobID, workerID)
	}
	return nil
}

func (f *fakeWorkQueue) RetryWithBackoff(ctx context.Context, jobID, workerID string, cause error) (bool, error) {
	if f.retryFn != nil {
		return f.retryFn(ctx, jobID, workerID, cause)
	}
	return false, nil
}

var _ queue.WorkQueue = (*fakeWorkQueue)(nil)

func testComposer(t *testing.T) *email.Composer {
	t.Helper()

	signer, err := email.NewTokenSigner("test-secret")
	if err != nil {
		t.Fatalf("NewTokenSigner() error = %v", err)
	}
	composer, err := email.NewComposer(signer, "http://localhost:8080/api")
	if err != nil {
		t.Fatalf("NewComposer() error = %v", err)
	}
	return composer
}

func testDeliverer(t *testing.T, enrollments repository.EnrollmentRepository, logs repository.NotificationLogRepository, mailer provider.Mailer) *Deliverer {
	t.Helper()

	deliverer, err := NewDeliverer(enrollments, logs, testComposer(t), mailer, &fakeRateLimiter{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDeliverer() error = %v", err)
	}
	return deliverer
}

func enabledRecipient(id, email, tz string) domain.Recipient {
	return domain.Recipient{
		ID:                   id,
		Email:                email,
		Timezone:             tz,
		NotificationsEnabled: true,
	}
}

func activeEnrollment(id, recipientID, campaignID string) domain.Enrollment {
	return domain.Enrollment{
		ID:          id,
		RecipientID: recipientID,
		CampaignID:  campaignID,
		Active:      true,
	}
}

package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/habitsforgood/reminder-engine/internal/domain"
	"github.com/habitsforgood/reminder-engine/internal/email"
	"github.com/habitsforgood/reminder-engine/internal/provider"
	"go.uber.org/zap"
)

func reminderJob() domain.DeliveryJob {
	return domain.DeliveryJob{
		ID:           "e1:2026-06-15",
		RecipientID:  "r1",
		EnrollmentID: "e1",
		CampaignID:   "c1",
		Email:        "one@example.com",
		CreatedAt:    time.Date(2026, 6, 15, 21, 0, 0, 0, time.UTC),
	}
}

func happyEnrollmentRepo() *fakeEnrollmentRepo {
	return &fakeEnrollmentRepo{
		getRecipientFn: func(ctx context.Context, id string) (*domain.Recipient, error) {
			r := enabledRecipient("r1", "one@example.com", "UTC")
			return &r, nil
		},
		getEnrollmentFn: func(ctx context.Context, id string) (*domain.Enrollment, error) {
			e := activeEnrollment("e1", "r1", "c1")
			return &e, nil
		},
	}
}

func TestDelivererSuccess(t *testing.T) {
	t.Parallel()

	var pendingID string
	var sentID string
	var sentAt time.Time
	logs := &fakeLogRepo{
		ensurePendingFn: func(ctx context.Context, id string, recipientID string, notifType domain.NotificationType) error {
			pendingID = id
			if notifType != domain.TypeDailyReminder {
				t.Errorf("type = %s, want daily-reminder", notifType)
			}
			return nil
		},
		markSentFn: func(ctx context.Context, id string, at time.Time) error {
			sentID = id
			sentAt = at
			return nil
		},
		markFailedFn: func(ctx context.Context, id string, errMsg string) error {
			t.Errorf("MarkFailed should not be called on success, got %q", errMsg)
			return nil
		},
	}

	var delivered provider.Message
	mailer := &fakeMailer{
		deliverFn: func(ctx context.Context, msg provider.Message) error {
			delivered = msg
			return nil
		},
	}

	deliverer := testDeliverer(t, happyEnrollmentRepo(), logs, mailer)
	now := time.Date(2026, 6, 15, 21, 0, 5, 0, time.UTC)
	deliverer.now = func() time.Time { return now }

	job := reminderJob()
	status, err := deliverer.Deliver(context.Background(), job)
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if status != deliveryDelivered {
		t.Fatalf("status = %v, want delivered", status)
	}

	if pendingID != job.ID || sentID != job.ID {
		t.Fatalf("audit entry ids = (%q, %q), want both %q", pendingID, sentID, job.ID)
	}
	if !sentAt.Equal(now) {
		t.Fatalf("sentAt = %v, want %v", sentAt, now)
	}
	if delivered.To != "one@example.com" {
		t.Fatalf("to = %q, want one@example.com", delivered.To)
	}
	if delivered.Subject != email.Subject {
		t.Fatalf("subject = %q, want %q", delivered.Subject, email.Subject)
	}
	if !strings.Contains(delivered.HTML, "/auth/email-submission/") {
		t.Fatal("body should contain one-click submission links")
	}
}

func TestDelivererIncludesSponsorBlock(t *testing.T) {
	t.Parallel()

	repo := happyEnrollmentRepo()
	repo.getActivePledgeFn = func(ctx context.Context, campaignID string) (*domain.SponsorMessage, error) {
		if campaignID != "c1" {
			t.Errorf("campaign = %q, want c1", campaignID)
		}
		return &domain.SponsorMessage{SponsorName: "Acme Corp", Message: "Proud to support you!"}, nil
	}

	var delivered provider.Message
	mailer := &fakeMailer{
		deliverFn: func(ctx context.Context, msg provider.Message) error {
			delivered = msg
			return nil
		},
	}

	deliverer := testDeliverer(t, repo, &fakeLogRepo{}, mailer)
	status, err := deliverer.Deliver(context.Background(), reminderJob())
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if status != deliveryDelivered {
		t.Fatalf("status = %v, want delivered", status)
	}
	if !strings.Contains(delivered.HTML, "Acme Corp") {
		t.Fatal("body should contain the sponsor block")
	}
}

func TestDelivererMissingRecipientIsPermanent(t *testing.T) {
	t.Parallel()

	var failedMsg string
	logs := &fakeLogRepo{
		markFailedFn: func(ctx context.Context, id string, errMsg string) error {
			failedMsg = errMsg
			return nil
		},
	}

	mailerCalled := false
	mailer := &fakeMailer{
		deliverFn: func(ctx context.Context, msg provider.Message) error {
			mailerCalled = true
			return nil
		},
	}

	repo := &fakeEnrollmentRepo{
		getRecipientFn: func(ctx context.Context, id string) (*domain.Recipient, error) {
			return nil, domain.ErrNotFound
		},
	}

	deliverer := testDeliverer(t, repo, logs, mailer)
	status, err := deliverer.Deliver(context.Background(), reminderJob())
	if status != deliveryFailedPermanent {
		t.Fatalf("status = %v, want permanent failure", status)
	}
	if err == nil {
		t.Fatal("expected an error describing the failure")
	}
	if !strings.Contains(failedMsg, "recipient") {
		t.Fatalf("failure message = %q, want recipient mention", failedMsg)
	}
	if mailerCalled {
		t.Fatal("mailer should not be called for a missing recipient")
	}
}

func TestDelivererDisabledRecipientIsPermanent(t *testing.T) {
	t.Parallel()

	repo := happyEnrollmentRepo()
	repo.getRecipientFn = func(ctx context.Context, id string) (*domain.Recipient, error) {
		r := enabledRecipient("r1", "one@example.com", "UTC")
		r.NotificationsEnabled = false
		return &r, nil
	}

	deliverer := testDeliverer(t, repo, &fakeLogRepo{}, &fakeMailer{})
	status, _ := deliverer.Deliver(context.Background(), reminderJob())
	if status != deliveryFailedPermanent {
		t.Fatalf("status = %v, want permanent failure", status)
	}
}

func TestDelivererInactiveEnrollmentIsPermanent(t *testing.T) {
	t.Parallel()

	repo := happyEnrollmentRepo()
	repo.getEnrollmentFn = func(ctx context.Context, id string) (*domain.Enrollment, error) {
		e := activeEnrollment("e1", "r1", "c1")
		e.Active = false
		return &e, nil
	}

	deliverer := testDeliverer(t, repo, &fakeLogRepo{}, &fakeMailer{})
	status, _ := deliverer.Deliver(context.Background(), reminderJob())
	if status != deliveryFailedPermanent {
		t.Fatalf("status = %v, want permanent failure", status)
	}
}

func TestDelivererTransientSendFailure(t *testing.T) {
	t.Parallel()

	var failedMsg string
	logs := &fakeLogRepo{
		markFailedFn: func(ctx context.Context, id string, errMsg string) error {
			failedMsg = errMsg
			return nil
		},
		markSentFn: func(ctx context.Context, id string, at time.Time) error {
			t.Error("MarkSent should not be called on failure")
			return nil
		},
	}
	mailer := &fakeMailer{
		deliverFn: func(ctx context.Context, msg provider.Message) error {
			return &provider.DeliveryError{StatusCode: 503, Message: "mail api unavailable", Transient: true}
		},
	}

	deliverer := testDeliverer(t, happyEnrollmentRepo(), logs, mailer)
	status, err := deliverer.Deliver(context.Background(), reminderJob())
	if status != deliveryFailedTransient {
		t.Fatalf("status = %v, want transient failure", status)
	}
	var deliveryErr *provider.DeliveryError
	if !errors.As(err, &deliveryErr) {
		t.Fatalf("error = %v, want DeliveryError", err)
	}
	if !strings.Contains(failedMsg, "mail api unavailable") {
		t.Fatalf("audit failure = %q, want provider message", failedMsg)
	}
}

func TestDelivererPermanentSendFailure(t *testing.T) {
	t.Parallel()

	mailer := &fakeMailer{
		deliverFn: func(ctx context.Context, msg provider.Message) error {
			return &provider.DeliveryError{StatusCode: 400, Message: "rejected address", Transient: false}
		},
	}

	deliverer := testDeliverer(t, happyEnrollmentRepo(), &fakeLogRepo{}, mailer)
	status, _ := deliverer.Deliver(context.Background(), reminderJob())
	if status != deliveryFailedPermanent {
		t.Fatalf("status = %v, want permanent failure", status)
	}
}

func TestDelivererRateLimiterFailureAborts(t *testing.T) {
	t.Parallel()

	mailerCalled := false
	mailer := &fakeMailer{
		deliverFn: func(ctx context.Context, msg provider.Message) error {
			mailerCalled = true
			return nil
		},
	}

	deliverer, err := NewDeliverer(
		happyEnrollmentRepo(),
		&fakeLogRepo{},
		testComposer(t),
		mailer,
		&fakeRateLimiter{
			waitFn: func(ctx context.Context, scope string) error {
				if scope != mailScope {
					t.Errorf("scope = %q, want %q", scope, mailScope)
				}
				return errors.New("rate limit wait timeout")
			},
		},
		zap.NewNop(),
	)
	if err != nil {
		t.Fatalf("NewDeliverer() error = %v", err)
	}

	status, err := deliverer.Deliver(context.Background(), reminderJob())
	if status != deliveryAborted {
		t.Fatalf("status = %v, want aborted", status)
	}
	if err == nil {
		t.Fatal("expected rate limiter error")
	}
	if mailerCalled {
		t.Fatal("mailer should not be called when the rate limiter fails")
	}
}

func TestDelivererAuditWriteFailureAborts(t *testing.T) {
	t.Parallel()

	logs := &fakeLogRepo{
		ensurePendingFn: func(ctx context.Context, id string, recipientID string, notifType domain.NotificationType) error {
			return errors.New("db unavailable")
		},
	}

	deliverer := testDeliverer(t, happyEnrollmentRepo(), logs, &fakeMailer{})
	status, err := deliverer.Deliver(context.Background(), reminderJob())
	if status != deliveryAborted {
		t.Fatalf("status = %v, want aborted", status)
	}
	if err == nil {
		t.Fatal("expected audit write error")
	}
}

func TestDelivererMarkSentFailureAborts(t *testing.T) {
	t.Parallel()

	logs := &fakeLogRepo{
		markSentFn: func(ctx context.Context, id string, at time.Time) error {
			return errors.New("db unavailable")
		},
	}

	deliverer := testDeliverer(t, happyEnrollmentRepo(), logs, &fakeMailer{})
	status, err := deliverer.Deliver(context.Background(), reminderJob())
	if status != deliveryAborted {
		t.Fatalf("status = %v, want aborted", status)
	}
	if err == nil {
		t.Fatal("expected audit write error")
	}
}

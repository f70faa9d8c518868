package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/habitsforgood/reminder-engine/internal/domain"
	"go.uber.org/zap"
)

func TestSelectorMatchesLocalHour(t *testing.T) {
	t.Parallel()

	// 13:00 UTC on a June day: 09:00 in New York, 16:00 in Istanbul.
	at := time.Date(2026, 6, 15, 13, 0, 0, 0, time.UTC)

	repo := &fakeEnrollmentRepo{
		getEnabledEnrollmentsFn: func(ctx context.Context, campaignID string) ([]domain.EnrolledRecipient, error) {
			return []domain.EnrolledRecipient{
				{
					Enrollment: activeEnrollment("e1", "r1", "c1"),
					Recipient:  enabledRecipient("r1", "ny@example.com", "America/New_York"),
				},
				{
					Enrollment: activeEnrollment("e2", "r2", "c1"),
					Recipient:  enabledRecipient("r2", "ist@example.com", "Europe/Istanbul"),
				},
				{
					Enrollment: activeEnrollment("e3", "r3", "c1"),
					Recipient:  enabledRecipient("r3", "utc@example.com", "UTC"),
				},
			}, nil
		},
	}

	selector, err := NewSelector(repo, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSelector() error = %v", err)
	}

	jobs, err := selector.Select(context.Background(), at, 9, "")
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(jobs))
	}
	if jobs[0].RecipientID != "r1" {
		t.Fatalf("recipient = %s, want r1", jobs[0].RecipientID)
	}
	if jobs[0].Email != "ny@example.com" {
		t.Fatalf("email = %s, want ny@example.com", jobs[0].Email)
	}
	if jobs[0].CampaignID != "c1" {
		t.Fatalf("campaign = %s, want c1", jobs[0].CampaignID)
	}

	jobs, err = selector.Select(context.Background(), at, 16, "")
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(jobs) != 1 || jobs[0].RecipientID != "r2" {
		t.Fatalf("expected only the Istanbul recipient at hour 16, got %+v", jobs)
	}
}

func TestSelectorSkipsInvalidTimezone(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 6, 15, 13, 0, 0, 0, time.UTC)

	repo := &fakeEnrollmentRepo{
		getEnabledEnrollmentsFn: func(ctx context.Context, campaignID string) ([]domain.EnrolledRecipient, error) {
			return []domain.EnrolledRecipient{
				{
					Enrollment: activeEnrollment("e1", "r1", "c1"),
					Recipient:  enabledRecipient("r1", "bad@example.com", "Not/AZone"),
				},
				{
					Enrollment: activeEnrollment("e2", "r2", "c1"),
					Recipient:  enabledRecipient("r2", "utc@example.com", "UTC"),
				},
			}, nil
		},
	}

	selector, err := NewSelector(repo, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSelector() error = %v", err)
	}

	jobs, err := selector.Select(context.Background(), at, 13, "")
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(jobs) != 1 || jobs[0].RecipientID != "r2" {
		t.Fatalf("expected the invalid timezone to be skipped, got %+v", jobs)
	}
}

func TestSelectorDeduplicatesEnrollments(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 6, 15, 13, 0, 0, 0, time.UTC)
	pair := domain.EnrolledRecipient{
		Enrollment: activeEnrollment("e1", "r1", "c1"),
		Recipient:  enabledRecipient("r1", "utc@example.com", "UTC"),
	}

	repo := &fakeEnrollmentRepo{
		getEnabledEnrollmentsFn: func(ctx context.Context, campaignID string) ([]domain.EnrolledRecipient, error) {
			return []domain.EnrolledRecipient{pair, pair}, nil
		},
	}

	selector, err := NewSelector(repo, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSelector() error = %v", err)
	}

	jobs, err := selector.Select(context.Background(), at, 13, "")
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d, want 1 after dedup", len(jobs))
	}
}

func TestSelectorJobIDStablePerLocalDay(t *testing.T) {
	t.Parallel()

	repo := &fakeEnrollmentRepo{
		getEnabledEnrollmentsFn: func(ctx context.Context, campaignID string) ([]domain.EnrolledRecipient, error) {
			return []domain.EnrolledRecipient{
				{
					Enrollment: activeEnrollment("e1", "r1", "c1"),
					Recipient:  enabledRecipient("r1", "utc@example.com", "UTC"),
				},
			}, nil
		},
	}

	selector, err := NewSelector(repo, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSelector() error = %v", err)
	}

	first, err := selector.Select(context.Background(), time.Date(2026, 6, 15, 13, 0, 0, 0, time.UTC), 13, "")
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	second, err := selector.Select(context.Background(), time.Date(2026, 6, 15, 13, 30, 0, 0, time.UTC), 13, "")
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	if first[0].ID != second[0].ID {
		t.Fatalf("job ids differ within the same local day: %q vs %q", first[0].ID, second[0].ID)
	}

	nextDay, err := selector.Select(context.Background(), time.Date(2026, 6, 16, 13, 0, 0, 0, time.UTC), 13, "")
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if first[0].ID == nextDay[0].ID {
		t.Fatalf("job id %q should change on the next local day", first[0].ID)
	}
}

func TestSelectorPropagatesRepositoryError(t *testing.T) {
	t.Parallel()

	repoErr := errors.New("db unavailable")
	repo := &fakeEnrollmentRepo{
		getEnabledEnrollmentsFn: func(ctx context.Context, campaignID string) ([]domain.EnrolledRecipient, error) {
			return nil, repoErr
		},
	}

	selector, err := NewSelector(repo, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSelector() error = %v", err)
	}

	_, err = selector.Select(context.Background(), time.Now(), 21, "")
	if !errors.Is(err, repoErr) {
		t.Fatalf("Select() error = %v, want wrapped %v", err, repoErr)
	}
}

func TestSelectorRejectsInvalidTargetHour(t *testing.T) {
	t.Parallel()

	selector, err := NewSelector(&fakeEnrollmentRepo{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSelector() error = %v", err)
	}

	_, err = selector.Select(context.Background(), time.Now(), 24, "")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Select() error = %v, want validation error", err)
	}
}

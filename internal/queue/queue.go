package queue

import (
	"context"
	"time"

	"github.com/habitsforgood/reminder-engine/internal/domain"
)

const (
	// DefaultMaxAttempts is the attempt cap applied when a policy leaves it unset.
	DefaultMaxAttempts = 3
	// DefaultBaseDelay seeds the exponential backoff between retries.
	DefaultBaseDelay = 2 * time.Second

	defaultLeaseTTL        = 30 * time.Second
	defaultFailedRetention = 24 * time.Hour
)

// RetryPolicy governs how a job is retried after transient delivery failures.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Normalize fills zero fields with the reference defaults.
func (p RetryPolicy) Normalize() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	return p
}

// Delay returns the backoff before retrying after failed attempt n (1-based):
// BaseDelay * 2^(n-1).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	p = p.Normalize()
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// Lease is a time-bounded exclusive claim on a queued job. Attempt is the
// 1-based number of the delivery attempt this lease represents.
type Lease struct {
	Job       domain.DeliveryJob
	Attempt   int
	Owner     string
	ExpiresAt time.Time
}

// WorkQueue is the durable, at-least-once job queue decoupling selection
// from delivery. Implementations must guarantee a single lease winner per
// job while the lease is unexpired; an expired lease silently returns the
// job to the eligible pool.
type WorkQueue interface {
	// Enqueue durably stores the job. It either fully succeeds or returns an
	// error; there are no partial silent drops.
	Enqueue(ctx context.Context, job domain.DeliveryJob, policy RetryPolicy) error

	// Lease atomically claims at most one eligible job for workerID.
	// Returns (nil, nil) when no eligible job exists; callers should idle,
	// not spin.
	Lease(ctx context.Context, workerID string) (*Lease, error)

	// Ack permanently removes the job on the success path. Only the worker
	// currently holding the lease may ack; a caller whose lease was lost to
	// expiry and re-leasing gets ErrConflict.
	Ack(ctx context.Context, jobID, workerID string) error

	// RetryWithBackoff releases the lease and either re-queues the job with
	// an exponential-backoff eligibility time, or parks it in a terminal
	// failed state retained for inspection until purge once the attempt cap
	// is reached. Returns true when the job went terminal. Guarded by the
	// same lease-ownership check as Ack.
	RetryWithBackoff(ctx context.Context, jobID, workerID string, cause error) (terminal bool, err error)
}

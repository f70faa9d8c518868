package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/habitsforgood/reminder-engine/internal/domain"
)

type jobState string

const (
	stateEligible jobState = "eligible"
	stateLeased   jobState = "leased"
	stateFailed   jobState = "failed"
)

type memoryJob struct {
	job            domain.DeliveryJob
	policy         RetryPolicy
	state          jobState
	attemptCount   int
	nextEligibleAt time.Time
	leaseOwner     string
	leaseExpiresAt time.Time
	lastError      string
	failedAt       time.Time
}

// MemoryQueue is the in-process WorkQueue. Semantics match GormQueue so the
// worker pool is backend-agnostic; used in tests and single-node setups.
type MemoryQueue struct {
	mu              sync.Mutex
	jobs            map[string]*memoryJob
	leaseTTL        time.Duration
	failedRetention time.Duration
	now             func() time.Time
}

var _ WorkQueue = (*MemoryQueue)(nil)

// SetNow overrides the queue clock. Intended for tests.
func (q *MemoryQueue) SetNow(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if now != nil {
		q.now = now
	}
}

func NewMemoryQueue(leaseTTL, failedRetention time.Duration) *MemoryQueue {
	if leaseTTL <= 0 {
		leaseTTL = defaultLeaseTTL
	}
	if failedRetention <= 0 {
		failedRetention = defaultFailedRetention
	}
	return &MemoryQueue{
		jobs:            make(map[string]*memoryJob),
		leaseTTL:        leaseTTL,
		failedRetention: failedRetention,
		now:             time.Now,
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, job domain.DeliveryJob, policy RetryPolicy) error {
	if err := job.Validate(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.jobs[job.ID]; exists {
		return fmt.Errorf("%w: job %s already enqueued", domain.ErrConflict, job.ID)
	}

	q.jobs[job.ID] = &memoryJob{
		job:            job,
		policy:         policy.Normalize(),
		state:          stateEligible,
		nextEligibleAt: q.now(),
	}
	return nil
}

func (q *MemoryQueue) Lease(_ context.Context, workerID string) (*Lease, error) {
	if workerID == "" {
		return nil, fmt.Errorf("%w: worker id is required", domain.ErrValidation)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()

	// Oldest-first keeps the queue FIFO-ish without promising strict order.
	var candidate *memoryJob
	for _, j := range q.jobs {
		if !q.leasable(j, now) {
			continue
		}
		if candidate == nil || j.job.CreatedAt.Before(candidate.job.CreatedAt) {
			candidate = j
		}
	}
	if candidate == nil {
		return nil, nil
	}

	candidate.state = stateLeased
	candidate.leaseOwner = workerID
	candidate.leaseExpiresAt = now.Add(q.leaseTTL)

	return &Lease{
		Job:       candidate.job,
		Attempt:   candidate.attemptCount + 1,
		Owner:     workerID,
		ExpiresAt: candidate.leaseExpiresAt,
	}, nil
}

// leasable reports whether a job may be handed out: eligible and due, or
// leased with an expired lease (the crash-recovery path).
func (q *MemoryQueue) leasable(j *memoryJob, now time.Time) bool {
	switch j.state {
	case stateEligible:
		return !j.nextEligibleAt.After(now)
	case stateLeased:
		return j.leaseExpiresAt.Before(now)
	default:
		return false
	}
}

// heldBy rejects settles from a worker that no longer holds the lease.
// Re-leasing after expiry rewrites the owner, so a stale worker cannot ack
// or retry the job out from under the current holder.
func heldBy(j *memoryJob, jobID, workerID string) error {
	if j.state != stateLeased || j.leaseOwner != workerID {
		return fmt.Errorf("%w: job %s is not leased by %s", domain.ErrConflict, jobID, workerID)
	}
	return nil
}

func (q *MemoryQueue) Ack(_ context.Context, jobID, workerID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, exists := q.jobs[jobID]
	if !exists {
		return fmt.Errorf("%w: job %s", domain.ErrNotFound, jobID)
	}
	if err := heldBy(j, jobID, workerID); err != nil {
		return err
	}
	delete(q.jobs, jobID)
	return nil
}

func (q *MemoryQueue) RetryWithBackoff(_ context.Context, jobID, workerID string, cause error) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, exists := q.jobs[jobID]
	if !exists {
		return false, fmt.Errorf("%w: job %s", domain.ErrNotFound, jobID)
	}
	if err := heldBy(j, jobID, workerID); err != nil {
		return false, err
	}

	j.attemptCount++
	j.leaseOwner = ""
	j.leaseExpiresAt = time.Time{}
	if cause != nil {
		j.lastError = cause.Error()
	}

	if j.attemptCount >= j.policy.MaxAttempts {
		j.state = stateFailed
		j.failedAt = q.now()
		return true, nil
	}

	j.state = stateEligible
	j.nextEligibleAt = q.now().Add(j.policy.Delay(j.attemptCount))
	return false, nil
}

// PurgeExpiredFailed drops terminal-failed jobs older than the retention
// window and returns how many were removed.
func (q *MemoryQueue) PurgeExpiredFailed(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := q.now().Add(-q.failedRetention)
	purged := 0
	for id, j := range q.jobs {
		if j.state == stateFailed && j.failedAt.Before(cutoff) {
			delete(q.jobs, id)
			purged++
		}
	}
	return purged, nil
}

// Depth returns the number of jobs currently held, terminal-failed included.
func (q *MemoryQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// FailedCount returns the number of jobs parked in the terminal failed state.
func (q *MemoryQueue) FailedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, j := range q.jobs {
		if j.state == stateFailed {
			n++
		}
	}
	return n
}

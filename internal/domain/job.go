package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a publish job.
//
// queued -> processing -> {completed, failed}
//
// A failed job re-enters processing only through an explicit retry within
// the per-platform retry budget. Terminal states never revert, so a client
// polling job status sees monotonically improving or explicitly terminal
// status.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// SubResultStatus is the per-platform outcome state within a job.
type SubResultStatus string

const (
	SubResultPending     SubResultStatus = "pending"
	SubResultSucceeded   SubResultStatus = "succeeded"
	SubResultFailed      SubResultStatus = "failed"
	SubResultRateLimited SubResultStatus = "rate_limited"
)

// SubResult records the outcome of posting to a single platform.
type SubResult struct {
	Status   SubResultStatus `json:"status"`
	RemoteID string          `json:"remote_id,omitempty"`
	Attempts int             `json:"attempts"`
	// Terminal marks a failure that must not be retried, independent of
	// the remaining attempt budget.
	Terminal  bool       `json:"terminal,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	RetryAt   *time.Time `json:"retry_at,omitempty"`
}

// RetryPolicy bounds per-platform retries with exponential backoff.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy matches the task queue contract: 3 attempts per
// platform, 30s base delay, capped at 10 minutes.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   30 * time.Second,
		MaxDelay:    10 * time.Minute,
	}
}

// Backoff returns the delay before the given attempt number (1-based):
// base * 2^(attempt-1), capped at MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// PublishJob is a unit of work representing "publish this confession to
// these platforms". The platform set is fixed at creation; sub-results
// exist for exactly that set.
type PublishJob struct {
	ID           string
	ConfessionID string
	Platforms    []Platform
	SubResults   map[Platform]*SubResult
	Status       JobStatus
	AssetRef     string
	MaxAttempts  int
	LastError    *string
	// CancelRequested is set by callers retracting a job. The worker skips
	// jobs cancelled before pickup; cancellation after dispatch has started
	// lets in-flight calls finish but discards their outcome.
	CancelRequested bool
	NextAttemptAt   *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewPublishJob creates a queued job for an already-normalized platform set.
func NewPublishJob(confessionID string, platforms []Platform, policy RetryPolicy) (*PublishJob, error) {
	if confessionID == "" {
		return nil, fmt.Errorf("%w: confession_id is required", ErrInvalidPublishJob)
	}
	if len(platforms) == 0 {
		return nil, fmt.Errorf("%w: at least one platform is required", ErrInvalidPublishJob)
	}

	subResults := make(map[Platform]*SubResult, len(platforms))
	for _, p := range platforms {
		if !p.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPlatform, p)
		}
		if _, dup := subResults[p]; dup {
			return nil, fmt.Errorf("%w: duplicate platform %q", ErrInvalidPublishJob, p)
		}
		subResults[p] = &SubResult{Status: SubResultPending}
	}

	now := time.Now().UTC()
	return &PublishJob{
		ID:           uuid.NewString(),
		ConfessionID: confessionID,
		Platforms:    platforms,
		SubResults:   subResults,
		Status:       JobStatusQueued,
		MaxAttempts:  policy.MaxAttempts,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// PendingPlatforms returns the platforms that still need a post attempt:
// everything except already-succeeded ones (the idempotency guard — a
// platform that succeeded is never re-posted) and terminal failures.
func (j *PublishJob) PendingPlatforms() []Platform {
	pending := make([]Platform, 0, len(j.Platforms))
	for _, p := range j.Platforms {
		sub := j.SubResults[p]
		if sub == nil {
			continue
		}
		if sub.Status == SubResultSucceeded {
			continue
		}
		if sub.Terminal {
			continue
		}
		pending = append(pending, p)
	}
	return pending
}

// Begin transitions the job from queued (or a rescheduled processing state)
// into processing for a dispatch attempt.
func (j *PublishJob) Begin() error {
	if j.Status.Terminal() {
		return fmt.Errorf("%w: job %s is already %s", ErrInvalidState, j.ID, j.Status)
	}
	j.Status = JobStatusProcessing
	j.NextAttemptAt = nil
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// ApplyOutcome folds one platform's dispatch result into its sub-result.
// A platform outside the job's set is an internal invariant violation.
func (j *PublishJob) ApplyOutcome(p Platform, o PostOutcome) error {
	sub, ok := j.SubResults[p]
	if !ok {
		return fmt.Errorf("%w: %q (job %s)", ErrPlatformNotInJob, p, j.ID)
	}

	switch o.Kind {
	case OutcomeSuccess:
		sub.Status = SubResultSucceeded
		sub.RemoteID = o.RemoteID
		sub.Attempts++
		sub.LastError = ""
		sub.RetryAt = nil
	case OutcomeTransientFailure:
		sub.Status = SubResultFailed
		sub.Attempts++
		sub.LastError = o.Reason
		sub.RetryAt = nil
	case OutcomePermanentFailure, OutcomeUnsupportedContent:
		sub.Status = SubResultFailed
		sub.Attempts++
		sub.Terminal = true
		sub.LastError = o.Reason
		sub.RetryAt = nil
	case OutcomeUnavailable:
		// Configuration condition: terminal, but no retry attempt consumed.
		sub.Status = SubResultFailed
		sub.Terminal = true
		sub.LastError = o.Reason
		sub.RetryAt = nil
	case OutcomeRateLimited:
		sub.Status = SubResultRateLimited
		sub.LastError = o.Reason
		sub.RetryAt = o.NextAvailable
	default:
		return fmt.Errorf("%w: unknown outcome kind %q", ErrInvalidState, o.Kind)
	}

	j.UpdatedAt = time.Now().UTC()
	return nil
}

// Finalize recomputes the aggregate job status after all dispatched platform
// calls for the current attempt have returned (the barrier). It is a no-op
// on jobs that already reached a terminal state.
//
//	completed  — every sub-result succeeded
//	failed     — some sub-result is terminal, or exhausted its retry budget
//	processing — remaining work; NextAttemptAt is the earliest time any
//	             non-succeeded platform may be retried
func (j *PublishJob) Finalize(now time.Time, policy RetryPolicy) {
	if j.Status.Terminal() {
		return
	}

	allSucceeded := true
	var failedSub *SubResult
	var earliestRetry *time.Time

	for _, p := range j.Platforms {
		sub := j.SubResults[p]
		switch sub.Status {
		case SubResultSucceeded:
			continue
		case SubResultFailed:
			allSucceeded = false
			if sub.Terminal || sub.Attempts >= policy.MaxAttempts {
				if failedSub == nil {
					failedSub = sub
				}
				continue
			}
			retryAt := now.Add(policy.Backoff(sub.Attempts))
			earliestRetry = earlier(earliestRetry, retryAt)
		case SubResultRateLimited:
			allSucceeded = false
			retryAt := now
			if sub.RetryAt != nil {
				retryAt = *sub.RetryAt
			}
			earliestRetry = earlier(earliestRetry, retryAt)
		default: // pending, never dispatched this attempt
			allSucceeded = false
			earliestRetry = earlier(earliestRetry, now)
		}
	}

	switch {
	case allSucceeded:
		j.Status = JobStatusCompleted
		j.LastError = nil
		j.NextAttemptAt = nil
	case failedSub != nil:
		j.Status = JobStatusFailed
		msg := failedSub.LastError
		j.LastError = &msg
		j.NextAttemptAt = nil
	default:
		j.Status = JobStatusProcessing
		j.NextAttemptAt = earliestRetry
	}
	j.UpdatedAt = time.Now().UTC()
}

// Cancel marks the job failed with a cancellation reason. Outcomes of any
// in-flight platform calls are discarded by the caller.
func (j *PublishJob) Cancel(reason string) {
	if j.Status.Terminal() {
		return
	}
	j.Status = JobStatusFailed
	msg := "cancelled: " + reason
	j.LastError = &msg
	j.NextAttemptAt = nil
	j.UpdatedAt = time.Now().UTC()
}

func earlier(current *time.Time, candidate time.Time) *time.Time {
	if current == nil || candidate.Before(*current) {
		return &candidate
	}
	return current
}

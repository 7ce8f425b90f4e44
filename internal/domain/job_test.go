package domain

import (
	"errors"
	"testing"
	"time"
)

func newTestJob(t *testing.T, platforms ...Platform) *PublishJob {
	t.Helper()
	job, err := NewPublishJob("confession-1", platforms, DefaultRetryPolicy())
	if err != nil {
		t.Fatalf("NewPublishJob() error = %v", err)
	}
	return job
}

func TestNewPublishJob_Validation(t *testing.T) {
	testCases := []struct {
		name         string
		confessionID string
		platforms    []Platform
		wantErr      error
	}{
		{
			name:         "valid job",
			confessionID: "confession-1",
			platforms:    []Platform{PlatformTwitter, PlatformFacebook},
		},
		{
			name:      "missing confession id",
			platforms: []Platform{PlatformTwitter},
			wantErr:   ErrInvalidPublishJob,
		},
		{
			name:         "empty platform set",
			confessionID: "confession-1",
			wantErr:      ErrInvalidPublishJob,
		},
		{
			name:         "unknown platform",
			confessionID: "confession-1",
			platforms:    []Platform{Platform("myspace")},
			wantErr:      ErrUnknownPlatform,
		},
		{
			name:         "duplicate platform",
			confessionID: "confession-1",
			platforms:    []Platform{PlatformTwitter, PlatformTwitter},
			wantErr:      ErrInvalidPublishJob,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			job, err := NewPublishJob(tc.confessionID, tc.platforms, DefaultRetryPolicy())
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("NewPublishJob() error = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewPublishJob() error = %v", err)
			}
			if job.Status != JobStatusQueued {
				t.Errorf("Status = %v, want %v", job.Status, JobStatusQueued)
			}
			if len(job.SubResults) != len(tc.platforms) {
				t.Errorf("len(SubResults) = %d, want %d", len(job.SubResults), len(tc.platforms))
			}
			for _, p := range tc.platforms {
				if job.SubResults[p].Status != SubResultPending {
					t.Errorf("SubResults[%s].Status = %v, want pending", p, job.SubResults[p].Status)
				}
			}
		})
	}
}

func TestPendingPlatforms_SkipsSucceededAndTerminal(t *testing.T) {
	job := newTestJob(t, PlatformFacebook, PlatformInstagram, PlatformTwitter)

	if err := job.ApplyOutcome(PlatformFacebook, Success("fb-1")); err != nil {
		t.Fatalf("ApplyOutcome() error = %v", err)
	}
	if err := job.ApplyOutcome(PlatformInstagram, PermanentFailure("rejected")); err != nil {
		t.Fatalf("ApplyOutcome() error = %v", err)
	}

	pending := job.PendingPlatforms()
	if len(pending) != 1 || pending[0] != PlatformTwitter {
		t.Errorf("PendingPlatforms() = %v, want [twitter]", pending)
	}
}

func TestApplyOutcome(t *testing.T) {
	retryAt := time.Now().Add(10 * time.Minute)

	testCases := []struct {
		name         string
		outcome      PostOutcome
		wantStatus   SubResultStatus
		wantAttempts int
		wantTerminal bool
		wantRetryAt  bool
	}{
		{
			name:         "success",
			outcome:      Success("remote-1"),
			wantStatus:   SubResultSucceeded,
			wantAttempts: 1,
		},
		{
			name:         "transient failure consumes attempt",
			outcome:      TransientFailure("timeout"),
			wantStatus:   SubResultFailed,
			wantAttempts: 1,
		},
		{
			name:         "permanent failure is terminal",
			outcome:      PermanentFailure("auth rejected"),
			wantStatus:   SubResultFailed,
			wantAttempts: 1,
			wantTerminal: true,
		},
		{
			name:         "unsupported content is terminal",
			outcome:      UnsupportedContent("needs asset"),
			wantStatus:   SubResultFailed,
			wantAttempts: 1,
			wantTerminal: true,
		},
		{
			name:         "unavailable is terminal without consuming an attempt",
			outcome:      Unavailable("not configured"),
			wantStatus:   SubResultFailed,
			wantAttempts: 0,
			wantTerminal: true,
		},
		{
			name:        "rate limited records retry time without consuming an attempt",
			outcome:     RateLimited(&retryAt),
			wantStatus:  SubResultRateLimited,
			wantRetryAt: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			job := newTestJob(t, PlatformTwitter)
			if err := job.ApplyOutcome(PlatformTwitter, tc.outcome); err != nil {
				t.Fatalf("ApplyOutcome() error = %v", err)
			}

			sub := job.SubResults[PlatformTwitter]
			if sub.Status != tc.wantStatus {
				t.Errorf("Status = %v, want %v", sub.Status, tc.wantStatus)
			}
			if sub.Attempts != tc.wantAttempts {
				t.Errorf("Attempts = %d, want %d", sub.Attempts, tc.wantAttempts)
			}
			if sub.Terminal != tc.wantTerminal {
				t.Errorf("Terminal = %v, want %v", sub.Terminal, tc.wantTerminal)
			}
			if (sub.RetryAt != nil) != tc.wantRetryAt {
				t.Errorf("RetryAt = %v, want set=%v", sub.RetryAt, tc.wantRetryAt)
			}
		})
	}
}

func TestApplyOutcome_PlatformOutsideJob(t *testing.T) {
	job := newTestJob(t, PlatformTwitter)
	err := job.ApplyOutcome(PlatformFacebook, Success("fb-1"))
	if !errors.Is(err, ErrPlatformNotInJob) {
		t.Fatalf("ApplyOutcome() error = %v, want ErrPlatformNotInJob", err)
	}
}

func TestFinalize_AllSucceeded(t *testing.T) {
	job := newTestJob(t, PlatformFacebook, PlatformTwitter)
	mustApply(t, job, PlatformFacebook, Success("fb-1"))
	mustApply(t, job, PlatformTwitter, Success("tw-1"))

	job.Finalize(time.Now(), DefaultRetryPolicy())

	if job.Status != JobStatusCompleted {
		t.Errorf("Status = %v, want completed", job.Status)
	}
	if job.NextAttemptAt != nil {
		t.Errorf("NextAttemptAt = %v, want nil", job.NextAttemptAt)
	}
}

func TestFinalize_PartialFailureReschedules(t *testing.T) {
	// One platform succeeds, one fails transiently: the job stays
	// processing and only the failed platform is retried later.
	job := newTestJob(t, PlatformFacebook, PlatformTwitter)
	mustApply(t, job, PlatformFacebook, Success("fb-1"))
	mustApply(t, job, PlatformTwitter, TransientFailure("upstream returned 503"))

	now := time.Now()
	policy := DefaultRetryPolicy()
	job.Finalize(now, policy)

	if job.Status != JobStatusProcessing {
		t.Fatalf("Status = %v, want processing", job.Status)
	}
	if job.NextAttemptAt == nil {
		t.Fatal("NextAttemptAt = nil, want backoff time")
	}
	wantRetry := now.Add(policy.Backoff(1))
	if !job.NextAttemptAt.Equal(wantRetry) {
		t.Errorf("NextAttemptAt = %v, want %v", job.NextAttemptAt, wantRetry)
	}

	pending := job.PendingPlatforms()
	if len(pending) != 1 || pending[0] != PlatformTwitter {
		t.Errorf("PendingPlatforms() = %v, want [twitter]", pending)
	}
}

func TestFinalize_TerminalFailureFailsJob(t *testing.T) {
	job := newTestJob(t, PlatformFacebook, PlatformTwitter)
	mustApply(t, job, PlatformFacebook, Success("fb-1"))
	mustApply(t, job, PlatformTwitter, PermanentFailure("authorization rejected (401)"))

	job.Finalize(time.Now(), DefaultRetryPolicy())

	if job.Status != JobStatusFailed {
		t.Fatalf("Status = %v, want failed", job.Status)
	}
	if job.LastError == nil || *job.LastError != "authorization rejected (401)" {
		t.Errorf("LastError = %v, want the terminal failure reason", job.LastError)
	}
}

func TestFinalize_ExhaustedRetryBudgetFailsJob(t *testing.T) {
	job := newTestJob(t, PlatformTwitter)
	policy := DefaultRetryPolicy()

	for i := 0; i < policy.MaxAttempts; i++ {
		mustApply(t, job, PlatformTwitter, TransientFailure("timeout"))
	}
	job.Finalize(time.Now(), policy)

	if job.Status != JobStatusFailed {
		t.Errorf("Status = %v, want failed after %d attempts", job.Status, policy.MaxAttempts)
	}
}

func TestFinalize_RateLimitedUsesPlatformRetryTime(t *testing.T) {
	job := newTestJob(t, PlatformTwitter)
	retryAt := time.Now().Add(42 * time.Minute)
	mustApply(t, job, PlatformTwitter, RateLimited(&retryAt))

	job.Finalize(time.Now(), DefaultRetryPolicy())

	if job.Status != JobStatusProcessing {
		t.Fatalf("Status = %v, want processing", job.Status)
	}
	if job.NextAttemptAt == nil || !job.NextAttemptAt.Equal(retryAt) {
		t.Errorf("NextAttemptAt = %v, want %v", job.NextAttemptAt, retryAt)
	}
}

func TestFinalize_PicksEarliestRetry(t *testing.T) {
	job := newTestJob(t, PlatformFacebook, PlatformTwitter)
	now := time.Now()
	policy := DefaultRetryPolicy()

	laterRetry := now.Add(45 * time.Minute)
	mustApply(t, job, PlatformFacebook, RateLimited(&laterRetry))
	mustApply(t, job, PlatformTwitter, TransientFailure("timeout"))

	job.Finalize(now, policy)

	// Twitter's backoff (30s) is earlier than Facebook's rate-limit window.
	wantRetry := now.Add(policy.Backoff(1))
	if job.NextAttemptAt == nil || !job.NextAttemptAt.Equal(wantRetry) {
		t.Errorf("NextAttemptAt = %v, want %v", job.NextAttemptAt, wantRetry)
	}
}

func TestFinalize_TerminalStatusNeverReverts(t *testing.T) {
	job := newTestJob(t, PlatformTwitter)
	mustApply(t, job, PlatformTwitter, Success("tw-1"))
	job.Finalize(time.Now(), DefaultRetryPolicy())

	if job.Status != JobStatusCompleted {
		t.Fatalf("Status = %v, want completed", job.Status)
	}

	job.Finalize(time.Now(), DefaultRetryPolicy())
	if job.Status != JobStatusCompleted {
		t.Errorf("Status = %v after second Finalize, want completed", job.Status)
	}
}

func TestBegin_TerminalJobRejected(t *testing.T) {
	job := newTestJob(t, PlatformTwitter)
	mustApply(t, job, PlatformTwitter, Success("tw-1"))
	job.Finalize(time.Now(), DefaultRetryPolicy())

	if err := job.Begin(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Begin() error = %v, want ErrInvalidState", err)
	}
}

func TestCancel(t *testing.T) {
	job := newTestJob(t, PlatformTwitter)
	job.Cancel("cancel requested before dispatch")

	if job.Status != JobStatusFailed {
		t.Errorf("Status = %v, want failed", job.Status)
	}
	if job.LastError == nil || *job.LastError != "cancelled: cancel requested before dispatch" {
		t.Errorf("LastError = %v, want cancellation reason", job.LastError)
	}

	// Cancelling a terminal job is a no-op.
	before := *job.LastError
	job.Cancel("again")
	if *job.LastError != before {
		t.Errorf("LastError changed on second Cancel: %v", *job.LastError)
	}
}

func TestRetryPolicy_Backoff(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: 30 * time.Second, MaxDelay: 10 * time.Minute}

	testCases := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 30 * time.Second},
		{attempt: 1, want: 30 * time.Second},
		{attempt: 2, want: 60 * time.Second},
		{attempt: 3, want: 120 * time.Second},
		{attempt: 10, want: 10 * time.Minute},
	}

	for _, tc := range testCases {
		if got := policy.Backoff(tc.attempt); got != tc.want {
			t.Errorf("Backoff(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func mustApply(t *testing.T, job *PublishJob, p Platform, o PostOutcome) {
	t.Helper()
	if err := job.ApplyOutcome(p, o); err != nil {
		t.Fatalf("ApplyOutcome(%s) error = %v", p, err)
	}
}

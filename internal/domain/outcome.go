package domain

import "time"

// OutcomeKind classifies the result of a single platform post attempt.
// Expected conditions (rate limits, missing credentials) are values here,
// not errors, so callers cannot mistake them for unhandled failures.
type OutcomeKind string

const (
	// OutcomeSuccess means the platform accepted the post.
	OutcomeSuccess OutcomeKind = "success"
	// OutcomeTransientFailure means the attempt failed in a way that is
	// safe to retry (timeouts, 5xx responses, upstream rate limits).
	OutcomeTransientFailure OutcomeKind = "transient_failure"
	// OutcomePermanentFailure means the platform rejected the post and a
	// retry would not change the result (invalid media, revoked auth).
	OutcomePermanentFailure OutcomeKind = "permanent_failure"
	// OutcomeUnsupportedContent means the content cannot be posted to the
	// platform at all (e.g. missing required asset).
	OutcomeUnsupportedContent OutcomeKind = "unsupported_content"
	// OutcomeUnavailable means the platform is not configured (missing
	// credentials). It is a configuration condition and consumes no retry.
	OutcomeUnavailable OutcomeKind = "unavailable"
	// OutcomeRateLimited means our own admission control denied the
	// attempt; the job should be rescheduled, not failed.
	OutcomeRateLimited OutcomeKind = "rate_limited"
)

// PostOutcome is the result of posting to exactly one platform.
type PostOutcome struct {
	Kind     OutcomeKind
	RemoteID string
	Reason   string
	// NextAvailable is set for rate_limited outcomes when the limiter can
	// predict when the window reopens.
	NextAvailable *time.Time
}

// Success builds a success outcome carrying the platform's post ID.
func Success(remoteID string) PostOutcome {
	return PostOutcome{Kind: OutcomeSuccess, RemoteID: remoteID}
}

// TransientFailure builds a retryable failure outcome.
func TransientFailure(reason string) PostOutcome {
	return PostOutcome{Kind: OutcomeTransientFailure, Reason: reason}
}

// PermanentFailure builds a terminal failure outcome.
func PermanentFailure(reason string) PostOutcome {
	return PostOutcome{Kind: OutcomePermanentFailure, Reason: reason}
}

// UnsupportedContent builds a terminal outcome for content the platform
// cannot accept.
func UnsupportedContent(reason string) PostOutcome {
	return PostOutcome{Kind: OutcomeUnsupportedContent, Reason: reason}
}

// Unavailable builds a configuration-level outcome for unconfigured platforms.
func Unavailable(reason string) PostOutcome {
	return PostOutcome{Kind: OutcomeUnavailable, Reason: reason}
}

// RateLimited builds an admission-denied outcome.
func RateLimited(nextAvailable *time.Time) PostOutcome {
	return PostOutcome{Kind: OutcomeRateLimited, Reason: "rate limit exceeded", NextAvailable: nextAvailable}
}

// Terminal reports whether the outcome must not be retried.
func (o PostOutcome) Terminal() bool {
	switch o.Kind {
	case OutcomePermanentFailure, OutcomeUnsupportedContent, OutcomeUnavailable:
		return true
	}
	return false
}

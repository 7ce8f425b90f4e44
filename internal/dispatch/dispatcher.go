// Package dispatch fans a publish job out to its target platforms.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonesrussell/whisper-vault/internal/domain"
	"github.com/jonesrussell/whisper-vault/internal/logger"
	"github.com/jonesrussell/whisper-vault/internal/platform"
	"github.com/jonesrussell/whisper-vault/internal/ratelimit"
)

const defaultPlatformTimeout = 10 * time.Second

// Dispatcher coordinates one dispatch attempt across a job's platforms.
// Platforms are processed concurrently and independently: one platform's
// failure never blocks or rolls back another's success, and total attempt
// latency is bounded by the slowest single platform.
type Dispatcher struct {
	registry *platform.Registry
	limiter  ratelimit.Limiter
	timeout  time.Duration
	logger   logger.Logger
}

// NewDispatcher creates a dispatcher. timeout bounds each platform call
// independently.
func NewDispatcher(registry *platform.Registry, limiter ratelimit.Limiter, timeout time.Duration, log logger.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultPlatformTimeout
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Dispatcher{
		registry: registry,
		limiter:  limiter,
		timeout:  timeout,
		logger:   log,
	}
}

// Dispatch posts the content to every platform the job still needs.
// Already-succeeded platforms are skipped entirely — the idempotency guard
// that keeps at-least-once execution from double-posting. The returned map
// holds an outcome for exactly the platforms attempted this round.
//
// A non-nil error signals an internal invariant violation (a platform with
// no registered poster); the caller should abort the job with a diagnostic,
// not retry it.
func (d *Dispatcher) Dispatch(ctx context.Context, job *domain.PublishJob, content string) (map[domain.Platform]domain.PostOutcome, error) {
	pending := job.PendingPlatforms()

	// Resolve posters up front so an invariant violation aborts before any
	// platform call is made.
	posters := make(map[domain.Platform]platform.Poster, len(pending))
	for _, p := range pending {
		poster, err := d.registry.Get(p)
		if err != nil {
			return nil, fmt.Errorf("dispatch job %s: %w", job.ID, err)
		}
		posters[p] = poster
	}

	results := make(map[domain.Platform]domain.PostOutcome, len(pending))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, p := range pending {
		wg.Add(1)
		go func(p domain.Platform) {
			defer wg.Done()
			outcome := d.dispatchOne(ctx, p, posters[p], content, job.AssetRef)
			mu.Lock()
			results[p] = outcome
			mu.Unlock()
		}(p)
	}

	// Barrier: the job's aggregate status is computed only after every
	// platform call for this attempt has returned.
	wg.Wait()

	return results, nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, p domain.Platform, poster platform.Poster, content, assetRef string) domain.PostOutcome {
	admitted, err := d.limiter.Admit(ctx, p)
	if err != nil {
		return domain.TransientFailure(fmt.Sprintf("rate limiter: %v", err))
	}
	if !admitted {
		var next *time.Time
		if at, ok, naErr := d.limiter.NextAvailable(ctx, p); naErr == nil && ok {
			next = &at
		}
		d.logger.Debug("platform admission denied",
			logger.String("platform", string(p)))
		return domain.RateLimited(next)
	}

	postCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	outcome := poster.Post(postCtx, content, assetRef)

	if outcome.Kind == domain.OutcomeSuccess {
		if recordErr := d.limiter.Record(ctx, p); recordErr != nil {
			d.logger.Warn("failed to record post against rate limit",
				logger.String("platform", string(p)),
				logger.Error(recordErr))
		}
	} else {
		if releaseErr := d.limiter.Release(ctx, p); releaseErr != nil {
			d.logger.Warn("failed to release rate limit reservation",
				logger.String("platform", string(p)),
				logger.Error(releaseErr))
		}
	}

	return outcome
}

// Package worker provides the background workers: the publish worker that
// drains the durable job queue, and the moderation worker that decides
// pending confessions.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonesrussell/whisper-vault/internal/config"
	"github.com/jonesrussell/whisper-vault/internal/database"
	"github.com/jonesrussell/whisper-vault/internal/dispatch"
	"github.com/jonesrussell/whisper-vault/internal/domain"
	"github.com/jonesrussell/whisper-vault/internal/logger"
	"github.com/jonesrussell/whisper-vault/internal/metrics"
	"github.com/jonesrussell/whisper-vault/internal/render"
)

const (
	defaultPollInterval     = 5 * time.Second
	defaultBatchSize        = 20
	defaultStaleAge         = 5 * time.Minute
	recoveryCheckInterval   = 1 * time.Minute
	defaultRenderTheme      = "midnight"
	renderTimeoutPerAttempt = 15 * time.Second
)

// PublishWorker polls the job queue and executes publish jobs. Execution is
// at-least-once: a claimed job that dies with the worker is recovered by the
// stale-lease sweep and claimed again, and the per-platform sub-results make
// the re-run skip anything that already succeeded.
type PublishWorker struct {
	jobs        *database.JobRepository
	confessions *database.ConfessionRepository
	dispatcher  *dispatch.Dispatcher
	renderer    render.Renderer
	theme       string
	collectors  *metrics.Collectors
	tracker     metrics.Tracker
	logger      logger.Logger

	pollInterval time.Duration
	batchSize    int
	staleAge     time.Duration
	policy       domain.RetryPolicy

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

// PublishWorkerOptions bundles the worker's collaborators.
type PublishWorkerOptions struct {
	Jobs        *database.JobRepository
	Confessions *database.ConfessionRepository
	Dispatcher  *dispatch.Dispatcher
	Renderer    render.Renderer // nil when no renderer is configured
	Theme       string
	Collectors  *metrics.Collectors
	Tracker     metrics.Tracker
	Config      config.PublishConfig
	Logger      logger.Logger
}

// NewPublishWorker creates a publish worker.
func NewPublishWorker(opts PublishWorkerOptions) *PublishWorker {
	cfg := opts.Config
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.StaleAge <= 0 {
		cfg.StaleAge = defaultStaleAge
	}

	policy := domain.DefaultRetryPolicy()
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.BackoffBase > 0 {
		policy.BaseDelay = cfg.BackoffBase
	}
	if cfg.BackoffCap > 0 {
		policy.MaxDelay = cfg.BackoffCap
	}

	theme := opts.Theme
	if theme == "" {
		theme = defaultRenderTheme
	}
	tracker := opts.Tracker
	if tracker == nil {
		tracker = metrics.NopTracker{}
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &PublishWorker{
		jobs:         opts.Jobs,
		confessions:  opts.Confessions,
		dispatcher:   opts.Dispatcher,
		renderer:     opts.Renderer,
		theme:        theme,
		collectors:   opts.Collectors,
		tracker:      tracker,
		logger:       log,
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
		staleAge:     cfg.StaleAge,
		policy:       policy,
		stopChan:     make(chan struct{}),
	}
}

// Start begins the polling and lease recovery loops.
func (w *PublishWorker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	w.wg.Add(1)
	go w.runRecovery(ctx)

	w.logger.Info("publish worker started",
		logger.Duration("poll_interval", w.pollInterval),
		logger.Int("batch_size", w.batchSize))
}

// Stop gracefully stops the worker, waiting for in-flight jobs.
func (w *PublishWorker) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.started = false
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("publish worker stopped")
}

// IsRunning returns whether the worker is currently running.
func (w *PublishWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started
}

func (w *PublishWorker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Process immediately on start
	w.processOnce(ctx)

	for {
		select {
		case <-ticker.C:
			w.processOnce(ctx)
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *PublishWorker) processOnce(ctx context.Context) {
	claimed, err := w.jobs.ClaimDue(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("failed to claim due jobs", logger.Error(err))
		return
	}
	if len(claimed) == 0 {
		return
	}

	w.logger.Debug("processing claimed jobs", logger.Int("count", len(claimed)))
	for _, job := range claimed {
		w.processJob(ctx, job)
	}
}

// processJob runs one dispatch attempt for a claimed job and persists the
// result.
func (w *PublishWorker) processJob(ctx context.Context, job *domain.PublishJob) {
	if job.CancelRequested {
		job.Cancel("cancel requested before dispatch")
		w.persist(ctx, job)
		return
	}

	confession, err := w.confessions.GetByID(ctx, job.ConfessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			w.abortJob(ctx, job, "confession not found")
			return
		}
		// Transient DB error: leave the lease to the stale sweep.
		w.logger.Error("failed to load confession for job",
			logger.String("job_id", job.ID),
			logger.Error(err))
		return
	}
	if !confession.Publishable() {
		w.abortJob(ctx, job, "confession is not publishable")
		return
	}

	if beginErr := job.Begin(); beginErr != nil {
		w.logger.Error("claimed a terminal job", logger.String("job_id", job.ID), logger.Error(beginErr))
		return
	}

	w.renderAssetIfNeeded(ctx, job, confession.Content)

	start := time.Now()
	results, dispatchErr := w.dispatcher.Dispatch(ctx, job, confession.Content)
	w.collectors.DispatchDuration.Observe(time.Since(start).Seconds())
	if dispatchErr != nil {
		// Poster registry invariant violation; retrying cannot help.
		w.abortJob(ctx, job, dispatchErr.Error())
		return
	}

	// Cancellation that arrived while platform calls were in flight discards
	// their outcomes: the posts may exist remotely, but the job reports
	// cancelled rather than pretending the retraction succeeded.
	if w.cancelledMeanwhile(ctx, job.ID) {
		job.Cancel("cancel requested during dispatch")
		w.persist(ctx, job)
		return
	}

	for p, outcome := range results {
		if applyErr := job.ApplyOutcome(p, outcome); applyErr != nil {
			w.logger.Error("failed to apply outcome",
				logger.String("job_id", job.ID),
				logger.String("platform", string(p)),
				logger.Error(applyErr))
			continue
		}
		w.recordOutcome(ctx, job, p, outcome)
	}

	job.Finalize(time.Now().UTC(), w.policy)
	w.persist(ctx, job)

	if job.Status.Terminal() {
		w.collectors.JobsFinalized.WithLabelValues(string(job.Status)).Inc()
	}
}

// renderAssetIfNeeded produces the shared image asset once per job. A render
// failure terminally fails the asset-requiring platforms this attempt; the
// rest still dispatch.
func (w *PublishWorker) renderAssetIfNeeded(ctx context.Context, job *domain.PublishJob, content string) {
	if job.AssetRef != "" {
		return
	}

	needed := false
	for _, p := range job.PendingPlatforms() {
		if p.RequiresAsset() {
			needed = true
			break
		}
	}
	if !needed || w.renderer == nil {
		return
	}

	renderCtx, cancel := context.WithTimeout(ctx, renderTimeoutPerAttempt)
	defer cancel()

	assetRef, err := w.renderer.Render(renderCtx, content, w.theme)
	if err != nil {
		w.logger.Warn("asset rendering failed",
			logger.String("job_id", job.ID),
			logger.Error(err))
		return
	}
	job.AssetRef = assetRef
}

// abortJob terminally fails every remaining platform with the given reason
// and finalizes the job.
func (w *PublishWorker) abortJob(ctx context.Context, job *domain.PublishJob, reason string) {
	for _, p := range job.PendingPlatforms() {
		if err := job.ApplyOutcome(p, domain.PermanentFailure(reason)); err != nil {
			w.logger.Error("failed to abort platform",
				logger.String("job_id", job.ID),
				logger.String("platform", string(p)),
				logger.Error(err))
		}
	}
	job.Finalize(time.Now().UTC(), w.policy)
	w.persist(ctx, job)

	if job.Status.Terminal() {
		w.collectors.JobsFinalized.WithLabelValues(string(job.Status)).Inc()
	}
}

func (w *PublishWorker) cancelledMeanwhile(ctx context.Context, jobID string) bool {
	fresh, err := w.jobs.GetByID(ctx, jobID)
	if err != nil {
		w.logger.Warn("failed to re-check cancellation",
			logger.String("job_id", jobID),
			logger.Error(err))
		return false
	}
	return fresh.CancelRequested
}

func (w *PublishWorker) recordOutcome(ctx context.Context, job *domain.PublishJob, p domain.Platform, outcome domain.PostOutcome) {
	name := string(p)
	switch outcome.Kind {
	case domain.OutcomeSuccess:
		w.collectors.PostsPublished.WithLabelValues(name).Inc()
		_ = w.tracker.IncrementPublished(ctx, name)
		_ = w.tracker.AddRecentPost(ctx, metrics.RecentPost{
			JobID:        job.ID,
			ConfessionID: job.ConfessionID,
			Platform:     name,
			RemoteID:     outcome.RemoteID,
			PostedAt:     time.Now().UTC(),
		})
		w.logger.Info("post published",
			logger.String("job_id", job.ID),
			logger.String("platform", name),
			logger.String("remote_id", outcome.RemoteID))
	case domain.OutcomeRateLimited:
		w.collectors.RateLimitDenials.WithLabelValues(name).Inc()
		_ = w.tracker.IncrementRateLimited(ctx, name)
		w.logger.Debug("post deferred by rate limit",
			logger.String("job_id", job.ID),
			logger.String("platform", name))
	default:
		w.collectors.PostFailures.WithLabelValues(name, string(outcome.Kind)).Inc()
		_ = w.tracker.IncrementFailed(ctx, name)
		w.logger.Warn("post attempt failed",
			logger.String("job_id", job.ID),
			logger.String("platform", name),
			logger.String("kind", string(outcome.Kind)),
			logger.String("reason", outcome.Reason))
	}
}

func (w *PublishWorker) persist(ctx context.Context, job *domain.PublishJob) {
	if err := w.jobs.Update(ctx, job); err != nil {
		// The lease stays claimed; the stale sweep will reschedule and the
		// sub-results guard against double-posting on the re-run.
		w.logger.Error("failed to persist job state",
			logger.String("job_id", job.ID),
			logger.Error(err))
	}
}

// runRecovery reschedules claimed jobs abandoned by crashed workers.
func (w *PublishWorker) runRecovery(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(recoveryCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			reset, err := w.jobs.ResetStale(ctx, w.staleAge)
			if err != nil {
				w.logger.Error("lease recovery failed", logger.Error(err))
			} else if reset > 0 {
				w.logger.Warn("recovered stale publish jobs", logger.Int64("reset", reset))
			}
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// GetStats returns current worker and queue statistics.
func (w *PublishWorker) GetStats(ctx context.Context) (map[string]any, error) {
	stats, err := w.jobs.GetStats(ctx)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"queued":        stats.Queued,
		"processing":    stats.Processing,
		"completed":     stats.Completed,
		"failed":        stats.Failed,
		"poll_interval": w.pollInterval.String(),
		"batch_size":    w.batchSize,
		"running":       w.IsRunning(),
	}, nil
}

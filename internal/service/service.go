// Package service implements the application operations behind the HTTP API:
// confession submission, publish job management, and status queries.
package service

import (
	"context"
	"fmt"

	"github.com/jonesrussell/whisper-vault/internal/config"
	"github.com/jonesrussell/whisper-vault/internal/database"
	"github.com/jonesrussell/whisper-vault/internal/dedup"
	"github.com/jonesrussell/whisper-vault/internal/domain"
	"github.com/jonesrussell/whisper-vault/internal/logger"
	"github.com/jonesrussell/whisper-vault/internal/metrics"
	"github.com/jonesrussell/whisper-vault/internal/moderation"
)

// Service wires confession moderation and publish job management together.
// All dependencies are injected; nothing here is process-global.
type Service struct {
	confessions *database.ConfessionRepository
	jobs        *database.JobRepository
	gate        *moderation.Gate
	collectors  *metrics.Collectors
	tracker     metrics.Tracker
	// dedup is optional; nil disables duplicate-content rejection.
	dedup     *dedup.Tracker
	policy    domain.RetryPolicy
	platforms config.PlatformCredentials
	// asyncModeration defers the classifier verdict to the moderation
	// worker; the deterministic rule scan always runs inline.
	asyncModeration bool
	logger          logger.Logger
}

// Options bundles the service's collaborators.
type Options struct {
	Confessions     *database.ConfessionRepository
	Jobs            *database.JobRepository
	Gate            *moderation.Gate
	Collectors      *metrics.Collectors
	Tracker         metrics.Tracker
	Dedup           *dedup.Tracker
	RetryPolicy     domain.RetryPolicy
	Platforms       config.PlatformCredentials
	AsyncModeration bool
	Logger          logger.Logger
}

// New creates the service.
func New(opts Options) *Service {
	tracker := opts.Tracker
	if tracker == nil {
		tracker = metrics.NopTracker{}
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	policy := opts.RetryPolicy
	if policy.MaxAttempts <= 0 {
		policy = domain.DefaultRetryPolicy()
	}
	return &Service{
		confessions:     opts.Confessions,
		jobs:            opts.Jobs,
		gate:            opts.Gate,
		collectors:      opts.Collectors,
		tracker:         tracker,
		dedup:           opts.Dedup,
		policy:          policy,
		platforms:       opts.Platforms,
		asyncModeration: opts.AsyncModeration,
		logger:          log,
	}
}

// SubmitConfessionInput is the validated payload for a new confession.
type SubmitConfessionInput struct {
	Content   string
	Age       int
	Gender    string
	Language  *string
	Anonymous bool
	UserID    *string
}

// SubmitConfession accepts a confession and moderates it. In synchronous
// mode the full gate runs before the response; in async mode only the rule
// scan runs inline and clean content stays pending for the moderation
// worker. Either way a rule match blocks before anything is stored as
// publishable.
func (s *Service) SubmitConfession(ctx context.Context, input SubmitConfessionInput) (*domain.Confession, error) {
	confession, err := domain.NewConfession(input.Content, input.Age, input.Gender, input.Anonymous, input.UserID)
	if err != nil {
		return nil, err
	}
	confession.Language = input.Language

	if s.dedup != nil && s.dedup.Seen(ctx, confession.Content) {
		return nil, domain.ErrDuplicateContent
	}

	s.collectors.ConfessionsSubmitted.Inc()

	if s.asyncModeration && s.gate.HasClassifier() {
		if decision, matched := s.gate.CheckRules(confession.Content); matched {
			s.applyDecision(confession, decision)
		}
	} else {
		s.applyDecision(confession, s.gate.Decide(ctx, confession.Content, confession.Age))
	}

	if createErr := s.confessions.Create(ctx, confession); createErr != nil {
		return nil, fmt.Errorf("store confession: %w", createErr)
	}
	if s.dedup != nil {
		// Best effort: a cache write failure only weakens dedup, never the
		// submission.
		_ = s.dedup.Remember(ctx, confession.Content)
	}

	s.logger.Info("confession submitted",
		logger.String("confession_id", confession.ID),
		logger.String("status", string(confession.Status)),
		logger.Bool("anonymous", confession.Anonymous))
	return confession, nil
}

func (s *Service) applyDecision(c *domain.Confession, decision domain.ModerationDecision) {
	s.collectors.ModerationDecisions.WithLabelValues(string(decision.Decision)).Inc()
	if err := c.ApplyDecision(decision); err != nil {
		// Unreachable for freshly constructed pending confessions.
		s.logger.Error("failed to apply moderation decision",
			logger.String("confession_id", c.ID),
			logger.Error(err))
	}
}

// GetConfession returns a confession by ID.
func (s *Service) GetConfession(ctx context.Context, id string) (*domain.Confession, error) {
	return s.confessions.GetByID(ctx, id)
}

// ListConfessions returns the most recent confessions.
func (s *Service) ListConfessions(ctx context.Context, limit int) ([]domain.Confession, error) {
	return s.confessions.List(ctx, limit)
}

// EnqueuePublish creates a durable publish job for an approved confession.
// The platform set is validated and normalized up front; unknown platform
// names are rejected rather than silently dropped.
func (s *Service) EnqueuePublish(ctx context.Context, confessionID string, platformNames []string) (*domain.PublishJob, error) {
	platforms, err := domain.NormalizePlatforms(platformNames)
	if err != nil {
		return nil, err
	}

	confession, err := s.confessions.GetByID(ctx, confessionID)
	if err != nil {
		return nil, err
	}
	if !confession.Publishable() {
		return nil, fmt.Errorf("%w: confession %s is %s, not approved",
			domain.ErrInvalidState, confession.ID, confession.Status)
	}

	job, err := domain.NewPublishJob(confession.ID, platforms, s.policy)
	if err != nil {
		return nil, err
	}
	if createErr := s.jobs.Create(ctx, job); createErr != nil {
		return nil, fmt.Errorf("enqueue publish job: %w", createErr)
	}

	s.logger.Info("publish job enqueued",
		logger.String("job_id", job.ID),
		logger.String("confession_id", confession.ID),
		logger.Strings("platforms", platformNames))
	return job, nil
}

// GetJob returns a publish job with its per-platform sub-results.
func (s *Service) GetJob(ctx context.Context, id string) (*domain.PublishJob, error) {
	return s.jobs.GetByID(ctx, id)
}

// ListJobs returns the most recent publish jobs.
func (s *Service) ListJobs(ctx context.Context, limit int) ([]*domain.PublishJob, error) {
	return s.jobs.List(ctx, limit)
}

// CancelJob requests cancellation of a non-terminal job. The worker honors
// the flag at its next checkpoint; posts already made are not retracted.
func (s *Service) CancelJob(ctx context.Context, id string) error {
	if err := s.jobs.RequestCancel(ctx, id); err != nil {
		return err
	}
	s.logger.Info("job cancellation requested", logger.String("job_id", id))
	return nil
}

// Stats aggregates queue state, publishing counters, and per-platform
// credential status.
type Stats struct {
	Queue      *database.JobStats `json:"queue"`
	Publishing *metrics.Stats     `json:"publishing"`
	// Platforms reports, per platform, whether posting credentials are
	// configured.
	Platforms map[string]bool `json:"platforms"`
}

// GetStats returns combined queue and publishing statistics.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	queue, err := s.jobs.GetStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	publishing, err := s.tracker.GetStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("publishing stats: %w", err)
	}
	return &Stats{
		Queue:      queue,
		Publishing: publishing,
		Platforms: map[string]bool{
			string(domain.PlatformFacebook):  s.platforms.Facebook.Configured(),
			string(domain.PlatformInstagram): s.platforms.Instagram.Configured(),
			string(domain.PlatformTwitter):   s.platforms.Twitter.Configured(),
		},
	}, nil
}

// GetRecentPosts returns the most recently published posts.
func (s *Service) GetRecentPosts(ctx context.Context, limit int) ([]metrics.RecentPost, error) {
	return s.tracker.GetRecentPosts(ctx, limit)
}

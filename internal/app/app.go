// Package app provides application lifecycle management: it wires the
// configuration, storage, moderation gate, rate limiter, dispatcher, workers
// and HTTP server together, and owns graceful shutdown.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/jonesrussell/whisper-vault/internal/api"
	"github.com/jonesrussell/whisper-vault/internal/config"
	"github.com/jonesrussell/whisper-vault/internal/database"
	"github.com/jonesrussell/whisper-vault/internal/dedup"
	"github.com/jonesrussell/whisper-vault/internal/dispatch"
	"github.com/jonesrussell/whisper-vault/internal/domain"
	"github.com/jonesrussell/whisper-vault/internal/logger"
	"github.com/jonesrussell/whisper-vault/internal/metrics"
	"github.com/jonesrussell/whisper-vault/internal/moderation"
	"github.com/jonesrussell/whisper-vault/internal/platform"
	"github.com/jonesrussell/whisper-vault/internal/ratelimit"
	"github.com/jonesrussell/whisper-vault/internal/redis"
	"github.com/jonesrussell/whisper-vault/internal/render"
	"github.com/jonesrussell/whisper-vault/internal/service"
	"github.com/jonesrussell/whisper-vault/internal/worker"
)

const (
	// DefaultShutdownTimeout is the default timeout for graceful shutdown
	DefaultShutdownTimeout = 30 * time.Second
)

// App holds the wired application.
type App struct {
	config *config.Config
	logger logger.Logger

	db          *sqlx.DB
	redisClient *goredis.Client
	registry    *prometheus.Registry
	collectors  *metrics.Collectors
	tracker     metrics.Tracker
	gate        *moderation.Gate
	classifier  *moderation.Client
	dedup       *dedup.Tracker

	service          *service.Service
	publishWorker    *worker.PublishWorker
	moderationWorker *worker.ModerationWorker
	server           *api.Server
}

// Options contains configuration for creating a new App
type Options struct {
	ConfigPath string
	Version    string
}

// New creates a new App instance with all dependencies initialized
func New(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	appLogger, err := logger.NewLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	appLogger = appLogger.With(
		logger.String("service", "whisper-vault"),
		logger.String("version", opts.Version),
	)

	db, err := database.NewPostgresConnection(cfg.Database)
	if err != nil {
		_ = appLogger.Sync()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// Redis is optional: without it the rate limiter and stats tracker fall
	// back to process-local implementations.
	var redisClient *goredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(cfg.Redis)
		if err != nil {
			_ = appLogger.Sync()
			return nil, err
		}
	}

	registry := prometheus.NewRegistry()
	collectors := metrics.NewCollectors(registry)

	var tracker metrics.Tracker = metrics.NopTracker{}
	var dedupTracker *dedup.Tracker
	if redisClient != nil {
		tracker = metrics.NewRedisTracker(redisClient, appLogger)
		dedupTracker = dedup.NewTracker(redisClient, cfg.Redis.DedupTTL, appLogger)
	}

	var classifier *moderation.Client
	var gateClassifier moderation.Classifier
	if cfg.Moderation.ClassifierURL != "" {
		classifier = moderation.NewClient(cfg.Moderation.ClassifierURL, cfg.Moderation.ClassifierTimeout)
		gateClassifier = classifier
	}
	gate := moderation.NewGate(moderation.GateOptions{
		Classifier: gateClassifier,
		Thresholds: moderation.Thresholds{
			Toxicity:         cfg.Moderation.Thresholds.Toxicity,
			Profanity:        cfg.Moderation.Thresholds.Profanity,
			HateSpeech:       cfg.Moderation.Thresholds.HateSpeech,
			BlockConfidence:  cfg.Moderation.Thresholds.BlockConfidence,
			ReviewConfidence: cfg.Moderation.Thresholds.ReviewConfidence,
		},
		ClassifierTimeout: cfg.Moderation.ClassifierTimeout,
		ClassifierRPS:     cfg.Moderation.ClassifierRPS,
		ExtraTerms:        cfg.Moderation.BannedTerms,
		Logger:            appLogger,
	})

	confessions := database.NewConfessionRepository(db)
	jobs := database.NewJobRepository(db)

	policy := domain.RetryPolicy{
		MaxAttempts: cfg.Publish.MaxAttempts,
		BaseDelay:   cfg.Publish.BackoffBase,
		MaxDelay:    cfg.Publish.BackoffCap,
	}

	svc := service.New(service.Options{
		Confessions:     confessions,
		Jobs:            jobs,
		Gate:            gate,
		Collectors:      collectors,
		Tracker:         tracker,
		Dedup:           dedupTracker,
		RetryPolicy:     policy,
		Platforms:       cfg.Platforms,
		AsyncModeration: cfg.Moderation.Async,
		Logger:          appLogger,
	})

	limiter := buildLimiter(cfg, redisClient)
	dispatcher := dispatch.NewDispatcher(
		platform.NewRegistry(cfg.Platforms),
		limiter,
		cfg.Publish.DispatchTimeout,
		appLogger,
	)

	var renderer render.Renderer
	if cfg.Renderer.URL != "" {
		renderer = render.NewClient(cfg.Renderer.URL, cfg.Renderer.Timeout)
	}

	publishWorker := worker.NewPublishWorker(worker.PublishWorkerOptions{
		Jobs:        jobs,
		Confessions: confessions,
		Dispatcher:  dispatcher,
		Renderer:    renderer,
		Theme:       cfg.Renderer.Theme,
		Collectors:  collectors,
		Tracker:     tracker,
		Config:      cfg.Publish,
		Logger:      appLogger,
	})

	var moderationWorker *worker.ModerationWorker
	if cfg.Moderation.Async && gate.HasClassifier() {
		moderationWorker = worker.NewModerationWorker(confessions, gate, collectors, appLogger)
	}

	a := &App{
		config:           cfg,
		logger:           appLogger,
		db:               db,
		redisClient:      redisClient,
		registry:         registry,
		collectors:       collectors,
		tracker:          tracker,
		gate:             gate,
		classifier:       classifier,
		dedup:            dedupTracker,
		service:          svc,
		publishWorker:    publishWorker,
		moderationWorker: moderationWorker,
	}
	a.server = api.NewServer(api.ServerOptions{
		Handler:  api.NewHandler(svc, appLogger),
		Checks:   a.healthChecks(),
		Registry: registry,
		Config:   cfg.Server,
		Debug:    cfg.Debug,
		Logger:   appLogger,
	})
	return a, nil
}

func buildLimiter(cfg *config.Config, redisClient *goredis.Client) ratelimit.Limiter {
	caps := make(map[domain.Platform]ratelimit.Config, len(cfg.RateLimits))
	for name, rl := range cfg.RateLimits {
		p, err := domain.ParsePlatform(name)
		if err != nil {
			continue
		}
		caps[p] = ratelimit.Config{Cap: rl.Cap, Window: rl.Window}
	}

	if redisClient != nil {
		return ratelimit.NewRedisLimiter(redisClient, caps)
	}
	return ratelimit.NewWindowLimiter(caps, nil)
}

func (a *App) healthChecks() api.HealthChecks {
	checks := api.HealthChecks{
		Database: func(ctx context.Context) error {
			return a.db.PingContext(ctx)
		},
	}
	if a.redisClient != nil {
		checks.Redis = func(ctx context.Context) error {
			return a.redisClient.Ping(ctx).Err()
		}
	}
	if a.classifier != nil {
		checks.Classifier = func(ctx context.Context) error {
			return a.classifier.Health(ctx)
		}
	}
	return checks
}

// RunAPI serves the HTTP API until a signal or server failure.
func (a *App) RunAPI(ctx context.Context) error {
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- a.server.Start()
	}()

	return a.waitForShutdown(ctx, serverErr, nil)
}

// RunWorkers runs the publish worker (and moderation worker, when async
// moderation is enabled) until a signal.
func (a *App) RunWorkers(ctx context.Context) error {
	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.publishWorker.Start(workerCtx)
	if a.moderationWorker != nil {
		a.moderationWorker.Start(workerCtx)
	}

	err := a.waitForShutdown(ctx, nil, cancel)

	a.publishWorker.Stop()
	if a.moderationWorker != nil {
		a.moderationWorker.Stop()
	}
	return err
}

// waitForShutdown blocks until a signal arrives, the context is cancelled,
// or the server fails.
func (a *App) waitForShutdown(ctx context.Context, serverErr chan error, cancelWorkers context.CancelFunc) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		a.logger.Info("Shutting down gracefully", logger.String("signal", sig.String()))
	case <-ctx.Done():
		a.logger.Info("Context cancelled, shutting down")
	case err := <-serverErr:
		if err != nil {
			a.logger.Error("Server error", logger.Error(err))
			if cancelWorkers != nil {
				cancelWorkers()
			}
			return err
		}
		return nil
	}

	if serverErr != nil {
		a.shutdownHTTPServer()
	}
	return nil
}

// shutdownHTTPServer gracefully shuts down the HTTP server
func (a *App) shutdownHTTPServer() {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error("Server shutdown error", logger.Error(err))
	} else {
		a.logger.Info("HTTP server stopped")
	}
}

// FlushDedup clears the duplicate-detection cache.
func (a *App) FlushDedup(ctx context.Context) error {
	if a.dedup == nil {
		return fmt.Errorf("duplicate detection is not enabled (redis disabled)")
	}
	return a.dedup.FlushAll(ctx)
}

// Close cleans up resources
func (a *App) Close() error {
	database.Close(a.db)
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("Failed to close Redis client", logger.Error(err))
		}
	}
	return a.logger.Sync()
}

// Logger returns the application logger
func (a *App) Logger() logger.Logger {
	return a.logger
}

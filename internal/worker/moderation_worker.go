package worker

import (
	"context"
	"sync"
	"time"

	"github.com/jonesrussell/whisper-vault/internal/database"
	"github.com/jonesrussell/whisper-vault/internal/domain"
	"github.com/jonesrussell/whisper-vault/internal/logger"
	"github.com/jonesrussell/whisper-vault/internal/metrics"
	"github.com/jonesrussell/whisper-vault/internal/moderation"
)

const (
	moderationPollInterval = 3 * time.Second
	moderationBatchSize    = 50
)

// ModerationWorker drains the backlog of pending confessions through the
// moderation gate. It exists for async moderation mode: submissions that
// passed the synchronous rule scan wait here for the classifier verdict.
type ModerationWorker struct {
	confessions *database.ConfessionRepository
	gate        *moderation.Gate
	collectors  *metrics.Collectors
	logger      logger.Logger

	pollInterval time.Duration
	batchSize    int

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

// NewModerationWorker creates a moderation worker.
func NewModerationWorker(
	confessions *database.ConfessionRepository,
	gate *moderation.Gate,
	collectors *metrics.Collectors,
	log logger.Logger,
) *ModerationWorker {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &ModerationWorker{
		confessions:  confessions,
		gate:         gate,
		collectors:   collectors,
		logger:       log,
		pollInterval: moderationPollInterval,
		batchSize:    moderationBatchSize,
		stopChan:     make(chan struct{}),
	}
}

// Start begins the moderation polling loop.
func (w *ModerationWorker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	w.logger.Info("moderation worker started",
		logger.Duration("poll_interval", w.pollInterval),
		logger.Int("batch_size", w.batchSize))
}

// Stop gracefully stops the worker.
func (w *ModerationWorker) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.started = false
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("moderation worker stopped")
}

func (w *ModerationWorker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

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

func (w *ModerationWorker) processOnce(ctx context.Context) {
	pending, err := w.confessions.FetchPending(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("failed to fetch pending confessions", logger.Error(err))
		return
	}

	for i := range pending {
		w.moderateOne(ctx, &pending[i])
	}
}

func (w *ModerationWorker) moderateOne(ctx context.Context, c *domain.Confession) {
	decision := w.gate.Decide(ctx, c.Content, c.Age)
	w.collectors.ModerationDecisions.WithLabelValues(string(decision.Decision)).Inc()

	if err := c.ApplyDecision(decision); err != nil {
		w.logger.Error("failed to apply moderation decision",
			logger.String("confession_id", c.ID),
			logger.Error(err))
		return
	}

	if err := w.confessions.UpdateStatus(ctx, c.ID, c.Status, c.ModerationReason); err != nil {
		// Another worker may have decided first; its outcome stands.
		w.logger.Warn("failed to update confession status",
			logger.String("confession_id", c.ID),
			logger.Error(err))
		return
	}

	w.logger.Info("confession moderated",
		logger.String("confession_id", c.ID),
		logger.String("decision", string(decision.Decision)),
		logger.String("reason", decision.Reason()),
		logger.Float64("confidence", decision.Confidence))
}

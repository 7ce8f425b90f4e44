// Package ratelimit provides per-platform admission control for outbound
// posts. Each platform has an independent fixed-size rolling window;
// exhausting one platform's quota never blocks another.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/jonesrussell/whisper-vault/internal/domain"
)

// Limiter is the admission-control contract consumed by the dispatcher.
//
// Admit reserves a quota slot when one is available; Record confirms the
// reservation after a successful post, and Release returns the slot when
// the post did not happen. The reserve/confirm split keeps the
// check-then-act sequence atomic per platform even though the network call
// sits between the two steps.
type Limiter interface {
	// Admit reports whether a post to the platform is currently allowed,
	// reserving a quota slot when it is.
	Admit(ctx context.Context, platform domain.Platform) (bool, error)
	// Record confirms a reserved slot after a successful post.
	Record(ctx context.Context, platform domain.Platform) error
	// Release returns a reserved slot after a failed or skipped post.
	Release(ctx context.Context, platform domain.Platform) error
	// NextAvailable returns the earliest time a denied platform reopens.
	// ok is false when the platform is not currently limited.
	NextAvailable(ctx context.Context, platform domain.Platform) (at time.Time, ok bool, err error)
}

// Clock abstracts time for testability. Production code uses time.Now.
type Clock func() time.Time

// window is the mutable counter state for one platform.
type window struct {
	mu       sync.Mutex
	start    time.Time
	recorded int
	reserved int
}

// WindowLimiter is a process-local fixed-window limiter. State is
// per-process; deployments with multiple workers should use the Redis
// limiter instead.
type WindowLimiter struct {
	caps    map[domain.Platform]Config
	windows map[domain.Platform]*window
	clock   Clock
}

// Config is the cap and window duration for one platform.
type Config struct {
	Cap    int
	Window time.Duration
}

// NewWindowLimiter creates a limiter with the given per-platform configs.
// Platforms without a config are never limited. A nil clock uses time.Now.
func NewWindowLimiter(caps map[domain.Platform]Config, clock Clock) *WindowLimiter {
	if clock == nil {
		clock = time.Now
	}
	windows := make(map[domain.Platform]*window, len(caps))
	for p := range caps {
		windows[p] = &window{}
	}
	return &WindowLimiter{caps: caps, windows: windows, clock: clock}
}

// Admit reserves a slot if the platform is under its cap or the window has
// expired. The whole check-then-reserve runs under the platform's mutex.
func (l *WindowLimiter) Admit(_ context.Context, platform domain.Platform) (bool, error) {
	cfg, w := l.caps[platform], l.windows[platform]
	if w == nil {
		return true, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	l.maybeResetLocked(w, cfg)
	if w.recorded+w.reserved >= cfg.Cap {
		return false, nil
	}
	w.reserved++
	return true, nil
}

// Record confirms a reservation, counting the post against the window.
func (l *WindowLimiter) Record(_ context.Context, platform domain.Platform) error {
	cfg, w := l.caps[platform], l.windows[platform]
	if w == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	l.maybeResetLocked(w, cfg)
	if w.reserved > 0 {
		w.reserved--
	}
	w.recorded++
	return nil
}

// Release returns a reserved slot without counting a post.
func (l *WindowLimiter) Release(_ context.Context, platform domain.Platform) error {
	w := l.windows[platform]
	if w == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.reserved > 0 {
		w.reserved--
	}
	return nil
}

// NextAvailable returns when the current window elapses for a capped-out
// platform.
func (l *WindowLimiter) NextAvailable(_ context.Context, platform domain.Platform) (time.Time, bool, error) {
	cfg, w := l.caps[platform], l.windows[platform]
	if w == nil {
		return time.Time{}, false, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	l.maybeResetLocked(w, cfg)
	if w.recorded+w.reserved < cfg.Cap {
		return time.Time{}, false, nil
	}
	return w.start.Add(cfg.Window), true, nil
}

// maybeResetLocked clears the window when it has elapsed. Reservations from
// in-flight posts carry over; only confirmed posts are forgotten.
// Caller must hold w.mu.
func (l *WindowLimiter) maybeResetLocked(w *window, cfg Config) {
	if w.start.IsZero() {
		w.start = l.clock()
		return
	}
	if l.clock().Sub(w.start) >= cfg.Window {
		w.start = l.clock()
		w.recorded = 0
	}
}

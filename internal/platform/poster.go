// Package platform implements posting to the supported social media
// platforms. Each poster owns exactly one platform, enforces that
// platform's content constraints, and reports results as PostOutcome
// values rather than errors.
package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jonesrussell/whisper-vault/internal/domain"
)

const defaultPostTimeout = 10 * time.Second

// Poster posts content to exactly one external platform.
type Poster interface {
	// Platform returns the platform this poster serves.
	Platform() domain.Platform
	// Post publishes content with an optional asset reference. Expected
	// conditions (missing credentials, unsupported content) come back as
	// outcome kinds, never as panics or sentinel errors.
	Post(ctx context.Context, content, assetRef string) domain.PostOutcome
}

// truncate cuts content to the platform limit at a rune boundary. The cut
// is deterministic: the same content always yields the same post.
func truncate(content string, limit int) string {
	runes := []rune(content)
	if limit <= 0 || len(runes) <= limit {
		return content
	}
	return string(runes[:limit])
}

// classifyHTTPError maps a transport-level error to an outcome. Timeouts
// and connection failures are retryable.
func classifyHTTPError(platform domain.Platform, err error) domain.PostOutcome {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return domain.TransientFailure(fmt.Sprintf("%s: request timed out", platform))
	}
	return domain.TransientFailure(fmt.Sprintf("%s: %v", platform, err))
}

// classifyStatus maps a non-2xx response status to an outcome.
// 5xx and 429 are retryable; auth and validation failures are terminal.
func classifyStatus(platform domain.Platform, status int) domain.PostOutcome {
	switch {
	case status >= http.StatusInternalServerError, status == http.StatusTooManyRequests:
		return domain.TransientFailure(fmt.Sprintf("%s: upstream returned %d", platform, status))
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return domain.PermanentFailure(fmt.Sprintf("%s: authorization rejected (%d)", platform, status))
	default:
		return domain.PermanentFailure(fmt.Sprintf("%s: content rejected (%d)", platform, status))
	}
}

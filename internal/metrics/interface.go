package metrics

import "context"

// Tracker records publishing activity for the stats endpoint. Implementations
// must tolerate recording failures: metrics are advisory and never block the
// publish path.
type Tracker interface {
	// IncrementPublished increments the published counter for a platform
	IncrementPublished(ctx context.Context, platform string) error
	// IncrementFailed increments the failed counter for a platform
	IncrementFailed(ctx context.Context, platform string) error
	// IncrementRateLimited increments the rate-limit denial counter for a platform
	IncrementRateLimited(ctx context.Context, platform string) error
	// AddRecentPost records a successfully published post
	AddRecentPost(ctx context.Context, post RecentPost) error
	// GetStats returns aggregated statistics
	GetStats(ctx context.Context) (*Stats, error)
	// GetRecentPosts returns the most recently published posts
	GetRecentPosts(ctx context.Context, limit int) ([]RecentPost, error)
}

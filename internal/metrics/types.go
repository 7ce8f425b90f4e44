package metrics

import "time"

// RecentPost represents a recently published post
type RecentPost struct {
	JobID        string    `json:"job_id"`
	ConfessionID string    `json:"confession_id"`
	Platform     string    `json:"platform"`
	RemoteID     string    `json:"remote_id"`
	PostedAt     time.Time `json:"posted_at"`
}

// Stats represents aggregated publishing statistics
type Stats struct {
	TotalPublished   int64           `json:"total_published"`
	TotalFailed      int64           `json:"total_failed"`
	TotalRateLimited int64           `json:"total_rate_limited"`
	Platforms        []PlatformStats `json:"platforms"`
}

// PlatformStats represents statistics for a specific platform
type PlatformStats struct {
	Name        string `json:"name"`
	Published   int64  `json:"published"`
	Failed      int64  `json:"failed"`
	RateLimited int64  `json:"rate_limited"`
}

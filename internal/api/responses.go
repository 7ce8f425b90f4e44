package api

import (
	"time"

	"github.com/jonesrussell/whisper-vault/internal/domain"
)

// SubmitConfessionRequest represents a new confession submission.
type SubmitConfessionRequest struct {
	Content  string  `json:"content" binding:"required"`
	Age      int     `json:"age" binding:"required,gt=0"`
	Gender   string  `json:"gender"`
	Language *string `json:"language"`
	// Anonymous defaults to true when omitted; the user reference is then
	// discarded server-side.
	Anonymous *bool   `json:"anonymous"`
	UserID    *string `json:"user_id"`
}

// EnqueuePublishRequest selects the target platforms for a publish job.
type EnqueuePublishRequest struct {
	Platforms []string `json:"platforms" binding:"required,min=1"`
}

// ConfessionResponse is the API shape of a confession.
type ConfessionResponse struct {
	ID               string    `json:"id"`
	Content          string    `json:"content"`
	Age              int       `json:"age"`
	Gender           string    `json:"gender,omitempty"`
	Language         *string   `json:"language,omitempty"`
	Anonymous        bool      `json:"anonymous"`
	Status           string    `json:"status"`
	ModerationReason *string   `json:"moderation_reason,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ConfessionListResponse is a list of confessions with a total count.
type ConfessionListResponse struct {
	Confessions []ConfessionResponse `json:"confessions"`
	Total       int                  `json:"total"`
}

// SubResultResponse is the API shape of one platform's outcome.
type SubResultResponse struct {
	Status    string     `json:"status"`
	RemoteID  string     `json:"remote_id,omitempty"`
	Attempts  int        `json:"attempts"`
	Terminal  bool       `json:"terminal,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	RetryAt   *time.Time `json:"retry_at,omitempty"`
}

// JobResponse is the API shape of a publish job.
type JobResponse struct {
	ID              string                       `json:"id"`
	ConfessionID    string                       `json:"confession_id"`
	Platforms       []string                     `json:"platforms"`
	SubResults      map[string]SubResultResponse `json:"sub_results"`
	Status          string                       `json:"status"`
	AssetRef        string                       `json:"asset_ref,omitempty"`
	LastError       *string                      `json:"last_error,omitempty"`
	CancelRequested bool                         `json:"cancel_requested,omitempty"`
	NextAttemptAt   *time.Time                   `json:"next_attempt_at,omitempty"`
	CreatedAt       time.Time                    `json:"created_at"`
	UpdatedAt       time.Time                    `json:"updated_at"`
}

// JobListResponse is a list of jobs with a total count.
type JobListResponse struct {
	Jobs  []JobResponse `json:"jobs"`
	Total int           `json:"total"`
}

// toConfessionResponse converts a domain confession to an API response.
// The user reference is never exposed, anonymous or not.
func toConfessionResponse(c *domain.Confession) ConfessionResponse {
	return ConfessionResponse{
		ID:               c.ID,
		Content:          c.Content,
		Age:              c.Age,
		Gender:           c.Gender,
		Language:         c.Language,
		Anonymous:        c.Anonymous,
		Status:           string(c.Status),
		ModerationReason: c.ModerationReason,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

// toJobResponse converts a domain publish job to an API response.
func toJobResponse(j *domain.PublishJob) JobResponse {
	platforms := make([]string, 0, len(j.Platforms))
	for _, p := range j.Platforms {
		platforms = append(platforms, string(p))
	}

	subResults := make(map[string]SubResultResponse, len(j.SubResults))
	for p, sub := range j.SubResults {
		subResults[string(p)] = SubResultResponse{
			Status:    string(sub.Status),
			RemoteID:  sub.RemoteID,
			Attempts:  sub.Attempts,
			Terminal:  sub.Terminal,
			LastError: sub.LastError,
			RetryAt:   sub.RetryAt,
		}
	}

	return JobResponse{
		ID:              j.ID,
		ConfessionID:    j.ConfessionID,
		Platforms:       platforms,
		SubResults:      subResults,
		Status:          string(j.Status),
		AssetRef:        j.AssetRef,
		LastError:       j.LastError,
		CancelRequested: j.CancelRequested,
		NextAttemptAt:   j.NextAttemptAt,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
	}
}

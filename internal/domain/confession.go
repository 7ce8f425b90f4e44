package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ConfessionStatus is the moderation status of a confession.
type ConfessionStatus string

const (
	ConfessionStatusPending  ConfessionStatus = "pending"
	ConfessionStatusApproved ConfessionStatus = "approved"
	ConfessionStatusBlocked  ConfessionStatus = "blocked"
)

// ModerationDecisionKind is the outcome of running a confession through the
// moderation gate.
type ModerationDecisionKind string

const (
	DecisionApproved    ModerationDecisionKind = "approved"
	DecisionBlocked     ModerationDecisionKind = "blocked"
	DecisionNeedsReview ModerationDecisionKind = "needs_review"
)

// ModerationDecision is a transient value produced by the moderation gate.
// It is never persisted standalone; it only drives the confession status
// transition.
type ModerationDecision struct {
	Decision   ModerationDecisionKind
	Reasons    []string
	Confidence float64
}

// Reason returns the primary reason code, or empty for clean content.
func (d ModerationDecision) Reason() string {
	if len(d.Reasons) == 0 {
		return ""
	}
	return d.Reasons[0]
}

// Confession is a single submitted text item awaiting or having undergone
// moderation. Once the status leaves pending it never changes again.
type Confession struct {
	ID               string           `db:"id"                json:"id"`
	Content          string           `db:"content"           json:"content"`
	Age              int              `db:"age"               json:"age"`
	Gender           string           `db:"gender"            json:"gender"`
	Language         *string          `db:"language"          json:"language,omitempty"`
	Anonymous        bool             `db:"anonymous"         json:"anonymous"`
	UserID           *string          `db:"user_id"           json:"user_id,omitempty"`
	Status           ConfessionStatus `db:"status"            json:"status"`
	ModerationReason *string          `db:"moderation_reason" json:"moderation_reason,omitempty"`
	CreatedAt        time.Time        `db:"created_at"        json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at"        json:"updated_at"`
}

// Maximum accepted confession length in runes.
const maxConfessionLength = 10000

// NewConfession creates a pending confession with validation.
// When anonymous is true the user reference is discarded, so an anonymous
// confession cannot be linked back to a submitter.
func NewConfession(content string, age int, gender string, anonymous bool, userID *string) (*Confession, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidConfession)
	}
	if len([]rune(content)) > maxConfessionLength {
		return nil, fmt.Errorf("%w: content exceeds %d characters", ErrInvalidConfession, maxConfessionLength)
	}
	if age <= 0 {
		return nil, fmt.Errorf("%w: age must be positive", ErrInvalidConfession)
	}

	if anonymous {
		userID = nil
	}

	now := time.Now().UTC()
	return &Confession{
		ID:        uuid.NewString(),
		Content:   content,
		Age:       age,
		Gender:    gender,
		Anonymous: anonymous,
		UserID:    userID,
		Status:    ConfessionStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ApplyDecision transitions the confession status based on a moderation
// decision. Only pending confessions may transition; needs_review keeps the
// confession pending for manual review with the reason recorded.
func (c *Confession) ApplyDecision(d ModerationDecision) error {
	if c.Status != ConfessionStatusPending {
		return fmt.Errorf("%w: confession %s is already %s", ErrInvalidState, c.ID, c.Status)
	}

	switch d.Decision {
	case DecisionApproved:
		c.Status = ConfessionStatusApproved
	case DecisionBlocked:
		c.Status = ConfessionStatusBlocked
	case DecisionNeedsReview:
		// Stays pending until a human decides.
	default:
		return fmt.Errorf("%w: unknown decision %q", ErrInvalidState, d.Decision)
	}

	if reason := d.Reason(); reason != "" {
		c.ModerationReason = &reason
	}
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// Publishable reports whether a publish job may be created for this confession.
func (c *Confession) Publishable() bool {
	return c.Status == ConfessionStatusApproved
}

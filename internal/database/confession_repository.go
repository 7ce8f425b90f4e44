package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/whisper-vault/internal/domain"
)

// confessionSelectList is the column list for SELECT on confessions
// (single source for schema changes).
const confessionSelectList = `id, content, age, gender, language, anonymous,
			user_id, status, moderation_reason, created_at, updated_at`

// ConfessionRepository manages confession rows in PostgreSQL.
type ConfessionRepository struct {
	db *sqlx.DB
}

// NewConfessionRepository creates a new repository.
func NewConfessionRepository(db *sqlx.DB) *ConfessionRepository {
	return &ConfessionRepository{db: db}
}

// Create inserts a new confession.
func (r *ConfessionRepository) Create(ctx context.Context, c *domain.Confession) error {
	query := `
		INSERT INTO confessions (id, content, age, gender, language, anonymous,
			user_id, status, moderation_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.Content, c.Age, c.Gender, c.Language, c.Anonymous,
		c.UserID, c.Status, c.ModerationReason, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert confession: %w", err)
	}
	return nil
}

// GetByID retrieves a confession by ID.
func (r *ConfessionRepository) GetByID(ctx context.Context, id string) (*domain.Confession, error) {
	query := `SELECT ` + confessionSelectList + ` FROM confessions WHERE id = $1`

	var c domain.Confession
	err := r.db.GetContext(ctx, &c, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get confession: %w", err)
	}
	return &c, nil
}

// List returns the most recent confessions.
func (r *ConfessionRepository) List(ctx context.Context, limit int) ([]domain.Confession, error) {
	query := `SELECT ` + confessionSelectList + `
		FROM confessions
		ORDER BY created_at DESC
		LIMIT $1`

	confessions := []domain.Confession{}
	if err := r.db.SelectContext(ctx, &confessions, query, limit); err != nil {
		return nil, fmt.Errorf("list confessions: %w", err)
	}
	return confessions, nil
}

// FetchPending returns pending confessions awaiting background moderation.
// Confessions held for manual review (pending with a reason recorded) are
// excluded. Duplicate moderation across workers is harmless: UpdateStatus
// only ever applies the first outcome.
func (r *ConfessionRepository) FetchPending(ctx context.Context, limit int) ([]domain.Confession, error) {
	query := `
		SELECT ` + confessionSelectList + `
		FROM confessions
		WHERE status = 'pending' AND moderation_reason IS NULL
		ORDER BY created_at ASC
		LIMIT $1`

	confessions := []domain.Confession{}
	if err := r.db.SelectContext(ctx, &confessions, query, limit); err != nil {
		return nil, fmt.Errorf("fetch pending confessions: %w", err)
	}
	return confessions, nil
}

// UpdateStatus applies a moderation outcome. The WHERE clause enforces the
// one-way pending transition: a confession that already left pending is
// never overwritten, which reports as ErrInvalidState.
func (r *ConfessionRepository) UpdateStatus(ctx context.Context, id string, status domain.ConfessionStatus, reason *string) error {
	query := `
		UPDATE confessions
		SET status = $2, moderation_reason = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`

	result, err := r.db.ExecContext(ctx, query, id, status, reason)
	if err != nil {
		return fmt.Errorf("update confession status: %w", err)
	}
	rows, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return fmt.Errorf("get affected rows: %w", rowsErr)
	}
	if rows == 0 {
		return domain.ErrInvalidState
	}
	return nil
}

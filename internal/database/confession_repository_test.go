package database_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/whisper-vault/internal/database"
	"github.com/jonesrussell/whisper-vault/internal/domain"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return sqlx.NewDb(db, "sqlmock"), mock
}

func confessionColumns() []string {
	return []string{
		"id", "content", "age", "gender", "language", "anonymous",
		"user_id", "status", "moderation_reason", "created_at", "updated_at",
	}
}

func confessionRow(id string, status domain.ConfessionStatus) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(confessionColumns()).
		AddRow(id, "a secret", 25, "female", nil, true,
			nil, string(status), nil, now, now)
}

func TestConfessionRepository_Create(t *testing.T) {
	sqlxDB, mock := newMockDB(t)
	repo := database.NewConfessionRepository(sqlxDB)
	ctx := context.Background()

	confession, err := domain.NewConfession("a secret", 25, "female", true, nil)
	if err != nil {
		t.Fatalf("NewConfession() error = %v", err)
	}

	testCases := []struct {
		name      string
		setupMock func()
		wantErr   bool
	}{
		{
			name: "successfully inserts confession",
			setupMock: func() {
				mock.ExpectExec("INSERT INTO confessions").
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			wantErr: false,
		},
		{
			name: "database error returns error",
			setupMock: func() {
				mock.ExpectExec("INSERT INTO confessions").
					WillReturnError(sql.ErrConnDone)
			},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.setupMock()

			callErr := repo.Create(ctx, confession)
			if (callErr != nil) != tc.wantErr {
				t.Errorf("Create() error = %v, wantErr %v", callErr, tc.wantErr)
			}

			if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
				t.Errorf("unfulfilled expectations: %v", expectErr)
			}
		})
	}
}

func TestConfessionRepository_GetByID(t *testing.T) {
	sqlxDB, mock := newMockDB(t)
	repo := database.NewConfessionRepository(sqlxDB)
	ctx := context.Background()
	confessionID := "test-confession-123"

	t.Run("returns confession when found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM confessions WHERE id").
			WithArgs(confessionID).
			WillReturnRows(confessionRow(confessionID, domain.ConfessionStatusApproved))

		got, err := repo.GetByID(ctx, confessionID)
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.ID != confessionID {
			t.Errorf("ID = %q, want %q", got.ID, confessionID)
		}
		if got.Status != domain.ConfessionStatusApproved {
			t.Errorf("Status = %s, want %s", got.Status, domain.ConfessionStatusApproved)
		}
	})

	t.Run("missing confession maps to ErrNotFound", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM confessions WHERE id").
			WithArgs(confessionID).
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByID(ctx, confessionID)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("GetByID() error = %v, want ErrNotFound", err)
		}
	})

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}

func TestConfessionRepository_FetchPending(t *testing.T) {
	sqlxDB, mock := newMockDB(t)
	repo := database.NewConfessionRepository(sqlxDB)
	ctx := context.Background()

	rows := confessionRow("pending-1", domain.ConfessionStatusPending)
	now := time.Now().UTC()
	rows.AddRow("pending-2", "another secret", 30, "male", nil, true,
		nil, string(domain.ConfessionStatusPending), nil, now, now)

	mock.ExpectQuery("SELECT (.+) FROM confessions").
		WithArgs(50).
		WillReturnRows(rows)

	got, err := repo.FetchPending(ctx, 50)
	if err != nil {
		t.Fatalf("FetchPending() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d confessions, want 2", len(got))
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}

func TestConfessionRepository_UpdateStatus(t *testing.T) {
	sqlxDB, mock := newMockDB(t)
	repo := database.NewConfessionRepository(sqlxDB)
	ctx := context.Background()
	confessionID := "test-confession-456"
	reason := "banned_term"

	testCases := []struct {
		name      string
		setupMock func()
		wantErr   error
	}{
		{
			name: "applies first moderation outcome",
			setupMock: func() {
				mock.ExpectExec("UPDATE confessions").
					WithArgs(confessionID, string(domain.ConfessionStatusBlocked), &reason).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "already-moderated confession is never overwritten",
			setupMock: func() {
				mock.ExpectExec("UPDATE confessions").
					WithArgs(confessionID, string(domain.ConfessionStatusBlocked), &reason).
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantErr: domain.ErrInvalidState,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.setupMock()

			callErr := repo.UpdateStatus(ctx, confessionID, domain.ConfessionStatusBlocked, &reason)
			if !errors.Is(callErr, tc.wantErr) {
				t.Errorf("UpdateStatus() error = %v, want %v", callErr, tc.wantErr)
			}

			if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
				t.Errorf("unfulfilled expectations: %v", expectErr)
			}
		})
	}
}

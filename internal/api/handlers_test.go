package api_test

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/whisper-vault/internal/api"
	"github.com/jonesrussell/whisper-vault/internal/database"
	"github.com/jonesrussell/whisper-vault/internal/domain"
	"github.com/jonesrussell/whisper-vault/internal/metrics"
	"github.com/jonesrussell/whisper-vault/internal/moderation"
	"github.com/jonesrussell/whisper-vault/internal/service"
)

func setupTestRouter(t *testing.T) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	sqlxDB := sqlx.NewDb(db, "sqlmock")

	svc := service.New(service.Options{
		Confessions: database.NewConfessionRepository(sqlxDB),
		Jobs:        database.NewJobRepository(sqlxDB),
		Gate:        moderation.NewGate(moderation.GateOptions{}),
		Collectors:  metrics.NewNopCollectors(),
	})
	handler := api.NewHandler(svc, nil)

	router := gin.New()
	v1 := router.Group("/api/v1")
	v1.POST("/confessions", handler.SubmitConfession)
	v1.GET("/confessions/:id", handler.GetConfession)
	v1.GET("/confessions", handler.ListConfessions)
	v1.POST("/publish/:confession_id", handler.EnqueuePublish)
	v1.GET("/publish/jobs/:id", handler.GetJob)
	v1.GET("/publish/jobs", handler.ListJobs)
	v1.DELETE("/publish/jobs/:id", handler.CancelJob)
	v1.GET("/stats", handler.GetStats)

	return router, mock
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}

	w := httptest.NewRecorder()
	req, err := http.NewRequestWithContext(t.Context(), method, path, &buf)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestSubmitConfession_Created(t *testing.T) {
	router, mock := setupTestRouter(t)

	mock.ExpectExec("INSERT INTO confessions").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doJSON(t, router, http.MethodPost, "/api/v1/confessions", map[string]any{
		"content": "I still believe in the tooth fairy",
		"age":     25,
		"gender":  "female",
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d, body: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var resp api.ConfessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "approved" {
		t.Errorf("status = %q, want approved", resp.Status)
	}
	if !resp.Anonymous {
		t.Error("anonymous = false, want true by default")
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}

func TestSubmitConfession_BadRequest(t *testing.T) {
	router, _ := setupTestRouter(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing content", map[string]any{"age": 25}},
		{"missing age", map[string]any{"content": "a secret"}},
		{"non-positive age", map[string]any{"content": "a secret", "age": -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, "/api/v1/confessions", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d, body: %s", w.Code, http.StatusBadRequest, w.Body.String())
			}
		})
	}
}

func TestSubmitConfession_NeverExposesUserID(t *testing.T) {
	router, mock := setupTestRouter(t)

	mock.ExpectExec("INSERT INTO confessions").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doJSON(t, router, http.MethodPost, "/api/v1/confessions", map[string]any{
		"content":   "a secret with attribution",
		"age":       25,
		"anonymous": false,
		"user_id":   "user-42",
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d, body: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var raw map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if _, exposed := raw["user_id"]; exposed {
		t.Error("response exposes user_id")
	}
}

func confessionRows(id string, status domain.ConfessionStatus) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "content", "age", "gender", "language", "anonymous",
		"user_id", "status", "moderation_reason", "created_at", "updated_at",
	}).AddRow(id, "a secret", 25, "female", nil, true,
		nil, string(status), nil, now, now)
}

func TestGetConfession(t *testing.T) {
	router, mock := setupTestRouter(t)

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM confessions WHERE id").
			WithArgs("confession-1").
			WillReturnRows(confessionRows("confession-1", domain.ConfessionStatusApproved))

		w := doJSON(t, router, http.MethodGet, "/api/v1/confessions/confession-1", nil)
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want %d, body: %s", w.Code, http.StatusOK, w.Body.String())
		}
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM confessions WHERE id").
			WithArgs("absent").
			WillReturnError(sql.ErrNoRows)

		w := doJSON(t, router, http.MethodGet, "/api/v1/confessions/absent", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}

func TestEnqueuePublish(t *testing.T) {
	router, mock := setupTestRouter(t)

	t.Run("accepted for approved confession", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM confessions WHERE id").
			WithArgs("confession-1").
			WillReturnRows(confessionRows("confession-1", domain.ConfessionStatusApproved))
		mock.ExpectExec("INSERT INTO publish_jobs").
			WillReturnResult(sqlmock.NewResult(0, 1))

		w := doJSON(t, router, http.MethodPost, "/api/v1/publish/confession-1",
			map[string]any{"platforms": []string{"twitter", "facebook"}})
		if w.Code != http.StatusAccepted {
			t.Fatalf("status = %d, want %d, body: %s", w.Code, http.StatusAccepted, w.Body.String())
		}

		var resp api.JobResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Status != "queued" {
			t.Errorf("status = %q, want queued", resp.Status)
		}
		if len(resp.SubResults) != 2 {
			t.Errorf("got %d sub-results, want 2", len(resp.SubResults))
		}
	})

	t.Run("unknown platform is a bad request", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/api/v1/publish/confession-1",
			map[string]any{"platforms": []string{"myspace"}})
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("empty platform list is a bad request", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/api/v1/publish/confession-1",
			map[string]any{"platforms": []string{}})
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("unapproved confession is a conflict", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM confessions WHERE id").
			WithArgs("confession-1").
			WillReturnRows(confessionRows("confession-1", domain.ConfessionStatusPending))

		w := doJSON(t, router, http.MethodPost, "/api/v1/publish/confession-1",
			map[string]any{"platforms": []string{"twitter"}})
		if w.Code != http.StatusConflict {
			t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
		}
	})

	t.Run("missing confession is not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM confessions WHERE id").
			WithArgs("absent").
			WillReturnError(sql.ErrNoRows)

		w := doJSON(t, router, http.MethodPost, "/api/v1/publish/absent",
			map[string]any{"platforms": []string{"twitter"}})
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}

func TestCancelJob(t *testing.T) {
	router, mock := setupTestRouter(t)

	t.Run("accepted for an active job", func(t *testing.T) {
		mock.ExpectExec("UPDATE publish_jobs").
			WithArgs("job-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		w := doJSON(t, router, http.MethodDelete, "/api/v1/publish/jobs/job-1", nil)
		if w.Code != http.StatusAccepted {
			t.Errorf("status = %d, want %d, body: %s", w.Code, http.StatusAccepted, w.Body.String())
		}
	})

	t.Run("missing job is not found", func(t *testing.T) {
		mock.ExpectExec("UPDATE publish_jobs").
			WithArgs("absent").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT (.+) FROM publish_jobs WHERE id").
			WithArgs("absent").
			WillReturnError(sql.ErrNoRows)

		w := doJSON(t, router, http.MethodDelete, "/api/v1/publish/jobs/absent", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}

func TestGetStats(t *testing.T) {
	router, mock := setupTestRouter(t)

	mock.ExpectQuery("SELECT").
		WillReturnRows(sqlmock.NewRows([]string{"queued", "processing", "completed", "failed"}).
			AddRow(2, 1, 7, 0))

	w := doJSON(t, router, http.MethodGet, "/api/v1/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp struct {
		Queue struct {
			Completed int64 `json:"completed"`
		} `json:"queue"`
		Platforms map[string]bool `json:"platforms"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Queue.Completed != 7 {
		t.Errorf("queue.completed = %d, want 7", resp.Queue.Completed)
	}
	for _, name := range []string{"facebook", "instagram", "twitter"} {
		if configured, ok := resp.Platforms[name]; !ok || configured {
			t.Errorf("platforms[%s] = %v, %v; want present and unconfigured", name, configured, ok)
		}
	}
}

func TestListConfessions_LimitHandling(t *testing.T) {
	router, mock := setupTestRouter(t)

	// An absurd limit clamps to the maximum.
	mock.ExpectQuery("SELECT (.+) FROM confessions").
		WithArgs(200).
		WillReturnRows(confessionRows("confession-1", domain.ConfessionStatusApproved))

	w := doJSON(t, router, http.MethodGet, "/api/v1/confessions?limit=9999", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp api.ConfessionListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Total != 1 {
		t.Errorf("total = %d, want 1", resp.Total)
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}

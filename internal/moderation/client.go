package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrClassifierUnavailable indicates the classifier service is unreachable
// or returned a non-OK status. The gate treats it conservatively.
var ErrClassifierUnavailable = errors.New("moderation classifier unavailable")

// Classifier scores content per category. Implementations may call an
// external service and must respect the context deadline.
type Classifier interface {
	Classify(ctx context.Context, content string, age int) (map[string]float64, error)
}

// classifyRequest is the request body for POST /classify.
type classifyRequest struct {
	Content string `json:"content"`
	Age     int    `json:"age,omitempty"`
}

// classifyResponse is the response body from /classify.
type classifyResponse struct {
	Scores       map[string]float64 `json:"scores"`
	Language     string             `json:"language,omitempty"`
	ModelVersion string             `json:"model_version,omitempty"`
}

// Client is an HTTP client for the content classifier service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a classifier client with a bounded per-call timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Classify sends content to the classifier and returns category scores.
func (c *Client) Classify(ctx context.Context, content string, age int) (map[string]float64, error) {
	body, err := json.Marshal(&classifyRequest{Content: content, Age: age})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/classify", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrClassifierUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: classifier returned %d", ErrClassifierUnavailable, resp.StatusCode)
	}

	var result classifyResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&result); decodeErr != nil {
		return nil, fmt.Errorf("decode response: %w", decodeErr)
	}
	return result.Scores, nil
}

// Health checks whether the classifier service is reachable.
func (c *Client) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrClassifierUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unhealthy status %d", ErrClassifierUnavailable, resp.StatusCode)
	}
	return nil
}

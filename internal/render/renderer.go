// Package render provides the client for the asset renderer service, which
// turns confession text into a shareable image. Rendering is opaque to this
// service: it sends text plus a theme and gets back an asset reference.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrRenderFailed indicates the renderer could not produce an asset.
// Platforms requiring an asset treat this as a permanent failure.
var ErrRenderFailed = errors.New("asset rendering failed")

// Renderer produces an asset reference for confession content.
type Renderer interface {
	Render(ctx context.Context, content, theme string) (assetRef string, err error)
}

// renderRequest is the request body for POST /render.
type renderRequest struct {
	Content string `json:"content"`
	Theme   string `json:"theme"`
}

// renderResponse is the response body from /render.
type renderResponse struct {
	AssetURL string `json:"asset_url"`
}

// Client is an HTTP client for the renderer service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a renderer client with a bounded per-call timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Render requests an image for the content and returns its asset reference.
func (c *Client) Render(ctx context.Context, content, theme string) (string, error) {
	body, err := json.Marshal(&renderRequest{Content: content, Theme: theme})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/render", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRenderFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: renderer returned %d", ErrRenderFailed, resp.StatusCode)
	}

	var result renderResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&result); decodeErr != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrRenderFailed, decodeErr)
	}
	if result.AssetURL == "" {
		return "", fmt.Errorf("%w: empty asset reference", ErrRenderFailed)
	}
	return result.AssetURL, nil
}

package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jonesrussell/whisper-vault/internal/config"
	"github.com/jonesrussell/whisper-vault/internal/domain"
)

const defaultInstagramBaseURL = "https://i.instagram.com/api/v1"

// instagramHashtags is appended to every caption.
const instagramHashtags = "#confession #anonymous #whispervault"

// InstagramPoster publishes rendered confession images to Instagram.
// Instagram refuses text-only posts, so a missing asset reference is an
// unsupported-content outcome, not a retryable failure.
type InstagramPoster struct {
	creds      config.InstagramCredentials
	baseURL    string
	httpClient *http.Client
}

// NewInstagramPoster creates an Instagram poster.
func NewInstagramPoster(creds config.InstagramCredentials) *InstagramPoster {
	return &InstagramPoster{
		creds:      creds,
		baseURL:    defaultInstagramBaseURL,
		httpClient: &http.Client{Timeout: defaultPostTimeout},
	}
}

// Platform returns instagram.
func (p *InstagramPoster) Platform() domain.Platform {
	return domain.PlatformInstagram
}

// instagramUploadRequest is the photo upload request body.
type instagramUploadRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	AssetURL string `json:"asset_url"`
	Caption  string `json:"caption"`
}

// instagramUploadResponse is the photo upload response body.
type instagramUploadResponse struct {
	MediaID string `json:"media_id"`
}

// Post uploads the asset with a truncated, hashtag-suffixed caption.
func (p *InstagramPoster) Post(ctx context.Context, content, assetRef string) domain.PostOutcome {
	if !p.creds.Configured() {
		return domain.Unavailable("instagram credentials not configured")
	}
	if assetRef == "" {
		return domain.PermanentFailure("instagram requires a rendered asset")
	}

	caption := truncate(content, domain.PlatformInstagram.MaxContentLength())
	caption = caption + "\n\n" + instagramHashtags

	body, err := json.Marshal(&instagramUploadRequest{
		Username: p.creds.Username,
		Password: p.creds.Password,
		AssetURL: assetRef,
		Caption:  caption,
	})
	if err != nil {
		return domain.PermanentFailure(fmt.Sprintf("instagram: marshal request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/media/upload", bytes.NewReader(body))
	if err != nil {
		return domain.PermanentFailure(fmt.Sprintf("instagram: build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return classifyHTTPError(domain.PlatformInstagram, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return classifyStatus(domain.PlatformInstagram, resp.StatusCode)
	}

	var result instagramUploadResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&result); decodeErr != nil {
		return domain.TransientFailure(fmt.Sprintf("instagram: decode response: %v", decodeErr))
	}
	return domain.Success(result.MediaID)
}

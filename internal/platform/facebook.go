package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/jonesrussell/whisper-vault/internal/config"
	"github.com/jonesrussell/whisper-vault/internal/domain"
)

const defaultGraphBaseURL = "https://graph.facebook.com/v19.0"

// FacebookPoster posts to a Facebook page feed via the Graph API.
// Posts with an asset reference go to the page photo album; text-only
// posts go to the feed.
type FacebookPoster struct {
	creds      config.FacebookCredentials
	baseURL    string
	httpClient *http.Client
}

// NewFacebookPoster creates a Facebook poster.
func NewFacebookPoster(creds config.FacebookCredentials) *FacebookPoster {
	return &FacebookPoster{
		creds:      creds,
		baseURL:    defaultGraphBaseURL,
		httpClient: &http.Client{Timeout: defaultPostTimeout},
	}
}

// Platform returns facebook.
func (p *FacebookPoster) Platform() domain.Platform {
	return domain.PlatformFacebook
}

// graphPostResponse is the Graph API create response.
type graphPostResponse struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

// Post publishes to the configured page.
func (p *FacebookPoster) Post(ctx context.Context, content, assetRef string) domain.PostOutcome {
	if !p.creds.Configured() {
		return domain.Unavailable("facebook credentials not configured")
	}

	message := truncate(content, domain.PlatformFacebook.MaxContentLength())

	endpoint := fmt.Sprintf("%s/%s/feed", p.baseURL, p.creds.PageID)
	form := url.Values{
		"message":      {message},
		"access_token": {p.creds.AccessToken},
	}
	if assetRef != "" {
		endpoint = fmt.Sprintf("%s/%s/photos", p.baseURL, p.creds.PageID)
		form.Set("url", assetRef)
		form.Set("caption", message)
		form.Del("message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.PermanentFailure(fmt.Sprintf("facebook: build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return classifyHTTPError(domain.PlatformFacebook, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return classifyStatus(domain.PlatformFacebook, resp.StatusCode)
	}

	var result graphPostResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&result); decodeErr != nil {
		return domain.TransientFailure(fmt.Sprintf("facebook: decode response: %v", decodeErr))
	}
	remoteID := result.PostID
	if remoteID == "" {
		remoteID = result.ID
	}
	return domain.Success(remoteID)
}

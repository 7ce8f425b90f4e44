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

const defaultTwitterBaseURL = "https://api.twitter.com/2"

// TwitterPoster posts tweets via the v2 API. Content beyond the 280
// character limit is truncated deterministically, never dropped.
type TwitterPoster struct {
	creds      config.TwitterCredentials
	baseURL    string
	httpClient *http.Client
}

// NewTwitterPoster creates a Twitter poster.
func NewTwitterPoster(creds config.TwitterCredentials) *TwitterPoster {
	return &TwitterPoster{
		creds:      creds,
		baseURL:    defaultTwitterBaseURL,
		httpClient: &http.Client{Timeout: defaultPostTimeout},
	}
}

// Platform returns twitter.
func (p *TwitterPoster) Platform() domain.Platform {
	return domain.PlatformTwitter
}

// tweetRequest is the v2 create-tweet request body.
type tweetRequest struct {
	Text  string      `json:"text"`
	Media *tweetMedia `json:"media,omitempty"`
}

type tweetMedia struct {
	MediaURLs []string `json:"media_urls"`
}

// tweetResponse is the v2 create-tweet response body.
type tweetResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Post creates a tweet, attaching the asset when one was rendered.
func (p *TwitterPoster) Post(ctx context.Context, content, assetRef string) domain.PostOutcome {
	if !p.creds.Configured() {
		return domain.Unavailable("twitter credentials not configured")
	}

	payload := tweetRequest{Text: truncate(content, domain.PlatformTwitter.MaxContentLength())}
	if assetRef != "" {
		payload.Media = &tweetMedia{MediaURLs: []string{assetRef}}
	}

	body, err := json.Marshal(&payload)
	if err != nil {
		return domain.PermanentFailure(fmt.Sprintf("twitter: marshal request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/tweets", bytes.NewReader(body))
	if err != nil {
		return domain.PermanentFailure(fmt.Sprintf("twitter: build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.creds.BearerToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return classifyHTTPError(domain.PlatformTwitter, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return classifyStatus(domain.PlatformTwitter, resp.StatusCode)
	}

	var result tweetResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&result); decodeErr != nil {
		return domain.TransientFailure(fmt.Sprintf("twitter: decode response: %v", decodeErr))
	}
	return domain.Success(result.Data.ID)
}

package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jonesrussell/whisper-vault/internal/config"
	"github.com/jonesrussell/whisper-vault/internal/domain"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		limit   int
		want    string
	}{
		{"under limit", "short", 10, "short"},
		{"exactly at limit", "exact", 5, "exact"},
		{"over limit", "abcdefgh", 5, "abcde"},
		{"zero limit means unlimited", "anything", 0, "anything"},
		{"multibyte runes cut cleanly", "héllo wörld", 7, "héllo w"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncate(tt.content, tt.limit); got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.content, tt.limit, got, tt.want)
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   domain.OutcomeKind
	}{
		{http.StatusInternalServerError, domain.OutcomeTransientFailure},
		{http.StatusBadGateway, domain.OutcomeTransientFailure},
		{http.StatusTooManyRequests, domain.OutcomeTransientFailure},
		{http.StatusUnauthorized, domain.OutcomePermanentFailure},
		{http.StatusForbidden, domain.OutcomePermanentFailure},
		{http.StatusBadRequest, domain.OutcomePermanentFailure},
		{http.StatusUnprocessableEntity, domain.OutcomePermanentFailure},
	}

	for _, tt := range tests {
		got := classifyStatus(domain.PlatformTwitter, tt.status)
		if got.Kind != tt.want {
			t.Errorf("classifyStatus(%d) kind = %s, want %s", tt.status, got.Kind, tt.want)
		}
	}
}

func fbCreds() config.FacebookCredentials {
	return config.FacebookCredentials{AccessToken: "token", PageID: "12345"}
}

func twCreds() config.TwitterCredentials {
	return config.TwitterCredentials{
		APIKey:            "key",
		APISecret:         "secret",
		AccessToken:       "at",
		AccessTokenSecret: "ats",
		BearerToken:       "bearer",
	}
}

func igCreds() config.InstagramCredentials {
	return config.InstagramCredentials{Username: "whispervault", Password: "hunter2"}
}

func TestFacebookPoster_Post(t *testing.T) {
	var gotPath string
	var gotForm map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotForm = r.PostForm
		json.NewEncoder(w).Encode(map[string]string{"id": "12345_67890", "post_id": "67890"})
	}))
	defer srv.Close()

	poster := NewFacebookPoster(fbCreds())
	poster.baseURL = srv.URL

	outcome := poster.Post(context.Background(), "a secret", "")
	if outcome.Kind != domain.OutcomeSuccess {
		t.Fatalf("Post() kind = %s (%s), want success", outcome.Kind, outcome.Reason)
	}
	if outcome.RemoteID != "67890" {
		t.Errorf("RemoteID = %q, want %q", outcome.RemoteID, "67890")
	}
	if gotPath != "/12345/feed" {
		t.Errorf("path = %q, want /12345/feed", gotPath)
	}
	if got := gotForm["message"]; len(got) != 1 || got[0] != "a secret" {
		t.Errorf("message form field = %v", got)
	}
}

func TestFacebookPoster_PostWithAssetUsesPhotoEndpoint(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(map[string]string{"id": "111"})
	}))
	defer srv.Close()

	poster := NewFacebookPoster(fbCreds())
	poster.baseURL = srv.URL

	outcome := poster.Post(context.Background(), "a secret", "https://assets/img.png")
	if outcome.Kind != domain.OutcomeSuccess {
		t.Fatalf("Post() kind = %s, want success", outcome.Kind)
	}
	if outcome.RemoteID != "111" {
		t.Errorf("RemoteID = %q, want %q", outcome.RemoteID, "111")
	}
	if gotPath != "/12345/photos" {
		t.Errorf("path = %q, want /12345/photos", gotPath)
	}
}

func TestFacebookPoster_Unconfigured(t *testing.T) {
	poster := NewFacebookPoster(config.FacebookCredentials{})
	outcome := poster.Post(context.Background(), "a secret", "")
	if outcome.Kind != domain.OutcomeUnavailable {
		t.Errorf("Post() kind = %s, want unavailable", outcome.Kind)
	}
}

func TestFacebookPoster_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	poster := NewFacebookPoster(fbCreds())
	poster.baseURL = srv.URL

	outcome := poster.Post(context.Background(), "a secret", "")
	if outcome.Kind != domain.OutcomeTransientFailure {
		t.Errorf("Post() kind = %s, want transient_failure", outcome.Kind)
	}
}

func TestTwitterPoster_Post(t *testing.T) {
	var gotBody tweetRequest
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]string{"id": "tweet-1"}})
	}))
	defer srv.Close()

	poster := NewTwitterPoster(twCreds())
	poster.baseURL = srv.URL

	long := strings.Repeat("x", 300)
	outcome := poster.Post(context.Background(), long, "")
	if outcome.Kind != domain.OutcomeSuccess {
		t.Fatalf("Post() kind = %s (%s), want success", outcome.Kind, outcome.Reason)
	}
	if outcome.RemoteID != "tweet-1" {
		t.Errorf("RemoteID = %q, want %q", outcome.RemoteID, "tweet-1")
	}
	if len([]rune(gotBody.Text)) != domain.PlatformTwitter.MaxContentLength() {
		t.Errorf("tweet text length = %d, want %d", len([]rune(gotBody.Text)), domain.PlatformTwitter.MaxContentLength())
	}
	if gotAuth != "Bearer bearer" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestTwitterPoster_AuthRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	poster := NewTwitterPoster(twCreds())
	poster.baseURL = srv.URL

	outcome := poster.Post(context.Background(), "hello", "")
	if outcome.Kind != domain.OutcomePermanentFailure {
		t.Errorf("Post() kind = %s, want permanent_failure", outcome.Kind)
	}
}

func TestTwitterPoster_BearerOnlyCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]string{"id": "tweet-9"}})
	}))
	defer srv.Close()

	poster := NewTwitterPoster(config.TwitterCredentials{BearerToken: "bearer"})
	poster.baseURL = srv.URL

	outcome := poster.Post(context.Background(), "hello", "")
	if outcome.Kind != domain.OutcomeSuccess {
		t.Errorf("Post() kind = %s (%s), want success", outcome.Kind, outcome.Reason)
	}
}

func TestTwitterPoster_MissingBearerTokenUnavailable(t *testing.T) {
	poster := NewTwitterPoster(config.TwitterCredentials{
		APIKey:            "key",
		APISecret:         "secret",
		AccessToken:       "at",
		AccessTokenSecret: "ats",
	})
	outcome := poster.Post(context.Background(), "hello", "")
	if outcome.Kind != domain.OutcomeUnavailable {
		t.Errorf("Post() kind = %s, want unavailable", outcome.Kind)
	}
}

func TestInstagramPoster_RequiresAsset(t *testing.T) {
	poster := NewInstagramPoster(igCreds())
	outcome := poster.Post(context.Background(), "a secret", "")
	if outcome.Kind != domain.OutcomePermanentFailure {
		t.Errorf("Post() kind = %s, want permanent_failure", outcome.Kind)
	}
}

func TestInstagramPoster_Post(t *testing.T) {
	var gotBody instagramUploadRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"media_id": "media-9"})
	}))
	defer srv.Close()

	poster := NewInstagramPoster(igCreds())
	poster.baseURL = srv.URL

	outcome := poster.Post(context.Background(), "a secret", "https://assets/img.png")
	if outcome.Kind != domain.OutcomeSuccess {
		t.Fatalf("Post() kind = %s (%s), want success", outcome.Kind, outcome.Reason)
	}
	if outcome.RemoteID != "media-9" {
		t.Errorf("RemoteID = %q, want %q", outcome.RemoteID, "media-9")
	}
	if !strings.HasSuffix(gotBody.Caption, instagramHashtags) {
		t.Errorf("caption %q missing hashtag suffix", gotBody.Caption)
	}
	if gotBody.AssetURL != "https://assets/img.png" {
		t.Errorf("asset url = %q", gotBody.AssetURL)
	}
}

func TestRegistry_Get(t *testing.T) {
	reg := NewRegistry(config.PlatformCredentials{})

	for _, p := range domain.AllPlatforms() {
		poster, err := reg.Get(p)
		if err != nil {
			t.Errorf("Get(%s) error = %v", p, err)
			continue
		}
		if poster.Platform() != p {
			t.Errorf("Get(%s).Platform() = %s", p, poster.Platform())
		}
	}

	if _, err := reg.Get(domain.Platform("myspace")); err == nil {
		t.Error("Get(myspace) error = nil, want error")
	}
}

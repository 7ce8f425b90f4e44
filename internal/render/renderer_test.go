package render

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClient_Render(t *testing.T) {
	var gotReq renderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/render" {
			t.Errorf("path = %q, want /render", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"asset_url": "https://assets/img-1.png"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	assetRef, err := client.Render(context.Background(), "a secret", "midnight")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if assetRef != "https://assets/img-1.png" {
		t.Errorf("assetRef = %q", assetRef)
	}
	if gotReq.Content != "a secret" || gotReq.Theme != "midnight" {
		t.Errorf("request = %+v", gotReq)
	}
}

func TestClient_RenderFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "upstream error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "empty asset reference",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]string{"asset_url": ""})
			},
		},
		{
			name: "malformed response",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("not json"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			client := NewClient(srv.URL, time.Second)
			_, err := client.Render(context.Background(), "a secret", "midnight")
			if !errors.Is(err, ErrRenderFailed) {
				t.Errorf("Render() error = %v, want ErrRenderFailed", err)
			}
		})
	}
}

func TestClient_RenderConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listens anymore

	client := NewClient(srv.URL, time.Second)
	_, err := client.Render(context.Background(), "a secret", "midnight")
	if !errors.Is(err, ErrRenderFailed) {
		t.Errorf("Render() error = %v, want ErrRenderFailed", err)
	}
}

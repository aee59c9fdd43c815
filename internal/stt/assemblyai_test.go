package stt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/antoniostano/voicechat/internal/reliability"
)

func TestAssemblyAIProviderUploadCreatePoll(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "test-key" {
			t.Errorf("missing authorization header on %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v2/upload":
			body, _ := io.ReadAll(r.Body)
			if string(body) != "RIFFaudio" {
				t.Errorf("upload body = %q", body)
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"upload_url": "https://cdn.example/a1"})
		case r.Method == http.MethodPost && r.URL.Path == "/v2/transcript":
			var req map[string]any
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req["audio_url"] != "https://cdn.example/a1" || req["language_code"] != "en" || req["punctuate"] != true || req["format_text"] != true {
				t.Errorf("unexpected transcript request: %v", req)
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "t1", "status": "queued"})
		case r.Method == http.MethodGet && r.URL.Path == "/v2/transcript/t1":
			polls.Add(1)
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "t1", "status": "completed", "text": "hello there"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewAssemblyAIProvider("test-key", srv.URL, "en")
	got, err := p.Transcribe(context.Background(), writeAudio(t, []byte("RIFFaudio")))
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if got != "hello there" {
		t.Fatalf("Transcribe() = %q", got)
	}
	if polls.Load() < 1 {
		t.Fatalf("transcript never polled")
	}
}

func TestAssemblyAIProviderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/v2/upload":
			_ = json.NewEncoder(w).Encode(map[string]string{"upload_url": "https://cdn.example/u"})
		case r.Method == http.MethodPost && r.URL.Path == "/v2/transcript":
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "t1", "status": "queued"})
		default:
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "t1", "status": "error", "error": "audio too short"})
		}
	}))
	defer srv.Close()

	p := NewAssemblyAIProvider("k", srv.URL, "en")
	_, err := p.Transcribe(context.Background(), writeAudio(t, []byte("x")))
	if !errors.Is(err, ErrTranscriptionFailed) {
		t.Fatalf("expected ErrTranscriptionFailed, got %v", err)
	}
}

func TestAssemblyAIProviderRejectedKeyIsConfigError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "Invalid API key"})
	}))
	defer srv.Close()

	p := NewAssemblyAIProvider("k", srv.URL, "en")
	_, err := p.Transcribe(context.Background(), writeAudio(t, []byte("x")))
	if err == nil {
		t.Fatalf("expected error for 401 response")
	}
	if got := reliability.CategoryOf(err, ""); got != reliability.CategoryConfig {
		t.Fatalf("category = %q, want config_error", got)
	}
}

func TestAssemblyAIProviderServerErrorKeepsSTTCategory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "boom"})
	}))
	defer srv.Close()

	a := NewAdapter(NewAssemblyAIProvider("k", srv.URL, "en"), 0, nil)
	_, err := a.Transcribe(context.Background(), writeAudio(t, []byte("x")), "s1")
	if got := reliability.CategoryOf(err, ""); got != reliability.CategorySTT {
		t.Fatalf("category = %q, want stt_error (err = %v)", got, err)
	}
}

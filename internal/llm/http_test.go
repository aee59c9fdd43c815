package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPProviderJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["prompt"] != "hello" {
			t.Errorf("prompt = %q", req["prompt"])
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"hi there"}`))
	}))
	defer srv.Close()

	got, err := NewHTTPProvider(srv.URL).Generate(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got.Text != "hi there" {
		t.Fatalf("Text = %q", got.Text)
	}
}

func TestHTTPProviderSSE(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"delta\":\"Hel\"}\n\ndata: {\"delta\":\"lo\"}\n\ndata: [DONE]\n\n"))
	}))
	defer srv.Close()

	got, err := NewHTTPProvider(srv.URL).Generate(context.Background(), "x")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got.Text != "Hello" {
		t.Fatalf("Text = %q, want Hello", got.Text)
	}
}

func TestHTTPProviderBlockedAndStatus(t *testing.T) {
	blocked := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"blocked":true}`))
	}))
	defer blocked.Close()
	got, err := NewHTTPProvider(blocked.URL).Generate(context.Background(), "x")
	if err != nil || !got.Blocked {
		t.Fatalf("Generate() = %+v, %v; want blocked", got, err)
	}

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer failing.Close()
	if _, err := NewHTTPProvider(failing.URL).Generate(context.Background(), "x"); err == nil {
		t.Fatalf("expected error on 503")
	}
}

package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/antoniostano/voicechat/internal/config"
	"github.com/antoniostano/voicechat/internal/memory"
	"github.com/antoniostano/voicechat/internal/observability"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		AllowedOrigins:       []string{"*"},
		MaxUploadBytes:       1 << 20,
		SessionStore:         "file",
		SessionDataDir:       filepath.Join(t.TempDir(), "sessions"),
		STTProvider:          "mock",
		LLMProvider:          "mock",
		STTTimeout:           time.Second,
		LLMTimeout:           time.Second,
		TTSTimeout:           time.Second,
		OfflineTTSFormat:     "wav",
		OfflineTTSSampleRate: 22050,
		DefaultVoiceID:       "en-US-natalie",
	}
}

func TestBuildWiresFileStore(t *testing.T) {
	cfg := testConfig(t)
	res, err := Build(context.Background(), cfg, Options{
		Metrics: observability.NewMetricsWith(prometheus.NewRegistry(), "test_app"),
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			t.Fatalf("Cleanup() error = %v", err)
		}
	}()

	if res.StoreKind != "file" {
		t.Fatalf("store kind = %q, want file", res.StoreKind)
	}
	if res.Providers == "" {
		t.Fatalf("expected provider detail")
	}

	ctx := context.Background()
	if _, err := res.Store.Append(ctx, "s1", memory.Message{Role: memory.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.SessionDataDir, "s1.json")); err != nil {
		t.Fatalf("session file not written: %v", err)
	}

	ts := httptest.NewServer(res.API.Router())
	defer ts.Close()
	health, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	health.Body.Close()
	if health.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", health.StatusCode)
	}
}

func TestBuildRejectsUnknownProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLMProvider = "nope"
	if _, err := Build(context.Background(), cfg, Options{
		Metrics: observability.NewMetricsWith(prometheus.NewRegistry(), "test_app_bad"),
	}); err == nil {
		t.Fatalf("expected error for unknown llm provider")
	}
}

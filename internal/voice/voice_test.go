package voice

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/antoniostano/voicechat/internal/audio"
	"github.com/antoniostano/voicechat/internal/reliability"
)

var testWAV, _ = audio.EncodeWAVPCM16LE([]byte{0, 0, 1, 0}, 16000)

func TestSynthesizeWithoutKeyUsesOfflineAndSucceeds(t *testing.T) {
	offline := &StaticSynthesizer{Audio: testWAV}
	s := NewSynthesizer(NewMurfClient("", "", time.Second, nil), offline, nil)

	got := s.Synthesize(context.Background(), "hello there", "en-US-natalie", "s1")
	if got.Source != SourceOffline || got.Err != nil {
		t.Fatalf("Synthesize() = %+v, want offline without error", got)
	}
	if !strings.HasPrefix(got.Audio, "data:audio/wav;base64,") {
		t.Fatalf("Audio = %q, want wav data uri", got.Audio)
	}
}

func TestSynthesizeTextOnlyWhenEverythingFails(t *testing.T) {
	s := NewSynthesizer(NewMurfClient("", "", time.Second, nil), &StaticSynthesizer{Err: errors.New("espeak missing")}, nil)
	got := s.Synthesize(context.Background(), "  hi  ", "v", "s1")
	if got.Audio != "TEXT_ONLY:hi" || got.Source != SourceTextOnly {
		t.Fatalf("Synthesize() = %+v", got)
	}
	if !IsTextOnly(got.Audio) {
		t.Fatalf("IsTextOnly() = false")
	}
}

func TestMurfStrategiesTriedInOrder(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		auth := "bearer"
		if r.Header.Get("api-key") != "" {
			auth = "api-key"
		}
		field := "voiceId"
		if _, ok := body["voice"]; ok {
			field = "voice"
		}
		mu.Lock()
		seen = append(seen, auth+"+"+field)
		mu.Unlock()

		if auth == "api-key" && field == "voice" {
			_ = json.NewEncoder(w).Encode(map[string]string{"audioBase64": "QUJD"})
			return
		}
		http.Error(w, "bad schema", http.StatusBadRequest)
	}))
	defer srv.Close()

	s := NewSynthesizer(NewMurfClient("k", srv.URL, time.Second, nil), nil, nil)
	got := s.Synthesize(context.Background(), "hello", "en-US-natalie", "s1")
	if got.Source != SourceMurf || got.Audio != "data:audio/mp3;base64,QUJD" {
		t.Fatalf("Synthesize() = %+v", got)
	}

	want := []string{"bearer+voiceId", "bearer+voice", "api-key+voiceId", "api-key+voice"}
	if strings.Join(seen, ",") != strings.Join(want, ",") {
		t.Fatalf("attempt order = %v, want %v", seen, want)
	}
}

func TestMurfURLResponseReturnedAsIs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"audioFile": "https://cdn.murf.example/a.mp3"})
	}))
	defer srv.Close()

	s := NewSynthesizer(NewMurfClient("k", srv.URL, time.Second, nil), nil, nil)
	got := s.Synthesize(context.Background(), "hello", "v", "s1")
	if got.Audio != "https://cdn.murf.example/a.mp3" || got.Err != nil {
		t.Fatalf("Synthesize() = %+v", got)
	}
}

func TestMurfFailureFallsBackWithTTSError(t *testing.T) {
	var calls int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		// 200 without any audio field still counts as a failed attempt.
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer srv.Close()

	offline := &StaticSynthesizer{Audio: testWAV}
	s := NewSynthesizer(NewMurfClient("k", srv.URL, time.Second, nil), offline, nil)
	got := s.Synthesize(context.Background(), "hello", "v", "s1")

	if got.Source != SourceOffline {
		t.Fatalf("Source = %q, want offline", got.Source)
	}
	if reliability.CategoryOf(got.Err, "") != reliability.CategoryTTS {
		t.Fatalf("Err = %v, want tts_error", got.Err)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != len(murfStrategies) {
		t.Fatalf("calls = %d, want %d", calls, len(murfStrategies))
	}
}

func TestMurfBacksOffAfterServerErrors(t *testing.T) {
	var (
		mu    sync.Mutex
		times []time.Time
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		times = append(times, time.Now())
		n := len(times)
		mu.Unlock()
		if n < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"audioFile": "https://cdn.murf.example/b.mp3"})
	}))
	defer srv.Close()

	murf := NewMurfClient("k", srv.URL, time.Second, nil)
	murf.SetRetryBackoff(20*time.Millisecond, 40*time.Millisecond)
	got, err := murf.Generate(context.Background(), "hello", "v", "s1")
	if err != nil || got != "https://cdn.murf.example/b.mp3" {
		t.Fatalf("Generate() = %q, %v", got, err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(times) != 3 {
		t.Fatalf("attempts = %d, want 3", len(times))
	}
	if gap := times[1].Sub(times[0]); gap < 20*time.Millisecond {
		t.Fatalf("first pause = %v, want at least 20ms", gap)
	}
	if gap := times[2].Sub(times[1]); gap < 40*time.Millisecond {
		t.Fatalf("second pause = %v, want at least 40ms", gap)
	}
}

func TestMurfBackoffStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	murf := NewMurfClient("k", srv.URL, time.Second, nil)
	murf.SetRetryBackoff(time.Minute, time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := murf.Generate(ctx, "hello", "v", "s1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Generate() error = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("Generate() took %v after cancel", elapsed)
	}
}

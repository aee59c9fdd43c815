package stt

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/antoniostano/voicechat/internal/reliability"
)

type namedMock struct {
	MockProvider
	name string
}

func (m *namedMock) Name() string { return m.name }

func TestFailoverUsesFallbackWhenPrimaryFails(t *testing.T) {
	primary := &namedMock{MockProvider: MockProvider{Err: errors.New("upstream 503")}, name: "primary"}
	fallback := &namedMock{MockProvider: MockProvider{Text: "from fallback"}, name: "fallback"}
	p := NewFailoverProvider(primary, fallback)

	got, err := p.Transcribe(context.Background(), "ignored.wav")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if got != "from fallback" {
		t.Fatalf("Transcribe() = %q, want fallback transcript", got)
	}
	if !p.FallbackActive() {
		t.Fatalf("fallback should stay active after it succeeded")
	}

	// The sticky fallback is tried first on the next call.
	if _, err := p.Transcribe(context.Background(), "ignored.wav"); err != nil {
		t.Fatalf("second Transcribe() error = %v", err)
	}
	if primary.CallCount() != 1 || fallback.CallCount() != 2 {
		t.Fatalf("calls primary=%d fallback=%d, want 1/2", primary.CallCount(), fallback.CallCount())
	}
}

func TestFailoverReturnsToPrimaryWhenFallbackFails(t *testing.T) {
	primary := &namedMock{MockProvider: MockProvider{Err: errors.New("down")}, name: "primary"}
	fallback := &namedMock{MockProvider: MockProvider{Text: "fb"}, name: "fallback"}
	p := NewFailoverProvider(primary, fallback)
	if _, err := p.Transcribe(context.Background(), "a.wav"); err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}

	primary.SetResult("primary back", nil)
	fallback.SetResult("", errors.New("quota"))
	got, err := p.Transcribe(context.Background(), "a.wav")
	if err != nil || got != "primary back" {
		t.Fatalf("Transcribe() = %q, %v", got, err)
	}
	if p.FallbackActive() {
		t.Fatalf("fallback should be cleared once primary recovers")
	}
}

func TestFailoverDoesNotRetryFileErrors(t *testing.T) {
	fileErr := reliability.Wrap(reliability.CategoryFile, "open", errors.New("no such file"))
	primary := &namedMock{MockProvider: MockProvider{Err: fileErr}, name: "primary"}
	fallback := &namedMock{MockProvider: MockProvider{Text: "fb"}, name: "fallback"}
	p := NewFailoverProvider(primary, fallback)

	_, err := p.Transcribe(context.Background(), "a.wav")
	if reliability.CategoryOf(err, "") != reliability.CategoryFile {
		t.Fatalf("err = %v, want file_error", err)
	}
	if fallback.CallCount() != 0 {
		t.Fatalf("fallback called for a file error")
	}
}

func TestFailoverSkipsUnconfiguredPrimary(t *testing.T) {
	primary := &namedMock{MockProvider: MockProvider{Unset: true}, name: "primary"}
	fallback := &namedMock{MockProvider: MockProvider{Text: "fb"}, name: "fallback"}
	p := NewFailoverProvider(primary, fallback)
	if !p.Configured() {
		t.Fatalf("Configured() = false with a configured fallback")
	}
	got, err := p.Transcribe(context.Background(), "a.wav")
	if err != nil || got != "fb" {
		t.Fatalf("Transcribe() = %q, %v", got, err)
	}
	if primary.CallCount() != 0 {
		t.Fatalf("unconfigured primary was called")
	}
}

func TestFailoverBothFail(t *testing.T) {
	primary := &namedMock{MockProvider: MockProvider{Err: errors.New("a")}, name: "primary"}
	fallback := &namedMock{MockProvider: MockProvider{Err: fmt.Errorf("%w: b", ErrTranscriptionFailed)}, name: "fallback"}
	_, err := NewFailoverProvider(primary, fallback).Transcribe(context.Background(), "a.wav")
	if !errors.Is(err, ErrTranscriptionFailed) {
		t.Fatalf("err = %v, want wrapped fallback error", err)
	}
}

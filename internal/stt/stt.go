// Package stt turns an uploaded audio file into a transcript and maps every
// provider failure onto the reliability taxonomy.
package stt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/antoniostano/voicechat/internal/reliability"
)

// Provider transcribes one local audio file.
type Provider interface {
	Name() string
	// Configured reports whether the provider holds a usable credential.
	Configured() bool
	Transcribe(ctx context.Context, path string) (string, error)
}

// ErrTranscriptionFailed marks a failure status reported by the provider itself.
var ErrTranscriptionFailed = errors.New("provider reported transcription failure")

// Adapter validates input, bounds the provider call and classifies failures.
type Adapter struct {
	provider Provider
	timeout  time.Duration
	logger   *slog.Logger
}

func NewAdapter(provider Provider, timeout time.Duration, logger *slog.Logger) *Adapter {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{provider: provider, timeout: timeout, logger: logger}
}

func (a *Adapter) Configured() bool {
	return a.provider != nil && a.provider.Configured()
}

func (a *Adapter) ProviderName() string {
	if a.provider == nil {
		return "none"
	}
	return a.provider.Name()
}

// Transcribe returns the trimmed transcript of the file at path. Every error is
// a *reliability.Error tagged file_error, config_error, network_error or stt_error.
func (a *Adapter) Transcribe(ctx context.Context, path, sessionID string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", reliability.Wrap(reliability.CategoryFile, "stt stat upload", err)
	}
	if info.IsDir() || info.Size() == 0 {
		return "", reliability.Wrap(reliability.CategoryFile, "stt stat upload", fmt.Errorf("empty audio file %q", path))
	}
	if !a.Configured() {
		return "", reliability.Wrap(reliability.CategoryConfig, "stt", errors.New("transcription provider not configured"))
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	text, err := a.provider.Transcribe(callCtx, path)
	if err != nil {
		category := reliability.Classify(err, reliability.CategorySTT)
		a.logger.Error("stt failed",
			"session_id", sessionID,
			"provider", a.provider.Name(),
			"category", category,
			"error", err,
		)
		return "", reliability.Wrap(category, "stt "+a.provider.Name(), err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		a.logger.Warn("stt returned empty transcript", "session_id", sessionID, "provider", a.provider.Name())
		return "", reliability.Wrap(reliability.CategorySTT, "stt "+a.provider.Name(), errors.New("empty transcript"))
	}

	a.logger.Info("stt success",
		"session_id", sessionID,
		"provider", a.provider.Name(),
		"chars", len(text),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

// Package llm produces the assistant reply for a transcribed user turn.
package llm

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/antoniostano/voicechat/internal/reliability"
)

// BlockedReply is returned in place of generated text when the provider refuses
// the prompt on content-policy grounds. It counts as a successful generation.
const BlockedReply = "I'm sorry, I can't respond to that type of request. Could you please ask something else?"

// Reply is the raw provider outcome.
type Reply struct {
	Text    string
	Blocked bool
}

// Provider generates a completion for a fully assembled prompt.
type Provider interface {
	Name() string
	Configured() bool
	Generate(ctx context.Context, prompt string) (Reply, error)
}

// Adapter bounds provider calls and maps failures onto the error taxonomy.
type Adapter struct {
	provider Provider
	timeout  time.Duration
	logger   *slog.Logger
}

func NewAdapter(provider Provider, timeout time.Duration, logger *slog.Logger) *Adapter {
	if timeout <= 0 {
		timeout = 30 * time.Second
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

// Generate returns the reply text. Errors are *reliability.Error tagged
// config_error, network_error or llm_error.
func (a *Adapter) Generate(ctx context.Context, prompt, sessionID string) (string, error) {
	if !a.Configured() {
		return "", reliability.Wrap(reliability.CategoryConfig, "llm", errors.New("text generation provider not configured"))
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	reply, err := a.provider.Generate(callCtx, prompt)
	if err != nil {
		category := reliability.Classify(err, reliability.CategoryLLM)
		a.logger.Error("llm failed",
			"session_id", sessionID,
			"provider", a.provider.Name(),
			"category", category,
			"error", err,
		)
		return "", reliability.Wrap(category, "llm "+a.provider.Name(), err)
	}
	if reply.Blocked {
		a.logger.Warn("llm blocked prompt", "session_id", sessionID, "provider", a.provider.Name())
		return BlockedReply, nil
	}

	text := strings.TrimSpace(reply.Text)
	if text == "" {
		a.logger.Error("llm returned empty response", "session_id", sessionID, "provider", a.provider.Name())
		return "", reliability.Wrap(reliability.CategoryLLM, "llm "+a.provider.Name(), errors.New("empty response"))
	}

	a.logger.Info("llm success",
		"session_id", sessionID,
		"provider", a.provider.Name(),
		"chars", len(text),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

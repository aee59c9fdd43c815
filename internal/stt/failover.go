package stt

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/antoniostano/voicechat/internal/reliability"
)

// FailoverProvider prefers the primary provider and switches to the fallback
// when the primary fails. Once the fallback succeeds it stays active until it
// fails; then the primary is retried. File errors are never retried because
// the other provider would read the same file.
type FailoverProvider struct {
	primary        Provider
	fallback       Provider
	fallbackActive atomic.Bool
}

func NewFailoverProvider(primary, fallback Provider) *FailoverProvider {
	return &FailoverProvider{primary: primary, fallback: fallback}
}

func (p *FailoverProvider) Name() string {
	return p.primary.Name() + "+" + p.fallback.Name()
}

func (p *FailoverProvider) Configured() bool {
	return p.primary.Configured() || p.fallback.Configured()
}

// FallbackActive reports whether the next call starts with the fallback.
func (p *FailoverProvider) FallbackActive() bool {
	return p.fallbackActive.Load()
}

func (p *FailoverProvider) Transcribe(ctx context.Context, path string) (string, error) {
	first, second := p.primary, p.fallback
	if p.fallbackActive.Load() {
		first, second = p.fallback, p.primary
	}

	text, firstErr := transcribeIfConfigured(ctx, first, path)
	if firstErr == nil {
		return text, nil
	}
	if reliability.CategoryOf(firstErr, "") == reliability.CategoryFile || ctx.Err() != nil {
		return "", firstErr
	}

	text, secondErr := transcribeIfConfigured(ctx, second, path)
	if secondErr != nil {
		return "", fmt.Errorf("stt %s failed: %v; stt %s failed: %w", first.Name(), firstErr, second.Name(), secondErr)
	}
	p.fallbackActive.Store(second == p.fallback)
	return text, nil
}

func transcribeIfConfigured(ctx context.Context, p Provider, path string) (string, error) {
	if !p.Configured() {
		return "", reliability.Wrap(reliability.CategoryConfig, "stt "+p.Name(), fmt.Errorf("provider not configured"))
	}
	return p.Transcribe(ctx, path)
}

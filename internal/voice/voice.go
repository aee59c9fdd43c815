// Package voice turns reply text into something the client can play. It
// degrades from the primary provider to a local command to a text-only marker
// and never fails the caller.
package voice

import (
	"context"
	"log/slog"
	"strings"

	"github.com/antoniostano/voicechat/internal/audio"
	"github.com/antoniostano/voicechat/internal/reliability"
)

// TextOnlyPrefix marks a payload that carries text instead of audio.
const TextOnlyPrefix = "TEXT_ONLY:"

// Source names which tier produced the audio.
type Source string

const (
	SourceMurf     Source = "murf"
	SourceOffline  Source = "offline"
	SourceTextOnly Source = "text_only"
)

// Speech is the synthesis outcome. Err is set, tagged tts_error, only when the
// primary provider was configured and failed; Audio is always populated.
type Speech struct {
	Audio  string
	Source Source
	Err    error
}

// Synthesizer chains the primary provider and the offline fallback.
type Synthesizer struct {
	murf    *MurfClient
	offline OfflineSynthesizer
	logger  *slog.Logger
}

func NewSynthesizer(murf *MurfClient, offline OfflineSynthesizer, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{murf: murf, offline: offline, logger: logger}
}

// PrimaryConfigured reports whether the primary provider has a credential.
func (s *Synthesizer) PrimaryConfigured() bool {
	return s.murf.Configured()
}

func (s *Synthesizer) Synthesize(ctx context.Context, text, voiceID, sessionID string) Speech {
	spoken := speakableText(text)

	if !s.murf.Configured() {
		s.logger.Warn("no primary tts credential, using fallback audio", "session_id", sessionID)
		return s.fallback(ctx, text, spoken, sessionID, nil)
	}

	ref, err := s.murf.Generate(ctx, spoken, voiceID, sessionID)
	if err == nil {
		return Speech{Audio: ref, Source: SourceMurf}
	}
	s.logger.Error("primary tts failed, using fallback audio",
		"session_id", sessionID,
		"category", reliability.CategoryTTS,
		"error", err,
	)
	return s.fallback(ctx, text, spoken, sessionID, reliability.Wrap(reliability.CategoryTTS, "tts", err))
}

func (s *Synthesizer) fallback(ctx context.Context, text, spoken, sessionID string, cause error) Speech {
	if s.offline != nil && spoken != "" {
		wav, err := s.offline.Synthesize(ctx, spoken)
		if err == nil {
			return Speech{Audio: audio.DataURI("audio/wav", wav), Source: SourceOffline, Err: cause}
		}
		s.logger.Warn("offline tts failed, returning text only", "session_id", sessionID, "error", err)
	}
	return Speech{Audio: TextOnlyPrefix + strings.TrimSpace(text), Source: SourceTextOnly, Err: cause}
}

// IsTextOnly reports whether an audio payload is the text-only marker.
func IsTextOnly(payload string) bool {
	return strings.HasPrefix(payload, TextOnlyPrefix)
}

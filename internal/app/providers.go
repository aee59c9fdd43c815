package app

import (
	"fmt"
	"log/slog"

	"github.com/antoniostano/voicechat/internal/config"
	"github.com/antoniostano/voicechat/internal/llm"
	"github.com/antoniostano/voicechat/internal/stt"
	"github.com/antoniostano/voicechat/internal/voice"
)

type providerSetup struct {
	stt     stt.Provider
	llm     llm.Provider
	murf    *voice.MurfClient
	offline voice.OfflineSynthesizer
	detail  string
	cleanup []func() error
}

func resolveProviders(cfg config.Config, logger *slog.Logger) (providerSetup, error) {
	var setup providerSetup

	switch cfg.STTProvider {
	case "assemblyai", "google":
		assembly := stt.NewAssemblyAIProvider(cfg.AssemblyAIAPIKey, cfg.AssemblyAIBaseURL, cfg.STTLanguage)
		google := stt.NewGoogleProvider(cfg.GoogleCredentials, cfg.STTLanguage)
		setup.cleanup = append(setup.cleanup, google.Close)
		var primary, fallback stt.Provider = assembly, google
		if cfg.STTProvider == "google" {
			primary, fallback = google, assembly
		}
		setup.stt = primary
		if primary.Configured() && fallback.Configured() {
			setup.stt = stt.NewFailoverProvider(primary, fallback)
		}
	case "mock":
		setup.stt = &stt.MockProvider{Text: "Hello, this is a test transcription."}
	default:
		return providerSetup{}, fmt.Errorf("invalid STT_PROVIDER: %q (expected assemblyai|google|mock)", cfg.STTProvider)
	}

	switch cfg.LLMProvider {
	case "gemini":
		setup.llm = llm.NewGeminiProvider(cfg.GeminiAPIKey, cfg.GeminiModel)
	case "http":
		setup.llm = llm.NewHTTPProvider(cfg.LLMHTTPURL)
	case "mock":
		setup.llm = &llm.MockProvider{}
	default:
		return providerSetup{}, fmt.Errorf("invalid LLM_PROVIDER: %q (expected gemini|http|mock)", cfg.LLMProvider)
	}

	setup.murf = voice.NewMurfClient(cfg.MurfAPIKey, cfg.MurfAPIURL, cfg.TTSTimeout, logger)

	offline := voice.NewCommandSynthesizer(cfg.OfflineTTSCommand, cfg.OfflineTTSFormat, cfg.OfflineTTSSampleRate, cfg.TTSTimeout)
	offlineDetail := "text-only fallback"
	if offline.Available() {
		setup.offline = offline
		offlineDetail = "offline fallback " + cfg.OfflineTTSCommand
	} else if cfg.OfflineTTSCommand != "" {
		logger.Warn("offline tts command not found, fallback is text only", "command", cfg.OfflineTTSCommand)
	}

	setup.detail = fmt.Sprintf("stt=%s llm=%s tts=murf (%s)", setup.stt.Name(), setup.llm.Name(), offlineDetail)
	return setup, nil
}

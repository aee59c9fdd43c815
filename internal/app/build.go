package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/antoniostano/voicechat/internal/config"
	"github.com/antoniostano/voicechat/internal/httpapi"
	"github.com/antoniostano/voicechat/internal/llm"
	"github.com/antoniostano/voicechat/internal/memory"
	"github.com/antoniostano/voicechat/internal/observability"
	"github.com/antoniostano/voicechat/internal/pipeline"
	"github.com/antoniostano/voicechat/internal/stt"
	"github.com/antoniostano/voicechat/internal/voice"
)

const stageWindowSamples = 256

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Store        *memory.Store
	StoreKind    string
	Orchestrator *pipeline.Orchestrator
	Metrics      *observability.Metrics
	Errors       *observability.ErrorRegistry
	Providers    string

	// Cleanup releases the session backend and provider clients.
	Cleanup func() error
}

type Options struct {
	Logger *slog.Logger
	// Metrics overrides the default-registry instruments. Tests pass their own.
	Metrics *observability.Metrics
}

func Build(ctx context.Context, cfg config.Config, opts Options) (*BuildResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics(cfg.MetricsNamespace)
	}

	backend, storeKind, err := memory.NewBackend(ctx, memory.BackendConfig{
		Kind:        cfg.SessionStore,
		DataDir:     cfg.SessionDataDir,
		SQLitePath:  cfg.SQLitePath,
		DatabaseURL: cfg.DatabaseURL,
		RedisURL:    cfg.RedisURL,
	})
	if err != nil {
		return nil, fmt.Errorf("session store init failed: %w", err)
	}
	store := memory.NewStore(backend, logger.With("component", "memory"))

	providers, err := resolveProviders(cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	registry := observability.NewErrorRegistry(metrics)
	window := observability.NewStageWindow(stageWindowSamples)
	events := httpapi.NewEventHub(metrics, logger.With("component", "events"))

	orchestrator := pipeline.New(pipeline.Options{
		Store:          store,
		STT:            stt.NewAdapter(providers.stt, cfg.STTTimeout, logger.With("component", "stt")),
		LLM:            llm.NewAdapter(providers.llm, cfg.LLMTimeout, logger.With("component", "llm")),
		TTS:            voice.NewSynthesizer(providers.murf, providers.offline, logger.With("component", "tts")),
		Errors:         registry,
		Metrics:        metrics,
		Window:         window,
		Events:         events,
		Persona:        cfg.SystemPersona,
		DefaultVoiceID: cfg.DefaultVoiceID,
		Logger:         logger.With("component", "pipeline"),
	})

	api := httpapi.New(httpapi.Deps{
		Config:       cfg,
		Orchestrator: orchestrator,
		Store:        store,
		StoreKind:    storeKind,
		Errors:       registry,
		Window:       window,
		Metrics:      metrics,
		Events:       events,
		Logger:       logger.With("component", "httpapi"),
	})

	cleanup := func() error {
		var errs []error
		for _, fn := range providers.cleanup {
			if err := fn(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := store.Close(); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	}

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Store:        store,
		StoreKind:    storeKind,
		Orchestrator: orchestrator,
		Metrics:      metrics,
		Errors:       registry,
		Providers:    providers.detail,
		Cleanup:      cleanup,
	}, nil
}

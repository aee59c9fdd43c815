package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the voice chat service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowedOrigins   []string
	MaxUploadBytes   int64

	SessionStore   string
	SessionDataDir string
	SQLitePath     string
	DatabaseURL    string
	RedisURL       string

	STTProvider       string
	AssemblyAIAPIKey  string
	AssemblyAIBaseURL string
	GoogleCredentials string
	STTLanguage       string
	STTTimeout        time.Duration

	LLMProvider   string
	GeminiAPIKey  string
	GeminiModel   string
	LLMHTTPURL    string
	LLMTimeout    time.Duration
	SystemPersona string

	MurfAPIKey     string
	MurfAPIURL     string
	DefaultVoiceID string
	TTSTimeout     time.Duration

	OfflineTTSCommand    string
	OfflineTTSFormat     string
	OfflineTTSSampleRate int
}

const defaultPersona = "You are a friendly, concise voice assistant. " +
	"Answer in two or three short spoken sentences and keep a warm, natural tone."

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:          envOrDefault("APP_BIND_ADDR", ":8000"),
		MetricsNamespace:  envOrDefault("APP_METRICS_NAMESPACE", "voicechat"),
		AllowedOrigins:    splitList(envOrDefault("APP_ALLOW_ORIGINS", "*")),
		MaxUploadBytes:    25 << 20,
		SessionStore:      strings.ToLower(envOrDefault("SESSION_STORE", "auto")),
		SessionDataDir:    envOrDefault("SESSION_DATA_DIR", "data/sessions"),
		SQLitePath:        envOrDefault("SQLITE_PATH", "data/sessions.db"),
		DatabaseURL:       stringsTrimSpace("DATABASE_URL"),
		RedisURL:          stringsTrimSpace("REDIS_URL"),
		STTProvider:       strings.ToLower(envOrDefault("STT_PROVIDER", "assemblyai")),
		AssemblyAIAPIKey:  stringsTrimSpace("ASSEMBLYAI_API_KEY"),
		AssemblyAIBaseURL: envOrDefault("ASSEMBLYAI_BASE_URL", "https://api.assemblyai.com"),
		GoogleCredentials: stringsTrimSpace("GOOGLE_APPLICATION_CREDENTIALS"),
		STTLanguage:       envOrDefault("STT_LANGUAGE", "en"),
		LLMProvider:       strings.ToLower(envOrDefault("LLM_PROVIDER", "gemini")),
		GeminiAPIKey:      stringsTrimSpace("GEMINI_API_KEY"),
		GeminiModel:       envOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		LLMHTTPURL:        stringsTrimSpace("LLM_HTTP_URL"),
		SystemPersona:     envOrDefault("SYSTEM_PERSONA", defaultPersona),
		MurfAPIKey:        stringsTrimSpace("MURF_API_KEY"),
		MurfAPIURL:        envOrDefault("MURF_API_URL", "https://api.murf.ai/v1/speech/generate"),
		DefaultVoiceID:    envOrDefault("DEFAULT_VOICE_ID", "en-US-natalie"),
		// espeak-ng writes a WAV stream to stdout and reads text from stdin.
		OfflineTTSCommand:    envOrDefault("OFFLINE_TTS_COMMAND", "espeak-ng --stdout"),
		OfflineTTSFormat:     strings.ToLower(envOrDefault("OFFLINE_TTS_FORMAT", "wav")),
		OfflineTTSSampleRate: 22050,
		ShutdownTimeout:      15 * time.Second,
		STTTimeout:           60 * time.Second,
		LLMTimeout:           30 * time.Second,
		TTSTimeout:           30 * time.Second,
	}

	// Placeholder keys copied from .env templates count as missing.
	for _, key := range []*string{&cfg.AssemblyAIAPIKey, &cfg.GeminiAPIKey, &cfg.MurfAPIKey} {
		if *key == "your_api_key_here" {
			*key = ""
		}
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.STTTimeout, err = durationFromEnv("STT_TIMEOUT", cfg.STTTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMTimeout, err = durationFromEnv("LLM_TIMEOUT", cfg.LLMTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.TTSTimeout, err = durationFromEnv("TTS_TIMEOUT", cfg.TTSTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.OfflineTTSSampleRate, err = intFromEnv("OFFLINE_TTS_SAMPLE_RATE", cfg.OfflineTTSSampleRate)
	if err != nil {
		return Config{}, err
	}
	maxUpload, err := intFromEnv("APP_MAX_UPLOAD_BYTES", int(cfg.MaxUploadBytes))
	if err != nil {
		return Config{}, err
	}
	cfg.MaxUploadBytes = int64(maxUpload)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c Config) Validate() error {
	switch c.SessionStore {
	case "auto", "file", "sqlite", "postgres", "redis":
	default:
		return fmt.Errorf("SESSION_STORE must be one of auto|file|sqlite|postgres|redis, got %q", c.SessionStore)
	}
	switch c.STTProvider {
	case "assemblyai", "google", "mock":
	default:
		return fmt.Errorf("STT_PROVIDER must be one of assemblyai|google|mock, got %q", c.STTProvider)
	}
	switch c.LLMProvider {
	case "gemini", "http", "mock":
	default:
		return fmt.Errorf("LLM_PROVIDER must be one of gemini|http|mock, got %q", c.LLMProvider)
	}
	switch c.OfflineTTSFormat {
	case "wav", "pcm16":
	default:
		return fmt.Errorf("OFFLINE_TTS_FORMAT must be wav or pcm16, got %q", c.OfflineTTSFormat)
	}
	if c.SessionStore == "postgres" && c.DatabaseURL == "" {
		return fmt.Errorf("SESSION_STORE=postgres requires DATABASE_URL")
	}
	if c.SessionStore == "redis" && c.RedisURL == "" {
		return fmt.Errorf("SESSION_STORE=redis requires REDIS_URL")
	}
	if c.STTTimeout <= 0 || c.LLMTimeout <= 0 || c.TTSTimeout <= 0 {
		return fmt.Errorf("provider timeouts must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("APP_MAX_UPLOAD_BYTES must be positive")
	}
	if c.OfflineTTSSampleRate <= 0 {
		return fmt.Errorf("OFFLINE_TTS_SAMPLE_RATE must be positive")
	}
	return nil
}

// STTConfigured reports whether the selected transcription provider has a credential.
func (c Config) STTConfigured() bool {
	switch c.STTProvider {
	case "assemblyai":
		return c.AssemblyAIAPIKey != ""
	case "google":
		return c.GoogleCredentials != ""
	case "mock":
		return true
	}
	return false
}

// LLMConfigured reports whether the selected text-generation provider has a credential.
func (c Config) LLMConfigured() bool {
	switch c.LLMProvider {
	case "gemini":
		return c.GeminiAPIKey != ""
	case "http":
		return c.LLMHTTPURL != ""
	case "mock":
		return true
	}
	return false
}

// TTSConfigured reports whether the primary voice provider has a credential.
func (c Config) TTSConfigured() bool {
	return c.MurfAPIKey != ""
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

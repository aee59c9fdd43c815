package stt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	aai "github.com/AssemblyAI/assemblyai-go-sdk"

	"github.com/antoniostano/voicechat/internal/reliability"
)

// AssemblyAIProvider uploads the file and waits for the transcript through
// the AssemblyAI SDK.
type AssemblyAIProvider struct {
	apiKey   string
	language string
	client   *aai.Client
}

func NewAssemblyAIProvider(apiKey, baseURL, language string) *AssemblyAIProvider {
	apiKey = strings.TrimSpace(apiKey)
	if language == "" {
		language = "en"
	}
	opts := []aai.ClientOption{aai.WithAPIKey(apiKey)}
	if u := strings.TrimRight(strings.TrimSpace(baseURL), "/"); u != "" {
		opts = append(opts, aai.WithBaseURL(u))
	}
	return &AssemblyAIProvider{
		apiKey:   apiKey,
		language: language,
		client:   aai.NewClientWithOptions(opts...),
	}
}

func (p *AssemblyAIProvider) Name() string     { return "assemblyai" }
func (p *AssemblyAIProvider) Configured() bool { return p.apiKey != "" }

func (p *AssemblyAIProvider) Transcribe(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", reliability.Wrap(reliability.CategoryFile, "assemblyai open upload", err)
	}
	defer f.Close()

	transcript, err := p.client.Transcripts.TranscribeFromReader(ctx, f, &aai.TranscriptOptionalParams{
		LanguageCode:  aai.TranscriptLanguageCode(p.language),
		Punctuate:     aai.Bool(true),
		FormatText:    aai.Bool(true),
		SpeakerLabels: aai.Bool(false),
	})
	if err != nil {
		return "", classifyAssemblyAI(err)
	}
	if transcript.Status == aai.TranscriptStatusError {
		return "", fmt.Errorf("%w: %s", ErrTranscriptionFailed, aai.ToString(transcript.Error))
	}
	return aai.ToString(transcript.Text), nil
}

// classifyAssemblyAI tags rejected credentials as config errors. Everything
// else is left to the adapter's classification.
func classifyAssemblyAI(err error) error {
	status := 0
	var apiErr aai.APIError
	var apiErrPtr *aai.APIError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.Status
	case errors.As(err, &apiErrPtr):
		status = apiErrPtr.Status
	default:
		return fmt.Errorf("assemblyai transcribe: %w", err)
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return reliability.Wrap(reliability.CategoryConfig, "assemblyai", err)
	}
	return fmt.Errorf("assemblyai http status %d: %w", status, err)
}

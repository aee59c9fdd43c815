package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-1.5-flash"

// GeminiProvider calls the Gemini API through the genai SDK.
type GeminiProvider struct {
	apiKey string
	model  string

	mu     sync.Mutex
	client *genai.Client
}

func NewGeminiProvider(apiKey, model string) *GeminiProvider {
	model = strings.TrimSpace(model)
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiProvider{apiKey: strings.TrimSpace(apiKey), model: model}
}

func (p *GeminiProvider) Name() string     { return "gemini" }
func (p *GeminiProvider) Configured() bool { return p.apiKey != "" }

func (p *GeminiProvider) Generate(ctx context.Context, prompt string) (Reply, error) {
	client, err := p.genaiClient(ctx)
	if err != nil {
		return Reply{}, err
	}

	resp, err := client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0.8),
		TopP:            genai.Ptr[float32](0.9),
		MaxOutputTokens: 256,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("gemini generate: %w", err)
	}
	if isBlocked(resp) {
		return Reply{Blocked: true}, nil
	}
	return Reply{Text: resp.Text()}, nil
}

func (p *GeminiProvider) genaiClient(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	cfg := &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	p.client = client
	return client, nil
}

// isBlocked reports a content-policy refusal: a prompt block reason, or a
// first candidate stopped for safety without any text.
func isBlocked(resp *genai.GenerateContentResponse) bool {
	if resp == nil {
		return false
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" && fb.BlockReason != genai.BlockedReasonUnspecified {
		return true
	}
	if len(resp.Candidates) == 0 {
		return false
	}
	switch resp.Candidates[0].FinishReason {
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist, genai.FinishReasonSPII:
		return strings.TrimSpace(resp.Text()) == ""
	}
	return false
}

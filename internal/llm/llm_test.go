package llm

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"google.golang.org/genai"

	"github.com/antoniostano/voicechat/internal/memory"
	"github.com/antoniostano/voicechat/internal/reliability"
)

func TestGenerateUnconfigured(t *testing.T) {
	mock := &MockProvider{Unset: true}
	a := NewAdapter(mock, time.Second, nil)
	_, err := a.Generate(context.Background(), "hi", "s1")
	if got := reliability.CategoryOf(err, ""); got != reliability.CategoryConfig {
		t.Fatalf("category = %q, want config_error", got)
	}
	if mock.LastPrompt() != "" {
		t.Fatalf("provider should not be called without credentials")
	}
}

func TestGenerateBlockedIsSuccess(t *testing.T) {
	a := NewAdapter(&MockProvider{Blocked: true}, time.Second, nil)
	got, err := a.Generate(context.Background(), "something rude", "s1")
	if err != nil {
		t.Fatalf("blocked content should not error, got %v", err)
	}
	if got != BlockedReply {
		t.Fatalf("Generate() = %q, want apology", got)
	}
}

func TestGenerateFailureCategories(t *testing.T) {
	cases := []struct {
		name string
		mock *MockProvider
		want reliability.Category
	}{
		{"empty", &MockProvider{Text: "   "}, reliability.CategoryLLM},
		{"network", &MockProvider{Err: &net.OpError{Op: "dial", Err: syscall.ECONNRESET}}, reliability.CategoryNetwork},
		{"timeout", &MockProvider{Err: context.DeadlineExceeded}, reliability.CategoryLLM},
		{"quota", &MockProvider{Err: errors.New("429 resource exhausted")}, reliability.CategoryLLM},
	}
	for _, tc := range cases {
		a := NewAdapter(tc.mock, time.Second, nil)
		_, err := a.Generate(context.Background(), "hi", "s1")
		if got := reliability.CategoryOf(err, ""); got != tc.want {
			t.Fatalf("%s: category = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestBuildPromptSkipsErrorTurnsAndAddsSummary(t *testing.T) {
	history := []memory.Message{
		{Role: memory.RoleUser, Content: "what's the weather"},
		{Role: memory.RoleAssistant, Content: "fallback text", ErrorType: "llm_error"},
		{Role: memory.RoleSystem, Content: "internal note"},
		{Role: memory.RoleAssistant, Content: "sunny and warm"},
	}
	got := BuildPrompt("You are helpful.", "User asked: earlier", history, "and tomorrow?")

	for _, want := range []string{
		"You are helpful.",
		"=== CONVERSATION SUMMARY ===\nUser asked: earlier",
		"User: what's the weather",
		"Assistant: sunny and warm",
		"\nUser: and tomorrow?",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("prompt missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "fallback text") || strings.Contains(got, "internal note") {
		t.Fatalf("prompt includes excluded messages:\n%s", got)
	}
	if !strings.HasSuffix(got, "\nAssistant:") {
		t.Fatalf("prompt should end with assistant cue:\n%s", got)
	}
}

func TestBuildPromptLimitsHistoryWindow(t *testing.T) {
	var history []memory.Message
	for i := 0; i < 12; i++ {
		history = append(history, memory.Message{Role: memory.RoleUser, Content: "turn-" + string(rune('a'+i))})
	}
	got := BuildPrompt("p", "", history, "now")
	if strings.Contains(got, "turn-d") || !strings.Contains(got, "turn-e") {
		t.Fatalf("expected only the last %d messages:\n%s", HistoryWindow, got)
	}
	if strings.Contains(got, "CONVERSATION SUMMARY") {
		t.Fatalf("empty summary should be omitted")
	}
}

func TestIsBlocked(t *testing.T) {
	textCandidate := func(reason genai.FinishReason, text string) *genai.Candidate {
		return &genai.Candidate{
			FinishReason: reason,
			Content:      &genai.Content{Role: "model", Parts: []*genai.Part{{Text: text}}},
		}
	}
	cases := []struct {
		name string
		resp *genai.GenerateContentResponse
		want bool
	}{
		{"nil", nil, false},
		{"prompt blocked", &genai.GenerateContentResponse{PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety}}, true},
		{"safety stop without text", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{textCandidate(genai.FinishReasonSafety, "")}}, true},
		{"normal stop", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{textCandidate(genai.FinishReasonStop, "hello")}}, false},
	}
	for _, tc := range cases {
		if got := isBlocked(tc.resp); got != tc.want {
			t.Fatalf("%s: isBlocked() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestMockProviderConcurrentUse(t *testing.T) {
	mock := &MockProvider{Text: "ok"}
	a := NewAdapter(mock, time.Second, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := a.Generate(context.Background(), "hi", "s1"); err != nil {
				t.Errorf("Generate() error = %v", err)
			}
			mock.SetErr(nil)
		}()
	}
	wg.Wait()
	if mock.LastPrompt() != "hi" {
		t.Fatalf("LastPrompt() = %q, want hi", mock.LastPrompt())
	}
}

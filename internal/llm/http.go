package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPProvider posts the prompt to a generic text-generation endpoint. JSON,
// plain-text, SSE and NDJSON responses are accepted.
type HTTPProvider struct {
	url    string
	client *http.Client
}

func NewHTTPProvider(url string) *HTTPProvider {
	return &HTTPProvider{
		url:    strings.TrimSpace(url),
		client: &http.Client{},
	}
}

func (p *HTTPProvider) Name() string     { return "http" }
func (p *HTTPProvider) Configured() bool { return p.url != "" }

func (p *HTTPProvider) Generate(ctx context.Context, prompt string) (Reply, error) {
	payload, err := json.Marshal(map[string]string{"prompt": prompt})
	if err != nil {
		return Reply{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return Reply{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := p.client.Do(httpReq)
	if err != nil {
		return Reply{}, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return Reply{}, fmt.Errorf("llm http status %d: %s", res.StatusCode, string(body))
	}

	ct := strings.ToLower(res.Header.Get("Content-Type"))
	if strings.Contains(ct, "text/event-stream") || strings.Contains(ct, "application/x-ndjson") {
		return consumeStreaming(res.Body)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return Reply{}, fmt.Errorf("read response: %w", err)
	}

	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return Reply{Text: strings.TrimSpace(string(body))}, nil
	}
	if blocked, _ := obj["blocked"].(bool); blocked {
		return Reply{Blocked: true}, nil
	}
	return Reply{Text: extractText(obj)}, nil
}

func consumeStreaming(body io.Reader) (Reply, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var out strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "data:") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
		if line == "[DONE]" {
			break
		}

		delta := line
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err == nil {
			if blocked, _ := obj["blocked"].(bool); blocked {
				return Reply{Blocked: true}, nil
			}
			delta = extractText(obj)
		}
		out.WriteString(delta)
	}
	if err := scanner.Err(); err != nil {
		return Reply{}, fmt.Errorf("stream read: %w", err)
	}
	return Reply{Text: out.String()}, nil
}

func extractText(obj map[string]any) string {
	for _, k := range []string{"text", "delta", "output", "response", "message"} {
		if v, ok := obj[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

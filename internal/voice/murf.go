package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/antoniostano/voicechat/internal/reliability"
)

const defaultMurfURL = "https://api.murf.ai/v1/speech/generate"

// requestStrategy is one header/payload convention for the Murf generate call.
type requestStrategy struct {
	name  string
	build func(text, voiceID, apiKey string) (http.Header, map[string]any)
}

// murfStrategies are tried in order: both auth header styles crossed with
// both voice field spellings the API has accepted over time.
var murfStrategies = []requestStrategy{
	{name: "bearer+voiceId", build: murfRequest(bearerHeaders, "voiceId")},
	{name: "bearer+voice", build: murfRequest(bearerHeaders, "voice")},
	{name: "api-key+voiceId", build: murfRequest(apiKeyHeaders, "voiceId")},
	{name: "api-key+voice", build: murfRequest(apiKeyHeaders, "voice")},
}

func bearerHeaders(apiKey string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+apiKey)
	h.Set("Content-Type", "application/json")
	return h
}

func apiKeyHeaders(apiKey string) http.Header {
	h := http.Header{}
	h.Set("api-key", apiKey)
	h.Set("Content-Type", "application/json")
	return h
}

func murfRequest(headers func(string) http.Header, voiceField string) func(text, voiceID, apiKey string) (http.Header, map[string]any) {
	return func(text, voiceID, apiKey string) (http.Header, map[string]any) {
		return headers(apiKey), map[string]any{
			"text":           text,
			voiceField:       voiceID,
			"format":         "mp3",
			"speed":          1.0,
			"pitch":          1.0,
			"volume":         1.0,
			"pauseAfter":     0,
			"encodeAsBase64": false,
		}
	}
}

// MurfClient calls the Murf speech generation endpoint.
type MurfClient struct {
	apiKey    string
	url       string
	timeout   time.Duration
	retryBase time.Duration
	retryCap  time.Duration
	client    *http.Client
	logger    *slog.Logger
}

// murfStatusError is a non-200 answer from the generate endpoint.
type murfStatusError struct {
	code    int
	snippet string
}

func (e *murfStatusError) Error() string {
	return fmt.Sprintf("murf http status %d: %s", e.code, e.snippet)
}

func NewMurfClient(apiKey, url string, timeout time.Duration, logger *slog.Logger) *MurfClient {
	url = strings.TrimSpace(url)
	if url == "" {
		url = defaultMurfURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MurfClient{
		apiKey:    strings.TrimSpace(apiKey),
		url:       url,
		timeout:   timeout,
		retryBase: 200 * time.Millisecond,
		retryCap:  time.Second,
		client:    &http.Client{},
		logger:    logger,
	}
}

// SetRetryBackoff changes the pause taken before the next strategy after a
// rate limit or server error.
func (c *MurfClient) SetRetryBackoff(base, max time.Duration) {
	c.retryBase = base
	c.retryCap = max
}

func (c *MurfClient) Configured() bool { return c != nil && c.apiKey != "" }

// Generate walks the request strategies until one returns 200 with an audio
// reference. The result is a URL or an mp3 data URI.
func (c *MurfClient) Generate(ctx context.Context, text, voiceID, sessionID string) (string, error) {
	var errs []error
	for i, s := range murfStrategies {
		if i > 0 && retryable(errs[len(errs)-1]) {
			if err := sleepCtx(ctx, reliability.ExponentialBackoff(i-1, c.retryBase, c.retryCap)); err != nil {
				errs = append(errs, err)
				break
			}
		}
		headers, payload := s.build(text, voiceID, c.apiKey)
		audioRef, err := c.attempt(ctx, headers, payload)
		if err == nil {
			c.logger.Info("murf tts success", "session_id", sessionID, "strategy", s.name)
			return audioRef, nil
		}
		c.logger.Warn("murf tts attempt failed", "session_id", sessionID, "strategy", s.name, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		if ctx.Err() != nil {
			break
		}
	}
	return "", reliability.Wrap(reliability.CategoryTTS, "murf generate", errors.Join(errs...))
}

func (c *MurfClient) attempt(ctx context.Context, headers http.Header, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header = headers

	res, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 1<<10))
		return "", &murfStatusError{code: res.StatusCode, snippet: strings.TrimSpace(string(snippet))}
	}

	var obj map[string]any
	if err := json.NewDecoder(res.Body).Decode(&obj); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if ref := firstString(obj, "audioFile", "url", "audioUrl"); ref != "" {
		return ref, nil
	}
	if data := firstString(obj, "audioData", "audioBase64"); data != "" {
		return "data:audio/mp3;base64," + data, nil
	}
	return "", errors.New("response carries no audio reference")
}

// retryable reports a rate limit or server error, which earns a pause
// before the next strategy.
func retryable(err error) bool {
	var statusErr *murfStatusError
	return errors.As(err, &statusErr) && reliability.IsRetryableHTTPStatus(statusErr.code)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

package reliability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
	"testing"
	"time"
)

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tc := range cases {
		got := IsRetryableHTTPStatus(tc.code)
		if got != tc.want {
			t.Fatalf("IsRetryableHTTPStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestExponentialBackoffCap(t *testing.T) {
	base := 100 * time.Millisecond
	capDur := 700 * time.Millisecond
	if got := ExponentialBackoff(0, base, capDur); got != base {
		t.Fatalf("attempt 0 = %v, want %v", got, base)
	}
	if got := ExponentialBackoff(2, base, capDur); got != 400*time.Millisecond {
		t.Fatalf("attempt 2 = %v, want %v", got, 400*time.Millisecond)
	}
	if got := ExponentialBackoff(10, base, capDur); got != capDur {
		t.Fatalf("attempt 10 = %v, want %v", got, capDur)
	}
}

func TestClassify(t *testing.T) {
	refused := &url.Error{Op: "Post", URL: "http://x", Err: &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}}
	timeout := &url.Error{Op: "Post", URL: "http://x", Err: context.DeadlineExceeded}

	cases := []struct {
		name string
		err  error
		want Category
	}{
		{"connection refused", refused, CategoryNetwork},
		{"dns", &net.DNSError{Err: "no such host", Name: "api.example"}, CategoryNetwork},
		{"deadline", fmt.Errorf("wrapped: %w", context.DeadlineExceeded), CategoryLLM},
		{"transport timeout", timeout, CategoryLLM},
		{"plain", errors.New("boom"), CategoryLLM},
		{"tagged", Wrap(CategoryConfig, "llm", nil), CategoryConfig},
	}
	for _, tc := range cases {
		if got := Classify(tc.err, CategoryLLM); got != tc.want {
			t.Fatalf("%s: Classify() = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestParseCategoryAndFallbackText(t *testing.T) {
	for _, c := range Categories {
		got, ok := ParseCategory(string(c))
		if !ok || got != c {
			t.Fatalf("ParseCategory(%q) = %q, %v", c, got, ok)
		}
		if FallbackText(c) == "" {
			t.Fatalf("FallbackText(%q) is empty", c)
		}
	}
	if got, ok := ParseCategory("LLM_ERROR"); !ok || got != CategoryLLM {
		t.Fatalf("ParseCategory(LLM_ERROR) = %q, %v", got, ok)
	}
	if _, ok := ParseCategory("disk_error"); ok {
		t.Fatalf("ParseCategory(disk_error) should fail")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("upstream 502")
	err := fmt.Errorf("tts: %w", Wrap(CategoryTTS, "murf", cause))
	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is should reach the cause")
	}
	if got := CategoryOf(err, CategoryNetwork); got != CategoryTTS {
		t.Fatalf("CategoryOf() = %q, want %q", got, CategoryTTS)
	}
	if got := CategoryOf(cause, CategoryNetwork); got != CategoryNetwork {
		t.Fatalf("CategoryOf(untagged) = %q, want fallback", got)
	}
}

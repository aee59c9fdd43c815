package reliability

import (
	"context"
	"errors"
	"net"
	"net/url"
	"syscall"
	"time"
)

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsTimeout reports deadline expiry, either from the context or from the transport.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsNetworkError reports connectivity failures: DNS, refused or reset connections,
// and transport errors. Timeouts are excluded; a stage that times out fails with
// its own category.
func IsNetworkError(err error) bool {
	if err == nil || IsTimeout(err) {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// Classify maps a provider error onto a category: network failures become
// CategoryNetwork, already-tagged errors keep their tag, the rest take stage.
func Classify(err error, stage Category) Category {
	var e *Error
	if errors.As(err, &e) && e.Category != "" {
		return e.Category
	}
	if IsNetworkError(err) {
		return CategoryNetwork
	}
	return stage
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}

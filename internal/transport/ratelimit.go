package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// DefaultLimiterKey is the bucket shared by every FMP call.
const DefaultLimiterKey = "fmp_api"

// Waiter blocks until a token is available.
type Waiter interface {
	Wait(ctx context.Context, key string, cost int64, poll time.Duration) error
}

// RateLimitingTransport takes a token before every request, including those
// the inner cache will answer without touching the network.
type RateLimitingTransport struct {
	next    http.RoundTripper
	limiter Waiter
	key     string
	poll    time.Duration
}

// NewRateLimitingTransport wraps next with a limiter gate on key.
func NewRateLimitingTransport(next http.RoundTripper, limiter Waiter, key string, poll time.Duration) *RateLimitingTransport {
	if key == "" {
		key = DefaultLimiterKey
	}
	return &RateLimitingTransport{next: next, limiter: limiter, key: key, poll: poll}
}

// RoundTrip implements http.RoundTripper.
func (t *RateLimitingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context(), t.key, 1, t.poll); err != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, fmt.Errorf("rate limiter %s: %w", t.key, err)
	}
	return t.next.RoundTrip(req)
}

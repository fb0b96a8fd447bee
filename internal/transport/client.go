package transport

import (
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"finsight/internal/observability"
)

// ClientOptions configures NewClient.
type ClientOptions struct {
	Base         http.RoundTripper
	LimiterKey   string
	PollInterval time.Duration
	CachePrefix  string
	CacheTTL     time.Duration
	Timeout      time.Duration
	Metrics      *observability.Metrics
}

// NewClient composes limiter -> cache -> base transport into an http.Client.
// Every request pays a token; only cache misses reach the network.
func NewClient(limiter Waiter, store redis.Cmdable, opts ClientOptions) *http.Client {
	base := opts.Base
	if base == nil {
		base = http.DefaultTransport
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	cached := NewCachingTransport(base, store, ttl, opts.CachePrefix, opts.Metrics)
	limited := NewRateLimitingTransport(cached, limiter, opts.LimiterKey, opts.PollInterval)

	return &http.Client{Transport: limited, Timeout: opts.Timeout}
}

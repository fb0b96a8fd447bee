// Package transport provides the http.RoundTripper layers that sit between
// provider adapters and the network: a shared response cache and a token
// bucket gate.
package transport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"finsight/internal/logger"
	"finsight/internal/observability"
)

// DefaultCachePrefix namespaces cached provider responses.
const DefaultCachePrefix = "fmp_cache"

// CachingTransport serves repeated GET requests from Redis. Only 2xx bodies
// are stored, each with a fixed TTL. Other methods pass straight through.
type CachingTransport struct {
	next    http.RoundTripper
	store   redis.Cmdable
	ttl     time.Duration
	prefix  string
	metrics *observability.Metrics
	log     *zap.SugaredLogger
}

// NewCachingTransport wraps next with a response cache stored in store.
func NewCachingTransport(next http.RoundTripper, store redis.Cmdable, ttl time.Duration, prefix string, metrics *observability.Metrics) *CachingTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	if prefix == "" {
		prefix = DefaultCachePrefix
	}
	return &CachingTransport{
		next:    next,
		store:   store,
		ttl:     ttl,
		prefix:  prefix,
		metrics: metrics,
		log:     logger.Named("transport.cache"),
	}
}

// CacheKey returns the key a request is cached under: method plus the full
// URL including its query string. The query may hold credentials, so the key
// is never logged.
func CacheKey(prefix string, req *http.Request) string {
	return prefix + ":" + req.Method + ":" + req.URL.String()
}

// RoundTrip implements http.RoundTripper.
func (t *CachingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return t.next.RoundTrip(req)
	}

	ctx := req.Context()
	key := CacheKey(t.prefix, req)

	body, err := t.store.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		t.metrics.CacheLookup("hit")
		return cachedResponse(req, body), nil
	case errors.Is(err, redis.Nil):
		t.metrics.CacheLookup("miss")
	default:
		t.metrics.CacheLookup("error")
		t.log.Warnw("cache read failed", "path", req.URL.Path, "error", err)
	}

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, nil
	}

	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(data))

	if err := t.store.Set(ctx, key, data, t.ttl).Err(); err != nil {
		t.log.Warnw("cache write failed", "path", req.URL.Path, "error", err)
	}
	return resp, nil
}

func cachedResponse(req *http.Request, body []byte) *http.Response {
	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	header.Set("Content-Length", strconv.Itoa(len(body)))
	header.Set("X-Cache", "HIT")

	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

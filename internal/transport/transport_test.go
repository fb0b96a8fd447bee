package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"finsight/internal/ratelimit"
	"finsight/internal/testutil"
)

// countingServer answers every request with body and status, counting hits.
func countingServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func get(t *testing.T, client *http.Client, url string) (int, string) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, http.NoBody)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestCachingTransport_ServesRepeatGetFromCache(t *testing.T) {
	srv, hits := countingServer(t, http.StatusOK, `[{"symbol":"AAPL"}]`)
	mr, store := testutil.SetupTestRedis(t)
	client := &http.Client{Transport: NewCachingTransport(srv.Client().Transport, store, time.Hour, "", nil)}

	status, body := get(t, client, srv.URL+"/income-statement?symbol=AAPL")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, `[{"symbol":"AAPL"}]`, body)

	status, body = get(t, client, srv.URL+"/income-statement?symbol=AAPL")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, `[{"symbol":"AAPL"}]`, body)
	assert.Equal(t, int64(1), hits.Load())

	mr.FastForward(time.Hour + time.Second)

	get(t, client, srv.URL+"/income-statement?symbol=AAPL")
	assert.Equal(t, int64(2), hits.Load())
}

func TestCachingTransport_KeyIncludesQuery(t *testing.T) {
	srv, hits := countingServer(t, http.StatusOK, `[]`)
	_, store := testutil.SetupTestRedis(t)
	client := &http.Client{Transport: NewCachingTransport(srv.Client().Transport, store, time.Hour, "", nil)}

	get(t, client, srv.URL+"/profile?symbol=AAPL")
	get(t, client, srv.URL+"/profile?symbol=MSFT")
	assert.Equal(t, int64(2), hits.Load())

	keys := store.Keys(context.Background(), "fmp_cache:*").Val()
	assert.Contains(t, keys, "fmp_cache:GET:"+srv.URL+"/profile?symbol=AAPL")
}

func TestCachingTransport_DoesNotCacheErrors(t *testing.T) {
	srv, hits := countingServer(t, http.StatusInternalServerError, `{"error":"boom"}`)
	_, store := testutil.SetupTestRedis(t)
	client := &http.Client{Transport: NewCachingTransport(srv.Client().Transport, store, time.Hour, "", nil)}

	status, _ := get(t, client, srv.URL+"/x")
	assert.Equal(t, http.StatusInternalServerError, status)
	get(t, client, srv.URL+"/x")

	assert.Equal(t, int64(2), hits.Load())
	assert.Empty(t, store.Keys(context.Background(), "*").Val())
}

func TestCachingTransport_BypassesNonGet(t *testing.T) {
	srv, hits := countingServer(t, http.StatusOK, `{}`)
	_, store := testutil.SetupTestRedis(t)
	client := &http.Client{Transport: NewCachingTransport(srv.Client().Transport, store, time.Hour, "", nil)}

	for i := 0; i < 2; i++ {
		resp, err := client.Post(srv.URL+"/x", "application/json", strings.NewReader(`{}`))
		require.NoError(t, err)
		resp.Body.Close()
	}

	assert.Equal(t, int64(2), hits.Load())
	assert.Empty(t, store.Keys(context.Background(), "*").Val())
}

func TestCachingTransport_CacheHitMarksResponse(t *testing.T) {
	srv, _ := countingServer(t, http.StatusOK, `[1]`)
	_, store := testutil.SetupTestRedis(t)
	client := &http.Client{Transport: NewCachingTransport(srv.Client().Transport, store, time.Hour, "", nil)}

	get(t, client, srv.URL+"/x")
	resp, err := client.Get(srv.URL + "/x")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "HIT", resp.Header.Get("X-Cache"))
	assert.Equal(t, int64(3), resp.ContentLength)
}

func TestCachingTransport_StoreFailureFallsThrough(t *testing.T) {
	srv, hits := countingServer(t, http.StatusOK, `[]`)
	mr, store := testutil.SetupTestRedis(t)
	client := &http.Client{Transport: NewCachingTransport(srv.Client().Transport, store, time.Hour, "", nil)}

	mr.Close()

	status, body := get(t, client, srv.URL+"/x")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, `[]`, body)
	assert.Equal(t, int64(1), hits.Load())
}

func TestCachingTransport_StoreFailureLogsPathOnly(t *testing.T) {
	srv, _ := countingServer(t, http.StatusOK, `[]`)
	mr, store := testutil.SetupTestRedis(t)
	ct := NewCachingTransport(srv.Client().Transport, store, time.Hour, "", nil)
	core, logs := observer.New(zap.WarnLevel)
	ct.log = zap.New(core).Sugar()
	client := &http.Client{Transport: ct}

	mr.Close()

	status, _ := get(t, client, srv.URL+"/profile?symbol=AAPL&apikey=secret")
	assert.Equal(t, http.StatusOK, status)

	entries := logs.All()
	require.Len(t, entries, 2)
	for _, e := range entries {
		fields := e.ContextMap()
		assert.Equal(t, "/profile", fields["path"], e.Message)
		assert.NotContains(t, fields, "key")
		for _, v := range fields {
			assert.NotContains(t, fmt.Sprint(v), "secret", e.Message)
		}
	}
}

func TestNewClient_CacheHitsStillCostTokens(t *testing.T) {
	srv, hits := countingServer(t, http.StatusOK, `[]`)
	_, store := testutil.SetupTestRedis(t)
	limiter := ratelimit.New(store, ratelimit.Settings{MaxTokens: 2, RefillAmount: 2, RefillInterval: time.Hour})

	client := NewClient(limiter, store, ClientOptions{
		Base:         srv.Client().Transport,
		PollInterval: 5 * time.Millisecond,
		CacheTTL:     time.Hour,
	})

	get(t, client, srv.URL+"/x")
	get(t, client, srv.URL+"/x")
	assert.Equal(t, int64(1), hits.Load())

	tokens, err := limiter.Tokens(context.Background(), DefaultLimiterKey)
	require.NoError(t, err)
	assert.Equal(t, int64(0), tokens)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/x", http.NoBody)
	require.NoError(t, err)
	_, err = client.Do(req)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(1), hits.Load())
}

type stubWaiter struct {
	calls atomic.Int64
	err   error
}

func (s *stubWaiter) Wait(_ context.Context, _ string, _ int64, _ time.Duration) error {
	s.calls.Add(1)
	return s.err
}

func TestRateLimitingTransport_GatesEveryRequest(t *testing.T) {
	srv, hits := countingServer(t, http.StatusOK, `[]`)
	waiter := &stubWaiter{}
	client := &http.Client{Transport: NewRateLimitingTransport(srv.Client().Transport, waiter, "", time.Millisecond)}

	get(t, client, srv.URL+"/a")
	get(t, client, srv.URL+"/b")

	assert.Equal(t, int64(2), waiter.calls.Load())
	assert.Equal(t, int64(2), hits.Load())
}

func TestRateLimitingTransport_LimiterErrorStopsRequest(t *testing.T) {
	srv, hits := countingServer(t, http.StatusOK, `[]`)
	waiter := &stubWaiter{err: ratelimit.ErrCostExceedsCapacity}
	client := &http.Client{Transport: NewRateLimitingTransport(srv.Client().Transport, waiter, "", time.Millisecond)}

	_, err := client.Get(srv.URL + "/a")
	require.Error(t, err)
	assert.ErrorIs(t, err, ratelimit.ErrCostExceedsCapacity)
	assert.Equal(t, int64(0), hits.Load())
}

package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finsight/internal/config"
	apperrors "finsight/internal/errors"
	"finsight/internal/normalize"
	"finsight/internal/ratelimit"
	"finsight/internal/testutil"
	"finsight/internal/transport"
)

const profileBody = `[{"symbol":"AAPL","companyName":"Apple Inc.","sector":"Technology","industry":"Consumer Electronics","price":"189.5"}]`

func newTestAdapter(t *testing.T, server *httptest.Server) Adapter {
	t.Helper()
	a, err := DefaultRegistry().New(config.DefaultProvider, Deps{
		Settings: config.ProviderSettings{APIKey: "secret", BaseURL: server.URL},
		Client:   server.Client(),
	})
	require.NoError(t, err)
	return a
}

func TestRegistry_UnknownProvider(t *testing.T) {
	_, err := DefaultRegistry().New("bloomberg", Deps{})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestRegistry_Names(t *testing.T) {
	r := DefaultRegistry()
	r.Register("stub", func(Deps) (Adapter, error) { return nil, nil })
	assert.Equal(t, []string{"fmp", "stub"}, r.Names())
}

func TestFMPAdapter_MissingKey(t *testing.T) {
	_, err := DefaultRegistry().New(config.DefaultProvider, Deps{})
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestFMPAdapter_Fetch_Success(t *testing.T) {
	var gotPath string
	var gotQuery url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(profileBody))
	}))
	defer server.Close()

	a := newTestAdapter(t, server)
	res, err := a.Fetch(context.Background(), EndpointProfile, url.Values{"symbol": {"AAPL"}})
	require.NoError(t, err)

	assert.Equal(t, "/profile", gotPath)
	assert.Equal(t, "AAPL", gotQuery.Get("symbol"))
	assert.Equal(t, "secret", gotQuery.Get("apikey"))

	require.Len(t, res.Records, 1)
	assert.Equal(t, normalize.Stats{Processed: 1, Successful: 1}, res.Stats)
	p := res.Records[0].(*normalize.CompanyProfile)
	assert.Equal(t, "Apple Inc.", p.CompanyName)
	assert.InDelta(t, 189.5, *p.Price, 1e-9)
}

func TestFMPAdapter_Fetch_SingleObject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"symbol":"MSFT","companyName":"Microsoft"}`))
	}))
	defer server.Close()

	res, err := newTestAdapter(t, server).Fetch(context.Background(), EndpointProfile, nil)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
}

func TestFMPAdapter_Fetch_EmptyArray(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	res, err := newTestAdapter(t, server).Fetch(context.Background(), EndpointIncomeStatement, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Records)
}

func TestFMPAdapter_Fetch_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestAdapter(t, server).Fetch(context.Background(), EndpointIncomeStatement, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrProviderCall)
	assert.Contains(t, err.Error(), "API request failed with status 429")
}

func TestFMPAdapter_Fetch_InBandError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"Error Message":"Invalid API KEY."}`))
	}))
	defer server.Close()

	_, err := newTestAdapter(t, server).Fetch(context.Background(), EndpointBalanceSheet, nil)
	assert.ErrorIs(t, err, apperrors.ErrProviderCall)
}

func TestFMPAdapter_Fetch_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	a := newTestAdapter(t, server)
	server.Close()

	_, err := a.Fetch(context.Background(), EndpointCashFlow, url.Values{"symbol": {"AAPL"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrProviderCall)
	assert.Contains(t, err.Error(), "/cash-flow-statement")
	assert.NotContains(t, err.Error(), "apikey")
	assert.NotContains(t, err.Error(), "secret")
}

func TestRedactQuery(t *testing.T) {
	err := redactQuery(&url.Error{Op: "Get", URL: "https://fmp.test/profile?apikey=secret&symbol=AAPL", Err: context.DeadlineExceeded})
	assert.Equal(t, `Get "https://fmp.test/profile": context deadline exceeded`, err.Error())
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	plain := assert.AnError
	assert.Same(t, plain, redactQuery(plain))
}

func TestFMPAdapter_Fetch_UnknownEndpoint(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	_, err := newTestAdapter(t, server).Fetch(context.Background(), "stock-news", nil)
	assert.ErrorIs(t, err, apperrors.ErrNormalization)
	assert.Zero(t, calls.Load())
}

func TestFMPAdapter_Fetch_ThroughSharedTransport(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(profileBody))
	}))
	defer server.Close()

	_, rdb := testutil.SetupTestRedis(t)
	limiter := ratelimit.New(rdb, ratelimit.Settings{MaxTokens: 10, RefillAmount: 10, RefillInterval: time.Minute})
	client := transport.NewClient(limiter, rdb, transport.ClientOptions{
		Base:       server.Client().Transport,
		LimiterKey: "fmp_api",
	})

	a, err := DefaultRegistry().New(config.DefaultProvider, Deps{
		Settings: config.ProviderSettings{APIKey: "secret", BaseURL: server.URL},
		Client:   client,
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		res, err := a.Fetch(context.Background(), EndpointProfile, url.Values{"symbol": {"AAPL"}})
		require.NoError(t, err)
		require.Len(t, res.Records, 1)
	}

	assert.Equal(t, int32(1), calls.Load())
	tokens, err := limiter.Tokens(context.Background(), "fmp_api")
	require.NoError(t, err)
	assert.Equal(t, int64(7), tokens)
}

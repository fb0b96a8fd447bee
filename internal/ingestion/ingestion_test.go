package ingestion

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"finsight/internal/config"
	"finsight/internal/ratelimit"
	"finsight/internal/testutil"
	"finsight/internal/transport"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

type fmpRequest struct {
	path  string
	query url.Values
}

// fakeFMP serves canned statements, filings and profiles keyed by symbol.
type fakeFMP struct {
	server *httptest.Server
	delay  time.Duration

	calls       atomic.Int32
	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	mu          sync.Mutex
	requests    []fmpRequest
	failSymbols map[string]bool
	failPaths   map[string]bool
	statements  map[string][]map[string]any
}

func newFakeFMP(t *testing.T) *fakeFMP {
	t.Helper()
	f := &fakeFMP{failSymbols: map[string]bool{}, failPaths: map[string]bool{}}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeFMP) handle(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	q := r.URL.Query()
	symbol := q.Get("symbol")
	path := strings.TrimPrefix(r.URL.Path, "/")
	f.mu.Lock()
	f.requests = append(f.requests, fmpRequest{path: path, query: q})
	fail := f.failSymbols[symbol] || f.failPaths[path]
	override, overridden := f.statements[q.Get("period")]
	f.mu.Unlock()

	if fail {
		http.Error(w, "upstream exploded", http.StatusInternalServerError)
		return
	}

	var body any
	switch path {
	case "income-statement", "balance-sheet-statement", "cash-flow-statement":
		body = statementItems(symbol, q.Get("period"))
		if overridden {
			body = override
		}
	case "sec-filings-search/symbol":
		body = filingItems(symbol)
	case "profile":
		body = []map[string]any{{
			"symbol":      symbol,
			"companyName": symbol + " Corp",
			"sector":      "Technology",
			"industry":    "Software",
		}}
	default:
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func (f *fakeFMP) failSymbol(symbol string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSymbols[symbol] = true
}

func (f *fakeFMP) failPath(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failPaths[path] = true
}

// serveStatements replaces the statement items returned for period.
func (f *fakeFMP) serveStatements(period string, items ...map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statements == nil {
		f.statements = map[string][]map[string]any{}
	}
	f.statements[period] = items
}

// count returns how many requests hit path, optionally for one symbol.
func (f *fakeFMP) count(path, symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.path == path && (symbol == "" || r.query.Get("symbol") == symbol) {
			n++
		}
	}
	return n
}

func (f *fakeFMP) periodsRequested() map[string]bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]bool{}
	for _, r := range f.requests {
		if p := r.query.Get("period"); p != "" {
			out[p] = true
		}
	}
	return out
}

func statementItem(symbol string, year int, period string) map[string]any {
	return map[string]any{
		"date":             fmt.Sprintf("%d-09-30", year),
		"symbol":           symbol,
		"reportedCurrency": "USD",
		"cik":              "0000320193",
		"filingDate":       fmt.Sprintf("%d-11-01", year),
		"acceptedDate":     fmt.Sprintf("%d-11-01 18:01:14", year),
		"fiscalYear":       strconv.Itoa(year),
		"period":           period,
		"revenue":          1000.0,
		"netIncome":        250.0,
	}
}

func statementItems(symbol, period string) []map[string]any {
	if period == "quarter" {
		return []map[string]any{
			statementItem(symbol, 2024, "Q4"),
			statementItem(symbol, 2024, "Q3"),
		}
	}
	return []map[string]any{
		statementItem(symbol, 2024, "FY"),
		statementItem(symbol, 2023, "FY"),
		statementItem(symbol, 2022, "FY"),
	}
}

func filingItem(symbol, form, date string) map[string]any {
	return map[string]any{
		"symbol":       symbol,
		"cik":          "0000320193",
		"filingDate":   date,
		"acceptedDate": date + " 16:30:00",
		"formType":     form,
		"link":         "https://www.sec.gov/Archives/" + symbol + "/" + date,
		"finalLink":    "https://www.sec.gov/Archives/" + symbol + "/" + date + ".htm",
	}
}

func filingItems(symbol string) []map[string]any {
	return []map[string]any{
		filingItem(symbol, "10-Q", "2024-08-01"),
		filingItem(symbol, "8-K", "2024-09-01"),
		filingItem(symbol, "10-Q", "2024-05-01"),
		filingItem(symbol, "10-K", "2016-10-30"),
	}
}

func newTestFactory(t *testing.T, fmp *fakeFMP, opts ...func(*FactoryOptions)) (*Factory, *gorm.DB) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.TeardownTestDB(t, db) })
	_, rdb := testutil.SetupTestRedis(t)

	limiter := ratelimit.New(rdb, ratelimit.Settings{MaxTokens: 1000, RefillAmount: 1000, RefillInterval: time.Minute})
	fo := FactoryOptions{
		DB:       db,
		Settings: config.ProviderSettings{APIKey: "secret", BaseURL: fmp.server.URL},
		Limiter:  limiter,
		Store:    rdb,
		Client:   transport.ClientOptions{Base: fmp.server.Client().Transport, PollInterval: 10 * time.Millisecond},
		Now:      fixedClock,
	}
	for _, o := range opts {
		o(&fo)
	}

	f, err := NewFactory(fo)
	require.NoError(t, err)
	return f, db
}

func newTestTask(t *testing.T, f *Factory) *Task {
	t.Helper()
	task, err := f.NewTask()
	require.NoError(t, err)
	return task
}


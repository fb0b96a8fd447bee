// Package provider defines the interface for fetching normalized records from
// upstream financial data sources and the registry that selects them by name.
package provider

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"sync"

	"finsight/internal/config"
	apperrors "finsight/internal/errors"
	"finsight/internal/normalize"
	"finsight/internal/observability"
)

// Endpoints understood by every adapter.
const (
	EndpointIncomeStatement = "income-statement"
	EndpointBalanceSheet    = "balance-sheet-statement"
	EndpointCashFlow        = "cash-flow-statement"
	EndpointSECFilings      = "sec-filings-search/symbol"
	EndpointProfile         = "profile"
)

// StatementEndpoints lists the statement endpoints in fetch order.
var StatementEndpoints = []string{EndpointIncomeStatement, EndpointBalanceSheet, EndpointCashFlow}

// Result is the normalized outcome of one Fetch.
type Result struct {
	Records []normalize.Record
	Stats   normalize.Stats
}

// Adapter fetches raw items from an upstream endpoint and normalizes them.
type Adapter interface {
	// Name returns the provider's registry name (e.g., "fmp").
	Name() string

	// Fetch calls endpoint with params. It fails with ErrProviderCall when
	// the upstream call fails and ErrNormalization when the endpoint has no
	// registered record shape.
	Fetch(ctx context.Context, endpoint string, params url.Values) (*Result, error)
}

// Deps are the collaborators handed to a Factory. Client is expected to carry
// the shared rate-limiting and caching transports.
type Deps struct {
	Settings   config.ProviderSettings
	Client     *http.Client
	Normalizer *normalize.Normalizer
	Metrics    *observability.Metrics
}

// Factory builds a fresh adapter.
type Factory func(Deps) (Adapter, error)

// Registry maps provider names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// New builds the adapter registered under name.
func (r *Registry) New(name string, deps Deps) (Adapter, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, apperrors.WithMessagef(apperrors.ErrConfiguration, "unknown data provider %q", name)
	}
	if deps.Normalizer == nil {
		deps.Normalizer = normalize.New(normalize.WithMetrics(deps.Metrics))
	}
	if deps.Client == nil {
		deps.Client = http.DefaultClient
	}
	return f(deps)
}

// Names lists registered providers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry returns a registry with the built-in providers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(config.DefaultProvider, NewFMPAdapter)
	return r
}

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "finsight/internal/errors"
	"finsight/internal/logger"
	"finsight/internal/normalize"
	"finsight/internal/observability"
)

const fmpBaseURL = "https://financialmodelingprep.com/stable"

// FMPAdapter fetches statements, filings and profiles from Financial Modeling Prep.
type FMPAdapter struct {
	httpClient *http.Client
	baseURL    string // overridable for tests
	apiKey     string
	normalizer *normalize.Normalizer
	metrics    *observability.Metrics
	log        *zap.SugaredLogger
}

// NewFMPAdapter is the Factory for the "fmp" provider.
func NewFMPAdapter(deps Deps) (Adapter, error) {
	if strings.TrimSpace(deps.Settings.APIKey) == "" {
		return nil, apperrors.WithMessage(apperrors.ErrConfiguration, "FMP API key is not configured")
	}
	base := deps.Settings.BaseURL
	if base == "" {
		base = fmpBaseURL
	}
	return &FMPAdapter{
		httpClient: deps.Client,
		baseURL:    strings.TrimRight(base, "/"),
		apiKey:     deps.Settings.APIKey,
		normalizer: deps.Normalizer,
		metrics:    deps.Metrics,
		log:        logger.Named("fmp"),
	}, nil
}

// Name returns the provider's registry name.
func (a *FMPAdapter) Name() string { return "fmp" }

// Fetch calls {base}/{endpoint} and normalizes the response items.
func (a *FMPAdapter) Fetch(ctx context.Context, endpoint string, params url.Values) (*Result, error) {
	if !normalize.Supports(endpoint) {
		return nil, apperrors.WithMessagef(apperrors.ErrNormalization,
			"no record shape registered for endpoint %q", endpoint)
	}

	items, err := a.get(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}

	records, stats, err := a.normalizer.Normalize(endpoint, items)
	if err != nil {
		return nil, err
	}
	return &Result{Records: records, Stats: stats}, nil
}

func (a *FMPAdapter) get(ctx context.Context, endpoint string, params url.Values) ([]map[string]any, error) {
	query := url.Values{}
	for k, v := range params {
		query[k] = append([]string(nil), v...)
	}
	query.Set("apikey", a.apiKey)
	reqURL := fmt.Sprintf("%s/%s?%s", a.baseURL, endpoint, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrProviderCall, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := a.httpClient.Do(req)
	if err != nil {
		a.metrics.ProviderRequest(a.Name(), endpoint, 0, time.Since(start).Seconds())
		return nil, apperrors.Wrap(apperrors.ErrProviderCall, fmt.Errorf("GET %s: %w", endpoint, redactQuery(err)))
	}
	defer resp.Body.Close()
	a.metrics.ProviderRequest(a.Name(), endpoint, resp.StatusCode, time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, apperrors.WithMessagef(apperrors.ErrProviderCall, "API request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrProviderCall, fmt.Errorf("reading response: %w", err))
	}

	items, err := decodeItems(body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrProviderCall, err)
	}
	a.log.Debugw("fetched", "endpoint", endpoint, "items", len(items), "cache", resp.Header.Get("X-Cache"))
	return items, nil
}

// redactQuery strips the query string, which carries the API key, from the
// URL that net/http puts in transport errors.
func redactQuery(err error) error {
	var uerr *url.Error
	if !errors.As(err, &uerr) {
		return err
	}
	clean := *uerr
	if i := strings.IndexByte(clean.URL, '?'); i >= 0 {
		clean.URL = clean.URL[:i]
	}
	return &clean
}

// decodeItems accepts a JSON array of objects or a single object. An object
// carrying only an "Error Message" is the provider's in-band error.
func decodeItems(body []byte) ([]map[string]any, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '{' {
		var item map[string]any
		if err := json.Unmarshal(trimmed, &item); err != nil {
			return nil, fmt.Errorf("decoding response object: %w", err)
		}
		if msg, ok := item["Error Message"].(string); ok && len(item) == 1 {
			return nil, fmt.Errorf("provider error: %s", msg)
		}
		return []map[string]any{item}, nil
	}

	var items []map[string]any
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("decoding response array: %w", err)
	}
	return items, nil
}

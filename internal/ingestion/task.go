package ingestion

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "finsight/internal/errors"
	"finsight/internal/models"
	"finsight/internal/normalize"
	"finsight/internal/planner"
	"finsight/internal/provider"
	"finsight/internal/services"
)

// Unlimited disables filing prioritization.
const Unlimited = -1

// DefaultPeriods are fetched when a request names none.
var DefaultPeriods = []string{planner.PeriodAnnual, planner.PeriodQuarter}

// DefaultYears returns the two most recent completed years, newest first.
func DefaultYears(now time.Time) []int {
	return []int{now.Year() - 1, now.Year() - 2}
}

type statementTarget struct {
	recordType string
	payloadKey string
}

var statementTargets = map[string]statementTarget{
	provider.EndpointIncomeStatement: {recordType: models.TypeIncomeStatement, payloadKey: "income_statements"},
	provider.EndpointBalanceSheet:    {recordType: models.TypeBalanceSheet, payloadKey: "balance_sheets"},
	provider.EndpointCashFlow:        {recordType: models.TypeCashFlow, payloadKey: "cash_flows"},
}

const unknownSymbol = "UNKNOWN"

// Task ingests data for one ticker at a time. Tasks are not shared between
// goroutines; the orchestrator builds one per ticker.
type Task struct {
	adapter       provider.Adapter
	records       services.FinancialDataServicer
	companies     services.CompanyServicer
	completeness  services.CompletenessServicer
	fetchProfiles bool
	now           func() time.Time
	log           *zap.SugaredLogger
}

// Provider returns the name of the adapter the task fetches from.
func (t *Task) Provider() string { return t.adapter.Name() }

// FetchAndStoreData fetches a single statement or filings endpoint and stores
// the result. It returns the IDs of records written.
func (t *Task) FetchAndStoreData(ctx context.Context, endpoint string, params url.Values) ([]string, error) {
	if endpoint == provider.EndpointSECFilings {
		return t.fetchAndStoreFilings(ctx, normalizeTicker(params.Get("symbol")), params, Unlimited)
	}
	if _, ok := statementTargets[endpoint]; ok {
		return t.fetchAndStoreStatements(ctx, endpoint, params, nil)
	}
	return nil, apperrors.WithMessagef(apperrors.ErrInvalidInput, "Endpoint %q cannot be stored", endpoint)
}

// FetchAndStoreCompanyFinancials fetches every statement endpoint for each
// period and keeps only the requested fiscal years. The result maps endpoint
// to the IDs stored from it.
func (t *Task) FetchAndStoreCompanyFinancials(ctx context.Context, ticker string, years []int, periods []string) (map[string][]string, error) {
	ticker = normalizeTicker(ticker)
	if ticker == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Ticker is required")
	}
	if len(years) == 0 {
		years = DefaultYears(t.now())
	}
	if len(periods) == 0 {
		periods = DefaultPeriods
	}
	keep := make(map[int]bool, len(years))
	for _, y := range years {
		keep[y] = true
	}

	results := make(map[string][]string, len(provider.StatementEndpoints))
	for _, endpoint := range provider.StatementEndpoints {
		results[endpoint] = []string{}
		for _, period := range periods {
			params := url.Values{"symbol": {ticker}, "period": {period}}
			ids, err := t.fetchAndStoreStatements(ctx, endpoint, params, keep)
			if err != nil {
				return nil, err
			}
			results[endpoint] = append(results[endpoint], ids...)
		}
	}
	return results, nil
}

// FetchAndStoreSECFilings fetches filings between from and to (YYYY-MM-DD,
// either may be empty). With maxFilings >= 0 only the prioritized subset is
// stored; pass Unlimited to store everything.
func (t *Task) FetchAndStoreSECFilings(ctx context.Context, ticker, from, to string, maxFilings int) ([]string, error) {
	ticker = normalizeTicker(ticker)
	if ticker == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Ticker is required")
	}
	if maxFilings == 0 {
		return []string{}, nil
	}

	params := url.Values{"symbol": {ticker}}
	if from != "" {
		params.Set("from", from)
	}
	if to != "" {
		params.Set("to", to)
	}
	return t.fetchAndStoreFilings(ctx, ticker, params, maxFilings)
}

// GetStoredCompanyData returns the company and all its records, or nil when
// the ticker has never been ingested.
func (t *Task) GetStoredCompanyData(ctx context.Context, ticker string) (*services.StoredCompanyData, error) {
	data, err := t.companies.GetStoredCompanyData(ctx, ticker, services.RecordFilter{})
	if errors.Is(err, apperrors.ErrCompanyNotFound) {
		return nil, nil
	}
	return data, err
}

// Completeness checks stored coverage for ticker. It returns
// ErrCompanyNotFound when nothing was ever stored for it.
func (t *Task) Completeness(ctx context.Context, ticker string, years []int) (*services.CompletenessReport, error) {
	company, err := t.companies.GetCompanyByTicker(ctx, ticker)
	if err != nil {
		return nil, err
	}
	return t.completeness.Check(ctx, company.ID, years)
}

type groupKey struct {
	ticker string
	year   int
	period string
}

func (t *Task) fetchAndStoreStatements(ctx context.Context, endpoint string, params url.Values, keep map[int]bool) ([]string, error) {
	target := statementTargets[endpoint]
	res, err := t.adapter.Fetch(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}

	fallback := normalizeTicker(params.Get("symbol"))
	groups := make(map[groupKey][]any)
	var order []groupKey
	for _, rec := range res.Records {
		st, ok := rec.(normalize.Statement)
		if !ok {
			continue
		}
		h := st.Header()
		year, ok := fiscalYear(h)
		if !ok {
			t.log.Warnw("skipping statement without a fiscal year", "endpoint", endpoint, "symbol", h.Symbol, "date", h.Date)
			continue
		}
		if keep != nil && !keep[year] {
			continue
		}
		period := normalizePeriod(h.Period)
		if period == models.PeriodFY && params.Get("period") == "quarter" {
			t.log.Warnw("skipping annual-labelled item from a quarterly fetch", "endpoint", endpoint, "symbol", h.Symbol, "date", h.Date)
			continue
		}
		ticker := normalizeTicker(h.Symbol)
		if ticker == "" || ticker == unknownSymbol {
			ticker = fallback
		}
		if ticker == "" {
			continue
		}

		k := groupKey{ticker: ticker, year: year, period: period}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], rec.Values())
	}

	ids := make([]string, 0, len(order))
	companies := make(map[string]*models.Company)
	for _, k := range order {
		company, ok := companies[k.ticker]
		if !ok {
			company, err = t.ensureCompany(ctx, k.ticker)
			if err != nil {
				return nil, err
			}
			companies[k.ticker] = company
		}

		payload := t.statementPayload(target.payloadKey, groups[k])
		id, err := t.records.StoreFinancialData(ctx, company.ID, k.year, k.period, target.recordType, payload, true)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	t.log.Infow("stored statements",
		"endpoint", endpoint,
		"symbol", fallback,
		"period", params.Get("period"),
		"fetched", len(res.Records),
		"stored", len(ids),
		"warnings", res.Stats.Warnings,
		"failed", res.Stats.Failed,
	)
	return ids, nil
}

func (t *Task) statementPayload(key string, items []any) map[string]any {
	payload := map[string]any{
		"income_statements": []any{},
		"balance_sheets":    []any{},
		"cash_flows":        []any{},
		"metadata": map[string]any{
			"stored_at": t.now().UTC().Format(time.RFC3339),
			"source":    t.adapter.Name(),
		},
	}
	payload[key] = items
	return payload
}

func (t *Task) fetchAndStoreFilings(ctx context.Context, ticker string, params url.Values, maxFilings int) ([]string, error) {
	if ticker == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Ticker is required")
	}
	res, err := t.adapter.Fetch(ctx, provider.EndpointSECFilings, params)
	if err != nil {
		return nil, err
	}

	filings := make([]normalize.FilingRecord, 0, len(res.Records))
	for _, rec := range res.Records {
		if f, ok := rec.(normalize.FilingRecord); ok {
			filings = append(filings, f)
		}
	}
	if maxFilings >= 0 {
		filings = planner.PrioritizeFilings(filings, maxFilings)
	}

	ids := []string{}
	if len(filings) == 0 {
		return ids, nil
	}

	company, err := t.ensureCompany(ctx, ticker)
	if err != nil {
		return nil, err
	}
	for _, f := range filings {
		if id, ok := t.records.StoreSECFiling(ctx, company.ID, f); ok {
			ids = append(ids, id)
		}
	}

	t.log.Infow("stored SEC filings",
		"symbol", ticker,
		"fetched", len(res.Records),
		"selected", len(filings),
		"stored", len(ids),
	)
	return ids, nil
}

// ensureCompany creates the company on first sight and, when enabled, fills
// its profile from the provider. Enrichment failures are logged only.
func (t *Task) ensureCompany(ctx context.Context, ticker string) (*models.Company, error) {
	company, created, err := t.companies.EnsureCompany(ctx, services.CompanyInput{Ticker: ticker})
	if err != nil {
		return nil, err
	}
	if !created || !t.fetchProfiles {
		return company, nil
	}

	res, err := t.adapter.Fetch(ctx, provider.EndpointProfile, url.Values{"symbol": {company.Ticker}})
	if err != nil {
		t.log.Warnw("profile enrichment failed", "symbol", company.Ticker, "error", err)
		return company, nil
	}
	for _, rec := range res.Records {
		p, ok := rec.(*normalize.CompanyProfile)
		if !ok {
			continue
		}
		updated, err := t.companies.UpdateProfile(ctx, company.ID, services.CompanyInput{
			Name:     p.CompanyName,
			Sector:   p.Sector,
			Industry: p.Industry,
		})
		if err != nil {
			t.log.Warnw("profile update failed", "symbol", company.Ticker, "error", err)
			return company, nil
		}
		return updated, nil
	}
	return company, nil
}

func fiscalYear(h normalize.StatementHeader) (int, bool) {
	for _, v := range []string{h.FiscalYear, h.CalendarYear} {
		if y, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && y > 0 {
			return y, true
		}
	}
	if len(h.Date) >= 4 {
		if y, err := strconv.Atoi(h.Date[:4]); err == nil {
			return y, true
		}
	}
	return 0, false
}

var ordinalQuarters = map[string]string{
	"FIRST":  "Q1",
	"SECOND": "Q2",
	"THIRD":  "Q3",
	"FOURTH": "Q4",
}

// normalizePeriod maps provider period labels onto FY and Q1..Q4.
func normalizePeriod(p string) string {
	p = strings.ToUpper(strings.TrimSpace(p))
	switch {
	case p == "FY" || p == "ANNUAL":
		return models.PeriodFY
	case strings.HasPrefix(p, "Q"):
		return p
	}
	if q, ok := ordinalQuarters[p]; ok {
		return q
	}
	return p
}

func normalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

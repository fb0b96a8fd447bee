// Package normalize turns loosely typed provider items into typed records.
// Each endpoint maps to a shape; items are cleaned, decoded, validated and,
// when required fields are missing, given one recovery attempt with
// placeholder defaults. Items that still fail are dropped and counted.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	apperrors "finsight/internal/errors"
	"finsight/internal/logger"
	"finsight/internal/observability"
)

// Stats counts the outcome of one Normalize call. Successful items validated
// on the first pass, Warnings were recovered, Failed were dropped.
type Stats struct {
	Processed  int `json:"processed"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Warnings   int `json:"warnings"`
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Processed += o.Processed
	s.Successful += o.Successful
	s.Failed += o.Failed
	s.Warnings += o.Warnings
}

type shape struct {
	kind     Kind
	numeric  map[string]bool
	text     map[string]bool
	aliases  map[string]string
	defaults []string
	build    func(n *Normalizer, values map[string]any) (Record, error)
}

func newShape(kind Kind, proto any, aliases map[string]string, defaults []string, build func(*Normalizer, map[string]any) (Record, error)) *shape {
	numeric, text := fieldSets(reflect.TypeOf(proto))
	return &shape{kind: kind, numeric: numeric, text: text, aliases: aliases, defaults: defaults, build: build}
}

var (
	incomeShape = newShape(KindIncomeStatement, IncomeStatement{}, nil,
		[]string{"revenue", "netIncome", "eps", "grossProfit"},
		func(n *Normalizer, v map[string]any) (Record, error) { return decode[IncomeStatement](n, v) })

	balanceShape = newShape(KindBalanceSheet, BalanceSheet{}, nil,
		[]string{"totalAssets", "totalLiabilities", "totalEquity"},
		func(n *Normalizer, v map[string]any) (Record, error) { return decode[BalanceSheet](n, v) })

	cashFlowShape = newShape(KindCashFlow, CashFlowStatement{}, nil,
		[]string{"netIncome", "operatingCashFlow", "freeCashFlow"},
		func(n *Normalizer, v map[string]any) (Record, error) { return decode[CashFlowStatement](n, v) })

	filingShape = newShape(KindFiling, Filing{}, map[string]string{
		"formType":   "form",
		"form_type":  "form",
		"link":       "filingUrl",
		"filing_url": "filingUrl",
		"finalLink":  "reportUrl",
		"final_link": "reportUrl",
		"report_url": "reportUrl",
	}, nil, buildFiling)

	profileShape = newShape(KindProfile, CompanyProfile{}, nil, nil,
		func(n *Normalizer, v map[string]any) (Record, error) { return decode[CompanyProfile](n, v) })
)

// shapes maps endpoint names to shapes. Lookups also try a fuzzy key.
var shapes = map[string]*shape{
	"income-statement":          incomeShape,
	"balance-sheet-statement":   balanceShape,
	"cash-flow-statement":       cashFlowShape,
	"sec_filings":               filingShape,
	"sec-filings":               filingShape,
	"sec-filings-search/symbol": filingShape,
	"profile":                   profileShape,
	"company-profile":           profileShape,
}

func fuzzyKey(endpoint string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(endpoint)), "_", "-")
}

func lookup(endpoint string) (*shape, bool) {
	if s, ok := shapes[endpoint]; ok {
		return s, true
	}
	key := fuzzyKey(endpoint)
	for name, s := range shapes {
		if fuzzyKey(name) == key {
			return s, true
		}
	}
	return nil, false
}

// Supports reports whether endpoint has a registered shape.
func Supports(endpoint string) bool {
	_, ok := lookup(endpoint)
	return ok
}

// Normalizer cleans and validates provider items. It keeps no state between
// calls.
type Normalizer struct {
	validate *validator.Validate
	now      func() time.Time
	metrics  *observability.Metrics
	log      *zap.SugaredLogger
}

// Option customizes a Normalizer.
type Option func(*Normalizer)

// WithClock sets the clock used for date placeholders.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// WithMetrics records item outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(n *Normalizer) { n.metrics = m }
}

// New creates a Normalizer.
func New(opts ...Option) *Normalizer {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonName)

	n := &Normalizer{
		validate: v,
		now:      time.Now,
		log:      logger.Named("normalize"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize converts raw items fetched from endpoint into typed records. It
// fails only when no shape is registered for endpoint.
func (n *Normalizer) Normalize(endpoint string, items []map[string]any) ([]Record, Stats, error) {
	var stats Stats

	s, ok := lookup(endpoint)
	if !ok {
		return nil, stats, apperrors.WithMessagef(apperrors.ErrNormalization,
			"no record shape registered for endpoint %q", endpoint)
	}

	now := n.now()
	records := make([]Record, 0, len(items))
	for i, item := range items {
		stats.Processed++
		if rec := n.normalizeItem(s, i, item, now, &stats); rec != nil {
			records = append(records, rec)
		}
	}

	n.metrics.Normalized(string(s.kind), stats.Successful, stats.Warnings, stats.Failed)
	if stats.Failed > 0 || stats.Warnings > 0 {
		n.log.Infow("normalized with issues",
			"endpoint", endpoint,
			"processed", stats.Processed,
			"successful", stats.Successful,
			"warnings", stats.Warnings,
			"failed", stats.Failed,
		)
	}
	return records, stats, nil
}

func (n *Normalizer) normalizeItem(s *shape, index int, item map[string]any, now time.Time, stats *Stats) Record {
	values := s.clean(item)

	rec, err := s.build(n, values)
	if err == nil {
		stats.Successful++
		return rec
	}

	missing := missingFields(err)
	for _, field := range missing {
		values[field] = s.placeholder(field, values, now)
	}

	rec, retryErr := s.build(n, values)
	if retryErr != nil {
		stats.Failed++
		n.log.Warnw("dropping item after failed recovery",
			"shape", s.kind, "index", index, "error", retryErr)
		return nil
	}

	stats.Warnings++
	n.log.Warnw("recovered item with placeholder values",
		"shape", s.kind, "index", index, "fields", missing)
	return rec
}

// clean copies item and applies aliasing, numeric coercion, date
// normalization, shape defaults and identifier stringification.
func (s *shape) clean(item map[string]any) map[string]any {
	values := make(map[string]any, len(item))
	for k, v := range item {
		values[k] = v
	}

	applyAliases(values, commonAliases)
	applyAliases(values, s.aliases)

	for field := range s.numeric {
		if v, ok := values[field]; ok {
			values[field] = coerceNumber(v)
		}
	}
	for _, field := range dateFields {
		if v, ok := values[field]; ok {
			values[field] = normalizeDate(v)
		}
	}
	for _, field := range s.defaults {
		if _, ok := values[field]; !ok {
			values[field] = 0.0
		}
	}
	for field := range s.text {
		if v, ok := values[field]; ok {
			values[field] = stringify(v)
		}
	}
	return values
}

func applyAliases(values map[string]any, aliases map[string]string) {
	for from, to := range aliases {
		v, ok := values[from]
		if !ok {
			continue
		}
		delete(values, from)
		if _, exists := values[to]; !exists {
			values[to] = v
		}
	}
}

// placeholder returns the recovery value for a missing field. The fiscal year
// comes from the item itself when it carries one.
func (s *shape) placeholder(field string, values map[string]any, now time.Time) any {
	lower := strings.ToLower(field)
	switch {
	case lower == "symbol":
		return "UNKNOWN"
	case lower == "cik":
		return "0000000000"
	case lower == "fiscalyear":
		return strconv.Itoa(itemYear(values, now))
	case lower == "period":
		// Quarterly fetches drop FY items, so this never stands in for a quarter.
		return "FY"
	case lower == "form":
		return "UNKNOWN"
	case lower == "type":
		return "filing"
	case lower == "reportedcurrency":
		return "USD"
	case strings.Contains(lower, "date"):
		return fmt.Sprintf("%d-01-01", now.Year())
	case strings.Contains(lower, "url") || strings.Contains(lower, "link"):
		return "https://example.com"
	case s.numeric[field]:
		return 0.0
	default:
		return "UNKNOWN"
	}
}

// itemYear returns the calendar year of the item, falling back to the year of
// its period end date and finally to the clock.
func itemYear(values map[string]any, now time.Time) int {
	if v, ok := values["calendarYear"]; ok {
		if y, err := strconv.Atoi(strings.TrimSpace(fmt.Sprint(v))); err == nil && y > 0 {
			return y
		}
	}
	if d, ok := values["date"].(string); ok && len(d) >= 4 {
		if y, err := strconv.Atoi(d[:4]); err == nil && y > 0 {
			return y
		}
	}
	return now.Year()
}

// invalidFieldError wraps decode failures that recovery cannot repair.
type invalidFieldError struct{ err error }

func (e *invalidFieldError) Error() string { return "invalid field: " + e.err.Error() }
func (e *invalidFieldError) Unwrap() error { return e.err }

func decode[T any, PT interface {
	*T
	Record
}](n *Normalizer, values map[string]any) (PT, error) {
	raw, err := json.Marshal(values)
	if err != nil {
		return nil, &invalidFieldError{err: err}
	}
	out := PT(new(T))
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, &invalidFieldError{err: err}
	}
	if err := n.validate.Struct(out); err != nil {
		return nil, err
	}
	setValues(out, values)
	return out, nil
}

// setValues stores the cleaned map on any record embedding payload.
func setValues(rec any, values map[string]any) {
	if p, ok := rec.(interface{ setPayload(map[string]any) }); ok {
		p.setPayload(values)
	}
}

func (p *payload) setPayload(values map[string]any) { p.values = values }

// missingFields lists the fields the validator reported as required but absent.
func missingFields(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	var fields []string
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			fields = append(fields, fe.Field())
		}
	}
	return fields
}

// buildFiling decodes the common filing fields and dispatches on form.
func buildFiling(n *Normalizer, values map[string]any) (Record, error) {
	base, err := decode[Filing](n, values)
	if err != nil {
		return nil, err
	}

	switch strings.ToUpper(strings.TrimSpace(base.Form)) {
	case "10-K":
		return &AnnualFiling{Filing: *base}, nil
	case "10-Q":
		q := &QuarterlyFiling{Filing: *base, Quarter: inferQuarter(values)}
		if err := n.validate.Struct(q); err != nil {
			return nil, err
		}
		values["quarter"] = q.Quarter
		return q, nil
	default:
		return base, nil
	}
}

// inferQuarter uses an explicit quarter when present, then Q1..Q4 in the
// period, then defaults to 1.
func inferQuarter(values map[string]any) int {
	switch q := values["quarter"].(type) {
	case float64:
		if q >= 1 && q <= 4 {
			return int(q)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(q)); err == nil && n >= 1 && n <= 4 {
			return n
		}
	}
	if period, ok := values["period"].(string); ok {
		upper := strings.ToUpper(period)
		for q := 1; q <= 4; q++ {
			if strings.Contains(upper, "Q"+strconv.Itoa(q)) {
				return q
			}
		}
	}
	return 1
}

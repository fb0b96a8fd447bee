package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apperrors "finsight/internal/errors"
	"finsight/internal/logger"
	"finsight/internal/observability"
	"finsight/internal/planner"
	"finsight/internal/provider"
	"finsight/internal/services"
)

// Orchestrator runs per-ticker tasks with bounded concurrency. A failing
// ticker cancels the rest of its batch and no partial results are returned.
type Orchestrator struct {
	factory     *Factory
	concurrency int
	metrics     *observability.Metrics
	log         *zap.SugaredLogger
}

// NewOrchestrator creates an orchestrator that runs at most concurrency tasks
// at a time.
func NewOrchestrator(factory *Factory, concurrency int, metrics *observability.Metrics) *Orchestrator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Orchestrator{
		factory:     factory,
		concurrency: concurrency,
		metrics:     metrics,
		log:         logger.Named("orchestrator"),
	}
}

// FetchAndStoreForTickers fetches statements for every ticker.
func (o *Orchestrator) FetchAndStoreForTickers(ctx context.Context, tickers []string, years []int, periods []string) (map[string]map[string][]string, error) {
	return runBatch(ctx, o, "financials", tickers, func(ctx context.Context, t *Task, ticker string) (map[string][]string, error) {
		return t.FetchAndStoreCompanyFinancials(ctx, ticker, years, periods)
	})
}

// FetchAndStoreSECFilingsForTickers stores every filing between from and to.
func (o *Orchestrator) FetchAndStoreSECFilingsForTickers(ctx context.Context, tickers []string, from, to string) (map[string][]string, error) {
	return runBatch(ctx, o, "filings", tickers, func(ctx context.Context, t *Task, ticker string) ([]string, error) {
		return t.FetchAndStoreSECFilings(ctx, ticker, from, to, Unlimited)
	})
}

// GetStoredDataForTickers loads stored data for every ticker. Tickers that
// were never ingested map to nil.
func (o *Orchestrator) GetStoredDataForTickers(ctx context.Context, tickers []string) (map[string]*services.StoredCompanyData, error) {
	return runBatch(ctx, o, "stored", tickers, func(ctx context.Context, t *Task, ticker string) (*services.StoredCompanyData, error) {
		return t.GetStoredCompanyData(ctx, ticker)
	})
}

// FetchPlan is the per-ticker share of a data-point budget.
type FetchPlan struct {
	PerTicker int      `json:"per_ticker"`
	Years     []int    `json:"years"`
	Periods   []string `json:"periods"`
}

// PlanFetch splits budget across tickers and trims years and periods to what
// each share affords.
func PlanFetch(budget int, tickers []string, years []int, periods []string) FetchPlan {
	per := planner.SplitBudget(budget, tickers)
	affordable := planner.AffordableYears(per, years)
	return FetchPlan{
		PerTicker: per,
		Years:     affordable,
		Periods:   planner.PlanPeriods(per, periods, len(affordable)),
	}
}

// FetchWithBudget is FetchAndStoreForTickers limited by a total data-point
// budget.
func (o *Orchestrator) FetchWithBudget(ctx context.Context, tickers []string, years []int, periods []string, budget int) (map[string]map[string][]string, error) {
	tickers = uniqueTickers(tickers)
	if len(years) == 0 {
		years = DefaultYears(o.factory.Now())
	}
	if len(periods) == 0 {
		periods = DefaultPeriods
	}
	plan := PlanFetch(budget, tickers, years, periods)
	o.log.Infow("planned budgeted fetch",
		"budget", budget,
		"tickers", len(tickers),
		"per_ticker", plan.PerTicker,
		"years", plan.Years,
		"periods", plan.Periods,
	)
	return o.FetchAndStoreForTickers(ctx, tickers, plan.Years, plan.Periods)
}

// FetchSECFilingsWithBudget splits maxFilings evenly across tickers and stores
// each ticker's prioritized share.
func (o *Orchestrator) FetchSECFilingsWithBudget(ctx context.Context, tickers []string, from, to string, maxFilings int) (map[string][]string, error) {
	tickers = uniqueTickers(tickers)
	per := planner.SplitBudget(maxFilings, tickers)
	o.log.Infow("planned budgeted filings fetch", "max_filings", maxFilings, "tickers", len(tickers), "per_ticker", per)
	return runBatch(ctx, o, "filings", tickers, func(ctx context.Context, t *Task, ticker string) ([]string, error) {
		return t.FetchAndStoreSECFilings(ctx, ticker, from, to, per)
	})
}

// CoverageRequest asks for a coverage window across tickers. Budget and
// MaxFilings are totals across all tickers; zero means unbounded.
type CoverageRequest struct {
	Tickers    []string
	Years      []int
	Periods    []string
	From       string
	To         string
	Budget     int
	MaxFilings int
}

// CoverageResult reports what EnsureCoverage did for one ticker. RecordIDs
// holds the records stored, or the records already present when Skipped.
type CoverageResult struct {
	Ticker     string                       `json:"ticker"`
	Skipped    bool                         `json:"skipped"`
	Before     *services.CompletenessReport `json:"before"`
	After      *services.CompletenessReport `json:"after"`
	Financials map[string][]string          `json:"financials,omitempty"`
	Filings    []string                     `json:"filings,omitempty"`
	RecordIDs  []string                     `json:"record_ids"`
}

// EnsureCoverage checks each ticker's stored data first and fetches only the
// parts that are incomplete.
func (o *Orchestrator) EnsureCoverage(ctx context.Context, req CoverageRequest) (map[string]*CoverageResult, error) {
	tickers := uniqueTickers(req.Tickers)
	now := o.factory.Now()
	years := req.Years
	if len(years) == 0 {
		years = DefaultYears(now)
	}
	periods := req.Periods
	if len(periods) == 0 {
		periods = DefaultPeriods
	}
	from, to := req.From, req.To
	if from == "" {
		from = fmt.Sprintf("%d-01-01", now.Year()-10)
	}
	if to == "" {
		to = now.Format(time.DateOnly)
	}

	fetchYears, fetchPeriods := years, periods
	if req.Budget > 0 {
		plan := PlanFetch(req.Budget, tickers, years, periods)
		fetchYears, fetchPeriods = plan.Years, plan.Periods
	}
	maxFilings := Unlimited
	if req.MaxFilings > 0 {
		maxFilings = planner.SplitBudget(req.MaxFilings, tickers)
	}

	return runBatch(ctx, o, "coverage", tickers, func(ctx context.Context, t *Task, ticker string) (*CoverageResult, error) {
		out := &CoverageResult{Ticker: ticker, RecordIDs: []string{}}

		before, err := t.Completeness(ctx, ticker, years)
		if err != nil && !errors.Is(err, apperrors.ErrCompanyNotFound) {
			return nil, err
		}
		out.Before = before

		if before != nil && before.IsComplete {
			data, err := t.GetStoredCompanyData(ctx, ticker)
			if err != nil {
				return nil, err
			}
			if data != nil {
				for _, r := range data.Records {
					out.RecordIDs = append(out.RecordIDs, r.ID)
				}
			}
			out.Skipped = true
			out.After = before
			return out, nil
		}

		if before == nil || !before.HasCompleteFinancials {
			stored, err := t.FetchAndStoreCompanyFinancials(ctx, ticker, fetchYears, fetchPeriods)
			if err != nil {
				return nil, err
			}
			out.Financials = stored
			for _, endpoint := range provider.StatementEndpoints {
				out.RecordIDs = append(out.RecordIDs, stored[endpoint]...)
			}
		}
		if before == nil || !before.HasOld10K || !before.HasRecentFilings {
			ids, err := t.FetchAndStoreSECFilings(ctx, ticker, from, to, maxFilings)
			if err != nil {
				return nil, err
			}
			out.Filings = ids
			out.RecordIDs = append(out.RecordIDs, ids...)
		}

		after, err := t.Completeness(ctx, ticker, years)
		if err != nil && !errors.Is(err, apperrors.ErrCompanyNotFound) {
			return nil, err
		}
		out.After = after
		return out, nil
	})
}

// runBatch runs fn once per unique ticker. The first error cancels the
// context handed to the remaining tasks and is returned alone.
func runBatch[T any](ctx context.Context, o *Orchestrator, op string, tickers []string, fn func(context.Context, *Task, string) (T, error)) (map[string]T, error) {
	tickers = uniqueTickers(tickers)
	start := time.Now()
	defer func() { o.metrics.Batch(op, time.Since(start).Seconds()) }()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	var mu sync.Mutex
	results := make(map[string]T, len(tickers))
	for _, ticker := range tickers {
		ticker := ticker
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			task, err := o.factory.NewTask()
			if err != nil {
				return err
			}
			res, err := fn(gctx, task, ticker)
			o.metrics.Task(op, err)
			if err != nil {
				o.log.Errorw("ingestion task failed", "operation", op, "ticker", ticker, "error", err)
				return fmt.Errorf("%s %s: %w", op, ticker, err)
			}

			mu.Lock()
			results[ticker] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	o.log.Infow("batch complete", "operation", op, "tickers", len(tickers), "elapsed", time.Since(start))
	return results, nil
}

func uniqueTickers(tickers []string) []string {
	seen := make(map[string]bool, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		t = normalizeTicker(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

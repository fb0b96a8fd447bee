// Package planner decides what to fetch when ingestion runs under a data-point
// or filing-count budget. All functions are pure.
package planner

import (
	"sort"
	"strings"
)

const (
	// StatementTypes is the number of statement endpoints fetched per period.
	StatementTypes = 3
	// RecordsPerStatement is the estimated record count per statement and year.
	RecordsPerStatement = 5
	// CostPerYear is the heuristic data-point cost of one year of statements
	// across annual and quarterly fetches.
	CostPerYear = 30
)

const (
	PeriodAnnual  = "annual"
	PeriodQuarter = "quarter"
)

// SplitBudget divides total evenly across tickers by integer division. An
// empty ticker list yields zero.
func SplitBudget(total int, tickers []string) int {
	if len(tickers) == 0 {
		return 0
	}
	return total / len(tickers)
}

// AffordableYears returns the most recent years budget can pay for, always at
// least one when years is non-empty. The input is not modified.
func AffordableYears(budget int, years []int) []int {
	if len(years) == 0 {
		return nil
	}
	sorted := append([]int(nil), years...)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))

	n := max(1, budget/CostPerYear)
	n = min(n, len(sorted))
	return sorted[:n]
}

// PlanPeriods drops the quarterly period when both annual and quarterly are
// requested and their estimated cost exceeds budget.
func PlanPeriods(budget int, periods []string, years int) []string {
	hasAnnual, hasQuarter := false, false
	for _, p := range periods {
		switch strings.ToLower(p) {
		case PeriodAnnual:
			hasAnnual = true
		case PeriodQuarter:
			hasQuarter = true
		}
	}
	if hasAnnual && hasQuarter && StatementTypes*years*RecordsPerStatement > budget {
		return []string{PeriodAnnual}
	}
	return append([]string(nil), periods...)
}

// Filing is the minimal view of a filing the planner needs.
type Filing interface {
	FormType() string
	// SortDate is an ISO date string; later dates sort first.
	SortDate() string
}

// PrioritizeFilings selects up to maxFilings filings in three tiers: 10-K up
// to half the budget (at least one), 10-Q up to half of what remains, then
// everything else. Each tier is taken most recent first.
func PrioritizeFilings[F Filing](filings []F, maxFilings int) []F {
	if maxFilings <= 0 || len(filings) == 0 {
		return nil
	}

	var annual, quarterly, other []F
	for _, f := range filings {
		switch strings.ToUpper(strings.TrimSpace(f.FormType())) {
		case "10-K":
			annual = append(annual, f)
		case "10-Q":
			quarterly = append(quarterly, f)
		default:
			other = append(other, f)
		}
	}
	for _, tier := range [][]F{annual, quarterly, other} {
		sort.SliceStable(tier, func(i, j int) bool { return tier[i].SortDate() > tier[j].SortDate() })
	}

	selected := make([]F, 0, maxFilings)
	take := func(tier []F, limit int) {
		limit = min(limit, len(tier), maxFilings-len(selected))
		if limit > 0 {
			selected = append(selected, tier[:limit]...)
		}
	}

	take(annual, max(1, maxFilings/2))
	take(quarterly, (maxFilings-len(selected))/2)
	take(other, maxFilings-len(selected))
	return selected
}

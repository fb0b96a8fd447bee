package scoring

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Mode selects how missing metrics affect a dimension's weights.
type Mode string

const (
	// ModeRenormalize divides each present metric's weight by the summed
	// weight of the present metrics in its dimension.
	ModeRenormalize Mode = "renormalize"
	// ModeRaw applies the template weights unchanged.
	ModeRaw Mode = "raw"
)

// ParseMode accepts "", "renormalize" or "raw".
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeRenormalize:
		return ModeRenormalize, nil
	case ModeRaw:
		return ModeRaw, nil
	default:
		return "", fmt.Errorf("unknown scoring mode %q", s)
	}
}

// MetricScore is the result for one present metric.
type MetricScore struct {
	Name            string  `json:"name"`
	Score           int     `json:"score"`
	Justification   string  `json:"justification"`
	Value           float64 `json:"value"`
	Weight          float64 `json:"weight"`
	EffectiveWeight float64 `json:"effective_weight"`
}

// DimensionScore aggregates the metric scores of one dimension.
type DimensionScore struct {
	Name          string        `json:"name"`
	Score         int           `json:"score"`
	Justification string        `json:"justification"`
	Weight        float64       `json:"weight"`
	MetricScores  []MetricScore `json:"metric_scores"`
}

// FinalScore is the outcome of one Score call. It is never mutated after
// construction.
type FinalScore struct {
	OverallScore          int              `json:"overall_score"`
	DimensionScores       []DimensionScore `json:"dimension_scores"`
	InsufficientDataFlags []string         `json:"insufficient_data_flags"`
}

// Score evaluates metrics against t. Metrics absent from the map are reported
// as "{dimension}:{metric}" and never cause an error. Scores are not clamped.
func Score(metrics map[string]float64, t *Template, mode Mode) *FinalScore {
	result := &FinalScore{
		DimensionScores:       make([]DimensionScore, 0, len(t.Dimensions)),
		InsufficientDataFlags: []string{},
	}

	var weighted, totalWeight float64
	for _, dim := range t.Dimensions {
		ds, missing := scoreDimension(metrics, dim, mode)
		result.DimensionScores = append(result.DimensionScores, ds)
		result.InsufficientDataFlags = append(result.InsufficientDataFlags, missing...)

		weighted += float64(ds.Score) * ds.Weight
		totalWeight += ds.Weight
	}

	if totalWeight != 0 {
		result.OverallScore = roundHalfEven(weighted / totalWeight)
	}
	return result
}

func scoreDimension(metrics map[string]float64, dim Dimension, mode Mode) (DimensionScore, []string) {
	ds := DimensionScore{
		Name:         dim.Name,
		Weight:       dim.Weight,
		MetricScores: []MetricScore{},
	}

	var present []MetricRule
	var missing []string
	var presentWeight float64
	for _, rule := range dim.Metrics {
		if _, ok := metrics[rule.Name]; ok {
			present = append(present, rule)
			presentWeight += rule.Weight
		} else {
			missing = append(missing, metricID(dim.Name, rule.Name))
		}
	}

	if len(present) == 0 {
		ds.Justification = "No metric data available for this dimension."
		return ds, missing
	}

	var sum float64
	for _, rule := range present {
		value := metrics[rule.Name]
		score, why := scoreMetric(value, rule)

		effective := rule.Weight
		if mode != ModeRaw && presentWeight > 0 {
			effective = rule.Weight / presentWeight
		}
		sum += float64(score) * effective

		ds.MetricScores = append(ds.MetricScores, MetricScore{
			Name:            rule.Name,
			Score:           score,
			Justification:   why,
			Value:           value,
			Weight:          rule.Weight,
			EffectiveWeight: effective,
		})
	}

	ds.Score = roundHalfEven(sum)
	ds.Justification = fmt.Sprintf("Aggregated score from %d metrics.", len(present))
	return ds, missing
}

// scoreMetric returns the score of the first threshold the value satisfies,
// walking thresholds from the best value down. Comparisons are inclusive.
func scoreMetric(value float64, rule MetricRule) (int, string) {
	thresholds := append([]Threshold(nil), rule.Thresholds...)
	sort.SliceStable(thresholds, func(i, j int) bool {
		if rule.HigherIsBetter {
			return thresholds[i].Value > thresholds[j].Value
		}
		return thresholds[i].Value < thresholds[j].Value
	})

	for _, th := range thresholds {
		if rule.HigherIsBetter && value >= th.Value {
			return th.Score, fmt.Sprintf("Value %.2f met or exceeded threshold %s", value, formatThreshold(th.Value))
		}
		if !rule.HigherIsBetter && value <= th.Value {
			return th.Score, fmt.Sprintf("Value %.2f met or was below threshold %s", value, formatThreshold(th.Value))
		}
	}
	return 0, fmt.Sprintf("Value %.2f did not meet any defined thresholds.", value)
}

// formatThreshold renders whole numbers with a trailing ".0".
func formatThreshold(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

func roundHalfEven(v float64) int {
	return int(math.RoundToEven(v))
}

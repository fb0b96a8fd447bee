// Package scoring computes hierarchical weighted scores from metric values
// and a scoring template.
package scoring

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultSlug is the lookup name of the built-in technology template.
const DefaultSlug = "default_tech"

//go:embed default_tech.yaml
var defaultTechYAML []byte

// Threshold maps a metric value to a score.
type Threshold struct {
	Value float64 `json:"value" yaml:"value"`
	Score int     `json:"score" yaml:"score"`
}

// MetricRule scores one metric within a dimension.
type MetricRule struct {
	Name           string      `json:"name" yaml:"name" validate:"required"`
	Weight         float64     `json:"weight" yaml:"weight" validate:"gte=0,lte=1"`
	HigherIsBetter bool        `json:"higher_is_better" yaml:"higher_is_better"`
	Thresholds     []Threshold `json:"thresholds" yaml:"thresholds"`
}

// Dimension groups metric rules under one weighted score.
type Dimension struct {
	Name    string       `json:"name" yaml:"name" validate:"required"`
	Weight  float64      `json:"weight" yaml:"weight" validate:"gte=0,lte=1"`
	Metrics []MetricRule `json:"metrics" yaml:"metrics" validate:"dive"`
}

// Template is a named scoring configuration. Slug is the lookup key; Name is
// the display name reported with results. Weights are not required to sum
// to one.
type Template struct {
	ID          string      `json:"id,omitempty" yaml:"id"`
	Slug        string      `json:"slug" yaml:"slug" validate:"required"`
	Name        string      `json:"name" yaml:"name" validate:"required"`
	Description string      `json:"description,omitempty" yaml:"description"`
	Sectors     []string    `json:"sectors,omitempty" yaml:"sectors"`
	Dimensions  []Dimension `json:"dimensions" yaml:"dimensions" validate:"required,min=1,dive"`
}

var templateValidator = validator.New()

// Validate checks the template's structure.
func (t *Template) Validate() error {
	if err := templateValidator.Struct(t); err != nil {
		return fmt.Errorf("invalid template %q: %w", t.Slug, err)
	}
	return nil
}

// RequiredMetrics lists "{dimension}:{metric}" for every rule in template order.
func (t *Template) RequiredMetrics() []string {
	var out []string
	for _, d := range t.Dimensions {
		for _, m := range d.Metrics {
			out = append(out, metricID(d.Name, m.Name))
		}
	}
	return out
}

// TotalWeight sums the dimension weights.
func (t *Template) TotalWeight() float64 {
	var total float64
	for _, d := range t.Dimensions {
		total += d.Weight
	}
	return total
}

// ParseYAML decodes and validates a template document.
func ParseYAML(data []byte) (*Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decoding template: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// LoadDir parses every *.yaml and *.yml file in dir, sorted by file name.
func LoadDir(dir string) ([]*Template, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading template dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	templates := make([]*Template, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		t, err := ParseYAML(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		templates = append(templates, t)
	}
	return templates, nil
}

var (
	defaultOnce sync.Once
	defaultTmpl *Template
)

// DefaultTemplate returns a copy of the built-in technology template.
func DefaultTemplate() *Template {
	defaultOnce.Do(func() {
		t, err := ParseYAML(defaultTechYAML)
		if err != nil {
			panic(fmt.Sprintf("scoring: embedded default template: %v", err))
		}
		defaultTmpl = t
	})
	return defaultTmpl.clone()
}

func (t *Template) clone() *Template {
	c := *t
	c.Sectors = append([]string(nil), t.Sectors...)
	c.Dimensions = make([]Dimension, len(t.Dimensions))
	for i, d := range t.Dimensions {
		d.Metrics = append([]MetricRule(nil), d.Metrics...)
		for j := range d.Metrics {
			d.Metrics[j].Thresholds = append([]Threshold(nil), d.Metrics[j].Thresholds...)
		}
		c.Dimensions[i] = d
	}
	return &c
}

func metricID(dimension, metric string) string {
	return dimension + ":" + metric
}

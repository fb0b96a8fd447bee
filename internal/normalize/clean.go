package normalize

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var nullLike = map[string]bool{
	"null": true, "none": true, "n/a": true, "na": true, "-": true, "": true,
}

var (
	isoDate  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	bareYear = regexp.MustCompile(`^\d{4}$`)
)

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
}

// dateFields are reduced to YYYY-MM-DD when they hold a full timestamp.
var dateFields = []string{"date", "filingDate", "acceptedDate", "reportDate", "calendarYear", "ipoDate"}

// commonAliases map provider spellings onto canonical field names for every shape.
var commonAliases = map[string]string{
	"company_name":      "companyName",
	"fiscal_year":       "fiscalYear",
	"calendar_year":     "calendarYear",
	"filing_date":       "filingDate",
	"accepted_date":     "acceptedDate",
	"report_date":       "reportDate",
	"reported_currency": "reportedCurrency",
	"ticker":            "symbol",
}

// coerceNumber turns null-likes into 0 and digit-like strings into floats.
// Anything else is returned unchanged and left for validation to reject.
func coerceNumber(v any) any {
	switch x := v.(type) {
	case nil:
		return 0.0
	case string:
		s := strings.TrimSpace(x)
		if nullLike[strings.ToLower(s)] {
			return 0.0
		}
		if !digitLike(s) {
			return x
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return x
		}
		return d.InexactFloat64()
	default:
		return v
	}
}

func digitLike(s string) bool {
	stripped := strings.NewReplacer(".", "", "-", "", "+", "").Replace(s)
	if stripped == "" {
		return false
	}
	for _, r := range stripped {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// normalizeDate keeps bare years and ISO dates, reduces known timestamp
// layouts to their date, and returns anything else unchanged.
func normalizeDate(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	s = strings.TrimSpace(s)
	if isoDate.MatchString(s) || bareYear.MatchString(s) {
		return s
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return v
}

// stringify renders scalar identifiers that providers sometimes send as numbers.
func stringify(v any) any {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case string, nil:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// fieldSets walks a record struct and returns the json names of its numeric
// and string fields, including promoted ones.
func fieldSets(t reflect.Type) (numeric, text map[string]bool) {
	numeric = map[string]bool{}
	text = map[string]bool{}

	var walk func(reflect.Type)
	walk = func(t reflect.Type) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if f.Anonymous && f.Type.Kind() == reflect.Struct {
				walk(f.Type)
				continue
			}
			if !f.IsExported() {
				continue
			}
			name := jsonName(f)
			if name == "" {
				continue
			}
			switch {
			case f.Type.Kind() == reflect.Pointer && f.Type.Elem().Kind() == reflect.Float64:
				numeric[name] = true
			case f.Type.Kind() == reflect.String:
				text[name] = true
			}
		}
	}
	walk(t)
	return numeric, text
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

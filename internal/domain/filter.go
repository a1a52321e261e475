package domain

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
)

// FilterKind names the supported metadata predicates.
type FilterKind string

const (
	FilterEq    FilterKind = "eq"
	FilterIn    FilterKind = "in"
	FilterRange FilterKind = "range"
)

// FieldCategory addresses the entry's category rather than a metadata key.
const FieldCategory = "category"

// Filter is a single metadata predicate. Build one with Eq, In or Range.
type Filter struct {
	Kind   FilterKind
	Field  string
	Value  string   // eq
	Values []string // in
	Min    *float64 // range, inclusive
	Max    *float64 // range, inclusive
}

func Eq(field, value string) Filter {
	return Filter{Kind: FilterEq, Field: field, Value: value}
}

func In(field string, values ...string) Filter {
	return Filter{Kind: FilterIn, Field: field, Values: values}
}

// Range matches numeric metadata within [min, max]. Either bound may be nil.
func Range(field string, min, max *float64) Filter {
	return Filter{Kind: FilterRange, Field: field, Min: min, Max: max}
}

// CategoryIn restricts results to the given categories.
func CategoryIn(categories ...MemoryCategory) Filter {
	values := make([]string, len(categories))
	for i, c := range categories {
		values[i] = string(c)
	}
	return In(FieldCategory, values...)
}

// SearchOptions bounds a semantic search. All filters must match.
type SearchOptions struct {
	Limit   int
	Filters []Filter
}

// Matches evaluates the filter against a result's category and metadata.
func (f Filter) Matches(r MemorySearchResult) bool {
	var (
		raw any
		ok  bool
	)
	if f.Field == FieldCategory {
		raw, ok = string(r.Category), true
	} else {
		raw, ok = r.Metadata[f.Field]
	}
	if !ok || raw == nil {
		return false
	}

	switch f.Kind {
	case FilterEq:
		return fmt.Sprint(raw) == f.Value
	case FilterIn:
		return slices.Contains(f.Values, fmt.Sprint(raw))
	case FilterRange:
		n, ok := toFloat(raw)
		if !ok {
			return false
		}
		if f.Min != nil && n < *f.Min {
			return false
		}
		if f.Max != nil && n > *f.Max {
			return false
		}
		return true
	}
	return false
}

// MatchAll reports whether every filter matches r.
func MatchAll(filters []Filter, r MemorySearchResult) bool {
	for _, f := range filters {
		if !f.Matches(r) {
			return false
		}
	}
	return true
}

// MarshalJSON renders the wire form understood by the memory service:
// {"field":"v"}, {"field":{"$in":[...]}} or {"field":{"$gte":a,"$lte":b}}.
func (f Filter) MarshalJSON() ([]byte, error) {
	var cond any
	switch f.Kind {
	case FilterEq:
		cond = f.Value
	case FilterIn:
		values := f.Values
		if values == nil {
			values = []string{}
		}
		cond = map[string]any{"$in": values}
	case FilterRange:
		bounds := map[string]float64{}
		if f.Min != nil {
			bounds["$gte"] = *f.Min
		}
		if f.Max != nil {
			bounds["$lte"] = *f.Max
		}
		cond = bounds
	default:
		return nil, fmt.Errorf("unknown filter kind %q", f.Kind)
	}
	return json.Marshal(map[string]any{f.Field: cond})
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// SortByRelevance orders results by descending score. Ties keep their input order.
func SortByRelevance(results []MemorySearchResult) {
	slices.SortStableFunc(results, func(a, b MemorySearchResult) int {
		switch {
		case a.RelevanceScore > b.RelevanceScore:
			return -1
		case a.RelevanceScore < b.RelevanceScore:
			return 1
		}
		return 0
	})
}

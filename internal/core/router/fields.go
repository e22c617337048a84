package router

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/gridslice/internal/grid"
	"github.com/mohammed-shakir/gridslice/internal/query"
)

// FieldError is one rejected query parameter.
type FieldError struct {
	Field  string `json:"field"`
	Value  string `json:"value,omitempty"`
	Reason string `json:"reason"`
}

// ValidationError carries every problem found in a request, not just the
// first.
type ValidationError struct {
	Fields []FieldError `json:"errors"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		if f.Value != "" {
			parts[i] = fmt.Sprintf("%s=%q: %s", f.Field, f.Value, f.Reason)
		} else {
			parts[i] = fmt.Sprintf("%s: %s", f.Field, f.Reason)
		}
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

// YearRanger reports the years the manifest covers.
type YearRanger interface {
	YearRange() (first, last int, ok bool)
}

// field describes one query parameter: its names, how to convert it and
// where the checked value goes.
type field struct {
	name    string
	aliases []string
	apply   func(raw string, q *query.Query, years YearRanger) string
}

var queryFields = []field{
	intField("year", nil, func(v int, years YearRanger) string {
		first, last, ok := years.YearRange()
		if !ok {
			return "no datasets available"
		}
		if v < first || v > last {
			return fmt.Sprintf("must be in [%d, %d]", first, last)
		}
		return ""
	}, func(q *query.Query, v int) { q.Year = v }),
	intField("month", nil, func(v int, _ YearRanger) string {
		if v < 1 || v > 12 {
			return "must be in [1, 12]"
		}
		return ""
	}, func(q *query.Query, v int) { q.Month = v }),
	intField("res", []string{"pointsPerDegree"}, func(v int, _ YearRanger) string {
		if _, err := grid.ParseResolution(v); err != nil {
			return "must be one of 1, 2, 4, 10"
		}
		return ""
	}, func(q *query.Query, v int) { q.Res = grid.Resolution(v) }),
	degreesField("north", []string{"nwLat"}, 90, func(q *query.Query, t grid.Tenths) { q.North = t }),
	degreesField("south", []string{"seLat"}, 90, func(q *query.Query, t grid.Tenths) { q.South = t }),
	degreesField("west", []string{"nwLon"}, 180, func(q *query.Query, t grid.Tenths) { q.West = t }),
	degreesField("east", []string{"seLon"}, 180, func(q *query.Query, t grid.Tenths) { q.East = t }),
}

func intField(name string, aliases []string, check func(int, YearRanger) string, set func(*query.Query, int)) field {
	return field{name: name, aliases: aliases, apply: func(raw string, q *query.Query, years YearRanger) string {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return "not an integer"
		}
		if reason := check(v, years); reason != "" {
			return reason
		}
		set(q, v)
		return ""
	}}
}

func degreesField(name string, aliases []string, limit float64, set func(*query.Query, grid.Tenths)) field {
	return field{name: name, aliases: aliases, apply: func(raw string, q *query.Query, _ YearRanger) string {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) {
			return "not a number"
		}
		if v < -limit || v > limit {
			return fmt.Sprintf("must be in [%g, %g]", -limit, limit)
		}
		set(q, grid.FromDegrees(v))
		return ""
	}}
}

func lookup(vals url.Values, f field) string {
	if v := strings.TrimSpace(vals.Get(f.name)); v != "" {
		return v
	}
	for _, a := range f.aliases {
		if v := strings.TrimSpace(vals.Get(a)); v != "" {
			return v
		}
	}
	return ""
}

// ParseQuery checks every field and returns all problems as one
// *ValidationError.
func ParseQuery(vals url.Values, years YearRanger) (query.Query, error) {
	var (
		q    query.Query
		errs []FieldError
		seen = map[string]bool{}
	)
	for _, f := range queryFields {
		raw := lookup(vals, f)
		if raw == "" {
			errs = append(errs, FieldError{Field: f.name, Reason: "missing"})
			continue
		}
		if reason := f.apply(raw, &q, years); reason != "" {
			errs = append(errs, FieldError{Field: f.name, Value: raw, Reason: reason})
			continue
		}
		seen[f.name] = true
	}
	if seen["north"] && seen["south"] && q.North < q.South {
		errs = append(errs, FieldError{Field: "north", Reason: "must be >= south"})
	}
	if len(errs) > 0 {
		return query.Query{}, &ValidationError{Fields: errs}
	}
	return q, nil
}

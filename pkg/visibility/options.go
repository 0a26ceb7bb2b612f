// Package visibility resolves cascading select options from emission factor
// records and hides fields that have no legal value.
package visibility

import (
	"sort"
	"strings"

	"github.com/goliatone/go-carbonform/pkg/model"
)

// Options returns the sorted, unique values of field among the factors that
// agree with every other value in current. Only keys that are attributes of
// at least one factor take part in filtering, so form-only inputs such as an
// amount never narrow the list. A factor missing a filtering attribute is
// excluded. Comparison is case-insensitive on the trimmed string form.
func Options(field string, current map[string]any, factors []model.EmissionFactor) []string {
	field = strings.TrimSpace(field)
	if field == "" || len(factors) == 0 {
		return nil
	}

	filters := activeFilters(field, current, factors)
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, factor := range factors {
		if !matches(factor, filters) {
			continue
		}
		value, ok := factor.Attr(field)
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	sort.Strings(out)
	return out
}

// Visible reports whether field has at least one legal option.
func Visible(field string, current map[string]any, factors []model.EmissionFactor) bool {
	return len(Options(field, current, factors)) > 0
}

type filter struct {
	attr  string
	value string
}

func activeFilters(field string, current map[string]any, factors []model.EmissionFactor) []filter {
	if len(current) == 0 {
		return nil
	}
	attrs := make(map[string]struct{})
	for _, factor := range factors {
		for key := range factor {
			attrs[key] = struct{}{}
		}
	}

	filters := make([]filter, 0, len(current))
	for key, raw := range current {
		if key == field {
			continue
		}
		if _, ok := attrs[key]; !ok {
			continue
		}
		value := strings.TrimSpace(model.StringValue(raw))
		if value == "" {
			continue
		}
		filters = append(filters, filter{attr: key, value: value})
	}
	sort.Slice(filters, func(i, j int) bool { return filters[i].attr < filters[j].attr })
	return filters
}

func matches(factor model.EmissionFactor, filters []filter) bool {
	for _, f := range filters {
		value, ok := factor.Attr(f.attr)
		if !ok {
			return false
		}
		if !strings.EqualFold(strings.TrimSpace(value), f.value) {
			return false
		}
	}
	return true
}

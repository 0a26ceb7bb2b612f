// Package mapper translates form values into calculation requests and maps
// backend responses, whose keys may be cased differently, back onto form
// field names.
package mapper

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/goliatone/go-carbonform/pkg/model"
)

// CategoryKey is the payload key carrying the category.
const CategoryKey = "category"

// dateSynonyms are tried for the "date" field after the case variants.
var dateSynonyms = []string{"End date", "END_DATE", "end_date", "Date", "DATE"}

// Result is a mapped backend response.
type Result struct {
	// Values holds backend values keyed by form field name.
	Values map[string]any
	// Unmapped holds backend keys that matched no form field.
	Unmapped map[string]any
}

// ToBackendPayload copies values and injects the category key. A form field
// that is itself named "category" and holds a value is left untouched.
func ToBackendPayload(category string, values map[string]any) map[string]any {
	payload := make(map[string]any, len(values)+1)
	for key, value := range values {
		payload[key] = value
	}
	if existing, ok := payload[CategoryKey]; !ok || strings.TrimSpace(model.StringValue(existing)) == "" {
		payload[CategoryKey] = category
	}
	return payload
}

// FromBackendResponse maps record onto the fields of category. Fields with no
// matching key are absent from the result.
func FromBackendResponse(category string, record map[string]any, schema model.FormSchema) map[string]any {
	return MapResponse(category, record, schema).Values
}

// MapResponse maps record like FromBackendResponse and also reports the keys
// no field consumed.
func MapResponse(category string, record map[string]any, schema model.FormSchema) Result {
	result := Result{Values: make(map[string]any)}
	used := make(map[string]struct{}, len(record))

	if cat, ok := schema.Category(category); ok {
		for _, field := range cat.Fields {
			value, key, found := Lookup(record, field.Name)
			if !found {
				continue
			}
			result.Values[field.Name] = value
			used[key] = struct{}{}
		}
	}

	for key, value := range record {
		if _, ok := used[key]; ok {
			continue
		}
		if result.Unmapped == nil {
			result.Unmapped = make(map[string]any)
		}
		result.Unmapped[key] = value
	}
	return result
}

// Lookup finds the value for field in record, trying the variants returned by
// KeyVariants in order. It returns the matched key.
func Lookup(record map[string]any, field string) (any, string, bool) {
	if len(record) == 0 {
		return nil, "", false
	}
	for _, key := range KeyVariants(field) {
		if value, ok := record[key]; ok {
			return value, key, true
		}
	}
	return nil, "", false
}

// KeyVariants lists the backend keys tried for field: exact, upper case,
// lower case, capitalised, then the date synonyms for "date".
func KeyVariants(field string) []string {
	if field == "" {
		return nil
	}
	candidates := []string{field, strings.ToUpper(field), strings.ToLower(field), capitalize(field)}
	if field == "date" {
		candidates = append(candidates, dateSynonyms...)
	}

	out := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		if _, ok := seen[candidate]; ok {
			continue
		}
		seen[candidate] = struct{}{}
		out = append(out, candidate)
	}
	return out
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

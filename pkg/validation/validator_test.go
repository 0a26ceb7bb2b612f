package validation

import (
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-carbonform/pkg/fieldtype"
	"github.com/goliatone/go-carbonform/pkg/model"
)

func integerConfig() model.FieldTypeConfig {
	return model.FieldTypeConfig{InputKind: model.InputNumber, IsInteger: true, Min: model.Bound(0)}
}

func decimalConfig() model.FieldTypeConfig {
	return model.FieldTypeConfig{InputKind: model.InputNumber, AllowDecimals: true, Min: model.Bound(0), Max: model.Bound(100)}
}

func TestValidate_Number(t *testing.T) {
	cases := []struct {
		name    string
		value   any
		cfg     model.FieldTypeConfig
		valid   bool
		message string
	}{
		{name: "integer accepts whole", value: "100", cfg: integerConfig(), valid: true},
		{name: "integer rejects fraction", value: "100.5", cfg: integerConfig(), message: "amount must be a whole number"},
		{name: "integral value with decimal point", value: "100.0", cfg: integerConfig(), message: "amount must not contain decimals"},
		{name: "json number", value: float64(12), cfg: integerConfig(), valid: true},
		{name: "not a number", value: "ten", cfg: integerConfig(), message: "amount must be a valid number"},
		{name: "infinite", value: "Inf", cfg: decimalConfig(), message: "amount must be a valid number"},
		{name: "below min", value: "-1", cfg: integerConfig(), message: "amount must be at least 0"},
		{name: "above max", value: "100.5", cfg: decimalConfig(), message: "amount must be at most 100"},
		{name: "decimal accepted", value: " 12.75 ", cfg: decimalConfig(), valid: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := Validate(tc.value, tc.cfg, "amount")
			if result.Valid != tc.valid {
				t.Fatalf("expected valid=%v, got %+v", tc.valid, result)
			}
			if result.Error != tc.message {
				t.Fatalf("expected message %q, got %q", tc.message, result.Error)
			}
		})
	}
}

func TestValidate_EmptyIsAlwaysValid(t *testing.T) {
	for _, value := range []any{nil, "", "   "} {
		for _, kind := range []model.InputKind{model.InputNumber, model.InputDate, model.InputEmail, model.InputText} {
			if result := Validate(value, model.FieldTypeConfig{InputKind: kind}, "field"); !result.Valid {
				t.Fatalf("expected %#v to be valid for %s, got %+v", value, kind, result)
			}
		}
	}
}

func TestValidate_Date(t *testing.T) {
	cfg := model.FieldTypeConfig{InputKind: model.InputDate}
	for _, value := range []any{"2024-03-01", "2024-03-01T10:30:00Z", "03/01/2024", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)} {
		if result := Validate(value, cfg, "date"); !result.Valid {
			t.Fatalf("expected %v to parse, got %+v", value, result)
		}
	}
	if result := Validate("2024-13-45", cfg, "date"); result.Valid {
		t.Fatalf("expected invalid calendar date to fail")
	}
	if result := Validate(time.Time{}, cfg, "date"); result.Valid {
		t.Fatalf("expected zero time to fail")
	}
}

func TestValidate_PatternKinds(t *testing.T) {
	classifier := fieldtype.NewClassifier()
	cases := []struct {
		field string
		good  string
		bad   string
	}{
		{field: "email", good: "ops@example.com", bad: "ops@"},
		{field: "phone", good: "+44 20 7946 0958", bad: "call me"},
		{field: "website", good: "https://example.com/report", bad: "example dot com"},
	}
	for _, tc := range cases {
		cfg := classifier.Classify(tc.field, "")
		if result := Validate(tc.good, cfg, tc.field); !result.Valid {
			t.Fatalf("%s: expected %q to be valid, got %+v", tc.field, tc.good, result)
		}
		if result := Validate(tc.bad, cfg, tc.field); result.Valid {
			t.Fatalf("%s: expected %q to be invalid", tc.field, tc.bad)
		}
	}
}

func TestValidate_TextLength(t *testing.T) {
	cfg := model.FieldTypeConfig{InputKind: model.InputText}
	if result := Validate(strings.Repeat("é", MaxTextLength), cfg, "notes"); !result.Valid {
		t.Fatalf("expected text at limit to be valid, got %+v", result)
	}
	result := Validate(strings.Repeat("a", MaxTextLength+1), cfg, "notes")
	if result.Valid || result.Error != "notes must be at most 1000 characters" {
		t.Fatalf("expected length error, got %+v", result)
	}
}

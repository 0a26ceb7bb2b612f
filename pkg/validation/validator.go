package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goliatone/go-carbonform/pkg/model"
)

// MaxTextLength is the longest accepted text value, in characters.
const MaxTextLength = 1000

// DateLayouts lists the layouts accepted for date fields, tried in order.
// Values are parsed as written; no timezone conversion is applied.
var DateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"01/02/2006",
	"02.01.2006",
}

// Result is the outcome of validating one value.
type Result struct {
	Valid bool   `json:"isValid"`
	Error string `json:"error,omitempty"`
}

func valid() Result { return Result{Valid: true} }

func invalid(format string, args ...any) Result {
	return Result{Error: fmt.Sprintf(format, args...)}
}

// IsEmpty reports whether value counts as "not provided".
func IsEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case json.Number:
		return strings.TrimSpace(v.String()) == ""
	default:
		return false
	}
}

// Validate checks value against cfg. Empty values are always valid; required
// checks are layered on top by ValidateForm.
func Validate(value any, cfg model.FieldTypeConfig, fieldName string) Result {
	if IsEmpty(value) {
		return valid()
	}
	label := strings.TrimSpace(fieldName)
	if label == "" {
		label = "Value"
	}

	switch cfg.InputKind {
	case model.InputNumber:
		return validateNumber(value, cfg, label)
	case model.InputDate:
		return validateDate(value, label)
	case model.InputEmail:
		return validatePattern(value, cfg, label, "a valid email address")
	case model.InputTel:
		return validatePattern(value, cfg, label, "a valid phone number")
	case model.InputURL:
		return validatePattern(value, cfg, label, "a valid URL")
	default:
		return validateText(value, cfg, label)
	}
}

func validateNumber(value any, cfg model.FieldTypeConfig, label string) Result {
	raw := strings.TrimSpace(model.StringValue(value))
	number, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(number) || math.IsInf(number, 0) {
		return invalid("%s must be a valid number", label)
	}
	if cfg.IsInteger && number != math.Trunc(number) {
		return invalid("%s must be a whole number", label)
	}
	if !cfg.AllowDecimals && strings.Contains(raw, ".") {
		return invalid("%s must not contain decimals", label)
	}
	if cfg.Min != nil && number < *cfg.Min {
		return invalid("%s must be at least %s", label, formatBound(*cfg.Min))
	}
	if cfg.Max != nil && number > *cfg.Max {
		return invalid("%s must be at most %s", label, formatBound(*cfg.Max))
	}
	return valid()
}

func validateDate(value any, label string) Result {
	if t, ok := value.(time.Time); ok {
		if t.IsZero() {
			return invalid("%s must be a valid date", label)
		}
		return valid()
	}
	if _, ok := ParseDate(model.StringValue(value)); !ok {
		return invalid("%s must be a valid date", label)
	}
	return valid()
}

// ParseDate parses raw using DateLayouts.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func validatePattern(value any, cfg model.FieldTypeConfig, label, expected string) Result {
	raw := strings.TrimSpace(model.StringValue(value))
	if cfg.Pattern != nil && !cfg.Pattern.MatchString(raw) {
		return invalid("%s must be %s", label, expected)
	}
	return valid()
}

func validateText(value any, cfg model.FieldTypeConfig, label string) Result {
	raw := model.StringValue(value)
	if utf8.RuneCountInString(raw) > MaxTextLength {
		return invalid("%s must be at most %d characters", label, MaxTextLength)
	}
	if cfg.Pattern != nil && !cfg.Pattern.MatchString(strings.TrimSpace(raw)) {
		return invalid("%s has an invalid format", label)
	}
	return valid()
}

func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

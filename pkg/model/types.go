package model

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// InputKind is the abstract input type inferred for a field.
type InputKind string

const (
	InputText   InputKind = "text"
	InputNumber InputKind = "number"
	InputDate   InputKind = "date"
	InputEmail  InputKind = "email"
	InputTel    InputKind = "tel"
	InputURL    InputKind = "url"
)

// FieldDescriptor describes one input of a category as delivered by the remote
// schema document. Name is the only stable identity; Title and Description are
// display values that may change between fetches.
type FieldDescriptor struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`

	// ShowTitle, ShowExample and Selectable carry the s_t, s_e and s flags
	// verbatim. Their meaning belongs to the document authors.
	ShowTitle   bool `json:"s_t,omitempty"`
	ShowExample bool `json:"s_e,omitempty"`
	Selectable  bool `json:"s,omitempty"`
}

// Label returns the display title, falling back to the field name.
func (f FieldDescriptor) Label() string {
	if title := strings.TrimSpace(f.Title); title != "" {
		return title
	}
	return f.Name
}

// FormCategory groups the fields rendered for one calculation category.
type FormCategory struct {
	Key          string            `json:"key"`
	Title        string            `json:"title"`
	Instructions string            `json:"instructions,omitempty"`
	Fields       []FieldDescriptor `json:"fields"`
}

// Field returns the descriptor with the given name.
func (c FormCategory) Field(name string) (FieldDescriptor, bool) {
	for _, field := range c.Fields {
		if field.Name == name {
			return field, true
		}
	}
	return FieldDescriptor{}, false
}

// Required returns the required fields in schema order.
func (c FormCategory) Required() []FieldDescriptor {
	return c.filter(true)
}

// Optional returns the optional fields in schema order.
func (c FormCategory) Optional() []FieldDescriptor {
	return c.filter(false)
}

func (c FormCategory) filter(required bool) []FieldDescriptor {
	var out []FieldDescriptor
	for _, field := range c.Fields {
		if field.Required == required {
			out = append(out, field)
		}
	}
	return out
}

// FormSchema maps stable category keys to their form definition.
type FormSchema map[string]FormCategory

// Keys returns the category keys in sorted order.
func (s FormSchema) Keys() []string {
	keys := make([]string, 0, len(s))
	for key := range s {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Category looks up a category by key.
func (s FormSchema) Category(key string) (FormCategory, bool) {
	if s == nil {
		return FormCategory{}, false
	}
	category, ok := s[key]
	return category, ok
}

// Clone returns a deep copy so cached schemas cannot be mutated by callers.
func (s FormSchema) Clone() FormSchema {
	if s == nil {
		return nil
	}
	out := make(FormSchema, len(s))
	for key, category := range s {
		category.Fields = append([]FieldDescriptor(nil), category.Fields...)
		out[key] = category
	}
	return out
}

// FieldTypeConfig is derived from a field's name and title; it is never
// persisted.
type FieldTypeConfig struct {
	InputKind     InputKind      `json:"inputKind"`
	IsInteger     bool           `json:"isInteger"`
	AllowDecimals bool           `json:"allowDecimals"`
	Min           *float64       `json:"min,omitempty"`
	Max           *float64       `json:"max,omitempty"`
	Pattern       *regexp.Regexp `json:"-"`
}

// Bound is a helper for populating Min/Max.
func Bound(v float64) *float64 {
	return &v
}

// FieldState is the per-field state kept by the form store.
type FieldState struct {
	Value   any    `json:"value"`
	Valid   bool   `json:"isValid"`
	Error   string `json:"error,omitempty"`
	Touched bool   `json:"touched"`
	Dirty   bool   `json:"isDirty"`
}

// EmissionFactor is a flat reference record used as a lookup table for
// cascading field options.
type EmissionFactor map[string]any

// ID returns the record identifier.
func (f EmissionFactor) ID() string {
	value, _ := f.Attr("id")
	return value
}

// Attr returns the string form of the named attribute. Missing and nil
// attributes report false.
func (f EmissionFactor) Attr(name string) (string, bool) {
	if f == nil {
		return "", false
	}
	raw, ok := f[name]
	if !ok || raw == nil {
		return "", false
	}
	return StringValue(raw), true
}

// StringValue renders scalar form and factor values consistently.
func StringValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

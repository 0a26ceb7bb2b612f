package schema

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/microcosm-cc/bluemonday"

	"github.com/goliatone/go-carbonform/pkg/model"
)

var (
	// ErrSchemaUnavailable reports that the schema document is missing or the
	// store could not be reached. It is fatal to rendering a form.
	ErrSchemaUnavailable = errors.New("schema: form schema unavailable")

	// ErrDocumentNotFound is returned by stores when a path has no document.
	ErrDocumentNotFound = errors.New("schema: document not found")
)

// Envelope is the outer document shape. Data usually holds the actual payload
// JSON-encoded as a string; an inline object is accepted as well.
type Envelope struct {
	Data json.RawMessage `json:"data"`
}

// Unwrap returns the inner payload of a stored document.
func Unwrap(raw []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errors.New("schema: document is empty")
	}

	var envelope Envelope
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("schema: decode envelope: %w", err)
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, errors.New("schema: document has no data")
	}
	if data[0] != '"' {
		return data, nil
	}

	var encoded string
	if err := json.Unmarshal(data, &encoded); err != nil {
		return nil, fmt.Errorf("schema: decode data string: %w", err)
	}
	if strings.TrimSpace(encoded) == "" {
		return nil, errors.New("schema: document has no data")
	}
	return []byte(encoded), nil
}

type rawCategory struct {
	Title string     `json:"title"`
	Ins   string     `json:"ins"`
	Texts []rawField `json:"texts"`
}

type rawField struct {
	Title    string   `json:"title"`
	Name     string   `json:"name"`
	Desc     string   `json:"desc"`
	Required flexBool `json:"s_r"`
	ShowT    flexBool `json:"s_t"`
	ShowE    flexBool `json:"s_e"`
	Select   flexBool `json:"s"`
}

// flexBool accepts the flag encodings seen in stored documents: booleans,
// "true"/"false" strings and 0/1 numbers.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	switch raw {
	case "", "null":
		*b = false
		return nil
	case "true":
		*b = true
		return nil
	case "false":
		*b = false
		return nil
	}
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unquoted)
	}
	if parsed, err := strconv.ParseBool(raw); err == nil {
		*b = flexBool(parsed)
		return nil
	}
	if number, err := strconv.ParseFloat(raw, 64); err == nil {
		*b = number != 0
		return nil
	}
	*b = false
	return nil
}

// Decode maps a stored schema document into a FormSchema. Field names are
// kept verbatim; titles, descriptions and instructions are sanitised.
func Decode(raw []byte) (model.FormSchema, error) {
	payload, err := Unwrap(raw)
	if err != nil {
		return nil, err
	}

	var categories map[string]rawCategory
	if err := json.Unmarshal(payload, &categories); err != nil {
		return nil, fmt.Errorf("schema: decode categories: %w", err)
	}

	out := make(model.FormSchema, len(categories))
	for key, category := range categories {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		out[key] = mapCategory(key, category)
	}
	return out, nil
}

func mapCategory(key string, raw rawCategory) model.FormCategory {
	category := model.FormCategory{
		Key:          key,
		Title:        sanitizeText(raw.Title),
		Instructions: sanitizeInstructions(raw.Ins),
		Fields:       make([]model.FieldDescriptor, 0, len(raw.Texts)),
	}
	if category.Title == "" {
		category.Title = key
	}
	for _, field := range raw.Texts {
		if strings.TrimSpace(field.Name) == "" {
			continue
		}
		category.Fields = append(category.Fields, model.FieldDescriptor{
			Name:        field.Name,
			Title:       sanitizeText(field.Title),
			Description: sanitizeText(field.Desc),
			Required:    bool(field.Required),
			ShowTitle:   bool(field.ShowT),
			ShowExample: bool(field.ShowE),
			Selectable:  bool(field.Select),
		})
	}
	return category
}

var (
	policyOnce        sync.Once
	textPolicy        *bluemonday.Policy
	instructionPolicy *bluemonday.Policy
)

func policies() (*bluemonday.Policy, *bluemonday.Policy) {
	policyOnce.Do(func() {
		textPolicy = bluemonday.StrictPolicy()
		instructionPolicy = bluemonday.UGCPolicy()
	})
	return textPolicy, instructionPolicy
}

// sanitizeText strips all markup from display labels. Entities are decoded
// again since labels are escaped when rendered.
func sanitizeText(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	text, _ := policies()
	return strings.TrimSpace(html.UnescapeString(text.Sanitize(trimmed)))
}

// sanitizeInstructions keeps basic formatting in category instructions.
func sanitizeInstructions(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	_, ugc := policies()
	return strings.TrimSpace(ugc.Sanitize(trimmed))
}

package validation

import (
	"errors"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/goliatone/go-carbonform/pkg/fieldtype"
	"github.com/goliatone/go-carbonform/pkg/model"
)

const (
	integerStringPattern = `^\s*-?[0-9]+(\.0+)?\s*$`
	numberStringPattern  = `^\s*-?([0-9]+(\.[0-9]*)?|\.[0-9]+)\s*$`
)

// RequestSchema builds the OpenAPI schema describing the calculation payload
// of category. Numeric fields accept JSON numbers or numeric strings since form
// values usually arrive as strings.
func RequestSchema(category model.FormCategory, classifier Classifier) *openapi3.Schema {
	if classifier == nil {
		classifier = fieldtype.NewClassifier()
	}
	schema := openapi3.NewObjectSchema()
	schema.Title = category.Title
	for _, field := range category.Fields {
		cfg := classifier.Classify(field.Name, field.Title)
		prop := propertySchema(cfg)
		prop.Title = field.Label()
		prop.Description = field.Description
		schema.WithProperty(field.Name, prop)
		if field.Required {
			schema.Required = append(schema.Required, field.Name)
		}
	}
	return schema
}

func propertySchema(cfg model.FieldTypeConfig) *openapi3.Schema {
	switch cfg.InputKind {
	case model.InputNumber:
		numeric := openapi3.NewFloat64Schema()
		pattern := numberStringPattern
		if cfg.IsInteger {
			numeric = openapi3.NewIntegerSchema()
			pattern = integerStringPattern
		}
		if cfg.Min != nil {
			numeric.WithMin(*cfg.Min)
		}
		if cfg.Max != nil {
			numeric.WithMax(*cfg.Max)
		}
		return openapi3.NewAnyOfSchema(numeric, openapi3.NewStringSchema().WithPattern(pattern))
	case model.InputDate:
		return openapi3.NewStringSchema()
	case model.InputEmail, model.InputTel, model.InputURL:
		return openapi3.NewStringSchema().WithMaxLength(MaxTextLength)
	default:
		return openapi3.NewAnyOfSchema(
			openapi3.NewStringSchema().WithMaxLength(MaxTextLength),
			openapi3.NewFloat64Schema(),
			openapi3.NewBoolSchema(),
		)
	}
}

// ValidateRequest checks data against the category's request schema and
// returns issues keyed by field name. Null values are treated as absent.
func ValidateRequest(category model.FormCategory, data map[string]any, classifier Classifier) []FieldIssue {
	schema := RequestSchema(category, classifier)

	payload := make(map[string]any, len(data))
	for key, value := range data {
		if value == nil {
			continue
		}
		payload[key] = value
	}

	err := schema.VisitJSON(payload, openapi3.MultiErrors())
	if err == nil {
		return nil
	}
	return issuesFromSchemaError(err)
}

func issuesFromSchemaError(err error) []FieldIssue {
	var issues []FieldIssue

	var multi openapi3.MultiError
	if errors.As(err, &multi) {
		for _, nested := range multi {
			issues = append(issues, issuesFromSchemaError(nested)...)
		}
		return issues
	}

	var schemaErr *openapi3.SchemaError
	if errors.As(err, &schemaErr) {
		field := strings.Join(schemaErr.JSONPointer(), ".")
		message := strings.TrimSpace(schemaErr.Reason)
		if schemaErr.SchemaField == "required" {
			message = "is required"
		}
		if field != "" && !strings.HasPrefix(message, field) {
			message = field + " " + message
		}
		return []FieldIssue{{Field: field, Message: message}}
	}

	return []FieldIssue{{Message: strings.TrimSpace(err.Error())}}
}

// MergeIssues concatenates issue lists keeping the first issue reported for
// each field.
func MergeIssues(lists ...[]FieldIssue) []FieldIssue {
	var out []FieldIssue
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, issue := range list {
			if _, exists := seen[issue.Field]; exists && issue.Field != "" {
				continue
			}
			seen[issue.Field] = struct{}{}
			out = append(out, issue)
		}
	}
	return out
}

package validation

import (
	"github.com/goliatone/go-carbonform/pkg/fieldtype"
	"github.com/goliatone/go-carbonform/pkg/model"
)

// Classifier resolves the type configuration of a field.
type Classifier interface {
	Classify(fieldName, fieldTitle string) model.FieldTypeConfig
}

// FieldIssue is a validation failure attached to a form field.
type FieldIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidateField applies the required check and then the type rules for one
// descriptor.
func ValidateField(field model.FieldDescriptor, value any, classifier Classifier) Result {
	if IsEmpty(value) {
		if field.Required {
			return invalid("%s is required", field.Label())
		}
		return valid()
	}
	if classifier == nil {
		classifier = fieldtype.NewClassifier()
	}
	cfg := classifier.Classify(field.Name, field.Title)
	return Validate(value, cfg, field.Label())
}

// ValidateForm validates every field of category against values and returns
// one issue per failing field, in schema order. Values for names the category
// does not declare are ignored.
func ValidateForm(category model.FormCategory, values map[string]any, classifier Classifier) []FieldIssue {
	if classifier == nil {
		classifier = fieldtype.NewClassifier()
	}
	var issues []FieldIssue
	for _, field := range category.Fields {
		result := ValidateField(field, values[field.Name], classifier)
		if result.Valid {
			continue
		}
		issues = append(issues, FieldIssue{Field: field.Name, Message: result.Error})
	}
	return issues
}

// IssueMap indexes issues by field name. The first message per field wins.
func IssueMap(issues []FieldIssue) map[string]string {
	if len(issues) == 0 {
		return nil
	}
	out := make(map[string]string, len(issues))
	for _, issue := range issues {
		if _, exists := out[issue.Field]; exists {
			continue
		}
		out[issue.Field] = issue.Message
	}
	return out
}

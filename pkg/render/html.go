// Package render turns a form category and its state into output for
// clients: backend error payloads mapped onto fields and an HTML fragment.
package render

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/flosch/pongo2/v6"

	"github.com/goliatone/go-carbonform/pkg/fieldtype"
	"github.com/goliatone/go-carbonform/pkg/formstate"
	"github.com/goliatone/go-carbonform/pkg/model"
	"github.com/goliatone/go-carbonform/pkg/validation"
)

//go:embed templates/*.tmpl
var embeddedTemplates embed.FS

const formTemplate = "form.tmpl"

// TemplatesFS exposes the embedded templates.
func TemplatesFS() fs.FS {
	sub, err := fs.Sub(embeddedTemplates, "templates")
	if err != nil {
		return embeddedTemplates
	}
	return sub
}

// OptionsResolver supplies select options and visibility per field.
// *visibility.Resolver satisfies it.
type OptionsResolver interface {
	Options(field string, current map[string]any) []string
	Visible(field string, current map[string]any) bool
}

// HTMLOption configures an HTMLRenderer.
type HTMLOption func(*HTMLRenderer)

// WithTemplates loads templates from files instead of the embedded set. The
// filesystem must contain "form.tmpl".
func WithTemplates(files fs.FS) HTMLOption {
	return func(r *HTMLRenderer) {
		if files != nil {
			r.files = files
		}
	}
}

// WithClassifier overrides the classifier deciding input kinds.
func WithClassifier(classifier validation.Classifier) HTMLOption {
	return func(r *HTMLRenderer) {
		if classifier != nil {
			r.classifier = classifier
		}
	}
}

// WithAction sets the form action attribute.
func WithAction(action string) HTMLOption {
	return func(r *HTMLRenderer) {
		r.action = strings.TrimSpace(action)
	}
}

// HTMLRenderer renders a category as an HTML form fragment.
type HTMLRenderer struct {
	files      fs.FS
	classifier validation.Classifier
	action     string
	tmpl       *pongo2.Template
}

// NewHTMLRenderer parses the form template.
func NewHTMLRenderer(options ...HTMLOption) (*HTMLRenderer, error) {
	r := &HTMLRenderer{
		files:      TemplatesFS(),
		classifier: fieldtype.NewClassifier(),
		action:     "/api/calculate",
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(r)
	}

	set := pongo2.NewSet("carbonform", pongo2.NewFSLoader(r.files))
	tmpl, err := set.FromFile(formTemplate)
	if err != nil {
		return nil, fmt.Errorf("render: parse %s: %w", formTemplate, err)
	}
	r.tmpl = tmpl
	return r, nil
}

// Render renders category with the values and errors in state. Fields the
// resolver hides are skipped; resolver may be nil.
func (r *HTMLRenderer) Render(category model.FormCategory, state formstate.State, resolver OptionsResolver) (string, error) {
	if r == nil || r.tmpl == nil {
		return "", errors.New("render: renderer is not initialised")
	}

	current := make(map[string]any, len(state.Fields))
	for name, field := range state.Fields {
		if field.Value != nil {
			current[name] = field.Value
		}
	}

	fields := make([]map[string]any, 0, len(category.Fields))
	for _, field := range category.Fields {
		if resolver != nil && !resolver.Visible(field.Name, current) {
			continue
		}
		fields = append(fields, r.fieldView(field, state.Fields[field.Name], current, resolver))
	}

	ctx := pongo2.Context{
		"form": map[string]any{
			"key":          category.Key,
			"title":        category.Title,
			"instructions": category.Instructions,
			"action":       r.action,
			"errors":       formErrors(state.Submission),
		},
		"fields":     fields,
		"result":     resultRows(state.Submission.Result, state.Submission.Unmapped),
		"submitting": state.Submission.Status == formstate.StatusSubmitting,
	}

	var buf bytes.Buffer
	if err := r.tmpl.ExecuteWriter(ctx, &buf); err != nil {
		return "", fmt.Errorf("render: execute %s: %w", formTemplate, err)
	}
	return buf.String(), nil
}

func (r *HTMLRenderer) fieldView(field model.FieldDescriptor, state model.FieldState, current map[string]any, resolver OptionsResolver) map[string]any {
	cfg := r.classifier.Classify(field.Name, field.Title)
	view := map[string]any{
		"name":        field.Name,
		"label":       field.Label(),
		"description": field.Description,
		"required":    field.Required,
		"input":       string(cfg.InputKind),
		"value":       model.StringValue(state.Value),
		"error":       state.Error,
	}
	if field.ShowExample && field.Description != "" {
		view["example"] = field.Description
	}
	if cfg.InputKind == model.InputNumber {
		if cfg.IsInteger || !cfg.AllowDecimals {
			view["step"] = "1"
		} else {
			view["step"] = "any"
		}
	}
	if cfg.Min != nil {
		view["min"] = strconv.FormatFloat(*cfg.Min, 'f', -1, 64)
	}
	if cfg.Max != nil {
		view["max"] = strconv.FormatFloat(*cfg.Max, 'f', -1, 64)
	}
	if resolver != nil {
		if options := resolver.Options(field.Name, current); len(options) > 0 {
			view["options"] = options
		}
	}
	return view
}

func formErrors(sub formstate.Submission) []string {
	if sub.Status != formstate.StatusFailed {
		return nil
	}
	return MergeFormErrors(nil, sub.Error)
}

// resultRows lists mapped values followed by unmapped backend output, each
// sorted by key.
func resultRows(result, unmapped map[string]any) []map[string]string {
	if len(result) == 0 && len(unmapped) == 0 {
		return nil
	}
	rows := make([]map[string]string, 0, len(result)+len(unmapped))
	rows = appendRows(rows, result)
	return appendRows(rows, unmapped)
}

func appendRows(rows []map[string]string, result map[string]any) []map[string]string {
	keys := make([]string, 0, len(result))
	for key := range result {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		rows = append(rows, map[string]string{"key": key, "value": model.StringValue(result[key])})
	}
	return rows
}

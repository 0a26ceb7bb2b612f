// Package tui fills a calculation form interactively in the terminal.
package tui

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"

	"github.com/goliatone/go-carbonform/pkg/calculate"
	"github.com/goliatone/go-carbonform/pkg/fieldtype"
	"github.com/goliatone/go-carbonform/pkg/mapper"
	"github.com/goliatone/go-carbonform/pkg/model"
	"github.com/goliatone/go-carbonform/pkg/orchestrator"
	"github.com/goliatone/go-carbonform/pkg/validation"
)

const skipOption = "(skip)"

var (
	plainTextOnce   sync.Once
	plainTextPolicy *bluemonday.Policy
)

func plainText(markup string) string {
	plainTextOnce.Do(func() {
		plainTextPolicy = bluemonday.StrictPolicy()
	})
	return strings.TrimSpace(html.UnescapeString(plainTextPolicy.Sanitize(markup)))
}

// Option configures a Session.
type Option func(*Session)

// WithPromptDriver overrides the prompt driver.
func WithPromptDriver(driver PromptDriver) Option {
	return func(s *Session) {
		if driver != nil {
			s.driver = driver
		}
	}
}

// WithClassifier overrides the classifier used by input validators.
func WithClassifier(classifier validation.Classifier) Option {
	return func(s *Session) {
		if classifier != nil {
			s.classifier = classifier
		}
	}
}

// Session walks the visible fields of a category, then submits.
type Session struct {
	orch       *orchestrator.Orchestrator
	driver     PromptDriver
	classifier validation.Classifier
}

// NewSession binds a session to orch. The default driver uses survey on
// stdin/stdout.
func NewSession(orch *orchestrator.Orchestrator, options ...Option) (*Session, error) {
	if orch == nil {
		return nil, errors.New("tui: orchestrator is required")
	}
	s := &Session{orch: orch}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(s)
	}
	if s.driver == nil {
		s.driver = NewSurveyDriver(nil)
	}
	if s.classifier == nil {
		s.classifier = fieldtype.NewClassifier()
	}
	return s, nil
}

// ChooseCategory asks the user to pick one of the schema's categories.
func (s *Session) ChooseCategory(ctx context.Context, formSchema model.FormSchema) (string, error) {
	keys := formSchema.Keys()
	if len(keys) == 0 {
		return "", ErrNoCategories
	}
	labels := make([]string, len(keys))
	for i, key := range keys {
		labels[i] = fmt.Sprintf("%s (%s)", formSchema[key].Title, key)
	}
	idx, err := s.driver.Select(ctx, SelectConfig{Message: "Category", Options: labels, PageSize: 15})
	if err != nil {
		return "", err
	}
	if idx < 0 || idx >= len(keys) {
		return "", fmt.Errorf("tui: invalid category selection %d", idx)
	}
	return keys[idx], nil
}

// Run selects category, prompts each visible field in order and submits.
// The mapped result is printed and returned.
func (s *Session) Run(ctx context.Context, category string) (mapper.Result, error) {
	selected, err := s.orch.SelectCategory(ctx, category)
	if err != nil {
		return mapper.Result{}, err
	}

	if err := s.driver.Info(ctx, selected.Title); err != nil {
		return mapper.Result{}, err
	}
	if text := plainText(selected.Instructions); text != "" {
		if err := s.driver.Info(ctx, text); err != nil {
			return mapper.Result{}, err
		}
	}

	for _, field := range selected.Fields {
		if !s.orch.Visible(field.Name) {
			continue
		}
		if err := s.promptField(ctx, field); err != nil {
			return mapper.Result{}, err
		}
	}

	result, err := s.orch.Submit(ctx)
	if err != nil {
		s.reportError(ctx, err)
		return mapper.Result{}, err
	}
	if err := s.printResult(ctx, result); err != nil {
		return mapper.Result{}, err
	}
	return result, nil
}

func (s *Session) promptField(ctx context.Context, field model.FieldDescriptor) error {
	label := field.Label()
	if field.Required {
		label += " *"
	}

	if options := s.orch.Options(field.Name); len(options) > 0 {
		choices := options
		if !field.Required {
			choices = append([]string{skipOption}, options...)
		}
		idx, err := s.driver.Select(ctx, SelectConfig{Message: label, Options: choices, Help: field.Description})
		if err != nil {
			return err
		}
		if idx < 0 || idx >= len(choices) || choices[idx] == skipOption {
			return nil
		}
		_, err = s.orch.UpdateField(field.Name, choices[idx])
		return err
	}

	answer, err := s.driver.Input(ctx, InputConfig{
		Message: label,
		Help:    field.Description,
		Validator: func(value string) error {
			result := validation.ValidateField(field, strings.TrimSpace(value), s.classifier)
			if !result.Valid {
				return errors.New(result.Error)
			}
			return nil
		},
	})
	if err != nil {
		return err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil
	}
	_, err = s.orch.UpdateField(field.Name, answer)
	return err
}

func (s *Session) reportError(ctx context.Context, err error) {
	var validationErr *orchestrator.ValidationError
	var backendErr *calculate.BackendError
	var networkErr *calculate.NetworkError

	switch {
	case errors.As(err, &validationErr):
		for _, issue := range validationErr.Issues {
			_ = s.driver.Info(ctx, "  "+issue.Message)
		}
	case errors.As(err, &backendErr):
		_ = s.driver.Info(ctx, "Calculation rejected: "+s.orch.Store().State().Submission.Error)
		for name, field := range s.orch.Store().State().Fields {
			if field.Error != "" {
				_ = s.driver.Info(ctx, fmt.Sprintf("  %s: %s", name, field.Error))
			}
		}
	case errors.As(err, &networkErr):
		_ = s.driver.Info(ctx, "Calculation service unreachable, try again later.")
	}
}

func (s *Session) printResult(ctx context.Context, result mapper.Result) error {
	if err := s.driver.Info(ctx, "Result:"); err != nil {
		return err
	}
	for _, rows := range []map[string]any{result.Values, result.Unmapped} {
		keys := make([]string, 0, len(rows))
		for key := range rows {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if err := s.driver.Info(ctx, fmt.Sprintf("  %s: %s", key, model.StringValue(rows[key]))); err != nil {
				return err
			}
		}
	}
	return nil
}

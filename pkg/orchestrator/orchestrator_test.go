package orchestrator_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-carbonform/pkg/calculate"
	"github.com/goliatone/go-carbonform/pkg/formstate"
	"github.com/goliatone/go-carbonform/pkg/model"
	"github.com/goliatone/go-carbonform/pkg/orchestrator"
	"github.com/goliatone/go-carbonform/pkg/schema"
	"github.com/goliatone/go-carbonform/pkg/validation"
)

type schemaFunc func(ctx context.Context) (model.FormSchema, error)

func (fn schemaFunc) Fetch(ctx context.Context) (model.FormSchema, error) { return fn(ctx) }

type calculatorFunc func(ctx context.Context, category string, payload map[string]any) (map[string]any, error)

func (fn calculatorFunc) Calculate(ctx context.Context, category string, payload map[string]any) (map[string]any, error) {
	return fn(ctx, category, payload)
}

func testSchema() model.FormSchema {
	return model.FormSchema{
		"fuel": {
			Key:   "fuel",
			Title: "Fuel",
			Fields: []model.FieldDescriptor{
				{Name: "amount", Title: "Amount", Required: true},
				{Name: "date", Title: "Date", Required: true},
				{Name: "type", Title: "Type"},
			},
		},
		"electricity": {
			Key:    "electricity",
			Title:  "Electricity",
			Fields: []model.FieldDescriptor{{Name: "kwh", Title: "Consumption", Required: true}},
		},
	}
}

func staticSchema() orchestrator.SchemaSource {
	return schemaFunc(func(context.Context) (model.FormSchema, error) {
		return testSchema(), nil
	})
}

func TestSubmit_InvalidFormDoesNotCallBackend(t *testing.T) {
	var calls atomic.Int32
	calc := calculatorFunc(func(context.Context, string, map[string]any) (map[string]any, error) {
		calls.Add(1)
		return nil, nil
	})
	o := orchestrator.New(staticSchema(), orchestrator.WithCalculator(calc))

	if _, err := o.SelectCategory(context.Background(), "fuel"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if _, err := o.UpdateField("amount", "10.5"); err != nil {
		t.Fatalf("update: %v", err)
	}

	_, err := o.Submit(context.Background())
	var validationErr *orchestrator.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	want := []validation.FieldIssue{
		{Field: "amount", Message: "Amount must be a whole number"},
		{Field: "date", Message: "Date is required"},
	}
	if diff := cmp.Diff(want, validationErr.Issues); diff != "" {
		t.Fatalf("issues mismatch (-want +got):\n%s", diff)
	}
	if calls.Load() != 0 {
		t.Fatalf("expected no calculation request, got %d", calls.Load())
	}

	store := o.Store()
	if store.FieldError("date") != "Date is required" || !store.IsTouched("date") {
		t.Fatalf("expected date error recorded and touched")
	}
	if store.IsFormValid() {
		t.Fatalf("expected form invalid")
	}
}

func TestSubmit_Success(t *testing.T) {
	var gotPayload map[string]any
	var gotRequestID string
	calc := calculatorFunc(func(ctx context.Context, category string, payload map[string]any) (map[string]any, error) {
		gotPayload = payload
		gotRequestID = calculate.RequestIDFromContext(ctx)
		return map[string]any{"AMOUNT": float64(50), "END_DATE": "2024-01-31", "co2e": 12.5}, nil
	})
	o := orchestrator.New(staticSchema(), orchestrator.WithCalculator(calc))
	ctx := context.Background()

	if _, err := o.SelectCategory(ctx, "fuel"); err != nil {
		t.Fatalf("select: %v", err)
	}
	mustUpdate(t, o, "amount", "50")
	mustUpdate(t, o, "date", "2024-01-31")

	result, err := o.Submit(ctx)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if diff := cmp.Diff(map[string]any{"amount": "50", "date": "2024-01-31", "category": "fuel"}, gotPayload); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
	if gotRequestID == "" {
		t.Fatalf("expected request id propagated")
	}
	if diff := cmp.Diff(map[string]any{"amount": float64(50), "date": "2024-01-31"}, result.Values); diff != "" {
		t.Fatalf("values mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]any{"co2e": 12.5}, result.Unmapped); diff != "" {
		t.Fatalf("unmapped mismatch (-want +got):\n%s", diff)
	}

	sub := o.Store().State().Submission
	if sub.Status != formstate.StatusSucceeded || sub.Unmapped["co2e"] != 12.5 {
		t.Fatalf("unexpected submission %+v", sub)
	}
}

func TestSubmit_BackendFieldErrors(t *testing.T) {
	calc := calculatorFunc(func(context.Context, string, map[string]any) (map[string]any, error) {
		return nil, &calculate.BackendError{
			StatusCode: 422,
			Code:       "invalid_input",
			Message:    "Invalid input",
			Fields:     map[string][]string{"AMOUNT": {"Amount exceeds the factor range"}, "base": {"Check your inputs"}},
		}
	})
	o := orchestrator.New(staticSchema(), orchestrator.WithCalculator(calc))
	ctx := context.Background()
	if _, err := o.SelectCategory(ctx, "fuel"); err != nil {
		t.Fatalf("select: %v", err)
	}
	mustUpdate(t, o, "amount", "50")
	mustUpdate(t, o, "date", "2024-01-31")

	_, err := o.Submit(ctx)
	var backendErr *calculate.BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("expected BackendError, got %v", err)
	}

	store := o.Store()
	if got := store.FieldError("amount"); got != "Amount exceeds the factor range" {
		t.Fatalf("expected backend error on amount, got %q", got)
	}
	sub := store.State().Submission
	if sub.Status != formstate.StatusFailed || sub.Error != "Invalid input; Check your inputs" {
		t.Fatalf("unexpected submission %+v", sub)
	}
}

func TestSubmit_StaleResponseIsDropped(t *testing.T) {
	var o *orchestrator.Orchestrator
	calc := calculatorFunc(func(context.Context, string, map[string]any) (map[string]any, error) {
		// the user switches category while the request is in flight
		o.Store().SetCategory("electricity")
		return map[string]any{"co2e": 1.0}, nil
	})
	o = orchestrator.New(staticSchema(), orchestrator.WithCalculator(calc))
	ctx := context.Background()
	if _, err := o.SelectCategory(ctx, "fuel"); err != nil {
		t.Fatalf("select: %v", err)
	}
	mustUpdate(t, o, "amount", "50")
	mustUpdate(t, o, "date", "2024-01-31")

	if _, err := o.Submit(ctx); !errors.Is(err, orchestrator.ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
	if sub := o.Store().State().Submission; sub.Status != formstate.StatusIdle {
		t.Fatalf("expected stale result not applied, got %+v", sub)
	}
}

func TestSelectCategory_StaleSchemaIsDropped(t *testing.T) {
	store := formstate.New()
	source := schemaFunc(func(context.Context) (model.FormSchema, error) {
		store.SetCategory("electricity")
		return testSchema(), nil
	})
	o := orchestrator.New(source, orchestrator.WithStore(store))

	if _, err := o.SelectCategory(context.Background(), "fuel"); !errors.Is(err, orchestrator.ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
	if _, ok := o.Category(); ok {
		t.Fatalf("expected no category applied")
	}
}

func TestSelectCategory_Errors(t *testing.T) {
	failing := schemaFunc(func(context.Context) (model.FormSchema, error) {
		return nil, schema.ErrSchemaUnavailable
	})
	if _, err := orchestrator.New(failing).SelectCategory(context.Background(), "fuel"); !errors.Is(err, schema.ErrSchemaUnavailable) {
		t.Fatalf("expected ErrSchemaUnavailable, got %v", err)
	}

	o := orchestrator.New(staticSchema())
	if _, err := o.SelectCategory(context.Background(), "water"); !errors.Is(err, orchestrator.ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
	if _, err := o.UpdateField("amount", "1"); !errors.Is(err, orchestrator.ErrNoCategory) {
		t.Fatalf("expected ErrNoCategory, got %v", err)
	}
}

func TestSelectCategory_FailedSwitchDropsPreviousCategory(t *testing.T) {
	cases := map[string]struct {
		key  string
		fail bool
		want error
	}{
		"schema unavailable": {key: "electricity", fail: true, want: schema.ErrSchemaUnavailable},
		"unknown category":   {key: "water", want: orchestrator.ErrUnknownCategory},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var failing atomic.Bool
			source := schemaFunc(func(context.Context) (model.FormSchema, error) {
				if failing.Load() {
					return nil, schema.ErrSchemaUnavailable
				}
				return testSchema(), nil
			})
			var calls atomic.Int32
			calc := calculatorFunc(func(context.Context, string, map[string]any) (map[string]any, error) {
				calls.Add(1)
				return map[string]any{}, nil
			})
			o := orchestrator.New(source, orchestrator.WithCalculator(calc))
			ctx := context.Background()

			if _, err := o.SelectCategory(ctx, "fuel"); err != nil {
				t.Fatalf("select: %v", err)
			}
			mustUpdate(t, o, "amount", "50")
			mustUpdate(t, o, "date", "2024-01-31")

			failing.Store(tc.fail)
			if _, err := o.SelectCategory(ctx, tc.key); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if got := o.Store().Category(); got != tc.key {
				t.Fatalf("expected store on %q, got %q", tc.key, got)
			}
			if _, ok := o.Category(); ok {
				t.Fatalf("expected no category selected after failed switch")
			}
			if _, err := o.UpdateField("amount", "1"); !errors.Is(err, orchestrator.ErrNoCategory) {
				t.Fatalf("expected ErrNoCategory from update, got %v", err)
			}
			if _, err := o.Submit(ctx); !errors.Is(err, orchestrator.ErrNoCategory) {
				t.Fatalf("expected ErrNoCategory from submit, got %v", err)
			}
			if calls.Load() != 0 {
				t.Fatalf("expected no calculation request, got %d", calls.Load())
			}
		})
	}
}

func TestSelectCategory_SwitchClearsValues(t *testing.T) {
	o := orchestrator.New(staticSchema())
	ctx := context.Background()
	if _, err := o.SelectCategory(ctx, "fuel"); err != nil {
		t.Fatalf("select: %v", err)
	}
	mustUpdate(t, o, "amount", "50")

	if _, err := o.SelectCategory(ctx, "electricity"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if o.Store().FieldValue("amount") != nil {
		t.Fatalf("expected values cleared on category switch")
	}
	if _, err := o.UpdateField("amount", "1"); !errors.Is(err, orchestrator.ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
}

func TestFieldLifecycle(t *testing.T) {
	o := orchestrator.New(staticSchema())
	if _, err := o.SelectCategory(context.Background(), "fuel"); err != nil {
		t.Fatalf("select: %v", err)
	}

	result, err := o.UpdateField("amount", "")
	if err != nil || !result.Valid {
		t.Fatalf("expected empty value valid while typing, got %+v %v", result, err)
	}
	result, _ = o.TouchField("amount")
	if result.Valid || result.Error != "Amount is required" {
		t.Fatalf("expected required error on touch, got %+v", result)
	}

	result, _ = o.UpdateField("amount", "12.5")
	if result.Valid || o.Store().FieldError("amount") != "Amount must be a whole number" {
		t.Fatalf("expected whole number error, got %+v", result)
	}

	result, _ = o.UpdateField("amount", "12")
	if !result.Valid || o.Store().FieldError("amount") != "" {
		t.Fatalf("expected valid amount, got %+v", result)
	}
}

func TestOptionsAndVisibility(t *testing.T) {
	o := orchestrator.New(staticSchema())
	o.SetFactors([]model.EmissionFactor{
		{"type": "Road", "uom": "litres"},
		{"type": "Marine", "uom": "tonnes"},
	})
	if _, err := o.SelectCategory(context.Background(), "fuel"); err != nil {
		t.Fatalf("select: %v", err)
	}

	if diff := cmp.Diff([]string{"Marine", "Road"}, o.Options("type")); diff != "" {
		t.Fatalf("options mismatch (-want +got):\n%s", diff)
	}
	if !o.Visible("amount") || !o.Visible("type") {
		t.Fatalf("expected fields visible")
	}
	if got := len(o.VisibleFields()); got != 3 {
		t.Fatalf("expected 3 visible fields, got %d", got)
	}
}

func TestApplySchema_RefreshesTitles(t *testing.T) {
	o := orchestrator.New(staticSchema())
	if _, err := o.SelectCategory(context.Background(), "fuel"); err != nil {
		t.Fatalf("select: %v", err)
	}
	mustUpdate(t, o, "amount", "5")

	pushed := testSchema()
	fuel := pushed["fuel"]
	fuel.Title = "Fuel combustion"
	pushed["fuel"] = fuel
	o.ApplySchema(pushed)

	category, _ := o.Category()
	if category.Title != "Fuel combustion" {
		t.Fatalf("expected refreshed title, got %q", category.Title)
	}
	if o.Store().FieldValue("amount") != "5" {
		t.Fatalf("expected values to survive a schema push")
	}
}

func mustUpdate(t *testing.T, o *orchestrator.Orchestrator, name string, value any) {
	t.Helper()
	result, err := o.UpdateField(name, value)
	if err != nil {
		t.Fatalf("update %s: %v", name, err)
	}
	if !result.Valid {
		t.Fatalf("update %s: unexpected error %q", name, result.Error)
	}
}

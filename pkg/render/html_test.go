package render_test

import (
	"strings"
	"testing"
	"testing/fstest"

	"github.com/goliatone/go-carbonform/pkg/formstate"
	"github.com/goliatone/go-carbonform/pkg/model"
	"github.com/goliatone/go-carbonform/pkg/render"
	"github.com/goliatone/go-carbonform/pkg/visibility"
)

func TestHTMLRenderer_Render(t *testing.T) {
	renderer, err := render.NewHTMLRenderer()
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}

	category := fuelCategory()
	category.Instructions = "<p>Enter <b>fuel</b> use</p>"
	category.Fields = append(category.Fields, model.FieldDescriptor{Name: "uom", Title: "Unit"})

	store := formstate.New()
	store.SetCategory("fuel")
	store.SetFieldValue("type", "Road")
	store.SetFieldValue("amount", "10.5")
	store.SetFieldError("amount", "Amount must be a whole number")

	resolver := visibility.NewResolver([]model.EmissionFactor{
		{"type": "Road", "uom": "litres"},
		{"type": "Marine", "uom": "tonnes"},
	})

	html, err := renderer.Render(category, store.State(), resolver)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	for _, want := range []string{
		`data-category="fuel"`,
		`<p>Enter <b>fuel</b> use</p>`,
		`name="amount" type="number" value="10.5" required step="1" min="0"`,
		`name="date" type="date"`,
		`Amount must be a whole number`,
		`<option value="Road" selected>Road</option>`,
		`<option value="litres">litres</option>`,
	} {
		if !strings.Contains(html, want) {
			t.Fatalf("expected output to contain %q\n%s", want, html)
		}
	}
	if strings.Contains(html, "tonnes") {
		t.Fatalf("expected uom options filtered by type\n%s", html)
	}
}

func TestHTMLRenderer_HidesFieldsWithoutOptions(t *testing.T) {
	renderer, err := render.NewHTMLRenderer()
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	resolver := visibility.NewResolver([]model.EmissionFactor{{"category": "Petrol", "type": "Road"}})

	store := formstate.New()
	store.SetFieldValue("category", "Diesel")
	category := model.FormCategory{Key: "fuel", Title: "Fuel", Fields: []model.FieldDescriptor{
		{Name: "category", Title: "Category"},
		{Name: "type", Title: "Type"},
		{Name: "amount", Title: "Amount"},
	}}

	html, err := renderer.Render(category, store.State(), resolver)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(html, `data-field="type"`) {
		t.Fatalf("expected type hidden when no factor matches\n%s", html)
	}
	if !strings.Contains(html, `data-field="amount"`) {
		t.Fatalf("expected free input rendered\n%s", html)
	}
}

func TestHTMLRenderer_SubmissionAndCustomTemplates(t *testing.T) {
	files := fstest.MapFS{
		"form.tmpl": {Data: []byte(`{{ form.key }}|{% for row in result %}{{ row.key }}={{ row.value }};{% endfor %}|{% for message in form.errors %}{{ message }}{% endfor %}`)},
	}
	renderer, err := render.NewHTMLRenderer(render.WithTemplates(files))
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}

	store := formstate.New()
	store.SetCategory("fuel")
	store.SetSubmitResult(map[string]any{"co2e": 12.5, "amount": "50"}, nil)

	html, err := renderer.Render(fuelCategory(), store.State(), nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if html != "fuel|amount=50;co2e=12.5;|" {
		t.Fatalf("unexpected output %q", html)
	}

	store.SetSubmitError("Backend unavailable")
	html, _ = renderer.Render(fuelCategory(), store.State(), nil)
	if html != "fuel||Backend unavailable" {
		t.Fatalf("unexpected output %q", html)
	}
}

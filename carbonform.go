// Package carbonform re-exports the pieces most callers need to embed the
// form engine: schema and factor loading, the orchestrator and the HTML
// renderer.
package carbonform

import (
	"context"

	"github.com/goliatone/go-carbonform/pkg/calculate"
	"github.com/goliatone/go-carbonform/pkg/factors"
	"github.com/goliatone/go-carbonform/pkg/model"
	"github.com/goliatone/go-carbonform/pkg/orchestrator"
	"github.com/goliatone/go-carbonform/pkg/render"
	"github.com/goliatone/go-carbonform/pkg/schema"
	"github.com/goliatone/go-carbonform/pkg/visibility"
)

// FormSchema maps category keys to their form definitions.
type FormSchema = model.FormSchema

// FormCategory is one calculation category.
type FormCategory = model.FormCategory

// FieldDescriptor is one input of a category.
type FieldDescriptor = model.FieldDescriptor

// EmissionFactor is one row of the factor table.
type EmissionFactor = model.EmissionFactor

// DocumentStore reads and watches remote documents.
type DocumentStore = schema.Store

// NewOrchestrator wires a schema fetcher over store, a resolver over
// records and, when baseURL is set, a calculation client.
func NewOrchestrator(store DocumentStore, records []EmissionFactor, baseURL string, options ...orchestrator.Option) (*orchestrator.Orchestrator, error) {
	opts := []orchestrator.Option{orchestrator.WithResolver(visibility.NewResolver(records))}
	if baseURL != "" {
		client, err := calculate.New(baseURL)
		if err != nil {
			return nil, err
		}
		opts = append(opts, orchestrator.WithCalculator(client))
	}
	return orchestrator.New(schema.New(store), append(opts, options...)...), nil
}

// LoadSchema fetches and decodes the form schema stored at schema.DefaultPath.
func LoadSchema(ctx context.Context, store DocumentStore) (FormSchema, error) {
	return schema.New(store).Fetch(ctx)
}

// LoadFactors fetches and decodes the factor table stored at
// factors.DefaultPath.
func LoadFactors(ctx context.Context, store DocumentStore) ([]EmissionFactor, error) {
	return factors.Load(ctx, store, factors.DefaultPath)
}

// RenderHTML renders category with its current state and the options the
// orchestrator's resolver allows.
func RenderHTML(o *orchestrator.Orchestrator) (string, error) {
	category, ok := o.Category()
	if !ok {
		return "", orchestrator.ErrNoCategory
	}
	renderer, err := render.NewHTMLRenderer()
	if err != nil {
		return "", err
	}
	return renderer.Render(category, o.Store().State(), o.Resolver())
}

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/goliatone/go-carbonform/pkg/calculate"
	"github.com/goliatone/go-carbonform/pkg/fieldtype"
	"github.com/goliatone/go-carbonform/pkg/formstate"
	"github.com/goliatone/go-carbonform/pkg/mapper"
	"github.com/goliatone/go-carbonform/pkg/model"
	"github.com/goliatone/go-carbonform/pkg/render"
	"github.com/goliatone/go-carbonform/pkg/validation"
	"github.com/goliatone/go-carbonform/pkg/visibility"
)

var (
	// ErrStale reports an async result that arrived after the category
	// changed or the form was cleared. The result was not applied.
	ErrStale = errors.New("orchestrator: result is stale")
	// ErrNoCategory is returned when an operation needs a selected category.
	ErrNoCategory = errors.New("orchestrator: no category selected")
	// ErrUnknownCategory is returned when the schema has no such category.
	ErrUnknownCategory = errors.New("orchestrator: unknown category")
	// ErrUnknownField is returned for names the category does not declare.
	ErrUnknownField = errors.New("orchestrator: unknown field")
	// ErrNoCalculator is returned by Submit when no client is configured.
	ErrNoCalculator = errors.New("orchestrator: calculator is not configured")
)

// ValidationError lists the field issues that blocked a submission.
type ValidationError struct {
	Issues []validation.FieldIssue
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Issues) == 0 {
		return "orchestrator: validation failed"
	}
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.Message)
	}
	return "orchestrator: validation failed: " + strings.Join(parts, "; ")
}

// SchemaSource provides the form schema. *schema.Fetcher satisfies it.
type SchemaSource interface {
	Fetch(ctx context.Context) (model.FormSchema, error)
}

// Option customises the orchestrator.
type Option func(*Orchestrator)

// WithStore injects the form state store.
func WithStore(store *formstate.Store) Option {
	return func(o *Orchestrator) {
		if store != nil {
			o.store = store
		}
	}
}

// WithClassifier injects the field type classifier.
func WithClassifier(classifier validation.Classifier) Option {
	return func(o *Orchestrator) {
		if classifier != nil {
			o.classifier = classifier
		}
	}
}

// WithCalculator injects the backend client used by Submit.
func WithCalculator(calculator calculate.Calculator) Option {
	return func(o *Orchestrator) {
		o.calculator = calculator
	}
}

// WithResolver injects the emission factor resolver.
func WithResolver(resolver *visibility.Resolver) Option {
	return func(o *Orchestrator) {
		if resolver != nil {
			o.resolver = resolver
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	schema     SchemaSource
	store      *formstate.Store
	classifier validation.Classifier
	calculator calculate.Calculator
	resolver   *visibility.Resolver
	logger     *zap.Logger

	mu         sync.RWMutex
	formSchema model.FormSchema
	category   model.FormCategory
	selected   bool
}

// New constructs an orchestrator reading schemas from source. Missing
// dependencies default to a fresh store, the built-in classifier and an empty
// resolver.
func New(source SchemaSource, options ...Option) *Orchestrator {
	o := &Orchestrator{
		schema: source,
		logger: zap.NewNop(),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(o)
	}
	if o.store == nil {
		o.store = formstate.New()
	}
	if o.classifier == nil {
		o.classifier = fieldtype.NewClassifier()
	}
	if o.resolver == nil {
		o.resolver = visibility.NewResolver(nil)
	}
	return o
}

// Store exposes the form state store.
func (o *Orchestrator) Store() *formstate.Store {
	return o.store
}

// Resolver exposes the emission factor resolver.
func (o *Orchestrator) Resolver() *visibility.Resolver {
	return o.resolver
}

// SetFactors replaces the emission factor snapshot.
func (o *Orchestrator) SetFactors(factors []model.EmissionFactor) {
	o.resolver.Replace(factors)
}

// Category returns the selected category descriptor. A descriptor that no
// longer matches the store's category is not reported.
func (o *Orchestrator) Category() (model.FormCategory, bool) {
	active := o.store.Category()
	o.mu.RLock()
	defer o.mu.RUnlock()
	if !o.selected || o.category.Key != active {
		return model.FormCategory{}, false
	}
	return o.category, true
}

// Schema returns the last schema the orchestrator applied.
func (o *Orchestrator) Schema() model.FormSchema {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.formSchema.Clone()
}

// SelectCategory switches the store to key, discarding field state when the
// key changes, then loads the schema. If another selection or a clear
// happened while the schema was loading, ErrStale is returned and nothing is
// applied. Any other failure leaves no category selected.
func (o *Orchestrator) SelectCategory(ctx context.Context, key string) (model.FormCategory, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return model.FormCategory{}, ErrNoCategory
	}
	if o.schema == nil {
		return model.FormCategory{}, errors.New("orchestrator: schema source is not configured")
	}

	o.store.SetCategory(key)
	ticket := o.store.Ticket()

	formSchema, err := o.schema.Fetch(ctx)
	if !o.store.Current(ticket) {
		o.logger.Debug("discarding stale schema", zap.String("category", key), zap.String("ticket", ticket.ID.String()))
		return model.FormCategory{}, ErrStale
	}
	if err != nil {
		o.deselect(nil)
		return model.FormCategory{}, err
	}

	category, ok := formSchema.Category(key)
	if !ok {
		o.deselect(formSchema)
		return model.FormCategory{}, fmt.Errorf("%w: %q", ErrUnknownCategory, key)
	}

	o.mu.Lock()
	o.formSchema = formSchema
	o.category = category
	o.selected = true
	o.mu.Unlock()
	return category, nil
}

func (o *Orchestrator) deselect(formSchema model.FormSchema) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if formSchema != nil {
		o.formSchema = formSchema
	}
	o.category = model.FormCategory{}
	o.selected = false
}

// ApplySchema refreshes the selected category from a pushed schema. Field
// names are stable, so entered values survive; titles and descriptions are
// replaced. It is shaped to be used as a schema.Listener.
func (o *Orchestrator) ApplySchema(formSchema model.FormSchema) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.formSchema = formSchema
	if !o.selected {
		return
	}
	if category, ok := formSchema.Category(o.category.Key); ok {
		o.category = category
	}
}

func (o *Orchestrator) field(name string) (model.FieldDescriptor, error) {
	category, ok := o.Category()
	if !ok {
		return model.FieldDescriptor{}, ErrNoCategory
	}
	field, ok := category.Field(name)
	if !ok {
		return model.FieldDescriptor{}, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	return field, nil
}

// UpdateField stores value and records the type check result. Required-ness
// is left to TouchField, ValidateField and Submit so an empty field does not
// error while the user is still typing.
func (o *Orchestrator) UpdateField(name string, value any) (validation.Result, error) {
	field, err := o.field(name)
	if err != nil {
		return validation.Result{}, err
	}
	o.store.SetFieldValue(field.Name, value)

	cfg := o.classifier.Classify(field.Name, field.Title)
	result := validation.Validate(value, cfg, field.Label())
	if !result.Valid {
		o.store.SetFieldError(field.Name, result.Error)
	}
	return result, nil
}

// TouchField marks name touched and validates it.
func (o *Orchestrator) TouchField(name string) (validation.Result, error) {
	if _, err := o.field(name); err != nil {
		return validation.Result{}, err
	}
	o.store.SetFieldTouched(name, true)
	return o.ValidateField(name)
}

// ValidateField applies the required and type checks to the stored value and
// records the outcome.
func (o *Orchestrator) ValidateField(name string) (validation.Result, error) {
	field, err := o.field(name)
	if err != nil {
		return validation.Result{}, err
	}
	result := validation.ValidateField(field, o.store.FieldValue(field.Name), o.classifier)
	o.store.SetFieldError(field.Name, result.Error)
	return result, nil
}

// Options returns the legal values of name under the current values.
func (o *Orchestrator) Options(name string) []string {
	return o.resolver.Options(name, o.store.SnapshotFormData())
}

// Visible reports whether name should be shown under the current values.
func (o *Orchestrator) Visible(name string) bool {
	return o.resolver.Visible(name, o.store.SnapshotFormData())
}

// VisibleFields returns the selected category's fields that are visible, in
// schema order.
func (o *Orchestrator) VisibleFields() []model.FieldDescriptor {
	category, ok := o.Category()
	if !ok {
		return nil
	}
	current := o.store.SnapshotFormData()
	out := make([]model.FieldDescriptor, 0, len(category.Fields))
	for _, field := range category.Fields {
		if o.resolver.Visible(field.Name, current) {
			out = append(out, field)
		}
	}
	return out
}

// Submit validates every field and, when the form is valid, sends it to the
// calculator. Invalid forms return *ValidationError without any request.
// Backend field errors are mapped onto the form; a response arriving after
// the form moved on is dropped with ErrStale.
func (o *Orchestrator) Submit(ctx context.Context) (mapper.Result, error) {
	category, ok := o.Category()
	if !ok {
		return mapper.Result{}, ErrNoCategory
	}

	values := o.store.SnapshotFormData()
	issues := validation.ValidateForm(category, values, o.classifier)
	failing := validation.IssueMap(issues)
	for _, field := range category.Fields {
		o.store.SetFieldTouched(field.Name, true)
		o.store.SetFieldError(field.Name, failing[field.Name])
	}
	if len(issues) > 0 {
		return mapper.Result{}, &ValidationError{Issues: issues}
	}
	if o.calculator == nil {
		return mapper.Result{}, ErrNoCalculator
	}

	ticket := o.store.Ticket()
	o.store.SetSubmitting()

	logger := o.logger.With(zap.String("category", category.Key), zap.String("ticket", ticket.ID.String()))
	ctx = calculate.ContextWithRequestID(ctx, ticket.ID.String())
	payload := mapper.ToBackendPayload(category.Key, values)
	data, err := o.calculator.Calculate(ctx, category.Key, payload)
	if !o.store.Current(ticket) {
		logger.Debug("discarding stale calculation result")
		return mapper.Result{}, ErrStale
	}
	if err != nil {
		o.applyBackendError(category, err)
		logger.Info("calculation failed", zap.Error(err))
		return mapper.Result{}, err
	}

	result := mapper.MapResponse(category.Key, data, o.Schema())
	o.store.SetSubmitResult(result.Values, result.Unmapped)
	if len(result.Unmapped) > 0 {
		logger.Debug("backend returned unmapped keys", zap.Int("count", len(result.Unmapped)))
	}
	return result, nil
}

func (o *Orchestrator) applyBackendError(category model.FormCategory, err error) {
	var backendErr *calculate.BackendError
	if !errors.As(err, &backendErr) {
		o.store.SetSubmitError(err.Error())
		return
	}

	mapping := render.MapErrorPayload(category, backendErr.Fields)
	for name, message := range mapping.FirstErrors() {
		o.store.SetFieldError(name, message)
	}
	message := backendErr.Message
	if message == "" {
		message = backendErr.Error()
	}
	o.store.SetSubmitError(strings.Join(render.MergeFormErrors([]string{message}, mapping.Form...), "; "))
}

// Reset clears the form and the selected category.
func (o *Orchestrator) Reset() {
	o.store.ClearAllAndCategory()
	o.mu.Lock()
	o.category = model.FormCategory{}
	o.selected = false
	o.mu.Unlock()
}

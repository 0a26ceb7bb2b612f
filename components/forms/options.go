package forms

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/goliatone/go-carbonform/pkg/model"
	"github.com/goliatone/go-carbonform/pkg/render"
	"github.com/goliatone/go-carbonform/pkg/visibility"
)

// SchemaSource supplies the current form schema.
type SchemaSource interface {
	Fetch(ctx context.Context) (model.FormSchema, error)
}

type GuardFunc func(r *http.Request) error

type Options struct {
	SchemaPath  string
	OptionsPath string
	PagePrefix  string
	Guard       GuardFunc

	Schema   SchemaSource
	Resolver *visibility.Resolver
	Renderer *render.HTMLRenderer
	Logger   *zap.Logger
}

type OptionFn func(*Options)

func DefaultOptions() Options {
	return Options{
		SchemaPath:  "/api/forms",
		OptionsPath: "/api/forms/options",
		PagePrefix:  "/forms/",
	}
}

func NewOptions(fns ...OptionFn) Options {
	opts := DefaultOptions()
	for _, fn := range fns {
		if fn == nil {
			continue
		}
		fn(&opts)
	}
	defaults := DefaultOptions()
	if opts.SchemaPath == "" {
		opts.SchemaPath = defaults.SchemaPath
	}
	if opts.OptionsPath == "" {
		opts.OptionsPath = defaults.OptionsPath
	}
	if opts.PagePrefix == "" {
		opts.PagePrefix = defaults.PagePrefix
	}
	if opts.Resolver == nil {
		opts.Resolver = visibility.NewResolver(nil)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return opts
}

func WithGuard(guard GuardFunc) OptionFn {
	return func(o *Options) {
		if o == nil {
			return
		}
		o.Guard = guard
	}
}

func WithSchema(source SchemaSource) OptionFn {
	return func(o *Options) {
		if o == nil {
			return
		}
		o.Schema = source
	}
}

// WithResolver shares the factor resolver used for options and visibility.
func WithResolver(resolver *visibility.Resolver) OptionFn {
	return func(o *Options) {
		if o == nil {
			return
		}
		o.Resolver = resolver
	}
}

func WithRenderer(renderer *render.HTMLRenderer) OptionFn {
	return func(o *Options) {
		if o == nil {
			return
		}
		o.Renderer = renderer
	}
}

func WithLogger(logger *zap.Logger) OptionFn {
	return func(o *Options) {
		if o == nil {
			return
		}
		o.Logger = logger
	}
}

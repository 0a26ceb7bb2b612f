package calculate

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	pkgcalculate "github.com/goliatone/go-carbonform/pkg/calculate"
	"github.com/goliatone/go-carbonform/pkg/model"
	"github.com/goliatone/go-carbonform/pkg/validation"
)

// DefaultRoutePath is where the handler mounts when no route is configured.
const DefaultRoutePath = "/api/calculate"

// DefaultMaxBodyBytes caps POST bodies.
const DefaultMaxBodyBytes int64 = 1 << 20

// SchemaSource supplies the current form schema.
type SchemaSource interface {
	Fetch(ctx context.Context) (model.FormSchema, error)
}

// GuardFunc runs before every request; a non-nil error rejects it.
type GuardFunc func(r *http.Request) error

type Options struct {
	RoutePath    string
	MaxBodyBytes int64
	Guard        GuardFunc

	Schema     SchemaSource
	Calculator pkgcalculate.Calculator
	Classifier validation.Classifier
	Logger     *zap.Logger
}

type OptionFn func(*Options)

func DefaultOptions() Options {
	return Options{
		RoutePath:    DefaultRoutePath,
		MaxBodyBytes: DefaultMaxBodyBytes,
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
	if opts.RoutePath == "" {
		opts.RoutePath = DefaultRoutePath
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return opts
}

func WithRoutePath(path string) OptionFn {
	return func(o *Options) {
		if o == nil {
			return
		}
		o.RoutePath = path
	}
}

func WithMaxBodyBytes(limit int64) OptionFn {
	return func(o *Options) {
		if o == nil {
			return
		}
		o.MaxBodyBytes = limit
	}
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

func WithCalculator(calculator pkgcalculate.Calculator) OptionFn {
	return func(o *Options) {
		if o == nil {
			return
		}
		o.Calculator = calculator
	}
}

func WithClassifier(classifier validation.Classifier) OptionFn {
	return func(o *Options) {
		if o == nil {
			return
		}
		o.Classifier = classifier
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

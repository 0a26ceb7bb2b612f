// Package docstore implements schema.Store over an HTTP document service, a
// directory of JSON files and a SQLite database.
package docstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-carbonform/pkg/schema"
)

// DefaultPollInterval is used by stores that emulate push through polling.
const DefaultPollInterval = 30 * time.Second

// Store is a schema.Store that owns resources.
type Store interface {
	schema.Store
	io.Closer
}

// Options configures store construction.
type Options struct {
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	PollInterval   time.Duration
	Logger         *zap.Logger
}

// OptionFn mutates Options.
type OptionFn func(*Options)

// WithHTTPClient supplies the client used by the HTTP store.
func WithHTTPClient(client *http.Client) OptionFn {
	return func(o *Options) {
		o.HTTPClient = client
	}
}

// WithRequestTimeout bounds each HTTP read.
func WithRequestTimeout(timeout time.Duration) OptionFn {
	return func(o *Options) {
		o.RequestTimeout = timeout
	}
}

// WithPollInterval sets how often polling stores check for changes.
func WithPollInterval(interval time.Duration) OptionFn {
	return func(o *Options) {
		o.PollInterval = interval
	}
}

// WithLogger sets the store logger.
func WithLogger(logger *zap.Logger) OptionFn {
	return func(o *Options) {
		o.Logger = logger
	}
}

func newOptions(fns ...OptionFn) Options {
	opts := Options{
		PollInterval: DefaultPollInterval,
	}
	for _, fn := range fns {
		if fn == nil {
			continue
		}
		fn(&opts)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return opts
}

// Open constructs the store matching src.
func Open(src schema.Source, fns ...OptionFn) (Store, error) {
	if src == nil {
		return nil, errors.New("docstore: source is nil")
	}
	switch src.Kind() {
	case schema.SourceKindFile:
		return NewFileStore(src.Location(), fns...)
	case schema.SourceKindURL:
		return NewHTTPStore(src.Location(), fns...)
	case schema.SourceKindSQLite:
		return OpenSQLite(src.Location(), fns...)
	default:
		return nil, fmt.Errorf("docstore: unsupported source kind %q", src.Kind())
	}
}

func cleanPath(path string) (string, error) {
	trimmed := strings.Trim(strings.TrimSpace(path), "/")
	if trimmed == "" {
		return "", errors.New("docstore: document path is required")
	}
	for _, segment := range strings.Split(trimmed, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return "", fmt.Errorf("docstore: invalid document path %q", path)
		}
	}
	return trimmed, nil
}

// poll emulates a push subscription: it delivers the current document, then
// re-reads every interval and delivers only when the bytes change. Read
// errors are logged and retried on the next tick.
func poll(ctx context.Context, interval time.Duration, logger *zap.Logger, path string, read func(context.Context) ([]byte, error), onChange func([]byte)) func() {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		var last []byte
		check := func() {
			raw, err := read(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Debug("docstore poll failed", zap.String("path", path), zap.Error(err))
				}
				return
			}
			if last != nil && bytes.Equal(last, raw) {
				return
			}
			last = raw
			onChange(raw)
		}

		check()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				check()
			}
		}
	}()
	return cancel
}

package docstore

import (
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

// HTTPStore reads documents from "<baseURL>/<path>". Watch polls.
type HTTPStore struct {
	baseURL  string
	client   *http.Client
	timeout  time.Duration
	interval time.Duration
	logger   *zap.Logger
}

var _ Store = (*HTTPStore)(nil)

// NewHTTPStore constructs an HTTP backed store.
func NewHTTPStore(baseURL string, fns ...OptionFn) (*HTTPStore, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("docstore: base url is required")
	}
	opts := newOptions(fns...)

	client := &http.Client{Timeout: opts.RequestTimeout}
	if opts.HTTPClient != nil {
		clone := *opts.HTTPClient
		if opts.RequestTimeout > 0 && clone.Timeout == 0 {
			clone.Timeout = opts.RequestTimeout
		}
		client = &clone
	}

	return &HTTPStore{
		baseURL:  baseURL,
		client:   client,
		timeout:  opts.RequestTimeout,
		interval: opts.PollInterval,
		logger:   opts.Logger,
	}, nil
}

// Get fetches the document at path.
func (s *HTTPStore) Get(ctx context.Context, path string) ([]byte, error) {
	clean, err := cleanPath(path)
	if err != nil {
		return nil, err
	}

	reqCtx := ctx
	var cancel context.CancelFunc
	if s.timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, s.baseURL+"/"+clean, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", schema.ErrDocumentNotFound, clean)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.New("docstore: unexpected status " + resp.Status)
	}

	return io.ReadAll(resp.Body)
}

// Watch polls path at the configured interval.
func (s *HTTPStore) Watch(ctx context.Context, path string, onChange func([]byte)) (func(), error) {
	clean, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	if onChange == nil {
		return nil, errors.New("docstore: onChange is required")
	}
	read := func(ctx context.Context) ([]byte, error) {
		return s.Get(ctx, clean)
	}
	return poll(ctx, s.interval, s.logger, clean, read, onChange), nil
}

// Close releases idle connections.
func (s *HTTPStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// Package calculate is the HTTP client for the emissions calculation backend.
package calculate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultTimeout = 30 * time.Second
	DefaultRetries = 2
	DefaultBackoff = 250 * time.Millisecond

	// RequestIDHeader carries the correlation id of a calculation.
	RequestIDHeader = "X-Request-ID"
)

// DefaultEndpoints lists categories whose backend route differs from
// "/api/{category}/calculate".
func DefaultEndpoints() map[string]string {
	return map[string]string{
		"bulk_material": "/api/bulkMaterial/calculate",
	}
}

// Calculator is implemented by Client and by test doubles.
type Calculator interface {
	Calculate(ctx context.Context, category string, payload map[string]any) (map[string]any, error)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithTimeout bounds each attempt.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithRetries sets how many extra attempts follow a transport failure.
func WithRetries(retries int) Option {
	return func(c *Client) {
		if retries >= 0 {
			c.retries = retries
		}
	}
}

// WithBackoff sets the base delay; attempt n waits n*backoff.
func WithBackoff(backoff time.Duration) Option {
	return func(c *Client) {
		if backoff >= 0 {
			c.backoff = backoff
		}
	}
}

// WithEndpoints adds or replaces category route overrides.
func WithEndpoints(endpoints map[string]string) Option {
	return func(c *Client) {
		for category, path := range endpoints {
			category = strings.TrimSpace(category)
			path = strings.TrimSpace(path)
			if category == "" || path == "" {
				continue
			}
			if !strings.HasPrefix(path, "/") {
				path = "/" + path
			}
			c.endpoints[category] = path
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client posts calculation requests. It is safe for concurrent use.
type Client struct {
	baseURL   string
	http      *http.Client
	timeout   time.Duration
	retries   int
	backoff   time.Duration
	endpoints map[string]string
	logger    *zap.Logger
}

var _ Calculator = (*Client)(nil)

// New constructs a client for the backend at baseURL.
func New(baseURL string, options ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("calculate: base url is required")
	}
	c := &Client{
		baseURL:   baseURL,
		http:      http.DefaultClient,
		timeout:   DefaultTimeout,
		retries:   DefaultRetries,
		backoff:   DefaultBackoff,
		endpoints: DefaultEndpoints(),
		logger:    zap.NewNop(),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(c)
	}
	return c, nil
}

// Endpoint returns the absolute URL for category.
func (c *Client) Endpoint(category string) string {
	if path, ok := c.endpoints[category]; ok {
		return c.baseURL + path
	}
	return c.baseURL + "/api/" + category + "/calculate"
}

type requestIDKey struct{}

// ContextWithRequestID makes Calculate reuse id instead of generating one.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the id stored by ContextWithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Calculate posts payload and returns the envelope's data. Transport
// failures are retried with linear backoff and end in *NetworkError;
// responses the backend produced end in *BackendError.
func (c *Client) Calculate(ctx context.Context, category string, payload map[string]any) (map[string]any, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return nil, ErrCategoryRequired
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("calculate: encode payload: %w", err)
	}

	requestID := RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	endpoint := c.Endpoint(category)
	logger := c.logger.With(
		zap.String("category", category),
		zap.String("request_id", requestID),
	)

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * c.backoff
			logger.Debug("retrying calculation", zap.Int("attempt", attempt+1), zap.Duration("delay", delay), zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, &NetworkError{Attempts: attempts, Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		attempts++
		status, raw, err := c.post(ctx, endpoint, requestID, body)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		data, err := decodeResponse(status, raw)
		if err != nil {
			logger.Debug("calculation rejected", zap.Int("status", status), zap.Error(err))
			return nil, err
		}
		return data, nil
	}

	logger.Warn("calculation request failed", zap.Int("attempts", attempts), zap.Error(lastErr))
	return nil, &NetworkError{Attempts: attempts, Err: lastErr}
}

func (c *Client) post(ctx context.Context, endpoint, requestID string, body []byte) (int, []byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, raw, nil
}

// envelope is the backend response shape. Bodies without a success flag are
// treated as bare data.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
	Errors  json.RawMessage `json:"errors"`
}

func decodeResponse(status int, raw []byte) (map[string]any, error) {
	ok := status >= 200 && status < 300

	var env envelope
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			if ok {
				return nil, &BackendError{StatusCode: status, Code: "invalid_response", Message: "response is not valid JSON"}
			}
			return nil, &BackendError{StatusCode: status, Message: strings.TrimSpace(string(raw))}
		}
	}

	if !ok || (env.Success != nil && !*env.Success) {
		if status == 0 || ok {
			status = http.StatusBadGateway
		}
		code, message := errorText(env.Error)
		if env.Message != "" {
			message = env.Message
		}
		return nil, &BackendError{
			StatusCode: status,
			Code:       code,
			Message:    message,
			Fields:     decodeFieldErrors(env.Errors),
		}
	}

	if env.Success == nil {
		var bare map[string]any
		if err := json.Unmarshal(raw, &bare); err != nil {
			return nil, &BackendError{StatusCode: status, Code: "invalid_response", Message: "response is not an object"}
		}
		return bare, nil
	}
	return decodeData(status, env.Data)
}

func decodeData(status int, raw json.RawMessage) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return map[string]any{}, nil
	}
	switch trimmed[0] {
	case '{':
		var data map[string]any
		if err := json.Unmarshal(trimmed, &data); err != nil {
			return nil, &BackendError{StatusCode: status, Code: "invalid_response", Message: err.Error()}
		}
		return data, nil
	case '[':
		// some categories answer with one record per input row
		var rows []map[string]any
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return nil, &BackendError{StatusCode: status, Code: "invalid_response", Message: err.Error()}
		}
		if len(rows) == 0 {
			return map[string]any{}, nil
		}
		return rows[0], nil
	default:
		var value any
		if err := json.Unmarshal(trimmed, &value); err != nil {
			return nil, &BackendError{StatusCode: status, Code: "invalid_response", Message: err.Error()}
		}
		return map[string]any{"result": value}, nil
	}
}

// errorText accepts "error" as a string or as {code, message}.
func errorText(raw json.RawMessage) (string, string) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", ""
	}
	var text string
	if err := json.Unmarshal(trimmed, &text); err == nil {
		return text, ""
	}
	var obj struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(trimmed, &obj); err == nil {
		return obj.Code, obj.Message
	}
	return "", ""
}

// decodeFieldErrors accepts {"field": ["msg"]} or {"field": "msg"}.
func decodeFieldErrors(raw json.RawMessage) map[string][]string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var generic map[string]any
	if err := json.Unmarshal(trimmed, &generic); err != nil {
		return nil
	}
	out := make(map[string][]string, len(generic))
	for key, value := range generic {
		switch v := value.(type) {
		case string:
			out[key] = append(out[key], v)
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					out[key] = append(out[key], s)
				}
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

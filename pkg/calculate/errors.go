package calculate

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrCategoryRequired is returned when Calculate is called without a category.
var ErrCategoryRequired = errors.New("calculate: category is required")

// BackendError is a response the backend produced: a non-2xx status or a
// {success:false} envelope. It is never retried.
type BackendError struct {
	StatusCode int
	Code       string
	Message    string
	Fields     map[string][]string
}

func (e *BackendError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("calculate: backend returned %d: %s", e.StatusCode, msg)
}

// NetworkError wraps a transport failure after retries were exhausted.
type NetworkError struct {
	Attempts int
	Err      error
}

func (e *NetworkError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("calculate: request failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

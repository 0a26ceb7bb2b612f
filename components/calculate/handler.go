package calculate

import (
	"errors"
	"io"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	pkgcalculate "github.com/goliatone/go-carbonform/pkg/calculate"
	"github.com/goliatone/go-carbonform/pkg/fieldtype"
	"github.com/goliatone/go-carbonform/pkg/mapper"
	"github.com/goliatone/go-carbonform/pkg/model"
	"github.com/goliatone/go-carbonform/pkg/validation"
)

// Error codes carried in the "error" member of failure envelopes.
const (
	CodeValidationFailed   = "validation_failed"
	CodeInvalidJSON        = "invalid_json"
	CodeCategoryRequired   = "category_required"
	CodeUnknownCategory    = "unknown_category"
	CodeSchemaUnavailable  = "schema_unavailable"
	CodeBackendError       = "backend_error"
	CodeBackendUnreachable = "backend_unreachable"
	CodeInternal           = "internal_error"
)

type HTTPError interface {
	error
	StatusCode() int
}

type StatusError struct {
	Code int
	Err  error
}

func (e StatusError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return http.StatusText(e.Code)
}

func (e StatusError) Unwrap() error { return e.Err }

func (e StatusError) StatusCode() int {
	if e.Code <= 0 {
		return http.StatusInternalServerError
	}
	return e.Code
}

// Request is the POST body.
type Request struct {
	Category string         `json:"category"`
	Data     map[string]any `json:"data"`
}

// FieldInfo describes a field in the GET listing.
type FieldInfo struct {
	Name        string          `json:"name"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Input       model.InputKind `json:"input"`
}

// CategoryInfo describes a category in the GET listing.
type CategoryInfo struct {
	Key      string      `json:"key"`
	Title    string      `json:"title"`
	Required []FieldInfo `json:"required"`
	Optional []FieldInfo `json:"optional"`
}

type successResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type failureResponse struct {
	Success bool                    `json:"success"`
	Error   string                  `json:"error"`
	Message string                  `json:"message,omitempty"`
	Issues  []validation.FieldIssue `json:"issues,omitempty"`
	Errors  map[string][]string     `json:"errors,omitempty"`
}

// Handler builds a net/http handler with default options plus any overrides.
func Handler(fns ...OptionFn) http.Handler {
	return NewHandler(fns...)
}

func NewHandler(fns ...OptionFn) http.Handler {
	opts := NewOptions(fns...)
	return HandlerWithOptions(opts)
}

// HandlerWithOptions builds a net/http handler from a pre-constructed Options value.
func HandlerWithOptions(opts Options) http.Handler {
	opts = NewOptions(func(o *Options) { *o = opts })
	if opts.Classifier == nil {
		opts.Classifier = fieldtype.NewClassifier()
	}
	h := &handler{opts: opts}
	return http.HandlerFunc(h.serve)
}

type handler struct {
	opts Options
}

func (h *handler) serve(w http.ResponseWriter, r *http.Request) {
	if r == nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if h.opts.Guard != nil {
		if err := h.opts.Guard(r); err != nil {
			writeGuardError(w, err)
			return
		}
	}

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		h.list(w, r)
	case http.MethodPost:
		h.calculate(w, r)
	default:
		w.Header().Set("Allow", strings.Join([]string{http.MethodGet, http.MethodHead, http.MethodPost}, ", "))
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	}
}

func (h *handler) fetchSchema(r *http.Request) (model.FormSchema, error) {
	if h.opts.Schema == nil {
		return nil, StatusError{Code: http.StatusServiceUnavailable, Err: errors.New("calculate: no schema source configured")}
	}
	formSchema, err := h.opts.Schema.Fetch(r.Context())
	if err != nil {
		return nil, StatusError{Code: http.StatusServiceUnavailable, Err: err}
	}
	return formSchema, nil
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	formSchema, err := h.fetchSchema(r)
	if err != nil {
		h.opts.Logger.Warn("schema unavailable", zap.Error(err))
		writeFailure(w, statusOf(err), failureResponse{Error: CodeSchemaUnavailable, Message: "form schema is unavailable"})
		return
	}

	keys := formSchema.Keys()
	out := make([]CategoryInfo, 0, len(keys))
	for _, key := range keys {
		category := formSchema[key]
		out = append(out, CategoryInfo{
			Key:      key,
			Title:    category.Title,
			Required: h.fieldInfos(category.Required()),
			Optional: h.fieldInfos(category.Optional()),
		})
	}

	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Data: out})
}

func (h *handler) fieldInfos(fields []model.FieldDescriptor) []FieldInfo {
	out := make([]FieldInfo, 0, len(fields))
	for _, field := range fields {
		cfg := h.opts.Classifier.Classify(field.Name, field.Title)
		out = append(out, FieldInfo{
			Name:        field.Name,
			Title:       field.Label(),
			Description: field.Description,
			Input:       cfg.InputKind,
		})
	}
	return out
}

func (h *handler) calculate(w http.ResponseWriter, r *http.Request) {
	requestID := strings.TrimSpace(r.Header.Get(pkgcalculate.RequestIDHeader))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(pkgcalculate.RequestIDHeader, requestID)
	logger := h.opts.Logger.With(zap.String("request_id", requestID))

	var req Request
	body, err := io.ReadAll(io.LimitReader(r.Body, h.opts.MaxBodyBytes+1))
	if err != nil {
		writeFailure(w, http.StatusBadRequest, failureResponse{Error: CodeInvalidJSON, Message: "request body could not be read"})
		return
	}
	if int64(len(body)) > h.opts.MaxBodyBytes {
		writeFailure(w, http.StatusRequestEntityTooLarge, failureResponse{Error: CodeInvalidJSON, Message: "request body is too large"})
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, failureResponse{Error: CodeInvalidJSON, Message: "request body must be a JSON object"})
		return
	}

	key := strings.TrimSpace(req.Category)
	if key == "" {
		writeFailure(w, http.StatusBadRequest, failureResponse{Error: CodeCategoryRequired, Message: "category is required"})
		return
	}

	formSchema, err := h.fetchSchema(r)
	if err != nil {
		logger.Warn("schema unavailable", zap.Error(err))
		writeFailure(w, statusOf(err), failureResponse{Error: CodeSchemaUnavailable, Message: "form schema is unavailable"})
		return
	}
	category, ok := formSchema.Category(key)
	if !ok {
		writeFailure(w, http.StatusNotFound, failureResponse{Error: CodeUnknownCategory, Message: "unknown category " + key})
		return
	}

	data := req.Data
	if data == nil {
		data = map[string]any{}
	}
	issues := validation.MergeIssues(
		validation.ValidateForm(category, data, h.opts.Classifier),
		validation.ValidateRequest(category, data, h.opts.Classifier),
	)
	if len(issues) > 0 {
		writeFailure(w, http.StatusBadRequest, failureResponse{
			Error:   CodeValidationFailed,
			Message: issues[0].Message,
			Issues:  issues,
		})
		return
	}

	if h.opts.Calculator == nil {
		logger.Error("no calculator configured")
		writeFailure(w, http.StatusInternalServerError, failureResponse{Error: CodeInternal, Message: "calculation backend is not configured"})
		return
	}

	ctx := pkgcalculate.ContextWithRequestID(r.Context(), requestID)
	result, err := h.opts.Calculator.Calculate(ctx, key, mapper.ToBackendPayload(key, data))
	if err != nil {
		h.writeCalculateError(w, logger.With(zap.String("category", key)), err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Data: result})
}

func (h *handler) writeCalculateError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var backendErr *pkgcalculate.BackendError
	var networkErr *pkgcalculate.NetworkError

	switch {
	case errors.As(err, &backendErr):
		logger.Info("backend rejected calculation", zap.Int("status", backendErr.StatusCode), zap.String("code", backendErr.Code))
		code := backendErr.Code
		if code == "" {
			code = CodeBackendError
		}
		status := backendErr.StatusCode
		if status < 400 {
			status = http.StatusBadGateway
		}
		writeFailure(w, status, failureResponse{Error: code, Message: backendErr.Message, Errors: backendErr.Fields})
	case errors.As(err, &networkErr):
		logger.Warn("backend unreachable", zap.Int("attempts", networkErr.Attempts), zap.Error(networkErr.Err))
		writeFailure(w, http.StatusBadGateway, failureResponse{Error: CodeBackendUnreachable, Message: "calculation service is unreachable"})
	default:
		logger.Error("calculation failed", zap.Error(err))
		writeFailure(w, http.StatusInternalServerError, failureResponse{Error: CodeInternal, Message: http.StatusText(http.StatusInternalServerError)})
	}
}

func writeFailure(w http.ResponseWriter, status int, payload failureResponse) {
	payload.Success = false
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(payload)
}

func statusOf(err error) int {
	var httpErr HTTPError
	if errors.As(err, &httpErr) && httpErr != nil {
		return httpErr.StatusCode()
	}
	return http.StatusInternalServerError
}

func writeGuardError(w http.ResponseWriter, err error) {
	if w == nil {
		return
	}
	code := http.StatusForbidden
	var httpErr HTTPError
	if errors.As(err, &httpErr) && httpErr != nil {
		code = httpErr.StatusCode()
		if code <= 0 {
			code = http.StatusForbidden
		}
	}
	http.Error(w, http.StatusText(code), code)
}

package forms

import (
	"errors"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/goliatone/go-carbonform/pkg/formstate"
	"github.com/goliatone/go-carbonform/pkg/model"
)

// Option is one entry of a dependent select.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

type optionsResponse struct {
	Data []Option `json:"data"`
}

type schemaResponse struct {
	Success bool             `json:"success"`
	Data    model.FormSchema `json:"data"`
}

type failureResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

var errNoSchemaSource = errors.New("forms: no schema source configured")

type handler struct {
	opts Options
}

func (h *handler) guard(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	if r == nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return false
	}
	allowed := false
	for _, method := range methods {
		if r.Method == method {
			allowed = true
			break
		}
	}
	if !allowed {
		w.Header().Set("Allow", strings.Join(methods, ", "))
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return false
	}
	if h.opts.Guard != nil {
		if err := h.opts.Guard(r); err != nil {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return false
		}
	}
	return true
}

func (h *handler) schema(r *http.Request) (model.FormSchema, error) {
	if h.opts.Schema == nil {
		return nil, errNoSchemaSource
	}
	return h.opts.Schema.Fetch(r.Context())
}

// SchemaHandler serves the current schema.
func (h *handler) SchemaHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.guard(w, r, http.MethodGet, http.MethodHead) {
			return
		}
		formSchema, err := h.schema(r)
		if err != nil {
			h.opts.Logger.Warn("schema unavailable", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, failureResponse{Error: "schema_unavailable", Message: "form schema is unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, schemaResponse{Success: true, Data: formSchema})
	})
}

// OptionsHandler serves the options of one field given the other values.
func (h *handler) OptionsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.guard(w, r, http.MethodGet, http.MethodHead) {
			return
		}
		query := r.URL.Query()
		key := strings.TrimSpace(query.Get("category"))
		name := strings.TrimSpace(query.Get("field"))
		if key == "" || name == "" {
			writeJSON(w, http.StatusBadRequest, failureResponse{Error: "bad_request", Message: "category and field are required"})
			return
		}

		formSchema, err := h.schema(r)
		if err != nil {
			h.opts.Logger.Warn("schema unavailable", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, failureResponse{Error: "schema_unavailable", Message: "form schema is unavailable"})
			return
		}
		category, ok := formSchema.Category(key)
		if !ok {
			writeJSON(w, http.StatusNotFound, failureResponse{Error: "unknown_category", Message: "unknown category " + key})
			return
		}
		if _, ok := category.Field(name); !ok {
			writeJSON(w, http.StatusNotFound, failureResponse{Error: "unknown_field", Message: "unknown field " + name})
			return
		}

		current := make(map[string]any)
		for param, values := range query {
			if param == "category" || param == "field" || len(values) == 0 {
				continue
			}
			if value := strings.TrimSpace(values[0]); value != "" {
				current[param] = value
			}
		}

		values := h.opts.Resolver.Options(name, current)
		out := make([]Option, 0, len(values))
		for _, value := range values {
			out = append(out, Option{Value: value, Label: value})
		}
		writeJSON(w, http.StatusOK, optionsResponse{Data: out})
	})
}

// PageHandler renders the HTML form of the category named by the path
// remainder. Query parameters prefill matching fields.
func (h *handler) PageHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.guard(w, r, http.MethodGet) {
			return
		}
		key := strings.Trim(strings.TrimPrefix(r.URL.Path, h.opts.PagePrefix), "/")
		if key == "" || strings.Contains(key, "/") {
			http.NotFound(w, r)
			return
		}
		if h.opts.Renderer == nil {
			http.Error(w, "forms: no renderer configured", http.StatusInternalServerError)
			return
		}

		formSchema, err := h.schema(r)
		if err != nil {
			h.opts.Logger.Warn("schema unavailable", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}
		category, ok := formSchema.Category(key)
		if !ok {
			http.NotFound(w, r)
			return
		}

		store := formstate.New()
		store.SetCategory(key)
		query := r.URL.Query()
		for _, field := range category.Fields {
			if value := strings.TrimSpace(query.Get(field.Name)); value != "" {
				store.SetFieldValue(field.Name, value)
			}
		}

		html, err := h.opts.Renderer.Render(category, store.State(), h.opts.Resolver)
		if err != nil {
			h.opts.Logger.Error("render form", zap.String("category", key), zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(html))
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(payload)
}

package forms

import (
	"fmt"
	"net/http"
	"strings"
)

// Mux is the minimal interface required to register a net/http handler.
// It is satisfied by *http.ServeMux.
type Mux interface {
	Handle(pattern string, handler http.Handler)
}

// Component bundles the form handlers and their configuration.
type Component struct {
	opts Options
	h    *handler
}

// New constructs a new component with default options plus any overrides.
func New(fns ...OptionFn) *Component {
	opts := NewOptions(fns...)
	return &Component{opts: opts, h: &handler{opts: opts}}
}

// Options returns a copy of the component configuration.
func (c *Component) Options() Options {
	if c == nil {
		return DefaultOptions()
	}
	return NewOptions(func(o *Options) { *o = c.opts })
}

// RegisterRoutes registers the schema, options and page handlers under
// basePath and returns the registered patterns.
func (c *Component) RegisterRoutes(mux Mux, basePath string) ([]string, error) {
	if mux == nil {
		return nil, fmt.Errorf("forms: missing mux")
	}
	if c == nil {
		c = New()
	}
	routes := []struct {
		path    string
		handler http.Handler
	}{
		{c.opts.SchemaPath, c.h.SchemaHandler()},
		{c.opts.OptionsPath, c.h.OptionsHandler()},
		{c.opts.PagePrefix, http.StripPrefix(strings.TrimRight(basePrefix(basePath), "/"), c.h.PageHandler())},
	}
	patterns := make([]string, 0, len(routes))
	for _, route := range routes {
		pattern := mountPath(basePath, route.path)
		mux.Handle(pattern, route.handler)
		patterns = append(patterns, pattern)
	}
	return patterns, nil
}

func basePrefix(basePath string) string {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" || basePath == "/" {
		return ""
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	return basePath
}

func mountPath(basePath, routePath string) string {
	routePath = strings.TrimSpace(routePath)
	if routePath == "" {
		routePath = "/"
	}
	if !strings.HasPrefix(routePath, "/") {
		routePath = "/" + routePath
	}
	base := strings.TrimRight(basePrefix(basePath), "/")
	return base + routePath
}

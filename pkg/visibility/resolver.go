package visibility

import (
	"strings"
	"sync"

	"github.com/goliatone/go-carbonform/pkg/model"
)

// Resolver evaluates options and visibility against a factor snapshot. Fields
// that are not an attribute of any factor are free inputs and always visible.
type Resolver struct {
	mu      sync.RWMutex
	factors []model.EmissionFactor
	attrs   map[string]struct{}
}

// NewResolver wraps factors. The slice is copied.
func NewResolver(factors []model.EmissionFactor) *Resolver {
	r := &Resolver{}
	r.Replace(factors)
	return r
}

// Replace swaps the factor snapshot.
func (r *Resolver) Replace(factors []model.EmissionFactor) {
	snapshot := append([]model.EmissionFactor(nil), factors...)
	attrs := make(map[string]struct{})
	for _, factor := range snapshot {
		for key := range factor {
			attrs[key] = struct{}{}
		}
	}
	r.mu.Lock()
	r.factors = snapshot
	r.attrs = attrs
	r.mu.Unlock()
}

// Factors returns the current snapshot.
func (r *Resolver) Factors() []model.EmissionFactor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.EmissionFactor(nil), r.factors...)
}

// Controls reports whether field is constrained by the factor table.
func (r *Resolver) Controls(field string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.attrs[strings.TrimSpace(field)]
	return ok
}

// Options returns the legal values of field, or nil for free inputs.
func (r *Resolver) Options(field string, current map[string]any) []string {
	if !r.Controls(field) {
		return nil
	}
	return Options(field, current, r.Factors())
}

// Visible reports whether field should be shown.
func (r *Resolver) Visible(field string, current map[string]any) bool {
	if !r.Controls(field) {
		return true
	}
	return Visible(field, current, r.Factors())
}

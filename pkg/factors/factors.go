// Package factors loads the emission factor table used to drive cascading
// select options.
package factors

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/goliatone/go-carbonform/pkg/model"
	"github.com/goliatone/go-carbonform/pkg/schema"
)

// DefaultPath is the document path of the factor table.
const DefaultPath = "appconfig/emission_factors"

// ErrFactorsUnavailable reports a missing or unreadable factor document.
var ErrFactorsUnavailable = errors.New("factors: emission factors unavailable")

// Load reads and decodes the factor document at path (DefaultPath when
// empty).
func Load(ctx context.Context, store schema.Store, path string) ([]model.EmissionFactor, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is not configured", ErrFactorsUnavailable)
	}
	if path == "" {
		path = DefaultPath
	}
	raw, err := store.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFactorsUnavailable, err)
	}
	records, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFactorsUnavailable, err)
	}
	return records, nil
}

// Decode accepts either a JSON array of records or the {"data": ...}
// envelope used by the schema document. Records without an id receive their
// position as id.
func Decode(raw []byte) ([]model.EmissionFactor, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errors.New("factors: empty document")
	}

	if trimmed[0] == '{' {
		inner, err := schema.Unwrap(trimmed)
		if err != nil {
			return nil, err
		}
		trimmed = bytes.TrimSpace(inner)
	}

	var records []model.EmissionFactor
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, fmt.Errorf("factors: decode records: %w", err)
	}

	out := make([]model.EmissionFactor, 0, len(records))
	for idx, record := range records {
		if record == nil {
			continue
		}
		if record.ID() == "" {
			record["id"] = strconv.Itoa(idx)
		}
		out = append(out, record)
	}
	return out, nil
}

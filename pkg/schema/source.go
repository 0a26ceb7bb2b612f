package schema

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// DefaultPath is the document path holding the form schema.
const DefaultPath = "appconfig/forms"

// Store reads documents by path and pushes changes to watchers.
type Store interface {
	// Get returns the raw document stored at path. Implementations return an
	// error wrapping ErrDocumentNotFound when no document exists.
	Get(ctx context.Context, path string) ([]byte, error)

	// Watch delivers the current document and then every change until stop is
	// called or ctx is cancelled. onChange runs on the store's goroutine.
	Watch(ctx context.Context, path string, onChange func([]byte)) (stop func(), err error)
}

// Source identifies which document store backs the schema so configuration
// can select a store without depending on its implementation.
type Source interface {
	Kind() SourceKind
	Location() string
}

// SourceKind enumerates the supported store backends.
type SourceKind string

const (
	SourceKindFile   SourceKind = "file"
	SourceKindURL    SourceKind = "url"
	SourceKindSQLite SourceKind = "sqlite"
)

type source struct {
	kind     SourceKind
	location string
}

func (s source) Kind() SourceKind { return s.kind }
func (s source) Location() string { return s.location }

// SourceFromDir returns a Source for a directory of JSON documents where the
// document "a/b" lives at "<dir>/a/b.json".
func SourceFromDir(dir string) Source {
	return source{kind: SourceKindFile, location: filepath.Clean(dir)}
}

// SourceFromSQLite returns a Source for a SQLite database file.
func SourceFromSQLite(path string) Source {
	return source{kind: SourceKindSQLite, location: strings.TrimSpace(path)}
}

// SourceFromURL returns a Source for an HTTP document service. Document paths
// are resolved relative to the base URL.
func SourceFromURL(raw string) (Source, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("schema: empty URL source")
	}
	if _, err := url.ParseRequestURI(raw); err != nil {
		return nil, fmt.Errorf("schema: invalid URL %q: %w", raw, err)
	}
	return source{kind: SourceKindURL, location: strings.TrimRight(raw, "/")}, nil
}

// ParseSource maps a kind/location pair (as found in configuration) to a
// Source.
func ParseSource(kind, location string) (Source, error) {
	switch SourceKind(strings.ToLower(strings.TrimSpace(kind))) {
	case SourceKindFile, "dir", "":
		if strings.TrimSpace(location) == "" {
			return nil, fmt.Errorf("schema: file source requires a directory")
		}
		return SourceFromDir(location), nil
	case SourceKindURL, "http", "https":
		return SourceFromURL(location)
	case SourceKindSQLite:
		if strings.TrimSpace(location) == "" {
			return nil, fmt.Errorf("schema: sqlite source requires a database path")
		}
		return SourceFromSQLite(location), nil
	default:
		return nil, fmt.Errorf("schema: unsupported source kind %q", kind)
	}
}

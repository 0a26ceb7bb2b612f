package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/goliatone/go-carbonform/pkg/schema"
)

const documentsTable = `
CREATE TABLE IF NOT EXISTS documents (
	path TEXT PRIMARY KEY,
	data BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);`

// SQLiteStore keeps documents in a single table keyed by path. Watch polls.
type SQLiteStore struct {
	db       *sql.DB
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating when needed) the database at dsn.
func OpenSQLite(dsn string, fns ...OptionFn) (*SQLiteStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("docstore: sqlite dsn is required")
	}
	if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("docstore: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("docstore: open sqlite: %w", err)
	}
	// a single connection keeps ":memory:" databases shared across calls
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(documentsTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("docstore: create documents table: %w", err)
	}

	opts := newOptions(fns...)
	return &SQLiteStore{
		db:       db,
		interval: opts.PollInterval,
		logger:   opts.Logger,
		now:      time.Now,
	}, nil
}

// Get reads the document at path.
func (s *SQLiteStore) Get(ctx context.Context, path string) ([]byte, error) {
	clean, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	var data []byte
	err = s.db.QueryRowContext(ctx, `SELECT data FROM documents WHERE path = ?`, clean).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", schema.ErrDocumentNotFound, clean)
	}
	if err != nil {
		return nil, fmt.Errorf("docstore: query %q: %w", clean, err)
	}
	return data, nil
}

// Put upserts the document at path.
func (s *SQLiteStore) Put(ctx context.Context, path string, data []byte) error {
	clean, err := cleanPath(path)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (path, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		clean, data, s.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("docstore: upsert %q: %w", clean, err)
	}
	return nil
}

// Paths lists stored document paths.
func (s *SQLiteStore) Paths(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path FROM documents ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("docstore: list documents: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		out = append(out, path)
	}
	return out, rows.Err()
}

// Watch polls path at the configured interval.
func (s *SQLiteStore) Watch(ctx context.Context, path string, onChange func([]byte)) (func(), error) {
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

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

package docstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/goliatone/go-carbonform/pkg/schema"
)

// FileStore maps document paths to "<root>/<path>.json" and watches them with
// fsnotify.
type FileStore struct {
	root   string
	logger *zap.Logger
}

var _ Store = (*FileStore)(nil)

// NewFileStore constructs a store rooted at dir.
func NewFileStore(dir string, fns ...OptionFn) (*FileStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("docstore: directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("docstore: resolve %q: %w", dir, err)
	}
	opts := newOptions(fns...)
	return &FileStore{root: abs, logger: opts.Logger}, nil
}

// Root returns the absolute store directory.
func (s *FileStore) Root() string {
	return s.root
}

// Filename returns the file backing path.
func (s *FileStore) Filename(path string) (string, error) {
	clean, err := cleanPath(path)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)+".json"), nil
}

// Get reads the document at path.
func (s *FileStore) Get(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filename, err := s.Filename(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", schema.ErrDocumentNotFound, path)
		}
		return nil, fmt.Errorf("docstore: read %q: %w", filename, err)
	}
	return data, nil
}

// Put writes the document at path, creating parent directories.
func (s *FileStore) Put(path string, data []byte) error {
	filename, err := s.Filename(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("docstore: create directory: %w", err)
	}
	return os.WriteFile(filename, data, 0o644)
}

// Watch delivers the current document (when present) and then every change
// to it. The parent directory is watched so editors that replace the file
// through a rename are still observed.
func (s *FileStore) Watch(ctx context.Context, path string, onChange func([]byte)) (func(), error) {
	if onChange == nil {
		return nil, errors.New("docstore: onChange is required")
	}
	filename, err := s.Filename(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("docstore: create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(filename)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("docstore: watch %q: %w", filepath.Dir(filename), err)
	}

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer func() {
			_ = watcher.Close()
		}()

		var last []byte
		deliver := func() {
			data, err := os.ReadFile(filename)
			if err != nil {
				if !errors.Is(err, os.ErrNotExist) {
					s.logger.Debug("docstore read failed", zap.String("file", filename), zap.Error(err))
				}
				return
			}
			if last != nil && bytes.Equal(last, data) {
				return
			}
			last = data
			onChange(data)
		}

		deliver()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filename {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				deliver()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("docstore watcher error", zap.String("file", filename), zap.Error(err))
			}
		}
	}()

	return cancel, nil
}

// Close is a no-op; watches own their resources.
func (s *FileStore) Close() error {
	return nil
}

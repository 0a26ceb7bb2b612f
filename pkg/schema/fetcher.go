package schema

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/goliatone/go-carbonform/pkg/model"
)

// DefaultTTL bounds how long a fetched schema short-circuits Fetch.
const DefaultTTL = 5 * time.Minute

// DefaultLoadTimeout bounds a shared store read.
const DefaultLoadTimeout = 30 * time.Second

// Listener receives schema pushes. Each call gets its own copy.
type Listener func(model.FormSchema)

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithPath overrides the document path (defaults to DefaultPath).
func WithPath(path string) Option {
	return func(f *Fetcher) {
		if trimmed := strings.TrimSpace(path); trimmed != "" {
			f.path = trimmed
		}
	}
}

// WithTTL overrides the cache TTL. Zero disables caching.
func WithTTL(ttl time.Duration) Option {
	return func(f *Fetcher) {
		if ttl >= 0 {
			f.ttl = ttl
		}
	}
}

// WithLoadTimeout bounds each store read. Reads are shared between
// concurrent callers, so they do not run under any one caller's context.
func WithLoadTimeout(timeout time.Duration) Option {
	return func(f *Fetcher) {
		if timeout > 0 {
			f.loadTimeout = timeout
		}
	}
}

// WithLogger sets the logger used for push decoding failures and watch
// lifecycle events.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) {
		if now != nil {
			f.now = now
		}
	}
}

type subscriber struct {
	id uint64
	fn Listener
}

// Fetcher owns the process-wide form schema: it is the only writer of the
// cached copy. Fetch is served from a TTL cache; Subscribe shares one store
// watch between all subscribers and closes it when the last one leaves.
type Fetcher struct {
	store       Store
	path        string
	ttl         time.Duration
	loadTimeout time.Duration
	logger      *zap.Logger
	now         func() time.Time
	group       singleflight.Group

	mu        sync.Mutex
	cached    model.FormSchema
	fetchedAt time.Time
	subs      []subscriber
	nextID    uint64

	// subMu serialises subscribe/unsubscribe so the ref count and the watch
	// handle change together.
	subMu     sync.Mutex
	refs      int
	stopWatch func()
}

// New constructs a Fetcher reading from store.
func New(store Store, options ...Option) *Fetcher {
	f := &Fetcher{
		store:       store,
		path:        DefaultPath,
		ttl:         DefaultTTL,
		loadTimeout: DefaultLoadTimeout,
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(f)
	}
	return f
}

// Path returns the document path the fetcher reads.
func (f *Fetcher) Path() string {
	return f.path
}

// Fetch returns the form schema, loading it from the store when the cache is
// empty or older than the TTL. Failures wrap ErrSchemaUnavailable; a stale
// cache is never returned in their place. Concurrent callers share one
// store read; a caller whose ctx ends stops waiting without failing the rest.
func (f *Fetcher) Fetch(ctx context.Context) (model.FormSchema, error) {
	if f == nil || f.store == nil {
		return nil, fmt.Errorf("%w: store is not configured", ErrSchemaUnavailable)
	}
	if cached, ok := f.fresh(); ok {
		return cached, nil
	}

	results := f.group.DoChan(f.path, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.loadTimeout)
		defer cancel()
		return f.load(loadCtx)
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrSchemaUnavailable, ctx.Err())
	case res := <-results:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(model.FormSchema).Clone(), nil
	}
}

func (f *Fetcher) fresh() (model.FormSchema, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cached == nil || f.ttl == 0 {
		return nil, false
	}
	if f.now().Sub(f.fetchedAt) >= f.ttl {
		return nil, false
	}
	return f.cached.Clone(), true
}

func (f *Fetcher) load(ctx context.Context) (model.FormSchema, error) {
	raw, err := f.store.Get(ctx, f.path)
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			return nil, fmt.Errorf("%w: no document at %q", ErrSchemaUnavailable, f.path)
		}
		return nil, fmt.Errorf("%w: %w", ErrSchemaUnavailable, err)
	}
	decoded, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchemaUnavailable, err)
	}

	f.mu.Lock()
	f.cached = decoded
	f.fetchedAt = f.now()
	f.mu.Unlock()

	f.logger.Debug("schema fetched",
		zap.String("path", f.path),
		zap.Int("categories", len(decoded)),
	)
	return decoded, nil
}

// Cached returns the cached schema regardless of age.
func (f *Fetcher) Cached() (model.FormSchema, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cached == nil {
		return nil, false
	}
	return f.cached.Clone(), true
}

// Clear drops the cached schema so the next Fetch hits the store.
func (f *Fetcher) Clear() {
	f.mu.Lock()
	f.cached = nil
	f.fetchedAt = time.Time{}
	f.mu.Unlock()
}

// Subscribers reports the number of active subscriptions.
func (f *Fetcher) Subscribers() int {
	f.subMu.Lock()
	defer f.subMu.Unlock()
	return f.refs
}

// Subscribe registers fn for schema pushes. The first subscriber opens the
// store watch; later subscribers share it and receive the cached schema right
// away when one exists. The returned function unsubscribes and is safe to call
// more than once.
func (f *Fetcher) Subscribe(fn Listener) (func(), error) {
	if fn == nil {
		return nil, errors.New("schema: listener is required")
	}
	if f == nil || f.store == nil {
		return nil, fmt.Errorf("%w: store is not configured", ErrSchemaUnavailable)
	}

	f.subMu.Lock()

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs = append(f.subs, subscriber{id: id, fn: fn})
	var initial model.FormSchema
	if f.refs > 0 && f.cached != nil {
		initial = f.cached.Clone()
	}
	f.mu.Unlock()

	if f.refs == 0 {
		if err := f.startWatch(); err != nil {
			f.removeSubscriber(id)
			f.subMu.Unlock()
			return nil, err
		}
	}
	f.refs++
	f.subMu.Unlock()

	if initial != nil {
		fn(initial)
	}

	var once sync.Once
	return func() {
		once.Do(func() { f.unsubscribe(id) })
	}, nil
}

func (f *Fetcher) startWatch() error {
	ctx, cancel := context.WithCancel(context.Background())
	stop, err := f.store.Watch(ctx, f.path, f.push)
	if err != nil {
		cancel()
		return fmt.Errorf("%w: watch %q: %w", ErrSchemaUnavailable, f.path, err)
	}
	f.stopWatch = func() {
		if stop != nil {
			stop()
		}
		cancel()
	}
	f.logger.Debug("schema watch started", zap.String("path", f.path))
	return nil
}

func (f *Fetcher) unsubscribe(id uint64) {
	f.subMu.Lock()
	defer f.subMu.Unlock()

	f.removeSubscriber(id)
	f.refs--
	if f.refs > 0 {
		return
	}
	f.refs = 0
	if f.stopWatch != nil {
		f.stopWatch()
		f.stopWatch = nil
		f.logger.Debug("schema watch stopped", zap.String("path", f.path))
	}
}

func (f *Fetcher) removeSubscriber(id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for idx, sub := range f.subs {
		if sub.id == id {
			f.subs = append(f.subs[:idx], f.subs[idx+1:]...)
			return
		}
	}
}

// push replaces the cache with a pushed document and notifies every
// subscriber synchronously, ignoring the TTL.
func (f *Fetcher) push(raw []byte) {
	decoded, err := Decode(raw)
	if err != nil {
		f.logger.Warn("schema push ignored", zap.String("path", f.path), zap.Error(err))
		return
	}

	f.mu.Lock()
	f.cached = decoded
	f.fetchedAt = f.now()
	subs := append([]subscriber(nil), f.subs...)
	f.mu.Unlock()

	for _, sub := range subs {
		sub.fn(decoded.Clone())
	}
}

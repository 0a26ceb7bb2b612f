package schema

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/goliatone/go-carbonform/pkg/model"
)

// memoryStore is an in-process Store whose Watch runs a goroutine fed by
// Publish.
type memoryStore struct {
	mu       sync.Mutex
	docs     map[string][]byte
	err      error
	gets     atomic.Int32
	watches  atomic.Int32
	active   atomic.Int32
	watchers map[int]chan []byte
	nextID   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{docs: make(map[string][]byte), watchers: make(map[int]chan []byte)}
}

func (s *memoryStore) Put(path string, raw []byte) {
	s.mu.Lock()
	s.docs[path] = raw
	s.mu.Unlock()
}

func (s *memoryStore) Publish(path string, raw []byte) {
	s.Put(path, raw)
	s.mu.Lock()
	channels := make([]chan []byte, 0, len(s.watchers))
	for _, ch := range s.watchers {
		channels = append(channels, ch)
	}
	s.mu.Unlock()
	for _, ch := range channels {
		ch <- raw
	}
}

func (s *memoryStore) Get(_ context.Context, path string) ([]byte, error) {
	s.gets.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	raw, ok := s.docs[path]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	return raw, nil
}

func (s *memoryStore) Watch(ctx context.Context, path string, onChange func([]byte)) (func(), error) {
	s.watches.Add(1)
	s.active.Add(1)

	ch := make(chan []byte)
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = ch
	initial, hasInitial := s.docs[path]
	s.mu.Unlock()

	go func() {
		defer s.active.Add(-1)
		if hasInitial {
			onChange(initial)
		}
		for {
			select {
			case <-ctx.Done():
				return
			case raw := <-ch:
				onChange(raw)
			}
		}
	}()

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
		cancel()
	}, nil
}

func fuelSchemaDoc(title string) []byte {
	return encodeDocument(`{"fuel": {"title": "` + title + `", "texts": [{"name": "amount", "title": "Amount", "s_r": true}]}}`)
}

func TestFetch_CachesWithinTTL(t *testing.T) {
	store := newMemoryStore()
	store.Put(DefaultPath, fuelSchemaDoc("Fuel"))

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fetcher := New(store, WithClock(func() time.Time { return now }))

	for i := 0; i < 3; i++ {
		schema, err := fetcher.Fetch(context.Background())
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}
		if schema["fuel"].Title != "Fuel" {
			t.Fatalf("unexpected schema %+v", schema)
		}
	}
	if got := store.gets.Load(); got != 1 {
		t.Fatalf("expected 1 store read, got %d", got)
	}

	now = now.Add(DefaultTTL)
	store.Put(DefaultPath, fuelSchemaDoc("Fuel v2"))
	schema, err := fetcher.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch after ttl: %v", err)
	}
	if schema["fuel"].Title != "Fuel v2" || store.gets.Load() != 2 {
		t.Fatalf("expected refetch after TTL, got %q after %d reads", schema["fuel"].Title, store.gets.Load())
	}
}

// gatedStore blocks every Get until release is closed.
type gatedStore struct {
	*memoryStore
	entered chan struct{}
	release chan struct{}
}

func (s *gatedStore) Get(ctx context.Context, path string) ([]byte, error) {
	s.entered <- struct{}{}
	select {
	case <-s.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.memoryStore.Get(ctx, path)
}

func TestFetch_CallerCancelDoesNotFailSharedLoad(t *testing.T) {
	defer goleak.VerifyNone(t)

	mem := newMemoryStore()
	mem.Put(DefaultPath, fuelSchemaDoc("Fuel"))
	store := &gatedStore{memoryStore: mem, entered: make(chan struct{}, 1), release: make(chan struct{})}
	fetcher := New(store)

	cancelled, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := fetcher.Fetch(cancelled)
		firstErr <- err
	}()
	<-store.entered

	type outcome struct {
		schema model.FormSchema
		err    error
	}
	second := make(chan outcome, 1)
	go func() {
		schema, err := fetcher.Fetch(context.Background())
		second <- outcome{schema, err}
	}()

	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) || !errors.Is(err, ErrSchemaUnavailable) {
		t.Fatalf("expected cancelled caller to stop with context.Canceled, got %v", err)
	}

	close(store.release)
	got := <-second
	if got.err != nil {
		t.Fatalf("expected joined caller to get the schema, got %v", got.err)
	}
	if got.schema["fuel"].Title != "Fuel" {
		t.Fatalf("unexpected schema %+v", got.schema)
	}
	if reads := mem.gets.Load(); reads != 1 {
		t.Fatalf("expected one shared store read, got %d", reads)
	}
}

func TestFetch_ReturnsCopies(t *testing.T) {
	store := newMemoryStore()
	store.Put(DefaultPath, fuelSchemaDoc("Fuel"))
	fetcher := New(store)

	first, err := fetcher.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	first["fuel"].Fields[0].Name = "mutated"

	second, _ := fetcher.Fetch(context.Background())
	if second["fuel"].Fields[0].Name != "amount" {
		t.Fatalf("expected cache to be isolated from callers")
	}
}

func TestFetch_UnavailableHasNoFallback(t *testing.T) {
	store := newMemoryStore()
	now := time.Now()
	fetcher := New(store, WithClock(func() time.Time { return now }))

	if _, err := fetcher.Fetch(context.Background()); !errors.Is(err, ErrSchemaUnavailable) {
		t.Fatalf("expected ErrSchemaUnavailable for missing document, got %v", err)
	}

	store.Put(DefaultPath, fuelSchemaDoc("Fuel"))
	if _, err := fetcher.Fetch(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	now = now.Add(DefaultTTL + time.Second)
	store.mu.Lock()
	store.err = errors.New("connection refused")
	store.mu.Unlock()

	if _, err := fetcher.Fetch(context.Background()); !errors.Is(err, ErrSchemaUnavailable) {
		t.Fatalf("expected ErrSchemaUnavailable instead of stale data, got %v", err)
	}
}

func TestFetch_UndecodableDocument(t *testing.T) {
	store := newMemoryStore()
	store.Put(DefaultPath, []byte(`{"data": "not json"}`))

	_, err := New(store).Fetch(context.Background())
	if !errors.Is(err, ErrSchemaUnavailable) {
		t.Fatalf("expected ErrSchemaUnavailable, got %v", err)
	}
}

func TestSubscribe_RefCountsWatch(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newMemoryStore()
	store.Put(DefaultPath, fuelSchemaDoc("Fuel"))
	fetcher := New(store)

	var mu sync.Mutex
	received := map[string][]string{}
	listener := func(name string) Listener {
		return func(schema model.FormSchema) {
			mu.Lock()
			received[name] = append(received[name], schema["fuel"].Title)
			mu.Unlock()
		}
	}
	waitFor := func(name string, count int) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			mu.Lock()
			n := len(received[name])
			mu.Unlock()
			if n >= count {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
		t.Fatalf("timed out waiting for %d pushes to %s", count, name)
	}

	unsubA, err := fetcher.Subscribe(listener("a"))
	if err != nil {
		t.Fatalf("subscribe a: %v", err)
	}
	waitFor("a", 1)

	unsubB, err := fetcher.Subscribe(listener("b"))
	if err != nil {
		t.Fatalf("subscribe b: %v", err)
	}
	waitFor("b", 1)

	if got := store.watches.Load(); got != 1 {
		t.Fatalf("expected a single shared watch, got %d", got)
	}
	if fetcher.Subscribers() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", fetcher.Subscribers())
	}

	store.Publish(DefaultPath, fuelSchemaDoc("Fuel pushed"))
	waitFor("a", 2)
	waitFor("b", 2)

	cached, ok := fetcher.Cached()
	if !ok || cached["fuel"].Title != "Fuel pushed" {
		t.Fatalf("expected push to refresh the cache, got %+v", cached)
	}

	unsubA()
	unsubA()
	if fetcher.Subscribers() != 1 || store.active.Load() != 1 {
		t.Fatalf("expected watch to survive while b is subscribed")
	}

	unsubB()
	if fetcher.Subscribers() != 0 {
		t.Fatalf("expected no subscribers, got %d", fetcher.Subscribers())
	}

	deadline := time.Now().Add(2 * time.Second)
	for store.active.Load() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if store.active.Load() != 0 {
		t.Fatalf("expected watch goroutine to exit after last unsubscribe")
	}

	mu.Lock()
	defer mu.Unlock()
	if got := received["a"]; len(got) != 2 || got[1] != "Fuel pushed" {
		t.Fatalf("unexpected pushes to a: %v", got)
	}
}

func TestSubscribe_IgnoresUndecodablePush(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newMemoryStore()
	store.Put(DefaultPath, fuelSchemaDoc("Fuel"))
	fetcher := New(store)

	var calls atomic.Int32
	unsub, err := fetcher.Subscribe(func(model.FormSchema) { calls.Add(1) })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	store.Publish(DefaultPath, []byte("garbage"))
	store.Publish(DefaultPath, fuelSchemaDoc("Fuel 2"))

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	unsub()

	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 deliveries (initial + valid push), got %d", got)
	}
}

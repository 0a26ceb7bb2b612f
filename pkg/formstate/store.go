// Package formstate holds the state of the active form: the selected
// category, per-field values and validation results, and the submission
// status. Every mutation notifies subscribers synchronously with a snapshot.
package formstate

import (
	"maps"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/goliatone/go-carbonform/pkg/model"
)

// Status describes the submission lifecycle.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusSubmitting Status = "submitting"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// Submission records the outcome of the last calculation request.
type Submission struct {
	Status   Status
	Result   map[string]any
	Unmapped map[string]any
	Error    string
}

// State is an immutable snapshot handed to listeners and callers.
type State struct {
	Category   string
	Fields     map[string]model.FieldState
	Submission Submission
	Generation uint64
}

// Ticket identifies the store state an async operation was started against.
type Ticket struct {
	ID         uuid.UUID
	Category   string
	Generation uint64
}

// Listener observes state changes.
type Listener func(State)

type listenerEntry struct {
	id uint64
	fn Listener
}

// Store is safe for concurrent use. Listeners run on the mutating goroutine
// after the lock is released.
type Store struct {
	mu         sync.RWMutex
	category   string
	fields     map[string]model.FieldState
	submission Submission
	generation uint64

	listeners []listenerEntry
	nextID    uint64
}

// New returns an empty store.
func New() *Store {
	return &Store{
		fields:     make(map[string]model.FieldState),
		submission: Submission{Status: StatusIdle},
	}
}

// Subscribe registers fn for every subsequent mutation. The returned function
// removes it and may be called more than once.
func (s *Store) Subscribe(fn Listener) func() {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for idx, entry := range s.listeners {
				if entry.id == id {
					s.listeners = append(s.listeners[:idx], s.listeners[idx+1:]...)
					return
				}
			}
		})
	}
}

// mutate applies fn under the write lock and, when fn reports a change,
// notifies listeners with the resulting snapshot.
func (s *Store) mutate(fn func() bool) {
	s.mu.Lock()
	if !fn() {
		s.mu.Unlock()
		return
	}
	snapshot := s.snapshotLocked()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, entry := range s.listeners {
		listeners = append(listeners, entry.fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
}

func (s *Store) snapshotLocked() State {
	fields := make(map[string]model.FieldState, len(s.fields))
	maps.Copy(fields, s.fields)
	sub := s.submission
	if sub.Result != nil {
		sub.Result = maps.Clone(sub.Result)
	}
	if sub.Unmapped != nil {
		sub.Unmapped = maps.Clone(sub.Unmapped)
	}
	return State{
		Category:   s.category,
		Fields:     fields,
		Submission: sub,
		Generation: s.generation,
	}
}

func (s *Store) resetLocked() {
	s.fields = make(map[string]model.FieldState)
	s.submission = Submission{Status: StatusIdle}
	s.generation++
}

// SetCategory selects key. A different key discards every field and the
// submission; the same key is a no-op.
func (s *Store) SetCategory(key string) {
	key = strings.TrimSpace(key)
	s.mutate(func() bool {
		if key == s.category {
			return false
		}
		s.category = key
		s.resetLocked()
		return true
	})
}

// SetFieldValue stores value, marks the field dirty and clears its error.
func (s *Store) SetFieldValue(name string, value any) {
	s.mutate(func() bool {
		field := s.fields[name]
		field.Value = value
		field.Dirty = true
		field.Error = ""
		field.Valid = true
		s.fields[name] = field
		return true
	})
}

// SetFieldError records a validation message; an empty message marks the
// field valid.
func (s *Store) SetFieldError(name, message string) {
	s.mutate(func() bool {
		field := s.fields[name]
		field.Error = message
		field.Valid = message == ""
		s.fields[name] = field
		return true
	})
}

// SetFieldTouched marks a field touched. Touched never reverts until the form
// is cleared.
func (s *Store) SetFieldTouched(name string, touched bool) {
	s.mutate(func() bool {
		field := s.fields[name]
		field.Touched = field.Touched || touched
		s.fields[name] = field
		return true
	})
}

// ClearAll drops fields and submission status but keeps the category.
func (s *Store) ClearAll() {
	s.mutate(func() bool {
		s.resetLocked()
		return true
	})
}

// ClearFieldsOnly drops field state, keeping category and submission.
func (s *Store) ClearFieldsOnly() {
	s.mutate(func() bool {
		s.fields = make(map[string]model.FieldState)
		s.generation++
		return true
	})
}

// ClearAllAndCategory resets the store to its initial state.
func (s *Store) ClearAllAndCategory() {
	s.mutate(func() bool {
		s.category = ""
		s.resetLocked()
		return true
	})
}

// SetSubmitting marks a submission in flight.
func (s *Store) SetSubmitting() {
	s.mutate(func() bool {
		s.submission = Submission{Status: StatusSubmitting}
		return true
	})
}

// SetSubmitResult stores a successful calculation result.
func (s *Store) SetSubmitResult(result, unmapped map[string]any) {
	s.mutate(func() bool {
		s.submission = Submission{
			Status:   StatusSucceeded,
			Result:   maps.Clone(result),
			Unmapped: maps.Clone(unmapped),
		}
		return true
	})
}

// SetSubmitError stores a failed submission.
func (s *Store) SetSubmitError(message string) {
	s.mutate(func() bool {
		s.submission = Submission{Status: StatusFailed, Error: message}
		return true
	})
}

// Category returns the selected category key.
func (s *Store) Category() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.category
}

// Field returns the state of name.
func (s *Store) Field(name string) (model.FieldState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	field, ok := s.fields[name]
	return field, ok
}

// FieldValue returns the stored value or nil.
func (s *Store) FieldValue(name string) any {
	field, _ := s.Field(name)
	return field.Value
}

// FieldError returns the stored error message or "".
func (s *Store) FieldError(name string) string {
	field, _ := s.Field(name)
	return field.Error
}

// IsTouched reports whether name has been touched.
func (s *Store) IsTouched(name string) bool {
	field, _ := s.Field(name)
	return field.Touched
}

// IsFormValid reports whether no field carries an error.
func (s *Store) IsFormValid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, field := range s.fields {
		if field.Error != "" {
			return false
		}
	}
	return true
}

// SnapshotFormData returns the values of every field that has one.
func (s *Store) SnapshotFormData() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.fields))
	for name, field := range s.fields {
		if field.Value == nil {
			continue
		}
		out[name] = field.Value
	}
	return out
}

// State returns a full snapshot.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Ticket captures the current category and generation.
func (s *Store) Ticket() Ticket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Ticket{ID: uuid.New(), Category: s.category, Generation: s.generation}
}

// Current reports whether ticket still matches the store: no category switch
// or clear happened since it was issued.
func (s *Store) Current(ticket Ticket) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ticket.Category == s.category && ticket.Generation == s.generation
}

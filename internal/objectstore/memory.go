package objectstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps the object tree in process memory.
//
// Objects are listed in creation order; states are keyed by id.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]Object
	order   []string
	states  map[string]State
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]Object),
		states:  make(map[string]State),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// GetState implements Store.
func (s *MemoryStore) GetState(_ context.Context, id string) (*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.states[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &st, nil
}

// SetObjectNotExists implements Store.
func (s *MemoryStore) SetObjectNotExists(_ context.Context, obj Object) (bool, error) {
	if err := validateObject(obj); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.objects[obj.ID]; exists {
		return false, nil
	}
	if obj.CreatedAt.IsZero() {
		obj.CreatedAt = s.now()
	}
	obj.Native = copyNative(obj.Native)
	s.objects[obj.ID] = obj
	s.order = append(s.order, obj.ID)
	return true, nil
}

// SetState implements Store.
func (s *MemoryStore) SetState(_ context.Context, id string, value any, ack bool) error {
	if err := ValidateID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[id] = State{ID: id, Value: value, Ack: ack, UpdatedAt: s.now()}
	return nil
}

// GetObject implements Browser.
func (s *MemoryStore) GetObject(_ context.Context, id string) (*Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[id]
	if !ok {
		return nil, ErrNotFound
	}
	obj.Native = copyNative(obj.Native)
	return &obj, nil
}

// ListObjects implements Browser.
func (s *MemoryStore) ListObjects(_ context.Context, prefix string) ([]Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Object, 0)
	for _, id := range s.order {
		if inPrefix(id, prefix) {
			obj := s.objects[id]
			obj.Native = copyNative(obj.Native)
			out = append(out, obj)
		}
	}
	return out, nil
}

// ListStates implements Browser.
func (s *MemoryStore) ListStates(_ context.Context, prefix string) ([]State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]State, 0)
	for id, st := range s.states {
		if inPrefix(id, prefix) {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Len returns the number of objects.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func copyNative(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

package database

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/voilenlp/voile/model"
)

// MemoryStore is a MappingStore kept entirely in memory. Used for tests and
// dry runs; nothing survives the process.
type MemoryStore struct {
	mu        sync.RWMutex
	byFullKey map[string]*model.Assignment
}

// NewMemoryStore creates an empty in-memory mapping store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byFullKey: make(map[string]*model.Assignment)}
}

// FindByFullKey returns the assignment for a normalized full key
func (s *MemoryStore) FindByFullKey(ctx context.Context, fullKey string) (*model.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byFullKey[fullKey]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *a
	return &clone, nil
}

// FindByComponent returns every assignment sharing a component key
func (s *MemoryStore) FindByComponent(ctx context.Context, componentKey string, componentType ComponentType) ([]*model.Assignment, error) {
	if componentKey == "" {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []*model.Assignment
	for _, a := range s.byFullKey {
		key := a.FirstKey
		if componentType == ComponentLast {
			key = a.LastKey
		}
		if key == componentKey {
			clone := *a
			matches = append(matches, &clone)
		}
	}
	return matches, nil
}

// Save persists a new assignment
func (s *MemoryStore) Save(ctx context.Context, a *model.Assignment) (*model.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(a)
}

// SaveBatch persists several assignments
func (s *MemoryStore) SaveBatch(ctx context.Context, as []*model.Assignment) ([]*model.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := make([]*model.Assignment, 0, len(as))
	for _, a := range as {
		out, err := s.save(a)
		if err != nil {
			return nil, err
		}
		saved = append(saved, out)
	}
	return saved, nil
}

// FindOrCreate returns the existing assignment for the full key or stores
// the given one
func (s *MemoryStore) FindOrCreate(ctx context.Context, a *model.Assignment) (*model.Assignment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byFullKey[a.FullKey]; ok {
		clone := *existing
		return &clone, false, nil
	}
	saved, err := s.save(a)
	if err != nil {
		return nil, false, err
	}
	return saved, true, nil
}

// PseudonymComponents returns the pseudonym components already in use
func (s *MemoryStore) PseudonymComponents(ctx context.Context) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	used := make(map[string]bool)
	for _, a := range s.byFullKey {
		for _, v := range []string{a.PseudonymFirst, a.PseudonymLast, a.PseudonymFull} {
			if v != "" {
				used[v] = true
			}
		}
	}
	return used, nil
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() error {
	return nil
}

// Len returns the number of stored assignments
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byFullKey)
}

func (s *MemoryStore) save(a *model.Assignment) (*model.Assignment, error) {
	clone := *a
	if clone.ID == uuid.Nil {
		clone.ID = uuid.New()
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	s.byFullKey[clone.FullKey] = &clone
	out := clone
	return &out, nil
}

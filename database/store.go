// Package database provides the mapping store contract and its adapters:
// an encrypted local SQLite store, a shared Postgres store for batch
// workers, and an in-memory store for tests and dry runs.
package database

import (
	"context"
	"errors"

	"github.com/voilenlp/voile/model"
)

// ErrNotFound is returned when no mapping matches a lookup
var ErrNotFound = errors.New("mapping not found")

// ComponentType selects which name component a lookup matches on
type ComponentType string

const (
	ComponentFirst ComponentType = "first"
	ComponentLast  ComponentType = "last"
)

// MappingStore is the persistence contract the assignment engine depends
// on. Implementations own the PseudonymAssignment records; lookups take the
// normalized keys produced by the preprocessor. FindOrCreate must be atomic
// so concurrent batch workers cannot double-assign one real name.
type MappingStore interface {
	// FindByFullKey returns the assignment whose normalized full name
	// equals the given key, or ErrNotFound.
	FindByFullKey(ctx context.Context, fullKey string) (*model.Assignment, error)

	// FindByComponent returns every assignment sharing the given component
	// key (first or last name). An empty result is not an error.
	FindByComponent(ctx context.Context, componentKey string, componentType ComponentType) ([]*model.Assignment, error)

	// Save persists a new assignment and returns it with identifiers set
	Save(ctx context.Context, a *model.Assignment) (*model.Assignment, error)

	// SaveBatch persists several assignments in one transaction
	SaveBatch(ctx context.Context, as []*model.Assignment) ([]*model.Assignment, error)

	// FindOrCreate atomically returns the existing assignment for the full
	// key or persists the given one. The boolean is true when a new record
	// was created.
	FindOrCreate(ctx context.Context, a *model.Assignment) (*model.Assignment, bool, error)

	// PseudonymComponents returns the set of pseudonym components already
	// in use in this store, the exclusion set for collision avoidance.
	PseudonymComponents(ctx context.Context) (map[string]bool, error)

	// Close releases the underlying resources
	Close() error
}

package adapter

import (
	"fmt"
	"sort"
	"sync"
)

// Builders is the builder pair an engine registers.
type Builders struct {
	Query QueryBuilder
	CRUD  CRUDBuilder
}

// Registry maps engines to their builders. Engine packages register
// themselves from init().
type Registry struct {
	builders map[DatabaseType]Builders
	mu       sync.RWMutex
}

// NewRegistry creates a new builder registry.
func NewRegistry() *Registry {
	return &Registry{
		builders: make(map[DatabaseType]Builders),
	}
}

// Register registers builders for an engine, replacing any previous entry.
func (r *Registry) Register(dbType DatabaseType, b Builders) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.builders[dbType] = b
}

// Get retrieves the builders for an engine.
func (r *Registry) Get(dbType DatabaseType) (Builders, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, exists := r.builders[dbType]
	if !exists {
		return Builders{}, fmt.Errorf("%w: %s", ErrBuilderNotFound, dbType)
	}
	return b, nil
}

// IsRegistered checks if builders are registered for the engine.
func (r *Registry) IsRegistered(dbType DatabaseType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.builders[dbType]
	return exists
}

// ListRegistered returns the registered engines in name order.
func (r *Registry) ListRegistered() []DatabaseType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]DatabaseType, 0, len(r.builders))
	for dbType := range r.builders {
		types = append(types, dbType)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// globalRegistry is the default builder registry.
var globalRegistry = NewRegistry()

// RegisterBuilders registers builders in the global registry.
func RegisterBuilders(dbType DatabaseType, query QueryBuilder, crud CRUDBuilder) {
	globalRegistry.Register(dbType, Builders{Query: query, CRUD: crud})
}

// GetQueryBuilder returns the engine's query builder from the global registry.
func GetQueryBuilder(dbType DatabaseType) (QueryBuilder, error) {
	b, err := globalRegistry.Get(dbType)
	if err != nil {
		return nil, err
	}
	return b.Query, nil
}

// GetCRUDBuilder returns the engine's CRUD builder from the global registry.
func GetCRUDBuilder(dbType DatabaseType) (CRUDBuilder, error) {
	b, err := globalRegistry.Get(dbType)
	if err != nil {
		return nil, err
	}
	return b.CRUD, nil
}

// ListRegistered returns the engines registered in the global registry.
func ListRegistered() []DatabaseType {
	return globalRegistry.ListRegistered()
}

package mapping

import (
	"sync"

	"github.com/mesh-intelligence/idmap/pkg/types"
)

// Registry resolves identity types to the mapping table that owns them.
// Each type is owned by at most one table; Set rejects a table that claims a
// type already owned by a different table.
type Registry struct {
	mu      sync.RWMutex
	tables  []types.MappingTable
	lenient bool
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// Lenient makes Get return a no-op table for unregistered types instead of
// ErrTableForTypeNotFound.
func Lenient() RegistryOption {
	return func(r *Registry) { r.lenient = true }
}

// NewRegistry returns an empty registry, strict unless Lenient is given.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IsLenient reports whether unregistered types resolve to the dummy table.
func (r *Registry) IsLenient() bool { return r.lenient }

// Get returns the table serving typ.
func (r *Registry) Get(typ types.IdentityType) (types.MappingTable, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if t := r.lookupLocked(typ); t != nil {
		return t, nil
	}
	if r.lenient {
		return dummyTable{}, nil
	}
	return nil, &types.TypeError{Kind: types.ErrTableForTypeNotFound, Type: typ}
}

func (r *Registry) lookupLocked(typ types.IdentityType) types.MappingTable {
	for _, t := range r.tables {
		for _, tt := range t.Types() {
			if tt == typ {
				return t
			}
		}
	}
	return nil
}

// Set registers table. Registering the same instance twice is a no-op.
func (r *Registry) Set(table types.MappingTable) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.tables {
		if t == table {
			return nil
		}
	}
	for _, typ := range table.Types() {
		if owner := r.lookupLocked(typ); owner != nil {
			return &types.TypeError{Kind: types.ErrTypeAlreadyRegistered, Table: owner.Name(), Type: typ}
		}
	}
	r.tables = append(r.tables, table)
	return nil
}

// Remove unregisters table. It reports whether the table was registered.
func (r *Registry) Remove(table types.MappingTable) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, t := range r.tables {
		if t == table {
			r.tables = append(r.tables[:i], r.tables[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveType unregisters the whole table owning typ, including its other
// types.
func (r *Registry) RemoveType(typ types.IdentityType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner := r.lookupLocked(typ)
	if owner == nil {
		return &types.TypeError{Kind: types.ErrTableForTypeNotFound, Type: typ}
	}
	for i, t := range r.tables {
		if t == owner {
			r.tables = append(r.tables[:i], r.tables[i+1:]...)
			break
		}
	}
	return nil
}

// Tables returns the registered tables in registration order.
func (r *Registry) Tables() []types.MappingTable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]types.MappingTable(nil), r.tables...)
}

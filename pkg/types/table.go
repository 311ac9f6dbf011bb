package types

import "context"

// MappingTable stores host id ↔ endpoint id associations for a set of
// identity types. Endpoint ids passed to a MappingTable carry the identity
// type as their first segment; see TableProxy for the type-free form.
type MappingTable interface {
	// Name returns the physical table name.
	Name() string

	// Types returns the identity types served by the table, in declaration order.
	Types() []IdentityType

	// IsResponsible reports whether t is in the table's type set.
	IsResponsible(t IdentityType) bool

	// Delimiter returns the endpoint segment separator.
	Delimiter() string

	// HostID returns the host id mapped to endpoint. ok is false when no row
	// matches or the row has no host id.
	HostID(ctx context.Context, endpoint string) (hostID int64, ok bool, err error)

	// Endpoint returns the endpoint id mapped to hostID for type t.
	Endpoint(ctx context.Context, t IdentityType, hostID int64) (endpoint string, ok bool, err error)

	// Save inserts a new association and returns the affected row count.
	// Inserting an existing key fails with the store's constraint error.
	Save(ctx context.Context, endpoint string, hostID int64) (int64, error)

	// SaveAll inserts all mappings in one transaction. Any failure rolls
	// back every insert.
	SaveAll(ctx context.Context, mappings []Mapping) (int64, error)

	// Delete removes the row matching endpoint, or every row of type t when
	// endpoint is empty. A non-nil hostID is ANDed to the filter.
	Delete(ctx context.Context, t IdentityType, endpoint string, hostID *int64) (int64, error)

	// Clear removes every row, or only rows of *t when t is non-nil.
	Clear(ctx context.Context, t *IdentityType) (int64, error)

	// Count returns the number of rows matching opts.
	Count(ctx context.Context, opts FindOptions) (int64, error)

	// FindEndpoints returns the encoded endpoint ids of rows matching opts.
	FindEndpoints(ctx context.Context, opts FindOptions) ([]string, error)

	// FilterMapped returns the candidates that are not yet stored, in input order.
	FilterMapped(ctx context.Context, candidates []string) ([]string, error)
}

// TableProxy binds one identity type to a MappingTable. Endpoint ids on a
// proxy do not carry the type segment.
type TableProxy interface {
	Type() IdentityType
	SetType(t IdentityType) error
	Table() MappingTable

	HostID(ctx context.Context, endpoint string) (int64, bool, error)
	Endpoint(ctx context.Context, hostID int64) (string, bool, error)
	Save(ctx context.Context, endpoint string, hostID int64) (int64, error)
	Delete(ctx context.Context, endpoint string, hostID *int64) (int64, error)
	Clear(ctx context.Context) (int64, error)
	Count(ctx context.Context, opts FindOptions) (int64, error)
	FindEndpoints(ctx context.Context, opts FindOptions) ([]string, error)
	FilterMapped(ctx context.Context, candidates []string) ([]string, error)
}

// PrimaryKeyMapper is the contract consumed by the synchronization engine:
// per identity type, translate between host ids and endpoint ids.
type PrimaryKeyMapper interface {
	HostID(ctx context.Context, t IdentityType, endpoint string) (int64, bool, error)
	EndpointID(ctx context.Context, t IdentityType, hostID int64) (string, bool, error)
	Save(ctx context.Context, t IdentityType, endpoint string, hostID int64) (bool, error)
	Delete(ctx context.Context, t IdentityType, endpoint string, hostID *int64) (bool, error)
	FindAllEndpointIDs(ctx context.Context, t IdentityType) ([]string, error)
	FilterMappedEndpointIDs(ctx context.Context, t IdentityType, endpoints []string) ([]string, error)
	Count(ctx context.Context, t *IdentityType) (int64, error)
	Clear(ctx context.Context, t *IdentityType) (bool, error)
}

// Package manager implements the primary-key mapper consumed by the
// synchronization engine on top of a mapping table registry.
package manager

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mesh-intelligence/idmap/internal/mapping"
	"github.com/mesh-intelligence/idmap/pkg/types"
)

// Compile-time interface check: Manager must implement PrimaryKeyMapper.
var _ types.PrimaryKeyMapper = (*Manager)(nil)

// Manager dispatches every call to the table registered for the identity
// type. Endpoint ids are type-free; the bound proxy adds the type segment.
type Manager struct {
	registry *mapping.Registry
	logger   *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// New returns a Manager over registry.
func New(registry *mapping.Registry, opts ...Option) *Manager {
	m := &Manager{
		registry: registry,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry returns the manager's table registry.
func (m *Manager) Registry() *mapping.Registry { return m.registry }

func (m *Manager) proxy(t types.IdentityType) (*mapping.Proxy, error) {
	table, err := m.registry.Get(t)
	if err != nil {
		return nil, err
	}
	if mapping.IsDummy(table) {
		m.logger.Debug("no table for identity type, using dummy", "type", int(t))
	}
	p, err := mapping.NewProxy(table, t)
	if err != nil {
		return nil, fmt.Errorf("binding type %d: %w", t, err)
	}
	return p, nil
}

// HostID returns the host id mapped to endpoint for type t.
func (m *Manager) HostID(ctx context.Context, t types.IdentityType, endpoint string) (int64, bool, error) {
	p, err := m.proxy(t)
	if err != nil {
		return 0, false, err
	}
	return p.HostID(ctx, endpoint)
}

// EndpointID returns the endpoint id mapped to hostID for type t.
func (m *Manager) EndpointID(ctx context.Context, t types.IdentityType, hostID int64) (string, bool, error) {
	p, err := m.proxy(t)
	if err != nil {
		return "", false, err
	}
	return p.Endpoint(ctx, hostID)
}

// Save stores endpoint → hostID and reports whether a row was written.
func (m *Manager) Save(ctx context.Context, t types.IdentityType, endpoint string, hostID int64) (bool, error) {
	p, err := m.proxy(t)
	if err != nil {
		return false, err
	}
	n, err := p.Save(ctx, endpoint, hostID)
	if err != nil {
		return false, err
	}
	m.logger.DebugContext(ctx, "mapping saved", "type", int(t), "endpoint", endpoint, "host_id", hostID)
	return n > 0, nil
}

// Delete removes endpoint (or every mapping of t when endpoint is empty),
// optionally limited to hostID. It reports whether any row was removed.
func (m *Manager) Delete(ctx context.Context, t types.IdentityType, endpoint string, hostID *int64) (bool, error) {
	p, err := m.proxy(t)
	if err != nil {
		return false, err
	}
	n, err := p.Delete(ctx, endpoint, hostID)
	if err != nil {
		return false, err
	}
	m.logger.DebugContext(ctx, "mappings deleted", "type", int(t), "endpoint", endpoint, "rows", n)
	return n > 0, nil
}

// FindAllEndpointIDs lists every endpoint id stored for t.
func (m *Manager) FindAllEndpointIDs(ctx context.Context, t types.IdentityType) ([]string, error) {
	p, err := m.proxy(t)
	if err != nil {
		return nil, err
	}
	return p.FindEndpoints(ctx, types.FindOptions{})
}

// FilterMappedEndpointIDs returns the endpoints of t that are not mapped yet.
func (m *Manager) FilterMappedEndpointIDs(ctx context.Context, t types.IdentityType, endpoints []string) ([]string, error) {
	p, err := m.proxy(t)
	if err != nil {
		return nil, err
	}
	unmapped, err := p.FilterMapped(ctx, endpoints)
	if err != nil {
		return nil, err
	}
	m.logger.DebugContext(ctx, "filtered endpoints", "type", int(t), "candidates", len(endpoints), "unmapped", len(unmapped))
	return unmapped, nil
}

// Count returns the mappings of *t, or of every registered table when t is nil.
func (m *Manager) Count(ctx context.Context, t *types.IdentityType) (int64, error) {
	if t != nil {
		p, err := m.proxy(*t)
		if err != nil {
			return 0, err
		}
		return p.Count(ctx, types.FindOptions{})
	}
	var total int64
	for _, table := range m.registry.Tables() {
		n, err := table.Count(ctx, types.FindOptions{})
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// Clear removes the mappings of *t, or of every registered table when t is nil.
func (m *Manager) Clear(ctx context.Context, t *types.IdentityType) (bool, error) {
	if t != nil {
		p, err := m.proxy(*t)
		if err != nil {
			return false, err
		}
		if _, err := p.Clear(ctx); err != nil {
			return false, err
		}
		return true, nil
	}
	for _, table := range m.registry.Tables() {
		if _, err := table.Clear(ctx, nil); err != nil {
			return false, fmt.Errorf("clearing %s: %w", table.Name(), err)
		}
	}
	m.logger.InfoContext(ctx, "all mapping tables cleared")
	return true, nil
}

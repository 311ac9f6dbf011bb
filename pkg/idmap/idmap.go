// Package idmap is the public entry point: it opens the configured backend,
// builds the mapping tables declared in the configuration, and exposes them
// through the PrimaryKeyMapper contract.
//
// Example:
//
//	m, err := idmap.Open(ctx, types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: ".idmap-db",
//	    Tables:  tables,
//	})
//	defer m.Close()
//	hostID, ok, err := m.HostID(ctx, productType, "42||main")
package idmap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mesh-intelligence/idmap/internal/manager"
	"github.com/mesh-intelligence/idmap/internal/mapping"
	"github.com/mesh-intelligence/idmap/internal/session"
	"github.com/mesh-intelligence/idmap/internal/sqlstore"
	"github.com/mesh-intelligence/idmap/pkg/types"
)

// Version is the idmap release version.
const Version = "0.1.0"

// Compile-time interface check: Mapper must implement PrimaryKeyMapper.
var _ types.PrimaryKeyMapper = (*Mapper)(nil)

// Mapper owns the store connection and the mapping tables built from a
// Config.
type Mapper struct {
	store   *sqlstore.Store
	manager *manager.Manager
	tables  []*mapping.Table
	logger  *slog.Logger

	delimiter string
}

type options struct {
	logger  *slog.Logger
	install bool
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the logger shared by the store and the manager.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithoutInstall skips creating missing tables on Open.
func WithoutInstall() Option {
	return func(o *options) { o.install = false }
}

// Open connects to the backend in cfg and registers its tables. Tables are
// created if missing unless WithoutInstall is given.
func Open(ctx context.Context, cfg types.Config, opts ...Option) (*Mapper, error) {
	o := options{logger: slog.New(slog.DiscardHandler), install: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}

	store, err := sqlstore.Open(ctx, cfg, sqlstore.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}

	var regOpts []mapping.RegistryOption
	if cfg.Lenient {
		regOpts = append(regOpts, mapping.Lenient())
	}
	registry := mapping.NewRegistry(regOpts...)

	m := &Mapper{
		store:   store,
		manager: manager.New(registry, manager.WithLogger(o.logger)),
		logger:  o.logger,

		delimiter: cfg.GetDelimiter(),
	}
	for _, tc := range cfg.Tables {
		def, err := tc.Definition()
		if err != nil {
			store.Close()
			return nil, err
		}
		if _, err := m.addTable(ctx, def, o.install); err != nil {
			store.Close()
			return nil, err
		}
	}
	return m, nil
}

func (m *Mapper) addTable(ctx context.Context, def types.TableDefinition, install bool) (*mapping.Table, error) {
	schema, err := mapping.FromDefinition(def)
	if err != nil {
		return nil, err
	}
	table := mapping.NewTable(m.store, schema, mapping.WithDelimiter(m.delimiter))
	// Register first so a type collision never leaves an orphan table behind.
	if err := m.manager.Registry().Set(table); err != nil {
		return nil, err
	}
	if install {
		if err := table.Install(ctx); err != nil {
			m.manager.Registry().Remove(table)
			return nil, err
		}
	}
	m.tables = append(m.tables, table)
	m.logger.DebugContext(ctx, "mapping table registered", "table", def.Name, "types", len(def.Types))
	return table, nil
}

// AddTable builds, installs, and registers a table at runtime.
func (m *Mapper) AddTable(ctx context.Context, def types.TableDefinition) (types.MappingTable, error) {
	t, err := m.addTable(ctx, def, true)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Close releases the store connection.
func (m *Mapper) Close() error { return m.store.Close() }

// Install creates every registered table that does not exist yet.
func (m *Mapper) Install(ctx context.Context) error {
	for _, t := range m.tables {
		if err := t.Install(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Tables returns the registered tables.
func (m *Mapper) Tables() []types.MappingTable {
	out := make([]types.MappingTable, len(m.tables))
	for i, t := range m.tables {
		out[i] = t
	}
	return out
}

func (m *Mapper) table(name string) (*mapping.Table, error) {
	for _, t := range m.tables {
		if t.Name() == name {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", types.ErrTableNotFound, name)
}

// Table returns the registered table with the given name.
func (m *Mapper) Table(name string) (types.MappingTable, error) {
	t, err := m.table(name)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Proxy binds typ to the table serving it.
func (m *Mapper) Proxy(typ types.IdentityType) (types.TableProxy, error) {
	table, err := m.manager.Registry().Get(typ)
	if err != nil {
		return nil, err
	}
	return mapping.NewProxy(table, typ)
}

// Restrict forces column of table to value on every following query.
func (m *Mapper) Restrict(table, column string, value any) {
	m.store.Restrictions().Set(table, column, value)
}

// Unrestrict removes a restriction set with Restrict.
func (m *Mapper) Unrestrict(table, column string) {
	m.store.Restrictions().Remove(table, column)
}

// Export writes the mappings of the named table to a JSONL file.
func (m *Mapper) Export(ctx context.Context, table, path string) (int, error) {
	t, err := m.table(table)
	if err != nil {
		return 0, err
	}
	return mapping.ExportFile(ctx, t, path)
}

// Import loads a JSONL file into the named table in one transaction.
func (m *Mapper) Import(ctx context.Context, table, path string) (int64, error) {
	t, err := m.table(table)
	if err != nil {
		return 0, err
	}
	return mapping.ImportFile(ctx, t, path)
}

// Sessions returns a session store sharing the mapper's connection. The
// session table is created when missing.
func (m *Mapper) Sessions(ctx context.Context, opts ...session.Option) (*session.Store, error) {
	s := session.New(m.store, opts...)
	if err := s.Install(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (m *Mapper) HostID(ctx context.Context, t types.IdentityType, endpoint string) (int64, bool, error) {
	return m.manager.HostID(ctx, t, endpoint)
}

func (m *Mapper) EndpointID(ctx context.Context, t types.IdentityType, hostID int64) (string, bool, error) {
	return m.manager.EndpointID(ctx, t, hostID)
}

func (m *Mapper) Save(ctx context.Context, t types.IdentityType, endpoint string, hostID int64) (bool, error) {
	return m.manager.Save(ctx, t, endpoint, hostID)
}

func (m *Mapper) Delete(ctx context.Context, t types.IdentityType, endpoint string, hostID *int64) (bool, error) {
	return m.manager.Delete(ctx, t, endpoint, hostID)
}

func (m *Mapper) FindAllEndpointIDs(ctx context.Context, t types.IdentityType) ([]string, error) {
	return m.manager.FindAllEndpointIDs(ctx, t)
}

func (m *Mapper) FilterMappedEndpointIDs(ctx context.Context, t types.IdentityType, endpoints []string) ([]string, error) {
	return m.manager.FilterMappedEndpointIDs(ctx, t, endpoints)
}

func (m *Mapper) Count(ctx context.Context, t *types.IdentityType) (int64, error) {
	return m.manager.Count(ctx, t)
}

func (m *Mapper) Clear(ctx context.Context, t *types.IdentityType) (bool, error) {
	return m.manager.Clear(ctx, t)
}

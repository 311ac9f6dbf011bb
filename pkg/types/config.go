package types

import (
	"errors"
	"fmt"
)

// Config holds backend selection, table definitions, and restrictions for
// idmap.Open.
type Config struct {
	Backend        string              `mapstructure:"backend" yaml:"backend"`
	DataDir        string              `mapstructure:"data_dir" yaml:"data_dir,omitempty"`
	DSN            string              `mapstructure:"dsn" yaml:"dsn,omitempty"`
	Delimiter      string              `mapstructure:"delimiter" yaml:"delimiter,omitempty"`
	Lenient        bool                `mapstructure:"lenient" yaml:"lenient,omitempty"`
	LogLevel       string              `mapstructure:"log_level" yaml:"log_level,omitempty"`
	ConnectRetries int                 `mapstructure:"connect_retries" yaml:"connect_retries,omitempty"`
	Tables         []TableConfig       `mapstructure:"tables" yaml:"tables,omitempty"`
	Restrictions   []RestrictionConfig `mapstructure:"restrictions" yaml:"restrictions,omitempty"`
}

// TableConfig declares one mapping table. Types is left untyped so that
// non-integer entries surface as ErrTypesWrongDataType instead of a decode
// failure.
type TableConfig struct {
	Name    string         `mapstructure:"name" yaml:"name"`
	Types   []any          `mapstructure:"types" yaml:"types"`
	Columns []ColumnConfig `mapstructure:"columns" yaml:"columns"`
	Scopes  []ScopeConfig  `mapstructure:"scopes" yaml:"scopes,omitempty"`
}

// ColumnConfig declares one endpoint column. Primary defaults to true.
type ColumnConfig struct {
	Name    string         `mapstructure:"name" yaml:"name"`
	Storage string         `mapstructure:"storage" yaml:"storage"`
	Primary *bool          `mapstructure:"primary" yaml:"primary,omitempty"`
	Options map[string]any `mapstructure:"options" yaml:"options,omitempty"`
}

// ScopeConfig declares one tenant scope column.
type ScopeConfig struct {
	Name    string `mapstructure:"name" yaml:"name"`
	Storage string `mapstructure:"storage" yaml:"storage"`
	Default any    `mapstructure:"default" yaml:"default"`
}

// RestrictionConfig forces Column of Table to Value on every query.
type RestrictionConfig struct {
	Table  string `mapstructure:"table" yaml:"table"`
	Column string `mapstructure:"column" yaml:"column"`
	Value  any    `mapstructure:"value" yaml:"value"`
}

// Supported backend names.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// DefaultDelimiter separates endpoint id segments.
const DefaultDelimiter = "||"

// Config validation errors.
var (
	ErrBackendEmpty   = errors.New("backend must not be empty")
	ErrBackendUnknown = errors.New("unknown backend")
	ErrDSNEmpty       = errors.New("dsn must not be empty for postgres backend")
	ErrTableNameEmpty = errors.New("table name must not be empty")
	ErrRetriesInvalid = errors.New("connect retries must not be negative")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendSQLite:   true,
	BackendPostgres: true,
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	if c.Backend == BackendPostgres && c.DSN == "" {
		return ErrDSNEmpty
	}
	if c.ConnectRetries < 0 {
		return ErrRetriesInvalid
	}
	for _, tc := range c.Tables {
		if _, err := tc.Definition(); err != nil {
			return err
		}
	}
	return nil
}

// GetDelimiter returns the configured delimiter or DefaultDelimiter.
func (c Config) GetDelimiter() string {
	if c.Delimiter == "" {
		return DefaultDelimiter
	}
	return c.Delimiter
}

// Definition converts the table configuration into a TableDefinition.
func (tc TableConfig) Definition() (TableDefinition, error) {
	if tc.Name == "" {
		return TableDefinition{}, ErrTableNameEmpty
	}
	ids, err := ParseIdentityTypes(tc.Types)
	if err != nil {
		return TableDefinition{}, fmt.Errorf("table %s: %w", tc.Name, err)
	}
	def := TableDefinition{Name: tc.Name, Types: ids}
	for _, cc := range tc.Columns {
		st, err := ParseStorageType(cc.Storage)
		if err != nil {
			return TableDefinition{}, fmt.Errorf("table %s column %s: %w", tc.Name, cc.Name, err)
		}
		primary := true
		if cc.Primary != nil {
			primary = *cc.Primary
		}
		def.Columns = append(def.Columns, EndpointColumn{
			Name:    cc.Name,
			Storage: st,
			Options: cc.Options,
			Primary: primary,
		})
	}
	for _, sc := range tc.Scopes {
		st, err := ParseStorageType(sc.Storage)
		if err != nil {
			return TableDefinition{}, fmt.Errorf("table %s scope %s: %w", tc.Name, sc.Name, err)
		}
		def.Scopes = append(def.Scopes, ScopeColumn{Name: sc.Name, Storage: st, Default: sc.Default})
	}
	return def, nil
}

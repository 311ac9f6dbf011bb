package mapping

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mesh-intelligence/idmap/internal/sqlstore"
	"github.com/mesh-intelligence/idmap/pkg/types"
)

// Reserved column names present on every mapping table.
const (
	IdentityTypeColumn = "identity_type"
	HostIDColumn       = "host_id"
)

var identifierRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validIdentifier(name string) bool {
	return identifierRE.MatchString(name)
}

// quote renders a validated identifier for use in SQL.
func quote(name string) string {
	return `"` + name + `"`
}

func quoteAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = quote(n)
	}
	return out
}

// Builder collects the endpoint columns of a table. The first failing call
// is remembered and reported by Build.
type Builder struct {
	name    string
	types   []types.IdentityType
	columns []types.EndpointColumn
	scopes  []types.ScopeColumn
	seen    map[string]bool
	err     error
}

// NewBuilder starts a table schema for the given identity types.
func NewBuilder(name string, ids ...types.IdentityType) *Builder {
	return &Builder{
		name:  name,
		types: append([]types.IdentityType(nil), ids...),
		seen: map[string]bool{
			IdentityTypeColumn: true,
			HostIDColumn:       true,
		},
	}
}

func (b *Builder) claim(name string) bool {
	if b.err != nil {
		return false
	}
	if !validIdentifier(name) {
		b.err = &types.ColumnError{Kind: types.ErrInvalidIdentifier, Table: b.name, Column: name}
		return false
	}
	if b.seen[name] {
		b.err = &types.ColumnError{Kind: types.ErrEndpointColumnExists, Table: b.name, Column: name}
		return false
	}
	b.seen[name] = true
	return true
}

// AddEndpointColumn appends an endpoint segment. Declaration order is the
// segment order of encoded endpoint ids.
func (b *Builder) AddEndpointColumn(name string, st types.StorageType, opts map[string]any, primary bool) *Builder {
	if !b.claim(name) {
		return b
	}
	var copied map[string]any
	if len(opts) > 0 {
		copied = make(map[string]any, len(opts))
		for k, v := range opts {
			copied[k] = v
		}
	}
	b.columns = append(b.columns, types.EndpointColumn{
		Name:    name,
		Storage: st,
		Options: copied,
		Primary: primary,
	})
	return b
}

// AddScopeColumn appends a tenant column that restrictions fill in.
func (b *Builder) AddScopeColumn(name string, st types.StorageType, def any) *Builder {
	if !b.claim(name) {
		return b
	}
	b.scopes = append(b.scopes, types.ScopeColumn{Name: name, Storage: st, Default: def})
	return b
}

// Build validates the collected definition and returns the immutable schema.
func (b *Builder) Build() (*Schema, error) {
	if err := validateTypes(b.name, b.types); err != nil {
		return nil, err
	}
	if b.err != nil {
		return nil, b.err
	}
	if len(b.columns) == 0 {
		return nil, fmt.Errorf("%w: table %s", types.ErrEndpointColumnsNotDefined, b.name)
	}
	hasPrimary := false
	for _, c := range b.columns {
		if c.Primary {
			hasPrimary = true
			break
		}
	}
	if !hasPrimary {
		return nil, fmt.Errorf("%w: table %s has no primary endpoint column", types.ErrEndpointColumnsNotDefined, b.name)
	}
	for _, sc := range b.scopes {
		if sc.Default == nil {
			continue
		}
		if _, err := sqlLiteral(sc.Default); err != nil {
			return nil, &types.ColumnError{Kind: types.ErrColumnValueInvalid, Table: b.name, Column: sc.Name}
		}
	}

	s := &Schema{
		name:    b.name,
		types:   append([]types.IdentityType(nil), b.types...),
		typeSet: make(map[types.IdentityType]struct{}, len(b.types)),
		columns: append([]types.EndpointColumn(nil), b.columns...),
		scopes:  append([]types.ScopeColumn(nil), b.scopes...),
		storage: make(map[string]types.StorageType),
	}
	for _, t := range s.types {
		s.typeSet[t] = struct{}{}
	}
	s.storage[IdentityTypeColumn] = types.StorageInteger
	s.storage[HostIDColumn] = types.StorageInteger
	s.encoded = append(s.encoded, IdentityTypeColumn)
	s.primary = append(s.primary, IdentityTypeColumn)
	for _, c := range s.columns {
		s.storage[c.Name] = c.Storage
		s.encoded = append(s.encoded, c.Name)
		if c.Primary {
			s.primary = append(s.primary, c.Name)
		}
	}
	for _, sc := range s.scopes {
		s.storage[sc.Name] = sc.Storage
	}
	return s, nil
}

func validateTypes(table string, ids []types.IdentityType) error {
	if !validIdentifier(table) {
		return &types.ColumnError{Kind: types.ErrInvalidIdentifier, Column: table}
	}
	if len(ids) == 0 {
		return fmt.Errorf("%w: table %s", types.ErrTypesArrayEmpty, table)
	}
	return nil
}

// Define builds a schema by running define against a fresh Builder. The
// identity types are validated before define runs.
func Define(name string, ids []types.IdentityType, define func(*Builder)) (*Schema, error) {
	if err := validateTypes(name, ids); err != nil {
		return nil, err
	}
	b := NewBuilder(name, ids...)
	if define != nil {
		define(b)
	}
	return b.Build()
}

// FromDefinition builds a schema from a declarative table definition.
func FromDefinition(def types.TableDefinition) (*Schema, error) {
	return Define(def.Name, def.Types, func(b *Builder) {
		for _, c := range def.Columns {
			b.AddEndpointColumn(c.Name, c.Storage, c.Options, c.Primary)
		}
		for _, sc := range def.Scopes {
			b.AddScopeColumn(sc.Name, sc.Storage, sc.Default)
		}
	})
}

// Schema is the immutable column layout of one mapping table.
type Schema struct {
	name    string
	types   []types.IdentityType
	typeSet map[types.IdentityType]struct{}
	columns []types.EndpointColumn
	scopes  []types.ScopeColumn
	storage map[string]types.StorageType

	encoded []string // identity_type + endpoint columns
	primary []string // identity_type + primary endpoint columns
}

func (s *Schema) Name() string { return s.name }

func (s *Schema) Types() []types.IdentityType {
	return append([]types.IdentityType(nil), s.types...)
}

func (s *Schema) serves(t types.IdentityType) bool {
	_, ok := s.typeSet[t]
	return ok
}

// EndpointColumns returns the declared endpoint columns.
func (s *Schema) EndpointColumns() []types.EndpointColumn {
	return append([]types.EndpointColumn(nil), s.columns...)
}

// ScopeColumns returns the declared tenant scope columns.
func (s *Schema) ScopeColumns() []types.ScopeColumn {
	return append([]types.ScopeColumn(nil), s.scopes...)
}

// EncodedColumns returns the column names making up an endpoint id, in
// segment order.
func (s *Schema) EncodedColumns() []string {
	return append([]string(nil), s.encoded...)
}

// PrimaryColumns returns the encoded columns that identify a row.
func (s *Schema) PrimaryColumns() []string {
	return append([]string(nil), s.primary...)
}

// HasNonPrimary reports whether some endpoint columns are not part of the key.
func (s *Schema) HasNonPrimary() bool {
	return len(s.primary) < len(s.encoded)
}

// HasColumn reports whether name is a column of the physical table.
func (s *Schema) HasColumn(name string) bool {
	_, ok := s.storage[name]
	return ok
}

func (s *Schema) storageOf(name string) types.StorageType {
	return s.storage[name]
}

// CreateStatements returns the DDL creating the table and its indexes.
func (s *Schema) CreateStatements(d sqlstore.Dialect) []string {
	var defs []string
	defs = append(defs, fmt.Sprintf("    %s %s NOT NULL", quote(IdentityTypeColumn), d.ColumnType(types.StorageInteger, nil)))
	for _, c := range s.columns {
		def := fmt.Sprintf("    %s %s", quote(c.Name), d.ColumnType(c.Storage, c.Options))
		if c.Primary || optionBool(c.Options, types.OptionNotNull) {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	defs = append(defs, fmt.Sprintf("    %s %s", quote(HostIDColumn), d.BigIntType()))
	key := append([]string(nil), s.primary...)
	for _, sc := range s.scopes {
		def := fmt.Sprintf("    %s %s NOT NULL", quote(sc.Name), d.ColumnType(sc.Storage, nil))
		if sc.Default != nil {
			lit, _ := sqlLiteral(sc.Default)
			def += " DEFAULT " + lit
		}
		defs = append(defs, def)
		key = append(key, sc.Name)
	}
	defs = append(defs, fmt.Sprintf("    PRIMARY KEY (%s)", strings.Join(quoteAll(key), ", ")))

	stmts := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n)", quote(s.name), strings.Join(defs, ",\n")),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			quote("idx_"+s.name+"_host_id"), quote(s.name), quote(HostIDColumn)),
	}
	if s.HasNonPrimary() {
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			quote("idx_"+s.name+"_endpoint"), quote(s.name), strings.Join(quoteAll(s.encoded), ", ")))
	}
	return stmts
}

// DropStatement returns the DDL removing the table.
func (s *Schema) DropStatement() string {
	return "DROP TABLE IF EXISTS " + quote(s.name)
}

func optionBool(opts map[string]any, key string) bool {
	v, _ := opts[key].(bool)
	return v
}

// sqlLiteral renders a scope default as a SQL literal.
func sqlLiteral(v any) (string, error) {
	switch x := v.(type) {
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case bool:
		if x {
			return "1", nil
		}
		return "0", nil
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'", nil
	default:
		return "", fmt.Errorf("unsupported literal %T", v)
	}
}

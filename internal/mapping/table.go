// Package mapping implements type-aware mapping tables over a sqlstore: the
// endpoint codec, schema builder, table registry, and fixed-type proxies.
package mapping

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/mesh-intelligence/idmap/internal/sqlstore"
	"github.com/mesh-intelligence/idmap/pkg/types"
)

// Compile-time interface check: Table must implement MappingTable.
var _ types.MappingTable = (*Table)(nil)

// filterChunkSize bounds the IN list of one FilterMapped statement.
const filterChunkSize = 500

// Table is a mapping table serving a set of identity types. The identity
// type is stored in its own column and is the first endpoint segment.
type Table struct {
	store  *sqlstore.Store
	schema *Schema

	mu    sync.RWMutex
	codec Codec
}

// TableOption configures a Table.
type TableOption func(*Table)

// WithDelimiter sets the endpoint segment delimiter.
func WithDelimiter(d string) TableOption {
	return func(t *Table) {
		if d != "" {
			t.codec = NewCodec(d)
		}
	}
}

// NewTable binds schema to store.
func NewTable(store *sqlstore.Store, schema *Schema, opts ...TableOption) *Table {
	t := &Table{
		store:  store,
		schema: schema,
		codec:  NewCodec(types.DefaultDelimiter),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Table) Name() string { return t.schema.Name() }

func (t *Table) Types() []types.IdentityType { return t.schema.Types() }

// Schema returns the table's column layout.
func (t *Table) Schema() *Schema { return t.schema }

// IsResponsible reports whether typ is one of the table's identity types.
func (t *Table) IsResponsible(typ types.IdentityType) bool { return t.schema.serves(typ) }

// Delimiter returns the current endpoint delimiter.
func (t *Table) Delimiter() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.codec.Delimiter()
}

// SetDelimiter replaces the endpoint delimiter. Endpoint ids encoded with the
// previous delimiter no longer decode.
func (t *Table) SetDelimiter(d string) error {
	if d == "" {
		return types.ErrDelimiterEmpty
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.codec = NewCodec(d)
	return nil
}

func (t *Table) currentCodec() Codec {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.codec
}

// Proxy binds the table's first declared type.
func (t *Table) Proxy() *Proxy {
	return &Proxy{table: t, typ: t.schema.types[0]}
}

// ProxyFor binds typ, which must be served by the table.
func (t *Table) ProxyFor(typ types.IdentityType) (*Proxy, error) {
	return NewProxy(t, typ)
}

// Install creates the table and its indexes if they do not exist.
func (t *Table) Install(ctx context.Context) error {
	for _, stmt := range t.schema.CreateStatements(t.store.Dialect()) {
		if _, err := t.store.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("installing table %s: %w", t.Name(), err)
		}
	}
	return nil
}

// Drop removes the table.
func (t *Table) Drop(ctx context.Context) error {
	if _, err := t.store.Exec(ctx, t.schema.DropStatement()); err != nil {
		return fmt.Errorf("dropping table %s: %w", t.Name(), err)
	}
	return nil
}

func (t *Table) responsible(typ types.IdentityType) error {
	if !t.schema.serves(typ) {
		return &types.TypeError{Kind: types.ErrTableNotResponsibleForType, Table: t.Name(), Type: typ}
	}
	return nil
}

// row is a decoded endpoint id.
type row struct {
	typ    types.IdentityType
	cols   []string // encoded column names
	values []any    // typed bind values
	canon  []string // canonical text of each value
}

func (r row) get(col string) (any, string) {
	for i, c := range r.cols {
		if c == col {
			return r.values[i], r.canon[i]
		}
	}
	return nil, ""
}

// decode splits endpoint, checks type responsibility and converts every
// segment to its column's storage type.
func (t *Table) decode(endpoint string) (row, error) {
	cols := t.schema.EncodedColumns()
	parts, err := t.currentCodec().Decode(endpoint, cols)
	if err != nil {
		var ce *types.ColumnError
		if errors.As(err, &ce) {
			ce.Table = t.Name()
		}
		return row{}, err
	}

	n, err := strconv.Atoi(parts[0].Value)
	if err != nil {
		return row{}, fmt.Errorf("%w: endpoint type segment %q", types.ErrTypesWrongDataType, parts[0].Value)
	}
	typ := types.IdentityType(n)
	if err := t.responsible(typ); err != nil {
		return row{}, err
	}

	r := row{
		typ:    typ,
		cols:   cols,
		values: make([]any, len(parts)),
		canon:  make([]string, len(parts)),
	}
	r.values[0] = int64(typ)
	r.canon[0] = strconv.Itoa(n)
	for i := 1; i < len(parts); i++ {
		v, c, err := t.convert(parts[i].Column, parts[i].Value)
		if err != nil {
			return row{}, err
		}
		r.values[i] = v
		r.canon[i] = c
	}
	return r, nil
}

func (t *Table) convert(col, raw string) (any, string, error) {
	if t.schema.storageOf(col) != types.StorageInteger {
		return raw, raw, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, "", &types.ColumnError{Kind: types.ErrColumnValueInvalid, Table: t.Name(), Column: col}
	}
	return n, strconv.FormatInt(n, 10), nil
}

// restrictions returns the active restrictions on this table. Restrictions
// may only target scope columns.
func (t *Table) restrictions() ([]sqlstore.Restriction, error) {
	rs := t.store.Restrictions().For(t.Name())
	for _, r := range rs {
		if !t.isScope(r.Column) {
			return nil, &types.ColumnError{Kind: types.ErrColumnNotFound, Table: t.Name(), Column: r.Column}
		}
	}
	return rs, nil
}

func (t *Table) isScope(col string) bool {
	for _, sc := range t.schema.scopes {
		if sc.Name == col {
			return true
		}
	}
	return false
}

func (t *Table) restrict(f *filter) error {
	rs, err := t.restrictions()
	if err != nil {
		return err
	}
	for _, r := range rs {
		f.eq(r.Column, r.Value)
	}
	return nil
}

func (t *Table) primaryFilter(r row) (*filter, error) {
	f := &filter{}
	for _, col := range t.schema.primary {
		v, _ := r.get(col)
		f.eq(col, v)
	}
	if err := t.restrict(f); err != nil {
		return nil, err
	}
	return f, nil
}

// HostID returns the host id mapped to endpoint.
func (t *Table) HostID(ctx context.Context, endpoint string) (int64, bool, error) {
	r, err := t.decode(endpoint)
	if err != nil {
		return 0, false, err
	}
	f, err := t.primaryFilter(r)
	if err != nil {
		return 0, false, err
	}

	q := fmt.Sprintf("SELECT %s FROM %s%s LIMIT 1", quote(HostIDColumn), quote(t.Name()), f)
	var host sql.NullInt64
	err = t.store.QueryRow(ctx, q, f.args...).Scan(&host)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("looking up host id in %s: %w", t.Name(), err)
	}
	if !host.Valid {
		return 0, false, nil
	}
	return host.Int64, true, nil
}

// Endpoint returns the endpoint id mapped to hostID for typ. When several
// endpoints share a host id the one first in key order is returned.
func (t *Table) Endpoint(ctx context.Context, typ types.IdentityType, hostID int64) (string, bool, error) {
	if err := t.responsible(typ); err != nil {
		return "", false, err
	}
	f := &filter{}
	f.eq(IdentityTypeColumn, int64(typ))
	f.eq(HostIDColumn, hostID)
	if err := t.restrict(f); err != nil {
		return "", false, err
	}

	q := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s LIMIT 1",
		strings.Join(quoteAll(t.schema.encoded), ", "),
		quote(t.Name()), f,
		strings.Join(quoteAll(t.schema.primary), ", "))
	rows, err := t.store.Query(ctx, q, f.args...)
	if err != nil {
		return "", false, fmt.Errorf("looking up endpoint in %s: %w", t.Name(), err)
	}
	endpoints, err := t.scanEndpoints(rows)
	if err != nil {
		return "", false, err
	}
	if len(endpoints) == 0 {
		return "", false, nil
	}
	return endpoints[0], true, nil
}

// scanEndpoints encodes each row of encoded columns and closes rows.
func (t *Table) scanEndpoints(rows *sql.Rows) ([]string, error) {
	defer rows.Close()

	codec := t.currentCodec()
	n := len(t.schema.encoded)
	var out []string
	for rows.Next() {
		vals := make([]sql.NullString, n)
		dest := make([]any, n)
		for i := range vals {
			dest[i] = &vals[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", t.Name(), err)
		}
		parts := make([]string, n)
		for i, v := range vals {
			parts[i] = v.String
		}
		out = append(out, codec.Encode(parts))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading %s rows: %w", t.Name(), err)
	}
	return out, nil
}

// Save inserts endpoint → hostID. There is no upsert: an existing key fails
// with the store's constraint violation.
func (t *Table) Save(ctx context.Context, endpoint string, hostID int64) (int64, error) {
	return t.insert(ctx, t.store, endpoint, &hostID)
}

// SaveAll inserts every mapping inside one transaction.
func (t *Table) SaveAll(ctx context.Context, mappings []types.Mapping) (int64, error) {
	var total int64
	err := t.store.InTx(ctx, func(c sqlstore.Conn) error {
		for _, m := range mappings {
			n, err := t.insert(ctx, c, m.Endpoint, m.HostID)
			if err != nil {
				return err
			}
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (t *Table) insert(ctx context.Context, c sqlstore.Conn, endpoint string, hostID *int64) (int64, error) {
	r, err := t.decode(endpoint)
	if err != nil {
		return 0, err
	}
	rs, err := t.restrictions()
	if err != nil {
		return 0, err
	}

	cols := append([]string(nil), r.cols...)
	args := append([]any(nil), r.values...)
	cols = append(cols, HostIDColumn)
	if hostID != nil {
		args = append(args, *hostID)
	} else {
		args = append(args, nil)
	}
	for _, rc := range rs {
		cols = append(cols, rc.Column)
		args = append(args, rc.Value)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(t.Name()), strings.Join(quoteAll(cols), ", "), placeholders)
	res, err := c.Exec(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("inserting into %s: %w", t.Name(), err)
	}
	return res.RowsAffected()
}

// Delete removes the row keyed by endpoint, or all rows of typ when endpoint
// is empty. hostID, when non-nil, further restricts either form. The type
// segment of endpoint must equal typ.
func (t *Table) Delete(ctx context.Context, typ types.IdentityType, endpoint string, hostID *int64) (int64, error) {
	if err := t.responsible(typ); err != nil {
		return 0, err
	}

	var f *filter
	if endpoint != "" {
		r, err := t.decode(endpoint)
		if err != nil {
			return 0, err
		}
		if r.typ != typ {
			return 0, &types.ColumnError{Kind: types.ErrColumnValueInvalid, Table: t.Name(), Column: IdentityTypeColumn}
		}
		if f, err = t.primaryFilter(r); err != nil {
			return 0, err
		}
	} else {
		f = &filter{}
		f.eq(IdentityTypeColumn, int64(typ))
		if err := t.restrict(f); err != nil {
			return 0, err
		}
	}
	if hostID != nil {
		f.eq(HostIDColumn, *hostID)
	}
	return t.exec(ctx, "DELETE FROM "+quote(t.Name())+f.String(), f.args)
}

// Clear removes all rows, or the rows of *typ.
func (t *Table) Clear(ctx context.Context, typ *types.IdentityType) (int64, error) {
	f := &filter{}
	if typ != nil {
		if err := t.responsible(*typ); err != nil {
			return 0, err
		}
		f.eq(IdentityTypeColumn, int64(*typ))
	}
	if err := t.restrict(f); err != nil {
		return 0, err
	}
	return t.exec(ctx, "DELETE FROM "+quote(t.Name())+f.String(), f.args)
}

func (t *Table) exec(ctx context.Context, q string, args []any) (int64, error) {
	res, err := t.store.Exec(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting from %s: %w", t.Name(), err)
	}
	return res.RowsAffected()
}

// findQuery builds the statement shared by Count and FindEndpoints.
// projection is the select list; ordered adds ORDER BY (defaulting to the
// primary key).
func (t *Table) findQuery(opts types.FindOptions, projection string, ordered bool) (string, []any, error) {
	f := &filter{}
	if opts.Type != nil {
		if err := t.responsible(*opts.Type); err != nil {
			return "", nil, err
		}
		f.eq(IdentityTypeColumn, int64(*opts.Type))
	}
	for _, w := range opts.Where {
		f.raw(w)
	}
	f.args = append(f.args, opts.Params...)
	if err := t.restrict(f); err != nil {
		return "", nil, err
	}

	var order []string
	for _, o := range opts.OrderBy {
		if !t.schema.HasColumn(o.Column) {
			return "", nil, &types.ColumnError{Kind: types.ErrColumnNotFound, Table: t.Name(), Column: o.Column}
		}
		term := quote(o.Column)
		if o.Desc {
			term += " DESC"
		} else {
			term += " ASC"
		}
		order = append(order, term)
	}
	if ordered && len(order) == 0 {
		order = quoteAll(t.schema.primary)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s%s", projection, quote(t.Name()), f)
	if len(order) > 0 {
		b.WriteString(" ORDER BY " + strings.Join(order, ", "))
	}
	b.WriteString(t.store.Dialect().LimitOffset(opts.Limit, opts.Offset))
	return b.String(), f.args, nil
}

// Count returns the number of rows matching opts, honouring Limit and Offset.
func (t *Table) Count(ctx context.Context, opts types.FindOptions) (int64, error) {
	var (
		q    string
		args []any
		err  error
	)
	if opts.Limit > 0 || opts.Offset > 0 {
		var inner string
		inner, args, err = t.findQuery(opts, "1", len(opts.OrderBy) > 0)
		q = "SELECT COUNT(*) FROM (" + inner + ") AS counted"
	} else {
		q, args, err = t.findQuery(opts, "COUNT(*)", false)
	}
	if err != nil {
		return 0, err
	}

	var n int64
	if err := t.store.QueryRow(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", t.Name(), err)
	}
	return n, nil
}

// FindEndpoints returns the endpoint ids of the rows matching opts, ordered
// by the primary key unless opts.OrderBy is set.
func (t *Table) FindEndpoints(ctx context.Context, opts types.FindOptions) ([]string, error) {
	q, args, err := t.findQuery(opts, strings.Join(quoteAll(t.schema.encoded), ", "), true)
	if err != nil {
		return nil, err
	}
	rows, err := t.store.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("finding endpoints in %s: %w", t.Name(), err)
	}
	endpoints, err := t.scanEndpoints(rows)
	if err != nil {
		return nil, err
	}
	if endpoints == nil {
		endpoints = []string{}
	}
	return endpoints, nil
}

// keyExpr concatenates the primary columns server-side. The delimiter is
// bound once per gap, so the expression consumes len(primary)-1 arguments.
func (t *Table) keyExpr() (string, []any) {
	d := t.store.Dialect()
	delim := t.currentCodec().Delimiter()
	parts := make([]string, 0, 2*len(t.schema.primary))
	var args []any
	for i, col := range t.schema.primary {
		if i > 0 {
			parts = append(parts, "?")
			args = append(args, delim)
		}
		parts = append(parts, d.CastText(quote(col)))
	}
	return strings.Join(parts, " || "), args
}

// key joins the canonical primary values of r the way keyExpr does.
func (t *Table) key(r row) string {
	vals := make([]string, 0, len(t.schema.primary))
	for _, col := range t.schema.primary {
		_, c := r.get(col)
		vals = append(vals, c)
	}
	return t.currentCodec().Encode(vals)
}

// FilterMapped returns the candidates whose primary key is not stored yet,
// in input order and with duplicates kept. Existence is checked with one
// statement per chunk of filterChunkSize distinct keys, comparing the
// server-side concatenation of the key columns against client-built keys.
func (t *Table) FilterMapped(ctx context.Context, candidates []string) ([]string, error) {
	if len(candidates) == 0 {
		return []string{}, nil
	}

	keys := make([]string, len(candidates))
	var distinct []string
	seen := make(map[string]bool, len(candidates))
	for i, c := range candidates {
		r, err := t.decode(c)
		if err != nil {
			return nil, err
		}
		keys[i] = t.key(r)
		if !seen[keys[i]] {
			seen[keys[i]] = true
			distinct = append(distinct, keys[i])
		}
	}

	rs, err := t.restrictions()
	if err != nil {
		return nil, err
	}
	expr, exprArgs := t.keyExpr()

	found := make(map[string]bool)
	for start := 0; start < len(distinct); start += filterChunkSize {
		end := min(start+filterChunkSize, len(distinct))
		chunk := distinct[start:end]

		var args []any
		args = append(args, exprArgs...)
		args = append(args, exprArgs...)
		for _, k := range chunk {
			args = append(args, k)
		}
		in := strings.TrimSuffix(strings.Repeat("?, ", len(chunk)), ", ")
		q := fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IN (%s)", expr, quote(t.Name()), expr, in)
		for _, r := range rs {
			q += " AND " + quote(r.Column) + " = ?"
			args = append(args, r.Value)
		}

		if err := t.collectKeys(ctx, q, args, found); err != nil {
			return nil, err
		}
	}

	out := make([]string, 0, len(candidates))
	for i, c := range candidates {
		if !found[keys[i]] {
			out = append(out, c)
		}
	}
	return out, nil
}

func (t *Table) collectKeys(ctx context.Context, q string, args []any, found map[string]bool) error {
	rows, err := t.store.Query(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("filtering mapped endpoints in %s: %w", t.Name(), err)
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return fmt.Errorf("scanning %s key: %w", t.Name(), err)
		}
		found[k] = true
	}
	return rows.Err()
}

// Rows returns every visible mapping in key order.
func (t *Table) Rows(ctx context.Context) ([]types.Mapping, error) {
	f := &filter{}
	if err := t.restrict(f); err != nil {
		return nil, err
	}
	cols := append(quoteAll(t.schema.encoded), quote(HostIDColumn))
	q := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s",
		strings.Join(cols, ", "), quote(t.Name()), f,
		strings.Join(quoteAll(t.schema.primary), ", "))
	rows, err := t.store.Query(ctx, q, f.args...)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", t.Name(), err)
	}
	defer rows.Close()

	codec := t.currentCodec()
	n := len(t.schema.encoded)
	var out []types.Mapping
	for rows.Next() {
		vals := make([]sql.NullString, n)
		var host sql.NullInt64
		dest := make([]any, 0, n+1)
		for i := range vals {
			dest = append(dest, &vals[i])
		}
		dest = append(dest, &host)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", t.Name(), err)
		}
		parts := make([]string, n)
		for i, v := range vals {
			parts[i] = v.String
		}
		m := types.Mapping{Endpoint: codec.Encode(parts)}
		if host.Valid {
			h := host.Int64
			m.HostID = &h
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading %s rows: %w", t.Name(), err)
	}
	return out, nil
}

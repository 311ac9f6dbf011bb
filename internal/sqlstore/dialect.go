package sqlstore

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mesh-intelligence/idmap/pkg/types"
)

// Dialect isolates the SQL differences between the supported backends.
// Statements are always written with ? placeholders and rebound on execution.
type Dialect interface {
	// Name returns the backend name (types.BackendSQLite, types.BackendPostgres).
	Name() string

	// DriverName returns the database/sql driver name.
	DriverName() string

	// Rebind rewrites ? placeholders into the dialect's bind syntax.
	Rebind(query string) string

	// ColumnType returns the DDL type for an endpoint column.
	ColumnType(st types.StorageType, opts map[string]any) string

	// BigIntType returns the DDL type used for host ids.
	BigIntType() string

	// CastText wraps expr so that it evaluates to text.
	CastText(expr string) string

	// LimitOffset returns the LIMIT/OFFSET suffix, or "" when both are zero.
	LimitOffset(limit, offset int) string

	// IsUniqueViolation reports whether err is a primary key or unique
	// constraint violation.
	IsUniqueViolation(err error) bool
}

// DialectFor returns the Dialect for a backend name.
func DialectFor(backend string) (Dialect, error) {
	switch backend {
	case types.BackendSQLite:
		return SQLite, nil
	case types.BackendPostgres:
		return Postgres, nil
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrBackendUnknown, backend)
	}
}

// Supported dialects.
var (
	SQLite   Dialect = sqliteDialect{}
	Postgres Dialect = postgresDialect{}
)

// defaultStringLength is the VARCHAR length when the length option is absent.
const defaultStringLength = 255

func stringLength(opts map[string]any) int {
	switch v := opts[types.OptionLength].(type) {
	case int:
		if v > 0 {
			return v
		}
	case int64:
		if v > 0 {
			return int(v)
		}
	case float64:
		if v > 0 {
			return int(v)
		}
	}
	return defaultStringLength
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string       { return types.BackendSQLite }
func (sqliteDialect) DriverName() string { return "sqlite" }
func (sqliteDialect) Rebind(q string) string {
	return q
}

func (sqliteDialect) ColumnType(st types.StorageType, opts map[string]any) string {
	switch st {
	case types.StorageInteger:
		return "INTEGER"
	case types.StorageString:
		return fmt.Sprintf("VARCHAR(%d)", stringLength(opts))
	default:
		return "TEXT"
	}
}

func (sqliteDialect) BigIntType() string { return "INTEGER" }

func (sqliteDialect) CastText(expr string) string {
	return "CAST(" + expr + " AS TEXT)"
}

func (sqliteDialect) LimitOffset(limit, offset int) string {
	switch {
	case limit > 0 && offset > 0:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	case limit > 0:
		return fmt.Sprintf(" LIMIT %d", limit)
	case offset > 0:
		// SQLite requires a LIMIT clause before OFFSET.
		return fmt.Sprintf(" LIMIT -1 OFFSET %d", offset)
	}
	return ""
}

func (sqliteDialect) IsUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		// Primary result code only: fall back to the message.
		return strings.Contains(se.Error(), "UNIQUE constraint failed")
	}
	return false
}

type postgresDialect struct{}

// pgUniqueViolation is SQLSTATE unique_violation.
const pgUniqueViolation = "23505"

func (postgresDialect) Name() string       { return types.BackendPostgres }
func (postgresDialect) DriverName() string { return "pgx" }

// Rebind numbers ? placeholders as $1, $2, ... skipping quoted literals.
func (postgresDialect) Rebind(q string) string {
	if !strings.Contains(q, "?") {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(q); i++ {
		c := q[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func (postgresDialect) ColumnType(st types.StorageType, opts map[string]any) string {
	switch st {
	case types.StorageInteger:
		return "BIGINT"
	case types.StorageString:
		return fmt.Sprintf("VARCHAR(%d)", stringLength(opts))
	default:
		return "TEXT"
	}
}

func (postgresDialect) BigIntType() string { return "BIGINT" }

func (postgresDialect) CastText(expr string) string {
	return "CAST(" + expr + " AS TEXT)"
}

func (postgresDialect) LimitOffset(limit, offset int) string {
	switch {
	case limit > 0 && offset > 0:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	case limit > 0:
		return fmt.Sprintf(" LIMIT %d", limit)
	case offset > 0:
		return fmt.Sprintf(" OFFSET %d", offset)
	}
	return ""
}

func (postgresDialect) IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

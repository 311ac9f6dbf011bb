package sqlstore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/idmap/pkg/types"
)

func TestDialectFor(t *testing.T) {
	d, err := DialectFor(types.BackendSQLite)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.DriverName())

	d, err = DialectFor(types.BackendPostgres)
	require.NoError(t, err)
	assert.Equal(t, "pgx", d.DriverName())

	_, err = DialectFor("oracle")
	assert.ErrorIs(t, err, types.ErrBackendUnknown)
}

func TestPostgresRebind(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "no placeholders", in: "SELECT 1", want: "SELECT 1"},
		{name: "numbered in order", in: "SELECT a FROM t WHERE b = ? AND c = ?", want: "SELECT a FROM t WHERE b = $1 AND c = $2"},
		{name: "quoted literal skipped", in: "SELECT '?' || a FROM t WHERE b = ?", want: "SELECT '?' || a FROM t WHERE b = $1"},
		{name: "in list", in: "x IN (?, ?, ?)", want: "x IN ($1, $2, $3)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Postgres.Rebind(tt.in))
		})
	}
	assert.Equal(t, "a = ?", SQLite.Rebind("a = ?"))
}

func TestColumnType(t *testing.T) {
	tests := []struct {
		d    Dialect
		st   types.StorageType
		opts map[string]any
		want string
	}{
		{SQLite, types.StorageInteger, nil, "INTEGER"},
		{SQLite, types.StorageString, nil, "VARCHAR(255)"},
		{SQLite, types.StorageString, map[string]any{types.OptionLength: 64}, "VARCHAR(64)"},
		{SQLite, types.StorageText, nil, "TEXT"},
		{Postgres, types.StorageInteger, nil, "BIGINT"},
		{Postgres, types.StorageString, map[string]any{types.OptionLength: float64(32)}, "VARCHAR(32)"},
		{Postgres, types.StorageString, map[string]any{types.OptionLength: -1}, "VARCHAR(255)"},
		{Postgres, types.StorageText, nil, "TEXT"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.d.Name(), tt.want), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.d.ColumnType(tt.st, tt.opts))
		})
	}
}

func TestLimitOffset(t *testing.T) {
	tests := []struct {
		limit, offset int
		sqlite        string
		postgres      string
	}{
		{0, 0, "", ""},
		{10, 0, " LIMIT 10", " LIMIT 10"},
		{10, 5, " LIMIT 10 OFFSET 5", " LIMIT 10 OFFSET 5"},
		{0, 5, " LIMIT -1 OFFSET 5", " OFFSET 5"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.sqlite, SQLite.LimitOffset(tt.limit, tt.offset))
		assert.Equal(t, tt.postgres, Postgres.LimitOffset(tt.limit, tt.offset))
	}
}

func TestPostgresIsUniqueViolation(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505"}
	assert.True(t, Postgres.IsUniqueViolation(dup))
	assert.True(t, Postgres.IsUniqueViolation(fmt.Errorf("insert: %w", dup)))
	assert.False(t, Postgres.IsUniqueViolation(&pgconn.PgError{Code: "23502"}))
	assert.False(t, Postgres.IsUniqueViolation(errors.New("boom")))
	assert.False(t, SQLite.IsUniqueViolation(dup))
}

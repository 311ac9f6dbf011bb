package mapping

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/idmap/internal/sqlstore"
	"github.com/mesh-intelligence/idmap/pkg/types"
)

// newStore opens a SQLite store in a temp directory.
func newStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	s, err := sqlstore.Open(context.Background(), types.Config{
		Backend: types.BackendSQLite,
		DataDir: t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// pairSchema has two primary integer columns and a non-primary note, serving
// types 1 and 4.
func pairSchema(t *testing.T, name string) *Schema {
	t.Helper()
	s, err := Define(name, []types.IdentityType{1, 4}, func(b *Builder) {
		b.AddEndpointColumn("id1", types.StorageInteger, nil, true).
			AddEndpointColumn("id2", types.StorageInteger, nil, true).
			AddEndpointColumn("note", types.StorageText, nil, false)
	})
	require.NoError(t, err)
	return s
}

// newPairTable installs pairSchema on a fresh store.
func newPairTable(t *testing.T) *Table {
	t.Helper()
	table := NewTable(newStore(t), pairSchema(t, "pair_map"))
	require.NoError(t, table.Install(context.Background()))
	return table
}

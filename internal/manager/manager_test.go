package manager

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/idmap/internal/mapping"
	"github.com/mesh-intelligence/idmap/internal/sqlstore"
	"github.com/mesh-intelligence/idmap/pkg/types"
)

// setupManager registers a table serving type 1 with primary columns id1
// and id2 and a non-primary note column.
func setupManager(t *testing.T, opts ...mapping.RegistryOption) (*Manager, *sqlstore.Store) {
	t.Helper()
	ctx := context.Background()
	store, err := sqlstore.Open(ctx, types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	schema, err := mapping.Define("example_map", []types.IdentityType{1}, func(b *mapping.Builder) {
		b.AddEndpointColumn("id1", types.StorageInteger, nil, true).
			AddEndpointColumn("id2", types.StorageInteger, nil, true).
			AddEndpointColumn("note", types.StorageString, nil, false)
	})
	require.NoError(t, err)
	table := mapping.NewTable(store, schema)
	require.NoError(t, table.Install(ctx))

	reg := mapping.NewRegistry(opts...)
	require.NoError(t, reg.Set(table))
	return New(reg), store
}

func TestManager_EndToEnd(t *testing.T) {
	ctx := context.Background()
	m, _ := setupManager(t)

	for _, s := range []struct {
		endpoint string
		host     int64
	}{
		{"1||1||foo", 3},
		{"1||2||bar", 2},
		{"4||2||foobar", 5},
	} {
		ok, err := m.Save(ctx, 1, s.endpoint, s.host)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	id, ok, err := m.HostID(ctx, 1, "1||1||foo")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(3), id)

	endpoint, ok, err := m.EndpointID(ctx, 1, 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1||2||bar", endpoint)

	n, err := m.Count(ctx, types.Of(1))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	deleted, err := m.Delete(ctx, 1, "1||1||foo", nil)
	require.NoError(t, err)
	assert.True(t, deleted)

	n, err = m.Count(ctx, types.Of(1))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	unmapped, err := m.FilterMappedEndpointIDs(ctx, 1, []string{"1||1||foo", "1||2||bar", "2||1||x"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1||1||foo", "2||1||x"}, unmapped)

	all, err := m.FindAllEndpointIDs(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"1||2||bar", "4||2||foobar"}, all)
}

func TestManager_DeleteReportsNothingRemoved(t *testing.T) {
	ctx := context.Background()
	m, _ := setupManager(t)

	deleted, err := m.Delete(ctx, 1, "9||9||none", nil)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = m.Save(ctx, 1, "1||1||a", 10)
	require.NoError(t, err)
	other := int64(11)
	deleted, err = m.Delete(ctx, 1, "1||1||a", &other)
	require.NoError(t, err)
	assert.False(t, deleted, "host id guard did not match")
}

func TestManager_Strict(t *testing.T) {
	ctx := context.Background()
	m, _ := setupManager(t)

	_, _, err := m.HostID(ctx, 2, "1||1||x")
	assert.ErrorIs(t, err, types.ErrTableForTypeNotFound)
	_, err = m.Save(ctx, 2, "1||1||x", 1)
	assert.ErrorIs(t, err, types.ErrTableForTypeNotFound)
	_, err = m.Count(ctx, types.Of(2))
	assert.ErrorIs(t, err, types.ErrTableForTypeNotFound)
	_, err = m.Clear(ctx, types.Of(2))
	assert.ErrorIs(t, err, types.ErrTableForTypeNotFound)
}

func TestManager_Lenient(t *testing.T) {
	ctx := context.Background()
	m, _ := setupManager(t, mapping.Lenient())

	saved, err := m.Save(ctx, 2, "1||1||x", 1)
	require.NoError(t, err)
	assert.False(t, saved, "dummy table writes nothing")

	_, ok, err := m.HostID(ctx, 2, "1||1||x")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := m.Count(ctx, types.Of(2))
	require.NoError(t, err)
	assert.Zero(t, n)

	all, err := m.FindAllEndpointIDs(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, all)

	unmapped, err := m.FilterMappedEndpointIDs(ctx, 2, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, unmapped)

	cleared, err := m.Clear(ctx, types.Of(2))
	require.NoError(t, err)
	assert.True(t, cleared)
}

func TestManager_CountAndClearAcrossTables(t *testing.T) {
	ctx := context.Background()
	m, store := setupManager(t)

	schema, err := mapping.Define("second_map", []types.IdentityType{2, 3}, func(b *mapping.Builder) {
		b.AddEndpointColumn("code", types.StorageString, nil, true)
	})
	require.NoError(t, err)
	second := mapping.NewTable(store, schema)
	require.NoError(t, second.Install(ctx))
	require.NoError(t, m.Registry().Set(second))

	for _, s := range []struct {
		typ      types.IdentityType
		endpoint string
	}{
		{1, "1||1||a"},
		{2, "x"},
		{3, "y"},
		{3, "z"},
	} {
		_, err := m.Save(ctx, s.typ, s.endpoint, 1)
		require.NoError(t, err)
	}

	total, err := m.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)

	n, err := m.Count(ctx, types.Of(3))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	cleared, err := m.Clear(ctx, types.Of(3))
	require.NoError(t, err)
	assert.True(t, cleared)
	n, err = m.Count(ctx, types.Of(2))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "clearing one type keeps the table's other types")

	cleared, err = m.Clear(ctx, nil)
	require.NoError(t, err)
	assert.True(t, cleared)
	total, err = m.Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestManager_DummyFallbackIsLogged(t *testing.T) {
	ctx := context.Background()
	store, err := sqlstore.Open(ctx, types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	schema, err := mapping.Define(mapping.DummyTableName, []types.IdentityType{1}, func(b *mapping.Builder) {
		b.AddEndpointColumn("id", types.StorageInteger, nil, true)
	})
	require.NoError(t, err)
	table := mapping.NewTable(store, schema)
	require.NoError(t, table.Install(ctx))

	reg := mapping.NewRegistry(mapping.Lenient())
	require.NoError(t, reg.Set(table))

	var logs bytes.Buffer
	m := New(reg, WithLogger(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))))

	saved, err := m.Save(ctx, 1, "5", 1)
	require.NoError(t, err)
	assert.True(t, saved, "user table named dummy persists")
	assert.NotContains(t, logs.String(), "using dummy")

	_, _, err = m.HostID(ctx, 2, "5")
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "using dummy")
}

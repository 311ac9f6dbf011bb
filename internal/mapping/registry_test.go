package mapping

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/idmap/pkg/types"
)

func schemaFor(t *testing.T, name string, ids ...types.IdentityType) *Schema {
	t.Helper()
	s, err := Define(name, ids, func(b *Builder) {
		b.AddEndpointColumn("id", types.StorageInteger, nil, true)
	})
	require.NoError(t, err)
	return s
}

func TestRegistry_Strict(t *testing.T) {
	store := newStore(t)
	products := NewTable(store, schemaFor(t, "products", 1, 2))
	orders := NewTable(store, schemaFor(t, "orders", 3))

	r := NewRegistry()
	assert.False(t, r.IsLenient())
	require.NoError(t, r.Set(products))
	require.NoError(t, r.Set(orders))
	require.NoError(t, r.Set(products), "re-registering the same table is a no-op")
	assert.Len(t, r.Tables(), 2)

	got, err := r.Get(2)
	require.NoError(t, err)
	assert.Same(t, products, got)

	got, err = r.Get(3)
	require.NoError(t, err)
	assert.Same(t, orders, got)

	_, err = r.Get(7)
	var te *types.TypeError
	require.True(t, errors.As(err, &te))
	assert.ErrorIs(t, err, types.ErrTableForTypeNotFound)
	assert.Equal(t, types.IdentityType(7), te.Type)
}

func TestRegistry_Collision(t *testing.T) {
	store := newStore(t)
	first := NewTable(store, schemaFor(t, "first", 1, 2))
	second := NewTable(store, schemaFor(t, "second", 2, 3))

	r := NewRegistry()
	require.NoError(t, r.Set(first))
	err := r.Set(second)
	require.ErrorIs(t, err, types.ErrTypeAlreadyRegistered)
	var te *types.TypeError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "first", te.Table)
	assert.Equal(t, types.IdentityType(2), te.Type)

	_, err = r.Get(3)
	assert.ErrorIs(t, err, types.ErrTableForTypeNotFound, "rejected table is not partially registered")
}

func TestRegistry_Remove(t *testing.T) {
	store := newStore(t)
	a := NewTable(store, schemaFor(t, "a", 1, 2))
	b := NewTable(store, schemaFor(t, "b", 3))

	r := NewRegistry()
	require.NoError(t, r.Set(a))
	require.NoError(t, r.Set(b))

	require.NoError(t, r.RemoveType(1))
	_, err := r.Get(2)
	assert.ErrorIs(t, err, types.ErrTableForTypeNotFound, "the whole owning table is removed")
	assert.ErrorIs(t, r.RemoveType(1), types.ErrTableForTypeNotFound)

	assert.True(t, r.Remove(b))
	assert.False(t, r.Remove(b))
	assert.Empty(t, r.Tables())

	require.NoError(t, r.Set(a), "types are free again after removal")
}

func TestIsDummy_NamedUserTable(t *testing.T) {
	s, err := Define(DummyTableName, []types.IdentityType{1}, func(b *Builder) {
		b.AddEndpointColumn("id", types.StorageInteger, nil, true)
	})
	require.NoError(t, err)
	assert.False(t, IsDummy(NewTable(newStore(t), s)))
}

func TestRegistry_Lenient(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(Lenient())
	assert.True(t, r.IsLenient())

	table, err := r.Get(42)
	require.NoError(t, err)
	assert.Equal(t, DummyTableName, table.Name())
	assert.True(t, IsDummy(table))
	assert.True(t, table.IsResponsible(42))

	n, err := table.Save(ctx, "42||1", 1)
	require.NoError(t, err)
	assert.Zero(t, n)

	count, err := table.Count(ctx, types.FindOptions{})
	require.NoError(t, err)
	assert.Zero(t, count)

	found, err := table.FindEndpoints(ctx, types.FindOptions{})
	require.NoError(t, err)
	assert.Empty(t, found)

	_, ok, err := table.HostID(ctx, "42||1")
	require.NoError(t, err)
	assert.False(t, ok)

	candidates := []string{"42||1", "42||2"}
	unmapped, err := table.FilterMapped(ctx, candidates)
	require.NoError(t, err)
	assert.Equal(t, candidates, unmapped)

	n, err = table.Delete(ctx, 42, "42||1", nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = table.Clear(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	t.Run("registered types still resolve to their table", func(t *testing.T) {
		concrete := NewTable(newStore(t), schemaFor(t, "real", 5))
		require.NoError(t, r.Set(concrete))
		got, err := r.Get(5)
		require.NoError(t, err)
		assert.Same(t, concrete, got)
	})
}

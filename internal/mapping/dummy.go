package mapping

import (
	"context"

	"github.com/mesh-intelligence/idmap/pkg/types"
)

// Compile-time interface check: dummyTable must implement MappingTable.
var _ types.MappingTable = dummyTable{}

// dummyTable stands in for unconfigured types in lenient registries. It
// accepts every type and behaves like an empty table that never persists.
type dummyTable struct{}

// DummyTableName is the name reported by the lenient stand-in table.
const DummyTableName = "dummy"

// IsDummy reports whether table is the lenient stand-in. A user table that
// happens to be named DummyTableName is not.
func IsDummy(table types.MappingTable) bool {
	_, ok := table.(dummyTable)
	return ok
}

func (dummyTable) Name() string { return DummyTableName }
func (dummyTable) Types() []types.IdentityType { return nil }
func (dummyTable) IsResponsible(types.IdentityType) bool { return true }
func (dummyTable) Delimiter() string { return types.DefaultDelimiter }

func (dummyTable) HostID(context.Context, string) (int64, bool, error) {
	return 0, false, nil
}

func (dummyTable) Endpoint(context.Context, types.IdentityType, int64) (string, bool, error) {
	return "", false, nil
}

func (dummyTable) Save(context.Context, string, int64) (int64, error) { return 0, nil }

func (dummyTable) SaveAll(context.Context, []types.Mapping) (int64, error) { return 0, nil }

func (dummyTable) Delete(context.Context, types.IdentityType, string, *int64) (int64, error) {
	return 0, nil
}

func (dummyTable) Clear(context.Context, *types.IdentityType) (int64, error) { return 0, nil }

func (dummyTable) Count(context.Context, types.FindOptions) (int64, error) { return 0, nil }

func (dummyTable) FindEndpoints(context.Context, types.FindOptions) ([]string, error) {
	return []string{}, nil
}

// FilterMapped reports every candidate as unmapped, as an empty table would.
func (dummyTable) FilterMapped(_ context.Context, candidates []string) ([]string, error) {
	return append([]string{}, candidates...), nil
}

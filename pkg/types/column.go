package types

import (
	"fmt"
	"math"
	"strings"
)

// IdentityType discriminates entity categories (products, orders, ...) that
// share a mapping table.
type IdentityType int

// Of returns a pointer to t, for optional type filters.
func Of(t IdentityType) *IdentityType { return &t }

// ParseIdentityType converts a decoded configuration value into an
// IdentityType. Only integer values within the range of int are accepted;
// floats with a fractional part, out-of-range numbers, strings, and booleans
// return ErrTypesWrongDataType.
func ParseIdentityType(v any) (IdentityType, error) {
	switch n := v.(type) {
	case IdentityType:
		return n, nil
	case int:
		return IdentityType(n), nil
	case int8:
		return IdentityType(n), nil
	case int16:
		return IdentityType(n), nil
	case int32:
		return identityFromInt64(v, int64(n))
	case int64:
		return identityFromInt64(v, n)
	case uint:
		return identityFromUint64(v, uint64(n))
	case uint8:
		return IdentityType(n), nil
	case uint16:
		return IdentityType(n), nil
	case uint32:
		return identityFromUint64(v, uint64(n))
	case uint64:
		return identityFromUint64(v, n)
	case float64:
		return identityFromFloat64(v, n)
	case float32:
		return identityFromFloat64(v, float64(n))
	}
	return 0, wrongType(v)
}

func identityFromInt64(v any, n int64) (IdentityType, error) {
	if n < math.MinInt || n > math.MaxInt {
		return 0, wrongType(v)
	}
	return IdentityType(n), nil
}

func identityFromUint64(v any, n uint64) (IdentityType, error) {
	if n > math.MaxInt {
		return 0, wrongType(v)
	}
	return IdentityType(n), nil
}

// identityFromFloat64 accepts whole numbers in [MinInt, MaxInt]. The upper
// bound is exclusive because float64(MaxInt) rounds up to 2^63.
func identityFromFloat64(v any, n float64) (IdentityType, error) {
	if n != math.Trunc(n) || n < math.MinInt || n >= -float64(math.MinInt) {
		return 0, wrongType(v)
	}
	return IdentityType(n), nil
}

func wrongType(v any) error {
	return fmt.Errorf("%w: %v (%T)", ErrTypesWrongDataType, v, v)
}

// ParseIdentityTypes converts a list of configuration values. An empty list
// returns ErrTypesArrayEmpty.
func ParseIdentityTypes(values []any) ([]IdentityType, error) {
	if len(values) == 0 {
		return nil, ErrTypesArrayEmpty
	}
	out := make([]IdentityType, 0, len(values))
	for _, v := range values {
		t, err := ParseIdentityType(v)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// StorageType is the relational storage class of an endpoint column.
type StorageType int

// Supported storage types.
const (
	StorageInteger StorageType = iota + 1
	StorageString
	StorageText
)

var storageTypeNames = map[StorageType]string{
	StorageInteger: "integer",
	StorageString:  "string",
	StorageText:    "text",
}

func (s StorageType) String() string {
	if name, ok := storageTypeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("StorageType(%d)", int(s))
}

// ParseStorageType maps a configuration name (integer, string, text) to a
// StorageType. Matching is case-insensitive.
func ParseStorageType(name string) (StorageType, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	for st, n := range storageTypeNames {
		if n == lower {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown storage type %q", name)
}

// Column option keys.
const (
	OptionLength  = "length"
	OptionNotNull = "not_null"
)

// EndpointColumn is one segment of a composite endpoint id. Primary columns
// form the relational primary key; non-primary columns are stored and encoded
// but take no part in lookups.
type EndpointColumn struct {
	Name    string         `json:"name" yaml:"name"`
	Storage StorageType    `json:"storage" yaml:"storage"`
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
	Primary bool           `json:"primary" yaml:"primary"`
}

// ScopeColumn is a tenant column filled from a table restriction. It is part
// of the primary key but not of the endpoint encoding.
type ScopeColumn struct {
	Name    string      `json:"name" yaml:"name"`
	Storage StorageType `json:"storage" yaml:"storage"`
	Default any         `json:"default" yaml:"default"`
}

// TableDefinition describes a mapping table before its schema is built.
type TableDefinition struct {
	Name    string
	Types   []IdentityType
	Columns []EndpointColumn
	Scopes  []ScopeColumn
}

// Mapping associates one endpoint id with a host id.
type Mapping struct {
	Endpoint string `json:"endpoint"`
	HostID   *int64 `json:"host_id"`
}

// Order is one ORDER BY term.
type Order struct {
	Column string
	Desc   bool
}

// FindOptions filters Count and FindEndpoints. Where clauses are ANDed and
// use ? placeholders bound from Params. A zero Limit means no limit.
type FindOptions struct {
	Type    *IdentityType
	Where   []string
	Params  []any
	OrderBy []Order
	Limit   int
	Offset  int
}

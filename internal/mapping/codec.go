package mapping

import (
	"strings"

	"github.com/mesh-intelligence/idmap/pkg/types"
)

// ColumnValue is one decoded endpoint segment.
type ColumnValue struct {
	Column string
	Value  string
}

// Codec splits endpoint ids into column values and joins them back.
type Codec struct {
	delimiter string
}

// NewCodec returns a Codec using delimiter, or types.DefaultDelimiter when
// delimiter is empty.
func NewCodec(delimiter string) Codec {
	if delimiter == "" {
		delimiter = types.DefaultDelimiter
	}
	return Codec{delimiter: delimiter}
}

// Delimiter returns the segment separator.
func (c Codec) Delimiter() string { return c.delimiter }

// Decode splits endpoint and pairs the parts with columns in order. It fails
// with ErrColumnDataMissing naming the first column without a part. Parts
// beyond the declared columns are discarded.
func (c Codec) Decode(endpoint string, columns []string) ([]ColumnValue, error) {
	parts := strings.Split(endpoint, c.delimiter)
	values := make([]ColumnValue, 0, len(columns))
	for i, col := range columns {
		if i >= len(parts) {
			return nil, &types.ColumnError{Kind: types.ErrColumnDataMissing, Column: col}
		}
		values = append(values, ColumnValue{Column: col, Value: parts[i]})
	}
	return values, nil
}

// Encode joins values with the delimiter. Values must already be in column
// declaration order.
func (c Codec) Encode(values []string) string {
	return strings.Join(values, c.delimiter)
}

package mapping

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/idmap/pkg/types"
)

func TestCodecDecode(t *testing.T) {
	c := NewCodec("")
	assert.Equal(t, types.DefaultDelimiter, c.Delimiter())
	cols := []string{"identity_type", "id", "site"}

	tests := []struct {
		name       string
		endpoint   string
		want       []ColumnValue
		missingCol string
	}{
		{
			name:     "exact arity",
			endpoint: "1||42||eu",
			want: []ColumnValue{
				{Column: "identity_type", Value: "1"},
				{Column: "id", Value: "42"},
				{Column: "site", Value: "eu"},
			},
		},
		{
			name:     "extra parts discarded",
			endpoint: "1||42||eu||spare||more",
			want: []ColumnValue{
				{Column: "identity_type", Value: "1"},
				{Column: "id", Value: "42"},
				{Column: "site", Value: "eu"},
			},
		},
		{
			name:     "empty segments kept",
			endpoint: "1||||",
			want: []ColumnValue{
				{Column: "identity_type", Value: "1"},
				{Column: "id", Value: ""},
				{Column: "site", Value: ""},
			},
		},
		{name: "first missing column reported", endpoint: "1||42", missingCol: "site"},
		{name: "single part", endpoint: "1", missingCol: "id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Decode(tt.endpoint, cols)
			if tt.missingCol != "" {
				require.ErrorIs(t, err, types.ErrColumnDataMissing)
				var ce *types.ColumnError
				require.True(t, errors.As(err, &ce))
				assert.Equal(t, tt.missingCol, ce.Column)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCodecRoundTrip(t *testing.T) {
	for _, delim := range []string{"||", ":", "--"} {
		c := NewCodec(delim)
		values := []string{"4", "2", "foobar"}
		encoded := c.Encode(values)
		decoded, err := c.Decode(encoded, []string{"a", "b", "c"})
		require.NoError(t, err)
		for i, v := range decoded {
			assert.Equal(t, values[i], v.Value, "delimiter %q", delim)
		}
	}
}

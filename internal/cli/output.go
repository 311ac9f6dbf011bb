package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/mesh-intelligence/idmap/pkg/types"
)

// errNoMapping is returned by lookups that find nothing.
var errNoMapping = errors.New("no mapping")

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseType(s string) (types.IdentityType, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", types.ErrTypesWrongDataType, s)
	}
	return types.IdentityType(n), nil
}

func parseHostID(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid host id %q", s)
	}
	return n, nil
}

// optionalType parses the first argument, if present, into a type filter.
func optionalType(args []string) (*types.IdentityType, error) {
	if len(args) == 0 {
		return nil, nil
	}
	t, err := parseType(args[0])
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// storeError classifies err: domain errors stay user errors, everything
// else is reported as a system failure.
func storeError(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{
		types.ErrColumnDataMissing,
		types.ErrColumnNotFound,
		types.ErrColumnValueInvalid,
		types.ErrTableForTypeNotFound,
		types.ErrTableNotFound,
		types.ErrTableNotResponsibleForType,
		types.ErrTypesWrongDataType,
		types.ErrTypeNotFound,
	} {
		if errors.Is(err, kind) {
			return err
		}
	}
	return sysError(err)
}

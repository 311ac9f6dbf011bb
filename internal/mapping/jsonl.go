package mapping

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mesh-intelligence/idmap/pkg/types"
)

// WriteJSONL writes one JSON object per mapping to w.
func WriteJSONL(w io.Writer, mappings []types.Mapping) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, m := range mappings {
		if err := enc.Encode(m); err != nil {
			return fmt.Errorf("encoding mapping %q: %w", m.Endpoint, err)
		}
	}
	return bw.Flush()
}

// ReadJSONL parses mappings from r. Blank lines are skipped; a malformed
// line fails the whole read with its line number.
func ReadJSONL(r io.Reader) ([]types.Mapping, error) {
	var out []types.Mapping
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		b := bytes.TrimSpace(scanner.Bytes())
		if len(b) == 0 {
			continue
		}
		var m types.Mapping
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if m.Endpoint == "" {
			return nil, fmt.Errorf("line %d: %w: empty endpoint", line, types.ErrColumnDataMissing)
		}
		out = append(out, m)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning: %w", err)
	}
	return out, nil
}

// ExportFile writes every mapping of table to path atomically using the
// temp-file, fsync, rename pattern.
func ExportFile(ctx context.Context, table *Table, path string) (int, error) {
	mappings, err := table.Rows(ctx)
	if err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".idmap-*.jsonl.tmp")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(err error) (int, error) {
		tmp.Close()
		os.Remove(tmpName)
		return 0, err
	}

	if err := WriteJSONL(tmp, mappings); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("syncing temp file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("renaming temp file: %w", err)
	}
	return len(mappings), nil
}

// ImportFile loads mappings from path into table with a single bulk insert.
// Nothing is inserted when any mapping fails.
func ImportFile(ctx context.Context, table types.MappingTable, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	mappings, err := ReadJSONL(f)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(mappings) == 0 {
		return 0, nil
	}
	return table.SaveAll(ctx, mappings)
}

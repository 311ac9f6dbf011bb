package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/mesh-intelligence/idmap/internal/mapping"
	"github.com/mesh-intelligence/idmap/pkg/idmap"
	"github.com/mesh-intelligence/idmap/pkg/types"
	"github.com/spf13/cobra"
)

// tableInfo is the JSON form of a registered table.
type tableInfo struct {
	Name    string               `json:"name"`
	Types   []types.IdentityType `json:"types"`
	Columns []string             `json:"columns"`
	Primary []string             `json:"primary"`
	Rows    int64                `json:"rows"`
}

func newTablesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the configured mapping tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withMapper(cmd, func(ctx context.Context, m *idmap.Mapper) error {
				var infos []tableInfo
				for _, t := range m.Tables() {
					info := tableInfo{Name: t.Name(), Types: t.Types()}
					if mt, ok := t.(*mapping.Table); ok {
						info.Columns = mt.Schema().EncodedColumns()
						info.Primary = mt.Schema().PrimaryColumns()
					}
					n, err := t.Count(ctx, types.FindOptions{})
					if err != nil {
						return storeError(err)
					}
					info.Rows = n
					infos = append(infos, info)
				}
				if a.flags.jsonMode {
					if infos == nil {
						infos = []tableInfo{}
					}
					return printJSON(cmd.OutOrStdout(), infos)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tTYPES\tCOLUMNS\tROWS")
				for _, info := range infos {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", info.Name, joinTypes(info.Types),
						strings.Join(info.Columns, a.cfg.GetDelimiter()), info.Rows)
				}
				return tw.Flush()
			})
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <table> <file>",
		Short: "Write the mappings of a table to a JSONL file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withMapper(cmd, func(ctx context.Context, m *idmap.Mapper) error {
				n, err := m.Export(ctx, args[0], args[1])
				if err != nil {
					return storeError(err)
				}
				if a.flags.jsonMode {
					return printJSON(cmd.OutOrStdout(), map[string]any{"table": args[0], "exported": n})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "exported %d mappings from %s\n", n, args[0])
				return nil
			})
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <table> <file>",
		Short: "Load mappings from a JSONL file into a table",
		Long:  "Load mappings from a JSONL file into a table. The import runs in one\ntransaction: any failing line leaves the table unchanged.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withMapper(cmd, func(ctx context.Context, m *idmap.Mapper) error {
				n, err := m.Import(ctx, args[0], args[1])
				if err != nil {
					return storeError(err)
				}
				if a.flags.jsonMode {
					return printJSON(cmd.OutOrStdout(), map[string]any{"table": args[0], "imported": n})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d mappings into %s\n", n, args[0])
				return nil
			})
		},
	}
}

func joinTypes(ts []types.IdentityType) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = fmt.Sprint(int(t))
	}
	return strings.Join(parts, ",")
}

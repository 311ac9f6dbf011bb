package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mesh-intelligence/idmap/internal/mapping"
	"github.com/mesh-intelligence/idmap/pkg/idmap"
	"github.com/mesh-intelligence/idmap/pkg/types"
	"github.com/spf13/cobra"
)

func newHostCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "host <type> <endpoint>",
		Short: "Print the host id mapped to an endpoint id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, err := parseType(args[0])
			if err != nil {
				return err
			}
			return a.withMapper(cmd, func(ctx context.Context, m *idmap.Mapper) error {
				id, ok, err := m.HostID(ctx, typ, args[1])
				if err != nil {
					return storeError(err)
				}
				if !ok {
					return fmt.Errorf("%w for endpoint %q", errNoMapping, args[1])
				}
				if a.flags.jsonMode {
					return printJSON(cmd.OutOrStdout(), map[string]any{"type": typ, "endpoint": args[1], "host_id": id})
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
}

func newEndpointCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "endpoint <type> <host-id>",
		Short: "Print the endpoint id mapped to a host id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, err := parseType(args[0])
			if err != nil {
				return err
			}
			hostID, err := parseHostID(args[1])
			if err != nil {
				return err
			}
			return a.withMapper(cmd, func(ctx context.Context, m *idmap.Mapper) error {
				endpoint, ok, err := m.EndpointID(ctx, typ, hostID)
				if err != nil {
					return storeError(err)
				}
				if !ok {
					return fmt.Errorf("%w for host id %d", errNoMapping, hostID)
				}
				if a.flags.jsonMode {
					return printJSON(cmd.OutOrStdout(), map[string]any{"type": typ, "endpoint": endpoint, "host_id": hostID})
				}
				fmt.Fprintln(cmd.OutOrStdout(), endpoint)
				return nil
			})
		},
	}
}

func newSaveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "save <type> <endpoint> <host-id>",
		Short: "Store a new endpoint id to host id mapping",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, err := parseType(args[0])
			if err != nil {
				return err
			}
			hostID, err := parseHostID(args[2])
			if err != nil {
				return err
			}
			return a.withMapper(cmd, func(ctx context.Context, m *idmap.Mapper) error {
				saved, err := m.Save(ctx, typ, args[1], hostID)
				if err != nil {
					return storeError(err)
				}
				return printResult(cmd.OutOrStdout(), a.flags.jsonMode, "saved", saved)
			})
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	var hostID int64
	cmd := &cobra.Command{
		Use:   "delete <type> [endpoint]",
		Short: "Delete a mapping, or every mapping of a type when no endpoint is given",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, err := parseType(args[0])
			if err != nil {
				return err
			}
			endpoint := ""
			if len(args) == 2 {
				endpoint = args[1]
			}
			var hid *int64
			if cmd.Flags().Changed("host-id") {
				hid = &hostID
			}
			return a.withMapper(cmd, func(ctx context.Context, m *idmap.Mapper) error {
				deleted, err := m.Delete(ctx, typ, endpoint, hid)
				if err != nil {
					return storeError(err)
				}
				return printResult(cmd.OutOrStdout(), a.flags.jsonMode, "deleted", deleted)
			})
		},
	}
	cmd.Flags().Int64Var(&hostID, "host-id", 0, "only delete when the row maps to this host id")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	var (
		limit, offset int
		desc          bool
	)
	cmd := &cobra.Command{
		Use:   "list <type>",
		Short: "List the endpoint ids stored for a type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, err := parseType(args[0])
			if err != nil {
				return err
			}
			return a.withMapper(cmd, func(ctx context.Context, m *idmap.Mapper) error {
				p, err := m.Proxy(typ)
				if err != nil {
					return storeError(err)
				}
				opts := types.FindOptions{Limit: limit, Offset: offset}
				if desc {
					opts.OrderBy = []types.Order{{Column: mapping.HostIDColumn, Desc: true}}
				}
				endpoints, err := p.FindEndpoints(ctx, opts)
				if err != nil {
					return storeError(err)
				}
				return printList(cmd.OutOrStdout(), a.flags.jsonMode, endpoints)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of results")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of results to skip")
	cmd.Flags().BoolVar(&desc, "newest", false, "order by host id, highest first")
	return cmd
}

func newFilterCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "filter <type> [endpoint...]",
		Short: "Print the endpoint ids that are not mapped yet",
		Long:  "Print the given endpoint ids that have no mapping. Reads one id per line\nfrom stdin when none are given on the command line.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, err := parseType(args[0])
			if err != nil {
				return err
			}
			candidates := args[1:]
			if len(candidates) == 0 {
				candidates, err = readLines(cmd.InOrStdin())
				if err != nil {
					return sysError(fmt.Errorf("read stdin: %w", err))
				}
			}
			return a.withMapper(cmd, func(ctx context.Context, m *idmap.Mapper) error {
				unmapped, err := m.FilterMappedEndpointIDs(ctx, typ, candidates)
				if err != nil {
					return storeError(err)
				}
				return printList(cmd.OutOrStdout(), a.flags.jsonMode, unmapped)
			})
		},
	}
}

func newCountCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "count [type]",
		Short: "Count the stored mappings, optionally of one type",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, err := optionalType(args)
			if err != nil {
				return err
			}
			return a.withMapper(cmd, func(ctx context.Context, m *idmap.Mapper) error {
				n, err := m.Count(ctx, typ)
				if err != nil {
					return storeError(err)
				}
				if a.flags.jsonMode {
					return printJSON(cmd.OutOrStdout(), map[string]any{"count": n})
				}
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			})
		},
	}
}

func newClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear [type]",
		Short: "Remove every mapping, optionally of one type",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, err := optionalType(args)
			if err != nil {
				return err
			}
			return a.withMapper(cmd, func(ctx context.Context, m *idmap.Mapper) error {
				cleared, err := m.Clear(ctx, typ)
				if err != nil {
					return storeError(err)
				}
				return printResult(cmd.OutOrStdout(), a.flags.jsonMode, "cleared", cleared)
			})
		},
	}
}

func printResult(w io.Writer, jsonMode bool, key string, ok bool) error {
	if jsonMode {
		return printJSON(w, map[string]bool{key: ok})
	}
	fmt.Fprintln(w, key+":", ok)
	return nil
}

func printList(w io.Writer, jsonMode bool, items []string) error {
	if jsonMode {
		if items == nil {
			items = []string{}
		}
		return printJSON(w, items)
	}
	for _, s := range items {
		fmt.Fprintln(w, s)
	}
	return nil
}

// readLines returns the non-blank lines of r, trimmed.
func readLines(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	return out, sc.Err()
}

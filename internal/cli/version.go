package cli

import (
	"fmt"

	"github.com/mesh-intelligence/idmap/pkg/idmap"
	"github.com/spf13/cobra"
)

const modulePath = "github.com/mesh-intelligence/idmap"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the idmap version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "idmap v%s\nmodule: %s\n", idmap.Version, modulePath)
			return nil
		},
	}
}

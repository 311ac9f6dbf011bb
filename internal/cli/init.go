package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mesh-intelligence/idmap/internal/paths"
	"github.com/mesh-intelligence/idmap/pkg/idmap"
	"github.com/mesh-intelligence/idmap/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize idmap storage",
		Long: "Create the configuration and data directories, then create every\n" +
			"mapping table declared in config.yaml.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.flags.dataDir != "" {
				configDir, err := paths.ResolveConfigDir(a.flags.configDir)
				if err != nil {
					return sysError(err)
				}
				if err := recordDataDir(filepath.Join(configDir, configFileExt), a.cfg.DataDir); err != nil {
					return sysError(fmt.Errorf("write config: %w", err))
				}
			}
			return a.withMapper(cmd, func(ctx context.Context, m *idmap.Mapper) error {
				if err := m.Install(ctx); err != nil {
					return sysError(fmt.Errorf("initialize storage: %w", err))
				}
				if a.flags.jsonMode {
					return printJSON(cmd.OutOrStdout(), map[string]any{
						"backend":  a.cfg.Backend,
						"data_dir": a.cfg.DataDir,
						"tables":   len(m.Tables()),
					})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "idmap initialized (%s, %d tables)\n", a.cfg.Backend, len(m.Tables()))
				return nil
			})
		},
	}
}

// recordDataDir stores dataDir in config.yaml when the file does not set
// one yet. An existing data_dir is left untouched.
func recordDataDir(path, dataDir string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var cfg types.Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.DataDir != "" {
		return nil
	}
	cfg.DataDir = dataDir
	out, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, out, 0o644)
}

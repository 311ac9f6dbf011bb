// Package cli implements the idmap command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mesh-intelligence/idmap/internal/paths"
	"github.com/mesh-intelligence/idmap/pkg/idmap"
	"github.com/mesh-intelligence/idmap/pkg/types"
	"github.com/spf13/cobra"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// exitError carries the process exit code for a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// sysError marks err as a storage or environment failure.
func sysError(err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: exitSysError, err: err}
}

// exitCode maps a command error to a process exit code.
func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitUserError
}

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	jsonMode  bool
	logLevel  string
}

// app is the state shared by the subcommands of one root command.
type app struct {
	flags  rootFlags
	cfg    types.Config
	logger *slog.Logger
	stderr io.Writer

	// open is replaced in tests.
	open func(ctx context.Context, cfg types.Config, opts ...idmap.Option) (*idmap.Mapper, error)
}

// NewRootCmd creates the top-level "idmap" command with global flags and
// all subcommands registered.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{stderr: os.Stderr, open: idmap.Open})
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "idmap",
		Short: "Map host ids to endpoint ids",
		Long: "idmap stores associations between integer host ids and composite\n" +
			"endpoint ids of external systems, per identity type.",
		Version: idmap.Version,
		// Do not print usage on errors returned by subcommands.
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (default: $(CWD)/.idmap or platform config dir)")
	pf.StringVar(&a.flags.dataDir, "data-dir", "", "data directory (default: $(CWD)/.idmap-db)")
	pf.BoolVar(&a.flags.jsonMode, "json", false, "output in JSON format")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "log level: debug, info, warn, error (default: config log_level or warn)")

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(a),
		newTablesCmd(a),
		newHostCmd(a),
		newEndpointCmd(a),
		newSaveCmd(a),
		newDeleteCmd(a),
		newListCmd(a),
		newFilterCmd(a),
		newCountCmd(a),
		newClearCmd(a),
		newExportCmd(a),
		newImportCmd(a),
	)
	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	root := NewRootCmd()
	err := root.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(exitCode(err))
}

// load resolves directories, reads config.yaml, and builds the logger.
func (a *app) load(cmd *cobra.Command) error {
	configDir, err := paths.ResolveConfigDir(a.flags.configDir)
	if err != nil {
		return sysError(fmt.Errorf("resolve config dir: %w", err))
	}
	cfg, err := loadConfig(configDir)
	if err != nil {
		return sysError(err)
	}
	dataDir, err := paths.ResolveDataDir(a.flags.dataDir, cfg.DataDir)
	if err != nil {
		return sysError(fmt.Errorf("resolve data dir: %w", err))
	}
	cfg.DataDir = dataDir

	level := cfg.LogLevel
	if a.flags.logLevel != "" {
		level = a.flags.logLevel
	}
	lvl, err := parseLevel(level)
	if err != nil {
		return err
	}
	a.logger = slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: lvl}))
	a.cfg = cfg
	a.logger.Debug("config loaded", "config_dir", configDir, "data_dir", dataDir, "backend", cfg.Backend)
	return nil
}

// mapper opens the configured backend. The caller must Close it.
func (a *app) mapper(ctx context.Context) (*idmap.Mapper, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	m, err := a.open(ctx, a.cfg, idmap.WithLogger(a.logger))
	if err != nil {
		return nil, sysError(fmt.Errorf("open backend: %w", err))
	}
	return m, nil
}

// withMapper opens the backend, runs fn, and closes the backend.
func (a *app) withMapper(cmd *cobra.Command, fn func(ctx context.Context, m *idmap.Mapper) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	m, err := a.mapper(ctx)
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(ctx, m)
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "", "warn":
		return slog.LevelWarn, nil
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

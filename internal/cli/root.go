// Package cli implements lionctl, the operator tool for the schema version
// history lionrow gates startup on.
package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rzpsarthak13/lionrow/internal/registry"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Driver     string
	DSN        string
	Verbose    bool
}

// NewRootCommand creates the lionctl root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "lionctl",
		Short: "Inspect and stamp the lionrow schema version",
		Long: `lionctl reads and appends the version history table that lionrow
checks before serving any query.

Settings come from --config, then LIONROW_* environment variables, then
the --driver and --dsn flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "configuration file (yaml or json)")
	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", "", "database driver (postgres|mysql|sqlite3)")
	cmd.PersistentFlags().StringVar(&opts.DSN, "dsn", "", "database connection string")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewVersionCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewStampCommand(opts))

	return cmd
}

// loadConfig layers the configuration file, the environment and the flags.
func loadConfig(opts *RootOptions) (*registry.Config, error) {
	cfg := registry.DefaultConfig()
	if opts.ConfigPath != "" {
		var err error
		if cfg, err = registry.ReadConfigFile(opts.ConfigPath); err != nil {
			return nil, err
		}
	}
	if err := registry.ApplyEnvTo(cfg); err != nil {
		return nil, err
	}
	if opts.Driver != "" {
		cfg.Database.Driver = opts.Driver
	}
	if opts.DSN != "" {
		cfg.Database.DSN = opts.DSN
	}
	if _, err := registry.NewConfigManagerFrom(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger logs warnings to w, or everything with --verbose.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}

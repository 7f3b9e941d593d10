package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/rzpsarthak13/lionrow/internal/database"
)

// connect opens the database without the version gate.
func connect(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*database.Connector, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	dbConfig := cfg.Database.Connector(newLogger(opts, cmd.ErrOrStderr()))
	dbConfig.SkipVersionCheck = true
	return database.Open(ctx, dbConfig)
}

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the latest recorded schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := connect(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer conn.Close()

			v, err := conn.Version(cmd.Context())
			if err != nil {
				return err
			}
			if v.Number == database.NoVersion {
				printf(cmd, "no schema version recorded\n")
				return nil
			}
			printf(cmd, "schema version %d (applied %s by %s)\n", v.Number, v.AppliedAt.Format(time.RFC3339), v.Author)
			return nil
		},
	}
}

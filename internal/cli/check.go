package cli

import (
	"github.com/spf13/cobra"

	"github.com/rzpsarthak13/lionrow/internal/core"
	"github.com/rzpsarthak13/lionrow/internal/database"
)

// NewCheckCommand creates the check command. It runs the same gate lionrow
// runs at startup and fails on a mismatch.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	var expect int

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify the schema version matches the expected one",
		Long: `Verify the latest recorded schema version equals --expect, or
database.expected_version from the configuration when --expect is not given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("expect") {
				if cfg.Database.ExpectedVersion == nil {
					return core.Usagef("no expected version: pass --expect or set database.expected_version")
				}
				expect = *cfg.Database.ExpectedVersion
			}

			dbConfig := cfg.Database.Connector(newLogger(rootOpts, cmd.ErrOrStderr()))
			dbConfig.SkipVersionCheck = false
			dbConfig.ExpectedVersion = expect
			conn, err := database.Open(cmd.Context(), dbConfig)
			if err != nil {
				return err
			}
			defer conn.Close()

			printf(cmd, "schema version %d ok\n", expect)
			return nil
		},
	}

	cmd.Flags().IntVar(&expect, "expect", 0, "expected schema version")
	return cmd
}

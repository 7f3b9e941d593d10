package cli

import (
	"github.com/spf13/cobra"
)

// NewStampCommand creates the stamp command.
func NewStampCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		version int
		author  string
	)

	cmd := &cobra.Command{
		Use:   "stamp",
		Short: "Append an entry to the schema version history",
		Long: `Append an entry to the schema version history, creating the history
table if it does not exist. Run it after applying a migration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := connect(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := conn.CreateVersionTable(cmd.Context()); err != nil {
				return err
			}
			v, err := conn.RecordVersion(cmd.Context(), version, author)
			if err != nil {
				return err
			}
			printf(cmd, "recorded schema version %d by %s\n", v.Number, v.Author)
			return nil
		},
	}

	cmd.Flags().IntVar(&version, "version", 0, "schema version to record")
	cmd.Flags().StringVar(&author, "author", "lionctl", "author of the migration")
	_ = cmd.MarkFlagRequired("version")
	return cmd
}

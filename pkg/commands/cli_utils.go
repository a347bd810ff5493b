package commands

import (
	"github.com/spf13/cobra"
)

// NewUtilityCommands creates the database maintenance commands (migrate, db).
func NewUtilityCommands() []*cobra.Command {
	return []*cobra.Command{
		NewMigrateCommand(),
		newDatabaseCmd(),
	}
}

func newDatabaseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the configured database",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "create",
			Short: "Drop and recreate the database named by DB_NAME",
			RunE: func(cmd *cobra.Command, args []string) error {
				return CreateDatabase(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "drop",
			Short: "Drop the database named by DB_NAME",
			RunE: func(cmd *cobra.Command, args []string) error {
				return DropDatabase(cmd.Context())
			},
		},
	)
	return cmd
}

// internal/cli/migrate.go
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the ledger schema",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	application, err := initApp(cmd.Context())
	if err != nil {
		return err
	}
	defer application.Shutdown(cmd.Context())

	if err := application.Migrate(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", application.Dialect.Name)
	return nil
}

// internal/cli/sweep.go
package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var sweepAsOf string

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().StringVar(&sweepAsOf, "as-of", "", "Sweep as of this RFC 3339 time instead of now")
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Reverse every expired transaction once and exit",
	Args:  cobra.NoArgs,
	RunE:  runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	asOf := time.Now().UTC()
	if sweepAsOf != "" {
		t, err := time.Parse(time.RFC3339, sweepAsOf)
		if err != nil {
			return fmt.Errorf("invalid --as-of %q: %w", sweepAsOf, err)
		}
		asOf = t.UTC()
	}

	application, err := initApp(cmd.Context())
	if err != nil {
		return err
	}
	defer application.Shutdown(cmd.Context())

	processed, err := application.Sweeper.ProcessExpired(cmd.Context(), asOf)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "reversed %d expired transaction(s) as of %s\n", processed, asOf.Format(time.RFC3339))
	return nil
}

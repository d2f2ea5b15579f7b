// internal/cli/root.go
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	app "mentor-points/internal"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "pointsd",
	Short: "Points ledger service",
	Long: `pointsd owns per-user point balances. It records every balance change as an
immutable transaction, reverses transactions exactly once and sweeps expired
credits. Configuration comes from an optional TOML file and the environment.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("POINTS_CONFIG"),
		"Path to a TOML config file (env POINTS_CONFIG)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// initApp loads configuration and wires every component.
func initApp(ctx context.Context) (*app.Application, error) {
	application := app.NewApplication(configPath)
	if err := application.Initialize(ctx); err != nil {
		if application.DB != nil {
			_ = application.Shutdown(ctx)
		}
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}
	return application, nil
}

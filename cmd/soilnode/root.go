package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"soilnode/internal/logging"
)

var (
	verbose    bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "soilnode",
	Short: "Duty-cycled soil telemetry node",
	Long:  "soilnode runs one wake cycle of a soil moisture node and ships the tooling to provision, inspect and replay it.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; it carries GreptimeDB and collector settings.
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load .env: %w", err)
		}
		slog.SetDefault(logging.New(verbose))
		return nil
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/node.yaml", "Path to node configuration YAML")

	rootCmd.AddCommand(wakeCmd)
	rootCmd.AddCommand(provisionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(configCmd)
}

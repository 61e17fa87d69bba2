package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"soilnode/internal/config"
	"soilnode/internal/dashboard"
	"soilnode/internal/sink"
)

var dashboardOut string

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render the Grafana dashboard",
	Long:  "dashboard renders the soil dashboard for the GreptimeDB table. GREPTIMEDB_DATASOURCE_UID must be set.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		p := dashboard.Params{
			Table:            firstNonEmpty(os.Getenv("GREPTIMEDB_TABLE"), sink.DefaultTable),
			MoistureWarnRaw:  cfg.Moisture.WarnRaw,
			BatteryWarnVolts: cfg.Battery.WarnVolts,
			BatteryMinVolts:  cfg.Battery.MinVolts,
		}
		if err := dashboard.Render(dashboardOut, p); err != nil {
			return err
		}
		slog.Info("dashboard rendered", "dir", dashboardOut)
		return nil
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardOut, "out", "build", "Output directory")
}

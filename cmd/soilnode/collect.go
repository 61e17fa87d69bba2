package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"soilnode/internal/collector"
	"soilnode/internal/config"
	"soilnode/internal/sink"
)

var (
	collectListen    string
	collectPrintOnly bool
	collectTUI       bool
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run a collector endpoint for nodes",
	Long:  "collect accepts records POSTed by nodes on /api and writes them to GreptimeDB or STDOUT.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		log := slog.Default()
		var display sink.RecordWriter
		var tw *sink.TUIWriter
		if collectTUI {
			tw, log = startTUI("soilnode collect " + collectListen)
			display = tw
			defer tw.Close()
		}
		writer, err := newWriters(collectPrintOnly, "", display, cfg.Location(), log)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if tw != nil {
			// quitting the dashboard stops the collector
			go func() {
				select {
				case <-tw.Done():
					stop()
				case <-ctx.Done():
				}
			}()
		}

		srv := collector.NewServer(writer, log)
		log.Info("collector listening", "addr", collectListen)
		if err := srv.Start(ctx, collectListen); err != nil {
			return err
		}
		log.Info("collector stopped")
		return nil
	},
}

func init() {
	collectCmd.Flags().StringVar(&collectListen, "listen", ":8080", "Listen address")
	collectCmd.Flags().BoolVar(&collectPrintOnly, "print-only", false, "Print records to STDOUT instead of writing to DB")
	collectCmd.Flags().BoolVar(&collectTUI, "tui", false, "Show incoming records in a terminal dashboard")
}

package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"soilnode/internal/config"
	"soilnode/internal/sink"
)

var (
	replayInput     string
	replaySpeed     float64
	replayPrintOnly bool
	replayForward   string
	replayTUI       bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a queue file",
	Long:  "replay feeds records from a queue file pulled off a node into GreptimeDB, STDOUT or a collector.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("input file required")
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		log := slog.Default()
		var display sink.RecordWriter
		var tw *sink.TUIWriter
		if replayTUI {
			tw, log = startTUI("soilnode replay " + replayInput)
			display = tw
		}
		writer, err := newWriters(replayPrintOnly, replayForward, display, cfg.Location(), log)
		if err != nil {
			if tw != nil {
				tw.Close()
			}
			return err
		}
		stats, err := sink.ReplayLogFile(replayInput, writer, replaySpeed, log)
		if errors.Is(err, sink.ErrDisplayClosed) {
			err = nil
		}
		log.Info("replay finished", "written", stats.Written, "skipped", stats.Skipped)
		if tw != nil {
			// keep the dashboard up until the user quits
			<-tw.Done()
		}
		return err
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to a queue file (data.txt)")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 0, "Playback speed multiplier, 0 replays without delay")
	replayCmd.Flags().BoolVar(&replayPrintOnly, "print-only", false, "Print records to STDOUT instead of writing to DB")
	replayCmd.Flags().StringVar(&replayForward, "forward", "", "Also POST every record to this collector URL")
	replayCmd.Flags().BoolVar(&replayTUI, "tui", false, "Show replayed records in a terminal dashboard")
	replayCmd.MarkFlagRequired("input")
}

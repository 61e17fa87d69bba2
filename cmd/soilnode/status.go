package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"soilnode/internal/config"
	"soilnode/internal/dutycycle"
	"soilnode/internal/hal"
	"soilnode/internal/logging"
	"soilnode/internal/nvs"
	"soilnode/internal/queue"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored slots, counter and queue depth",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		store, err := nvs.Open(cfg.NVSPath())
		if err != nil {
			return err
		}
		q, qerr := queue.Open(cfg.QueueDir(), logging.Discard())
		view := collectStatus(cfg, store, q, qerr)
		styled := term.IsTerminal(int(os.Stdout.Fd()))
		renderStatus(cmd.OutOrStdout(), view, styled)
		return nil
	},
}

type statusLine struct {
	key, value string
	bad        bool
}

func collectStatus(cfg *config.NodeConfig, store *nvs.Store, q *queue.Queue, qerr error) []statusLine {
	var lines []statusLine
	counter := dutycycle.Counter{Store: store, Threshold: cfg.UploadEvery, Log: logging.Discard()}
	iter := counter.Load()
	lines = append(lines, statusLine{key: "cycle", value: fmt.Sprintf("%d of %d", iter, cfg.UploadEvery)})

	marker, _ := store.GetString(nvs.SlotPowerState)
	reset := hal.DetectResetReason(marker)
	lines = append(lines, statusLine{key: "last state", value: firstNonEmpty(marker, "none"), bad: reset.Abnormal()})

	switch {
	case qerr != nil:
		lines = append(lines, statusLine{key: "queue", value: qerr.Error(), bad: true})
	default:
		depth, err := q.Depth()
		if err != nil {
			lines = append(lines, statusLine{key: "queue", value: err.Error(), bad: true})
		} else {
			lines = append(lines, statusLine{key: "queue", value: fmt.Sprintf("%d records", depth)})
		}
	}

	_, err := nvs.LoadProvisioning(store)
	if err != nil {
		lines = append(lines, statusLine{key: "calibration", value: err.Error(), bad: true})
	}
	for _, k := range store.Keys() {
		v, _ := store.GetString(k)
		if k == nvs.SlotPassword && v != "" {
			v = strings.Repeat("*", 8)
		}
		lines = append(lines, statusLine{key: k, value: v})
	}
	return lines
}

func renderStatus(w io.Writer, lines []statusLine, styled bool) {
	width := 0
	for _, l := range lines {
		width = max(width, len(l.key))
	}
	keyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(width + 2)
	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	badStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	for _, l := range lines {
		if !styled {
			fmt.Fprintf(w, "%-*s  %s\n", width, l.key, l.value)
			continue
		}
		vs := okStyle
		if l.bad {
			vs = badStyle
		}
		fmt.Fprintln(w, lipgloss.JoinHorizontal(lipgloss.Top, keyStyle.Render(l.key), vs.Render(l.value)))
	}
}

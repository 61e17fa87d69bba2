package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"soilnode/internal/config"
	"soilnode/internal/cycle"
	"soilnode/internal/hal"
	"soilnode/internal/link"
	"soilnode/internal/logging"
	"soilnode/internal/nvs"
	"soilnode/internal/queue"
)

var (
	wakeSimulate    bool
	wakeResetReason string
	wakeDeviceID    string
)

var wakeCmd = &cobra.Command{
	Use:   "wake",
	Short: "Run one wake cycle",
	Long:  "wake samples the sensors, delivers or queues the records and then puts the node back to sleep.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		log := slog.Default()

		var reset *hal.ResetReason
		if wakeResetReason != "" {
			r, err := hal.ParseResetReason(wakeResetReason)
			if err != nil {
				return err
			}
			reset = &r
		}

		store, err := nvs.Open(cfg.NVSPath())
		if err != nil {
			// An unreadable slot file must not stop the cycle.
			log.Error("nvs unavailable, using volatile slots", "path", cfg.NVSPath(), "error", err)
			store = nvs.Memory()
		}

		// The orchestrator reports an unavailable queue itself.
		q, err := queue.Open(cfg.QueueDir(), log)
		if err != nil {
			log.Error("queue unavailable", "dir", cfg.QueueDir(), "error", err)
		}

		bench := &hal.CountingWatchdog{}
		wd := hal.Watchdog(hal.NopWatchdog{})
		if wakeSimulate {
			wd = bench
		} else if cfg.Watchdog.Device != "" {
			dev, err := hal.OpenWatchdog(cfg.Watchdog.Device, log)
			if err != nil {
				log.Warn("watchdog unavailable", "device", cfg.Watchdog.Device, "error", err)
			} else {
				wd = dev
			}
		}
		defer wd.Close()

		ports := cycle.Ports{
			Store:    store,
			Queue:    q,
			ADC:      newADC(cfg, wakeSimulate),
			Watchdog: wd,
			Power: hal.HostPower{
				RTCWake:          cfg.Power.RTCWake,
				RTCMode:          cfg.Power.RTCMode,
				HibernateCommand: cfg.Power.HibernateCommand,
				Log:              log,
			},
			Radio: &link.HostRadio{
				Attempts: cfg.Network.ConnectAttempts,
				Delay:    cfg.Network.ConnectDelay,
				Dial:     (&net.Dialer{Timeout: cfg.Network.ConnectDelay}).DialContext,
				Pulse:    wd.Pulse,
				Log:      log,
			},
			TimeSync:  link.NTPSync{Timeout: cfg.Network.TimeSyncTimeout},
			Transport: link.NewHTTPTransport(cfg.Network.HTTPTimeout, log),
			DeviceID:  resolveDeviceID(store, firstNonEmpty(wakeDeviceID, cfg.DeviceID)),
			Reset:     reset,
			Metrics:   cycle.NewMetrics(),
		}
		if wakeSimulate {
			// Bench runs never power the host down.
			ports.Power = hal.HostPower{Log: log}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx = logging.NewContext(ctx, log)

		out := cycle.New(cfg, ports).Run(ctx)
		log.Info("wake finished",
			"upload", out.Upload,
			"forced", out.Forced,
			"connected", out.Connected,
			"delivered", out.Delivered,
			"queued", out.Queued,
			"dropped", out.Dropped,
			"iter", out.IterAfter,
			"hibernated", out.Hibernated,
		)
		if wakeSimulate {
			log.Debug("watchdog pulses", "count", bench.Pulses)
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return ctx.Err()
		}
		return nil
	},
}

func init() {
	wakeCmd.Flags().BoolVar(&wakeSimulate, "simulate", false, "Read simulated ADC channels instead of IIO sysfs")
	wakeCmd.Flags().StringVar(&wakeResetReason, "reset-reason", "", "Override the detected reset reason (poweron, deepsleep, panic, wdt, brownout, ...)")
	wakeCmd.Flags().StringVar(&wakeDeviceID, "device-id", "", "Override the MAC-derived device id")
}

func newADC(cfg *config.NodeConfig, simulate bool) hal.ADC {
	if !simulate {
		return hal.IIOADC{Dir: cfg.ADC.IIODir, MaxRaw: cfg.ADC.MaxRaw}
	}
	channels := make(map[int]hal.SimChannel, len(cfg.Simulation.Channels))
	for _, c := range cfg.Simulation.Channels {
		channels[c.Channel] = hal.SimChannel{Baseline: c.Baseline, Noise: c.Noise, SpikeChance: c.SpikeChance}
	}
	return hal.NewSimADC(channels, cfg.ADC.MaxRaw, cfg.Simulation.Seed)
}

// resolveDeviceID falls back to a uuid generated once and kept in nvs.
func resolveDeviceID(store *nvs.Store, override string) string {
	return hal.DeviceID(override, func() string {
		if id, ok := store.GetString(nvs.SlotDeviceUUID); ok && id != "" {
			return id
		}
		id := uuid.NewString()
		store.SetString(nvs.SlotDeviceUUID, id)
		return id
	})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

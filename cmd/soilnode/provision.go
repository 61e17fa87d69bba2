package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"soilnode/internal/config"
	"soilnode/internal/nvs"
)

var (
	provSSID         string
	provPassword     string
	provCollectorURL string
	provTimeServer   string
	provADCOffset    int
	provResetCounter bool
)

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Write network and calibration slots",
	Long:  "provision stores credentials, the collector endpoint, the time server and the ADC calibration offset in the node's slot file. Only flags that are set are changed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		store, err := nvs.Open(cfg.NVSPath())
		if err != nil {
			return err
		}
		if err := applyProvisioning(store, cmd.Flags().Changed); err != nil {
			return err
		}
		if err := store.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", store.Path(), err)
		}
		slog.Info("slots written", "path", store.Path(), "keys", len(store.Keys()))
		return nil
	},
}

func init() {
	f := provisionCmd.Flags()
	f.StringVar(&provSSID, "ssid", "", "Network SSID")
	f.StringVar(&provPassword, "password", "", "Network password")
	f.StringVar(&provCollectorURL, "collector-url", "", "Collector endpoint records are POSTed to")
	f.StringVar(&provTimeServer, "time-server", "", "NTP server")
	f.IntVar(&provADCOffset, "adc-offset", 0, "Calibration offset added to non-zero soil readings")
	f.BoolVar(&provResetCounter, "reset-counter", false, "Clear the duty-cycle counter so the next wake uploads")
}

// applyProvisioning merges the changed flags into the stored provisioning.
// A fresh store gets offset 0; a corrupt one is replaced only when
// --adc-offset is given.
func applyProvisioning(store *nvs.Store, changed func(string) bool) error {
	_, hadOffset := store.GetString(nvs.SlotADCOffset)
	p, err := nvs.LoadProvisioning(store)
	if err != nil && !errors.Is(err, nvs.ErrCalibration) {
		return err
	}
	if err != nil && hadOffset && !changed("adc-offset") {
		return fmt.Errorf("%w: pass --adc-offset to repair it", err)
	}
	if changed("ssid") {
		p.SSID = provSSID
	}
	if changed("password") {
		p.Password = provPassword
	}
	if changed("collector-url") {
		p.CollectorURL = provCollectorURL
	}
	if changed("time-server") {
		p.TimeServer = provTimeServer
	}
	if changed("adc-offset") {
		p.ADCOffset = provADCOffset
	}
	p.Save(store)
	if provResetCounter {
		store.Delete(nvs.SlotIter)
	}
	return nil
}
